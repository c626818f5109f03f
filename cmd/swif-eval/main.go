package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"

	"github.com/francoispqt/gojay"

	"github.com/observe-l/swif/internal/logging"
)

func parseLosses(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || f < 0 || f >= 1 {
			return nil, fmt.Errorf("bad loss %q", p)
		}
		out = append(out, f)
	}
	return out, nil
}

func parseSchemes(s string) ([]scheme, error) {
	var out []scheme
	for _, p := range strings.Split(s, ",") {
		switch sc := scheme(strings.TrimSpace(p)); sc {
		case schemeSliding, schemeRaptorQ, schemeRS:
			out = append(out, sc)
		case "":
		default:
			return nil, fmt.Errorf("unknown scheme %q", sc)
		}
	}
	return out, nil
}

// writeRecords emits one JSON object per line.
func writeRecords(w io.Writer, recs []*record) error {
	bw := bufio.NewWriter(w)
	enc := gojay.NewEncoder(bw)
	for _, r := range recs {
		if err := enc.EncodeObject(r); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func main() {
	var (
		runs       = flag.Int("runs", 200, "runs per (scheme, loss)")
		symbolSize = flag.Int("symbol-size", 64, "bytes per symbol")
		window     = flag.Int("window", 10, "sliding encoding window size")
		totSrc     = flag.Int("tot-src", 1000, "source symbols per run")
		blockK     = flag.Int("block-k", 32, "source symbols per block for block codes")
		rate       = flag.Float64("rate", 0.667, "code rate k/n")
		model      = flag.String("model", "bernoulli", "loss model: bernoulli|ge")
		lossStr    = flag.String("loss", "0.01,0.05,0.1,0.2,0.3", "comma-separated loss rates (bad-state loss for ge)")
		pGB        = flag.Float64("ge-pgb", 0.05, "gilbert-elliott good to bad transition probability")
		pBG        = flag.Float64("ge-pbg", 0.3, "gilbert-elliott bad to good transition probability")
		which      = flag.String("schemes", "swif,raptorq,rs", "comma-separated schemes: swif|raptorq|rs")
		seed       = flag.Int64("seed", 42, "random seed")
		workers    = flag.Int("workers", runtime.NumCPU(), "parallel runs")
		outPath    = flag.String("out", "", "JSON lines output file (default stdout)")
	)
	flag.Parse()
	log := logging.New("swif-eval")

	losses, err := parseLosses(*lossStr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -loss")
	}
	schemes, err := parseSchemes(*which)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -schemes")
	}
	p := params{SymbolSize: *symbolSize, WindowSize: *window, TotalSource: *totSrc, BlockK: *blockK, Rate: *rate}
	switch {
	case p.Rate <= 0 || p.Rate > 1:
		log.Fatal().Float64("rate", p.Rate).Msg("code rate must be in (0,1]")
	case p.SymbolSize <= 0 || p.WindowSize <= 0 || p.TotalSource < p.WindowSize || p.BlockK <= 0:
		log.Fatal().Msg("symbol size, window and block size must be positive, tot-src at least the window")
	case *runs <= 0 || *workers <= 0:
		log.Fatal().Msg("runs and workers must be positive")
	}
	for _, sc := range schemes {
		if sc == schemeRS && int(float64(p.BlockK)/p.Rate) > 256 {
			log.Fatal().Int("block_k", p.BlockK).Msg("reed-solomon needs at most 256 symbols per block")
		}
	}

	var (
		recs []*record
		jobs []job
	)
	for _, loss := range losses {
		lp := []float64{loss}
		meanLoss := loss
		if *model == "ge" {
			lp = []float64{*pGB, *pBG, loss}
			if *pGB+*pBG > 0 {
				meanLoss = loss * *pGB / (*pGB + *pBG)
			}
		}
		for _, sc := range schemes {
			rec := &record{Scheme: sc, Model: *model, Loss: meanLoss, Rate: p.Rate}
			recs = append(recs, rec)
			for r := 0; r < *runs; r++ {
				// Every scheme sees the same loss pattern for a given run.
				jobs = append(jobs, job{scheme: sc, rec: rec, params: lp, seed: *seed + int64(r)})
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	log.Info().Int("jobs", len(jobs)).Int("workers", *workers).Str("model", *model).Msg("evaluating")
	if err := evaluate(ctx, p, *model, jobs, *workers); err != nil {
		log.Fatal().Err(err).Msg("evaluation failed")
	}

	out := io.Writer(os.Stdout)
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatal().Err(err).Msg("create output")
		}
		defer f.Close()
		out = f
	}
	if err := writeRecords(out, recs); err != nil {
		log.Fatal().Err(err).Msg("write results")
	}
	for _, r := range recs {
		log.Info().
			Str("scheme", string(r.Scheme)).
			Float64("loss", r.Loss).
			Int("successes", r.Successes).
			Int("runs", r.Runs).
			Float64("residual", ratio(r.Missing, r.Total)).
			Msg("result")
	}
}
