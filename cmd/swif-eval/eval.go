package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/francoispqt/gojay"
	"golang.org/x/sync/errgroup"

	"github.com/observe-l/swif/fec"
	"github.com/observe-l/swif/internal/blockfec"
	"github.com/observe-l/swif/internal/dropper"
	"github.com/observe-l/swif/swiftransport"
)

type scheme string

const (
	schemeSliding scheme = "swif"
	schemeRaptorQ scheme = "raptorq"
	schemeRS      scheme = "rs"
)

type params struct {
	SymbolSize  int
	WindowSize  int
	TotalSource int
	BlockK      int
	Rate        float64
}

func (p params) totalEncoded() int {
	return int(math.Floor(float64(p.TotalSource) / p.Rate))
}

// outcome of one run.
type outcome struct {
	Available int
	Sent      int
	Lost      int
	Enc, Dec  time.Duration
}

// runSliding runs one in-memory sliding window session.
func runSliding(ctx context.Context, p params, d dropper.Dropper) (outcome, error) {
	var out outcome
	tx, rx := swiftransport.Pipe(p.totalEncoded() + 16)
	var (
		sst swiftransport.SenderStats
		rst swiftransport.ReceiverStats
	)
	start := time.Now()
	var g errgroup.Group
	g.Go(func() error {
		defer tx.Close()
		var err error
		sst, err = swiftransport.Send(ctx, tx, swiftransport.SenderConfig{
			Codepoint:        fec.CodepointRLCGF256FullDensity,
			DensityThreshold: fec.FullDensity,
			SymbolSize:       p.SymbolSize,
			WindowSize:       p.WindowSize,
			TotalSource:      p.TotalSource,
			TotalEncoded:     p.totalEncoded(),
			Dropper:          d,
		})
		return err
	})
	g.Go(func() error {
		var err error
		rst, err = swiftransport.Receive(ctx, rx, swiftransport.ReceiverConfig{SymbolSize: p.SymbolSize, DensityThreshold: fec.FullDensity})
		if errors.Is(err, swiftransport.ErrIncomplete) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return out, err
	}
	out.Available = int(rst.Available())
	out.Sent = sst.SourceSent + sst.RepairSent + sst.Dropped
	out.Lost = sst.Dropped
	// Encoding and decoding interleave, the whole session counts as decoding.
	out.Dec = time.Since(start)
	return out, nil
}

// runBlock splits the source into blocks of BlockK symbols. Source symbols
// of an unrecoverable block count only when they arrived themselves.
func runBlock(codec blockfec.Codec, p params, d dropper.Dropper, content *rand.Rand) (outcome, error) {
	var out outcome
	for first := 0; first < p.TotalSource; first += p.BlockK {
		k := min(p.BlockK, p.TotalSource-first)
		n := int(math.Floor(float64(k) / p.Rate))
		src := make([][]byte, k)
		for i := range src {
			src[i] = make([]byte, p.SymbolSize)
			content.Read(src[i])
		}
		t := time.Now()
		syms, err := codec.Encode(src, n)
		if err != nil {
			return out, fmt.Errorf("%s encode k=%d n=%d: %w", codec.Name(), k, n, err)
		}
		out.Enc += time.Since(t)

		recv := make([]blockfec.Symbol, 0, n)
		gotSource := 0
		for _, s := range syms {
			out.Sent++
			if d.Drop() {
				out.Lost++
				continue
			}
			recv = append(recv, s)
			if s.Index < k {
				gotSource++
			}
		}
		if gotSource == k {
			out.Available += k
			continue
		}
		t = time.Now()
		_, err = codec.Decode(recv, k, n, p.SymbolSize)
		out.Dec += time.Since(t)
		switch {
		case err == nil:
			out.Available += k
		case errors.Is(err, blockfec.ErrUnrecoverable):
			out.Available += gotSource
		default:
			return out, fmt.Errorf("%s decode: %w", codec.Name(), err)
		}
	}
	return out, nil
}

// record aggregates the runs of one scheme at one loss setting.
type record struct {
	Scheme    scheme
	Model     string
	Loss      float64
	Rate      float64
	Runs      int
	Successes int
	Sent      int64
	Lost      int64
	Missing   int64 // source symbols neither received nor recovered
	Total     int64
	Enc, Dec  time.Duration
}

func (r *record) add(o outcome, total int) {
	r.Runs++
	if o.Available == total {
		r.Successes++
	}
	r.Sent += int64(o.Sent)
	r.Lost += int64(o.Lost)
	r.Missing += int64(total - o.Available)
	r.Total += int64(total)
	r.Enc += o.Enc
	r.Dec += o.Dec
}

func ratio(a, b int64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func (r *record) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("scheme", string(r.Scheme))
	enc.StringKey("model", r.Model)
	enc.Float64Key("loss", r.Loss)
	enc.Float64Key("code_rate", r.Rate)
	enc.IntKey("runs", r.Runs)
	enc.IntKey("successes", r.Successes)
	enc.Float64Key("observed_loss", ratio(r.Lost, r.Sent))
	enc.Float64Key("residual_loss", ratio(r.Missing, r.Total))
	enc.Int64Key("enc_us_total", r.Enc.Microseconds())
	enc.Int64Key("dec_us_total", r.Dec.Microseconds())
}

func (r *record) IsNil() bool { return r == nil }

// job is one run of one scheme at one loss setting.
type job struct {
	scheme scheme
	rec    *record
	params []float64
	seed   int64
}

// evaluate runs every job on up to workers goroutines.
func evaluate(ctx context.Context, p params, model string, jobs []job, workers int) error {
	rs := blockfec.NewReedSolomon()
	results := make([]outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range jobs {
		j := jobs[i]
		g.Go(func() error {
			rng := rand.New(rand.NewSource(j.seed))
			d, err := dropper.Parse(model, j.params, rng)
			if err != nil {
				return err
			}
			var o outcome
			switch j.scheme {
			case schemeSliding:
				o, err = runSliding(gctx, p, d)
			case schemeRaptorQ:
				o, err = runBlock(blockfec.RaptorQ{}, p, d, rand.New(rand.NewSource(^j.seed)))
			case schemeRS:
				o, err = runBlock(rs, p, d, rand.New(rand.NewSource(^j.seed)))
			default:
				err = fmt.Errorf("unknown scheme %q", j.scheme)
			}
			if err != nil {
				return fmt.Errorf("%s seed %d: %w", j.scheme, j.seed, err)
			}
			results[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, j := range jobs {
		j.rec.add(results[i], p.TotalSource)
	}
	return nil
}
