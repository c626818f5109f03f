package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/observe-l/swif/fec"
)

// Flags registers -config and one flag per session setting on fs. After
// fs.Parse, the returned function loads the config file (or the defaults)
// and overrides it with the flags that were set explicitly.
func Flags(fs *flag.FlagSet) func() (Session, error) {
	var (
		path       string
		codepoint  uint
		density    uint
		lossParams string
	)
	f := Default()
	fs.StringVar(&path, "config", "", "TOML session file")
	fs.StringVar(&f.Transport, "transport", f.Transport, "udp or quic")
	fs.StringVar(&f.Addr, "addr", f.Addr, "receiver address")
	fs.StringVar(&f.ALPN, "alpn", f.ALPN, "QUIC ALPN protocol")
	fs.UintVar(&codepoint, "codepoint", uint(f.Codepoint), "FEC codepoint")
	fs.IntVar(&f.SymbolSize, "symbol-size", f.SymbolSize, "bytes per symbol")
	fs.IntVar(&f.WindowSize, "window", f.WindowSize, "encoding window size")
	fs.IntVar(&f.TotalSource, "tot-src", f.TotalSource, "source symbols to send")
	fs.Float64Var(&f.CodeRate, "rate", f.CodeRate, "code rate tot_src/tot_enc")
	fs.UintVar(&density, "density", uint(f.DensityThreshold), "coefficient density threshold 0..15")
	fs.IntVar(&f.MaxLinearSystemSize, "max-linear-system", f.MaxLinearSystemSize, "decoder linear system limit (0 = twice the window)")
	fs.StringVar(&f.Loss.Model, "loss-model", f.Loss.Model, "simulated loss: none|bernoulli|ge")
	fs.StringVar(&lossParams, "loss", joinFloats(f.Loss.Params), "comma-separated loss model parameters")
	fs.Int64Var(&f.Loss.Seed, "seed", f.Loss.Seed, "loss model seed (0 = time based)")
	fs.StringVar(&f.InputFile, "input", f.InputFile, "file to send instead of the test pattern")
	fs.StringVar(&f.OutputFile, "output", f.OutputFile, "file receiving the source symbols")
	fs.StringVar(&f.MetricsAddr, "metrics-addr", f.MetricsAddr, "serve Prometheus /metrics on this address")
	fs.StringVar(&f.ControlAddr, "control-addr", f.ControlAddr, "serve the gRPC control endpoint on this address")
	fs.DurationVar(&f.Pace, "pace", f.Pace, "sleep between packets")
	fs.DurationVar(&f.Timeout, "timeout", f.Timeout, "session timeout")

	return func() (Session, error) {
		s := Default()
		if path != "" {
			var err error
			if s, err = Load(path); err != nil {
				return Session{}, err
			}
		}
		var err error
		fs.Visit(func(fl *flag.Flag) {
			if err != nil {
				return
			}
			switch fl.Name {
			case "transport":
				s.Transport = strings.ToLower(f.Transport)
			case "addr":
				s.Addr = f.Addr
			case "alpn":
				s.ALPN = f.ALPN
			case "codepoint":
				s.Codepoint = fec.Codepoint(codepoint)
			case "symbol-size":
				s.SymbolSize = f.SymbolSize
			case "window":
				s.WindowSize = f.WindowSize
			case "tot-src":
				s.TotalSource = f.TotalSource
			case "rate":
				s.CodeRate = f.CodeRate
			case "density":
				if density > 255 {
					err = fmt.Errorf("density %d out of range", density)
					return
				}
				s.DensityThreshold = uint8(density)
			case "max-linear-system":
				s.MaxLinearSystemSize = f.MaxLinearSystemSize
			case "loss-model":
				s.Loss.Model = f.Loss.Model
			case "loss":
				if s.Loss.Params, err = parseFloats(lossParams); err != nil {
					err = fmt.Errorf("-loss: %w", err)
				}
			case "seed":
				s.Loss.Seed = f.Loss.Seed
			case "input":
				s.InputFile = f.InputFile
			case "output":
				s.OutputFile = f.OutputFile
			case "metrics-addr":
				s.MetricsAddr = f.MetricsAddr
			case "control-addr":
				s.ControlAddr = f.ControlAddr
			case "pace":
				s.Pace = f.Pace
			case "timeout":
				s.Timeout = f.Timeout
			}
		})
		if err != nil {
			return Session{}, err
		}
		return s, s.Validate()
	}
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
