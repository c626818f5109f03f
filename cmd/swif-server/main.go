package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/observe-l/swif/internal/config"
	"github.com/observe-l/swif/internal/dropper"
	"github.com/observe-l/swif/internal/logging"
	"github.com/observe-l/swif/internal/netem"
	"github.com/observe-l/swif/swiftransport"
)

// fileFill serves source symbols from data, zero padding the last one.
func fileFill(data []byte, symbolSize int) func(uint32, []byte) {
	return func(esi uint32, buf []byte) {
		off := int(esi) * symbolSize
		n := 0
		if off < len(data) {
			n = copy(buf, data[off:])
		}
		clear(buf[n:])
	}
}

func dial(ctx context.Context, s config.Session, insecure bool) (swiftransport.Conn, error) {
	if s.Transport == "quic" {
		return swiftransport.DialQUIC(ctx, s.Addr, s.ALPN, insecure)
	}
	return swiftransport.DialUDP(s.Addr, swiftransport.UDPOptions{})
}

func applyNetem(ctx context.Context, sc netem.Scenario, log zerolog.Logger) (func(), error) {
	if sc.Dev == "" {
		return func() {}, nil
	}
	m := netem.New(nil)
	if err := m.Apply(ctx, sc); err != nil {
		_ = m.Cleanup(context.Background())
		return nil, err
	}
	log.Info().Str("dev", sc.Dev).Dur("delay", sc.Delay).Float64("loss", sc.Loss).Float64("rate_mbps", sc.RateMbps).Msg("netem applied")
	return func() { _ = m.Cleanup(context.Background()) }, nil
}

func main() {
	fs := flag.CommandLine
	resolve := config.Flags(fs)
	var (
		insecure = fs.Bool("insecure", true, "skip TLS verification (quic)")
		linger   = fs.Duration("linger", 200*time.Millisecond, "wait after the last packet before closing")
		sc       netem.Scenario
	)
	fs.StringVar(&sc.Dev, "netem-dev", "", "shape this device with tc netem (requires root)")
	fs.BoolVar(&sc.Egress, "netem-egress", true, "shape egress")
	fs.BoolVar(&sc.Ingress, "netem-ingress", false, "shape ingress through ifb0")
	fs.DurationVar(&sc.Delay, "netem-delay", 0, "added delay")
	fs.DurationVar(&sc.Jitter, "netem-jitter", 0, "delay jitter")
	fs.Float64Var(&sc.RateMbps, "netem-rate", 0, "rate limit in Mbit/s (0 = unlimited)")
	fs.Float64Var(&sc.Loss, "netem-loss", 0, "network loss rate 0..1")
	fs.Float64Var(&sc.Reorder, "netem-reorder", 0, "reorder rate 0..1")
	flag.Parse()

	log := logging.New("swif-server")
	s, err := resolve()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	fill := swiftransport.PatternFill
	if s.InputFile != "" {
		data, err := os.ReadFile(s.InputFile)
		if err != nil {
			log.Fatal().Err(err).Msg("read input")
		}
		if len(data) == 0 {
			log.Fatal().Str("input", s.InputFile).Msg("input file is empty")
		}
		s.TotalSource = (len(data) + s.SymbolSize - 1) / s.SymbolSize
		if s.WindowSize > s.TotalSource {
			s.WindowSize = s.TotalSource
		}
		fill = fileFill(data, s.SymbolSize)
	}

	seed := s.Loss.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	drop, err := dropper.Parse(s.Loss.Model, s.Loss.Params, rand.New(rand.NewSource(seed)))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid loss model")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := swiftransport.SenderConfig{
		Codepoint:        s.Codepoint,
		SymbolSize:       s.SymbolSize,
		WindowSize:       s.WindowSize,
		TotalSource:      s.TotalSource,
		TotalEncoded:     s.TotalEncoded(),
		DensityThreshold: s.DensityThreshold,
		Fill:             fill,
		Dropper:          drop,
		Pace:             s.Pace,
		Linger:           *linger,
		Logger:           log,
	}
	if err := run(ctx, s, cfg, sc, *insecure, log); err != nil {
		log.Error().Err(err).Msg("send failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, s config.Session, cfg swiftransport.SenderConfig, sc netem.Scenario, insecure bool, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	cleanup, err := applyNetem(ctx, sc, log)
	if err != nil {
		return fmt.Errorf("netem: %w", err)
	}
	defer cleanup()

	conn, err := dial(ctx, s, insecure)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.Addr, err)
	}
	defer conn.Close()

	st, err := swiftransport.Send(ctx, conn, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("sent %d source and %d repair symbols, %d dropped by the %s model, in %s\n",
		st.SourceSent, st.RepairSent, st.Dropped, s.Loss.Model, st.Duration)
	return nil
}
