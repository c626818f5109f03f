package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/observe-l/swif/fec"
	"github.com/observe-l/swif/internal/config"
	"github.com/observe-l/swif/internal/control"
	"github.com/observe-l/swif/internal/logging"
	"github.com/observe-l/swif/swiftransport"
)

// symbolWriter stores source symbols at their offset in the output file.
type symbolWriter struct {
	f          *os.File
	symbolSize int
	err        error
}

func (w *symbolWriter) write(esi uint32, buf []byte, _ bool) {
	if w.err != nil {
		return
	}
	_, w.err = w.f.WriteAt(buf, int64(esi)*int64(w.symbolSize))
}

func serveMetrics(addr string, m *fec.Metrics, log zerolog.Logger) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving /metrics")
	return srv, nil
}

// accept waits for the sender's connection.
func accept(ctx context.Context, s config.Session) (swiftransport.Conn, func(), error) {
	if s.Transport == "quic" {
		ln, err := swiftransport.ListenQUIC(s.Addr, s.ALPN, nil)
		if err != nil {
			return nil, nil, err
		}
		conn, err := ln.Accept(ctx)
		if err != nil {
			ln.Close()
			return nil, nil, err
		}
		return conn, func() { conn.Close(); ln.Close() }, nil
	}
	conn, err := swiftransport.ListenUDP(s.Addr, swiftransport.UDPOptions{})
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { conn.Close() }, nil
}

func main() {
	resolve := config.Flags(flag.CommandLine)
	ringSize := flag.Int("ring", 4096, "ingress ring size")
	flag.Parse()

	log := logging.New("swif-client")
	s, err := resolve()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, s, *ringSize, log); err != nil {
		log.Error().Err(err).Msg("receive failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, s config.Session, ringSize int, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var metrics *fec.Metrics
	if s.MetricsAddr != "" {
		metrics = fec.NewMetrics("swif")
		srv, err := serveMetrics(s.MetricsAddr, metrics, log)
		if err != nil {
			return err
		}
		defer srv.Close()
	}

	var ctl *control.Server
	if s.ControlAddr != "" {
		var err error
		if ctl, err = control.Listen(s.ControlAddr, log); err != nil {
			return err
		}
		go func() {
			if err := ctl.Serve(); err != nil {
				log.Error().Err(err).Msg("control server")
			}
		}()
		defer ctl.Stop()
	}

	rc := swiftransport.ReceiverConfig{
		SymbolSize:          s.SymbolSize,
		DensityThreshold:    s.DensityThreshold,
		MaxLinearSystemSize: s.MaxLinearSystemSize,
		RingSize:            ringSize,
		Logger:              log,
		Metrics:             metrics,
	}
	var out *symbolWriter
	if s.OutputFile != "" {
		f, err := os.Create(s.OutputFile)
		if err != nil {
			return err
		}
		defer f.Close()
		out = &symbolWriter{f: f, symbolSize: s.SymbolSize}
		rc.OnSymbol = out.write
	}

	log.Info().Str("transport", s.Transport).Str("addr", s.Addr).Msg("waiting for sender")
	conn, closeConn, err := accept(ctx, s)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr, err)
	}
	defer closeConn()

	if ctl != nil {
		ctl.SetPhase(control.PhaseReceiving)
	}
	st, err := swiftransport.Receive(ctx, conn, rc)
	if ctl != nil {
		ctl.SetPhase(control.PhaseDone)
	}
	if out != nil && out.err != nil {
		return fmt.Errorf("write %s: %w", s.OutputFile, out.err)
	}
	fmt.Printf("%d of %d source symbols available (%d received, %d decoded), %d packets in %s\n",
		st.Available(), st.OTI.TotalSource, st.SourceReceived, st.Decoded, st.Packets, st.Duration)
	return err
}
