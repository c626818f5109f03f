package swiftransport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/observe-l/swif/fec"
	"github.com/observe-l/swif/internal/dropper"
	"github.com/observe-l/swif/internal/fecwire"
)

// SenderConfig describes one sending session.
type SenderConfig struct {
	Codepoint        fec.Codepoint
	SymbolSize       int
	WindowSize       int
	TotalSource      int
	TotalEncoded     int
	DensityThreshold uint8

	// Fill writes the payload of source symbol esi. Defaults to PatternFill.
	Fill func(esi uint32, buf []byte)
	// Dropper simulates losses before packets reach the wire.
	Dropper dropper.Dropper
	// Pace is slept after each packet.
	Pace time.Duration
	// Linger is waited before returning so queued datagrams drain.
	Linger time.Duration

	Logger  zerolog.Logger
	Metrics *fec.Metrics
}

// SenderStats summarizes a sending session.
type SenderStats struct {
	SourceSent int
	RepairSent int
	Dropped    int
	SendErrors int
	TooLarge   int
	Duration   time.Duration
}

// PatternFill fills source symbol esi with byte(esi+1), so that no symbol is
// the all-zero vector.
func PatternFill(esi uint32, buf []byte) {
	for i := range buf {
		buf[i] = byte(esi + 1)
	}
}

func (c *SenderConfig) validate() error {
	if c.SymbolSize <= 0 || c.WindowSize <= 0 || c.WindowSize > 0xffff {
		return fmt.Errorf("%w: symbol size %d, window %d", fec.ErrInvalidParameter, c.SymbolSize, c.WindowSize)
	}
	if c.TotalSource <= 0 || c.TotalEncoded < c.TotalSource {
		return fmt.Errorf("%w: tot_src %d, tot_enc %d", fec.ErrInvalidParameter, c.TotalSource, c.TotalEncoded)
	}
	return nil
}

// Send announces the session with its OTI, then sends every source symbol,
// interleaving a repair symbol after every RepairInterval source symbols and
// after the last one. The repair key of a repair symbol is its packet index.
func Send(ctx context.Context, conn Conn, cfg SenderConfig) (SenderStats, error) {
	var st SenderStats
	if err := cfg.validate(); err != nil {
		return st, err
	}
	if cfg.Fill == nil {
		cfg.Fill = PatternFill
	}
	if cfg.Dropper == nil {
		cfg.Dropper = dropper.Never{}
	}
	log := cfg.Logger.With().Str("component", "sender").Logger()

	oti := fecwire.OTI{
		Codepoint:    uint32(cfg.Codepoint),
		WindowSize:   uint32(cfg.WindowSize),
		TotalSource:  uint32(cfg.TotalSource),
		TotalEncoded: uint32(cfg.TotalEncoded),
	}
	if err := conn.SendControl(ctx, oti.MarshalBinary(nil)); err != nil {
		return st, fmt.Errorf("send oti: %w", err)
	}
	log.Info().
		Stringer("codepoint", cfg.Codepoint).
		Uint32("ew_size", oti.WindowSize).
		Uint32("tot_src", oti.TotalSource).
		Uint32("tot_enc", oti.TotalEncoded).
		Msg("oti sent")

	// Source buffers come back through the eviction callback.
	var free [][]byte
	enc, err := fec.NewEncoder(fec.EncoderConfig{
		Codepoint:             cfg.Codepoint,
		SymbolSize:            cfg.SymbolSize,
		WindowSize:            cfg.WindowSize,
		DensityThreshold:      cfg.DensityThreshold,
		OnSourceSymbolRemoved: func(_ uint32, buf []byte) { free = append(free, buf) },
		Logger:                cfg.Logger,
		Metrics:               cfg.Metrics,
	})
	if err != nil {
		return st, err
	}
	defer enc.ResetCodingWindow()

	start := time.Now()
	interval := oti.RepairInterval()
	wire := make([]byte, 0, fecwire.FPILen+cfg.SymbolSize)
	var idx uint32
	emit := func(p fecwire.Packet) error {
		idx++
		if cfg.Dropper.Drop() {
			st.Dropped++
			return nil
		}
		err := conn.SendDatagram(p.AppendBinary(wire[:0]))
		switch {
		case err == nil:
			if p.IsSource {
				st.SourceSent++
			} else {
				st.RepairSent++
			}
		case errors.Is(err, ErrDatagramTooLarge):
			st.TooLarge++
			log.Warn().Err(err).Msg("datagram too large")
		case errors.Is(err, ErrClosed):
			return err
		default:
			st.SendErrors++
			log.Debug().Err(err).Msg("send failed")
		}
		if cfg.Pace > 0 {
			time.Sleep(cfg.Pace)
		}
		return nil
	}

	for esi := uint32(0); esi < uint32(cfg.TotalSource); esi++ {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		var buf []byte
		if n := len(free); n > 0 {
			buf, free = free[n-1], free[:n-1]
		} else {
			buf = make([]byte, cfg.SymbolSize)
		}
		cfg.Fill(esi, buf)
		if err := enc.AddSourceSymbol(buf, esi); err != nil {
			return st, err
		}
		if err := emit(fecwire.SourcePacket(esi, buf)); err != nil {
			return st, err
		}
		if interval == 0 || !((esi > 0 && esi%uint32(interval) == 0) || esi == uint32(cfg.TotalSource)-1) {
			continue
		}
		key := uint16(idx)
		if err := enc.GenerateCodingCoefs(key); err != nil {
			return st, err
		}
		repair, err := enc.BuildRepairSymbol()
		if err != nil {
			return st, err
		}
		first, last, nss := enc.WindowInfo()
		if uint32(nss) != last-first+1 {
			return st, fmt.Errorf("encoding window [%d,%d] holds %d symbols", first, last, nss)
		}
		if err := emit(fecwire.RepairPacket(key, first, uint16(nss), repair)); err != nil {
			return st, err
		}
	}
	st.Duration = time.Since(start)

	if cfg.Linger > 0 {
		select {
		case <-time.After(cfg.Linger):
		case <-ctx.Done():
		}
	}
	log.Info().
		Int("source", st.SourceSent).
		Int("repair", st.RepairSent).
		Int("dropped", st.Dropped).
		Int("errors", st.SendErrors).
		Dur("duration", st.Duration).
		Msg("sending complete")
	return st, nil
}
