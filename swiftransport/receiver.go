package swiftransport

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/observe-l/swif/fec"
	"github.com/observe-l/swif/internal/fecwire"
)

// Limits on announced sessions.
const (
	MaxTotalSymbols = 100000
	MaxWindowSize   = 0xffff
)

// ErrIncomplete is returned when a session ends before every source symbol
// was received or decoded.
var ErrIncomplete = errors.New("swiftransport: session incomplete")

// ReceiverConfig describes one receiving session. Session parameters come
// from the sender's OTI.
type ReceiverConfig struct {
	SymbolSize int
	// DensityThreshold must match the sender's; it is not part of the OTI.
	DensityThreshold uint8
	// MaxLinearSystemSize defaults to twice the announced window.
	MaxLinearSystemSize int
	// RingSize is the ingress ring capacity (default 4096).
	RingSize int

	// OnSymbol receives every source symbol exactly once, either as received
	// or as decoded. buf belongs to the callee.
	OnSymbol func(esi uint32, buf []byte, decoded bool)

	Logger  zerolog.Logger
	Metrics *fec.Metrics
}

// ReceiverStats summarizes a receiving session.
type ReceiverStats struct {
	OTI            fecwire.OTI
	Packets        int64
	SourceReceived int64
	RepairReceived int64
	Decoded        int64
	Malformed      int64
	RingDrops      int64
	Complete       bool
	Duration       time.Duration
	Decoder        fec.DecoderStats
}

// Available is the number of distinct source symbols delivered.
func (s *ReceiverStats) Available() int64 { return s.SourceReceived + s.Decoded }

func checkOTI(oti fecwire.OTI) error {
	switch {
	case oti.TotalSource == 0 || oti.TotalSource > oti.TotalEncoded:
		return fmt.Errorf("%w: tot_src %d, tot_enc %d", ErrBadOTI, oti.TotalSource, oti.TotalEncoded)
	case oti.TotalEncoded > MaxTotalSymbols:
		return fmt.Errorf("%w: tot_enc %d exceeds %d", ErrBadOTI, oti.TotalEncoded, MaxTotalSymbols)
	case oti.WindowSize == 0 || oti.WindowSize > oti.TotalSource || oti.WindowSize > MaxWindowSize:
		return fmt.Errorf("%w: ew_size %d with tot_src %d", ErrBadOTI, oti.WindowSize, oti.TotalSource)
	}
	return nil
}

// receiveOTI skips datagrams that are not an OTI; over UDP data packets may
// overtake it. A packet with a 4-byte symbol has the length of an OTI, and its
// leading is_source and repair_key fields read as an unknown codepoint.
func receiveOTI(ctx context.Context, conn Conn, log zerolog.Logger) (fecwire.OTI, error) {
	for {
		b, err := conn.ReceiveControl(ctx)
		if err != nil {
			return fecwire.OTI{}, fmt.Errorf("receive oti: %w", err)
		}
		var oti fecwire.OTI
		if err := oti.UnmarshalBinary(b); err != nil {
			log.Debug().Int("len", len(b)).Msg("skipping datagram before oti")
			continue
		}
		if !fec.Codepoint(oti.Codepoint).Supported() {
			log.Debug().Uint32("codepoint", oti.Codepoint).Msg("skipping oti with unknown codepoint")
			continue
		}
		return oti, nil
	}
}

// Receive reads the OTI from conn, then decodes until every source symbol is
// available, the peer closes or ctx ends.
func Receive(ctx context.Context, conn Conn, cfg ReceiverConfig) (ReceiverStats, error) {
	var st ReceiverStats
	if cfg.SymbolSize <= 0 {
		return st, fmt.Errorf("%w: symbol size %d", fec.ErrInvalidParameter, cfg.SymbolSize)
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = 4096
	}
	log := cfg.Logger.With().Str("component", "receiver").Logger()

	oti, err := receiveOTI(ctx, conn, log)
	if err != nil {
		return st, err
	}
	st.OTI = oti
	if err := checkOTI(oti); err != nil {
		return st, err
	}
	log.Info().
		Uint32("codepoint", oti.Codepoint).
		Uint32("ew_size", oti.WindowSize).
		Uint32("tot_src", oti.TotalSource).
		Uint32("tot_enc", oti.TotalEncoded).
		Msg("oti received")

	totSrc := oti.TotalSource
	ew := oti.WindowSize
	have := make([]bool, totSrc)
	var count uint32
	deliver := func(esi uint32, buf []byte, decoded bool) {
		if esi >= totSrc || have[esi] {
			return
		}
		have[esi] = true
		count++
		if decoded {
			st.Decoded++
		} else {
			st.SourceReceived++
		}
		if cfg.OnSymbol != nil {
			cfg.OnSymbol(esi, buf, decoded)
		}
	}

	maxSys := cfg.MaxLinearSystemSize
	if maxSys <= 0 {
		maxSys = 2 * int(ew)
	}
	dec, err := fec.NewDecoder(fec.DecoderConfig{
		Codepoint:           fec.Codepoint(oti.Codepoint),
		SymbolSize:          cfg.SymbolSize,
		MaxWindowSize:       int(ew),
		MaxLinearSystemSize: maxSys,
		DensityThreshold:    cfg.DensityThreshold,
		OnDecoded:           func(esi uint32, buf []byte) { deliver(esi, buf, true) },
		Logger:              cfg.Logger,
		Metrics:             cfg.Metrics,
	})
	if err != nil {
		return st, fmt.Errorf("%w: %w", ErrBadOTI, err)
	}

	start := time.Now()
	ring := newIngressRing(cfg.RingSize)
	var ringDrops atomic.Int64
	peerGone := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	readCtx, stopRead := context.WithCancel(gctx)
	defer stopRead()

	g.Go(func() error {
		defer close(peerGone)
		for {
			b, err := conn.ReceiveDatagram(readCtx)
			if err != nil {
				if readCtx.Err() != nil || errors.Is(err, ErrClosed) {
					return nil
				}
				return fmt.Errorf("receive datagram: %w", err)
			}
			if !ring.tryPush(b) {
				ringDrops.Add(1)
			}
		}
	})

	var maxESI int64 = -1
	handle := func(b []byte) {
		st.Packets++
		p, err := fecwire.ParsePacket(b, cfg.SymbolSize)
		if err != nil {
			st.Malformed++
			log.Debug().Err(err).Msg("malformed packet")
			return
		}
		last := int64(p.ESI)
		if !p.IsSource {
			if p.NSS == 0 || uint32(p.NSS) > ew {
				st.Malformed++
				log.Debug().Uint16("nss", p.NSS).Msg("repair window out of range")
				return
			}
			last += int64(p.NSS) - 1
		}
		if last >= int64(totSrc) {
			st.Malformed++
			log.Debug().Uint32("esi", p.ESI).Uint16("nss", p.NSS).Msg("packet outside session")
			return
		}
		if last > maxESI {
			maxESI = last
			// Later repair windows start at maxESI-ew+1 or above. Releasing
			// older rows before the insert keeps the system span within ew.
			if floor := maxESI - int64(ew) + 1; floor > 0 {
				dec.Prune(uint32(floor))
			}
		}
		if p.IsSource {
			deliver(p.ESI, p.Payload, false)
			err = dec.DecodeWithSourceSymbol(p.Payload, p.ESI)
		} else {
			st.RepairReceived++
			err = dec.DecodeWithRepairSymbol(p.Payload, p.RepairKey, p.ESI, int(p.NSS))
		}
		if err != nil {
			// The decoder stays usable; the symbol only adds no information.
			log.Debug().Err(err).Uint32("esi", p.ESI).Bool("source", p.IsSource).Msg("symbol not added")
		}
	}

	g.Go(func() error {
		defer stopRead()
		batch := make([][]byte, 64)
		for {
			n := ring.popBatch(batch)
			for _, b := range batch[:n] {
				handle(b)
				if count == totSrc {
					st.Complete = true
					return nil
				}
			}
			if n > 0 {
				continue
			}
			select {
			case <-ring.ready():
			case <-peerGone:
				// Drain what the reader pushed before it stopped.
				for {
					n := ring.popBatch(batch)
					if n == 0 {
						return nil
					}
					for _, b := range batch[:n] {
						handle(b)
					}
					if count == totSrc {
						st.Complete = true
						return nil
					}
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	err = g.Wait()
	st.Duration = time.Since(start)
	st.RingDrops = ringDrops.Load()
	st.Decoder = dec.Stats()
	log.Info().
		Int64("packets", st.Packets).
		Int64("received", st.SourceReceived).
		Int64("decoded", st.Decoded).
		Int64("ring_drops", st.RingDrops).
		Bool("complete", st.Complete).
		Dur("duration", st.Duration).
		Msg("receiving finished")
	if err != nil {
		return st, err
	}
	if !st.Complete {
		if cerr := ctx.Err(); cerr != nil {
			return st, fmt.Errorf("%w: %d of %d symbols: %w", ErrIncomplete, count, totSrc, cerr)
		}
		return st, fmt.Errorf("%w: %d of %d symbols", ErrIncomplete, count, totSrc)
	}
	return st, nil
}
