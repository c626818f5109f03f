package fec

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Encoder builds repair symbols over a sliding window of source symbols.
type Encoder interface {
	Codepoint() Codepoint
	// AddSourceSymbol appends buf as source symbol esi. buf is retained until
	// it leaves the window.
	AddSourceSymbol(buf []byte, esi uint32) error
	// GenerateCodingCoefs derives the coefficients of the next repair symbol
	// from repairKey and the current window size.
	GenerateCodingCoefs(repairKey uint16) error
	// SetCodingCoefs installs an explicit coefficient vector, one entry per
	// symbol in the window.
	SetCodingCoefs(coefs []byte) error
	CodingCoefs() []byte
	BuildRepairSymbol() ([]byte, error)
	// WindowInfo returns the first ESI, last ESI and number of symbols in the
	// window.
	WindowInfo() (first, last uint32, nss int)
	ResetCodingWindow()
	Stats() EncoderStats
}

// EncoderConfig parameterizes an encoding session.
type EncoderConfig struct {
	Codepoint  Codepoint
	SymbolSize int
	WindowSize int
	// DensityThreshold is the coefficient density, 0..15. FullDensity
	// makes every coefficient nonzero.
	DensityThreshold uint8
	// Generator defaults to TinyMT32.
	Generator *CoefficientGenerator
	// OnSourceSymbolRemoved is called with each buffer leaving the window.
	OnSourceSymbolRemoved EvictFunc

	Logger  zerolog.Logger
	Metrics *Metrics
}

// EncoderStats counts encoder activity.
type EncoderStats struct {
	SourceSymbols uint64
	RepairSymbols uint64
	Evicted       uint64
}

// RLCEncoder is the random linear code encoder over GF(2^8).
type RLCEncoder struct {
	cfg   EncoderConfig
	win   *EncodingWindow
	coefs []byte
	stats EncoderStats
	log   zerolog.Logger
}

var _ Encoder = (*RLCEncoder)(nil)

// NewRLCEncoder validates cfg and returns an encoder with an empty window.
func NewRLCEncoder(cfg EncoderConfig) (*RLCEncoder, error) {
	if cfg.DensityThreshold > FullDensity {
		return nil, fmt.Errorf("%w: density threshold %d", ErrInvalidParameter, cfg.DensityThreshold)
	}
	if cfg.Generator == nil {
		cfg.Generator = defaultGenerator
	}
	e := &RLCEncoder{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "encoder").Logger(),
	}
	win, err := NewEncodingWindow(cfg.WindowSize, cfg.SymbolSize, e.evicted)
	if err != nil {
		return nil, err
	}
	e.win = win
	return e, nil
}

func (e *RLCEncoder) evicted(esi uint32, buf []byte) {
	e.stats.Evicted++
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.Evictions.Inc()
	}
	e.log.Debug().Uint32("esi", esi).Msg("source symbol left window")
	if e.cfg.OnSourceSymbolRemoved != nil {
		e.cfg.OnSourceSymbolRemoved(esi, buf)
	}
}

func (e *RLCEncoder) Codepoint() Codepoint { return CodepointRLCGF256FullDensity }

func (e *RLCEncoder) AddSourceSymbol(buf []byte, esi uint32) error {
	if len(buf) != e.cfg.SymbolSize {
		return fmt.Errorf("%w: source symbol of %d bytes, want %d", ErrInvalidParameter, len(buf), e.cfg.SymbolSize)
	}
	if err := e.win.Add(buf, esi); err != nil {
		return err
	}
	e.coefs = nil
	e.stats.SourceSymbols++
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.SourceSymbols.Inc()
	}
	return nil
}

func (e *RLCEncoder) GenerateCodingCoefs(repairKey uint16) error {
	n := e.win.Len()
	if n == 0 {
		return fmt.Errorf("%w: empty encoding window", ErrInvalidParameter)
	}
	if cap(e.coefs) < n {
		e.coefs = make([]byte, n)
	}
	e.coefs = e.coefs[:n]
	return e.cfg.Generator.Fill(e.coefs, repairKey, e.cfg.DensityThreshold, FieldGF256)
}

func (e *RLCEncoder) SetCodingCoefs(coefs []byte) error {
	if len(coefs) != e.win.Len() {
		return fmt.Errorf("%w: %d coefficients for %d symbols", ErrInvalidParameter, len(coefs), e.win.Len())
	}
	e.coefs = append(e.coefs[:0], coefs...)
	return nil
}

func (e *RLCEncoder) CodingCoefs() []byte { return e.coefs }

// BuildRepairSymbol combines the window with the installed coefficients.
func (e *RLCEncoder) BuildRepairSymbol() ([]byte, error) {
	if e.coefs == nil {
		return nil, fmt.Errorf("%w: no coding coefficients for current window", ErrInvalidParameter)
	}
	out, err := e.win.BuildRepairSymbol(e.coefs)
	if err != nil {
		return nil, err
	}
	e.stats.RepairSymbols++
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.RepairSymbols.Inc()
	}
	return out, nil
}

func (e *RLCEncoder) WindowInfo() (first, last uint32, nss int) { return e.win.Info() }

// ResetCodingWindow empties the window, handing every buffer back through
// OnSourceSymbolRemoved.
func (e *RLCEncoder) ResetCodingWindow() {
	e.win.Reset()
	e.coefs = nil
}

func (e *RLCEncoder) Stats() EncoderStats { return e.stats }
