package fec

import (
	"fmt"

	"github.com/rs/zerolog"
)

// SymbolStatus is what a decoder knows about one source symbol.
type SymbolStatus uint8

const (
	StatusMissing SymbolStatus = iota
	StatusReceived
	StatusDecoded
	// StatusPruned marks ids released by Prune.
	StatusPruned
)

func (s SymbolStatus) String() string {
	switch s {
	case StatusMissing:
		return "missing"
	case StatusReceived:
		return "received"
	case StatusDecoded:
		return "decoded"
	case StatusPruned:
		return "pruned"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Decoder recovers lost source symbols from received source and repair
// symbols. Submitted buffers are copied; callers may reuse them on return.
type Decoder interface {
	Codepoint() Codepoint
	DecodeWithSourceSymbol(buf []byte, esi uint32) error
	// DecodeWithRepairSymbol submits a repair symbol built from nss source
	// symbols starting at firstESI with coefficients derived from repairKey.
	DecodeWithRepairSymbol(buf []byte, repairKey uint16, firstESI uint32, nss int) error
	Status(esi uint32) SymbolStatus
	// Prune releases every symbol below before. Later symbols that
	// reference released ids are ignored.
	Prune(before uint32) int
	Stats() DecoderStats
}

// DecoderConfig parameterizes a decoding session.
type DecoderConfig struct {
	Codepoint  Codepoint
	SymbolSize int
	// MaxWindowSize bounds the nss accepted from repair symbols; 0 accepts
	// any.
	MaxWindowSize int
	// MaxLinearSystemSize bounds the id span of the linear system; 0 means
	// unbounded.
	MaxLinearSystemSize int
	// DensityThreshold must match the encoder.
	DensityThreshold uint8
	Generator        *CoefficientGenerator

	// OnDecoded receives each source symbol recovered by decoding, never one
	// that was received. buf belongs to the callee.
	OnDecoded func(esi uint32, buf []byte)
	// OnRemoved is called for each id released by Prune.
	OnRemoved func(esi uint32)

	Logger  zerolog.Logger
	Metrics *Metrics
}

// DecoderStats counts decoder activity.
type DecoderStats struct {
	SourceSymbols uint64
	RepairSymbols uint64
	Redundant     uint64
	Decoded       uint64
	Stale         uint64
	Rejected      uint64
	Pivots        int
}

// RLCDecoder decodes the random linear code over GF(2^8) by online Gaussian
// elimination.
type RLCDecoder struct {
	cfg    DecoderConfig
	set    *EquationSet
	status map[uint32]SymbolStatus
	floor  uint32 // ids below floor were pruned
	stats  DecoderStats
	log    zerolog.Logger
}

var _ Decoder = (*RLCDecoder)(nil)

// NewRLCDecoder validates cfg and returns an empty decoder.
func NewRLCDecoder(cfg DecoderConfig) (*RLCDecoder, error) {
	if cfg.SymbolSize <= 0 {
		return nil, fmt.Errorf("%w: symbol size %d", ErrInvalidParameter, cfg.SymbolSize)
	}
	if cfg.MaxWindowSize < 0 || cfg.MaxLinearSystemSize < 0 {
		return nil, fmt.Errorf("%w: negative window or linear system size", ErrInvalidParameter)
	}
	if cfg.DensityThreshold > FullDensity {
		return nil, fmt.Errorf("%w: density threshold %d", ErrInvalidParameter, cfg.DensityThreshold)
	}
	if cfg.Generator == nil {
		cfg.Generator = defaultGenerator
	}
	d := &RLCDecoder{
		cfg:    cfg,
		status: make(map[uint32]SymbolStatus),
		log:    cfg.Logger.With().Str("component", "decoder").Logger(),
	}
	d.set = NewEquationSet(cfg.MaxLinearSystemSize, d.solved)
	return d, nil
}

func (d *RLCDecoder) Codepoint() Codepoint { return CodepointRLCGF256FullDensity }

func (d *RLCDecoder) solved(id uint32, row *FullSymbol) {
	if id < d.floor {
		return
	}
	if st := d.status[id]; st == StatusReceived || st == StatusDecoded {
		return
	}
	d.status[id] = StatusDecoded
	d.stats.Decoded++
	if m := d.cfg.Metrics; m != nil {
		m.Decoded.Inc()
	}
	d.log.Debug().Uint32("esi", id).Msg("source symbol decoded")
	if d.cfg.OnDecoded != nil {
		buf := make([]byte, d.cfg.SymbolSize)
		copy(buf, row.Data())
		d.cfg.OnDecoded(id, buf)
	}
}

func (d *RLCDecoder) reject(err error) error {
	d.log.Warn().Err(err).Msg("symbol rejected")
	d.stats.Rejected++
	if m := d.cfg.Metrics; m != nil {
		m.Rejected.Inc()
	}
	return err
}

func (d *RLCDecoder) redundant(esi uint32) {
	d.log.Debug().Uint32("esi", esi).Msg("redundant equation")
	d.stats.Redundant++
	if m := d.cfg.Metrics; m != nil {
		m.Redundant.Inc()
	}
}

func (d *RLCDecoder) DecodeWithSourceSymbol(buf []byte, esi uint32) error {
	if len(buf) != d.cfg.SymbolSize {
		return d.reject(fmt.Errorf("%w: source symbol of %d bytes, want %d", ErrInvalidParameter, len(buf), d.cfg.SymbolSize))
	}
	d.stats.SourceSymbols++
	if m := d.cfg.Metrics; m != nil {
		m.ReceivedSource.Inc()
	}
	if esi < d.floor {
		d.stats.Stale++
		return nil
	}
	switch d.status[esi] {
	case StatusReceived, StatusDecoded:
		d.redundant(esi)
		return nil
	}
	// Marked before insertion so the unit row's own notification is not
	// reported as a decode.
	d.status[esi] = StatusReceived
	pivot, err := d.set.Add(NewSourceSymbol(esi, buf))
	if err != nil {
		delete(d.status, esi)
		return d.reject(err)
	}
	if pivot == NoSymbolID {
		d.redundant(esi)
	}
	d.pivotsChanged()
	return nil
}

func (d *RLCDecoder) DecodeWithRepairSymbol(buf []byte, repairKey uint16, firstESI uint32, nss int) error {
	if len(buf) != d.cfg.SymbolSize {
		return d.reject(fmt.Errorf("%w: repair symbol of %d bytes, want %d", ErrInvalidParameter, len(buf), d.cfg.SymbolSize))
	}
	if nss <= 0 || (d.cfg.MaxWindowSize > 0 && nss > d.cfg.MaxWindowSize) {
		return d.reject(fmt.Errorf("%w: repair window of %d symbols", ErrInvalidParameter, nss))
	}
	d.stats.RepairSymbols++
	if m := d.cfg.Metrics; m != nil {
		m.ReceivedRepair.Inc()
	}
	if firstESI < d.floor {
		d.stats.Stale++
		return nil
	}
	coefs, err := d.cfg.Generator.Generate(repairKey, nss, d.cfg.DensityThreshold, FieldGF256)
	if err != nil {
		return d.reject(err)
	}
	row, err := NewFullSymbol(coefs, firstESI, buf)
	if err != nil {
		return d.reject(err)
	}
	pivot, err := d.set.Add(row)
	if err != nil {
		return d.reject(err)
	}
	if pivot == NoSymbolID {
		d.redundant(firstESI)
	}
	d.log.Debug().
		Uint16("repair_key", repairKey).
		Uint32("first_esi", firstESI).
		Int("nss", nss).
		Uint32("pivot", pivot).
		Msg("repair symbol added")
	d.pivotsChanged()
	return nil
}

func (d *RLCDecoder) pivotsChanged() {
	d.stats.Pivots = d.set.Len()
	d.cfg.Metrics.setPivots(d.stats.Pivots)
}

func (d *RLCDecoder) Status(esi uint32) SymbolStatus {
	if esi < d.floor {
		return StatusPruned
	}
	return d.status[esi]
}

// Prune releases the rows and status entries of ids below before and
// returns the number of rows released. Rows still unsolved there can no
// longer be completed, since later repair symbols never reference pruned ids.
func (d *RLCDecoder) Prune(before uint32) int {
	if before <= d.floor {
		return 0
	}
	n := 0
	d.set.Each(func(id uint32, _ *FullSymbol) {
		if id >= before {
			return
		}
		d.set.Remove(id)
		n++
		if d.cfg.OnRemoved != nil {
			d.cfg.OnRemoved(id)
		}
	})
	d.set.Compact()
	for esi := range d.status {
		if esi < before {
			delete(d.status, esi)
		}
	}
	d.floor = before
	d.pivotsChanged()
	return n
}

func (d *RLCDecoder) Stats() DecoderStats { return d.stats }
