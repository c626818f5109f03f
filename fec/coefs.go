package fec

import (
	"fmt"

	"github.com/observe-l/swif/fec/tinymt32"
)

// Field widths accepted by the coefficient generator, in bits per coefficient.
const (
	FieldGF2   uint8 = 1
	FieldGF256 uint8 = 8
)

// FullDensity is the density threshold for which every coefficient is nonzero.
const FullDensity uint8 = 15

// Source is the pseudo-random stream a CoefficientGenerator draws from.
type Source interface {
	Rand16() uint8
	Rand256() uint8
}

// CoefficientGenerator derives coding coefficient vectors from a repair key.
// Encoder and decoder must use generators producing the same stream for a
// given seed.
type CoefficientGenerator struct {
	newSource func(seed uint32) Source
}

// NewCoefficientGenerator returns a generator backed by newSource. A nil
// newSource selects TinyMT32.
func NewCoefficientGenerator(newSource func(seed uint32) Source) *CoefficientGenerator {
	if newSource == nil {
		newSource = func(seed uint32) Source { return tinymt32.New(seed) }
	}
	return &CoefficientGenerator{newSource: newSource}
}

var defaultGenerator = NewCoefficientGenerator(nil)

// GenerateCodingCoefs is Generate on the default TinyMT32 generator.
func GenerateCodingCoefs(repairKey uint16, n int, dt, m uint8) ([]byte, error) {
	return defaultGenerator.Generate(repairKey, n, dt, m)
}

// Generate returns n coefficients for repairKey with density threshold dt
// (0..15) over GF(2^m), m in {1,8}. With dt == 15 no coefficient is zero;
// otherwise a position is nonzero when a 4-bit draw is <= dt.
func (g *CoefficientGenerator) Generate(repairKey uint16, n int, dt, m uint8) ([]byte, error) {
	out := make([]byte, n)
	if err := g.Fill(out, repairKey, dt, m); err != nil {
		return nil, err
	}
	return out, nil
}

// Fill is Generate writing into tab, whose length is the number of
// coefficients.
func (g *CoefficientGenerator) Fill(tab []byte, repairKey uint16, dt, m uint8) error {
	if dt > FullDensity {
		return fmt.Errorf("%w: density threshold %d > %d", ErrInvalidParameter, dt, FullDensity)
	}
	switch m {
	case FieldGF2:
		if dt == FullDensity {
			for i := range tab {
				tab[i] = 1
			}
			return nil
		}
		s := g.newSource(uint32(repairKey))
		for i := range tab {
			if s.Rand16() <= dt {
				tab[i] = 1
			} else {
				tab[i] = 0
			}
		}
	case FieldGF256:
		s := g.newSource(uint32(repairKey))
		for i := range tab {
			if dt == FullDensity || s.Rand16() <= dt {
				tab[i] = nonZero(s)
			} else {
				tab[i] = 0
			}
		}
	default:
		return fmt.Errorf("%w: field width m=%d", ErrInvalidParameter, m)
	}
	return nil
}

func nonZero(s Source) byte {
	for {
		if c := s.Rand256(); c != 0 {
			return c
		}
	}
}
