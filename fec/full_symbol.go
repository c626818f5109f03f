package fec

import (
	"fmt"
	"math"
	"strings"

	"github.com/observe-l/swif/fec/gf256"
)

// NoSymbolID marks an absent symbol id: the bounds of a zero vector, or a
// discarded equation.
const NoSymbolID uint32 = math.MaxUint32

// FullSymbol is one linear equation: a coefficient vector over a contiguous
// range of source symbol ids, and the payload those coefficients combine to.
//
// Coefficients outside [FirstID, LastID] are implicitly zero. The nonzero
// bounds are kept in sync with the coefficients by every mutating method.
type FullSymbol struct {
	coef    []byte // coef[0] belongs to firstID
	firstID uint32
	lastID  uint32

	firstNonzero uint32
	lastNonzero  uint32

	data []byte
}

// NewSourceSymbol returns the unit equation for source symbol id. The payload
// is copied.
func NewSourceSymbol(id uint32, payload []byte) *FullSymbol {
	s := &FullSymbol{
		coef:    []byte{1},
		firstID: id,
		lastID:  id,
		data:    append([]byte(nil), payload...),
	}
	s.AdjustBounds()
	return s
}

// NewFullSymbol returns the equation with coefficient coefs[i] for id
// firstID+i and the given payload. Both slices are copied.
func NewFullSymbol(coefs []byte, firstID uint32, payload []byte) (*FullSymbol, error) {
	if len(coefs) > 0 && uint64(firstID)+uint64(len(coefs))-1 >= uint64(NoSymbolID) {
		return nil, fmt.Errorf("%w: id range %d+%d overflows", ErrInvalidParameter, firstID, len(coefs))
	}
	s := newFullSymbol(firstID, len(coefs), len(payload))
	copy(s.coef, coefs)
	copy(s.data, payload)
	s.AdjustBounds()
	return s, nil
}

// NewZeroSymbol returns the zero equation with a zeroed payload of size bytes.
func NewZeroSymbol(size int) *FullSymbol {
	return newFullSymbol(NoSymbolID, 0, size)
}

func newFullSymbol(firstID uint32, n, size int) *FullSymbol {
	s := &FullSymbol{
		firstID:      NoSymbolID,
		lastID:       NoSymbolID,
		firstNonzero: NoSymbolID,
		lastNonzero:  NoSymbolID,
		coef:         make([]byte, n),
		data:         make([]byte, size),
	}
	if n > 0 {
		s.firstID = firstID
		s.lastID = firstID + uint32(n) - 1
	}
	return s
}

// Clone returns an independent copy.
func (s *FullSymbol) Clone() *FullSymbol {
	c := *s
	c.coef = append([]byte(nil), s.coef...)
	c.data = append([]byte(nil), s.data...)
	return &c
}

// FirstID is the first id of the allocated coefficient range.
func (s *FullSymbol) FirstID() uint32 { return s.firstID }

// LastID is the last id of the allocated coefficient range.
func (s *FullSymbol) LastID() uint32 { return s.lastID }

// FirstNonzeroID is the smallest id with a nonzero coefficient, or NoSymbolID.
func (s *FullSymbol) FirstNonzeroID() uint32 { return s.firstNonzero }

// LastNonzeroID is the largest id with a nonzero coefficient, or NoSymbolID.
func (s *FullSymbol) LastNonzeroID() uint32 { return s.lastNonzero }

// Data returns the payload. It is owned by the symbol.
func (s *FullSymbol) Data() []byte { return s.data }

// Size returns the payload length.
func (s *FullSymbol) Size() int { return len(s.data) }

// Coef returns the coefficient for id, 0 outside the allocated range.
func (s *FullSymbol) Coef(id uint32) byte {
	if len(s.coef) == 0 || id < s.firstID || id > s.lastID {
		return 0
	}
	return s.coef[id-s.firstID]
}

// CountCoefs returns the width of the nonzero range, 0 for the zero vector.
func (s *FullSymbol) CountCoefs() int {
	if s.firstNonzero == NoSymbolID {
		return 0
	}
	return int(s.lastNonzero-s.firstNonzero) + 1
}

// IsZero reports whether every coefficient is zero.
func (s *FullSymbol) IsZero() bool { return s.firstNonzero == NoSymbolID }

// HasSingleID reports whether exactly one coefficient is nonzero, i.e. the
// equation determines one source symbol.
func (s *FullSymbol) HasSingleID() bool {
	return s.firstNonzero != NoSymbolID && s.firstNonzero == s.lastNonzero
}

// AdjustBounds rescans the coefficients and recomputes the nonzero bounds.
// It returns false when the symbol is the zero vector.
func (s *FullSymbol) AdjustBounds() bool {
	s.firstNonzero, s.lastNonzero = NoSymbolID, NoSymbolID
	lo := -1
	for i, c := range s.coef {
		if c != 0 {
			lo = i
			break
		}
	}
	if lo < 0 {
		return false
	}
	hi := len(s.coef) - 1
	for s.coef[hi] == 0 {
		hi--
	}
	s.firstNonzero = s.firstID + uint32(lo)
	s.lastNonzero = s.firstID + uint32(hi)
	return true
}

// Scale multiplies every coefficient and payload byte by coef in place.
// Scaling by zero yields the zero vector.
func (s *FullSymbol) Scale(coef byte) {
	gf256.Scale(s.coef, coef)
	gf256.Scale(s.data, coef)
	s.AdjustBounds()
}

// Add returns a new symbol equal to a+b. The coefficient range spans both
// operands' nonzero ranges; the payload is as long as the longer operand,
// whose tail is copied unchanged. If either operand is zero the result is a
// clone of the other.
func Add(a, b *FullSymbol) *FullSymbol {
	return addScaled(a, 1, b)
}

// addScaled returns a + coef*b without modifying either operand.
func addScaled(a *FullSymbol, coef byte, b *FullSymbol) *FullSymbol {
	if b.IsZero() || coef == 0 {
		return a.Clone()
	}
	if a.IsZero() {
		r := b.Clone()
		if coef != 1 {
			r.Scale(coef)
		}
		return r
	}
	first := min(a.firstNonzero, b.firstNonzero)
	last := max(a.lastNonzero, b.lastNonzero)
	r := newFullSymbol(first, int(last-first)+1, max(len(a.data), len(b.data)))
	copy(r.coef[a.firstNonzero-first:], a.coef[a.firstNonzero-a.firstID:a.lastNonzero-a.firstID+1])
	gf256.AddScaled(r.coef[b.firstNonzero-first:], coef, b.coef[b.firstNonzero-b.firstID:b.lastNonzero-b.firstID+1])
	copy(r.data, a.data)
	gf256.AddScaled(r.data, coef, b.data)
	r.AdjustBounds()
	return r
}

// String renders the symbol for debugging.
func (s *FullSymbol) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "{size:%d nb_coef:%d", len(s.data), s.CountCoefs())
	if s.IsZero() {
		b.WriteString(" nonzero:none")
	} else {
		fmt.Fprintf(&b, " nonzero:[%d,%d]", s.firstNonzero, s.lastNonzero)
	}
	b.WriteString(" coef:[")
	if len(s.coef) > 0 {
		for id := s.firstID; ; id++ {
			if id > s.firstID {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d", s.Coef(id))
			if id == s.lastID {
				break
			}
		}
	}
	fmt.Fprintf(&b, "] data:%x}", s.data)
	return b.String()
}
