package fec

import (
	"fmt"

	"github.com/observe-l/swif/fec/gf256"
)

// DecodedFunc receives a source symbol id that became fully determined and
// the row holding it. The row is owned by the EquationSet; callers copy what
// they keep.
type DecodedFunc func(id uint32, row *FullSymbol)

// EquationSet is an online row-reduced linear system over FullSymbols.
//
// Slot i holds nil or the unique row whose first nonzero id is firstID+i,
// normalized so that this pivot coefficient is 1. Pivot columns are zero in
// every other row, so a row with a single nonzero coefficient is a solved
// source symbol.
type EquationSet struct {
	tab     []*FullSymbol
	firstID uint32
	count   int

	maxSize  int
	onDecode DecodedFunc
}

// NewEquationSet returns an empty system. maxSize bounds the id span the
// table may cover; 0 means unbounded. onDecode may be nil.
func NewEquationSet(maxSize int, onDecode DecodedFunc) *EquationSet {
	return &EquationSet{maxSize: maxSize, onDecode: onDecode}
}

// Len returns the number of pivot rows.
func (s *EquationSet) Len() int { return s.count }

// Size returns the capacity of the pivot table.
func (s *EquationSet) Size() int { return len(s.tab) }

// FirstID returns the id of slot 0, meaningful once Size() > 0.
func (s *EquationSet) FirstID() uint32 { return s.firstID }

// Pivot returns the row whose pivot is id, or nil.
func (s *EquationSet) Pivot(id uint32) *FullSymbol {
	if id < s.firstID || uint64(id-s.firstID) >= uint64(len(s.tab)) {
		return nil
	}
	return s.tab[id-s.firstID]
}

// Add inserts row into the system with forward reduction and
// back-substitution. The row is not retained; the set stores its own copy.
// It returns the pivot id of the new row, or NoSymbolID when the row was
// redundant. On error the system is unchanged.
func (s *EquationSet) Add(row *FullSymbol) (uint32, error) {
	if row.IsZero() {
		return NoSymbolID, nil
	}
	r := s.reduce(row)
	if r.IsZero() {
		return NoSymbolID, nil
	}
	k := r.firstNonzero
	if err := s.reserve(k); err != nil {
		return NoSymbolID, err
	}
	if p := r.Coef(k); p != 1 {
		r.Scale(gf256.Inv(p))
	}

	for i, other := range s.tab {
		if other == nil {
			continue
		}
		c := other.Coef(k)
		if c == 0 {
			continue
		}
		wasSolved := other.HasSingleID()
		updated := addScaled(other, c, r)
		s.tab[i] = updated
		if !wasSolved && updated.HasSingleID() {
			s.notify(updated.firstNonzero, updated)
		}
	}

	s.tab[k-s.firstID] = r
	s.count++
	if r.HasSingleID() {
		s.notify(k, r)
	}
	return k, nil
}

// reduce returns row minus its projection on the existing pivots. Reduction
// follows the current state of the row, since eliminating one id may expose
// nonzero coefficients at higher pivot ids.
func (s *EquationSet) reduce(row *FullSymbol) *FullSymbol {
	r := row.Clone()
	for id := r.firstNonzero; !r.IsZero() && id <= r.lastNonzero; id++ {
		if c := r.Coef(id); c != 0 {
			if p := s.Pivot(id); p != nil {
				r = addScaled(r, c, p)
			}
		}
		if id == r.lastNonzero {
			break
		}
	}
	return r
}

// reserve grows the table so that slot id exists. Growth doubles when the
// missing span is smaller than the current size and otherwise extends to
// exactly the required size.
func (s *EquationSet) reserve(id uint32) error {
	size := len(s.tab)
	if size == 0 {
		s.tab = make([]*FullSymbol, 1)
		s.firstID = id
		return nil
	}
	switch {
	case id < s.firstID:
		ext := int(s.firstID - id)
		grow := ext
		if ext < size {
			grow = size
		}
		grow = min(grow, int(s.firstID))
		keep := size
		if s.maxSize > 0 && keep+grow > s.maxSize {
			// Free slots past the last pivot are released before failing.
			keep = s.span()
			if err := s.checkLimit(keep + ext); err != nil {
				return err
			}
			grow = max(ext, min(grow, s.maxSize-keep))
			keep = min(size, s.maxSize-grow)
		}
		tab := make([]*FullSymbol, keep+grow)
		copy(tab[grow:], s.tab[:keep])
		s.tab = tab
		s.firstID -= uint32(grow)
	case uint64(id-s.firstID) >= uint64(size):
		need := int(id-s.firstID) + 1
		newSize := need
		if need-size < size {
			newSize = 2 * size
		}
		if s.maxSize > 0 && newSize > s.maxSize {
			newSize = max(need, s.maxSize)
		}
		if err := s.checkLimit(newSize); err != nil {
			return err
		}
		tab := make([]*FullSymbol, newSize)
		copy(tab, s.tab)
		s.tab = tab
	}
	return nil
}

// span returns the number of slots up to and including the last pivot.
func (s *EquationSet) span() int {
	for i := len(s.tab) - 1; i >= 0; i-- {
		if s.tab[i] != nil {
			return i + 1
		}
	}
	return 0
}

func (s *EquationSet) checkLimit(size int) error {
	if s.maxSize > 0 && size > s.maxSize {
		return fmt.Errorf("%w: linear system span %d exceeds %d", ErrAllocation, size, s.maxSize)
	}
	return nil
}

func (s *EquationSet) notify(id uint32, row *FullSymbol) {
	if s.onDecode != nil {
		s.onDecode(id, row)
	}
}

// Remove drops the row whose pivot is id and returns it, or nil.
func (s *EquationSet) Remove(id uint32) *FullSymbol {
	row := s.Pivot(id)
	if row == nil {
		return nil
	}
	s.tab[id-s.firstID] = nil
	s.count--
	return row
}

// Compact releases leading empty slots so that slot 0 is the lowest pivot.
func (s *EquationSet) Compact() {
	i := 0
	for i < len(s.tab) && s.tab[i] == nil {
		i++
	}
	if i == 0 {
		return
	}
	if i == len(s.tab) {
		s.tab = nil
		s.firstID = 0
		return
	}
	s.tab = append([]*FullSymbol(nil), s.tab[i:]...)
	s.firstID += uint32(i)
}

// Each calls fn for every pivot row in increasing pivot order.
func (s *EquationSet) Each(fn func(id uint32, row *FullSymbol)) {
	for i, row := range s.tab {
		if row != nil {
			fn(s.firstID+uint32(i), row)
		}
	}
}
