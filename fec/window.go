package fec

import (
	"fmt"

	"github.com/observe-l/swif/fec/gf256"
)

// EvictFunc is called when a source symbol leaves an encoding window. buf is
// the slice handed to Add, returned so the caller may reuse it.
type EvictFunc func(esi uint32, buf []byte)

// EncodingWindow is the fixed-capacity FIFO of source symbols an encoder
// combines into repair symbols. Buffers are stored as given, not copied: the
// caller must leave them untouched until they are evicted.
//
// The held ESIs always form the contiguous range [lastESI-count+1, lastESI].
type EncodingWindow struct {
	slots   [][]byte
	left    int // slot of the oldest symbol
	count   int
	lastESI uint32

	symbolSize int
	onEvict    EvictFunc
}

// NewEncodingWindow returns an empty window holding up to capacity symbols of
// symbolSize bytes.
func NewEncodingWindow(capacity, symbolSize int, onEvict EvictFunc) (*EncodingWindow, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: window capacity %d", ErrInvalidParameter, capacity)
	}
	if symbolSize <= 0 {
		return nil, fmt.Errorf("%w: symbol size %d", ErrInvalidParameter, symbolSize)
	}
	return &EncodingWindow{
		slots:      make([][]byte, capacity),
		symbolSize: symbolSize,
		onEvict:    onEvict,
	}, nil
}

// Capacity returns the maximum number of symbols held.
func (w *EncodingWindow) Capacity() int { return len(w.slots) }

// Len returns the number of symbols currently held.
func (w *EncodingWindow) Len() int { return w.count }

// Full reports whether the next Add evicts a symbol.
func (w *EncodingWindow) Full() bool { return w.count == len(w.slots) }

// Add appends a source symbol. esi must be lastESI+1 unless the window is
// empty. When the window is full the oldest symbol is evicted first.
func (w *EncodingWindow) Add(buf []byte, esi uint32) error {
	if w.count > 0 && esi != w.lastESI+1 {
		return fmt.Errorf("%w: got esi %d, expected %d", ErrInvalidSequence, esi, w.lastESI+1)
	}
	if w.Full() {
		w.evictOldest()
	}
	w.slots[(w.left+w.count)%len(w.slots)] = buf
	w.count++
	w.lastESI = esi
	return nil
}

func (w *EncodingWindow) evictOldest() {
	old := w.slots[w.left]
	oldESI := w.lastESI - uint32(w.count) + 1
	w.slots[w.left] = nil
	w.left = (w.left + 1) % len(w.slots)
	w.count--
	if w.onEvict != nil {
		w.onEvict(oldESI, old)
	}
}

// Reset evicts every held symbol, oldest first.
func (w *EncodingWindow) Reset() {
	for w.count > 0 {
		w.evictOldest()
	}
	w.left = 0
}

// Info returns the first and last ESI held and the number of symbols. All
// three are zero for an empty window.
func (w *EncodingWindow) Info() (first, last uint32, count int) {
	if w.count == 0 {
		return 0, 0, 0
	}
	return w.lastESI - uint32(w.count) + 1, w.lastESI, w.count
}

// Symbol returns the buffer at position i, 0 being the oldest held symbol.
func (w *EncodingWindow) Symbol(i int) []byte {
	return w.slots[(w.left+i)%len(w.slots)]
}

// BuildRepairSymbol returns a new buffer holding the sum of coefs[i] times
// the i-th oldest symbol. len(coefs) must equal Len().
func (w *EncodingWindow) BuildRepairSymbol(coefs []byte) ([]byte, error) {
	if len(coefs) != w.count {
		return nil, fmt.Errorf("%w: %d coefficients for %d symbols", ErrInvalidParameter, len(coefs), w.count)
	}
	out := make([]byte, w.symbolSize)
	for i, c := range coefs {
		gf256.AddScaled(out, c, w.Symbol(i))
	}
	return out, nil
}
