package swiftransport

import "sync/atomic"

// ingressRing is a multiple producer, single consumer ring of datagrams
// between the socket readers and the decoding loop.
type ingressRing struct {
	buf  [][]byte
	mask uint64
	head atomic.Uint64 // consumer index
	tail atomic.Uint64 // producer claim index
	pub  []atomic.Bool // slot published by its producer

	wake chan struct{}
}

func newIngressRing(capacity int) *ingressRing {
	// round up to power of two
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &ingressRing{
		buf:  make([][]byte, n),
		mask: uint64(n - 1),
		pub:  make([]atomic.Bool, n),
		wake: make(chan struct{}, 1),
	}
}

// tryPush never blocks; it reports false when the ring is full.
func (r *ingressRing) tryPush(b []byte) bool {
	for {
		tail := r.tail.Load()
		head := r.head.Load()
		if tail-head >= uint64(len(r.buf)) {
			return false
		}
		if r.tail.CompareAndSwap(tail, tail+1) {
			r.buf[tail&r.mask] = b
			r.pub[tail&r.mask].Store(true)
			select {
			case r.wake <- struct{}{}:
			default:
			}
			return true
		}
	}
}

// popBatch moves up to len(dst) published datagrams into dst. Only the
// consumer calls it.
func (r *ingressRing) popBatch(dst [][]byte) int {
	head := r.head.Load()
	n := 0
	for n < len(dst) {
		i := (head + uint64(n)) & r.mask
		if !r.pub[i].Load() {
			break
		}
		dst[n] = r.buf[i]
		r.buf[i] = nil
		r.pub[i].Store(false)
		n++
	}
	r.head.Store(head + uint64(n))
	return n
}

// ready is signalled after pushes; consumers drain with popBatch until it
// returns 0 before waiting again.
func (r *ingressRing) ready() <-chan struct{} { return r.wake }
