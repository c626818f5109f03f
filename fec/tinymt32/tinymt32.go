// Package tinymt32 implements the TinyMT32 pseudo-random generator with the
// parameter set mandated by the RLC FEC schemes (RFC 8682). Both ends of a
// session must derive identical coding coefficients from a repair key, so
// the output sequence for a given seed is part of the wire contract.
package tinymt32

const (
	mat1 uint32 = 0x8f7011ee
	mat2 uint32 = 0xfc78ff1f
	tmat uint32 = 0x3793fdff

	sh0  = 1
	sh1  = 10
	sh8  = 8
	mask = 0x7fffffff

	minLoop = 8
	preLoop = 8
)

// Source is a TinyMT32 state. The zero value is not seeded; use New.
type Source struct {
	status [4]uint32
}

// New returns a generator seeded with seed.
func New(seed uint32) *Source {
	s := &Source{}
	s.Seed(seed)
	return s
}

// Seed resets the internal state from seed.
func (s *Source) Seed(seed uint32) {
	s.status[0] = seed
	s.status[1] = mat1
	s.status[2] = mat2
	s.status[3] = tmat
	for i := uint32(1); i < minLoop; i++ {
		prev := s.status[(i-1)&3]
		s.status[i&3] ^= i + 1812433253*(prev^(prev>>30))
	}
	for i := 0; i < preLoop; i++ {
		s.nextState()
	}
}

// Uint32 returns the next 32-bit output.
func (s *Source) Uint32() uint32 {
	s.nextState()
	return s.temper()
}

// Rand16 returns a value in [0,15].
func (s *Source) Rand16() uint8 { return uint8(s.Uint32() & 0xf) }

// Rand256 returns a value in [0,255].
func (s *Source) Rand256() uint8 { return uint8(s.Uint32() & 0xff) }

// Intn returns an unbiased value in [0,n) by rejection. n must be > 0.
func (s *Source) Intn(n uint32) uint32 {
	buckets := 0xffffffff / n
	limit := buckets * n
	for {
		r := s.Uint32()
		if r < limit {
			return r / buckets
		}
	}
}

func (s *Source) nextState() {
	y := s.status[3]
	x := (s.status[0] & mask) ^ s.status[1] ^ s.status[2]
	x ^= x << sh0
	y ^= (y >> sh0) ^ x
	s.status[0] = s.status[1]
	s.status[1] = s.status[2]
	s.status[2] = x ^ (y << sh1)
	s.status[3] = y
	if y&1 != 0 {
		s.status[1] ^= mat1
		s.status[2] ^= mat2
	}
}

func (s *Source) temper() uint32 {
	t0 := s.status[3]
	t1 := s.status[0] + (s.status[2] >> sh8)
	t0 ^= t1
	if t1&1 != 0 {
		t0 ^= tmat
	}
	return t0
}
