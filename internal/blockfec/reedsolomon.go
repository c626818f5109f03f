package blockfec

import (
	"fmt"
	"sync"

	"github.com/klauspost/reedsolomon"
)

// ReedSolomon is the systematic Reed-Solomon code over GF(2^8). Encoders are
// cached per (k, n-k) shape. It is safe for concurrent use.
type ReedSolomon struct {
	mu       sync.Mutex
	encoders map[[2]int]reedsolomon.Encoder
}

func NewReedSolomon() *ReedSolomon {
	return &ReedSolomon{encoders: make(map[[2]int]reedsolomon.Encoder)}
}

func (*ReedSolomon) Name() string { return "reed-solomon" }

func (r *ReedSolomon) encoder(k, parity int) (reedsolomon.Encoder, error) {
	key := [2]int{k, parity}
	r.mu.Lock()
	defer r.mu.Unlock()
	if enc, ok := r.encoders[key]; ok {
		return enc, nil
	}
	enc, err := reedsolomon.New(k, parity)
	if err != nil {
		return nil, fmt.Errorf("reed-solomon(%d,%d): %w", k, parity, err)
	}
	r.encoders[key] = enc
	return enc, nil
}

func (r *ReedSolomon) Encode(src [][]byte, n int) ([]Symbol, error) {
	l, err := checkBlock(src, n)
	if err != nil {
		return nil, err
	}
	k := len(src)
	if n == k {
		out := make([]Symbol, k)
		for i, s := range src {
			out[i] = Symbol{Index: i, Data: s}
		}
		return out, nil
	}
	enc, err := r.encoder(k, n-k)
	if err != nil {
		return nil, err
	}
	shards := make([][]byte, n)
	copy(shards, src)
	for i := k; i < n; i++ {
		shards[i] = make([]byte, l)
	}
	if err := enc.Encode(shards); err != nil {
		return nil, err
	}
	out := make([]Symbol, n)
	for i, s := range shards {
		out[i] = Symbol{Index: i, Data: s}
	}
	return out, nil
}

func (r *ReedSolomon) Decode(recv []Symbol, k, n, symbolSize int) ([][]byte, error) {
	shards := make([][]byte, n)
	have := 0
	for _, s := range recv {
		if s.Index < 0 || s.Index >= n || len(s.Data) != symbolSize || shards[s.Index] != nil {
			continue
		}
		shards[s.Index] = s.Data
		have++
	}
	if have < k {
		return nil, ErrUnrecoverable
	}
	if n > k {
		enc, err := r.encoder(k, n-k)
		if err != nil {
			return nil, err
		}
		if err := enc.ReconstructData(shards); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecoverable, err)
		}
	}
	return shards[:k], nil
}
