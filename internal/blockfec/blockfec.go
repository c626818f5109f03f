// Package blockfec wraps block erasure codes used as baselines for the
// sliding window codec: systematic RaptorQ and Reed-Solomon.
package blockfec

import "errors"

// ErrUnrecoverable is returned when too few symbols of a block arrived.
var ErrUnrecoverable = errors.New("blockfec: block not recoverable")

// Symbol is one encoded symbol of a block. Index < k are source symbols.
type Symbol struct {
	Index int
	Data  []byte
}

// Codec encodes k equal-length source symbols into n symbols and decodes any
// sufficient subset back to the source symbols.
type Codec interface {
	Name() string
	Encode(src [][]byte, n int) ([]Symbol, error)
	Decode(recv []Symbol, k, n, symbolSize int) ([][]byte, error)
}

func checkBlock(src [][]byte, n int) (int, error) {
	if len(src) == 0 || n < len(src) {
		return 0, errors.New("blockfec: need 0 < k <= n")
	}
	l := len(src[0])
	for _, s := range src {
		if len(s) != l || l == 0 {
			return 0, errors.New("blockfec: source symbols must share a nonzero length")
		}
	}
	return l, nil
}
