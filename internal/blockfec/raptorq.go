package blockfec

import (
	"errors"
	"fmt"

	rqq "github.com/xssnick/raptorq"
)

// RaptorQ is the systematic RaptorQ code. Symbol ids below k return the
// source symbols, higher ids are repair symbols.
type RaptorQ struct{}

func (RaptorQ) Name() string { return "raptorq" }

func (RaptorQ) Encode(src [][]byte, n int) ([]Symbol, error) {
	l, err := checkBlock(src, n)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, len(src)*l)
	for _, s := range src {
		data = append(data, s...)
	}
	enc, err := rqq.NewRaptorQ(uint32(l)).CreateEncoder(data)
	if err != nil {
		return nil, fmt.Errorf("raptorq encoder: %w", err)
	}
	out := make([]Symbol, n)
	for i := range out {
		out[i] = Symbol{Index: i, Data: enc.GenSymbol(uint32(i))}
	}
	return out, nil
}

func (RaptorQ) Decode(recv []Symbol, k, n, symbolSize int) ([][]byte, error) {
	if k <= 0 || symbolSize <= 0 {
		return nil, errors.New("blockfec: bad k or symbol size")
	}
	dec, err := rqq.NewRaptorQ(uint32(symbolSize)).CreateDecoder(uint32(k * symbolSize))
	if err != nil {
		return nil, fmt.Errorf("raptorq decoder: %w", err)
	}
	for _, s := range recv {
		if s.Index < 0 || s.Index >= n {
			continue
		}
		// A rejected symbol only lowers the chance of decoding.
		_, _ = dec.AddSymbol(uint32(s.Index), s.Data)
	}
	ok, data, err := dec.Decode()
	if err != nil || !ok {
		return nil, ErrUnrecoverable
	}
	out := make([][]byte, k)
	for i := range out {
		out[i] = data[i*symbolSize : (i+1)*symbolSize]
	}
	return out, nil
}
