package fec

import (
	"fmt"
	"strconv"
)

// Codepoint identifies a FEC scheme on the wire. Only the sliding window
// RLC over GF(2^8) at full density is implemented.
type Codepoint uint32

const (
	CodepointNull                Codepoint = 0
	CodepointRLCGF256FullDensity Codepoint = 1
)

func (c Codepoint) String() string {
	switch c {
	case CodepointNull:
		return "null"
	case CodepointRLCGF256FullDensity:
		return "rlc-gf256-full-density"
	default:
		return "codepoint(" + strconv.FormatUint(uint64(c), 10) + ")"
	}
}

// Supported reports whether NewEncoder and NewDecoder accept c.
func (c Codepoint) Supported() bool { return c == CodepointRLCGF256FullDensity }

func checkCodepoint(c Codepoint) error {
	if !c.Supported() {
		return fmt.Errorf("%w: %v", ErrUnsupportedCodepoint, c)
	}
	return nil
}

// NewEncoder returns the encoder for cfg.Codepoint.
func NewEncoder(cfg EncoderConfig) (Encoder, error) {
	if err := checkCodepoint(cfg.Codepoint); err != nil {
		return nil, err
	}
	return NewRLCEncoder(cfg)
}

// NewDecoder returns the decoder for cfg.Codepoint.
func NewDecoder(cfg DecoderConfig) (Decoder, error) {
	if err := checkCodepoint(cfg.Codepoint); err != nil {
		return nil, err
	}
	return NewRLCDecoder(cfg)
}
