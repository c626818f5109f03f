package fec

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSequence is returned when a source symbol does not extend the
	// encoding window contiguously.
	ErrInvalidSequence = errors.New("fec: invalid symbol sequence")
	// ErrInvalidParameter reports an out-of-range session or codec parameter.
	ErrInvalidParameter = errors.New("fec: invalid parameter")
	// ErrUnsupportedCodepoint is returned for codepoints without a codec.
	ErrUnsupportedCodepoint = fmt.Errorf("%w: unsupported codepoint", ErrInvalidParameter)
	// ErrAllocation is returned when a symbol or the linear system cannot grow.
	ErrAllocation = errors.New("fec: allocation failure")
)
