// Package gf256 implements byte arithmetic in GF(2^8) using the primitive
// polynomial 0x11d and generator 0x02, the field used by the RLC FEC scheme.
//
// Multiplication and inversion go through precomputed tables. Vector helpers
// operate in place and are safe when source and destination alias.
package gf256

const poly = 0x11d

var (
	expTable [512]byte
	logTable [256]byte
	mulTable [256][256]byte
	invTable [256]byte
)

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		expTable[i] = byte(x)
		logTable[byte(x)] = byte(i)
		x <<= 1
		if x&0x100 != 0 {
			x ^= poly
		}
	}
	for i := 255; i < 512; i++ {
		expTable[i] = expTable[i-255]
	}
	for a := 1; a < 256; a++ {
		la := int(logTable[a])
		for b := 1; b < 256; b++ {
			mulTable[a][b] = expTable[la+int(logTable[b])]
		}
		invTable[a] = expTable[255-la]
	}
	// invTable[0] stays 0: inverting zero is defined as zero.
}

// Add returns a+b, which is XOR in characteristic 2.
func Add(a, b byte) byte { return a ^ b }

// Sub is identical to Add.
func Sub(a, b byte) byte { return a ^ b }

// Mul returns a*b.
func Mul(a, b byte) byte { return mulTable[a][b] }

// Inv returns the multiplicative inverse of a, or 0 when a is 0.
func Inv(a byte) byte { return invTable[a] }

// Div returns a/b. Division by zero yields 0.
func Div(a, b byte) byte { return mulTable[a][invTable[b]] }

// Exp returns the generator raised to e, e taken modulo 255.
func Exp(e int) byte {
	e %= 255
	if e < 0 {
		e += 255
	}
	return expTable[e]
}

// Scale multiplies every byte of buf by coef in place. A zero coef clears buf.
func Scale(buf []byte, coef byte) {
	switch coef {
	case 0:
		clear(buf)
		return
	case 1:
		return
	}
	row := &mulTable[coef]
	for i, v := range buf {
		buf[i] = row[v]
	}
}

// AddScaled computes dst[i] ^= coef*src[i] over the common length of the two
// slices.
func AddScaled(dst []byte, coef byte, src []byte) {
	n := min(len(dst), len(src))
	switch coef {
	case 0:
		return
	case 1:
		XOR(dst[:n], src[:n])
		return
	}
	row := &mulTable[coef]
	for i := 0; i < n; i++ {
		dst[i] ^= row[src[i]]
	}
}

// XOR computes dst[i] ^= src[i] over the common length of the two slices.
func XOR(dst, src []byte) {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] ^= src[i]
	}
}
