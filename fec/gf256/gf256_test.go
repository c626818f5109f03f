package gf256

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldLaws(t *testing.T) {
	for a := 0; a < 256; a++ {
		x := byte(a)
		require.Equal(t, x, Mul(x, 1), "a*1 for a=%d", a)
		require.Equal(t, byte(0), Mul(x, 0))
		if x != 0 {
			require.Equal(t, byte(1), Mul(x, Inv(x)), "a*inv(a) for a=%d", a)
			require.Equal(t, x, Div(x, 1))
			require.Equal(t, byte(1), Div(x, x))
		}
		for b := 0; b < 256; b++ {
			y := byte(b)
			require.Equal(t, x, Add(Add(x, y), y))
			require.Equal(t, Mul(x, y), Mul(y, x))
		}
	}
}

func TestInvZeroIsZero(t *testing.T) {
	require.Equal(t, byte(0), Inv(0))
	require.Equal(t, byte(0), Div(7, 0))
}

func TestMulMatchesShiftAndAdd(t *testing.T) {
	slow := func(a, b byte) byte {
		var p byte
		for b != 0 {
			if b&1 != 0 {
				p ^= a
			}
			carry := a & 0x80
			a <<= 1
			if carry != 0 {
				a ^= byte(poly & 0xff)
			}
			b >>= 1
		}
		return p
	}
	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			if got, want := Mul(byte(a), byte(b)), slow(byte(a), byte(b)); got != want {
				t.Fatalf("mul(%d,%d)=%d want %d", a, b, got, want)
			}
		}
	}
}

func TestDistributive(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 10000; i++ {
		a, b, c := byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(256))
		require.Equal(t, Add(Mul(a, b), Mul(a, c)), Mul(a, Add(b, c)))
	}
}

func TestExp(t *testing.T) {
	require.Equal(t, byte(1), Exp(0))
	require.Equal(t, byte(2), Exp(1))
	require.Equal(t, Exp(254), Exp(-1))
	require.Equal(t, Exp(3), Exp(258))
}

func TestScale(t *testing.T) {
	buf := []byte{1, 2, 3, 0xff}
	want := make([]byte, len(buf))
	for i, v := range buf {
		want[i] = Mul(v, 0x53)
	}
	Scale(buf, 0x53)
	require.Equal(t, want, buf)

	Scale(buf, 1)
	require.Equal(t, want, buf)

	Scale(buf, 0)
	require.Equal(t, make([]byte, 4), buf)
}

func TestAddScaled(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	src := make([]byte, 64)
	dst := make([]byte, 64)
	rng.Read(src)
	rng.Read(dst)
	orig := bytes.Clone(dst)

	AddScaled(dst, 0x1d, src)
	for i := range dst {
		require.Equal(t, orig[i]^Mul(0x1d, src[i]), dst[i])
	}
	// adding the same scaled vector twice cancels out
	AddScaled(dst, 0x1d, src)
	require.Equal(t, orig, dst)

	AddScaled(dst, 0, src)
	require.Equal(t, orig, dst)
}

func TestAddScaledAliased(t *testing.T) {
	buf := []byte{5, 6, 7}
	// x + c*x = (1+c)*x
	want := make([]byte, 3)
	for i, v := range buf {
		want[i] = Mul(Add(1, 9), v)
	}
	AddScaled(buf, 9, buf)
	require.Equal(t, want, buf)

	XOR(buf, buf)
	require.Equal(t, []byte{0, 0, 0}, buf)
}

func TestAddScaledShortSource(t *testing.T) {
	dst := []byte{1, 1, 1, 1}
	AddScaled(dst, 1, []byte{1, 1})
	require.Equal(t, []byte{0, 0, 1, 1}, dst)
}
