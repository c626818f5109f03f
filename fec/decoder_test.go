package fec

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func allOnes() *CoefficientGenerator {
	return NewCoefficientGenerator(func(uint32) Source { return constSource{v: 1} })
}

func TestDecoderScenario(t *testing.T) {
	decoded := map[uint32][]byte{}
	dec, err := NewRLCDecoder(DecoderConfig{
		Codepoint:        CodepointRLCGF256FullDensity,
		SymbolSize:       4,
		DensityThreshold: FullDensity,
		Generator:        allOnes(),
		OnDecoded:        func(esi uint32, buf []byte) { decoded[esi] = buf },
	})
	require.NoError(t, err)

	p0 := []byte{0x11, 0, 0, 0}
	p1 := []byte{0x22, 0, 0, 0}
	p2 := []byte{0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, dec.DecodeWithSourceSymbol(p0, 0))
	require.NoError(t, dec.DecodeWithSourceSymbol(p1, 1))
	require.Empty(t, decoded, "received symbols are not reported as decoded")
	require.Equal(t, StatusReceived, dec.Status(0))
	require.Equal(t, StatusMissing, dec.Status(2))

	repair := []byte{0x11 ^ 0x22 ^ 0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, dec.DecodeWithRepairSymbol(repair, 1234, 0, 3))
	require.Equal(t, map[uint32][]byte{2: p2}, decoded)
	require.Equal(t, StatusDecoded, dec.Status(2))

	// Duplicates change nothing.
	require.NoError(t, dec.DecodeWithSourceSymbol(p0, 0))
	require.NoError(t, dec.DecodeWithSourceSymbol(p2, 2))
	require.NoError(t, dec.DecodeWithRepairSymbol(repair, 1234, 0, 3))
	require.Len(t, decoded, 1)
	st := dec.Stats()
	require.Equal(t, uint64(3), st.Redundant)
	require.Equal(t, uint64(1), st.Decoded)
	require.Equal(t, 3, st.Pivots)
}

func TestEncoderDecoderSession(t *testing.T) {
	const (
		symbolSize = 16
		window     = 10
		total      = 200
		repairGap  = 2
	)
	metrics := NewMetrics("swif_test")
	require.NoError(t, metrics.Register(prometheus.NewRegistry()))

	var removed int
	enc, err := NewEncoder(EncoderConfig{
		Codepoint:             CodepointRLCGF256FullDensity,
		SymbolSize:            symbolSize,
		WindowSize:            window,
		DensityThreshold:      FullDensity,
		OnSourceSymbolRemoved: func(uint32, []byte) { removed++ },
		Metrics:               metrics,
	})
	require.NoError(t, err)

	decoded := map[uint32][]byte{}
	var released []uint32
	dec, err := NewDecoder(DecoderConfig{
		Codepoint:        CodepointRLCGF256FullDensity,
		SymbolSize:       symbolSize,
		MaxWindowSize:    window,
		DensityThreshold: FullDensity,
		OnDecoded:        func(esi uint32, buf []byte) { decoded[esi] = buf },
		OnRemoved:        func(esi uint32) { released = append(released, esi) },
		Metrics:          metrics,
	})
	require.NoError(t, err)

	source := make([][]byte, total)
	lost := map[uint32]bool{}
	var key uint16
	for esi := uint32(0); esi < total; esi++ {
		source[esi] = sym(symbolSize, byte(esi+1))
		require.NoError(t, enc.AddSourceSymbol(source[esi], esi))
		if esi%7 == 3 {
			lost[esi] = true
		} else {
			require.NoError(t, dec.DecodeWithSourceSymbol(source[esi], esi))
		}
		key++
		if esi%repairGap == repairGap-1 || esi == total-1 {
			require.NoError(t, enc.GenerateCodingCoefs(key))
			repair, err := enc.BuildRepairSymbol()
			require.NoError(t, err)
			first, _, nss := enc.WindowInfo()
			require.NoError(t, dec.DecodeWithRepairSymbol(repair, key, first, nss))
			key++
		}
	}

	require.Equal(t, total-window, removed)
	require.Len(t, decoded, len(lost))
	for esi := range lost {
		require.Equal(t, source[esi], decoded[esi], "esi %d", esi)
		require.Equal(t, StatusDecoded, dec.Status(esi))
	}
	require.Equal(t, float64(len(lost)), testutil.ToFloat64(metrics.Decoded))
	require.Equal(t, float64(total), testutil.ToFloat64(metrics.SourceSymbols))
	require.Equal(t, float64(total-window), testutil.ToFloat64(metrics.Evictions))

	require.Equal(t, 150, dec.Prune(150))
	require.Len(t, released, 150)
	require.Equal(t, StatusPruned, dec.Status(10))
	require.Equal(t, StatusReceived, dec.Status(151))
	require.Equal(t, 50, dec.Stats().Pivots)

	stale := dec.Stats().Stale
	require.NoError(t, dec.DecodeWithRepairSymbol(sym(symbolSize, 0), 1, 140, window))
	require.NoError(t, dec.DecodeWithSourceSymbol(sym(symbolSize, 0), 3))
	require.Equal(t, stale+2, dec.Stats().Stale)
}

func TestDecoderLinearSystemLimit(t *testing.T) {
	dec, err := NewRLCDecoder(DecoderConfig{
		Codepoint:           CodepointRLCGF256FullDensity,
		SymbolSize:          2,
		MaxLinearSystemSize: 8,
	})
	require.NoError(t, err)
	require.NoError(t, dec.DecodeWithSourceSymbol([]byte{1, 2}, 0))
	require.ErrorIs(t, dec.DecodeWithSourceSymbol([]byte{1, 2}, 100), ErrAllocation)
	require.Equal(t, StatusMissing, dec.Status(100))
	require.Equal(t, uint64(1), dec.Stats().Rejected)

	// The session keeps working after the failure.
	require.NoError(t, dec.DecodeWithSourceSymbol([]byte{3, 4}, 1))
	require.Equal(t, StatusReceived, dec.Status(1))
}

func TestDecoderRejectsMalformed(t *testing.T) {
	dec, err := NewRLCDecoder(DecoderConfig{
		Codepoint:        CodepointRLCGF256FullDensity,
		SymbolSize:       4,
		MaxWindowSize:    16,
		DensityThreshold: FullDensity,
	})
	require.NoError(t, err)
	require.ErrorIs(t, dec.DecodeWithSourceSymbol([]byte{1}, 0), ErrInvalidParameter)
	require.ErrorIs(t, dec.DecodeWithRepairSymbol([]byte{1, 2, 3}, 1, 0, 4), ErrInvalidParameter)
	require.ErrorIs(t, dec.DecodeWithRepairSymbol(sym(4, 1), 1, 0, 0), ErrInvalidParameter)
	require.ErrorIs(t, dec.DecodeWithRepairSymbol(sym(4, 1), 1, 0, 17), ErrInvalidParameter)
	require.ErrorIs(t, dec.DecodeWithRepairSymbol(sym(4, 1), 1, NoSymbolID-2, 8), ErrInvalidParameter)
	require.Equal(t, uint64(5), dec.Stats().Rejected)

	_, err = NewRLCDecoder(DecoderConfig{SymbolSize: 0})
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewRLCDecoder(DecoderConfig{SymbolSize: 4, DensityThreshold: 20})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSymbolStatusString(t *testing.T) {
	require.Equal(t, "missing", StatusMissing.String())
	require.Equal(t, "decoded", StatusDecoded.String())
	require.Equal(t, "status(9)", SymbolStatus(9).String())
}
