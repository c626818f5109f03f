package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/observe-l/swif/fec"
)

func TestDefaultIsValid(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	require.Equal(t, 1499, s.TotalEncoded())
}

func TestParseOverridesDefaults(t *testing.T) {
	s, err := Parse(`
transport = "QUIC"
addr = "10.0.0.1:4433"
symbol_size = 1024
window_size = 32
code_rate = 0.8
loss_model = "ge"
loss_params = [0.05, 0.3, 0.9]
timeout = "5s"
`)
	require.NoError(t, err)
	require.Equal(t, "quic", s.Transport)
	require.Equal(t, "10.0.0.1:4433", s.Addr)
	require.Equal(t, 1024, s.SymbolSize)
	require.Equal(t, 32, s.WindowSize)
	require.Equal(t, 0.8, s.CodeRate)
	require.Equal(t, "ge", s.Loss.Model)
	require.Equal(t, []float64{0.05, 0.3, 0.9}, s.Loss.Params)
	require.Equal(t, 5*time.Second, s.Timeout)
	// Untouched keys keep their defaults.
	require.Equal(t, 1000, s.TotalSource)
	require.Equal(t, fec.CodepointRLCGF256FullDensity, s.Codepoint)
	require.Equal(t, fec.FullDensity, s.DensityThreshold)
	require.NoError(t, s.Validate())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(`window = 3`)
	require.ErrorContains(t, err, "unknown key")
	_, err = Parse(`timeout = "soon"`)
	require.ErrorContains(t, err, "parse timeout")
	_, err = Parse(`symbol_size = "big"`)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	s := Default()
	s.Transport = "tcp"
	s.WindowSize = 0
	s.CodeRate = 1.5
	s.DensityThreshold = 16
	err := s.Validate()
	require.ErrorContains(t, err, "transport")
	require.ErrorContains(t, err, "window_size")
	require.ErrorContains(t, err, "code_rate")
	require.ErrorContains(t, err, "density_threshold")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swif.toml")
	require.NoError(t, os.WriteFile(path, []byte("tot_src = 50\npace = \"1ms\"\ncontrol_addr = \"127.0.0.1:50051\"\n"), 0o644))
	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 50, s.TotalSource)
	require.Equal(t, time.Millisecond, s.Pace)
	require.Equal(t, "127.0.0.1:50051", s.ControlAddr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorContains(t, err, "missing.toml")
}

func TestFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swif.toml")
	require.NoError(t, os.WriteFile(path, []byte("tot_src = 50\nwindow_size = 8\n"), 0o644))

	fs := flag.NewFlagSet("swif", flag.ContinueOnError)
	resolve := Flags(fs)
	require.NoError(t, fs.Parse([]string{"-config", path, "-window", "4", "-transport", "QUIC", "-loss-model", "ge", "-loss", "0.05, 0.3,0.9"}))
	s, err := resolve()
	require.NoError(t, err)
	require.Equal(t, 50, s.TotalSource)
	require.Equal(t, 4, s.WindowSize)
	require.Equal(t, "quic", s.Transport)
	require.Equal(t, "ge", s.Loss.Model)
	require.Equal(t, []float64{0.05, 0.3, 0.9}, s.Loss.Params)
	// Flags left alone keep the file or default value.
	require.Equal(t, 16, s.SymbolSize)
}

func TestFlagsDefaults(t *testing.T) {
	fs := flag.NewFlagSet("swif", flag.ContinueOnError)
	resolve := Flags(fs)
	require.NoError(t, fs.Parse(nil))
	s, err := resolve()
	require.NoError(t, err)
	require.Equal(t, Default(), s)
}

func TestSparsestDensityIsKept(t *testing.T) {
	s, err := Parse("density_threshold = 0\n")
	require.NoError(t, err)
	require.Zero(t, s.DensityThreshold)
	require.NoError(t, s.Validate())

	fs := flag.NewFlagSet("swif", flag.ContinueOnError)
	resolve := Flags(fs)
	require.NoError(t, fs.Parse([]string{"-density", "0"}))
	s, err = resolve()
	require.NoError(t, err)
	require.Zero(t, s.DensityThreshold)
}

func TestFlagsErrors(t *testing.T) {
	fs := flag.NewFlagSet("swif", flag.ContinueOnError)
	resolve := Flags(fs)
	require.NoError(t, fs.Parse([]string{"-loss", "x"}))
	_, err := resolve()
	require.ErrorContains(t, err, "-loss")

	fs = flag.NewFlagSet("swif", flag.ContinueOnError)
	resolve = Flags(fs)
	require.NoError(t, fs.Parse([]string{"-window", "0"}))
	_, err = resolve()
	require.ErrorContains(t, err, "window_size")
}
