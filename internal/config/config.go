// Package config loads demo session settings from TOML.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/observe-l/swif/fec"
)

// Session holds the parameters shared by the demo sender and receiver.
type Session struct {
	Transport string // "udp" or "quic"
	Addr      string
	ALPN      string

	Codepoint           fec.Codepoint
	SymbolSize          int
	WindowSize          int
	TotalSource         int
	CodeRate            float64 // TotalSource / TotalEncoded
	DensityThreshold    uint8
	MaxLinearSystemSize int

	Loss LossConfig

	InputFile   string
	OutputFile  string
	MetricsAddr string
	ControlAddr string
	Pace        time.Duration
	Timeout     time.Duration
}

// LossConfig selects the simulated sender loss.
type LossConfig struct {
	Model  string
	Params []float64
	Seed   int64
}

// Default returns the demo defaults: 1000 symbols of 16 bytes, a window of
// 10 and a 2/3 code rate with 30% simulated loss, on 127.0.0.1:10978.
func Default() Session {
	return Session{
		Transport:        "udp",
		Addr:             "127.0.0.1:10978",
		ALPN:             "swif-demo",
		Codepoint:        fec.CodepointRLCGF256FullDensity,
		SymbolSize:       16,
		WindowSize:       10,
		TotalSource:      1000,
		CodeRate:         0.667,
		DensityThreshold: fec.FullDensity,
		Loss:             LossConfig{Model: "bernoulli", Params: []float64{0.30}},
		Timeout:          30 * time.Second,
	}
}

// TotalEncoded is the number of source plus repair symbols for the code rate.
func (s *Session) TotalEncoded() int {
	return int(math.Floor(float64(s.TotalSource) / s.CodeRate))
}

// Validate checks ranges and cross-field constraints.
func (s *Session) Validate() error {
	var errs []error
	switch s.Transport {
	case "udp", "quic":
	default:
		errs = append(errs, fmt.Errorf("transport %q: want udp or quic", s.Transport))
	}
	if strings.TrimSpace(s.Addr) == "" {
		errs = append(errs, errors.New("addr is empty"))
	}
	if s.SymbolSize <= 0 || s.SymbolSize > 65535 {
		errs = append(errs, fmt.Errorf("symbol_size %d out of range", s.SymbolSize))
	}
	if s.WindowSize <= 0 || s.WindowSize > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("window_size %d out of range", s.WindowSize))
	}
	if s.TotalSource <= 0 {
		errs = append(errs, fmt.Errorf("tot_src %d must be positive", s.TotalSource))
	}
	if s.CodeRate <= 0 || s.CodeRate > 1 {
		errs = append(errs, fmt.Errorf("code_rate %g not in (0,1]", s.CodeRate))
	}
	if s.DensityThreshold > fec.FullDensity {
		errs = append(errs, fmt.Errorf("density_threshold %d > %d", s.DensityThreshold, fec.FullDensity))
	}
	if s.MaxLinearSystemSize < 0 {
		errs = append(errs, fmt.Errorf("max_linear_system_size %d is negative", s.MaxLinearSystemSize))
	}
	return errors.Join(errs...)
}

type fileConfig struct {
	Transport           string    `toml:"transport"`
	Addr                string    `toml:"addr"`
	ALPN                string    `toml:"alpn"`
	Codepoint           uint32    `toml:"codepoint"`
	SymbolSize          int       `toml:"symbol_size"`
	WindowSize          int       `toml:"window_size"`
	TotalSource         int       `toml:"tot_src"`
	CodeRate            float64   `toml:"code_rate"`
	DensityThreshold    uint8     `toml:"density_threshold"`
	MaxLinearSystemSize int       `toml:"max_linear_system_size"`
	LossModel           string    `toml:"loss_model"`
	LossParams          []float64 `toml:"loss_params"`
	LossSeed            int64     `toml:"loss_seed"`
	InputFile           string    `toml:"input"`
	OutputFile          string    `toml:"output"`
	MetricsAddr         string    `toml:"metrics_addr"`
	ControlAddr         string    `toml:"control_addr"`
	Pace                string    `toml:"pace"`
	Timeout             string    `toml:"timeout"`
}

// Load reads path over the defaults. Keys absent from the file keep their
// default value.
func Load(path string) (Session, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Session{}, fmt.Errorf("load config %s: %w", path, err)
	}
	s, err := apply(Default(), raw, meta)
	if err != nil {
		return Session{}, fmt.Errorf("config %s: %w", path, err)
	}
	return s, nil
}

// Parse is Load on an in-memory document.
func Parse(doc string) (Session, error) {
	var raw fileConfig
	meta, err := toml.Decode(doc, &raw)
	if err != nil {
		return Session{}, fmt.Errorf("parse config: %w", err)
	}
	return apply(Default(), raw, meta)
}

func apply(s Session, raw fileConfig, meta toml.MetaData) (Session, error) {
	if undec := meta.Undecoded(); len(undec) > 0 {
		return Session{}, fmt.Errorf("unknown key %q", undec[0].String())
	}
	if meta.IsDefined("transport") {
		s.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("addr") {
		s.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("alpn") {
		s.ALPN = strings.TrimSpace(raw.ALPN)
	}
	if meta.IsDefined("codepoint") {
		s.Codepoint = fec.Codepoint(raw.Codepoint)
	}
	if meta.IsDefined("symbol_size") {
		s.SymbolSize = raw.SymbolSize
	}
	if meta.IsDefined("window_size") {
		s.WindowSize = raw.WindowSize
	}
	if meta.IsDefined("tot_src") {
		s.TotalSource = raw.TotalSource
	}
	if meta.IsDefined("code_rate") {
		s.CodeRate = raw.CodeRate
	}
	if meta.IsDefined("density_threshold") {
		s.DensityThreshold = raw.DensityThreshold
	}
	if meta.IsDefined("max_linear_system_size") {
		s.MaxLinearSystemSize = raw.MaxLinearSystemSize
	}
	if meta.IsDefined("loss_model") {
		s.Loss.Model = strings.TrimSpace(raw.LossModel)
	}
	if meta.IsDefined("loss_params") {
		s.Loss.Params = raw.LossParams
	}
	if meta.IsDefined("loss_seed") {
		s.Loss.Seed = raw.LossSeed
	}
	if meta.IsDefined("input") {
		s.InputFile = raw.InputFile
	}
	if meta.IsDefined("output") {
		s.OutputFile = raw.OutputFile
	}
	if meta.IsDefined("metrics_addr") {
		s.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("control_addr") {
		s.ControlAddr = strings.TrimSpace(raw.ControlAddr)
	}
	if meta.IsDefined("pace") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Pace))
		if err != nil {
			return Session{}, fmt.Errorf("parse pace: %w", err)
		}
		s.Pace = d
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return Session{}, fmt.Errorf("parse timeout: %w", err)
		}
		s.Timeout = d
	}
	return s, nil
}
