// Package logging builds the zerolog loggers used by the binaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Environment overrides.
const (
	EnvLevel   = "SWIF_LOG_LEVEL"
	EnvNoColor = "SWIF_LOG_NOCOLOR"
	EnvJSON    = "SWIF_LOG_JSON"
)

// New returns a logger for app writing to stderr.
func New(app string) zerolog.Logger {
	return NewWithWriter(app, os.Stderr, os.Getenv)
}

// NewWithWriter is New with an explicit destination and environment lookup.
func NewWithWriter(app string, w io.Writer, getenv func(string) string) zerolog.Logger {
	out := w
	if !truthy(getenv(EnvJSON)) {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    truthy(getenv(EnvNoColor)),
		}
	}
	level := zerolog.InfoLevel
	if v := strings.TrimSpace(getenv(EnvLevel)); v != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = l
		}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
