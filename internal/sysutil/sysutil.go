// Package sysutil configures process-wide concerns shared by the binaries.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a LOG_LEVEL value to a zerolog level. It accepts zerolog's
// names case-insensitively plus "warning"; anything else is info.
func ParseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// LoggerOptions configures SetupLogger.
type LoggerOptions struct {
	Level string
	// Pretty switches to the human-readable console writer.
	Pretty  bool
	Service string
	Version string
}

// SetupLogger installs the global logger writing to w (stderr when nil):
// JSON lines by default, console output when opts.Pretty is set. Every line
// carries the service name and build version when given.
func SetupLogger(w io.Writer, opts LoggerOptions) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	if opts.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	lc := zerolog.New(w).With().Timestamp()
	if opts.Service != "" {
		lc = lc.Str("service", opts.Service)
	}
	if opts.Version != "" {
		lc = lc.Str("version", opts.Version)
	}
	log.Logger = lc.Logger()
	zerolog.DefaultContextLogger = &log.Logger
	return log.Logger
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
