// Package logging bootstraps the process-wide zerolog logger, grounded
// on hyperifyio-goresearch's cmd/goresearch/main.go (RFC3339 timestamps,
// a console writer for interactive use, SetGlobalLevel driven by an
// explicit level string rather than a bare verbose flag).
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger and level. level must be one
// of the SDKConfig-recognized values (error|warn|info|debug); anything
// else falls back to info. pretty selects a human-readable console
// writer (dev/CLI use) over newline-delimited JSON (service use).
func Init(level string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	log.Logger = log.Output(out)
	zerolog.SetGlobalLevel(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "info", "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// For returns a named sub-logger, the way each subsystem takes its own
// component-tagged logger rather than writing through the bare global.
func For(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
