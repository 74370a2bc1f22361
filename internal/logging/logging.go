// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls logger output.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Empty means info.
	Level string
	// Pretty enables human-readable console output instead of JSON.
	Pretty bool
	// Output defaults to stderr so stdout stays clean for command output.
	Output io.Writer
}

// Init sets up the global logger. Safe to call more than once; the
// last call wins.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level := parseLevel(cfg.Level)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// For returns a logger tagged with the given component name.
func For(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
