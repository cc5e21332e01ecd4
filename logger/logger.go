// Package logger sets up the zerolog logger shared by the command and its components.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// InitWithOptions initializes the logger with the specified options.
// If logFile is empty, logs go to stderr so they never mix with command output.
// If pretty is true, uses ConsoleWriter for human-readable output (only valid when logFile is empty).
// Log level can be configured via LOG_LEVEL environment variable (debug, info, warn, error),
// which takes precedence over level.
func InitWithOptions(logFile string, pretty bool, level string) (zerolog.Logger, error) {
	lvl := parseLogLevel(lo.CoalesceOrEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), level))

	var log zerolog.Logger
	switch {
	case logFile != "":
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		log = New(file, false, lvl)
		log.Debug().Str("path", logFile).Str("level", lvl.String()).Msg("Logger initialized")
	default:
		log = New(os.Stderr, pretty, lvl)
		log.Debug().Str("output", "stderr").Bool("pretty", pretty).Str("level", lvl.String()).Msg("Logger initialized")
	}

	return log, nil
}

// New creates a timestamped logger writing JSON, or console output when
// pretty is set, to w.
func New(w io.Writer, pretty bool, level zerolog.Level) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Helper functions
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
