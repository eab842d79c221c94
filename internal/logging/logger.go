// Package logging builds the component loggers used by recovery and the CLI.
// Level, prefix and destination come from RECOMPILER_* environment variables.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Environment variables read by NewLogger.
const (
	EnvLevel  = "RECOMPILER_LOG_LEVEL"
	EnvPrefix = "RECOMPILER_LOG_PREFIX"
	EnvToFile = "RECOMPILER_LOG_TO_FILE"
)

// LoggerCloser wraps a logger and closes its log file, if any.
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// ParseLevel maps a level name to a log level. Unknown names mean info.
func ParseLevel(name string) log.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a logger writing to w. debug forces the debug
// level regardless of the environment.
func NewLoggerWithWriter(w io.Writer, debug bool) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})

	lg.SetLevel(ParseLevel(os.Getenv(EnvLevel)))
	if debug {
		lg.SetLevel(log.DebugLevel)
	}

	prefix := os.Getenv(EnvPrefix)
	if prefix == "" {
		prefix = "recompiler "
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// NewLogger creates a logger configured from the environment:
// RECOMPILER_LOG_LEVEL: debug, info, warn, error (default: info)
// RECOMPILER_LOG_PREFIX: prefix for log messages (default: "recompiler ")
// RECOMPILER_LOG_TO_FILE: when set to "1", logs to a timestamped file instead of stderr
func NewLogger(debug bool) *LoggerCloser {
	output := io.Writer(os.Stderr)

	if os.Getenv(EnvToFile) == "1" {
		timestamp := time.Now().Format("20060102-150405")
		logFile := fmt.Sprintf("recompiler-%s-debug.log", timestamp)

		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err == nil {
			output = f
		}
		// If file creation fails, fall back to stderr
	}

	return NewLoggerWithWriter(output, debug)
}

// Discard returns a logger that drops everything.
func Discard() *LoggerCloser {
	return &LoggerCloser{Logger: log.New(io.Discard)}
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return ParseLevel(os.Getenv(EnvLevel)) == log.DebugLevel
}
