// Package logger builds the structured zerolog logger used across the settlement tooling.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Enable pretty console output
	// File, when set, receives a JSON copy of every log line (run log)
	File string
	// Out overrides the console writer (defaults to os.Stdout)
	Out io.Writer
}

// New creates a new structured logger.
// When cfg.File is set, the returned closer must be called to flush the run log.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	var console io.Writer = out
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	closer := io.Closer(nopCloser{})
	writer := console
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open run log %s: %w", cfg.File, err)
		}
		writer = zerolog.MultiLevelWriter(console, f)
		closer = f
	}

	l := zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()

	return l, closer, nil
}

// ParseLevel maps a level name to a zerolog level. Unknown names fall back to info.
func ParseLevel(name string) zerolog.Level {
	switch name {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// RunLogPath returns the run log file name for a run started at t, e.g. run_20260118_0930.log
func RunLogPath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("run_%s.log", t.Format("20060102_1504")))
}

// SetGlobalLogger sets the package-level logger
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
