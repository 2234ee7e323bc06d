// Package logging configures zerolog for the STAT client and its tools.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	return install(cfg, nil)
}

func install(cfg Config, extra io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}
	if extra != nil {
		out = zerolog.MultiLevelWriter(out, extra)
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// ParseLevel converts LogLevel to zerolog.Level. Unknown levels map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Session is one run's log file, opened in append mode next to the
// configured output. Every event goes to both.
type Session struct {
	Logger  zerolog.Logger
	file    *os.File
	started time.Time
}

// OpenSession installs a global logger that also appends JSON lines to
// path, and logs the session start.
func OpenSession(cfg Config, path string) (*Session, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	s := &Session{
		Logger:  install(cfg, f),
		file:    f,
		started: time.Now(),
	}
	s.Logger.Info().Str("log_file", path).Msg("Session opened")
	return s, nil
}

// Close logs the session end and closes the file.
func (s *Session) Close() error {
	s.Logger.Info().Dur("duration", time.Since(s.started)).Msg("Session closed")
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// Log Level Guidelines:
//
// Debug: per-page detail (decoded pages, cache hits, retry backoffs)
// Info: session open/close, batch progress, sink writes
// Warn: upstream rejections, retries, quota near limit, cache errors
// Error: fatal pagination failures, exhausted retries, config errors
//
// Context Fields:
//   - component: package emitting the event
//   - session: pagination session id
//   - query: logical query, e.g. "keywords:12"
//   - endpoint: API path without key, e.g. "/keywords/list"
//   - page, status, error_class, duration
//
// API keys never appear in fields; URLs are logged redacted.
