// Package logging configures the diagnostic slog logger. Diagnostics go to
// stderr and never to the idle log.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Format represents the output format for diagnostics.
type Format int

const (
	// FormatText outputs human-readable key=value lines.
	FormatText Format = iota
	// FormatJSON outputs one JSON object per line.
	FormatJSON
)

// Config holds the logging configuration.
type Config struct {
	Level  slog.Level
	Format Format
}

// ParseLevel converts debug, info, warn or error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// ParseFormat converts text or json to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format %q", s)
	}
}

// New creates a logger writing to w.
func New(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// WithComponent tags every record from the returned logger with the
// component that produced it.
func WithComponent(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
