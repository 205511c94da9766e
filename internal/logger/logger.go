// Package logger provides structured logging setup for Hestia.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/campfirehq/hestia/internal/config"
)

// Closer flushes and stops a buffered handler. Synchronous mode returns a no-op.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record.
// When cfg.Async is set, records are written off the caller's goroutine;
// the returned Closer must be called at shutdown to drain.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		buffered := NewBufferedHandler(handler, defaultBufferSize)
		handler = buffered
		closer = buffered
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
