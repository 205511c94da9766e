package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 1024

// BufferedHandler wraps an slog.Handler with a channel so that webhook
// hot paths never block on log I/O. Records are dropped, and counted,
// when the buffer is full.
type BufferedHandler struct {
	inner   slog.Handler
	ch      chan slog.Record
	done    *sync.WaitGroup
	dropped *atomic.Int64
}

// NewBufferedHandler creates a BufferedHandler with the given channel capacity.
func NewBufferedHandler(inner slog.Handler, size int) *BufferedHandler {
	h := &BufferedHandler{
		inner:   inner,
		ch:      make(chan slog.Record, size),
		done:    &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	h.done.Add(1)
	go h.drain()
	return h
}

func (h *BufferedHandler) drain() {
	defer h.done.Done()
	for rec := range h.ch {
		_ = h.inner.Handle(context.Background(), rec)
	}
}

// Enabled delegates to the inner handler.
func (h *BufferedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record. Drops if the channel is full.
func (h *BufferedHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.ch <- rec:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a new BufferedHandler sharing the same channel but wrapping a new inner handler.
func (h *BufferedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BufferedHandler{
		inner:   h.inner.WithAttrs(attrs),
		ch:      h.ch,
		done:    h.done,
		dropped: h.dropped,
	}
}

// WithGroup returns a new BufferedHandler sharing the same channel but wrapping a new inner handler.
func (h *BufferedHandler) WithGroup(name string) slog.Handler {
	return &BufferedHandler{
		inner:   h.inner.WithGroup(name),
		ch:      h.ch,
		done:    h.done,
		dropped: h.dropped,
	}
}

// DroppedCount returns the number of dropped records.
func (h *BufferedHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close closes the channel and waits for the drain goroutine to finish.
func (h *BufferedHandler) Close() {
	close(h.ch)
	h.done.Wait()
}
