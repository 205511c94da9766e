package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/campfirehq/hestia/internal/adapter/otelx"
)

const maxReplayBody = 1 << 20 // 1 MB

// replayEntry caches a shaped webhook response.
type replayEntry struct {
	StatusCode int
	Body       []byte
}

// ReplayGuard deduplicates redelivered webhook calls by executionId,
// replaying the response shaped for the first delivery. Suppression is
// best-effort and process-local: a cache miss after restart simply lets
// the delivery through, which the lifecycle handlers tolerate.
type ReplayGuard struct {
	cache   *ristretto.Cache[string, replayEntry]
	ttl     time.Duration
	metrics *otelx.Metrics
	log     *slog.Logger
}

// NewReplayGuard creates a guard with the given cache budget and entry TTL.
func NewReplayGuard(maxSizeBytes int64, ttl time.Duration, metrics *otelx.Metrics, log *slog.Logger) (*ReplayGuard, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, replayEntry]{
		NumCounters: maxSizeBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxSizeBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ReplayGuard{cache: cache, ttl: ttl, metrics: metrics, log: log}, nil
}

// Handler wraps the webhook endpoint.
func (g *ReplayGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxReplayBody))
		if err != nil {
			http.Error(w, `{"error":"unreadable body"}`, http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var probe struct {
			ExecutionID string `json:"executionId"`
		}
		// Envelopes without an execution id pass through unguarded.
		if err := json.Unmarshal(body, &probe); err != nil || probe.ExecutionID == "" {
			next.ServeHTTP(w, r)
			return
		}

		if cached, ok := g.cache.Get(probe.ExecutionID); ok {
			g.log.Info("replayed duplicate delivery", "execution_id", probe.ExecutionID)
			g.metrics.CountReplayHit(r.Context())
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(cached.StatusCode)
			_, _ = w.Write(cached.Body)
			return
		}

		rec := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
			body:           &bytes.Buffer{},
		}
		next.ServeHTTP(rec, r)

		// Failed deliveries are not cached; the platform may retry them.
		if rec.statusCode == http.StatusOK {
			entry := replayEntry{StatusCode: rec.statusCode, Body: rec.body.Bytes()}
			g.cache.SetWithTTL(probe.ExecutionID, entry, int64(len(entry.Body))+64, g.ttl)
		}
	})
}

// Wait blocks until pending cache writes are visible. Tests only.
func (g *ReplayGuard) Wait() {
	g.cache.Wait()
}

// Close releases the cache.
func (g *ReplayGuard) Close() {
	g.cache.Close()
}

// responseRecorder wraps http.ResponseWriter to capture the response.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
