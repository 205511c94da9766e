// Package otelx provides Hestia's OpenTelemetry instruments and HTTP
// instrumentation. Exporter wiring is the embedding program's concern;
// instruments register against the global meter provider.
package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "hestia"

// Metrics holds all framework metric instruments.
type Metrics struct {
	Lifecycles     metric.Int64Counter
	TaskFailures   metric.Int64Counter
	TokenRefreshes metric.Int64Counter
	ReplayHits     metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Lifecycles, err = meter.Int64Counter("hestia.lifecycles",
		metric.WithDescription("Lifecycle phases handled"))
	if err != nil {
		return nil, err
	}

	m.TaskFailures, err = meter.Int64Counter("hestia.tasks.failed",
		metric.WithDescription("Detached task failures by kind"))
	if err != nil {
		return nil, err
	}

	m.TokenRefreshes, err = meter.Int64Counter("hestia.token.refreshes",
		metric.WithDescription("OAuth token refresh attempts"))
	if err != nil {
		return nil, err
	}

	m.ReplayHits, err = meter.Int64Counter("hestia.replay.hits",
		metric.WithDescription("Webhook deliveries suppressed as replays"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// CountLifecycle records one handled lifecycle phase.
func (m *Metrics) CountLifecycle(ctx context.Context, phase string) {
	if m == nil {
		return
	}
	m.Lifecycles.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

// CountTaskFailure records one classified detached-task failure.
func (m *Metrics) CountTaskFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.TaskFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// CountTokenRefresh records one token refresh attempt and its outcome.
func (m *Metrics) CountTokenRefresh(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.TokenRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}

// CountReplayHit records one suppressed duplicate delivery.
func (m *Metrics) CountReplayHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.ReplayHits.Add(ctx, 1)
}
