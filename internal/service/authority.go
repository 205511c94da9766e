// Package service holds the framework's core: the installation registry,
// the lifecycle dispatcher, the detached task runner, and the token
// authority. The http adapter and the embedding program depend on this
// package; it never depends on them.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/campfirehq/hestia/internal/adapter/otelx"
	"github.com/campfirehq/hestia/internal/adapter/platform"
	"github.com/campfirehq/hestia/internal/fault"
	"github.com/campfirehq/hestia/internal/middleware"
)

// Authority owns installation credentials: it mints the per-installation
// route authorization secrets, verifies inbound bearer secrets, and
// refreshes platform access tokens through the OAuth endpoint.
type Authority struct {
	oauth   *platform.OAuthClient
	metrics *otelx.Metrics
	log     *slog.Logger
}

// NewAuthority creates an Authority. oauth may be nil when token refresh
// is not configured; Refresh then fails cleanly.
func NewAuthority(oauth *platform.OAuthClient, metrics *otelx.Metrics, log *slog.Logger) *Authority {
	return &Authority{oauth: oauth, metrics: metrics, log: log}
}

// NewSecret mints a fresh route authorization secret.
func (a *Authority) NewSecret() string {
	return uuid.NewString()
}

// Verify checks a request's bearer token against the installation's
// secret. Empty expected secrets never match.
func (a *Authority) Verify(r *http.Request, expected string) error {
	token, ok := middleware.BearerToken(r)
	if !ok || expected == "" || token != expected {
		return fault.ErrUnauthorized
	}
	return nil
}

// Refresh exchanges a refresh token for a new token pair and records the
// attempt. Callers apply the result through Registry.UpdateToken.
func (a *Authority) Refresh(ctx context.Context, refreshToken string) (*platform.Token, error) {
	if a.oauth == nil {
		return nil, fmt.Errorf("token refresh not configured: %w", fault.ErrAuthInvalid)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token on record: %w", fault.ErrAuthInvalid)
	}

	tok, err := a.oauth.Refresh(ctx, refreshToken)
	a.metrics.CountTokenRefresh(ctx, err == nil)
	if err != nil {
		a.log.Error("token refresh failed", "error", err)
		return nil, err
	}
	a.log.Info("token refreshed")
	return tok, nil
}
