// Package middleware provides HTTP middleware for app routes and the
// webhook endpoint.
package middleware

import (
	"net/http"
	"strings"
)

// BearerToken extracts the token from a standard Authorization header.
// Returns ok=false when the header is absent, is not exactly two
// space-separated tokens, or the scheme is not "bearer".
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// RequireBearer gates a route on an installation's authorization secret.
// The secret is read per request because the registry may regenerate it
// while the route stays mounted.
func RequireBearer(secret func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok || token != secret() || secret() == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
