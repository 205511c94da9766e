package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/campfirehq/hestia/internal/app"
	"github.com/campfirehq/hestia/internal/middleware"
)

// AppMux serves app-defined routes at /{installation_id}{declared_path}.
// It implements service.RouteBinder: the registry mounts a router when an
// installation appears and unmounts it on teardown. Mount and Unmount may
// race with request serving, so the routing table is built per
// installation and swapped under a lock; chi routers themselves are never
// mutated after construction.
type AppMux struct {
	log *slog.Logger

	mu      sync.RWMutex
	routers map[string]chi.Router
}

// NewAppMux creates an empty app-route mux.
func NewAppMux(log *slog.Logger) *AppMux {
	return &AppMux{
		log:     log,
		routers: make(map[string]chi.Router),
	}
}

// Mount builds and installs the route table for one installation.
func (m *AppMux) Mount(inst *app.Instance) {
	routes := inst.Definition().Routes()
	r := chi.NewRouter()
	for _, rt := range routes {
		handler := func(rt *app.Route) http.HandlerFunc {
			return func(w http.ResponseWriter, req *http.Request) {
				rt.Handler(inst, w, req)
			}
		}(rt)
		if rt.Auth {
			// The secret is read per request; a rebound context keeps
			// the mounted route in sync.
			r.With(middleware.RequireBearer(inst.Secret)).
				Method(rt.Method, rt.Path, handler)
		} else {
			r.Method(rt.Method, rt.Path, handler)
		}
	}

	m.mu.Lock()
	m.routers[inst.ID()] = r
	m.mu.Unlock()
	m.log.Info("app routes mounted",
		"installation_id", inst.ID(), "routes", len(routes))
}

// Unmount removes an installation's route table.
func (m *AppMux) Unmount(installationID string) {
	m.mu.Lock()
	delete(m.routers, installationID)
	m.mu.Unlock()
	m.log.Info("app routes unmounted", "installation_id", installationID)
}

// ServeHTTP routes /{installation_id}{path} to the installation's router.
func (m *AppMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, rest := splitInstallation(r.URL.Path)
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	m.mu.RLock()
	sub, ok := m.routers[id]
	m.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown installation")
		return
	}

	r2 := r.Clone(r.Context())
	r2.URL.Path = rest
	// The sub-router needs its own routing context; reusing the outer
	// one would make it resume matching mid-pattern.
	r2 = r2.WithContext(context.WithValue(r2.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
	sub.ServeHTTP(w, r2)
}

// splitInstallation peels the installation id off the front of a path:
// "/abc/status" becomes ("abc", "/status").
func splitInstallation(path string) (string, string) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "", ""
	}
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i], trimmed[i:]
	}
	return trimmed, "/"
}
