package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the webhook endpoint and the app-route mux on the
// given chi router. The platform calls POST / with a lifecycle envelope;
// everything one path level down belongs to an installation's app routes.
// webhookMW wraps only the webhook endpoint, not the app routes.
func MountRoutes(r chi.Router, h *Handlers, mux *AppMux, webhookMW ...func(http.Handler) http.Handler) {
	r.With(webhookMW...).Post("/", h.HandleLifecycle)
	r.Handle("/{installation}", mux)
	r.Handle("/{installation}/*", mux)
}
