// Package http is the inbound HTTP adapter: the lifecycle webhook
// endpoint and the per-installation app-route mux.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/campfirehq/hestia/internal/domain/lifecycle"
	"github.com/campfirehq/hestia/internal/fault"
	"github.com/campfirehq/hestia/internal/service"
)

const maxWebhookBody = 1 << 20 // 1 MB

// Handlers serves the webhook endpoint.
type Handlers struct {
	dispatcher *service.Dispatcher
	log        *slog.Logger
}

// NewHandlers creates the webhook handlers.
func NewHandlers(dispatcher *service.Dispatcher, log *slog.Logger) *Handlers {
	return &Handlers{dispatcher: dispatcher, log: log}
}

// HandleLifecycle is POST /: decode the lifecycle envelope, dispatch it,
// and return the shaped response. Recognized phases always answer 200;
// a body that does not decode, or an envelope the dispatcher rejects as
// malformed, answers 422.
func (h *Handlers) HandleLifecycle(w http.ResponseWriter, r *http.Request) {
	var env lifecycle.Envelope
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		h.log.Warn("undecodable lifecycle body", "error", err)
		writeError(w, http.StatusUnprocessableEntity, "invalid lifecycle envelope")
		return
	}

	resp, err := h.dispatcher.Dispatch(r.Context(), &env)
	if err != nil {
		h.writeDispatchError(w, &env, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) writeDispatchError(w http.ResponseWriter, env *lifecycle.Envelope, err error) {
	switch {
	case fault.Classify(err) == fault.KindSchema:
		h.log.Warn("malformed lifecycle envelope",
			"phase", string(env.Lifecycle), "error", err)
		writeError(w, http.StatusUnprocessableEntity, "malformed lifecycle envelope")
	case errors.Is(err, service.ErrUnknownPhase):
		writeError(w, http.StatusBadRequest, "unknown lifecycle phase")
	case errors.Is(err, fault.ErrConfiguration):
		h.log.Warn("lifecycle without installation id", "phase", string(env.Lifecycle))
		writeError(w, http.StatusUnprocessableEntity, "no installation id in envelope")
	default:
		h.log.Error("lifecycle dispatch failed",
			"phase", string(env.Lifecycle), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
