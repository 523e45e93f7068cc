package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/echoboard/echoboard/internal/dynamo"
	"github.com/echoboard/echoboard/internal/events"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store        dynamo.Store
	projectTable string
	nats         *events.Client
}

// NewHealthHandler creates a new HealthHandler. nats may be nil when event
// publishing is disabled.
func NewHealthHandler(store dynamo.Store, projectTable string, nats *events.Client) *HealthHandler {
	return &HealthHandler{store: store, projectTable: projectTable, nats: nats}
}

// Health is a simple liveness probe.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready is a readiness probe that checks dependencies.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status":  "ready",
		"backend": "connected",
	}
	status := http.StatusOK

	// A read for a key that cannot exist exercises the full backend path.
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := h.store.Get(ctx, h.projectTable, dynamo.Key{"projectId": "__readiness__"}, false); err != nil {
		response["status"] = "not_ready"
		response["backend"] = "disconnected"
		status = http.StatusServiceUnavailable
	}

	if h.nats != nil {
		response["nats"] = "connected"
		if !h.nats.IsConnected() {
			response["status"] = "not_ready"
			response["nats"] = "disconnected"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, response)
}
