package http

import (
	"encoding/json"
	"net/http"
	"time"

	"gateway/internal/health"
	"gateway/internal/snapshot"
)

// SnapshotSource returns the routing snapshot currently live in the Proxy
// Engine, or nil before the first Config Aggregator pass completes.
type SnapshotSource func() *snapshot.Snapshot

// HealthHandler serves the gateway's own liveness/readiness/health
// endpoints, grounded on the teacher's internal/health.Handler - rebuilt
// against the Health Controller's per-backend records instead of a
// registered-Check framework, since this gateway has one thing to report on:
// whether its backends are reachable.
type HealthHandler struct {
	controller *health.Controller
	snapshot   SnapshotSource
}

// NewHealthHandler builds a HealthHandler reporting on controller's Health
// Records for whatever snapshot source currently publishes.
func NewHealthHandler(controller *health.Controller, source SnapshotSource) *HealthHandler {
	return &HealthHandler{controller: controller, snapshot: source}
}

type serviceHealth struct {
	Healthy int `json:"healthy"`
	Total   int `json:"total"`
}

type healthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]serviceHealth `json:"services,omitempty"`
}

// Health reports per-service backend health, derived from the live
// snapshot's Health Controller annotations. Unhealthy (every backend
// quarantined) maps to 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshot()

	status := "healthy"
	services := make(map[string]serviceHealth)
	if snap != nil {
		for name, svc := range snap.Services {
			annotated := h.controller.Annotate(svc)
			sh := serviceHealth{Total: len(annotated.Backends)}
			for _, b := range annotated.Backends {
				if b.Health == snapshot.HealthHealthy {
					sh.Healthy++
				}
			}
			if sh.Healthy == 0 && sh.Total > 0 {
				status = "unhealthy"
			}
			services[name] = sh
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, healthResponse{Status: status, Timestamp: time.Now(), Services: services})
}

// Ready reports whether the Config Aggregator has published at least one
// snapshot; the gateway can't usefully route requests before that.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ready := h.snapshot() != nil

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{"ready": ready, "timestamp": time.Now()})
}

// Live always reports ok: it only confirms the process is running and able
// to serve HTTP, the way a Kubernetes liveness probe expects.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now()})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
