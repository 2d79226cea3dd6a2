package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is anything that can report reachability, such as the store
// or the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DependencyStatus reports one dependency's health probe result.
type DependencyStatus struct {
	Status    string `json:"status" example:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// HealthResponse represents the health check response. Status is
// "degraded" when the cache is down but the store is up, since the
// service still serves from the store alone.
type HealthResponse struct {
	Status       string                      `json:"status" example:"ok"`
	Timestamp    string                      `json:"timestamp" example:"2024-01-15T10:30:00Z"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// HealthHandler handles health and metrics endpoints
type HealthHandler struct {
	store Pinger
	cache Pinger
}

// NewHealthHandler creates a new health handler. cache may be nil when
// caching is disabled.
func NewHealthHandler(store, cache Pinger) *HealthHandler {
	return &HealthHandler{store: store, cache: cache}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:       "ok",
		Timestamp:    time.Now().Format(time.RFC3339),
		Dependencies: map[string]DependencyStatus{},
	}
	status := http.StatusOK

	if h.store != nil {
		dep := probe(ctx, h.store)
		resp.Dependencies["store"] = dep
		if dep.Status != "ok" {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	if h.cache != nil {
		dep := probe(ctx, h.cache)
		resp.Dependencies["cache"] = dep
		if dep.Status != "ok" && resp.Status == "ok" {
			resp.Status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func probe(ctx context.Context, p Pinger) DependencyStatus {
	start := time.Now()
	err := p.Ping(ctx)
	dep := DependencyStatus{
		Status:    "ok",
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		dep.Status = "down"
		dep.Error = err.Error()
	}
	return dep
}

// Metrics returns Prometheus metrics
func (h *HealthHandler) Metrics() http.Handler {
	return promhttp.Handler()
}
