package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"gapsentry/internal/workers"
	"gapsentry/pkg/logger"
)

// Check probes one dependency
type Check func(ctx context.Context) error

// WorkerHealthSource reports background worker health
type WorkerHealthSource interface {
	Health() map[string]workers.WorkerHealth
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	checks      map[string]Check
	workers     WorkerHealthSource
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a health handler. checks maps a component name to its probe.
func New(serviceName, version string, checks map[string]Check, workers WorkerHealthSource) *Handler {
	if checks == nil {
		checks = map[string]Check{}
	}
	return &Handler{
		log:         logger.Get().With("component", "health"),
		checks:      checks,
		workers:     workers,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                          `json:"status"` // healthy, degraded, unhealthy
	Service   string                          `json:"service"`
	Version   string                          `json:"version"`
	Uptime    string                          `json:"uptime"`
	Timestamp string                          `json:"timestamp"`
	Checks    map[string]ComponentHealth      `json:"checks"`
	Workers   map[string]workers.WorkerHealth `json:"workers,omitempty"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HandleLiveness returns 200 while the process runs
func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness returns 503 unless every dependency answers
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, healthy := h.collect(ctx)
	code := http.StatusOK
	if healthy < len(status.Checks) {
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
		h.log.Warnw("Readiness check failed", "checks", status.Checks)
	}
	writeJSON(w, code, status)
}

// HandleHealth returns the detailed view. Partial failure is degraded, not down.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status, healthy := h.collect(ctx)
	if h.workers != nil {
		status.Workers = h.workers.Health()
	}

	code := http.StatusOK
	switch {
	case len(status.Checks) > 0 && healthy == 0:
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case healthy < len(status.Checks):
		status.Status = "degraded"
	}
	writeJSON(w, code, status)
}

func (h *Handler) collect(ctx context.Context) (HealthStatus, int) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Truncate(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]ComponentHealth, len(names)),
	}

	healthy := 0
	for _, name := range names {
		start := time.Now()
		err := h.checks[name](ctx)
		ch := ComponentHealth{Status: "healthy", ResponseTime: time.Since(start).String()}
		if err != nil {
			ch.Status = "unhealthy"
			ch.Error = err.Error()
			h.log.Warnw("Health check failed", "component", name, "error", err)
		} else {
			healthy++
		}
		status.Checks[name] = ch
	}
	return status, healthy
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
