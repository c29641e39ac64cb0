package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"voicebroker/pkg/logger"
)

// Check probes one dependency
type Check func(ctx context.Context) error

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	checks      map[string]Check
	critical    map[string]bool
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health check handler
func New(log *logger.Logger, serviceName, version string) *Handler {
	return &Handler{
		log:         log.With("component", "health"),
		checks:      make(map[string]Check),
		critical:    make(map[string]bool),
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// Register adds a dependency probe. Critical dependencies gate readiness.
func (h *Handler) Register(name string, check Check, critical bool) {
	h.checks[name] = check
	h.critical[name] = critical
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                     `json:"status"` // "healthy", "degraded", "unhealthy"
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HandleLiveness returns 200 OK if the process is serving
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness returns 503 while any critical dependency is down
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := h.runChecks(ctx)

	status := h.status(checks)
	code := http.StatusOK
	for name, c := range checks {
		if h.critical[name] && c.Status != "healthy" {
			status.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	if code != http.StatusOK {
		h.log.Warnw("Readiness check failed", "checks", checks)
	}

	writeJSON(w, code, status)
}

// HandleHealth returns every check. Degraded still answers 200.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := h.runChecks(ctx)
	status := h.status(checks)

	healthy := 0
	for _, c := range checks {
		if c.Status == "healthy" {
			healthy++
		}
	}

	code := http.StatusOK
	switch {
	case len(checks) > 0 && healthy == 0:
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case healthy < len(checks):
		status.Status = "degraded"
	}

	writeJSON(w, code, status)
}

func (h *Handler) status(checks map[string]ComponentHealth) HealthStatus {
	return HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
	}
}

func (h *Handler) runChecks(ctx context.Context) map[string]ComponentHealth {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]ComponentHealth, len(names))
	for _, name := range names {
		start := time.Now()
		err := h.checks[name](ctx)
		elapsed := time.Since(start)

		if err != nil {
			h.log.Errorw("Health check failed", "component", name, "error", err, "elapsed", elapsed)
			out[name] = ComponentHealth{Status: "unhealthy", ResponseTime: elapsed.String(), Error: err.Error()}
			continue
		}
		out[name] = ComponentHealth{Status: "healthy", ResponseTime: elapsed.String()}
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
