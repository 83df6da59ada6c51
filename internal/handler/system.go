package handler

import (
	"context"
	"net/http"
	"time"
)

// Check pings one dependency.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
	// Degraded marks the check as slow above this latency.
	Degraded time.Duration
}

type SystemHandler struct {
	checks    []Check
	logger    Logger
	startTime time.Time
}

func NewSystemHandler(log Logger, checks ...Check) *SystemHandler {
	return &SystemHandler{checks: checks, logger: log, startTime: time.Now()}
}

type ServiceStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // operational, degraded, outage
	LatencyMs int64  `json:"latency_ms"`
}

type readinessResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Services      []ServiceStatus `json:"services"`
}

// Health reports liveness only.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready pings every dependency and fails with 503 if any is down.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := readinessResponse{
		Status:        "ready",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Services:      make([]ServiceStatus, 0, len(h.checks)),
	}
	code := http.StatusOK
	for _, c := range h.checks {
		start := time.Now()
		err := c.Ping(ctx)
		latency := time.Since(start)

		status := "operational"
		switch {
		case err != nil:
			status = "outage"
			resp.Status = "not_ready"
			code = http.StatusServiceUnavailable
			h.logger.Error("Readiness check failed", map[string]interface{}{"check": c.Name, "error": err.Error()})
		case c.Degraded > 0 && latency > c.Degraded:
			status = "degraded"
		}
		resp.Services = append(resp.Services, ServiceStatus{
			Name:      c.Name,
			Status:    status,
			LatencyMs: latency.Milliseconds(),
		})
	}
	respondJSON(w, code, resp)
}
