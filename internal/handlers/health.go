package handlers

import (
	"net/http"
	"time"

	"github.com/jam3a-shop/api/internal/domain"
	"github.com/jam3a-shop/api/internal/platform/httpx"
	"github.com/jam3a-shop/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	clock  func() time.Time
	start  time.Time
}

// NewHealthHandlers constructs probe handlers. The system service is optional;
// without it readiness degrades to the liveness response.
func NewHealthHandlers(system services.SystemService, clock func() time.Time) *HealthHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &HealthHandlers{
		system: system,
		clock:  clock,
		start:  clock().UTC(),
	}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.start).String(),
		"timestamp": now.Format(time.RFC3339),
	})
}

// Readyz probes the backing dependencies and reports per-check status.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("readiness_failed", "unable to collect dependency health", http.StatusServiceUnavailable))
		return
	}

	checks := make(map[string]map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":  string(check.Status),
			"latency": check.Latency.String(),
		}
		if check.Detail != "" {
			entry["detail"] = check.Detail
		}
		if check.Error != "" {
			entry["error"] = check.Error
		}
		checks[name] = entry
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, map[string]any{
		"status":    string(report.Status),
		"checks":    checks,
		"timestamp": report.GeneratedAt.UTC().Format(time.RFC3339),
	})
}
