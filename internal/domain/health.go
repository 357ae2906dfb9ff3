package domain

import "time"

// HealthStatus classifies the outcome of a dependency probe.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// SystemHealthCheck is the result of probing a single dependency.
type SystemHealthCheck struct {
	Status    HealthStatus  `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// SystemHealthReport aggregates dependency checks for readiness probes.
type SystemHealthReport struct {
	Status      HealthStatus                 `json:"status"`
	Checks      map[string]SystemHealthCheck `json:"checks"`
	GeneratedAt time.Time                    `json:"generatedAt"`
}
