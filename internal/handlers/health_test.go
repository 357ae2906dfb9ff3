package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jam3a-shop/api/internal/domain"
)

func TestHealthzReportsUptime(t *testing.T) {
	h := NewHealthHandlers(nil, func() time.Time { return handlerTestNow })

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", payload["status"])
	}
}

func TestReadyzDegradedStaysAvailable(t *testing.T) {
	system := &stubSystemService{
		report: domain.SystemHealthReport{
			Status: domain.HealthStatusDegraded,
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK, Latency: 5 * time.Millisecond},
				"pubsub":    {Status: domain.HealthStatusDegraded, Error: "topic missing"},
			},
			GeneratedAt: handlerTestNow,
		},
	}
	h := NewHealthHandlers(system, func() time.Time { return handlerTestNow })

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("degraded must still answer 200, got %d", rr.Code)
	}
	var payload struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "degraded" {
		t.Fatalf("expected degraded, got %q", payload.Status)
	}
	if payload.Checks["pubsub"]["error"] != "topic missing" {
		t.Fatalf("expected check error surfaced, got %+v", payload.Checks["pubsub"])
	}
}

func TestReadyzErrorUnavailable(t *testing.T) {
	system := &stubSystemService{
		report: domain.SystemHealthReport{Status: domain.HealthStatusError, GeneratedAt: handlerTestNow},
	}
	h := NewHealthHandlers(system, func() time.Time { return handlerTestNow })

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestReadyzCollectionFailure(t *testing.T) {
	system := &stubSystemService{err: errors.New("probe panic")}
	h := NewHealthHandlers(system, func() time.Time { return handlerTestNow })

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
