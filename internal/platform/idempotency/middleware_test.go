package idempotency

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jam3a-shop/api/internal/platform/auth"
)

func fixedClock(t time.Time) clockFunc {
	return func() time.Time { return t }
}

func TestMiddlewareReplaysCompletedResponse(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

	var calls int32
	handler := Middleware(store, WithClock(fixedClock(now)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sessionId":"sess-1"}`))
	}))

	makeRequest := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/group-sessions/wizard/confirm", strings.NewReader(`{"draft":"d-1"}`))
		req.Header.Set("Idempotency-Key", "key-1")
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	first := makeRequest()
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}
	if first.Header().Get("X-Idempotent-Replay") != "" {
		t.Fatalf("first response should not be a replay")
	}

	second := makeRequest()
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatalf("expected replay marker on second response")
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("expected identical replayed body, got %q vs %q", second.Body.String(), first.Body.String())
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected handler to run once, ran %d times", got)
	}
}

func TestMiddlewareRejectsMissingKey(t *testing.T) {
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run without a key")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/group-sessions/wizard/confirm", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestMiddlewareConflictsOnReusedKeyWithDifferentBody(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

	handler := Middleware(store, WithClock(fixedClock(now)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/group-sessions/wizard/confirm", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "key-reuse")
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := send(`{"draft":"d-1"}`); rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if rr := send(`{"draft":"d-other"}`); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for fingerprint mismatch, got %d", rr.Code)
	}
}

func TestMiddlewareScopesKeysPerUser(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

	var calls int32
	handler := Middleware(store, WithClock(fixedClock(now)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(uid string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/group-sessions/wizard/confirm", strings.NewReader(`{"draft":"d-1"}`))
		req.Header.Set("Idempotency-Key", "shared-key")
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := send("user-1"); rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for first user, got %d", rr.Code)
	}
	if rr := send("user-2"); rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for second user, got %d", rr.Code)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected both users to reach the handler, got %d calls", got)
	}
}

func TestMiddlewareIgnoresNonMutatingMethods(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/group-sessions", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected GET to bypass idempotency, got %d", rr.Code)
	}
}
