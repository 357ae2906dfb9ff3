package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jam3a-shop/api/internal/domain"
	"github.com/jam3a-shop/api/internal/platform/auth"
	"github.com/jam3a-shop/api/internal/services"
)

func mountSessionHandlers(h *SessionHandlers, identity *auth.Identity) http.Handler {
	r := chi.NewRouter()
	if identity != nil {
		r.Use(identityMiddleware(identity))
	}
	h.Routes(r)
	return r
}

func TestListSessionsResolvesLocale(t *testing.T) {
	sessions := &stubSessionService{
		page: domain.CursorPage[services.SessionView]{Items: []services.SessionView{sampleSessionView()}},
	}
	handler := mountSessionHandlers(NewSessionHandlers(nil, sessions, nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/?lang=en", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload struct {
		Sessions []sessionPayload `json:"sessions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(payload.Sessions))
	}
	got := payload.Sessions[0]
	if got.Product.Name != "Dinner set" {
		t.Fatalf("expected English product name, got %q", got.Product.Name)
	}
	if got.Headcount != 2 || got.SlotsRemaining != 3 {
		t.Fatalf("unexpected counts: headcount %d, slots %d", got.Headcount, got.SlotsRemaining)
	}
	if got.Tiers[0].SavingsLabel != "Save 4%" {
		t.Fatalf("expected resolved savings label, got %q", got.Tiers[0].SavingsLabel)
	}
}

func TestGetSessionArabicDefault(t *testing.T) {
	sessions := &stubSessionService{view: sessionViewResult{View: sampleSessionView()}}
	handler := mountSessionHandlers(NewSessionHandlers(nil, sessions, nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/sess-1", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload struct {
		Session sessionPayload `json:"session"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Session.Product.Name != "طقم عشاء" {
		t.Fatalf("expected Arabic product name by default, got %q", payload.Session.Product.Name)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	sessions := &stubSessionService{view: sessionViewResult{Err: services.ErrSessionNotFound}}
	handler := mountSessionHandlers(NewSessionHandlers(nil, sessions, nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestJoinSessionRequiresIdentity(t *testing.T) {
	admission := &stubAdmissionService{}
	handler := mountSessionHandlers(NewSessionHandlers(nil, &stubSessionService{}, admission), nil)

	req := httptest.NewRequest(http.MethodPost, "/sess-1/join", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if admission.lastJoin != nil {
		t.Fatalf("admission must not be called without identity")
	}
}

func TestJoinSessionForwardsPayment(t *testing.T) {
	admission := &stubAdmissionService{
		result: services.JoinResult{Session: sampleSessionView(), JustCompleted: true},
	}
	identity := &auth.Identity{UID: "user-9"}
	handler := mountSessionHandlers(NewSessionHandlers(nil, &stubSessionService{}, admission), identity)

	req := httptest.NewRequest(http.MethodPost, "/sess-1/join", strings.NewReader(`{"payment_id":"pay_77"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if admission.lastJoin == nil {
		t.Fatalf("expected join to be invoked")
	}
	if admission.lastJoin.SessionID != "sess-1" || admission.lastJoin.UserID != "user-9" || admission.lastJoin.PaymentID != "pay_77" {
		t.Fatalf("unexpected join command: %+v", admission.lastJoin)
	}

	var payload struct {
		JustCompleted bool `json:"just_completed"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.JustCompleted {
		t.Fatalf("expected just_completed true")
	}
}

func TestJoinSessionClosedConflict(t *testing.T) {
	admission := &stubAdmissionService{
		err: &services.SessionNotOpenError{SessionID: "sess-1", Reason: services.ReasonExpired},
	}
	handler := mountSessionHandlers(NewSessionHandlers(nil, &stubSessionService{}, admission), &auth.Identity{UID: "user-9"})

	req := httptest.NewRequest(http.MethodPost, "/sess-1/join", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var payload struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error != "session_not_open" || payload.Reason != "expired" {
		t.Fatalf("unexpected error payload: %+v", payload)
	}
}

func TestJoinSessionDuplicateConflict(t *testing.T) {
	admission := &stubAdmissionService{err: services.ErrDuplicateParticipant}
	handler := mountSessionHandlers(NewSessionHandlers(nil, &stubSessionService{}, admission), &auth.Identity{UID: "user-9"})

	req := httptest.NewRequest(http.MethodPost, "/sess-1/join", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestJoinSessionRateLimited(t *testing.T) {
	admission := &stubAdmissionService{result: services.JoinResult{Session: sampleSessionView()}}
	limiter := newFixedWindowLimiter(2, time.Minute, func() time.Time { return handlerTestNow })
	handler := mountSessionHandlers(
		NewSessionHandlers(nil, &stubSessionService{}, admission, WithJoinRateLimiter(limiter)),
		&auth.Identity{UID: "user-9"},
	)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sess-1/join", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sess-1/join", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
	}
}

func TestCancelSessionForwardsActor(t *testing.T) {
	sessions := &stubSessionService{view: sessionViewResult{View: sampleSessionView()}}
	handler := mountSessionHandlers(NewSessionHandlers(nil, sessions, nil), &auth.Identity{UID: "creator"})

	req := httptest.NewRequest(http.MethodPost, "/sess-1/cancel", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if sessions.lastCancel == nil || sessions.lastCancel.ActorID != "creator" || sessions.lastCancel.AsAdmin {
		t.Fatalf("unexpected cancel command: %+v", sessions.lastCancel)
	}
}

func TestCancelSessionForbidden(t *testing.T) {
	sessions := &stubSessionService{view: sessionViewResult{Err: services.ErrCancelForbidden}}
	handler := mountSessionHandlers(NewSessionHandlers(nil, sessions, nil), &auth.Identity{UID: "intruder"})

	req := httptest.NewRequest(http.MethodPost, "/sess-1/cancel", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
