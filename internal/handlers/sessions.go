package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jam3a-shop/api/internal/platform/auth"
	"github.com/jam3a-shop/api/internal/platform/httpx"
	"github.com/jam3a-shop/api/internal/services"
)

const (
	defaultSessionPageSize = 20
	maxSessionPageSize     = 50
	maxJoinBodySize        = 4 * 1024
)

// SessionHandlers exposes group session discovery, joining, and cancellation.
type SessionHandlers struct {
	authn     *auth.Authenticator
	sessions  services.SessionService
	admission services.AdmissionService

	joinLimiter    rateLimiter
	joinMiddleware func(http.Handler) http.Handler
}

// SessionHandlersOption customises handler construction.
type SessionHandlersOption func(*SessionHandlers)

// WithJoinRateLimiter throttles join attempts per authenticated user.
func WithJoinRateLimiter(limiter rateLimiter) SessionHandlersOption {
	return func(h *SessionHandlers) {
		h.joinLimiter = limiter
	}
}

// WithJoinRateLimit throttles join attempts to limit per window per user.
func WithJoinRateLimit(limit int, window time.Duration) SessionHandlersOption {
	return WithJoinRateLimiter(newFixedWindowLimiter(limit, window, nil))
}

// WithJoinMiddleware wraps the join endpoint, typically with the idempotency
// middleware.
func WithJoinMiddleware(mw func(http.Handler) http.Handler) SessionHandlersOption {
	return func(h *SessionHandlers) {
		h.joinMiddleware = mw
	}
}

// NewSessionHandlers constructs a new SessionHandlers instance.
func NewSessionHandlers(authn *auth.Authenticator, sessions services.SessionService, admission services.AdmissionService, opts ...SessionHandlersOption) *SessionHandlers {
	h := &SessionHandlers{
		authn:     authn,
		sessions:  sessions,
		admission: admission,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /sessions endpoints. Reads are public; join and cancel
// require an authenticated caller.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listSessions)
	r.Get("/{sessionId}", h.getSession)

	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireFirebaseAuth())
		}
		if h.joinMiddleware != nil {
			protected.With(h.joinMiddleware).Post("/{sessionId}/join", h.joinSession)
		} else {
			protected.Post("/{sessionId}/join", h.joinSession)
		}
		protected.Post("/{sessionId}/cancel", h.cancelSession)
	})
}

func (h *SessionHandlers) listSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service unavailable", http.StatusServiceUnavailable))
		return
	}

	page, err := h.sessions.ListPublicSessions(ctx, parsePageQuery(r, defaultSessionPageSize, maxSessionPageSize))
	if err != nil {
		writeSessionError(ctx, w, err)
		return
	}

	locale := requestLocale(r)
	items := make([]sessionPayload, 0, len(page.Items))
	for _, view := range page.Items {
		items = append(items, buildSessionPayload(view, locale))
	}
	payload := map[string]any{"sessions": items}
	if page.NextPageToken != "" {
		payload["next_page_token"] = page.NextPageToken
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *SessionHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service unavailable", http.StatusServiceUnavailable))
		return
	}

	view, err := h.sessions.GetSession(ctx, chi.URLParam(r, "sessionId"))
	if err != nil {
		writeSessionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"session": buildSessionPayload(view, requestLocale(r))})
}

type joinSessionRequest struct {
	PaymentID string `json:"payment_id"`
}

func (h *SessionHandlers) joinSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admission == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "admission service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	if h.joinLimiter != nil {
		if allowed, retryAfter := h.joinLimiter.Allow(identity.UID); !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retryAfter.Seconds()))))
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many join attempts", http.StatusTooManyRequests))
			return
		}
	}

	var req joinSessionRequest
	if body, err := readLimitedBody(r, maxJoinBodySize); err == nil {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
			return
		}
	} else if !errors.Is(err, errEmptyBody) {
		writeBodyError(w, r, err)
		return
	}

	result, err := h.admission.Join(ctx, services.JoinCommand{
		SessionID: chi.URLParam(r, "sessionId"),
		UserID:    identity.UID,
		PaymentID: strings.TrimSpace(req.PaymentID),
	})
	if err != nil {
		writeSessionError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"session":        buildSessionPayload(result.Session, requestLocale(r)),
		"just_completed": result.JustCompleted,
	})
}

func (h *SessionHandlers) cancelSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	view, err := h.sessions.CancelSession(ctx, services.CancelSessionCommand{
		SessionID: chi.URLParam(r, "sessionId"),
		ActorID:   identity.UID,
	})
	if err != nil {
		writeSessionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"session": buildSessionPayload(view, requestLocale(r))})
}

func writeSessionError(ctx context.Context, w http.ResponseWriter, err error) {
	var notOpen *services.SessionNotOpenError
	switch {
	case errors.Is(err, services.ErrSessionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "session not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDuplicateParticipant):
		httpx.WriteError(ctx, w, httpx.NewError("already_joined", "user already joined this session", http.StatusConflict))
	case errors.As(err, &notOpen):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_open", notOpen.Error(), http.StatusConflict).
			WithDetails(map[string]any{"reason": string(notOpen.Reason)}))
	case errors.Is(err, services.ErrCancelForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the creator may cancel this session", http.StatusForbidden))
	case errors.Is(err, services.ErrSessionNotCancellable):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_cancellable", "session is no longer forming", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentUnknown):
		httpx.WriteError(ctx, w, httpx.NewError("payment_unknown", "no payment matches this transaction", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("session_error", "failed to process session request", http.StatusInternalServerError))
	}
}
