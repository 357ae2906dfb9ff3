package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/jam3a-shop/api/internal/domain"
	"github.com/jam3a-shop/api/internal/platform/auth"
	"github.com/jam3a-shop/api/internal/platform/httpx"
	"github.com/jam3a-shop/api/internal/services"
)

const maxWizardBodySize = 8 * 1024

// WizardHandlers drives the four step session creation flow. Every endpoint
// operates on the caller's own draft.
type WizardHandlers struct {
	authn  *auth.Authenticator
	wizard services.WizardService

	confirmMiddleware func(http.Handler) http.Handler
}

// WizardHandlersOption customises handler construction.
type WizardHandlersOption func(*WizardHandlers)

// WithConfirmMiddleware wraps the confirm endpoint, typically with the
// idempotency middleware.
func WithConfirmMiddleware(mw func(http.Handler) http.Handler) WizardHandlersOption {
	return func(h *WizardHandlers) {
		h.confirmMiddleware = mw
	}
}

// NewWizardHandlers constructs a new WizardHandlers instance.
func NewWizardHandlers(authn *auth.Authenticator, wizard services.WizardService, opts ...WizardHandlersOption) *WizardHandlers {
	h := &WizardHandlers{
		authn:  authn,
		wizard: wizard,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /wizard endpoints.
func (h *WizardHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getDraft)
	r.Put("/category", h.selectCategory)
	r.Put("/product", h.selectProduct)
	r.Put("/options", h.setOptions)
	if h.confirmMiddleware != nil {
		r.With(h.confirmMiddleware).Post("/confirm", h.confirm)
	} else {
		r.Post("/confirm", h.confirm)
	}
}

func (h *WizardHandlers) getDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	view, err := h.wizard.GetDraft(ctx, identity.UID)
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDraftPayload(view, requestLocale(r)))
}

type selectCategoryRequest struct {
	CategoryID string `json:"category_id"`
}

func (h *WizardHandlers) selectCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	var req selectCategoryRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	view, err := h.wizard.SelectCategory(ctx, identity.UID, req.CategoryID)
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDraftPayload(view, requestLocale(r)))
}

type selectProductRequest struct {
	ProductID string `json:"product_id"`
}

func (h *WizardHandlers) selectProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	var req selectProductRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	view, err := h.wizard.SelectProduct(ctx, identity.UID, req.ProductID)
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDraftPayload(view, requestLocale(r)))
}

type setOptionsRequest struct {
	TargetSize    int    `json:"target_size"`
	DurationHours int    `json:"duration_hours"`
	Visibility    string `json:"visibility"`
	PaymentMode   string `json:"payment_mode"`
}

func (h *WizardHandlers) setOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	var req setOptionsRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	view, err := h.wizard.SetOptions(ctx, services.DraftOptionsCommand{
		UserID:      identity.UID,
		TargetSize:  req.TargetSize,
		Duration:    time.Duration(req.DurationHours) * time.Hour,
		Visibility:  domain.Visibility(strings.TrimSpace(req.Visibility)),
		PaymentMode: domain.PaymentMode(strings.TrimSpace(req.PaymentMode)),
	})
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDraftPayload(view, requestLocale(r)))
}

type confirmRequest struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

func (h *WizardHandlers) confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	var req confirmRequest
	if body, err := readLimitedBody(r, maxWizardBodySize); err == nil {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
			return
		}
	} else if !errors.Is(err, errEmptyBody) {
		writeBodyError(w, r, err)
		return
	}

	locale := requestLocale(r)
	result, err := h.wizard.Confirm(ctx, services.ConfirmDraftCommand{
		UserID:         identity.UID,
		Locale:         locale,
		SuccessURL:     strings.TrimSpace(req.SuccessURL),
		CancelURL:      strings.TrimSpace(req.CancelURL),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}

	payload := map[string]any{"session": buildSessionPayload(result.Session, locale)}
	if result.CheckoutURL != "" {
		payload["checkout_url"] = result.CheckoutURL
	}
	writeJSONResponse(w, http.StatusCreated, payload)
}

func (h *WizardHandlers) requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	ctx := r.Context()
	if h.wizard == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wizard_service_unavailable", "wizard service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *WizardHandlers) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxWizardBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

type draftPayload struct {
	Step        string        `json:"step"`
	CategoryID  string        `json:"category_id,omitempty"`
	ProductID   string        `json:"product_id,omitempty"`
	TargetSize  int           `json:"target_size,omitempty"`
	DurationHrs int           `json:"duration_hours,omitempty"`
	Visibility  string        `json:"visibility,omitempty"`
	PaymentMode string        `json:"payment_mode,omitempty"`
	Sizes       []tierPayload `json:"offered_sizes,omitempty"`
	UpdatedAt   string        `json:"updated_at,omitempty"`
}

func buildDraftPayload(view services.DraftView, locale language.Tag) draftPayload {
	draft := view.Draft
	return draftPayload{
		Step:        string(view.Step),
		CategoryID:  draft.CategoryID,
		ProductID:   draft.ProductID,
		TargetSize:  draft.TargetSize,
		DurationHrs: int(draft.Duration / time.Hour),
		Visibility:  string(draft.Visibility),
		PaymentMode: string(draft.PaymentMode),
		Sizes:       buildTierPreviews(view.OfferedSizes, locale),
		UpdatedAt:   formatTime(draft.UpdatedAt),
	}
}

func writeWizardError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrWizardInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrWizardInvalidStep):
		httpx.WriteError(ctx, w, httpx.NewError("wizard_step_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrDraftIncomplete):
		httpx.WriteError(ctx, w, httpx.NewError("draft_incomplete", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment authorization was refused", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrSessionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("wizard_error", "failed to process wizard request", http.StatusInternalServerError))
	}
}
