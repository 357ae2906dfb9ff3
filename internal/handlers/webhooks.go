package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jam3a-shop/api/internal/payments"
	"github.com/jam3a-shop/api/internal/platform/httpx"
	"github.com/jam3a-shop/api/internal/services"
)

const (
	maxWebhookBodySize     = 256 * 1024
	moyasarSignatureHeader = "X-Moyasar-Signature"
)

// WebhookHandlers receives payment gateway callbacks and applies the reported
// status to the owning session.
type WebhookHandlers struct {
	sessions      services.SessionService
	moyasarSecret []byte
	logger        services.EventLogger
}

// NewWebhookHandlers constructs a new WebhookHandlers instance. The secret is
// the shared HMAC key configured in the Moyasar dashboard.
func NewWebhookHandlers(sessions services.SessionService, moyasarSecret string, logger services.EventLogger) *WebhookHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &WebhookHandlers{
		sessions:      sessions,
		moyasarSecret: []byte(strings.TrimSpace(moyasarSecret)),
		logger:        logger,
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/moyasar", h.moyasarEvent)
}

// moyasarEvent mirrors the payload Moyasar posts for payment lifecycle events.
type moyasarEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

func (h *WebhookHandlers) moyasarEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	if !h.verifySignature(body, r.Header.Get(moyasarSignatureHeader)) {
		h.logger(ctx, "webhook.moyasar.rejected", map[string]any{"reason": "bad signature"})
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusUnauthorized))
		return
	}

	var event moyasarEvent
	if err := json.Unmarshal(body, &event); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	transactionID := strings.TrimSpace(event.Data.ID)
	if transactionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "event carries no payment id", http.StatusBadRequest))
		return
	}

	err = h.sessions.RecordPaymentUpdate(ctx, services.PaymentUpdateCommand{
		TransactionID: transactionID,
		Status:        string(moyasarEventStatus(event)),
	})
	if err != nil {
		// Unknown payments are acknowledged so the gateway stops retrying;
		// they belong to checkouts that never became sessions.
		if errors.Is(err, services.ErrPaymentUnknown) || errors.Is(err, services.ErrSessionNotFound) {
			h.logger(ctx, "webhook.moyasar.unmatched", map[string]any{
				"eventId":       event.ID,
				"transactionId": transactionID,
			})
			w.WriteHeader(http.StatusOK)
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to apply payment update", http.StatusInternalServerError))
		return
	}

	h.logger(ctx, "webhook.moyasar.applied", map[string]any{
		"eventId":       event.ID,
		"transactionId": transactionID,
		"type":          event.Type,
	})
	w.WriteHeader(http.StatusOK)
}

// verifySignature checks the hex HMAC-SHA256 of the raw body against the
// shared secret. An empty configured secret rejects everything.
func (h *WebhookHandlers) verifySignature(body []byte, header string) bool {
	if len(h.moyasarSecret) == 0 {
		return false
	}
	signature := strings.TrimSpace(header)
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.moyasarSecret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func moyasarEventStatus(event moyasarEvent) payments.Status {
	status := strings.ToLower(strings.TrimSpace(event.Data.Status))
	if status == "" {
		// Older event formats carry the status only in the type field.
		status = strings.TrimPrefix(strings.ToLower(event.Type), "payment_")
	}
	switch status {
	case "paid", "captured":
		return payments.StatusSucceeded
	case "authorized":
		return payments.StatusAuthorized
	case "failed", "voided":
		return payments.StatusFailed
	case "refunded":
		return payments.StatusRefunded
	default:
		return payments.StatusPending
	}
}
