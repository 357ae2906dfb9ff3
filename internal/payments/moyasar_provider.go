package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jam3a-shop/api/internal/platform/textutil"
)

const (
	defaultMoyasarBaseURL = "https://api.moyasar.com/v1"
	defaultMoyasarTimeout = 15 * time.Second
	invoiceValidity       = 30 * time.Minute
)

// MoyasarLogger defines the logging contract for Moyasar provider operations.
type MoyasarLogger func(ctx context.Context, event string, fields map[string]any)

// MoyasarProviderConfig configures the MoyasarProvider.
type MoyasarProviderConfig struct {
	// APIKey is the secret key used for HTTP basic authentication.
	APIKey  string
	BaseURL string
	Client  *http.Client
	Logger  MoyasarLogger
	Clock   func() time.Time
}

// MoyasarProvider implements the Provider interface against the Moyasar REST API.
// Moyasar has no official Go SDK, so requests are issued directly.
type MoyasarProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     MoyasarLogger
	clock      func() time.Time
}

// NewMoyasarProvider constructs a Moyasar Provider using the given configuration.
func NewMoyasarProvider(cfg MoyasarProviderConfig) (*MoyasarProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("moyasar: api key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultMoyasarBaseURL
	}

	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultMoyasarTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &MoyasarProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

type moyasarInvoiceRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	SuccessURL  string            `json:"success_url,omitempty"`
	BackURL     string            `json:"back_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type moyasarInvoice struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	URL       string `json:"url"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	ExpiredAt string `json:"expired_at"`
}

type moyasarPayment struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Captured  int64  `json:"captured"`
	Refunded  int64  `json:"refunded"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type moyasarError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CreateCheckout creates a Moyasar hosted invoice for the requested amount.
func (p *MoyasarProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if p == nil {
		return Checkout{}, errors.New("moyasar: provider is nil")
	}

	payload := moyasarInvoiceRequest{
		Amount:      req.Amount,
		Currency:    strings.ToUpper(req.Currency),
		Description: req.Description,
		SuccessURL:  req.SuccessURL,
		BackURL:     req.CancelURL,
	}
	payload.Metadata = textutil.NormalizeStringMap(req.Metadata)

	var invoice moyasarInvoice
	if err := p.do(ctx, http.MethodPost, "/invoices", req.IdempotencyKey, payload, &invoice); err != nil {
		return Checkout{}, fmt.Errorf("moyasar: create invoice: %w", err)
	}

	p.logger(ctx, "payments.moyasar.invoice.created", map[string]any{
		"invoiceId": invoice.ID,
		"currency":  invoice.Currency,
	})

	expiresAt := p.clock().Add(invoiceValidity)
	if invoice.ExpiredAt != "" {
		if parsed, err := time.Parse(time.RFC3339, invoice.ExpiredAt); err == nil {
			expiresAt = parsed.UTC()
		}
	}

	return Checkout{
		ID:          invoice.ID,
		Provider:    "moyasar",
		RedirectURL: invoice.URL,
		IntentID:    invoice.ID,
		ExpiresAt:   expiresAt,
	}, nil
}

// Capture captures a previously authorized Moyasar payment.
func (p *MoyasarProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("moyasar: provider is nil")
	}

	var body any
	if req.Amount != nil {
		body = map[string]int64{"amount": *req.Amount}
	}

	var payment moyasarPayment
	path := fmt.Sprintf("/payments/%s/capture", req.IntentID)
	if err := p.do(ctx, http.MethodPost, path, req.IdempotencyKey, body, &payment); err != nil {
		return PaymentDetails{}, fmt.Errorf("moyasar: capture payment: %w", err)
	}

	p.logger(ctx, "payments.moyasar.payment.captured", map[string]any{
		"paymentId": payment.ID,
		"status":    payment.Status,
	})
	return moyasarPaymentDetails(payment), nil
}

// Refund refunds a Moyasar payment, optionally for a partial amount.
func (p *MoyasarProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("moyasar: provider is nil")
	}

	var body any
	if req.Amount != nil {
		body = map[string]int64{"amount": *req.Amount}
	}

	var payment moyasarPayment
	path := fmt.Sprintf("/payments/%s/refund", req.IntentID)
	if err := p.do(ctx, http.MethodPost, path, req.IdempotencyKey, body, &payment); err != nil {
		return PaymentDetails{}, fmt.Errorf("moyasar: refund payment: %w", err)
	}

	p.logger(ctx, "payments.moyasar.payment.refunded", map[string]any{
		"paymentId": payment.ID,
	})
	return moyasarPaymentDetails(payment), nil
}

// LookupPayment retrieves the current Moyasar payment state.
func (p *MoyasarProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("moyasar: provider is nil")
	}

	var payment moyasarPayment
	path := fmt.Sprintf("/payments/%s", req.IntentID)
	if err := p.do(ctx, http.MethodGet, path, "", nil, &payment); err != nil {
		return PaymentDetails{}, fmt.Errorf("moyasar: lookup payment: %w", err)
	}
	return moyasarPaymentDetails(payment), nil
}

func (p *MoyasarProvider) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.apiKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr moyasarError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func moyasarPaymentDetails(payment moyasarPayment) PaymentDetails {
	status := StatusPending
	captured := false

	switch strings.ToLower(payment.Status) {
	case "paid", "captured":
		status = StatusSucceeded
		captured = true
	case "authorized":
		status = StatusAuthorized
	case "refunded", "voided":
		status = StatusRefunded
	case "failed":
		status = StatusFailed
	}

	var capturedAt *time.Time
	var refundedAt *time.Time
	if payment.UpdatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, payment.UpdatedAt); err == nil {
			t := parsed.UTC()
			if captured {
				capturedAt = &t
			}
			if status == StatusRefunded {
				refundedAt = &t
			}
		}
	}

	return PaymentDetails{
		Provider:   "moyasar",
		IntentID:   payment.ID,
		Status:     status,
		Amount:     payment.Amount,
		Currency:   strings.ToUpper(payment.Currency),
		Captured:   captured,
		CapturedAt: capturedAt,
		RefundedAt: refundedAt,
	}
}
