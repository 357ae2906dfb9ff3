package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMoyasarCreateCheckout(t *testing.T) {
	var gotPath, gotAuth, gotIdem string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":         "inv_123",
			"status":     "initiated",
			"url":        "https://pay.moyasar.test/inv_123",
			"amount":     4599,
			"currency":   "SAR",
			"expired_at": "2025-03-01T12:30:00Z",
		})
	}))
	defer server.Close()

	provider, err := NewMoyasarProvider(MoyasarProviderConfig{
		APIKey:  "sk_test_abc",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("NewMoyasarProvider returned error: %v", err)
	}

	checkout, err := provider.CreateCheckout(context.Background(), CheckoutRequest{
		Amount:         4599,
		Currency:       "SAR",
		Description:    "Ceramic dinner set",
		SuccessURL:     "https://jam3a.example/return",
		CancelURL:      "https://jam3a.example/cancel",
		IdempotencyKey: "join-sess-1-user-9",
		Metadata:       map[string]string{"sessionId": "sess-1"},
	})
	if err != nil {
		t.Fatalf("CreateCheckout returned error: %v", err)
	}

	if gotPath != "/invoices" {
		t.Fatalf("expected POST /invoices, got path %q", gotPath)
	}
	if gotAuth == "" {
		t.Fatal("expected basic auth header to be set")
	}
	if gotIdem != "join-sess-1-user-9" {
		t.Fatalf("expected idempotency key header, got %q", gotIdem)
	}
	if amount, ok := gotBody["amount"].(float64); !ok || int64(amount) != 4599 {
		t.Fatalf("expected invoice amount 4599, got %v", gotBody["amount"])
	}
	if checkout.ID != "inv_123" {
		t.Fatalf("expected checkout id inv_123, got %q", checkout.ID)
	}
	if checkout.Provider != "moyasar" {
		t.Fatalf("expected provider moyasar, got %q", checkout.Provider)
	}
	if checkout.RedirectURL != "https://pay.moyasar.test/inv_123" {
		t.Fatalf("unexpected redirect url %q", checkout.RedirectURL)
	}
	want := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	if !checkout.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, checkout.ExpiresAt)
	}
}

func TestMoyasarLookupPaymentMapsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/pay_7" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":         "pay_7",
			"status":     "authorized",
			"amount":     4199,
			"currency":   "SAR",
			"updated_at": "2025-03-01T10:00:00Z",
		})
	}))
	defer server.Close()

	provider, err := NewMoyasarProvider(MoyasarProviderConfig{APIKey: "sk_test_abc", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewMoyasarProvider returned error: %v", err)
	}

	details, err := provider.LookupPayment(context.Background(), LookupRequest{IntentID: "pay_7"})
	if err != nil {
		t.Fatalf("LookupPayment returned error: %v", err)
	}
	if details.Status != StatusAuthorized {
		t.Fatalf("expected StatusAuthorized, got %q", details.Status)
	}
	if details.Captured {
		t.Fatal("authorized payment must not be marked captured")
	}
	if details.Amount != 4199 || details.Currency != "SAR" {
		t.Fatalf("unexpected payment details %+v", details)
	}
}

func TestMoyasarSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"type":    "invalid_request_error",
			"message": "amount must be a positive integer",
		})
	}))
	defer server.Close()

	provider, err := NewMoyasarProvider(MoyasarProviderConfig{APIKey: "sk_test_abc", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewMoyasarProvider returned error: %v", err)
	}

	_, err = provider.CreateCheckout(context.Background(), CheckoutRequest{Amount: -1, Currency: "SAR"})
	if err == nil {
		t.Fatal("expected error for rejected invoice")
	}
}
