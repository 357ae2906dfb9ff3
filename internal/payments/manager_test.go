package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	name     string
	lastOp   string
	checkout Checkout
	details  PaymentDetails
	err      error
}

func (f *fakeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	f.lastOp = "checkout"
	if f.err != nil {
		return Checkout{}, f.err
	}
	out := f.checkout
	if out.ID == "" {
		out.ID = "chk_" + f.name
	}
	return out, nil
}

func (f *fakeProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	f.lastOp = "capture"
	return f.details, f.err
}

func (f *fakeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	f.lastOp = "refund"
	return f.details, f.err
}

func (f *fakeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	f.lastOp = "lookup"
	return f.details, f.err
}

func TestManagerPrefersExplicitProvider(t *testing.T) {
	moyasar := &fakeProvider{name: "moyasar"}
	stripeFake := &fakeProvider{name: "stripe"}
	manager, err := NewManager(map[string]Provider{
		"moyasar": moyasar,
		"stripe":  stripeFake,
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	checkout, err := manager.CreateCheckout(context.Background(), PaymentContext{PreferredProvider: "Stripe"}, CheckoutRequest{Amount: 4599, Currency: "SAR"})
	if err != nil {
		t.Fatalf("CreateCheckout returned error: %v", err)
	}
	if stripeFake.lastOp != "checkout" {
		t.Fatalf("expected stripe provider to handle checkout, got op %q", stripeFake.lastOp)
	}
	if checkout.Provider != "stripe" {
		t.Fatalf("expected checkout provider stripe, got %q", checkout.Provider)
	}
	if moyasar.lastOp != "" {
		t.Fatalf("moyasar provider should not be called, got op %q", moyasar.lastOp)
	}
}

func TestManagerRoutesByCurrency(t *testing.T) {
	moyasar := &fakeProvider{name: "moyasar"}
	stripeFake := &fakeProvider{name: "stripe"}
	manager, err := NewManager(map[string]Provider{
		"moyasar": moyasar,
		"stripe":  stripeFake,
	}, WithCurrencyRoutes(map[string]string{"SAR": "moyasar", "USD": "stripe"}), WithDefaultProvider("stripe"))
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	if _, err := manager.CreateCheckout(context.Background(), PaymentContext{Currency: "sar"}, CheckoutRequest{Amount: 4199, Currency: "SAR"}); err != nil {
		t.Fatalf("CreateCheckout returned error: %v", err)
	}
	if moyasar.lastOp != "checkout" {
		t.Fatalf("expected SAR checkout routed to moyasar, got %q", moyasar.lastOp)
	}

	if _, err := manager.Capture(context.Background(), PaymentContext{Currency: "USD"}, CaptureRequest{IntentID: "pi_1"}); err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	if stripeFake.lastOp != "capture" {
		t.Fatalf("expected USD capture routed to stripe, got %q", stripeFake.lastOp)
	}
}

func TestManagerDefaultsToMoyasar(t *testing.T) {
	moyasar := &fakeProvider{name: "moyasar"}
	stripeFake := &fakeProvider{name: "stripe"}
	manager, err := NewManager(map[string]Provider{
		"moyasar": moyasar,
		"stripe":  stripeFake,
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	if _, err := manager.Refund(context.Background(), PaymentContext{}, RefundRequest{IntentID: "pi_2"}); err != nil {
		t.Fatalf("Refund returned error: %v", err)
	}
	if moyasar.lastOp != "refund" {
		t.Fatalf("expected refund to default to moyasar, got %q", moyasar.lastOp)
	}
}

func TestManagerRejectsUnresolvableProvider(t *testing.T) {
	manager, err := NewManager(map[string]Provider{
		"stripe": &fakeProvider{name: "stripe"},
		"tap":    &fakeProvider{name: "tap"},
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	_, err = manager.CreateCheckout(context.Background(), PaymentContext{PreferredProvider: "tamara"}, CheckoutRequest{})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerSingleProviderFallback(t *testing.T) {
	only := &fakeProvider{name: "stripe"}
	manager, err := NewManager(map[string]Provider{"stripe": only})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if _, err := manager.LookupPayment(context.Background(), PaymentContext{}, LookupRequest{IntentID: "pi_3"}); err != nil {
		t.Fatalf("LookupPayment returned error: %v", err)
	}
	if only.lastOp != "lookup" {
		t.Fatalf("expected lookup handled by sole provider, got %q", only.lastOp)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for empty provider map")
	}
	if _, err := NewManager(map[string]Provider{"": &fakeProvider{}}); err == nil {
		t.Fatal("expected error for blank provider key")
	}
	if _, err := NewManager(map[string]Provider{"moyasar": nil}); err == nil {
		t.Fatal("expected error for nil provider")
	}
}
