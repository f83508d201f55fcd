package payments

import (
	"context"
	"errors"
	"strconv"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	payment PaymentDetails
	link    LinkResult
	err     error
}

func (f *fakeProvider) Charge(ctx context.Context, req ChargeRequest) (PaymentDetails, error) {
	f.lastOp = "charge"
	return f.payment, f.err
}

func (f *fakeProvider) CreatePaymentLink(ctx context.Context, req LinkRequest) (LinkResult, error) {
	f.lastOp = "link"
	return f.link, f.err
}

func (f *fakeProvider) LookupPayment(ctx context.Context, transactionID string) (PaymentDetails, error) {
	f.lastOp = "lookup"
	return f.payment, f.err
}

func (f *fakeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	f.lastOp = "refund"
	return f.payment, f.err
}

func TestManagerChargeUsesPreferredProvider(t *testing.T) {
	stripe := &fakeProvider{payment: PaymentDetails{TransactionID: "pi_1", Status: StatusApproved}}
	mock := &fakeProvider{payment: PaymentDetails{TransactionID: "mock-1", Status: StatusApproved}}

	mgr, err := NewManager(map[string]Provider{ProviderStripe: stripe, ProviderMock: mock})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	details, err := mgr.Charge(context.Background(), ProviderMock, ChargeRequest{Amount: 100})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if details.Provider != ProviderMock {
		t.Fatalf("expected provider mock, got %q", details.Provider)
	}
	if mock.lastOp != "charge" || stripe.lastOp != "" {
		t.Fatalf("expected only mock provider to handle call, stripe=%q mock=%q", stripe.lastOp, mock.lastOp)
	}
}

func TestManagerDefaultsToStripe(t *testing.T) {
	stripe := &fakeProvider{link: LinkResult{ID: "cs_1"}}
	mock := &fakeProvider{}
	mgr, err := NewManager(map[string]Provider{ProviderStripe: stripe, ProviderMock: mock})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	link, err := mgr.CreatePaymentLink(context.Background(), "", LinkRequest{Amount: 100})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	if link.Provider != ProviderStripe || stripe.lastOp != "link" {
		t.Fatalf("expected stripe to create link, got %+v", link)
	}
	if mgr.DefaultProvider() != ProviderStripe {
		t.Fatalf("expected default provider stripe, got %q", mgr.DefaultProvider())
	}
}

func TestManagerRoutesMockTransactionsToMockProvider(t *testing.T) {
	stripe := &fakeProvider{}
	mock := &fakeProvider{payment: PaymentDetails{Status: StatusRefunded}}
	mgr, err := NewManager(map[string]Provider{ProviderStripe: stripe, ProviderMock: mock})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if !mgr.IsMockTransaction("mock-abc") || mgr.IsMockTransaction("pi_abc") {
		t.Fatalf("unexpected mock detection")
	}
	if _, err := mgr.Refund(context.Background(), RefundRequest{TransactionID: "mock-abc"}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if mock.lastOp != "refund" || stripe.lastOp != "" {
		t.Fatalf("expected refund routed to mock provider")
	}
	if _, err := mgr.LookupPayment(context.Background(), "pi_abc"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stripe.lastOp != "lookup" {
		t.Fatalf("expected lookup routed to stripe provider")
	}
}

func TestManagerUnknownPreferredProvider(t *testing.T) {
	mgr, err := NewManager(map[string]Provider{ProviderStripe: &fakeProvider{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := mgr.Charge(context.Background(), "paypal", ChargeRequest{}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerPropagatesProviderErrors(t *testing.T) {
	boom := errors.New("boom")
	mgr, err := NewManager(map[string]Provider{ProviderStripe: &fakeProvider{err: boom}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := mgr.LookupPayment(context.Background(), "pi_1"); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestNewManagerRejectsInvalidRegistrations(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error for empty providers")
	}
	if _, err := NewManager(map[string]Provider{" ": &fakeProvider{}}); err == nil {
		t.Fatalf("expected error for blank key")
	}
}

func TestReferenceRoundTrip(t *testing.T) {
	ref := FormatReference("ord_123", "deposit")
	if ref != "ord_123:DEPOSIT" {
		t.Fatalf("unexpected reference %q", ref)
	}
	orderID, kind, ok := ParseReference(ref)
	if !ok || orderID != "ord_123" || kind != "DEPOSIT" {
		t.Fatalf("unexpected parse result %q %q %v", orderID, kind, ok)
	}
	for _, bad := range []string{"", "ord_123", ":FINAL", "ord_123:"} {
		if _, _, ok := ParseReference(bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestMockProviderLifecycle(t *testing.T) {
	n := 0
	provider, err := NewMockProvider(func() string { n++; return strconv.Itoa(n) }, nil)
	if err != nil {
		t.Fatalf("new mock provider: %v", err)
	}
	ctx := context.Background()

	charge, err := provider.Charge(ctx, ChargeRequest{OrderID: "ord_1", Type: "DEPOSIT", Amount: 3000})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if !charge.Approved() || charge.TransactionID != "mock-1" || charge.ExternalReference != "ord_1:DEPOSIT" {
		t.Fatalf("unexpected charge %+v", charge)
	}

	looked, err := provider.LookupPayment(ctx, charge.TransactionID)
	if err != nil || looked.Amount != 3000 {
		t.Fatalf("unexpected lookup %+v (%v)", looked, err)
	}

	refunded, err := provider.Refund(ctx, RefundRequest{TransactionID: charge.TransactionID})
	if err != nil || refunded.Status != StatusRefunded {
		t.Fatalf("unexpected refund %+v (%v)", refunded, err)
	}

	if _, err := provider.LookupPayment(ctx, "mock-unknown"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}
