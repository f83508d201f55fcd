package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockProvider approves every charge without contacting a gateway. It is registered when no Stripe
// key is configured so local and homolog environments can walk the whole booking flow.
type MockProvider struct {
	newID func() string
	clock func() time.Time

	mu       sync.Mutex
	payments map[string]PaymentDetails
}

// NewMockProvider constructs a MockProvider. newID must return unique values.
func NewMockProvider(newID func() string, clock func() time.Time) (*MockProvider, error) {
	if newID == nil {
		return nil, errors.New("mock payments: id generator is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &MockProvider{newID: newID, clock: clock, payments: make(map[string]PaymentDetails)}, nil
}

func (p *MockProvider) Charge(_ context.Context, req ChargeRequest) (PaymentDetails, error) {
	if req.Amount <= 0 {
		return PaymentDetails{}, errors.New("mock payments: amount must be positive")
	}
	details := PaymentDetails{
		Provider:          ProviderMock,
		TransactionID:     MockTransactionPrefix + p.newID(),
		Status:            StatusApproved,
		Amount:            req.Amount,
		Currency:          defaultString(strings.ToUpper(req.Currency), CurrencyBRL),
		Method:            defaultString(req.Method, "mock"),
		ExternalReference: FormatReference(req.OrderID, req.Type),
	}
	p.store(details)
	return details, nil
}

func (p *MockProvider) CreatePaymentLink(_ context.Context, req LinkRequest) (LinkResult, error) {
	if req.Amount <= 0 {
		return LinkResult{}, errors.New("mock payments: amount must be positive")
	}
	id := MockTransactionPrefix + p.newID()
	p.store(PaymentDetails{
		Provider:          ProviderMock,
		TransactionID:     id,
		Status:            StatusApproved,
		Amount:            req.Amount,
		Currency:          CurrencyBRL,
		Method:            "mock",
		ExternalReference: FormatReference(req.OrderID, req.Type),
	})
	return LinkResult{
		ID:        id,
		Provider:  ProviderMock,
		URL:       fmt.Sprintf("https://payments.mock.local/checkout/%s", id),
		ExpiresAt: p.clock().UTC().Add(24 * time.Hour),
	}, nil
}

func (p *MockProvider) LookupPayment(_ context.Context, transactionID string) (PaymentDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	details, ok := p.payments[strings.TrimSpace(transactionID)]
	if !ok {
		return PaymentDetails{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, transactionID)
	}
	return details, nil
}

func (p *MockProvider) Refund(_ context.Context, req RefundRequest) (PaymentDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := strings.TrimSpace(req.TransactionID)
	details, ok := p.payments[id]
	if !ok {
		details = PaymentDetails{Provider: ProviderMock, TransactionID: id, Currency: CurrencyBRL}
	}
	details.Status = StatusRefunded
	p.payments[id] = details
	return details, nil
}

func (p *MockProvider) store(details PaymentDetails) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments[details.TransactionID] = details
}
