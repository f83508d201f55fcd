package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusApproved indicates the charge was captured.
	StatusApproved Status = "approved"
	// StatusPending indicates the payment awaits customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusRejected indicates the gateway declined or cancelled the payment.
	StatusRejected Status = "rejected"
	// StatusRefunded indicates the payment has been fully refunded.
	StatusRefunded Status = "refunded"
)

const (
	// CurrencyBRL is the only currency bookings are charged in.
	CurrencyBRL = "BRL"

	// ProviderStripe and ProviderMock are the registered provider keys.
	ProviderStripe = "stripe"
	ProviderMock   = "mock"

	// MockTransactionPrefix marks transaction ids issued by the mock provider.
	MockTransactionPrefix = "mock-"

	// ExternalReferenceKey is the metadata key carrying "orderId:TYPE".
	ExternalReferenceKey = "external_reference"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrPaymentNotFound is returned when the gateway does not know the payment id.
	ErrPaymentNotFound = errors.New("payments: payment not found")
)

// ChargeRequest charges a tokenised payment method immediately.
type ChargeRequest struct {
	OrderID        string
	Type           string
	Amount         int64
	Currency       string
	Method         string
	Token          string
	PayerEmail     string
	Description    string
	IdempotencyKey string
}

// LinkRequest creates a hosted payment page the customer can pay later.
type LinkRequest struct {
	OrderID        string
	Type           string
	Amount         int64
	Currency       string
	Title          string
	PayerEmail     string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// LinkResult is the hosted payment page returned by the gateway.
type LinkResult struct {
	ID        string
	Provider  string
	URL       string
	ExpiresAt time.Time
}

// RefundRequest refunds a captured payment, fully when Amount is nil.
type RefundRequest struct {
	TransactionID  string
	Amount         *int64
	Reason         string
	IdempotencyKey string
}

// PaymentDetails normalises gateway specific payment fields.
type PaymentDetails struct {
	Provider          string
	TransactionID     string
	Status            Status
	Amount            int64
	Currency          string
	Method            string
	ExternalReference string
	Raw               map[string]any
}

// Approved reports whether the payment was captured.
func (d PaymentDetails) Approved() bool {
	return d.Status == StatusApproved
}

// Provider defines the contract for gateway adapters to implement.
type Provider interface {
	Charge(ctx context.Context, req ChargeRequest) (PaymentDetails, error)
	CreatePaymentLink(ctx context.Context, req LinkRequest) (LinkResult, error)
	LookupPayment(ctx context.Context, transactionID string) (PaymentDetails, error)
	Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error)
}

// FormatReference renders the "orderId:TYPE" external reference attached to gateway payments.
func FormatReference(orderID, paymentType string) string {
	return strings.TrimSpace(orderID) + ":" + strings.ToUpper(strings.TrimSpace(paymentType))
}

// ParseReference splits an external reference into order id and payment type.
func ParseReference(reference string) (orderID string, paymentType string, ok bool) {
	reference = strings.TrimSpace(reference)
	idx := strings.LastIndex(reference, ":")
	if idx <= 0 || idx == len(reference)-1 {
		return "", "", false
	}
	return reference[:idx], strings.ToUpper(reference[idx+1:]), true
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when no preference is given.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.ToLower(strings.TrimSpace(provider))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	if _, ok := copyMap[ProviderStripe]; ok {
		m.defaultProvider = ProviderStripe
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// IsMockTransaction reports whether the transaction id was issued by the mock provider.
func (m *Manager) IsMockTransaction(transactionID string) bool {
	return strings.HasPrefix(strings.TrimSpace(transactionID), MockTransactionPrefix)
}

// DefaultProvider returns the key used when callers express no preference.
func (m *Manager) DefaultProvider() string {
	key, _, err := m.resolve("")
	if err != nil {
		return ""
	}
	return key
}

func (m *Manager) resolve(preferred string) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if key := strings.TrimSpace(strings.ToLower(preferred)); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, key)
	}
	if def := m.defaultProvider; def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// resolveByTransaction routes follow-up calls for mock transactions to the mock provider.
func (m *Manager) resolveByTransaction(transactionID string) (string, Provider, error) {
	if m.IsMockTransaction(transactionID) {
		if p, ok := m.providers[ProviderMock]; ok {
			return ProviderMock, p, nil
		}
	}
	return m.resolve("")
}

// Charge delegates to the preferred or default provider.
func (m *Manager) Charge(ctx context.Context, preferred string, req ChargeRequest) (PaymentDetails, error) {
	key, provider, err := m.resolve(preferred)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.Charge(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// CreatePaymentLink delegates to the preferred or default provider.
func (m *Manager) CreatePaymentLink(ctx context.Context, preferred string, req LinkRequest) (LinkResult, error) {
	key, provider, err := m.resolve(preferred)
	if err != nil {
		return LinkResult{}, err
	}
	link, err := provider.CreatePaymentLink(ctx, req)
	if err != nil {
		return LinkResult{}, err
	}
	link.Provider = key
	return link, nil
}

// LookupPayment fetches the gateway view of a payment.
func (m *Manager) LookupPayment(ctx context.Context, transactionID string) (PaymentDetails, error) {
	key, provider, err := m.resolveByTransaction(transactionID)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.LookupPayment(ctx, transactionID)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// Refund delegates to the provider that issued the transaction.
func (m *Manager) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	key, provider, err := m.resolveByTransaction(req.TransactionID)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.Refund(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}
