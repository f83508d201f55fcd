package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// StatusAuthorized is the FocusNFe status of an issued invoice.
const StatusAuthorized = "autorizada"

const natureOfOperation = "Prestacao de Servicos de Turismo"

var (
	// ErrInvalidRequest is returned when an issuance request is incomplete.
	ErrInvalidRequest = errors.New("invoicing: invalid request")
	// ErrNoDocument is returned when a PDF is requested for an invoice that has none.
	ErrNoDocument = errors.New("invoicing: document not available")
)

// Request describes one NFS-e to issue. Monetary values are centavos.
type Request struct {
	// Reference is the idempotency reference sent to the authority, usually the order id.
	Reference     string
	CustomerName  string
	CustomerTaxID string
	CustomerEmail string
	Items         []Item
	Total         int64
}

// Item is one service line on the invoice.
type Item struct {
	Description string
	Quantity    int
	UnitPrice   int64
}

// Result is the authority's view of an issued invoice.
type Result struct {
	ExternalID string
	Number     string
	Status     string
	PDFURL     string
	XMLURL     string
}

// Issuer emits service invoices.
type Issuer interface {
	Issue(ctx context.Context, req Request) (Result, error)
	DownloadPDF(ctx context.Context, pdfURL string) ([]byte, error)
	// Mock reports whether invoices are simulated.
	Mock() bool
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Reference) == "" {
		return fmt.Errorf("%w: reference is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.CustomerName) == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalidRequest)
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidRequest)
	}
	for i, item := range r.Items {
		if item.Quantity <= 0 || item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d has invalid quantity or price", ErrInvalidRequest, i+1)
		}
	}
	if r.Total <= 0 {
		return fmt.Errorf("%w: total must be positive", ErrInvalidRequest)
	}
	return nil
}

// MockIssuer simulates issuance when no FocusNFe token is configured.
type MockIssuer struct {
	now     func() time.Time
	counter atomic.Int64
}

var _ Issuer = (*MockIssuer)(nil)

// NewMockIssuer constructs a MockIssuer.
func NewMockIssuer(now func() time.Time) *MockIssuer {
	if now == nil {
		now = time.Now
	}
	return &MockIssuer{now: now}
}

func (m *MockIssuer) Issue(_ context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	n := m.counter.Add(1)
	return Result{
		ExternalID: fmt.Sprintf("mock-nfe-%d", m.now().UnixMilli()),
		Number:     fmt.Sprintf("MOCK-%05d", n),
		Status:     StatusAuthorized,
	}, nil
}

func (m *MockIssuer) DownloadPDF(context.Context, string) ([]byte, error) {
	return nil, ErrNoDocument
}

func (m *MockIssuer) Mock() bool { return true }

// formatDecimal renders centavos as the "123.45" decimal strings the NFS-e API expects.
func formatDecimal(centavos int64) string {
	sign := ""
	if centavos < 0 {
		sign = "-"
		centavos = -centavos
	}
	return fmt.Sprintf("%s%d.%02d", sign, centavos/100, centavos%100)
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
