package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	pfirestore "github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/firestore"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

// InvoiceRepository stores issued invoices in orders/{orderId}/invoices.
type InvoiceRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.InvoiceRepository = (*InvoiceRepository)(nil)

// NewInvoiceRepository constructs a Firestore-backed invoice repository.
func NewInvoiceRepository(provider *pfirestore.Provider) (*InvoiceRepository, error) {
	if provider == nil {
		return nil, errors.New("invoice repository requires firestore provider")
	}
	return &InvoiceRepository{provider: provider}, nil
}

func (r *InvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	if strings.TrimSpace(invoice.ID) == "" {
		return errors.New("invoice insert: id is required")
	}
	coll, err := r.collection(ctx, invoice.OrderID)
	if err != nil {
		return err
	}
	if _, err := coll.Doc(invoice.ID).Create(ctx, newInvoiceDocument(invoice)); err != nil {
		return pfirestore.WrapError("invoices.insert", err)
	}
	return nil
}

func (r *InvoiceRepository) FindLatestByOrder(ctx context.Context, orderID string) (domain.Invoice, error) {
	coll, err := r.collection(ctx, orderID)
	if err != nil {
		return domain.Invoice{}, err
	}
	iter := coll.OrderBy("createdAt", firestore.Desc).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Invoice{}, pfirestore.WrapError("invoices.findLatest", status.Error(codes.NotFound, "invoice not found"))
	}
	if err != nil {
		return domain.Invoice{}, pfirestore.WrapError("invoices.findLatest", err)
	}
	doc, err := decodeSnapshot[invoiceDocument](snap, "invoice")
	if err != nil {
		return domain.Invoice{}, err
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *InvoiceRepository) collection(ctx context.Context, orderID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("invoice repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("invoice repository: order id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(ordersCollection).Doc(orderID).Collection(invoicesCollection), nil
}
