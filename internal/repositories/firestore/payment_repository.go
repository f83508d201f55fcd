package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	pfirestore "github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/firestore"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

// PaymentRepository stores payments in the orders/{orderId}/payments subcollection.
type PaymentRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{provider: provider}, nil
}

func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.provider == nil {
		return errors.New("payment repository not initialised")
	}
	if strings.TrimSpace(payment.OrderID) == "" || strings.TrimSpace(payment.ID) == "" {
		return errors.New("payment insert: order id and payment id are required")
	}
	coll, err := r.collection(ctx, payment.OrderID)
	if err != nil {
		return err
	}
	if _, err := coll.Doc(payment.ID).Create(ctx, newPaymentDocument(payment)); err != nil {
		return pfirestore.WrapError("payments.insert", err)
	}
	return nil
}

// FindByTransactionID looks the payment up across every order.
func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (domain.Payment, error) {
	if r == nil || r.provider == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.Payment{}, errors.New("payment lookup: transaction id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Payment{}, err
	}
	iter := client.CollectionGroup(paymentsCollection).Where("transactionId", "==", transactionID).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Payment{}, pfirestore.WrapError("payments.findByTransaction", status.Error(codes.NotFound, "payment not found"))
	}
	if err != nil {
		return domain.Payment{}, pfirestore.WrapError("payments.findByTransaction", err)
	}
	doc, err := decodeSnapshot[paymentDocument](snap, "payment")
	if err != nil {
		return domain.Payment{}, err
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// ListByOrder returns an order's payments oldest first.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("payment repository not initialised")
	}
	coll, err := r.collection(ctx, orderID)
	if err != nil {
		return nil, err
	}
	payments, err := collectPayments(coll.OrderBy("createdAt", firestore.Asc).Documents(ctx))
	if err != nil {
		return nil, pfirestore.WrapError("payments.listByOrder", err)
	}
	return payments, nil
}

// ListByStatus returns payments in the given status across every order, oldest first.
func (r *PaymentRepository) ListByStatus(ctx context.Context, paymentStatus domain.PaymentStatus, limit int) ([]domain.Payment, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("payment repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	query := client.CollectionGroup(paymentsCollection).Where("status", "==", string(paymentStatus)).Limit(limit)
	payments, err := collectPayments(query.Documents(ctx))
	if err != nil {
		return nil, pfirestore.WrapError("payments.listByStatus", err)
	}
	sort.SliceStable(payments, func(i, j int) bool { return payments[i].CreatedAt.Before(payments[j].CreatedAt) })
	return payments, nil
}

func (r *PaymentRepository) collection(ctx context.Context, orderID string) (*firestore.CollectionRef, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("payment repository: order id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(ordersCollection).Doc(orderID).Collection(paymentsCollection), nil
}

func collectPayments(iter *firestore.DocumentIterator) ([]domain.Payment, error) {
	defer iter.Stop()
	var payments []domain.Payment
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		doc, err := decodeSnapshot[paymentDocument](snap, "payment")
		if err != nil {
			return nil, fmt.Errorf("collect payments: %w", err)
		}
		payments = append(payments, doc.toDomain(snap.Ref.ID))
	}
	return payments, nil
}
