package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	pfirestore "github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/firestore"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

// NotificationRepository keeps the delivery log in orders/{orderId}/notifications.
type NotificationRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository constructs a Firestore-backed notification log.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	return &NotificationRepository{provider: provider}, nil
}

func (r *NotificationRepository) Append(ctx context.Context, notification domain.Notification) error {
	ref, err := r.doc(ctx, notification)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newNotificationDocument(notification)); err != nil {
		return pfirestore.WrapError("notifications.append", err)
	}
	return nil
}

func (r *NotificationRepository) Update(ctx context.Context, notification domain.Notification) error {
	ref, err := r.doc(ctx, notification)
	if err != nil {
		return err
	}
	doc := newNotificationDocument(notification)
	if _, err := ref.Update(ctx, []firestore.Update{
		{Path: "status", Value: doc.Status},
		{Path: "attempts", Value: doc.Attempts},
		{Path: "lastError", Value: doc.LastError},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}); err != nil {
		return pfirestore.WrapError("notifications.update", err)
	}
	return nil
}

// ListFailed returns FAILED notifications across every order.
func (r *NotificationRepository) ListFailed(ctx context.Context, limit int) ([]domain.Notification, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("notification repository not initialised")
	}
	if limit <= 0 {
		limit = 50
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	iter := client.CollectionGroup(notificationsCollection).
		Where("status", "==", string(domain.NotificationStatusFailed)).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var out []domain.Notification
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("notifications.listFailed", err)
		}
		doc, err := decodeSnapshot[notificationDocument](snap, "notification")
		if err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain(snap.Ref.ID))
	}
	return out, nil
}

func (r *NotificationRepository) doc(ctx context.Context, notification domain.Notification) (*firestore.DocumentRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("notification repository not initialised")
	}
	orderID := strings.TrimSpace(notification.OrderID)
	if orderID == "" || strings.TrimSpace(notification.ID) == "" {
		return nil, errors.New("notification: order id and id are required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(ordersCollection).Doc(orderID).Collection(notificationsCollection).Doc(notification.ID), nil
}
