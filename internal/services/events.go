package services

import (
	"context"
	"time"
)

// Booking event types published on the events topic.
const (
	EventDepositPaid    = "order.deposit_paid"
	EventCompleted      = "order.completed"
	EventCancelled      = "order.cancelled"
	EventRefunded       = "order.refunded"
	EventReviewRequired = "deposit.review_required"
)

// BookingEvent is the payload published when an order changes state.
type BookingEvent struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	UserID        string    `json:"userId,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
	Source        string    `json:"source,omitempty"`
	Schedules     []string  `json:"schedules,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// EventPublisher delivers booking events to downstream consumers.
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, event BookingEvent) (string, error)
}

// publishEvent emits the event best-effort; failures are logged and never surface to callers.
func publishEvent(ctx context.Context, publisher EventPublisher, logger func(context.Context, string, map[string]any), newID func() string, event BookingEvent) {
	if publisher == nil {
		return
	}
	if event.ID == "" && newID != nil {
		event.ID = newID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if _, err := publisher.PublishBookingEvent(ctx, event); err != nil && logger != nil {
		logger(ctx, "booking.event.publish_failed", map[string]any{
			"eventType": event.Type,
			"orderId":   event.OrderID,
			"error":     err.Error(),
		})
	}
}
