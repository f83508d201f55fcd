package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

// PubSubEventPublisher publishes booking lifecycle events. Messages of one order share an ordering key so
// subscribers observe deposit, completion and refund in commit order.
type PubSubEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.EventPublisher = (*PubSubEventPublisher)(nil)

// NewPubSubEventPublisher wraps topic and enables message ordering on it.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishBookingEvent blocks until the broker acknowledges the message.
func (p *PubSubEventPublisher) PublishBookingEvent(ctx context.Context, event services.BookingEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub event publisher: not initialised")
	}
	if strings.TrimSpace(event.Type) == "" {
		return "", errors.New("pubsub event publisher: event type is required")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal booking event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "source", event.Source)

	orderingKey := strings.TrimSpace(event.OrderID)
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: orderingKey,
	})
	id, err := result.Get(ctx)
	if err != nil {
		if orderingKey != "" {
			// A failed ordered publish pauses the key until resumed.
			p.topic.ResumePublish(orderingKey)
		}
		return "", fmt.Errorf("publish booking event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
