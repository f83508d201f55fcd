package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "booking-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPubSubEventPublisherPublishesEvent(t *testing.T) {
	srv, topic := newTestTopic(t)

	publisher, err := NewPubSubEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	event := services.BookingEvent{
		ID:            "evt_1",
		Type:          services.EventDepositPaid,
		OrderID:       "ord_1",
		UserID:        "user-1",
		Amount:        9000,
		TransactionID: "pi_123",
		Source:        "webhook",
		OccurredAt:    time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}
	if _, err := publisher.PublishBookingEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishBookingEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload services.BookingEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != "ord_1" || payload.Amount != 9000 || payload.Type != services.EventDepositPaid {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if messages[0].Attributes["eventType"] != services.EventDepositPaid || messages[0].Attributes["source"] != "webhook" {
		t.Fatalf("unexpected attributes %v", messages[0].Attributes)
	}
	if messages[0].OrderingKey != "ord_1" {
		t.Fatalf("expected ordering key ord_1, got %q", messages[0].OrderingKey)
	}
}

func TestPubSubEventPublisherRejectsUntypedEvent(t *testing.T) {
	_, topic := newTestTopic(t)
	publisher, err := NewPubSubEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}
	if _, err := publisher.PublishBookingEvent(context.Background(), services.BookingEvent{OrderID: "ord_1"}); err == nil {
		t.Fatal("expected error for event without type")
	}
}
