package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/payments"
)

type webhookFixture struct {
	store   *memStore
	gateway *stubGateway
	events  *recordingPublisher
	svc     PaymentWebhookService
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	deposit := newDepositFixture(t, nil)
	store, gateway := deposit.store, deposit.gateway
	gateway.lookup = map[string]payments.PaymentDetails{}

	final, err := NewFinalPaymentService(FinalPaymentServiceDeps{
		Orders:      store.Orders(),
		Payments:    store.Payments(),
		Bookings:    store.Bookings(),
		Gateway:     gateway,
		Events:      deposit.events,
		Clock:       fixedClock(depositNow),
		IDGenerator: sequentialIDs("final"),
	})
	if err != nil {
		t.Fatalf("NewFinalPaymentService: %v", err)
	}
	svc, err := NewPaymentWebhookService(PaymentWebhookServiceDeps{
		Payments:      store.Payments(),
		Gateway:       gateway,
		Deposits:      deposit.svc,
		FinalPayments: final,
	})
	if err != nil {
		t.Fatalf("NewPaymentWebhookService: %v", err)
	}
	return &webhookFixture{store: store, gateway: gateway, events: deposit.events, svc: svc}
}

func (f *webhookFixture) approve(txID, orderID string, paymentType domain.PaymentType, amount int64) {
	f.gateway.lookup[txID] = payments.PaymentDetails{
		Provider:          payments.ProviderStripe,
		TransactionID:     txID,
		Status:            payments.StatusApproved,
		Amount:            amount,
		ExternalReference: payments.FormatReference(orderID, string(paymentType)),
	}
}

func TestWebhookConfirmsDepositFromReference(t *testing.T) {
	f := newWebhookFixture(t)
	f.store.putOrder(threeItemOrder("ord-1", "user-1"))
	f.approve("pi_1", "ord-1", domain.PaymentTypeDeposit, 30000)

	outcome, err := f.svc.Handle(context.Background(), PaymentNotification{Type: "payment", PaymentID: "pi_1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if outcome != WebhookOutcomeOK {
		t.Fatalf("expected ok, got %s", outcome)
	}
	if status := f.store.order("ord-1").Status; status != domain.OrderStatusDepositPaid {
		t.Fatalf("expected DEPOSIT_PAID, got %s", status)
	}

	// Gateways retry callbacks; the repeat is acknowledged without a second booking.
	outcome, err = f.svc.Handle(context.Background(), PaymentNotification{Type: "payment", PaymentID: "pi_1"})
	if err != nil || outcome != WebhookOutcomeOK {
		t.Fatalf("expected ok on retry, got %s %v", outcome, err)
	}
	if got := len(f.store.schedulesOf("ord-1")); got != 2 {
		t.Fatalf("expected 2 schedules after retry, got %d", got)
	}
	if got := f.events.types(); len(got) != 1 {
		t.Fatalf("expected one event after retry, got %v", got)
	}
}

func TestWebhookCompletesFinalPaymentForStoredLink(t *testing.T) {
	f := newWebhookFixture(t)
	f.store.putOrder(depositPaidOrder("ord-1", "user-1"))
	f.store.putPayment(domain.Payment{
		ID:            "pay-link",
		OrderID:       "ord-1",
		Type:          domain.PaymentTypeFinal,
		Status:        domain.PaymentStatusPending,
		Amount:        70000,
		TransactionID: "pi_final",
	})
	f.approve("pi_final", "ord-1", domain.PaymentTypeFinal, 70000)

	outcome, err := f.svc.Handle(context.Background(), PaymentNotification{Type: "payment", PaymentID: "pi_final"})
	if err != nil || outcome != WebhookOutcomeOK {
		t.Fatalf("expected ok, got %s %v", outcome, err)
	}
	if status := f.store.order("ord-1").Status; status != domain.OrderStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", status)
	}
	stored := f.store.paymentsOf("ord-1")
	if len(stored) != 1 || stored[0].ID != "pay-link" || stored[0].Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected the link payment to complete, got %+v", stored)
	}
}

func TestWebhookRecordsConflictForReview(t *testing.T) {
	f := newWebhookFixture(t)
	f.store.putOrder(threeItemOrder("ord-1", "user-1"))
	f.store.putSchedule(domain.Schedule{
		ID:            "sch-other",
		OrderID:       "ord-other",
		TeamID:        "team-a",
		ScheduledDate: mustDate("2026-03-10"),
		TimeSlot:      "09:00",
		Status:        domain.ScheduleStatusConfirmed,
	})
	f.approve("pi_1", "ord-1", domain.PaymentTypeDeposit, 30000)

	outcome, err := f.svc.Handle(context.Background(), PaymentNotification{Type: "payment", PaymentID: "pi_1"})
	if err != nil || outcome != WebhookOutcomeOK {
		t.Fatalf("expected ok, got %s %v", outcome, err)
	}
	stored := f.store.paymentsOf("ord-1")
	if len(stored) != 1 || stored[0].Status != domain.PaymentStatusNeedsReview {
		t.Fatalf("expected a NEEDS_REVIEW payment, got %+v", stored)
	}

	// The review record short-circuits later retries.
	outcome, err = f.svc.Handle(context.Background(), PaymentNotification{Type: "payment", PaymentID: "pi_1"})
	if err != nil || outcome != WebhookOutcomeOK {
		t.Fatalf("expected ok on retry, got %s %v", outcome, err)
	}
	if got := len(f.store.paymentsOf("ord-1")); got != 1 {
		t.Fatalf("expected one payment after retry, got %d", got)
	}
}

func TestWebhookOutcomes(t *testing.T) {
	cases := []struct {
		name         string
		notification PaymentNotification
		setup        func(*webhookFixture)
		want         WebhookOutcome
		wantErr      error
	}{
		{
			name:         "other topic",
			notification: PaymentNotification{Type: "merchant_order", PaymentID: "123"},
			want:         WebhookOutcomeIgnored,
		},
		{
			name:         "missing id",
			notification: PaymentNotification{Type: "payment"},
			want:         WebhookOutcomeError,
			wantErr:      ErrWebhookInvalidPayload,
		},
		{
			name:         "unknown at gateway",
			notification: PaymentNotification{Type: "payment", PaymentID: "pi_missing"},
			want:         WebhookOutcomeNotFound,
			wantErr:      ErrWebhookPaymentNotFound,
		},
		{
			name:         "gateway down",
			notification: PaymentNotification{Type: "payment", PaymentID: "pi_1"},
			setup:        func(f *webhookFixture) { f.gateway.lookupErr = errBoom },
			want:         WebhookOutcomeError,
			wantErr:      ErrWebhookGatewayUnavailable,
		},
		{
			name:         "not approved",
			notification: PaymentNotification{Type: "payment", PaymentID: "pi_1"},
			setup: func(f *webhookFixture) {
				f.gateway.lookup["pi_1"] = payments.PaymentDetails{TransactionID: "pi_1", Status: payments.StatusPending}
			},
			want: WebhookOutcomeOK,
		},
		{
			name:         "no reference",
			notification: PaymentNotification{Type: "payment", PaymentID: "pi_1"},
			setup: func(f *webhookFixture) {
				f.gateway.lookup["pi_1"] = payments.PaymentDetails{TransactionID: "pi_1", Status: payments.StatusApproved}
			},
			want:    WebhookOutcomeNotFound,
			wantErr: ErrWebhookPaymentNotFound,
		},
		{
			name:         "unknown order",
			notification: PaymentNotification{Type: "payment", PaymentID: "pi_1"},
			setup: func(f *webhookFixture) {
				f.approve("pi_1", "ord-missing", domain.PaymentTypeDeposit, 30000)
			},
			want:    WebhookOutcomeNotFound,
			wantErr: ErrDepositOrderNotFound,
		},
		{
			name:         "unknown payment type",
			notification: PaymentNotification{Type: "payment", PaymentID: "pi_1"},
			setup: func(f *webhookFixture) {
				f.approve("pi_1", "ord-1", "TIP", 500)
			},
			want: WebhookOutcomeIgnored,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			f.store.putOrder(threeItemOrder("ord-1", "user-1"))
			if tc.setup != nil {
				tc.setup(f)
			}

			outcome, err := f.svc.Handle(context.Background(), tc.notification)
			if outcome != tc.want {
				t.Fatalf("expected outcome %s, got %s (%v)", tc.want, outcome, err)
			}
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if status := f.store.order("ord-1").Status; status != domain.OrderStatusPending {
				t.Fatalf("order must not change, got %s", status)
			}
			if got := len(f.store.paymentsOf("ord-1")); got != 0 {
				t.Fatalf("no payment may be written, got %d", got)
			}
		})
	}
}
