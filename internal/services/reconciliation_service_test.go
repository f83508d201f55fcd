package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
)

func TestListPendingOldestFirst(t *testing.T) {
	store := newMemStore()
	for i, id := range []string{"pay-c", "pay-a", "pay-b"} {
		store.putOrder(pendingOrder("ord-"+id, "user-1", "2026-03-10|team-a|09:00|boat"))
		store.putPayment(domain.Payment{
			ID:        id,
			OrderID:   "ord-" + id,
			Type:      domain.PaymentTypeDeposit,
			Status:    domain.PaymentStatusNeedsReview,
			CreatedAt: depositNow.Add(-time.Duration(i) * time.Hour),
		})
	}
	store.putPayment(domain.Payment{ID: "pay-ok", OrderID: "ord-pay-a", Status: domain.PaymentStatusCompleted})

	svc, err := NewReconciliationService(ReconciliationServiceDeps{Payments: store.Payments()})
	if err != nil {
		t.Fatalf("NewReconciliationService: %v", err)
	}
	list, err := svc.ListPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 pending reviews, got %d", len(list))
	}
	if list[0].ID != "pay-b" || list[2].ID != "pay-c" {
		t.Fatalf("expected oldest first, got %s..%s", list[0].ID, list[2].ID)
	}
}

func TestListPendingUnavailable(t *testing.T) {
	store := newMemStore()
	svc, err := NewReconciliationService(ReconciliationServiceDeps{Payments: failingPayments{store.Payments()}})
	if err != nil {
		t.Fatalf("NewReconciliationService: %v", err)
	}
	if _, err := svc.ListPending(context.Background(), 10); err == nil {
		t.Fatalf("expected repository failure to surface")
	}
}
