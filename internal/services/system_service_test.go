package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func TestSystemService_ReportCarriesBuildAndUptime(t *testing.T) {
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Minute)
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{report: domain.SystemHealthReport{
			Status: domain.HealthStatusOK,
			Checks: map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK}},
		}},
		Clock: func() time.Time { return now },
		Build: BuildInfo{Version: "2026.03.1", CommitSHA: "9f1c2e", Environment: "prod", StartedAt: started},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Version != "2026.03.1" || report.CommitSHA != "9f1c2e" || report.Environment != "prod" {
		t.Fatalf("unexpected build metadata %+v", report)
	}
	if report.Uptime != 90*time.Minute || !report.GeneratedAt.Equal(now) {
		t.Fatalf("unexpected timing uptime=%s generated=%s", report.Uptime, report.GeneratedAt)
	}
	if report.PendingReviews != -1 {
		t.Fatalf("expected unknown backlog without a payment repository, got %d", report.PendingReviews)
	}
}

func TestSystemService_StatusFromChecksWhenUnset(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]domain.SystemHealthCheck
		want   string
	}{
		{"no checks", nil, domain.HealthStatusOK},
		{"one degraded", map[string]domain.SystemHealthCheck{
			"firestore":     {Status: domain.HealthStatusOK},
			"secretManager": {Status: domain.HealthStatusDegraded},
		}, domain.HealthStatusDegraded},
		{"error wins", map[string]domain.SystemHealthCheck{
			"firestore":     {Status: domain.HealthStatusError},
			"secretManager": {Status: domain.HealthStatusDegraded},
		}, domain.HealthStatusError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := NewSystemService(SystemServiceDeps{
				HealthRepository: &stubHealthRepository{report: domain.SystemHealthReport{Checks: tc.checks}},
			})
			report, err := svc.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("HealthReport: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, report.Status)
			}
		})
	}
}

func TestSystemService_PropagatesProbeFailure(t *testing.T) {
	svc, _ := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{err: errBoom}})
	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("expected probe error, got %v", err)
	}
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatal("expected error without a health repository")
	}
}

func TestSystemServiceCountsPendingReviews(t *testing.T) {
	store := newMemStore()
	store.putOrder(domain.Order{ID: "ord-1", Status: domain.OrderStatusPending})
	store.putPayment(domain.Payment{ID: "pay-1", OrderID: "ord-1", Status: domain.PaymentStatusNeedsReview})
	store.putPayment(domain.Payment{ID: "pay-2", OrderID: "ord-1", Status: domain.PaymentStatusNeedsReview})
	store.putPayment(domain.Payment{ID: "pay-3", OrderID: "ord-1", Status: domain.PaymentStatusCompleted})

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{},
		Payments:         store.Payments(),
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.PendingReviews != 2 {
		t.Fatalf("expected 2 pending reviews, got %d", report.PendingReviews)
	}
}

type failingPayments struct{ repositories.PaymentRepository }

func (failingPayments) ListByStatus(context.Context, domain.PaymentStatus, int) ([]domain.Payment, error) {
	return nil, errBoom
}

func TestSystemServicePendingReviewsUnknownOnError(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{},
		Payments:         failingPayments{},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport must not fail on review count: %v", err)
	}
	if report.PendingReviews != -1 {
		t.Fatalf("expected -1 pending reviews, got %d", report.PendingReviews)
	}
}

var _ repositories.HealthRepository = (*stubHealthRepository)(nil)
