package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

// BuildInfo identifies the running binary on the probe endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	// Payments, when set, adds the count of deposits awaiting review to the report.
	Payments repositories.PaymentRepository
}

type systemService struct {
	probes   repositories.HealthRepository
	payments repositories.PaymentRepository
	build    BuildInfo
	now      func() time.Time
}

// NewSystemService builds the readiness report: dependency probes, build metadata and the
// reconciliation backlog.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	s := &systemService{
		probes:   deps.HealthRepository,
		payments: deps.Payments,
		build:    deps.Build,
		now:      func() time.Time { return clock().UTC() },
	}
	if s.build.StartedAt.IsZero() {
		s.build.StartedAt = s.now()
	}
	return s, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.probes.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}
	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if report.Status == "" {
		report.Status = domain.HealthStatusOK
		for _, check := range report.Checks {
			if check.Status == domain.HealthStatusError {
				report.Status = domain.HealthStatusError
				break
			}
			if check.Status == domain.HealthStatusDegraded {
				report.Status = domain.HealthStatusDegraded
			}
		}
	}
	report.Version = s.build.Version
	report.CommitSHA = s.build.CommitSHA
	report.Environment = s.build.Environment
	report.Uptime = now.Sub(s.build.StartedAt)

	// The backlog is informational; it never fails readiness.
	report.PendingReviews = -1
	if s.payments != nil {
		if pending, err := s.payments.ListByStatus(ctx, domain.PaymentStatusNeedsReview, maxReconciliationPage); err == nil {
			report.PendingReviews = len(pending)
		}
	}
	return report, nil
}
