package services

import (
	"context"
	"errors"
	"sort"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

const (
	defaultReconciliationPage = 50
	maxReconciliationPage     = 200
)

// ReconciliationServiceDeps bundles collaborators required by the reconciliation service.
type ReconciliationServiceDeps struct {
	Payments repositories.PaymentRepository
}

type reconciliationService struct {
	payments repositories.PaymentRepository
}

var _ ReconciliationService = (*reconciliationService)(nil)

// NewReconciliationService constructs the operator view over deposits held for review.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Payments == nil {
		return nil, errors.New("reconciliation service: payment repository is required")
	}
	return &reconciliationService{payments: deps.Payments}, nil
}

// ListPending returns NEEDS_REVIEW deposits, oldest first. Operators settle them by refunding the order.
func (s *reconciliationService) ListPending(ctx context.Context, limit int) ([]Payment, error) {
	switch {
	case limit <= 0:
		limit = defaultReconciliationPage
	case limit > maxReconciliationPage:
		limit = maxReconciliationPage
	}
	list, err := s.payments.ListByStatus(ctx, domain.PaymentStatusNeedsReview, limit)
	if err != nil {
		return nil, mapRepositoryError(err, nil, nil)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}
