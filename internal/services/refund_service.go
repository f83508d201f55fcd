package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/notifications"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/payments"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

const (
	maxRefundReasonLength = 500
	// maxRefundAttempts bounds re-reads when deposits change between the read and the commit.
	maxRefundAttempts = 3
)

var (
	// ErrRefundInvalidInput signals a malformed refund request.
	ErrRefundInvalidInput = errors.New("refund: invalid input")
	// ErrRefundOrderNotFound indicates the order does not exist.
	ErrRefundOrderNotFound = errors.New("refund: order not found")
	// ErrRefundPermissionDenied indicates the actor is neither the owner nor an admin.
	ErrRefundPermissionDenied = errors.New("refund: permission denied")
	// ErrRefundInvalidState indicates the order is already terminal.
	ErrRefundInvalidState = errors.New("refund: invalid order state")
	// ErrRefundGatewayUnavailable indicates the gateway refund failed; nothing was changed.
	ErrRefundGatewayUnavailable = errors.New("refund: payment gateway unavailable")
)

// RefundServiceDeps bundles collaborators required by the refund service.
type RefundServiceDeps struct {
	Orders         repositories.OrderRepository
	Payments       repositories.PaymentRepository
	Bookings       repositories.BookingRepository
	Gateway        PaymentGateway
	Notifications  NotificationService
	Events         EventPublisher
	GatewayTimeout time.Duration
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type refundService struct {
	orders         repositories.OrderRepository
	payments       repositories.PaymentRepository
	bookings       repositories.BookingRepository
	gateway        PaymentGateway
	notifications  NotificationService
	events         EventPublisher
	gatewayTimeout time.Duration
	now            func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)
}

var _ RefundService = (*refundService)(nil)

// NewRefundService constructs the order cancellation and refund service.
func NewRefundService(deps RefundServiceDeps) (RefundService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("refund service: order repository is required")
	case deps.Payments == nil:
		return nil, errors.New("refund service: payment repository is required")
	case deps.Bookings == nil:
		return nil, errors.New("refund service: booking repository is required")
	}
	return &refundService{
		orders:         deps.Orders,
		payments:       deps.Payments,
		bookings:       deps.Bookings,
		gateway:        deps.Gateway,
		notifications:  deps.Notifications,
		events:         deps.Events,
		gatewayTimeout: durationOrDefault(deps.GatewayTimeout, defaultGatewayTimeout),
		now:            utcClock(deps.Clock),
		newID:          idGeneratorOrDefault(deps.IDGenerator),
		logger:         loggerOrNoop(deps.Logger),
	}, nil
}

// Refund returns every deposit the gateway may still hold, then cancels the order and all of its
// schedules. A failed gateway refund aborts before anything is written. The commit re-reads the deposits
// in its transaction, so a deposit confirmed after the read sends the loop back for another pass.
func (s *refundService) Refund(ctx context.Context, cmd RefundCommand) (RefundResult, error) {
	if cmd.Actor == nil || actorID(cmd.Actor) == "" {
		return RefundResult{}, ErrRefundPermissionDenied
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return RefundResult{}, fmt.Errorf("%w: order id is required", ErrRefundInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if len([]rune(reason)) > maxRefundReasonLength {
		return RefundResult{}, fmt.Errorf("%w: reason must be at most %d characters", ErrRefundInvalidInput, maxRefundReasonLength)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return RefundResult{}, mapRepositoryError(err, ErrRefundOrderNotFound, nil)
	}
	if order.UserID != actorID(cmd.Actor) && !cmd.Actor.HasRole(auth.RoleAdmin) {
		return RefundResult{}, ErrRefundPermissionDenied
	}
	if order.Status.IsTerminal() {
		return RefundResult{}, fmt.Errorf("%w: order is %s", ErrRefundInvalidState, order.Status)
	}

	now := s.now()
	var (
		committed repositories.RefundCommitResult
		refunded  []Payment
	)
	for attempt := 1; ; attempt++ {
		list, err := s.payments.ListByOrder(ctx, orderID)
		if err != nil && !isNotFound(err) {
			return RefundResult{}, mapRepositoryError(err, ErrRefundOrderNotFound, nil)
		}
		refunded = depositsHoldingFunds(list)
		for _, deposit := range refunded {
			if err := s.refundAtGateway(ctx, deposit, reason); err != nil {
				return RefundResult{}, err
			}
		}

		commit := repositories.RefundCommit{OrderID: orderID, Reason: reason, Now: now}
		for _, deposit := range refunded {
			commit.PaymentIDs = append(commit.PaymentIDs, deposit.ID)
		}
		committed, err = s.bookings.Refund(ctx, commit)
		if err == nil {
			break
		}
		switch repositories.BookingErrorCodeOf(err) {
		case repositories.BookingErrorPaymentsChanged:
			// A deposit landed after the read; the refunds above are keyed per payment and replay safely.
			s.logger(ctx, "refund.payments_changed", map[string]any{"orderId": orderID, "attempt": attempt})
			if attempt < maxRefundAttempts {
				continue
			}
			return RefundResult{}, fmt.Errorf("%w: order payments keep changing: %v", ErrRefundInvalidState, err)
		case repositories.BookingErrorInvalidOrderState:
			return RefundResult{}, fmt.Errorf("%w: %v", ErrRefundInvalidState, err)
		case repositories.BookingErrorOrderNotFound:
			return RefundResult{}, fmt.Errorf("%w: %v", ErrRefundOrderNotFound, err)
		}
		if len(refunded) > 0 {
			s.logger(ctx, "refund.commit_failed_after_gateway", map[string]any{
				"orderId":  orderID,
				"payments": len(refunded),
				"error":    err.Error(),
			})
		}
		return RefundResult{}, mapRepositoryError(err, ErrRefundOrderNotFound, nil)
	}

	result := RefundResult{Order: committed.Order, CancelledSchedules: committed.CancelledSchedules}
	for _, deposit := range refunded {
		deposit.Status = domain.PaymentStatusRefunded
		refundedAt := now
		deposit.RefundedAt = &refundedAt
		deposit.UpdatedAt = now
		result.RefundedPayments = append(result.RefundedPayments, deposit)
	}

	s.logger(ctx, "refund.completed", map[string]any{
		"orderId":   orderID,
		"actorId":   actorID(cmd.Actor),
		"status":    string(committed.Order.Status),
		"refunded":  len(refunded),
		"schedules": len(committed.CancelledSchedules),
	})
	s.afterCommit(ctx, result, reason)
	return result, nil
}

func (s *refundService) refundAtGateway(ctx context.Context, deposit Payment, reason string) error {
	transactionID := strings.TrimSpace(deposit.TransactionID)
	if transactionID == "" || s.gateway == nil || s.gateway.IsMockTransaction(transactionID) {
		s.logger(ctx, "refund.gateway_skipped", map[string]any{
			"orderId":       deposit.OrderID,
			"transactionId": transactionID,
		})
		return nil
	}
	refundCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	if _, err := s.gateway.Refund(refundCtx, payments.RefundRequest{
		TransactionID:  transactionID,
		Reason:         "requested_by_customer",
		IdempotencyKey: "refund-" + deposit.ID,
	}); err != nil {
		s.logger(ctx, "refund.gateway_failed", map[string]any{
			"orderId":       deposit.OrderID,
			"transactionId": transactionID,
			"reason":        reason,
			"error":         err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrRefundGatewayUnavailable, err)
	}
	return nil
}

func (s *refundService) afterCommit(ctx context.Context, result RefundResult, reason string) {
	event := BookingEvent{
		Type:       EventRefunded,
		OrderID:    result.Order.ID,
		UserID:     result.Order.UserID,
		Reason:     reason,
		OccurredAt: s.now(),
	}
	if result.Order.Status == domain.OrderStatusCancelled {
		event.Type = EventCancelled
	}
	event.Amount = result.RefundedAmount()
	if len(result.RefundedPayments) > 0 {
		event.TransactionID = result.RefundedPayments[0].TransactionID
	}
	for _, schedule := range result.CancelledSchedules {
		event.Schedules = append(event.Schedules, schedule.ID)
	}
	publishEvent(ctx, s.events, s.logger, s.newID, event)

	if s.notifications == nil {
		return
	}
	req := NotificationRequest{
		OrderID:  result.Order.ID,
		UserID:   result.Order.UserID,
		Template: notifications.TemplateOrderCancelled,
		Vars:     map[string]string{notifications.VarOrderNumber: shortOrderNumber(result.Order.ID)},
		Amounts:  map[string]int64{notifications.VarAmount: result.RefundedAmount()},
	}
	runDetached(ctx, defaultSideEffectTimeout, func(ctx context.Context) {
		s.notifications.Notify(ctx, req)
	})
}

// depositsHoldingFunds returns the deposits the gateway may still hold money for, including captured
// charges held for review and pending charges that could yet settle.
func depositsHoldingFunds(list []Payment) []Payment {
	var out []Payment
	for _, payment := range list {
		if payment.HoldsDepositFunds() {
			out = append(out, payment)
		}
	}
	return out
}
