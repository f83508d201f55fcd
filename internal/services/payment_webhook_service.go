package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/payments"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

// notificationTypePayment is the only callback type that carries a payment to reconcile.
const notificationTypePayment = "payment"

var (
	// ErrWebhookInvalidPayload signals a callback without a payment id.
	ErrWebhookInvalidPayload = errors.New("webhook: invalid payload")
	// ErrWebhookPaymentNotFound indicates neither storage nor the gateway reference identify the order.
	ErrWebhookPaymentNotFound = errors.New("webhook: payment not found")
	// ErrWebhookGatewayUnavailable indicates the gateway lookup failed.
	ErrWebhookGatewayUnavailable = errors.New("webhook: payment gateway unavailable")
)

// PaymentWebhookServiceDeps bundles collaborators required by the webhook reconciler.
type PaymentWebhookServiceDeps struct {
	Payments       repositories.PaymentRepository
	Gateway        PaymentGateway
	Deposits       DepositService
	FinalPayments  FinalPaymentService
	GatewayTimeout time.Duration
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type paymentWebhookService struct {
	payments       repositories.PaymentRepository
	gateway        PaymentGateway
	deposits       DepositService
	finalPayments  FinalPaymentService
	gatewayTimeout time.Duration
	logger         func(context.Context, string, map[string]any)
}

var _ PaymentWebhookService = (*paymentWebhookService)(nil)

// NewPaymentWebhookService constructs the gateway callback reconciler.
func NewPaymentWebhookService(deps PaymentWebhookServiceDeps) (PaymentWebhookService, error) {
	switch {
	case deps.Payments == nil:
		return nil, errors.New("payment webhook service: payment repository is required")
	case deps.Gateway == nil:
		return nil, errors.New("payment webhook service: payment gateway is required")
	case deps.Deposits == nil:
		return nil, errors.New("payment webhook service: deposit service is required")
	case deps.FinalPayments == nil:
		return nil, errors.New("payment webhook service: final payment service is required")
	}
	return &paymentWebhookService{
		payments:       deps.Payments,
		gateway:        deps.Gateway,
		deposits:       deps.Deposits,
		finalPayments:  deps.FinalPayments,
		gatewayTimeout: durationOrDefault(deps.GatewayTimeout, defaultGatewayTimeout),
		logger:         loggerOrNoop(deps.Logger),
	}, nil
}

// Handle reconciles one callback. The gateway is the source of truth for the payment state; the
// payload only names the payment to look up.
func (s *paymentWebhookService) Handle(ctx context.Context, notification PaymentNotification) (WebhookOutcome, error) {
	if !strings.EqualFold(strings.TrimSpace(notification.Type), notificationTypePayment) {
		return WebhookOutcomeIgnored, nil
	}
	paymentID := strings.TrimSpace(notification.PaymentID)
	if paymentID == "" {
		return WebhookOutcomeError, fmt.Errorf("%w: payment id is required", ErrWebhookInvalidPayload)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	details, err := s.gateway.LookupPayment(lookupCtx, paymentID)
	cancel()
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			return WebhookOutcomeNotFound, fmt.Errorf("%w: %v", ErrWebhookPaymentNotFound, err)
		}
		return WebhookOutcomeError, fmt.Errorf("%w: %v", ErrWebhookGatewayUnavailable, err)
	}
	if !details.Approved() {
		s.logger(ctx, "webhook.payment.not_approved", map[string]any{
			"paymentId": paymentID,
			"status":    string(details.Status),
		})
		return WebhookOutcomeOK, nil
	}
	if details.TransactionID == "" {
		details.TransactionID = paymentID
	}

	stored, err := s.payments.FindByTransactionID(ctx, details.TransactionID)
	switch {
	case err == nil:
		return s.handleStored(ctx, stored, details)
	case !isNotFound(err):
		return WebhookOutcomeError, mapRepositoryError(err, nil, nil)
	}

	orderID, paymentType, ok := payments.ParseReference(details.ExternalReference)
	if !ok {
		s.logger(ctx, "webhook.payment.unmatched", map[string]any{"paymentId": paymentID})
		return WebhookOutcomeNotFound, fmt.Errorf("%w: %s has no external reference", ErrWebhookPaymentNotFound, paymentID)
	}
	return s.dispatch(ctx, orderID, domain.PaymentType(paymentType), details)
}

func (s *paymentWebhookService) handleStored(ctx context.Context, stored Payment, details payments.PaymentDetails) (WebhookOutcome, error) {
	switch stored.Status {
	case domain.PaymentStatusCompleted, domain.PaymentStatusNeedsReview, domain.PaymentStatusRefunded:
		s.logger(ctx, "webhook.payment.already_processed", map[string]any{
			"orderId":       stored.OrderID,
			"transactionId": stored.TransactionID,
			"status":        string(stored.Status),
		})
		return WebhookOutcomeOK, nil
	}
	return s.dispatch(ctx, stored.OrderID, stored.Type, details)
}

func (s *paymentWebhookService) dispatch(ctx context.Context, orderID string, paymentType domain.PaymentType, details payments.PaymentDetails) (WebhookOutcome, error) {
	switch paymentType {
	case domain.PaymentTypeDeposit:
		result, err := s.deposits.Confirm(ctx, DepositConfirmation{
			Source:        DepositSourceWebhook,
			OrderID:       orderID,
			TransactionID: details.TransactionID,
			Amount:        details.Amount,
			Method:        details.Method,
			Provider:      details.Provider,
		})
		if err != nil {
			return outcomeForError(err, ErrDepositOrderNotFound), err
		}
		if result.Conflict {
			s.logger(ctx, "webhook.deposit.conflict", map[string]any{"orderId": orderID})
		}
		return WebhookOutcomeOK, nil
	case domain.PaymentTypeFinal:
		if _, err := s.finalPayments.Complete(ctx, FinalPaymentApproval{
			OrderID:       orderID,
			TransactionID: details.TransactionID,
			Amount:        details.Amount,
			Method:        details.Method,
			Provider:      details.Provider,
		}); err != nil {
			return outcomeForError(err, ErrFinalPaymentOrderNotFound), err
		}
		return WebhookOutcomeOK, nil
	}
	s.logger(ctx, "webhook.payment.unknown_type", map[string]any{
		"orderId": orderID,
		"type":    string(paymentType),
	})
	return WebhookOutcomeIgnored, nil
}

func outcomeForError(err, notFound error) WebhookOutcome {
	if errors.Is(err, notFound) {
		return WebhookOutcomeNotFound
	}
	return WebhookOutcomeError
}
