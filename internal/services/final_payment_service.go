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
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
)

var (
	// ErrFinalPaymentInvalidInput signals a malformed request.
	ErrFinalPaymentInvalidInput = errors.New("final payment: invalid input")
	// ErrFinalPaymentOrderNotFound indicates the order does not exist.
	ErrFinalPaymentOrderNotFound = errors.New("final payment: order not found")
	// ErrFinalPaymentPermissionDenied indicates the actor is not staff or admin.
	ErrFinalPaymentPermissionDenied = errors.New("final payment: permission denied")
	// ErrFinalPaymentAlreadyCompleted indicates the remainder was already settled.
	ErrFinalPaymentAlreadyCompleted = errors.New("final payment: order already completed")
	// ErrFinalPaymentDepositRequired indicates the order has no confirmed deposit.
	ErrFinalPaymentDepositRequired = errors.New("final payment: deposit not confirmed")
	// ErrFinalPaymentGatewayUnavailable indicates the gateway call failed.
	ErrFinalPaymentGatewayUnavailable = errors.New("final payment: payment gateway unavailable")
)

// FinalPaymentServiceDeps bundles collaborators required by the final payment service.
type FinalPaymentServiceDeps struct {
	Orders        repositories.OrderRepository
	Payments      repositories.PaymentRepository
	Bookings      repositories.BookingRepository
	Users         repositories.UserRepository
	Gateway       PaymentGateway
	Notifications NotificationService
	Invoices      InvoiceService
	Events        EventPublisher
	// SuccessURL and CancelURL are where the hosted checkout returns the customer.
	SuccessURL     string
	CancelURL      string
	GatewayTimeout time.Duration
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type finalPaymentService struct {
	orders         repositories.OrderRepository
	payments       repositories.PaymentRepository
	bookings       repositories.BookingRepository
	users          repositories.UserRepository
	gateway        PaymentGateway
	notifications  NotificationService
	invoices       InvoiceService
	events         EventPublisher
	successURL     string
	cancelURL      string
	gatewayTimeout time.Duration
	now            func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)
}

var _ FinalPaymentService = (*finalPaymentService)(nil)

// NewFinalPaymentService constructs the remainder payment service.
func NewFinalPaymentService(deps FinalPaymentServiceDeps) (FinalPaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("final payment service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("final payment service: payment repository is required")
	}
	if deps.Bookings == nil {
		return nil, errors.New("final payment service: booking repository is required")
	}
	return &finalPaymentService{
		orders:         deps.Orders,
		payments:       deps.Payments,
		bookings:       deps.Bookings,
		users:          deps.Users,
		gateway:        deps.Gateway,
		notifications:  deps.Notifications,
		invoices:       deps.Invoices,
		events:         deps.Events,
		successURL:     strings.TrimSpace(deps.SuccessURL),
		cancelURL:      strings.TrimSpace(deps.CancelURL),
		gatewayTimeout: durationOrDefault(deps.GatewayTimeout, defaultGatewayTimeout),
		now:            utcClock(deps.Clock),
		newID:          idGeneratorOrDefault(deps.IDGenerator),
		logger:         loggerOrNoop(deps.Logger),
	}, nil
}

// GenerateLink creates a hosted checkout for the order remainder and records it as a PENDING FINAL payment.
func (s *finalPaymentService) GenerateLink(ctx context.Context, cmd GenerateFinalPaymentCommand) (FinalPaymentLink, error) {
	if cmd.Actor == nil || !cmd.Actor.IsOperator() {
		return FinalPaymentLink{}, ErrFinalPaymentPermissionDenied
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return FinalPaymentLink{}, fmt.Errorf("%w: order id is required", ErrFinalPaymentInvalidInput)
	}
	if s.gateway == nil {
		return FinalPaymentLink{}, fmt.Errorf("%w: gateway not configured", ErrFinalPaymentGatewayUnavailable)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return FinalPaymentLink{}, mapRepositoryError(err, ErrFinalPaymentOrderNotFound, nil)
	}
	switch {
	case order.Status == domain.OrderStatusCompleted:
		return FinalPaymentLink{}, ErrFinalPaymentAlreadyCompleted
	case !order.Status.AwaitsFinalPayment():
		return FinalPaymentLink{}, fmt.Errorf("%w: order is %s", ErrFinalPaymentDepositRequired, order.Status)
	}
	if order.Totals.Remainder <= 0 {
		return FinalPaymentLink{}, fmt.Errorf("%w: order has no remainder to charge", ErrFinalPaymentInvalidInput)
	}

	var payerEmail string
	if s.users != nil {
		if user, err := s.users.FindByID(ctx, order.UserID); err == nil {
			payerEmail = user.Email
		}
	}

	paymentID := s.newID()
	linkCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	link, err := s.gateway.CreatePaymentLink(linkCtx, cmd.Provider, payments.LinkRequest{
		OrderID:        orderID,
		Type:           string(domain.PaymentTypeFinal),
		Amount:         order.Totals.Remainder,
		Currency:       payments.CurrencyBRL,
		Title:          fmt.Sprintf("Saldo do pedido %s", shortOrderNumber(orderID)),
		PayerEmail:     payerEmail,
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		IdempotencyKey: "final-link-" + paymentID,
	})
	cancel()
	if err != nil {
		s.logger(ctx, "final_payment.link_failed", map[string]any{"orderId": orderID, "error": err.Error()})
		return FinalPaymentLink{}, fmt.Errorf("%w: %v", ErrFinalPaymentGatewayUnavailable, err)
	}

	now := s.now()
	payment := domain.Payment{
		ID:            paymentID,
		OrderID:       orderID,
		Type:          domain.PaymentTypeFinal,
		Status:        domain.PaymentStatusPending,
		Amount:        order.Totals.Remainder,
		Provider:      link.Provider,
		TransactionID: link.ID,
		PaymentLink:   link.URL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return FinalPaymentLink{}, mapRepositoryError(err, ErrFinalPaymentOrderNotFound, nil)
	}
	s.logger(ctx, "final_payment.link_created", map[string]any{
		"orderId":   orderID,
		"paymentId": paymentID,
		"actorId":   actorID(cmd.Actor),
		"amount":    payment.Amount,
	})

	if s.notifications != nil {
		runDetached(ctx, defaultSideEffectTimeout, func(ctx context.Context) {
			s.notifications.Notify(ctx, NotificationRequest{
				OrderID:  orderID,
				UserID:   order.UserID,
				Template: notifications.TemplateFinalPayment,
				Vars: map[string]string{
					notifications.VarOrderNumber: shortOrderNumber(orderID),
					notifications.VarPaymentLink: link.URL,
				},
				Amounts: map[string]int64{notifications.VarAmount: payment.Amount},
			})
		})
	}

	return FinalPaymentLink{
		OrderID:   orderID,
		PaymentID: paymentID,
		URL:       link.URL,
		Amount:    payment.Amount,
		ExpiresAt: link.ExpiresAt,
	}, nil
}

// Complete settles the remainder. The pending FINAL payment created with the link is promoted when
// the gateway reports a different transaction id than the checkout id.
func (s *finalPaymentService) Complete(ctx context.Context, req FinalPaymentApproval) (FinalPaymentResult, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return FinalPaymentResult{}, fmt.Errorf("%w: order id is required", ErrFinalPaymentInvalidInput)
	}
	transactionID := strings.TrimSpace(req.TransactionID)
	if transactionID == "" {
		return FinalPaymentResult{}, fmt.Errorf("%w: transaction id is required", ErrFinalPaymentInvalidInput)
	}

	paymentID := ""
	existing, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil && !isNotFound(err) {
		return FinalPaymentResult{}, mapRepositoryError(err, ErrFinalPaymentOrderNotFound, nil)
	}
	if pending, ok := latestPendingFinal(existing); ok {
		paymentID = pending.ID
	}
	if paymentID == "" {
		paymentID = s.newID()
	}

	committed, err := s.bookings.CompleteFinalPayment(ctx, repositories.FinalPaymentCommit{
		OrderID: orderID,
		Payment: domain.Payment{
			ID:            paymentID,
			Amount:        req.Amount,
			Method:        strings.TrimSpace(req.Method),
			Provider:      strings.TrimSpace(req.Provider),
			TransactionID: transactionID,
		},
		Now: s.now(),
	})
	if err != nil {
		switch repositories.BookingErrorCodeOf(err) {
		case repositories.BookingErrorInvalidOrderState:
			return FinalPaymentResult{}, fmt.Errorf("%w: %v", ErrFinalPaymentDepositRequired, err)
		case repositories.BookingErrorOrderNotFound:
			return FinalPaymentResult{}, fmt.Errorf("%w: %v", ErrFinalPaymentOrderNotFound, err)
		}
		return FinalPaymentResult{}, mapRepositoryError(err, ErrFinalPaymentOrderNotFound, nil)
	}
	if committed.AlreadyProcessed {
		return FinalPaymentResult{Order: committed.Order, Payment: committed.Payment, AlreadyProcessed: true}, nil
	}

	s.logger(ctx, "final_payment.completed", map[string]any{
		"orderId":       orderID,
		"paymentId":     committed.Payment.ID,
		"transactionId": transactionID,
	})
	s.afterCommit(ctx, committed)
	return FinalPaymentResult{Order: committed.Order, Payment: committed.Payment}, nil
}

func (s *finalPaymentService) afterCommit(ctx context.Context, committed repositories.FinalPaymentCommitResult) {
	publishEvent(ctx, s.events, s.logger, s.newID, BookingEvent{
		Type:          EventCompleted,
		OrderID:       committed.Order.ID,
		UserID:        committed.Order.UserID,
		Amount:        committed.Payment.Amount,
		TransactionID: committed.Payment.TransactionID,
		OccurredAt:    s.now(),
	})
	if s.notifications != nil {
		runDetached(ctx, defaultSideEffectTimeout, func(ctx context.Context) {
			s.notifications.Notify(ctx, NotificationRequest{
				OrderID:  committed.Order.ID,
				UserID:   committed.Order.UserID,
				Template: notifications.TemplateServiceCompleted,
				Vars: map[string]string{
					notifications.VarOrderNumber: shortOrderNumber(committed.Order.ID),
				},
			})
		})
	}
	if s.invoices != nil {
		runDetached(ctx, defaultSideEffectTimeout, func(ctx context.Context) {
			if _, err := s.invoices.Issue(ctx, IssueInvoiceCommand{
				OrderID:  committed.Order.ID,
				Delivery: InvoiceDeliveryBoth,
				Actor:    systemActor(),
			}); err != nil {
				s.logger(ctx, "final_payment.invoice_failed", map[string]any{
					"orderId": committed.Order.ID,
					"error":   err.Error(),
				})
			}
		})
	}
}

func latestPendingFinal(list []Payment) (Payment, bool) {
	var (
		found  Payment
		exists bool
	)
	for _, payment := range list {
		if payment.Type != domain.PaymentTypeFinal || payment.Status != domain.PaymentStatusPending {
			continue
		}
		if !exists || payment.CreatedAt.After(found.CreatedAt) {
			found = payment
			exists = true
		}
	}
	return found, exists
}
