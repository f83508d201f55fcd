package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/notifications"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/payments"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/scheduling"
)

var (
	// ErrDepositInvalidInput signals a malformed confirmation or order.
	ErrDepositInvalidInput = errors.New("deposit: invalid input")
	// ErrDepositOrderNotFound indicates the order does not exist.
	ErrDepositOrderNotFound = errors.New("deposit: order not found")
	// ErrDepositInvalidState indicates the order cannot take a deposit in its current status.
	ErrDepositInvalidState = errors.New("deposit: invalid order state")
	// ErrDepositPermissionDenied indicates the actor does not own the order.
	ErrDepositPermissionDenied = errors.New("deposit: permission denied")
	// ErrDepositSlotConflict indicates one of the order's slots is already booked.
	ErrDepositSlotConflict = errors.New("deposit: slot already booked")
	// ErrDepositPaymentDeclined indicates the gateway rejected the charge.
	ErrDepositPaymentDeclined = errors.New("deposit: payment declined")
	// ErrDepositPaymentPending indicates the charge awaits gateway confirmation; the webhook completes it.
	// The in-flight charge is recorded as a PENDING deposit payment.
	ErrDepositPaymentPending = errors.New("deposit: payment pending")
	// ErrDepositGatewayUnavailable indicates the gateway call failed.
	ErrDepositGatewayUnavailable = errors.New("deposit: payment gateway unavailable")
)

// PaymentGateway is the subset of payments.Manager used by the booking services.
type PaymentGateway interface {
	Charge(ctx context.Context, preferred string, req payments.ChargeRequest) (payments.PaymentDetails, error)
	CreatePaymentLink(ctx context.Context, preferred string, req payments.LinkRequest) (payments.LinkResult, error)
	LookupPayment(ctx context.Context, transactionID string) (payments.PaymentDetails, error)
	Refund(ctx context.Context, req payments.RefundRequest) (payments.PaymentDetails, error)
	IsMockTransaction(transactionID string) bool
}

var _ PaymentGateway = (*payments.Manager)(nil)

// DepositServiceDeps bundles collaborators required by the deposit orchestrator.
type DepositServiceDeps struct {
	Orders        repositories.OrderRepository
	Payments      repositories.PaymentRepository
	Bookings      repositories.BookingRepository
	Catalog       repositories.ServiceCatalogRepository
	Availability  AvailabilityService
	Gateway       PaymentGateway
	Notifications NotificationService
	Events        EventPublisher
	Location      *time.Location
	// GatewayTimeout bounds each call to the payment gateway.
	GatewayTimeout time.Duration
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type depositService struct {
	orders         repositories.OrderRepository
	payments       repositories.PaymentRepository
	bookings       repositories.BookingRepository
	catalog        repositories.ServiceCatalogRepository
	availability   AvailabilityService
	gateway        PaymentGateway
	notifications  NotificationService
	events         EventPublisher
	loc            *time.Location
	gatewayTimeout time.Duration
	now            func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)
}

var _ DepositService = (*depositService)(nil)

// NewDepositService constructs the deposit orchestrator shared by the synchronous and webhook triggers.
func NewDepositService(deps DepositServiceDeps) (DepositService, error) {
	if deps.Orders == nil {
		return nil, errors.New("deposit service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("deposit service: payment repository is required")
	}
	if deps.Bookings == nil {
		return nil, errors.New("deposit service: booking repository is required")
	}
	if deps.Availability == nil {
		return nil, errors.New("deposit service: availability service is required")
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &depositService{
		orders:         deps.Orders,
		payments:       deps.Payments,
		bookings:       deps.Bookings,
		catalog:        deps.Catalog,
		availability:   deps.Availability,
		gateway:        deps.Gateway,
		notifications:  deps.Notifications,
		events:         deps.Events,
		loc:            loc,
		gatewayTimeout: durationOrDefault(deps.GatewayTimeout, defaultGatewayTimeout),
		now:            utcClock(deps.Clock),
		newID:          idGeneratorOrDefault(deps.IDGenerator),
		logger:         loggerOrNoop(deps.Logger),
	}, nil
}

// Confirm is the single idempotent PENDING -> DEPOSIT_PAID transition. The slot check is repeated
// inside the booking transaction; the pre-check only fails fast.
func (s *depositService) Confirm(ctx context.Context, req DepositConfirmation) (DepositResult, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return DepositResult{}, fmt.Errorf("%w: order id is required", ErrDepositInvalidInput)
	}
	if strings.TrimSpace(req.TransactionID) == "" {
		return DepositResult{}, fmt.Errorf("%w: transaction id is required", ErrDepositInvalidInput)
	}
	if req.Source != DepositSourceSync && req.Source != DepositSourceWebhook {
		return DepositResult{}, fmt.Errorf("%w: unknown source %q", ErrDepositInvalidInput, req.Source)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return DepositResult{}, mapRepositoryError(err, ErrDepositOrderNotFound, nil)
	}
	if order.Status != domain.OrderStatusPending {
		s.logger(ctx, "deposit.already_processed", map[string]any{
			"orderId": orderID,
			"status":  string(order.Status),
			"source":  string(req.Source),
		})
		return DepositResult{Order: order, AlreadyProcessed: true}, nil
	}

	groups, err := scheduling.GroupItems(order.Items, s.loc)
	if err != nil {
		return DepositResult{}, fmt.Errorf("%w: %v", ErrDepositInvalidInput, err)
	}
	if conflict, err := s.precheck(ctx, groups); err != nil {
		return DepositResult{}, err
	} else if conflict != nil {
		return s.resolveConflict(ctx, req, order, conflict)
	}

	amount := req.Amount
	if amount <= 0 {
		amount = order.Totals.Deposit
	}
	if amount < order.Totals.Deposit {
		s.logger(ctx, "deposit.amount_mismatch", map[string]any{
			"orderId":  orderID,
			"expected": order.Totals.Deposit,
			"received": amount,
		})
	}

	now := s.now()
	commit := repositories.DepositCommit{
		OrderID: orderID,
		Payment: domain.Payment{
			ID:            s.newID(),
			OrderID:       orderID,
			Type:          domain.PaymentTypeDeposit,
			Status:        domain.PaymentStatusCompleted,
			Amount:        amount,
			Method:        strings.TrimSpace(req.Method),
			Provider:      strings.TrimSpace(req.Provider),
			TransactionID: strings.TrimSpace(req.TransactionID),
		},
		Now: now,
	}
	for _, group := range groups {
		commit.Schedules = append(commit.Schedules, repositories.ScheduleDraft{
			ID:        s.newID(),
			TeamID:    group.TeamID,
			Date:      group.Date,
			TimeSlot:  group.TimeSlot,
			Services:  group.Services,
			PartySize: order.PartySize,
		})
	}

	committed, err := s.bookings.ConfirmDeposit(ctx, commit)
	if err != nil {
		switch repositories.BookingErrorCodeOf(err) {
		case repositories.BookingErrorSlotTaken:
			var slotErr *repositories.SlotConflictError
			if errors.As(err, &slotErr) {
				return s.resolveConflict(ctx, req, order, slotErr)
			}
			return DepositResult{}, fmt.Errorf("%w: %v", ErrDepositSlotConflict, err)
		case repositories.BookingErrorOrderNotFound:
			return DepositResult{}, fmt.Errorf("%w: %v", ErrDepositOrderNotFound, err)
		}
		return DepositResult{}, mapRepositoryError(err, ErrDepositOrderNotFound, nil)
	}
	if committed.AlreadyProcessed {
		return DepositResult{Order: committed.Order, AlreadyProcessed: true}, nil
	}

	s.logger(ctx, "deposit.confirmed", map[string]any{
		"orderId":       orderID,
		"source":        string(req.Source),
		"transactionId": commit.Payment.TransactionID,
		"schedules":     len(committed.Schedules),
	})
	s.afterCommit(ctx, req, committed)

	return DepositResult{
		Order:     committed.Order,
		Payment:   committed.Payment,
		Schedules: committed.Schedules,
	}, nil
}

// PayDeposit charges the deposit synchronously and confirms it through Confirm.
func (s *depositService) PayDeposit(ctx context.Context, cmd PayDepositCommand) (DepositResult, error) {
	if s.gateway == nil {
		return DepositResult{}, fmt.Errorf("%w: gateway not configured", ErrDepositGatewayUnavailable)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return DepositResult{}, fmt.Errorf("%w: order id is required", ErrDepositInvalidInput)
	}
	if cmd.Actor == nil || actorID(cmd.Actor) == "" {
		return DepositResult{}, ErrDepositPermissionDenied
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return DepositResult{}, mapRepositoryError(err, ErrDepositOrderNotFound, nil)
	}
	if order.UserID != actorID(cmd.Actor) {
		return DepositResult{}, ErrDepositPermissionDenied
	}
	if order.Status != domain.OrderStatusPending {
		return DepositResult{}, fmt.Errorf("%w: order is %s", ErrDepositInvalidState, order.Status)
	}
	if order.Totals.Deposit <= 0 {
		return DepositResult{}, fmt.Errorf("%w: order has no deposit amount", ErrDepositInvalidInput)
	}

	groups, err := scheduling.GroupItems(order.Items, s.loc)
	if err != nil {
		return DepositResult{}, fmt.Errorf("%w: %v", ErrDepositInvalidInput, err)
	}
	if conflict, err := s.precheck(ctx, groups); err != nil {
		return DepositResult{}, err
	} else if conflict != nil {
		return DepositResult{}, fmt.Errorf("%w: %w", ErrDepositSlotConflict, conflict)
	}

	if result, resumed, err := s.resumeInFlight(ctx, orderID); resumed || err != nil {
		return result, err
	}

	token := strings.TrimSpace(cmd.Token)
	chargeCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	details, err := s.gateway.Charge(chargeCtx, cmd.Provider, payments.ChargeRequest{
		OrderID:        orderID,
		Type:           string(domain.PaymentTypeDeposit),
		Amount:         order.Totals.Deposit,
		Currency:       payments.CurrencyBRL,
		Method:         strings.TrimSpace(cmd.Method),
		Token:          token,
		PayerEmail:     strings.TrimSpace(cmd.Actor.Email),
		Description:    fmt.Sprintf("Sinal do pedido %s", shortOrderNumber(orderID)),
		IdempotencyKey: depositChargeKey(orderID, token, cmd.IdempotencyKey),
	})
	cancel()
	if err != nil {
		s.logger(ctx, "deposit.charge_failed", map[string]any{"orderId": orderID, "error": err.Error()})
		return DepositResult{}, fmt.Errorf("%w: %v", ErrDepositGatewayUnavailable, err)
	}
	switch details.Status {
	case payments.StatusApproved:
	case payments.StatusPending:
		return s.recordPending(ctx, order, details)
	default:
		return DepositResult{}, fmt.Errorf("%w: gateway status %s", ErrDepositPaymentDeclined, details.Status)
	}

	result, err := s.Confirm(ctx, DepositConfirmation{
		Source:        DepositSourceSync,
		OrderID:       orderID,
		TransactionID: details.TransactionID,
		Amount:        details.Amount,
		Method:        details.Method,
		Provider:      details.Provider,
	})
	if errors.Is(err, ErrDepositSlotConflict) {
		s.refundLostRace(ctx, orderID, details)
	}
	return result, err
}

// depositChargeKey scopes the gateway idempotency key to one payment attempt: the same card and request
// key replay the stored charge, while a new card or a new request key starts a fresh one.
func depositChargeKey(orderID, token, requestKey string) string {
	sum := sha256.Sum256([]byte(token + "\x00" + strings.TrimSpace(requestKey)))
	return "deposit-" + orderID + "-" + hex.EncodeToString(sum[:8])
}

// resumeInFlight settles a deposit charge that was still pending at the gateway on an earlier attempt.
// It reports resumed=false when no such charge is alive, so a new charge may be made.
func (s *depositService) resumeInFlight(ctx context.Context, orderID string) (DepositResult, bool, error) {
	list, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil && !isNotFound(err) {
		return DepositResult{}, false, mapRepositoryError(err, ErrDepositOrderNotFound, nil)
	}
	for _, payment := range list {
		if payment.Status != domain.PaymentStatusPending || !payment.HoldsDepositFunds() {
			continue
		}
		lookupCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		details, err := s.gateway.LookupPayment(lookupCtx, payment.TransactionID)
		cancel()
		if err != nil {
			return DepositResult{}, false, fmt.Errorf("%w: lookup %s: %v", ErrDepositGatewayUnavailable, payment.TransactionID, err)
		}
		switch details.Status {
		case payments.StatusPending:
			return DepositResult{Payment: payment}, true, fmt.Errorf("%w: transaction %s", ErrDepositPaymentPending, payment.TransactionID)
		case payments.StatusApproved:
			if details.TransactionID == "" {
				details.TransactionID = payment.TransactionID
			}
			result, err := s.Confirm(ctx, DepositConfirmation{
				Source:        DepositSourceSync,
				OrderID:       orderID,
				TransactionID: payment.TransactionID,
				Amount:        details.Amount,
				Method:        details.Method,
				Provider:      details.Provider,
			})
			if errors.Is(err, ErrDepositSlotConflict) {
				s.refundLostRace(ctx, orderID, details)
			}
			return result, true, err
		}
		s.logger(ctx, "deposit.stale_pending", map[string]any{
			"orderId":       orderID,
			"transactionId": payment.TransactionID,
			"status":        string(details.Status),
		})
	}
	return DepositResult{}, false, nil
}

// recordPending stores the in-flight charge so refunds and payment listings see it; the webhook promotes
// the same record by transaction id.
func (s *depositService) recordPending(ctx context.Context, order Order, details payments.PaymentDetails) (DepositResult, error) {
	now := s.now()
	amount := details.Amount
	if amount <= 0 {
		amount = order.Totals.Deposit
	}
	payment := domain.Payment{
		ID:            s.newID(),
		OrderID:       order.ID,
		Type:          domain.PaymentTypeDeposit,
		Status:        domain.PaymentStatusPending,
		Amount:        amount,
		Method:        strings.TrimSpace(details.Method),
		Provider:      strings.TrimSpace(details.Provider),
		TransactionID: strings.TrimSpace(details.TransactionID),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		s.logger(ctx, "deposit.pending_record_failed", map[string]any{
			"orderId":       order.ID,
			"transactionId": payment.TransactionID,
			"error":         err.Error(),
		})
		return DepositResult{}, mapRepositoryError(err, ErrDepositOrderNotFound, nil)
	}
	s.logger(ctx, "deposit.pending", map[string]any{
		"orderId":       order.ID,
		"transactionId": payment.TransactionID,
	})
	return DepositResult{Order: order, Payment: payment}, fmt.Errorf("%w: transaction %s", ErrDepositPaymentPending, payment.TransactionID)
}

// precheck returns the first occupied slot among the groups.
func (s *depositService) precheck(ctx context.Context, groups []scheduling.ScheduleGroup) (*repositories.SlotConflictError, error) {
	for _, group := range groups {
		taken, err := s.availability.IsSlotTaken(ctx, group.TeamID, group.Date, group.TimeSlot)
		if err != nil {
			return nil, err
		}
		if taken {
			return &repositories.SlotConflictError{
				TeamID: group.TeamID,
				Date:   scheduling.FormatDate(group.Date),
				Slot:   group.TimeSlot,
			}, nil
		}
	}
	return nil, nil
}

// resolveConflict fails the synchronous trigger. A webhook deposit was already captured by the
// gateway, so it is stored for operator review instead of failing the callback.
func (s *depositService) resolveConflict(ctx context.Context, req DepositConfirmation, order Order, conflict *repositories.SlotConflictError) (DepositResult, error) {
	fields := map[string]any{
		"orderId":       order.ID,
		"source":        string(req.Source),
		"transactionId": req.TransactionID,
		"teamId":        conflict.TeamID,
		"date":          conflict.Date,
		"slot":          conflict.Slot,
	}
	if req.Source == DepositSourceSync {
		s.logger(ctx, "deposit.slot_conflict", fields)
		return DepositResult{}, fmt.Errorf("%w: %w", ErrDepositSlotConflict, conflict)
	}

	s.logger(ctx, "deposit.review_required", fields)
	amount := req.Amount
	if amount <= 0 {
		amount = order.Totals.Deposit
	}
	payment, err := s.bookings.RecordDepositReview(ctx, repositories.ReviewCommit{
		Payment: domain.Payment{
			ID:            s.newID(),
			OrderID:       order.ID,
			Type:          domain.PaymentTypeDeposit,
			Amount:        amount,
			Method:        strings.TrimSpace(req.Method),
			Provider:      strings.TrimSpace(req.Provider),
			TransactionID: strings.TrimSpace(req.TransactionID),
			Note:          conflict.Error(),
		},
		Now: s.now(),
	})
	if err != nil {
		return DepositResult{}, mapRepositoryError(err, ErrDepositOrderNotFound, nil)
	}
	publishEvent(ctx, s.events, s.logger, s.newID, BookingEvent{
		Type:          EventReviewRequired,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Amount:        payment.Amount,
		TransactionID: payment.TransactionID,
		Source:        string(req.Source),
		Reason:        conflict.Error(),
		OccurredAt:    s.now(),
	})
	return DepositResult{
		Order:    order,
		Payment:  payment,
		Conflict: true,
		ConflictSlot: &SlotConflict{
			TeamID: conflict.TeamID,
			Date:   conflict.Date,
			Slot:   conflict.Slot,
		},
	}, nil
}

func (s *depositService) refundLostRace(ctx context.Context, orderID string, details payments.PaymentDetails) {
	runDetached(ctx, s.gatewayTimeout, func(ctx context.Context) {
		_, err := s.gateway.Refund(ctx, payments.RefundRequest{
			TransactionID:  details.TransactionID,
			Reason:         "slot_conflict",
			IdempotencyKey: "deposit-conflict-" + details.TransactionID,
		})
		fields := map[string]any{"orderId": orderID, "transactionId": details.TransactionID}
		if err != nil {
			fields["error"] = err.Error()
			s.logger(ctx, "deposit.conflict_refund_failed", fields)
			return
		}
		s.logger(ctx, "deposit.conflict_refunded", fields)
	})
}

func (s *depositService) afterCommit(ctx context.Context, req DepositConfirmation, committed repositories.DepositCommitResult) {
	scheduleIDs := make([]string, 0, len(committed.Schedules))
	for _, schedule := range committed.Schedules {
		scheduleIDs = append(scheduleIDs, schedule.ID)
	}
	publishEvent(ctx, s.events, s.logger, s.newID, BookingEvent{
		Type:          EventDepositPaid,
		OrderID:       committed.Order.ID,
		UserID:        committed.Order.UserID,
		Amount:        committed.Payment.Amount,
		TransactionID: committed.Payment.TransactionID,
		Source:        string(req.Source),
		Schedules:     scheduleIDs,
		OccurredAt:    s.now(),
	})
	if s.notifications == nil {
		return
	}
	runDetached(ctx, defaultSideEffectTimeout, func(ctx context.Context) {
		s.notifications.Notify(ctx, NotificationRequest{
			OrderID:  committed.Order.ID,
			UserID:   committed.Order.UserID,
			Template: notifications.TemplateOrderConfirmation,
			Vars: map[string]string{
				notifications.VarOrderNumber:   shortOrderNumber(committed.Order.ID),
				notifications.VarScheduledDate: describeSchedules(committed.Schedules, s.loc),
				notifications.VarDocuments:     s.requiredDocuments(ctx, committed.Order),
			},
			Amounts: map[string]int64{notifications.VarDepositPaid: committed.Payment.Amount},
		})
	})
}

// requiredDocuments lists the union of documents the ordered services ask for.
func (s *depositService) requiredDocuments(ctx context.Context, order Order) string {
	if s.catalog == nil {
		return "-"
	}
	seen := make(map[string]struct{})
	var docs []string
	for _, item := range order.Items {
		svc, err := s.catalog.FindByID(ctx, item.ServiceID)
		if err != nil {
			continue
		}
		for _, doc := range svc.RequiredDocuments {
			if _, ok := seen[doc]; ok {
				continue
			}
			seen[doc] = struct{}{}
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return "-"
	}
	return "- " + strings.Join(docs, "\n- ")
}

func describeSchedules(schedules []Schedule, loc *time.Location) string {
	lines := make([]string, 0, len(schedules))
	sorted := append([]Schedule(nil), schedules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ScheduledDate.Equal(sorted[j].ScheduledDate) {
			return sorted[i].ScheduledDate.Before(sorted[j].ScheduledDate)
		}
		return sorted[i].TimeSlot < sorted[j].TimeSlot
	})
	for _, schedule := range sorted {
		names := make([]string, 0, len(schedule.Services))
		for _, svc := range schedule.Services {
			names = append(names, svc.ServiceName)
		}
		date := schedule.ScheduledDate
		if loc != nil {
			date = date.In(loc)
		}
		lines = append(lines, fmt.Sprintf("%s %s - %s", date.Format("02/01/2006"), schedule.TimeSlot, strings.Join(names, ", ")))
	}
	return strings.Join(lines, "\n")
}
