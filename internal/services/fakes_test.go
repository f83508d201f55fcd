package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/invoicing"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/notifications"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/payments"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/storage"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/scheduling"
)

var testLocation = time.FixedZone("BRT", -3*60*60)

type memRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *memRepoError) Error() string       { return e.msg }
func (e *memRepoError) IsNotFound() bool    { return e.notFound }
func (e *memRepoError) IsConflict() bool    { return e.conflict }
func (e *memRepoError) IsUnavailable() bool { return e.unavailable }

func errNotFound(kind, id string) error {
	return &memRepoError{msg: fmt.Sprintf("%s %s not found", kind, id), notFound: true}
}

func errExists(kind, id string) error {
	return &memRepoError{msg: fmt.Sprintf("%s %s already exists", kind, id), conflict: true}
}

// memStore is an in-memory document store. A single mutex serialises every operation, which gives the
// booking methods the same all-or-nothing behaviour as a Firestore transaction.
type memStore struct {
	mu            sync.Mutex
	teams         map[string]domain.Team
	services      map[string]domain.Service
	users         map[string]domain.User
	orders        map[string]domain.Order
	payments      map[string]domain.Payment
	schedules     map[string]domain.Schedule
	notifications map[string]domain.Notification
	invoices      []domain.Invoice
	locks         map[string]string
	confirmCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		teams:         map[string]domain.Team{},
		services:      map[string]domain.Service{},
		users:         map[string]domain.User{},
		orders:        map[string]domain.Order{},
		payments:      map[string]domain.Payment{},
		schedules:     map[string]domain.Schedule{},
		notifications: map[string]domain.Notification{},
		locks:         map[string]string{},
	}
}

func lockKey(teamID string, date time.Time, slot string) string {
	return teamID + "_" + scheduling.FormatDate(date) + "_" + slot
}

func (s *memStore) Teams() *memTeams                 { return &memTeams{s} }
func (s *memStore) Services() *memServices           { return &memServices{s} }
func (s *memStore) Users() *memUsers                 { return &memUsers{s} }
func (s *memStore) Orders() *memOrders               { return &memOrders{s} }
func (s *memStore) Payments() *memPayments           { return &memPayments{s} }
func (s *memStore) Schedules() *memSchedules         { return &memSchedules{s} }
func (s *memStore) Notifications() *memNotifications { return &memNotifications{s} }
func (s *memStore) Invoices() *memInvoices           { return &memInvoices{s} }
func (s *memStore) Bookings() *memBookings           { return &memBookings{s} }

func (s *memStore) putTeam(team domain.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[team.ID] = team
}

func (s *memStore) putService(svc domain.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

func (s *memStore) putUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *memStore) putOrder(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
}

func (s *memStore) putPayment(payment domain.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[payment.ID] = payment
}

func (s *memStore) putSchedule(schedule domain.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[schedule.ID] = schedule
	if schedule.Status.Active() {
		s.locks[lockKey(schedule.TeamID, schedule.ScheduledDate, schedule.TimeSlot)] = schedule.ID
	}
}

func (s *memStore) order(id string) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *memStore) paymentsOf(orderID string) []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Payment
	for _, p := range s.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) schedulesOf(orderID string) []domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Schedule
	for _, sc := range s.schedules {
		if sc.OrderID == orderID {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) activeSchedulesAt(teamID string, date time.Time, slot string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, sc := range s.schedules {
		if sc.TeamID == teamID && sc.TimeSlot == slot && sc.ScheduledDate.Equal(date) && sc.Status.Active() {
			count++
		}
	}
	return count
}

func (s *memStore) notificationList() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memTeams struct{ s *memStore }

func (r *memTeams) Insert(_ context.Context, team domain.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.teams[team.ID]; ok {
		return errExists("team", team.ID)
	}
	r.s.teams[team.ID] = team
	return nil
}

func (r *memTeams) Update(_ context.Context, team domain.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.teams[team.ID]; !ok {
		return errNotFound("team", team.ID)
	}
	r.s.teams[team.ID] = team
	return nil
}

func (r *memTeams) FindByID(_ context.Context, id string) (domain.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	team, ok := r.s.teams[id]
	if !ok {
		return domain.Team{}, errNotFound("team", id)
	}
	return team, nil
}

func (r *memTeams) List(_ context.Context, activeOnly bool) ([]domain.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Team
	for _, team := range r.s.teams {
		if activeOnly && !team.Active {
			continue
		}
		out = append(out, team)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memServices struct{ s *memStore }

func (r *memServices) Insert(_ context.Context, svc domain.Service) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.services[svc.ID]; ok {
		return errExists("service", svc.ID)
	}
	r.s.services[svc.ID] = svc
	return nil
}

func (r *memServices) Update(_ context.Context, svc domain.Service) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.services[svc.ID]; !ok {
		return errNotFound("service", svc.ID)
	}
	r.s.services[svc.ID] = svc
	return nil
}

func (r *memServices) FindByID(_ context.Context, id string) (domain.Service, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	svc, ok := r.s.services[id]
	if !ok {
		return domain.Service{}, errNotFound("service", id)
	}
	return svc, nil
}

func (r *memServices) List(_ context.Context, activeOnly bool) ([]domain.Service, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Service
	for _, svc := range r.s.services {
		if activeOnly && !svc.Active {
			continue
		}
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memUsers struct{ s *memStore }

func (r *memUsers) FindByID(_ context.Context, id string) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return domain.User{}, errNotFound("user", id)
	}
	return user, nil
}

func (r *memUsers) Upsert(_ context.Context, user domain.User) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.users[user.ID] = user
	return user, nil
}

type memOrders struct{ s *memStore }

func (r *memOrders) Insert(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[order.ID]; ok {
		return errExists("order", order.ID)
	}
	r.s.orders[order.ID] = order
	return nil
}

func (r *memOrders) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[id]
	if !ok {
		return domain.Order{}, errNotFound("order", id)
	}
	return order, nil
}

func (r *memOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Order
	for _, order := range r.s.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if len(filter.Status) > 0 {
			match := false
			for _, st := range filter.Status {
				match = match || st == order.Status
			}
			if !match {
				continue
			}
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if size := filter.Pagination.PageSize; size > 0 && len(out) > size {
		return domain.CursorPage[domain.Order]{Items: out[:size], NextPageToken: out[size-1].ID}, nil
	}
	return domain.CursorPage[domain.Order]{Items: out}, nil
}

type memPayments struct{ s *memStore }

func (r *memPayments) Insert(_ context.Context, payment domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[payment.OrderID]; !ok {
		return errNotFound("order", payment.OrderID)
	}
	if _, ok := r.s.payments[payment.ID]; ok {
		return errExists("payment", payment.ID)
	}
	r.s.payments[payment.ID] = payment
	return nil
}

func (r *memPayments) FindByTransactionID(_ context.Context, txID string) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.TransactionID == txID {
			return p, nil
		}
	}
	return domain.Payment{}, errNotFound("payment", txID)
}

func (r *memPayments) ListByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	return r.s.paymentsOf(orderID), nil
}

func (r *memPayments) ListByStatus(_ context.Context, st domain.PaymentStatus, limit int) ([]domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.s.payments {
		if p.Status == st {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memSchedules struct{ s *memStore }

func (r *memSchedules) FindByID(_ context.Context, id string) (domain.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sc, ok := r.s.schedules[id]
	if !ok {
		return domain.Schedule{}, errNotFound("schedule", id)
	}
	return sc, nil
}

func (r *memSchedules) filter(match func(domain.Schedule) bool, limit int) []domain.Schedule {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Schedule
	for _, sc := range r.s.schedules {
		if match(sc) {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ScheduledDate.Before(out[j].ScheduledDate)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

func (r *memSchedules) ListByDay(_ context.Context, start, end time.Time) ([]domain.Schedule, error) {
	return r.filter(func(sc domain.Schedule) bool { return within(sc.ScheduledDate, start, end) }, 0), nil
}

func (r *memSchedules) ListByTeamDay(_ context.Context, teamID string, start, end time.Time) ([]domain.Schedule, error) {
	return r.filter(func(sc domain.Schedule) bool {
		return sc.TeamID == teamID && within(sc.ScheduledDate, start, end)
	}, 0), nil
}

func (r *memSchedules) List(_ context.Context, filter repositories.ScheduleListFilter) ([]domain.Schedule, error) {
	return r.filter(func(sc domain.Schedule) bool {
		if filter.TeamID != "" && sc.TeamID != filter.TeamID {
			return false
		}
		if filter.From != nil && sc.ScheduledDate.Before(*filter.From) {
			return false
		}
		if filter.To != nil && sc.ScheduledDate.After(*filter.To) {
			return false
		}
		return true
	}, filter.Limit), nil
}

func (r *memSchedules) ListByOrder(_ context.Context, orderID string) ([]domain.Schedule, error) {
	return r.s.schedulesOf(orderID), nil
}

func (r *memSchedules) ListByUser(_ context.Context, userID string, limit int) ([]domain.Schedule, error) {
	return r.filter(func(sc domain.Schedule) bool { return sc.UserID == userID }, limit), nil
}

func (r *memSchedules) Mutate(_ context.Context, id string, fn func(*domain.Schedule) error) (domain.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.schedules[id]
	if !ok {
		return domain.Schedule{}, errNotFound("schedule", id)
	}
	next := current
	if err := fn(&next); err != nil {
		return domain.Schedule{}, err
	}
	next.ID, next.OrderID, next.TeamID = current.ID, current.OrderID, current.TeamID
	next.ScheduledDate, next.TimeSlot = current.ScheduledDate, current.TimeSlot
	r.s.schedules[id] = next
	key := lockKey(current.TeamID, current.ScheduledDate, current.TimeSlot)
	if current.Status.Active() && !next.Status.Active() && r.s.locks[key] == id {
		delete(r.s.locks, key)
	}
	return next, nil
}

type memNotifications struct{ s *memStore }

func (r *memNotifications) Append(_ context.Context, n domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.notifications[n.ID] = n
	return nil
}

func (r *memNotifications) Update(_ context.Context, n domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.notifications[n.ID]; !ok {
		return errNotFound("notification", n.ID)
	}
	r.s.notifications[n.ID] = n
	return nil
}

func (r *memNotifications) ListFailed(_ context.Context, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	for _, n := range r.s.notificationList() {
		if n.Status == domain.NotificationStatusFailed {
			out = append(out, n)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memInvoices struct{ s *memStore }

func (r *memInvoices) Insert(_ context.Context, inv domain.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.invoices = append(r.s.invoices, inv)
	return nil
}

func (r *memInvoices) FindLatestByOrder(_ context.Context, orderID string) (domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.invoices) - 1; i >= 0; i-- {
		if r.s.invoices[i].OrderID == orderID {
			return r.s.invoices[i], nil
		}
	}
	return domain.Invoice{}, errNotFound("invoice", orderID)
}

// memBookings mirrors the Firestore booking transactions, slot locks included.
type memBookings struct{ s *memStore }

func (r *memBookings) ConfirmDeposit(_ context.Context, req repositories.DepositCommit) (repositories.DepositCommitResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.confirmCalls++
	order, ok := r.s.orders[req.OrderID]
	if !ok {
		return repositories.DepositCommitResult{}, repositories.NewBookingError(repositories.BookingErrorOrderNotFound, "order not found", nil)
	}
	if order.Status != domain.OrderStatusPending {
		return repositories.DepositCommitResult{AlreadyProcessed: true, Order: order}, nil
	}
	for _, draft := range req.Schedules {
		if _, taken := r.s.locks[lockKey(draft.TeamID, draft.Date, draft.TimeSlot)]; taken {
			return repositories.DepositCommitResult{}, repositories.NewSlotConflict(draft.TeamID, scheduling.FormatDate(draft.Date), draft.TimeSlot)
		}
	}
	now := req.Now
	order.Status = domain.OrderStatusDepositPaid
	order.DepositPaidAt = &now
	order.UpdatedAt = now
	r.s.orders[order.ID] = order

	payment := req.Payment
	payment.Status = domain.PaymentStatusCompleted
	payment.CreatedAt = now
	payment.UpdatedAt = now
	for id, existing := range r.s.payments {
		if existing.TransactionID != "" && existing.TransactionID == payment.TransactionID {
			payment.ID = id
			payment.CreatedAt = existing.CreatedAt
		}
	}
	r.s.payments[payment.ID] = payment

	result := repositories.DepositCommitResult{Order: order, Payment: payment}
	for _, draft := range req.Schedules {
		sc := domain.Schedule{
			ID:            draft.ID,
			OrderID:       order.ID,
			UserID:        order.UserID,
			TeamID:        draft.TeamID,
			ScheduledDate: draft.Date,
			TimeSlot:      draft.TimeSlot,
			Status:        domain.ScheduleStatusPending,
			PartySize:     draft.PartySize,
			Services:      draft.Services,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		r.s.schedules[sc.ID] = sc
		r.s.locks[lockKey(sc.TeamID, sc.ScheduledDate, sc.TimeSlot)] = sc.ID
		result.Schedules = append(result.Schedules, sc)
	}
	return result, nil
}

func (r *memBookings) CompleteFinalPayment(_ context.Context, req repositories.FinalPaymentCommit) (repositories.FinalPaymentCommitResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[req.OrderID]
	if !ok {
		return repositories.FinalPaymentCommitResult{}, repositories.NewBookingError(repositories.BookingErrorOrderNotFound, "order not found", nil)
	}
	var existing *domain.Payment
	for _, p := range r.s.payments {
		if p.OrderID == order.ID && p.TransactionID == req.Payment.TransactionID {
			p := p
			existing = &p
		}
	}
	if existing == nil {
		if p, ok := r.s.payments[req.Payment.ID]; ok {
			existing = &p
		}
	}
	if existing != nil && existing.Status == domain.PaymentStatusCompleted {
		return repositories.FinalPaymentCommitResult{AlreadyProcessed: true, Order: order, Payment: *existing}, nil
	}
	if order.Status == domain.OrderStatusCompleted {
		return repositories.FinalPaymentCommitResult{AlreadyProcessed: true, Order: order}, nil
	}
	if !order.Status.AwaitsFinalPayment() {
		return repositories.FinalPaymentCommitResult{}, repositories.NewBookingError(repositories.BookingErrorInvalidOrderState, "order is "+string(order.Status), nil)
	}
	now := req.Now
	payment := req.Payment
	payment.OrderID = order.ID
	payment.Type = domain.PaymentTypeFinal
	payment.Status = domain.PaymentStatusCompleted
	payment.CreatedAt = now
	if existing != nil {
		payment.ID = existing.ID
		payment.CreatedAt = existing.CreatedAt
		payment.PaymentLink = existing.PaymentLink
		if payment.Amount == 0 {
			payment.Amount = existing.Amount
		}
	}
	payment.UpdatedAt = now
	r.s.payments[payment.ID] = payment
	order.Status = domain.OrderStatusCompleted
	order.CompletedAt = &now
	order.UpdatedAt = now
	r.s.orders[order.ID] = order
	return repositories.FinalPaymentCommitResult{Order: order, Payment: payment}, nil
}

func (r *memBookings) RecordDepositReview(_ context.Context, req repositories.ReviewCommit) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[req.Payment.OrderID]; !ok {
		return domain.Payment{}, repositories.NewBookingError(repositories.BookingErrorOrderNotFound, "order not found", nil)
	}
	for _, p := range r.s.payments {
		if p.TransactionID != "" && p.TransactionID == req.Payment.TransactionID {
			return p, nil
		}
	}
	payment := req.Payment
	payment.Type = domain.PaymentTypeDeposit
	payment.Status = domain.PaymentStatusNeedsReview
	payment.CreatedAt = req.Now
	payment.UpdatedAt = req.Now
	r.s.payments[payment.ID] = payment
	return payment, nil
}

func (r *memBookings) Refund(_ context.Context, req repositories.RefundCommit) (repositories.RefundCommitResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[req.OrderID]
	if !ok {
		return repositories.RefundCommitResult{}, repositories.NewBookingError(repositories.BookingErrorOrderNotFound, "order not found", nil)
	}
	if order.Status.IsTerminal() {
		return repositories.RefundCommitResult{}, repositories.NewBookingError(repositories.BookingErrorInvalidOrderState, "order is "+string(order.Status), nil)
	}
	now := req.Now
	wanted := make(map[string]bool, len(req.PaymentIDs))
	for _, id := range req.PaymentIDs {
		if _, ok := r.s.payments[id]; !ok {
			return repositories.RefundCommitResult{}, repositories.NewBookingError(repositories.BookingErrorPaymentNotFound, "payment not found", nil)
		}
		wanted[id] = true
	}
	for id, payment := range r.s.payments {
		if payment.OrderID == order.ID && !wanted[id] && payment.HoldsDepositFunds() {
			return repositories.RefundCommitResult{}, repositories.NewBookingError(repositories.BookingErrorPaymentsChanged, "unrefunded deposit "+id, nil)
		}
	}
	for id := range wanted {
		payment := r.s.payments[id]
		payment.Status = domain.PaymentStatusRefunded
		payment.RefundedAt = &now
		payment.UpdatedAt = now
		r.s.payments[id] = payment
	}
	var cancelled []domain.Schedule
	ids := make([]string, 0, len(r.s.schedules))
	for id := range r.s.schedules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sc := r.s.schedules[id]
		if sc.OrderID != order.ID || !sc.Status.Active() {
			continue
		}
		sc.Status = domain.ScheduleStatusCancelled
		sc.UpdatedAt = now
		r.s.schedules[id] = sc
		key := lockKey(sc.TeamID, sc.ScheduledDate, sc.TimeSlot)
		if r.s.locks[key] == id {
			delete(r.s.locks, key)
		}
		cancelled = append(cancelled, sc)
	}
	if order.Status == domain.OrderStatusPending {
		order.Status = domain.OrderStatusCancelled
		order.CanceledAt = &now
	} else {
		order.Status = domain.OrderStatusRefunded
		order.RefundedAt = &now
	}
	if req.Reason != "" {
		order.CancelReason = req.Reason
	}
	order.UpdatedAt = now
	r.s.orders[order.ID] = order
	return repositories.RefundCommitResult{Order: order, CancelledSchedules: cancelled}, nil
}

// stubGateway is a scriptable PaymentGateway.
type stubGateway struct {
	mu           sync.Mutex
	chargeResult payments.PaymentDetails
	chargeErr    error
	charges      []payments.ChargeRequest
	linkResult   payments.LinkResult
	linkErr      error
	links        []payments.LinkRequest
	lookup       map[string]payments.PaymentDetails
	lookupErr    error
	refundErr    error
	refunds      []payments.RefundRequest
}

func (g *stubGateway) Charge(_ context.Context, _ string, req payments.ChargeRequest) (payments.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, req)
	return g.chargeResult, g.chargeErr
}

func (g *stubGateway) CreatePaymentLink(_ context.Context, _ string, req payments.LinkRequest) (payments.LinkResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.links = append(g.links, req)
	return g.linkResult, g.linkErr
}

func (g *stubGateway) LookupPayment(_ context.Context, txID string) (payments.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lookupErr != nil {
		return payments.PaymentDetails{}, g.lookupErr
	}
	details, ok := g.lookup[txID]
	if !ok {
		return payments.PaymentDetails{}, fmt.Errorf("%w: %s", payments.ErrPaymentNotFound, txID)
	}
	return details, nil
}

func (g *stubGateway) Refund(_ context.Context, req payments.RefundRequest) (payments.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, req)
	if g.refundErr != nil {
		return payments.PaymentDetails{}, g.refundErr
	}
	return payments.PaymentDetails{TransactionID: req.TransactionID, Status: payments.StatusRefunded}, nil
}

func (g *stubGateway) IsMockTransaction(txID string) bool {
	return strings.HasPrefix(txID, payments.MockTransactionPrefix)
}

func (g *stubGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []BookingEvent
	err    error
}

func (p *recordingPublisher) PublishBookingEvent(_ context.Context, event BookingEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return "msg-" + event.ID, p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingNotifier struct {
	mu       sync.Mutex
	requests []NotificationRequest
}

func (n *recordingNotifier) Notify(_ context.Context, req NotificationRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, req)
}

func (n *recordingNotifier) RetryFailed(context.Context, int) (RetrySummary, error) {
	return RetrySummary{}, nil
}

func (n *recordingNotifier) templates() []notifications.Template {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifications.Template, 0, len(n.requests))
	for _, r := range n.requests {
		out = append(out, r.Template)
	}
	return out
}

type stubWhatsApp struct {
	configured bool
	err        error
	sent       []string
}

func (s *stubWhatsApp) SendWhatsApp(_ context.Context, phone, body string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, phone+"|"+body)
	return "SM1", nil
}

func (s *stubWhatsApp) Configured() bool { return s.configured }

type stubEmail struct {
	configured bool
	err        error
	sent       []notifications.Email
}

func (s *stubEmail) SendEmail(_ context.Context, email notifications.Email) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, email)
	return nil
}

func (s *stubEmail) Configured() bool { return s.configured }

type stubIssuer struct {
	result invoicing.Result
	err    error
	pdf    []byte
	mock   bool
	issued []invoicing.Request
}

func (s *stubIssuer) Issue(_ context.Context, req invoicing.Request) (invoicing.Result, error) {
	s.issued = append(s.issued, req)
	return s.result, s.err
}

func (s *stubIssuer) DownloadPDF(context.Context, string) ([]byte, error) {
	if len(s.pdf) == 0 {
		return nil, invoicing.ErrNoDocument
	}
	return s.pdf, nil
}

func (s *stubIssuer) Mock() bool { return s.mock }

type stubArchive struct {
	stored []storage.InvoiceFile
	err    error
}

func (a *stubArchive) Store(_ context.Context, file storage.InvoiceFile) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.stored = append(a.stored, file)
	return "invoices/" + file.OrderID + "/" + file.Number + ".pdf", nil
}

func (a *stubArchive) DownloadURL(_ context.Context, object string, identity *auth.Identity, ownerID string) (storage.SignedURL, error) {
	if err := storage.AuthorizeDownload(identity, ownerID); err != nil {
		return storage.SignedURL{}, err
	}
	return storage.SignedURL{URL: "https://signed.example/" + object}, nil
}

// stubAvailability reports every slot as free, letting tests reach the transactional re-check.
type stubAvailability struct {
	AvailabilityService
	taken bool
	err   error
}

func (s stubAvailability) IsSlotTaken(context.Context, string, time.Time, string) (bool, error) {
	return s.taken, s.err
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func customer(uid string) *Actor {
	return &Actor{UID: uid, Email: uid + "@example.com", Roles: []string{auth.RoleUser}}
}

func staff(uid string) *Actor {
	return &Actor{UID: uid, Roles: []string{auth.RoleStaff}}
}

func admin(uid string) *Actor {
	return &Actor{UID: uid, Roles: []string{auth.RoleAdmin}}
}

func mustDate(value string) time.Time {
	d, err := scheduling.ParseDate(value, testLocation)
	if err != nil {
		panic(err)
	}
	return d
}

// pendingOrder returns a PENDING order whose items are given as "date|team|slot|service".
func pendingOrder(id, userID string, items ...string) domain.Order {
	order := domain.Order{
		ID:        id,
		UserID:    userID,
		Status:    domain.OrderStatusPending,
		PartySize: 2,
		Totals:    domain.OrderTotals{Subtotal: 100000, Total: 100000, Deposit: 30000, Remainder: 70000},
	}
	for _, item := range items {
		parts := strings.Split(item, "|")
		order.Items = append(order.Items, domain.OrderItem{
			ScheduledDate: parts[0],
			TeamID:        parts[1],
			TimeSlot:      parts[2],
			ServiceID:     parts[3],
			ServiceName:   strings.ToUpper(parts[3]),
			Quantity:      1,
			UnitPrice:     50000,
		})
	}
	return order
}

var errBoom = errors.New("boom")
