package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/scheduling"
)

const (
	maxOrderItems        = 20
	maxItemQuantity      = 50
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the order status forbids the requested operation.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderPermissionDenied indicates the actor may not access the order.
	ErrOrderPermissionDenied = errors.New("order: permission denied")
	// ErrOrderConflict indicates a duplicate order id.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Payments    repositories.PaymentRepository
	Services    repositories.ServiceCatalogRepository
	Teams       repositories.TeamRepository
	Location    *time.Location
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	payments repositories.PaymentRepository
	services repositories.ServiceCatalogRepository
	teams    repositories.TeamRepository
	loc      *time.Location
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Services == nil {
		return nil, errors.New("order service: service catalog repository is required")
	}
	if deps.Teams == nil {
		return nil, errors.New("order service: team repository is required")
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &orderService{
		orders:   deps.Orders,
		payments: deps.Payments,
		services: deps.Services,
		teams:    deps.Teams,
		loc:      loc,
		now:      utcClock(deps.Clock),
		newID:    idGeneratorOrDefault(deps.IDGenerator),
		logger:   loggerOrNoop(deps.Logger),
	}, nil
}

// Calculate prices the requested items against the active catalog without persisting anything.
func (s *orderService) Calculate(ctx context.Context, cmd CreateOrderCommand) (OrderQuote, error) {
	if err := validateItemShape(cmd.Items); err != nil {
		return OrderQuote{}, err
	}
	items := make([]OrderItem, 0, len(cmd.Items))
	lines := make([]domain.PricedLine, 0, len(cmd.Items))
	catalog := make(map[string]domain.Service)
	for i, input := range cmd.Items {
		serviceID := strings.TrimSpace(input.ServiceID)
		svc, ok := catalog[serviceID]
		if !ok {
			found, err := s.services.FindByID(ctx, serviceID)
			if err != nil {
				if isNotFound(err) {
					return OrderQuote{}, fmt.Errorf("%w: item %d: service %s not found", ErrOrderInvalidInput, i+1, serviceID)
				}
				return OrderQuote{}, mapRepositoryError(err, nil, nil)
			}
			svc = found
			catalog[serviceID] = svc
		}
		if !svc.Active {
			return OrderQuote{}, fmt.Errorf("%w: item %d: service %s is not available", ErrOrderInvalidInput, i+1, svc.Name)
		}
		if cmd.PartySize > 0 && svc.MaxPeople > 0 && cmd.PartySize > svc.MaxPeople {
			return OrderQuote{}, fmt.Errorf("%w: item %d: service %s allows at most %d people", ErrOrderInvalidInput, i+1, svc.Name, svc.MaxPeople)
		}
		items = append(items, OrderItem{
			ServiceID:     svc.ID,
			ServiceName:   svc.Name,
			Quantity:      input.Quantity,
			UnitPrice:     svc.Price,
			ScheduledDate: strings.TrimSpace(input.ScheduledDate),
			TeamID:        strings.TrimSpace(input.TeamID),
			TimeSlot:      strings.TrimSpace(input.TimeSlot),
		})
		lines = append(lines, domain.PricedLine{UnitPrice: svc.Price, Quantity: input.Quantity})
	}
	return OrderQuote{Items: items, Totals: domain.CalculateOrderTotals(lines)}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if cmd.PartySize <= 0 {
		return Order{}, fmt.Errorf("%w: party size must be positive", ErrOrderInvalidInput)
	}
	if err := validateItemShape(cmd.Items); err != nil {
		return Order{}, err
	}

	now := s.now()
	today, _ := scheduling.DayWindow(now.In(s.loc))
	dates := make([]time.Time, len(cmd.Items))
	for i, item := range cmd.Items {
		date, err := scheduling.ParseDate(item.ScheduledDate, s.loc)
		if err != nil {
			return Order{}, fmt.Errorf("%w: item %d: %v", ErrOrderInvalidInput, i+1, err)
		}
		if !date.After(today) {
			return Order{}, fmt.Errorf("%w: item %d: scheduled date must be in the future", ErrOrderInvalidInput, i+1)
		}
		if strings.TrimSpace(item.TeamID) == "" {
			return Order{}, fmt.Errorf("%w: item %d: team is required", ErrOrderInvalidInput, i+1)
		}
		if _, err := scheduling.ParseClock(item.TimeSlot); err != nil {
			return Order{}, fmt.Errorf("%w: item %d: %v", ErrOrderInvalidInput, i+1, err)
		}
		dates[i] = date
	}

	teams := make(map[string]domain.Team)
	for i, item := range cmd.Items {
		date := dates[i]
		teamID := strings.TrimSpace(item.TeamID)
		team, ok := teams[teamID]
		if !ok {
			found, err := s.teams.FindByID(ctx, teamID)
			if err != nil {
				if isNotFound(err) {
					return Order{}, fmt.Errorf("%w: item %d: team %s not found", ErrOrderInvalidInput, i+1, teamID)
				}
				return Order{}, mapRepositoryError(err, nil, nil)
			}
			team = found
			teams[teamID] = team
		}
		if !team.Active {
			return Order{}, fmt.Errorf("%w: item %d: team %s is not active", ErrOrderInvalidInput, i+1, team.Name)
		}
		if team.MaxPartySize > 0 && cmd.PartySize > team.MaxPartySize {
			return Order{}, fmt.Errorf("%w: item %d: team %s takes at most %d people", ErrOrderInvalidInput, i+1, team.Name, team.MaxPartySize)
		}
		if !scheduling.IsValidSlot(team.OperatingHours, date, strings.TrimSpace(item.TimeSlot)) {
			return Order{}, fmt.Errorf("%w: item %d: slot %q is not offered by team %s on %s", ErrOrderInvalidInput, i+1, item.TimeSlot, team.Name, scheduling.FormatDate(date))
		}
	}

	quote, err := s.Calculate(ctx, cmd)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:        s.newID(),
		UserID:    userID,
		Items:     quote.Items,
		Totals:    quote.Totals,
		Status:    domain.OrderStatusPending,
		PartySize: cmd.PartySize,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, mapRepositoryError(err, nil, ErrOrderConflict)
	}
	s.logger(ctx, "order.created", map[string]any{
		"orderId": order.ID,
		"userId":  userID,
		"items":   len(order.Items),
		"total":   order.Totals.Total,
		"deposit": order.Totals.Deposit,
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor *Actor) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound, nil)
	}
	if !ownerOrOperator(actor, order.UserID) {
		return Order{}, ErrOrderPermissionDenied
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	pageSize := filter.Pagination.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultOrderPageSize
	case pageSize > maxOrderPageSize:
		pageSize = maxOrderPageSize
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID: strings.TrimSpace(filter.UserID),
		Status: filter.Status,
		Pagination: domain.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(filter.Pagination.PageToken),
		},
	})
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError(err, nil, nil)
	}
	return page, nil
}

func (s *orderService) ListPayments(ctx context.Context, orderID string, actor *Actor) ([]Payment, error) {
	if s.payments == nil {
		return nil, errors.New("order service: payment repository not configured")
	}
	order, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, mapRepositoryError(err, ErrOrderNotFound, nil)
	}
	return payments, nil
}

func validateItemShape(items []OrderItemInput) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	if len(items) > maxOrderItems {
		return fmt.Errorf("%w: at most %d items per order", ErrOrderInvalidInput, maxOrderItems)
	}
	for i, item := range items {
		if strings.TrimSpace(item.ServiceID) == "" {
			return fmt.Errorf("%w: item %d: service is required", ErrOrderInvalidInput, i+1)
		}
		if item.Quantity <= 0 || item.Quantity > maxItemQuantity {
			return fmt.Errorf("%w: item %d: quantity must be between 1 and %d", ErrOrderInvalidInput, i+1, maxItemQuantity)
		}
	}
	return nil
}
