package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100

	idempotencyHeader = "Idempotency-Key"
)

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:     {},
	domain.OrderStatusDepositPaid: {},
	domain.OrderStatusScheduled:   {},
	domain.OrderStatusCompleted:   {},
	domain.OrderStatusCancelled:   {},
	domain.OrderStatusRefunded:    {},
}

type orderItemRequest struct {
	ServiceID     string `json:"service_id"`
	Quantity      int    `json:"quantity"`
	ScheduledDate string `json:"scheduled_date"`
	TeamID        string `json:"team_id"`
	TimeSlot      string `json:"time_slot"`
}

type createOrderRequest struct {
	PartySize int                `json:"party_size"`
	Items     []orderItemRequest `json:"items"`
}

func (req createOrderRequest) command(userID string) services.CreateOrderCommand {
	items := make([]services.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItemInput{
			ServiceID:     item.ServiceID,
			Quantity:      item.Quantity,
			ScheduledDate: item.ScheduledDate,
			TeamID:        item.TeamID,
			TimeSlot:      item.TimeSlot,
		})
	}
	return services.CreateOrderCommand{UserID: userID, PartySize: req.PartySize, Items: items}
}

type payDepositRequest struct {
	Method   string `json:"method"`
	Token    string `json:"token"`
	Provider string `json:"provider"`
}

type refundOrderRequest struct {
	Reason string `json:"reason"`
}

type depositResponse struct {
	Order            orderPayload      `json:"order"`
	Payment          *paymentPayload   `json:"payment,omitempty"`
	Schedules        []schedulePayload `json:"schedules"`
	AlreadyProcessed bool              `json:"already_processed"`
}

// OrderHandlers exposes the customer order endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	deposits    services.DepositService
	refunds     services.RefundService
	idempotency func(http.Handler) http.Handler
	limiter     rateLimiter
}

// OrderHandlerOption customises OrderHandlers.
type OrderHandlerOption func(*OrderHandlers)

// WithOrderDeposits wires the synchronous deposit payment route.
func WithOrderDeposits(svc services.DepositService) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.deposits = svc
	}
}

// WithOrderRefunds wires the refund route.
func WithOrderRefunds(svc services.RefundService) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.refunds = svc
	}
}

// WithOrderIdempotency wraps the deposit payment route with the idempotency middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// WithOrderDepositRateLimit throttles deposit attempts per customer. A non-positive limit disables it.
func WithOrderDepositRateLimit(limit int, window time.Duration, clock func() time.Time) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.limiter = newKeyedRateLimiter(limit, window, clock)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// ActionRoutes registers collection actions that live on the API root.
func (h *OrderHandlers) ActionRoutes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = r.With(h.authn.RequireFirebaseAuth())
	}
	group.Post("/orders:calculate", h.calculateOrder)
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/payments", h.listPayments)
	if h.idempotency != nil {
		r.With(h.idempotency).Post("/{orderID}:pay-deposit", h.payDeposit)
	} else {
		r.Post("/{orderID}:pay-deposit", h.payDeposit)
	}
	r.Post("/{orderID}:refund", h.refundOrder)
}

func (h *OrderHandlers) calculateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	quote, err := h.orders.Calculate(ctx, req.command(identity.UID))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":  buildOrderItems(quote.Items),
		"totals": buildTotals(quote.Totals),
	})
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	order, err := h.orders.CreateOrder(ctx, req.command(identity.UID))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	writeJSONResponse(w, http.StatusCreated, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	filter, err := parseOrderListFilter(r)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	filter.UserID = identity.UID
	writeOrderPage(w, r, h.orders, filter)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"), identity)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	list, err := h.orders.ListPayments(ctx, chi.URLParam(r, "orderID"), identity)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": buildPaymentList(list)})
}

func (h *OrderHandlers) payDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deposits == nil {
		serviceUnavailable(ctx, w, "deposit")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		writeRateLimited(ctx, w, h.limiter, "too many payment attempts; try again shortly")
		return
	}
	var req payDepositRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	orderID := chi.URLParam(r, "orderID")
	result, err := h.deposits.PayDeposit(ctx, services.PayDepositCommand{
		OrderID:        orderID,
		Actor:          identity,
		Method:         req.Method,
		Token:          req.Token,
		Provider:       req.Provider,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	})
	if errors.Is(err, services.ErrDepositPaymentPending) {
		writeJSONResponse(w, http.StatusAccepted, map[string]any{
			"order_id": orderID,
			"status":   "pending",
			"message":  "payment is being processed; the booking is confirmed once the gateway approves it",
		})
		return
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDepositResponse(result))
}

func (h *OrderHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		serviceUnavailable(ctx, w, "refund")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req refundOrderRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	result, err := h.refunds.Refund(ctx, services.RefundCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Actor:   identity,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	payload := map[string]any{
		"order":               buildOrderPayload(result.Order),
		"cancelled_schedules": buildScheduleList(result.CancelledSchedules),
	}
	if len(result.RefundedPayments) > 0 {
		payload["refunded_payments"] = buildPaymentList(result.RefundedPayments)
		payload["refunded_amount"] = result.RefundedAmount()
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func buildDepositResponse(result services.DepositResult) depositResponse {
	resp := depositResponse{
		Order:            buildOrderPayload(result.Order),
		Schedules:        buildScheduleList(result.Schedules),
		AlreadyProcessed: result.AlreadyProcessed,
	}
	if result.Payment.ID != "" {
		payment := buildPaymentPayload(result.Payment)
		resp.Payment = &payment
	}
	return resp
}

// parseOrderListFilter reads status, page_size and page_token from the query string.
func parseOrderListFilter(r *http.Request) (services.OrderListFilter, error) {
	query := r.URL.Query()
	var filter services.OrderListFilter
	for _, raw := range parseFilterValues(query["status"]) {
		status := domain.OrderStatus(strings.ToUpper(raw))
		if _, ok := validOrderStatuses[status]; !ok {
			return services.OrderListFilter{}, errors.New("status must be one of PENDING, DEPOSIT_PAID, SCHEDULED, COMPLETED, CANCELLED, REFUNDED")
		}
		filter.Status = append(filter.Status, status)
	}
	pageSize := defaultOrderPageSize
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return services.OrderListFilter{}, errors.New("page_size must be an integer")
		}
		switch {
		case size <= 0:
		case size > maxOrderPageSize:
			pageSize = maxOrderPageSize
		default:
			pageSize = size
		}
	}
	filter.Pagination = domain.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}
	return filter, nil
}

func writeOrderPage(w http.ResponseWriter, r *http.Request, orders services.OrderService, filter services.OrderListFilter) {
	ctx := r.Context()
	page, err := orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": strings.TrimSpace(page.NextPageToken),
	})
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}
