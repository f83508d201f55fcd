package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/httpx"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

const (
	defaultReconciliationLimit = 50
	maxReconciliationLimit     = 200
)

type teamRequest struct {
	Name           string                  `json:"name"`
	Active         *bool                   `json:"active"`
	MaxPartySize   int                     `json:"max_party_size"`
	OperatingHours []operatingHoursPayload `json:"operating_hours"`
}

func (req teamRequest) command(teamID string) services.UpsertTeamCommand {
	hours := make([]domain.OperatingHours, 0, len(req.OperatingHours))
	for _, h := range req.OperatingHours {
		hours = append(hours, domain.OperatingHours(h))
	}
	return services.UpsertTeamCommand{
		TeamID:         teamID,
		Name:           req.Name,
		Active:         req.Active == nil || *req.Active,
		MaxPartySize:   req.MaxPartySize,
		OperatingHours: hours,
	}
}

type serviceRequest struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Price             int64    `json:"price"`
	MaxPeople         int      `json:"max_people"`
	DurationMinutes   int      `json:"duration_minutes"`
	Active            *bool    `json:"active"`
	RequiredDocuments []string `json:"required_documents"`
}

func (req serviceRequest) command(serviceID string) services.UpsertServiceCommand {
	return services.UpsertServiceCommand{
		ServiceID:         serviceID,
		Name:              req.Name,
		Description:       req.Description,
		Price:             req.Price,
		MaxPeople:         req.MaxPeople,
		DurationMinutes:   req.DurationMinutes,
		Active:            req.Active == nil || *req.Active,
		RequiredDocuments: req.RequiredDocuments,
	}
}

type createTeamRequest struct {
	ID string `json:"id"`
	teamRequest
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type finalPaymentRequest struct {
	Provider string `json:"provider"`
}

type issueInvoiceRequest struct {
	OrderID  string `json:"order_id"`
	Delivery string `json:"delivery"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

// AdminHandlers exposes operator endpoints. Every route requires staff or admin; catalogue writes,
// reconciliation and role changes require admin.
type AdminHandlers struct {
	authn          *auth.Authenticator
	schedules      services.ScheduleService
	orders         services.OrderService
	finalPayments  services.FinalPaymentService
	invoices       services.InvoiceService
	reconciliation services.ReconciliationService
	teams          services.TeamService
	catalog        services.ServiceCatalog
	users          services.UserService
}

// AdminDeps bundles the services behind the admin endpoints. Nil services answer 503.
type AdminDeps struct {
	Schedules      services.ScheduleService
	Orders         services.OrderService
	FinalPayments  services.FinalPaymentService
	Invoices       services.InvoiceService
	Reconciliation services.ReconciliationService
	Teams          services.TeamService
	Catalog        services.ServiceCatalog
	Users          services.UserService
}

// NewAdminHandlers constructs the /admin endpoints.
func NewAdminHandlers(authn *auth.Authenticator, deps AdminDeps) *AdminHandlers {
	return &AdminHandlers{
		authn:          authn,
		schedules:      deps.Schedules,
		orders:         deps.Orders,
		finalPayments:  deps.FinalPayments,
		invoices:       deps.Invoices,
		reconciliation: deps.Reconciliation,
		teams:          deps.Teams,
		catalog:        deps.Catalog,
		users:          deps.Users,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	adminOnly := r.With(requireRole(auth.RoleAdmin))

	r.Get("/schedules", h.listSchedules)
	r.Get("/schedules/{scheduleID}", h.getSchedule)
	r.Post("/schedules/{scheduleID}:confirm", h.confirmSchedule)
	r.Post("/schedules/{scheduleID}:complete", h.completeSchedule)
	r.Put("/schedules/{scheduleID}/notes", h.updateNotes)

	r.Get("/orders", h.listOrders)
	r.Post("/orders/{orderID}:final-payment", h.generateFinalPayment)
	r.Get("/orders/{orderID}/invoice", h.getInvoice)
	r.Post("/invoices", h.issueInvoice)

	adminOnly.Get("/reconciliations", h.listReconciliations)

	r.Get("/teams", h.listTeams)
	adminOnly.Post("/teams", h.createTeam)
	adminOnly.Put("/teams/{teamID}", h.updateTeam)

	r.Get("/services", h.listServices)
	adminOnly.Post("/services", h.createService)
	adminOnly.Put("/services/{serviceID}", h.updateService)

	adminOnly.Patch("/users/{userID}/role", h.assignRole)
}

// requireRole rejects authenticated callers lacking role.
func requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := requireIdentity(w, r)
			if !ok {
				return
			}
			if !identity.HasRole(role) {
				httpx.WriteError(r.Context(), w, httpx.NewError("permission_denied", role+" role required", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *AdminHandlers) listSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.schedules == nil {
		serviceUnavailable(ctx, w, "schedule")
		return
	}
	query := r.URL.Query()
	limit, err := parseLimit(query.Get("limit"), defaultScheduleListLimit, maxScheduleListLimit)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	list, err := h.schedules.ListSchedules(ctx, services.ScheduleFilter{
		Date:   strings.TrimSpace(query.Get("date")),
		TeamID: strings.TrimSpace(query.Get("team_id")),
		Limit:  limit,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": buildScheduleList(list)})
}

func (h *AdminHandlers) getSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.schedules == nil {
		serviceUnavailable(ctx, w, "schedule")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	schedule, err := h.schedules.GetSchedule(ctx, chi.URLParam(r, "scheduleID"), identity)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"schedule": buildSchedulePayload(schedule)})
}

func (h *AdminHandlers) confirmSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.schedules == nil {
		serviceUnavailable(ctx, w, "schedule")
		return
	}
	schedule, err := h.schedules.ConfirmSchedule(ctx, chi.URLParam(r, "scheduleID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"schedule": buildSchedulePayload(schedule)})
}

func (h *AdminHandlers) completeSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.schedules == nil {
		serviceUnavailable(ctx, w, "schedule")
		return
	}
	schedule, err := h.schedules.CompleteSchedule(ctx, chi.URLParam(r, "scheduleID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"schedule": buildSchedulePayload(schedule)})
}

func (h *AdminHandlers) updateNotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.schedules == nil {
		serviceUnavailable(ctx, w, "schedule")
		return
	}
	var req notesRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	schedule, err := h.schedules.UpdateNotes(ctx, services.UpdateScheduleNotesCommand{
		ScheduleID: chi.URLParam(r, "scheduleID"),
		Notes:      req.Notes,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"schedule": buildSchedulePayload(schedule)})
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	filter, err := parseOrderListFilter(r)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	filter.UserID = strings.TrimSpace(r.URL.Query().Get("user_id"))
	writeOrderPage(w, r, h.orders, filter)
}

func (h *AdminHandlers) generateFinalPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.finalPayments == nil {
		serviceUnavailable(ctx, w, "final_payment")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req finalPaymentRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	link, err := h.finalPayments.GenerateLink(ctx, services.GenerateFinalPaymentCommand{
		OrderID:  chi.URLParam(r, "orderID"),
		Actor:    identity,
		Provider: req.Provider,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"order_id":   link.OrderID,
		"payment_id": link.PaymentID,
		"url":        link.URL,
		"amount":     link.Amount,
		"expires_at": formatTime(link.ExpiresAt),
	})
}

func (h *AdminHandlers) issueInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		serviceUnavailable(ctx, w, "invoice")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req issueInvoiceRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	view, err := h.invoices.Issue(ctx, services.IssueInvoiceCommand{
		OrderID:  req.OrderID,
		Delivery: services.InvoiceDelivery(strings.ToLower(strings.TrimSpace(req.Delivery))),
		Actor:    identity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"invoice": buildInvoicePayload(view)})
}

func (h *AdminHandlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		serviceUnavailable(ctx, w, "invoice")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	view, err := h.invoices.GetForOrder(ctx, chi.URLParam(r, "orderID"), identity)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"invoice": buildInvoicePayload(view)})
}

func (h *AdminHandlers) listReconciliations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciliation == nil {
		serviceUnavailable(ctx, w, "reconciliation")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultReconciliationLimit, maxReconciliationLimit)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	list, err := h.reconciliation.ListPending(ctx, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": buildPaymentList(list)})
}

func (h *AdminHandlers) listTeams(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.teams == nil {
		serviceUnavailable(ctx, w, "team")
		return
	}
	teams, err := h.teams.ListTeams(ctx, r.URL.Query().Get("active") == "true")
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]teamPayload, 0, len(teams))
	for _, team := range teams {
		items = append(items, buildTeamPayload(team))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminHandlers) createTeam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.teams == nil {
		serviceUnavailable(ctx, w, "team")
		return
	}
	var req createTeamRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	team, err := h.teams.CreateTeam(ctx, req.command(req.ID))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"team": buildTeamPayload(team)})
}

func (h *AdminHandlers) updateTeam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.teams == nil {
		serviceUnavailable(ctx, w, "team")
		return
	}
	var req teamRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	team, err := h.teams.UpdateTeam(ctx, req.command(chi.URLParam(r, "teamID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"team": buildTeamPayload(team)})
}

func (h *AdminHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	list, err := h.catalog.ListServices(ctx, r.URL.Query().Get("active") == "true")
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]servicePayload, 0, len(list))
	for _, svc := range list {
		items = append(items, buildServicePayload(svc))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminHandlers) createService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req serviceRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	svc, err := h.catalog.CreateService(ctx, req.command(req.ID))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"service": buildServicePayload(svc)})
}

func (h *AdminHandlers) updateService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req serviceRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	svc, err := h.catalog.UpdateService(ctx, req.command(chi.URLParam(r, "serviceID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"service": buildServicePayload(svc)})
}

func (h *AdminHandlers) assignRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	user, err := h.users.AssignRole(ctx, services.AssignRoleCommand{
		Actor:  identity,
		UserID: chi.URLParam(r, "userID"),
		Role:   req.Role,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"user": buildUserPayload(user)})
}
