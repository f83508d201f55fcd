package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

const (
	defaultScheduleListLimit = 50
	maxScheduleListLimit     = 200
)

// ScheduleHandlers exposes the customer view of booked schedules.
type ScheduleHandlers struct {
	authn     *auth.Authenticator
	schedules services.ScheduleService
}

// NewScheduleHandlers constructs the /schedules endpoints.
func NewScheduleHandlers(authn *auth.Authenticator, schedules services.ScheduleService) *ScheduleHandlers {
	return &ScheduleHandlers{authn: authn, schedules: schedules}
}

// Routes registers the /schedules endpoints.
func (h *ScheduleHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/me", h.listMine)
	r.Post("/{scheduleID}:cancel", h.cancelSchedule)
}

func (h *ScheduleHandlers) listMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.schedules == nil {
		serviceUnavailable(ctx, w, "schedule")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultScheduleListLimit, maxScheduleListLimit)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	list, err := h.schedules.ListForUser(ctx, identity.UID, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": buildScheduleList(list)})
}

func (h *ScheduleHandlers) cancelSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.schedules == nil {
		serviceUnavailable(ctx, w, "schedule")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	schedule, err := h.schedules.CancelSchedule(ctx, services.CancelScheduleCommand{
		ScheduleID: chi.URLParam(r, "scheduleID"),
		Actor:      identity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"schedule": buildSchedulePayload(schedule)})
}
