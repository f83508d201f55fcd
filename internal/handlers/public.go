package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

// PublicHandlers serves the unauthenticated booking catalogue and availability.
type PublicHandlers struct {
	availability services.AvailabilityService
	catalog      services.ServiceCatalog
}

// NewPublicHandlers constructs the public endpoints.
func NewPublicHandlers(availability services.AvailabilityService, catalog services.ServiceCatalog) *PublicHandlers {
	return &PublicHandlers{availability: availability, catalog: catalog}
}

// Routes registers the /public endpoints.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/availability", h.getAvailability)
	r.Get("/teams/{teamID}/slots", h.getTeamSlots)
	r.Get("/services", h.listServices)
}

func (h *PublicHandlers) getAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.availability == nil {
		serviceUnavailable(ctx, w, "availability")
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeBadRequest(ctx, w, "date query parameter is required")
		return
	}
	result, err := h.availability.GetAvailability(ctx, date)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	teams := make([]availabilityPayload, 0, len(result.Teams))
	for _, team := range result.Teams {
		teams = append(teams, buildAvailabilityPayload(team))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"date":  result.Date,
		"teams": teams,
	})
}

func (h *PublicHandlers) getTeamSlots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.availability == nil {
		serviceUnavailable(ctx, w, "availability")
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeBadRequest(ctx, w, "date query parameter is required")
		return
	}
	view, err := h.availability.TeamSlots(ctx, chi.URLParam(r, "teamID"), date)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	payload := buildAvailabilityPayload(view)
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"date":            date,
		"team_id":         payload.TeamID,
		"team_name":       payload.TeamName,
		"all_slots":       payload.AllSlots,
		"available_slots": payload.AvailableSlots,
		"occupied_slots":  payload.OccupiedSlots,
	})
}

func (h *PublicHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	list, err := h.catalog.ListServices(ctx, true)
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
