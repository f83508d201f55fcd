package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

type registerProfileRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	TaxID  string `json:"tax_id"`
	Locale string `json:"locale"`
}

type updateProfileRequest struct {
	Name   *string `json:"name"`
	Phone  *string `json:"phone"`
	TaxID  *string `json:"tax_id"`
	Locale *string `json:"locale"`
}

// MeHandlers serves the profile of the authenticated user.
type MeHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewMeHandlers constructs the /me endpoints.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService) *MeHandlers {
	return &MeHandlers{authn: authn, users: users}
}

// Routes registers the /me endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.register)
	r.Get("/", h.getProfile)
	r.Put("/", h.updateProfile)
}

// register creates the profile after sign-up. Name, email and locale fall back to the token claims.
func (h *MeHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req registerProfileRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	user, err := h.users.Register(ctx, services.RegisterUserCommand{
		UserID: identity.UID,
		Name:   firstNonEmpty(req.Name, identity.Name),
		Email:  firstNonEmpty(req.Email, identity.Email),
		Phone:  firstNonEmpty(req.Phone, identity.Phone),
		TaxID:  req.TaxID,
		Locale: firstNonEmpty(req.Locale, identity.Locale, r.Header.Get("Accept-Language")),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"user": buildUserPayload(user)})
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetProfile(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"user": buildUserPayload(user)})
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	user, err := h.users.UpdateProfile(ctx, services.UpdateProfileCommand{
		UserID: identity.UID,
		Name:   req.Name,
		Phone:  req.Phone,
		TaxID:  req.TaxID,
		Locale: req.Locale,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"user": buildUserPayload(user)})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
