package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/requestctx"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

const (
	defaultRetryBatch = 50
	maxRetryBatch     = 200
)

// InternalHandlers serves endpoints invoked by Cloud Scheduler. Authentication is enforced by the
// OIDC middleware on the /internal group.
type InternalHandlers struct {
	notifications services.NotificationService
}

// NewInternalHandlers constructs the /internal endpoints.
func NewInternalHandlers(notifications services.NotificationService) *InternalHandlers {
	return &InternalHandlers{notifications: notifications}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/notifications:retry", h.retryNotifications)
}

func (h *InternalHandlers) retryNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		serviceUnavailable(ctx, w, "notification")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultRetryBatch, maxRetryBatch)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	summary, err := h.notifications.RetryFailed(ctx, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	fields := []zap.Field{
		zap.Int("attempted", summary.Attempted),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
	}
	if caller, ok := auth.ServiceIdentityFromContext(ctx); ok {
		fields = append(fields, zap.String("caller", caller.Email))
	}
	requestctx.Logger(ctx).Info("notifications: retry pass finished", fields...)

	writeJSONResponse(w, http.StatusOK, map[string]int{
		"attempted": summary.Attempted,
		"sent":      summary.Sent,
		"failed":    summary.Failed,
	})
}
