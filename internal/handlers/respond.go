package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/httpx"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/repositories"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

const maxJSONBodySize = 64 * 1024

var errEmptyBody = errors.New("request body is required")

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSONBody reads a bounded JSON object into dst and rejects unknown fields.
func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

// requireIdentity returns the authenticated caller or writes a 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

type errorMapping struct {
	target error
	code   string
	status int
	// expose writes the wrapped error text instead of a fixed message.
	expose bool
}

var serviceErrorMappings = []errorMapping{
	{services.ErrDepositSlotConflict, "slot_conflict", http.StatusConflict, true},
	{services.ErrDepositPaymentPending, "payment_pending", http.StatusAccepted, false},
	{services.ErrDepositPaymentDeclined, "payment_declined", http.StatusPaymentRequired, true},

	{services.ErrAvailabilityInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrCatalogInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrDepositInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrFinalPaymentInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrInvoiceInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrOrderInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrRefundInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrScheduleInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrTeamInvalidInput, "invalid_request", http.StatusBadRequest, true},
	{services.ErrUserInvalidInput, "invalid_request", http.StatusBadRequest, true},

	{services.ErrDepositPermissionDenied, "permission_denied", http.StatusForbidden, false},
	{services.ErrFinalPaymentPermissionDenied, "permission_denied", http.StatusForbidden, false},
	{services.ErrInvoicePermissionDenied, "permission_denied", http.StatusForbidden, false},
	{services.ErrOrderPermissionDenied, "permission_denied", http.StatusForbidden, false},
	{services.ErrRefundPermissionDenied, "permission_denied", http.StatusForbidden, false},
	{services.ErrSchedulePermissionDenied, "permission_denied", http.StatusForbidden, false},
	{services.ErrUserPermissionDenied, "permission_denied", http.StatusForbidden, false},

	{services.ErrAvailabilityTeamNotFound, "team_not_found", http.StatusNotFound, false},
	{services.ErrTeamNotFound, "team_not_found", http.StatusNotFound, false},
	{services.ErrCatalogNotFound, "service_not_found", http.StatusNotFound, false},
	{services.ErrDepositOrderNotFound, "order_not_found", http.StatusNotFound, false},
	{services.ErrFinalPaymentOrderNotFound, "order_not_found", http.StatusNotFound, false},
	{services.ErrInvoiceOrderNotFound, "order_not_found", http.StatusNotFound, false},
	{services.ErrOrderNotFound, "order_not_found", http.StatusNotFound, false},
	{services.ErrRefundOrderNotFound, "order_not_found", http.StatusNotFound, false},
	{services.ErrInvoiceNotFound, "invoice_not_found", http.StatusNotFound, false},
	{services.ErrScheduleNotFound, "schedule_not_found", http.StatusNotFound, false},
	{services.ErrUserNotFound, "user_not_found", http.StatusNotFound, false},

	{services.ErrDepositInvalidState, "order_invalid_state", http.StatusConflict, true},
	{services.ErrFinalPaymentAlreadyCompleted, "order_invalid_state", http.StatusConflict, true},
	{services.ErrFinalPaymentDepositRequired, "order_invalid_state", http.StatusConflict, true},
	{services.ErrInvoiceInvalidState, "order_invalid_state", http.StatusConflict, true},
	{services.ErrOrderInvalidState, "order_invalid_state", http.StatusConflict, true},
	{services.ErrRefundInvalidState, "order_invalid_state", http.StatusConflict, true},
	{services.ErrScheduleInvalidState, "schedule_invalid_state", http.StatusConflict, true},
	{services.ErrInvoiceAlreadyIssued, "invoice_conflict", http.StatusConflict, true},
	{services.ErrCatalogConflict, "service_conflict", http.StatusConflict, true},
	{services.ErrTeamConflict, "team_conflict", http.StatusConflict, true},
	{services.ErrOrderConflict, "order_conflict", http.StatusConflict, true},
	{services.ErrUserConflict, "user_conflict", http.StatusConflict, true},

	{services.ErrDepositGatewayUnavailable, "payment_gateway_unavailable", http.StatusBadGateway, false},
	{services.ErrFinalPaymentGatewayUnavailable, "payment_gateway_unavailable", http.StatusBadGateway, false},
	{services.ErrRefundGatewayUnavailable, "payment_gateway_unavailable", http.StatusBadGateway, false},
	{services.ErrInvoiceIssuerUnavailable, "invoice_issuer_unavailable", http.StatusBadGateway, false},

	{services.ErrServiceUnavailable, "service_unavailable", http.StatusServiceUnavailable, false},
}

// writeServiceError translates a service error into the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, mapping := range serviceErrorMappings {
		if !errors.Is(err, mapping.target) {
			continue
		}
		message := mapping.target.Error()
		if mapping.expose {
			message = err.Error()
		}
		apiErr := httpx.NewError(mapping.code, message, mapping.status)
		var conflict *repositories.SlotConflictError
		if errors.As(err, &conflict) {
			apiErr = apiErr.WithDetails(map[string]any{
				"team_id":   conflict.TeamID,
				"date":      conflict.Date,
				"time_slot": conflict.Slot,
			})
		}
		httpx.WriteError(ctx, w, apiErr)
		return
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "backing store unavailable", http.StatusServiceUnavailable))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
}

func parseLimit(raw string, fallback, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer")
	}
	switch {
	case value <= 0:
		return fallback, nil
	case value > max:
		return max, nil
	}
	return value, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
