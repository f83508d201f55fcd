package handlers

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/requestctx"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

const (
	maxWebhookBodySize = 1 << 20

	defaultWebhookRateLimit  = 120
	defaultWebhookRateWindow = time.Minute
)

// PaymentWebhookHandlers receives payment gateway callbacks. Signature checks run in the /webhooks
// group middleware; once a callback reaches the handler it is always answered 200 with its outcome
// so the gateway does not retry callbacks that can never succeed.
type PaymentWebhookHandlers struct {
	webhooks services.PaymentWebhookService
	limiter  rateLimiter
}

// WebhookHandlerOption customises PaymentWebhookHandlers.
type WebhookHandlerOption func(*PaymentWebhookHandlers)

// WithWebhookRateLimit throttles callbacks per client address. A non-positive limit disables it.
func WithWebhookRateLimit(limit int, window time.Duration, clock func() time.Time) WebhookHandlerOption {
	return func(h *PaymentWebhookHandlers) {
		h.limiter = newKeyedRateLimiter(limit, window, clock)
	}
}

// NewPaymentWebhookHandlers constructs the webhook endpoints.
func NewPaymentWebhookHandlers(webhooks services.PaymentWebhookService, opts ...WebhookHandlerOption) *PaymentWebhookHandlers {
	h := &PaymentWebhookHandlers{
		webhooks: webhooks,
		limiter:  newKeyedRateLimiter(defaultWebhookRateLimit, defaultWebhookRateWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /webhooks endpoints.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.handlePayment)
}

type webhookBody struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

func (h *PaymentWebhookHandlers) handlePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.limiter != nil && !h.limiter.Allow(clientAddress(r)) {
		writeRateLimited(ctx, w, h.limiter, "too many callbacks")
		return
	}
	if h.webhooks == nil {
		writeWebhookOutcome(w, services.WebhookOutcomeError)
		return
	}

	notification := parsePaymentNotification(r)
	ctx = requestctx.With(ctx, zap.String("payment_id", notification.PaymentID))
	logger := requestctx.Logger(ctx)
	if meta, ok := auth.WebhookVerificationFromContext(ctx); ok && !meta.Verified {
		logger.Warn("webhook: processing unverified callback",
			zap.String("reason", meta.Reason),
		)
	}

	outcome, err := h.webhooks.Handle(ctx, notification)
	if err != nil {
		logger.Error("webhook: callback failed",
			zap.String("type", notification.Type),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
	if outcome == "" {
		outcome = services.WebhookOutcomeError
	}
	writeWebhookOutcome(w, outcome)
}

func writeWebhookOutcome(w http.ResponseWriter, outcome services.WebhookOutcome) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

// parsePaymentNotification accepts the type and payment id from the JSON body or from the query
// string ("type"/"topic" and "data.id"), the body winning when both are present.
func parsePaymentNotification(r *http.Request) services.PaymentNotification {
	query := r.URL.Query()
	notification := services.PaymentNotification{
		Type:      firstNonEmpty(query.Get("type"), query.Get("topic")),
		PaymentID: strings.TrimSpace(query.Get("data.id")),
	}
	if r.Body == nil {
		return notification
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil || len(raw) == 0 {
		return notification
	}
	var body webhookBody
	if json.Unmarshal(raw, &body) != nil {
		return notification
	}
	if t := firstNonEmpty(body.Type, body.Topic); t != "" {
		notification.Type = t
	}
	if id := rawID(body.Data.ID); id != "" {
		notification.PaymentID = id
	}
	return notification
}

// rawID decodes an id sent either as a JSON string or a JSON number.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String()
	}
	return ""
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
