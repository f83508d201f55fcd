package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	defaultWebhookSignatureHeader = "X-Signature"
	defaultWebhookRequestIDHeader = "X-Request-Id"

	maxWebhookBodyBytes = 1 << 20
)

var (
	// ErrSignatureSecretMissing reports that no webhook secret is configured.
	ErrSignatureSecretMissing = errors.New("auth: webhook secret not configured")
	// ErrSignatureMissing reports a callback without signature, request id or payment id.
	ErrSignatureMissing = errors.New("auth: webhook signature missing")
	// ErrSignatureInvalid reports a malformed or mismatching signature.
	ErrSignatureInvalid = errors.New("auth: webhook signature invalid")
)

// Logger captures the minimal logging contract used by the auth package.
type Logger interface {
	Printf(format string, args ...any)
}

// MetricsRecorder records verification outcomes for observability.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

// MetricsRecorderFunc adapts a function to MetricsRecorder.
type MetricsRecorderFunc func(context.Context, string, bool, string, time.Duration)

// RecordVerification implements MetricsRecorder.
func (f MetricsRecorderFunc) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if f != nil {
		f(ctx, kind, success, reason, duration)
	}
}

// WebhookVerifier checks the gateway callback signature. The header has the form "ts=<ts>,v1=<hex>"
// and v1 is HMAC-SHA256 over "id:<paymentId>;request-id:<requestId>;ts:<ts>;".
type WebhookVerifier struct {
	secret  []byte
	enforce bool

	signatureHeader string
	requestIDHeader string

	logger  Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// WebhookOption customises the verifier.
type WebhookOption func(*WebhookVerifier)

// WithWebhookEnforcement rejects unsigned or badly signed callbacks. Production enables it; other
// environments accept them with a warning so sandbox gateways can be used without a secret.
func WithWebhookEnforcement(enforce bool) WebhookOption {
	return func(v *WebhookVerifier) {
		v.enforce = enforce
	}
}

// WithWebhookHeaders overrides the signature and request id header names.
func WithWebhookHeaders(signature, requestID string) WebhookOption {
	return func(v *WebhookVerifier) {
		if strings.TrimSpace(signature) != "" {
			v.signatureHeader = strings.TrimSpace(signature)
		}
		if strings.TrimSpace(requestID) != "" {
			v.requestIDHeader = strings.TrimSpace(requestID)
		}
	}
}

// WithWebhookLogger overrides the verifier logger.
func WithWebhookLogger(logger Logger) WebhookOption {
	return func(v *WebhookVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithWebhookMetrics sets the metrics recorder.
func WithWebhookMetrics(metrics MetricsRecorder) WebhookOption {
	return func(v *WebhookVerifier) {
		v.metrics = metrics
	}
}

// WithWebhookClock injects a custom clock, primarily for tests.
func WithWebhookClock(now func() time.Time) WebhookOption {
	return func(v *WebhookVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewWebhookVerifier builds a verifier for the shared secret.
func NewWebhookVerifier(secret string, opts ...WebhookOption) *WebhookVerifier {
	v := &WebhookVerifier{
		secret:          []byte(strings.TrimSpace(secret)),
		signatureHeader: defaultWebhookSignatureHeader,
		requestIDHeader: defaultWebhookRequestIDHeader,
		logger:          log.Default(),
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// WebhookManifest renders the signed string for a callback.
func WebhookManifest(paymentID, requestID, ts string) string {
	return fmt.Sprintf("id:%s;request-id:%s;ts:%s;", paymentID, requestID, ts)
}

// SignWebhook returns the header value a gateway would send for the callback.
func SignWebhook(secret, paymentID, requestID, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(WebhookManifest(paymentID, requestID, ts)))
	return "ts=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

// ParseSignatureHeader extracts ts and v1 from "ts=<ts>,v1=<hex>". Unknown parts are ignored.
func ParseSignatureHeader(value string) (ts string, v1 string, err error) {
	for _, part := range strings.Split(value, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(val)
		case "v1":
			v1 = strings.TrimSpace(val)
		}
	}
	if ts == "" || v1 == "" {
		return "", "", fmt.Errorf("%w: expected ts and v1 parts", ErrSignatureInvalid)
	}
	return ts, v1, nil
}

// Verify checks a signature header for the given payment and request ids.
func (v *WebhookVerifier) Verify(paymentID, requestID, signature string) error {
	if v == nil || len(v.secret) == 0 {
		return ErrSignatureSecretMissing
	}
	if strings.TrimSpace(signature) == "" || strings.TrimSpace(requestID) == "" || strings.TrimSpace(paymentID) == "" {
		return ErrSignatureMissing
	}
	ts, v1, err := ParseSignatureHeader(signature)
	if err != nil {
		return err
	}
	provided, err := hex.DecodeString(v1)
	if err != nil {
		return fmt.Errorf("%w: v1 is not hex", ErrSignatureInvalid)
	}
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write([]byte(WebhookManifest(paymentID, requestID, ts)))
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrSignatureInvalid
	}
	return nil
}

// WebhookVerification describes the signature outcome for downstream handlers.
type WebhookVerification struct {
	Verified  bool
	Reason    string
	RequestID string
	PaymentID string
}

type webhookContextKey struct{}

// WebhookVerificationFromContext retrieves the outcome stored by RequireSignature.
func WebhookVerificationFromContext(ctx context.Context) (WebhookVerification, bool) {
	meta, ok := ctx.Value(webhookContextKey{}).(WebhookVerification)
	return meta, ok
}

// RequireSignature verifies callbacks before they reach the handler. When enforcement is off a
// failing signature is logged and the request continues with Verified=false.
func (v *WebhookVerifier) RequireSignature() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()

			body, err := readAndRestoreBody(r)
			if err != nil {
				v.record(ctx, false, "body_unreadable", start)
				respondAuthError(w, r, http.StatusBadRequest, "invalid_body", "unable to read body for signature verification")
				return
			}

			meta := WebhookVerification{
				RequestID: strings.TrimSpace(r.Header.Get(v.requestIDHeader)),
				PaymentID: callbackPaymentID(r, body),
			}
			err = v.Verify(meta.PaymentID, meta.RequestID, r.Header.Get(v.signatureHeader))
			switch {
			case err == nil:
				meta.Verified = true
				meta.Reason = "ok"
			case errors.Is(err, ErrSignatureSecretMissing):
				meta.Reason = "secret_not_configured"
			case errors.Is(err, ErrSignatureMissing):
				meta.Reason = "signature_missing"
			default:
				meta.Reason = "signature_invalid"
			}

			if !meta.Verified {
				v.record(ctx, false, meta.Reason, start)
				if v.enforce {
					respondAuthError(w, r, http.StatusUnauthorized, meta.Reason, "webhook signature verification failed")
					return
				}
				if v.logger != nil {
					v.logger.Printf("auth: accepting unverified webhook (%s) request_id=%q", meta.Reason, meta.RequestID)
				}
			} else {
				v.record(ctx, true, meta.Reason, start)
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, webhookContextKey{}, meta)))
		})
	}
}

func (v *WebhookVerifier) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v == nil || v.metrics == nil {
		return
	}
	v.metrics.RecordVerification(ctx, "webhook", success, reason, v.now().Sub(start))
}

// callbackPaymentID reads data.id from the query string or the JSON body. Gateways send it as a
// string or a number.
func callbackPaymentID(r *http.Request, body []byte) string {
	if id := strings.TrimSpace(r.URL.Query().Get("data.id")); id != "" {
		return id
	}
	var payload struct {
		Data struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil || len(payload.Data.ID) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(payload.Data.ID, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asNumber json.Number
	if err := json.Unmarshal(payload.Data.ID, &asNumber); err == nil {
		return asNumber.String()
	}
	return ""
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}
