package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/observability"

// VerificationMetrics records webhook signature and OIDC token checks. It satisfies the auth
// package's MetricsRecorder.
type VerificationMetrics struct {
	total   metric.Int64Counter
	latency metric.Float64Histogram
}

// NewVerificationMetrics registers the instruments on meter, or on the global provider when nil.
func NewVerificationMetrics(meter metric.Meter) (*VerificationMetrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	total, err := meter.Int64Counter("auth.verifications",
		metric.WithDescription("Inbound credential verifications by kind and outcome"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("auth.verification.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of inbound credential verification"),
	)
	if err != nil {
		return nil, err
	}
	return &VerificationMetrics{total: total, latency: latency}, nil
}

// RecordVerification adds one observation. reason is empty on success.
func (m *VerificationMetrics) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	m.total.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
}
