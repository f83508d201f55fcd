package observability

import (
	"encoding/binary"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/requestctx"
)

// Header set by Google front ends: TRACE_ID/SPAN_ID;o=OPTIONS, with a decimal span id.
const cloudTraceHeader = "X-Cloud-Trace-Context"

var tracer = otel.Tracer("github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/observability")

// TraceMiddleware continues the caller's Cloud Trace (when the header is present), opens a server
// span for the request and echoes the span back in the response header.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if remote, ok := parseCloudTrace(r.Header.Get(cloudTraceHeader)); ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
			}

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.UserAgentOriginal(r.UserAgent()),
				),
			)
			defer span.End()

			if sc := span.SpanContext(); sc.IsValid() {
				ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{
					TraceID:   sc.TraceID().String(),
					SpanID:    sc.SpanID().String(),
					Sampled:   sc.IsSampled(),
					ProjectID: projectID,
				})
				w.Header().Set(cloudTraceHeader, formatCloudTrace(sc))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseCloudTrace reads an X-Cloud-Trace-Context value. The span id is decimal; a 16 digit hex
// id is accepted as well since some proxies rewrite the header in W3C form.
func parseCloudTrace(header string) (trace.SpanContext, bool) {
	traceHex, rest, ok := strings.Cut(strings.TrimSpace(header), "/")
	if !ok {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanRaw, options, _ := strings.Cut(rest, ";")
	spanID, ok := parseSpanID(strings.TrimSpace(spanRaw))
	if !ok {
		return trace.SpanContext{}, false
	}

	var flags trace.TraceFlags
	for _, opt := range strings.Split(options, ";") {
		if strings.TrimSpace(opt) == "o=1" {
			flags = trace.FlagsSampled
		}
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	})
	return sc, sc.IsValid()
}

func parseSpanID(raw string) (trace.SpanID, bool) {
	var id trace.SpanID
	if n, err := strconv.ParseUint(raw, 10, 64); err == nil && n != 0 {
		binary.BigEndian.PutUint64(id[:], n)
		return id, true
	}
	if len(raw) == 16 {
		if parsed, err := trace.SpanIDFromHex(raw); err == nil {
			return parsed, true
		}
	}
	return id, false
}

func formatCloudTrace(sc trace.SpanContext) string {
	spanID := sc.SpanID()
	opt := "0"
	if sc.IsSampled() {
		opt = "1"
	}
	return sc.TraceID().String() + "/" + strconv.FormatUint(binary.BigEndian.Uint64(spanID[:]), 10) + ";o=" + opt
}
