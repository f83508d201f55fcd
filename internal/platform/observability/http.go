package observability

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/httpx"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/requestctx"
)

// Route parameters copied into the completion log so a booking can be followed across requests.
var loggedParams = []struct{ param, field string }{
	{"orderID", "order_id"},
	{"scheduleID", "schedule_id"},
	{"teamID", "team_id"},
	{"serviceID", "service_id"},
	{"userID", "target_user_id"},
}

// InjectLoggerMiddleware makes logger the request logger.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLoggerMiddleware scopes the request logger to the request and writes one completion
// entry per request. Entries are info below 400, warn below 500 and error otherwise. projectID
// links the entry to its Cloud Trace when set.
func RequestLoggerMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			info, _ := requestctx.Trace(ctx)
			if info.ProjectID == "" {
				info.ProjectID = projectID
			}

			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(ctx)),
				zap.String("method", logSafe(r.Method, 10)),
				zap.String("path", logSafe(r.URL.Path, 180)),
			}
			if info.TraceID != "" {
				fields = append(fields, zap.String("trace_id", info.TraceID))
				if info.ProjectID != "" {
					fields = append(fields, zap.String("logging.googleapis.com/trace",
						fmt.Sprintf("projects/%s/traces/%s", info.ProjectID, info.TraceID)))
				}
			}
			if ip := remoteIP(r.RemoteAddr); ip != "" {
				fields = append(fields, zap.String("remote_ip", ip))
			}
			logger := requestctx.Logger(ctx).With(fields...)
			r = r.WithContext(requestctx.WithLogger(ctx, logger))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			panicked := true
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				if panicked {
					status = http.StatusInternalServerError
				}
				route := routePattern(r)
				annotateSpan(trace.SpanFromContext(r.Context()), route, status)
				logCompletion(logger, r, route, status, ww.BytesWritten(), time.Since(start))
			}()
			next.ServeHTTP(ww, r)
			panicked = false
		})
	}
}

func logCompletion(logger *zap.Logger, r *http.Request, route string, status, bytes int, latency time.Duration) {
	fields := []zap.Field{
		zap.String("route", route),
		zap.Int("status", status),
		zap.Int("bytes", bytes),
		zap.Duration("latency", latency),
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for _, p := range loggedParams {
			if v := rctx.URLParam(p.param); v != "" {
				fields = append(fields, zap.String(p.field, logSafe(v, 64)))
			}
		}
	}
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("http: request", fields...)
	case status >= http.StatusBadRequest:
		logger.Warn("http: request", fields...)
	default:
		logger.Info("http: request", fields...)
	}
}

func annotateSpan(span trace.Span, route string, status int) {
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(semconv.HTTPResponseStatusCode(status), semconv.HTTPRoute(route))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

// RecoveryMiddleware turns a handler panic into a logged stack and a 500 JSON error.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger := requestctx.Logger(r.Context())
				if logger == requestctx.NoopLogger() {
					logger = fallback
				}
				logger.Error("http: panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				httpx.WriteError(r.Context(), w, httpx.NewError("internal", "internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return logSafe(pattern, 180)
		}
	}
	return "unmatched"
}

func remoteIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return logSafe(addr, 64)
}

// logSafe drops control characters and caps value at limit runes.
func logSafe(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, value)
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
