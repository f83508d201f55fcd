package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/services"
)

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rr
}

func TestRouter_ProbesAndFallbacks(t *testing.T) {
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(
		WithHealthSystemService(&stubSystemService{report: services.SystemHealthReport{Status: domain.HealthStatusOK}}),
	)))

	tests := []struct {
		name   string
		method string
		target string
		code   int
		errTag string
	}{
		{"liveness", http.MethodGet, "/healthz", http.StatusOK, ""},
		{"readiness", http.MethodGet, "/readyz", http.StatusOK, ""},
		{"unwired group root", http.MethodGet, "/api/v1/schedules", http.StatusNotImplemented, "not_implemented"},
		{"unwired group child", http.MethodPost, "/api/v1/orders/order-1/deposit", http.StatusNotImplemented, "not_implemented"},
		{"unknown path", http.MethodGet, "/api/v2/orders", http.StatusNotFound, "route_not_found"},
		{"collection action without registrar", http.MethodPost, "/api/v1/orders:calculate", http.StatusNotFound, "route_not_found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(router, tc.method, tc.target, "")
			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rr.Code)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("expected JSON, got %q", ct)
			}
			if tc.errTag != "" {
				if got := decodeBody(t, rr)["error"]; got != tc.errTag {
					t.Fatalf("expected error %q, got %v", tc.errTag, got)
				}
			}
		})
	}
}

func TestRouter_GroupMiddlewareIsScoped(t *testing.T) {
	var seen []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = append(seen, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	ok := func(r chi.Router) {
		r.Post("/payments", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	}
	router := NewRouter(
		WithRoutes("/webhooks", ok),
		WithGroupMiddlewares("/webhooks", tag("signature")),
		WithRoutes("/public", ok),
	)

	if rr := serve(router, http.MethodPost, "/api/v1/webhooks/payments", "{}"); rr.Code != http.StatusOK {
		t.Fatalf("webhook: expected 200, got %d", rr.Code)
	}
	if rr := serve(router, http.MethodGet, "/api/v1/public", ""); rr.Code != http.StatusOK {
		t.Fatalf("public: expected 200, got %d", rr.Code)
	}
	if len(seen) != 1 || seen[0] != "signature" {
		t.Fatalf("expected group middleware to run once for the webhook only, got %v", seen)
	}
}

func TestRouter_UnwiredInternalStillRunsGuard(t *testing.T) {
	guard := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	router := NewRouter(WithGroupMiddlewares("/internal", guard))

	if rr := serve(router, http.MethodPost, "/api/v1/internal/notifications:retry", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected guard to answer first, got %d", rr.Code)
	}
}

func TestRouter_OrderActionsBesideOrderGroup(t *testing.T) {
	orders := &stubOrderService{
		calculateFn: func(context.Context, services.CreateOrderCommand) (services.OrderQuote, error) {
			return services.OrderQuote{Totals: services.OrderTotals{Total: 1000, Deposit: 400, Remainder: 600}}, nil
		},
		getFn: func(_ context.Context, id string, _ *services.Actor) (services.Order, error) {
			return services.Order{ID: id, Status: domain.OrderStatusPending}, nil
		},
	}
	h := NewOrderHandlers(nil, orders)
	router := NewRouter(
		WithMiddlewares(withTestIdentity(&auth.Identity{UID: "user-1"})),
		WithRootRoutes(h.ActionRoutes),
		WithRoutes("/orders", h.Routes),
	)

	if rr := serve(router, http.MethodPost, "/api/v1/orders:calculate", `{"party_size":1,"items":[]}`); rr.Code != http.StatusOK {
		t.Fatalf("calculate: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := serve(router, http.MethodGet, "/api/v1/orders/order-1", ""); rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouter_RequestDeadline(t *testing.T) {
	var remaining time.Duration
	router := NewRouter(
		WithRequestTimeout(5*time.Second),
		WithRoutes("/public", func(r chi.Router) {
			r.Get("/services", func(w http.ResponseWriter, req *http.Request) {
				if deadline, ok := req.Context().Deadline(); ok {
					remaining = time.Until(deadline)
				}
				w.WriteHeader(http.StatusNoContent)
			})
		}),
	)

	if rr := serve(router, http.MethodGet, "/api/v1/public/services", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if remaining <= 4*time.Second || remaining > 5*time.Second {
		t.Fatalf("expected a five second deadline, got %s remaining", remaining)
	}
}
