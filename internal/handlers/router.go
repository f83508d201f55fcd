package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/httpx"
)

// RouteRegistrar adds routes to a router group.
type RouteRegistrar func(r chi.Router)

// API groups under /api/v1. A group without a registrar answers 501 so clients can tell an
// unwired surface from a wrong path.
var apiGroups = []string{"/public", "/me", "/orders", "/schedules", "/admin", "/webhooks", "/internal"}

const (
	apiPrefix             = "/api/v1"
	defaultRequestTimeout = 60 * time.Second
)

type routeGroup struct {
	registrar   RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	timeout     time.Duration
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	root        []RouteRegistrar
	groups      map[string]*routeGroup
}

func (c *routerConfig) group(path string) *routeGroup {
	g, ok := c.groups[path]
	if !ok {
		g = &routeGroup{}
		c.groups[path] = g
	}
	return g
}

// Option customises NewRouter.
type Option func(*routerConfig)

// NewRouter builds the HTTP surface: probes at the root, API groups under /api/v1.
func NewRouter(opts ...Option) chi.Router {
	cfg := &routerConfig{timeout: defaultRequestTimeout, groups: map[string]*routeGroup{}}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Timeout(cfg.timeout))
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" is not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		// Root registrars own paths such as /orders:calculate that a /orders mount cannot match.
		for _, reg := range cfg.root {
			reg(api)
		}
		for _, path := range apiGroups {
			g := cfg.group(path)
			api.Route(path, func(sub chi.Router) {
				for _, mw := range g.middlewares {
					if mw != nil {
						sub.Use(mw)
					}
				}
				if g.registrar == nil {
					unwired(sub)
					return
				}
				g.registrar(sub)
			})
		}
	})
	return r
}

func unwired(r chi.Router) {
	h := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", req.URL.Path+" is not served by this deployment", http.StatusNotImplemented))
	}
	r.HandleFunc("/", h)
	r.HandleFunc("/*", h)
}

// WithRequestTimeout overrides the per-request deadline. Non-positive values keep the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// WithMiddlewares appends router-wide middleware, run after request id, real ip and timeout.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

// WithHealthHandlers sets the /healthz and /readyz handlers.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithRoutes serves the API group at path ("/orders", "/admin", ...) with reg.
func WithRoutes(path string, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.group(path).registrar = reg }
}

// WithGroupMiddlewares adds middleware that only wraps the group at path.
func WithGroupMiddlewares(path string, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		g := cfg.group(path)
		g.middlewares = append(g.middlewares, mw...)
	}
}

// WithRootRoutes registers routes directly under /api/v1.
func WithRootRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		if reg != nil {
			cfg.root = append(cfg.root, reg)
		}
	}
}
