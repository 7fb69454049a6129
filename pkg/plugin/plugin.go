// Package plugin assembles the Mercury integration's HTTP surface: named
// webhook endpoints, API-client tools, credential validation, the
// subscription API, health and metrics, served through a chi router.
package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mihaimyh/gomercury/pkg/api"
	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/tools"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "plugin:requestID"

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Config configures a Plugin.
type Config struct {
	// Name identifies the plugin in /healthz.
	Name string

	Logger mercury.Logger

	// MetricsHandler is mounted at GET /metrics when set (typically promhttp).
	MetricsHandler http.Handler

	// HealthTimeout bounds all health checks together (default: 2s).
	HealthTimeout time.Duration
}

// Plugin registers tools and endpoints by name.
type Plugin struct {
	config Config
	logger mercury.Logger

	mu            sync.RWMutex
	endpoints     map[string]http.Handler
	tools         *tools.Registry
	validator     http.Handler
	subscriptions *api.Handler
	checks        map[string]HealthCheck
}

// New creates an empty Plugin.
func New(cfg Config) *Plugin {
	if cfg.Name == "" {
		cfg.Name = "mercury"
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}
	registry, _ := tools.NewRegistry()
	return &Plugin{
		config:    cfg,
		logger:    mercury.LoggerOrNoop(cfg.Logger),
		endpoints: make(map[string]http.Handler),
		tools:     registry,
		checks:    make(map[string]HealthCheck),
	}
}

// RegisterEndpoint exposes h at POST /endpoints/{name} and
// POST /endpoints/{name}/{subscription}.
func (p *Plugin) RegisterEndpoint(name string, h http.Handler) error {
	name = strings.TrimSpace(name)
	if name == "" || h == nil {
		return errors.New("endpoint name and handler are required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.endpoints[name]; exists {
		return fmt.Errorf("endpoint %q already registered", name)
	}
	p.endpoints[name] = h
	return nil
}

// RegisterTool exposes t at POST /tools/{name}.
func (p *Plugin) RegisterTool(t tools.Tool) error {
	return p.tools.Register(t)
}

// SetCredentialValidator exposes POST /provider/validate.
func (p *Plugin) SetCredentialValidator(newClient tools.ClientFactory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validator = tools.ValidateHandler(newClient)
}

// SetSubscriptionAPI exposes the subscription lifecycle under /subscriptions.
func (p *Plugin) SetSubscriptionAPI(h *api.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions = h
}

// AddHealthCheck adds a named dependency check to /healthz.
func (p *Plugin) AddHealthCheck(name string, check HealthCheck) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks[name] = check
}

// Endpoints returns registered endpoint names in sorted order.
func (p *Plugin) Endpoints() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.endpoints))
	for name := range p.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns registered tool names in sorted order.
func (p *Plugin) Tools() []string {
	return p.tools.Names()
}

// Handler builds the router. Registrations made afterwards are still served.
func (p *Plugin) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(p.accessLog)

	r.Get("/healthz", p.health)
	if p.config.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", p.config.MetricsHandler)
	}

	r.Post("/endpoints/{name}", p.endpoint)
	r.Post("/endpoints/{name}/{subscription}", p.endpoint)
	r.Post("/tools/{name}", p.tool)
	r.Post("/provider/validate", p.validate)

	r.Route("/subscriptions", func(r chi.Router) {
		r.Use(p.requireSubscriptions)
		r.Post("/", p.withSubscriptions((*api.Handler).Create))
		r.Get("/{id}", p.withSubscriptions((*api.Handler).Get))
		r.Delete("/{id}", p.withSubscriptions((*api.Handler).Delete))
		r.Post("/{id}/refresh", p.withSubscriptions((*api.Handler).Refresh))
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "not found"})
	})
	return r
}

func (p *Plugin) endpoint(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p.mu.RLock()
	h, ok := p.endpoints[name]
	p.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "unknown endpoint"})
		return
	}
	h.ServeHTTP(w, r)
}

func (p *Plugin) tool(w http.ResponseWriter, r *http.Request) {
	t, ok := p.tools.Get(chi.URLParam(r, "name"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "unknown tool"})
		return
	}
	tools.Handler(t, p.logger).ServeHTTP(w, r)
}

func (p *Plugin) validate(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	h := p.validator
	p.mu.RUnlock()
	if h == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "credential validation not configured"})
		return
	}
	h.ServeHTTP(w, r)
}

func (p *Plugin) requireSubscriptions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.RLock()
		h := p.subscriptions
		p.mu.RUnlock()
		if h == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "subscriptions not configured"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Plugin) withSubscriptions(method func(*api.Handler, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.RLock()
		h := p.subscriptions
		p.mu.RUnlock()
		method(h, w, r)
	}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Plugin    string            `json:"plugin"`
	Endpoints []string          `json:"endpoints"`
	Tools     []string          `json:"tools"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (p *Plugin) health(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	checks := make(map[string]HealthCheck, len(p.checks))
	for name, c := range p.checks {
		checks[name] = c
	}
	p.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), p.config.HealthTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Plugin:    p.config.Name,
		Endpoints: p.Endpoints(),
		Tools:     p.Tools(),
	}
	code := http.StatusOK
	if len(checks) > 0 {
		resp.Checks = make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	writeJSON(w, code, resp)
}

// accessLog logs one line per request at debug level, warn for 5xx.
func (p *Plugin) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := []mercury.Field{
			{Key: "method", Value: r.Method},
			{Key: "path", Value: r.URL.Path},
			{Key: "status", Value: ww.Status()},
			{Key: "duration", Value: time.Since(start)},
			{Key: "request_id", Value: RequestIDFromContext(r.Context())},
		}
		if ww.Status() >= http.StatusInternalServerError {
			p.logger.Warn("request failed", fields...)
			return
		}
		p.logger.Debug("request served", fields...)
	})
}

// requestID keeps an inbound X-Request-ID or assigns a new uuid.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestIDFromContext returns the id assigned to the current request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
