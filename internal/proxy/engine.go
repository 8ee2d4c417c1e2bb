// Package proxy implements the Proxy Engine (spec.md §4.8): match, run the
// Middleware Pipeline, select a backend, dispatch with retry, and stream the
// response back. Grounded on internal/backend/http_connector.go (forwarding)
// and internal/retry/retry.go (retry-on-transient-failure), composed around
// the Routing Table & Matcher, Load Balancer, Health Controller, and
// Middleware Pipeline built elsewhere.
package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"gateway/internal/backend"
	"gateway/internal/core"
	"gateway/internal/health"
	"gateway/internal/loadbalancer"
	"gateway/internal/matcher"
	"gateway/internal/middleware"
	"gateway/internal/retry"
	"gateway/internal/snapshot"
	"gateway/internal/telemetry"
	"gateway/pkg/errors"
	"gateway/pkg/metrics"
	"gateway/pkg/requestid"
)

// Config tunes the Engine's retry loop, grounded on spec.md §6's
// retry-max-attempts / retry-interval-seconds settings.
type Config struct {
	MaxAttempts   int
	RetryInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
}

// compiled is the Engine's working view of one snapshot: the routing table
// plus every enabled middleware built once up front, so per-request
// dispatch never pays a middleware construction cost (rate-limit buckets
// and JWKS caches must survive across requests, not just across hooks).
type compiled struct {
	snap        *snapshot.Snapshot
	middlewares map[string]core.Middleware
}

// Engine is the Proxy Engine: a core.Handler bound to a live routing
// snapshot, the Health Controller's annotations, and a Load Balancer.
type Engine struct {
	cfg Config

	current atomic.Pointer[compiled]

	registry  *middleware.Registry
	health    *health.Controller
	lb        *loadbalancer.Manager
	connector backend.Connector
	retrier   *retry.Retrier
	metrics   *metrics.Metrics
	telemetry *telemetry.Telemetry
	logger    *slog.Logger
}

// WithTelemetry enables OpenTelemetry tracing of each dispatch attempt.
// Without it, dispatch runs untraced.
func (e *Engine) WithTelemetry(t *telemetry.Telemetry) *Engine {
	e.telemetry = t
	return e
}

// New builds an Engine with no snapshot loaded; requests fail with 404
// until UpdateSnapshot is called at least once.
func New(cfg Config, registry *middleware.Registry, healthController *health.Controller, lb *loadbalancer.Manager, connector backend.Connector, m *metrics.Metrics, logger *slog.Logger) *Engine {
	cfg.setDefaults()
	e := &Engine{
		cfg:       cfg,
		registry:  registry,
		health:    healthController,
		lb:        lb,
		connector: connector,
		metrics:   m,
		logger:    logger.With("component", "proxy-engine"),
	}
	e.retrier = retry.New(retry.Config{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.RetryInterval,
		MaxDelay:      cfg.RetryInterval,
		Constant:      true,
		RetryableFunc: retry.DefaultRetryableFunc,
	})
	e.current.Store(&compiled{snap: &snapshot.Snapshot{Services: map[string]snapshot.Service{}, Middlewares: map[string]snapshot.MiddlewareDef{}}})
	return e
}

// UpdateSnapshot installs snap as the Engine's routing table, building every
// enabled Middleware Definition's core.Middleware up front. A middleware
// that fails to build is dropped (logged), matching the Config Aggregator's
// partial-failure policy: the entity it belongs to is excluded, not the
// whole reload.
func (e *Engine) UpdateSnapshot(snap *snapshot.Snapshot) {
	built := make(map[string]core.Middleware, len(snap.Middlewares))
	for name, def := range snap.Middlewares {
		if !def.Enabled {
			continue
		}
		mw, err := e.registry.Build(def)
		if err != nil {
			e.logger.Warn("dropping middleware from snapshot", "middleware", name, "error", err)
			continue
		}
		built[name] = mw
	}
	e.current.Store(&compiled{snap: snap, middlewares: built})
}

// Handle implements core.Handler: match, run the middleware pipeline, select
// a backend, dispatch with retry.
func (e *Engine) Handle(ctx context.Context, req *core.Request) (*core.Response, error) {
	if req.ID == "" {
		req.ID = requestid.GenerateRequestID()
	}

	c := e.current.Load()

	router, ok := matcher.Match(c.snap, req.Host, req.Path)
	if !ok {
		return e.errorResponse(errors.NewError(errors.ErrorTypeNotFound, "no router matches this request")), nil
	}

	svc, ok := c.snap.Services[router.ServiceName]
	if !ok {
		return e.errorResponse(errors.NewError(errors.ErrorTypeUnavailable, "router's service is not published")), nil
	}
	svc = e.health.Annotate(svc)

	pipeline := middleware.NewPipeline(e.resolveMiddlewares(c, router), e.logger)
	execute := middleware.Recover(e.logger, pipeline.Execute)

	dispatch := func(ctx context.Context, req *core.Request) (*core.Response, error) {
		return e.dispatch(ctx, req, svc)
	}

	start := time.Now()
	resp, err := execute(ctx, req, dispatch)
	if err != nil {
		return nil, err
	}

	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set("X-Request-ID", req.ID)

	if e.metrics != nil {
		path := metrics.NormalizePath(req.Path)
		status := statusLabel(resp.StatusCode)
		e.metrics.RequestsTotal.WithLabelValues(req.Method, path, status).Inc()
		e.metrics.RequestDuration.WithLabelValues(req.Method, path, status).Observe(time.Since(start).Seconds())
	}

	return resp, nil
}

// resolveMiddlewares turns a Router's declared middleware names into the
// built core.Middleware slice, ordered by the router's declared order with
// MiddlewareDef.Order breaking ties (spec.md §9: router order is primary,
// Order is a tie-breaker); a name with no corresponding built middleware
// (disabled, or dropped at build time) is silently skipped.
func (e *Engine) resolveMiddlewares(c *compiled, router snapshot.Router) []core.Middleware {
	type entry struct {
		mw    core.Middleware
		order int
		pos   int
	}
	entries := make([]entry, 0, len(router.Middlewares))
	for i, name := range router.Middlewares {
		mw, ok := c.middlewares[name]
		if !ok {
			continue
		}
		def := c.snap.Middlewares[name]
		entries = append(entries, entry{mw: mw, order: def.Order, pos: i})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].pos != entries[j].pos {
			return entries[i].pos < entries[j].pos
		}
		return entries[i].order < entries[j].order
	})
	out := make([]core.Middleware, len(entries))
	for i, ent := range entries {
		out[i] = ent.mw
	}
	return out
}

// dispatch selects a backend and forwards req to it, retrying only
// transport-level failures (connection errors), never HTTP-level responses
// including 5xx, per spec.md §4.8. The final failure maps to 502.
func (e *Engine) dispatch(ctx context.Context, req *core.Request, svc snapshot.Service) (*core.Response, error) {
	var resp *core.Response
	attempt := 0

	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		attempt++
		b, err := e.lb.Next(svc)
		if err != nil {
			return retry.NewNonRetryableError(err)
		}

		dispatchCtx := ctx
		var span trace.Span
		if e.telemetry != nil {
			dispatchCtx, span = e.telemetry.StartDispatchSpan(ctx, b.ID, attempt)
		}

		start := time.Now()
		r, err := e.connector.Forward(dispatchCtx, req, b)
		if err != nil {
			if e.metrics != nil {
				e.metrics.BackendErrors.WithLabelValues(svc.Name, b.ID, "transport").Inc()
			}
			if span != nil {
				telemetry.RecordError(dispatchCtx, err)
				span.End()
			}
			return err
		}

		if e.metrics != nil {
			e.metrics.BackendRequestsTotal.WithLabelValues(svc.Name, b.ID, req.Method, statusLabel(r.StatusCode)).Inc()
			e.metrics.BackendRequestDuration.WithLabelValues(svc.Name, b.ID, req.Method).Observe(time.Since(start).Seconds())
		}
		if span != nil {
			span.End()
		}
		resp = r
		return nil
	})

	if err != nil {
		if e.metrics != nil {
			e.metrics.BackendRetries.WithLabelValues(svc.Name).Inc()
		}
		if errors.Is(err, loadbalancer.ErrNoBackend) {
			return e.errorResponse(errors.NewError(errors.ErrorTypeUnavailable, "no healthy backend")), nil
		}
		return e.errorResponse(errors.NewError(errors.ErrorTypeBadGateway, "backend dispatch failed").WithCause(err)), nil
	}

	return resp, nil
}

func (e *Engine) errorResponse(err *errors.Error) *core.Response {
	return core.NewResponse(err.HTTPStatusCode(), []byte(err.Message))
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}
