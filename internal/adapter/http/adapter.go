// Package http implements the gateway's inbound HTTP listener: it turns
// net/http requests into core.Request, calls the Proxy Engine, and writes
// the core.Response back. Grounded on the teacher's internal/adapter/http,
// trimmed of SSE and CORS-as-adapter-concern - CORS is one more Middleware
// Definition the Proxy Engine runs, not a listener-level wrapper.
package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"gateway/internal/core"
	"gateway/internal/telemetry"
	gwerrors "gateway/pkg/errors"
	"gateway/pkg/requestid"
)

// Adapter is the gateway's plaintext/TLS HTTP listener.
type Adapter struct {
	config         Config
	server         *http.Server
	handler        core.Handler
	healthHandler  *HealthHandler
	metricsHandler http.Handler
	telemetry      *telemetry.Telemetry
	reqNum         atomic.Uint64
	logger         *slog.Logger

	addr atomic.Pointer[string]
}

// New creates an Adapter that dispatches every request to handler (the
// Proxy Engine's Handle method).
func New(cfg Config, handler core.Handler, logger *slog.Logger) *Adapter {
	return &Adapter{
		config:  cfg,
		handler: handler,
		logger:  logger.With("component", "http-adapter"),
	}
}

// WithHealthHandler wires the gateway's own /health, /ready, /live endpoints.
func (a *Adapter) WithHealthHandler(h *HealthHandler) *Adapter {
	a.healthHandler = h
	return a
}

// WithMetricsHandler wires the Prometheus scrape endpoint.
func (a *Adapter) WithMetricsHandler(handler http.Handler) *Adapter {
	a.metricsHandler = handler
	return a
}

// WithTelemetry enables OpenTelemetry tracing of inbound requests. Without
// it, ServeHTTP runs untraced.
func (a *Adapter) WithTelemetry(t *telemetry.Telemetry) *Adapter {
	a.telemetry = t
	return a
}

// Start binds the listener and serves in the background; it returns once
// the socket is bound, not once the server stops.
func (a *Adapter) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.config.Host, a.config.Port)

	a.server = &http.Server{
		Addr:         addr,
		Handler:      a,
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		TLSConfig:    a.config.TLSConfig,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	boundAddr := listener.Addr().String()
	a.addr.Store(&boundAddr)

	if a.config.TLS != nil && a.config.TLS.Enabled {
		if a.config.TLSConfig == nil {
			listener.Close()
			return fmt.Errorf("TLS enabled but no TLS configuration provided")
		}
		a.logger.Info("starting TLS listener", "addr", addr)
		listener = tls.NewListener(listener, a.config.TLSConfig)
	} else {
		a.logger.Info("starting listener", "addr", addr)
	}

	go func() {
		if err := a.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			a.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the listener's bound address (host:port), useful when Port
// is 0 and the OS assigns an ephemeral port. Empty until Start succeeds.
func (a *Adapter) Addr() string {
	if p := a.addr.Load(); p != nil {
		return *p
	}
	return ""
}

// Stop gracefully drains in-flight requests, bounded by ctx.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	a.logger.Info("stopping listener", "requests_served", a.reqNum.Load())
	return a.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler: health/metrics endpoints are served
// directly, everything else goes through the Proxy Engine.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.reqNum.Add(1)

	if a.healthHandler != nil {
		switch r.URL.Path {
		case cmp(a.config.HealthPath, "/health"):
			a.healthHandler.Health(w, r)
			return
		case cmp(a.config.ReadyPath, "/ready"):
			a.healthHandler.Ready(w, r)
			return
		case cmp(a.config.LivePath, "/live"):
			a.healthHandler.Live(w, r)
			return
		}
	}

	if a.metricsHandler != nil && r.URL.Path == cmp(a.config.MetricsPath, "/metrics") {
		a.metricsHandler.ServeHTTP(w, r)
		return
	}

	reqID := requestid.GenerateRequestID()
	r.Header.Set("X-Request-ID", reqID)

	if a.config.MaxRequestSize > 0 {
		if r.ContentLength > a.config.MaxRequestSize {
			a.logger.Warn("request body too large", "request_id", reqID, "content_length", r.ContentLength)
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxRequestSize)
		}
	}

	req := newRequest(reqID, r)

	ctx := r.Context()
	var span trace.Span
	if a.telemetry != nil {
		ctx, span = a.telemetry.StartHTTPServerSpan(r)
	}

	resp, err := a.handler(ctx, req)
	if err != nil {
		if span != nil {
			telemetry.RecordError(ctx, err)
			telemetry.EndHTTPServerSpan(span, http.StatusInternalServerError)
		}
		a.handleError(w, reqID, err)
		return
	}

	if span != nil {
		telemetry.EndHTTPServerSpan(span, resp.StatusCode)
	}

	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if resp.Body != nil {
		defer resp.Body.Close()
		if _, err := io.Copy(w, resp.Body); err != nil {
			a.logger.Error("failed to copy response body", "error", err, "request_id", reqID, "path", req.Path)
		}
	}
}

func cmp(configured, fallback string) string {
	if configured == "" {
		return fallback
	}
	return configured
}

func errorTypeToHTTPStatus(errType gwerrors.ErrorType) int {
	switch errType {
	case gwerrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case gwerrors.ErrorTypeBadRequest:
		return http.StatusBadRequest
	case gwerrors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case gwerrors.ErrorTypeForbidden:
		return http.StatusForbidden
	case gwerrors.ErrorTypeTimeout:
		return http.StatusRequestTimeout
	case gwerrors.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	case gwerrors.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case gwerrors.ErrorTypeConflict:
		return http.StatusConflict
	case gwerrors.ErrorTypeBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *Adapter) handleError(w http.ResponseWriter, reqID string, err error) {
	var gwErr *gwerrors.Error
	var statusCode int
	var message string

	if errors.As(err, &gwErr) {
		statusCode = errorTypeToHTTPStatus(gwErr.Type)
		message = gwErr.Message
		a.logger.Error("request failed", "id", reqID, "type", gwErr.Type, "error", gwErr.Error(), "details", gwErr.Details)
	} else {
		statusCode = http.StatusInternalServerError
		message = "Internal Server Error"
		a.logger.Error("request failed", "id", reqID, "error", err)
	}

	http.Error(w, message, statusCode)
}
