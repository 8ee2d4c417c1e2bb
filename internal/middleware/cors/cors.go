// Package cors implements the CORS built-in middleware (spec.md §4.6):
// preflight short-circuit plus response-header injection. Grounded on the
// teacher's internal/middleware/cors package (allowed-origin/header lookup
// tables, preflight vs. actual-request handling), adapted from the teacher's
// context-value HTTP-request/writer lookup to the new core.Request/Response
// pipeline, and from factory.Component's arbitrary config to the
// Middleware Definition's flat Settings map[string]string.
package cors

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gateway/internal/core"
	"gateway/pkg/factory"
)

// ComponentName is the name used to register this component.
const ComponentName = "cors"

// Config holds CORS configuration, parsed from a Middleware Definition's
// Settings map.
type Config struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultConfig returns a permissive default CORS configuration.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400,
	}
}

// ParseConfig builds a Config from a Middleware Definition's Settings map,
// filling unset fields from DefaultConfig.
func ParseConfig(settings map[string]string) Config {
	cfg := DefaultConfig()
	if v, ok := settings["allowOrigins"]; ok {
		cfg.AllowedOrigins = splitComma(v)
	}
	if v, ok := settings["allowMethods"]; ok {
		cfg.AllowedMethods = splitComma(v)
	}
	if v, ok := settings["allowHeaders"]; ok {
		cfg.AllowedHeaders = splitComma(v)
	}
	if v, ok := settings["exposeHeaders"]; ok {
		cfg.ExposedHeaders = splitComma(v)
	}
	if v, ok := settings["allowCredentials"]; ok {
		cfg.AllowCredentials = v == "true"
	}
	if v, ok := settings["maxAge"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAge = n
		}
	}
	return cfg
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Middleware is the CORS core.Middleware: it short-circuits preflight
// (OPTIONS with Access-Control-Request-Method) with a 204 carrying the
// negotiated headers, and injects Access-Control-* headers into the actual
// response on every other request.
type Middleware struct {
	name           string
	config         Config
	allowedOrigins map[string]bool
	allowedHeaders map[string]bool

	// pending tracks the Origin seen on Before, keyed by request ID, so
	// After can decorate the actual (non-preflight) response: After only
	// gets ctx and resp, and one Middleware instance is shared across
	// concurrent requests (built once per snapshot, not per request), so
	// the request ID carried in ctx is the only way to find it back.
	pending sync.Map
}

// New builds a CORS middleware instance named name.
func New(name string, config Config) *Middleware {
	origins := make(map[string]bool, len(config.AllowedOrigins))
	for _, o := range config.AllowedOrigins {
		origins[strings.ToLower(o)] = true
	}
	headers := make(map[string]bool, len(config.AllowedHeaders))
	for _, h := range config.AllowedHeaders {
		headers[strings.ToLower(h)] = true
	}
	return &Middleware{name: name, config: config, allowedOrigins: origins, allowedHeaders: headers}
}

func (m *Middleware) Name() string { return m.name }

func (m *Middleware) Before(ctx context.Context, req *core.Request) (*core.Request, *core.Response, error) {
	origin := req.Header.Get("Origin")

	if req.Method == "OPTIONS" && req.Header.Get("Access-Control-Request-Method") != "" {
		resp := core.NewResponse(204, nil)
		m.applyOriginHeaders(resp, origin)
		if m.isMethodAllowed(req.Header.Get("Access-Control-Request-Method")) {
			resp.Header.Set("Access-Control-Allow-Methods", strings.Join(m.config.AllowedMethods, ", "))
		}
		if reqHeaders := req.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" && m.areHeadersAllowed(reqHeaders) {
			resp.Header.Set("Access-Control-Allow-Headers", reqHeaders)
		}
		if m.config.MaxAge > 0 {
			resp.Header.Set("Access-Control-Max-Age", strconv.Itoa(m.config.MaxAge))
		}
		return req, resp, nil
	}

	if origin != "" {
		m.pending.Store(req.ID, origin)
	}
	return req, nil, nil
}

// After decorates the response for the actual (non-preflight) request with
// the Access-Control-* headers negotiated against the Origin Before saw -
// preflight requests are already fully answered by Before's short-circuit.
func (m *Middleware) After(ctx context.Context, resp *core.Response) (*core.Response, error) {
	id, ok := core.RequestIDFromContext(ctx)
	if !ok {
		return resp, nil
	}
	v, ok := m.pending.LoadAndDelete(id)
	if !ok {
		return resp, nil
	}
	m.applyOriginHeaders(resp, v.(string))
	return resp, nil
}

func (m *Middleware) applyOriginHeaders(resp *core.Response, origin string) {
	if !m.isOriginAllowed(origin) {
		return
	}
	resp.Header.Set("Access-Control-Allow-Origin", origin)
	resp.Header.Add("Vary", "Origin")
	if m.config.AllowCredentials {
		resp.Header.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(m.config.ExposedHeaders) > 0 {
		resp.Header.Set("Access-Control-Expose-Headers", strings.Join(m.config.ExposedHeaders, ", "))
	}
}

func (m *Middleware) isOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if m.allowedOrigins["*"] {
		return true
	}
	return m.allowedOrigins[strings.ToLower(origin)]
}

func (m *Middleware) isMethodAllowed(method string) bool {
	for _, allowed := range m.config.AllowedMethods {
		if strings.EqualFold(allowed, method) {
			return true
		}
	}
	return false
}

func (m *Middleware) areHeadersAllowed(headers string) bool {
	if m.allowedHeaders["*"] {
		return true
	}
	for _, h := range strings.Split(headers, ",") {
		if !m.allowedHeaders[strings.ToLower(strings.TrimSpace(h))] {
			return false
		}
	}
	return true
}

// Component adapts Middleware to the teacher's pkg/factory.Component
// lifecycle, so the middleware Registry can build it from a named,
// uninitialized slot the way it builds every other component.
type Component struct {
	mw *Middleware
}

// NewComponent creates an uninitialized CORS component; its instance name
// and settings are supplied to Init from the bound Middleware Definition.
func NewComponent() factory.Component {
	return &Component{}
}

func (c *Component) Name() string { return ComponentName }

func (c *Component) Init(parser factory.ConfigParser) error {
	var def struct {
		Name     string
		Settings map[string]string
	}
	if err := parser(&def); err != nil {
		return fmt.Errorf("parse cors config: %w", err)
	}
	c.mw = New(def.Name, ParseConfig(def.Settings))
	return nil
}

func (c *Component) Validate() error {
	if c.mw == nil {
		return fmt.Errorf("cors: not initialized")
	}
	return nil
}

// Middleware returns the built core.Middleware; callers must call it only
// after Init has succeeded.
func (c *Component) Middleware() core.Middleware { return c.mw }

var _ factory.Component = (*Component)(nil)
