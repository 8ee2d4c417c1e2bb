// Package ratelimit implements the Rate-Limit built-in middleware (spec.md
// §4.6): a per-key token bucket rejecting requests over `average`/`burst`
// with a 429 and Retry-After. Grounded on the teacher's
// internal/middleware/ratelimit package (per-key bucket map, KeyFunc,
// cleanup-on-inactivity), rebuilt on golang.org/x/time/rate.Limiter per key
// in place of the teacher's hand-rolled millisecond-math bucket. The
// teacher's Redis-backed storage.LimiterStore (internal/storage/redis) is
// kept as an optional distributed backend selected by Config.Store.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gateway/internal/core"
	"gateway/internal/storage"
	"gateway/pkg/errors"
	"gateway/pkg/factory"
)

// ComponentName is the name used to register this component.
const ComponentName = "ratelimit"

// KeyFunc extracts the rate-limit key from a request.
type KeyFunc func(*core.Request) string

// ByIP rate limits by remote address.
func ByIP(req *core.Request) string { return req.RemoteAddr }

// ByPath rate limits by request path.
func ByPath(req *core.Request) string { return req.Path }

// ByIPAndPath rate limits by the IP and path combined.
func ByIPAndPath(req *core.Request) string { return fmt.Sprintf("%s:%s", req.RemoteAddr, req.Path) }

// Config configures one Rate-Limit middleware instance.
type Config struct {
	Average float64 // requests per second
	Burst   int
	KeyFunc KeyFunc

	// Store, when set, backs the limiter with a distributed store
	// (e.g. Redis) instead of the in-memory per-key rate.Limiter map.
	Store storage.LimiterStore

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Average <= 0 {
		c.Average = 10
	}
	if c.Burst <= 0 {
		c.Burst = int(c.Average)
		if c.Burst <= 0 {
			c.Burst = 1
		}
	}
	if c.KeyFunc == nil {
		c.KeyFunc = ByIP
	}
}

// Middleware is the Rate-Limit core.Middleware.
type Middleware struct {
	name   string
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastUsed map[string]time.Time

	done chan struct{}
}

// New builds a Rate-Limit middleware instance named name and starts its
// bucket-GC goroutine; callers must call Stop when the middleware is no
// longer referenced by any router.
func New(name string, cfg Config, logger *slog.Logger) *Middleware {
	cfg.setDefaults()
	m := &Middleware{
		name:     name,
		cfg:      cfg,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
		lastUsed: make(map[string]time.Time),
		done:     make(chan struct{}),
	}
	if cfg.Store == nil {
		go m.gcLoop()
	}
	return m
}

func (m *Middleware) Name() string { return m.name }

// Stop halts the bucket-GC goroutine.
func (m *Middleware) Stop() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *Middleware) Before(ctx context.Context, req *core.Request) (*core.Request, *core.Response, error) {
	key := m.cfg.KeyFunc(req)

	allowed, retryAfter, err := m.allow(ctx, key)
	if err != nil {
		return req, nil, errors.NewError(errors.ErrorTypeInternal, "rate limiter unavailable").WithCause(err)
	}
	if !allowed {
		if m.logger != nil {
			m.logger.Warn("rate limit exceeded", "key", key, "path", req.Path)
		}
		resp := core.NewResponse(http.StatusTooManyRequests, []byte("rate limit exceeded"))
		resp.Header.Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+0.999)))
		m.setLimitHeaders(resp)
		return req, resp, nil
	}
	return req, nil, nil
}

func (m *Middleware) After(ctx context.Context, resp *core.Response) (*core.Response, error) {
	m.setLimitHeaders(resp)
	return resp, nil
}

func (m *Middleware) setLimitHeaders(resp *core.Response) {
	resp.Header.Set("X-RateLimit-Limit", strconv.FormatFloat(m.cfg.Average, 'f', -1, 64))
	resp.Header.Set("X-RateLimit-Burst", strconv.Itoa(m.cfg.Burst))
}

func (m *Middleware) allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if m.cfg.Store != nil {
		allowed, _, resetAt, err := m.cfg.Store.Allow(ctx, key, int(m.cfg.Average), m.cfg.Burst, time.Second)
		if err != nil {
			return false, 0, err
		}
		return allowed, time.Until(resetAt), nil
	}

	m.mu.Lock()
	lim, ok := m.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(m.cfg.Average), m.cfg.Burst)
		m.limiters[key] = lim
	}
	m.lastUsed[key] = time.Now()
	m.mu.Unlock()

	r := lim.Reserve()
	if !r.OK() {
		return false, time.Second, nil
	}
	delay := r.Delay()
	if delay > 0 {
		r.Cancel()
		return false, delay, nil
	}
	return true, 0, nil
}

// gcLoop periodically evicts buckets idle for more than ten refill periods,
// per the Rate-Limit middleware's bucket-lifetime rule.
func (m *Middleware) gcLoop() {
	interval := time.Duration(float64(time.Second) * 10 / maxFloat(m.cfg.Average, 1))
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.evictIdle(interval)
		case <-m.done:
			return
		}
	}
}

func (m *Middleware) evictIdle(idleFor time.Duration) {
	cutoff := time.Now().Add(-idleFor)
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, t := range m.lastUsed {
		if t.Before(cutoff) {
			delete(m.limiters, key)
			delete(m.lastUsed, key)
		}
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// KeyFuncByName resolves a Middleware Definition's "keyBy" setting to a
// KeyFunc, defaulting to ByIP.
func KeyFuncByName(name string) KeyFunc {
	switch strings.ToLower(name) {
	case "path":
		return ByPath
	case "ip+path", "ipandpath":
		return ByIPAndPath
	default:
		return ByIP
	}
}

// ParseConfig builds a Config from a Middleware Definition's Settings map.
func ParseConfig(settings map[string]string) Config {
	var cfg Config
	if v, ok := settings["average"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Average = f
		}
	}
	if v, ok := settings["burst"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Burst = n
		}
	}
	if v, ok := settings["keyBy"]; ok {
		cfg.KeyFunc = KeyFuncByName(v)
	}
	cfg.setDefaults()
	return cfg
}

// Component adapts Middleware to the teacher's pkg/factory.Component
// lifecycle for the middleware Registry.
type Component struct {
	store  storage.LimiterStore
	logger *slog.Logger
	mw     *Middleware
}

// NewComponent creates an uninitialized Rate-Limit component. store may be
// nil, in which case the component falls back to the in-memory backend.
func NewComponent(store storage.LimiterStore, logger *slog.Logger) factory.Component {
	return &Component{store: store, logger: logger}
}

func (c *Component) Name() string { return ComponentName }

func (c *Component) Init(parser factory.ConfigParser) error {
	var def struct {
		Name     string
		Settings map[string]string
	}
	if err := parser(&def); err != nil {
		return fmt.Errorf("parse ratelimit config: %w", err)
	}
	cfg := ParseConfig(def.Settings)
	cfg.Store = c.store
	c.mw = New(def.Name, cfg, c.logger)
	return nil
}

func (c *Component) Validate() error {
	if c.mw == nil {
		return fmt.Errorf("ratelimit: not initialized")
	}
	return nil
}

func (c *Component) Middleware() core.Middleware { return c.mw }

var _ factory.Component = (*Component)(nil)
