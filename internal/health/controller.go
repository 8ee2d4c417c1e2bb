// Package health implements the Health Controller: it owns Health Records
// keyed by backend-id, runs HTTP/TCP probes on the declared interval, and
// drives the quarantine state machine described in spec.md §4.7. Grounded on
// the teacher's internal/health/backend_monitor.go (InstanceHealth,
// consecutive-failure counter, HTTPHealthChecker/TCPHealthChecker); the
// teacher's gRPC checker is dropped since this spec has no gRPC upstreams.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"gateway/internal/snapshot"
)

// record is one backend's Health Record. Status is read via an atomic-style
// mutex-guarded accessor rather than sync/atomic directly, since it is
// small and always read together with ConsecutiveFails.
type record struct {
	mu               sync.RWMutex
	status           snapshot.HealthStatus
	consecutiveFails int
	lastProbe        time.Time
}

func (r *record) snapshot() (snapshot.HealthStatus, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status, r.consecutiveFails
}

// Controller owns every backend's Health Record and the goroutines probing
// them. Each backend's record is updated only by its own probing task;
// other goroutines only read it, through Annotate.
type Controller struct {
	logger *slog.Logger

	mu      sync.Mutex
	records map[string]*record // backend-id -> record
	cancel  map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewController returns an empty Controller; call Reconcile whenever a new
// snapshot is published to start/stop probing tasks for backends that
// appeared or disappeared.
func NewController(logger *slog.Logger) *Controller {
	return &Controller{
		logger:  logger.With("component", "health-controller"),
		records: make(map[string]*record),
		cancel:  make(map[string]context.CancelFunc),
	}
}

// Reconcile starts a probing task for every backend in snap that declares a
// ProbeSpec and doesn't already have one, and stops tasks for backends no
// longer present in snap. Per the Health Record lifecycle, a record is only
// destroyed when its container disappears AND no snapshot references it;
// Reconcile is the only place that enforces that.
func (c *Controller) Reconcile(ctx context.Context, snap *snapshot.Snapshot) {
	live := make(map[string]bool)
	for _, svc := range snap.Services {
		for _, b := range svc.Backends {
			live[b.ID] = true
			if b.Probe == nil {
				continue
			}
			c.mu.Lock()
			_, running := c.cancel[b.ID]
			if !running {
				probeCtx, cancel := context.WithCancel(ctx)
				c.cancel[b.ID] = cancel
				if _, ok := c.records[b.ID]; !ok {
					c.records[b.ID] = &record{status: snapshot.HealthUnknown}
				}
				c.wg.Add(1)
				go c.run(probeCtx, b.ID, b.Address, *b.Probe)
			}
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	for id, cancel := range c.cancel {
		if !live[id] {
			cancel()
			delete(c.cancel, id)
			delete(c.records, id)
		}
	}
	c.mu.Unlock()
}

// Stop cancels every running probe task and waits for them to exit.
func (c *Controller) Stop() {
	c.mu.Lock()
	for _, cancel := range c.cancel {
		cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Annotate returns a copy of svc.Backends with Health/ConsecutiveFails
// overlaid from the current Health Records, leaving backends with no
// record (no probe declared) untouched at their permanently-Healthy zero
// value. The Load Balancer and Matcher consume this overlay, never the raw
// snapshot fields, so probing never needs to mutate the published snapshot.
func (c *Controller) Annotate(svc snapshot.Service) snapshot.Service {
	out := svc
	out.Backends = make([]snapshot.Backend, len(svc.Backends))
	for i, b := range svc.Backends {
		if b.Probe == nil {
			b.Health = snapshot.HealthHealthy
			out.Backends[i] = b
			continue
		}
		c.mu.Lock()
		rec := c.records[b.ID]
		c.mu.Unlock()
		if rec == nil {
			out.Backends[i] = b
			continue
		}
		status, fails := rec.snapshot()
		b.Health = status
		b.ConsecutiveFails = fails
		out.Backends[i] = b
	}
	return out
}

func (c *Controller) run(ctx context.Context, backendID, address string, probe snapshot.ProbeSpec) {
	defer c.wg.Done()

	interval := time.Duration(probe.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := time.Duration(probe.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxFailures := probe.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 3
	}

	c.probeOnce(ctx, backendID, address, probe, timeout, maxFailures)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.probeOnce(ctx, backendID, address, probe, timeout, maxFailures)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) probeOnce(ctx context.Context, backendID, address string, probe snapshot.ProbeSpec, timeout time.Duration, maxFailures int) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	switch probe.Type {
	case "tcp":
		err = tcpProbe(probeCtx, address)
	default:
		err = httpProbe(probeCtx, address, probe)
	}

	c.mu.Lock()
	rec := c.records[backendID]
	c.mu.Unlock()
	if rec == nil {
		return
	}

	rec.mu.Lock()
	rec.lastProbe = time.Now()
	prevStatus := rec.status
	if err != nil {
		rec.consecutiveFails++
		if rec.consecutiveFails >= maxFailures {
			rec.status = snapshot.HealthQuarantined
		} else if rec.status == snapshot.HealthUnknown {
			rec.status = snapshot.HealthHealthy
		}
	} else {
		rec.consecutiveFails = 0
		rec.status = snapshot.HealthHealthy
	}
	newStatus := rec.status
	rec.mu.Unlock()

	if newStatus != prevStatus {
		c.logger.Info("backend health transition", "backend", backendID, "from", prevStatus, "to", newStatus, "error", err)
	}
}

func httpProbe(ctx context.Context, address string, probe snapshot.ProbeSpec) error {
	path := probe.Path
	if path == "" {
		path = "/"
	}
	url := fmt.Sprintf("http://%s%s", address, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if probe.Host != "" {
		req.Host = probe.Host
	}

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http probe: %w", err)
	}
	defer resp.Body.Close()

	expected := probe.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	if resp.StatusCode != expected {
		return fmt.Errorf("http probe: got status %d, want %d", resp.StatusCode, expected)
	}
	return nil
}

func tcpProbe(ctx context.Context, address string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("tcp probe: %w", err)
	}
	return conn.Close()
}
