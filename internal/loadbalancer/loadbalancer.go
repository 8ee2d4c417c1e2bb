// Package loadbalancer selects a Backend for a Service on each dispatch,
// per spec.md §4.5. Per-service state (round-robin cursor, smooth-weighted
// running weights) is held in a Manager and survives snapshot replacement as
// long as the service's backend set is extensionally unchanged.
package loadbalancer

import (
	"sync"

	"gateway/internal/snapshot"
	"gateway/pkg/errors"
)

// ErrNoBackend is returned when every backend in a service is quarantined.
var ErrNoBackend = errors.NewError(errors.ErrorTypeUnavailable, "no healthy backend")

// Manager owns one cursor per service name, protected by its own mutex so
// concurrent requests against different services never contend.
type Manager struct {
	mu      sync.Mutex
	cursors map[string]*cursor
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{cursors: make(map[string]*cursor)}
}

type cursor struct {
	mu sync.Mutex

	// RoundRobin
	index uint64

	// Weighted: monotonic counter reduced modulo the eligible backends'
	// total weight on each call.
	weightedIndex uint64

	// fingerprint of the backend set this cursor was built for; used to
	// decide whether to reset on the next snapshot.
	fingerprint string
}

// Next selects a Backend for svc, applying svc.Policy. It returns
// ErrNoBackend if every backend is Quarantined.
func (m *Manager) Next(svc snapshot.Service) (snapshot.Backend, error) {
	c := m.cursorFor(svc)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch svc.Policy {
	case snapshot.PolicyWeighted:
		return c.nextWeighted(svc)
	default:
		return c.nextRoundRobin(svc)
	}
}

// cursorFor returns the persisted cursor for svc.Name, resetting it if the
// backend set (addresses + weights) has changed since it was last built; a
// health-only change never resets the cursor.
func (m *Manager) cursorFor(svc snapshot.Service) *cursor {
	m.mu.Lock()
	defer m.mu.Unlock()

	fp := fingerprint(svc)
	c, ok := m.cursors[svc.Name]
	if !ok {
		c = &cursor{fingerprint: fp}
		m.cursors[svc.Name] = c
		return c
	}
	if c.fingerprint != fp {
		c.mu.Lock()
		c.index = 0
		c.weightedIndex = 0
		c.fingerprint = fp
		c.mu.Unlock()
	}
	return c
}

// fingerprint summarizes a service's backend identity (address + weight, NOT
// health) so that only a real topology change resets LB cursors.
func fingerprint(svc snapshot.Service) string {
	s := svc.Policy.String()
	for _, b := range svc.Backends {
		s += "|" + b.ID + "=" + b.Address
	}
	return s
}

func (c *cursor) nextRoundRobin(svc snapshot.Service) (snapshot.Backend, error) {
	n := len(svc.Backends)
	if n == 0 {
		return snapshot.Backend{}, ErrNoBackend
	}
	for i := 0; i < n; i++ {
		idx := (c.index + uint64(i)) % uint64(n)
		b := svc.Backends[idx]
		if b.Health != snapshot.HealthQuarantined {
			c.index = idx + 1
			return b, nil
		}
	}
	return snapshot.Backend{}, ErrNoBackend
}

// nextWeighted implements cumulative-weight weighted round-robin: a counter
// advances by one on every call and is reduced modulo the eligible backends'
// total weight, then the backend whose cumulative-weight bucket contains
// that index is picked. Over a window of length Σweight this selects
// backend i exactly weight_i times, in bucket order (e.g. weights 2:1
// selects A, A, B, A, A, B, ...). Grounded on
// original_source/src/routing_v2/backend.rs's LoadBalancerStrategy::Weighted
// (counter.fetch_add(1) % total_weight, scan cumulative buckets) - the spec's
// own worked weighted-LB example (spec.md §8) matches this algorithm's
// selection order, not the smooth-WRR interleaving the teacher's
// internal/router/weighted_balancer.go uses.
func (c *cursor) nextWeighted(svc snapshot.Service) (snapshot.Backend, error) {
	eligible := make([]snapshot.Backend, 0, len(svc.Backends))
	weights := make([]int, 0, len(svc.Backends))
	total := 0
	for _, b := range svc.Backends {
		if b.Health == snapshot.HealthQuarantined {
			continue
		}
		w := b.Weight
		if w <= 0 {
			w = 1
		}
		eligible = append(eligible, b)
		weights = append(weights, w)
		total += w
	}
	if total == 0 {
		return snapshot.Backend{}, ErrNoBackend
	}

	index := int(c.weightedIndex % uint64(total))
	c.weightedIndex++

	cumulative := 0
	for i, b := range eligible {
		cumulative += weights[i]
		if index < cumulative {
			return b, nil
		}
	}
	return eligible[len(eligible)-1], nil
}
