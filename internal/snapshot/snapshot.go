// Package snapshot defines the immutable routing snapshot and the entities
// it is built from: Backend, Service, Router, and Middleware Definition.
package snapshot

import (
	"fmt"
	"regexp"
	"sort"
)

// HealthStatus is a backend's current position in the quarantine state
// machine owned by the health controller.
type HealthStatus int

const (
	HealthUnknown HealthStatus = iota
	HealthHealthy
	HealthQuarantined
)

func (s HealthStatus) String() string {
	switch s {
	case HealthHealthy:
		return "healthy"
	case HealthQuarantined:
		return "quarantined"
	default:
		return "unknown"
	}
}

// ProbeSpec is a backend's health-check declaration. A Backend with a nil
// Probe is permanently Healthy (spec.md §4.7).
type ProbeSpec struct {
	Type            string // "http" | "tcp"
	Path            string
	Host            string
	ExpectedStatus  int
	IntervalSeconds int
	TimeoutSeconds  int
	MaxFailures     int
}

// Backend is a single reachable upstream: one container-port pair.
type Backend struct {
	ID      string // backend-id: container-id[:12] + ":" + port, stable for the container's lifetime
	Address string // host:port
	Weight  int    // positive, default 1

	// CreatedAt orders backends within a Service for deterministic snapshots
	// (sorted by container creation time, then by ID).
	CreatedAt int64

	Probe *ProbeSpec

	Health           HealthStatus
	ConsecutiveFails int
}

// Policy is the load-balancing algorithm bound to a Service.
type Policy int

const (
	PolicyRoundRobin Policy = iota
	PolicyWeighted
)

func (p Policy) String() string {
	if p == PolicyWeighted {
		return "weighted"
	}
	return "round_robin"
}

// Service is a named group of Backends sharing a load-balancing Policy.
type Service struct {
	Name     string
	Policy   Policy
	Backends []Backend
}

// HealthyCount reports how many of the Service's backends are currently
// eligible for selection (Healthy or Unknown, i.e. never health-checked).
func (s Service) HealthyCount() int {
	n := 0
	for _, b := range s.Backends {
		if b.Health != HealthQuarantined {
			n++
		}
	}
	return n
}

// PathKind distinguishes the three path predicate variants a Router rule
// may combine with a host predicate.
type PathKind int

const (
	PathExact PathKind = iota
	PathPrefix
	PathRegex
)

// PathPredicate matches a request path.
type PathPredicate struct {
	Kind    PathKind
	Pattern string
	Regex   *regexp.Regexp // compiled, only set when Kind == PathRegex
}

// Matches reports whether path satisfies the predicate. Prefix matching is
// trailing-slash insensitive: Prefix("/api") matches "/api", "/api/", and
// "/api/x" but not "/apix".
func (p PathPredicate) Matches(path string) bool {
	switch p.Kind {
	case PathExact:
		return path == p.Pattern
	case PathPrefix:
		if path == p.Pattern {
			return true
		}
		prefix := p.Pattern
		if prefix == "" || prefix == "/" {
			return true
		}
		return len(path) > len(prefix) && path[:len(prefix)] == prefix &&
			(path[len(prefix)] == '/')
	case PathRegex:
		return p.Regex != nil && p.Regex.MatchString(path)
	default:
		return false
	}
}

// priority returns the predicate's rank for router ordering: Exact > Regex > Prefix.
func (p PathPredicate) priority() int {
	switch p.Kind {
	case PathExact:
		return 2
	case PathRegex:
		return 1
	default:
		return 0
	}
}

// HostPredicate matches a request's (port-stripped, lowercased) Host header.
type HostPredicate struct {
	Any  bool
	Host string // lowercase, only meaningful when Any == false
}

func (h HostPredicate) Matches(host string) bool {
	if h.Any {
		return true
	}
	return h.Host == host
}

// Router binds a (host, path) rule to a Service and an ordered middleware chain.
type Router struct {
	Name        string
	Host        HostPredicate
	Path        PathPredicate
	ServiceName string
	Middlewares []string // declared order; tie-breaker for Middleware.Order
	// InsertionIndex breaks ties among same-kind Regex predicates: earlier wins.
	InsertionIndex int
}

// Priority returns the router's rank for match ranking (higher wins).
// Longer Prefix patterns outrank shorter ones within the Prefix tier.
func (r Router) Priority() int {
	base := r.Path.priority() * 1_000_000
	if r.Path.Kind == PathPrefix {
		base += len(r.Path.Pattern)
	}
	return base
}

// MiddlewareDef configures one instance of a middleware type bound into a
// snapshot's middleware table, referenced by name from Router.Middlewares.
type MiddlewareDef struct {
	Name     string
	Type     string // cors | basic-auth | ratelimit | custom
	Enabled  bool
	Order    int // lower runs first; tie-breaker within a router's declared list
	Settings map[string]string
}

// Snapshot is the immutable, versioned view the Config Aggregator publishes.
// It is read-only from the moment it is built; the Aggregator never mutates
// a Snapshot once handed to a Proxy Engine or Health Controller.
type Snapshot struct {
	Version     uint64
	Routers     []Router
	Services    map[string]Service
	Middlewares map[string]MiddlewareDef
}

// SortRouters orders routers by priority (descending), breaking ties by
// InsertionIndex (for equal-tier Regex predicates) and finally by name, per
// the deterministic-construction requirement.
func SortRouters(routers []Router) {
	sort.SliceStable(routers, func(i, j int) bool {
		pi, pj := routers[i].Priority(), routers[j].Priority()
		if pi != pj {
			return pi > pj
		}
		if routers[i].Path.Kind == PathRegex && routers[j].Path.Kind == PathRegex &&
			routers[i].InsertionIndex != routers[j].InsertionIndex {
			return routers[i].InsertionIndex < routers[j].InsertionIndex
		}
		return routers[i].Name < routers[j].Name
	})
}

// SortBackends orders a Service's backends deterministically: by creation
// time, then by backend-id, so identical inputs yield identical snapshots.
func SortBackends(backends []Backend) {
	sort.SliceStable(backends, func(i, j int) bool {
		if backends[i].CreatedAt != backends[j].CreatedAt {
			return backends[i].CreatedAt < backends[j].CreatedAt
		}
		return backends[i].ID < backends[j].ID
	})
}

// BackendID builds the stable identifier for a container's published port.
func BackendID(containerID string, port int) string {
	if len(containerID) > 12 {
		containerID = containerID[:12]
	}
	return fmt.Sprintf("%s:%d", containerID, port)
}
