// Package aggregator implements the Config Aggregator: merging live
// container labels, the JSON configuration document, and startup defaults
// into one immutable Routing Snapshot, per spec.md §4.1.
package aggregator

import (
	"fmt"
	"sort"
	"strconv"

	"gateway/internal/jsonconfig"
	"gateway/internal/labels"
	"gateway/internal/rule"
	"gateway/internal/snapshot"
)

// Precedence selects which source wins when both label and JSON
// configuration define the same named entity.
type Precedence int

const (
	PrecedenceJSONWins Precedence = iota
	PrecedenceLabelWins
)

// ContainerInput is one live container's identity, network address, and
// labels, as handed over by the Container Event Listener.
type ContainerInput struct {
	ID        string
	Name      string
	CreatedAt int64 // unix seconds; used for deterministic backend ordering
	Address   string
	Labels    map[string]string
}

// Input bundles everything one aggregation pass needs.
type Input struct {
	Containers  []ContainerInput
	JSON        *jsonconfig.Document // nil if no JSON configuration is present
	Precedence  Precedence
	LabelPrefix string
}

// Warning describes one entity dropped from the snapshot because it failed
// to parse or resolve; the previous snapshot is never affected by it.
type Warning struct {
	Entity string
	Reason string
}

// Build merges Input into a new Snapshot. It never returns an error: a
// malformed fragment only drops the entity it belongs to, surfaced as a
// Warning, per the Config Aggregator's partial-failure policy.
func Build(in Input, version uint64) (*snapshot.Snapshot, []Warning) {
	var warnings []Warning

	sortedContainers := make([]ContainerInput, len(in.Containers))
	copy(sortedContainers, in.Containers)
	sort.SliceStable(sortedContainers, func(i, j int) bool { return sortedContainers[i].ID < sortedContainers[j].ID })

	routerLabel := make(map[string]labels.RouterFragment)
	serviceLabel := make(map[string]map[string]containerServer) // service -> container id -> server
	middlewareLabel := make(map[string]labels.MiddlewareFragment)
	probesByContainer := make(map[string]*labels.ProbeFragment)

	for _, c := range sortedContainers {
		parsed := labels.Parse(in.LabelPrefix, c.Labels, c.Name, 0)
		for name, f := range parsed.Routers {
			routerLabel[name] = f
		}
		for name, f := range parsed.Services {
			if len(f.Servers) == 0 {
				continue
			}
			m := serviceLabel[name]
			if m == nil {
				m = make(map[string]containerServer)
				serviceLabel[name] = m
			}
			m[c.ID] = containerServer{container: c, port: f.Servers[0].Port, weight: f.Servers[0].Weight}
		}
		for name, f := range parsed.Middlewares {
			middlewareLabel[name] = mergeMiddlewareFragment(middlewareLabel[name], f)
		}
		if parsed.Probe != nil {
			probesByContainer[c.ID] = parsed.Probe
		}
	}

	routerJSON := make(map[string]labels.RouterFragment)
	serviceJSON := make(map[string]jsonconfig.ServerConfig)
	middlewareJSON := make(map[string]labels.MiddlewareFragment)
	if in.JSON != nil {
		for name, r := range in.JSON.Routers {
			mw := r.Middlewares
			if extra, ok := in.JSON.RouterMiddlewares[name]; ok {
				mw = append(append([]string{}, mw...), extra...)
			}
			routerJSON[name] = labels.RouterFragment{Rule: r.Rule, Service: r.Service, Middlewares: mw}
		}
		for name, s := range in.JSON.Services {
			if servers := s.LoadBalancer.ServerList(); len(servers) > 0 {
				serviceJSON[name] = servers[0]
			}
		}
		for name, m := range in.JSON.Middlewares {
			enabled := m.Enabled
			order := m.Order
			middlewareJSON[name] = labels.MiddlewareFragment{
				Type: m.Type, Enabled: &enabled, Order: &order, Settings: m.Settings,
			}
		}
	}

	routerNames := unionKeys(routerLabel, routerJSON)
	mergedRouters := make(map[string]labels.RouterFragment, len(routerNames))
	for _, name := range routerNames {
		mergedRouters[name] = mergeRouterFragment(in.Precedence, routerLabel[name], routerJSON[name])
	}

	middlewareNames := unionKeys(middlewareLabel, middlewareJSON)
	middlewareDefs := make(map[string]snapshot.MiddlewareDef, len(middlewareNames))
	for _, name := range middlewareNames {
		f := mergeMiddlewareFragmentPrec(in.Precedence, middlewareLabel[name], middlewareJSON[name])
		if f.Type == "" {
			warnings = append(warnings, Warning{Entity: "middleware:" + name, Reason: "missing type"})
			continue
		}
		enabled := true
		if f.Enabled != nil {
			enabled = *f.Enabled
		}
		order := 0
		if f.Order != nil {
			order = *f.Order
		}
		middlewareDefs[name] = snapshot.MiddlewareDef{
			Name: name, Type: f.Type, Enabled: enabled, Order: order, Settings: f.Settings,
		}
	}

	serviceNames := map[string]bool{}
	for name, f := range mergedRouters {
		svc := f.Service
		if svc == "" {
			svc = name
		}
		serviceNames[svc] = true
	}

	services := make(map[string]snapshot.Service, len(serviceNames))
	for svcName := range serviceNames {
		backends := buildBackends(svcName, serviceLabel[svcName], serviceJSON[svcName], probesByContainer)
		if len(backends) == 0 {
			warnings = append(warnings, Warning{Entity: "service:" + svcName, Reason: "no backends"})
			continue
		}
		snapshot.SortBackends(backends)
		services[svcName] = snapshot.Service{
			Name:     svcName,
			Policy:   policyFor(backends),
			Backends: backends,
		}
	}

	var routers []snapshot.Router
	regexInsertion := 0
	names := make([]string, 0, len(mergedRouters))
	for name := range mergedRouters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := mergedRouters[name]
		if f.Rule == "" {
			warnings = append(warnings, Warning{Entity: "router:" + name, Reason: "missing rule"})
			continue
		}
		parsed, err := rule.Parse(f.Rule)
		if err != nil {
			warnings = append(warnings, Warning{Entity: "router:" + name, Reason: err.Error()})
			continue
		}
		svcName := f.Service
		if svcName == "" {
			svcName = name
		}
		if _, ok := services[svcName]; !ok {
			warnings = append(warnings, Warning{Entity: "router:" + name, Reason: fmt.Sprintf("unresolved service %q", svcName)})
			continue
		}

		mw := make([]string, 0, len(f.Middlewares))
		for _, m := range f.Middlewares {
			if _, ok := middlewareDefs[m]; !ok {
				warnings = append(warnings, Warning{Entity: "router:" + name, Reason: fmt.Sprintf("unresolved middleware %q", m)})
				continue
			}
			mw = append(mw, m)
		}

		idx := 0
		if parsed.Path.Kind == snapshot.PathRegex {
			idx = regexInsertion
			regexInsertion++
		}

		routers = append(routers, snapshot.Router{
			Name: name, Host: parsed.Host, Path: parsed.Path,
			ServiceName: svcName, Middlewares: mw, InsertionIndex: idx,
		})
	}
	snapshot.SortRouters(routers)

	return &snapshot.Snapshot{
		Version:     version,
		Routers:     routers,
		Services:    services,
		Middlewares: middlewareDefs,
	}, warnings
}

type containerServer struct {
	container ContainerInput
	port      int
	weight    int
}

// buildBackends turns one service's per-container label servers (plus an
// optional JSON-level port/weight fallback) into sorted Backend entries.
// Only containers that explicitly declared themselves a member of this
// service (via the structured label) ever become a backend; the JSON
// fallback only fills missing port/weight on those, it never adds a
// container to a service on its own.
func buildBackends(svcName string, containers map[string]containerServer, jsonFallback jsonconfig.ServerConfig, probes map[string]*labels.ProbeFragment) []snapshot.Backend {
	var backends []snapshot.Backend
	for _, cs := range containers {
		port := cs.port
		if port <= 0 {
			port = jsonFallback.Port
		}
		if port <= 0 {
			continue
		}
		weight := cs.weight
		if weight <= 0 {
			weight = jsonFallback.Weight
		}
		if weight <= 0 {
			weight = 1
		}
		backends = append(backends, snapshot.Backend{
			ID:        snapshot.BackendID(cs.container.ID, port),
			Address:   cs.container.Address + ":" + strconv.Itoa(port),
			Weight:    weight,
			CreatedAt: cs.container.CreatedAt,
			Probe:     probeSpec(probes[cs.container.ID]),
			Health:    snapshot.HealthUnknown,
		})
	}
	return backends
}

func probeSpec(f *labels.ProbeFragment) *snapshot.ProbeSpec {
	if f == nil {
		return nil
	}
	return &snapshot.ProbeSpec{
		Type: f.Type, Path: f.Path, Host: f.Host,
		ExpectedStatus: f.ExpectedStatus, IntervalSeconds: f.IntervalSeconds,
		TimeoutSeconds: f.TimeoutSeconds, MaxFailures: f.MaxFailures,
	}
}

func policyFor(backends []snapshot.Backend) snapshot.Policy {
	for _, b := range backends {
		if b.Weight != 1 {
			return snapshot.PolicyWeighted
		}
	}
	return snapshot.PolicyRoundRobin
}

// mergeRouterFragment applies the winner field-for-field over the loser, per
// the precedence rule: fields present in the winner are taken verbatim; the
// loser contributes only fields the winner omits.
func mergeRouterFragment(prec Precedence, label, json labels.RouterFragment) labels.RouterFragment {
	winner, loser := json, label
	if prec == PrecedenceLabelWins {
		winner, loser = label, json
	}
	out := winner
	if out.Rule == "" {
		out.Rule = loser.Rule
	}
	if out.Service == "" {
		out.Service = loser.Service
	}
	if len(out.Middlewares) == 0 {
		out.Middlewares = loser.Middlewares
	}
	return out
}

func mergeMiddlewareFragmentPrec(prec Precedence, label, json labels.MiddlewareFragment) labels.MiddlewareFragment {
	winner, loser := json, label
	if prec == PrecedenceLabelWins {
		winner, loser = label, json
	}
	return mergeMiddlewareFragment(loser, winner)
}

// mergeMiddlewareFragment folds b over a (b wins field by field; settings
// merge key-wise with b's keys taking priority).
func mergeMiddlewareFragment(a, b labels.MiddlewareFragment) labels.MiddlewareFragment {
	out := a
	if b.Type != "" {
		out.Type = b.Type
	}
	if b.Enabled != nil {
		out.Enabled = b.Enabled
	}
	if b.Order != nil {
		out.Order = b.Order
	}
	if len(b.Settings) > 0 {
		merged := make(map[string]string, len(out.Settings)+len(b.Settings))
		for k, v := range out.Settings {
			merged[k] = v
		}
		for k, v := range b.Settings {
			merged[k] = v
		}
		out.Settings = merged
	}
	return out
}

func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}
