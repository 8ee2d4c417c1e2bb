// Package labels parses container labels into the structured and legacy
// flat grammars described in spec.md §4.1, producing entity fragments the
// aggregator merges into a snapshot. It never builds a Snapshot itself; it
// only groups raw key/value pairs per entity so the aggregator can apply
// precedence and defaults uniformly across the label and JSON sources.
package labels

import (
	"sort"
	"strconv"
	"strings"
)

// RouterFragment is the subset of Router fields one source (labels or JSON)
// contributed for one router name.
type RouterFragment struct {
	Rule        string
	Service     string
	Middlewares []string
}

// ServerFragment is one backend's port/weight contribution for a service.
type ServerFragment struct {
	Port   int
	Weight int
}

// ServiceFragment groups every backend contributed for one service name.
type ServiceFragment struct {
	Servers []ServerFragment
}

// MiddlewareFragment is the subset of Middleware Definition fields one
// source contributed for one middleware name.
type MiddlewareFragment struct {
	Type     string
	Enabled  *bool
	Order    *int
	Settings map[string]string
}

// ProbeFragment is one backend's health-check declaration, keyed under
// "<prefix>health.*" (a backend-level namespace, distinct from the
// entity-scoped routers/services/middlewares grammar since a probe applies
// to the container itself, not to a named router/service/middleware).
type ProbeFragment struct {
	Type            string // "http" | "tcp"
	Path            string
	ExpectedStatus  int
	IntervalSeconds int
	TimeoutSeconds  int
	MaxFailures     int
	Host            string
}

// ContainerLabels is everything one container's labels contributed.
type ContainerLabels struct {
	Routers     map[string]RouterFragment
	Services    map[string]ServiceFragment
	Middlewares map[string]MiddlewareFragment
	Probe       *ProbeFragment
}

// Parse extracts the structured rproxy.http.* grammar and, when present, the
// legacy flat host/port/path form from one container's labels. Per the
// spec's open question, both forms are honored when present on the same
// container: the flat form is translated into a synthesized router+service
// named after the container so it never collides with structured names.
func Parse(prefix string, containerLabels map[string]string, containerName string, port int) ContainerLabels {
	out := ContainerLabels{
		Routers:     make(map[string]RouterFragment),
		Services:    make(map[string]ServiceFragment),
		Middlewares: make(map[string]MiddlewareFragment),
	}

	structuredPrefix := prefix + "http."
	hasStructured := false
	for k := range containerLabels {
		if strings.HasPrefix(k, structuredPrefix) {
			hasStructured = true
			break
		}
	}
	if hasStructured {
		parseStructured(structuredPrefix, containerLabels, &out)
	}

	if host, ok := containerLabels[prefix+"host"]; ok {
		parseLegacyFlat(prefix, containerLabels, containerName, host, port, &out)
	}

	out.Probe = parseProbe(prefix, containerLabels)

	return out
}

func parseProbe(prefix string, raw map[string]string) *ProbeFragment {
	typ, ok := raw[prefix+"health.type"]
	if !ok {
		return nil
	}
	f := &ProbeFragment{
		Type:            typ,
		Path:            raw[prefix+"health.path"],
		Host:            raw[prefix+"health.host"],
		ExpectedStatus:  200,
		IntervalSeconds: 30,
		TimeoutSeconds:  5,
		MaxFailures:     3,
	}
	if v, err := strconv.Atoi(raw[prefix+"health.expectedStatus"]); err == nil && v > 0 {
		f.ExpectedStatus = v
	}
	if v, err := strconv.Atoi(raw[prefix+"health.interval"]); err == nil && v > 0 {
		f.IntervalSeconds = v
	}
	if v, err := strconv.Atoi(raw[prefix+"health.timeout"]); err == nil && v > 0 {
		f.TimeoutSeconds = v
	}
	if v, err := strconv.Atoi(raw[prefix+"health.maxFailures"]); err == nil && v > 0 {
		f.MaxFailures = v
	}
	return f
}

func parseStructured(structuredPrefix string, raw map[string]string, out *ContainerLabels) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !strings.HasPrefix(k, structuredPrefix) {
			continue
		}
		rest := k[len(structuredPrefix):]
		v := raw[k]

		switch {
		case strings.HasPrefix(rest, "routers."):
			applyRouterKey(rest[len("routers."):], v, out)
		case strings.HasPrefix(rest, "services."):
			applyServiceKey(rest[len("services."):], v, out)
		case strings.HasPrefix(rest, "middlewares."):
			applyMiddlewareKey(rest[len("middlewares."):], v, out)
		}
	}
}

func applyRouterKey(rest, value string, out *ContainerLabels) {
	name, field, ok := splitOnce(rest)
	if !ok {
		return
	}
	f := out.Routers[name]
	switch field {
	case "rule":
		f.Rule = value
	case "service":
		f.Service = value
	case "middlewares":
		f.Middlewares = splitComma(value)
	}
	out.Routers[name] = f
}

func applyServiceKey(rest, value string, out *ContainerLabels) {
	// http.services.<name>.loadbalancer.server.port / .weight
	const wantPrefix = ".loadbalancer.server."
	idx := strings.Index(rest, wantPrefix)
	if idx < 0 {
		return
	}
	name := rest[:idx]
	field := rest[idx+len(wantPrefix):]

	f := out.Services[name]
	if len(f.Servers) == 0 {
		f.Servers = append(f.Servers, ServerFragment{Weight: 1})
	}
	server := &f.Servers[0]
	switch field {
	case "port":
		if p, err := strconv.Atoi(value); err == nil {
			server.Port = p
		}
	case "weight":
		if w, err := strconv.Atoi(value); err == nil && w > 0 {
			server.Weight = w
		}
	}
	out.Services[name] = f
}

func applyMiddlewareKey(rest, value string, out *ContainerLabels) {
	name, field, ok := splitFirst(rest)
	if !ok {
		return
	}
	f := out.Middlewares[name]
	if f.Settings == nil {
		f.Settings = make(map[string]string)
	}
	switch field {
	case "type":
		f.Type = value
	case "enabled":
		b := value == "true"
		f.Enabled = &b
	case "order":
		if o, err := strconv.Atoi(value); err == nil {
			f.Order = &o
		}
	default:
		f.Settings[field] = value
	}
	out.Middlewares[name] = f
}

// parseLegacyFlat translates <prefix>host / <prefix>port / <prefix>path into
// a single synthesized router+service, scoped to containerName so it cannot
// collide with structured entity names.
func parseLegacyFlat(prefix string, raw map[string]string, containerName, host string, port int, out *ContainerLabels) {
	name := "legacy-" + containerName
	path := raw[prefix+"path"]
	if path == "" {
		path = "/"
	}
	if p, ok := raw[prefix+"port"]; ok {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	rule := "Host(`" + host + "`) && PathPrefix(`" + path + "`)"
	out.Routers[name] = RouterFragment{Rule: rule, Service: name}
	out.Services[name] = ServiceFragment{Servers: []ServerFragment{{Port: port, Weight: 1}}}
}

func splitOnce(s string) (name, field string, ok bool) {
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// splitFirst splits on the first dot, leaving any remaining dots in field -
// used where field itself is a dotted setting key (e.g. "cors.allowOrigins").
func splitFirst(s string) (name, field string, ok bool) {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
