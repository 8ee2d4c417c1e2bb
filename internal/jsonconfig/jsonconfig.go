// Package jsonconfig parses the declarative JSON configuration file format
// described in spec.md §6, grounded on original_source/src/settings/json.rs.
package jsonconfig

import (
	"encoding/json"
	"fmt"
	"io"
)

// SupportedVersion is the only "version" value this gateway accepts.
const SupportedVersion = "1.0"

// Document is the top-level JSON configuration schema, unchanged from
// spec.md §6.
type Document struct {
	Version            string                     `json:"version"`
	ID                 string                      `json:"id"`
	Middlewares        map[string]MiddlewareConfig `json:"middlewares"`
	Routers            map[string]RouterConfig     `json:"routers"`
	Services           map[string]ServiceConfig    `json:"services"`
	RouterMiddlewares  map[string][]string         `json:"router_middlewares"`
}

// MiddlewareConfig mirrors one entry of the "middlewares" map.
type MiddlewareConfig struct {
	Type     string            `json:"type"`
	Enabled  bool              `json:"enabled"`
	Order    int               `json:"order"`
	Settings map[string]string `json:"settings"`
}

// RouterConfig mirrors one entry of the "routers" map.
type RouterConfig struct {
	Rule        string   `json:"rule"`
	Service     string   `json:"service"`
	Middlewares []string `json:"middlewares"`
}

// ServiceConfig mirrors one entry of the "services" map.
type ServiceConfig struct {
	LoadBalancer LoadBalancerConfig `json:"loadbalancer"`
}

// LoadBalancerConfig is ServiceConfig's nested load-balancer settings.
//
// The wire format allows either a single "server" object or, for services
// with more than one backend declared in the JSON file directly (rather
// than discovered from containers), a "servers" array; both are accepted.
type LoadBalancerConfig struct {
	Server  *ServerConfig  `json:"server,omitempty"`
	Servers []ServerConfig `json:"servers,omitempty"`
}

// ServerConfig is one backend's port/weight.
type ServerConfig struct {
	Port   int `json:"port"`
	Weight int `json:"weight"`
}

// Parse decodes r into a Document and validates its version. Callers treat a
// non-nil error as "malformed JSON fragment" per the Config Aggregator's
// partial-failure policy: the previous snapshot is kept and a warning
// surfaced, rather than the process tearing down.
func Parse(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("jsonconfig: decode: %w", err)
	}
	if doc.Version == "" {
		doc.Version = SupportedVersion
	}
	if doc.Version != SupportedVersion {
		return Document{}, fmt.Errorf("jsonconfig: unsupported version %q (want %q)", doc.Version, SupportedVersion)
	}
	return doc, nil
}

// Servers flattens the Server/Servers union into one slice, defaulting
// weight to 1 when omitted or non-positive.
func (c LoadBalancerConfig) ServerList() []ServerConfig {
	var out []ServerConfig
	if c.Server != nil {
		out = append(out, *c.Server)
	}
	out = append(out, c.Servers...)
	for i := range out {
		if out[i].Weight <= 0 {
			out[i].Weight = 1
		}
	}
	return out
}
