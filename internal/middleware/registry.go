package middleware

import (
	"fmt"
	"log/slog"

	"gateway/internal/core"
	"gateway/internal/middleware/basicauth"
	"gateway/internal/middleware/cors"
	"gateway/internal/middleware/jwt"
	"gateway/internal/middleware/ratelimit"
	"gateway/internal/snapshot"
	"gateway/internal/storage"
	"gateway/pkg/factory"
)

// Registry manages built-in middleware component registration and builds
// core.Middleware instances from a snapshot's Middleware Definitions.
//
// Unlike the teacher's Registry (one Component instance per registered
// type, built once from static config), a Middleware Definition is named
// per-router-binding and a snapshot may carry many instances of the same
// Type with different Settings - so Build passes the instance's Name and
// Settings through the factory.ConfigParser rather than baking a name into
// the registered Creator.
type Registry struct {
	registry *factory.Registry
	logger   *slog.Logger
}

// NewRegistry creates a new middleware registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		registry: factory.NewRegistry(),
		logger:   logger,
	}
}

// RegisterAll registers all built-in middleware component types. store
// backs the Rate-Limit middleware's distributed bucket option; it may be
// nil to fall back to the in-memory backend.
func (r *Registry) RegisterAll(store storage.LimiterStore) error {
	if err := r.registry.Register(cors.ComponentName, func() factory.Component {
		return cors.NewComponent()
	}); err != nil {
		return fmt.Errorf("register cors: %w", err)
	}

	if err := r.registry.Register(basicauth.ComponentName, func() factory.Component {
		return basicauth.NewComponent()
	}); err != nil {
		return fmt.Errorf("register basic-auth: %w", err)
	}

	if err := r.registry.Register(ratelimit.ComponentName, func() factory.Component {
		return ratelimit.NewComponent(store, r.logger)
	}); err != nil {
		return fmt.Errorf("register ratelimit: %w", err)
	}

	if err := r.registry.Register(jwt.ComponentName, func() factory.Component {
		return jwt.NewComponent()
	}); err != nil {
		return fmt.Errorf("register jwt: %w", err)
	}

	r.logger.Info("registered built-in middleware components", "components", r.registry.List())
	return nil
}

// middlewareComponent is implemented by every built-in middleware's
// Component, exposing the core.Middleware it built.
type middlewareComponent interface {
	factory.Component
	Middleware() core.Middleware
}

// typeToComponentName maps a Middleware Definition's Type to the registered
// component name. "custom" is the spec's name for the JWT middleware slot.
func typeToComponentName(defType string) string {
	if defType == "custom" {
		return jwt.ComponentName
	}
	return defType
}

// Build constructs the core.Middleware for one Middleware Definition.
func (r *Registry) Build(def snapshot.MiddlewareDef) (core.Middleware, error) {
	componentName := typeToComponentName(def.Type)

	component, err := r.registry.Create(componentName, def)
	if err != nil {
		return nil, fmt.Errorf("build middleware %q (type %q): %w", def.Name, def.Type, err)
	}

	mc, ok := component.(middlewareComponent)
	if !ok {
		return nil, fmt.Errorf("middleware component %q does not expose a core.Middleware", componentName)
	}
	return mc.Middleware(), nil
}

// List returns all registered middleware type names.
func (r *Registry) List() []string {
	return r.registry.List()
}
