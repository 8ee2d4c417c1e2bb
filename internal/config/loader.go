package config

import (
	"fmt"
	"os"

	"gateway/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Loader loads configuration from file
type Loader struct {
	path       string
	envEnabled bool
}

// NewLoader creates a config loader
func NewLoader(path string) *Loader {
	return &Loader{
		path:       path,
		envEnabled: true, // Enable env vars by default
	}
}

// WithEnvVars enables or disables environment variable loading
func (l *Loader) WithEnvVars(enabled bool) *Loader {
	l.envEnabled = enabled
	return l
}

// Load builds a Config by layering the embedded defaults, an optional YAML
// file at l.path, and (if enabled) environment variable overrides, in that
// order - each layer only overwrites the fields it sets.
func (l *Loader) Load() (*Config, error) {
	cfg, err := LoadDefault()
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to load default configuration").WithCause(err)
	}

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to read config file").WithCause(err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to parse config").WithCause(err)
		}
	}

	if l.envEnabled {
		if err := LoadEnv(cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to load env vars").WithCause(err)
		}
	}

	if err := l.validate(cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "invalid configuration").WithCause(err)
	}

	return cfg, nil
}

// validate validates the configuration
func (l *Loader) validate(cfg *Config) error {
	if cfg.HTTP.Port <= 0 {
		return fmt.Errorf("http.port is required")
	}
	if cfg.HTTPS.Enabled {
		if cfg.HTTPS.Port <= 0 {
			return fmt.Errorf("https.port is required when https.enabled is true")
		}
		if cfg.TLS.CertPath == "" || cfg.TLS.KeyPath == "" {
			return fmt.Errorf("tls.certPath and tls.keyPath are required when https.enabled is true")
		}
	}
	if cfg.Labels.Prefix == "" {
		return fmt.Errorf("labels.prefix is required")
	}

	switch cfg.JSONConfig.Priority {
	case "json", "label":
	default:
		return fmt.Errorf("jsonConfig.priority must be \"json\" or \"label\", got %q", cfg.JSONConfig.Priority)
	}

	if cfg.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.maxAttempts must be positive")
	}
	if cfg.Retry.IntervalSeconds < 0 {
		return fmt.Errorf("retry.intervalSeconds must not be negative")
	}

	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", cfg.Log.Format)
	}

	return nil
}
