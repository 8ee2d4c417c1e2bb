package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadDefault(t *testing.T) {
	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("HTTP.Port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.Labels.Prefix != "reverse-proxy." {
		t.Errorf("Labels.Prefix = %q, want %q", cfg.Labels.Prefix, "reverse-proxy.")
	}
	if cfg.JSONConfig.Priority != "json" {
		t.Errorf("JSONConfig.Priority = %q, want json", cfg.JSONConfig.Priority)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.IntervalSeconds != 1 {
		t.Errorf("Retry = %+v, want {3 1}", cfg.Retry)
	}
	if !cfg.Watch.Enabled || cfg.Watch.TimeoutMS != 300 || cfg.Watch.IntervalMS != 200 {
		t.Errorf("Watch = %+v, want enabled with 300/200ms", cfg.Watch)
	}
}

func TestLoaderLoadOverlaysFileOnDefaults(t *testing.T) {
	path := writeConfigFile(t, `
http:
  port: 9090
https:
  enabled: true
  port: 8443
tls:
  certPath: /certs/tls.crt
  keyPath: /certs/tls.key
`)

	cfg, err := NewLoader(path).WithEnvVars(false).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
	// Fields the file didn't set keep their default value.
	if cfg.Labels.Prefix != "reverse-proxy." {
		t.Errorf("Labels.Prefix = %q, want default to survive overlay", cfg.Labels.Prefix)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want default 3 to survive overlay", cfg.Retry.MaxAttempts)
	}
}

func TestLoaderRejectsHTTPSWithoutTLSMaterial(t *testing.T) {
	path := writeConfigFile(t, `
https:
  enabled: true
  port: 8443
`)
	if _, err := NewLoader(path).WithEnvVars(false).Load(); err == nil {
		t.Error("expected validation error for https.enabled without tls paths")
	}
}

func TestLoaderRejectsInvalidJSONConfigPriority(t *testing.T) {
	path := writeConfigFile(t, `
jsonConfig:
  priority: bogus
`)
	if _, err := NewLoader(path).WithEnvVars(false).Load(); err == nil {
		t.Error("expected validation error for invalid jsonConfig.priority")
	}
}

func TestLoaderRejectsMissingFile(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}
