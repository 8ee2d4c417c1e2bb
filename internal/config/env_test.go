package config

import (
	"os"
	"strings"
	"testing"
)

func withCleanEnv(t *testing.T) {
	t.Helper()
	original := os.Environ()
	os.Clearenv()
	t.Cleanup(func() {
		os.Clearenv()
		for _, kv := range original {
			if k, v, ok := strings.Cut(kv, "="); ok {
				os.Setenv(k, v)
			}
		}
	})
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	withCleanEnv(t)
	os.Setenv("GATEWAY_HTTP_PORT", "9090")
	os.Setenv("GATEWAY_HTTPS_ENABLED", "true")
	os.Setenv("GATEWAY_LABELS_PREFIX", "rproxy.")
	os.Setenv("GATEWAY_JSONCONFIG_PRIORITY", "label")

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	if err := LoadEnv(cfg); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
	if !cfg.HTTPS.Enabled {
		t.Error("HTTPS.Enabled = false, want true")
	}
	if cfg.Labels.Prefix != "rproxy." {
		t.Errorf("Labels.Prefix = %q, want rproxy.", cfg.Labels.Prefix)
	}
	if cfg.JSONConfig.Priority != "label" {
		t.Errorf("JSONConfig.Priority = %q, want label", cfg.JSONConfig.Priority)
	}
}

func TestLoadEnvInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		envVar string
		value  string
	}{
		{"invalid int", "GATEWAY_HTTP_PORT", "not-a-number"},
		{"invalid bool", "GATEWAY_HTTPS_ENABLED", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withCleanEnv(t)
			os.Setenv(tt.envVar, tt.value)

			cfg := &Config{}
			if err := LoadEnv(cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestEnvExampleIncludesKnownKeys(t *testing.T) {
	examples := EnvExample(&Config{})
	if len(examples) == 0 {
		t.Fatal("expected some environment variable examples")
	}

	expectedPrefixes := []string{
		"GATEWAY_HTTP_PORT=",
		"GATEWAY_LABELS_PREFIX=",
		"GATEWAY_JSONCONFIG_PRIORITY=",
		"GATEWAY_RETRY_MAXATTEMPTS=",
		"GATEWAY_LOG_FORMAT=",
	}
	for _, prefix := range expectedPrefixes {
		found := false
		for _, example := range examples {
			if strings.HasPrefix(example, prefix) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected an example starting with %q in %v", prefix, examples)
		}
	}
}

func TestHasEnvVarsWithPrefix(t *testing.T) {
	withCleanEnv(t)
	os.Setenv("GATEWAY_TEST_VAR", "value")
	os.Setenv("OTHER_VAR", "value")

	tests := []struct {
		prefix string
		want   bool
	}{
		{"GATEWAY_TEST", true},
		{"GATEWAY_MISSING", false},
		{"OTHER", true},
		{"NOTFOUND", false},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			if got := hasEnvVarsWithPrefix(tt.prefix); got != tt.want {
				t.Errorf("hasEnvVarsWithPrefix(%s) = %v, want %v", tt.prefix, got, tt.want)
			}
		})
	}
}
