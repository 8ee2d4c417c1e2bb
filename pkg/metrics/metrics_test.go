package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersEveryInstrument(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry, registry)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
	if m.ActiveRequests == nil {
		t.Error("ActiveRequests is nil")
	}
	if m.BackendRequestsTotal == nil {
		t.Error("BackendRequestsTotal is nil")
	}
	if m.BackendRequestDuration == nil {
		t.Error("BackendRequestDuration is nil")
	}
	if m.BackendErrors == nil {
		t.Error("BackendErrors is nil")
	}
	if m.BackendRetries == nil {
		t.Error("BackendRetries is nil")
	}
	if m.HealthCheckDuration == nil {
		t.Error("HealthCheckDuration is nil")
	}
	if m.HealthCheckStatus == nil {
		t.Error("HealthCheckStatus is nil")
	}
	if m.RateLimitRejected == nil {
		t.Error("RateLimitRejected is nil")
	}
	if m.ServiceInstances == nil {
		t.Error("ServiceInstances is nil")
	}
}

func TestMetricsCollection(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry, registry)

	m.RequestsTotal.WithLabelValues("GET", "/api/test", "200").Inc()
	m.RequestsTotal.WithLabelValues("POST", "/api/test", "201").Inc()

	if count := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/test", "200")); count != 1 {
		t.Errorf("RequestsTotal(GET,200) = %f, want 1", count)
	}

	m.ActiveRequests.WithLabelValues("GET", "/api/test").Inc()
	if active := testutil.ToFloat64(m.ActiveRequests.WithLabelValues("GET", "/api/test")); active != 1 {
		t.Errorf("ActiveRequests = %f, want 1", active)
	}
	m.ActiveRequests.WithLabelValues("GET", "/api/test").Dec()
	if active := testutil.ToFloat64(m.ActiveRequests.WithLabelValues("GET", "/api/test")); active != 0 {
		t.Errorf("ActiveRequests = %f, want 0", active)
	}

	m.BackendRequestsTotal.WithLabelValues("svc", "b1", "GET", "200").Inc()
	if count := testutil.ToFloat64(m.BackendRequestsTotal.WithLabelValues("svc", "b1", "GET", "200")); count != 1 {
		t.Errorf("BackendRequestsTotal = %f, want 1", count)
	}

	m.BackendRetries.WithLabelValues("svc").Inc()
	if count := testutil.ToFloat64(m.BackendRetries.WithLabelValues("svc")); count != 1 {
		t.Errorf("BackendRetries = %f, want 1", count)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"short path", "/api/v1/users", "/api/v1/users"},
		{
			"long path",
			"/api/v1/users/12345678901234567890123456789012345678901234567890/profile/settings",
			"/api/v1/users/123456789012345678901234567890123456...",
		},
		{
			"exactly 50 chars",
			"/api/v1/users/12345678901234567890123456789012345",
			"/api/v1/users/12345678901234567890123456789012345",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePath(tt.path); got != tt.expected {
				t.Errorf("NormalizePath(%s) = %s, want %s", tt.path, got, tt.expected)
			}
		})
	}
}
