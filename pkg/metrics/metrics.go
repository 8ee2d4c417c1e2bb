// Package metrics defines the Prometheus instruments the Proxy Engine and
// Health Controller publish to, grounded on the teacher's pkg/metrics -
// trimmed of the teacher's WebSocket/SSE instruments, since this gateway has
// no non-HTTP upstream protocol.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the gateway publishes.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec

	// Backend metrics
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec
	BackendErrors          *prometheus.CounterVec
	BackendRetries         *prometheus.CounterVec

	// Health check metrics
	HealthCheckDuration *prometheus.HistogramVec
	HealthCheckStatus   *prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitRejected *prometheus.CounterVec

	// Service discovery metrics
	ServiceInstances *prometheus.GaugeVec
}

// New creates a new Metrics instance registered against the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry,
// primarily for test isolation.
func NewWithRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_http_requests_active",
				Help: "Number of active HTTP requests",
			},
			[]string{"method", "path"},
		),

		BackendRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_backend_requests_total",
				Help: "Total number of backend requests",
			},
			[]string{"service", "backend", "method", "status"},
		),
		BackendRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_backend_request_duration_seconds",
				Help:    "Backend request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "backend", "method"},
		),
		BackendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_backend_errors_total",
				Help: "Total number of backend errors",
			},
			[]string{"service", "backend", "error_type"},
		),
		BackendRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_backend_retries_total",
				Help: "Total number of backend dispatch retries",
			},
			[]string{"service"},
		),

		HealthCheckDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_health_check_duration_seconds",
				Help:    "Health check durations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		HealthCheckStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_health_check_status",
				Help: "Health check status (1 = healthy, 0 = quarantined)",
			},
			[]string{"backend"},
		),

		RateLimitRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rate_limit_rejected_total",
				Help: "Total number of requests rejected due to rate limiting",
			},
			[]string{"middleware"},
		),

		ServiceInstances: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_service_instances",
				Help: "Number of backends per service, by health status",
			},
			[]string{"service", "health"},
		),
	}
}

// NormalizePath truncates a path for use as a metrics label, avoiding high
// cardinality from path parameters embedded in the URL.
func NormalizePath(path string) string {
	const maxLength = 50
	if len(path) > maxLength {
		return path[:maxLength] + "..."
	}
	return path
}
