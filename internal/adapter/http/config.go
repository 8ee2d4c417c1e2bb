package http

import (
	"crypto/tls"
	"time"
)

// Config holds the HTTP adapter's listener configuration.
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64 // 0 = no limit

	TLS       *TLSConfig
	TLSConfig *tls.Config // built from TLS by the factory, nil when HTTPS is disabled

	MetricsPath string // default "/metrics"
	HealthPath  string // default "/health"
	ReadyPath   string // default "/ready"
	LivePath    string // default "/live"
}

// TLSConfig names the certificate material backing an HTTPS listener.
type TLSConfig struct {
	Enabled  bool
	CertPath string
	KeyPath  string
}
