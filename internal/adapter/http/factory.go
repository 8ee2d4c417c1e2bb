package http

import (
	"crypto/tls"
	"fmt"

	"gateway/internal/config"
)

// NewTLSConfig builds the *tls.Config for an HTTPS listener from the
// certificate material named in cfg. TLS termination here is limited to
// loading a static certificate/key pair; version and cipher-suite tuning
// are left to Go's secure defaults (TLS 1.2 floor).
func NewTLSConfig(cfg config.TLS) (*tls.Config, error) {
	if cfg.CertPath == "" || cfg.KeyPath == "" {
		return nil, fmt.Errorf("https enabled but tls.certPath/tls.keyPath are not set")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}
