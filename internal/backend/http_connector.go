// Package backend implements the Proxy Engine's dispatch step: forwarding a
// core.Request to a selected snapshot.Backend over plain HTTP/1.1 and
// streaming the backend's response back unbuffered. Grounded on the
// teacher's internal/backend/http_connector.go (hop-by-hop header
// stripping, X-Forwarded-* headers, streaming io.ReadCloser body).
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"gateway/internal/core"
	"gateway/internal/snapshot"
	"gateway/pkg/errors"
)

// Connector forwards a request to one backend and returns its response
// untouched; retry and backend selection live above it in the Proxy Engine.
type Connector interface {
	Forward(ctx context.Context, req *core.Request, b snapshot.Backend) (*core.Response, error)
}

// HTTPConnector implements Connector for plain-HTTP backends. Upstream is
// always plaintext per spec.md §4.8; TLS is terminated at the gateway's own
// listener, never re-established to the backend.
type HTTPConnector struct {
	client *http.Client
}

// NewHTTPConnector builds an HTTPConnector using client, which should have
// keep-alives enabled and no overall timeout - per-attempt timeouts are
// applied by the caller via ctx.
func NewHTTPConnector(client *http.Client) *HTTPConnector {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPConnector{client: client}
}

// Forward issues req against b, preserving method, path, query, and body,
// and stripping hop-by-hop headers per RFC 7230 §6.1.
func (c *HTTPConnector) Forward(ctx context.Context, req *core.Request, b snapshot.Backend) (*core.Response, error) {
	url := fmt.Sprintf("http://%s%s", b.Address, req.Path)
	if req.RawQuery != "" {
		url += "?" + req.RawQuery
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, req.Body)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "build backend request").WithCause(err)
	}

	for key, values := range req.Header {
		if isHopByHopHeader(key) {
			continue
		}
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if prior := httpReq.Header.Get("X-Forwarded-For"); prior != "" {
		httpReq.Header.Set("X-Forwarded-For", prior+", "+req.RemoteAddr)
	} else {
		httpReq.Header.Set("X-Forwarded-For", req.RemoteAddr)
	}
	httpReq.Header.Set("X-Forwarded-Proto", "http")
	httpReq.Header.Set("X-Forwarded-Host", req.Host)
	httpReq.Host = req.Host

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend dispatch: %w", err)
	}

	return &core.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

func isHopByHopHeader(header string) bool {
	switch strings.ToLower(header) {
	case "connection", "keep-alive", "proxy-authenticate", "proxy-authorization",
		"te", "trailers", "transfer-encoding", "upgrade":
		return true
	default:
		return false
	}
}
