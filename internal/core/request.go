// Package core holds the request/response/middleware types shared by the
// routing, middleware, and proxy layers.
package core

import (
	"context"
	"io"
	"net/http"
)

// Request is the mutable, in-flight representation of a client request as it
// travels through the middleware pipeline. Middlewares may rewrite Header
// (and, less commonly, Path) on their Before hook; the Proxy Engine reads the
// final values when forwarding to the backend.
type Request struct {
	ID         string
	Method     string
	Host       string
	Path       string
	RawQuery   string
	RemoteAddr string
	Header     http.Header
	Body       io.ReadCloser

	ctx context.Context
}

// NewRequest builds a Request from an inbound *http.Request, tagging it with
// a unique request-id carried for the lifetime of the request.
func NewRequest(r *http.Request, id string) *Request {
	return &Request{
		ID:         id,
		Method:     r.Method,
		Host:       r.Host,
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		RemoteAddr: r.RemoteAddr,
		Header:     r.Header.Clone(),
		Body:       r.Body,
		ctx:        r.Context(),
	}
}

// Context returns the request's cancellation context.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r with its context replaced.
func (r *Request) WithContext(ctx context.Context) *Request {
	clone := *r
	clone.ctx = ctx
	return &clone
}
