package core

import "context"

// Handler dispatches a request to a backend and returns its response.
type Handler func(context.Context, *Request) (*Response, error)

// Middleware is the trait-style capability the pipeline composes: a named
// pair of hooks run around dispatch. Before may rewrite the request, produce
// a short-circuit Response (skipping dispatch and any later Before hooks), or
// error (mapped to 500 unless the middleware's error carries its own
// status). After may rewrite the response headers/status; it always runs,
// in reverse order, for every middleware whose Before already executed -
// including on a short-circuited response.
type Middleware interface {
	Name() string
	Before(ctx context.Context, req *Request) (*Request, *Response, error)
	After(ctx context.Context, resp *Response) (*Response, error)
}

// Noop embeds into middlewares that only need one of the two hooks.
type Noop struct{}

func (Noop) Before(ctx context.Context, req *Request) (*Request, *Response, error) {
	return req, nil, nil
}

func (Noop) After(ctx context.Context, resp *Response) (*Response, error) {
	return resp, nil
}
