// Package middleware implements the Middleware Pipeline (spec.md §4.6): a
// fixed-order chain of core.Middleware instances run around the Proxy
// Engine's backend dispatch. Grounded on the teacher's internal/middleware
// package, whose functional Chain/Logging/Recovery helpers are replaced here
// by a Pipeline built from the trait-style core.Middleware interface, since
// the new Middleware Definition model (named, independently configured,
// short-circuiting) doesn't fit the teacher's single func-wrapping Chain.
package middleware

import (
	"context"
	"log/slog"

	"gateway/internal/core"
	"gateway/pkg/errors"
)

// Pipeline runs an ordered list of middlewares around a dispatch Handler.
type Pipeline struct {
	middlewares []core.Middleware
	logger      *slog.Logger
}

// NewPipeline builds a Pipeline from middlewares in the order they must run;
// the Proxy Engine is responsible for resolving a Router's middleware names
// into this slice, ordered by MiddlewareDef.Order with the router's declared
// list breaking ties (spec.md §4.6).
func NewPipeline(middlewares []core.Middleware, logger *slog.Logger) *Pipeline {
	return &Pipeline{middlewares: middlewares, logger: logger}
}

// Execute runs every middleware's Before hook in order. If one short-circuits
// (returns a non-nil Response) or errors, dispatch is skipped. Afterward,
// every middleware whose Before already ran gets its After hook invoked, in
// strict reverse order - even when the pipeline short-circuited or dispatch
// itself failed.
func (p *Pipeline) Execute(ctx context.Context, req *core.Request, dispatch core.Handler) (*core.Response, error) {
	ctx = core.ContextWithRequestID(ctx, req.ID)
	ran := make([]core.Middleware, 0, len(p.middlewares))

	var resp *core.Response
	var err error

	for _, mw := range p.middlewares {
		var short *core.Response
		req, short, err = mw.Before(ctx, req)
		if err != nil {
			resp = errorResponse(err)
			err = nil
			ran = append(ran, mw)
			break
		}
		ran = append(ran, mw)
		if short != nil {
			resp = short
			break
		}
	}

	if resp == nil {
		resp, err = dispatch(ctx, req)
		if err != nil {
			resp = errorResponse(err)
			err = nil
		}
	}

	for i := len(ran) - 1; i >= 0; i-- {
		resp, err = ran[i].After(ctx, resp)
		if err != nil {
			if p.logger != nil {
				p.logger.Error("middleware after-hook failed", "middleware", ran[i].Name(), "error", err)
			}
			resp = errorResponse(err)
			err = nil
		}
	}

	return resp, nil
}

// errorResponse maps a middleware or dispatch error to a Response: a
// *errors.Error carries its own HTTP status, anything else maps to 500.
func errorResponse(err error) *core.Response {
	var status int
	var msg string
	var structured *errors.Error
	if errors.As(err, &structured) {
		status = structured.HTTPStatusCode()
		msg = structured.Message
	} else {
		status = 500
		msg = "internal server error"
	}
	return core.NewResponse(status, []byte(msg))
}

// Recover wraps a Pipeline's Execute call with panic recovery, mirroring the
// teacher's Recovery middleware but placed outside the Middleware interface
// since it must protect dispatch and every middleware hook alike.
func Recover(logger *slog.Logger, execute func(context.Context, *core.Request, core.Handler) (*core.Response, error)) func(context.Context, *core.Request, core.Handler) (*core.Response, error) {
	return func(ctx context.Context, req *core.Request, dispatch core.Handler) (resp *core.Response, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", "panic", r, "request", req.ID)
				resp = core.NewResponse(500, []byte("internal server error"))
				err = nil
			}
		}()
		return execute(ctx, req, dispatch)
	}
}
