package core

import "context"

// requestIDKey is the context key carrying a Request's ID from Before into
// After: Middleware.After gets no *Request of its own, since one middleware
// instance is shared across concurrent requests and After's only per-call
// state is the Response.
type requestIDKey struct{}

// ContextWithRequestID returns a copy of ctx carrying id, so middleware After
// hooks can recover the request identity Before saw.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID stored by ContextWithRequestID,
// if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}
