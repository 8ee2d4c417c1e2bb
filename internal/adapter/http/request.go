package http

import (
	"net/http"

	"gateway/internal/core"
)

// newRequest builds a core.Request from an inbound *http.Request, stamping
// X-Forwarded-Proto from the connection's TLS state when the client didn't
// already set one.
func newRequest(id string, r *http.Request) *core.Request {
	if r.TLS != nil {
		r.Header.Set("X-Forwarded-Proto", "https")
	} else if r.Header.Get("X-Forwarded-Proto") == "" {
		r.Header.Set("X-Forwarded-Proto", "http")
	}

	return core.NewRequest(r, id)
}
