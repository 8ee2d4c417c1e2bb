// Package matcher implements the Routing Table & Matcher: selecting at most
// one Router from a published snapshot for a given request Host/path.
package matcher

import (
	"strings"

	"gateway/internal/snapshot"
)

// Match selects the highest-priority Router in snap whose host and path
// predicates both match. It reads only the snapshot; it never mutates it.
//
// Routers in snap must already be sorted by snapshot.SortRouters (the
// Config Aggregator guarantees this at publish time), so the first survivor
// after filtering is the winner.
func Match(snap *snapshot.Snapshot, host, path string) (snapshot.Router, bool) {
	host = NormalizeHost(host)

	for _, r := range snap.Routers {
		if !r.Host.Matches(host) {
			continue
		}
		if !r.Path.Matches(path) {
			continue
		}
		return r, true
	}
	return snapshot.Router{}, false
}

// NormalizeHost strips an optional port and lowercases the Host header
// value, matching step 1 of the matching algorithm.
func NormalizeHost(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		// Guard against bare IPv6 addresses ("::1") which contain colons but
		// no port; a real host:port pair never starts with '['.
		if !strings.Contains(host[:i], "[") || strings.HasSuffix(host[:i], "]") {
			host = host[:i]
		}
	}
	return strings.ToLower(host)
}
