package snapshot

import (
	"regexp"
	"testing"
)

func TestPathPredicatePrefixMatching(t *testing.T) {
	p := PathPredicate{Kind: PathPrefix, Pattern: "/api"}
	cases := map[string]bool{
		"/api":     true,
		"/api/":    true,
		"/api/x":   true,
		"/apix":    false,
		"/":        false,
		"/ap":      false,
	}
	for path, want := range cases {
		if got := p.Matches(path); got != want {
			t.Errorf("Matches(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestPathPredicateRootPrefixMatchesEverything(t *testing.T) {
	p := PathPredicate{Kind: PathPrefix, Pattern: "/"}
	for _, path := range []string{"/", "/anything", "/a/b/c"} {
		if !p.Matches(path) {
			t.Errorf("Matches(%q) = false, want true for root prefix", path)
		}
	}
}

func TestPathPredicateExactMatching(t *testing.T) {
	p := PathPredicate{Kind: PathExact, Pattern: "/api/widgets"}
	if !p.Matches("/api/widgets") {
		t.Error("exact match should succeed")
	}
	if p.Matches("/api/widgets/") {
		t.Error("exact predicate must not match a trailing-slash variant")
	}
}

func TestPathPredicateRegexMatching(t *testing.T) {
	p := PathPredicate{Kind: PathRegex, Regex: regexp.MustCompile(`^/users/\d+$`)}
	if !p.Matches("/users/42") {
		t.Error("expected regex match")
	}
	if p.Matches("/users/abc") {
		t.Error("expected regex mismatch")
	}
}

func TestHostPredicateAnyMatchesEverything(t *testing.T) {
	h := HostPredicate{Any: true}
	if !h.Matches("whatever.example") {
		t.Error("Any host predicate must match any host")
	}
}

func TestHostPredicateExactMatch(t *testing.T) {
	h := HostPredicate{Host: "example.com"}
	if !h.Matches("example.com") {
		t.Error("expected match on identical host")
	}
	if h.Matches("other.example.com") {
		t.Error("expected mismatch on different host")
	}
}

func TestRouterPriorityOrdersExactOverRegexOverPrefix(t *testing.T) {
	exact := Router{Path: PathPredicate{Kind: PathExact, Pattern: "/a"}}
	regex := Router{Path: PathPredicate{Kind: PathRegex, Pattern: "/a.*"}}
	prefix := Router{Path: PathPredicate{Kind: PathPrefix, Pattern: "/a"}}

	if exact.Priority() <= regex.Priority() {
		t.Errorf("exact priority %d must outrank regex priority %d", exact.Priority(), regex.Priority())
	}
	if regex.Priority() <= prefix.Priority() {
		t.Errorf("regex priority %d must outrank prefix priority %d", regex.Priority(), prefix.Priority())
	}
}

func TestRouterPriorityLongerPrefixOutranksShorter(t *testing.T) {
	short := Router{Path: PathPredicate{Kind: PathPrefix, Pattern: "/api"}}
	long := Router{Path: PathPredicate{Kind: PathPrefix, Pattern: "/api/v2"}}
	if long.Priority() <= short.Priority() {
		t.Errorf("longer prefix priority %d must outrank shorter %d", long.Priority(), short.Priority())
	}
}

func TestSortRoutersOrdersByPriorityThenInsertionThenName(t *testing.T) {
	routers := []Router{
		{Name: "prefix-short", Path: PathPredicate{Kind: PathPrefix, Pattern: "/a"}},
		{Name: "regex-second", Path: PathPredicate{Kind: PathRegex, Pattern: "/b.*"}, InsertionIndex: 1},
		{Name: "regex-first", Path: PathPredicate{Kind: PathRegex, Pattern: "/a.*"}, InsertionIndex: 0},
		{Name: "exact", Path: PathPredicate{Kind: PathExact, Pattern: "/a"}},
		{Name: "prefix-long", Path: PathPredicate{Kind: PathPrefix, Pattern: "/api/v2"}},
	}
	SortRouters(routers)

	want := []string{"exact", "regex-first", "regex-second", "prefix-long", "prefix-short"}
	for i, name := range want {
		if routers[i].Name != name {
			t.Fatalf("routers[%d] = %s, want %s (full order: %v)", i, routers[i].Name, name, names(routers))
		}
	}
}

func TestSortBackendsOrdersByCreatedAtThenID(t *testing.T) {
	backends := []Backend{
		{ID: "b", CreatedAt: 100},
		{ID: "a", CreatedAt: 100},
		{ID: "c", CreatedAt: 50},
	}
	SortBackends(backends)
	want := []string{"c", "a", "b"}
	for i, id := range want {
		if backends[i].ID != id {
			t.Fatalf("backends[%d].ID = %s, want %s", i, backends[i].ID, id)
		}
	}
}

func TestBackendIDTruncatesContainerID(t *testing.T) {
	id := BackendID("0123456789abcdef0123", 8080)
	if id != "0123456789ab:8080" {
		t.Errorf("BackendID() = %s, want truncated to 12 chars", id)
	}
}

func TestBackendIDKeepsShortContainerID(t *testing.T) {
	if id := BackendID("abc123", 80); id != "abc123:80" {
		t.Errorf("BackendID() = %s, want abc123:80", id)
	}
}

func TestServiceHealthyCountExcludesQuarantined(t *testing.T) {
	s := Service{Backends: []Backend{
		{ID: "a", Health: HealthHealthy},
		{ID: "b", Health: HealthQuarantined},
		{ID: "c", Health: HealthUnknown},
	}}
	if got := s.HealthyCount(); got != 2 {
		t.Errorf("HealthyCount() = %d, want 2", got)
	}
}

func names(routers []Router) []string {
	out := make([]string, len(routers))
	for i, r := range routers {
		out[i] = r.Name
	}
	return out
}
