package ratelimit

import (
	"context"
	"net/http"
	"testing"

	"gateway/internal/core"
)

func newReq(remoteAddr, path string) *core.Request {
	return &core.Request{RemoteAddr: remoteAddr, Path: path, Header: make(http.Header)}
}

func TestAllowsWithinBurst(t *testing.T) {
	mw := New("rl1", Config{Average: 10, Burst: 3}, nil)
	defer mw.Stop()

	req := newReq("1.2.3.4:1", "/x")
	for i := 0; i < 3; i++ {
		_, resp, err := mw.Before(context.Background(), req)
		if err != nil {
			t.Fatalf("Before returned error: %v", err)
		}
		if resp != nil {
			t.Fatalf("request %d should be allowed, got short-circuit %d", i, resp.StatusCode)
		}
	}
}

func TestDeniesOverBurst(t *testing.T) {
	mw := New("rl1", Config{Average: 1, Burst: 1}, nil)
	defer mw.Stop()

	req := newReq("1.2.3.4:1", "/x")
	_, resp, _ := mw.Before(context.Background(), req)
	if resp != nil {
		t.Fatal("first request should be allowed")
	}
	_, resp, _ = mw.Before(context.Background(), req)
	if resp == nil {
		t.Fatal("second request should be denied")
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestDifferentKeysHaveSeparateBuckets(t *testing.T) {
	mw := New("rl1", Config{Average: 1, Burst: 1}, nil)
	defer mw.Stop()

	req1 := newReq("1.1.1.1:1", "/x")
	req2 := newReq("2.2.2.2:1", "/x")

	_, resp1, _ := mw.Before(context.Background(), req1)
	_, resp2, _ := mw.Before(context.Background(), req2)
	if resp1 != nil || resp2 != nil {
		t.Fatal("first request from each key should be allowed")
	}
}

func TestAfterSetsRateLimitHeaders(t *testing.T) {
	mw := New("rl1", Config{Average: 5, Burst: 5}, nil)
	defer mw.Stop()

	resp := core.NewResponse(200, nil)
	resp, err := mw.After(context.Background(), resp)
	if err != nil {
		t.Fatalf("After returned error: %v", err)
	}
	if resp.Header.Get("X-RateLimit-Limit") == "" || resp.Header.Get("X-RateLimit-Burst") == "" {
		t.Error("expected X-RateLimit-Limit/Burst headers")
	}
}

func TestKeyFuncByName(t *testing.T) {
	if got := KeyFuncByName("path")(newReq("1.1.1.1:1", "/a")); got != "/a" {
		t.Errorf("ByPath = %q, want /a", got)
	}
	if got := KeyFuncByName("unknown")(newReq("1.1.1.1:1", "/a")); got != "1.1.1.1:1" {
		t.Errorf("default = %q, want 1.1.1.1:1", got)
	}
}
