package integration

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"gateway/internal/core"
	"gateway/internal/middleware/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRateLimitMiddlewareSimple(t *testing.T) {
	mw := ratelimit.New("test", ratelimit.Config{
		Average: 2,
		Burst:   3,
		KeyFunc: ratelimit.ByIP,
	}, testLogger())
	defer mw.Stop()

	req := &core.Request{Path: "/test", RemoteAddr: "10.0.0.1:1111"}

	for i := 0; i < 3; i++ {
		_, resp, err := mw.Before(context.Background(), req)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
		if resp != nil {
			t.Errorf("request %d should have been allowed, got %d", i+1, resp.StatusCode)
		}
	}

	_, resp, err := mw.Before(context.Background(), req)
	if err != nil {
		t.Fatalf("4th request: unexpected error: %v", err)
	}
	if resp == nil {
		t.Fatal("4th request should have been rate limited")
	}
	if resp.StatusCode != 429 {
		t.Errorf("4th request status = %d, want 429", resp.StatusCode)
	}

	time.Sleep(600 * time.Millisecond)

	_, resp, err = mw.Before(context.Background(), req)
	if err != nil {
		t.Fatalf("request after refill: unexpected error: %v", err)
	}
	if resp != nil {
		t.Errorf("request after refill should have been allowed, got %d", resp.StatusCode)
	}
}

func TestRateLimitMiddlewarePerKey(t *testing.T) {
	mw := ratelimit.New("per-ip", ratelimit.Config{
		Average: 1,
		Burst:   2,
		KeyFunc: ratelimit.ByIP,
	}, testLogger())
	defer mw.Stop()

	reqA := &core.Request{Path: "/api/users", RemoteAddr: "10.0.0.1:1111"}
	reqB := &core.Request{Path: "/api/users", RemoteAddr: "10.0.0.2:2222"}

	for i := 0; i < 2; i++ {
		if _, resp, _ := mw.Before(context.Background(), reqA); resp != nil {
			t.Errorf("client A request %d should have been allowed", i+1)
		}
	}
	if _, resp, _ := mw.Before(context.Background(), reqA); resp == nil {
		t.Error("client A's 3rd request should have been rate limited")
	}

	// Client B has its own bucket and is unaffected by A's usage.
	if _, resp, _ := mw.Before(context.Background(), reqB); resp != nil {
		t.Error("client B's first request should have been allowed")
	}
}

func TestRateLimitMiddlewareByPath(t *testing.T) {
	mw := ratelimit.New("by-path", ratelimit.Config{
		Average: 1,
		Burst:   1,
		KeyFunc: ratelimit.ByPath,
	}, testLogger())
	defer mw.Stop()

	apiReq := &core.Request{Path: "/api/users", RemoteAddr: "10.0.0.1:1111"}
	publicReq := &core.Request{Path: "/public/info", RemoteAddr: "10.0.0.1:1111"}

	if _, resp, _ := mw.Before(context.Background(), apiReq); resp != nil {
		t.Error("first /api/users request should have been allowed")
	}
	if _, resp, _ := mw.Before(context.Background(), apiReq); resp == nil {
		t.Error("second /api/users request should have been rate limited")
	}
	if _, resp, _ := mw.Before(context.Background(), publicReq); resp != nil {
		t.Error("/public/info shares no bucket with /api/users and should have been allowed")
	}
}
