package proxy

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gateway/internal/core"
	"gateway/internal/health"
	"gateway/internal/loadbalancer"
	"gateway/internal/middleware"
	"gateway/internal/snapshot"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, snap *snapshot.Snapshot, srv *httptest.Server) *Engine {
	t.Helper()

	reg := middleware.NewRegistry(testLogger())
	if err := reg.RegisterAll(nil); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	hc := health.NewController(testLogger())
	lb := loadbalancer.NewManager()

	var connector fakeConnector
	if srv != nil {
		connector.addr = strings.TrimPrefix(srv.URL, "http://")
	}

	e := New(Config{MaxAttempts: 1}, reg, hc, lb, &connector, nil, testLogger())
	e.UpdateSnapshot(snap)
	return e
}

type fakeConnector struct {
	addr string
	fail bool
}

func (f *fakeConnector) Forward(ctx context.Context, req *core.Request, b snapshot.Backend) (*core.Response, error) {
	if f.fail {
		return nil, context.DeadlineExceeded
	}
	return core.NewResponse(http.StatusOK, []byte("ok:"+req.Path)), nil
}

func baseSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Version: 1,
		Routers: []snapshot.Router{
			{Name: "r1", Host: snapshot.HostPredicate{Any: true}, Path: snapshot.PathPredicate{Kind: snapshot.PathPrefix, Pattern: "/"}, ServiceName: "svc"},
		},
		Services: map[string]snapshot.Service{
			"svc": {Name: "svc", Backends: []snapshot.Backend{{ID: "b1", Address: "127.0.0.1:1", Weight: 1}}},
		},
		Middlewares: map[string]snapshot.MiddlewareDef{},
	}
}

func TestHandleNoRouterMatch404(t *testing.T) {
	snap := &snapshot.Snapshot{Services: map[string]snapshot.Service{}, Middlewares: map[string]snapshot.MiddlewareDef{}}
	e := newTestEngine(t, snap, nil)

	resp, err := e.Handle(context.Background(), &core.Request{Method: "GET", Path: "/x", Header: http.Header{}})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
	}
}

func TestHandleDispatchesToBackend(t *testing.T) {
	snap := baseSnapshot()
	e := newTestEngine(t, snap, nil)

	resp, err := e.Handle(context.Background(), &core.Request{Method: "GET", Path: "/hello", Header: http.Header{}})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok:/hello" {
		t.Errorf("body = %q", body)
	}
}

func TestHandleNoHealthyBackendReturns503(t *testing.T) {
	snap := baseSnapshot()
	b := snap.Services["svc"]
	bk := b.Backends[0]
	bk.Health = snapshot.HealthQuarantined
	b.Backends[0] = bk
	snap.Services["svc"] = b

	e := newTestEngine(t, snap, nil)
	// annotate won't override since Probe is nil -> forces Healthy; simulate
	// quarantine via a probe-bearing backend instead.
	b2 := snap.Services["svc"]
	b2.Backends[0].Probe = &snapshot.ProbeSpec{Type: "tcp"}
	snap.Services["svc"] = b2
	e.UpdateSnapshot(snap)

	resp, err := e.Handle(context.Background(), &core.Request{Method: "GET", Path: "/hello", Header: http.Header{}})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", resp.StatusCode)
	}
}

func TestHandleTransportFailureReturns502(t *testing.T) {
	snap := baseSnapshot()
	reg := middleware.NewRegistry(testLogger())
	if err := reg.RegisterAll(nil); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	hc := health.NewController(testLogger())
	lb := loadbalancer.NewManager()
	connector := &fakeConnector{fail: true}
	e := New(Config{MaxAttempts: 1, RetryInterval: 1}, reg, hc, lb, connector, nil, testLogger())
	e.UpdateSnapshot(snap)

	resp, err := e.Handle(context.Background(), &core.Request{Method: "GET", Path: "/hello", Header: http.Header{}})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.StatusCode != 502 {
		t.Errorf("StatusCode = %d, want 502", resp.StatusCode)
	}
}

func TestResolveMiddlewaresOrdersByDeclaredThenDef(t *testing.T) {
	snap := baseSnapshot()
	snap.Middlewares["a"] = snapshot.MiddlewareDef{Name: "a", Type: "cors", Enabled: true, Order: 2, Settings: map[string]string{}}
	snap.Middlewares["b"] = snapshot.MiddlewareDef{Name: "b", Type: "cors", Enabled: true, Order: 1, Settings: map[string]string{}}
	snap.Routers[0].Middlewares = []string{"a", "b"}

	e := newTestEngine(t, snap, nil)
	c := e.current.Load()
	order := e.resolveMiddlewares(c, snap.Routers[0])
	if len(order) != 2 {
		t.Fatalf("expected 2 middlewares, got %d", len(order))
	}
	if order[0].Name() != "a" || order[1].Name() != "b" {
		t.Errorf("expected [a,b] by declared order despite Order=2,1, got [%s,%s]", order[0].Name(), order[1].Name())
	}
}
