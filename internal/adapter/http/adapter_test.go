package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gateway/internal/core"
	"gateway/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAdapterServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		handler        core.Handler
		request        *http.Request
		expectedStatus int
		expectedBody   string
		expectedHeader map[string]string
	}{
		{
			name: "successful request",
			handler: func(ctx context.Context, req *core.Request) (*core.Response, error) {
				resp := core.NewResponse(http.StatusOK, []byte(`{"status":"ok"}`))
				resp.Header.Set("Content-Type", "application/json")
				resp.Header.Set("X-Custom", "test-value")
				return resp, nil
			},
			request:        httptest.NewRequest("GET", "/api/test", nil),
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"ok"}`,
			expectedHeader: map[string]string{
				"Content-Type": "application/json",
				"X-Custom":     "test-value",
			},
		},
		{
			name: "request with body",
			handler: func(ctx context.Context, req *core.Request) (*core.Response, error) {
				body, _ := io.ReadAll(req.Body)
				return core.NewResponse(http.StatusOK, body), nil
			},
			request:        httptest.NewRequest("POST", "/api/echo", strings.NewReader("test data")),
			expectedStatus: http.StatusOK,
			expectedBody:   "test data",
		},
		{
			name: "error handling - not found",
			handler: func(ctx context.Context, req *core.Request) (*core.Response, error) {
				return nil, errors.NewError(errors.ErrorTypeNotFound, "route not found").WithDetail("path", req.Path)
			},
			request:        httptest.NewRequest("GET", "/api/unknown", nil),
			expectedStatus: http.StatusNotFound,
			expectedBody:   "route not found",
		},
		{
			name: "error handling - internal error",
			handler: func(ctx context.Context, req *core.Request) (*core.Response, error) {
				return nil, errors.NewError(errors.ErrorTypeInternal, "internal server error")
			},
			request:        httptest.NewRequest("GET", "/api/error", nil),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "internal server error",
		},
		{
			name: "error handling - timeout",
			handler: func(ctx context.Context, req *core.Request) (*core.Response, error) {
				return nil, errors.NewError(errors.ErrorTypeTimeout, "request timeout")
			},
			request:        httptest.NewRequest("GET", "/api/timeout", nil),
			expectedStatus: http.StatusRequestTimeout,
			expectedBody:   "request timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Host: "127.0.0.1", Port: 8080}
			adapter := New(cfg, tt.handler, testLogger())

			recorder := httptest.NewRecorder()
			adapter.ServeHTTP(recorder, tt.request)

			if recorder.Code != tt.expectedStatus {
				t.Errorf("Status code = %d, want %d", recorder.Code, tt.expectedStatus)
			}

			body := recorder.Body.String()
			if tt.expectedStatus >= 400 && body != tt.expectedBody+"\n" {
				t.Errorf("Body = %q, want %q", body, tt.expectedBody+"\n")
			} else if tt.expectedStatus < 400 && body != tt.expectedBody {
				t.Errorf("Body = %q, want %q", body, tt.expectedBody)
			}

			for key, value := range tt.expectedHeader {
				if got := recorder.Header().Get(key); got != value {
					t.Errorf("Header[%s] = %q, want %q", key, got, value)
				}
			}
		})
	}
}

func TestAdapterRequestConversion(t *testing.T) {
	var captured *core.Request
	handler := func(ctx context.Context, req *core.Request) (*core.Response, error) {
		captured = req
		return core.NewResponse(http.StatusOK, nil), nil
	}

	cfg := Config{Host: "127.0.0.1", Port: 8080}
	adapter := New(cfg, handler, testLogger())

	req := httptest.NewRequest("POST", "/api/test?query=value", strings.NewReader("request body"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Custom-Header", "custom-value")
	req.RemoteAddr = "192.168.1.100:12345"

	recorder := httptest.NewRecorder()
	adapter.ServeHTTP(recorder, req)

	if captured == nil {
		t.Fatal("handler was not called")
	}
	if captured.Method != "POST" {
		t.Errorf("Method = %s, want POST", captured.Method)
	}
	if captured.Path != "/api/test" {
		t.Errorf("Path = %s, want /api/test", captured.Path)
	}
	if captured.RawQuery != "query=value" {
		t.Errorf("RawQuery = %s, want query=value", captured.RawQuery)
	}
	if captured.RemoteAddr != "192.168.1.100:12345" {
		t.Errorf("RemoteAddr = %s, want 192.168.1.100:12345", captured.RemoteAddr)
	}
	if ct := captured.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type header not preserved, got %q", ct)
	}
	if ch := captured.Header.Get("X-Custom-Header"); ch != "custom-value" {
		t.Errorf("X-Custom-Header not preserved, got %q", ch)
	}
	if captured.ID == "" {
		t.Error("request ID should be generated")
	}
	if !strings.Contains(captured.ID, "-") {
		t.Errorf("request ID format invalid: %s, expected format timestamp-randomhex", captured.ID)
	}
}

func TestAdapterContextPropagation(t *testing.T) {
	var capturedCtx context.Context
	handler := func(ctx context.Context, req *core.Request) (*core.Response, error) {
		capturedCtx = ctx
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
			return core.NewResponse(http.StatusOK, []byte("ok")), nil
		}
	}

	cfg := Config{Host: "127.0.0.1", Port: 8080}
	adapter := New(cfg, handler, testLogger())

	req := httptest.NewRequest("GET", "/api/test", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 100*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	recorder := httptest.NewRecorder()
	adapter.ServeHTTP(recorder, req)

	if capturedCtx == nil {
		t.Fatal("context was not propagated")
	}
	if _, ok := capturedCtx.Deadline(); !ok {
		t.Error("context deadline was not propagated")
	}
}

func TestAdapterStreamingResponse(t *testing.T) {
	handler := func(ctx context.Context, req *core.Request) (*core.Response, error) {
		pr, pw := io.Pipe()
		go func() {
			defer pw.Close()
			for i := 0; i < 3; i++ {
				pw.Write([]byte("chunk\n"))
				time.Sleep(5 * time.Millisecond)
			}
		}()

		resp := core.NewResponse(http.StatusOK, nil)
		resp.Body = pr
		resp.Header.Set("Content-Type", "text/plain")
		return resp, nil
	}

	cfg := Config{Host: "127.0.0.1", Port: 8080}
	adapter := New(cfg, handler, testLogger())

	req := httptest.NewRequest("GET", "/stream", nil)
	recorder := httptest.NewRecorder()
	adapter.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", recorder.Code, http.StatusOK)
	}
	if expected := "chunk\nchunk\nchunk\n"; recorder.Body.String() != expected {
		t.Errorf("Body = %q, want %q", recorder.Body.String(), expected)
	}
}

func TestAdapterMaxRequestSize(t *testing.T) {
	handler := func(ctx context.Context, req *core.Request) (*core.Response, error) {
		return core.NewResponse(http.StatusOK, nil), nil
	}

	cfg := Config{Host: "127.0.0.1", Port: 8080, MaxRequestSize: 10}
	adapter := New(cfg, handler, testLogger())

	req := httptest.NewRequest("POST", "/api/test", strings.NewReader(strings.Repeat("x", 100)))
	req.ContentLength = 100
	recorder := httptest.NewRecorder()
	adapter.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Status = %d, want %d", recorder.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestAdapterHealthAndMetricsEndpoints(t *testing.T) {
	called := false
	handler := func(ctx context.Context, req *core.Request) (*core.Response, error) {
		called = true
		return core.NewResponse(http.StatusOK, nil), nil
	}

	cfg := Config{Host: "127.0.0.1", Port: 8080}
	adapter := New(cfg, handler, testLogger())
	adapter.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("# metrics\n"))
	}))

	req := httptest.NewRequest("GET", "/metrics", nil)
	recorder := httptest.NewRecorder()
	adapter.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", recorder.Code)
	}
	if called {
		t.Error("proxy handler should not be invoked for /metrics")
	}
}
