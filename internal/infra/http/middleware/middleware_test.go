package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seiforesti/data-wave-sub013/internal/config"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var captured string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured == "" {
		t.Fatal("Expected a generated request ID")
	}
	if rec.Header().Get("X-Request-ID") != captured {
		t.Error("Expected the request ID echoed in the response header")
	}
}

func TestRequestID_PreservesClientValue(t *testing.T) {
	var captured string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-id-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured != "client-id-1" {
		t.Errorf("Expected the client's request ID, got %q", captured)
	}
}

func TestRecovery_TurnsPanicInto500(t *testing.T) {
	handler := Recovery(logger.NewNop(), false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

func TestTimeout_Returns504(t *testing.T) {
	handler := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/slow", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("Expected 504, got %d", rec.Code)
	}
}

func TestBodyLimit_RejectsOversizedBody(t *testing.T) {
	handler := BodyLimit(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		if _, err := r.Body.Read(buf); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	body := "this body is much longer than sixteen bytes"
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", rec.Code)
	}
}

func TestBodyLimit_SkipsGET(t *testing.T) {
	handler := BodyLimit(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for GET, got %d", rec.Code)
	}
}

func TestRateLimiter_Enforces429(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 2}, logger.NewNop())
	defer rl.Stop()

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}

	if last != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after burst exhausted, got %d", last)
	}
}

func TestRateLimiter_IsolatesClients(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}, logger.NewNop())
	defer rl.Stop()

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "203.0.113.7:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "203.0.113.8:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected a different client to pass, got %d", rec.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	if ip := getClientIP(req); ip != "10.0.0.1" {
		t.Errorf("Expected RemoteAddr IP, got %q", ip)
	}

	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.2")
	if ip := getClientIP(req); ip != "198.51.100.1" {
		t.Errorf("Expected first X-Forwarded-For entry, got %q", ip)
	}

	req.Header.Set("X-Real-IP", "192.0.2.9")
	if ip := getClientIP(req); ip != "192.0.2.9" {
		t.Errorf("Expected X-Real-IP to win, got %q", ip)
	}
}

func TestNormalizePath_BoundsCardinality(t *testing.T) {
	cases := map[string]string{
		"/api/v1/scan-configurations": "/api/v1/scan-configurations",
		"/api/v1/scan-configurations/550e8400-e29b-41d4-a716-446655440000":      "/api/v1/scan-configurations/{id}",
		"/api/v1/scan-runs/550e8400-e29b-41d4-a716-446655440000/cancel":         "/api/v1/scan-runs/{id}/cancel",
		"/executor/runs/550e8400-e29b-41d4-a716-446655440000/progress":          "/executor/runs/{id}/progress",
		"/api/v1/scan-configurations/12345":                                     "/api/v1/scan-configurations/{id}",
		"/api/v1/scan-configurations/not-an-id":                                 "/api/v1/scan-configurations/not-an-id",
	}

	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
