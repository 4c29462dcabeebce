package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitRejectsAfterBurst(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw := RateLimit(0.0001, 2)
	wrapped := mw(handler)

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
		req.Header.Set("X-Real-Ip", "203.0.113.9")
		last = httptest.NewRecorder()
		wrapped.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("first two requests should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third request should be limited, got %d", codes[2])
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("limited response should carry Retry-After")
	}
}

func TestRateLimitRefillsOverTime(t *testing.T) {
	now := time.Unix(1700000000, 0)
	limiter := newVisitorLimiter(2, 1)
	limiter.now = func() time.Time { return now }

	if !limiter.take("203.0.113.9") {
		t.Fatal("first request should pass")
	}
	if limiter.take("203.0.113.9") {
		t.Fatal("bucket should be empty immediately after the burst")
	}

	now = now.Add(time.Second)
	if !limiter.take("203.0.113.9") {
		t.Fatal("bucket should refill after a second at 2 tokens/sec")
	}
}

func TestRateLimitTracksPerIP(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw := RateLimit(0.0001, 1)
	wrapped := mw(handler)

	for _, ip := range []string{"198.51.100.1", "198.51.100.2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
		req.Header.Set("X-Real-Ip", ip)
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("first request from %s should pass, got %d", ip, rec.Code)
		}
	}
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	mw := RequestLogger(nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id header")
	}
}
