package internal

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllows(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.allow("198.51.100.7") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.allow("198.51.100.7") {
		t.Error("request over the limit should be denied")
	}
	if !limiter.allow("198.51.100.8") {
		t.Error("a different IP has its own bucket")
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	window := 50 * time.Millisecond
	limiter := NewRateLimiter(1, window)

	if !limiter.allow("198.51.100.7") {
		t.Fatal("first request should be allowed")
	}
	if limiter.allow("198.51.100.7") {
		t.Fatal("second request inside the window should be denied")
	}

	time.Sleep(window + 20*time.Millisecond)
	if !limiter.allow("198.51.100.7") {
		t.Error("request after the window should be allowed again")
	}
}

func TestRateLimiterCleanupBoundsMap(t *testing.T) {
	window := 50 * time.Millisecond
	limiter := NewRateLimiter(10, window)

	for i := 0; i < 300; i++ {
		limiter.allow(fmt.Sprintf("203.0.113.%d", i))
	}

	time.Sleep(window + 20*time.Millisecond)
	limiter.Cleanup()

	if size := len(limiter.requests); size != 0 {
		t.Errorf("expected expired buckets removed, %d remain", size)
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	h := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhooks", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}

	// X-Forwarded-For identifies the real client behind a proxy.
	req = httptest.NewRequest(http.MethodPost, "/webhooks", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for a different forwarded client, got %d", w.Code)
	}
}
