package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("client-1") {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
	}
	if rl.Allow("client-1") {
		t.Error("Expected request over the limit to be denied")
	}

	// A different key has its own budget
	if !rl.Allow("client-2") {
		t.Error("Expected a fresh key to be allowed")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("Expected X-RateLimit-Remaining 0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestGetClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := GetClientKey(req); got != "10.0.0.1:1234" {
		t.Errorf("Expected RemoteAddr fallback, got %q", got)
	}

	req.Header.Set("X-Real-IP", "203.0.113.7")
	if got := GetClientKey(req); got != "203.0.113.7" {
		t.Errorf("Expected X-Real-IP, got %q", got)
	}

	// The verified account wins over any network-level identifier
	ctx := context.WithValue(req.Context(), identityKey{}, Identity{AccountID: "acct-1"})
	req = req.WithContext(ctx)
	if got := GetClientKey(req); got != "account:acct-1" {
		t.Errorf("Expected account key, got %q", got)
	}
}
