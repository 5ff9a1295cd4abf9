package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestMemoryRateLimiter_Allow(t *testing.T) {
	rl := NewMemoryRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Minute,
		BurstSize:         0,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "ip:10.0.0.1")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !allowed {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}

	allowed, _ := rl.Allow(ctx, "ip:10.0.0.1")
	if allowed {
		t.Error("Fourth request should be throttled")
	}

	// Other keys are unaffected.
	allowed, _ = rl.Allow(ctx, "ip:10.0.0.2")
	if !allowed {
		t.Error("A different key should have its own bucket")
	}
}

func TestMemoryRateLimiter_Refill(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	rl := NewMemoryRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 60,
		WindowDuration:    time.Minute,
		BurstSize:         0,
	})
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		if allowed, _ := rl.Allow(ctx, "user:1"); !allowed {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
	if allowed, _ := rl.Allow(ctx, "user:1"); allowed {
		t.Fatal("Bucket should be empty")
	}

	// At one token per second, two seconds buys two requests.
	now = now.Add(2 * time.Second)
	if allowed, _ := rl.Allow(ctx, "user:1"); !allowed {
		t.Error("Bucket should have refilled one token")
	}
	if allowed, _ := rl.Allow(ctx, "user:1"); !allowed {
		t.Error("Bucket should have refilled a second token")
	}
	if allowed, _ := rl.Allow(ctx, "user:1"); allowed {
		t.Error("Third request should be throttled again")
	}
}

func TestMemoryRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	rl := NewMemoryRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
	})
	rl.now = func() time.Time { return now }

	rl.Allow(context.Background(), "ip:10.0.0.1")
	rl.Allow(context.Background(), "ip:10.0.0.2")

	now = now.Add(3 * time.Minute)
	rl.Cleanup()

	rl.mu.Lock()
	remaining := len(rl.buckets)
	rl.mu.Unlock()
	if remaining != 0 {
		t.Errorf("Expected idle buckets to be dropped, %d remain", remaining)
	}
}

func TestRateLimitMiddleware_Throttles(t *testing.T) {
	m := NewRateLimitMiddleware(
		NewMemoryRateLimiter(UserRateLimitConfig()),
		NewMemoryRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}),
		testLogger(),
	)
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/books", nil)
	req.RemoteAddr = "10.0.0.1:54321"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("First request: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "1" {
		t.Errorf("X-RateLimit-Limit = %q, want 1", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Second request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 should carry Retry-After")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimitMiddleware_SeparatesUsersFromAnonymous(t *testing.T) {
	m := NewRateLimitMiddleware(
		NewMemoryRateLimiter(UserRateLimitConfig()),
		NewMemoryRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}),
		testLogger(),
	)
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Exhaust the anonymous bucket for this IP.
	anon := httptest.NewRequest("GET", "/books", nil)
	anon.RemoteAddr = "10.0.0.1:54321"
	handler.ServeHTTP(httptest.NewRecorder(), anon)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, anon)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Anonymous should be throttled, got %d", rec.Code)
	}

	// The same IP authenticated is keyed by user, not IP.
	authed := withIdentity(httptest.NewRequest("GET", "/books", nil), 7)
	authed.RemoteAddr = "10.0.0.1:54321"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authed)
	if rec.Code != http.StatusOK {
		t.Errorf("Authenticated request should pass, got %d", rec.Code)
	}
}

func testRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	mr, client := testRedisClient(t)
	rl := NewRedisRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Minute,
	}, "ratelimit")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := rl.Allow(ctx, "ip:10.0.0.1")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !allowed {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}

	allowed, err := rl.Allow(ctx, "ip:10.0.0.1")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if allowed {
		t.Fatal("Third request should be throttled")
	}

	// The window expires and the counter starts over.
	mr.FastForward(time.Minute + time.Second)
	allowed, err = rl.Allow(ctx, "ip:10.0.0.1")
	if err != nil {
		t.Fatalf("Allow after window failed: %v", err)
	}
	if !allowed {
		t.Error("New window should allow requests again")
	}
}

func TestRedisRateLimiter_Remaining(t *testing.T) {
	_, client := testRedisClient(t)
	rl := NewRedisRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Minute,
	}, "ratelimit")
	ctx := context.Background()

	remaining, err := rl.Remaining(ctx, "user:1")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 5 {
		t.Errorf("Fresh key remaining = %d, want 5", remaining)
	}

	rl.Allow(ctx, "user:1")
	rl.Allow(ctx, "user:1")

	remaining, err = rl.Remaining(ctx, "user:1")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 3 {
		t.Errorf("Remaining = %d, want 3", remaining)
	}
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	mr, client := testRedisClient(t)
	rl := NewRedisRateLimiter(client, nil, "ratelimit")
	mr.Close()

	allowed, err := rl.Allow(context.Background(), "ip:10.0.0.1")
	if err == nil {
		t.Fatal("Expected an error with redis down")
	}
	if !allowed {
		t.Error("Limiter must fail open when redis is down")
	}
}

func TestRateLimitMiddleware_FailsOpenOnLimiterError(t *testing.T) {
	mr, client := testRedisClient(t)
	m := NewRedisRateLimitMiddleware(client, testLogger())
	mr.Close()

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/books", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Request should pass with redis down, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		want       string
	}{
		{"remote addr with port", "10.0.0.1:54321", "", "", "10.0.0.1"},
		{"remote addr without port", "10.0.0.1", "", "", "10.0.0.1"},
		{"x-forwarded-for single", "10.0.0.1:54321", "203.0.113.9", "", "203.0.113.9"},
		{"x-forwarded-for chain", "10.0.0.1:54321", "203.0.113.9, 198.51.100.2", "", "203.0.113.9"},
		{"x-real-ip", "10.0.0.1:54321", "", "203.0.113.9", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
