package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/observability"
)

// RateLimitConfig defines a rate limit window.
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window.
	RequestsPerWindow int
	// WindowDuration is the length of the window.
	WindowDuration time.Duration
	// BurstSize allows short bursts above the steady rate.
	BurstSize int
}

// AnonymousRateLimitConfig limits unauthenticated clients per IP.
func AnonymousRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// UserRateLimitConfig limits authenticated users per user id.
func UserRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
		BurstSize:         50,
	}
}

// Limiter is what the middleware needs from a rate limiter. Both the
// in-memory and the Redis-backed implementations satisfy it.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Remaining(ctx context.Context, key string) (int, error)
	RetryAfter(ctx context.Context, key string) time.Duration
	Limit() int
}

// MemoryRateLimiter is a per-process token bucket. It serves
// deployments without Redis; anything running more than one instance
// should use the Redis limiter so the limit holds across the fleet.
type MemoryRateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewMemoryRateLimiter creates an in-memory limiter. A nil config gets
// the anonymous defaults.
func NewMemoryRateLimiter(config *RateLimitConfig) *MemoryRateLimiter {
	if config == nil {
		config = AnonymousRateLimitConfig()
	}
	return &MemoryRateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (rl *MemoryRateLimiter) maxTokens() float64 {
	return float64(rl.config.RequestsPerWindow + rl.config.BurstSize)
}

// refill tops a bucket up for the time elapsed since its last update.
// Callers hold mu.
func (rl *MemoryRateLimiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastUpdate)
	if elapsed <= 0 {
		return
	}
	rate := float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds()
	b.tokens += elapsed.Seconds() * rate
	if max := rl.maxTokens(); b.tokens > max {
		b.tokens = max
	}
	b.lastUpdate = now
}

// Allow consumes one token for key. The error is always nil; it exists
// to satisfy Limiter.
func (rl *MemoryRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.maxTokens(), lastUpdate: now}
		rl.buckets[key] = b
	}
	rl.refill(b, now)

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Remaining reports the tokens left for key.
func (rl *MemoryRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		return int(rl.maxTokens()), nil
	}
	rl.refill(b, rl.now())
	return int(b.tokens), nil
}

// RetryAfter estimates how long until one token refills.
func (rl *MemoryRateLimiter) RetryAfter(ctx context.Context, key string) time.Duration {
	rate := float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds()
	return time.Duration(float64(time.Second) / rate)
}

// Limit returns the steady-state requests per window.
func (rl *MemoryRateLimiter) Limit() int {
	return rl.config.RequestsPerWindow
}

// Cleanup drops buckets idle for two windows.
func (rl *MemoryRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup runs Cleanup every window until ctx is canceled.
func (rl *MemoryRateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimitMiddleware throttles requests, keyed by user id for
// authenticated requests and by client IP for anonymous ones.
type RateLimitMiddleware struct {
	userLimiter Limiter
	anonLimiter Limiter
	logger      *observability.Logger
}

// NewRateLimitMiddleware composes a middleware from two limiters.
func NewRateLimitMiddleware(userLimiter, anonLimiter Limiter, logger *observability.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		userLimiter: userLimiter,
		anonLimiter: anonLimiter,
		logger:      logger.WithField("component", "ratelimit"),
	}
}

// NewMemoryRateLimitMiddleware wires in-memory limiters with the
// default tiers.
func NewMemoryRateLimitMiddleware(logger *observability.Logger) *RateLimitMiddleware {
	return NewRateLimitMiddleware(
		NewMemoryRateLimiter(UserRateLimitConfig()),
		NewMemoryRateLimiter(AnonymousRateLimitConfig()),
		logger,
	)
}

// Handler wraps an HTTP handler with rate limiting. It assumes the auth
// middleware ran earlier so authenticated traffic is keyed per user.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var key string
		var limiter Limiter
		if identity := GetIdentity(r); identity != nil {
			key = fmt.Sprintf("user:%d", identity.UserID)
			limiter = m.userLimiter
		} else {
			key = "ip:" + clientIP(r)
			limiter = m.anonLimiter
		}

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			// Fail open: a broken limiter must not take reads down.
			m.logger.WithError(err).Warn("Rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			retryAfter := limiter.RetryAfter(ctx, key)
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", "0")
			httputil.WriteTooManyRequests(w, fmt.Sprintf("request was throttled, expected available in %d seconds", seconds))
			return
		}

		if remaining, err := limiter.Remaining(ctx, key); err == nil {
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the caller's address, trusting proxy headers when
// present.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// The first entry is the originating client.
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
