package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pressleaf/biblio/pkg/observability"
)

// RedisRateLimiter counts requests in Redis so the limit holds across
// every instance behind the load balancer.
type RedisRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewRedisRateLimiter creates a Redis-backed fixed-window limiter.
func NewRedisRateLimiter(client *redis.Client, config *RateLimitConfig, prefix string) *RedisRateLimiter {
	if config == nil {
		config = AnonymousRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisRateLimiter{
		redis:  client,
		config: config,
		prefix: prefix,
	}
}

func (rl *RedisRateLimiter) key(key string) string {
	return rl.prefix + ":" + key
}

// Allow counts the request against the current window. The window
// starts with the first request; the expiry is only set then, so a
// steady stream of requests cannot push the reset forever into the
// future.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.key(key)

	count, err := rl.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := rl.redis.Expire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return true, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	return count <= int64(rl.config.RequestsPerWindow), nil
}

// Remaining reports how many requests are left in the window.
func (rl *RedisRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Get(ctx, rl.key(key)).Int()
	if err == redis.Nil {
		return rl.config.RequestsPerWindow, nil
	}
	if err != nil {
		return 0, err
	}

	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// RetryAfter is the time until the window resets.
func (rl *RedisRateLimiter) RetryAfter(ctx context.Context, key string) time.Duration {
	ttl, err := rl.redis.TTL(ctx, rl.key(key)).Result()
	if err != nil || ttl <= 0 {
		return rl.config.WindowDuration
	}
	return ttl
}

// Limit returns the requests allowed per window.
func (rl *RedisRateLimiter) Limit() int {
	return rl.config.RequestsPerWindow
}

// Reset clears the window for a key.
func (rl *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}

// NewRedisRateLimitMiddleware wires Redis-backed limiters with the
// default tiers. User and IP keys never collide, so both tiers share
// the key prefix.
func NewRedisRateLimitMiddleware(client *redis.Client, logger *observability.Logger) *RateLimitMiddleware {
	return NewRateLimitMiddleware(
		NewRedisRateLimiter(client, UserRateLimitConfig(), "ratelimit"),
		NewRedisRateLimiter(client, AnonymousRateLimitConfig(), "ratelimit"),
		logger,
	)
}
