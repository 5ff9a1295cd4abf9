// Package middleware provides the HTTP middleware chain: bearer-token
// authentication, role and permission gates, and rate limiting.
//
// Authentication is split in two. AuthMiddleware.Authenticate runs on
// every route, resolving a presented token into an identity without
// rejecting anonymous requests, because reads are public. RequireAuth,
// RequirePermission and RequireRole wrap the routes that need more: a
// missing identity is a 401, an identity whose role lacks the
// permission is a 403, and both responses carry {"error": "..."} with
// WWW-Authenticate set on the 401.
//
// Rate limiting keys authenticated traffic per user and anonymous
// traffic per client IP. Two Limiter implementations exist: an
// in-memory token bucket for single-instance deployments without
// Redis, and a Redis fixed-window counter that holds the limit across
// a fleet. Limiter failures fail open; throttling reads because Redis
// is down would be a worse outage than briefly losing the limit.
package middleware
