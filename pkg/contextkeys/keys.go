// Package contextkeys holds the context keys shared across middleware
// layers, so packages can read each other's request state without
// importing each other.
package contextkeys

import "context"

// Key is a private type so values set here cannot collide with keys
// from other packages.
type Key string

const (
	// AuthKey carries the *auth.Identity resolved from the bearer
	// token. Absent on anonymous requests.
	AuthKey Key = "auth_identity"

	// RequestIDKey carries the request id assigned at the edge.
	RequestIDKey Key = "request_id"

	// UserIDKey carries the authenticated user id as a string, for
	// log fields.
	UserIDKey Key = "user_id"

	// AuditLoggerKey carries the request-scoped audit recorder.
	AuditLoggerKey Key = "audit_logger"
)

// WithAuth attaches the authenticated identity.
func WithAuth(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, identity)
}

// WithRequestID attaches the request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID attaches the user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithAuditLogger attaches the audit recorder.
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// GetRequestID returns the request id, empty when none was assigned.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID returns the authenticated user id, empty for anonymous
// requests.
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
