package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// Middleware primes the request context with the recorder and the
// request facts every event should carry (client IP, user agent,
// method, path). It must run before authentication so denials recorded
// by the auth middleware reach the sink.
//
// Nothing is recorded here; events come from handlers and the auth
// middleware, not from blanket request logging.
func Middleware(rec *Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ContextWithRecorder(r.Context(), rec)
			ctx = context.WithValue(ctx, requestInfoKey, requestInfo{
				ip:        clientIP(r),
				userAgent: r.UserAgent(),
				method:    r.Method,
				path:      r.URL.Path,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			xff = xff[:idx]
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
