package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/pressleaf/biblio/pkg/audit"
	"github.com/pressleaf/biblio/pkg/auth"
	"github.com/pressleaf/biblio/pkg/contextkeys"
	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/rbac"
)

// AuthMiddleware resolves bearer tokens into identities. Reads are
// public, so the middleware runs on every route and only the Require*
// wrappers reject.
type AuthMiddleware struct {
	manager *auth.Manager
	logger  *observability.Logger
}

// NewAuthMiddleware creates the authentication middleware.
func NewAuthMiddleware(manager *auth.Manager, logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		manager: manager,
		logger:  logger.WithField("component", "auth"),
	}
}

// Authenticate resolves the Authorization header when one is present
// and stores the identity in the request context. Requests without the
// header continue anonymously; a presented token that fails to
// authenticate is a 401 even on public routes, so clients learn about
// expired tokens instead of silently downgrading to anonymous.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		identity, err := m.manager.Authenticate(r.Context(), parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				audit.FromContext(r.Context()).Auth(r.Context(), audit.EventTypeAuthTokenInvalid,
					nil, "", audit.EventStatusFailure, "invalid or expired token presented")
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			m.logger.WithError(err).Error("Token lookup failed")
			httputil.WriteErrorMessage(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(identity.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity extracts the authenticated identity from a request, nil
// when the request is anonymous.
func GetIdentity(r *http.Request) *auth.Identity {
	identity, ok := r.Context().Value(contextkeys.AuthKey).(*auth.Identity)
	if !ok {
		return nil
	}
	return identity
}

// RequireAuth rejects anonymous requests. It assumes Authenticate ran
// earlier in the chain.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetIdentity(r) == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission gates a route on the role matrix. Anonymous
// requests get 401; authenticated users whose role lacks the permission
// get 403, keeping the two cases distinguishable.
func RequirePermission(checker *rbac.Checker, resource rbac.Resource, action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r)
			if identity == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			allowed, err := checker.Can(r.Context(), identity.UserID, resource, action)
			if err != nil {
				httputil.WriteErrorMessage(w, http.StatusInternalServerError, "permission check failed")
				return
			}
			if !allowed {
				audit.FromContext(r.Context()).Denied(r.Context(), audit.ResourceType(resource), "",
					"role lacks "+string(resource)+":"+string(action))
				httputil.WriteForbidden(w, "you do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole gates a route on an exact role name. Most routes should
// prefer RequirePermission; this exists for the admin surface where the
// role itself is the contract.
func RequireRole(checker *rbac.Checker, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r)
			if identity == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			got, err := checker.Role(r.Context(), identity.UserID)
			if err != nil {
				httputil.WriteErrorMessage(w, http.StatusInternalServerError, "permission check failed")
				return
			}
			if got != role {
				audit.FromContext(r.Context()).Denied(r.Context(), audit.ResourceTypeUser, "",
					"route requires role "+role)
				httputil.WriteForbidden(w, "you do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
