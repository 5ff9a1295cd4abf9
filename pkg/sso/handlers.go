package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/audit"
	"github.com/pressleaf/biblio/pkg/auth"
	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/rbac"
)

const (
	stateCookie = "biblio_sso_state"
	stateMaxAge = 600

	// SSO logins get an expiring token, unlike tokens created through
	// the token management endpoints.
	sessionTokenTTL  = 24 * time.Hour
	sessionTokenName = "sso login"
)

// Authenticator is the provider surface the handlers need. Provider
// implements it; tests substitute a fake.
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Claims, error)
}

// UserStore is the slice of the storage interface the login flow
// touches.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*api.User, error)
	CreateUser(ctx context.Context, user *api.User) error
}

// Handlers serves the OIDC login flow: a redirect to the issuer and
// the callback that turns a verified ID token into an API token.
type Handlers struct {
	provider Authenticator
	users    UserStore
	tokens   *auth.Manager
	logger   *observability.Logger
}

// NewHandlers creates the SSO handlers.
func NewHandlers(provider Authenticator, users UserStore, tokens *auth.Manager, logger *observability.Logger) *Handlers {
	return &Handlers{
		provider: provider,
		users:    users,
		tokens:   tokens,
		logger:   logger.WithField("component", "sso"),
	}
}

// RegisterRoutes mounts the SSO routes on router. The caller only
// mounts these when OIDC is configured.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/sso/login", h.login).Methods(http.MethodGet)
	router.HandleFunc("/auth/sso/callback", h.callback).Methods(http.MethodGet)
}

// login handles GET /auth/sso/login. It parks a random state value in
// a short-lived cookie and sends the browser to the issuer.
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	stateBytes := make([]byte, 32)
	if _, err := rand.Read(stateBytes); err != nil {
		h.logger.WithError(err).Error("Failed to generate SSO state")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to start login")
		return
	}
	state := base64.RawURLEncoding.EncodeToString(stateBytes)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   stateMaxAge,
	})

	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// callback handles GET /auth/sso/callback. A verified ID token turns
// into a user row (created on first login, matched by email after)
// and a fresh API token.
func (h *Handlers) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication failed: "+errParam)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "missing state cookie")
		return
	}
	clearCookie(w)

	if state := r.URL.Query().Get("state"); state == "" || state != cookie.Value {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid state parameter")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	claims, err := h.provider.Exchange(ctx, code)
	if err != nil {
		h.logger.WithError(err).Warn("OIDC code exchange failed")
		audit.FromContext(ctx).Auth(ctx, audit.EventTypeAuthLoginFailed, nil, "", audit.EventStatusFailure, "oidc exchange failed")
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	user, err := h.provision(ctx, claims)
	if err != nil {
		h.logger.WithError(err).WithField("email", claims.Email).Error("Failed to provision SSO user")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to complete login")
		return
	}

	expiresAt := time.Now().UTC().Add(sessionTokenTTL)
	_, plaintext, err := h.tokens.Issue(ctx, user.ID, sessionTokenName, &expiresAt)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue token after SSO login")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to complete login")
		return
	}

	audit.FromContext(ctx).Auth(ctx, audit.EventTypeAuthLogin, &user.ID, user.Username, audit.EventStatusSuccess, "oidc login")
	httputil.WriteJSON(w, http.StatusOK, &api.LoginResponse{Token: plaintext, User: user})
}

// provision finds the user by email, creating one on first login. A
// username already taken by a different account falls back to the
// email, which is free by construction here.
func (h *Handlers) provision(ctx context.Context, claims *Claims) (*api.User, error) {
	user, err := h.users.GetUserByEmail(ctx, claims.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, api.ErrNotFound) {
		return nil, err
	}

	user = &api.User{
		Username: claims.Username,
		Email:    claims.Email,
		Role:     rbac.RoleMember,
	}
	err = h.users.CreateUser(ctx, user)
	if errors.Is(err, api.ErrConflict) && claims.Username != claims.Email {
		user.Username = claims.Email
		err = h.users.CreateUser(ctx, user)
	}
	if err != nil {
		return nil, err
	}

	h.logger.WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("Provisioned user from OIDC login")
	return user, nil
}

func clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})
}
