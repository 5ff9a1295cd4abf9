package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/pressleaf/biblio/pkg/audit"
	"github.com/pressleaf/biblio/pkg/auth"
	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/middleware"
	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/rbac"
	"github.com/pressleaf/biblio/pkg/validation"
)

// loginTokenTTL bounds the lifetime of tokens issued by password
// login. Tokens created through the token management endpoints choose
// their own expiry.
const loginTokenTTL = 24 * time.Hour

// LoginResponse is the JSON body of a successful login.
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// TokenResponse carries a freshly created API token. Token is the
// plaintext secret, shown exactly once.
type TokenResponse struct {
	Token    string      `json:"token"`
	APIToken *auth.Token `json:"api_token"`
}

// AuthHandlers serves registration, login, profile and API token
// management.
type AuthHandlers struct {
	storage            Storage
	tokens             *auth.Manager
	validator          *validation.Validator
	bcryptCost         int
	tokenTTL           time.Duration
	registrationClosed bool
	logger             *observability.Logger
}

// NewAuthHandlers creates the account handlers. A zero bcrypt cost
// falls back to the default.
func NewAuthHandlers(storage Storage, tokens *auth.Manager, opts Options) *AuthHandlers {
	cost := opts.BcryptCost
	if cost == 0 {
		cost = auth.DefaultBcryptCost
	}
	validator := opts.Validator
	if validator == nil {
		validator = validation.NewValidator(nil)
	}
	return &AuthHandlers{
		storage:            storage,
		tokens:             tokens,
		validator:          validator,
		bcryptCost:         cost,
		tokenTTL:           opts.TokenTTL,
		registrationClosed: opts.RegistrationClosed,
		logger:             opts.Logger.WithField("component", "accounts"),
	}
}

// RegisterRoutes mounts the account routes on router. Registration and
// login are public; everything else requires a token.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	router.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	router.Handle("/auth/profile", middleware.RequireAuth(http.HandlerFunc(h.getProfile))).Methods(http.MethodGet)
	router.Handle("/auth/profile", middleware.RequireAuth(http.HandlerFunc(h.updateProfile))).Methods(http.MethodPut)
	router.Handle("/auth/tokens", middleware.RequireAuth(http.HandlerFunc(h.listTokens))).Methods(http.MethodGet)
	router.Handle("/auth/tokens", middleware.RequireAuth(http.HandlerFunc(h.createToken))).Methods(http.MethodPost)
	router.Handle("/auth/tokens/{id}", middleware.RequireAuth(http.HandlerFunc(h.revokeToken))).Methods(http.MethodDelete)
}

// register handles POST /auth/register. New accounts start as members.
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	if h.registrationClosed {
		httputil.WriteForbidden(w, "registration is closed")
		return
	}

	var in validation.RegisterInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	if errs := h.validator.ValidateRegistration(&in); errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to register", errs)
		return
	}

	hash, err := auth.HashPassword(in.Password, h.bcryptCost)
	if err != nil {
		h.logger.WithError(err).Error("Failed to hash password")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to register")
		return
	}

	user := &User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         rbac.RoleMember,
	}
	if err := h.storage.CreateUser(r.Context(), user); err != nil {
		if errs, ok := userConflictErrors(err); ok {
			httputil.WriteFieldErrors(w, "Failed to register", errs)
			return
		}
		writeStorageError(w, h.logger, err, "failed to register")
		return
	}

	h.logger.WithField("username", user.Username).Info("User registered")
	audit.FromContext(r.Context()).Auth(r.Context(), audit.EventTypeAuthRegister,
		&user.ID, user.Username, audit.EventStatusSuccess, "account registered")

	httputil.WriteMessage(w, http.StatusCreated, "User registered successfully", "user", user)
}

// login handles POST /auth/login. A successful login issues a fresh
// expiring API token.
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	if in.Username == "" || in.Password == "" {
		httputil.WriteBadRequest(w, "username and password are required")
		return
	}

	user, err := h.storage.GetUserByUsername(r.Context(), in.Username)
	if errors.Is(err, ErrNotFound) {
		h.failLogin(w, r, in.Username)
		return
	}
	if err != nil {
		writeStorageError(w, h.logger, err, "failed to log in")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, in.Password) {
		h.failLogin(w, r, in.Username)
		return
	}

	expiresAt := time.Now().UTC().Add(loginTokenTTL)
	_, plaintext, err := h.tokens.Issue(r.Context(), user.ID, "login", &expiresAt)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue login token")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	audit.FromContext(r.Context()).Auth(r.Context(), audit.EventTypeAuthLogin,
		&user.ID, user.Username, audit.EventStatusSuccess, "password login")

	httputil.WriteJSON(w, http.StatusOK, &LoginResponse{Token: plaintext, User: user})
}

// failLogin answers a bad username or password. The body never says
// which half was wrong.
func (h *AuthHandlers) failLogin(w http.ResponseWriter, r *http.Request, username string) {
	audit.FromContext(r.Context()).Auth(r.Context(), audit.EventTypeAuthLoginFailed,
		nil, username, audit.EventStatusFailure, "invalid credentials")
	httputil.WriteUnauthorized(w, "invalid username or password")
}

// getProfile handles GET /auth/profile.
func (h *AuthHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	user, err := h.storage.GetUser(r.Context(), identity.UserID)
	if err != nil {
		writeStorageError(w, h.logger, err, "failed to get profile")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

// updateProfile handles PUT /auth/profile. Usernames are immutable;
// an empty password keeps the current one.
func (h *AuthHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	var in validation.ProfileInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	if errs := h.validator.ValidateProfile(&in); errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to update profile", errs)
		return
	}

	user, err := h.storage.GetUser(r.Context(), identity.UserID)
	if err != nil {
		writeStorageError(w, h.logger, err, "failed to update profile")
		return
	}

	user.Email = in.Email
	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password, h.bcryptCost)
		if err != nil {
			h.logger.WithError(err).Error("Failed to hash password")
			httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to update profile")
			return
		}
		user.PasswordHash = hash
	}

	if err := h.storage.UpdateUser(r.Context(), user); err != nil {
		if errs, ok := userConflictErrors(err); ok {
			httputil.WriteFieldErrors(w, "Failed to update profile", errs)
			return
		}
		writeStorageError(w, h.logger, err, "failed to update profile")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeProfileUpdate,
		audit.ResourceTypeUser, strconv.FormatInt(user.ID, 10), user.Username)

	httputil.WriteMessage(w, http.StatusOK, "Profile updated successfully", "user", user)
}

// listTokens handles GET /auth/tokens. Hashes never leave storage.
func (h *AuthHandlers) listTokens(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	tokens, err := h.storage.UserTokens(r.Context(), identity.UserID)
	if err != nil {
		writeStorageError(w, h.logger, err, "failed to list tokens")
		return
	}
	if tokens == nil {
		tokens = []*auth.Token{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"tokens": tokens})
}

// createToken handles POST /auth/tokens.
func (h *AuthHandlers) createToken(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	var in validation.TokenInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	if errs := h.validator.ValidateTokenRequest(&in); errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to create token", errs)
		return
	}

	var expiresAt *time.Time
	if in.ExpiresInDays > 0 {
		t := time.Now().UTC().Add(time.Duration(in.ExpiresInDays) * 24 * time.Hour)
		expiresAt = &t
	} else if h.tokenTTL > 0 {
		t := time.Now().UTC().Add(h.tokenTTL)
		expiresAt = &t
	}

	token, plaintext, err := h.tokens.Issue(r.Context(), identity.UserID, in.Name, expiresAt)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue token")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	audit.FromContext(r.Context()).Auth(r.Context(), audit.EventTypeAuthTokenCreate,
		&identity.UserID, "", audit.EventStatusSuccess, "api token created: "+token.Name)

	httputil.WriteJSON(w, http.StatusCreated, &TokenResponse{Token: plaintext, APIToken: token})
}

// revokeToken handles DELETE /auth/tokens/{id}. Callers can only
// revoke their own tokens; anyone else's answer 404.
func (h *AuthHandlers) revokeToken(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.storage.RevokeToken(r.Context(), id, identity.UserID); err != nil {
		writeStorageError(w, h.logger, err, "failed to revoke token")
		return
	}

	audit.FromContext(r.Context()).Auth(r.Context(), audit.EventTypeAuthTokenRevoke,
		&identity.UserID, "", audit.EventStatusSuccess, "api token revoked")

	httputil.WriteJSON(w, http.StatusOK, httputil.MessageResponse{Message: "Token revoked successfully"})
}

// userConflictErrors translates a uniqueness violation on the users
// table into the field error shape validated writes answer with.
func userConflictErrors(err error) (validation.FieldErrors, bool) {
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Field == "" {
		return nil, false
	}

	errs := validation.NewFieldErrors()
	if conflict.Field == "username" {
		errs.Add("username", "A user with that username already exists.")
	} else {
		errs.Add("email", "A user with that email address already exists.")
	}
	return errs, true
}
