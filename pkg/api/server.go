package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pressleaf/biblio/pkg/audit"
	"github.com/pressleaf/biblio/pkg/auth"
	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/middleware"
	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/query"
	"github.com/pressleaf/biblio/pkg/rbac"
	"github.com/pressleaf/biblio/pkg/validation"
)

// UsageTracker receives catalog activity for the popularity rankings.
// Calls must not block the request; a nil tracker disables tracking.
type UsageTracker interface {
	BookViewed(ctx context.Context, bookID int64)
	AuthorViewed(ctx context.Context, authorID int64)
	MutationRecorded(ctx context.Context, resource string)
}

// Options carries the server's collaborators beyond storage. Tokens,
// Checker and Logger are required; the rest degrade gracefully when
// absent.
type Options struct {
	Tokens     *auth.Manager
	Checker    *rbac.Checker
	Validator  *validation.Validator
	Usage      UsageTracker
	AuditStore audit.Store
	BcryptCost int
	Logger     *observability.Logger

	// TokenTTL bounds API tokens created without an explicit expiry.
	// Zero means such tokens never expire.
	TokenTTL time.Duration

	// RegistrationClosed turns off POST /auth/register.
	RegistrationClosed bool
}

// Server is the HTTP API over the catalog, blog, library and account
// domains. Reads are public; every mutation passes through the
// authentication middleware and a permission gate before its handler
// runs.
type Server struct {
	storage    Storage
	router     *mux.Router
	api        *mux.Router
	checker    *rbac.Checker
	validator  *validation.Validator
	usage      UsageTracker
	auditStore audit.Store
	accounts   *AuthHandlers
	logger     *observability.Logger
}

// NewServer assembles the API server and its routes.
func NewServer(storage Storage, opts Options) *Server {
	if opts.Validator == nil {
		opts.Validator = validation.NewValidator(nil)
	}

	s := &Server{
		storage:    storage,
		router:     mux.NewRouter(),
		checker:    opts.Checker,
		validator:  opts.Validator,
		usage:      opts.Usage,
		auditStore: opts.AuditStore,
		logger:     opts.Logger.WithField("component", "api"),
	}
	s.accounts = NewAuthHandlers(storage, opts.Tokens, opts)

	authMW := middleware.NewAuthMiddleware(opts.Tokens, opts.Logger)
	s.router.Use(authMW.Authenticate)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "not found")
	})

	s.api = s.router.PathPrefix("/api/v1").Subrouter()
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes.
func (s *Server) setupRoutes() {
	can := func(resource rbac.Resource, action rbac.Action) func(http.Handler) http.Handler {
		return middleware.RequirePermission(s.checker, resource, action)
	}

	// Catalog routes
	s.api.HandleFunc("/books", s.listBooks).Methods("GET")
	s.api.Handle("/books", can(rbac.ResourceBook, rbac.ActionCreate)(http.HandlerFunc(s.createBook))).Methods("POST")
	s.api.HandleFunc("/books/{id}", s.getBook).Methods("GET")
	s.api.Handle("/books/{id}", can(rbac.ResourceBook, rbac.ActionEdit)(http.HandlerFunc(s.updateBook))).Methods("PUT")
	s.api.Handle("/books/{id}", can(rbac.ResourceBook, rbac.ActionDelete)(http.HandlerFunc(s.deleteBook))).Methods("DELETE")

	s.api.HandleFunc("/authors", s.listAuthors).Methods("GET")
	s.api.Handle("/authors", can(rbac.ResourceAuthor, rbac.ActionCreate)(http.HandlerFunc(s.createAuthor))).Methods("POST")
	s.api.HandleFunc("/authors/{id}", s.getAuthor).Methods("GET")
	s.api.Handle("/authors/{id}", can(rbac.ResourceAuthor, rbac.ActionEdit)(http.HandlerFunc(s.updateAuthor))).Methods("PUT")
	s.api.Handle("/authors/{id}", can(rbac.ResourceAuthor, rbac.ActionDelete)(http.HandlerFunc(s.deleteAuthor))).Methods("DELETE")

	// Blog routes. Post and comment updates/deletes gate on ownership
	// inside the handler, so the route only requires authentication.
	s.api.HandleFunc("/posts", s.listPosts).Methods("GET")
	s.api.Handle("/posts", can(rbac.ResourcePost, rbac.ActionCreate)(http.HandlerFunc(s.createPost))).Methods("POST")
	s.api.HandleFunc("/posts/{id}", s.getPost).Methods("GET")
	s.api.Handle("/posts/{id}", middleware.RequireAuth(http.HandlerFunc(s.updatePost))).Methods("PUT")
	s.api.Handle("/posts/{id}", middleware.RequireAuth(http.HandlerFunc(s.deletePost))).Methods("DELETE")

	s.api.HandleFunc("/posts/{id}/comments", s.listComments).Methods("GET")
	s.api.Handle("/posts/{id}/comments", can(rbac.ResourceComment, rbac.ActionCreate)(http.HandlerFunc(s.createComment))).Methods("POST")
	s.api.Handle("/comments/{id}", middleware.RequireAuth(http.HandlerFunc(s.updateComment))).Methods("PUT")
	s.api.Handle("/comments/{id}", middleware.RequireAuth(http.HandlerFunc(s.deleteComment))).Methods("DELETE")

	// Library routes. Shelf mutations additionally check the caller's
	// branch assignment inside the handler.
	s.api.HandleFunc("/libraries", s.listLibraries).Methods("GET")
	s.api.Handle("/libraries", can(rbac.ResourceLibrary, rbac.ActionCreate)(http.HandlerFunc(s.createLibrary))).Methods("POST")
	s.api.HandleFunc("/libraries/{id}", s.getLibrary).Methods("GET")
	s.api.Handle("/libraries/{id}", can(rbac.ResourceLibrary, rbac.ActionEdit)(http.HandlerFunc(s.updateLibrary))).Methods("PUT")
	s.api.Handle("/libraries/{id}", can(rbac.ResourceLibrary, rbac.ActionDelete)(http.HandlerFunc(s.deleteLibrary))).Methods("DELETE")
	s.api.Handle("/libraries/{id}/books/{bookID}", can(rbac.ResourceShelf, rbac.ActionCreate)(http.HandlerFunc(s.shelveBook))).Methods("POST")
	s.api.Handle("/libraries/{id}/books/{bookID}", can(rbac.ResourceShelf, rbac.ActionDelete)(http.HandlerFunc(s.unshelveBook))).Methods("DELETE")
	s.api.Handle("/libraries/{id}/librarian", can(rbac.ResourceLibrary, rbac.ActionAssignRole)(http.HandlerFunc(s.assignLibrarian))).Methods("PUT")

	// Admin routes
	admin := s.api.PathPrefix("/admin").Subrouter()
	admin.Handle("/roles", middleware.RequireRole(s.checker, rbac.RoleAdmin)(http.HandlerFunc(s.listRoles))).Methods("GET")
	admin.Handle("/users/{id}/role", can(rbac.ResourceUser, rbac.ActionAssignRole)(http.HandlerFunc(s.setUserRole))).Methods("PUT")
	admin.Handle("/audit", can(rbac.ResourceAudit, rbac.ActionView)(http.HandlerFunc(s.searchAudit))).Methods("GET")

	// Account routes live at the root, outside /api/v1
	s.accounts.RegisterRoutes(s.router)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router so the binary can mount
// operational endpoints such as /metrics and the health checks.
func (s *Server) Router() *mux.Router {
	return s.router
}

// RouteRegistrar is an interface for types that can register routes.
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes mounts a registrar at the router root.
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// RegisterAPI mounts a registrar under the /api/v1 prefix.
func (s *Server) RegisterAPI(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.api)
}

// servePage runs the pipeline shared by every collection endpoint:
// parse the query, count the filtered set, resolve the requested page,
// fetch it and build the envelope. An unsatisfiable page answers 404
// with the bare detail body.
func servePage[T any](s *Server, w http.ResponseWriter, r *http.Request, def query.Definition,
	count func(context.Context, query.Params) (int64, error),
	fetch func(context.Context, query.Params, int) ([]T, error),
) {
	params, err := query.ParseParams(def, r.URL.Query())
	if err != nil {
		httputil.WriteDetail(w, http.StatusNotFound, "Invalid page.")
		return
	}

	total, err := count(r.Context(), params)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to list records")
		return
	}

	page, err := query.ResolvePage(params, total, def.PageSize)
	if err != nil {
		httputil.WriteDetail(w, http.StatusNotFound, "Invalid page.")
		return
	}

	results, err := fetch(r.Context(), params, page)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to list records")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, query.NewPage(r, page, def.PageSize, total, results))
}

// writeStorageError maps a storage failure onto the error envelope:
// missing records answer 404, uniqueness violations 409, anything else
// a logged 500 with a generic message.
func writeStorageError(w http.ResponseWriter, logger *observability.Logger, err error, message string) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, ErrConflict):
		httputil.WriteConflict(w, err.Error())
	default:
		logger.WithError(err).Error("Storage operation failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, message)
	}
}

// mayTouchOwned reports whether userID may modify a record owned by
// ownerID: owners always pass, anyone else needs the moderate grant on
// the resource.
func (s *Server) mayTouchOwned(ctx context.Context, userID, ownerID int64, resource rbac.Resource) (bool, error) {
	if userID == ownerID {
		return true, nil
	}
	return s.checker.Can(ctx, userID, resource, rbac.ActionModerate)
}
