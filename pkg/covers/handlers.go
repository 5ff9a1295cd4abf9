package covers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/audit"
	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/middleware"
	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/rbac"
)

// BookCatalog is the slice of the storage interface the cover routes
// touch.
type BookCatalog interface {
	GetBook(ctx context.Context, id int64) (*api.Book, error)
	SetBookCover(ctx context.Context, id int64, coverURL string) error
}

// Handlers serves cover uploads and reads. Uploads replace the
// previous cover; the old object is removed once the book row points
// at the new one.
type Handlers struct {
	store   Store
	catalog BookCatalog
	checker *rbac.Checker
	logger  *observability.Logger
}

// NewHandlers creates the cover handlers.
func NewHandlers(store Store, catalog BookCatalog, checker *rbac.Checker, logger *observability.Logger) *Handlers {
	return &Handlers{
		store:   store,
		catalog: catalog,
		checker: checker,
		logger:  logger.WithField("component", "covers"),
	}
}

// RegisterRoutes mounts the book cover routes. Reading redirects to
// the stored object; uploading needs the book edit grant.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/books/{id}/cover", h.getCover).Methods(http.MethodGet)
	router.Handle("/books/{id}/cover",
		middleware.RequirePermission(h.checker, rbac.ResourceBook, rbac.ActionEdit)(http.HandlerFunc(h.uploadCover)),
	).Methods(http.MethodPut)
}

// RegisterFileRoutes mounts the object route the filesystem store's
// URLs point at. S3 deployments skip it since clients fetch from the
// bucket directly.
func (h *Handlers) RegisterFileRoutes(router *mux.Router) {
	router.HandleFunc("/covers/{key}", h.serveCover).Methods(http.MethodGet)
}

// getCover handles GET /books/{id}/cover with a redirect to wherever
// the cover lives.
func (h *Handlers) getCover(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	book, err := h.catalog.GetBook(r.Context(), id)
	if err != nil {
		h.writeCatalogError(w, err, "failed to get cover")
		return
	}
	if book.CoverURL == "" {
		httputil.WriteNotFoundError(w, "book has no cover")
		return
	}

	http.Redirect(w, r, book.CoverURL, http.StatusFound)
}

// uploadCover handles PUT /books/{id}/cover. The raw image is the
// request body; the Content-Type header picks the extension.
func (h *Handlers) uploadCover(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	book, err := h.catalog.GetBook(r.Context(), id)
	if err != nil {
		h.writeCatalogError(w, err, "failed to upload cover")
		return
	}

	key, err := NewKey(r.Header.Get("Content-Type"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.store.Put(r.Context(), key, r.Body, ContentType(key)); err != nil {
		h.logger.WithError(err).Error("Failed to store cover")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to store cover")
		return
	}

	coverURL := h.store.URL(key)
	if err := h.catalog.SetBookCover(r.Context(), id, coverURL); err != nil {
		// The book row still points at the old cover, so the new
		// object is orphaned. Remove it.
		if delErr := h.store.Delete(r.Context(), key); delErr != nil {
			h.logger.WithError(delErr).WithField("key", key).Warn("Failed to remove orphaned cover")
		}
		h.writeCatalogError(w, err, "failed to upload cover")
		return
	}

	h.deleteReplaced(r.Context(), book.CoverURL)

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeCoverUpload,
		audit.ResourceTypeCover, strconv.FormatInt(id, 10), key)
	h.logger.WithFields(map[string]interface{}{
		"book_id": id,
		"key":     key,
	}).Info("Cover uploaded")

	httputil.WriteMessage(w, http.StatusOK, "Cover uploaded successfully", "cover_url", coverURL)
}

// serveCover handles GET /covers/{key}, streaming the object from the
// store. Keys are minted per upload and never reused, so responses are
// immutable.
func (h *Handlers) serveCover(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	content, contentType, err := h.store.Open(r.Context(), key)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFoundError(w, "cover not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("key", key).Error("Failed to open cover")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to read cover")
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, content); err != nil {
		h.logger.WithError(err).WithField("key", key).Warn("Failed to stream cover")
	}
}

// deleteReplaced removes the object a replaced cover URL points at.
// Only URLs shaped like the filesystem store's are acted on; failures
// leave an orphaned object behind, which is harmless.
func (h *Handlers) deleteReplaced(ctx context.Context, oldURL string) {
	if oldURL == "" {
		return
	}
	oldKey := path.Base(oldURL)
	if !validKey(oldKey) {
		return
	}
	if err := h.store.Delete(ctx, oldKey); err != nil {
		h.logger.WithError(err).WithField("key", oldKey).Warn("Failed to remove replaced cover")
	}
}

// writeCatalogError maps a catalog lookup failure onto the error
// envelope.
func (h *Handlers) writeCatalogError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, api.ErrNotFound) {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}
	h.logger.WithError(err).Error("Catalog lookup failed")
	httputil.WriteErrorMessage(w, http.StatusInternalServerError, message)
}
