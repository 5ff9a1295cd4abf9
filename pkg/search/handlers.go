package search

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/stats"
)

// Handlers serves the catalog search endpoint.
type Handlers struct {
	service *Service
	tracker *stats.Tracker
	logger  *observability.Logger
}

// NewHandlers creates the search handlers. tracker may be nil when
// usage stats are not configured.
func NewHandlers(service *Service, tracker *stats.Tracker, logger *observability.Logger) *Handlers {
	return &Handlers{
		service: service,
		tracker: tracker,
		logger:  logger.WithField("component", "search"),
	}
}

// RegisterRoutes mounts the search routes on router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/search", h.search).Methods("GET")
}

// search handles GET /search?q=
func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("q"))
	if raw == "" {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "limit must be a number")
		return
	}

	resp, err := h.service.Search(r.Context(), raw, limit)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			httputil.WriteErrorMessage(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		h.logger.WithError(err).Error("Search failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "search is unavailable")
		return
	}

	h.tracker.SearchPerformed(r.Context())
	httputil.WriteJSON(w, http.StatusOK, resp)
}
