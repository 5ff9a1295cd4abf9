package stats

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/observability"
)

const (
	defaultPopularLimit = 10
	maxPopularLimit     = 50
)

// BookLoader resolves book ids from the ranking into full records.
// Both stores satisfy it.
type BookLoader interface {
	GetBooksByIDs(ctx context.Context, ids []int64) ([]*api.Book, error)
}

// PopularBook is one entry in the popular-books response.
type PopularBook struct {
	Book  *api.Book `json:"book"`
	Views int64     `json:"views"`
}

// PopularResponse is the JSON body of GET /stats/popular.
type PopularResponse struct {
	Results []*PopularBook `json:"results"`
}

// Handlers exposes the stats endpoints.
type Handlers struct {
	tracker *Tracker
	books   BookLoader
	logger  *observability.Logger
}

// NewHandlers creates stats handlers over tracker and books. tracker
// may be nil when Redis is not configured; the endpoints then report
// empty results.
func NewHandlers(tracker *Tracker, books BookLoader, logger *observability.Logger) *Handlers {
	return &Handlers{
		tracker: tracker,
		books:   books,
		logger:  logger.WithField("component", "stats"),
	}
}

// RegisterRoutes mounts the stats endpoints on router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/stats/popular", h.popular).Methods(http.MethodGet)
}

// popular handles GET /stats/popular. Books that were deleted since
// they were viewed drop out of the ranking rather than appearing as
// holes.
func (h *Handlers) popular(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := httputil.ParseQueryInt(r, "limit", defaultPopularLimit)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "limit must be a number")
		return
	}
	if limit <= 0 {
		limit = defaultPopularLimit
	}
	if limit > maxPopularLimit {
		limit = maxPopularLimit
	}

	counts, err := h.tracker.PopularBooks(ctx, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load view ranking")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "statistics are unavailable")
		return
	}

	resp := &PopularResponse{Results: []*PopularBook{}}
	if len(counts) == 0 {
		httputil.WriteJSON(w, http.StatusOK, resp)
		return
	}

	ids := make([]int64, 0, len(counts))
	for _, c := range counts {
		ids = append(ids, c.BookID)
	}
	books, err := h.books.GetBooksByIDs(ctx, ids)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load books for view ranking")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "statistics are unavailable")
		return
	}

	byID := make(map[int64]*api.Book, len(books))
	for _, book := range books {
		byID[book.ID] = book
	}
	for _, c := range counts {
		book, ok := byID[c.BookID]
		if !ok {
			continue
		}
		resp.Results = append(resp.Results, &PopularBook{Book: book, Views: c.Views})
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}
