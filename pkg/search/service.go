package search

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/observability"
)

var tracer = otel.Tracer("biblio/search")

const (
	defaultLimit    = 20
	maxLimit        = 100
	suggestionLimit = 5
)

// Catalog is the slice of the storage layer search reads from. Both
// store backends implement it.
type Catalog interface {
	SearchBooks(ctx context.Context, q *Query, limit int) ([]*api.Book, error)
	SearchAuthors(ctx context.Context, q *Query, limit int) ([]*api.Author, error)
	SuggestTitles(ctx context.Context, prefix string, limit int) ([]string, error)
}

// Service answers catalog searches with grouped book and author hits.
type Service struct {
	catalog Catalog
	logger  *observability.Logger
}

// NewService creates the search service.
func NewService(catalog Catalog, logger *observability.Logger) *Service {
	return &Service{
		catalog: catalog,
		logger:  logger.WithField("component", "search"),
	}
}

// Response groups the hits for one search. The slices are never nil so
// empty groups serialize as [].
type Response struct {
	Query       string        `json:"query"`
	Books       []*api.Book   `json:"books"`
	Authors     []*api.Author `json:"authors"`
	Suggestions []string      `json:"suggestions"`
	TotalCount  int           `json:"total_count"`
}

// Search parses raw and runs it against the catalog. Author hits are
// skipped when the query carries a book-only filter. Suggestion
// failures degrade to an empty list rather than failing the search.
func (s *Service) Search(ctx context.Context, raw string, limit int) (*Response, error) {
	ctx, span := tracer.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("query", raw),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	q, err := Parse(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse query")
		return nil, err
	}

	resp := &Response{
		Query:       raw,
		Books:       []*api.Book{},
		Authors:     []*api.Author{},
		Suggestions: []string{},
	}
	if q.IsEmpty() {
		return resp, nil
	}

	span.SetAttributes(
		attribute.Bool("has_filters", q.HasFilters()),
		attribute.Int("term_count", len(q.Terms)),
	)

	books, err := s.catalog.SearchBooks(ctx, q, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to search books")
		return nil, fmt.Errorf("failed to search books: %w", err)
	}
	resp.Books = append(resp.Books, books...)

	if !q.BooksOnly() {
		authors, err := s.catalog.SearchAuthors(ctx, q, limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to search authors")
			return nil, fmt.Errorf("failed to search authors: %w", err)
		}
		resp.Authors = append(resp.Authors, authors...)
	}

	resp.Suggestions = append(resp.Suggestions, s.suggest(ctx, q)...)
	resp.TotalCount = len(resp.Books) + len(resp.Authors)

	span.SetAttributes(
		attribute.Int("book_count", len(resp.Books)),
		attribute.Int("author_count", len(resp.Authors)),
	)
	span.SetStatus(codes.Ok, "search completed")

	return resp, nil
}

// suggest returns title completions for the most specific text the
// query carries.
func (s *Service) suggest(ctx context.Context, q *Query) []string {
	prefix := q.Title
	if prefix == "" && len(q.Terms) > 0 {
		prefix = q.Terms[0]
	}
	if prefix == "" {
		return nil
	}

	suggestions, err := s.catalog.SuggestTitles(ctx, prefix, suggestionLimit)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load search suggestions")
		return nil
	}
	return suggestions
}
