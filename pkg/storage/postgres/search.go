package postgres

import (
	"context"
	"fmt"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/query"
	"github.com/pressleaf/biblio/pkg/search"
)

// SearchBooks returns up to limit books matching q, ordered by title.
// Searches read from a replica.
func (s *Store) SearchBooks(ctx context.Context, q *search.Query, limit int) ([]*api.Book, error) {
	sb := psql.Select(bookColumns...).
		From("books b").
		Join("authors a ON a.id = b.author_id")
	for _, cond := range q.BookConditions() {
		sb = sb.Where(cond)
	}
	sb = sb.OrderBy("b.title ASC").Limit(uint64(limit))

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build book search query: %w", err)
	}

	return s.queryBooks(ctx, s.conns.Replica(), sqlStr, args...)
}

// SearchAuthors returns up to limit authors matching q, ordered by
// name.
func (s *Store) SearchAuthors(ctx context.Context, q *search.Query, limit int) ([]*api.Author, error) {
	sb := psql.Select("a.id", "a.name", "a.created_at", "a.updated_at").
		From("authors a")
	for _, cond := range q.AuthorConditions() {
		sb = sb.Where(cond)
	}
	sb = sb.OrderBy("a.name ASC").Limit(uint64(limit))

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build author search query: %w", err)
	}

	rows, err := s.conns.Replica().QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search authors: %w", err)
	}
	defer rows.Close()

	var authors []*api.Author
	for rows.Next() {
		var a api.Author
		if err := rows.Scan(&a.ID, &a.Name, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan author: %w", err)
		}
		authors = append(authors, &a)
	}
	return authors, rows.Err()
}

// SuggestTitles returns up to limit distinct titles starting with
// prefix, for the search suggestion strings.
func (s *Store) SuggestTitles(ctx context.Context, prefix string, limit int) ([]string, error) {
	sqlStr, args, err := psql.Select("DISTINCT title").
		From("books").
		Where(query.IPrefix("title", prefix)).
		OrderBy("title ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build suggestion query: %w", err)
	}

	rows, err := s.conns.Replica().QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}
