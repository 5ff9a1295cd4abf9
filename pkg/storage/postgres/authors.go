package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/query"
)

// CreateAuthor inserts author and fills in its id and timestamps.
func (s *Store) CreateAuthor(ctx context.Context, author *api.Author) error {
	now := time.Now().UTC()

	err := s.conns.Primary().QueryRowContext(ctx,
		"INSERT INTO authors (name, created_at, updated_at) VALUES ($1, $2, $3) RETURNING id",
		author.Name, now, now,
	).Scan(&author.ID)
	if err != nil {
		return fmt.Errorf("failed to create author: %w", err)
	}

	author.CreatedAt = now
	author.UpdatedAt = now
	return nil
}

// GetAuthor returns one author with their books embedded, newest
// publication first.
func (s *Store) GetAuthor(ctx context.Context, id int64) (*api.Author, error) {
	var a api.Author
	err := s.conns.Replica().QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at FROM authors WHERE id = $1",
		id,
	).Scan(&a.ID, &a.Name, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "author", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get author: %w", err)
	}

	books, err := s.ListBooksByAuthor(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Books = books
	return &a, nil
}

// UpdateAuthor writes the author's name.
func (s *Store) UpdateAuthor(ctx context.Context, author *api.Author) error {
	now := time.Now().UTC()

	res, err := s.conns.Primary().ExecContext(ctx,
		"UPDATE authors SET name = $1, updated_at = $2 WHERE id = $3",
		author.Name, now, author.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update author: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "author", ID: author.ID}
	}

	author.UpdatedAt = now
	return nil
}

// DeleteAuthor removes one author and, through the foreign key, all of
// their books.
func (s *Store) DeleteAuthor(ctx context.Context, id int64) error {
	res, err := s.conns.Primary().ExecContext(ctx, "DELETE FROM authors WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete author: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "author", ID: id}
	}
	return nil
}

// ListAuthors returns one page of authors for the given parameters.
func (s *Store) ListAuthors(ctx context.Context, p query.Params, page int) ([]*api.Author, error) {
	def := api.AuthorListQuery

	sb := psql.Select("a.id", "a.name", "a.created_at", "a.updated_at").
		From("authors a")
	sb = def.ApplyFilters(sb, p)
	sb = def.ApplyOrder(sb, p)
	sb = query.ApplyPage(sb, page, def.PageSize)

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build author list query: %w", err)
	}

	rows, err := s.conns.Replica().QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query authors: %w", err)
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

// CountAuthors returns how many authors match the given parameters.
func (s *Store) CountAuthors(ctx context.Context, p query.Params) (int64, error) {
	def := api.AuthorListQuery

	sb := psql.Select("COUNT(*)").From("authors a")
	sb = def.ApplyFilters(sb, p)

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build author count query: %w", err)
	}

	var count int64
	if err := s.conns.Replica().QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count authors: %w", err)
	}
	return count, nil
}

// ListBooksByAuthor returns every book by one author in the default
// book ordering.
func (s *Store) ListBooksByAuthor(ctx context.Context, authorID int64) ([]*api.Book, error) {
	sb := psql.Select(bookColumns...).
		From("books b").
		Join("authors a ON a.id = b.author_id").
		Where(squirrel.Eq{"b.author_id": authorID})
	sb = api.BookListQuery.ApplyOrder(sb, query.Params{})

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build author books query: %w", err)
	}

	return s.queryBooks(ctx, s.conns.Replica(), sqlStr, args...)
}
