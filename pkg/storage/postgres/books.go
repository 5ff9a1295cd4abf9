package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/query"
)

var bookColumns = []string{
	"b.id",
	"b.title",
	"b.publication_year",
	"b.author_id",
	"a.name",
	"b.isbn",
	"b.description",
	"b.cover_url",
	"b.created_at",
	"b.updated_at",
}

func scanBook(row rowScanner) (*api.Book, error) {
	var b api.Book
	err := row.Scan(
		&b.ID,
		&b.Title,
		&b.PublicationYear,
		&b.AuthorID,
		&b.AuthorName,
		&b.ISBN,
		&b.Description,
		&b.CoverURL,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBook inserts book and fills in its id, author name and
// timestamps. A duplicate title for the same author is a conflict.
func (s *Store) CreateBook(ctx context.Context, book *api.Book) error {
	now := time.Now().UTC()

	err := s.conns.Primary().QueryRowContext(ctx,
		`INSERT INTO books (title, publication_year, author_id, isbn, description, cover_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		book.Title, book.PublicationYear, book.AuthorID, book.ISBN, book.Description, book.CoverURL, now, now,
	).Scan(&book.ID)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return &api.ConflictError{Message: "book with this title already exists for this author"}
		}
		return fmt.Errorf("failed to create book: %w", err)
	}

	book.CreatedAt = now
	book.UpdatedAt = now

	// Read back on the primary so a lagging replica cannot lose the
	// name we just joined against.
	err = s.conns.Primary().QueryRowContext(ctx, "SELECT name FROM authors WHERE id = $1", book.AuthorID).Scan(&book.AuthorName)
	if err != nil {
		return fmt.Errorf("failed to read author name: %w", err)
	}
	return nil
}

// GetBook returns one book with its author name embedded.
func (s *Store) GetBook(ctx context.Context, id int64) (*api.Book, error) {
	row := s.conns.Replica().QueryRowContext(ctx,
		"SELECT "+strings.Join(bookColumns, ", ")+" FROM books b JOIN authors a ON a.id = b.author_id WHERE b.id = $1",
		id,
	)

	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "book", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// GetBooksByIDs returns the books whose ids are in ids. Missing ids
// are skipped, not an error.
func (s *Store) GetBooksByIDs(ctx context.Context, ids []int64) ([]*api.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sqlStr, args, err := psql.Select(bookColumns...).
		From("books b").
		Join("authors a ON a.id = b.author_id").
		Where(squirrel.Eq{"b.id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build book lookup query: %w", err)
	}

	return s.queryBooks(ctx, s.conns.Replica(), sqlStr, args...)
}

// UpdateBook writes the mutable fields of book. The cover is managed
// separately through SetBookCover so updates cannot clear it.
func (s *Store) UpdateBook(ctx context.Context, book *api.Book) error {
	now := time.Now().UTC()

	res, err := s.conns.Primary().ExecContext(ctx,
		`UPDATE books SET title = $1, publication_year = $2, author_id = $3, isbn = $4, description = $5, updated_at = $6
		 WHERE id = $7`,
		book.Title, book.PublicationYear, book.AuthorID, book.ISBN, book.Description, now, book.ID,
	)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return &api.ConflictError{Message: "book with this title already exists for this author"}
		}
		return fmt.Errorf("failed to update book: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "book", ID: book.ID}
	}

	book.UpdatedAt = now

	err = s.conns.Primary().QueryRowContext(ctx, "SELECT name FROM authors WHERE id = $1", book.AuthorID).Scan(&book.AuthorName)
	if err != nil {
		return fmt.Errorf("failed to read author name: %w", err)
	}
	return nil
}

// DeleteBook removes one book.
func (s *Store) DeleteBook(ctx context.Context, id int64) error {
	res, err := s.conns.Primary().ExecContext(ctx, "DELETE FROM books WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "book", ID: id}
	}
	return nil
}

// ListBooks returns one page of books for the given parameters.
func (s *Store) ListBooks(ctx context.Context, p query.Params, page int) ([]*api.Book, error) {
	def := api.BookListQuery

	sb := psql.Select(bookColumns...).
		From("books b").
		Join("authors a ON a.id = b.author_id")
	sb = def.ApplyFilters(sb, p)
	sb = def.ApplyOrder(sb, p)
	sb = query.ApplyPage(sb, page, def.PageSize)

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build book list query: %w", err)
	}

	return s.queryBooks(ctx, s.conns.Replica(), sqlStr, args...)
}

// CountBooks returns how many books match the given parameters. The
// author join stays because search may touch the author name.
func (s *Store) CountBooks(ctx context.Context, p query.Params) (int64, error) {
	def := api.BookListQuery

	sb := psql.Select("COUNT(*)").
		From("books b").
		Join("authors a ON a.id = b.author_id")
	sb = def.ApplyFilters(sb, p)

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build book count query: %w", err)
	}

	var count int64
	if err := s.conns.Replica().QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count books: %w", err)
	}
	return count, nil
}

// SetBookCover records the public URL of an uploaded cover image.
func (s *Store) SetBookCover(ctx context.Context, id int64, coverURL string) error {
	res, err := s.conns.Primary().ExecContext(ctx,
		"UPDATE books SET cover_url = $1, updated_at = $2 WHERE id = $3",
		coverURL, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set book cover: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "book", ID: id}
	}
	return nil
}

func (s *Store) queryBooks(ctx context.Context, db *sql.DB, sqlStr string, args ...interface{}) ([]*api.Book, error) {
	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []*api.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}
