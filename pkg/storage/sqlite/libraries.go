package sqlite

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

// CreateLibrary inserts library and fills in its id and timestamp.
func (s *Store) CreateLibrary(ctx context.Context, library *api.Library) error {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO libraries (name, created_at) VALUES (?, ?)",
		library.Name, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create library: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read library id: %w", err)
	}

	library.ID = id
	library.CreatedAt = now
	return nil
}

// GetLibrary returns one library with its shelf and librarian
// embedded. A library without a librarian is not an error.
func (s *Store) GetLibrary(ctx context.Context, id int64) (*api.Library, error) {
	var l api.Library
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM libraries WHERE id = ?",
		id,
	).Scan(&l.ID, &l.Name, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "library", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get library: %w", err)
	}

	books, err := s.libraryBooks(ctx, id)
	if err != nil {
		return nil, err
	}
	l.Books = books

	librarian, err := s.GetLibrarian(ctx, id)
	switch {
	case err == nil:
		l.Librarian = librarian
	case errors.Is(err, api.ErrNotFound):
	default:
		return nil, err
	}
	return &l, nil
}

// UpdateLibrary writes the library's name.
func (s *Store) UpdateLibrary(ctx context.Context, library *api.Library) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE libraries SET name = ? WHERE id = ?",
		library.Name, library.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update library: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "library", ID: library.ID}
	}
	return nil
}

// DeleteLibrary removes one library along with its shelf rows and
// librarian assignment. The books themselves survive.
func (s *Store) DeleteLibrary(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM libraries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete library: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "library", ID: id}
	}
	return nil
}

// ListLibraries returns one page of libraries for the given
// parameters. Shelves and librarians are not embedded on the list
// side.
func (s *Store) ListLibraries(ctx context.Context, p query.Params, page int) ([]*api.Library, error) {
	def := api.LibraryListQuery

	sb := squirrel.Select("l.id", "l.name", "l.created_at").
		From("libraries l")
	sb = def.ApplyFilters(sb, p)
	sb = def.ApplyOrder(sb, p)
	sb = query.ApplyPage(sb, page, def.PageSize)

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build library list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query libraries: %w", err)
	}
	defer rows.Close()

	var libraries []*api.Library
	for rows.Next() {
		var l api.Library
		if err := rows.Scan(&l.ID, &l.Name, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan library: %w", err)
		}
		libraries = append(libraries, &l)
	}
	return libraries, rows.Err()
}

// CountLibraries returns how many libraries match the given
// parameters.
func (s *Store) CountLibraries(ctx context.Context, p query.Params) (int64, error) {
	def := api.LibraryListQuery

	sb := squirrel.Select("COUNT(*)").From("libraries l")
	sb = def.ApplyFilters(sb, p)

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build library count query: %w", err)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count libraries: %w", err)
	}
	return count, nil
}

// AddLibraryBook puts a book on a library's shelf. Adding a book that
// is already shelved is a no-op, not an error.
func (s *Store) AddLibraryBook(ctx context.Context, libraryID, bookID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO library_books (library_id, book_id) VALUES (?, ?)",
		libraryID, bookID,
	)
	if err != nil {
		return fmt.Errorf("failed to add library book: %w", err)
	}
	return nil
}

// RemoveLibraryBook takes a book off a library's shelf. Removing a
// book that is not shelved reports the missing row.
func (s *Store) RemoveLibraryBook(ctx context.Context, libraryID, bookID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM library_books WHERE library_id = ? AND book_id = ?",
		libraryID, bookID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove library book: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "library book", ID: bookID}
	}
	return nil
}

// AssignLibrarian makes userID the librarian of libraryID, replacing
// any previous assignment. A library has at most one librarian.
func (s *Store) AssignLibrarian(ctx context.Context, libraryID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO librarians (user_id, library_id) VALUES (?, ?)
		 ON CONFLICT(library_id) DO UPDATE SET user_id = excluded.user_id`,
		userID, libraryID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign librarian: %w", err)
	}
	return nil
}

// GetLibrarian returns the librarian assignment for one library.
func (s *Store) GetLibrarian(ctx context.Context, libraryID int64) (*api.Librarian, error) {
	var l api.Librarian
	err := s.db.QueryRowContext(ctx,
		`SELECT lb.id, lb.user_id, u.username, lb.library_id
		 FROM librarians lb JOIN users u ON u.id = lb.user_id WHERE lb.library_id = ?`,
		libraryID,
	).Scan(&l.ID, &l.UserID, &l.Username, &l.LibraryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "librarian"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get librarian: %w", err)
	}
	return &l, nil
}

func (s *Store) libraryBooks(ctx context.Context, libraryID int64) ([]*api.Book, error) {
	sb := squirrel.Select(bookColumns...).
		From("books b").
		Join("authors a ON a.id = b.author_id").
		Join("library_books lb ON lb.book_id = b.id").
		Where(squirrel.Eq{"lb.library_id": libraryID})
	sb = api.BookListQuery.ApplyOrder(sb, query.Params{})

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build shelf query: %w", err)
	}

	return s.queryBooks(ctx, sqlStr, args...)
}
