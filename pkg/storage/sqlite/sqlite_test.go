package sqlite

import (
	"context"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/query"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:) error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createAuthor(t *testing.T, s *Store, name string) *api.Author {
	t.Helper()

	author := &api.Author{Name: name}
	if err := s.CreateAuthor(context.Background(), author); err != nil {
		t.Fatalf("CreateAuthor(%q) error = %v", name, err)
	}
	return author
}

func createBook(t *testing.T, s *Store, title string, year int, authorID int64) *api.Book {
	t.Helper()

	book := &api.Book{Title: title, PublicationYear: year, AuthorID: authorID}
	if err := s.CreateBook(context.Background(), book); err != nil {
		t.Fatalf("CreateBook(%q) error = %v", title, err)
	}
	return book
}

func createUser(t *testing.T, s *Store, username, email string) *api.User {
	t.Helper()

	user := &api.User{Username: username, Email: email, PasswordHash: "x", Role: "member"}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser(%q) error = %v", username, err)
	}
	return user
}

// seedCatalog loads a small catalog with three authors. One title
// carries literal % and _ characters for wildcard escaping tests.
func seedCatalog(t *testing.T, s *Store) (leGuin, asimov, butler *api.Author) {
	t.Helper()

	leGuin = createAuthor(t, s, "Ursula K. Le Guin")
	asimov = createAuthor(t, s, "Isaac Asimov")
	butler = createAuthor(t, s, "Octavia Butler")

	createBook(t, s, "The Dispossessed", 1974, leGuin.ID)
	createBook(t, s, "The Left Hand of Darkness", 1969, leGuin.ID)
	createBook(t, s, "Foundation", 1951, asimov.ID)
	createBook(t, s, "The Caves of Steel", 1954, asimov.ID)
	createBook(t, s, "100% Pure_Data", 2020, asimov.ID)
	createBook(t, s, "Kindred", 1979, butler.ID)
	createBook(t, s, "Parable of the Sower", 1993, butler.ID)
	return leGuin, asimov, butler
}

// mustParams runs a raw query string through the real parser so list
// tests exercise the whole pipeline.
func mustParams(t *testing.T, def query.Definition, rawQuery string) query.Params {
	t.Helper()

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		t.Fatalf("ParseQuery(%q) error = %v", rawQuery, err)
	}
	params, err := query.ParseParams(def, values)
	if err != nil {
		t.Fatalf("ParseParams(%q) error = %v", rawQuery, err)
	}
	return params
}

func listBooks(t *testing.T, s *Store, rawQuery string) []*api.Book {
	t.Helper()

	params := mustParams(t, api.BookListQuery, rawQuery)
	books, err := s.ListBooks(context.Background(), params, params.Page)
	if err != nil {
		t.Fatalf("ListBooks(%q) error = %v", rawQuery, err)
	}
	return books
}

func countBooks(t *testing.T, s *Store, rawQuery string) int64 {
	t.Helper()

	count, err := s.CountBooks(context.Background(), mustParams(t, api.BookListQuery, rawQuery))
	if err != nil {
		t.Fatalf("CountBooks(%q) error = %v", rawQuery, err)
	}
	return count
}

func bookTitles(books []*api.Book) []string {
	titles := make([]string, len(books))
	for i, book := range books {
		titles[i] = book.Title
	}
	return titles
}

func equalTitles(t *testing.T, got []*api.Book, want []string) {
	t.Helper()

	titles := bookTitles(got)
	if len(titles) != len(want) {
		t.Fatalf("got %d books %v, want %d %v", len(titles), titles, len(want), want)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("books = %v, want %v", titles, want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Run("opens an in-memory database", func(t *testing.T) {
		store := testStore(t)
		if err := store.Ping(context.Background()); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})

	t.Run("reopening a file keeps existing data", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "biblio.db")

		store, err := New(path)
		if err != nil {
			t.Fatalf("New(%q) error = %v", path, err)
		}
		author := createAuthor(t, store, "Persisted Author")
		store.Close()

		reopened, err := New(path)
		if err != nil {
			t.Fatalf("New(%q) again error = %v", path, err)
		}
		defer reopened.Close()

		got, err := reopened.GetAuthor(context.Background(), author.ID)
		if err != nil {
			t.Fatalf("GetAuthor() after reopen error = %v", err)
		}
		if got.Name != "Persisted Author" {
			t.Errorf("Name = %q, want %q", got.Name, "Persisted Author")
		}
	})

	t.Run("foreign keys are enforced", func(t *testing.T) {
		store := testStore(t)

		book := &api.Book{Title: "Orphan", PublicationYear: 2000, AuthorID: 999}
		if err := store.CreateBook(context.Background(), book); err == nil {
			t.Error("CreateBook() with a missing author should fail")
		}
	})
}
