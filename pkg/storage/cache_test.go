package storage

import (
	"context"
	"io"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/auth"
	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/query"
)

// countingStore records how often each method runs so tests can tell
// cache hits from database reads. api.Storage is embedded so only the
// methods under test need stubs.
type countingStore struct {
	api.Storage

	mu       sync.Mutex
	books    map[int64]*api.Book
	authors  map[int64]*api.Author
	posts    map[int64]*api.Post
	comments map[int64]*api.Comment
	tokens   map[string]*auth.Token
	calls    map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{
		books:    make(map[int64]*api.Book),
		authors:  make(map[int64]*api.Author),
		posts:    make(map[int64]*api.Post),
		comments: make(map[int64]*api.Comment),
		tokens:   make(map[string]*auth.Token),
		calls:    make(map[string]int),
	}
}

func (s *countingStore) count(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[method]++
}

func (s *countingStore) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *countingStore) CreateBook(ctx context.Context, book *api.Book) error {
	s.count("CreateBook")
	s.books[book.ID] = book
	return nil
}

func (s *countingStore) GetBook(ctx context.Context, id int64) (*api.Book, error) {
	s.count("GetBook")
	book, ok := s.books[id]
	if !ok {
		return nil, &api.NotFoundError{Resource: "book", ID: id}
	}
	return book, nil
}

func (s *countingStore) UpdateBook(ctx context.Context, book *api.Book) error {
	s.count("UpdateBook")
	s.books[book.ID] = book
	return nil
}

func (s *countingStore) DeleteBook(ctx context.Context, id int64) error {
	s.count("DeleteBook")
	delete(s.books, id)
	return nil
}

func (s *countingStore) ListBooks(ctx context.Context, p query.Params, page int) ([]*api.Book, error) {
	s.count("ListBooks")
	books := make([]*api.Book, 0, len(s.books))
	for _, book := range s.books {
		books = append(books, book)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books, nil
}

func (s *countingStore) CountBooks(ctx context.Context, p query.Params) (int64, error) {
	s.count("CountBooks")
	return int64(len(s.books)), nil
}

func (s *countingStore) SetBookCover(ctx context.Context, id int64, coverURL string) error {
	s.count("SetBookCover")
	if book, ok := s.books[id]; ok {
		book.CoverURL = coverURL
	}
	return nil
}

func (s *countingStore) CreateAuthor(ctx context.Context, author *api.Author) error {
	s.count("CreateAuthor")
	s.authors[author.ID] = author
	return nil
}

func (s *countingStore) GetAuthor(ctx context.Context, id int64) (*api.Author, error) {
	s.count("GetAuthor")
	author, ok := s.authors[id]
	if !ok {
		return nil, &api.NotFoundError{Resource: "author", ID: id}
	}
	return author, nil
}

func (s *countingStore) UpdateAuthor(ctx context.Context, author *api.Author) error {
	s.count("UpdateAuthor")
	s.authors[author.ID] = author
	return nil
}

func (s *countingStore) GetPost(ctx context.Context, id int64) (*api.Post, error) {
	s.count("GetPost")
	post, ok := s.posts[id]
	if !ok {
		return nil, &api.NotFoundError{Resource: "post", ID: id}
	}
	return post, nil
}

func (s *countingStore) CreateComment(ctx context.Context, comment *api.Comment) error {
	s.count("CreateComment")
	s.comments[comment.ID] = comment
	return nil
}

func (s *countingStore) GetComment(ctx context.Context, id int64) (*api.Comment, error) {
	s.count("GetComment")
	comment, ok := s.comments[id]
	if !ok {
		return nil, &api.NotFoundError{Resource: "comment", ID: id}
	}
	return comment, nil
}

func (s *countingStore) DeleteComment(ctx context.Context, id int64) error {
	s.count("DeleteComment")
	delete(s.comments, id)
	return nil
}

func (s *countingStore) TokenByHash(ctx context.Context, hash string) (*auth.Token, error) {
	s.count("TokenByHash")
	token, ok := s.tokens[hash]
	if !ok {
		return nil, &api.NotFoundError{Resource: "token"}
	}
	return token, nil
}

func testCachedStorage(t *testing.T) (*CachedStorage, *countingStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := NewRedisClient(Config{RedisURL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	store := newCountingStore()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	cached := NewCachedStorage(store, client, nil, logger)
	return cached, store, mr
}

func mustParams(t *testing.T, def query.Definition, rawQuery string) query.Params {
	t.Helper()
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		t.Fatalf("failed to parse query %q: %v", rawQuery, err)
	}
	p, err := query.ParseParams(def, values)
	if err != nil {
		t.Fatalf("failed to parse params %q: %v", rawQuery, err)
	}
	return p
}

func TestCachedStorage_GetBook(t *testing.T) {
	cached, store, _ := testCachedStorage(t)
	ctx := context.Background()
	store.books[1] = &api.Book{ID: 1, Title: "The Dispossessed", AuthorID: 7, AuthorName: "Ursula K. Le Guin"}

	first, err := cached.GetBook(ctx, 1)
	if err != nil {
		t.Fatalf("GetBook failed: %v", err)
	}
	second, err := cached.GetBook(ctx, 1)
	if err != nil {
		t.Fatalf("GetBook failed: %v", err)
	}

	if got := store.callCount("GetBook"); got != 1 {
		t.Errorf("expected 1 database read, got %d", got)
	}
	if second.Title != first.Title || second.AuthorName != first.AuthorName {
		t.Errorf("cached book differs: %+v vs %+v", second, first)
	}
}

func TestCachedStorage_GetBook_NotFoundNotCached(t *testing.T) {
	cached, store, _ := testCachedStorage(t)
	ctx := context.Background()

	if _, err := cached.GetBook(ctx, 42); err == nil {
		t.Fatal("expected error for missing book")
	}
	if _, err := cached.GetBook(ctx, 42); err == nil {
		t.Fatal("expected error for missing book")
	}

	// Misses never produce cache entries, so both reads hit the store.
	if got := store.callCount("GetBook"); got != 2 {
		t.Errorf("expected 2 database reads, got %d", got)
	}
}

func TestCachedStorage_UpdateBook_Invalidates(t *testing.T) {
	cached, store, _ := testCachedStorage(t)
	ctx := context.Background()
	store.books[1] = &api.Book{ID: 1, Title: "Foundation", AuthorID: 3}

	if _, err := cached.GetBook(ctx, 1); err != nil {
		t.Fatalf("GetBook failed: %v", err)
	}

	updated := &api.Book{ID: 1, Title: "Foundation and Empire", AuthorID: 3}
	if err := cached.UpdateBook(ctx, updated); err != nil {
		t.Fatalf("UpdateBook failed: %v", err)
	}

	book, err := cached.GetBook(ctx, 1)
	if err != nil {
		t.Fatalf("GetBook failed: %v", err)
	}
	if book.Title != "Foundation and Empire" {
		t.Errorf("expected updated title, got %q", book.Title)
	}
	if got := store.callCount("GetBook"); got != 2 {
		t.Errorf("expected the update to evict the cached book, reads = %d", got)
	}
}

func TestCachedStorage_ListBooks_KeyedByParams(t *testing.T) {
	cached, store, _ := testCachedStorage(t)
	ctx := context.Background()
	store.books[1] = &api.Book{ID: 1, Title: "Kindred"}

	plain := mustParams(t, api.BookListQuery, "")
	filtered := mustParams(t, api.BookListQuery, "search=kindred")

	for i := 0; i < 2; i++ {
		if _, err := cached.ListBooks(ctx, plain, 1); err != nil {
			t.Fatalf("ListBooks failed: %v", err)
		}
	}
	if _, err := cached.ListBooks(ctx, filtered, 1); err != nil {
		t.Fatalf("ListBooks failed: %v", err)
	}
	if _, err := cached.ListBooks(ctx, plain, 2); err != nil {
		t.Fatalf("ListBooks failed: %v", err)
	}

	// Same params and page share an entry; a different search term or
	// page does not.
	if got := store.callCount("ListBooks"); got != 3 {
		t.Errorf("expected 3 database reads, got %d", got)
	}
}

func TestCachedStorage_CountBooks_IgnoresOrdering(t *testing.T) {
	cached, store, _ := testCachedStorage(t)
	ctx := context.Background()
	store.books[1] = &api.Book{ID: 1, Title: "Parable of the Sower"}

	byTitle := mustParams(t, api.BookListQuery, "ordering=title")
	byYear := mustParams(t, api.BookListQuery, "ordering=-publication_year")

	if _, err := cached.CountBooks(ctx, byTitle); err != nil {
		t.Fatalf("CountBooks failed: %v", err)
	}
	count, err := cached.CountBooks(ctx, byYear)
	if err != nil {
		t.Fatalf("CountBooks failed: %v", err)
	}

	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}
	if got := store.callCount("CountBooks"); got != 1 {
		t.Errorf("ordering changed the count key, reads = %d", got)
	}
}

func TestCachedStorage_CreateBook_Invalidates(t *testing.T) {
	cached, store, _ := testCachedStorage(t)
	ctx := context.Background()
	store.authors[7] = &api.Author{ID: 7, Name: "Octavia E. Butler"}

	plain := mustParams(t, api.BookListQuery, "")
	if _, err := cached.ListBooks(ctx, plain, 1); err != nil {
		t.Fatalf("ListBooks failed: %v", err)
	}
	if _, err := cached.CountBooks(ctx, plain); err != nil {
		t.Fatalf("CountBooks failed: %v", err)
	}
	if _, err := cached.GetAuthor(ctx, 7); err != nil {
		t.Fatalf("GetAuthor failed: %v", err)
	}

	if err := cached.CreateBook(ctx, &api.Book{ID: 9, Title: "Kindred", AuthorID: 7}); err != nil {
		t.Fatalf("CreateBook failed: %v", err)
	}

	if _, err := cached.ListBooks(ctx, plain, 1); err != nil {
		t.Fatalf("ListBooks failed: %v", err)
	}
	if _, err := cached.CountBooks(ctx, plain); err != nil {
		t.Fatalf("CountBooks failed: %v", err)
	}
	if _, err := cached.GetAuthor(ctx, 7); err != nil {
		t.Fatalf("GetAuthor failed: %v", err)
	}

	if got := store.callCount("ListBooks"); got != 2 {
		t.Errorf("expected the create to evict list pages, reads = %d", got)
	}
	if got := store.callCount("CountBooks"); got != 2 {
		t.Errorf("expected the create to evict counts, reads = %d", got)
	}
	if got := store.callCount("GetAuthor"); got != 2 {
		t.Errorf("expected the create to evict the author embed, reads = %d", got)
	}
}

func TestCachedStorage_UpdateAuthor_EvictsBooks(t *testing.T) {
	cached, store, _ := testCachedStorage(t)
	ctx := context.Background()
	store.authors[3] = &api.Author{ID: 3, Name: "Isaac Asimov"}
	store.books[1] = &api.Book{ID: 1, Title: "Foundation", AuthorID: 3, AuthorName: "Isaac Asimov"}

	if _, err := cached.GetBook(ctx, 1); err != nil {
		t.Fatalf("GetBook failed: %v", err)
	}

	store.books[1].AuthorName = "I. Asimov"
	if err := cached.UpdateAuthor(ctx, &api.Author{ID: 3, Name: "I. Asimov"}); err != nil {
		t.Fatalf("UpdateAuthor failed: %v", err)
	}

	book, err := cached.GetBook(ctx, 1)
	if err != nil {
		t.Fatalf("GetBook failed: %v", err)
	}
	if book.AuthorName != "I. Asimov" {
		t.Errorf("expected refreshed author name, got %q", book.AuthorName)
	}
}

func TestCachedStorage_CreateComment_EvictsPost(t *testing.T) {
	cached, store, _ := testCachedStorage(t)
	ctx := context.Background()
	store.posts[5] = &api.Post{ID: 5, Title: "Reading notes", CommentCount: 0}

	if _, err := cached.GetPost(ctx, 5); err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}

	store.posts[5].CommentCount = 1
	if err := cached.CreateComment(ctx, &api.Comment{ID: 1, PostID: 5, Content: "Loved it"}); err != nil {
		t.Fatalf("CreateComment failed: %v", err)
	}

	post, err := cached.GetPost(ctx, 5)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if post.CommentCount != 1 {
		t.Errorf("expected refreshed comment count, got %d", post.CommentCount)
	}
}

func TestCachedStorage_DeleteComment_EvictsItsPost(t *testing.T) {
	cached, store, _ := testCachedStorage(t)
	ctx := context.Background()
	store.posts[5] = &api.Post{ID: 5, Title: "Reading notes", CommentCount: 1}
	store.comments[9] = &api.Comment{ID: 9, PostID: 5, Content: "Loved it"}

	if _, err := cached.GetPost(ctx, 5); err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}

	store.posts[5].CommentCount = 0
	if err := cached.DeleteComment(ctx, 9); err != nil {
		t.Fatalf("DeleteComment failed: %v", err)
	}

	post, err := cached.GetPost(ctx, 5)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if post.CommentCount != 0 {
		t.Errorf("expected refreshed comment count, got %d", post.CommentCount)
	}
}

func TestCachedStorage_TokensNeverCached(t *testing.T) {
	cached, store, _ := testCachedStorage(t)
	ctx := context.Background()
	store.tokens["abc"] = &auth.Token{ID: 1, UserID: 2, Hash: "abc"}

	for i := 0; i < 3; i++ {
		if _, err := cached.TokenByHash(ctx, "abc"); err != nil {
			t.Fatalf("TokenByHash failed: %v", err)
		}
	}

	if got := store.callCount("TokenByHash"); got != 3 {
		t.Errorf("token lookups must always hit the store, reads = %d", got)
	}
}

func TestCachedStorage_RedisDownDegrades(t *testing.T) {
	cached, store, mr := testCachedStorage(t)
	ctx := context.Background()
	store.books[1] = &api.Book{ID: 1, Title: "The Left Hand of Darkness"}

	mr.Close()

	for i := 0; i < 2; i++ {
		book, err := cached.GetBook(ctx, 1)
		if err != nil {
			t.Fatalf("GetBook should survive a redis outage: %v", err)
		}
		if book.Title != "The Left Hand of Darkness" {
			t.Errorf("unexpected title %q", book.Title)
		}
	}

	if got := store.callCount("GetBook"); got != 2 {
		t.Errorf("expected every read to fall through, reads = %d", got)
	}
}

func TestCachedStorage_TTLApplied(t *testing.T) {
	cached, store, mr := testCachedStorage(t)
	ctx := context.Background()
	store.books[1] = &api.Book{ID: 1, Title: "Caves of Steel"}

	if _, err := cached.GetBook(ctx, 1); err != nil {
		t.Fatalf("GetBook failed: %v", err)
	}

	mr.FastForward(16 * time.Minute)

	if _, err := cached.GetBook(ctx, 1); err != nil {
		t.Fatalf("GetBook failed: %v", err)
	}
	if got := store.callCount("GetBook"); got != 2 {
		t.Errorf("expected the entry to expire, reads = %d", got)
	}
}
