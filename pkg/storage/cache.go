package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/auth"
	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/query"
)

// CachedStorage wraps a Storage backend with a Redis read-through
// cache. Hot detail reads (books, authors, posts) and catalog list
// pages are cached; users, tokens and libraries always hit the
// database. Redis failures degrade to database reads, never to
// request failures.
type CachedStorage struct {
	store  api.Storage
	redis  *RedisClient
	ttl    map[string]time.Duration
	logger *observability.Logger
}

var _ api.Storage = (*CachedStorage)(nil)

// NewCachedStorage wraps store with the cache layer. Entries in ttl
// override the defaults per cache kind; a zero duration disables that
// kind.
func NewCachedStorage(store api.Storage, redis *RedisClient, ttl map[string]time.Duration, logger *observability.Logger) *CachedStorage {
	merged := DefaultConfig().CacheTTL
	for kind, d := range ttl {
		merged[kind] = d
	}
	return &CachedStorage{
		store:  store,
		redis:  redis,
		ttl:    merged,
		logger: logger.WithField("component", "cache"),
	}
}

func bookKey(id int64) string   { return fmt.Sprintf("book:%d", id) }
func authorKey(id int64) string { return fmt.Sprintf("author:%d", id) }
func postKey(id int64) string   { return fmt.Sprintf("post:%d", id) }

// listKey names one cached result page. ParseParams sorts query keys,
// so equal requests share a key.
func listKey(prefix string, p query.Params, page int) string {
	return fmt.Sprintf("%s:%s:p%d", prefix, paramsDigest(p, true), page)
}

// countKey names one cached count. Ordering does not change a count,
// so it stays out of the digest.
func countKey(prefix string, p query.Params) string {
	return fmt.Sprintf("%s:%s", prefix, paramsDigest(p, false))
}

// paramsDigest hashes the parts of p that shape the result set. The
// digest keeps user-supplied filter values out of redis key space.
func paramsDigest(p query.Params, withOrder bool) string {
	var b strings.Builder
	for _, f := range p.Filters {
		fmt.Fprintf(&b, "f:%s:%s:%s;", f.Column, f.Lookup, f.Value)
	}
	if p.Search != "" {
		fmt.Fprintf(&b, "s:%s;", p.Search)
	}
	if withOrder {
		for _, o := range p.Order {
			fmt.Fprintf(&b, "o:%s:%t;", o.Column, o.Desc)
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum[:12])
}

// cacheGet loads key into dest and reports a usable hit. A redis
// failure is a miss.
func (c *CachedStorage) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	hit, err := c.redis.GetJSON(ctx, key, dest)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache read failed")
		return false
	}
	return hit
}

func (c *CachedStorage) cacheSet(ctx context.Context, key, kind string, value interface{}) {
	ttl := c.ttl[kind]
	if ttl <= 0 {
		return
	}
	if err := c.redis.SetJSON(ctx, key, value, ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

func (c *CachedStorage) drop(ctx context.Context, keys ...string) {
	if err := c.redis.Delete(ctx, keys...); err != nil {
		c.logger.WithError(err).Warn("cache invalidation failed")
	}
}

func (c *CachedStorage) dropPatterns(ctx context.Context, patterns ...string) {
	if err := c.redis.InvalidatePatterns(ctx, patterns...); err != nil {
		c.logger.WithError(err).Warn("cache invalidation failed")
	}
}

// CreateBook writes through and invalidates the list pages plus the
// author embed the new book appears in.
func (c *CachedStorage) CreateBook(ctx context.Context, book *api.Book) error {
	if err := c.store.CreateBook(ctx, book); err != nil {
		return err
	}
	c.drop(ctx, authorKey(book.AuthorID))
	c.dropPatterns(ctx, "book_list:*", "book_count:*")
	return nil
}

func (c *CachedStorage) GetBook(ctx context.Context, id int64) (*api.Book, error) {
	key := bookKey(id)
	var cached api.Book
	if c.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	book, err := c.store.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cacheSet(ctx, key, "book", book)
	return book, nil
}

func (c *CachedStorage) GetBooksByIDs(ctx context.Context, ids []int64) ([]*api.Book, error) {
	return c.store.GetBooksByIDs(ctx, ids)
}

// UpdateBook invalidates every author embed because the previous
// author is unknown here when a book changes hands.
func (c *CachedStorage) UpdateBook(ctx context.Context, book *api.Book) error {
	if err := c.store.UpdateBook(ctx, book); err != nil {
		return err
	}
	c.drop(ctx, bookKey(book.ID))
	c.dropPatterns(ctx, "book_list:*", "author:*")
	return nil
}

func (c *CachedStorage) DeleteBook(ctx context.Context, id int64) error {
	if err := c.store.DeleteBook(ctx, id); err != nil {
		return err
	}
	c.drop(ctx, bookKey(id))
	c.dropPatterns(ctx, "book_list:*", "book_count:*", "author:*")
	return nil
}

func (c *CachedStorage) ListBooks(ctx context.Context, params query.Params, page int) ([]*api.Book, error) {
	key := listKey("book_list", params, page)
	var cached []*api.Book
	if c.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	books, err := c.store.ListBooks(ctx, params, page)
	if err != nil {
		return nil, err
	}
	c.cacheSet(ctx, key, "book_list", books)
	return books, nil
}

func (c *CachedStorage) CountBooks(ctx context.Context, params query.Params) (int64, error) {
	key := countKey("book_count", params)
	var cached int64
	if c.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	count, err := c.store.CountBooks(ctx, params)
	if err != nil {
		return 0, err
	}
	c.cacheSet(ctx, key, "book_list", count)
	return count, nil
}

func (c *CachedStorage) SetBookCover(ctx context.Context, id int64, coverURL string) error {
	if err := c.store.SetBookCover(ctx, id, coverURL); err != nil {
		return err
	}
	c.drop(ctx, bookKey(id))
	c.dropPatterns(ctx, "book_list:*")
	return nil
}

func (c *CachedStorage) CreateAuthor(ctx context.Context, author *api.Author) error {
	if err := c.store.CreateAuthor(ctx, author); err != nil {
		return err
	}
	c.dropPatterns(ctx, "author_list:*", "author_count:*")
	return nil
}

func (c *CachedStorage) GetAuthor(ctx context.Context, id int64) (*api.Author, error) {
	key := authorKey(id)
	var cached api.Author
	if c.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	author, err := c.store.GetAuthor(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cacheSet(ctx, key, "author", author)
	return author, nil
}

// UpdateAuthor invalidates book caches too: the author name rides
// along in every cached book row.
func (c *CachedStorage) UpdateAuthor(ctx context.Context, author *api.Author) error {
	if err := c.store.UpdateAuthor(ctx, author); err != nil {
		return err
	}
	c.drop(ctx, authorKey(author.ID))
	c.dropPatterns(ctx, "author_list:*", "book:*", "book_list:*")
	return nil
}

// DeleteAuthor cascades to the author's books, so book counts change
// as well.
func (c *CachedStorage) DeleteAuthor(ctx context.Context, id int64) error {
	if err := c.store.DeleteAuthor(ctx, id); err != nil {
		return err
	}
	c.drop(ctx, authorKey(id))
	c.dropPatterns(ctx, "author_list:*", "author_count:*", "book:*", "book_list:*", "book_count:*")
	return nil
}

func (c *CachedStorage) ListAuthors(ctx context.Context, params query.Params, page int) ([]*api.Author, error) {
	key := listKey("author_list", params, page)
	var cached []*api.Author
	if c.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	authors, err := c.store.ListAuthors(ctx, params, page)
	if err != nil {
		return nil, err
	}
	c.cacheSet(ctx, key, "author_list", authors)
	return authors, nil
}

func (c *CachedStorage) CountAuthors(ctx context.Context, params query.Params) (int64, error) {
	key := countKey("author_count", params)
	var cached int64
	if c.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	count, err := c.store.CountAuthors(ctx, params)
	if err != nil {
		return 0, err
	}
	c.cacheSet(ctx, key, "author_list", count)
	return count, nil
}

func (c *CachedStorage) ListBooksByAuthor(ctx context.Context, authorID int64) ([]*api.Book, error) {
	return c.store.ListBooksByAuthor(ctx, authorID)
}

// Blog lists stay uncached: the embedded comment counts move with
// every new comment. Post detail reads are cached and invalidated by
// the comment writes below.

func (c *CachedStorage) CreatePost(ctx context.Context, post *api.Post) error {
	return c.store.CreatePost(ctx, post)
}

func (c *CachedStorage) GetPost(ctx context.Context, id int64) (*api.Post, error) {
	key := postKey(id)
	var cached api.Post
	if c.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	post, err := c.store.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cacheSet(ctx, key, "post", post)
	return post, nil
}

func (c *CachedStorage) UpdatePost(ctx context.Context, post *api.Post) error {
	if err := c.store.UpdatePost(ctx, post); err != nil {
		return err
	}
	c.drop(ctx, postKey(post.ID))
	return nil
}

func (c *CachedStorage) DeletePost(ctx context.Context, id int64) error {
	if err := c.store.DeletePost(ctx, id); err != nil {
		return err
	}
	c.drop(ctx, postKey(id))
	return nil
}

func (c *CachedStorage) ListPosts(ctx context.Context, params query.Params, page int) ([]*api.Post, error) {
	return c.store.ListPosts(ctx, params, page)
}

func (c *CachedStorage) CountPosts(ctx context.Context, params query.Params) (int64, error) {
	return c.store.CountPosts(ctx, params)
}

func (c *CachedStorage) CreateComment(ctx context.Context, comment *api.Comment) error {
	if err := c.store.CreateComment(ctx, comment); err != nil {
		return err
	}
	c.drop(ctx, postKey(comment.PostID))
	return nil
}

func (c *CachedStorage) GetComment(ctx context.Context, id int64) (*api.Comment, error) {
	return c.store.GetComment(ctx, id)
}

func (c *CachedStorage) UpdateComment(ctx context.Context, comment *api.Comment) error {
	return c.store.UpdateComment(ctx, comment)
}

// DeleteComment reads the comment first: the delete changes its
// post's comment count and the row alone knows which post that is.
func (c *CachedStorage) DeleteComment(ctx context.Context, id int64) error {
	comment, err := c.store.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if err := c.store.DeleteComment(ctx, id); err != nil {
		return err
	}
	c.drop(ctx, postKey(comment.PostID))
	return nil
}

func (c *CachedStorage) ListComments(ctx context.Context, postID int64, params query.Params, page int) ([]*api.Comment, error) {
	return c.store.ListComments(ctx, postID, params, page)
}

func (c *CachedStorage) CountComments(ctx context.Context, postID int64, params query.Params) (int64, error) {
	return c.store.CountComments(ctx, postID, params)
}

// Library reads are uncached: shelves change through two tables and
// the queries are cheap.

func (c *CachedStorage) CreateLibrary(ctx context.Context, library *api.Library) error {
	return c.store.CreateLibrary(ctx, library)
}

func (c *CachedStorage) GetLibrary(ctx context.Context, id int64) (*api.Library, error) {
	return c.store.GetLibrary(ctx, id)
}

func (c *CachedStorage) UpdateLibrary(ctx context.Context, library *api.Library) error {
	return c.store.UpdateLibrary(ctx, library)
}

func (c *CachedStorage) DeleteLibrary(ctx context.Context, id int64) error {
	return c.store.DeleteLibrary(ctx, id)
}

func (c *CachedStorage) ListLibraries(ctx context.Context, params query.Params, page int) ([]*api.Library, error) {
	return c.store.ListLibraries(ctx, params, page)
}

func (c *CachedStorage) CountLibraries(ctx context.Context, params query.Params) (int64, error) {
	return c.store.CountLibraries(ctx, params)
}

func (c *CachedStorage) AddLibraryBook(ctx context.Context, libraryID, bookID int64) error {
	return c.store.AddLibraryBook(ctx, libraryID, bookID)
}

func (c *CachedStorage) RemoveLibraryBook(ctx context.Context, libraryID, bookID int64) error {
	return c.store.RemoveLibraryBook(ctx, libraryID, bookID)
}

func (c *CachedStorage) AssignLibrarian(ctx context.Context, libraryID, userID int64) error {
	return c.store.AssignLibrarian(ctx, libraryID, userID)
}

func (c *CachedStorage) GetLibrarian(ctx context.Context, libraryID int64) (*api.Librarian, error) {
	return c.store.GetLibrarian(ctx, libraryID)
}

// Users and tokens are never cached. Role changes and revocations
// must bite on the next request.

func (c *CachedStorage) CreateUser(ctx context.Context, user *api.User) error {
	return c.store.CreateUser(ctx, user)
}

func (c *CachedStorage) GetUser(ctx context.Context, id int64) (*api.User, error) {
	return c.store.GetUser(ctx, id)
}

func (c *CachedStorage) GetUserByUsername(ctx context.Context, username string) (*api.User, error) {
	return c.store.GetUserByUsername(ctx, username)
}

func (c *CachedStorage) GetUserByEmail(ctx context.Context, email string) (*api.User, error) {
	return c.store.GetUserByEmail(ctx, email)
}

func (c *CachedStorage) UpdateUser(ctx context.Context, user *api.User) error {
	return c.store.UpdateUser(ctx, user)
}

func (c *CachedStorage) SetUserRole(ctx context.Context, userID int64, role string) error {
	return c.store.SetUserRole(ctx, userID, role)
}

func (c *CachedStorage) UserRole(ctx context.Context, userID int64) (string, error) {
	return c.store.UserRole(ctx, userID)
}

func (c *CachedStorage) InsertToken(ctx context.Context, token *auth.Token) error {
	return c.store.InsertToken(ctx, token)
}

func (c *CachedStorage) TokenByHash(ctx context.Context, hash string) (*auth.Token, error) {
	return c.store.TokenByHash(ctx, hash)
}

func (c *CachedStorage) UserTokens(ctx context.Context, userID int64) ([]*auth.Token, error) {
	return c.store.UserTokens(ctx, userID)
}

func (c *CachedStorage) RevokeToken(ctx context.Context, id, userID int64) error {
	return c.store.RevokeToken(ctx, id, userID)
}

func (c *CachedStorage) TouchToken(ctx context.Context, id int64, at time.Time) error {
	return c.store.TouchToken(ctx, id, at)
}

func (c *CachedStorage) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	return c.store.DeleteExpiredTokens(ctx, before)
}

// Ping reports database health. Redis failures degrade reads to the
// database, so they do not fail the probe.
func (c *CachedStorage) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// Close closes the wrapped store. The redis client is shared with the
// rate limiter and the stats tracker, so its owner closes it.
func (c *CachedStorage) Close() error {
	return c.store.Close()
}
