package api

import (
	"context"
	"time"

	"github.com/pressleaf/biblio/pkg/auth"
	"github.com/pressleaf/biblio/pkg/query"
)

// Book represents a catalog entry with its author reference
type Book struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	PublicationYear int       `json:"publication_year"`
	AuthorID        int64     `json:"author"`
	AuthorName      string    `json:"author_name,omitempty"`
	ISBN            string    `json:"isbn,omitempty"`
	Description     string    `json:"description,omitempty"`
	CoverURL        string    `json:"cover_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Author represents a catalog author. Books is populated on detail
// reads only, ordered by the catalog default.
type Author struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Books     []*Book   `json:"books,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Post represents a reading blog entry
type Post struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	AuthorID       int64     `json:"author"`
	AuthorUsername string    `json:"author_username,omitempty"`
	CommentCount   int64     `json:"comment_count"`
	PublishedAt    time.Time `json:"published_date"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Comment represents a reader comment on a post
type Comment struct {
	ID             int64     `json:"id"`
	PostID         int64     `json:"post"`
	AuthorID       int64     `json:"author"`
	AuthorUsername string    `json:"author_username,omitempty"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Library represents a branch with its shelved books. Books and
// Librarian are populated on detail reads only.
type Library struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Books     []*Book    `json:"books,omitempty"`
	Librarian *Librarian `json:"librarian,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Librarian assigns a user to run a branch. One librarian per branch.
type Librarian struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user"`
	Username  string `json:"username,omitempty"`
	LibraryID int64  `json:"library"`
}

// User represents an account. The password hash never serializes.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Storage interface defines the methods required for storing and retrieving catalog records
type Storage interface {
	// Book operations
	CreateBook(ctx context.Context, book *Book) error
	GetBook(ctx context.Context, id int64) (*Book, error)
	GetBooksByIDs(ctx context.Context, ids []int64) ([]*Book, error)
	UpdateBook(ctx context.Context, book *Book) error
	DeleteBook(ctx context.Context, id int64) error
	ListBooks(ctx context.Context, params query.Params, page int) ([]*Book, error)
	CountBooks(ctx context.Context, params query.Params) (int64, error)
	SetBookCover(ctx context.Context, id int64, coverURL string) error

	// Author operations
	CreateAuthor(ctx context.Context, author *Author) error
	GetAuthor(ctx context.Context, id int64) (*Author, error)
	UpdateAuthor(ctx context.Context, author *Author) error
	DeleteAuthor(ctx context.Context, id int64) error
	ListAuthors(ctx context.Context, params query.Params, page int) ([]*Author, error)
	CountAuthors(ctx context.Context, params query.Params) (int64, error)
	ListBooksByAuthor(ctx context.Context, authorID int64) ([]*Book, error)

	// Post operations
	CreatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id int64) (*Post, error)
	UpdatePost(ctx context.Context, post *Post) error
	DeletePost(ctx context.Context, id int64) error
	ListPosts(ctx context.Context, params query.Params, page int) ([]*Post, error)
	CountPosts(ctx context.Context, params query.Params) (int64, error)

	// Comment operations
	CreateComment(ctx context.Context, comment *Comment) error
	GetComment(ctx context.Context, id int64) (*Comment, error)
	UpdateComment(ctx context.Context, comment *Comment) error
	DeleteComment(ctx context.Context, id int64) error
	ListComments(ctx context.Context, postID int64, params query.Params, page int) ([]*Comment, error)
	CountComments(ctx context.Context, postID int64, params query.Params) (int64, error)

	// Library operations
	CreateLibrary(ctx context.Context, library *Library) error
	GetLibrary(ctx context.Context, id int64) (*Library, error)
	UpdateLibrary(ctx context.Context, library *Library) error
	DeleteLibrary(ctx context.Context, id int64) error
	ListLibraries(ctx context.Context, params query.Params, page int) ([]*Library, error)
	CountLibraries(ctx context.Context, params query.Params) (int64, error)
	AddLibraryBook(ctx context.Context, libraryID, bookID int64) error
	RemoveLibraryBook(ctx context.Context, libraryID, bookID int64) error
	AssignLibrarian(ctx context.Context, libraryID, userID int64) error
	GetLibrarian(ctx context.Context, libraryID int64) (*Librarian, error)

	// User operations
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	SetUserRole(ctx context.Context, userID int64, role string) error
	UserRole(ctx context.Context, userID int64) (string, error)

	// Token operations
	InsertToken(ctx context.Context, token *auth.Token) error
	TokenByHash(ctx context.Context, hash string) (*auth.Token, error)
	UserTokens(ctx context.Context, userID int64) ([]*auth.Token, error)
	RevokeToken(ctx context.Context, id, userID int64) error
	TouchToken(ctx context.Context, id int64, at time.Time) error
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)

	// Ping reports whether the backing store is reachable
	Ping(ctx context.Context) error
	Close() error
}
