package validation

// Write payloads for every mutating endpoint. Handlers decode request
// bodies into these, run the matching Validate method, and only then
// map the normalized values onto storage records. Field names in the
// JSON tags are the names the error map is keyed by.

// BookInput is the create/update payload for a catalog book.
type BookInput struct {
	Title           string `json:"title"`
	PublicationYear int    `json:"publication_year"`
	AuthorID        int64  `json:"author"`
	ISBN            string `json:"isbn"`
	Description     string `json:"description"`
}

// AuthorInput is the create/update payload for an author.
type AuthorInput struct {
	Name string `json:"name"`
}

// PostInput is the create/update payload for a blog post.
type PostInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CommentInput is the create/update payload for a comment.
type CommentInput struct {
	Content string `json:"content"`
}

// LibraryInput is the create/rename payload for a branch.
type LibraryInput struct {
	Name string `json:"name"`
}

// LibrarianInput assigns a user to run a branch.
type LibrarianInput struct {
	UserID int64 `json:"user"`
}

// RegisterInput is the account registration payload.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileInput is the profile update payload. An empty password keeps
// the current one.
type ProfileInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenInput is the API token creation payload. ExpiresInDays zero
// means the token never expires.
type TokenInput struct {
	Name          string `json:"name"`
	ExpiresInDays int    `json:"expires_in_days"`
}
