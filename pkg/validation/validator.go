package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// MinPublicationYear is the oldest publication year the catalog accepts.
const MinPublicationYear = 1000

const (
	minUsernameLength  = 3
	maxUsernameLength  = 30
	maxTokenNameLength = 64
)

// Validator performs field-level validation on write payloads
type Validator struct {
	config *Config
}

// Config defines validation rules
type Config struct {
	// Now supplies the clock for publication year checks
	Now func() time.Time
	// MaxTitleLength caps book and post titles
	MaxTitleLength int
	// MaxNameLength caps author and library names
	MaxNameLength int
	// MaxContentLength caps descriptions and comments
	MaxContentLength int
	// MinPasswordLength is the floor for registration passwords
	MinPasswordLength int
	// ValidateBookObject runs object-level checks on a book payload
	// after every field check passed. Nil accepts everything.
	ValidateBookObject func(in *BookInput, errs FieldErrors)
}

// DefaultConfig returns default validation settings
func DefaultConfig() *Config {
	return &Config{
		Now:               time.Now,
		MaxTitleLength:    200,
		MaxNameLength:     100,
		MaxContentLength:  2000,
		MinPasswordLength: 8,
	}
}

// NewValidator creates a new validator
func NewValidator(config *Config) *Validator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Validator{config: config}
}

// ValidateBook normalizes the payload in place and returns every
// field failure. Checks accumulate across fields rather than stopping
// at the first. The object-level hook runs only when all field checks
// pass, so it can rely on normalized, individually valid fields.
func (v *Validator) ValidateBook(in *BookInput) FieldErrors {
	errs := NewFieldErrors()

	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.ISBN = NormalizeISBN(in.ISBN)

	if in.Title == "" {
		errs.Add("title", "This field may not be blank.")
	} else if utf8.RuneCountInString(in.Title) > v.config.MaxTitleLength {
		errs.Add("title", maxLengthMessage(v.config.MaxTitleLength))
	}

	currentYear := v.config.Now().Year()
	if in.PublicationYear > currentYear {
		errs.Add("publication_year", fmt.Sprintf(
			"Publication year cannot be in the future. Current year is %d.", currentYear))
	} else if in.PublicationYear < MinPublicationYear {
		errs.Add("publication_year", fmt.Sprintf(
			"Publication year must be after year %d.", MinPublicationYear))
	}

	if in.AuthorID <= 0 {
		errs.Add("author", "This field is required.")
	}

	if in.ISBN != "" && !isValidISBN(in.ISBN) {
		errs.Add("isbn", "Enter a valid ISBN.")
	}

	if utf8.RuneCountInString(in.Description) > v.config.MaxContentLength {
		errs.Add("description", maxLengthMessage(v.config.MaxContentLength))
	}

	if !errs.HasErrors() && v.config.ValidateBookObject != nil {
		v.config.ValidateBookObject(in, errs)
	}

	return errs
}

// ValidateAuthor normalizes the payload in place and returns every
// field failure.
func (v *Validator) ValidateAuthor(in *AuthorInput) FieldErrors {
	errs := NewFieldErrors()

	in.Name = strings.TrimSpace(in.Name)

	if in.Name == "" {
		errs.Add("name", "Author name cannot be empty.")
	} else if utf8.RuneCountInString(in.Name) < 2 {
		errs.Add("name", "Author name must be at least 2 characters long.")
	} else if utf8.RuneCountInString(in.Name) > v.config.MaxNameLength {
		errs.Add("name", maxLengthMessage(v.config.MaxNameLength))
	}

	return errs
}

// ValidatePost normalizes the payload in place and returns every
// field failure.
func (v *Validator) ValidatePost(in *PostInput) FieldErrors {
	errs := NewFieldErrors()

	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)

	if in.Title == "" {
		errs.Add("title", "This field may not be blank.")
	} else if utf8.RuneCountInString(in.Title) > v.config.MaxTitleLength {
		errs.Add("title", maxLengthMessage(v.config.MaxTitleLength))
	}

	if in.Content == "" {
		errs.Add("content", "This field may not be blank.")
	}

	return errs
}

// ValidateComment normalizes the payload in place and returns every
// field failure.
func (v *Validator) ValidateComment(in *CommentInput) FieldErrors {
	errs := NewFieldErrors()

	in.Content = strings.TrimSpace(in.Content)

	if in.Content == "" {
		errs.Add("content", "This field may not be blank.")
	} else if utf8.RuneCountInString(in.Content) > v.config.MaxContentLength {
		errs.Add("content", maxLengthMessage(v.config.MaxContentLength))
	}

	return errs
}

// ValidateLibrary normalizes the payload in place and returns every
// field failure.
func (v *Validator) ValidateLibrary(in *LibraryInput) FieldErrors {
	errs := NewFieldErrors()

	in.Name = strings.TrimSpace(in.Name)

	if in.Name == "" {
		errs.Add("name", "This field may not be blank.")
	} else if utf8.RuneCountInString(in.Name) > v.config.MaxNameLength {
		errs.Add("name", maxLengthMessage(v.config.MaxNameLength))
	}

	return errs
}

// ValidateLibrarian returns every field failure on an assignment
// payload. User existence is checked at the storage boundary.
func (v *Validator) ValidateLibrarian(in *LibrarianInput) FieldErrors {
	errs := NewFieldErrors()

	if in.UserID <= 0 {
		errs.Add("user", "This field is required.")
	}

	return errs
}

// ValidateRegistration normalizes the payload in place and returns
// every field failure. The password is never trimmed.
func (v *Validator) ValidateRegistration(in *RegisterInput) FieldErrors {
	errs := NewFieldErrors()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if in.Username == "" {
		errs.Add("username", "This field may not be blank.")
	} else if n := utf8.RuneCountInString(in.Username); n < minUsernameLength || n > maxUsernameLength {
		errs.Add("username", fmt.Sprintf(
			"Username must be between %d and %d characters.", minUsernameLength, maxUsernameLength))
	} else if !usernameRegex.MatchString(in.Username) {
		errs.Add("username", "Username may contain only letters, numbers, and underscores.")
	}

	if in.Email == "" {
		errs.Add("email", "This field may not be blank.")
	} else if !isValidEmail(in.Email) {
		errs.Add("email", "Enter a valid email address.")
	}

	if utf8.RuneCountInString(in.Password) < v.config.MinPasswordLength {
		errs.Add("password", passwordTooShortMessage(v.config.MinPasswordLength))
	}

	return errs
}

// ValidateProfile normalizes the payload in place and returns every
// field failure. An empty password means no password change and is
// not an error.
func (v *Validator) ValidateProfile(in *ProfileInput) FieldErrors {
	errs := NewFieldErrors()

	in.Email = strings.TrimSpace(in.Email)

	if in.Email == "" {
		errs.Add("email", "This field may not be blank.")
	} else if !isValidEmail(in.Email) {
		errs.Add("email", "Enter a valid email address.")
	}

	if in.Password != "" && utf8.RuneCountInString(in.Password) < v.config.MinPasswordLength {
		errs.Add("password", passwordTooShortMessage(v.config.MinPasswordLength))
	}

	return errs
}

// ValidateTokenRequest normalizes the payload in place and returns
// every field failure. Both fields are optional.
func (v *Validator) ValidateTokenRequest(in *TokenInput) FieldErrors {
	errs := NewFieldErrors()

	in.Name = strings.TrimSpace(in.Name)

	if utf8.RuneCountInString(in.Name) > maxTokenNameLength {
		errs.Add("name", maxLengthMessage(maxTokenNameLength))
	}

	if in.ExpiresInDays < 0 {
		errs.Add("expires_in_days", "Ensure this value is greater than or equal to 0.")
	}

	return errs
}

// Message helpers

func maxLengthMessage(limit int) string {
	return fmt.Sprintf("Ensure this field has no more than %d characters.", limit)
}

func passwordTooShortMessage(limit int) string {
	return fmt.Sprintf("This password is too short. It must contain at least %d characters.", limit)
}

// Format helpers

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	// mail.ParseAddress accepts bare hosts; require a dotted domain
	at := strings.LastIndex(email, "@")
	return strings.Contains(email[at+1:], ".")
}
