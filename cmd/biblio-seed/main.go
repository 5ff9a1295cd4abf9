package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/auth"
	"github.com/pressleaf/biblio/pkg/config"
	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/query"
	"github.com/pressleaf/biblio/pkg/rbac"
	"github.com/pressleaf/biblio/pkg/storage"
	"github.com/pressleaf/biblio/pkg/storage/postgres"
	"github.com/pressleaf/biblio/pkg/storage/sqlite"
)

var (
	fixtureFile   = flag.String("file", "", "Fixture file (YAML) to load")
	adminUsername = flag.String("admin", "", "Username to create or promote as an admin")
	adminEmail    = flag.String("admin-email", "", "Email for a newly created admin")
	adminPassword = flag.String("admin-password", "", "Password for a newly created admin (falls back to BIBLIO_ADMIN_PASSWORD)")
	logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

// seedWorkers bounds concurrent book inserts.
const seedWorkers = 4

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "biblio-seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if *fixtureFile == "" && *adminUsername == "" {
		return fmt.Errorf("nothing to do: pass -file or -admin")
	}

	log := setupLogger(*logLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The storage layer logs through the service logger; seed progress
	// goes to the text logger on stderr.
	store, err := openBackend(cfg.Storage, observability.NewLogger(cfg.Observability.LogLevel, os.Stdout))
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s := &seeder{storage: store, bcryptCost: cfg.Auth.BcryptCost, logger: log}

	if *adminUsername != "" {
		password := *adminPassword
		if password == "" {
			password = os.Getenv("BIBLIO_ADMIN_PASSWORD")
		}
		if err := s.ensureAdmin(ctx, *adminUsername, *adminEmail, password); err != nil {
			return err
		}
	}

	if *fixtureFile != "" {
		fx, err := readFixture(*fixtureFile)
		if err != nil {
			return err
		}
		if err := s.load(ctx, fx); err != nil {
			return err
		}
	}

	return nil
}

func setupLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return logger
}

func openBackend(cfg storage.Config, logger *observability.Logger) (api.Storage, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlite.New(cfg.SQLitePath)
	case "postgres":
		return postgres.New(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// fixture is the shape of a seed file. Records reference each other by
// name, never by id, so fixtures survive being loaded into databases
// with different id sequences.
type fixture struct {
	Users     []userFixture    `yaml:"users"`
	Authors   []authorFixture  `yaml:"authors"`
	Books     []bookFixture    `yaml:"books"`
	Libraries []libraryFixture `yaml:"libraries"`
	Posts     []postFixture    `yaml:"posts"`
}

type userFixture struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type authorFixture struct {
	Name string `yaml:"name"`
}

type bookFixture struct {
	Title           string `yaml:"title"`
	Author          string `yaml:"author"`
	PublicationYear int    `yaml:"publication_year"`
	ISBN            string `yaml:"isbn"`
	Description     string `yaml:"description"`
}

type libraryFixture struct {
	Name      string   `yaml:"name"`
	Librarian string   `yaml:"librarian"`
	Books     []string `yaml:"books"`
}

type postFixture struct {
	Title    string           `yaml:"title"`
	Author   string           `yaml:"author"`
	Content  string           `yaml:"content"`
	Comments []commentFixture `yaml:"comments"`
}

type commentFixture struct {
	Author  string `yaml:"author"`
	Content string `yaml:"content"`
}

func readFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var fx fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture file: %w", err)
	}
	return &fx, nil
}

type seeder struct {
	storage    api.Storage
	bcryptCost int
	logger     *logrus.Logger
}

// load applies the fixture top to bottom. Records that already exist
// are reused, so loading the same file twice is safe.
func (s *seeder) load(ctx context.Context, fx *fixture) error {
	users, err := s.seedUsers(ctx, fx.Users)
	if err != nil {
		return err
	}

	authors, err := s.seedAuthors(ctx, fx.Authors)
	if err != nil {
		return err
	}

	books, err := s.seedBooks(ctx, fx.Books, authors)
	if err != nil {
		return err
	}

	if err := s.seedLibraries(ctx, fx.Libraries, users, books); err != nil {
		return err
	}

	if err := s.seedPosts(ctx, fx.Posts, users); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"users":     len(fx.Users),
		"authors":   len(fx.Authors),
		"books":     len(fx.Books),
		"libraries": len(fx.Libraries),
		"posts":     len(fx.Posts),
	}).Info("Fixture loaded")
	return nil
}

// ensureAdmin creates the named account with the admin role, or
// promotes it when it already exists. It is how a fresh deployment
// gets its first admin, since role changes over the API need one.
func (s *seeder) ensureAdmin(ctx context.Context, username, email, password string) error {
	existing, err := s.storage.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, api.ErrNotFound) {
		return fmt.Errorf("failed to look up %q: %w", username, err)
	}

	if existing != nil {
		if existing.Role == rbac.RoleAdmin {
			s.logger.Infof("Admin %q already exists", username)
			return nil
		}
		if err := s.storage.SetUserRole(ctx, existing.ID, rbac.RoleAdmin); err != nil {
			return fmt.Errorf("failed to promote %q: %w", username, err)
		}
		s.logger.Infof("Promoted %q to admin", username)
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin %q does not exist and no password was given", username)
	}
	if email == "" {
		email = username + "@localhost"
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	user := &api.User{Username: username, Email: email, PasswordHash: hash, Role: rbac.RoleAdmin}
	if err := s.storage.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	s.logger.Infof("Created admin %q", username)
	return nil
}

func (s *seeder) seedUsers(ctx context.Context, users []userFixture) (map[string]int64, error) {
	ids := make(map[string]int64, len(users))

	for _, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("fixture user without a username")
		}
		role := u.Role
		if role == "" {
			role = rbac.RoleMember
		}
		if !rbac.ValidRole(role) {
			return nil, fmt.Errorf("fixture user %q has unknown role %q", u.Username, role)
		}

		existing, err := s.storage.GetUserByUsername(ctx, u.Username)
		if err != nil && !errors.Is(err, api.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up user %q: %w", u.Username, err)
		}
		if existing != nil {
			ids[u.Username] = existing.ID
			if existing.Role != role {
				if err := s.storage.SetUserRole(ctx, existing.ID, role); err != nil {
					return nil, fmt.Errorf("failed to set role for %q: %w", u.Username, err)
				}
			}
			continue
		}

		hash, err := auth.HashPassword(u.Password, s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for %q: %w", u.Username, err)
		}

		user := &api.User{Username: u.Username, Email: u.Email, PasswordHash: hash, Role: role}
		if err := s.storage.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user %q: %w", u.Username, err)
		}
		ids[u.Username] = user.ID
	}

	return ids, nil
}

func (s *seeder) seedAuthors(ctx context.Context, authors []authorFixture) (map[string]int64, error) {
	ids := make(map[string]int64, len(authors))

	for _, a := range authors {
		if a.Name == "" {
			return nil, fmt.Errorf("fixture author without a name")
		}

		id, err := s.findByName(ctx, "author", a.Name)
		if err != nil {
			return nil, err
		}
		if id != 0 {
			ids[a.Name] = id
			continue
		}

		author := &api.Author{Name: a.Name}
		if err := s.storage.CreateAuthor(ctx, author); err != nil {
			return nil, fmt.Errorf("failed to create author %q: %w", a.Name, err)
		}
		ids[a.Name] = author.ID
	}

	return ids, nil
}

func (s *seeder) seedBooks(ctx context.Context, books []bookFixture, authors map[string]int64) (map[string]int64, error) {
	ids := make(map[string]int64, len(books))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seedWorkers)
	results := make([]int64, len(books))

	for i, b := range books {
		if b.Title == "" {
			return nil, fmt.Errorf("fixture book without a title")
		}
		authorID, ok := authors[b.Author]
		if !ok {
			return nil, fmt.Errorf("fixture book %q references unknown author %q", b.Title, b.Author)
		}

		g.Go(func() error {
			id, err := s.findByName(gctx, "book", b.Title)
			if err != nil {
				return err
			}
			if id == 0 {
				book := &api.Book{
					Title:           b.Title,
					PublicationYear: b.PublicationYear,
					AuthorID:        authorID,
					ISBN:            b.ISBN,
					Description:     b.Description,
				}
				if err := s.storage.CreateBook(gctx, book); err != nil {
					return fmt.Errorf("failed to create book %q: %w", b.Title, err)
				}
				id = book.ID
			}
			results[i] = id
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, b := range books {
		ids[b.Title] = results[i]
	}

	return ids, nil
}

func (s *seeder) seedLibraries(ctx context.Context, libraries []libraryFixture, users, books map[string]int64) error {
	for _, l := range libraries {
		if l.Name == "" {
			return fmt.Errorf("fixture library without a name")
		}

		id, err := s.findByName(ctx, "library", l.Name)
		if err != nil {
			return err
		}
		if id == 0 {
			library := &api.Library{Name: l.Name}
			if err := s.storage.CreateLibrary(ctx, library); err != nil {
				return fmt.Errorf("failed to create library %q: %w", l.Name, err)
			}
			id = library.ID
		}

		if l.Librarian != "" {
			userID, ok := users[l.Librarian]
			if !ok {
				return fmt.Errorf("fixture library %q references unknown user %q", l.Name, l.Librarian)
			}
			if err := s.storage.AssignLibrarian(ctx, id, userID); err != nil {
				return fmt.Errorf("failed to assign librarian for %q: %w", l.Name, err)
			}
		}

		for _, title := range l.Books {
			bookID, ok := books[title]
			if !ok {
				return fmt.Errorf("fixture library %q shelves unknown book %q", l.Name, title)
			}
			if err := s.storage.AddLibraryBook(ctx, id, bookID); err != nil {
				return fmt.Errorf("failed to shelve %q in %q: %w", title, l.Name, err)
			}
		}
	}

	return nil
}

func (s *seeder) seedPosts(ctx context.Context, posts []postFixture, users map[string]int64) error {
	for _, p := range posts {
		if p.Title == "" {
			return fmt.Errorf("fixture post without a title")
		}
		authorID, ok := users[p.Author]
		if !ok {
			return fmt.Errorf("fixture post %q references unknown user %q", p.Title, p.Author)
		}

		id, err := s.findByName(ctx, "post", p.Title)
		if err != nil {
			return err
		}
		if id != 0 {
			// Comments ride along with their post. An existing post
			// keeps its thread untouched.
			continue
		}

		post := &api.Post{Title: p.Title, Content: p.Content, AuthorID: authorID}
		if err := s.storage.CreatePost(ctx, post); err != nil {
			return fmt.Errorf("failed to create post %q: %w", p.Title, err)
		}

		for _, c := range p.Comments {
			commentAuthor, ok := users[c.Author]
			if !ok {
				return fmt.Errorf("fixture comment on %q references unknown user %q", p.Title, c.Author)
			}
			comment := &api.Comment{PostID: post.ID, AuthorID: commentAuthor, Content: c.Content}
			if err := s.storage.CreateComment(ctx, comment); err != nil {
				return fmt.Errorf("failed to create comment on %q: %w", p.Title, err)
			}
		}
	}

	return nil
}

// findByName resolves a record by its name column, returning 0 when no
// match exists. The lookup goes through the same list queries the API
// serves, which keeps the seed tool off raw SQL.
func (s *seeder) findByName(ctx context.Context, kind, name string) (int64, error) {
	params := query.Params{Page: 1}

	switch kind {
	case "author":
		params.Filters = []query.Filter{{Column: "a.name", Lookup: query.LookupExact, Value: name}}
		matches, err := s.storage.ListAuthors(ctx, params, 1)
		if err != nil {
			return 0, fmt.Errorf("failed to look up author %q: %w", name, err)
		}
		if len(matches) > 0 {
			return matches[0].ID, nil
		}
	case "book":
		params.Filters = []query.Filter{{Column: "b.title", Lookup: query.LookupExact, Value: name}}
		matches, err := s.storage.ListBooks(ctx, params, 1)
		if err != nil {
			return 0, fmt.Errorf("failed to look up book %q: %w", name, err)
		}
		if len(matches) > 0 {
			return matches[0].ID, nil
		}
	case "library":
		params.Filters = []query.Filter{{Column: "l.name", Lookup: query.LookupExact, Value: name}}
		matches, err := s.storage.ListLibraries(ctx, params, 1)
		if err != nil {
			return 0, fmt.Errorf("failed to look up library %q: %w", name, err)
		}
		if len(matches) > 0 {
			return matches[0].ID, nil
		}
	case "post":
		params.Filters = []query.Filter{{Column: "p.title", Lookup: query.LookupExact, Value: name}}
		matches, err := s.storage.ListPosts(ctx, params, 1)
		if err != nil {
			return 0, fmt.Errorf("failed to look up post %q: %w", name, err)
		}
		if len(matches) > 0 {
			return matches[0].ID, nil
		}
	}

	return 0, nil
}
