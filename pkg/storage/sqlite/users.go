package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressleaf/biblio/pkg/api"
)

const userColumns = "id, username, email, password_hash, role, created_at"

func scanUser(row rowScanner) (*api.User, error) {
	var u api.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// userConflict maps a UNIQUE violation on users to the column that
// caused it. SQLite names the column in the error text.
func userConflict(err error) error {
	if !isUniqueViolation(err) {
		return nil
	}
	if strings.Contains(err.Error(), "users.username") {
		return &api.ConflictError{Message: "username already taken", Field: "username"}
	}
	return &api.ConflictError{Message: "email already registered", Field: "email"}
}

// CreateUser inserts user and fills in its id and timestamp. Username
// and email must both be unused.
func (s *Store) CreateUser(ctx context.Context, user *api.User) error {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)",
		user.Username, user.Email, user.PasswordHash, user.Role, now,
	)
	if err != nil {
		if conflict := userConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	return nil
}

// GetUser returns one user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*api.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "user", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByUsername returns one user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*api.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "user"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail returns one user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*api.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "user"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateUser writes the user's email and password hash. Usernames are
// immutable and roles change through SetUserRole.
func (s *Store) UpdateUser(ctx context.Context, user *api.User) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET email = ?, password_hash = ? WHERE id = ?",
		user.Email, user.PasswordHash, user.ID,
	)
	if err != nil {
		if conflict := userConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "user", ID: user.ID}
	}
	return nil
}

// SetUserRole writes the user's role.
func (s *Store) SetUserRole(ctx context.Context, id int64, role string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET role = ? WHERE id = ?", role, id)
	if err != nil {
		return fmt.Errorf("failed to set user role: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "user", ID: id}
	}
	return nil
}

// UserRole returns the user's role.
func (s *Store) UserRole(ctx context.Context, id int64) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, "SELECT role FROM users WHERE id = ?", id).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &api.NotFoundError{Resource: "user", ID: id}
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user role: %w", err)
	}
	return role, nil
}
