package postgres

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

// userConflict maps a unique violation on the users table to the
// message naming the column that collided.
func userConflict(constraint string) error {
	if strings.Contains(constraint, "username") {
		return &api.ConflictError{Message: "username already taken", Field: "username"}
	}
	return &api.ConflictError{Message: "email already registered", Field: "email"}
}

// CreateUser inserts user and fills in its id and timestamp. Username
// and email must both be unused.
func (s *Store) CreateUser(ctx context.Context, user *api.User) error {
	now := time.Now().UTC()

	err := s.conns.Primary().QueryRowContext(ctx,
		`INSERT INTO users (username, email, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		user.Username, user.Email, user.PasswordHash, user.Role, now,
	).Scan(&user.ID)
	if err != nil {
		if constraint, ok := isUniqueViolation(err); ok {
			return userConflict(constraint)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	return nil
}

// GetUser returns one user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*api.User, error) {
	u, err := scanUser(s.conns.Replica().QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "user", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns one user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*api.User, error) {
	u, err := scanUser(s.conns.Replica().QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "user"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns one user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*api.User, error) {
	u, err := scanUser(s.conns.Replica().QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "user"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// UpdateUser writes the user's mutable fields. Usernames are
// immutable and roles change through SetUserRole.
func (s *Store) UpdateUser(ctx context.Context, user *api.User) error {
	res, err := s.conns.Primary().ExecContext(ctx,
		"UPDATE users SET email = $1, password_hash = $2 WHERE id = $3",
		user.Email, user.PasswordHash, user.ID,
	)
	if err != nil {
		if constraint, ok := isUniqueViolation(err); ok {
			return userConflict(constraint)
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

// SetUserRole changes one user's role.
func (s *Store) SetUserRole(ctx context.Context, userID int64, role string) error {
	res, err := s.conns.Primary().ExecContext(ctx,
		"UPDATE users SET role = $1 WHERE id = $2", role, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set user role: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "user", ID: userID}
	}
	return nil
}

// UserRole returns one user's role.
func (s *Store) UserRole(ctx context.Context, userID int64) (string, error) {
	var role string
	err := s.conns.Replica().QueryRowContext(ctx,
		"SELECT role FROM users WHERE id = $1", userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &api.NotFoundError{Resource: "user", ID: userID}
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user role: %w", err)
	}
	return role, nil
}
