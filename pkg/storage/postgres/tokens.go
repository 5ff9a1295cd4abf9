package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/auth"
)

const tokenColumns = "id, user_id, name, prefix, hash, created_at, expires_at, last_used_at"

func scanToken(row rowScanner) (*auth.Token, error) {
	var (
		t        auth.Token
		expires  sql.NullTime
		lastUsed sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Prefix, &t.Hash,
		&t.CreatedAt, &expires, &lastUsed)
	if err != nil {
		return nil, err
	}
	t.ExpiresAt = timePtr(expires)
	t.LastUsedAt = timePtr(lastUsed)
	return &t, nil
}

// InsertToken stores a freshly issued token and fills in its id.
func (s *Store) InsertToken(ctx context.Context, token *auth.Token) error {
	err := s.conns.Primary().QueryRowContext(ctx,
		`INSERT INTO tokens (user_id, name, prefix, hash, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		token.UserID, token.Name, token.Prefix, token.Hash,
		token.CreatedAt, nullTime(token.ExpiresAt),
	).Scan(&token.ID)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// TokenByHash looks up a token by its stored hash. The lookup runs on
// the primary: a token issued a moment ago must authenticate, and a
// lagging replica would reject fresh logins.
func (s *Store) TokenByHash(ctx context.Context, hash string) (*auth.Token, error) {
	t, err := scanToken(s.conns.Primary().QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM tokens WHERE hash = $1", hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "token"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return t, nil
}

// UserTokens returns all of one user's tokens, newest first.
func (s *Store) UserTokens(ctx context.Context, userID int64) ([]*auth.Token, error) {
	rows, err := s.conns.Primary().QueryContext(ctx,
		"SELECT "+tokenColumns+" FROM tokens WHERE user_id = $1 ORDER BY created_at DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*auth.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// RevokeToken deletes one of userID's tokens. The owner check is part
// of the predicate so revoking someone else's token reports not found.
func (s *Store) RevokeToken(ctx context.Context, id, userID int64) error {
	res, err := s.conns.Primary().ExecContext(ctx,
		"DELETE FROM tokens WHERE id = $1 AND user_id = $2", id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "token", ID: id}
	}
	return nil
}

// TouchToken records when a token was last used.
func (s *Store) TouchToken(ctx context.Context, id int64, usedAt time.Time) error {
	_, err := s.conns.Primary().ExecContext(ctx,
		"UPDATE tokens SET last_used_at = $1 WHERE id = $2", usedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	return nil
}

// DeleteExpiredTokens removes every token whose expiry has passed and
// reports how many were removed. Tokens without an expiry live
// forever.
func (s *Store) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.conns.Primary().ExecContext(ctx,
		"DELETE FROM tokens WHERE expires_at IS NOT NULL AND expires_at < $1", before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected, nil
}
