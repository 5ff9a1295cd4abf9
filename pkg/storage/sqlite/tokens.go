package sqlite

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
		t          auth.Token
		expiresAt  sql.NullTime
		lastUsedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Prefix, &t.Hash, &t.CreatedAt, &expiresAt, &lastUsedAt)
	if err != nil {
		return nil, err
	}
	t.ExpiresAt = timePtr(expiresAt)
	t.LastUsedAt = timePtr(lastUsedAt)
	return &t, nil
}

// InsertToken stores a freshly issued token and fills in its id.
func (s *Store) InsertToken(ctx context.Context, token *auth.Token) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO tokens (user_id, name, prefix, hash, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)",
		token.UserID, token.Name, token.Prefix, token.Hash, token.CreatedAt, nullTime(token.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read token id: %w", err)
	}

	token.ID = id
	return nil
}

// TokenByHash returns the token whose stored digest matches hash.
func (s *Store) TokenByHash(ctx context.Context, hash string) (*auth.Token, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tokenColumns+" FROM tokens WHERE hash = ?", hash)

	token, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "token"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

// UserTokens returns every token belonging to userID, newest first.
func (s *Store) UserTokens(ctx context.Context, userID int64) ([]*auth.Token, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+tokenColumns+" FROM tokens WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*auth.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// RevokeToken deletes one token. The owner check is part of the
// predicate so revoking someone else's token reports not found.
func (s *Store) RevokeToken(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE id = ? AND user_id = ?", id, userID)
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

// TouchToken records when a token last authenticated a request.
func (s *Store) TouchToken(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE tokens SET last_used_at = ? WHERE id = ?", at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	return nil
}

// DeleteExpiredTokens removes tokens whose expiry passed before the
// given time and reports how many went.
func (s *Store) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM tokens WHERE expires_at IS NOT NULL AND expires_at < ?",
		before.UTC(),
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
