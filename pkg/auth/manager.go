package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidToken covers every token that cannot authenticate:
// malformed, unknown, revoked or expired. Callers answer 401 without
// revealing which case it was.
var ErrInvalidToken = errors.New("invalid or expired token")

// Store is the token persistence a Manager needs. The storage
// backends satisfy it.
type Store interface {
	InsertToken(ctx context.Context, token *Token) error
	TokenByHash(ctx context.Context, hash string) (*Token, error)
	TouchToken(ctx context.Context, id int64, at time.Time) error
}

// Identity is the authenticated principal resolved from a bearer
// token.
type Identity struct {
	UserID  int64
	TokenID int64
}

// touchInterval limits how often LastUsedAt is written back so busy
// tokens do not turn every read into a write.
const touchInterval = time.Minute

// Manager issues tokens and resolves presented ones to identities.
type Manager struct {
	store     Store
	generator *TokenGenerator
	now       func() time.Time
}

// NewManager creates a manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:     store,
		generator: NewTokenGenerator(),
		now:       time.Now,
	}
}

// Issue creates and stores a token for userID. The plaintext comes
// back exactly once; only its hash is stored.
func (m *Manager) Issue(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*Token, string, error) {
	plaintext, hash, prefix, err := m.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	token := &Token{
		UserID:    userID,
		Name:      name,
		Prefix:    prefix,
		Hash:      hash,
		CreatedAt: m.now().UTC(),
		ExpiresAt: expiresAt,
	}
	if err := m.store.InsertToken(ctx, token); err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}
	return token, plaintext, nil
}

// Authenticate resolves a presented bearer token to an identity and
// records the use. Auth failures come back as ErrInvalidToken; other
// errors mean the store itself failed.
func (m *Manager) Authenticate(ctx context.Context, presented string) (*Identity, error) {
	if err := m.generator.ValidateTokenFormat(presented); err != nil {
		return nil, ErrInvalidToken
	}

	token, err := m.store.TokenByHash(ctx, m.generator.HashToken(presented))
	if err != nil {
		if notFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	now := m.now().UTC()
	if token.Expired(now) {
		return nil, ErrInvalidToken
	}

	if token.LastUsedAt == nil || now.Sub(*token.LastUsedAt) >= touchInterval {
		// Best effort: a failed touch never fails authentication.
		_ = m.store.TouchToken(ctx, token.ID, now)
	}

	return &Identity{UserID: token.UserID, TokenID: token.ID}, nil
}

// notFound recognizes the storage layer's missing-record errors
// through an anonymous interface, without a dependency on the storage
// contract package.
func notFound(err error) bool {
	var nf interface{ NotFound() bool }
	return errors.As(err, &nf) && nf.NotFound()
}
