package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/auth"
)

func insertToken(t *testing.T, s *Store, userID int64, hash string, expiresAt *time.Time) *auth.Token {
	t.Helper()

	token := &auth.Token{
		UserID:    userID,
		Name:      "test token",
		Prefix:    "biblio_" + hash[:min(8, len(hash))],
		Hash:      hash,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
	if err := s.InsertToken(context.Background(), token); err != nil {
		t.Fatalf("InsertToken() error = %v", err)
	}
	return token
}

func TestStore_TokenByHash(t *testing.T) {
	store := testStore(t)
	alice := createUser(t, store, "alice", "alice@example.com")

	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	created := insertToken(t, store, alice.ID, "hash-one", &expires)

	t.Run("round trips nullable fields", func(t *testing.T) {
		got, err := store.TokenByHash(context.Background(), "hash-one")
		if err != nil {
			t.Fatalf("TokenByHash() error = %v", err)
		}
		if got.ID != created.ID || got.UserID != alice.ID {
			t.Errorf("got token %d for user %d", got.ID, got.UserID)
		}
		if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
			t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expires)
		}
		if got.LastUsedAt != nil {
			t.Errorf("LastUsedAt = %v, want nil before first use", got.LastUsedAt)
		}
	})

	t.Run("unknown hash reports not found", func(t *testing.T) {
		_, err := store.TokenByHash(context.Background(), "no-such-hash")
		if !errors.Is(err, api.ErrNotFound) {
			t.Fatalf("TokenByHash() error = %v, want not found", err)
		}
	})
}

func TestStore_UserTokens(t *testing.T) {
	store := testStore(t)
	alice := createUser(t, store, "alice", "alice@example.com")
	bob := createUser(t, store, "bob", "bob@example.com")

	for i := 0; i < 3; i++ {
		insertToken(t, store, alice.ID, fmt.Sprintf("alice-hash-%d", i), nil)
	}
	insertToken(t, store, bob.ID, "bob-hash", nil)

	tokens, err := store.UserTokens(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("UserTokens() error = %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("got %d tokens, want 3", len(tokens))
	}
	// Newest first; same-instant inserts fall back to id.
	if tokens[0].Hash != "alice-hash-2" || tokens[2].Hash != "alice-hash-0" {
		t.Errorf("tokens span %q..%q, want newest first", tokens[0].Hash, tokens[2].Hash)
	}
}

func TestStore_RevokeToken(t *testing.T) {
	store := testStore(t)
	alice := createUser(t, store, "alice", "alice@example.com")
	bob := createUser(t, store, "bob", "bob@example.com")
	token := insertToken(t, store, alice.ID, "alice-hash", nil)

	t.Run("owner mismatch reports not found", func(t *testing.T) {
		err := store.RevokeToken(context.Background(), token.ID, bob.ID)
		if !errors.Is(err, api.ErrNotFound) {
			t.Fatalf("RevokeToken() as bob error = %v, want not found", err)
		}
	})

	t.Run("owner can revoke", func(t *testing.T) {
		if err := store.RevokeToken(context.Background(), token.ID, alice.ID); err != nil {
			t.Fatalf("RevokeToken() error = %v", err)
		}
		if _, err := store.TokenByHash(context.Background(), "alice-hash"); !errors.Is(err, api.ErrNotFound) {
			t.Errorf("TokenByHash() after revoke error = %v, want not found", err)
		}
	})
}

func TestStore_TouchToken(t *testing.T) {
	store := testStore(t)
	alice := createUser(t, store, "alice", "alice@example.com")
	token := insertToken(t, store, alice.ID, "alice-hash", nil)

	used := time.Now().UTC().Truncate(time.Second)
	if err := store.TouchToken(context.Background(), token.ID, used); err != nil {
		t.Fatalf("TouchToken() error = %v", err)
	}

	got, err := store.TokenByHash(context.Background(), "alice-hash")
	if err != nil {
		t.Fatalf("TokenByHash() error = %v", err)
	}
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(used) {
		t.Errorf("LastUsedAt = %v, want %v", got.LastUsedAt, used)
	}
}

func TestStore_DeleteExpiredTokens(t *testing.T) {
	store := testStore(t)
	alice := createUser(t, store, "alice", "alice@example.com")

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	insertToken(t, store, alice.ID, "expired", &past)
	insertToken(t, store, alice.ID, "current", &future)
	insertToken(t, store, alice.ID, "eternal", nil)

	deleted, err := store.DeleteExpiredTokens(context.Background(), now)
	if err != nil {
		t.Fatalf("DeleteExpiredTokens() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if _, err := store.TokenByHash(context.Background(), "expired"); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("expired token should be gone, got error = %v", err)
	}
	if _, err := store.TokenByHash(context.Background(), "current"); err != nil {
		t.Errorf("current token should survive, got error = %v", err)
	}
	if _, err := store.TokenByHash(context.Background(), "eternal"); err != nil {
		t.Errorf("eternal token should survive, got error = %v", err)
	}
}
