package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/pressleaf/biblio/pkg/api"
)

func TestStore_CreateUser(t *testing.T) {
	t.Run("fills id and timestamp", func(t *testing.T) {
		store := testStore(t)

		user := createUser(t, store, "alice", "alice@example.com")
		if user.ID == 0 {
			t.Error("ID should be assigned")
		}
		if user.CreatedAt.IsZero() {
			t.Error("CreatedAt should be set")
		}
	})

	t.Run("duplicate username conflicts", func(t *testing.T) {
		store := testStore(t)
		createUser(t, store, "alice", "alice@example.com")

		dup := &api.User{Username: "alice", Email: "other@example.com", PasswordHash: "x", Role: "member"}
		err := store.CreateUser(context.Background(), dup)
		if !errors.Is(err, api.ErrConflict) {
			t.Fatalf("CreateUser() error = %v, want conflict", err)
		}
		if err.Error() != "username already taken" {
			t.Errorf("error = %q, want username message", err.Error())
		}
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		store := testStore(t)
		createUser(t, store, "alice", "alice@example.com")

		dup := &api.User{Username: "alice2", Email: "alice@example.com", PasswordHash: "x", Role: "member"}
		err := store.CreateUser(context.Background(), dup)
		if !errors.Is(err, api.ErrConflict) {
			t.Fatalf("CreateUser() error = %v, want conflict", err)
		}
		if err.Error() != "email already registered" {
			t.Errorf("error = %q, want email message", err.Error())
		}
	})
}

func TestStore_GetUser(t *testing.T) {
	store := testStore(t)
	created := createUser(t, store, "alice", "alice@example.com")

	t.Run("by id", func(t *testing.T) {
		got, err := store.GetUser(context.Background(), created.ID)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		if got.Username != "alice" || got.Email != "alice@example.com" {
			t.Errorf("got %q/%q", got.Username, got.Email)
		}
		if got.Role != "member" {
			t.Errorf("Role = %q, want member", got.Role)
		}
	})

	t.Run("by username", func(t *testing.T) {
		got, err := store.GetUserByUsername(context.Background(), "alice")
		if err != nil {
			t.Fatalf("GetUserByUsername() error = %v", err)
		}
		if got.ID != created.ID {
			t.Errorf("ID = %d, want %d", got.ID, created.ID)
		}
	})

	t.Run("by email", func(t *testing.T) {
		got, err := store.GetUserByEmail(context.Background(), "alice@example.com")
		if err != nil {
			t.Fatalf("GetUserByEmail() error = %v", err)
		}
		if got.ID != created.ID {
			t.Errorf("ID = %d, want %d", got.ID, created.ID)
		}
	})

	t.Run("missing lookups report not found", func(t *testing.T) {
		if _, err := store.GetUser(context.Background(), 99); !errors.Is(err, api.ErrNotFound) {
			t.Errorf("GetUser(99) error = %v, want not found", err)
		}
		if _, err := store.GetUserByUsername(context.Background(), "nobody"); !errors.Is(err, api.ErrNotFound) {
			t.Errorf("GetUserByUsername(nobody) error = %v, want not found", err)
		}
		if _, err := store.GetUserByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, api.ErrNotFound) {
			t.Errorf("GetUserByEmail(nobody) error = %v, want not found", err)
		}
	})
}

func TestStore_UpdateUser(t *testing.T) {
	t.Run("writes email and password hash", func(t *testing.T) {
		store := testStore(t)
		user := createUser(t, store, "alice", "alice@example.com")

		user.Email = "alice@new.example.com"
		user.PasswordHash = "rehashed"
		if err := store.UpdateUser(context.Background(), user); err != nil {
			t.Fatalf("UpdateUser() error = %v", err)
		}

		got, err := store.GetUser(context.Background(), user.ID)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		if got.Email != "alice@new.example.com" || got.PasswordHash != "rehashed" {
			t.Errorf("got %q/%q", got.Email, got.PasswordHash)
		}
	})

	t.Run("stealing another user's email conflicts", func(t *testing.T) {
		store := testStore(t)
		createUser(t, store, "alice", "alice@example.com")
		bob := createUser(t, store, "bob", "bob@example.com")

		bob.Email = "alice@example.com"
		err := store.UpdateUser(context.Background(), bob)
		if !errors.Is(err, api.ErrConflict) {
			t.Fatalf("UpdateUser() error = %v, want conflict", err)
		}
	})
}

func TestStore_UserRole(t *testing.T) {
	store := testStore(t)
	user := createUser(t, store, "alice", "alice@example.com")

	role, err := store.UserRole(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("UserRole() error = %v", err)
	}
	if role != "member" {
		t.Errorf("role = %q, want member", role)
	}

	if err := store.SetUserRole(context.Background(), user.ID, "librarian"); err != nil {
		t.Fatalf("SetUserRole() error = %v", err)
	}

	role, err = store.UserRole(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("UserRole() after set error = %v", err)
	}
	if role != "librarian" {
		t.Errorf("role = %q, want librarian", role)
	}

	if err := store.SetUserRole(context.Background(), 99, "admin"); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("SetUserRole(99) error = %v, want not found", err)
	}
}
