package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	// MinCost keeps the test fast; production cost comes from config.
	hash, err := HashPassword("correct horse battery staple", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if !strings.HasPrefix(hash, "$2a$") {
		t.Errorf("hash = %q, want bcrypt format", hash)
	}
	if !CheckPassword(hash, "correct horse battery staple") {
		t.Error("CheckPassword() should accept the original password")
	}
	if CheckPassword(hash, "wrong password") {
		t.Error("CheckPassword() should reject a different password")
	}
}

func TestHashPassword_CostOutOfRange(t *testing.T) {
	// An absurd cost falls back to the default instead of failing.
	hash, err := HashPassword("password123", 99)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("Cost() error = %v", err)
	}
	if cost != DefaultBcryptCost {
		t.Errorf("cost = %d, want %d", cost, DefaultBcryptCost)
	}
}

func TestCheckPassword_BadHash(t *testing.T) {
	if CheckPassword("not a bcrypt hash", "anything") {
		t.Error("CheckPassword() should reject a malformed hash")
	}
}
