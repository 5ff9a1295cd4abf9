package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies biblio tokens
	TokenPrefix = "biblio_"
	// TokenLength is the number of random bytes in a token (32 bytes = 64 hex chars)
	TokenLength = 32

	// displayPrefixLength is how many characters of the random part
	// are kept for display in token listings.
	displayPrefixLength = 8
)

// Token is a stored API token. The plaintext is shown once at issue
// time and never persisted: Hash is the hex SHA-256 of the full token
// and Prefix is the short leading fragment shown in listings.
type Token struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Name       string     `json:"name,omitempty"`
	Prefix     string     `json:"prefix"`
	Hash       string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Expired reports whether the token is past its expiry at the given
// time. Tokens without an expiry never expire.
func (t *Token) Expired(at time.Time) bool {
	return t.ExpiresAt != nil && at.After(*t.ExpiresAt)
}

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

var tokenFormat = regexp.MustCompile("^" + TokenPrefix + "[0-9a-f]{" + fmt.Sprint(2*TokenLength) + "}$")

// GenerateToken creates a new API token.
// Format: biblio_<hex(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := hex.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encoded

	return fullToken, tg.HashToken(fullToken), TokenPrefix + encoded[:displayPrefixLength], nil
}

// HashToken computes the hex SHA-256 of a token for storage and lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks whether a presented token can possibly be
// one of ours, before any storage lookup happens.
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}
	if !tokenFormat.MatchString(token) {
		return fmt.Errorf("token must be %q followed by %d hex characters", TokenPrefix, 2*TokenLength)
	}
	return nil
}

// ExtractPrefix extracts the display prefix from a full token.
func (tg *TokenGenerator) ExtractPrefix(token string) string {
	if !strings.HasPrefix(token, TokenPrefix) {
		return ""
	}

	rest := strings.TrimPrefix(token, TokenPrefix)
	if len(rest) >= displayPrefixLength {
		return TokenPrefix + rest[:displayPrefixLength]
	}
	return token
}
