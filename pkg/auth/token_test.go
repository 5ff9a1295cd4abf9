package auth

import (
	"strings"
	"testing"
	"time"
)

func TestTokenGenerator_GenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, tokenHash, tokenPrefix, err := tg.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if !strings.HasPrefix(token, TokenPrefix) {
		t.Errorf("token should start with %q, got %q", TokenPrefix, token)
	}

	// biblio_ plus 64 hex characters
	if len(token) != len(TokenPrefix)+2*TokenLength {
		t.Errorf("token length = %d, want %d", len(token), len(TokenPrefix)+2*TokenLength)
	}

	// SHA-256 = 64 hex chars
	if len(tokenHash) != 64 {
		t.Errorf("tokenHash length = %d, want 64", len(tokenHash))
	}

	want := TokenPrefix + strings.TrimPrefix(token, TokenPrefix)[:8]
	if tokenPrefix != want {
		t.Errorf("tokenPrefix = %q, want %q", tokenPrefix, want)
	}

	if err := tg.ValidateTokenFormat(token); err != nil {
		t.Errorf("generated token failed its own format check: %v", err)
	}
}

func TestTokenGenerator_GenerateToken_Uniqueness(t *testing.T) {
	tg := NewTokenGenerator()

	tokens := make(map[string]bool)
	hashes := make(map[string]bool)

	for i := 0; i < 100; i++ {
		token, tokenHash, _, err := tg.GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}

		if tokens[token] {
			t.Errorf("duplicate token generated: %s", token)
		}
		if hashes[tokenHash] {
			t.Errorf("duplicate token hash generated: %s", tokenHash)
		}

		tokens[token] = true
		hashes[tokenHash] = true
	}
}

func TestTokenGenerator_HashToken(t *testing.T) {
	tg := NewTokenGenerator()

	token := "biblio_" + strings.Repeat("ab", 32)
	hash1 := tg.HashToken(token)
	hash2 := tg.HashToken(token)

	if hash1 != hash2 {
		t.Error("same token should produce same hash")
	}
	if len(hash1) != 64 {
		t.Errorf("hash length = %d, want 64", len(hash1))
	}

	hash3 := tg.HashToken("biblio_" + strings.Repeat("cd", 32))
	if hash1 == hash3 {
		t.Error("different tokens should produce different hashes")
	}
}

func TestTokenGenerator_ValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{
			name:    "valid token",
			token:   "biblio_" + strings.Repeat("0123456789abcdef", 4),
			wantErr: false,
		},
		{
			name:    "missing prefix",
			token:   strings.Repeat("0123456789abcdef", 4),
			wantErr: true,
		},
		{
			name:    "wrong prefix",
			token:   "other_" + strings.Repeat("0123456789abcdef", 4),
			wantErr: true,
		},
		{
			name:    "empty random part",
			token:   "biblio_",
			wantErr: true,
		},
		{
			name:    "too short",
			token:   "biblio_abc123",
			wantErr: true,
		},
		{
			name:    "uppercase hex rejected",
			token:   "biblio_" + strings.Repeat("0123456789ABCDEF", 4),
			wantErr: true,
		},
		{
			name:    "non-hex characters",
			token:   "biblio_" + strings.Repeat("0123456789abcdeg", 4),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tg.ValidateTokenFormat(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTokenFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenGenerator_ExtractPrefix(t *testing.T) {
	tg := NewTokenGenerator()

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{
			name:  "normal token",
			token: "biblio_abc123def456",
			want:  "biblio_abc123de",
		},
		{
			name:  "short token",
			token: "biblio_abc",
			want:  "biblio_abc",
		},
		{
			name:  "no prefix",
			token: "invalid",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tg.ExtractPrefix(tt.token)
			if got != tt.want {
				t.Errorf("ExtractPrefix() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToken_Expired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{name: "no expiry never expires", expiresAt: nil, want: false},
		{name: "future expiry", expiresAt: &future, want: false},
		{name: "past expiry", expiresAt: &past, want: true},
		{name: "exactly at expiry still valid", expiresAt: &now, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := &Token{ExpiresAt: tt.expiresAt}
			if got := token.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
