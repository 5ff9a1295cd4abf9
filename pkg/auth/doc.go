// Package auth provides API token management and password hashing for
// the biblio service.
//
// # Overview
//
// Authentication is bearer-token based. A token is an opaque string
//
//	biblio_<64 hex characters>
//
// generated from 32 random bytes. The server never stores the
// plaintext: tokens are persisted as their hex SHA-256 hash plus a
// short display prefix (biblio_ and the first 8 characters of the
// random part) so listings can identify a token without exposing it.
//
// # Issuing Tokens
//
//	manager := auth.NewManager(store)
//	token, plaintext, err := manager.Issue(ctx, userID, "CI pipeline", &expiresAt)
//	// plaintext is returned exactly once; token.Hash is what the
//	// store keeps.
//
// # Authenticating Requests
//
//	identity, err := manager.Authenticate(ctx, presented)
//	if errors.Is(err, auth.ErrInvalidToken) {
//		// respond 401; malformed, unknown and expired tokens are
//		// deliberately indistinguishable here
//	}
//
// Authenticate also refreshes the token's last_used_at, throttled so
// a busy token does not turn every read into a write.
//
// # Passwords
//
// Login-by-password uses bcrypt:
//
//	hash, err := auth.HashPassword(password, cost)
//	ok := auth.CheckPassword(hash, password)
//
// # Related Packages
//
//   - pkg/middleware: HTTP bearer authentication built on Manager
//   - pkg/rbac: role checks layered on top of the resolved identity
//   - pkg/audit: records authentication successes and failures
package auth
