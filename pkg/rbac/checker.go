package rbac

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pressleaf/biblio/pkg/observability"
)

// RoleSource yields the stored role for a user. api.Storage satisfies
// it.
type RoleSource interface {
	UserRole(ctx context.Context, userID int64) (string, error)
}

// Checker answers permission questions for authenticated users,
// memoizing role lookups so a burst of requests from one user costs a
// single database read.
type Checker struct {
	source RoleSource
	cache  *lru.LRU[int64, string]
	logger *observability.Logger
}

// NewChecker builds a checker over source. A ttl of zero disables the
// role cache, which makes role changes take effect immediately at the
// cost of a lookup per check.
func NewChecker(source RoleSource, cacheSize int, ttl time.Duration, logger *observability.Logger) *Checker {
	if cacheSize <= 0 {
		cacheSize = 1024
	}

	var cache *lru.LRU[int64, string]
	if ttl > 0 {
		cache = lru.NewLRU[int64, string](cacheSize, nil, ttl)
	}

	return &Checker{
		source: source,
		cache:  cache,
		logger: logger.WithField("component", "rbac"),
	}
}

// Role returns the user's role, from cache when fresh.
func (c *Checker) Role(ctx context.Context, userID int64) (string, error) {
	if c.cache != nil {
		if role, ok := c.cache.Get(userID); ok {
			return role, nil
		}
	}

	role, err := c.source.UserRole(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to look up role for user %d: %w", userID, err)
	}

	if c.cache != nil {
		c.cache.Add(userID, role)
	}
	return role, nil
}

// Can reports whether the user may perform action on resource.
func (c *Checker) Can(ctx context.Context, userID int64, resource Resource, action Action) (bool, error) {
	role, err := c.Role(ctx, userID)
	if err != nil {
		return false, err
	}

	allowed := Allowed(role, resource, action)
	if !allowed {
		c.logger.WithFields(map[string]interface{}{
			"user_id":  userID,
			"role":     role,
			"resource": string(resource),
			"action":   string(action),
		}).Debug("Permission denied")
	}
	return allowed, nil
}

// Invalidate drops a user's cached role. Called after SetUserRole so a
// promotion or demotion bites on this instance without waiting out the
// TTL. Other instances converge within the TTL.
func (c *Checker) Invalidate(userID int64) {
	if c.cache != nil {
		c.cache.Remove(userID)
	}
}
