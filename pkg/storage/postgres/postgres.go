package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/storage"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"

// psql builds statements with $n placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Store implements api.Storage on PostgreSQL. Writes go to the
// primary; list and detail reads go to replicas when configured.
type Store struct {
	conns  *ConnectionManager
	logger *observability.Logger
}

var _ api.Storage = (*Store)(nil)

// New connects using the storage config and ensures the schema.
func New(cfg storage.Config, logger *observability.Logger) (*Store, error) {
	conns, err := NewConnectionManager(ConnectionConfig{
		PrimaryURL:  cfg.PostgresURL,
		ReplicaURLs: ParseReplicaURLs(cfg.PostgresReplicaURLs),
		MaxConns:    cfg.PostgresMaxConns,
		MinConns:    cfg.PostgresMinConns,
		Timeout:     cfg.PostgresTimeout,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
	}, logger)
	if err != nil {
		return nil, err
	}

	if _, err := conns.Primary().Exec(schema); err != nil {
		conns.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{conns: conns, logger: logger}, nil
}

// Ping reports whether the primary and replicas are reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}

// Close closes all connections
func (s *Store) Close() error {
	return s.conns.Close()
}

// DB exposes the primary handle for components that manage their own
// tables, such as the audit sink and the stats rollup.
func (s *Store) DB() *sql.DB {
	return s.conns.Primary()
}

// Conns exposes the connection manager for health checks and pool
// stats.
func (s *Store) Conns() *ConnectionManager {
	return s.conns
}

// isUniqueViolation reports whether err is a unique constraint
// failure, and on which constraint.
func isUniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
