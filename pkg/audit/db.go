package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
)

// Dialect selects the SQL flavor for the database sink.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const sqliteAuditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	occurred_at TIMESTAMP NOT NULL,
	event_type TEXT NOT NULL,
	status TEXT NOT NULL,
	user_id INTEGER,
	username TEXT NOT NULL DEFAULT '',
	token_id INTEGER,
	resource_type TEXT NOT NULL DEFAULT '',
	resource_id TEXT NOT NULL DEFAULT '',
	resource_name TEXT NOT NULL DEFAULT '',
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT '',
	method TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_events_user_id ON audit_events(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_status ON audit_events(status);
`

const postgresAuditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id BIGSERIAL PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	event_type VARCHAR(100) NOT NULL,
	status VARCHAR(20) NOT NULL,
	user_id BIGINT,
	username VARCHAR(255) NOT NULL DEFAULT '',
	token_id BIGINT,
	resource_type VARCHAR(50) NOT NULL DEFAULT '',
	resource_id VARCHAR(255) NOT NULL DEFAULT '',
	resource_name VARCHAR(255) NOT NULL DEFAULT '',
	ip_address VARCHAR(45) NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	request_id VARCHAR(100) NOT NULL DEFAULT '',
	method VARCHAR(10) NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	metadata JSONB
);

CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_events_user_id ON audit_events(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_status ON audit_events(status);
`

var auditColumns = []string{
	"occurred_at", "event_type", "status",
	"user_id", "username", "token_id",
	"resource_type", "resource_id", "resource_name",
	"ip_address", "user_agent", "request_id",
	"method", "path",
	"message", "error_message", "metadata",
}

// DBSink writes events to the audit_events table and implements Store
// for queries and retention pruning. It shares the application's
// database handle and works against sqlite and postgres.
type DBSink struct {
	db      *sql.DB
	dialect Dialect
	builder squirrel.StatementBuilderType
}

// NewDBSink creates the sink and ensures the audit_events table
// exists.
func NewDBSink(db *sql.DB, dialect Dialect) (*DBSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	builder := squirrel.StatementBuilder
	var schema string
	switch dialect {
	case DialectSQLite:
		schema = sqliteAuditSchema
	case DialectPostgres:
		builder = builder.PlaceholderFormat(squirrel.Dollar)
		schema = postgresAuditSchema
	default:
		return nil, fmt.Errorf("unknown audit dialect %q", dialect)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}

	return &DBSink{db: db, dialect: dialect, builder: builder}, nil
}

// Write inserts the event and sets event.ID.
func (s *DBSink) Write(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	if len(event.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	insert := s.builder.Insert("audit_events").
		Columns(auditColumns...).
		Values(
			event.OccurredAt, string(event.Type), string(event.Status),
			nullInt64(event.UserID), event.Username, nullInt64(event.TokenID),
			string(event.Resource), event.ResourceID, event.ResourceName,
			event.IPAddress, event.UserAgent, event.RequestID,
			event.Method, event.Path,
			event.Message, event.Error, metadataJSON,
		)

	if s.dialect == DialectPostgres {
		query, args, err := insert.Suffix("RETURNING id").ToSql()
		if err != nil {
			return fmt.Errorf("failed to build audit insert: %w", err)
		}
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(&event.ID); err != nil {
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
		return nil
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build audit insert: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// Search returns events matching the filter, newest first.
func (s *DBSink) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	sb := s.builder.Select(append([]string{"id"}, auditColumns...)...).
		From("audit_events")

	if filter.Since != nil {
		sb = sb.Where(squirrel.GtOrEq{"occurred_at": *filter.Since})
	}
	if filter.Until != nil {
		sb = sb.Where(squirrel.LtOrEq{"occurred_at": *filter.Until})
	}
	if filter.UserID != nil {
		sb = sb.Where(squirrel.Eq{"user_id": *filter.UserID})
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		sb = sb.Where(squirrel.Eq{"event_type": types})
	}
	if filter.Status != nil {
		sb = sb.Where(squirrel.Eq{"status": string(*filter.Status)})
	}
	if filter.Resource != "" {
		sb = sb.Where(squirrel.Eq{"resource_type": string(filter.Resource)})
	}
	if filter.ResourceID != "" {
		sb = sb.Where(squirrel.Eq{"resource_id": filter.ResourceID})
	}
	if filter.IPAddress != "" {
		sb = sb.Where(squirrel.Eq{"ip_address": filter.IPAddress})
	}

	sb = sb.OrderBy("occurred_at DESC", "id DESC")
	if filter.Limit > 0 {
		sb = sb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		sb = sb.Offset(uint64(filter.Offset))
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

// Prune deletes events older than the cutoff and reports how many
// rows went away.
func (s *DBSink) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	query, args, err := s.builder.Delete("audit_events").
		Where(squirrel.Lt{"occurred_at": olderThan}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build audit prune: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	return result.RowsAffected()
}

// Close is a no-op; the database handle is owned by the storage layer.
func (s *DBSink) Close() error {
	return nil
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	event := &Event{}
	var (
		eventType, status, resource string
		userID, tokenID             sql.NullInt64
		metadataJSON                []byte
	)

	err := rows.Scan(
		&event.ID,
		&event.OccurredAt, &eventType, &status,
		&userID, &event.Username, &tokenID,
		&resource, &event.ResourceID, &event.ResourceName,
		&event.IPAddress, &event.UserAgent, &event.RequestID,
		&event.Method, &event.Path,
		&event.Message, &event.Error, &metadataJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}

	event.Type = EventType(eventType)
	event.Status = EventStatus(status)
	event.Resource = ResourceType(resource)
	if userID.Valid {
		event.UserID = &userID.Int64
	}
	if tokenID.Valid {
		event.TokenID = &tokenID.Int64
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
		}
	}
	return event, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
