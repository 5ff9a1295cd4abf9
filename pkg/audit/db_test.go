package audit

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSQLiteSink(t *testing.T) *DBSink {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// In-memory sqlite vanishes per connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	sink, err := NewDBSink(db, DialectSQLite)
	require.NoError(t, err)
	return sink
}

func TestNewDBSink(t *testing.T) {
	t.Run("nil database", func(t *testing.T) {
		_, err := NewDBSink(nil, DialectSQLite)
		assert.Error(t, err)
	})

	t.Run("unknown dialect", func(t *testing.T) {
		db, err := sql.Open("sqlite3", ":memory:")
		require.NoError(t, err)
		defer db.Close()

		_, err = NewDBSink(db, Dialect("oracle"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown audit dialect")
	})

	t.Run("creates table", func(t *testing.T) {
		sink := testSQLiteSink(t)

		var name string
		err := sink.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name='audit_events'").Scan(&name)
		require.NoError(t, err)
		assert.Equal(t, "audit_events", name)
	})
}

func TestDBSink_WriteAndSearch(t *testing.T) {
	sink := testSQLiteSink(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	userID := int64(42)

	first := &Event{
		OccurredAt: base,
		Type:       EventTypeAuthLogin,
		Status:     EventStatusSuccess,
		UserID:     &userID,
		Username:   "marguerite",
		Resource:   ResourceTypeUser,
		ResourceID: "42",
		IPAddress:  "203.0.113.9",
		RequestID:  "req-1",
		Method:     "POST",
		Path:       "/auth/login",
		Metadata:   map[string]interface{}{"provider": "password"},
	}
	require.NoError(t, sink.Write(ctx, first))
	assert.NotZero(t, first.ID)

	second := &Event{
		OccurredAt: base.Add(time.Minute),
		Type:       EventTypeAccessDenied,
		Status:     EventStatusDenied,
		Resource:   ResourceTypeBook,
		ResourceID: "12",
		Message:    "Access denied: role member cannot view audit",
	}
	require.NoError(t, sink.Write(ctx, second))
	assert.Greater(t, second.ID, first.ID)

	t.Run("all events newest first", func(t *testing.T) {
		events, err := sink.Search(ctx, SearchFilter{})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, EventTypeAccessDenied, events[0].Type)
		assert.Equal(t, EventTypeAuthLogin, events[1].Type)
	})

	t.Run("round trips fields", func(t *testing.T) {
		events, err := sink.Search(ctx, SearchFilter{Types: []EventType{EventTypeAuthLogin}})
		require.NoError(t, err)
		require.Len(t, events, 1)

		got := events[0]
		require.NotNil(t, got.UserID)
		assert.Equal(t, int64(42), *got.UserID)
		assert.Nil(t, got.TokenID)
		assert.Equal(t, "marguerite", got.Username)
		assert.Equal(t, ResourceTypeUser, got.Resource)
		assert.Equal(t, "203.0.113.9", got.IPAddress)
		assert.Equal(t, "req-1", got.RequestID)
		assert.Equal(t, "password", got.Metadata["provider"])
		assert.True(t, got.OccurredAt.Equal(base))
	})

	t.Run("by user", func(t *testing.T) {
		events, err := sink.Search(ctx, SearchFilter{UserID: &userID})
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("by status", func(t *testing.T) {
		denied := EventStatusDenied
		events, err := sink.Search(ctx, SearchFilter{Status: &denied})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "12", events[0].ResourceID)
	})

	t.Run("since excludes older", func(t *testing.T) {
		since := base.Add(30 * time.Second)
		events, err := sink.Search(ctx, SearchFilter{Since: &since})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeAccessDenied, events[0].Type)
	})

	t.Run("limit and offset", func(t *testing.T) {
		events, err := sink.Search(ctx, SearchFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeAuthLogin, events[0].Type)
	})

	t.Run("no matches", func(t *testing.T) {
		events, err := sink.Search(ctx, SearchFilter{IPAddress: "198.51.100.7"})
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestDBSink_Prune(t *testing.T) {
	sink := testSQLiteSink(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, age := range []time.Duration{100 * 24 * time.Hour, 95 * 24 * time.Hour, time.Hour} {
		require.NoError(t, sink.Write(ctx, &Event{
			OccurredAt: now.Add(-age),
			Type:       EventTypeAuthLogin,
			Status:     EventStatusSuccess,
		}))
	}

	pruned, err := sink.Prune(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	events, err := sink.Search(ctx, SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

// The postgres dialect differs in placeholders and RETURNING; sqlmock
// verifies the SQL shape without a server.
func TestDBSink_PostgresWrite(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	sink, err := NewDBSink(db, DialectPostgres)
	require.NoError(t, err)

	args := make([]driver.Value, 17)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	mock.ExpectQuery(`INSERT INTO audit_events .+ VALUES \(\$1,.+\$17\) RETURNING id`).
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	event := &Event{
		OccurredAt: time.Now().UTC(),
		Type:       EventTypeBookCreate,
		Status:     EventStatusSuccess,
	}
	require.NoError(t, sink.Write(context.Background(), event))
	assert.Equal(t, int64(7), event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBSink_PostgresSearchShape(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	sink, err := NewDBSink(db, DialectPostgres)
	require.NoError(t, err)

	userID := int64(42)
	columns := append([]string{"id"}, auditColumns...)
	mock.ExpectQuery(`SELECT .+ FROM audit_events WHERE user_id = \$1 AND status = \$2 ORDER BY occurred_at DESC, id DESC LIMIT 5`).
		WithArgs(userID, "denied").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			int64(3), time.Now().UTC(), "authz.access_denied", "denied",
			userID, "marguerite", nil,
			"book", "12", "",
			"203.0.113.9", "", "req-1",
			"GET", "/api/v1/admin/audit",
			"", "", nil,
		))

	denied := EventStatusDenied
	events, err := sink.Search(context.Background(), SearchFilter{
		UserID: &userID,
		Status: &denied,
		Limit:  5,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeAccessDenied, events[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBSink_PostgresPruneShape(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	sink, err := NewDBSink(db, DialectPostgres)
	require.NoError(t, err)

	mock.ExpectExec(`DELETE FROM audit_events WHERE occurred_at < \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 42))

	pruned, err := sink.Prune(context.Background(), time.Now().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(42), pruned)
	assert.NoError(t, mock.ExpectationsWereMet())
}
