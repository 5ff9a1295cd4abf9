package stats

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/go-redis/redis/v8"

	"github.com/pressleaf/biblio/pkg/observability"
)

// Dialect selects the SQL flavor for the rollup table.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const sqliteStatsSchema = `
CREATE TABLE IF NOT EXISTS stats_daily (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	day TEXT NOT NULL,
	kind TEXT NOT NULL,
	item TEXT NOT NULL DEFAULT '',
	count INTEGER NOT NULL DEFAULT 0,
	UNIQUE (day, kind, item)
);

CREATE INDEX IF NOT EXISTS idx_stats_daily_day ON stats_daily(day);
CREATE INDEX IF NOT EXISTS idx_stats_daily_kind ON stats_daily(kind);
`

const postgresStatsSchema = `
CREATE TABLE IF NOT EXISTS stats_daily (
	id BIGSERIAL PRIMARY KEY,
	day DATE NOT NULL,
	kind VARCHAR(50) NOT NULL,
	item VARCHAR(255) NOT NULL DEFAULT '',
	count BIGINT NOT NULL DEFAULT 0,
	UNIQUE (day, kind, item)
);

CREATE INDEX IF NOT EXISTS idx_stats_daily_day ON stats_daily(day);
CREATE INDEX IF NOT EXISTS idx_stats_daily_kind ON stats_daily(kind);
`

// Rollup moves a finished day's Redis counters into the stats_daily
// table, where they survive Redis restarts and stay queryable long
// after the live keys are gone. It shares the application's database
// handle and works against sqlite and postgres.
type Rollup struct {
	redis   *redis.Client
	db      *sql.DB
	dialect Dialect
	builder squirrel.StatementBuilderType
	logger  *observability.Logger
}

// NewRollup creates the rollup and ensures the stats_daily table
// exists.
func NewRollup(client *redis.Client, db *sql.DB, dialect Dialect, logger *observability.Logger) (*Rollup, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	builder := squirrel.StatementBuilder
	var schema string
	switch dialect {
	case DialectSQLite:
		schema = sqliteStatsSchema
	case DialectPostgres:
		builder = builder.PlaceholderFormat(squirrel.Dollar)
		schema = postgresStatsSchema
	default:
		return nil, fmt.Errorf("unknown stats dialect %q", dialect)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to ensure stats_daily table: %w", err)
	}

	return &Rollup{
		redis:   client,
		db:      db,
		dialect: dialect,
		builder: builder,
		logger:  logger.WithField("component", "stats_rollup"),
	}, nil
}

// Run rolls the given day's counters into stats_daily and deletes the
// consumed Redis keys. Running a day again overwrites its rows, so a
// rerun after a partial failure is safe. The current day's keys are
// read but never deleted, because requests are still adding to them.
func (r *Rollup) Run(ctx context.Context, day time.Time) error {
	day = day.UTC()

	for _, kind := range []Kind{KindBookViews, KindAuthorViews, KindMutations} {
		if err := r.rollRanked(ctx, kind, day); err != nil {
			return err
		}
	}
	if err := r.rollCounter(ctx, KindSearches, day); err != nil {
		return err
	}

	r.logger.WithField("day", day.Format(dateLayout)).Info("Rolled up daily stats")
	return nil
}

// rollRanked copies every member of the day's sorted set into the
// table.
func (r *Rollup) rollRanked(ctx context.Context, kind Kind, day time.Time) error {
	key := dailyKey(kind, day)

	entries, err := r.redis.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read %s counters: %w", kind, err)
	}

	for _, entry := range entries {
		member, ok := entry.Member.(string)
		if !ok {
			continue
		}
		if err := r.upsert(ctx, day, kind, member, int64(entry.Score)); err != nil {
			return err
		}
	}

	return r.deleteRolled(ctx, key, day)
}

// rollCounter copies a plain counter into the table as a single row
// with an empty item.
func (r *Rollup) rollCounter(ctx context.Context, kind Kind, day time.Time) error {
	key := dailyKey(kind, day)

	val, err := r.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s counter: %w", kind, err)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fmt.Errorf("%s counter holds %q, not a number", kind, val)
	}
	if err := r.upsert(ctx, day, kind, "", count); err != nil {
		return err
	}

	return r.deleteRolled(ctx, key, day)
}

func (r *Rollup) upsert(ctx context.Context, day time.Time, kind Kind, item string, count int64) error {
	query, args, err := r.builder.Insert("stats_daily").
		Columns("day", "kind", "item", "count").
		Values(day.Format(dateLayout), string(kind), item, count).
		Suffix("ON CONFLICT (day, kind, item) DO UPDATE SET count = EXCLUDED.count").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build stats upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert %s rollup: %w", kind, err)
	}
	return nil
}

func (r *Rollup) deleteRolled(ctx context.Context, key string, day time.Time) error {
	if sameDay(day, time.Now()) {
		return nil
	}
	if err := r.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete rolled-up key %s: %w", key, err)
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	return a.UTC().Format(dateLayout) == b.UTC().Format(dateLayout)
}

// Totals sums the rolled-up counts per kind for days on or after
// since. The aggregator logs these after each run.
func (r *Rollup) Totals(ctx context.Context, since time.Time) (map[Kind]int64, error) {
	query, args, err := r.builder.Select("kind", "SUM(count)").
		From("stats_daily").
		Where(squirrel.GtOrEq{"day": since.UTC().Format(dateLayout)}).
		GroupBy("kind").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build stats totals query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[Kind]int64)
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats total: %w", err)
		}
		totals[Kind(kind)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stats totals: %w", err)
	}
	return totals, nil
}
