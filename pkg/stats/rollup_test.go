package stats

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
)

func testRollup(t *testing.T) (*miniredis.Miniredis, *redis.Client, *Rollup) {
	t.Helper()
	mr, client := testRedis(t)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	// In-memory sqlite vanishes per connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	rollup, err := NewRollup(client, db, DialectSQLite, testLogger())
	if err != nil {
		t.Fatalf("NewRollup failed: %v", err)
	}
	return mr, client, rollup
}

// seedDay writes counters for day straight into Redis, since the
// tracker only ever writes to the current day.
func seedDay(t *testing.T, client *redis.Client, day time.Time) {
	t.Helper()
	ctx := context.Background()

	for member, score := range map[string]float64{"7": 3, "9": 1} {
		if err := client.ZIncrBy(ctx, dailyKey(KindBookViews, day), score, member).Err(); err != nil {
			t.Fatalf("ZIncrBy failed: %v", err)
		}
	}
	if err := client.ZIncrBy(ctx, dailyKey(KindAuthorViews, day), 4, "2").Err(); err != nil {
		t.Fatalf("ZIncrBy failed: %v", err)
	}
	if err := client.ZIncrBy(ctx, dailyKey(KindMutations, day), 2, "book").Err(); err != nil {
		t.Fatalf("ZIncrBy failed: %v", err)
	}
	if err := client.Set(ctx, dailyKey(KindSearches, day), "5", 0).Err(); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
}

// readRows returns the stats_daily rows for day keyed by "kind/item".
func readRows(t *testing.T, rollup *Rollup, day time.Time) map[string]int64 {
	t.Helper()

	rows, err := rollup.db.Query(
		"SELECT kind, item, count FROM stats_daily WHERE day = ?",
		day.UTC().Format(dateLayout),
	)
	if err != nil {
		t.Fatalf("Failed to query stats_daily: %v", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var kind, item string
		var count int64
		if err := rows.Scan(&kind, &item, &count); err != nil {
			t.Fatalf("Failed to scan stats_daily row: %v", err)
		}
		out[kind+"/"+item] = count
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Row iteration failed: %v", err)
	}
	return out
}

func TestNewRollup(t *testing.T) {
	_, client := testRedis(t)
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	if _, err := NewRollup(nil, db, DialectSQLite, testLogger()); err == nil {
		t.Error("Expected error for nil redis client")
	}
	if _, err := NewRollup(client, nil, DialectSQLite, testLogger()); err == nil {
		t.Error("Expected error for nil database")
	}
	if _, err := NewRollup(client, db, Dialect("oracle"), testLogger()); err == nil {
		t.Error("Expected error for unknown dialect")
	}

	rollup, err := NewRollup(client, db, DialectSQLite, testLogger())
	if err != nil {
		t.Fatalf("NewRollup failed: %v", err)
	}

	var name string
	err = rollup.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'stats_daily'",
	).Scan(&name)
	if err != nil {
		t.Fatalf("stats_daily table missing: %v", err)
	}
}

func TestRollup_Run(t *testing.T) {
	mr, client, rollup := testRollup(t)
	ctx := context.Background()

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	seedDay(t, client, yesterday)

	if err := rollup.Run(ctx, yesterday); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := readRows(t, rollup, yesterday)
	want := map[string]int64{
		"book_views/7":   3,
		"book_views/9":   1,
		"author_views/2": 4,
		"mutations/book": 2,
		"searches/":      5,
	}
	if len(got) != len(want) {
		t.Errorf("Got %d rows, want %d: %v", len(got), len(want), got)
	}
	for key, count := range want {
		if got[key] != count {
			t.Errorf("Row %s = %d, want %d", key, got[key], count)
		}
	}

	for _, kind := range []Kind{KindBookViews, KindAuthorViews, KindMutations, KindSearches} {
		if mr.Exists(dailyKey(kind, yesterday)) {
			t.Errorf("Key %s should be deleted after rollup", dailyKey(kind, yesterday))
		}
	}
}

func TestRollup_TodayKeysSurvive(t *testing.T) {
	mr, client, rollup := testRollup(t)
	ctx := context.Background()

	today := time.Now().UTC()
	if err := client.ZIncrBy(ctx, dailyKey(KindBookViews, today), 2, "1").Err(); err != nil {
		t.Fatalf("ZIncrBy failed: %v", err)
	}

	if err := rollup.Run(ctx, today); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !mr.Exists(dailyKey(KindBookViews, today)) {
		t.Fatal("Today's key must survive the rollup")
	}
	if got := readRows(t, rollup, today)["book_views/1"]; got != 2 {
		t.Errorf("Rolled count = %d, want 2", got)
	}

	// More views arrive; a second run overwrites the row.
	if err := client.ZIncrBy(ctx, dailyKey(KindBookViews, today), 1, "1").Err(); err != nil {
		t.Fatalf("ZIncrBy failed: %v", err)
	}
	if err := rollup.Run(ctx, today); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if got := readRows(t, rollup, today)["book_views/1"]; got != 3 {
		t.Errorf("Rolled count after second run = %d, want 3", got)
	}
}

func TestRollup_EmptyDay(t *testing.T) {
	_, _, rollup := testRollup(t)

	day := time.Now().UTC().AddDate(0, 0, -1)
	if err := rollup.Run(context.Background(), day); err != nil {
		t.Fatalf("Run on an empty day failed: %v", err)
	}
	if rows := readRows(t, rollup, day); len(rows) != 0 {
		t.Errorf("Empty day produced rows: %v", rows)
	}
}

func TestRollup_Totals(t *testing.T) {
	_, _, rollup := testRollup(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := rollup.upsert(ctx, now.AddDate(0, 0, -1), KindBookViews, "7", 3); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := rollup.upsert(ctx, now.AddDate(0, 0, -1), KindSearches, "", 5); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := rollup.upsert(ctx, now.AddDate(0, 0, -3), KindBookViews, "7", 10); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	totals, err := rollup.Totals(ctx, now.AddDate(0, 0, -2))
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals[KindBookViews] != 3 {
		t.Errorf("Book view total = %d, want 3", totals[KindBookViews])
	}
	if totals[KindSearches] != 5 {
		t.Errorf("Search total = %d, want 5", totals[KindSearches])
	}

	totals, err = rollup.Totals(ctx, now.AddDate(0, 0, -4))
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals[KindBookViews] != 13 {
		t.Errorf("Book view total over four days = %d, want 13", totals[KindBookViews])
	}
}
