package stats

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pressleaf/biblio/pkg/async"
	"github.com/pressleaf/biblio/pkg/observability"
)

const (
	keyPrefix  = "biblio:stats"
	dateLayout = "2006-01-02"
)

// Kind names a counter family in Redis and in the stats_daily rollup
// table.
type Kind string

const (
	KindBookViews   Kind = "book_views"
	KindAuthorViews Kind = "author_views"
	KindSearches    Kind = "searches"
	KindMutations   Kind = "mutations"
)

// dailyKey addresses one day's counters for a kind, for example
// biblio:stats:book_views:2026-08-23. Days are UTC so the aggregator
// and the trackers agree on boundaries.
func dailyKey(kind Kind, day time.Time) string {
	return keyPrefix + ":" + string(kind) + ":" + day.UTC().Format(dateLayout)
}

// totalKey addresses the all-time ranking for a kind.
func totalKey(kind Kind) string {
	return keyPrefix + ":" + string(kind) + ":total"
}

// Tracker maintains usage counters in Redis. View counts live in
// sorted sets keyed per day plus an all-time set that feeds the
// popular-books ranking; searches use a plain counter.
//
// Updates are best effort and go through the worker pool when one is
// configured, so a slow or absent Redis never adds latency to a
// request. A nil Tracker is valid and counts nothing, which is how
// deployments without Redis run.
type Tracker struct {
	redis  *redis.Client
	pool   *async.WorkerPool
	logger *observability.Logger
}

// NewTracker creates a tracker writing to client. pool may be nil, in
// which case updates happen synchronously on the caller's goroutine.
func NewTracker(client *redis.Client, pool *async.WorkerPool, logger *observability.Logger) *Tracker {
	return &Tracker{
		redis:  client,
		pool:   pool,
		logger: logger.WithField("component", "stats"),
	}
}

// BookViewed counts one detail view of a book.
func (t *Tracker) BookViewed(ctx context.Context, bookID int64) {
	t.rank(ctx, KindBookViews, strconv.FormatInt(bookID, 10))
}

// AuthorViewed counts one detail view of an author.
func (t *Tracker) AuthorViewed(ctx context.Context, authorID int64) {
	t.rank(ctx, KindAuthorViews, strconv.FormatInt(authorID, 10))
}

// SearchPerformed counts one catalog search.
func (t *Tracker) SearchPerformed(ctx context.Context) {
	if t == nil || t.redis == nil {
		return
	}
	key := dailyKey(KindSearches, time.Now())
	t.submit(ctx, KindSearches, func(taskCtx context.Context) error {
		return t.redis.Incr(taskCtx, key).Err()
	})
}

// MutationRecorded counts one successful write against a resource,
// for example "book" or "author".
func (t *Tracker) MutationRecorded(ctx context.Context, resource string) {
	t.rank(ctx, KindMutations, resource)
}

// rank bumps member by one in the day's sorted set and in the
// all-time set, in a single round trip.
func (t *Tracker) rank(ctx context.Context, kind Kind, member string) {
	if t == nil || t.redis == nil {
		return
	}
	daily := dailyKey(kind, time.Now())
	total := totalKey(kind)
	t.submit(ctx, kind, func(taskCtx context.Context) error {
		_, err := t.redis.Pipelined(taskCtx, func(pipe redis.Pipeliner) error {
			pipe.ZIncrBy(taskCtx, daily, 1, member)
			pipe.ZIncrBy(taskCtx, total, 1, member)
			return nil
		})
		return err
	})
}

func (t *Tracker) submit(ctx context.Context, kind Kind, fn func(context.Context) error) {
	if t.pool != nil {
		if err := t.pool.Submit(fn); err != nil {
			t.logger.WithError(err).WithField("counter", string(kind)).
				Warn("Dropping stats update")
		}
		return
	}
	if err := fn(ctx); err != nil {
		t.logger.WithError(err).WithField("counter", string(kind)).
			Warn("Failed to update stats counter")
	}
}

// BookCount pairs a book id with its view tally.
type BookCount struct {
	BookID int64
	Views  int64
}

// PopularBooks returns the most viewed books of all time, best first.
// A nil Tracker returns no entries.
func (t *Tracker) PopularBooks(ctx context.Context, limit int) ([]BookCount, error) {
	if t == nil || t.redis == nil {
		return nil, nil
	}
	if limit <= 0 {
		return nil, nil
	}

	entries, err := t.redis.ZRevRangeWithScores(ctx, totalKey(KindBookViews), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	counts := make([]BookCount, 0, len(entries))
	for _, entry := range entries {
		member, ok := entry.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			// Foreign member in the set; skip rather than fail the
			// whole ranking.
			t.logger.WithField("member", member).Warn("Ignoring non-numeric book id in view ranking")
			continue
		}
		counts = append(counts, BookCount{BookID: id, Views: int64(entry.Score)})
	}
	return counts, nil
}
