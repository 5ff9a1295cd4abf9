// Package stats tracks catalog usage and serves the popular-books
// ranking.
//
// # Overview
//
// Requests count resource views, searches, and successful mutations
// into Redis. View counts go to sorted sets keyed per UTC day plus an
// all-time set; searches use a plain counter. Counting is best effort
// and runs through the shared worker pool, so Redis trouble slows
// nothing down and loses at worst a few counts.
//
// The aggregator binary rolls each finished day into the stats_daily
// table and deletes the consumed keys, keeping Redis small while the
// history stays queryable in SQL.
//
// # Key Scheme
//
//	biblio:stats:book_views:2026-08-23    sorted set, member = book id
//	biblio:stats:book_views:total         sorted set, all-time ranking
//	biblio:stats:author_views:2026-08-23  sorted set, member = author id
//	biblio:stats:mutations:2026-08-23     sorted set, member = resource
//	biblio:stats:searches:2026-08-23      plain counter
//
// # Usage Example
//
// Count events from handlers:
//
//	tracker.BookViewed(ctx, book.ID)
//	tracker.SearchPerformed(ctx)
//	tracker.MutationRecorded(ctx, "book")
//
// Roll up yesterday from the aggregator:
//
//	rollup.Run(ctx, time.Now().UTC().AddDate(0, 0, -1))
//
// # Related Packages
//
//   - pkg/async: worker pool the tracker submits through
//   - pkg/storage: shared Redis client the tracker rides on
package stats
