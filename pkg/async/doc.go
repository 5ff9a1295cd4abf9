// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context detachment, and bounded queueing.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(r.Context(), 5*time.Second, "stats tracking", func(ctx context.Context) error {
//		// Task code with automatic panic recovery and timeout
//		return tracker.Record(ctx, event)
//	})
//
// WorkerPool: Managed pool of concurrent workers with a bounded queue
//
//	pool := async.NewWorkerPool(ctx, 4, 256, "audit writes", 5*time.Second, logger)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return sink.Write(ctx, event)
//	})
//
// Batch: Concurrent batch processing
//
//	errs := async.Batch(ctx, items, 5, "seed import", 10*time.Second, func(ctx context.Context, item Item) error {
//		return importItem(ctx, item)
//	})
//
// # Context handling
//
// Tasks started from a request handler must not die when the response is
// written, so both SafeGo and WorkerPool detach the task context from the
// parent's cancellation while keeping its values (request id, logger).
//
// # Use Cases
//
// Audit sink writes, stats counter flushes, bulk seed imports.
//
// # Related Packages
//
//   - pkg/audit: Uses WorkerPool for fire-and-forget event writes
//   - pkg/stats: Uses WorkerPool for view counter increments
package async
