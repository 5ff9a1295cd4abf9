package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pressleaf/biblio/pkg/observability"
)

var (
	// ErrPoolClosed is returned by Submit after Shutdown has started.
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrQueueFull is returned by Submit when the task queue is at
	// capacity. Callers decide whether to drop or retry.
	ErrQueueFull = errors.New("worker pool queue full")
)

// SafeGo executes a function in a goroutine with:
// - Panic recovery
// - Timeout enforcement
// - Error logging through the context logger
//
// The task context is detached from the parent's cancellation but keeps
// its values, so work started during a request survives the response
// being written and still logs with the request id.
//
// Use this instead of bare `go func()` for fire-and-forget work.
//
// Example:
//
//	SafeGo(r.Context(), 5*time.Second, "stats tracking", func(ctx context.Context) error {
//	    return tracker.Record(ctx, event)
//	})
func SafeGo(parent context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	detached := context.WithoutCancel(parent)
	go func() {
		ctx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()

		logger := observability.FromContext(ctx).WithField("task", taskName)

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"panic": fmt.Sprintf("%v", r),
					"stack": string(debug.Stack()),
				}).Error("Panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).Warn("Background task failed")
		}
	}()
}

// SafeGoNoError is like SafeGo but for functions that don't return errors.
// Still provides panic recovery and timeout enforcement.
func SafeGoNoError(parent context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parent, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// WorkerPool manages a fixed set of workers draining a bounded task
// queue. Submit never blocks; a full queue is reported to the caller so
// request handlers shed load instead of stalling.
type WorkerPool struct {
	taskName string
	timeout  time.Duration
	logger   *observability.Logger

	workCh chan func(context.Context) error
	doneCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewWorkerPool creates a worker pool with the given number of workers
// and queue capacity. The pool's base context is detached from parent
// cancellation; workers stop when Shutdown is called.
//
// Example:
//
//	pool := NewWorkerPool(ctx, 4, 256, "audit writes", 5*time.Second, logger)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//	    return sink.Write(ctx, event)
//	})
func NewWorkerPool(parent context.Context, workers, queueSize int, taskName string, timeout time.Duration, logger *observability.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))

	pool := &WorkerPool{
		taskName: taskName,
		timeout:  timeout,
		logger:   logger.WithField("task", taskName),
		workCh:   make(chan func(context.Context) error, queueSize),
		doneCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pool.worker()
			}()
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit adds a task to the queue. It returns ErrPoolClosed after
// Shutdown and ErrQueueFull when the queue is at capacity.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks, drains the queue, and waits up to
// timeout for workers to finish. Tasks still queued after the timeout
// are abandoned.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.doneCh
		return nil
	}
	p.closed = true
	close(p.workCh)
	p.mu.Unlock()

	select {
	case <-p.doneCh:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("worker pool %q shutdown timed out after %v", p.taskName, timeout)
	}
}

func (p *WorkerPool) worker() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(fn)
		}
	}
}

func (p *WorkerPool) run(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
				"stack": string(debug.Stack()),
			}).Error("Panic in worker task")
		}
	}()

	if err := fn(ctx); err != nil {
		p.logger.WithError(err).Warn("Worker task failed")
	}
}

// Batch processes a slice of items concurrently, at most workers at a
// time, and returns all errors encountered. Unlike WorkerPool, Batch
// blocks until every item has been processed.
//
// Example:
//
//	errs := Batch(ctx, books, 5, "seed import", 10*time.Second, func(ctx context.Context, b Book) error {
//	    return store.CreateBook(ctx, &b)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration, fn func(context.Context, T) error) []error {
	if workers <= 0 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	errCh := make(chan error, len(items))
	var wg sync.WaitGroup

	for _, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					errCh <- fmt.Errorf("%s: panic: %v", taskName, r)
				}
			}()

			taskCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			if err := fn(taskCtx, item); err != nil {
				errCh <- err
			}
		}(item)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errs
}
