package webhooks

import (
	"sync"
	"time"
)

// limiter is a token bucket per subscription. One busy event stream
// must not flood a single subscriber.
type limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	max     int
	period  time.Duration
}

type bucket struct {
	tokens   int
	refilled time.Time
}

func newLimiter(max int, period time.Duration) *limiter {
	return &limiter{
		buckets: make(map[string]*bucket),
		max:     max,
		period:  period,
	}
}

// take consumes one token for id, refilling the bucket once per period.
func (l *limiter) take(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[id]
	if !ok {
		b = &bucket{tokens: l.max, refilled: now}
		l.buckets[id] = b
	} else if now.Sub(b.refilled) >= l.period {
		b.tokens = l.max
		b.refilled = now
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// forget drops the bucket for a removed subscription.
func (l *limiter) forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, id)
}
