package webhooks

import (
	"sort"
	"sync"
	"time"
)

// DeliveryStatus is the lifecycle state of a delivery.
type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliverySuccess  DeliveryStatus = "success"
	DeliveryFailed   DeliveryStatus = "failed"
	DeliveryRetrying DeliveryStatus = "retrying"
)

// Delivery records the outcome of pushing one event to one
// subscription, across every attempt.
type Delivery struct {
	ID             string         `json:"id"`
	SubscriptionID string         `json:"subscription_id"`
	EventID        string         `json:"event_id"`
	EventType      EventType      `json:"event_type"`
	URL            string         `json:"url"`
	Status         DeliveryStatus `json:"status"`
	StatusCode     int            `json:"status_code,omitempty"`
	Error          string         `json:"error,omitempty"`
	Attempts       int            `json:"attempts"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	Duration       time.Duration  `json:"duration,omitempty"`

	// event is retained so retries resend the original payload.
	event *Event
}

const defaultHistorySize = 1000

// DeliveryLog keeps recent deliveries in memory, capped at a fixed
// size. Records are stored by value: readers get stable snapshots and
// writers publish changes through Update.
type DeliveryLog struct {
	mu    sync.RWMutex
	recs  map[string]*Delivery
	limit int
}

// NewDeliveryLog builds a log holding at most size records. Zero or
// negative size applies the default of 1000.
func NewDeliveryLog(size int) *DeliveryLog {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &DeliveryLog{recs: make(map[string]*Delivery), limit: size}
}

// Add inserts a new record, evicting the oldest tenth when full.
func (l *DeliveryLog) Add(rec *Delivery) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.recs) >= l.limit {
		l.evict()
	}
	cp := *rec
	l.recs[cp.ID] = &cp
}

// Update publishes the current state of rec.
func (l *DeliveryLog) Update(rec *Delivery) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *rec
	l.recs[cp.ID] = &cp
}

// Get returns one record by id.
func (l *DeliveryLog) Get(id string) (*Delivery, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.recs[id]
	return rec, ok
}

// BySubscription returns a subscription's records, newest first. A
// positive max caps the result.
func (l *DeliveryLog) BySubscription(subID string, max int) []*Delivery {
	l.mu.RLock()
	out := make([]*Delivery, 0)
	for _, rec := range l.recs {
		if rec.SubscriptionID == subID {
			out = append(out, rec)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// DueRetries returns the records whose backoff elapsed before now. The
// returned records are copies the caller may mutate and hand back to
// Update.
func (l *DeliveryLog) DueRetries(now time.Time) []*Delivery {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var due []*Delivery
	for _, rec := range l.recs {
		if rec.Status == DeliveryRetrying && rec.NextRetryAt != nil && rec.NextRetryAt.Before(now) {
			cp := *rec
			due = append(due, &cp)
		}
	}
	return due
}

// evict drops the oldest tenth of the records. Caller holds the lock.
func (l *DeliveryLog) evict() {
	all := make([]*Delivery, 0, len(l.recs))
	for _, rec := range l.recs {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	drop := len(all) / 10
	if drop == 0 {
		drop = 1
	}
	for _, rec := range all[:drop] {
		delete(l.recs, rec.ID)
	}
}

// Stats summarizes a subscription's retained delivery history.
type Stats struct {
	SubscriptionID  string        `json:"subscription_id"`
	Total           int           `json:"total"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	Retrying        int           `json:"retrying"`
	AverageDuration time.Duration `json:"average_duration,omitempty"`
}

// Stats aggregates the retained records for one subscription.
func (l *DeliveryLog) Stats(subID string) Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{SubscriptionID: subID}
	var total time.Duration
	for _, rec := range l.recs {
		if rec.SubscriptionID != subID {
			continue
		}
		stats.Total++
		switch rec.Status {
		case DeliverySuccess:
			stats.Succeeded++
			total += rec.Duration
		case DeliveryFailed:
			stats.Failed++
		case DeliveryRetrying:
			stats.Retrying++
		}
	}
	if stats.Succeeded > 0 {
		stats.AverageDuration = total / time.Duration(stats.Succeeded)
	}
	return stats
}
