package webhooks

import (
	"context"
	"math"
	"time"
)

// RetryPolicy controls redelivery of failed webhook calls.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy allows five attempts with exponential backoff
// capped at five minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2,
	}
}

// ShouldRetry reports whether another attempt is allowed after the
// given number of attempts so far.
func (p RetryPolicy) ShouldRetry(attempts int) bool {
	return attempts < p.MaxAttempts
}

// Delay returns the backoff before the attempt that follows attempts
// failures, growing exponentially up to MaxDelay.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	if attempts <= 1 {
		return p.InitialDelay
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempts-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Start launches the redelivery loop. It runs until Stop is called or
// ctx is canceled.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.redeliverLoop(ctx)
}

// Stop halts the redelivery loop. In-flight deliveries finish on their
// own timeouts.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

func (d *Dispatcher) redeliverLoop(ctx context.Context) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-ticker.C:
			d.redeliverDue(time.Now().UTC())
		}
	}
}

// redeliverDue retries every delivery whose backoff has elapsed.
// Deliveries for subscriptions removed or deactivated since the
// failure are finalized instead.
func (d *Dispatcher) redeliverDue(now time.Time) {
	for _, rec := range d.history.DueRetries(now) {
		sub, err := d.Get(rec.SubscriptionID)
		switch {
		case err != nil:
			d.finalize(rec, "subscription removed", now)
		case !sub.Active:
			d.finalize(rec, "subscription inactive", now)
		default:
			d.deliver(sub, rec.event, rec)
		}
	}
}

// finalize marks a delivery permanently failed.
func (d *Dispatcher) finalize(rec *Delivery, reason string, now time.Time) {
	rec.Status = DeliveryFailed
	rec.Error = reason
	rec.NextRetryAt = nil
	rec.CompletedAt = &now
	d.history.Update(rec)
}
