package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/pressleaf/biblio/pkg/observability"
)

// EventType names a catalog or blog change subscribers can listen for.
type EventType string

const (
	EventBookCreated   EventType = "book.created"
	EventBookUpdated   EventType = "book.updated"
	EventBookDeleted   EventType = "book.deleted"
	EventBookShelved   EventType = "book.shelved"
	EventBookUnshelved EventType = "book.unshelved"
	EventCoverUploaded EventType = "cover.uploaded"

	EventAuthorCreated EventType = "author.created"
	EventAuthorUpdated EventType = "author.updated"
	EventAuthorDeleted EventType = "author.deleted"

	EventPostPublished  EventType = "post.published"
	EventPostUpdated    EventType = "post.updated"
	EventPostDeleted    EventType = "post.deleted"
	EventCommentCreated EventType = "comment.created"
	EventCommentUpdated EventType = "comment.updated"
	EventCommentDeleted EventType = "comment.deleted"

	EventLibraryCreated EventType = "library.created"
	EventLibraryUpdated EventType = "library.updated"
	EventLibraryDeleted EventType = "library.deleted"

	// EventPing is reserved for delivery tests. Ping sends it to a
	// single subscription without consulting its event filter, so it
	// never appears in the subscribable set.
	EventPing EventType = "ping"
)

var eventNames = map[EventType]struct{}{
	EventBookCreated:    {},
	EventBookUpdated:    {},
	EventBookDeleted:    {},
	EventBookShelved:    {},
	EventBookUnshelved:  {},
	EventCoverUploaded:  {},
	EventAuthorCreated:  {},
	EventAuthorUpdated:  {},
	EventAuthorDeleted:  {},
	EventPostPublished:  {},
	EventPostUpdated:    {},
	EventPostDeleted:    {},
	EventCommentCreated: {},
	EventCommentUpdated: {},
	EventCommentDeleted: {},
	EventLibraryCreated: {},
	EventLibraryUpdated: {},
	EventLibraryDeleted: {},
}

// EventTypes returns the subscribable event names in sorted order.
func EventTypes() []EventType {
	types := make([]EventType, 0, len(eventNames))
	for t := range eventNames {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ValidEvent reports whether t is a subscribable event name.
func ValidEvent(t EventType) bool {
	_, ok := eventNames[t]
	return ok
}

// Event is the payload pushed to subscribers.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Payload formats, selected per subscription. FormatJSON is the signed
// native envelope. FormatSlack renders a chat notification for Slack
// incoming-webhook URLs; Discord accepts the same shape on its /slack
// endpoint.
const (
	FormatJSON  = "json"
	FormatSlack = "slack"
)

// Subscription is a registered delivery target. Stored subscriptions
// are never mutated in place: Update swaps in a fresh copy, so
// in-flight deliveries keep a consistent snapshot.
type Subscription struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	Events      []EventType `json:"events"`
	Secret      string      `json:"secret,omitempty"`
	Format      string      `json:"format,omitempty"`
	Description string      `json:"description,omitempty"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (s *Subscription) wants(t EventType) bool {
	for _, e := range s.Events {
		if e == t {
			return true
		}
	}
	return false
}

// SubscriptionUpdate carries a partial update. Nil fields keep their
// current value.
type SubscriptionUpdate struct {
	URL         *string
	Events      []EventType
	Secret      *string
	Format      *string
	Description *string
	Active      *bool
}

// ErrNotFound is returned when a subscription id is unknown.
var ErrNotFound = errors.New("webhook subscription not found")

const (
	deliverTimeout = 10 * time.Second
	retryInterval  = 30 * time.Second

	// deliveriesPerMinute caps outbound calls per subscription so a
	// bulk import cannot flood a subscriber.
	deliveriesPerMinute = 100
)

// Dispatcher fans events out to registered subscriptions. Deliveries
// run in the background with per-subscription rate limiting and
// exponential-backoff retries; recent attempts are retained in an
// in-memory history for the admin API.
type Dispatcher struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	client  *http.Client
	history *DeliveryLog
	limits  *limiter
	policy  RetryPolicy
	logger  *observability.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewDispatcher builds a dispatcher with an empty registry. historySize
// caps the delivery history; zero or negative applies the default.
func NewDispatcher(historySize int, logger *observability.Logger) *Dispatcher {
	return &Dispatcher{
		subs:    make(map[string]*Subscription),
		client:  &http.Client{Timeout: deliverTimeout},
		history: NewDeliveryLog(historySize),
		limits:  newLimiter(deliveriesPerMinute, time.Minute),
		policy:  DefaultRetryPolicy(),
		logger:  logger.WithField("component", "webhooks"),
		stop:    make(chan struct{}),
	}
}

// Register validates and stores a subscription, assigning its id.
func (d *Dispatcher) Register(sub *Subscription) error {
	if err := validateTarget(sub.URL, sub.Events, sub.Format); err != nil {
		return err
	}

	now := time.Now().UTC()
	sub.ID = newID("wh")
	sub.CreatedAt = now
	sub.UpdatedAt = now

	d.mu.Lock()
	d.subs[sub.ID] = sub
	d.mu.Unlock()

	d.logger.WithFields(map[string]interface{}{
		"subscription_id": sub.ID,
		"url":             sub.URL,
		"events":          len(sub.Events),
	}).Info("Webhook subscription registered")
	return nil
}

// Unregister removes a subscription and its rate-limit state.
func (d *Dispatcher) Unregister(id string) (*Subscription, error) {
	d.mu.Lock()
	sub, ok := d.subs[id]
	if ok {
		delete(d.subs, id)
	}
	d.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	d.limits.forget(id)
	d.logger.WithField("subscription_id", id).Info("Webhook subscription removed")
	return sub, nil
}

// Get returns the subscription with the given id.
func (d *Dispatcher) Get(id string) (*Subscription, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sub, ok := d.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sub, nil
}

// List returns all subscriptions, oldest first.
func (d *Dispatcher) List() []*Subscription {
	d.mu.RLock()
	subs := make([]*Subscription, 0, len(d.subs))
	for _, sub := range d.subs {
		subs = append(subs, sub)
	}
	d.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID < subs[j].ID
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs
}

// Update applies the non-nil fields of upd and returns the new value.
func (d *Dispatcher) Update(id string, upd SubscriptionUpdate) (*Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, ok := d.subs[id]
	if !ok {
		return nil, ErrNotFound
	}

	next := *current
	if upd.URL != nil {
		next.URL = *upd.URL
	}
	if upd.Events != nil {
		next.Events = upd.Events
	}
	if upd.Secret != nil {
		next.Secret = *upd.Secret
	}
	if upd.Format != nil {
		next.Format = *upd.Format
	}
	if upd.Description != nil {
		next.Description = *upd.Description
	}
	if upd.Active != nil {
		next.Active = *upd.Active
	}

	if err := validateTarget(next.URL, next.Events, next.Format); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	d.subs[id] = &next
	return &next, nil
}

// Deliveries returns the retained history for one subscription, newest
// first.
func (d *Dispatcher) Deliveries(subID string, limit int) []*Delivery {
	return d.history.BySubscription(subID, limit)
}

// DeliveryStats summarizes the retained history for one subscription.
func (d *Dispatcher) DeliveryStats(subID string) Stats {
	return d.history.Stats(subID)
}

// Dispatch fans an event out to every active subscription listening for
// it and returns the event, or nil when nothing matched. Deliveries run
// in the background and outlive the request that triggered them.
func (d *Dispatcher) Dispatch(eventType EventType, data map[string]interface{}) *Event {
	event := &Event{
		ID:        newID("evt"),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	d.mu.RLock()
	var targets []*Subscription
	for _, sub := range d.subs {
		if sub.Active && sub.wants(eventType) {
			targets = append(targets, sub)
		}
	}
	d.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	for _, sub := range targets {
		rec := d.newDelivery(sub, event)
		go d.deliver(sub, event, rec)
	}
	return event
}

// Ping sends a synthetic event to one subscription, bypassing its event
// filter and active flag. The returned delivery id lets the caller poll
// the outcome.
func (d *Dispatcher) Ping(id string) (*Event, *Delivery, error) {
	sub, err := d.Get(id)
	if err != nil {
		return nil, nil, err
	}

	event := &Event{
		ID:        newID("evt"),
		Type:      EventPing,
		Timestamp: time.Now().UTC(),
		Data:      map[string]interface{}{"message": "biblio webhook test"},
	}
	rec := d.newDelivery(sub, event)
	snapshot := *rec
	go d.deliver(sub, event, rec)
	return event, &snapshot, nil
}

func (d *Dispatcher) newDelivery(sub *Subscription, event *Event) *Delivery {
	rec := &Delivery{
		ID:             newID("dlv"),
		SubscriptionID: sub.ID,
		EventID:        event.ID,
		EventType:      event.Type,
		URL:            sub.URL,
		Status:         DeliveryPending,
		CreatedAt:      time.Now().UTC(),
		event:          event,
	}
	d.history.Add(rec)
	return rec
}

// deliver performs one delivery attempt and records the outcome.
func (d *Dispatcher) deliver(sub *Subscription, event *Event, rec *Delivery) {
	rec.Attempts++

	err := d.post(sub, event, rec)
	now := time.Now().UTC()
	if err == nil {
		rec.Status = DeliverySuccess
		rec.Error = ""
		rec.NextRetryAt = nil
		rec.CompletedAt = &now
		d.history.Update(rec)

		d.logger.WithFields(map[string]interface{}{
			"subscription_id": sub.ID,
			"event":           string(event.Type),
			"attempts":        rec.Attempts,
		}).Debug("Webhook delivered")
		return
	}

	rec.Error = err.Error()
	if d.policy.ShouldRetry(rec.Attempts) {
		next := now.Add(d.policy.Delay(rec.Attempts))
		rec.Status = DeliveryRetrying
		rec.NextRetryAt = &next
	} else {
		rec.Status = DeliveryFailed
		rec.NextRetryAt = nil
		rec.CompletedAt = &now
	}
	d.history.Update(rec)

	d.logger.WithError(err).WithFields(map[string]interface{}{
		"subscription_id": sub.ID,
		"event":           string(event.Type),
		"attempts":        rec.Attempts,
		"status":          string(rec.Status),
	}).Warn("Webhook delivery failed")
}

// post makes the outbound HTTP call for one attempt. The call gets its
// own context: deliveries must survive the request that triggered the
// event.
func (d *Dispatcher) post(sub *Subscription, event *Event, rec *Delivery) error {
	if !d.limits.take(sub.ID) {
		return fmt.Errorf("delivery rate limit exceeded")
	}

	body, err := payload(sub, event)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "biblio-webhooks/1.0")
	req.Header.Set("X-Biblio-Event", string(event.Type))
	req.Header.Set("X-Biblio-Event-ID", event.ID)
	req.Header.Set("X-Biblio-Delivery", rec.ID)
	if sub.Secret != "" {
		req.Header.Set("X-Biblio-Signature", Signature(sub.Secret, body))
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	rec.Duration = time.Since(start)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	rec.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("subscriber returned status %d", resp.StatusCode)
	}
	return nil
}

// payload renders the request body for a subscription.
func payload(sub *Subscription, event *Event) ([]byte, error) {
	if sub.Format == FormatSlack {
		return slackPayload(event)
	}
	return json.Marshal(event)
}

func validateTarget(rawURL string, events []EventType, format string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("webhook url must be an absolute http or https URL")
	}
	if len(events) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	for _, e := range events {
		if !ValidEvent(e) {
			return fmt.Errorf("unknown event type %q", e)
		}
	}
	switch format {
	case "", FormatJSON, FormatSlack:
	default:
		return fmt.Errorf("unknown payload format %q", format)
	}
	return nil
}

// Signature computes the value carried by the X-Biblio-Signature
// header: "sha256=" plus the hex HMAC-SHA256 of the body.
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received X-Biblio-Signature header against
// the request body.
func VerifySignature(secret string, body []byte, header string) bool {
	return hmac.Equal([]byte(Signature(secret, body)), []byte(header))
}

// newID returns a short unique id. These are identifiers, not secrets.
func newID(prefix string) string {
	return fmt.Sprintf("%s_%016x", prefix, rand.Uint64())
}
