package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/pressleaf/biblio/pkg/async"
	"github.com/pressleaf/biblio/pkg/auth"
	"github.com/pressleaf/biblio/pkg/contextkeys"
	"github.com/pressleaf/biblio/pkg/observability"
)

// Sink receives audit events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(ctx context.Context, event *Event) error
	Close() error
}

// Store serves audit queries and retention pruning. DBSink implements
// it over SQL; FileSink scans the live log file.
type Store interface {
	Search(ctx context.Context, filter SearchFilter) ([]*Event, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Recorder is the write side of the audit trail. It fills events with
// request context and hands them to the sink, through a worker pool
// when one is configured so a slow sink never blocks a request. Events
// are best effort: failures are logged and dropped, never surfaced to
// the client.
//
// A nil Recorder is valid and records nothing, so handlers can call
// FromContext without checking.
type Recorder struct {
	sink   Sink
	pool   *async.WorkerPool
	logger *observability.Logger
}

// NewRecorder creates a recorder writing to sink. pool may be nil, in
// which case writes happen synchronously on the caller's goroutine.
func NewRecorder(sink Sink, pool *async.WorkerPool, logger *observability.Logger) *Recorder {
	return &Recorder{
		sink:   sink,
		pool:   pool,
		logger: logger.WithField("component", "audit"),
	}
}

// Record fills in actor and request context from ctx and writes the
// event.
func (r *Recorder) Record(ctx context.Context, event *Event) {
	if r == nil || r.sink == nil {
		return
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}
	if identity, ok := ctx.Value(contextkeys.AuthKey).(*auth.Identity); ok && identity != nil {
		if event.UserID == nil {
			userID := identity.UserID
			event.UserID = &userID
		}
		if event.TokenID == nil {
			tokenID := identity.TokenID
			event.TokenID = &tokenID
		}
	}
	if info, ok := ctx.Value(requestInfoKey).(requestInfo); ok {
		if event.IPAddress == "" {
			event.IPAddress = info.ip
		}
		if event.UserAgent == "" {
			event.UserAgent = info.userAgent
		}
		if event.Method == "" {
			event.Method = info.method
		}
		if event.Path == "" {
			event.Path = info.path
		}
	}

	if r.pool != nil {
		if err := r.pool.Submit(func(taskCtx context.Context) error {
			return r.sink.Write(taskCtx, event)
		}); err != nil {
			r.logger.WithError(err).WithField("event_type", string(event.Type)).
				Warn("Dropping audit event")
		}
		return
	}

	if err := r.sink.Write(ctx, event); err != nil {
		r.logger.WithError(err).WithField("event_type", string(event.Type)).
			Warn("Failed to write audit event")
	}
}

// Auth records an authentication event. userID may be nil when the
// actor is unknown, as on failed logins.
func (r *Recorder) Auth(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) {
	r.Record(ctx, &Event{
		Type:     eventType,
		Status:   status,
		UserID:   userID,
		Username: username,
		Resource: ResourceTypeUser,
		Message:  message,
	})
}

// Denied records a permission denial on a resource.
func (r *Recorder) Denied(ctx context.Context, resource ResourceType, resourceID, message string) {
	r.Record(ctx, &Event{
		Type:       EventTypeAccessDenied,
		Status:     EventStatusDenied,
		Resource:   resource,
		ResourceID: resourceID,
		Message:    message,
	})
}

// Mutation records a successful data change.
func (r *Recorder) Mutation(ctx context.Context, eventType EventType, resource ResourceType, resourceID, resourceName string) {
	r.Record(ctx, &Event{
		Type:         eventType,
		Status:       EventStatusSuccess,
		Resource:     resource,
		ResourceID:   resourceID,
		ResourceName: resourceName,
	})
}

// RoleChange records a role grant or librarian assignment against the
// affected user.
func (r *Recorder) RoleChange(ctx context.Context, eventType EventType, targetUserID int64, message string) {
	r.Record(ctx, &Event{
		Type:       eventType,
		Status:     EventStatusSuccess,
		Resource:   ResourceTypeUser,
		ResourceID: formatID(targetUserID),
		Message:    message,
	})
}

// Close drains the worker pool and closes the sink.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	if r.pool != nil {
		if err := r.pool.Shutdown(5 * time.Second); err != nil {
			r.logger.WithError(err).Warn("Audit pool shutdown incomplete")
		}
	}
	if r.sink == nil {
		return nil
	}
	return r.sink.Close()
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// contextKey is the package-local context key type.
type contextKey string

const requestInfoKey contextKey = "audit_request_info"

type requestInfo struct {
	ip        string
	userAgent string
	method    string
	path      string
}

// ContextWithRecorder stores the recorder for FromContext.
func ContextWithRecorder(ctx context.Context, rec *Recorder) context.Context {
	return contextkeys.WithAuditLogger(ctx, rec)
}

// FromContext returns the recorder carried by the request, or a nil
// recorder that silently discards events.
func FromContext(ctx context.Context) *Recorder {
	if rec, ok := ctx.Value(contextkeys.AuditLoggerKey).(*Recorder); ok {
		return rec
	}
	return nil
}
