package audit

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressleaf/biblio/pkg/async"
	"github.com/pressleaf/biblio/pkg/auth"
	"github.com/pressleaf/biblio/pkg/contextkeys"
	"github.com/pressleaf/biblio/pkg/observability"
)

type captureSink struct {
	mu     sync.Mutex
	events []*Event
	err    error
	closed bool
}

func (s *captureSink) Write(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) all() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.events...)
}

func discardLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestRecorder_RecordFillsContext(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink, nil, discardLogger())

	ctx := contextkeys.WithRequestID(context.Background(), "req-77")
	ctx = contextkeys.WithAuth(ctx, &auth.Identity{UserID: 42, TokenID: 9})
	ctx = context.WithValue(ctx, requestInfoKey, requestInfo{
		ip:        "203.0.113.9",
		userAgent: "curl/8.0",
		method:    "POST",
		path:      "/api/v1/books",
	})

	rec.Record(ctx, &Event{Type: EventTypeBookCreate, Status: EventStatusSuccess})

	events := sink.all()
	require.Len(t, events, 1)
	got := events[0]
	assert.False(t, got.OccurredAt.IsZero())
	assert.Equal(t, "req-77", got.RequestID)
	require.NotNil(t, got.UserID)
	assert.Equal(t, int64(42), *got.UserID)
	require.NotNil(t, got.TokenID)
	assert.Equal(t, int64(9), *got.TokenID)
	assert.Equal(t, "203.0.113.9", got.IPAddress)
	assert.Equal(t, "curl/8.0", got.UserAgent)
	assert.Equal(t, "POST", got.Method)
	assert.Equal(t, "/api/v1/books", got.Path)
}

func TestRecorder_RecordKeepsExplicitFields(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink, nil, discardLogger())

	ctx := contextkeys.WithAuth(context.Background(), &auth.Identity{UserID: 42, TokenID: 9})

	explicit := int64(7)
	occurred := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rec.Record(ctx, &Event{
		OccurredAt: occurred,
		Type:       EventTypeRoleChange,
		Status:     EventStatusSuccess,
		UserID:     &explicit,
	})

	events := sink.all()
	require.Len(t, events, 1)
	assert.True(t, events[0].OccurredAt.Equal(occurred))
	assert.Equal(t, int64(7), *events[0].UserID)
}

func TestRecorder_AnonymousEvent(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink, nil, discardLogger())

	rec.Auth(context.Background(), EventTypeAuthLoginFailed, nil, "ghost",
		EventStatusFailure, "wrong password")

	events := sink.all()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].UserID)
	assert.Equal(t, "ghost", events[0].Username)
	assert.Equal(t, EventStatusFailure, events[0].Status)
	assert.Equal(t, ResourceTypeUser, events[0].Resource)
}

func TestRecorder_Helpers(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink, nil, discardLogger())
	ctx := context.Background()

	rec.Denied(ctx, ResourceTypeBook, "12", "role member cannot delete book")
	rec.Mutation(ctx, EventTypeBookUpdate, ResourceTypeBook, "12", "Kindred")
	rec.RoleChange(ctx, EventTypeRoleChange, 42, "member -> librarian")

	events := sink.all()
	require.Len(t, events, 3)

	assert.Equal(t, EventTypeAccessDenied, events[0].Type)
	assert.Equal(t, EventStatusDenied, events[0].Status)
	assert.Equal(t, "12", events[0].ResourceID)

	assert.Equal(t, EventTypeBookUpdate, events[1].Type)
	assert.Equal(t, EventStatusSuccess, events[1].Status)
	assert.Equal(t, "Kindred", events[1].ResourceName)

	assert.Equal(t, EventTypeRoleChange, events[2].Type)
	assert.Equal(t, ResourceTypeUser, events[2].Resource)
	assert.Equal(t, "42", events[2].ResourceID)
	assert.Equal(t, "member -> librarian", events[2].Message)
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var rec *Recorder

	rec.Record(context.Background(), &Event{Type: EventTypeAuthLogin})
	rec.Mutation(context.Background(), EventTypeBookCreate, ResourceTypeBook, "1", "x")
	assert.NoError(t, rec.Close())
}

func TestRecorder_SinkErrorIsSwallowed(t *testing.T) {
	sink := &captureSink{err: errors.New("disk full")}
	rec := NewRecorder(sink, nil, discardLogger())

	// Must not panic or propagate.
	rec.Mutation(context.Background(), EventTypeBookCreate, ResourceTypeBook, "1", "x")
}

func TestRecorder_WithPool(t *testing.T) {
	sink := &captureSink{}
	pool := async.NewWorkerPool(context.Background(), 2, 16, "audit writes", time.Second, discardLogger())
	rec := NewRecorder(sink, pool, discardLogger())

	for i := 0; i < 5; i++ {
		rec.Mutation(context.Background(), EventTypeBookCreate, ResourceTypeBook, "1", "x")
	}

	// Close drains the pool before closing the sink.
	require.NoError(t, rec.Close())
	assert.Len(t, sink.all(), 5)
	assert.True(t, sink.closed)
}

func TestFromContext(t *testing.T) {
	rec := NewRecorder(&captureSink{}, nil, discardLogger())

	ctx := ContextWithRecorder(context.Background(), rec)
	assert.Same(t, rec, FromContext(ctx))

	assert.Nil(t, FromContext(context.Background()))
}
