package audit

import (
	"context"
	"fmt"
)

// MultiSink fans an event out to several sinks. Every sink is
// attempted even when an earlier one fails; the first error is
// returned. Asynchrony lives in the Recorder's worker pool, not here.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Write delivers the event to every sink.
func (m *MultiSink) Write(ctx context.Context, event *Event) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Write(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every sink, returning the first error.
func (m *MultiSink) Close() error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close audit sink: %w", err)
		}
	}
	return firstErr
}
