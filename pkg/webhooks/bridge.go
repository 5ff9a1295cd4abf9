package webhooks

import (
	"context"

	"github.com/pressleaf/biblio/pkg/audit"
)

// AuditBridge republishes successful mutations from the audit pipeline
// as webhook events. It implements audit.Sink, so the binary wires it
// as one more sink and handlers never talk to the dispatcher directly.
type AuditBridge struct {
	dispatcher *Dispatcher
}

// NewAuditBridge builds a bridge that feeds d.
func NewAuditBridge(d *Dispatcher) *AuditBridge {
	return &AuditBridge{dispatcher: d}
}

// bridgedEvents maps audit mutation types to subscriber-facing event
// names. Authentication and authorization events stay internal.
var bridgedEvents = map[audit.EventType]EventType{
	audit.EventTypeBookCreate:    EventBookCreated,
	audit.EventTypeBookUpdate:    EventBookUpdated,
	audit.EventTypeBookDelete:    EventBookDeleted,
	audit.EventTypeBookShelve:    EventBookShelved,
	audit.EventTypeBookUnshelve:  EventBookUnshelved,
	audit.EventTypeCoverUpload:   EventCoverUploaded,
	audit.EventTypeAuthorCreate:  EventAuthorCreated,
	audit.EventTypeAuthorUpdate:  EventAuthorUpdated,
	audit.EventTypeAuthorDelete:  EventAuthorDeleted,
	audit.EventTypePostCreate:    EventPostPublished,
	audit.EventTypePostUpdate:    EventPostUpdated,
	audit.EventTypePostDelete:    EventPostDeleted,
	audit.EventTypeCommentCreate: EventCommentCreated,
	audit.EventTypeCommentUpdate: EventCommentUpdated,
	audit.EventTypeCommentDelete: EventCommentDeleted,
	audit.EventTypeLibraryCreate: EventLibraryCreated,
	audit.EventTypeLibraryUpdate: EventLibraryUpdated,
	audit.EventTypeLibraryDelete: EventLibraryDeleted,
}

// Write implements audit.Sink. Only successful mutations with a mapped
// event name are republished.
func (b *AuditBridge) Write(_ context.Context, event *audit.Event) error {
	if event.Status != audit.EventStatusSuccess {
		return nil
	}
	mapped, ok := bridgedEvents[event.Type]
	if !ok {
		return nil
	}

	data := map[string]interface{}{
		"resource": string(event.Resource),
	}
	if event.ResourceID != "" {
		data["id"] = event.ResourceID
	}
	if event.ResourceName != "" {
		data["name"] = event.ResourceName
	}
	if event.Username != "" {
		data["actor"] = event.Username
	}

	b.dispatcher.Dispatch(mapped, data)
	return nil
}

// Close implements audit.Sink.
func (b *AuditBridge) Close() error { return nil }
