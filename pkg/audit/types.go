package audit

import (
	"encoding/json"
	"time"
)

// EventType categorizes an audit event.
type EventType string

const (
	// Authentication events
	EventTypeAuthRegister     EventType = "auth.register"
	EventTypeAuthLogin        EventType = "auth.login"
	EventTypeAuthLoginFailed  EventType = "auth.login_failed"
	EventTypeAuthTokenCreate  EventType = "auth.token_create"
	EventTypeAuthTokenRevoke  EventType = "auth.token_revoke"
	EventTypeAuthTokenInvalid EventType = "auth.token_invalid"

	// Authorization events
	EventTypeAccessDenied    EventType = "authz.access_denied"
	EventTypeRoleChange      EventType = "authz.role_change"
	EventTypeLibrarianAssign EventType = "authz.librarian_assign"

	// Data mutation events
	EventTypeBookCreate    EventType = "data.book_create"
	EventTypeBookUpdate    EventType = "data.book_update"
	EventTypeBookDelete    EventType = "data.book_delete"
	EventTypeCoverUpload   EventType = "data.cover_upload"
	EventTypeAuthorCreate  EventType = "data.author_create"
	EventTypeAuthorUpdate  EventType = "data.author_update"
	EventTypeAuthorDelete  EventType = "data.author_delete"
	EventTypePostCreate    EventType = "data.post_create"
	EventTypePostUpdate    EventType = "data.post_update"
	EventTypePostDelete    EventType = "data.post_delete"
	EventTypeCommentCreate EventType = "data.comment_create"
	EventTypeCommentUpdate EventType = "data.comment_update"
	EventTypeCommentDelete EventType = "data.comment_delete"
	EventTypeLibraryCreate EventType = "data.library_create"
	EventTypeLibraryUpdate EventType = "data.library_update"
	EventTypeLibraryDelete EventType = "data.library_delete"
	EventTypeBookShelve    EventType = "data.book_shelve"
	EventTypeBookUnshelve  EventType = "data.book_unshelve"
	EventTypeProfileUpdate EventType = "data.profile_update"
)

// EventStatus is the outcome of an event.
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType is the kind of record an event touched.
type ResourceType string

const (
	ResourceTypeBook    ResourceType = "book"
	ResourceTypeAuthor  ResourceType = "author"
	ResourceTypePost    ResourceType = "post"
	ResourceTypeComment ResourceType = "comment"
	ResourceTypeLibrary ResourceType = "library"
	ResourceTypeShelf   ResourceType = "shelf"
	ResourceTypeUser    ResourceType = "user"
	ResourceTypeToken   ResourceType = "token"
	ResourceTypeCover   ResourceType = "cover"
)

// Event is a single audit log entry.
type Event struct {
	ID         int64       `json:"id,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Type       EventType   `json:"event_type"`
	Status     EventStatus `json:"status"`

	// Actor
	UserID   *int64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	TokenID  *int64 `json:"token_id,omitempty"`

	// Resource
	Resource     ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	ResourceName string       `json:"resource_name,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON serializes the event.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an event from JSON.
func FromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
