package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"
)

// slackMessage is the minimal incoming-webhook payload Slack accepts.
type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color string `json:"color,omitempty"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

// slackPayload renders an event as a chat notification instead of the
// signed JSON envelope.
func slackPayload(event *Event) ([]byte, error) {
	msg := slackMessage{Text: headline(event.Type)}

	var detail string
	if name, ok := event.Data["name"].(string); ok && name != "" {
		detail = name
	}
	if actor, ok := event.Data["actor"].(string); ok && actor != "" {
		if detail != "" {
			detail = fmt.Sprintf("%s (by %s)", detail, actor)
		} else {
			detail = "by " + actor
		}
	}
	if detail != "" {
		msg.Attachments = []slackAttachment{{
			Color: slackColor(event.Type),
			Title: string(event.Type),
			Text:  detail,
		}}
	}

	return json.Marshal(msg)
}

// headline maps event types to notification lines.
func headline(t EventType) string {
	switch t {
	case EventBookCreated:
		return "A new book was added to the catalog"
	case EventBookUpdated:
		return "A catalog book was updated"
	case EventBookDeleted:
		return "A book was removed from the catalog"
	case EventBookShelved:
		return "A book was shelved at a branch"
	case EventBookUnshelved:
		return "A book was pulled from a branch shelf"
	case EventCoverUploaded:
		return "A book cover was uploaded"
	case EventAuthorCreated:
		return "A new author was added"
	case EventAuthorUpdated:
		return "An author was updated"
	case EventAuthorDeleted:
		return "An author was removed"
	case EventPostPublished:
		return "A new blog post was published"
	case EventPostUpdated:
		return "A blog post was edited"
	case EventPostDeleted:
		return "A blog post was taken down"
	case EventCommentCreated:
		return "A new comment was posted"
	case EventCommentUpdated:
		return "A comment was edited"
	case EventCommentDeleted:
		return "A comment was removed"
	case EventLibraryCreated:
		return "A new library branch was opened"
	case EventLibraryUpdated:
		return "A library branch was updated"
	case EventLibraryDeleted:
		return "A library branch was closed"
	case EventPing:
		return "Webhook test from biblio"
	}
	return "Something changed in biblio"
}

// slackColor picks the legacy attachment color for an event.
func slackColor(t EventType) string {
	switch {
	case strings.HasSuffix(string(t), ".deleted"):
		return "danger"
	case strings.HasSuffix(string(t), ".created"), t == EventPostPublished:
		return "good"
	}
	return "#439fe0"
}
