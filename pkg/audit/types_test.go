package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSONRoundTrip(t *testing.T) {
	userID := int64(42)
	tokenID := int64(7)
	event := &Event{
		ID:           3,
		OccurredAt:   time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Type:         EventTypeBookCreate,
		Status:       EventStatusSuccess,
		UserID:       &userID,
		Username:     "marguerite",
		TokenID:      &tokenID,
		Resource:     ResourceTypeBook,
		ResourceID:   "12",
		ResourceName: "The Left Hand of Darkness",
		IPAddress:    "203.0.113.9",
		RequestID:    "req-abc",
		Method:       "POST",
		Path:         "/api/v1/books",
		Metadata:     map[string]interface{}{"publication_year": "1969"},
	}

	data, err := event.ToJSON()
	require.NoError(t, err)

	parsed, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, event.Type, parsed.Type)
	assert.Equal(t, event.Status, parsed.Status)
	require.NotNil(t, parsed.UserID)
	assert.Equal(t, int64(42), *parsed.UserID)
	assert.Equal(t, "The Left Hand of Darkness", parsed.ResourceName)
	assert.Equal(t, "1969", parsed.Metadata["publication_year"])
	assert.True(t, event.OccurredAt.Equal(parsed.OccurredAt))
}

func TestEventJSONOmitsEmptyFields(t *testing.T) {
	event := &Event{
		OccurredAt: time.Now().UTC(),
		Type:       EventTypeAuthLoginFailed,
		Status:     EventStatusFailure,
		Username:   "ghost",
	}

	data, err := event.ToJSON()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "user_id")
	assert.NotContains(t, raw, "token_id")
	assert.NotContains(t, raw, "resource_id")
	assert.NotContains(t, raw, "metadata")
	assert.Equal(t, "auth.login_failed", raw["event_type"])
}

func TestFromJSONInvalid(t *testing.T) {
	_, err := FromJSON([]byte("{not json"))
	assert.Error(t, err)
}

func TestEventTypeNamespaces(t *testing.T) {
	// The aggregator and dashboards group on the prefix before the dot.
	byPrefix := map[string][]EventType{
		"auth.": {
			EventTypeAuthRegister, EventTypeAuthLogin, EventTypeAuthLoginFailed,
			EventTypeAuthTokenCreate, EventTypeAuthTokenRevoke, EventTypeAuthTokenInvalid,
		},
		"authz.": {
			EventTypeAccessDenied, EventTypeRoleChange, EventTypeLibrarianAssign,
		},
		"data.": {
			EventTypeBookCreate, EventTypeBookUpdate, EventTypeBookDelete,
			EventTypeCoverUpload, EventTypeBookShelve, EventTypeBookUnshelve,
			EventTypeAuthorCreate, EventTypePostDelete, EventTypeCommentUpdate,
			EventTypeLibraryCreate, EventTypeProfileUpdate,
		},
	}

	for prefix, types := range byPrefix {
		for _, et := range types {
			assert.Truef(t, len(et) > len(prefix) && string(et[:len(prefix)]) == prefix,
				"%s should be in the %s namespace", et, prefix)
		}
	}
}
