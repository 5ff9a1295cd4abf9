package audit

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportCSV(t *testing.T) {
	userID := int64(42)
	tokenID := int64(9)
	events := []*Event{
		{
			ID:           1,
			OccurredAt:   time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
			Type:         EventTypeBookCreate,
			Status:       EventStatusSuccess,
			UserID:       &userID,
			Username:     "alice",
			TokenID:      &tokenID,
			Resource:     ResourceTypeBook,
			ResourceID:   "7",
			ResourceName: "Parable of the Sower",
			IPAddress:    "203.0.113.9",
			RequestID:    "req-1",
			Method:       "POST",
			Path:         "/api/v1/books",
		},
		{
			ID:         2,
			OccurredAt: time.Date(2026, 3, 15, 10, 31, 0, 0, time.UTC),
			Type:       EventTypeAuthLoginFailed,
			Status:     EventStatusFailure,
			Username:   "ghost",
			Resource:   ResourceTypeUser,
			Message:    "wrong password, third attempt",
			Error:      "invalid credentials",
		},
	}

	data, err := ExportCSV(events)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	header := records[0]
	assert.Equal(t, []string{
		"id", "occurred_at", "event_type", "status", "user_id", "username",
		"token_id", "resource_type", "resource_id", "resource_name",
		"ip_address", "request_id", "method", "path", "message", "error",
	}, header)

	first := records[1]
	assert.Equal(t, "1", first[0])
	assert.Equal(t, "2026-03-15T10:30:00Z", first[1])
	assert.Equal(t, "data.book_create", first[2])
	assert.Equal(t, "success", first[3])
	assert.Equal(t, "42", first[4])
	assert.Equal(t, "alice", first[5])
	assert.Equal(t, "9", first[6])
	assert.Equal(t, "book", first[7])
	assert.Equal(t, "7", first[8])
	assert.Equal(t, "Parable of the Sower", first[9])

	// Empty user and token columns for anonymous events, and the comma
	// in the message survives the round trip.
	second := records[2]
	assert.Equal(t, "", second[4])
	assert.Equal(t, "", second[6])
	assert.Equal(t, "wrong password, third attempt", second[14])
	assert.Equal(t, "invalid credentials", second[15])
}

func TestExportCSVEmpty(t *testing.T) {
	data, err := ExportCSV(nil)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "id", records[0][0])
}
