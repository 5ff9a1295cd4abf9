package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// ExportCSV renders events as CSV for the admin endpoint's download
// format. Metadata is omitted; it does not flatten into columns.
func ExportCSV(events []*Event) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"id", "occurred_at", "event_type", "status",
		"user_id", "username", "token_id",
		"resource_type", "resource_id", "resource_name",
		"ip_address", "request_id", "method", "path",
		"message", "error",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		row := []string{
			strconv.FormatInt(event.ID, 10),
			event.OccurredAt.Format(time.RFC3339),
			string(event.Type),
			string(event.Status),
			formatInt64Ptr(event.UserID),
			event.Username,
			formatInt64Ptr(event.TokenID),
			string(event.Resource),
			event.ResourceID,
			event.ResourceName,
			event.IPAddress,
			event.RequestID,
			event.Method,
			event.Path,
			event.Message,
			event.Error,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func formatInt64Ptr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
