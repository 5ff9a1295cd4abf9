package audit

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSearchLimit = 100
	maxSearchLimit     = 1000
)

// SearchFilter narrows an audit query. Zero-value fields match
// everything; results are always newest first.
type SearchFilter struct {
	Since *time.Time
	Until *time.Time

	UserID *int64
	Types  []EventType
	Status *EventStatus

	Resource   ResourceType
	ResourceID string
	IPAddress  string

	Limit  int
	Offset int
}

// matches reports whether an event passes every set field. The
// file-backed store filters in memory with this; the database store
// compiles the same conditions to SQL.
func (f SearchFilter) matches(e *Event) bool {
	if f.Since != nil && e.OccurredAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.OccurredAt.After(*f.Until) {
		return false
	}
	if f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID) {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.IPAddress != "" && e.IPAddress != f.IPAddress {
		return false
	}
	return true
}

// ParseFilter builds a SearchFilter from query parameters. Unparseable
// values are ignored rather than rejected; the limit is clamped to
// maxSearchLimit.
func ParseFilter(query url.Values) SearchFilter {
	filter := SearchFilter{Limit: defaultSearchLimit}

	if v := query.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Since = &t
		}
	}
	if v := query.Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Until = &t
		}
	}

	if v := query.Get("user_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.UserID = &id
		}
	}

	if v := query.Get("event_type"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Types = append(filter.Types, EventType(part))
			}
		}
	}

	if v := query.Get("status"); v != "" {
		status := EventStatus(v)
		filter.Status = &status
	}

	filter.Resource = ResourceType(query.Get("resource_type"))
	filter.ResourceID = query.Get("resource_id")
	filter.IPAddress = query.Get("ip_address")

	if v := query.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if filter.Limit > maxSearchLimit {
		filter.Limit = maxSearchLimit
	}

	if v := query.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	return filter
}
