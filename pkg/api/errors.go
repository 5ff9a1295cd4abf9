package api

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel for missing records. Storage backends
// return errors matching it via errors.Is regardless of which typed
// error carries the detail.
var ErrNotFound = errors.New("not found")

// ErrConflict is the sentinel for uniqueness violations.
var ErrConflict = errors.New("conflict")

// NotFoundError reports a lookup that matched no record. ID is zero
// for lookups keyed by something other than a numeric id.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound lets packages that cannot import this one recognize the
// error through an anonymous interface.
func (e *NotFoundError) NotFound() bool { return true }

// ConflictError reports a write rejected by a uniqueness constraint.
// Field names the input field the constraint maps onto; empty when the
// violation spans columns and only the message can describe it.
type ConflictError struct {
	Message string
	Field   string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
