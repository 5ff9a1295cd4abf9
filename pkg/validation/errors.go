package validation

// FieldErrors maps a field name to the messages recorded against it.
// It marshals as {"field": ["message", ...]}, the shape 400 responses
// carry under their "errors" key.
type FieldErrors map[string][]string

// NewFieldErrors returns an empty, appendable error set.
func NewFieldErrors() FieldErrors {
	return make(FieldErrors)
}

// Add records a message against a field.
func (e FieldErrors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// HasErrors reports whether any field collected a message.
func (e FieldErrors) HasErrors() bool {
	return len(e) > 0
}
