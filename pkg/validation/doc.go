// Package validation checks write payloads for the catalog, blog,
// library, and account endpoints.
//
// # Overview
//
// Validation is two-phase. Every field check runs and records its
// failures into a FieldErrors map keyed by field name, then an
// optional object-level hook runs only when the fields came back
// clean. Handlers serialize the map as {"field": ["message", ...]}
// inside 400 responses. Inputs are normalized in place (trimmed
// strings, canonical ISBNs) so callers persist exactly what was
// validated.
//
// # Field Rules
//
// Books:
//   - title: required, at most 200 characters
//   - publication_year: between 1000 and the current year
//   - author: required reference; existence is checked at the
//     storage boundary, not here
//   - isbn: optional, 10 or 13 characters once separators drop
//
// Authors:
//   - name: required, 2 to 100 characters
//
// Posts and comments require non-blank title/content; accounts check
// username shape, email form, and password length.
//
// # Usage Example
//
// Validate a create payload:
//
//	validator := validation.NewValidator(nil)
//
//	in := &validation.BookInput{Title: " Dune ", PublicationYear: 1965, AuthorID: 1}
//	if errs := validator.ValidateBook(in); errs.HasErrors() {
//		// respond 400 carrying the map under "errors"
//	}
//	// in.Title is now "Dune"
//
// The clock is injectable so year checks stay deterministic in tests:
//
//	cfg := validation.DefaultConfig()
//	cfg.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
//	validator := validation.NewValidator(cfg)
//
// # Related Packages
//
//   - pkg/api: record types the normalized inputs map onto
//   - pkg/httputil: response envelopes carrying FieldErrors
package validation
