package search

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Query is a parsed catalog search: free-text terms plus the
// structured field filters. All set parts must match, so
// `author:"Le Guin" dispossessed` means books by Le Guin whose text
// mentions dispossessed.
type Query struct {
	// Free-text terms, matched as case-insensitive substrings.
	Terms []string

	// Title narrows to books whose title contains the value.
	Title string

	// Author narrows to the author name.
	Author string

	// Year narrows to an exact publication year.
	Year int

	// ISBN narrows to an exact ISBN.
	ISBN string

	// Raw is the query string as the client sent it.
	Raw string
}

// ParseError reports a query string the grammar rejects. Handlers map
// it to a 400.
type ParseError struct {
	msg string
}

func (e *ParseError) Error() string { return e.msg }

// filterPattern matches key:value and key:"quoted value" pairs.
var filterPattern = regexp.MustCompile(`([\w-]+):("([^"]+)"|(\S+))`)

// Parse parses a raw query string. Unknown filter keys are kept as
// free-text terms rather than rejected, so a stray colon does not turn
// into an error the client cannot act on.
func Parse(raw string) (*Query, error) {
	q := &Query{
		Terms: make([]string, 0),
		Raw:   raw,
	}

	for _, match := range filterPattern.FindAllStringSubmatch(raw, -1) {
		key := match[1]
		value := match[3] // quoted
		if value == "" {
			value = match[4] // unquoted
		}

		switch strings.ToLower(key) {
		case "title":
			q.Title = value
		case "author":
			q.Author = value
		case "year":
			year, err := strconv.Atoi(value)
			if err != nil {
				return nil, &ParseError{msg: fmt.Sprintf("invalid year filter: %q is not a number", value)}
			}
			q.Year = year
		case "isbn":
			q.ISBN = value
		default:
			q.Terms = append(q.Terms, key+":"+value)
		}
	}

	clean := strings.TrimSpace(filterPattern.ReplaceAllString(raw, ""))
	if clean != "" {
		q.Terms = append(q.Terms, strings.Fields(clean)...)
	}

	return q, nil
}

// HasFilters reports whether any structured filter is set.
func (q *Query) HasFilters() bool {
	return q.Title != "" || q.Author != "" || q.Year != 0 || q.ISBN != ""
}

// IsEmpty reports whether the query constrains anything at all.
func (q *Query) IsEmpty() bool {
	return len(q.Terms) == 0 && !q.HasFilters()
}

// BooksOnly reports whether the query carries a filter only book rows
// can satisfy, making an author group meaningless.
func (q *Query) BooksOnly() bool {
	return q.Title != "" || q.Year != 0 || q.ISBN != ""
}

// String returns a human-readable form for logs.
func (q *Query) String() string {
	parts := make([]string, 0, 5)

	if len(q.Terms) > 0 {
		parts = append(parts, fmt.Sprintf("terms:%v", q.Terms))
	}
	if q.Title != "" {
		parts = append(parts, "title:"+q.Title)
	}
	if q.Author != "" {
		parts = append(parts, "author:"+q.Author)
	}
	if q.Year != 0 {
		parts = append(parts, "year:"+strconv.Itoa(q.Year))
	}
	if q.ISBN != "" {
		parts = append(parts, "isbn:"+q.ISBN)
	}

	return strings.Join(parts, ", ")
}
