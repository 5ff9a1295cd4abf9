package query

import (
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidPage reports a page parameter that cannot be satisfied:
// not a positive integer, or past the last page.
var ErrInvalidPage = errors.New("invalid page")

// Filter is one resolved predicate from the query string.
type Filter struct {
	Column string
	Lookup Lookup
	Value  string
}

// OrderTerm is one resolved ORDER BY term.
type OrderTerm struct {
	Column string
	Desc   bool
}

// Params holds everything ParseParams extracted from a list request.
type Params struct {
	Filters []Filter
	Search  string
	Order   []OrderTerm

	// Page is the requested 1-based page number. PageLast is set when
	// the client asked for the trailing page by name.
	Page     int
	PageLast bool
}

// Filtered reports whether any field filter matched.
func (p Params) Filtered() bool { return len(p.Filters) > 0 }

// Searched reports whether a search term is present.
func (p Params) Searched() bool { return p.Search != "" }

// ParseParams extracts filters, search, ordering and the page request
// from a list request's query string. Parameters and lookups the
// definition does not declare are ignored rather than rejected.
func ParseParams(def Definition, values url.Values) (Params, error) {
	p := Params{Page: 1}

	// Sorted keys keep the generated SQL stable between requests.
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if key == "search" || key == "ordering" || key == "page" {
			continue
		}

		name, lookup := splitLookup(key)
		field, ok := def.Filters[name]
		if !ok || !field.allows(lookup) {
			continue
		}

		value := values.Get(key)
		if value == "" {
			continue
		}

		p.Filters = append(p.Filters, Filter{
			Column: field.Column,
			Lookup: lookup,
			Value:  value,
		})
	}

	p.Search = strings.TrimSpace(values.Get("search"))
	p.Order = parseOrdering(def, values.Get("ordering"))

	if raw := values.Get("page"); raw != "" {
		if raw == "last" {
			p.PageLast = true
		} else {
			page, err := strconv.Atoi(raw)
			if err != nil || page < 1 {
				return Params{}, ErrInvalidPage
			}
			p.Page = page
		}
	}

	return p, nil
}

// splitLookup splits "publication_year__gte" into the parameter name
// and the lookup suffix. A bare name means equality.
func splitLookup(key string) (string, Lookup) {
	if idx := strings.LastIndex(key, "__"); idx >= 0 {
		return key[:idx], Lookup(key[idx+2:])
	}
	return key, LookupExact
}

// parseOrdering resolves the ordering parameter against the whitelist.
// Invalid terms are dropped; when none survive the default applies.
func parseOrdering(def Definition, raw string) []OrderTerm {
	var terms []OrderTerm
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		desc := strings.HasPrefix(part, "-")
		name := strings.TrimPrefix(part, "-")

		column, ok := def.OrderFields[name]
		if !ok {
			continue
		}
		terms = append(terms, OrderTerm{Column: column, Desc: desc})
	}

	if len(terms) == 0 {
		return def.defaultOrder()
	}
	return terms
}
