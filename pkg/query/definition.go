package query

import "strings"

// Lookup identifies a comparison a filter field accepts.
type Lookup string

const (
	LookupExact     Lookup = "exact"
	LookupGTE       Lookup = "gte"
	LookupLTE       Lookup = "lte"
	LookupIContains Lookup = "icontains"
)

// FilterField maps one query parameter onto a column with a set of
// permitted lookups.
type FilterField struct {
	Column  string
	Lookups []Lookup
}

// Exact returns a filter field that only accepts equality.
func Exact(column string) FilterField {
	return FilterField{Column: column, Lookups: []Lookup{LookupExact}}
}

func (f FilterField) allows(lookup Lookup) bool {
	for _, allowed := range f.Lookups {
		if allowed == lookup {
			return true
		}
	}
	return false
}

// Definition describes how list requests for one resource are filtered,
// searched, ordered and paginated. Parameters and ordering keys not
// named here are ignored, so client input never reaches SQL directly.
type Definition struct {
	// Filters maps query parameter names to filterable columns.
	Filters map[string]FilterField

	// SearchColumns are OR-matched by the search parameter.
	SearchColumns []string

	// OrderFields maps ordering keys clients may use to columns.
	OrderFields map[string]string

	// DefaultOrder applies when the request names no valid ordering.
	// Entries use ordering keys with an optional leading "-" for
	// descending; keys absent from OrderFields are treated as raw
	// columns so defaults can tiebreak on unexposed columns.
	DefaultOrder []string

	// PageSize is the fixed number of results per page.
	PageSize int
}

func (d Definition) defaultOrder() []OrderTerm {
	terms := make([]OrderTerm, 0, len(d.DefaultOrder))
	for _, entry := range d.DefaultOrder {
		desc := strings.HasPrefix(entry, "-")
		name := strings.TrimPrefix(entry, "-")

		column, ok := d.OrderFields[name]
		if !ok {
			column = name
		}
		terms = append(terms, OrderTerm{Column: column, Desc: desc})
	}
	return terms
}
