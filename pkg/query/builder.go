package query

import (
	"strings"

	"github.com/Masterminds/squirrel"
)

// ApplyFilters adds the field filter and search predicates to a select
// builder. The same predicates must go onto the row query and the count
// query so the envelope count reflects filtering but not pagination.
func (d Definition) ApplyFilters(sb squirrel.SelectBuilder, p Params) squirrel.SelectBuilder {
	for _, f := range p.Filters {
		switch f.Lookup {
		case LookupGTE:
			sb = sb.Where(squirrel.GtOrEq{f.Column: f.Value})
		case LookupLTE:
			sb = sb.Where(squirrel.LtOrEq{f.Column: f.Value})
		case LookupIContains:
			sb = sb.Where(IContains(f.Column, f.Value))
		default:
			sb = sb.Where(squirrel.Eq{f.Column: f.Value})
		}
	}

	if p.Search != "" && len(d.SearchColumns) > 0 {
		or := make(squirrel.Or, 0, len(d.SearchColumns))
		for _, column := range d.SearchColumns {
			or = append(or, IContains(column, p.Search))
		}
		sb = sb.Where(or)
	}

	return sb
}

// ApplyOrder adds ORDER BY terms, falling back to the default order
// when the params carry none.
func (d Definition) ApplyOrder(sb squirrel.SelectBuilder, p Params) squirrel.SelectBuilder {
	terms := p.Order
	if len(terms) == 0 {
		terms = d.defaultOrder()
	}

	for _, term := range terms {
		direction := " ASC"
		if term.Desc {
			direction = " DESC"
		}
		sb = sb.OrderBy(term.Column + direction)
	}

	return sb
}

// ApplyPage adds LIMIT/OFFSET for a resolved 1-based page.
func ApplyPage(sb squirrel.SelectBuilder, page, pageSize int) squirrel.SelectBuilder {
	return sb.Limit(uint64(pageSize)).Offset(uint64((page - 1) * pageSize))
}

// IContains builds a case-insensitive substring predicate that works on
// both sqlite and postgres. Wildcards in the needle are escaped so they
// match literally. The catalog search queries share it.
func IContains(column, value string) squirrel.Sqlizer {
	return squirrel.Expr(
		"LOWER("+column+") LIKE '%' || LOWER(?) || '%' ESCAPE '\\'",
		escapeLike(value),
	)
}

// IPrefix is IContains anchored to the start of the column value.
func IPrefix(column, value string) squirrel.Sqlizer {
	return squirrel.Expr(
		"LOWER("+column+") LIKE LOWER(?) || '%' ESCAPE '\\'",
		escapeLike(value),
	)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
