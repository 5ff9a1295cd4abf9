package search

import (
	"github.com/Masterminds/squirrel"

	"github.com/pressleaf/biblio/pkg/query"
)

// BookConditions translates the query into predicates over the joined
// book row. Column names assume the catalog aliases: books b joined to
// authors a. Free-text terms each match anywhere in the title, author
// name or description; structured filters pin their own column.
func (q *Query) BookConditions() []squirrel.Sqlizer {
	conds := make([]squirrel.Sqlizer, 0, len(q.Terms)+4)

	for _, term := range q.Terms {
		conds = append(conds, squirrel.Or{
			query.IContains("b.title", term),
			query.IContains("a.name", term),
			query.IContains("b.description", term),
		})
	}
	if q.Title != "" {
		conds = append(conds, query.IContains("b.title", q.Title))
	}
	if q.Author != "" {
		conds = append(conds, query.IContains("a.name", q.Author))
	}
	if q.Year != 0 {
		conds = append(conds, squirrel.Eq{"b.publication_year": q.Year})
	}
	if q.ISBN != "" {
		conds = append(conds, squirrel.Eq{"b.isbn": q.ISBN})
	}

	return conds
}

// AuthorConditions translates the query into predicates over an author
// row aliased a. Only the name is searchable; book-only filters are the
// caller's cue to skip the author group entirely.
func (q *Query) AuthorConditions() []squirrel.Sqlizer {
	conds := make([]squirrel.Sqlizer, 0, len(q.Terms)+1)

	for _, term := range q.Terms {
		conds = append(conds, query.IContains("a.name", term))
	}
	if q.Author != "" {
		conds = append(conds, query.IContains("a.name", q.Author))
	}

	return conds
}
