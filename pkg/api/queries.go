package api

import "github.com/pressleaf/biblio/pkg/query"

// List definitions for every paginated endpoint. Column names use the
// table aliases the storage backends bind: books b (joined to authors
// a), posts p, comments c, libraries l, and authors a on their own
// list. Filter and ordering keys are the whitelist; nothing a client
// sends reaches a SQL identifier.

// BookListQuery drives GET /api/v1/books.
var BookListQuery = query.Definition{
	Filters: map[string]query.FilterField{
		"title": {Column: "b.title", Lookups: []query.Lookup{
			query.LookupExact, query.LookupIContains,
		}},
		"author": query.Exact("b.author_id"),
		"publication_year": {Column: "b.publication_year", Lookups: []query.Lookup{
			query.LookupExact, query.LookupGTE, query.LookupLTE,
		}},
		"isbn": query.Exact("b.isbn"),
	},
	SearchColumns: []string{"b.title", "a.name"},
	OrderFields: map[string]string{
		"title":            "b.title",
		"publication_year": "b.publication_year",
		"author":           "a.name",
		"created_at":       "b.created_at",
	},
	DefaultOrder: []string{"-publication_year", "title"},
	PageSize:     query.DefaultPageSize,
}

// AuthorListQuery drives GET /api/v1/authors.
var AuthorListQuery = query.Definition{
	Filters: map[string]query.FilterField{
		"name": query.Exact("a.name"),
	},
	SearchColumns: []string{"a.name"},
	OrderFields: map[string]string{
		"name":       "a.name",
		"created_at": "a.created_at",
	},
	DefaultOrder: []string{"name"},
	PageSize:     query.DefaultPageSize,
}

// PostListQuery drives GET /api/v1/posts. Newest first.
var PostListQuery = query.Definition{
	Filters: map[string]query.FilterField{
		"author": query.Exact("p.author_id"),
	},
	SearchColumns: []string{"p.title", "p.content"},
	OrderFields: map[string]string{
		"published_date": "p.published_date",
		"title":          "p.title",
	},
	DefaultOrder: []string{"-published_date"},
	PageSize:     query.DefaultPageSize,
}

// CommentListQuery drives GET /api/v1/posts/{id}/comments. Oldest
// first; the post filter is bound by the handler, not the client.
var CommentListQuery = query.Definition{
	Filters: map[string]query.FilterField{
		"author": query.Exact("c.author_id"),
	},
	OrderFields: map[string]string{
		"created_at": "c.created_at",
	},
	DefaultOrder: []string{"created_at"},
	PageSize:     query.DefaultPageSize,
}

// LibraryListQuery drives GET /api/v1/libraries.
var LibraryListQuery = query.Definition{
	SearchColumns: []string{"l.name"},
	OrderFields: map[string]string{
		"name":       "l.name",
		"created_at": "l.created_at",
	},
	DefaultOrder: []string{"name"},
	PageSize:     query.DefaultPageSize,
}
