// Package search answers free-form catalog queries with grouped book
// and author hits.
//
// # Overview
//
// This package parses the structured query grammar (field:value pairs
// plus free text), turns it into SQL predicates, and runs it against a
// Catalog implementation backed by either store. Results come back
// grouped by record kind together with title suggestions.
//
// # Query Syntax
//
// Free text, matched case-insensitively across title, author name and
// description:
//
//	search?q=dispossessed
//
// Field filters, with quoting for values that contain spaces:
//
//	search?q=author:"Le Guin"
//	search?q=year:1974
//	search?q=isbn:9780061054884
//
// Filters and free text combine; every part must match:
//
//	search?q=author:"Le Guin" dispossessed
//
// Supported fields are title, author, year and isbn. Unknown fields
// are kept as free text rather than rejected.
//
// # Usage Example
//
//	svc := search.NewService(store, logger)
//	resp, err := svc.Search(ctx, `author:"Le Guin" dispossessed`, 20)
//	for _, book := range resp.Books {
//		fmt.Printf("%s (%d)\n", book.Title, book.PublicationYear)
//	}
//
// # Related Packages
//
//   - pkg/storage/sqlite, pkg/storage/postgres: Catalog implementations
//   - pkg/query: shared predicate helpers for the LIKE matching
package search
