// Package query turns list-request query strings into SQL predicates
// and paginated envelopes.
//
// Each resource declares a Definition naming its filterable fields,
// searchable columns, ordering keys and page size. ParseParams resolves
// a request's query string against that definition; everything not
// declared is ignored, so client input never reaches SQL unchecked.
//
// The pipeline runs in a fixed order: filters, then search, then
// ordering, then pagination. A handler drives it like this:
//
//	params, err := query.ParseParams(def, r.URL.Query())
//	count, err := store.CountBooks(ctx, params)
//	page, err := query.ResolvePage(params, count, def.PageSize)
//	books, err := store.ListBooks(ctx, params, page)
//	envelope := query.NewPage(r, page, def.PageSize, count, books)
//
// Storage backends apply the same params to their own squirrel
// builders via Definition.ApplyFilters and Definition.ApplyOrder, so
// the count always reflects filtering but never pagination.
package query
