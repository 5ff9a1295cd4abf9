// Package api implements the HTTP surface of the biblio service.
//
// # Overview
//
// This package defines the domain records (Book, Author, Post, Comment,
// Library, User), the Storage interface the backends implement, and the
// handlers for the catalog, blog, library, account and admin routes.
// Server assembles the routes under /api/v1 with the account routes at
// the root, wires the authentication middleware in front of everything,
// and gates each mutation on the caller's role.
//
// # Request Pipeline
//
// Collection endpoints share one pipeline: parse the whitelisted query
// parameters, count the filtered set, resolve the requested page, fetch
// it, and answer with the count/next/previous/results envelope. A page
// number past the end answers 404 with {"detail": "Invalid page."}.
//
// Validated writes answer 400 with {"message": ..., "errors": {field:
// [messages]}} when the payload fails validation, and 409 with
// {"error": ...} when a uniqueness constraint rejects the write.
//
// # Usage Example
//
// Assemble and serve:
//
//	srv := api.NewServer(store, api.Options{
//		Tokens:  tokens,
//		Checker: checker,
//		Logger:  logger,
//	})
//	http.ListenAndServe(":8080", srv)
//
// Mount extra route groups:
//
//	srv.RegisterAPI(searchHandlers)   // under /api/v1
//	srv.RegisterRoutes(ssoHandlers)   // at the root
//
// # Related Packages
//
//   - pkg/storage: sqlite and postgres Storage implementations
//   - pkg/middleware: authentication and permission gates
//   - pkg/query: filter/search/ordering/pagination pipeline
//   - pkg/validation: field validation for write payloads
package api
