// Package audit provides an append-only trail of security-relevant events.
//
// # Overview
//
// This package records authentication events, permission denials, and data
// mutations with request context (actor, IP, request id). Events flow
// through a Recorder into one or more sinks; writes are fire-and-forget
// through a bounded worker pool so a slow sink never stalls a request.
//
// # Event Types
//
// Authentication: auth.register, auth.login, auth.login_failed,
// auth.token_create, auth.token_revoke, auth.token_invalid
// Authorization: authz.access_denied, authz.role_change,
// authz.librarian_assign
// Data: data.book_create, data.book_update, data.book_delete,
// data.cover_upload, and the same verbs for authors, posts, comments,
// libraries, plus data.book_shelve / data.book_unshelve
//
// # Usage Example
//
// Record a mutation from a handler:
//
//	audit.FromContext(ctx).Mutation(ctx, audit.EventTypeBookCreate,
//		audit.ResourceTypeBook, strconv.FormatInt(book.ID, 10), book.Title)
//
// Record a login failure:
//
//	rec.Auth(ctx, audit.EventTypeAuthLoginFailed, nil, username,
//		audit.EventStatusFailure, "wrong password")
//
// Query recent events:
//
//	events, err := store.Search(ctx, audit.SearchFilter{
//		Since:  &since,
//		Types:  []audit.EventType{audit.EventTypeAuthLoginFailed},
//		Limit:  100,
//	})
//
// # Sinks
//
// FileSink appends newline-delimited JSON to a rotating file. DBSink
// writes to an audit_events table (sqlite or postgres) and also serves
// queries and retention pruning. MultiSink fans out to several sinks.
//
// # Related Packages
//
//   - pkg/middleware: records token and permission denials
//   - pkg/api: admin query endpoint
//   - cmd/biblio-aggregator: prunes stale rows per the retention policy
package audit
