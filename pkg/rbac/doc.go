// Package rbac defines biblio's role model and answers permission
// questions.
//
// Every user carries exactly one role on their user row: member,
// editor, librarian or admin. Registration assigns member. Roles only
// change through the admin role endpoint, which writes the user row and
// invalidates the checker's cache.
//
// The permission matrix is static:
//
//   - member: read everything public, full catalog writes (books,
//     authors), create posts and comments, edit and delete their own.
//   - editor: member plus moderation, meaning edit or delete of posts
//     and comments they do not own.
//   - librarian: member plus shelf management for the one library they
//     are assigned to.
//   - admin: everything, including library management, librarian and
//     role assignment, user administration and the audit trail.
//
// Ownership (a post's author, a comment's author, a token's owner) and
// the librarian-to-library binding are record-level facts, so the
// handlers check them against storage; the matrix only answers whether
// the role could ever qualify.
//
// The Checker memoizes role lookups in an expirable LRU keyed by user
// id. A role change is visible immediately on the instance that made it
// and within the cache TTL everywhere else.
package rbac
