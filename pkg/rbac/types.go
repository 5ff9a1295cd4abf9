package rbac

import "sort"

// Resource names a kind of record permissions attach to.
type Resource string

const (
	ResourceBook    Resource = "book"
	ResourceAuthor  Resource = "author"
	ResourceLibrary Resource = "library"
	ResourceShelf   Resource = "shelf"
	ResourcePost    Resource = "post"
	ResourceComment Resource = "comment"
	ResourceUser    Resource = "user"
	ResourceAudit   Resource = "audit"
)

// Action is something a user does to a resource.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"

	// ActionModerate is editing or deleting a post or comment the user
	// does not own. Owners go through Edit/Delete plus the ownership
	// check in the handlers.
	ActionModerate Action = "moderate"

	// ActionAssignRole covers user role changes and librarian
	// assignments.
	ActionAssignRole Action = "assign_role"
)

// Permission pairs a resource with an action.
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// Role names. Every user carries exactly one, stored on the user row;
// "member" is the registration default.
const (
	RoleMember    = "member"
	RoleEditor    = "editor"
	RoleLibrarian = "librarian"
	RoleAdmin     = "admin"
)

// Roles lists the assignable role names in escalation order.
func Roles() []string {
	return []string{RoleMember, RoleEditor, RoleLibrarian, RoleAdmin}
}

// ValidRole reports whether name is an assignable role.
func ValidRole(name string) bool {
	switch name {
	case RoleMember, RoleEditor, RoleLibrarian, RoleAdmin:
		return true
	}
	return false
}

// memberGrants is the baseline every authenticated user holds: full
// catalog writes, own blog content, and read access to everything
// public. Ownership of posts and comments is enforced separately.
var memberGrants = []Permission{
	{ResourceBook, ActionView},
	{ResourceBook, ActionCreate},
	{ResourceBook, ActionEdit},
	{ResourceBook, ActionDelete},
	{ResourceAuthor, ActionView},
	{ResourceAuthor, ActionCreate},
	{ResourceAuthor, ActionEdit},
	{ResourceAuthor, ActionDelete},
	{ResourceLibrary, ActionView},
	{ResourcePost, ActionView},
	{ResourcePost, ActionCreate},
	{ResourcePost, ActionEdit},
	{ResourcePost, ActionDelete},
	{ResourceComment, ActionView},
	{ResourceComment, ActionCreate},
	{ResourceComment, ActionEdit},
	{ResourceComment, ActionDelete},
}

// editorGrants adds blog moderation on top of the member baseline.
var editorGrants = []Permission{
	{ResourcePost, ActionModerate},
	{ResourceComment, ActionModerate},
}

// librarianGrants adds shelf management on top of the member baseline.
// A librarian may only touch the shelf of the library they are assigned
// to; that binding is checked in the handlers against the librarians
// table.
var librarianGrants = []Permission{
	{ResourceShelf, ActionCreate},
	{ResourceShelf, ActionDelete},
}

// adminGrants is everything the other roles cannot reach: library
// management, librarian and role assignment, user administration and
// the audit trail.
var adminGrants = []Permission{
	{ResourceLibrary, ActionCreate},
	{ResourceLibrary, ActionEdit},
	{ResourceLibrary, ActionDelete},
	{ResourceLibrary, ActionAssignRole},
	{ResourceUser, ActionView},
	{ResourceUser, ActionEdit},
	{ResourceUser, ActionDelete},
	{ResourceUser, ActionAssignRole},
	{ResourceAudit, ActionView},
}

var grants = buildGrants()

func buildGrants() map[string]map[Permission]bool {
	set := func(groups ...[]Permission) map[Permission]bool {
		m := make(map[Permission]bool)
		for _, group := range groups {
			for _, p := range group {
				m[p] = true
			}
		}
		return m
	}
	return map[string]map[Permission]bool{
		RoleMember:    set(memberGrants),
		RoleEditor:    set(memberGrants, editorGrants),
		RoleLibrarian: set(memberGrants, librarianGrants),
		RoleAdmin:     set(memberGrants, editorGrants, librarianGrants, adminGrants),
	}
}

// Allowed reports whether a role holds the permission. Unknown roles
// hold nothing.
func Allowed(role string, resource Resource, action Action) bool {
	return grants[role][Permission{Resource: resource, Action: action}]
}

// RolePermissions returns a role's grant list sorted by
// resource:action, for the admin surface and tests.
func RolePermissions(role string) []Permission {
	set := grants[role]
	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].String() < perms[j].String() })
	return perms
}
