package rbac

import (
	"testing"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		role     string
		resource Resource
		action   Action
		want     bool
	}{
		// Members write the catalog and their own blog content.
		{RoleMember, ResourceBook, ActionCreate, true},
		{RoleMember, ResourceBook, ActionDelete, true},
		{RoleMember, ResourceAuthor, ActionEdit, true},
		{RoleMember, ResourcePost, ActionCreate, true},
		{RoleMember, ResourceComment, ActionCreate, true},
		{RoleMember, ResourcePost, ActionModerate, false},
		{RoleMember, ResourceShelf, ActionCreate, false},
		{RoleMember, ResourceLibrary, ActionCreate, false},
		{RoleMember, ResourceUser, ActionAssignRole, false},
		{RoleMember, ResourceAudit, ActionView, false},

		// Editors moderate the blog, nothing more.
		{RoleEditor, ResourcePost, ActionModerate, true},
		{RoleEditor, ResourceComment, ActionModerate, true},
		{RoleEditor, ResourceBook, ActionCreate, true},
		{RoleEditor, ResourceShelf, ActionCreate, false},
		{RoleEditor, ResourceLibrary, ActionEdit, false},
		{RoleEditor, ResourceAudit, ActionView, false},

		// Librarians manage shelves, not the blog or libraries.
		{RoleLibrarian, ResourceShelf, ActionCreate, true},
		{RoleLibrarian, ResourceShelf, ActionDelete, true},
		{RoleLibrarian, ResourcePost, ActionModerate, false},
		{RoleLibrarian, ResourceLibrary, ActionCreate, false},
		{RoleLibrarian, ResourceLibrary, ActionAssignRole, false},

		// Admins reach everything.
		{RoleAdmin, ResourceLibrary, ActionCreate, true},
		{RoleAdmin, ResourceLibrary, ActionAssignRole, true},
		{RoleAdmin, ResourceShelf, ActionDelete, true},
		{RoleAdmin, ResourcePost, ActionModerate, true},
		{RoleAdmin, ResourceUser, ActionAssignRole, true},
		{RoleAdmin, ResourceUser, ActionDelete, true},
		{RoleAdmin, ResourceAudit, ActionView, true},
		{RoleAdmin, ResourceBook, ActionEdit, true},

		// Unknown roles hold nothing.
		{"", ResourceBook, ActionView, false},
		{"superuser", ResourceBook, ActionView, false},
	}

	for _, tt := range tests {
		if got := Allowed(tt.role, tt.resource, tt.action); got != tt.want {
			t.Errorf("Allowed(%q, %s, %s) = %v, want %v", tt.role, tt.resource, tt.action, got, tt.want)
		}
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range Roles() {
		if !ValidRole(role) {
			t.Errorf("ValidRole(%q) = false, want true", role)
		}
	}
	for _, role := range []string{"", "superuser", "Member", "ADMIN"} {
		if ValidRole(role) {
			t.Errorf("ValidRole(%q) = true, want false", role)
		}
	}
}

func TestRolePermissions(t *testing.T) {
	member := RolePermissions(RoleMember)
	if len(member) != len(memberGrants) {
		t.Errorf("Member grant count = %d, want %d", len(member), len(memberGrants))
	}

	// Every role's list ships sorted and deterministic.
	for _, role := range Roles() {
		perms := RolePermissions(role)
		for i := 1; i < len(perms); i++ {
			if perms[i-1].String() >= perms[i].String() {
				t.Errorf("RolePermissions(%q) not sorted at %d: %s >= %s", role, i, perms[i-1], perms[i])
			}
		}
	}

	// Editors hold everything members do.
	editor := make(map[Permission]bool)
	for _, p := range RolePermissions(RoleEditor) {
		editor[p] = true
	}
	for _, p := range member {
		if !editor[p] {
			t.Errorf("Editor missing member grant %s", p)
		}
	}

	if got := RolePermissions("unknown"); len(got) != 0 {
		t.Errorf("Unknown role should have no permissions, got %d", len(got))
	}
}

func TestPermissionString(t *testing.T) {
	p := Permission{Resource: ResourceShelf, Action: ActionAssignRole}
	if got := p.String(); got != "shelf:assign_role" {
		t.Errorf("Permission.String() = %q, want %q", got, "shelf:assign_role")
	}
}
