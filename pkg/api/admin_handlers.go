package api

import (
	"fmt"
	"net/http"

	"github.com/pressleaf/biblio/pkg/audit"
	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/rbac"
)

// roleInfo is one entry in the role listing.
type roleInfo struct {
	Name        string            `json:"name"`
	Permissions []rbac.Permission `json:"permissions"`
}

// listRoles handles GET /api/v1/admin/roles.
func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	roles := make([]roleInfo, 0, len(rbac.Roles()))
	for _, name := range rbac.Roles() {
		roles = append(roles, roleInfo{Name: name, Permissions: rbac.RolePermissions(name)})
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

// setUserRole handles PUT /api/v1/admin/users/{id}/role.
func (s *Server) setUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	var in struct {
		Role string `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	if !rbac.ValidRole(in.Role) {
		httputil.WriteBadRequest(w, fmt.Sprintf("unknown role %q", in.Role))
		return
	}

	user, err := s.storage.GetUser(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to update role")
		return
	}

	if err := s.storage.SetUserRole(r.Context(), id, in.Role); err != nil {
		writeStorageError(w, s.logger, err, "failed to update role")
		return
	}
	user.Role = in.Role

	// Cached grants for this user are stale now.
	s.checker.Invalidate(id)

	audit.FromContext(r.Context()).RoleChange(r.Context(), audit.EventTypeRoleChange,
		id, "role set to "+in.Role)
	s.logger.WithFields(map[string]interface{}{
		"user_id": id,
		"role":    in.Role,
	}).Info("User role changed")

	httputil.WriteMessage(w, http.StatusOK, "Role updated successfully", "user", user)
}

// searchAudit handles GET /api/v1/admin/audit. The filter comes from
// the query string; format=csv switches the body to a CSV download.
func (s *Server) searchAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditStore == nil {
		httputil.WriteServiceUnavailable(w, "audit trail is not configured")
		return
	}

	filter := audit.ParseFilter(r.URL.Query())
	events, err := s.auditStore.Search(r.Context(), filter)
	if err != nil {
		s.logger.WithError(err).Error("Audit search failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to search audit events")
		return
	}
	if events == nil {
		events = []*audit.Event{}
	}

	if r.URL.Query().Get("format") == "csv" {
		data, err := audit.ExportCSV(events)
		if err != nil {
			s.logger.WithError(err).Error("Audit export failed")
			httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to export audit events")
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}
