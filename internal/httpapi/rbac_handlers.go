package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"gatehouse.dev/internal/auth"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type createPermissionRequest struct {
	ResourceType string `json:"resource_type"`
	Action       string `json:"action"`
	Description  string `json:"description"`
}

type attachPermissionRequest struct {
	PermissionID string `json:"permission_id"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	roles, err := a.svc.Graph().ListRoles(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	role, err := a.svc.Graph().CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.role.create", map[string]any{"role_id": role.ID, "name": role.Name})
	w.Header().Set("Location", fmt.Sprintf("/api/admin/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleGetRole(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	role, err := a.svc.Graph().GetRole(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	role, err := a.svc.Graph().UpdateRole(r.Context(), r.PathValue("id"), auth.RoleUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.role.update", map[string]any{"role_id": role.ID, "name": role.Name})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id := r.PathValue("id")
	if err := a.svc.Graph().DeleteRole(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.role.delete", map[string]any{"role_id": id})
	writeJSON(w, http.StatusOK, map[string]any{"message": "role deleted"})
}

func (a *API) handleAttachPermission(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req attachPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	req.PermissionID = strings.TrimSpace(req.PermissionID)
	if req.PermissionID == "" {
		a.fail(w, r, auth.Required("permission_id"))
		return
	}
	roleID := r.PathValue("id")
	if err := a.svc.Graph().AttachPermission(r.Context(), roleID, req.PermissionID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.role.permission_attach", map[string]any{"role_id": roleID, "permission_id": req.PermissionID})
	a.respondRole(w, r, http.StatusCreated, roleID)
}

func (a *API) handleDetachPermission(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	roleID, permID := r.PathValue("id"), r.PathValue("permissionID")
	if err := a.svc.Graph().DetachPermission(r.Context(), roleID, permID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.role.permission_detach", map[string]any{"role_id": roleID, "permission_id": permID})
	writeJSON(w, http.StatusOK, map[string]any{"message": "permission detached"})
}

func (a *API) respondRole(w http.ResponseWriter, r *http.Request, code int, roleID string) {
	role, err := a.svc.Graph().GetRole(r.Context(), roleID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, code, role)
}

func (a *API) handleListPermissions(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	perms, err := a.svc.Graph().ListPermissions(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (a *API) handleCreatePermission(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req createPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	perm, err := a.svc.Graph().CreatePermission(r.Context(), req.ResourceType, req.Action, req.Description)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.permission.create", map[string]any{"permission_id": perm.ID, "key": perm.Key()})
	writeJSON(w, http.StatusCreated, perm)
}

func (a *API) handleDeletePermission(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id := r.PathValue("id")
	if err := a.svc.Graph().DeletePermission(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.permission.delete", map[string]any{"permission_id": id})
	writeJSON(w, http.StatusOK, map[string]any{"message": "permission deleted"})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	users, err := a.svc.Graph().ListUsers(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	user, err := a.svc.Graph().GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleAttachRole(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	req.RoleID = strings.TrimSpace(req.RoleID)
	if req.RoleID == "" {
		a.fail(w, r, auth.Required("role_id"))
		return
	}
	userID := r.PathValue("id")
	if err := a.svc.Graph().AttachRole(r.Context(), userID, req.RoleID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.user.role_attach", map[string]any{"target_user_id": userID, "role_id": req.RoleID})
	a.respondUser(w, r, http.StatusCreated, userID)
}

func (a *API) handleDetachRole(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	userID, roleID := r.PathValue("id"), r.PathValue("roleID")
	if err := a.svc.Graph().DetachRole(r.Context(), p.User.ID, userID, roleID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.user.role_detach", map[string]any{"target_user_id": userID, "role_id": roleID})
	writeJSON(w, http.StatusOK, map[string]any{"message": "role detached"})
}

func (a *API) respondUser(w http.ResponseWriter, r *http.Request, code int, userID string) {
	user, err := a.svc.Graph().GetUser(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, code, user)
}
