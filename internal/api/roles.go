package api

import (
	"net/http"

	"github.com/campusops/portal/internal/middleware"
	"github.com/campusops/portal/internal/rbac"
	"github.com/google/uuid"
)

type UpsertRoleRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	DisplayName string `json:"displayName" validate:"required,max=128"`
	IsAdmin     bool   `json:"isAdmin"`
}

type SetPermissionRequest struct {
	CanAccess bool `json:"canAccess"`
	CanWrite  bool `json:"canWrite"`
}

func (s *Server) ListRoles(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	roles, err := s.roles.ListRoles(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to list roles")
		return
	}
	writeList(w, roles)
}

func (s *Server) UpsertRole(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req UpsertRoleRequest
	if errResp := s.decodeBody(r, &req); errResp != nil {
		errResp.Write(w)
		return
	}

	role, err := s.roles.UpdateRole(r.Context(), user.Actor(), rbac.RoleName(req.Name), req.DisplayName, req.IsAdmin)
	if err != nil {
		writeError(w, r, err, "Failed to upsert role")
		return
	}

	middleware.GetLoggerFromContext(r.Context()).Info("Role upserted", "role", role.Name, "role_id", role.ID)
	writeJSON(w, http.StatusOK, role)
}

func (s *Server) ListRolePermissions(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	var roleID uuid.UUID
	if errResp := pathParam(r, "roleId", &roleID); errResp != nil {
		errResp.Write(w)
		return
	}

	perms, err := s.roles.ListPermissions(r.Context(), roleID)
	if err != nil {
		writeError(w, r, err, "Failed to list permissions")
		return
	}
	writeList(w, perms)
}

func (s *Server) SetRolePermission(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var roleID uuid.UUID
	if errResp := pathParam(r, "roleId", &roleID); errResp != nil {
		errResp.Write(w)
		return
	}
	var tile string
	if errResp := pathParam(r, "tileKey", &tile); errResp != nil {
		errResp.Write(w)
		return
	}
	tileKey, err := rbac.ParseTileKey(tile)
	if err != nil {
		writeError(w, r, err, "Invalid tile key")
		return
	}

	var req SetPermissionRequest
	if errResp := s.decodeBody(r, &req); errResp != nil {
		errResp.Write(w)
		return
	}

	perm, err := s.roles.GrantPermission(r.Context(), user.Actor(), roleID, rbac.Permission{
		TileKey:   tileKey,
		CanAccess: req.CanAccess,
		CanWrite:  req.CanWrite,
	})
	if err != nil {
		writeError(w, r, err, "Failed to set permission")
		return
	}

	middleware.GetLoggerFromContext(r.Context()).Info("Permission set",
		"role_id", roleID,
		"tile_key", perm.TileKey,
		"can_access", perm.CanAccess,
		"can_write", perm.CanWrite)
	writeJSON(w, http.StatusOK, perm)
}
