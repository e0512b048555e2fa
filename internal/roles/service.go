// Package roles is the role store: roles, their permission matrix rows and
// the admin flag. Writes are upserts so seeding and admin edits can be
// replayed.
package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusops/portal/internal/apperr"
	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/database"
	"github.com/campusops/portal/internal/db"
	"github.com/campusops/portal/internal/logging"
	"github.com/campusops/portal/internal/rbac"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Role struct {
	ID          uuid.UUID     `json:"id"`
	Name        rbac.RoleName `json:"name"`
	DisplayName string        `json:"displayName"`
	IsAdmin     bool          `json:"isAdmin"`
	UserCount   *int64        `json:"userCount,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type Service struct {
	db    *database.Database
	audit *audit.Log
}

func NewService(database *database.Database, auditLog *audit.Log) *Service {
	return &Service{db: database, audit: auditLog}
}

// UpsertRole creates the role or updates its display name and admin flag.
func (s *Service) UpsertRole(ctx context.Context, name rbac.RoleName, displayName string, isAdmin bool) (*Role, error) {
	return upsertRole(ctx, s.db.Queries(), name, displayName, isAdmin)
}

// SetPermission writes the (role, tile) row. Calling it again with the same
// key replaces the previous values.
func (s *Service) SetPermission(ctx context.Context, roleID uuid.UUID, perm rbac.Permission) (*rbac.Permission, error) {
	return setPermission(ctx, s.db.Queries(), roleID, perm)
}

func (s *Service) ListPermissions(ctx context.Context, roleID uuid.UUID) ([]rbac.Permission, error) {
	q := s.db.Queries()
	if _, err := q.GetRoleByID(ctx, roleID); err != nil {
		return nil, notFoundOr(err)
	}
	return listPermissions(ctx, q, roleID)
}

func (s *Service) IsAdmin(ctx context.Context, roleID uuid.UUID) (bool, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return false, err
	}
	return role.IsAdmin, nil
}

func (s *Service) GetRole(ctx context.Context, roleID uuid.UUID) (*Role, error) {
	row, err := s.db.Queries().GetRoleByID(ctx, roleID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return roleFromModel(row), nil
}

func (s *Service) GetRoleByName(ctx context.Context, name rbac.RoleName) (*Role, error) {
	row, err := s.db.Queries().GetRoleByName(ctx, string(name))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return roleFromModel(row), nil
}

// ListRoles returns every role ordered by name with the number of users
// holding it.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.Queries().ListRolesWithUserCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	roles := make([]Role, 0, len(rows))
	for _, r := range rows {
		count := r.UserCount
		roles = append(roles, Role{
			ID:          r.ID,
			Name:        rbac.RoleName(r.Name),
			DisplayName: r.DisplayName,
			IsAdmin:     r.IsAdmin,
			UserCount:   &count,
			CreatedAt:   r.CreatedAt,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return roles, nil
}

// ApplyCatalog upserts every role and permission row of c in a single
// transaction. Rows already in the store but absent from c are left alone.
func (s *Service) ApplyCatalog(ctx context.Context, c *rbac.Catalog) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	return s.db.WithTx(ctx, func(_ pgx.Tx, q *db.Queries) error {
		for _, seed := range c.Roles {
			role, err := upsertRole(ctx, q, seed.Name, seed.DisplayName, seed.IsAdmin)
			if err != nil {
				return err
			}
			for _, perm := range c.Permissions[seed.Name] {
				if _, err := setPermission(ctx, q, role.ID, perm); err != nil {
					return err
				}
			}
		}
		logging.Info("role catalog applied", "roles", len(c.Roles))
		return nil
	})
}

// UpdateRole is UpsertRole on behalf of an admin holding write on the
// change_access tile, recorded as ROLE_UPSERT.
func (s *Service) UpdateRole(ctx context.Context, actor rbac.Actor, name rbac.RoleName, displayName string, isAdmin bool) (*Role, error) {
	if err := requireRoleEditor(actor); err != nil {
		return nil, err
	}

	var role *Role
	err := s.db.WithTx(ctx, func(_ pgx.Tx, q *db.Queries) error {
		var err error
		role, err = upsertRole(ctx, q, name, displayName, isAdmin)
		if err != nil {
			return err
		}
		_, err = s.audit.RecordTx(ctx, q, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionRoleUpsert,
			EntityType: audit.EntityRole,
			EntityID:   role.ID.String(),
			Details: map[string]any{
				"name":        role.Name,
				"displayName": role.DisplayName,
				"isAdmin":     role.IsAdmin,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// GrantPermission is SetPermission on behalf of an admin, recorded as
// PERMISSION_SET with the previous values when the row existed.
func (s *Service) GrantPermission(ctx context.Context, actor rbac.Actor, roleID uuid.UUID, perm rbac.Permission) (*rbac.Permission, error) {
	if err := requireRoleEditor(actor); err != nil {
		return nil, err
	}

	var granted *rbac.Permission
	err := s.db.WithTx(ctx, func(_ pgx.Tx, q *db.Queries) error {
		existing, err := listPermissions(ctx, q, roleID)
		if err != nil {
			return err
		}

		granted, err = setPermission(ctx, q, roleID, perm)
		if err != nil {
			return err
		}

		details := map[string]any{
			"roleId":    roleID.String(),
			"tileKey":   granted.TileKey,
			"canAccess": granted.CanAccess,
			"canWrite":  granted.CanWrite,
		}
		for _, p := range existing {
			if p.TileKey == granted.TileKey {
				details["previous"] = map[string]any{"canAccess": p.CanAccess, "canWrite": p.CanWrite}
			}
		}

		_, err = s.audit.RecordTx(ctx, q, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionPermissionSet,
			EntityType: audit.EntityRolePermission,
			EntityID:   roleID.String() + ":" + string(granted.TileKey),
			Details:    details,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return granted, nil
}

func requireRoleEditor(actor rbac.Actor) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	return actor.RequireWrite(rbac.TileChangeAccess)
}

func upsertRole(ctx context.Context, q *db.Queries, name rbac.RoleName, displayName string, isAdmin bool) (*Role, error) {
	name, err := rbac.ParseRoleName(string(name))
	if err != nil {
		return nil, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, apperr.Validation("displayName", "displayName is required")
	}

	row, err := q.UpsertRole(ctx, db.UpsertRoleParams{
		Name:        string(name),
		DisplayName: displayName,
		IsAdmin:     isAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert role %s: %w", name, err)
	}
	return roleFromModel(row), nil
}

func setPermission(ctx context.Context, q *db.Queries, roleID uuid.UUID, perm rbac.Permission) (*rbac.Permission, error) {
	if err := perm.Validate(); err != nil {
		return nil, err
	}
	if _, err := q.GetRoleByID(ctx, roleID); err != nil {
		return nil, notFoundOr(err)
	}

	row, err := q.UpsertRolePermission(ctx, db.UpsertRolePermissionParams{
		RoleID:    roleID,
		TileKey:   string(perm.TileKey),
		CanAccess: perm.CanAccess,
		CanWrite:  perm.CanWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set permission %s: %w", perm.TileKey, err)
	}

	return &rbac.Permission{
		TileKey:   rbac.TileKey(row.TileKey),
		CanAccess: row.CanAccess,
		CanWrite:  row.CanWrite,
	}, nil
}

func listPermissions(ctx context.Context, q *db.Queries, roleID uuid.UUID) ([]rbac.Permission, error) {
	rows, err := q.ListRolePermissions(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}

	perms := make([]rbac.Permission, 0, len(rows))
	for _, r := range rows {
		perms = append(perms, rbac.Permission{
			TileKey:   rbac.TileKey(r.TileKey),
			CanAccess: r.CanAccess,
			CanWrite:  r.CanWrite,
		})
	}
	return perms, nil
}

func roleFromModel(r db.Role) *Role {
	return &Role{
		ID:          r.ID,
		Name:        rbac.RoleName(r.Name),
		DisplayName: r.DisplayName,
		IsAdmin:     r.IsAdmin,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func notFoundOr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("role")
	}
	return fmt.Errorf("failed to load role: %w", err)
}
