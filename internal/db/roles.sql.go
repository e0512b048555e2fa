package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const upsertRole = `-- name: UpsertRole :one
INSERT INTO roles (name, display_name, is_admin)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE
SET display_name = EXCLUDED.display_name,
    is_admin = EXCLUDED.is_admin,
    updated_at = NOW()
RETURNING id, name, display_name, is_admin, created_at, updated_at
`

type UpsertRoleParams struct {
	Name        string
	DisplayName string
	IsAdmin     bool
}

func (q *Queries) UpsertRole(ctx context.Context, arg UpsertRoleParams) (Role, error) {
	row := q.db.QueryRow(ctx, upsertRole, arg.Name, arg.DisplayName, arg.IsAdmin)
	var i Role
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.DisplayName,
		&i.IsAdmin,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getRoleByID = `-- name: GetRoleByID :one
SELECT id, name, display_name, is_admin, created_at, updated_at FROM roles WHERE id = $1
`

func (q *Queries) GetRoleByID(ctx context.Context, id uuid.UUID) (Role, error) {
	row := q.db.QueryRow(ctx, getRoleByID, id)
	var i Role
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.DisplayName,
		&i.IsAdmin,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getRoleByName = `-- name: GetRoleByName :one
SELECT id, name, display_name, is_admin, created_at, updated_at FROM roles WHERE name = $1
`

func (q *Queries) GetRoleByName(ctx context.Context, name string) (Role, error) {
	row := q.db.QueryRow(ctx, getRoleByName, name)
	var i Role
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.DisplayName,
		&i.IsAdmin,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listRolesWithUserCount = `-- name: ListRolesWithUserCount :many
SELECT r.id, r.name, r.display_name, r.is_admin, r.created_at, r.updated_at,
       COUNT(u.id) AS user_count
FROM roles r
LEFT JOIN users u ON u.role_id = r.id
GROUP BY r.id
ORDER BY r.name ASC
`

type ListRolesWithUserCountRow struct {
	ID          uuid.UUID
	Name        string
	DisplayName string
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	UserCount   int64
}

func (q *Queries) ListRolesWithUserCount(ctx context.Context) ([]ListRolesWithUserCountRow, error) {
	rows, err := q.db.Query(ctx, listRolesWithUserCount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListRolesWithUserCountRow
	for rows.Next() {
		var i ListRolesWithUserCountRow
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.DisplayName,
			&i.IsAdmin,
			&i.CreatedAt,
			&i.UpdatedAt,
			&i.UserCount,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertRolePermission = `-- name: UpsertRolePermission :one
INSERT INTO role_permissions (role_id, tile_key, can_access, can_write)
VALUES ($1, $2, $3, $4)
ON CONFLICT (role_id, tile_key) DO UPDATE
SET can_access = EXCLUDED.can_access,
    can_write = EXCLUDED.can_write,
    updated_at = NOW()
RETURNING id, role_id, tile_key, can_access, can_write, updated_at
`

type UpsertRolePermissionParams struct {
	RoleID    uuid.UUID
	TileKey   string
	CanAccess bool
	CanWrite  bool
}

func (q *Queries) UpsertRolePermission(ctx context.Context, arg UpsertRolePermissionParams) (RolePermission, error) {
	row := q.db.QueryRow(ctx, upsertRolePermission,
		arg.RoleID,
		arg.TileKey,
		arg.CanAccess,
		arg.CanWrite,
	)
	var i RolePermission
	err := row.Scan(
		&i.ID,
		&i.RoleID,
		&i.TileKey,
		&i.CanAccess,
		&i.CanWrite,
		&i.UpdatedAt,
	)
	return i, err
}

const listRolePermissions = `-- name: ListRolePermissions :many
SELECT id, role_id, tile_key, can_access, can_write, updated_at
FROM role_permissions
WHERE role_id = $1
ORDER BY tile_key ASC
`

func (q *Queries) ListRolePermissions(ctx context.Context, roleID uuid.UUID) ([]RolePermission, error) {
	rows, err := q.db.Query(ctx, listRolePermissions, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RolePermission
	for rows.Next() {
		var i RolePermission
		if err := rows.Scan(
			&i.ID,
			&i.RoleID,
			&i.TileKey,
			&i.CanAccess,
			&i.CanWrite,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
