package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const createUser = `-- name: CreateUser :one
INSERT INTO users (email, name, password_hash, is_active, role_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, email, name, password_hash, is_active, role_id, created_at, updated_at
`

type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	RoleID       uuid.UUID
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser,
		arg.Email,
		arg.Name,
		arg.PasswordHash,
		arg.IsActive,
		arg.RoleID,
	)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Name,
		&i.PasswordHash,
		&i.IsActive,
		&i.RoleID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertUser = `-- name: UpsertUser :one
INSERT INTO users (email, name, password_hash, role_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (email) DO UPDATE
SET name = EXCLUDED.name,
    role_id = EXCLUDED.role_id,
    updated_at = NOW()
RETURNING id, email, name, password_hash, is_active, role_id, created_at, updated_at
`

type UpsertUserParams struct {
	Email        string
	Name         string
	PasswordHash string
	RoleID       uuid.UUID
}

// UpsertUser keeps the stored password hash when the email already exists.
func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error) {
	row := q.db.QueryRow(ctx, upsertUser,
		arg.Email,
		arg.Name,
		arg.PasswordHash,
		arg.RoleID,
	)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Name,
		&i.PasswordHash,
		&i.IsActive,
		&i.RoleID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUserByID = `-- name: GetUserByID :one
SELECT id, email, name, password_hash, is_active, role_id, created_at, updated_at
FROM users
WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Name,
		&i.PasswordHash,
		&i.IsActive,
		&i.RoleID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT id, email, name, password_hash, is_active, role_id, created_at, updated_at
FROM users
WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Name,
		&i.PasswordHash,
		&i.IsActive,
		&i.RoleID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUserWithRoleForUpdate = `-- name: GetUserWithRoleForUpdate :one
SELECT u.id, u.email, u.name, u.is_active, u.role_id,
       r.name AS role_name, r.display_name AS role_display_name, r.is_admin
FROM users u
JOIN roles r ON r.id = u.role_id
WHERE u.id = $1
FOR UPDATE OF u
`

type GetUserWithRoleRow struct {
	ID              uuid.UUID
	Email           string
	Name            string
	IsActive        bool
	RoleID          uuid.UUID
	RoleName        string
	RoleDisplayName string
	IsAdmin         bool
}

// GetUserWithRoleForUpdate locks the user row until the surrounding
// transaction ends.
func (q *Queries) GetUserWithRoleForUpdate(ctx context.Context, id uuid.UUID) (GetUserWithRoleRow, error) {
	row := q.db.QueryRow(ctx, getUserWithRoleForUpdate, id)
	var i GetUserWithRoleRow
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Name,
		&i.IsActive,
		&i.RoleID,
		&i.RoleName,
		&i.RoleDisplayName,
		&i.IsAdmin,
	)
	return i, err
}

const getUserWithRole = `-- name: GetUserWithRole :one
SELECT u.id, u.email, u.name, u.is_active, u.role_id,
       r.name AS role_name, r.display_name AS role_display_name, r.is_admin
FROM users u
JOIN roles r ON r.id = u.role_id
WHERE u.id = $1
`

func (q *Queries) GetUserWithRole(ctx context.Context, id uuid.UUID) (GetUserWithRoleRow, error) {
	row := q.db.QueryRow(ctx, getUserWithRole, id)
	var i GetUserWithRoleRow
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Name,
		&i.IsActive,
		&i.RoleID,
		&i.RoleName,
		&i.RoleDisplayName,
		&i.IsAdmin,
	)
	return i, err
}

const listUsersWithRole = `-- name: ListUsersWithRole :many
SELECT u.id, u.email, u.name, u.is_active, u.role_id,
       r.name AS role_name, r.display_name AS role_display_name, r.is_admin,
       u.created_at
FROM users u
JOIN roles r ON r.id = u.role_id
ORDER BY u.name ASC, u.email ASC
`

type ListUsersWithRoleRow struct {
	ID              uuid.UUID
	Email           string
	Name            string
	IsActive        bool
	RoleID          uuid.UUID
	RoleName        string
	RoleDisplayName string
	IsAdmin         bool
	CreatedAt       time.Time
}

func (q *Queries) ListUsersWithRole(ctx context.Context) ([]ListUsersWithRoleRow, error) {
	rows, err := q.db.Query(ctx, listUsersWithRole)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListUsersWithRoleRow
	for rows.Next() {
		var i ListUsersWithRoleRow
		if err := rows.Scan(
			&i.ID,
			&i.Email,
			&i.Name,
			&i.IsActive,
			&i.RoleID,
			&i.RoleName,
			&i.RoleDisplayName,
			&i.IsAdmin,
			&i.CreatedAt,
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

const updateUserRole = `-- name: UpdateUserRole :one
UPDATE users
SET role_id = $2, updated_at = NOW()
WHERE id = $1
RETURNING id, email, name, password_hash, is_active, role_id, created_at, updated_at
`

type UpdateUserRoleParams struct {
	ID     uuid.UUID
	RoleID uuid.UUID
}

func (q *Queries) UpdateUserRole(ctx context.Context, arg UpdateUserRoleParams) (User, error) {
	row := q.db.QueryRow(ctx, updateUserRole, arg.ID, arg.RoleID)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Name,
		&i.PasswordHash,
		&i.IsActive,
		&i.RoleID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updateUserPassword = `-- name: UpdateUserPassword :exec
UPDATE users
SET password_hash = $2, updated_at = NOW()
WHERE id = $1
`

type UpdateUserPasswordParams struct {
	ID           uuid.UUID
	PasswordHash string
}

func (q *Queries) UpdateUserPassword(ctx context.Context, arg UpdateUserPasswordParams) error {
	_, err := q.db.Exec(ctx, updateUserPassword, arg.ID, arg.PasswordHash)
	return err
}

const setUserActive = `-- name: SetUserActive :exec
UPDATE users
SET is_active = $2, updated_at = NOW()
WHERE id = $1
`

type SetUserActiveParams struct {
	ID       uuid.UUID
	IsActive bool
}

func (q *Queries) SetUserActive(ctx context.Context, arg SetUserActiveParams) error {
	_, err := q.db.Exec(ctx, setUserActive, arg.ID, arg.IsActive)
	return err
}
