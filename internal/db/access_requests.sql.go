package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createAccessChangeRequest = `-- name: CreateAccessChangeRequest :one
INSERT INTO access_change_requests (requester_id, current_role_id, requested_role_id, reason)
VALUES ($1, $2, $3, $4)
RETURNING id, requester_id, current_role_id, requested_role_id, reason, status,
          reviewer_id, review_comment, reviewed_at, created_at
`

type CreateAccessChangeRequestParams struct {
	RequesterID     uuid.UUID
	CurrentRoleID   uuid.UUID
	RequestedRoleID uuid.UUID
	Reason          string
}

func (q *Queries) CreateAccessChangeRequest(ctx context.Context, arg CreateAccessChangeRequestParams) (AccessChangeRequest, error) {
	row := q.db.QueryRow(ctx, createAccessChangeRequest,
		arg.RequesterID,
		arg.CurrentRoleID,
		arg.RequestedRoleID,
		arg.Reason,
	)
	var i AccessChangeRequest
	err := row.Scan(
		&i.ID,
		&i.RequesterID,
		&i.CurrentRoleID,
		&i.RequestedRoleID,
		&i.Reason,
		&i.Status,
		&i.ReviewerID,
		&i.ReviewComment,
		&i.ReviewedAt,
		&i.CreatedAt,
	)
	return i, err
}

const getAccessChangeRequest = `-- name: GetAccessChangeRequest :one
SELECT id, requester_id, current_role_id, requested_role_id, reason, status,
       reviewer_id, review_comment, reviewed_at, created_at
FROM access_change_requests
WHERE id = $1
`

func (q *Queries) GetAccessChangeRequest(ctx context.Context, id uuid.UUID) (AccessChangeRequest, error) {
	row := q.db.QueryRow(ctx, getAccessChangeRequest, id)
	var i AccessChangeRequest
	err := row.Scan(
		&i.ID,
		&i.RequesterID,
		&i.CurrentRoleID,
		&i.RequestedRoleID,
		&i.Reason,
		&i.Status,
		&i.ReviewerID,
		&i.ReviewComment,
		&i.ReviewedAt,
		&i.CreatedAt,
	)
	return i, err
}

const decideAccessChangeRequest = `-- name: DecideAccessChangeRequest :one
UPDATE access_change_requests
SET status = $2,
    reviewer_id = $3,
    review_comment = $4,
    reviewed_at = NOW()
WHERE id = $1 AND status = 'PENDING'
RETURNING id, requester_id, current_role_id, requested_role_id, reason, status,
          reviewer_id, review_comment, reviewed_at, created_at
`

type DecideAccessChangeRequestParams struct {
	ID            uuid.UUID
	Status        AccessRequestStatus
	ReviewerID    uuid.UUID
	ReviewComment pgtype.Text
}

// DecideAccessChangeRequest only matches PENDING rows; pgx.ErrNoRows means the
// request is unknown or was decided first by someone else.
func (q *Queries) DecideAccessChangeRequest(ctx context.Context, arg DecideAccessChangeRequestParams) (AccessChangeRequest, error) {
	row := q.db.QueryRow(ctx, decideAccessChangeRequest,
		arg.ID,
		arg.Status,
		arg.ReviewerID,
		arg.ReviewComment,
	)
	var i AccessChangeRequest
	err := row.Scan(
		&i.ID,
		&i.RequesterID,
		&i.CurrentRoleID,
		&i.RequestedRoleID,
		&i.Reason,
		&i.Status,
		&i.ReviewerID,
		&i.ReviewComment,
		&i.ReviewedAt,
		&i.CreatedAt,
	)
	return i, err
}

const listAccessChangeRequests = `-- name: ListAccessChangeRequests :many
SELECT a.id, a.requester_id, a.current_role_id, a.requested_role_id, a.reason, a.status,
       a.reviewer_id, a.review_comment, a.reviewed_at, a.created_at,
       req.name AS requester_name, req.email AS requester_email,
       cr.name AS current_role_name, rr.name AS requested_role_name,
       rev.name AS reviewer_name
FROM access_change_requests a
JOIN users req ON req.id = a.requester_id
JOIN roles cr ON cr.id = a.current_role_id
JOIN roles rr ON rr.id = a.requested_role_id
LEFT JOIN users rev ON rev.id = a.reviewer_id
WHERE ($1::uuid IS NULL OR a.requester_id = $1)
  AND ($2::text IS NULL OR a.status = $2)
ORDER BY a.created_at DESC, a.id DESC
`

type ListAccessChangeRequestsParams struct {
	RequesterID *uuid.UUID
	Status      pgtype.Text
}

type ListAccessChangeRequestsRow struct {
	ID                uuid.UUID
	RequesterID       uuid.UUID
	CurrentRoleID     uuid.UUID
	RequestedRoleID   uuid.UUID
	Reason            string
	Status            AccessRequestStatus
	ReviewerID        *uuid.UUID
	ReviewComment     pgtype.Text
	ReviewedAt        pgtype.Timestamptz
	CreatedAt         time.Time
	RequesterName     string
	RequesterEmail    string
	CurrentRoleName   string
	RequestedRoleName string
	ReviewerName      pgtype.Text
}

func (q *Queries) ListAccessChangeRequests(ctx context.Context, arg ListAccessChangeRequestsParams) ([]ListAccessChangeRequestsRow, error) {
	rows, err := q.db.Query(ctx, listAccessChangeRequests, arg.RequesterID, arg.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListAccessChangeRequestsRow
	for rows.Next() {
		var i ListAccessChangeRequestsRow
		if err := rows.Scan(
			&i.ID,
			&i.RequesterID,
			&i.CurrentRoleID,
			&i.RequestedRoleID,
			&i.Reason,
			&i.Status,
			&i.ReviewerID,
			&i.ReviewComment,
			&i.ReviewedAt,
			&i.CreatedAt,
			&i.RequesterName,
			&i.RequesterEmail,
			&i.CurrentRoleName,
			&i.RequestedRoleName,
			&i.ReviewerName,
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
