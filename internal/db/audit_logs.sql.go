package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const lockAuditChain = `-- name: LockAuditChain :exec
SELECT pg_advisory_xact_lock($1)
`

// LockAuditChain serializes appends until the surrounding transaction ends.
func (q *Queries) LockAuditChain(ctx context.Context, key int64) error {
	_, err := q.db.Exec(ctx, lockAuditChain, key)
	return err
}

const getLatestAuditHash = `-- name: GetLatestAuditHash :one
SELECT entry_hash FROM audit_logs ORDER BY seq DESC LIMIT 1
`

func (q *Queries) GetLatestAuditHash(ctx context.Context) (string, error) {
	row := q.db.QueryRow(ctx, getLatestAuditHash)
	var entryHash string
	err := row.Scan(&entryHash)
	return entryHash, err
}

const insertAuditLog = `-- name: InsertAuditLog :one
INSERT INTO audit_logs (id, actor_id, action, entity_type, entity_id, details, prev_hash, entry_hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, seq, actor_id, action, entity_type, entity_id, details, prev_hash, entry_hash, created_at
`

type InsertAuditLogParams struct {
	ID         uuid.UUID
	ActorID    uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	Details    []byte
	PrevHash   string
	EntryHash  string
	CreatedAt  time.Time
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (AuditLog, error) {
	row := q.db.QueryRow(ctx, insertAuditLog,
		arg.ID,
		arg.ActorID,
		arg.Action,
		arg.EntityType,
		arg.EntityID,
		arg.Details,
		arg.PrevHash,
		arg.EntryHash,
		arg.CreatedAt,
	)
	var i AuditLog
	err := row.Scan(
		&i.ID,
		&i.Seq,
		&i.ActorID,
		&i.Action,
		&i.EntityType,
		&i.EntityID,
		&i.Details,
		&i.PrevHash,
		&i.EntryHash,
		&i.CreatedAt,
	)
	return i, err
}

// AuditLogWithActor is shared by the list queries below; they all join the
// acting user.
type AuditLogWithActor struct {
	ID         uuid.UUID
	Seq        int64
	ActorID    uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	Details    []byte
	PrevHash   string
	EntryHash  string
	CreatedAt  time.Time
	ActorName  string
	ActorEmail string
}

const auditLogWithActorColumns = `a.id, a.seq, a.actor_id, a.action, a.entity_type, a.entity_id, a.details,
       a.prev_hash, a.entry_hash, a.created_at, u.name AS actor_name, u.email AS actor_email
FROM audit_logs a
JOIN users u ON u.id = a.actor_id
`

const listRecentAuditLogs = `-- name: ListRecentAuditLogs :many
SELECT ` + auditLogWithActorColumns + `ORDER BY a.seq DESC
LIMIT $1
`

func (q *Queries) ListRecentAuditLogs(ctx context.Context, limit int32) ([]AuditLogWithActor, error) {
	return q.listAuditLogs(ctx, listRecentAuditLogs, limit)
}

const listAuditLogsByEntity = `-- name: ListAuditLogsByEntity :many
SELECT ` + auditLogWithActorColumns + `WHERE a.entity_type = $1 AND a.entity_id = $2
ORDER BY a.seq DESC
LIMIT $3
`

type ListAuditLogsByEntityParams struct {
	EntityType string
	EntityID   string
	Limit      int32
}

func (q *Queries) ListAuditLogsByEntity(ctx context.Context, arg ListAuditLogsByEntityParams) ([]AuditLogWithActor, error) {
	return q.listAuditLogs(ctx, listAuditLogsByEntity, arg.EntityType, arg.EntityID, arg.Limit)
}

const listAuditLogsByActor = `-- name: ListAuditLogsByActor :many
SELECT ` + auditLogWithActorColumns + `WHERE a.actor_id = $1
ORDER BY a.seq DESC
LIMIT $2
`

type ListAuditLogsByActorParams struct {
	ActorID uuid.UUID
	Limit   int32
}

func (q *Queries) ListAuditLogsByActor(ctx context.Context, arg ListAuditLogsByActorParams) ([]AuditLogWithActor, error) {
	return q.listAuditLogs(ctx, listAuditLogsByActor, arg.ActorID, arg.Limit)
}

const listAuditLogsBetween = `-- name: ListAuditLogsBetween :many
SELECT ` + auditLogWithActorColumns + `WHERE a.created_at >= $1 AND a.created_at < $2
ORDER BY a.seq ASC
`

type ListAuditLogsBetweenParams struct {
	From time.Time
	To   time.Time
}

func (q *Queries) ListAuditLogsBetween(ctx context.Context, arg ListAuditLogsBetweenParams) ([]AuditLogWithActor, error) {
	return q.listAuditLogs(ctx, listAuditLogsBetween, arg.From, arg.To)
}

const listAuditChain = `-- name: ListAuditChain :many
SELECT ` + auditLogWithActorColumns + `WHERE a.seq > $1
ORDER BY a.seq ASC
LIMIT $2
`

type ListAuditChainParams struct {
	AfterSeq int64
	Limit    int32
}

func (q *Queries) ListAuditChain(ctx context.Context, arg ListAuditChainParams) ([]AuditLogWithActor, error) {
	return q.listAuditLogs(ctx, listAuditChain, arg.AfterSeq, arg.Limit)
}

func (q *Queries) listAuditLogs(ctx context.Context, query string, args ...interface{}) ([]AuditLogWithActor, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuditLogWithActor
	for rows.Next() {
		var i AuditLogWithActor
		if err := rows.Scan(
			&i.ID,
			&i.Seq,
			&i.ActorID,
			&i.Action,
			&i.EntityType,
			&i.EntityID,
			&i.Details,
			&i.PrevHash,
			&i.EntryHash,
			&i.CreatedAt,
			&i.ActorName,
			&i.ActorEmail,
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
