// Package audit is the append-only trail of privilege mutations. Entries are
// chained with SHA-256 so rewriting a stored row breaks verification.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/campusops/portal/internal/apperr"
	"github.com/campusops/portal/internal/database"
	"github.com/campusops/portal/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Action string

const (
	ActionRoleChange            Action = "ROLE_CHANGE"
	ActionAccessRequestApproved Action = "ACCESS_REQUEST_APPROVED"
	ActionAccessRequestRejected Action = "ACCESS_REQUEST_REJECTED"
	ActionRoleUpsert            Action = "ROLE_UPSERT"
	ActionPermissionSet         Action = "PERMISSION_SET"
)

const (
	EntityUser                = "User"
	EntityAccessChangeRequest = "AccessChangeRequest"
	EntityRole                = "Role"
	EntityRolePermission      = "RolePermission"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
	userLimit    = 100
)

// chainLockKey identifies the advisory lock that serializes appends.
const chainLockKey int64 = 0x617564697400

// Entry is what callers append.
type Entry struct {
	ActorID    uuid.UUID
	Action     Action
	EntityType string
	EntityID   string
	Details    map[string]any
}

// LogEntry is a stored entry. ActorName and ActorEmail are filled by reads.
type LogEntry struct {
	ID         uuid.UUID      `json:"id"`
	Seq        int64          `json:"seq"`
	ActorID    uuid.UUID      `json:"actorId"`
	ActorName  string         `json:"actorName,omitempty"`
	ActorEmail string         `json:"actorEmail,omitempty"`
	Action     Action         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Details    map[string]any `json:"details"`
	PrevHash   string         `json:"prevHash"`
	EntryHash  string         `json:"entryHash"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Query selects entries for reads. EntityType and EntityID go together.
type Query struct {
	Limit      int
	EntityType string
	EntityID   string
	ActorID    *uuid.UUID
}

func (q Query) Validate() error {
	if (q.EntityType == "") != (q.EntityID == "") {
		return apperr.Validation("entityType", "entityType and entityId must be given together")
	}
	if q.EntityType != "" && q.ActorID != nil {
		return apperr.Validation("actorId", "filter by entity or by actor, not both")
	}
	if q.Limit < 0 {
		return apperr.Validation("limit", "limit must not be negative")
	}
	return nil
}

type Log struct {
	db  *database.Database
	now func() time.Time
}

func NewLog(database *database.Database) *Log {
	return &Log{db: database, now: time.Now}
}

// Record appends e in its own transaction.
func (l *Log) Record(ctx context.Context, e Entry) (*LogEntry, error) {
	var entry *LogEntry
	err := l.db.WithTx(ctx, func(_ pgx.Tx, q *db.Queries) error {
		var err error
		entry, err = l.RecordTx(ctx, q, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordTx appends e using queries bound to the caller's transaction, so the
// entry commits or rolls back with the mutation it describes.
func (l *Log) RecordTx(ctx context.Context, q *db.Queries, e Entry) (*LogEntry, error) {
	if e.ActorID == uuid.Nil {
		return nil, apperr.Validation("actorId", "actor is required")
	}
	if e.Action == "" || e.EntityType == "" || e.EntityID == "" {
		return nil, apperr.Validation("action", "action, entity type and entity id are required")
	}

	details, err := canonicalDetails(e.Details)
	if err != nil {
		return nil, err
	}

	if err := q.LockAuditChain(ctx, chainLockKey); err != nil {
		return nil, fmt.Errorf("failed to lock audit chain: %w", err)
	}

	prevHash, err := q.GetLatestAuditHash(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		prevHash = GenesisHash
	} else if err != nil {
		return nil, fmt.Errorf("failed to read audit chain head: %w", err)
	}

	// Postgres keeps microseconds; hash what will be stored.
	createdAt := l.now().UTC().Truncate(time.Microsecond)
	id := uuid.New()

	row, err := q.InsertAuditLog(ctx, db.InsertAuditLogParams{
		ID:         id,
		ActorID:    e.ActorID,
		Action:     string(e.Action),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Details:    details,
		PrevHash:   prevHash,
		EntryHash:  computeHash(prevHash, id, e.ActorID, string(e.Action), e.EntityType, e.EntityID, details, createdAt),
		CreatedAt:  createdAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return fromRow(db.AuditLogWithActor{
		ID:         row.ID,
		Seq:        row.Seq,
		ActorID:    row.ActorID,
		Action:     row.Action,
		EntityType: row.EntityType,
		EntityID:   row.EntityID,
		Details:    row.Details,
		PrevHash:   row.PrevHash,
		EntryHash:  row.EntryHash,
		CreatedAt:  row.CreatedAt,
	})
}

// Recent returns the newest entries first. limit 0 means DefaultLimit and
// anything above MaxLimit is capped.
func (l *Log) Recent(ctx context.Context, limit int) ([]LogEntry, error) {
	rows, err := l.db.Queries().ListRecentAuditLogs(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return fromRows(rows)
}

// ByEntity returns the history of one entity, newest first.
func (l *Log) ByEntity(ctx context.Context, entityType, entityID string) ([]LogEntry, error) {
	rows, err := l.db.Queries().ListAuditLogsByEntity(ctx, db.ListAuditLogsByEntityParams{
		EntityType: entityType,
		EntityID:   entityID,
		Limit:      MaxLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return fromRows(rows)
}

// ByUser returns the latest entries recorded by actorID.
func (l *Log) ByUser(ctx context.Context, actorID uuid.UUID) ([]LogEntry, error) {
	rows, err := l.db.Queries().ListAuditLogsByActor(ctx, db.ListAuditLogsByActorParams{
		ActorID: actorID,
		Limit:   userLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return fromRows(rows)
}

func (l *Log) Find(ctx context.Context, q Query) ([]LogEntry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	switch {
	case q.EntityType != "":
		return l.ByEntity(ctx, q.EntityType, q.EntityID)
	case q.ActorID != nil:
		return l.ByUser(ctx, *q.ActorID)
	default:
		return l.Recent(ctx, q.Limit)
	}
}

func clampLimit(limit int) int32 {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return int32(limit)
	}
}

func fromRows(rows []db.AuditLogWithActor) ([]LogEntry, error) {
	entries := make([]LogEntry, 0, len(rows))
	for _, r := range rows {
		e, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

func fromRow(r db.AuditLogWithActor) (*LogEntry, error) {
	details := map[string]any{}
	if len(r.Details) > 0 {
		if err := json.Unmarshal(r.Details, &details); err != nil {
			return nil, fmt.Errorf("failed to decode audit details %s: %w", r.ID, err)
		}
	}
	return &LogEntry{
		ID:         r.ID,
		Seq:        r.Seq,
		ActorID:    r.ActorID,
		ActorName:  r.ActorName,
		ActorEmail: r.ActorEmail,
		Action:     Action(r.Action),
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Details:    details,
		PrevHash:   r.PrevHash,
		EntryHash:  r.EntryHash,
		CreatedAt:  r.CreatedAt,
	}, nil
}
