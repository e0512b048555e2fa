package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type AccessRequestStatus string

const (
	AccessRequestStatusPending  AccessRequestStatus = "PENDING"
	AccessRequestStatusApproved AccessRequestStatus = "APPROVED"
	AccessRequestStatusRejected AccessRequestStatus = "REJECTED"
)

type Role struct {
	ID          uuid.UUID
	Name        string
	DisplayName string
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RolePermission struct {
	ID        uuid.UUID
	RoleID    uuid.UUID
	TileKey   string
	CanAccess bool
	CanWrite  bool
	UpdatedAt time.Time
}

type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	RoleID       uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AccessChangeRequest struct {
	ID              uuid.UUID
	RequesterID     uuid.UUID
	CurrentRoleID   uuid.UUID
	RequestedRoleID uuid.UUID
	Reason          string
	Status          AccessRequestStatus
	ReviewerID      *uuid.UUID
	ReviewComment   pgtype.Text
	ReviewedAt      pgtype.Timestamptz
	CreatedAt       time.Time
}

type AuditLog struct {
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
}
