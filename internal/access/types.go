package access

import (
	"time"

	"github.com/campusops/portal/internal/apperr"
	"github.com/campusops/portal/internal/db"
	"github.com/campusops/portal/internal/rbac"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", apperr.Validation("status", "status must be PENDING, APPROVED or REJECTED")
}

// ParseDecision accepts only the terminal states a reviewer may choose.
func ParseDecision(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusApproved, StatusRejected:
		return st, nil
	}
	return "", apperr.Validation("status", "decision must be APPROVED or REJECTED")
}

// Request is an access change request. The name fields are only filled by
// listings.
type Request struct {
	ID                uuid.UUID  `json:"id"`
	RequesterID       uuid.UUID  `json:"requesterId"`
	CurrentRoleID     uuid.UUID  `json:"currentRoleId"`
	RequestedRoleID   uuid.UUID  `json:"requestedRoleId"`
	Reason            string     `json:"reason"`
	Status            Status     `json:"status"`
	ReviewerID        *uuid.UUID `json:"reviewerId"`
	ReviewComment     *string    `json:"reviewComment"`
	ReviewedAt        *time.Time `json:"reviewedAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	RequesterName     string     `json:"requesterName,omitempty"`
	RequesterEmail    string     `json:"requesterEmail,omitempty"`
	CurrentRoleName   string     `json:"currentRole,omitempty"`
	RequestedRoleName string     `json:"requestedRole,omitempty"`
	ReviewerName      string     `json:"reviewerName,omitempty"`
}

func (r Request) IsPending() bool {
	return r.Status == StatusPending
}

// User is a user with the role it currently holds.
type User struct {
	ID              uuid.UUID     `json:"id"`
	Email           string        `json:"email"`
	Name            string        `json:"name"`
	IsActive        bool          `json:"isActive"`
	RoleID          uuid.UUID     `json:"roleId"`
	RoleName        rbac.RoleName `json:"role"`
	RoleDisplayName string        `json:"roleDisplayName"`
	IsAdmin         bool          `json:"isAdmin"`
	CreatedAt       time.Time     `json:"createdAt,omitempty"`
}

// RequestFilter narrows ListRequests. Nil fields match everything.
type RequestFilter struct {
	RequesterID *uuid.UUID
	Status      *Status
}

func (f RequestFilter) Validate() error {
	if f.RequesterID != nil && *f.RequesterID == uuid.Nil {
		return apperr.Validation("requesterId", "requesterId must be a valid id")
	}
	if f.Status != nil {
		if _, err := ParseStatus(string(*f.Status)); err != nil {
			return err
		}
	}
	return nil
}

func requestFromModel(m db.AccessChangeRequest) *Request {
	r := &Request{
		ID:              m.ID,
		RequesterID:     m.RequesterID,
		CurrentRoleID:   m.CurrentRoleID,
		RequestedRoleID: m.RequestedRoleID,
		Reason:          m.Reason,
		Status:          Status(m.Status),
		ReviewerID:      m.ReviewerID,
		CreatedAt:       m.CreatedAt,
	}
	if m.ReviewComment.Valid {
		comment := m.ReviewComment.String
		r.ReviewComment = &comment
	}
	if m.ReviewedAt.Valid {
		reviewedAt := m.ReviewedAt.Time
		r.ReviewedAt = &reviewedAt
	}
	return r
}

func requestFromListRow(row db.ListAccessChangeRequestsRow) Request {
	r := requestFromModel(db.AccessChangeRequest{
		ID:              row.ID,
		RequesterID:     row.RequesterID,
		CurrentRoleID:   row.CurrentRoleID,
		RequestedRoleID: row.RequestedRoleID,
		Reason:          row.Reason,
		Status:          row.Status,
		ReviewerID:      row.ReviewerID,
		ReviewComment:   row.ReviewComment,
		ReviewedAt:      row.ReviewedAt,
		CreatedAt:       row.CreatedAt,
	})
	r.RequesterName = row.RequesterName
	r.RequesterEmail = row.RequesterEmail
	r.CurrentRoleName = row.CurrentRoleName
	r.RequestedRoleName = row.RequestedRoleName
	r.ReviewerName = row.ReviewerName.String
	return *r
}

func userFromRow(row db.GetUserWithRoleRow) *User {
	return &User{
		ID:              row.ID,
		Email:           row.Email,
		Name:            row.Name,
		IsActive:        row.IsActive,
		RoleID:          row.RoleID,
		RoleName:        rbac.RoleName(row.RoleName),
		RoleDisplayName: row.RoleDisplayName,
		IsAdmin:         row.IsAdmin,
	}
}
