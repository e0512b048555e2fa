// Package access implements the access change workflow: users ask for a
// different role, admins approve or reject, and admins may also reassign a
// role directly. Every role mutation is audited in the same transaction.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campusops/portal/internal/apperr"
	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/database"
	"github.com/campusops/portal/internal/db"
	"github.com/campusops/portal/internal/logging"
	"github.com/campusops/portal/internal/rbac"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Decision is handed to the Notifier after a review commits.
type Decision struct {
	Request        Request
	RequesterEmail string
	RequesterName  string
	ReviewerName   string
}

// Notifier is told about committed decisions. Implementations must not
// block the caller on delivery.
type Notifier interface {
	AccessRequestDecided(ctx context.Context, d Decision)
}

type Service struct {
	db       *database.Database
	audit    *audit.Log
	notifier Notifier
}

// NewService wires the workflow. notifier may be nil.
func NewService(database *database.Database, auditLog *audit.Log, notifier Notifier) *Service {
	return &Service{
		db:       database,
		audit:    auditLog,
		notifier: notifier,
	}
}

// Submit records a PENDING request for requesterID to hold requestedRoleID.
// The requester's current role is snapshotted from the users table.
func (s *Service) Submit(ctx context.Context, requesterID, requestedRoleID uuid.UUID, reason string) (*Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason", "reason is required")
	}
	if requestedRoleID == uuid.Nil {
		return nil, apperr.Validation("requestedRoleId", "requestedRoleId is required")
	}

	q := s.db.Queries()

	if _, err := q.GetRoleByID(ctx, requestedRoleID); err != nil {
		return nil, notFoundOr(err, "role")
	}

	requester, err := q.GetUserByID(ctx, requesterID)
	if err != nil {
		return nil, notFoundOr(err, "user")
	}

	created, err := q.CreateAccessChangeRequest(ctx, db.CreateAccessChangeRequestParams{
		RequesterID:     requester.ID,
		CurrentRoleID:   requester.RoleID,
		RequestedRoleID: requestedRoleID,
		Reason:          reason,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create access change request: %w", err)
	}

	logging.Info("access change requested",
		"request_id", created.ID,
		"requester_id", requester.ID,
		"requested_role_id", requestedRoleID)

	return requestFromModel(created), nil
}

// Review decides a PENDING request. The status update is a compare-and-swap
// on status, so of two concurrent reviews exactly one succeeds and the other
// gets ErrAlreadyDecided.
func (s *Service) Review(ctx context.Context, requestID, reviewerID uuid.UUID, decision Status, comment string) (*Request, error) {
	if _, err := ParseDecision(string(decision)); err != nil {
		return nil, err
	}

	comment = strings.TrimSpace(comment)
	reviewComment := pgtype.Text{String: comment, Valid: comment != ""}

	var (
		decided  *Request
		notice   Decision
		reviewer *User
	)

	err := s.db.WithTx(ctx, func(_ pgx.Tx, q *db.Queries) error {
		var err error
		reviewer, err = requireAdmin(ctx, q, reviewerID)
		if err != nil {
			return err
		}

		row, err := q.DecideAccessChangeRequest(ctx, db.DecideAccessChangeRequestParams{
			ID:            requestID,
			Status:        db.AccessRequestStatus(decision),
			ReviewerID:    reviewerID,
			ReviewComment: reviewComment,
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return undecidable(ctx, q, requestID)
		}
		if err != nil {
			return fmt.Errorf("failed to decide access change request: %w", err)
		}
		decided = requestFromModel(row)

		requester, err := q.GetUserWithRoleForUpdate(ctx, row.RequesterID)
		if err != nil {
			return notFoundOr(err, "requester")
		}
		requestedRole, err := q.GetRoleByID(ctx, row.RequestedRoleID)
		if err != nil {
			return notFoundOr(err, "role")
		}

		details := map[string]any{
			"requesterId":     requester.ID.String(),
			"requestedRole":   requestedRole.Name,
			"requestedRoleId": requestedRole.ID.String(),
			"reviewComment":   comment,
		}
		action := audit.ActionAccessRequestRejected

		if decision == StatusApproved {
			if _, err := q.UpdateUserRole(ctx, db.UpdateUserRoleParams{
				ID:     requester.ID,
				RoleID: requestedRole.ID,
			}); err != nil {
				return fmt.Errorf("failed to update user role: %w", err)
			}
			action = audit.ActionAccessRequestApproved
			details = map[string]any{
				"requesterId":    requester.ID.String(),
				"previousRole":   requester.RoleName,
				"previousRoleId": requester.RoleID.String(),
				"newRole":        requestedRole.Name,
				"newRoleId":      requestedRole.ID.String(),
				"reviewComment":  comment,
			}
		}

		if _, err := s.audit.RecordTx(ctx, q, audit.Entry{
			ActorID:    reviewerID,
			Action:     action,
			EntityType: audit.EntityAccessChangeRequest,
			EntityID:   row.ID.String(),
			Details:    details,
		}); err != nil {
			return err
		}

		decided.RequesterName = requester.Name
		decided.RequesterEmail = requester.Email
		decided.RequestedRoleName = requestedRole.Name
		decided.ReviewerName = reviewer.Name
		notice = Decision{
			Request:        *decided,
			RequesterEmail: requester.Email,
			RequesterName:  requester.Name,
			ReviewerName:   reviewer.Name,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Info("access change request reviewed",
		"request_id", decided.ID,
		"reviewer_id", reviewerID,
		"status", decided.Status)

	if s.notifier != nil {
		s.notifier.AccessRequestDecided(ctx, notice)
	}

	return decided, nil
}

// DirectChange moves targetUserID to newRoleID without a request. The role
// update and its ROLE_CHANGE entry commit together or not at all; an entry is
// written even when the role does not change.
func (s *Service) DirectChange(ctx context.Context, adminID, targetUserID, newRoleID uuid.UUID) (*User, error) {
	var updated *User

	err := s.db.WithTx(ctx, func(_ pgx.Tx, q *db.Queries) error {
		admin, err := requireAdmin(ctx, q, adminID)
		if err != nil {
			return err
		}

		target, err := q.GetUserWithRoleForUpdate(ctx, targetUserID)
		if err != nil {
			return notFoundOr(err, "user")
		}

		newRole, err := q.GetRoleByID(ctx, newRoleID)
		if err != nil {
			return notFoundOr(err, "role")
		}

		user, err := q.UpdateUserRole(ctx, db.UpdateUserRoleParams{
			ID:     target.ID,
			RoleID: newRole.ID,
		})
		if err != nil {
			return fmt.Errorf("failed to update user role: %w", err)
		}

		if _, err := s.audit.RecordTx(ctx, q, audit.Entry{
			ActorID:    admin.ID,
			Action:     audit.ActionRoleChange,
			EntityType: audit.EntityUser,
			EntityID:   target.ID.String(),
			Details: map[string]any{
				"previousRole":   target.RoleName,
				"previousRoleId": target.RoleID.String(),
				"newRole":        newRole.Name,
				"newRoleId":      newRole.ID.String(),
				"changedBy":      admin.Email,
			},
		}); err != nil {
			return err
		}

		updated = &User{
			ID:              user.ID,
			Email:           user.Email,
			Name:            user.Name,
			IsActive:        user.IsActive,
			RoleID:          newRole.ID,
			RoleName:        rbac.RoleName(newRole.Name),
			RoleDisplayName: newRole.DisplayName,
			IsAdmin:         newRole.IsAdmin,
			CreatedAt:       user.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Info("role changed directly",
		"admin_id", adminID,
		"user_id", updated.ID,
		"role", updated.RoleName)

	return updated, nil
}

func (s *Service) GetRequest(ctx context.Context, requestID uuid.UUID) (*Request, error) {
	row, err := s.db.Queries().GetAccessChangeRequest(ctx, requestID)
	if err != nil {
		return nil, notFoundOr(err, "access change request")
	}
	return requestFromModel(row), nil
}

// ListRequests returns requests newest first.
func (s *Service) ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	params := db.ListAccessChangeRequestsParams{RequesterID: filter.RequesterID}
	if filter.Status != nil {
		params.Status = pgtype.Text{String: string(*filter.Status), Valid: true}
	}

	rows, err := s.db.Queries().ListAccessChangeRequests(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list access change requests: %w", err)
	}

	requests := make([]Request, 0, len(rows))
	for _, row := range rows {
		requests = append(requests, requestFromListRow(row))
	}
	return requests, nil
}

// ListRequestsFor applies visibility: admins see every request, everyone
// else only their own.
func (s *Service) ListRequestsFor(ctx context.Context, actor rbac.Actor, filter RequestFilter) ([]Request, error) {
	if !actor.IsAdmin {
		own := actor.UserID
		filter.RequesterID = &own
	}
	return s.ListRequests(ctx, filter)
}

// ListUsers lists every user with their role. The actor needs the
// change_access tile.
func (s *Service) ListUsers(ctx context.Context, actor rbac.Actor) ([]User, error) {
	if err := actor.RequireAccess(rbac.TileChangeAccess); err != nil {
		return nil, err
	}

	rows, err := s.db.Queries().ListUsersWithRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]User, 0, len(rows))
	for _, row := range rows {
		users = append(users, User{
			ID:              row.ID,
			Email:           row.Email,
			Name:            row.Name,
			IsActive:        row.IsActive,
			RoleID:          row.RoleID,
			RoleName:        rbac.RoleName(row.RoleName),
			RoleDisplayName: row.RoleDisplayName,
			IsAdmin:         row.IsAdmin,
			CreatedAt:       row.CreatedAt,
		})
	}
	return users, nil
}

// requireAdmin reads the acting user's live role. Unknown or disabled actors
// are denied like non-admins.
func requireAdmin(ctx context.Context, q *db.Queries, userID uuid.UUID) (*User, error) {
	row, err := q.GetUserWithRole(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: unknown acting user", apperr.ErrPermissionDenied)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load acting user: %w", err)
	}
	if !row.IsActive || !row.IsAdmin {
		return nil, fmt.Errorf("%w: admin role required", apperr.ErrPermissionDenied)
	}
	return userFromRow(row), nil
}

// undecidable explains why the compare-and-swap matched nothing.
func undecidable(ctx context.Context, q *db.Queries, requestID uuid.UUID) error {
	existing, err := q.GetAccessChangeRequest(ctx, requestID)
	if err != nil {
		return notFoundOr(err, "access change request")
	}
	return fmt.Errorf("%w: request is %s", apperr.ErrAlreadyDecided, existing.Status)
}

func notFoundOr(err error, resource string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(resource)
	}
	return fmt.Errorf("failed to load %s: %w", resource, err)
}
