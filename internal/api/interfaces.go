package api

import (
	"context"
	"time"

	"github.com/campusops/portal/internal/access"
	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/auth"
	"github.com/campusops/portal/internal/aws"
	"github.com/campusops/portal/internal/rbac"
	"github.com/campusops/portal/internal/roles"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// DatabaseService is what readiness probes need from storage.
type DatabaseService interface {
	Ping(ctx context.Context) error
}

// AuthService issues and revokes sessions.
type AuthService interface {
	Authenticate(ctx context.Context, email, password string) (*auth.Session, error)
	Logout(ctx context.Context, claims *auth.SessionClaims) error
	SessionTTL() time.Duration
}

// AccessService is the access-change workflow.
type AccessService interface {
	Submit(ctx context.Context, requesterID, requestedRoleID uuid.UUID, reason string) (*access.Request, error)
	Review(ctx context.Context, requestID, reviewerID uuid.UUID, decision access.Status, comment string) (*access.Request, error)
	DirectChange(ctx context.Context, adminID, targetUserID, newRoleID uuid.UUID) (*access.User, error)
	ListRequestsFor(ctx context.Context, actor rbac.Actor, filter access.RequestFilter) ([]access.Request, error)
	ListUsers(ctx context.Context, actor rbac.Actor) ([]access.User, error)
}

// RoleService reads and edits the permission matrix.
type RoleService interface {
	ListRoles(ctx context.Context) ([]roles.Role, error)
	ListPermissions(ctx context.Context, roleID uuid.UUID) ([]rbac.Permission, error)
	UpdateRole(ctx context.Context, actor rbac.Actor, name rbac.RoleName, displayName string, isAdmin bool) (*roles.Role, error)
	GrantPermission(ctx context.Context, actor rbac.Actor, roleID uuid.UUID, perm rbac.Permission) (*rbac.Permission, error)
}

// AuditService reads the audit trail.
type AuditService interface {
	Find(ctx context.Context, q audit.Query) ([]audit.LogEntry, error)
	Verify(ctx context.Context) (*audit.VerifyResult, error)
}

// QueueService schedules background work.
type QueueService interface {
	EnqueueAuditExport(from, to time.Time) (*asynq.TaskInfo, error)
}

// ArchiveStore lists exported audit archives.
type ArchiveStore interface {
	ListObjects(ctx context.Context, prefix string) ([]aws.ObjectInfo, error)
	PresignGet(ctx context.Context, key string, duration time.Duration) (string, error)
}
