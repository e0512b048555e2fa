package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/campusops/portal/internal/access"
	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/auth"
	"github.com/campusops/portal/internal/aws"
	"github.com/campusops/portal/internal/rbac"
	"github.com/campusops/portal/internal/roles"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
)

// MockDatabase is a mock of the readiness probe surface
type MockDatabase struct {
	mock.Mock
}

func NewMockDatabase(t *testing.T) *MockDatabase {
	m := &MockDatabase{}
	m.Test(t)
	return m
}

func (m *MockDatabase) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockAuthService is a mock implementation of the session service
type MockAuthService struct {
	mock.Mock
}

func NewMockAuthService(t *testing.T) *MockAuthService {
	m := &MockAuthService{}
	m.Test(t)
	return m
}

func (m *MockAuthService) Authenticate(ctx context.Context, email, password string) (*auth.Session, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*auth.Session)
	return session, args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, claims *auth.SessionClaims) error {
	args := m.Called(ctx, claims)
	return args.Error(0)
}

func (m *MockAuthService) SessionTTL() time.Duration {
	return 7 * 24 * time.Hour
}

// ExpectAuthenticate sets up expectation for Authenticate
func (m *MockAuthService) ExpectAuthenticate(email, password string, session *auth.Session, err error) *mock.Call {
	return m.On("Authenticate", mock.Anything, email, password).Return(session, err)
}

// MockAccessService is a mock implementation of the access-change workflow
type MockAccessService struct {
	mock.Mock
}

func NewMockAccessService(t *testing.T) *MockAccessService {
	m := &MockAccessService{}
	m.Test(t)
	return m
}

func (m *MockAccessService) Submit(ctx context.Context, requesterID, requestedRoleID uuid.UUID, reason string) (*access.Request, error) {
	args := m.Called(ctx, requesterID, requestedRoleID, reason)
	req, _ := args.Get(0).(*access.Request)
	return req, args.Error(1)
}

func (m *MockAccessService) Review(ctx context.Context, requestID, reviewerID uuid.UUID, decision access.Status, comment string) (*access.Request, error) {
	args := m.Called(ctx, requestID, reviewerID, decision, comment)
	req, _ := args.Get(0).(*access.Request)
	return req, args.Error(1)
}

func (m *MockAccessService) DirectChange(ctx context.Context, adminID, targetUserID, newRoleID uuid.UUID) (*access.User, error) {
	args := m.Called(ctx, adminID, targetUserID, newRoleID)
	user, _ := args.Get(0).(*access.User)
	return user, args.Error(1)
}

func (m *MockAccessService) ListRequestsFor(ctx context.Context, actor rbac.Actor, filter access.RequestFilter) ([]access.Request, error) {
	args := m.Called(ctx, actor, filter)
	reqs, _ := args.Get(0).([]access.Request)
	return reqs, args.Error(1)
}

func (m *MockAccessService) ListUsers(ctx context.Context, actor rbac.Actor) ([]access.User, error) {
	args := m.Called(ctx, actor)
	users, _ := args.Get(0).([]access.User)
	return users, args.Error(1)
}

// MockRoleService is a mock implementation of the role store
type MockRoleService struct {
	mock.Mock
}

func NewMockRoleService(t *testing.T) *MockRoleService {
	m := &MockRoleService{}
	m.Test(t)
	return m
}

func (m *MockRoleService) ListRoles(ctx context.Context) ([]roles.Role, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]roles.Role)
	return list, args.Error(1)
}

func (m *MockRoleService) ListPermissions(ctx context.Context, roleID uuid.UUID) ([]rbac.Permission, error) {
	args := m.Called(ctx, roleID)
	perms, _ := args.Get(0).([]rbac.Permission)
	return perms, args.Error(1)
}

func (m *MockRoleService) UpdateRole(ctx context.Context, actor rbac.Actor, name rbac.RoleName, displayName string, isAdmin bool) (*roles.Role, error) {
	args := m.Called(ctx, actor, name, displayName, isAdmin)
	role, _ := args.Get(0).(*roles.Role)
	return role, args.Error(1)
}

func (m *MockRoleService) GrantPermission(ctx context.Context, actor rbac.Actor, roleID uuid.UUID, perm rbac.Permission) (*rbac.Permission, error) {
	args := m.Called(ctx, actor, roleID, perm)
	granted, _ := args.Get(0).(*rbac.Permission)
	return granted, args.Error(1)
}

// MockAuditService is a mock implementation of the audit reader
type MockAuditService struct {
	mock.Mock
}

func NewMockAuditService(t *testing.T) *MockAuditService {
	m := &MockAuditService{}
	m.Test(t)
	return m
}

func (m *MockAuditService) Find(ctx context.Context, q audit.Query) ([]audit.LogEntry, error) {
	args := m.Called(ctx, q)
	entries, _ := args.Get(0).([]audit.LogEntry)
	return entries, args.Error(1)
}

func (m *MockAuditService) Verify(ctx context.Context) (*audit.VerifyResult, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).(*audit.VerifyResult)
	return result, args.Error(1)
}

// MockQueue is a mock implementation of the task queue
type MockQueue struct {
	mock.Mock
}

func NewMockQueue(t *testing.T) *MockQueue {
	m := &MockQueue{}
	m.Test(t)
	return m
}

func (m *MockQueue) EnqueueAuditExport(from, to time.Time) (*asynq.TaskInfo, error) {
	args := m.Called(from, to)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

// MockArchiveStore is a mock implementation of the archive bucket
type MockArchiveStore struct {
	mock.Mock
}

func NewMockArchiveStore(t *testing.T) *MockArchiveStore {
	m := &MockArchiveStore{}
	m.Test(t)
	return m
}

func (m *MockArchiveStore) ListObjects(ctx context.Context, prefix string) ([]aws.ObjectInfo, error) {
	args := m.Called(ctx, prefix)
	objects, _ := args.Get(0).([]aws.ObjectInfo)
	return objects, args.Error(1)
}

func (m *MockArchiveStore) PresignGet(ctx context.Context, key string, duration time.Duration) (string, error) {
	args := m.Called(ctx, key, duration)
	return args.String(0), args.Error(1)
}
