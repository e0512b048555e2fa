package access_test

import (
	"context"
	"flag"
	"os"
	"sync"
	"testing"

	"github.com/campusops/portal/internal/access"
	"github.com/campusops/portal/internal/apperr"
	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/rbac"
	"github.com/campusops/portal/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sharedDB *testutil.TestDatabase

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	t := &testing.T{}
	sharedDB = testutil.NewTestDatabase(t)
	sharedDB.RunMigrations(t)

	code := m.Run()

	sharedDB.Cleanup()
	os.Exit(code)
}

type recordingNotifier struct {
	mu        sync.Mutex
	decisions []access.Decision
}

func (n *recordingNotifier) AccessRequestDecided(_ context.Context, d access.Decision) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decisions = append(n.decisions, d)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.decisions)
}

func newTestService(t *testing.T) (*access.Service, *recordingNotifier) {
	t.Helper()
	sharedDB.CleanupDatabase(t)
	notifier := &recordingNotifier{}
	return access.NewService(sharedDB.Database, audit.NewLog(sharedDB.Database), notifier), notifier
}

func currentRole(t *testing.T, userID uuid.UUID) rbac.RoleName {
	t.Helper()
	row, err := sharedDB.Queries().GetUserWithRole(context.Background(), userID)
	require.NoError(t, err)
	return rbac.RoleName(row.RoleName)
}

func TestService_Submit(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	ctx := context.Background()

	t.Run("creates a pending request with a role snapshot", func(t *testing.T) {
		svc, _ := newTestService(t)
		student := sharedDB.NewUser(t).Create()
		faculty := sharedDB.Role(t, rbac.RoleFaculty)

		req, err := svc.Submit(ctx, student.ID, faculty.ID, "  promoted  ")
		require.NoError(t, err)

		assert.Equal(t, access.StatusPending, req.Status)
		assert.Equal(t, student.RoleID, req.CurrentRoleID)
		assert.Equal(t, faculty.ID, req.RequestedRoleID)
		assert.Equal(t, "promoted", req.Reason)
		assert.Nil(t, req.ReviewerID)
		assert.Nil(t, req.ReviewComment)
		assert.Nil(t, req.ReviewedAt)
	})

	t.Run("requesting the role already held is allowed", func(t *testing.T) {
		svc, _ := newTestService(t)
		student := sharedDB.NewUser(t).Create()

		req, err := svc.Submit(ctx, student.ID, student.RoleID, "just checking")
		require.NoError(t, err)
		assert.Equal(t, req.CurrentRoleID, req.RequestedRoleID)
	})

	t.Run("empty reason is a validation error", func(t *testing.T) {
		svc, _ := newTestService(t)
		student := sharedDB.NewUser(t).Create()

		_, err := svc.Submit(ctx, student.ID, sharedDB.Role(t, rbac.RoleTA).ID, "   ")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("missing requested role is a validation error", func(t *testing.T) {
		svc, _ := newTestService(t)
		student := sharedDB.NewUser(t).Create()

		_, err := svc.Submit(ctx, student.ID, uuid.Nil, "reason")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("unknown requested role is not found", func(t *testing.T) {
		svc, _ := newTestService(t)
		student := sharedDB.NewUser(t).Create()

		_, err := svc.Submit(ctx, student.ID, uuid.New(), "reason")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestService_Review(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	ctx := context.Background()

	t.Run("approval moves the requester and audits once", func(t *testing.T) {
		svc, notifier := newTestService(t)
		student := sharedDB.NewUser(t).Create()
		admin := sharedDB.NewUser(t).AsAdmin().Create()
		faculty := sharedDB.Role(t, rbac.RoleFaculty)

		req, err := svc.Submit(ctx, student.ID, faculty.ID, "promoted")
		require.NoError(t, err)

		decided, err := svc.Review(ctx, req.ID, admin.ID, access.StatusApproved, "welcome aboard")
		require.NoError(t, err)

		assert.Equal(t, access.StatusApproved, decided.Status)
		require.NotNil(t, decided.ReviewerID)
		assert.Equal(t, admin.ID, *decided.ReviewerID)
		require.NotNil(t, decided.ReviewComment)
		assert.Equal(t, "welcome aboard", *decided.ReviewComment)
		assert.NotNil(t, decided.ReviewedAt)

		assert.Equal(t, rbac.RoleFaculty, currentRole(t, student.ID))
		assert.Equal(t, 1, sharedDB.AuditCount(t, string(audit.ActionAccessRequestApproved)))

		entries, err := audit.NewLog(sharedDB.Database).ByEntity(ctx, audit.EntityAccessChangeRequest, req.ID.String())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "STUDENT", entries[0].Details["previousRole"])
		assert.Equal(t, "FACULTY", entries[0].Details["newRole"])
		assert.Equal(t, student.ID.String(), entries[0].Details["requesterId"])

		require.Equal(t, 1, notifier.count())
		assert.Equal(t, student.Email, notifier.decisions[0].RequesterEmail)
		assert.Equal(t, access.StatusApproved, notifier.decisions[0].Request.Status)
	})

	t.Run("rejection leaves the role alone", func(t *testing.T) {
		svc, _ := newTestService(t)
		student := sharedDB.NewUser(t).Create()
		admin := sharedDB.NewUser(t).AsAdmin().Create()
		faculty := sharedDB.Role(t, rbac.RoleFaculty)

		req, err := svc.Submit(ctx, student.ID, faculty.ID, "promoted")
		require.NoError(t, err)

		decided, err := svc.Review(ctx, req.ID, admin.ID, access.StatusRejected, "")
		require.NoError(t, err)

		assert.Equal(t, access.StatusRejected, decided.Status)
		assert.Nil(t, decided.ReviewComment)
		assert.Equal(t, rbac.RoleStudent, currentRole(t, student.ID))
		assert.Equal(t, 1, sharedDB.AuditCount(t, string(audit.ActionAccessRequestRejected)))
		assert.Zero(t, sharedDB.AuditCount(t, string(audit.ActionRoleChange)))
		assert.Zero(t, sharedDB.AuditCount(t, string(audit.ActionAccessRequestApproved)))
	})

	t.Run("second review is already decided", func(t *testing.T) {
		svc, notifier := newTestService(t)
		student := sharedDB.NewUser(t).Create()
		admin := sharedDB.NewUser(t).AsAdmin().Create()
		ta := sharedDB.Role(t, rbac.RoleTA)

		req, err := svc.Submit(ctx, student.ID, ta.ID, "grading help")
		require.NoError(t, err)

		_, err = svc.Review(ctx, req.ID, admin.ID, access.StatusRejected, "no")
		require.NoError(t, err)

		_, err = svc.Review(ctx, req.ID, admin.ID, access.StatusApproved, "changed my mind")
		assert.ErrorIs(t, err, apperr.ErrAlreadyDecided)

		stored, err := svc.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, access.StatusRejected, stored.Status)
		assert.Equal(t, rbac.RoleStudent, currentRole(t, student.ID))
		assert.Equal(t, 1, notifier.count())
	})

	t.Run("concurrent approvals apply once", func(t *testing.T) {
		svc, _ := newTestService(t)
		student := sharedDB.NewUser(t).Create()
		adminA := sharedDB.NewUser(t).AsAdmin().Create()
		adminB := sharedDB.NewUser(t).AsAdmin().Create()
		faculty := sharedDB.Role(t, rbac.RoleFaculty)

		req, err := svc.Submit(ctx, student.ID, faculty.ID, "promoted")
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, reviewer := range []uuid.UUID{adminA.ID, adminB.ID} {
			wg.Add(1)
			go func(i int, reviewer uuid.UUID) {
				defer wg.Done()
				_, errs[i] = svc.Review(ctx, req.ID, reviewer, access.StatusApproved, "")
			}(i, reviewer)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, apperr.ErrAlreadyDecided)
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, sharedDB.AuditCount(t, string(audit.ActionAccessRequestApproved)))
	})

	t.Run("unknown request is not found", func(t *testing.T) {
		svc, _ := newTestService(t)
		admin := sharedDB.NewUser(t).AsAdmin().Create()

		_, err := svc.Review(ctx, uuid.New(), admin.ID, access.StatusApproved, "")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("pending is not a decision", func(t *testing.T) {
		svc, _ := newTestService(t)
		admin := sharedDB.NewUser(t).AsAdmin().Create()

		_, err := svc.Review(ctx, uuid.New(), admin.ID, access.StatusPending, "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("non admin reviewers are denied", func(t *testing.T) {
		svc, _ := newTestService(t)
		student := sharedDB.NewUser(t).Create()
		faculty := sharedDB.NewUser(t).WithRole(rbac.RoleFaculty).Create()

		req, err := svc.Submit(ctx, student.ID, faculty.RoleID, "promoted")
		require.NoError(t, err)

		_, err = svc.Review(ctx, req.ID, faculty.ID, access.StatusApproved, "")
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

		stored, err := svc.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsPending())
	})

	t.Run("disabled admins are denied", func(t *testing.T) {
		svc, _ := newTestService(t)
		student := sharedDB.NewUser(t).Create()
		admin := sharedDB.NewUser(t).AsAdmin().Inactive().Create()

		req, err := svc.Submit(ctx, student.ID, sharedDB.Role(t, rbac.RoleTA).ID, "reason")
		require.NoError(t, err)

		_, err = svc.Review(ctx, req.ID, admin.ID, access.StatusApproved, "")
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})
}

func TestService_DirectChange(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	ctx := context.Background()

	t.Run("changes the role and audits", func(t *testing.T) {
		svc, _ := newTestService(t)
		admin := sharedDB.NewUser(t).AsAdmin().Create()
		student := sharedDB.NewUser(t).Create()
		ta := sharedDB.Role(t, rbac.RoleTA)

		user, err := svc.DirectChange(ctx, admin.ID, student.ID, ta.ID)
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleTA, user.RoleName)
		assert.Equal(t, rbac.RoleTA, currentRole(t, student.ID))

		entries, err := audit.NewLog(sharedDB.Database).ByEntity(ctx, audit.EntityUser, student.ID.String())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, audit.ActionRoleChange, entries[0].Action)
		assert.Equal(t, admin.ID, entries[0].ActorID)
		assert.Equal(t, "STUDENT", entries[0].Details["previousRole"])
		assert.Equal(t, "TA", entries[0].Details["newRole"])
		assert.Equal(t, admin.Email, entries[0].Details["changedBy"])
	})

	t.Run("same role still audits", func(t *testing.T) {
		svc, _ := newTestService(t)
		admin := sharedDB.NewUser(t).AsAdmin().Create()
		student := sharedDB.NewUser(t).Create()

		_, err := svc.DirectChange(ctx, admin.ID, student.ID, student.RoleID)
		require.NoError(t, err)

		entries, err := audit.NewLog(sharedDB.Database).ByEntity(ctx, audit.EntityUser, student.ID.String())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "STUDENT", entries[0].Details["previousRole"])
		assert.Equal(t, "STUDENT", entries[0].Details["newRole"])
	})

	t.Run("unknown target is not found", func(t *testing.T) {
		svc, _ := newTestService(t)
		admin := sharedDB.NewUser(t).AsAdmin().Create()

		_, err := svc.DirectChange(ctx, admin.ID, uuid.New(), sharedDB.Role(t, rbac.RoleTA).ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.Zero(t, sharedDB.AuditCount(t, string(audit.ActionRoleChange)))
	})

	t.Run("unknown role is not found and nothing changes", func(t *testing.T) {
		svc, _ := newTestService(t)
		admin := sharedDB.NewUser(t).AsAdmin().Create()
		student := sharedDB.NewUser(t).Create()

		_, err := svc.DirectChange(ctx, admin.ID, student.ID, uuid.New())
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.Equal(t, rbac.RoleStudent, currentRole(t, student.ID))
	})

	t.Run("non admins are denied", func(t *testing.T) {
		svc, _ := newTestService(t)
		faculty := sharedDB.NewUser(t).WithRole(rbac.RoleFaculty).Create()
		student := sharedDB.NewUser(t).Create()

		_, err := svc.DirectChange(ctx, faculty.ID, student.ID, sharedDB.Role(t, rbac.RoleDeveloper).ID)
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
		assert.Equal(t, rbac.RoleStudent, currentRole(t, student.ID))
	})
}

func TestService_Listings(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	ctx := context.Background()
	svc, _ := newTestService(t)
	admin := sharedDB.NewUser(t).AsAdmin().WithName("Ada Admin").Create()
	alice := sharedDB.NewUser(t).WithName("Alice").Create()
	bob := sharedDB.NewUser(t).WithName("Bob").Create()
	ta := sharedDB.Role(t, rbac.RoleTA)

	first, err := svc.Submit(ctx, alice.ID, ta.ID, "first")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, bob.ID, ta.ID, "second")
	require.NoError(t, err)
	_, err = svc.Review(ctx, first.ID, admin.ID, access.StatusRejected, "later")
	require.NoError(t, err)

	t.Run("admins see every request newest first", func(t *testing.T) {
		list, err := svc.ListRequestsFor(ctx, admin.Actor(t, sharedDB.Queries()), access.RequestFilter{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Bob", list[0].RequesterName)
		assert.Equal(t, "Alice", list[1].RequesterName)
		assert.Equal(t, "STUDENT", list[1].CurrentRoleName)
		assert.Equal(t, "TA", list[1].RequestedRoleName)
		assert.Equal(t, "Ada Admin", list[1].ReviewerName)
	})

	t.Run("others see only their own", func(t *testing.T) {
		list, err := svc.ListRequestsFor(ctx, alice.Actor(t, sharedDB.Queries()), access.RequestFilter{RequesterID: &bob.ID})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, alice.ID, list[0].RequesterID)
	})

	t.Run("status filter", func(t *testing.T) {
		pending := access.StatusPending
		list, err := svc.ListRequests(ctx, access.RequestFilter{Status: &pending})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, bob.ID, list[0].RequesterID)
	})

	t.Run("users listing needs change_access", func(t *testing.T) {
		users, err := svc.ListUsers(ctx, admin.Actor(t, sharedDB.Queries()))
		require.NoError(t, err)
		assert.Len(t, users, 3)

		_, err = svc.ListUsers(ctx, alice.Actor(t, sharedDB.Queries()))
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})

	t.Run("get unknown request", func(t *testing.T) {
		_, err := svc.GetRequest(ctx, uuid.New())
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}
