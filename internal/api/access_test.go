package api

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/campusops/portal/internal/access"
	"github.com/campusops/portal/internal/apperr"
	"github.com/campusops/portal/internal/rbac"
	"github.com/campusops/portal/internal/roles"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func pendingRequest(requesterID, roleID uuid.UUID) *access.Request {
	return &access.Request{
		ID:              uuid.New(),
		RequesterID:     requesterID,
		CurrentRoleID:   uuid.New(),
		RequestedRoleID: roleID,
		Reason:          "teaching assistant this term",
		Status:          access.StatusPending,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestServer_SubmitAccessRequest(t *testing.T) {
	t.Run("creates a request for the caller", func(t *testing.T) {
		h := newHarness(t)
		user := h.student()
		roleID := uuid.New()
		created := pendingRequest(user.ID, roleID)
		h.access.On("Submit", mock.Anything, user.ID, roleID, created.Reason).Return(created, nil).Once()

		rec := h.do(http.MethodPost, "/access", map[string]string{
			"requestedRoleId": roleID.String(),
			"reason":          created.Reason,
		}, user)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		resp := decodeJSON[access.Request](t, rec)
		assert.Equal(t, created.ID, resp.ID)
		assert.Equal(t, access.StatusPending, resp.Status)
		assert.Nil(t, resp.ReviewerID)
	})

	t.Run("missing reason is 400", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodPost, "/access", map[string]string{
			"requestedRoleId": uuid.NewString(),
		}, h.student())

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, CodeValidationError, decodeError(t, rec).Code)
	})

	t.Run("whitespace reason rejected by the workflow", func(t *testing.T) {
		h := newHarness(t)
		user := h.student()
		roleID := uuid.New()
		h.access.On("Submit", mock.Anything, user.ID, roleID, "   ").
			Return(nil, apperr.Validation("reason", "reason is required")).Once()

		rec := h.do(http.MethodPost, "/access", map[string]string{
			"requestedRoleId": roleID.String(),
			"reason":          "   ",
		}, user)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		errBody := decodeError(t, rec)
		require.Len(t, errBody.Details, 1)
		assert.Equal(t, "reason", errBody.Details[0].Field)
	})

	t.Run("unknown role is 404", func(t *testing.T) {
		h := newHarness(t)
		user := h.student()
		roleID := uuid.New()
		h.access.On("Submit", mock.Anything, user.ID, roleID, "please").Return(nil, apperr.NotFound("role")).Once()

		rec := h.do(http.MethodPost, "/access", map[string]string{
			"requestedRoleId": roleID.String(),
			"reason":          "please",
		}, user)

		require.Equal(t, http.StatusNotFound, rec.Code)
		errBody := decodeError(t, rec)
		assert.Equal(t, CodeResourceNotFound, errBody.Code)
		assert.Equal(t, "role not found", errBody.Message)
	})

	t.Run("malformed role id is 400", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodPost, "/access", map[string]string{
			"requestedRoleId": "faculty",
			"reason":          "please",
		}, h.student())

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("anonymous is 401", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodPost, "/access", map[string]string{
			"requestedRoleId": uuid.NewString(),
			"reason":          "please",
		}, nil)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestServer_ChangeAccess(t *testing.T) {
	t.Run("direct change", func(t *testing.T) {
		h := newHarness(t)
		admin := h.admin()
		targetID, roleID := uuid.New(), uuid.New()
		h.access.On("DirectChange", mock.Anything, admin.ID, targetID, roleID).Return(&access.User{
			ID:       targetID,
			RoleID:   roleID,
			RoleName: rbac.RoleFaculty,
		}, nil).Once()

		rec := h.do(http.MethodPatch, "/access", map[string]string{
			"userId":    targetID.String(),
			"newRoleId": roleID.String(),
		}, admin)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decodeJSON[access.User](t, rec)
		assert.Equal(t, rbac.RoleFaculty, resp.RoleName)
	})

	t.Run("review approve", func(t *testing.T) {
		h := newHarness(t)
		admin := h.admin()
		reviewed := pendingRequest(uuid.New(), uuid.New())
		reviewed.Status = access.StatusApproved
		reviewed.ReviewerID = &admin.ID
		h.access.On("Review", mock.Anything, reviewed.ID, admin.ID, access.StatusApproved, "ok").Return(reviewed, nil).Once()

		rec := h.do(http.MethodPatch, "/access", map[string]string{
			"requestId":     reviewed.ID.String(),
			"status":        "APPROVED",
			"reviewComment": "ok",
		}, admin)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decodeJSON[access.Request](t, rec)
		assert.Equal(t, access.StatusApproved, resp.Status)
		require.NotNil(t, resp.ReviewerID)
		assert.Equal(t, admin.ID, *resp.ReviewerID)
	})

	t.Run("review without comment", func(t *testing.T) {
		h := newHarness(t)
		admin := h.admin()
		reviewed := pendingRequest(uuid.New(), uuid.New())
		reviewed.Status = access.StatusRejected
		h.access.On("Review", mock.Anything, reviewed.ID, admin.ID, access.StatusRejected, "").Return(reviewed, nil).Once()

		rec := h.do(http.MethodPatch, "/access", map[string]string{
			"requestId": reviewed.ID.String(),
			"status":    "REJECTED",
		}, admin)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("second review is 409", func(t *testing.T) {
		h := newHarness(t)
		admin := h.admin()
		requestID := uuid.New()
		h.access.On("Review", mock.Anything, requestID, admin.ID, access.StatusApproved, "").
			Return(nil, fmt.Errorf("review %s: %w", requestID, apperr.ErrAlreadyDecided)).Once()

		rec := h.do(http.MethodPatch, "/access", map[string]string{
			"requestId": requestID.String(),
			"status":    "APPROVED",
		}, admin)

		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, CodeAlreadyDecided, decodeError(t, rec).Code)
	})

	t.Run("PENDING is not a decision", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodPatch, "/access", map[string]string{
			"requestId": uuid.NewString(),
			"status":    "PENDING",
		}, h.admin())

		require.Equal(t, http.StatusBadRequest, rec.Code)
		errBody := decodeError(t, rec)
		require.Len(t, errBody.Details, 1)
		assert.Equal(t, "status", errBody.Details[0].Field)
	})

	t.Run("both shapes is 400", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodPatch, "/access", map[string]string{
			"userId":    uuid.NewString(),
			"newRoleId": uuid.NewString(),
			"requestId": uuid.NewString(),
			"status":    "APPROVED",
		}, h.admin())

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, CodeValidationError, decodeError(t, rec).Code)
	})

	t.Run("neither shape is 400", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodPatch, "/access", map[string]string{}, h.admin())

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("incomplete direct change is 400", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodPatch, "/access", map[string]string{
			"userId": uuid.NewString(),
		}, h.admin())

		require.Equal(t, http.StatusBadRequest, rec.Code)
		errBody := decodeError(t, rec)
		require.Len(t, errBody.Details, 1)
		assert.Equal(t, "newRoleId", errBody.Details[0].Field)
	})

	t.Run("non-admin is 403 before reaching the workflow", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodPatch, "/access", map[string]string{
			"userId":    uuid.NewString(),
			"newRoleId": uuid.NewString(),
		}, h.student())

		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, CodePermissionDenied, decodeError(t, rec).Code)
	})

	t.Run("workflow denial is 403", func(t *testing.T) {
		h := newHarness(t)
		admin := h.admin()
		targetID, roleID := uuid.New(), uuid.New()
		h.access.On("DirectChange", mock.Anything, admin.ID, targetID, roleID).
			Return(nil, fmt.Errorf("%w: admin role required", apperr.ErrPermissionDenied)).Once()

		rec := h.do(http.MethodPatch, "/access", map[string]string{
			"userId":    targetID.String(),
			"newRoleId": roleID.String(),
		}, admin)

		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown target is 404", func(t *testing.T) {
		h := newHarness(t)
		admin := h.admin()
		targetID, roleID := uuid.New(), uuid.New()
		h.access.On("DirectChange", mock.Anything, admin.ID, targetID, roleID).Return(nil, apperr.NotFound("user")).Once()

		rec := h.do(http.MethodPatch, "/access", map[string]string{
			"userId":    targetID.String(),
			"newRoleId": roleID.String(),
		}, admin)

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "user not found", decodeError(t, rec).Message)
	})
}

func TestServer_ListAccess(t *testing.T) {
	t.Run("requests pass the typed filter and actor", func(t *testing.T) {
		h := newHarness(t)
		user := h.student()
		status := access.StatusPending
		listed := []access.Request{*pendingRequest(user.ID, uuid.New())}
		h.access.On("ListRequestsFor", mock.Anything, user.Actor(), access.RequestFilter{Status: &status}).
			Return(listed, nil).Once()

		rec := h.do(http.MethodGet, "/access?type=requests&status=PENDING", nil, user)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decodeJSON[listResponse[access.Request]](t, rec)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, listed[0].ID, resp.Data[0].ID)
	})

	t.Run("requester filter is bound", func(t *testing.T) {
		h := newHarness(t)
		admin := h.admin()
		requesterID := uuid.New()
		h.access.On("ListRequestsFor", mock.Anything, admin.Actor(), access.RequestFilter{RequesterID: &requesterID}).
			Return(nil, nil).Once()

		rec := h.do(http.MethodGet, "/access?type=requests&requesterId="+requesterID.String(), nil, admin)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
	})

	t.Run("bad requester id is 400", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodGet, "/access?type=requests&requesterId=nope", nil, h.admin())

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("users without change_access is 403", func(t *testing.T) {
		h := newHarness(t)
		user := h.student()
		h.access.On("ListUsers", mock.Anything, user.Actor()).
			Return(nil, fmt.Errorf("%w: no access to change_access", apperr.ErrPermissionDenied)).Once()

		rec := h.do(http.MethodGet, "/access?type=users", nil, user)

		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("users for admins", func(t *testing.T) {
		h := newHarness(t)
		admin := h.admin()
		h.access.On("ListUsers", mock.Anything, admin.Actor()).Return([]access.User{
			{ID: uuid.New(), Email: "s@campus.edu", RoleName: rbac.RoleStudent},
		}, nil).Once()

		rec := h.do(http.MethodGet, "/access?type=users", nil, admin)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeJSON[listResponse[access.User]](t, rec)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, "s@campus.edu", resp.Data[0].Email)
	})

	t.Run("roles for any session", func(t *testing.T) {
		h := newHarness(t)
		h.roles.On("ListRoles", mock.Anything).Return([]roles.Role{
			{ID: uuid.New(), Name: rbac.RoleStudent, DisplayName: "Student"},
		}, nil).Once()

		rec := h.do(http.MethodGet, "/access?type=roles", nil, h.student())

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeJSON[listResponse[roles.Role]](t, rec)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, rbac.RoleStudent, resp.Data[0].Name)
	})

	t.Run("unknown type is 400", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodGet, "/access?type=groups", nil, h.student())

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, CodeValidationError, decodeError(t, rec).Code)
	})

	t.Run("missing type is 400", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(http.MethodGet, "/access", nil, h.student())

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
