package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	apispec "github.com/campusops/portal/api"
	"github.com/campusops/portal/internal/access"
	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/auth"
	"github.com/campusops/portal/internal/config"
	"github.com/campusops/portal/internal/rbac"
	"github.com/campusops/portal/internal/roles"
	"github.com/campusops/portal/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// client keeps the session token returned by login.
type client struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func (c *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func (c *client) login(email, password string) {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
	c.token = decodeJSON[LoginResponse](c.t, rec).Token
}

func newIntegrationHandler(t *testing.T, tdb *testutil.TestDatabase) http.Handler {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	jwtSvc, err := auth.NewJWTService([]byte("integration-key"), "campus-portal-test", time.Hour)
	require.NoError(t, err)
	authSvc := auth.NewAuthService(redisClient, jwtSvc, tdb.Queries(), config.AuthConfig{AutoProvision: true})
	authenticator := auth.NewAuthenticator(jwtSvc, tdb.Queries(), authSvc, "token")

	auditLog := audit.NewLog(tdb.Database)
	server := NewServer(
		tdb.Database,
		authSvc,
		access.NewService(tdb.Database, auditLog, nil),
		roles.NewService(tdb.Database, auditLog),
		auditLog,
		testutil.NewMockQueue(t),
		testutil.NewMockArchiveStore(t),
		CookieConfig{Name: "token"},
	)

	spec, err := apispec.GetSwagger()
	require.NoError(t, err)
	return NewRouter(server, spec, authenticator.Authenticate, RouterOptions{})
}

func TestAccessChangeFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	tdb := getSharedTestDatabase(t)
	handler := newIntegrationHandler(t, tdb)
	admin := tdb.NewUser(t).WithEmail("dean@campus.edu").WithRole(rbac.RoleProgramOffice).Create()
	faculty := tdb.Role(t, rbac.RoleFaculty)

	student := &client{t: t, handler: handler}
	student.login("new.student@campus.edu", "first-password")

	rec := student.do(http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeJSON[CurrentUserResponse](t, rec)
	assert.Equal(t, rbac.RoleStudent, me.Role)
	assert.Equal(t, "new.student", me.Name)

	rec = student.do(http.MethodPost, "/access", map[string]string{
		"requestedRoleId": faculty.ID.String(),
		"reason":          "joining as adjunct faculty",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	submitted := decodeJSON[access.Request](t, rec)

	rec = student.do(http.MethodPatch, "/access", map[string]string{
		"requestId": submitted.ID.String(),
		"status":    "APPROVED",
	})
	require.Equal(t, http.StatusForbidden, rec.Code, "students cannot review")

	reviewer := &client{t: t, handler: handler}
	reviewer.login(admin.Email, admin.Password)

	rec = reviewer.do(http.MethodGet, "/access?type=requests&status=PENDING", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeJSON[listResponse[access.Request]](t, rec)
	require.Len(t, pending.Data, 1)
	assert.Equal(t, "new.student@campus.edu", pending.Data[0].RequesterEmail)

	review := map[string]string{
		"requestId":     submitted.ID.String(),
		"status":        "APPROVED",
		"reviewComment": "welcome aboard",
	}
	rec = reviewer.do(http.MethodPatch, "/access", review)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, access.StatusApproved, decodeJSON[access.Request](t, rec).Status)

	rec = reviewer.do(http.MethodPatch, "/access", review)
	require.Equal(t, http.StatusConflict, rec.Code)

	// the live role is read on every request, so the old token sees it
	rec = student.do(http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me = decodeJSON[CurrentUserResponse](t, rec)
	assert.Equal(t, rbac.RoleFaculty, me.Role)
	assert.Contains(t, me.AllowedTiles, rbac.TileGrant{TileKey: rbac.TileAttendanceHub, CanWrite: true})

	rec = reviewer.do(http.MethodGet, "/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeJSON[listResponse[audit.LogEntry]](t, rec)
	require.Len(t, entries.Data, 1)
	assert.Equal(t, audit.ActionAccessRequestApproved, entries.Data[0].Action)
	assert.Equal(t, admin.ID, entries.Data[0].ActorID)

	rec = reviewer.do(http.MethodGet, "/audit/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeJSON[audit.VerifyResult](t, rec).Valid)

	rec = student.do(http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = student.do(http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_Credentials(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	tdb := getSharedTestDatabase(t)
	handler := newIntegrationHandler(t, tdb)

	c := &client{t: t, handler: handler}
	c.login("repeat@campus.edu", "right")

	rec := c.do(http.MethodPost, "/auth/login", map[string]string{"email": "repeat@campus.edu", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeInvalidCredentials, decodeError(t, rec).Code)

	disabled := tdb.NewUser(t).WithEmail("gone@campus.edu").Inactive().Create()
	rec = c.do(http.MethodPost, "/auth/login", map[string]string{"email": disabled.Email, "password": disabled.Password})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeAccountDisabled, decodeError(t, rec).Code)
}
