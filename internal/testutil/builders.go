package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/campusops/portal/internal/auth"
	"github.com/campusops/portal/internal/db"
	"github.com/campusops/portal/internal/rbac"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the credential builders give users unless overridden.
const DefaultPassword = "password123"

var userSeq atomic.Int64

// TestUser represents a test user
type TestUser struct {
	ID       uuid.UUID
	Email    string
	Name     string
	Password string
	RoleID   uuid.UUID
	RoleName rbac.RoleName
	IsAdmin  bool
}

// UserBuilder provides a fluent interface for creating test users
type UserBuilder struct {
	email    string
	name     string
	password string
	role     rbac.RoleName
	active   bool
	testDB   *TestDatabase
	t        *testing.T
}

// NewUser creates a new user builder. Each builder gets a unique email so
// tests in a shared database do not collide.
func (tdb *TestDatabase) NewUser(t *testing.T) *UserBuilder {
	n := userSeq.Add(1)
	return &UserBuilder{
		email:    fmt.Sprintf("user%d@campus.edu", n),
		name:     fmt.Sprintf("Test User %d", n),
		password: DefaultPassword,
		role:     rbac.RoleStudent,
		active:   true,
		testDB:   tdb,
		t:        t,
	}
}

func (ub *UserBuilder) WithEmail(email string) *UserBuilder {
	ub.email = strings.ToLower(email)
	return ub
}

func (ub *UserBuilder) WithName(name string) *UserBuilder {
	ub.name = name
	return ub
}

func (ub *UserBuilder) WithPassword(password string) *UserBuilder {
	ub.password = password
	return ub
}

func (ub *UserBuilder) WithRole(role rbac.RoleName) *UserBuilder {
	ub.role = role
	return ub
}

// AsAdmin gives the user the DEVELOPER role.
func (ub *UserBuilder) AsAdmin() *UserBuilder {
	ub.role = rbac.RoleDeveloper
	return ub
}

func (ub *UserBuilder) Inactive() *UserBuilder {
	ub.active = false
	return ub
}

// Create creates the user in the database and returns the TestUser
func (ub *UserBuilder) Create() *TestUser {
	ctx := context.Background()

	role := ub.testDB.Role(ub.t, ub.role)

	hash, err := bcrypt.GenerateFromPassword([]byte(ub.password), bcrypt.MinCost)
	require.NoError(ub.t, err, "Failed to hash password")

	user, err := ub.testDB.Queries().CreateUser(ctx, db.CreateUserParams{
		Email:        ub.email,
		Name:         ub.name,
		PasswordHash: string(hash),
		IsActive:     ub.active,
		RoleID:       role.ID,
	})
	require.NoError(ub.t, err, "Failed to create user")

	return &TestUser{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Password: ub.password,
		RoleID:   role.ID,
		RoleName: rbac.RoleName(role.Name),
		IsAdmin:  role.IsAdmin,
	}
}

// ToAuthenticatedUser loads the user's live role and permissions the same way
// the authenticator does.
func (u *TestUser) ToAuthenticatedUser(t *testing.T, queries *db.Queries) *auth.AuthenticatedUser {
	rows, err := queries.ListRolePermissions(context.Background(), u.RoleID)
	require.NoError(t, err)

	perms := make([]rbac.Permission, 0, len(rows))
	for _, p := range rows {
		perms = append(perms, rbac.Permission{
			TileKey:   rbac.TileKey(p.TileKey),
			CanAccess: p.CanAccess,
			CanWrite:  p.CanWrite,
		})
	}

	return &auth.AuthenticatedUser{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		RoleID:      u.RoleID,
		RoleName:    u.RoleName,
		IsAdmin:     u.IsAdmin,
		Permissions: perms,
	}
}

// Actor is shorthand for ToAuthenticatedUser(...).Actor().
func (u *TestUser) Actor(t *testing.T, queries *db.Queries) rbac.Actor {
	return u.ToAuthenticatedUser(t, queries).Actor()
}
