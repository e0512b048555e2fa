package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/campusops/portal/internal/apperr"
	"github.com/campusops/portal/internal/db"
	"github.com/campusops/portal/internal/rbac"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type contextKey string

const (
	UserIDKey     contextKey = "user_id"
	UserClaimsKey contextKey = "user_claims"
)

const BearerScheme = "BearerAuth"

// AuthenticatedUser is the live identity behind a request: the session plus
// the user's current role and permission rows.
type AuthenticatedUser struct {
	ID              uuid.UUID
	Email           string
	Name            string
	RoleID          uuid.UUID
	RoleName        rbac.RoleName
	RoleDisplayName string
	IsAdmin         bool
	Permissions     []rbac.Permission
	Session         *SessionClaims
}

// Actor is the explicit identity handed to core operations.
func (u *AuthenticatedUser) Actor() rbac.Actor {
	return rbac.Actor{
		UserID:      u.ID,
		Email:       u.Email,
		RoleID:      u.RoleID,
		RoleName:    u.RoleName,
		IsAdmin:     u.IsAdmin,
		Permissions: u.Permissions,
	}
}

type revocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type Authenticator struct {
	jwtService  *JWTService
	queries     *db.Queries
	revocations revocationChecker
	cookieName  string
}

func NewAuthenticator(jwtService *JWTService, queries *db.Queries, revocations revocationChecker, cookieName string) *Authenticator {
	return &Authenticator{
		jwtService:  jwtService,
		queries:     queries,
		revocations: revocations,
		cookieName:  cookieName,
	}
}

// Authenticate is the openapi3filter hook. Operations without a security
// requirement never reach it.
func (a *Authenticator) Authenticate(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
	if input.SecuritySchemeName != BearerScheme {
		return fmt.Errorf("unsupported security scheme %q", input.SecuritySchemeName)
	}

	user, err := a.AuthenticateRequest(ctx, input.RequestValidationInput.Request)
	if err != nil {
		return err
	}

	*input.RequestValidationInput.Request = *input.RequestValidationInput.Request.WithContext(
		ContextWithUser(ctx, user),
	)

	return nil
}

// AuthenticateRequest resolves the bearer token or session cookie on r.
func (a *Authenticator) AuthenticateRequest(ctx context.Context, r *http.Request) (*AuthenticatedUser, error) {
	token := a.extractToken(r)
	if token == "" {
		return nil, fmt.Errorf("%w: no session token", apperr.ErrAuthenticationRequired)
	}

	claims, err := a.jwtService.ValidateToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token: %v", apperr.ErrAuthenticationRequired, err)
	}

	if a.revocations != nil {
		revoked, err := a.revocations.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			return nil, fmt.Errorf("failed to check session revocation: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: session has been revoked", apperr.ErrAuthenticationRequired)
		}
	}

	return a.LoadUser(ctx, claims)
}

// LoadUser builds the live identity for verified claims.
func (a *Authenticator) LoadUser(ctx context.Context, claims *SessionClaims) (*AuthenticatedUser, error) {
	row, err := a.queries.GetUserWithRole(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user no longer exists", apperr.ErrAuthenticationRequired)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !row.IsActive {
		return nil, apperr.ErrAccountDisabled
	}

	rows, err := a.queries.ListRolePermissions(ctx, row.RoleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	perms := make([]rbac.Permission, 0, len(rows))
	for _, p := range rows {
		perms = append(perms, rbac.Permission{
			TileKey:   rbac.TileKey(p.TileKey),
			CanAccess: p.CanAccess,
			CanWrite:  p.CanWrite,
		})
	}

	return &AuthenticatedUser{
		ID:              row.ID,
		Email:           row.Email,
		Name:            row.Name,
		RoleID:          row.RoleID,
		RoleName:        rbac.RoleName(row.RoleName),
		RoleDisplayName: row.RoleDisplayName,
		IsAdmin:         row.IsAdmin,
		Permissions:     perms,
		Session:         claims,
	}, nil
}

func (a *Authenticator) extractToken(r *http.Request) string {
	const bearerPrefix = "Bearer "
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
	}
	if a.cookieName != "" {
		if c, err := r.Cookie(a.cookieName); err == nil {
			return c.Value
		}
	}
	return ""
}

func ContextWithUser(ctx context.Context, user *AuthenticatedUser) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, user.ID)
	return context.WithValue(ctx, UserClaimsKey, user)
}

func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

func GetAuthenticatedUser(ctx context.Context) (*AuthenticatedUser, bool) {
	user, ok := ctx.Value(UserClaimsKey).(*AuthenticatedUser)
	return user, ok
}
