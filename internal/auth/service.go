package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusops/portal/internal/apperr"
	"github.com/campusops/portal/internal/config"
	"github.com/campusops/portal/internal/db"
	"github.com/campusops/portal/internal/logging"
	"github.com/campusops/portal/internal/rbac"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const uniqueViolation = "23505"

var (
	lowerEmail     = cases.Lower(language.Und)
	emailValidator = validator.New()
)

// Session is the result of a successful login.
type Session struct {
	Token       string
	Claims      *SessionClaims
	User        db.User
	Role        db.Role
	Provisioned bool
}

// AuthService handles password login with optional auto-provisioning and
// session revocation.
type AuthService struct {
	store           *redisStore
	jwt             *JWTService
	db              *db.Queries
	autoProvision   bool
	defaultPassword string
}

func NewAuthService(redisClient *redis.Client, jwtSvc *JWTService, queries *db.Queries, cfg config.AuthConfig) *AuthService {
	return &AuthService{
		store:           newRedisStore(redisClient),
		jwt:             jwtSvc,
		db:              queries,
		autoProvision:   cfg.AutoProvision,
		defaultPassword: cfg.DefaultPassword,
	}
}

// NormalizeEmail trims and lower-cases an address. Emails are stored and
// compared in this form only.
func NormalizeEmail(email string) string {
	return lowerEmail.String(strings.TrimSpace(email))
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate logs a user in by email and password. Unknown emails are
// provisioned as STUDENT when auto-provisioning is on.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	credential := password
	if credential == "" {
		credential = s.defaultPassword
	}
	if credential == "" {
		return nil, apperr.Validation("password", "password is required")
	}

	provisioned := false
	user, err := s.db.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if !s.autoProvision {
			return nil, apperr.ErrInvalidCredentials
		}
		user, provisioned, err = s.provision(ctx, email, credential)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !user.IsActive {
		return nil, apperr.ErrAccountDisabled
	}

	if !provisioned {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credential)); err != nil {
			return nil, apperr.ErrInvalidCredentials
		}
	}

	role, err := s.db.GetRoleByID(ctx, user.RoleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role: %w", err)
	}

	token, claims, err := s.jwt.IssueSession(ctx, SessionIdentity{
		UserID:   user.ID,
		Email:    user.Email,
		RoleID:   role.ID,
		RoleName: role.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	return &Session{
		Token:       token,
		Claims:      claims,
		User:        user,
		Role:        role,
		Provisioned: provisioned,
	}, nil
}

// provision creates a STUDENT account. A concurrent login for the same email
// may win the insert, in which case the existing row is verified instead.
func (s *AuthService) provision(ctx context.Context, email, credential string) (db.User, bool, error) {
	role, err := s.db.GetRoleByName(ctx, string(rbac.RoleStudent))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.User{}, false, fmt.Errorf("system not initialized: role %s is missing", rbac.RoleStudent)
		}
		return db.User{}, false, fmt.Errorf("failed to load default role: %w", err)
	}

	hash, err := HashPassword(credential)
	if err != nil {
		return db.User{}, false, err
	}

	localPart, _, _ := strings.Cut(email, "@")
	user, err := s.db.CreateUser(ctx, db.CreateUserParams{
		Email:        email,
		Name:         localPart,
		PasswordHash: hash,
		IsActive:     true,
		RoleID:       role.ID,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			existing, err := s.db.GetUserByEmail(ctx, email)
			if err != nil {
				return db.User{}, false, fmt.Errorf("failed to look up user: %w", err)
			}
			return existing, false, nil
		}
		return db.User{}, false, fmt.Errorf("failed to create user: %w", err)
	}

	logging.Info("provisioned user on first login", "user_id", user.ID, "email", user.Email)
	return user, true, nil
}

// Logout revokes the session until the token would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, claims *SessionClaims) error {
	if claims == nil || claims.TokenID == "" {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(s.jwt.now())
	if err := s.store.revokeSession(ctx, claims.TokenID, ttl); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	logging.Info("user logged out", "user_id", claims.UserID)
	return nil
}

func (s *AuthService) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	return s.store.isRevoked(ctx, tokenID)
}

// SessionTTL is the lifetime of newly issued sessions.
func (s *AuthService) SessionTTL() time.Duration {
	return s.jwt.Expiry()
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email", "email is required")
	}
	if err := emailValidator.Var(email, "email"); err != nil {
		return apperr.Validation("email", "email is not a valid address")
	}
	return nil
}
