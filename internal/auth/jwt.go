package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	claimEmail    = "email"
	claimRoleID   = "role_id"
	claimRoleName = "role_name"
)

type JWTService struct {
	signingKey jwk.Key
	issuer     string
	expiry     time.Duration
	now        func() time.Time
}

// SessionIdentity is what a session token binds.
type SessionIdentity struct {
	UserID   uuid.UUID
	Email    string
	RoleID   uuid.UUID
	RoleName string
}

// SessionClaims is a verified session token. RoleID and RoleName are the
// values at issuance; authorization always reloads the live role.
type SessionClaims struct {
	SessionIdentity
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func NewJWTService(signingKey []byte, issuer string, expiry time.Duration) (*JWTService, error) {
	key, err := jwk.FromRaw(signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK: %w", err)
	}

	if err := key.Set(jwk.AlgorithmKey, jwa.HS256); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}

	return &JWTService{
		signingKey: key,
		issuer:     issuer,
		expiry:     expiry,
		now:        time.Now,
	}, nil
}

func (s *JWTService) Expiry() time.Duration {
	return s.expiry
}

// IssueSession signs a token for identity valid for the configured expiry.
func (s *JWTService) IssueSession(ctx context.Context, identity SessionIdentity) (string, *SessionClaims, error) {
	now := s.now()
	claims := &SessionClaims{
		SessionIdentity: identity,
		TokenID:         uuid.NewString(),
		IssuedAt:        now,
		ExpiresAt:       now.Add(s.expiry),
	}

	token, err := jwt.NewBuilder().
		Issuer(s.issuer).
		Subject(identity.UserID.String()).
		JwtID(claims.TokenID).
		IssuedAt(claims.IssuedAt).
		Expiration(claims.ExpiresAt).
		Claim(claimEmail, identity.Email).
		Claim(claimRoleID, identity.RoleID.String()).
		Claim(claimRoleName, identity.RoleName).
		Build()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.signingKey))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return string(signed), claims, nil
}

func (s *JWTService) ValidateToken(ctx context.Context, tokenString string) (*SessionClaims, error) {
	clock := jwt.WithClock(jwt.ClockFunc(s.now))
	parsedToken, err := jwt.Parse([]byte(tokenString), jwt.WithKey(jwa.HS256, s.signingKey), jwt.WithIssuer(s.issuer), clock)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if err := jwt.Validate(parsedToken, jwt.WithIssuer(s.issuer), clock); err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	if parsedToken.Expiration().IsZero() {
		return nil, fmt.Errorf("token has no expiration")
	}

	userID, err := uuid.Parse(parsedToken.Subject())
	if err != nil {
		return nil, fmt.Errorf("invalid subject format: %w", err)
	}

	email, err := stringClaim(parsedToken, claimEmail)
	if err != nil {
		return nil, err
	}
	roleIDStr, err := stringClaim(parsedToken, claimRoleID)
	if err != nil {
		return nil, err
	}
	roleID, err := uuid.Parse(roleIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid role_id format: %w", err)
	}
	roleName, err := stringClaim(parsedToken, claimRoleName)
	if err != nil {
		return nil, err
	}

	return &SessionClaims{
		SessionIdentity: SessionIdentity{
			UserID:   userID,
			Email:    email,
			RoleID:   roleID,
			RoleName: roleName,
		},
		TokenID:   parsedToken.JwtID(),
		IssuedAt:  parsedToken.IssuedAt(),
		ExpiresAt: parsedToken.Expiration(),
	}, nil
}

// Resolve returns the claims of a valid token and nil for anything else.
func (s *JWTService) Resolve(ctx context.Context, tokenString string) *SessionClaims {
	claims, err := s.ValidateToken(ctx, tokenString)
	if err != nil {
		return nil
	}
	return claims
}

func stringClaim(token jwt.Token, name string) (string, error) {
	v, ok := token.Get(name)
	if !ok {
		return "", fmt.Errorf("%s claim not found", name)
	}
	str, ok := v.(string)
	if !ok || str == "" {
		return "", fmt.Errorf("%s claim is not a string", name)
	}
	return str, nil
}
