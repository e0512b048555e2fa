package api

import (
	"net/http"
	"time"

	"github.com/campusops/portal/internal/auth"
	"github.com/campusops/portal/internal/middleware"
	"github.com/campusops/portal/internal/rbac"
	"github.com/google/uuid"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password"`
}

type SessionUser struct {
	ID              uuid.UUID     `json:"id"`
	Email           string        `json:"email"`
	Name            string        `json:"name"`
	Role            rbac.RoleName `json:"role"`
	RoleDisplayName string        `json:"roleDisplayName"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      SessionUser `json:"user"`
}

type CurrentUserResponse struct {
	SessionUser
	IsAdmin      bool             `json:"isAdmin"`
	AllowedTiles []rbac.TileGrant `json:"allowedTiles"`
}

func (s *Server) LoginUser(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	var req LoginRequest
	if errResp := s.decodeBody(r, &req); errResp != nil {
		errResp.Write(w)
		return
	}

	session, err := s.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err, "Login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.Claims.ExpiresAt,
		MaxAge:   int(s.auth.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	logger.Info("User logged in successfully",
		"user_id", session.User.ID,
		"email", session.User.Email,
		"provisioned", session.Provisioned)

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.Claims.ExpiresAt,
		User: SessionUser{
			ID:              session.User.ID,
			Email:           session.User.Email,
			Name:            session.User.Name,
			Role:            rbac.RoleName(session.Role.Name),
			RoleDisplayName: session.Role.DisplayName,
		},
	})
}

func (s *Server) LogoutUser(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := s.auth.Logout(r.Context(), user.Session); err != nil {
		writeError(w, r, err, "Failed to revoke session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, CurrentUserResponse{
		SessionUser: SessionUser{
			ID:              user.ID,
			Email:           user.Email,
			Name:            user.Name,
			Role:            user.RoleName,
			RoleDisplayName: user.RoleDisplayName,
		},
		IsAdmin:      user.IsAdmin,
		AllowedTiles: rbac.AllowedTiles(user.Permissions),
	})
}

// requireUser reads the identity stored by the authenticator. Routes behind
// the validator always have one; the check guards misrouted handlers.
func requireUser(w http.ResponseWriter, r *http.Request) (*auth.AuthenticatedUser, bool) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		Unauthorized("Authentication required").Write(w)
		return nil, false
	}
	return user, true
}
