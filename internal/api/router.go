package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/campusops/portal/internal/apperr"
	"github.com/campusops/portal/internal/config"
	"github.com/campusops/portal/internal/middleware"
	"github.com/campusops/portal/internal/swagger"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
)

// RouterOptions configures the middleware stack around the handlers.
type RouterOptions struct {
	CORS            *config.CORSConfig
	Security        *config.SecurityConfig
	Development     bool
	LoginRateLimit  int
	LoginRateWindow time.Duration
}

// NewRouter mounts the server behind request validation. Operations without a
// security requirement in spec form the unauthenticated whitelist; every
// other route reaches its handler only after authFunc accepted the session.
func NewRouter(s *Server, spec *openapi3.T, authFunc openapi3filter.AuthenticationFunc, opts RouterOptions) http.Handler {
	r := chi.NewMux()

	r.Use(middleware.RequestContext)
	r.Use(middleware.LoggingMiddleware)
	if opts.Security != nil {
		r.Use(middleware.SecureHeaders(opts.Security, opts.Development))
	}
	if opts.CORS != nil {
		r.Use(middleware.NewCORSHandler(opts.CORS))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewError(CodeResourceNotFound, "Route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewError(CodeResourceNotFound, "Method not allowed").WithStatus(http.StatusMethodNotAllowed).Write(w)
	})

	r.Get(swagger.SpecPath, swagger.ServeSwaggerJSON)
	r.Get("/swagger/*", swagger.UI())

	validator := oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		ErrorHandlerWithOpts: validationErrorHandler,
		Options: openapi3filter.Options{
			AuthenticationFunc: authFunc,
		},
	})

	loginLimit := func(next http.Handler) http.Handler { return next }
	if opts.LoginRateLimit > 0 {
		loginLimit = middleware.RateLimitByIP(opts.LoginRateLimit, opts.LoginRateWindow, func(w http.ResponseWriter, r *http.Request) {
			NewError(CodeRateLimited, "Too many login attempts, try again later").Write(w)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(validator)
		r.Use(middleware.AttachUser)

		r.Get("/healthz", s.HealthCheck)
		r.Get("/readyz", s.ReadinessCheck)

		r.With(loginLimit).Post("/auth/login", s.LoginUser)
		r.Post("/auth/logout", s.LogoutUser)
		r.Get("/auth/me", s.GetCurrentUser)

		r.Get("/access", s.ListAccess)
		r.Post("/access", s.SubmitAccessRequest)
		r.Patch("/access", s.ChangeAccess)

		r.Get("/roles", s.ListRoles)
		r.Put("/roles", s.UpsertRole)
		r.Get("/roles/{roleId}/permissions", s.ListRolePermissions)
		r.Put("/roles/{roleId}/permissions/{tileKey}", s.SetRolePermission)

		r.Get("/audit", s.ListAuditLogs)
		r.Get("/audit/verify", s.VerifyAuditChain)
		r.Get("/audit/exports", s.ListAuditExports)
		r.Post("/audit/exports", s.RequestAuditExport)
	})

	return r
}

// validationErrorHandler renders validator rejections in the API error shape.
// A security requirement that failed for any reason other than a missing or
// disabled session is a server fault, not a 401.
func validationErrorHandler(ctx context.Context, err error, w http.ResponseWriter, r *http.Request, opts oapimiddleware.ErrorHandlerOpts) {
	var secErr *openapi3filter.SecurityRequirementsError
	if errors.As(err, &secErr) {
		if errors.Is(err, apperr.ErrAuthenticationRequired) || errors.Is(err, apperr.ErrAccountDisabled) {
			Unauthorized("Authentication required").Write(w)
			return
		}
		middleware.GetLoggerFromContext(ctx).Error("Failed to authenticate request", "error", err)
		InternalError("Failed to authenticate request").Write(w)
		return
	}

	switch opts.StatusCode {
	case http.StatusBadRequest:
		message, _, _ := strings.Cut(err.Error(), "\n")
		ValidationErr(message, nil).Write(w)
	case http.StatusNotFound:
		NewError(CodeResourceNotFound, "Route not found").Write(w)
	default:
		middleware.GetLoggerFromContext(ctx).Error("Failed to validate request", "error", err)
		NewError(CodeInternalError, "Request could not be validated").WithStatus(opts.StatusCode).Write(w)
	}
}
