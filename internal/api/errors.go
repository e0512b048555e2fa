package api

import (
	"errors"
	"net/http"

	"github.com/campusops/portal/internal/apperr"
	"github.com/campusops/portal/internal/middleware"
	"github.com/hibiken/asynq"
)

const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeAuthRequired       = "AUTHENTICATION_REQUIRED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountDisabled    = "ACCOUNT_DISABLED"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeResourceNotFound   = "RESOURCE_NOT_FOUND"
	CodeAlreadyDecided     = "ALREADY_DECIDED"
	CodeConflict           = "CONFLICT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternalError      = "INTERNAL_ERROR"
)

type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// additional error context
type ErrorContext map[string]interface{}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
	Context ErrorContext  `json:"context,omitempty"`
}

// builder pattern
type ErrorBuilder struct {
	Code    string
	Message string
	Details []ErrorDetail
	Context ErrorContext
	Status  int
}

func NewError(code, message string) *ErrorBuilder {
	return &ErrorBuilder{Code: code, Message: message, Status: statusForCode(code)}
}

func (e *ErrorBuilder) WithDetails(details []ErrorDetail) *ErrorBuilder {
	e.Details = details
	return e
}

func (e *ErrorBuilder) WithContext(context ErrorContext) *ErrorBuilder {
	e.Context = context
	return e
}

func (e *ErrorBuilder) WithStatus(status int) *ErrorBuilder {
	e.Status = status
	return e
}

func (e *ErrorBuilder) Create() ErrorBody {
	return ErrorBody{Error: ErrorPayload{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Context: e.Context,
	}}
}

// Write sends the error with its status code.
func (e *ErrorBuilder) Write(w http.ResponseWriter) {
	writeJSON(w, e.Status, e.Create())
}

// builder pattern extensions

func Unauthorized(msg string) *ErrorBuilder {
	return NewError(CodeAuthRequired, msg)
}

func PermissionDenied(msg string) *ErrorBuilder {
	return NewError(CodePermissionDenied, msg)
}

func NotFound(resource string) *ErrorBuilder {
	return NewError(CodeResourceNotFound, resource+" not found")
}

func ValidationErr(msg string, details []ErrorDetail) *ErrorBuilder {
	return NewError(CodeValidationError, msg).WithDetails(details)
}

func InternalError(msg string) *ErrorBuilder {
	return NewError(CodeInternalError, msg)
}

func ConflictErr(msg string) *ErrorBuilder {
	return NewError(CodeConflict, msg)
}

func statusForCode(code string) int {
	switch code {
	case CodeValidationError:
		return http.StatusBadRequest
	case CodeAuthRequired, CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeAccountDisabled, CodePermissionDenied:
		return http.StatusForbidden
	case CodeResourceNotFound:
		return http.StatusNotFound
	case CodeAlreadyDecided, CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// fromError maps a service error onto the API taxonomy. Storage failures
// become a generic 500 so internals never leak to clients.
func fromError(err error) *ErrorBuilder {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		return ValidationErr(verr.Error(), []ErrorDetail{{Field: verr.Field, Message: verr.Message}})
	case errors.Is(err, apperr.ErrValidation):
		return ValidationErr(err.Error(), nil)
	case errors.Is(err, apperr.ErrAuthenticationRequired):
		return Unauthorized("Authentication required")
	case errors.Is(err, apperr.ErrInvalidCredentials):
		return NewError(CodeInvalidCredentials, "Invalid email or password")
	case errors.Is(err, apperr.ErrAccountDisabled):
		return NewError(CodeAccountDisabled, "Account is disabled")
	case errors.Is(err, apperr.ErrPermissionDenied):
		return PermissionDenied(err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return NewError(CodeResourceNotFound, err.Error())
	case errors.Is(err, apperr.ErrAlreadyDecided):
		return NewError(CodeAlreadyDecided, "Request has already been decided")
	case errors.Is(err, asynq.ErrTaskIDConflict):
		return ConflictErr("An export for this window is already queued")
	default:
		return InternalError("An unexpected error occurred")
	}
}

// writeError logs err once with the request logger and writes its response.
func writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if apperr.IsExpected(err) || errors.Is(err, asynq.ErrTaskIDConflict) {
		logger.Info(msg, "error", err)
	} else {
		logger.Error(msg, "error", err)
	}
	fromError(err).Write(w)
}
