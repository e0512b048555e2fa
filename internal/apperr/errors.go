// Package apperr defines the error taxonomy shared by the access-control core
// and the HTTP layer. Domain code wraps these sentinels with %w; handlers map
// them to status codes with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountDisabled        = errors.New("account is disabled")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrNotFound               = errors.New("not found")
	ErrAlreadyDecided         = errors.New("request already decided")
	ErrValidation             = errors.New("validation failed")
)

// ValidationError reports a single invalid or missing field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFound wraps ErrNotFound with the missing resource name, e.g. "role".
func NotFound(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}

// IsExpected reports whether err belongs to the taxonomy rather than being a
// storage or programming failure.
func IsExpected(err error) bool {
	for _, target := range []error{
		ErrAuthenticationRequired,
		ErrInvalidCredentials,
		ErrAccountDisabled,
		ErrPermissionDenied,
		ErrNotFound,
		ErrAlreadyDecided,
		ErrValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
