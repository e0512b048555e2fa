package auth

import (
	"testing"

	"github.com/campusops/portal/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"student@campus.edu", true},
		{"first.last+portal@dept.campus.edu", true},
		{"", false},
		{"not-an-email", false},
		{"@campus.edu", false},
		{"student@", false},
		{"a@b@campus.edu", false},
		{"student@campus edu", false},
		{"student name@campus.edu", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := validateEmail(tt.email)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}
