package api

import "github.com/campusops/portal/internal/audit"

// parseLimit normalizes the limit query param.
// default 50, capped at 500, minimum 1.
func parseLimit(limit *int) int {
	l := audit.DefaultLimit
	if limit != nil {
		l = *limit
	}
	if l > audit.MaxLimit {
		l = audit.MaxLimit
	}
	if l < 1 {
		l = 1
	}
	return l
}
