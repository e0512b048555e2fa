package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitByIP allows limit requests per client IP within window. onLimit
// writes the rejection.
func RateLimitByIP(limit int, window time.Duration, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(onLimit),
	)
}
