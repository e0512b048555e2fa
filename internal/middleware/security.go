package middleware

import (
	"net/http"

	"github.com/campusops/portal/internal/config"
	"github.com/unrolled/secure"
)

// SecureHeaders sets the standard hardening headers. In development the SSL
// and STS options are ignored.
func SecureHeaders(cfg *config.SecurityConfig, development bool) func(http.Handler) http.Handler {
	return secure.New(secure.Options{
		FrameDeny:          cfg.FrameDeny,
		ContentTypeNosniff: cfg.ContentTypeNosniff,
		SSLRedirect:        cfg.SSLRedirect,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:         cfg.STSSeconds,
		ReferrerPolicy:     "same-origin",
		IsDevelopment:      development,
	}).Handler
}
