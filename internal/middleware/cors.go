package middleware

import (
	"net/http"
	"slices"

	"github.com/campusops/portal/internal/config"
	"github.com/go-chi/cors"
)

// NewCORSHandler applies the configured policy. The request id header is
// always allowed and exposed so browser clients can correlate failures.
func NewCORSHandler(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   withHeader(cfg.AllowedHeaders, RequestIDHeader),
		ExposedHeaders:   withHeader(cfg.ExposedHeaders, RequestIDHeader),
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}

func withHeader(headers []string, header string) []string {
	if slices.Contains(headers, header) {
		return headers
	}
	return append(slices.Clone(headers), header)
}
