package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/campusops/portal/internal/auth"
	"github.com/campusops/portal/internal/logging"
	"github.com/google/uuid"
)

type contextKey string

const (
	requestInfoKey contextKey = "requestInfo"
)

const RequestIDHeader = "X-Request-ID"

// requestInfo is shared by every handler in the chain. Authentication runs
// after RequestContext, so the user is filled in later by AttachUser.
type requestInfo struct {
	requestID string
	clientIP  string
	userID    string
	logger    *slog.Logger
}

// middleware adds request ID and IP address to context
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		info := &requestInfo{
			requestID: requestID,
			clientIP:  getClientIP(r),
		}
		info.logger = logging.With(
			"request_id", info.requestID,
			"client_ip", info.clientIP,
		)

		ctx := context.WithValue(r.Context(), requestInfoKey, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AttachUser records the authenticated user on the request's logger. It must
// run after authentication.
func AttachUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := r.Context().Value(requestInfoKey).(*requestInfo)
		if userID, authed := auth.GetUserID(r.Context()); ok && authed && info.userID == "" {
			info.userID = userID.String()
			info.logger = info.logger.With("user_id", info.userID)
		}
		next.ServeHTTP(w, r)
	})
}

func GetLoggerFromContext(ctx context.Context) *slog.Logger {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		return info.logger
	}
	// Fallback to default logger if not found
	return slog.Default()
}

func GetRequestID(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		return info.requestID
	}
	return ""
}

func GetClientIP(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		return info.clientIP
	}
	return ""
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header for proxied requests
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// take the first one
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to remote address
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
