package http

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const fingerprintContextKey contextKey = "viewer_fingerprint"

// Fingerprint identifies the viewer's browser for the same-browser reclaim
// heuristic. It is a heuristic, not a security boundary; the session token
// remains the only credential.
type Fingerprint struct {
	IPAddress string
	UserAgent string
}

// ExtractClientIP extracts the client IP address from the request.
// Checks X-Forwarded-For header first (for proxied requests), then X-Real-IP, finally RemoteAddr.
func ExtractClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (for proxied requests)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list (comma-separated)
		if before, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(before)
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr, stripping port
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

// FingerprintFromContext extracts the viewer fingerprint from the request
// context. This should be called from handlers wrapped by
// FingerprintMiddleware.
func FingerprintFromContext(ctx context.Context) Fingerprint {
	fp, _ := ctx.Value(fingerprintContextKey).(Fingerprint)
	return fp
}

// FingerprintMiddleware extracts the client IP and user agent and stores
// them in the request context for session creation and audit logging.
func FingerprintMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fp := Fingerprint{
				IPAddress: ExtractClientIP(r),
				UserAgent: r.UserAgent(),
			}
			ctx := context.WithValue(r.Context(), fingerprintContextKey, fp)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
