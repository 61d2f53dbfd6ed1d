package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/response"
	"github.com/oklog/ulid/v2"
)

var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Content-Security-Policy":   "default-src 'self'; object-src 'none'; frame-src 'none'",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Permissions-Policy":        "camera=(), microphone=(), geolocation=(), payment=(), usb=()",
}

// SecurityHeaders sets the standard hardening headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for k, v := range securityHeaders {
			h.Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

// ClientInfo records the caller's IP and User-Agent in the request context
// for lockouts and audit events.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := phoneauth.WithClientIP(r.Context(), ClientIP(r))
		if ua := r.UserAgent(); ua != "" {
			ctx = phoneauth.WithUserAgent(ctx, ua)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDContextKey struct{}

// RequestID assigns a ULID to every request unless the client sent
// X-Request-ID. The ID is echoed in the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 64 {
			id = ulid.Make().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDContextKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the ID set by [RequestID].
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// CSRFOptions configures [RequireCSRF].
type CSRFOptions struct {
	// SkipPrefixes are path prefixes exempt from the check.
	SkipPrefixes []string
}

// RequireCSRF rejects state-changing requests whose X-CSRF-Token does not
// match the token issued for X-Session-ID. Safe methods pass through.
func RequireCSRF(engine *phoneauth.Engine, opts CSRFOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			for _, prefix := range opts.SkipPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			token := r.Header.Get("X-CSRF-Token")
			sessionKey := r.Header.Get("X-Session-ID")
			if token == "" || sessionKey == "" {
				response.WriteError(w, http.StatusForbidden, "CSRF_TOKEN_MISSING", "CSRF token required for this operation", nil)
				return
			}
			if err := engine.ValidateCSRFToken(r.Context(), sessionKey, token); err != nil {
				if errors.Is(err, phoneauth.ErrCSRFInvalid) {
					response.WriteError(w, http.StatusForbidden, "INVALID_CSRF_TOKEN", "Invalid or expired CSRF token", nil)
					return
				}
				response.Error(w, engine.Logger(), err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
