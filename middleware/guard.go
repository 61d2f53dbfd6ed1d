package middleware

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/permission"
	"github.com/MrEthical07/phoneauth/pipeline"
	"github.com/MrEthical07/phoneauth/response"
	"github.com/go-chi/chi/v5"
)

// RequireAuth verifies the bearer access token and stores the result in the
// request context (see [phoneauth.AuthResultFromContext]).
func RequireAuth(engine *phoneauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				response.Unauthorized(w, "Authentication required")
				return
			}

			req := &phoneauth.Request{}
			req.BearerToken, _ = bearerToken(r.Header.Get("Authorization"))

			d := pipeline.Run(r.Context(), req, engine.AuthenticateCheck())
			if !d.Allowed {
				response.Error(w, engine.Logger(), d.Err)
				return
			}

			ctx := phoneauth.WithAuthResult(r.Context(), req.Auth)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission allows the request when the caller holds at least one of
// required on the resource named by the route parameter resourceParam. It
// reuses the result of [RequireAuth] when present and otherwise verifies the
// bearer token itself.
func RequirePermission(engine *phoneauth.Engine, resourceParam string, required ...permission.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				response.Unauthorized(w, "Authentication required")
				return
			}

			req := &phoneauth.Request{ResourceID: resourceID(r, resourceParam)}
			checks := make([]pipeline.Check[*phoneauth.Request], 0, 2)
			if auth, ok := phoneauth.AuthResultFromContext(r.Context()); ok {
				req.Auth = auth
			} else {
				req.BearerToken, _ = bearerToken(r.Header.Get("Authorization"))
				checks = append(checks, engine.AuthenticateCheck())
			}
			checks = append(checks, engine.PermissionCheck(required...))

			d := pipeline.Run(r.Context(), req, checks...)
			if !d.Allowed {
				response.Error(w, engine.Logger(), d.Err)
				return
			}

			ctx := phoneauth.WithAuthResult(r.Context(), req.Auth)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resourceID(r *http.Request, param string) string {
	if param == "" {
		return ""
	}
	if id := chi.URLParam(r, param); id != "" {
		return id
	}
	return r.URL.Query().Get(param)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
