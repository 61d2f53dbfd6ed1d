package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/response"
	"go.uber.org/zap"
)

// PolicyRoute binds a path prefix to a rate limit policy.
type PolicyRoute struct {
	Prefix string
	Policy string
}

// RatePolicies selects a policy per request path. The longest matching
// prefix wins; unmatched paths use Default.
type RatePolicies struct {
	Routes  []PolicyRoute
	Default string
	// Skip lists exact paths that are never counted.
	Skip []string
}

// DefaultRatePolicies mirrors the standard route budgets.
func DefaultRatePolicies() RatePolicies {
	return RatePolicies{
		Routes: []PolicyRoute{
			{Prefix: "/api/auth/login", Policy: phoneauth.PolicyAuth},
			{Prefix: "/api/auth/register", Policy: phoneauth.PolicyRegister},
			{Prefix: "/api/auth/send-otp", Policy: phoneauth.PolicyOTPSend},
			{Prefix: "/api/payments", Policy: phoneauth.PolicyPayments},
		},
		Default: phoneauth.PolicyAPI,
		Skip:    []string{"/health", "/metrics"},
	}
}

// PolicyFor returns the policy for path, or "" when path is skipped.
func (p RatePolicies) PolicyFor(path string) string {
	for _, skip := range p.Skip {
		if path == skip {
			return ""
		}
	}

	policy, longest := p.Default, -1
	for _, route := range p.Routes {
		if strings.HasPrefix(path, route.Prefix) && len(route.Prefix) > longest {
			policy, longest = route.Policy, len(route.Prefix)
		}
	}
	return policy
}

// KeyFunc identifies the caller of a request for rate limiting.
type KeyFunc func(r *http.Request) string

// CallerKey returns "user:<id>" for a request with a valid bearer token and
// "ip:<addr>" otherwise.
func CallerKey(engine *phoneauth.Engine) KeyFunc {
	return func(r *http.Request) string {
		if token, ok := bearerToken(r.Header.Get("Authorization")); ok && engine != nil {
			if auth, err := engine.VerifyAccessToken(token); err == nil {
				return "user:" + auth.UserID
			}
		}
		return "ip:" + ClientIP(r)
	}
}

// RateLimit counts every request against the policy chosen by its path.
// Allowed responses carry the remaining budget in X-Rate-Limit-* headers;
// denied requests get a 429 envelope with Retry-After. A nil keyFunc uses
// [CallerKey].
func RateLimit(engine *phoneauth.Engine, policies RatePolicies, keyFunc KeyFunc) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = CallerKey(engine)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy := policies.PolicyFor(r.URL.Path)
			if engine == nil || policy == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			decision, err := engine.CheckRate(r.Context(), key, policy)
			if err != nil {
				engine.Logger().Warn("request rejected by rate limiter",
					zap.String("policy", policy),
					zap.String("caller", key),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				response.Error(w, engine.Logger(), err)
				return
			}

			response.SetRateHeaders(w, decision)
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
