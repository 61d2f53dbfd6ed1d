package phoneauth

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type authResultContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for IP lockouts and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. It is recorded
// on lockout records.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithAuthResult attaches a verified access token to ctx.
func WithAuthResult(ctx context.Context, result *AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, result)
}

// AuthResultFromContext returns the verified token stored by [WithAuthResult].
func AuthResultFromContext(ctx context.Context) (*AuthResult, bool) {
	if ctx == nil {
		return nil, false
	}
	result, ok := ctx.Value(authResultContextKey{}).(*AuthResult)
	return result, ok && result != nil
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}
