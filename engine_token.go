package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneauth/internal/flows"
	"github.com/MrEthical07/phoneauth/session"
	"go.uber.org/zap"
)

// IssueAccessToken signs a standalone access token. No session is touched.
func (e *Engine) IssueAccessToken(userID, role, state string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("%w: user id required", ErrValidation)
	}
	return e.jwtManager.CreateAccess(userID, role, state)
}

// IssueSession starts a new session for userID and returns its refresh
// token. Any session the user already had is replaced. Role and state are
// taken from the user provider when one is configured.
func (e *Engine) IssueSession(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id required", ErrValidation)
	}
	user := UserRecord{UserID: userID}
	if e.userProvider != nil {
		u, err := e.userProvider.GetUserByID(ctx, userID)
		switch {
		case err == nil:
			user = u
		case errors.Is(err, ErrUserNotFound):
			return "", err
		default:
			e.warn("session user lookup failed", err, zap.String("user_id", userID))
		}
	}

	tokens, err := e.issueTokens(ctx, user)
	if err != nil {
		return "", err
	}
	return tokens.RefreshToken, nil
}

// IssueTokens signs an access token for user and starts a new session.
func (e *Engine) IssueTokens(ctx context.Context, user UserRecord) (TokenPair, error) {
	if user.UserID == "" {
		return TokenPair{}, fmt.Errorf("%w: user id required", ErrValidation)
	}
	return e.issueTokens(ctx, user)
}

func (e *Engine) issueTokens(ctx context.Context, user UserRecord) (TokenPair, error) {
	if !e.flows.Initialized() {
		return TokenPair{}, ErrEngineNotReady
	}
	res := e.flows.IssueSession(ctx, toFlowUser(user))
	switch res.Failure {
	case flows.IssueFailureNone:
	case flows.IssueFailureStore:
		e.warn("session write failed", res.Err, zap.String("user_id", user.UserID))
		return TokenPair{}, storeUnavailable(res.Err)
	default:
		e.logger.Error("token signing failed", zap.String("user_id", user.UserID), zap.Error(res.Err))
		return TokenPair{}, res.Err
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionIssued, true, user.UserID, "", nil, nil)
	return fromFlowTokens(res.Tokens), nil
}

// VerifyAccessToken checks signature, expiry and token kind. It never
// touches the store.
func (e *Engine) VerifyAccessToken(token string) (*AuthResult, error) {
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}
	if token == "" {
		return nil, ErrTokenInvalid
	}

	claims, err := e.jwtManager.ParseAccess(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	result := &AuthResult{
		UserID: claims.UID,
		Role:   claims.Role,
		State:  claims.State,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}

// ExchangeRefresh returns a new access token for a refresh token that is
// still the live session of its user. The refresh token is not rotated.
//
// Errors: ErrTokenInvalid for a bad or expired token, ErrSessionNotFound
// when the session is gone or holds another token, ErrStoreUnavailable when
// the store cannot answer.
func (e *Engine) ExchangeRefresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	if !e.flows.Initialized() {
		return "", time.Time{}, ErrEngineNotReady
	}
	if refreshToken == "" {
		return "", time.Time{}, ErrTokenInvalid
	}

	res := e.flows.Refresh(ctx, refreshToken)
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, "", nil, nil)
		return res.AccessToken, res.AccessExpiresAt, nil
	case flows.RefreshFailureDecode:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrTokenInvalid, nil)
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrTokenInvalid, res.Err)
	case flows.RefreshFailureSessionNotFound:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", ErrSessionNotFound, func() map[string]string {
			reason := "session_not_found"
			if errors.Is(res.Err, session.ErrRefreshHashMismatch) {
				reason = "hash_mismatch"
			}
			return map[string]string{"reason": reason}
		})
		return "", time.Time{}, ErrSessionNotFound
	case flows.RefreshFailureStore:
		e.metricInc(MetricRefreshFailure)
		e.warn("refresh session lookup failed", res.Err, zap.String("user_id", res.UserID))
		if errors.Is(res.Err, session.ErrSessionCorrupt) {
			return "", time.Time{}, ErrSessionNotFound
		}
		return "", time.Time{}, storeUnavailable(res.Err)
	default:
		e.metricInc(MetricRefreshFailure)
		e.logger.Error("refresh access signing failed", zap.String("user_id", res.UserID), zap.Error(res.Err))
		return "", time.Time{}, res.Err
	}
}

// Revoke deletes the session of userID. Revoking a missing session succeeds.
func (e *Engine) Revoke(ctx context.Context, userID string) error {
	if !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	if userID == "" {
		return fmt.Errorf("%w: user id required", ErrValidation)
	}
	if err := e.flows.Logout(ctx, userID); err != nil {
		e.warn("session delete failed", err, zap.String("user_id", userID))
		return storeUnavailable(err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, userID, "", nil, nil)
	return nil
}

// LogoutByAccessToken revokes the session of the access token's user.
func (e *Engine) LogoutByAccessToken(ctx context.Context, accessToken string) error {
	if !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	res := e.flows.LogoutByAccessToken(ctx, accessToken)
	if res.UserID == "" {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, res.Err)
	}
	if res.Err != nil {
		e.warn("session delete failed", res.Err, zap.String("user_id", res.UserID))
		return storeUnavailable(res.Err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, res.UserID, "", nil, nil)
	return nil
}

// Login authenticates phone and password and starts a new session.
//
// A locked phone (or client IP) is refused with a [LockedError] before the
// password is checked. Unknown phones and wrong passwords both return
// ErrInvalidCredentials and count toward the lockout; the attempt that
// reaches the threshold returns a [LockedError].
func (e *Engine) Login(ctx context.Context, phone, password string) (LoginResult, error) {
	if e.userProvider == nil || !e.flows.Initialized() {
		return LoginResult{}, ErrEngineNotReady
	}
	phone, err := e.NormalizePhone(phone)
	if err != nil {
		return LoginResult{}, err
	}
	if password == "" {
		return LoginResult{}, fmt.Errorf("%w: password required", ErrValidation)
	}

	res := e.flows.Login(ctx, flows.LoginRequest{
		Phone:     phone,
		Password:  password,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	})

	switch res.Failure {
	case flows.LoginFailureNone:
		user := fromFlowUser(res.User)
		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricSessionCreated)
		e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, phone, nil, func() map[string]string {
			return map[string]string{"method": "password"}
		})
		return LoginResult{User: user, Tokens: fromFlowTokens(res.Tokens)}, nil
	case flows.LoginFailureLocked:
		err := lockedError(res.Lock)
		if res.LockedIdentifier != "" {
			e.metricInc(MetricLoginFailure)
			e.onLoginLocked(ctx, lockedFailure(res))
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, res.User.UserID, phone, err, nil)
		return LoginResult{}, err
	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.User.UserID, phone, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"attempts_remaining": fmt.Sprint(res.AttemptsRemaining)}
		})
		return LoginResult{}, ErrInvalidCredentials
	case flows.LoginFailureLockCheck, flows.LoginFailureRecord, flows.LoginFailureProvider:
		e.metricInc(MetricLoginFailure)
		e.warn("login backend failure", res.Err, e.phoneField(phone))
		err := storeUnavailable(res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.User.UserID, phone, err, nil)
		return LoginResult{}, err
	case flows.LoginFailureIssue:
		e.metricInc(MetricLoginFailure)
		e.warn("login session issue failed", res.Err, e.phoneField(phone))
		return LoginResult{}, storeUnavailable(res.Err)
	default:
		e.metricInc(MetricLoginFailure)
		e.logger.Error("login failed", e.phoneField(phone), zap.Error(res.Err))
		return LoginResult{}, res.Err
	}
}
