package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneauth/internal/flows"
	"github.com/MrEthical07/phoneauth/internal/limiters"
	"go.uber.org/zap"
)

// RecordLoginFailure counts one failed login for identifier and for the
// client IP in ctx. Reaching the threshold writes a login lockout, clears
// the counter and reports ShouldLock.
func (e *Engine) RecordLoginFailure(ctx context.Context, identifier string) (FailureResult, error) {
	if identifier == "" {
		return FailureResult{}, fmt.Errorf("%w: identifier required", ErrValidation)
	}

	res, err := e.guard.RecordFailure(ctx, identifier, clientIPFromContext(ctx), userAgentFromContext(ctx))
	if err != nil {
		e.warn("recording login failure failed", err)
		return FailureResult{}, storeUnavailable(err)
	}
	e.metricInc(MetricLoginFailure)
	if res.ShouldLock {
		e.onLoginLocked(ctx, res)
	}
	return FailureResult{
		ShouldLock:        res.ShouldLock,
		AttemptsRemaining: res.AttemptsRemaining,
		ExpiresAt:         res.ExpiresAt,
	}, nil
}

// IsLoginLocked reports the login lockout for identifier together with its
// failure count. Errors fail closed.
func (e *Engine) IsLoginLocked(ctx context.Context, identifier string) (LockStatus, error) {
	st, err := e.lockStatus(ctx, limiters.NamespaceLogin, identifier)
	if err != nil {
		return st, err
	}
	n, err := e.guard.FailureCount(ctx, identifier)
	if err != nil {
		return LockStatus{Locked: true}, storeUnavailable(err)
	}
	st.Failures = n
	return st, nil
}

// ClearLoginFailures resets the failure counters for identifier and the
// client IP in ctx. An active lockout stays in place.
func (e *Engine) ClearLoginFailures(ctx context.Context, identifier string) error {
	if err := e.guard.Clear(ctx, identifier, clientIPFromContext(ctx)); err != nil {
		return storeUnavailable(err)
	}
	return nil
}

// UnlockLogin lifts the login lockout for identifier.
func (e *Engine) UnlockLogin(ctx context.Context, identifier string) error {
	if err := e.guard.Unlock(ctx, limiters.NamespaceLogin, identifier); err != nil {
		return storeUnavailable(err)
	}
	e.emitAudit(ctx, auditEventLoginUnlocked, true, "", "", nil, func() map[string]string {
		return map[string]string{"identifier": maskPhone(identifier)}
	})
	return nil
}

func (e *Engine) lockStatus(ctx context.Context, namespace, identifier string) (LockStatus, error) {
	if e.guard == nil {
		return LockStatus{}, ErrEngineNotReady
	}
	st, err := e.guard.IsLocked(ctx, namespace, identifier)
	if err != nil {
		if errors.Is(err, limiters.ErrInvalidNamespace) {
			return LockStatus{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return LockStatus{Locked: true}, storeUnavailable(err)
	}
	return LockStatus{Locked: st.Locked, Reason: st.Reason, ExpiresAt: st.ExpiresAt}, nil
}

func (e *Engine) onLoginLocked(ctx context.Context, res limiters.FailureResult) {
	e.metricInc(MetricLoginLocked)
	e.emitAudit(ctx, auditEventLoginLocked, false, "", "", ErrLocked, func() map[string]string {
		return map[string]string{"identifier": maskPhone(res.LockedIdentifier)}
	})
	e.logger.Warn("login locked", zap.Time("expires_at", res.ExpiresAt))
	e.reportBreach(ctx, res.LockedIdentifier, limiters.ReasonLoginFailures, map[string]string{
		"expires_at": res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func lockedFailure(res flows.LoginResult) limiters.FailureResult {
	return limiters.FailureResult{
		ShouldLock:       true,
		ExpiresAt:        res.Lock.ExpiresAt,
		LockedIdentifier: res.LockedIdentifier,
	}
}
