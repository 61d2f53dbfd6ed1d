package phoneauth

import (
	"context"
	"fmt"

	"github.com/MrEthical07/phoneauth/internal/flows"
	"github.com/MrEthical07/phoneauth/internal/limiters"
	"github.com/MrEthical07/phoneauth/internal/rate"
	"go.uber.org/zap"
)

// NormalizePhone normalizes raw with the engine's default country code.
func (e *Engine) NormalizePhone(raw string) (string, error) {
	return NormalizePhone(raw, e.config.OTP.DefaultCountryCode)
}

// SendOTP issues a fresh code for phone and hands it to the SMS gateway.
//
// A phone under OTP lockout gets a [LockedError]; an exhausted otp_send
// budget gets a [RateLimitError]. A new code replaces any pending one and
// resets its attempt counter. When the gateway fails the code stays stored
// and ErrSMSDeliveryFailed is returned.
func (e *Engine) SendOTP(ctx context.Context, phone string) (OTPSendResult, error) {
	if !e.flows.Initialized() {
		return OTPSendResult{}, ErrEngineNotReady
	}
	phone, err := e.NormalizePhone(phone)
	if err != nil {
		return OTPSendResult{}, err
	}

	res := e.flows.SendOTP(ctx, phone)
	switch res.Failure {
	case flows.OTPFailureNone:
	case flows.OTPFailureLocked:
		err := lockedError(res.Lock)
		e.metricInc(MetricOTPSendFailure)
		e.emitAudit(ctx, auditEventOTPSendFailure, false, "", phone, err, nil)
		return OTPSendResult{}, err
	case flows.OTPFailureRateLimited:
		if res.Err != nil {
			e.metricInc(MetricOTPSendFailure)
			e.logger.Error("otp send policy rejected", zap.Error(res.Err))
			return OTPSendResult{}, res.Err
		}
		policy, _ := e.policy(rate.PolicyOTPSend)
		err := &RateLimitError{
			Policy:     policy.Name,
			Limit:      policy.MaxRequests,
			RetryAfter: res.Decision.RetryAfter(e.now()),
			ResetAt:    res.Decision.ResetAt,
		}
		e.metricInc(MetricOTPSendRateLimited)
		e.emitRateLimit(ctx, policy.Name, maskPhone(phone), toRateDecision(policy, res.Decision))
		return OTPSendResult{}, err
	case flows.OTPFailureLockCheck, flows.OTPFailureStore:
		e.metricInc(MetricOTPSendFailure)
		e.warn("otp send store failure", res.Err, e.phoneField(phone))
		err := storeUnavailable(res.Err)
		e.emitAudit(ctx, auditEventOTPSendFailure, false, "", phone, err, nil)
		return OTPSendResult{}, err
	case flows.OTPFailureSMS:
		e.metricInc(MetricOTPSendFailure)
		e.logger.Error("otp sms delivery failed", e.phoneField(phone), zap.Error(res.Err))
		e.emitAudit(ctx, auditEventOTPSendFailure, false, "", phone, ErrSMSDeliveryFailed, nil)
		return OTPSendResult{}, fmt.Errorf("%w: %v", ErrSMSDeliveryFailed, res.Err)
	default:
		e.metricInc(MetricOTPSendFailure)
		e.logger.Error("otp send failed", e.phoneField(phone), zap.Error(res.Err))
		return OTPSendResult{}, res.Err
	}

	if res.Decision.Degraded {
		e.metricInc(MetricRateLimitDegraded)
	}
	e.metricInc(MetricOTPSent)
	e.emitAudit(ctx, auditEventOTPSent, true, "", phone, nil, nil)
	e.logger.Info("otp sent", e.phoneField(phone))

	return OTPSendResult{
		Phone:     phone,
		ExpiresAt: res.ExpiresAt,
		Remaining: res.Decision.Remaining,
	}, nil
}

// VerifyOTP checks code against the pending code for phone.
//
// Errors: [LockedError] while the phone is under OTP lockout (even for a
// correct code), ErrOTPNotFound when nothing is pending, [MismatchError]
// with the attempts left, and [LockedError] when the last attempt is spent.
// Store failures fail closed with ErrStoreUnavailable.
func (e *Engine) VerifyOTP(ctx context.Context, phone, code string) error {
	if !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	phone, err := e.NormalizePhone(phone)
	if err != nil {
		return err
	}
	if code == "" || len(code) > 16 {
		return fmt.Errorf("%w: invalid code", ErrValidation)
	}

	res := e.flows.VerifyOTP(ctx, phone, code)
	switch res.Failure {
	case flows.OTPFailureNone:
		e.metricInc(MetricOTPVerifySuccess)
		e.emitAudit(ctx, auditEventOTPVerified, true, "", phone, nil, nil)
		return nil
	case flows.OTPFailureLocked:
		err := lockedError(res.Lock)
		e.metricInc(MetricOTPVerifyFailure)
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, "", phone, err, nil)
		return err
	case flows.OTPFailureNotFound:
		e.metricInc(MetricOTPVerifyFailure)
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, "", phone, ErrOTPNotFound, nil)
		return ErrOTPNotFound
	case flows.OTPFailureMismatch:
		err := &MismatchError{AttemptsRemaining: res.AttemptsRemaining}
		e.metricInc(MetricOTPVerifyFailure)
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, "", phone, err, func() map[string]string {
			return map[string]string{"attempts_remaining": fmt.Sprint(res.AttemptsRemaining)}
		})
		return err
	case flows.OTPFailureAttemptsExceeded:
		err := lockedError(res.Lock)
		e.metricInc(MetricOTPVerifyFailure)
		e.metricInc(MetricOTPLocked)
		e.emitAudit(ctx, auditEventOTPLocked, false, "", phone, err, nil)
		return err
	default:
		e.metricInc(MetricOTPVerifyFailure)
		e.warn("otp verify store failure", res.Err, e.phoneField(phone))
		err := storeUnavailable(res.Err)
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, "", phone, err, nil)
		return err
	}
}

// IsOTPLocked reports the OTP lockout for phone. Errors fail closed.
func (e *Engine) IsOTPLocked(ctx context.Context, phone string) (LockStatus, error) {
	phone, err := e.NormalizePhone(phone)
	if err != nil {
		return LockStatus{}, err
	}
	return e.lockStatus(ctx, limiters.NamespaceOTP, phone)
}

// UnlockOTP lifts an OTP lockout for phone.
func (e *Engine) UnlockOTP(ctx context.Context, phone string) error {
	phone, err := e.NormalizePhone(phone)
	if err != nil {
		return err
	}
	if err := e.guard.Unlock(ctx, limiters.NamespaceOTP, phone); err != nil {
		return storeUnavailable(err)
	}
	return nil
}

// LoginWithOTP verifies code for phone, looks the user up and issues an
// access token plus a new session.
func (e *Engine) LoginWithOTP(ctx context.Context, phone, code string) (LoginResult, error) {
	if e.userProvider == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	phone, err := e.NormalizePhone(phone)
	if err != nil {
		return LoginResult{}, err
	}
	if err := e.VerifyOTP(ctx, phone, code); err != nil {
		return LoginResult{}, err
	}

	user, err := e.userProvider.GetUserByPhone(ctx, phone)
	if err != nil {
		return LoginResult{}, err
	}

	tokens, err := e.issueTokens(ctx, user)
	if err != nil {
		return LoginResult{}, err
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, phone, nil, func() map[string]string {
		return map[string]string{"method": "otp"}
	})
	return LoginResult{User: user, Tokens: tokens}, nil
}
