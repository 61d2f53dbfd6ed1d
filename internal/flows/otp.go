package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/phoneauth/internal/limiters"
	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/MrEthical07/phoneauth/internal/stores"
)

// OTPFailureKind classifies OTP flow failures for root-level mapping.
type OTPFailureKind int

const (
	OTPFailureNone OTPFailureKind = iota
	OTPFailureLockCheck
	OTPFailureLocked
	OTPFailureRateLimited
	OTPFailureGenerate
	OTPFailureStore
	OTPFailureSMS
	OTPFailureNotFound
	OTPFailureMismatch
	OTPFailureAttemptsExceeded
)

type OTPLockGuard interface {
	IsLocked(ctx context.Context, namespace, identifier string) (limiters.LockStatus, error)
	Lock(ctx context.Context, namespace, identifier, reason string, ttl time.Duration) (limiters.LockoutRecord, error)
}

type OTPRateLimiter interface {
	Check(ctx context.Context, identifier string, policy rate.Policy) (rate.Decision, error)
}

type OTPCodeStore interface {
	Save(ctx context.Context, identifier, code string, createdAt time.Time, ttl time.Duration) error
	Verify(ctx context.Context, identifier, code string, maxAttempts int) (stores.OTPVerifyResult, error)
}

// OTPSendDeps captures send flow dependencies.
type OTPSendDeps struct {
	Guard           OTPLockGuard
	Limiter         OTPRateLimiter
	Store           OTPCodeStore
	Policy          rate.Policy
	TTL             time.Duration
	MessageTemplate string
	NewCode         func() (string, error)
	Send            func(ctx context.Context, to, message string) error
	Now             func() time.Time
}

// OTPSendResult carries the issued record metadata or failure metadata.
type OTPSendResult struct {
	Failure   OTPFailureKind
	Err       error
	Lock      limiters.LockStatus
	Decision  rate.Decision
	ExpiresAt time.Time
}

// RunSendOTP refuses locked identifiers, spends one unit of the send budget,
// stores a fresh code and hands the message to the SMS collaborator.
// A failed send keeps the stored record.
func RunSendOTP(ctx context.Context, phone string, deps OTPSendDeps) OTPSendResult {
	status, err := deps.Guard.IsLocked(ctx, limiters.NamespaceOTP, phone)
	if err != nil {
		return OTPSendResult{Failure: OTPFailureLockCheck, Err: err}
	}
	if status.Locked {
		return OTPSendResult{Failure: OTPFailureLocked, Lock: status}
	}

	decision, err := deps.Limiter.Check(ctx, phone, deps.Policy)
	if err != nil {
		return OTPSendResult{Failure: OTPFailureRateLimited, Err: err}
	}
	if !decision.Allowed {
		return OTPSendResult{Failure: OTPFailureRateLimited, Decision: decision}
	}

	code, err := deps.NewCode()
	if err != nil {
		return OTPSendResult{Failure: OTPFailureGenerate, Err: err, Decision: decision}
	}

	now := deps.Now()
	if err := deps.Store.Save(ctx, phone, code, now, deps.TTL); err != nil {
		return OTPSendResult{Failure: OTPFailureStore, Err: err, Decision: decision}
	}

	result := OTPSendResult{
		Decision:  decision,
		ExpiresAt: now.Add(deps.TTL),
	}
	if err := deps.Send(ctx, phone, fmt.Sprintf(deps.MessageTemplate, code)); err != nil {
		result.Failure = OTPFailureSMS
		result.Err = err
	}
	return result
}

// OTPVerifyDeps captures verify flow dependencies.
type OTPVerifyDeps struct {
	Guard        OTPLockGuard
	Store        OTPCodeStore
	MaxAttempts  int
	LockDuration time.Duration
	// Report is told about every OTP lockout. It must not block.
	Report func(ctx context.Context, identifier, reason string, metadata map[string]string)
	Warn   func(msg string, err error)
	Now    func() time.Time
}

// OTPVerifyResult describes one verify attempt.
type OTPVerifyResult struct {
	Failure           OTPFailureKind
	Err               error
	AttemptsRemaining int
	Lock              limiters.LockStatus
}

// RunVerifyOTP checks code against the pending record for phone. An active
// OTP lock rejects the attempt before the record is touched. Reaching the
// attempt cap writes an OTP lockout and reports it.
func RunVerifyOTP(ctx context.Context, phone, code string, deps OTPVerifyDeps) OTPVerifyResult {
	status, err := deps.Guard.IsLocked(ctx, limiters.NamespaceOTP, phone)
	if err != nil {
		return OTPVerifyResult{Failure: OTPFailureLockCheck, Err: err}
	}
	if status.Locked {
		return OTPVerifyResult{Failure: OTPFailureLocked, Lock: status}
	}

	res, err := deps.Store.Verify(ctx, phone, code, deps.MaxAttempts)
	switch {
	case err == nil:
		return OTPVerifyResult{Failure: OTPFailureNone}
	case errors.Is(err, stores.ErrOTPNotFound):
		return OTPVerifyResult{Failure: OTPFailureNotFound, Err: err}
	case errors.Is(err, stores.ErrOTPMismatch):
		return OTPVerifyResult{
			Failure:           OTPFailureMismatch,
			Err:               err,
			AttemptsRemaining: res.AttemptsRemaining,
		}
	case errors.Is(err, stores.ErrOTPAttemptsExceeded):
		return lockAfterExceeded(ctx, phone, res.Attempts, deps)
	default:
		return OTPVerifyResult{Failure: OTPFailureStore, Err: err}
	}
}

func lockAfterExceeded(ctx context.Context, phone string, attempts int, deps OTPVerifyDeps) OTPVerifyResult {
	lock := limiters.LockStatus{
		Locked:    true,
		Reason:    limiters.ReasonOTPFailures,
		ExpiresAt: deps.Now().Add(deps.LockDuration),
	}

	record, err := deps.Guard.Lock(ctx, limiters.NamespaceOTP, phone, limiters.ReasonOTPFailures, deps.LockDuration)
	if err != nil {
		// The record is already gone, so the caller is still refused.
		if deps.Warn != nil {
			deps.Warn("otp lockout write failed", err)
		}
	} else {
		lock.ExpiresAt = record.ExpiresAt
	}

	if deps.Report != nil {
		deps.Report(ctx, phone, limiters.ReasonOTPFailures, map[string]string{
			"attempts":   strconv.Itoa(attempts),
			"expires_at": lock.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}

	return OTPVerifyResult{
		Failure: OTPFailureAttemptsExceeded,
		Err:     stores.ErrOTPAttemptsExceeded,
		Lock:    lock,
	}
}
