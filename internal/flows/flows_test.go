package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/phoneauth/internal/limiters"
	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/MrEthical07/phoneauth/internal/stores"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeGuard struct {
	locked   map[string]limiters.LockStatus
	lockErr  error
	failures int
	cleared  int
	lockedAt []string
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{locked: map[string]limiters.LockStatus{}}
}

func (g *fakeGuard) IsLocked(_ context.Context, ns, id string) (limiters.LockStatus, error) {
	if g.lockErr != nil {
		return limiters.LockStatus{}, g.lockErr
	}
	return g.locked[ns+":"+id], nil
}

func (g *fakeGuard) Lock(_ context.Context, ns, id, reason string, ttl time.Duration) (limiters.LockoutRecord, error) {
	g.lockedAt = append(g.lockedAt, ns+":"+id)
	rec := limiters.LockoutRecord{Identifier: id, Reason: reason, LockedAt: fixedNow, ExpiresAt: fixedNow.Add(ttl)}
	g.locked[ns+":"+id] = limiters.LockStatus{Locked: true, Reason: reason, ExpiresAt: rec.ExpiresAt}
	return rec, nil
}

func (g *fakeGuard) RecordFailure(_ context.Context, id, _, _ string) (limiters.FailureResult, error) {
	g.failures++
	if g.failures >= 3 {
		return limiters.FailureResult{ShouldLock: true, ExpiresAt: fixedNow.Add(time.Hour), LockedIdentifier: id}, nil
	}
	return limiters.FailureResult{AttemptsRemaining: 3 - g.failures}, nil
}

func (g *fakeGuard) Clear(context.Context, string, string) error {
	g.cleared++
	return nil
}

type fakeLimiter struct{ allowed bool }

func (l fakeLimiter) Check(_ context.Context, _ string, p rate.Policy) (rate.Decision, error) {
	return rate.Decision{Allowed: l.allowed, Remaining: 0, ResetAt: fixedNow.Add(p.Window)}, nil
}

type fakeCodes struct {
	saved     map[string]string
	verifyErr error
	result    stores.OTPVerifyResult
}

func (c *fakeCodes) Save(_ context.Context, id, code string, _ time.Time, _ time.Duration) error {
	if c.saved == nil {
		c.saved = map[string]string{}
	}
	c.saved[id] = code
	return nil
}

func (c *fakeCodes) Verify(context.Context, string, string, int) (stores.OTPVerifyResult, error) {
	return c.result, c.verifyErr
}

func sendDeps(guard *fakeGuard, codes *fakeCodes, allowed bool, sendErr error) (OTPSendDeps, *[]string) {
	var sent []string
	return OTPSendDeps{
		Guard:           guard,
		Limiter:         fakeLimiter{allowed: allowed},
		Store:           codes,
		Policy:          rate.Policy{Name: "otp_send", Window: 10 * time.Minute, MaxRequests: 3},
		TTL:             5 * time.Minute,
		MessageTemplate: "code %s",
		NewCode:         func() (string, error) { return "123456", nil },
		Send: func(_ context.Context, to, msg string) error {
			sent = append(sent, to+"|"+msg)
			return sendErr
		},
		Now: func() time.Time { return fixedNow },
	}, &sent
}

func TestSendOTPStoresAndSends(t *testing.T) {
	codes := &fakeCodes{}
	deps, sent := sendDeps(newFakeGuard(), codes, true, nil)

	res := RunSendOTP(context.Background(), "+2348031234567", deps)
	if res.Failure != OTPFailureNone {
		t.Fatalf("unexpected failure %v: %v", res.Failure, res.Err)
	}
	if !res.ExpiresAt.Equal(fixedNow.Add(5 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}
	if codes.saved["+2348031234567"] != "123456" {
		t.Fatal("code not stored")
	}
	if len(*sent) != 1 || (*sent)[0] != "+2348031234567|code 123456" {
		t.Fatalf("unexpected sms %v", *sent)
	}
}

func TestSendOTPSMSFailureKeepsRecord(t *testing.T) {
	codes := &fakeCodes{}
	deps, _ := sendDeps(newFakeGuard(), codes, true, errors.New("gateway down"))

	res := RunSendOTP(context.Background(), "+2348031234567", deps)
	if res.Failure != OTPFailureSMS {
		t.Fatalf("expected sms failure, got %v", res.Failure)
	}
	if _, ok := codes.saved["+2348031234567"]; !ok {
		t.Fatal("record must survive a failed send")
	}
}

func TestSendOTPRefusedWhenLockedOrThrottled(t *testing.T) {
	guard := newFakeGuard()
	guard.locked["otp:+2348031234567"] = limiters.LockStatus{Locked: true, Reason: limiters.ReasonOTPFailures}
	deps, sent := sendDeps(guard, &fakeCodes{}, true, nil)

	if res := RunSendOTP(context.Background(), "+2348031234567", deps); res.Failure != OTPFailureLocked {
		t.Fatalf("expected locked, got %v", res.Failure)
	}

	deps, sent = sendDeps(newFakeGuard(), &fakeCodes{}, false, nil)
	if res := RunSendOTP(context.Background(), "+2348031234567", deps); res.Failure != OTPFailureRateLimited {
		t.Fatalf("expected rate limited, got %v", res.Failure)
	}
	if len(*sent) != 0 {
		t.Fatal("no sms expected")
	}
}

func TestVerifyOTPExceededLocksAndReports(t *testing.T) {
	guard := newFakeGuard()
	codes := &fakeCodes{verifyErr: stores.ErrOTPAttemptsExceeded, result: stores.OTPVerifyResult{Attempts: 5}}
	var reported []string

	deps := OTPVerifyDeps{
		Guard:        guard,
		Store:        codes,
		MaxAttempts:  5,
		LockDuration: 30 * time.Minute,
		Report: func(_ context.Context, id, reason string, meta map[string]string) {
			reported = append(reported, id+"|"+reason+"|"+meta["attempts"])
		},
		Now: func() time.Time { return fixedNow },
	}

	res := RunVerifyOTP(context.Background(), "+2348031234567", "000000", deps)
	if res.Failure != OTPFailureAttemptsExceeded {
		t.Fatalf("expected exceeded, got %v", res.Failure)
	}
	if !res.Lock.ExpiresAt.Equal(fixedNow.Add(30 * time.Minute)) {
		t.Fatalf("unexpected lock expiry %v", res.Lock.ExpiresAt)
	}
	if len(guard.lockedAt) != 1 || guard.lockedAt[0] != "otp:+2348031234567" {
		t.Fatalf("expected otp lock, got %v", guard.lockedAt)
	}
	if len(reported) != 1 || reported[0] != "+2348031234567|too many failed OTP attempts|5" {
		t.Fatalf("unexpected breach reports %v", reported)
	}

	codes.verifyErr = nil
	res = RunVerifyOTP(context.Background(), "+2348031234567", "123456", deps)
	if res.Failure != OTPFailureLocked {
		t.Fatalf("correct code after lockout must fail, got %v", res.Failure)
	}
}

func TestVerifyOTPLockCheckFailsClosed(t *testing.T) {
	guard := newFakeGuard()
	guard.lockErr = errors.New("redis down")

	res := RunVerifyOTP(context.Background(), "+2348031234567", "123456", OTPVerifyDeps{Guard: guard, Store: &fakeCodes{}})
	if res.Failure != OTPFailureLockCheck {
		t.Fatalf("expected lock check failure, got %v", res.Failure)
	}
}

func TestLoginLocksAtThreshold(t *testing.T) {
	guard := newFakeGuard()
	errNotFound := errors.New("not found")
	deps := LoginDeps{
		Guard: guard,
		GetUserByPhone: func(context.Context, string) (UserRecord, error) {
			return UserRecord{UserID: "u1", PasswordHash: "good"}, nil
		},
		VerifyPassword: func(pw, hash string) (bool, error) { return pw == hash, nil },
		DummyHash:      "dummy",
		UserNotFound:   errNotFound,
	}
	req := LoginRequest{Phone: "+2348031234567", Password: "bad"}

	for i := 0; i < 2; i++ {
		res := RunLogin(context.Background(), req, deps)
		if res.Failure != LoginFailureInvalidCredentials {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, res.Failure)
		}
	}
	res := RunLogin(context.Background(), req, deps)
	if res.Failure != LoginFailureLocked || !res.Lock.Locked {
		t.Fatalf("expected lock on third failure, got %+v", res)
	}
	if guard.cleared != 0 {
		t.Fatal("failures must not be cleared")
	}
}

func TestLoginUnknownUserCountsAsFailure(t *testing.T) {
	guard := newFakeGuard()
	errNotFound := errors.New("not found")
	deps := LoginDeps{
		Guard: guard,
		GetUserByPhone: func(context.Context, string) (UserRecord, error) {
			return UserRecord{}, errNotFound
		},
		VerifyPassword: func(string, string) (bool, error) { return false, nil },
		UserNotFound:   errNotFound,
	}

	res := RunLogin(context.Background(), LoginRequest{Phone: "+2348031234567", Password: "x"}, deps)
	if res.Failure != LoginFailureInvalidCredentials || guard.failures != 1 {
		t.Fatalf("expected counted invalid credentials, got %+v (failures=%d)", res, guard.failures)
	}
}
