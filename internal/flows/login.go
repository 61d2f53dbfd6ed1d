package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/phoneauth/internal/limiters"
)

// LoginFailureKind classifies password login failures.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureLockCheck
	LoginFailureLocked
	LoginFailureInvalidCredentials
	LoginFailureProvider
	LoginFailureRecord
	LoginFailureHash
	LoginFailureIssue
)

type LoginGuard interface {
	IsLocked(ctx context.Context, namespace, identifier string) (limiters.LockStatus, error)
	RecordFailure(ctx context.Context, identifier, ip, userAgent string) (limiters.FailureResult, error)
	Clear(ctx context.Context, identifier, ip string) error
}

// LoginDeps captures password login dependencies.
type LoginDeps struct {
	Guard          LoginGuard
	CheckIPLock    bool
	GetUserByPhone func(ctx context.Context, phone string) (UserRecord, error)
	VerifyPassword func(password, encodedHash string) (bool, error)
	// DummyHash is verified against when the user does not exist so both
	// paths cost one hash evaluation.
	DummyHash    string
	Issue        IssueDeps
	UserNotFound error
	Warn         func(msg string, err error)
}

// LoginRequest is the flow-local login input.
type LoginRequest struct {
	Phone     string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult carries issued tokens or failure metadata.
type LoginResult struct {
	Failure           LoginFailureKind
	Err               error
	User              UserRecord
	Tokens            TokenPair
	Lock              limiters.LockStatus
	AttemptsRemaining int
	// LockedIdentifier is set when this attempt wrote the lockout.
	LockedIdentifier string
}

// RunLogin authenticates a phone and password. A locked identifier is
// refused before the password is checked. Each wrong password counts toward
// the lockout threshold and success clears the counters.
func RunLogin(ctx context.Context, req LoginRequest, deps LoginDeps) LoginResult {
	if res, locked := checkLoginLocks(ctx, req, deps); locked {
		return res
	}

	user, err := deps.GetUserByPhone(ctx, req.Phone)
	if err != nil && !errors.Is(err, deps.UserNotFound) {
		return LoginResult{Failure: LoginFailureProvider, Err: err}
	}
	found := err == nil

	hash := deps.DummyHash
	if found {
		hash = user.PasswordHash
	}
	ok, verr := deps.VerifyPassword(req.Password, hash)
	if verr != nil && found {
		return LoginResult{Failure: LoginFailureHash, Err: verr, User: user}
	}

	if !found || !ok {
		return recordLoginFailure(ctx, req, user, deps)
	}

	if err := deps.Guard.Clear(ctx, req.Phone, req.IP); err != nil && deps.Warn != nil {
		deps.Warn("clearing login failures failed", err)
	}

	issued := RunIssueSession(ctx, user, deps.Issue)
	if issued.Failure != IssueFailureNone {
		return LoginResult{Failure: LoginFailureIssue, Err: issued.Err, User: user}
	}
	return LoginResult{User: user, Tokens: issued.Tokens}
}

func checkLoginLocks(ctx context.Context, req LoginRequest, deps LoginDeps) (LoginResult, bool) {
	status, err := deps.Guard.IsLocked(ctx, limiters.NamespaceLogin, req.Phone)
	if err != nil {
		return LoginResult{Failure: LoginFailureLockCheck, Err: err}, true
	}
	if status.Locked {
		return LoginResult{Failure: LoginFailureLocked, Lock: status}, true
	}

	if deps.CheckIPLock && req.IP != "" {
		status, err = deps.Guard.IsLocked(ctx, limiters.NamespaceLogin, "ip:"+req.IP)
		if err != nil {
			return LoginResult{Failure: LoginFailureLockCheck, Err: err}, true
		}
		if status.Locked {
			return LoginResult{Failure: LoginFailureLocked, Lock: status}, true
		}
	}
	return LoginResult{}, false
}

func recordLoginFailure(ctx context.Context, req LoginRequest, user UserRecord, deps LoginDeps) LoginResult {
	res, err := deps.Guard.RecordFailure(ctx, req.Phone, req.IP, req.UserAgent)
	if err != nil {
		return LoginResult{Failure: LoginFailureRecord, Err: err, User: user}
	}
	if res.ShouldLock {
		return LoginResult{
			Failure:          LoginFailureLocked,
			User:             user,
			LockedIdentifier: res.LockedIdentifier,
			Lock: limiters.LockStatus{
				Locked:    true,
				Reason:    limiters.ReasonLoginFailures,
				ExpiresAt: res.ExpiresAt,
			},
		}
	}
	return LoginResult{
		Failure:           LoginFailureInvalidCredentials,
		User:              user,
		AttemptsRemaining: res.AttemptsRemaining,
	}
}
