package phoneauth

import (
	"context"
	"time"

	"github.com/MrEthical07/phoneauth/permission"
	"github.com/MrEthical07/phoneauth/rbac"
)

// UserRecord is the account view the engine needs for login flows.
// PasswordHash is an argon2id PHC string and may be empty for OTP-only users.
type UserRecord struct {
	UserID       string
	Phone        string
	PasswordHash string
	Role         string
	State        string
}

// UserProvider is implemented by the caller's user database. Lookups for a
// missing user must return an error matching [ErrUserNotFound].
type UserProvider interface {
	GetUserByPhone(ctx context.Context, phone string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
}

// SMSGateway delivers OTP messages.
type SMSGateway interface {
	Send(ctx context.Context, to, message string) error
}

// BreachReporter is told about lockouts. Calls are bounded by the store
// timeout; errors and panics are logged and never reach the caller.
type BreachReporter interface {
	Report(ctx context.Context, userID, reasonCode string, metadata map[string]string) error
}

// OTPSendResult is returned by [Engine.SendOTP].
type OTPSendResult struct {
	Phone     string
	ExpiresAt time.Time
	// Remaining is the number of sends left in the current window.
	Remaining int
}

// RateDecision is returned by [Engine.CheckRate].
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded means the store was unreachable and the request was let through.
	Degraded bool
}

// LockStatus is returned by the lockout queries.
type LockStatus struct {
	Locked    bool
	Reason    string
	ExpiresAt time.Time
	// Failures is the current failed-login count. Only login queries fill it.
	Failures int
}

// FailureResult is returned by [Engine.RecordLoginFailure].
type FailureResult struct {
	ShouldLock        bool
	AttemptsRemaining int
	ExpiresAt         time.Time
}

// TokenPair carries a fresh access token and the refresh token of the user's
// new session.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthResult is a verified access token.
type AuthResult struct {
	UserID    string
	Role      string
	State     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// LoginResult is returned by [Engine.Login] and [Engine.LoginWithOTP].
type LoginResult struct {
	User   UserRecord
	Tokens TokenPair
}

// Resolution is a caller's effective access on one resource.
type Resolution = rbac.Resolution

// Assignment grants a role on one resource.
type Assignment = rbac.Assignment

// AssignmentStore persists ownership and assignments.
type AssignmentStore = rbac.Store

// SecurityReport summarizes the engine's active security posture.
type SecurityReport struct {
	ProductionMode   bool
	SigningAlgorithm string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	OTPDigits        int
	OTPTTL           time.Duration
	OTPMaxAttempts   int
	OTPHashKeyed     bool
	LockoutThreshold int
	LockoutDuration  time.Duration
	IPThrottle       bool
	RatePolicies     []string
	Argon2           PasswordConfigReport
	RolePermissions  map[permission.Role][]string
	Warnings         []string
}

// PasswordConfigReport contains the Argon2 parameters active in the engine.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}
