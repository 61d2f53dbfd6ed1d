package phoneauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/phoneauth/permission"
)

var (
	// ErrValidation is returned for malformed input (phone, code, ids).
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited is matched by every [RateLimitError].
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrOTPNotFound is returned when no OTP is pending for the identifier.
	ErrOTPNotFound = errors.New("otp expired or not found")
	// ErrOTPMismatch is matched by every [MismatchError].
	ErrOTPMismatch = errors.New("otp mismatch")
	// ErrLocked is matched by every [LockedError].
	ErrLocked = errors.New("temporarily locked")
	// ErrTokenInvalid is returned for a bad signature, expired token, or wrong token kind.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrSessionNotFound is returned when a refresh token is not the user's live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrForbidden is matched by every [ForbiddenError].
	ErrForbidden = errors.New("insufficient permissions")
	// ErrUnauthenticated is returned when a resource check has no caller.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrMissingResourceID is returned when a resource check has no resource.
	ErrMissingResourceID = errors.New("resource id required")
	// ErrAssignmentConflict is returned when a user already holds an assignment on a resource.
	ErrAssignmentConflict = errors.New("assignment already exists")
	// ErrAssignmentNotFound is returned by Unassign when there is nothing to remove.
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	// ErrUserExists is returned by registration when the phone number is taken.
	ErrUserExists = errors.New("phone number already registered")
	// ErrSMSDeliveryFailed is returned when the SMS gateway rejected an OTP message.
	// The OTP record is kept.
	ErrSMSDeliveryFailed = errors.New("failed to send OTP")
	// ErrStoreUnavailable wraps backend failures. Details are logged, never returned to clients.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrEngineNotReady   = errors.New("engine not initialized")
	ErrCSRFInvalid      = errors.New("invalid csrf token")
)

// RateLimitError reports a throttled request.
type RateLimitError struct {
	Policy     string
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s; retry after %s", e.Policy, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// MismatchError reports a wrong OTP with the attempts left before lockout.
type MismatchError struct {
	AttemptsRemaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("invalid OTP, %d attempts remaining", e.AttemptsRemaining)
}

func (e *MismatchError) Is(target error) bool { return target == ErrOTPMismatch }

// LockedError reports an active lockout.
type LockedError struct {
	Reason    string
	ExpiresAt time.Time
}

func (e *LockedError) Error() string {
	if e.ExpiresAt.IsZero() {
		return "temporarily locked"
	}
	return "temporarily locked until " + e.ExpiresAt.UTC().Format(time.RFC3339)
}

func (e *LockedError) Is(target error) bool { return target == ErrLocked }

// ForbiddenError carries both the required and the held permissions so clients
// can explain the denial.
type ForbiddenError struct {
	Required []permission.Permission
	Actual   []permission.Permission
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("insufficient permissions: required any of [%s], have [%s]",
		strings.Join(permission.Names(e.Required), ","),
		strings.Join(permission.Names(e.Actual), ","),
	)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// Stable machine-readable error codes.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	CodeNotFound           = "NOT_FOUND"
	CodeOTPMismatch        = "OTP_MISMATCH"
	CodeLocked             = "LOCKED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeAuthentication     = "AUTHENTICATION_ERROR"
	CodeMissingResourceID  = "MISSING_RESOURCE_ID"
	CodeConflict           = "CONFLICT"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeSMSDeliveryFailed  = "SMS_DELIVERY_FAILED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrorCode maps err to its stable code. Unknown errors map to INTERNAL_ERROR.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrCSRFInvalid):
		return CodeValidation
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrOTPNotFound), errors.Is(err, ErrUserNotFound), errors.Is(err, ErrAssignmentNotFound):
		return CodeNotFound
	case errors.Is(err, ErrOTPMismatch):
		return CodeOTPMismatch
	case errors.Is(err, ErrLocked):
		return CodeLocked
	case errors.Is(err, ErrTokenInvalid):
		return CodeInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrUnauthenticated):
		return CodeAuthentication
	case errors.Is(err, ErrMissingResourceID):
		return CodeMissingResourceID
	case errors.Is(err, ErrAssignmentConflict), errors.Is(err, ErrUserExists):
		return CodeConflict
	case errors.Is(err, ErrInvalidCredentials):
		return CodeInvalidCredentials
	case errors.Is(err, ErrSMSDeliveryFailed):
		return CodeSMSDeliveryFailed
	case errors.Is(err, ErrStoreUnavailable):
		return CodeServiceUnavailable
	default:
		return CodeInternal
	}
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
