package response

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/permission"
	"go.uber.org/zap"
)

var statusByCode = map[string]int{
	phoneauth.CodeValidation:         http.StatusBadRequest,
	phoneauth.CodeRateLimited:        http.StatusTooManyRequests,
	phoneauth.CodeNotFound:           http.StatusNotFound,
	phoneauth.CodeOTPMismatch:        http.StatusUnauthorized,
	phoneauth.CodeLocked:             http.StatusLocked,
	phoneauth.CodeInvalidToken:       http.StatusUnauthorized,
	phoneauth.CodeSessionNotFound:    http.StatusUnauthorized,
	phoneauth.CodeForbidden:          http.StatusForbidden,
	phoneauth.CodeAuthentication:     http.StatusUnauthorized,
	phoneauth.CodeMissingResourceID:  http.StatusBadRequest,
	phoneauth.CodeConflict:           http.StatusConflict,
	phoneauth.CodeInvalidCredentials: http.StatusUnauthorized,
	phoneauth.CodeSMSDeliveryFailed:  http.StatusInternalServerError,
	phoneauth.CodeServiceUnavailable: http.StatusServiceUnavailable,
	phoneauth.CodeInternal:           http.StatusInternalServerError,
}

// Status returns the HTTP status for err.
func Status(err error) int {
	if status, ok := statusByCode[phoneauth.ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error writes err as an error envelope. Store and internal failures are
// logged through logger and answered with a generic message.
func Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	code := phoneauth.ErrorCode(err)
	status := Status(err)
	message := err.Error()
	var details map[string]any

	var (
		limited   *phoneauth.RateLimitError
		mismatch  *phoneauth.MismatchError
		locked    *phoneauth.LockedError
		forbidden *phoneauth.ForbiddenError
	)
	switch {
	case errors.As(err, &limited):
		SetRetryHeaders(w, limited.RetryAfter, limited.ResetAt)
		message = "Too many requests. Please try again later."
		details = map[string]any{
			"retry_after": retryAfterSeconds(limited.RetryAfter),
			"limit":       limited.Limit,
		}
	case errors.As(err, &mismatch):
		message = "Invalid OTP"
		details = map[string]any{"attempts_remaining": mismatch.AttemptsRemaining}
	case errors.As(err, &locked):
		message = "Too many failed attempts. Please try again later."
		if !locked.ExpiresAt.IsZero() {
			details = map[string]any{"locked_until": locked.ExpiresAt.UTC().Format(time.RFC3339)}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(time.Until(locked.ExpiresAt))))
		}
	case errors.As(err, &forbidden):
		message = "Insufficient permissions"
		details = map[string]any{
			"required": permission.Names(forbidden.Required),
			"actual":   permission.Names(forbidden.Actual),
		}
	}

	switch code {
	case phoneauth.CodeServiceUnavailable:
		logFailure(logger, "request failed: store unavailable", err)
		message = "Service temporarily unavailable"
	case phoneauth.CodeInternal:
		logFailure(logger, "request failed", err)
		message = "Internal server error"
	case phoneauth.CodeSMSDeliveryFailed:
		logFailure(logger, "otp delivery failed", err)
		message = "Failed to send OTP"
	case phoneauth.CodeInvalidToken:
		message = "Invalid or expired token"
	case phoneauth.CodeSessionNotFound:
		message = "Session expired or revoked"
	case phoneauth.CodeInvalidCredentials:
		message = "Invalid credentials"
	}

	WriteError(w, status, code, message, details)
}

// SetRateHeaders writes the rate limit headers for an answered request.
func SetRateHeaders(w http.ResponseWriter, decision phoneauth.RateDecision) {
	if decision.Limit <= 0 {
		return
	}
	h := w.Header()
	h.Set("X-Rate-Limit-Limit", strconv.Itoa(decision.Limit))
	h.Set("X-Rate-Limit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.ResetAt.IsZero() {
		h.Set("X-Rate-Limit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	}
}

// SetRetryHeaders writes the headers of a throttled response.
func SetRetryHeaders(w http.ResponseWriter, retryAfter time.Duration, resetAt time.Time) {
	h := w.Header()
	h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
	h.Set("X-Rate-Limit-Remaining", "0")
	if !resetAt.IsZero() {
		h.Set("X-Rate-Limit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	}
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

func logFailure(logger *zap.Logger, msg string, err error) {
	if logger == nil {
		return
	}
	logger.Error(msg, zap.Error(err))
}
