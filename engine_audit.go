package phoneauth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	auditEventOTPSent            = "otp_sent"
	auditEventOTPSendFailure     = "otp_send_failure"
	auditEventOTPVerified        = "otp_verified"
	auditEventOTPVerifyFailure   = "otp_verify_failure"
	auditEventOTPLocked          = "otp_locked"
	auditEventLoginSuccess       = "login_success"
	auditEventUserRegistered     = "user_registered"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginLocked        = "login_locked"
	auditEventLoginUnlocked      = "login_unlocked"
	auditEventSessionIssued      = "session_issued"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventLogout             = "logout"
	auditEventRateLimitTriggered = "rate_limit_triggered"
	auditEventAccessDenied       = "access_denied"
	auditEventAssignmentCreated  = "assignment_created"
	auditEventAssignmentRemoved  = "assignment_removed"
)

// AuditErrorCode is the short error label carried in [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrOTPMismatch        AuditErrorCode = "otp_mismatch"
	auditErrLocked             AuditErrorCode = "locked"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrConflict           AuditErrorCode = "conflict"
	auditErrSMSDelivery        AuditErrorCode = "sms_delivery_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit hands one event to the dispatcher. metadataBuilder runs only
// when auditing is enabled.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	phone string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil || !e.config.Audit.Enabled {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        ulid.Make().String(),
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if phone != "" {
		event.Identifier = maskPhone(phone)
	}
	if rid, ok := metadata["resource_id"]; ok {
		event.ResourceID = rid
		delete(metadata, "resource_id")
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, policy, identifier string, decision RateDecision) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"policy":     policy,
			"identifier": identifier,
			"reset_at":   decision.ResetAt.UTC().Format(time.RFC3339),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrCSRFInvalid), errors.Is(err, ErrMissingResourceID):
		return auditErrValidation
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrOTPNotFound), errors.Is(err, ErrUserNotFound), errors.Is(err, ErrAssignmentNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrOTPMismatch):
		return auditErrOTPMismatch
	case errors.Is(err, ErrLocked):
		return auditErrLocked
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAssignmentConflict):
		return auditErrConflict
	case errors.Is(err, ErrSMSDeliveryFailed):
		return auditErrSMSDelivery
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
