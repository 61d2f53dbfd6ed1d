package phoneauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/phoneauth/permission"
	"github.com/MrEthical07/phoneauth/pipeline"
	"github.com/MrEthical07/phoneauth/rbac"
	"go.uber.org/zap"
)

// Resolve returns userID's role and effective permissions on resourceID.
// An owner holds every permission; a user with no relation gets an empty
// role and set. Store failures fail closed with ErrStoreUnavailable.
func (e *Engine) Resolve(ctx context.Context, userID, resourceID string) (Resolution, error) {
	if userID == "" {
		return Resolution{}, ErrUnauthenticated
	}
	if resourceID == "" {
		return Resolution{}, ErrMissingResourceID
	}

	res, err := e.resolver.Resolve(ctx, userID, resourceID)
	if err != nil {
		e.warn("permission resolution failed", err,
			zap.String("user_id", userID),
			zap.String("resource_id", resourceID),
		)
		return Resolution{}, storeUnavailable(err)
	}
	return res, nil
}

// Authorize succeeds when userID holds at least one of required on
// resourceID. A denial is a [ForbiddenError] listing both the required and
// the held permissions.
func (e *Engine) Authorize(ctx context.Context, userID, resourceID string, required ...permission.Permission) error {
	res, err := e.Resolve(ctx, userID, resourceID)
	if err != nil {
		e.metricInc(MetricAuthorizeDenied)
		return err
	}
	if res.Has(required...) {
		e.metricInc(MetricAuthorizeAllowed)
		return nil
	}

	e.metricInc(MetricAuthorizeDenied)
	denied := &ForbiddenError{
		Required: append([]permission.Permission(nil), required...),
		Actual:   res.Permissions.Permissions(),
	}
	e.emitAudit(ctx, auditEventAccessDenied, false, userID, "", denied, func() map[string]string {
		return map[string]string{
			"resource_id": resourceID,
			"required":    fmt.Sprint(permission.Names(required)),
		}
	})
	return denied
}

// Assign grants a role on a resource. A second assignment for the same
// pair returns ErrAssignmentConflict; existing rows are never updated.
func (e *Engine) Assign(ctx context.Context, a Assignment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = e.now().UTC()
	}
	if err := e.resolver.Assign(ctx, a); err != nil {
		return e.mapAssignmentError(err)
	}
	e.emitAudit(ctx, auditEventAssignmentCreated, true, a.UserID, "", nil, func() map[string]string {
		return map[string]string{
			"resource_id": a.ResourceID,
			"role":        string(a.Role),
		}
	})
	return nil
}

// Unassign removes the assignment of userID on resourceID.
func (e *Engine) Unassign(ctx context.Context, resourceID, userID string) error {
	if err := e.resolver.Unassign(ctx, resourceID, userID); err != nil {
		return e.mapAssignmentError(err)
	}
	e.emitAudit(ctx, auditEventAssignmentRemoved, true, userID, "", nil, func() map[string]string {
		return map[string]string{"resource_id": resourceID}
	})
	return nil
}

func (e *Engine) mapAssignmentError(err error) error {
	switch {
	case errors.Is(err, rbac.ErrConflict):
		return ErrAssignmentConflict
	case errors.Is(err, rbac.ErrNotFound):
		return ErrAssignmentNotFound
	case errors.Is(err, rbac.ErrInvalidAssignment):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		e.warn("assignment store failure", err)
		return storeUnavailable(err)
	}
}

// Request is the transport-independent input to the engine's checks.
type Request struct {
	// Identifier keys the rate limit, usually "user:<id>" or "ip:<addr>".
	Identifier  string
	Policy      string
	BearerToken string
	ResourceID  string
	// Auth is filled by AuthenticateCheck.
	Auth *AuthResult
}

// RateLimitCheck denies when the request's policy budget is spent. An
// empty policy or identifier is allowed.
func (e *Engine) RateLimitCheck() pipeline.Check[*Request] {
	return func(ctx context.Context, r *Request) pipeline.Decision {
		if r.Policy == "" || r.Identifier == "" {
			return pipeline.Allow()
		}
		if _, err := e.CheckRate(ctx, r.Identifier, r.Policy); err != nil {
			return pipeline.Deny(err)
		}
		return pipeline.Allow()
	}
}

// AuthenticateCheck verifies the bearer token and stores the result on the
// request.
func (e *Engine) AuthenticateCheck() pipeline.Check[*Request] {
	return func(_ context.Context, r *Request) pipeline.Decision {
		if r.BearerToken == "" {
			return pipeline.Deny(ErrUnauthenticated)
		}
		auth, err := e.VerifyAccessToken(r.BearerToken)
		if err != nil {
			return pipeline.Deny(err)
		}
		r.Auth = auth
		return pipeline.Allow()
	}
}

// PermissionCheck denies unless the authenticated caller holds one of
// required on the request's resource. It must run after AuthenticateCheck.
func (e *Engine) PermissionCheck(required ...permission.Permission) pipeline.Check[*Request] {
	return func(ctx context.Context, r *Request) pipeline.Decision {
		if r.Auth == nil {
			return pipeline.Deny(ErrUnauthenticated)
		}
		if err := e.Authorize(ctx, r.Auth.UserID, r.ResourceID, required...); err != nil {
			return pipeline.Deny(err)
		}
		return pipeline.Allow()
	}
}
