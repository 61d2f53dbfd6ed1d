package phoneauth

import (
	"context"
	"fmt"

	"github.com/MrEthical07/phoneauth/internal/rate"
)

// RatePolicy is one named fixed-window budget.
type RatePolicy = rate.Policy

// Standard rate limit policy names.
const (
	PolicyAPI      = rate.PolicyAPI
	PolicyAuth     = rate.PolicyAuth
	PolicyPayments = rate.PolicyPayments
	PolicyOTPSend  = rate.PolicyOTPSend
	PolicyRegister = rate.PolicyRegister
)

// CheckRate counts one request by identifier against the named policy.
//
// A denied request returns the decision together with a [RateLimitError].
// When the store is unreachable the request is allowed and the decision is
// marked Degraded.
func (e *Engine) CheckRate(ctx context.Context, identifier, policyName string) (RateDecision, error) {
	if e.limiter == nil {
		return RateDecision{}, ErrEngineNotReady
	}
	policy, ok := e.policy(policyName)
	if !ok {
		return RateDecision{}, fmt.Errorf("%w: unknown rate policy %q", ErrValidation, policyName)
	}
	if identifier == "" {
		return RateDecision{}, fmt.Errorf("%w: rate identifier required", ErrValidation)
	}

	d, err := e.limiter.Check(ctx, identifier, policy)
	if err != nil {
		return RateDecision{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	decision := toRateDecision(policy, d)
	if d.Degraded {
		e.metricInc(MetricRateLimitDegraded)
	}
	if !d.Allowed {
		e.emitRateLimit(ctx, policy.Name, identifier, decision)
		return decision, &RateLimitError{
			Policy:     policy.Name,
			Limit:      policy.MaxRequests,
			RetryAfter: d.RetryAfter(e.now()),
			ResetAt:    d.ResetAt,
		}
	}
	return decision, nil
}

// ResetRate clears identifier's current window for the named policy.
func (e *Engine) ResetRate(ctx context.Context, identifier, policyName string) error {
	policy, ok := e.policy(policyName)
	if !ok {
		return fmt.Errorf("%w: unknown rate policy %q", ErrValidation, policyName)
	}
	if err := e.limiter.Reset(ctx, identifier, policy); err != nil {
		return storeUnavailable(err)
	}
	return nil
}

func toRateDecision(policy rate.Policy, d rate.Decision) RateDecision {
	return RateDecision{
		Allowed:   d.Allowed,
		Limit:     policy.MaxRequests,
		Remaining: d.Remaining,
		ResetAt:   d.ResetAt,
		Degraded:  d.Degraded,
	}
}
