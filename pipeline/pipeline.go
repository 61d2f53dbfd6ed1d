// Package pipeline composes request checks that are independent of any
// transport. A check returns a [Decision]; [Run] stops at the first denial.
package pipeline

import "context"

// Decision is the outcome of one check.
type Decision struct {
	Allowed bool
	Err     error
}

// Allow returns an allowing decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a denying decision carrying err.
func Deny(err error) Decision { return Decision{Allowed: false, Err: err} }

// Check inspects one input.
type Check[T any] func(ctx context.Context, in T) Decision

// Run evaluates checks in order and returns the first denial. A nil check
// is skipped. With no denial it returns Allow.
func Run[T any](ctx context.Context, in T, checks ...Check[T]) Decision {
	for _, check := range checks {
		if check == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Deny(err)
		}
		if d := check(ctx, in); !d.Allowed {
			return d
		}
	}
	return Allow()
}

// Error returns nil for an allowing decision and the denial error otherwise.
func (d Decision) Error() error {
	if d.Allowed {
		return nil
	}
	return d.Err
}
