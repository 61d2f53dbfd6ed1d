package rate

import "errors"

var (
	// ErrInvalidPolicy is returned for a policy without a name, window, or budget.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
	// ErrEmptyIdentifier is returned when the caller identity is blank.
	ErrEmptyIdentifier = errors.New("empty rate limit identifier")
	// ErrRedisUnavailable wraps store failures surfaced by Reset.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
