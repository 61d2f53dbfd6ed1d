package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Policy is one named throttling budget.
type Policy struct {
	Name        string
	Window      time.Duration
	MaxRequests int
}

// Validate reports whether the policy can be enforced.
func (p Policy) Validate() error {
	if strings.TrimSpace(p.Name) == "" || strings.ContainsAny(p.Name, ": ") {
		return fmt.Errorf("%w: bad name %q", ErrInvalidPolicy, p.Name)
	}
	if p.Window < time.Millisecond {
		return fmt.Errorf("%w: window must be >= 1ms", ErrInvalidPolicy)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be > 0", ErrInvalidPolicy)
	}
	return nil
}

// Decision is the outcome of one counted request.
type Decision struct {
	Allowed   bool
	Count     int64
	Remaining int
	ResetAt   time.Time
	// Degraded is set when the store could not be reached and the request was
	// allowed without being counted.
	Degraded bool
}

// RetryAfter returns the wait until the window resets, rounded up to whole
// seconds and never below one second for a denied request.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait.Round(time.Second)
}

// Config holds limiter tuning parameters.
type Config struct {
	// OperationTimeout bounds each store attempt.
	OperationTimeout time.Duration
	// RetryBackoff is the pause before the single retry.
	RetryBackoff time.Duration
	Now          func() time.Time
}

// Limiter enforces fixed-window budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	logger *zap.Logger
}

// KEYS[1] = counter, ARGV[1] = window in ms. Returns {count, pttl}.
var incrWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config, logger *zap.Logger) *Limiter {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 2 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		logger: logger,
	}
}

// Key returns the Redis key holding the counter for identifier under policy.
func Key(policy, identifier string) string {
	return "rl:" + policy + ":" + identifier
}

// Check counts one request against policy for identifier.
//
// The returned error is non-nil only for invalid input; store failures
// fail open and are reported through Decision.Degraded.
func (l *Limiter) Check(ctx context.Context, identifier string, policy Policy) (Decision, error) {
	if err := policy.Validate(); err != nil {
		return Decision{}, err
	}
	if identifier == "" {
		return Decision{}, ErrEmptyIdentifier
	}

	key := Key(policy.Name, identifier)
	count, ttl, err := l.incrementWithTTL(ctx, key, policy.Window)
	if err != nil && ctx.Err() == nil {
		timer := time.NewTimer(l.config.RetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
			count, ttl, err = l.incrementWithTTL(ctx, key, policy.Window)
		}
	}

	now := l.config.Now()
	if err != nil {
		l.logger.Warn("rate limiter store unavailable, failing open",
			zap.String("policy", policy.Name),
			zap.Error(err),
		)
		return Decision{
			Allowed:   true,
			Remaining: policy.MaxRequests,
			ResetAt:   now.Add(policy.Window),
			Degraded:  true,
		}, nil
	}

	remaining := policy.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(policy.MaxRequests),
		Count:     count,
		Remaining: remaining,
		ResetAt:   now.Add(ttl),
	}, nil
}

// Reset clears the window for identifier under policy.
func (l *Limiter) Reset(ctx context.Context, identifier string, policy Policy) error {
	opCtx, cancel := context.WithTimeout(ctx, l.config.OperationTimeout)
	defer cancel()

	if err := l.redis.Del(opCtx, Key(policy.Name, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	opCtx, cancel := context.WithTimeout(ctx, l.config.OperationTimeout)
	defer cancel()

	return IncrementWindow(opCtx, l.redis, key, window)
}

// IncrementWindow atomically increments key and starts a window of the given
// length if the key was just created. It returns the post-increment count and
// the remaining window.
func IncrementWindow(ctx context.Context, rdb redis.Scripter, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrWindowScript.Run(ctx, rdb, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected script reply length %d", len(res))
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}
