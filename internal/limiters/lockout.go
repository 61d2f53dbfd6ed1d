package limiters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/redis/go-redis/v9"
)

// Lockout namespaces.
const (
	NamespaceLogin = "login"
	NamespaceOTP   = "otp"
)

// Lockout reasons recorded on LockoutRecord.Reason.
const (
	ReasonLoginFailures = "too many failed login attempts"
	ReasonOTPFailures   = "too many failed OTP attempts"
)

// LockoutConfig holds configuration for the login guard.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
	// EnableIPThrottle also counts failures per client IP and locks "ip:<ip>".
	EnableIPThrottle bool
	OperationTimeout time.Duration
	Now              func() time.Time
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
	// ErrInvalidNamespace is returned for a namespace other than login or otp.
	ErrInvalidNamespace = errors.New("invalid lockout namespace")
)

// LockoutRecord is the stored form of an active lock.
type LockoutRecord struct {
	Identifier string    `json:"identifier"`
	Reason     string    `json:"reason"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	LockedAt   time.Time `json:"locked_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// FailureResult reports the effect of one recorded failure.
type FailureResult struct {
	ShouldLock        bool
	AttemptsRemaining int
	// ExpiresAt is set when ShouldLock is true.
	ExpiresAt time.Time
	// LockedIdentifier is the identifier the new lock was written for
	// (the account identifier or "ip:<ip>").
	LockedIdentifier string
}

// LockStatus is the result of a lock lookup.
type LockStatus struct {
	Locked    bool
	Reason    string
	ExpiresAt time.Time
}

// LockoutGuard tracks failed authentication attempts and the lockout
// records derived from them.
type LockoutGuard struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockoutGuard creates a new login guard.
func NewLockoutGuard(redisClient redis.UniversalClient, cfg LockoutConfig) *LockoutGuard {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 30 * time.Minute
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 2 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &LockoutGuard{redis: redisClient, config: cfg}
}

func failureKey(identifier string) string {
	return "flc:" + identifier
}

func ipFailureKey(ip string) string {
	return "flc:ip:" + ip
}

func lockKey(namespace, identifier string) string {
	return "lock:" + namespace + ":" + identifier
}

func validNamespace(namespace string) bool {
	return namespace == NamespaceLogin || namespace == NamespaceOTP
}

// RecordFailure increments the failure counters for identifier (and ip when
// IP throttling is enabled). When a counter reaches the threshold a login
// lock is written, the counter is cleared and ShouldLock is reported.
func (g *LockoutGuard) RecordFailure(ctx context.Context, identifier, ip, userAgent string) (FailureResult, error) {
	if identifier == "" {
		return FailureResult{}, errors.New("empty identifier")
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.OperationTimeout)
	defer cancel()

	count, _, err := rate.IncrementWindow(ctx, g.redis, failureKey(identifier), g.config.Duration)
	if err != nil {
		return FailureResult{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	result := FailureResult{AttemptsRemaining: g.config.Threshold - int(count)}
	if result.AttemptsRemaining < 0 {
		result.AttemptsRemaining = 0
	}

	if count >= int64(g.config.Threshold) {
		rec, err := g.lockAndReset(ctx, identifier, failureKey(identifier), ip, userAgent)
		if err != nil {
			return FailureResult{}, err
		}
		result.ShouldLock = true
		result.ExpiresAt = rec.ExpiresAt
		result.LockedIdentifier = identifier
		return result, nil
	}

	if g.config.EnableIPThrottle && ip != "" {
		ipCount, _, err := rate.IncrementWindow(ctx, g.redis, ipFailureKey(ip), g.config.Duration)
		if err != nil {
			return FailureResult{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
		if ipCount >= int64(g.config.Threshold) {
			rec, err := g.lockAndReset(ctx, "ip:"+ip, ipFailureKey(ip), ip, userAgent)
			if err != nil {
				return FailureResult{}, err
			}
			result.ShouldLock = true
			result.AttemptsRemaining = 0
			result.ExpiresAt = rec.ExpiresAt
			result.LockedIdentifier = "ip:" + ip
		}
	}

	return result, nil
}

func (g *LockoutGuard) lockAndReset(ctx context.Context, identifier, counterKey, ip, userAgent string) (LockoutRecord, error) {
	now := g.config.Now()
	rec := LockoutRecord{
		Identifier: identifier,
		Reason:     ReasonLoginFailures,
		IP:         ip,
		UserAgent:  userAgent,
		LockedAt:   now,
		ExpiresAt:  now.Add(g.config.Duration),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return LockoutRecord{}, err
	}

	pipe := g.redis.TxPipeline()
	pipe.Set(ctx, lockKey(NamespaceLogin, identifier), raw, g.config.Duration)
	pipe.Del(ctx, counterKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return LockoutRecord{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return rec, nil
}

// IsLocked reads the lockout record for identifier in namespace. Store errors
// are returned and callers must treat them as locked.
func (g *LockoutGuard) IsLocked(ctx context.Context, namespace, identifier string) (LockStatus, error) {
	if !validNamespace(namespace) {
		return LockStatus{}, ErrInvalidNamespace
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.OperationTimeout)
	defer cancel()

	raw, err := g.redis.Get(ctx, lockKey(namespace, identifier)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return LockStatus{}, nil
		}
		return LockStatus{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	var rec LockoutRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// An unreadable record still denies.
		return LockStatus{Locked: true}, nil
	}
	return LockStatus{Locked: true, Reason: rec.Reason, ExpiresAt: rec.ExpiresAt}, nil
}

// Lock writes a lockout record for identifier in namespace with the given TTL.
// A zero ttl uses the configured lockout duration. An existing lock is replaced.
func (g *LockoutGuard) Lock(ctx context.Context, namespace, identifier, reason string, ttl time.Duration) (LockoutRecord, error) {
	if !validNamespace(namespace) {
		return LockoutRecord{}, ErrInvalidNamespace
	}
	if ttl <= 0 {
		ttl = g.config.Duration
	}

	now := g.config.Now()
	rec := LockoutRecord{
		Identifier: identifier,
		Reason:     reason,
		LockedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return LockoutRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.OperationTimeout)
	defer cancel()

	if err := g.redis.Set(ctx, lockKey(namespace, identifier), raw, ttl).Err(); err != nil {
		return LockoutRecord{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return rec, nil
}

// Unlock lifts the lock for identifier in namespace. Missing locks are not an error.
func (g *LockoutGuard) Unlock(ctx context.Context, namespace, identifier string) error {
	if !validNamespace(namespace) {
		return ErrInvalidNamespace
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.OperationTimeout)
	defer cancel()

	if err := g.redis.Del(ctx, lockKey(namespace, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// Clear deletes the failure counters for identifier (and ip). Active lockout
// records are left in place.
func (g *LockoutGuard) Clear(ctx context.Context, identifier, ip string) error {
	keys := []string{failureKey(identifier)}
	if g.config.EnableIPThrottle && ip != "" {
		keys = append(keys, ipFailureKey(ip))
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.OperationTimeout)
	defer cancel()

	if err := g.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// FailureCount returns the current failure count for identifier.
func (g *LockoutGuard) FailureCount(ctx context.Context, identifier string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.OperationTimeout)
	defer cancel()

	count, err := g.redis.Get(ctx, failureKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}
