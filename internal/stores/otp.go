package stores

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOTPNotFound         = errors.New("otp expired or not found")
	ErrOTPMismatch         = errors.New("otp mismatch")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

const (
	otpFieldHash      = "code_hash"
	otpFieldAttempts  = "attempts"
	otpFieldCreatedAt = "created_at"
)

// Script status codes.
const (
	otpStatusOK       = 0
	otpStatusMismatch = 1
	otpStatusLocked   = 2
	otpStatusNotFound = 3
)

// verifyOTPLua atomically checks one attempt against an OTP record.
// KEYS[1] = record key
// ARGV[1] = provided code hash (hex)
// ARGV[2] = max attempts
//
// Returns {status, attempts, stored_hash}. The attempt counter is bumped with
// HINCRBY so the record keeps its original expiry.
var verifyOTPLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {3, 0, ''}
end

local maxAttempts = tonumber(ARGV[2])
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0')
if attempts >= maxAttempts then
  redis.call('DEL', KEYS[1])
  return {2, attempts, ''}
end

local stored = redis.call('HGET', KEYS[1], 'code_hash') or ''
if stored == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return {0, attempts, stored}
end

attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if attempts >= maxAttempts then
  redis.call('DEL', KEYS[1])
  return {2, attempts, ''}
end
return {1, attempts, ''}
`)

// OTPVerifyResult describes a completed verify attempt.
type OTPVerifyResult struct {
	Attempts          int
	AttemptsRemaining int
}

// OTPStore persists pending OTP challenges keyed by identifier.
type OTPStore struct {
	redis   redis.UniversalClient
	prefix  string
	hashKey []byte
}

// NewOTPStore creates an OTP store. hashKey keys the HMAC applied to codes
// before they are written; an empty key falls back to plain SHA-256.
func NewOTPStore(redisClient redis.UniversalClient, prefix string, hashKey []byte) *OTPStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &OTPStore{
		redis:   redisClient,
		prefix:  prefix,
		hashKey: hashKey,
	}
}

func (s *OTPStore) key(identifier string) string {
	return s.prefix + ":" + identifier
}

func (s *OTPStore) hash(identifier, code string) string {
	if len(s.hashKey) == 0 {
		sum := sha256.Sum256([]byte(identifier + ":" + code))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, s.hashKey)
	mac.Write([]byte(identifier + ":" + code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Save creates or overwrites the pending record for identifier with a fresh
// attempt counter.
func (s *OTPStore) Save(ctx context.Context, identifier, code string, createdAt time.Time, ttl time.Duration) error {
	key := s.key(identifier)

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		otpFieldHash, s.hash(identifier, code),
		otpFieldAttempts, 0,
		otpFieldCreatedAt, createdAt.UnixMilli(),
	)
	pipe.PExpire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// Verify checks code against the pending record for identifier.
//
// It returns ErrOTPNotFound when nothing is pending, ErrOTPMismatch with the
// remaining attempts when the code is wrong, and ErrOTPAttemptsExceeded once
// the attempt budget is spent (the record is gone by then).
func (s *OTPStore) Verify(ctx context.Context, identifier, code string, maxAttempts int) (OTPVerifyResult, error) {
	provided := s.hash(identifier, code)

	raw, err := verifyOTPLua.Run(ctx, s.redis, []string{s.key(identifier)}, provided, maxAttempts).Slice()
	if err != nil {
		return OTPVerifyResult{}, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	if len(raw) != 3 {
		return OTPVerifyResult{}, fmt.Errorf("%w: unexpected lua result", ErrOTPRedisUnavailable)
	}
	status, _ := raw[0].(int64)
	attempts, _ := raw[1].(int64)
	stored, _ := raw[2].(string)

	result := OTPVerifyResult{
		Attempts:          int(attempts),
		AttemptsRemaining: maxAttempts - int(attempts),
	}
	if result.AttemptsRemaining < 0 {
		result.AttemptsRemaining = 0
	}

	switch status {
	case otpStatusOK:
		// Lua string equality is not constant-time.
		if subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) != 1 {
			return result, ErrOTPMismatch
		}
		return result, nil
	case otpStatusMismatch:
		return result, ErrOTPMismatch
	case otpStatusLocked:
		result.AttemptsRemaining = 0
		return result, ErrOTPAttemptsExceeded
	case otpStatusNotFound:
		return OTPVerifyResult{}, ErrOTPNotFound
	default:
		return OTPVerifyResult{}, fmt.Errorf("%w: unknown status %d", ErrOTPRedisUnavailable, status)
	}
}
