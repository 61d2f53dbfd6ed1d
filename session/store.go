package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps store failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrSessionNotFound is returned when the user has no live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshHashMismatch is returned when the presented refresh token is
	// not the one currently stored for the user.
	ErrRefreshHashMismatch = errors.New("refresh hash mismatch")
	// ErrSessionCorrupt is returned for an undecodable blob.
	ErrSessionCorrupt = errors.New("session corrupt")
)

// Store persists one session per user.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore returns a session store. An empty prefix defaults to "sess" and a
// nil now to time.Now; now decides when a stored session has expired.
func NewStore(redis redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if prefix == "" {
		prefix = "sess"
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:  redis,
		prefix: prefix,
		now:    now,
	}
}

func (s *Store) key(userID string) string {
	return s.prefix + ":" + userID
}

// Save writes sess for its user, replacing any previous session.
//
//	Performance: 1 Redis SET.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess.UserID == "" {
		return errors.New("session has no user id")
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(sess.UserID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the live session for userID.
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, userID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	if sess.ExpiresAt > 0 && s.now().Unix() >= sess.ExpiresAt {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Match returns the session for userID only when refreshHash equals the
// stored hash. The comparison is constant-time.
func (s *Store) Match(ctx context.Context, userID string, refreshHash [32]byte) (*Session, error) {
	sess, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(sess.RefreshHash[:], refreshHash[:]) != 1 {
		return nil, ErrRefreshHashMismatch
	}
	return sess, nil
}

// Delete removes the session for userID. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
