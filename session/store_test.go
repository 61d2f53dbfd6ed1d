package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	store := NewStore(rdb, "", nil)
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func testSession(jti, token string) *Session {
	now := time.Now()
	return &Session{
		UserID:      "u-1",
		Role:        "user",
		State:       "Lagos",
		TokenID:     jti,
		RefreshHash: HashRefreshToken(token),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(time.Hour).Unix(),
	}
}

func TestSaveOverwritesPreviousSession(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, testSession("jti-1", "first"), time.Hour); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.Save(ctx, testSession("jti-2", "second"), time.Hour); err != nil {
		t.Fatalf("save second: %v", err)
	}

	if _, err := store.Match(ctx, "u-1", HashRefreshToken("first")); !errors.Is(err, ErrRefreshHashMismatch) {
		t.Fatalf("expected first token to be invalidated, got %v", err)
	}
	sess, err := store.Match(ctx, "u-1", HashRefreshToken("second"))
	if err != nil {
		t.Fatalf("match second: %v", err)
	}
	if sess.Role != "user" || sess.State != "Lagos" || sess.TokenID != "jti-2" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestDeleteSessionIdempotent(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, testSession("jti-1", "t"), time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := store.Delete(ctx, "u-1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "u-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Get(ctx, "u-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionExpiresWithTTL(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, testSession("jti-1", "t"), time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}
	mr.FastForward(time.Hour + time.Second)
	if _, err := store.Get(ctx, "u-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestGetUsesStoreClockForExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()

	now := time.Unix(1_700_000_000, 0)
	store := NewStore(rdb, "", func() time.Time { return now })
	ctx := context.Background()

	sess := testSession("jti-1", "t")
	sess.CreatedAt = now.Unix()
	sess.ExpiresAt = now.Add(time.Hour).Unix()
	// The key outlives the recorded expiry so only the clock decides.
	if err := store.Save(ctx, sess, 2*time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	now = now.Add(59 * time.Minute)
	if _, err := store.Get(ctx, "u-1"); err != nil {
		t.Fatalf("expected live session before expiry, got %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := store.Get(ctx, "u-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound at expiry, got %v", err)
	}
}

func TestStoredBlobHoldsNoPlaintextToken(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()

	if err := store.Save(context.Background(), testSession("jti-1", "very-secret-refresh-token"), time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}
	raw, err := mr.Get("sess:u-1")
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if strings.Contains(raw, "very-secret-refresh-token") {
		t.Fatal("refresh token stored in plaintext")
	}
}

func TestCorruptBlob(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()

	if err := mr.Set("sess:u-1", "bad"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Get(context.Background(), "u-1"); !errors.Is(err, ErrSessionCorrupt) {
		t.Fatalf("expected ErrSessionCorrupt, got %v", err)
	}
}

func TestGetStoreDown(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	mr.Close()

	if _, err := store.Get(context.Background(), "u-1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
