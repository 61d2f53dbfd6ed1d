package phoneauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())

	token, exp, err := e.IssueAccessToken("u1", "attendee", "active")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if d := time.Until(exp); d < 23*time.Hour || d > 24*time.Hour {
		t.Fatalf("expected 24h expiry, got %v", d)
	}

	res, err := e.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if res.UserID != "u1" || res.Role != "attendee" || res.State != "active" {
		t.Fatalf("unexpected claims %+v", res)
	}

	if _, err := e.VerifyAccessToken(token + "x"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered token, got %v", err)
	}
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	refresh, err := e.IssueSession(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, err := e.VerifyAccessToken(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}

	access, _, err := e.IssueAccessToken("u1", "", "")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if _, _, err := e.ExchangeRefresh(ctx, access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
}

func TestExchangeRefreshUsesCurrentUserClaims(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	refresh, err := e.IssueSession(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	access, exp, err := e.ExchangeRefresh(ctx, refresh)
	if err != nil {
		t.Fatalf("ExchangeRefresh: %v", err)
	}
	if exp.IsZero() {
		t.Fatal("expected access expiry")
	}
	res, err := e.VerifyAccessToken(access)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if res.UserID != "u1" || res.Role != "attendee" {
		t.Fatalf("unexpected claims %+v", res)
	}

	// Not rotated: the same refresh token keeps working.
	if _, _, err := e.ExchangeRefresh(ctx, refresh); err != nil {
		t.Fatalf("second exchange: %v", err)
	}
}

func TestNewSessionReplacesPrevious(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	first, err := e.IssueSession(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	second, err := e.IssueSession(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	if _, _, err := e.ExchangeRefresh(ctx, first); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected old session to be replaced, got %v", err)
	}
	if _, _, err := e.ExchangeRefresh(ctx, second); err != nil {
		t.Fatalf("latest session must work: %v", err)
	}
}

func TestRevokeEndsSession(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	refresh, err := e.IssueSession(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if err := e.Revoke(ctx, "u1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := e.Revoke(ctx, "u1"); err != nil {
		t.Fatalf("Revoke must be idempotent: %v", err)
	}
	if _, _, err := e.ExchangeRefresh(ctx, refresh); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after revoke, got %v", err)
	}
}

func TestSessionExpiresWithTTL(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	if _, err := e.IssueSession(ctx, "u1"); err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	ttl := e.mr.TTL("sess:u1")
	if ttl < 29*24*time.Hour || ttl > 30*24*time.Hour {
		t.Fatalf("expected ~30 day session ttl, got %v", ttl)
	}
}

func TestExchangeRefreshFailsClosedWhenStoreDown(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	refresh, err := e.IssueSession(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	e.mr.Close()

	if _, _, err := e.ExchangeRefresh(ctx, refresh); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestConcurrentLoginsLeaveOneSession(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	const n = 8
	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := e.IssueSession(ctx, "u1")
			if err != nil {
				t.Errorf("IssueSession: %v", err)
				return
			}
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	live := 0
	for _, tok := range tokens {
		if _, _, err := e.ExchangeRefresh(ctx, tok); err == nil {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("expected exactly one live session, got %d", live)
	}
}

func TestLogoutByAccessToken(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	res, err := e.Login(ctx, testPhone, "correct-password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := e.LogoutByAccessToken(ctx, res.Tokens.AccessToken); err != nil {
		t.Fatalf("LogoutByAccessToken: %v", err)
	}
	if _, _, err := e.ExchangeRefresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if err := e.LogoutByAccessToken(ctx, "garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}
