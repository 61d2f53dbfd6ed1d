package rate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, Config{OperationTimeout: time.Second}, nil), mr
}

var testPolicy = Policy{Name: "auth", Window: time.Minute, MaxRequests: 5}

func TestCheckAllowsUpToBudget(t *testing.T) {
	l, _ := newLimiterTest(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := l.Check(ctx, "ip:1.2.3.4", testPolicy)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("check %d should be allowed", i)
		}
		if d.Remaining != 5-i {
			t.Fatalf("check %d: expected remaining %d, got %d", i, 5-i, d.Remaining)
		}
	}

	d, err := l.Check(ctx, "ip:1.2.3.4", testPolicy)
	if err != nil {
		t.Fatalf("sixth check: %v", err)
	}
	if d.Allowed || d.Remaining != 0 || d.Count != 6 {
		t.Fatalf("sixth check should be denied, got %+v", d)
	}
	if got := d.RetryAfter(time.Now()); got < time.Second || got > time.Minute {
		t.Fatalf("unexpected retry-after %v", got)
	}
}

func TestWindowExpires(t *testing.T) {
	l, mr := newLimiterTest(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, _ = l.Check(ctx, "user:u1", testPolicy)
	}
	mr.FastForward(61 * time.Second)

	d, err := l.Check(ctx, "user:u1", testPolicy)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed || d.Count != 1 {
		t.Fatalf("expected fresh window, got %+v", d)
	}
}

func TestTTLSetOnlyByWindowCreator(t *testing.T) {
	l, mr := newLimiterTest(t)
	ctx := context.Background()

	if _, err := l.Check(ctx, "user:u1", testPolicy); err != nil {
		t.Fatalf("check: %v", err)
	}
	mr.FastForward(40 * time.Second)
	if _, err := l.Check(ctx, "user:u1", testPolicy); err != nil {
		t.Fatalf("check: %v", err)
	}

	ttl := mr.TTL(Key("auth", "user:u1"))
	if ttl > 20*time.Second {
		t.Fatalf("later request extended the window: ttl=%v", ttl)
	}
}

func TestConcurrentChecksAllowExactlyBudget(t *testing.T) {
	l, _ := newLimiterTest(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Check(ctx, "ip:9.9.9.9", testPolicy)
			if err != nil {
				t.Errorf("check: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 5 {
		t.Fatalf("expected exactly 5 allowed, got %d", allowed)
	}
}

func TestPoliciesAreIndependent(t *testing.T) {
	l, _ := newLimiterTest(t)
	ctx := context.Background()
	other := Policy{Name: "api", Window: time.Minute, MaxRequests: 1}

	for i := 0; i < 5; i++ {
		_, _ = l.Check(ctx, "ip:1.1.1.1", testPolicy)
	}
	d, err := l.Check(ctx, "ip:1.1.1.1", other)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatal("api policy must not share the auth counter")
	}
}

func TestFailOpenWhenRedisDown(t *testing.T) {
	l, mr := newLimiterTest(t)
	mr.Close()

	d, err := l.Check(context.Background(), "ip:1.2.3.4", testPolicy)
	if err != nil {
		t.Fatalf("expected fail-open without error, got %v", err)
	}
	if !d.Allowed || !d.Degraded || d.Remaining != testPolicy.MaxRequests {
		t.Fatalf("expected degraded allow, got %+v", d)
	}
}

func TestCheckRejectsBadInput(t *testing.T) {
	l, _ := newLimiterTest(t)
	ctx := context.Background()

	if _, err := l.Check(ctx, "", testPolicy); !errors.Is(err, ErrEmptyIdentifier) {
		t.Fatalf("expected ErrEmptyIdentifier, got %v", err)
	}
	if _, err := l.Check(ctx, "x", Policy{Name: "bad", MaxRequests: 1}); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestResetStartsFreshWindow(t *testing.T) {
	l, _ := newLimiterTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = l.Check(ctx, "user:u2", testPolicy)
	}
	if err := l.Reset(ctx, "user:u2", testPolicy); err != nil {
		t.Fatalf("reset: %v", err)
	}
	d, err := l.Check(ctx, "user:u2", testPolicy)
	if err != nil || d.Count != 1 {
		t.Fatalf("expected count 1 after reset, got %d (%v)", d.Count, err)
	}
}
