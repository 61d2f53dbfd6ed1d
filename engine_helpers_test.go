package phoneauth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/phoneauth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPhone = "+2348031234567"

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func engineTestConfig() Config {
	cfg := testConfig()
	cfg.Password = PasswordConfig{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.Store.OperationTimeout = 500 * time.Millisecond
	cfg.RateLimit.RetryBackoff = time.Millisecond
	return cfg
}

type captureSMS struct {
	mu       sync.Mutex
	messages map[string]string
	fail     bool
}

func newCaptureSMS() *captureSMS {
	return &captureSMS{messages: map[string]string{}}
}

var codePattern = regexp.MustCompile(`\d{6}`)

func (s *captureSMS) Send(_ context.Context, to, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[to] = message
	if s.fail {
		return errors.New("gateway rejected message")
	}
	return nil
}

func (s *captureSMS) message(to string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[to]
}

func (s *captureSMS) code(t *testing.T, to string) string {
	t.Helper()
	code := codePattern.FindString(s.message(to))
	if code == "" {
		t.Fatalf("no code sent to %s", to)
	}
	return code
}

type breachCall struct {
	identifier string
	reason     string
	metadata   map[string]string
}

type captureBreach struct {
	mu    sync.Mutex
	calls []breachCall
	err   error
	panic bool
}

func (b *captureBreach) Report(_ context.Context, identifier, reason string, metadata map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, breachCall{identifier: identifier, reason: reason, metadata: metadata})
	if b.panic {
		panic("reporter exploded")
	}
	return b.err
}

// breachCalls waits for in-flight reports and returns what the reporter saw.
func (te *testEngine) breachCalls() []breachCall {
	te.reports.Wait()
	return te.breach.Calls()
}

func (b *captureBreach) Calls() []breachCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]breachCall(nil), b.calls...)
}

type fakeUsers struct {
	byPhone map[string]UserRecord
}

func newFakeUsers(t testing.TB, cfg Config, users ...UserRecord) *fakeUsers {
	t.Helper()
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}

	f := &fakeUsers{byPhone: map[string]UserRecord{}}
	for _, u := range users {
		if u.PasswordHash != "" {
			hash, err := hasher.Hash(u.PasswordHash)
			if err != nil {
				t.Fatalf("hash: %v", err)
			}
			u.PasswordHash = hash
		}
		f.byPhone[u.Phone] = u
	}
	return f
}

func (f *fakeUsers) GetUserByPhone(_ context.Context, phone string) (UserRecord, error) {
	u, ok := f.byPhone[phone]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (UserRecord, error) {
	for _, u := range f.byPhone {
		if u.UserID == id {
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

type testEngine struct {
	*Engine
	mr     *miniredis.Miniredis
	sms    *captureSMS
	breach *captureBreach
}

// newTestEngine builds an engine with one user u1 (phone testPhone,
// password "correct-password").
func newTestEngine(t testing.TB, cfg Config, opts ...func(*Builder)) *testEngine {
	t.Helper()

	mr, rdb := newTestRedis(t)
	sms := newCaptureSMS()
	breach := &captureBreach{}
	users := newFakeUsers(t, cfg, UserRecord{
		UserID:       "u1",
		Phone:        testPhone,
		PasswordHash: "correct-password",
		Role:         "attendee",
		State:        "active",
	})

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSMSGateway(sms).
		WithBreachReporter(breach).
		WithUserProvider(users)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, mr: mr, sms: sms, breach: breach}
}
