package phoneauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSendOTPDeliversCodeAndVerifyConsumesIt(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	res, err := e.SendOTP(ctx, testPhone)
	if err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if res.Phone != testPhone || res.Remaining != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if ttl := time.Until(res.ExpiresAt); ttl <= 4*time.Minute || ttl > 5*time.Minute {
		t.Fatalf("expected ~5m expiry, got %v", ttl)
	}

	msg := e.sms.message(testPhone)
	if !strings.HasPrefix(msg, "Your verification code is ") || !strings.HasSuffix(msg, ". It expires in 5 minutes.") {
		t.Fatalf("unexpected message %q", msg)
	}

	code := e.sms.code(t, testPhone)
	if err := e.VerifyOTP(ctx, testPhone, code); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if err := e.VerifyOTP(ctx, testPhone, code); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected code to be single use, got %v", err)
	}
}

func TestSendOTPNormalizesLocalNumbers(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())

	res, err := e.SendOTP(context.Background(), "0803 123-4567")
	if err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if res.Phone != testPhone {
		t.Fatalf("expected %s, got %s", testPhone, res.Phone)
	}
	if e.sms.message(testPhone) == "" {
		t.Fatal("expected message to the normalized number")
	}
}

func TestSendOTPRejectsInvalidPhone(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())

	if _, err := e.SendOTP(context.Background(), "+2341"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSendOTPRateLimitedAfterThreeSends(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.SendOTP(ctx, testPhone); err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
	}

	_, err := e.SendOTP(ctx, testPhone)
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("RateLimitError must match ErrRateLimited")
	}
	if rl.Policy != PolicyOTPSend || rl.Limit != 3 {
		t.Fatalf("unexpected error %+v", rl)
	}
	if rl.RetryAfter <= 0 || rl.RetryAfter > 10*time.Minute {
		t.Fatalf("unexpected retry after %v", rl.RetryAfter)
	}

	e.mr.FastForward(10 * time.Minute)
	if _, err := e.SendOTP(ctx, testPhone); err != nil {
		t.Fatalf("send after window: %v", err)
	}
}

func TestVerifyOTPMismatchCountsDownThenLocks(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	if _, err := e.SendOTP(ctx, testPhone); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	code := e.sms.code(t, testPhone)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for want := 4; want >= 1; want-- {
		err := e.VerifyOTP(ctx, testPhone, wrong)
		var mm *MismatchError
		if !errors.As(err, &mm) {
			t.Fatalf("expected MismatchError, got %v", err)
		}
		if mm.AttemptsRemaining != want {
			t.Fatalf("expected %d remaining, got %d", want, mm.AttemptsRemaining)
		}
	}

	err := e.VerifyOTP(ctx, testPhone, wrong)
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError on fifth failure, got %v", err)
	}
	if d := time.Until(locked.ExpiresAt); d < 29*time.Minute || d > 30*time.Minute {
		t.Fatalf("expected ~30m lock, got %v", d)
	}

	if err := e.VerifyOTP(ctx, testPhone, code); !errors.Is(err, ErrLocked) {
		t.Fatalf("correct code after lockout must fail, got %v", err)
	}

	calls := e.breachCalls()
	if len(calls) != 1 {
		t.Fatalf("expected one breach report, got %d", len(calls))
	}
	if calls[0].identifier != testPhone || calls[0].reason != "too many failed OTP attempts" {
		t.Fatalf("unexpected breach report %+v", calls[0])
	}

	status, err := e.IsOTPLocked(ctx, testPhone)
	if err != nil || !status.Locked {
		t.Fatalf("expected otp lock, got %+v %v", status, err)
	}
	if _, err := e.SendOTP(ctx, testPhone); !errors.Is(err, ErrLocked) {
		t.Fatalf("send while locked must fail, got %v", err)
	}
}

func TestOTPLockDoesNotBlockPasswordLogin(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	if _, err := e.SendOTP(ctx, testPhone); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	for i := 0; i < 5; i++ {
		_ = e.VerifyOTP(ctx, testPhone, "999999x")
	}
	if status, _ := e.IsLoginLocked(ctx, testPhone); status.Locked {
		t.Fatal("otp lockout must not write a login lock")
	}
}

func TestVerifyOTPExpiresAfterTTL(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	if _, err := e.SendOTP(ctx, testPhone); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	code := e.sms.code(t, testPhone)

	e.mr.FastForward(5*time.Minute + time.Second)
	if err := e.VerifyOTP(ctx, testPhone, code); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound after expiry, got %v", err)
	}
}

func TestVerifyOTPWithoutPendingCode(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())

	if err := e.VerifyOTP(context.Background(), testPhone, "123456"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound, got %v", err)
	}
}

func TestResendResetsAttempts(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	if _, err := e.SendOTP(ctx, testPhone); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	for i := 0; i < 2; i++ {
		_ = e.VerifyOTP(ctx, testPhone, "not-it")
	}

	if _, err := e.SendOTP(ctx, testPhone); err != nil {
		t.Fatalf("resend: %v", err)
	}
	err := e.VerifyOTP(ctx, testPhone, "not-it")
	var mm *MismatchError
	if !errors.As(err, &mm) || mm.AttemptsRemaining != 4 {
		t.Fatalf("expected fresh attempt budget, got %v", err)
	}
}

func TestSendOTPKeepsRecordWhenSMSFails(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()
	e.sms.fail = true

	if _, err := e.SendOTP(ctx, testPhone); !errors.Is(err, ErrSMSDeliveryFailed) {
		t.Fatalf("expected ErrSMSDeliveryFailed, got %v", err)
	}
	if err := e.VerifyOTP(ctx, testPhone, e.sms.code(t, testPhone)); err != nil {
		t.Fatalf("record should survive a failed send: %v", err)
	}
}

func TestVerifyOTPFailsClosedWhenStoreDown(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	e.mr.Close()

	err := e.VerifyOTP(context.Background(), testPhone, "123456")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if ErrorCode(err) != CodeServiceUnavailable {
		t.Fatalf("unexpected code %s", ErrorCode(err))
	}
}

func TestBreachReporterFailuresAreSwallowed(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	e.breach.panic = true
	ctx := context.Background()

	if _, err := e.SendOTP(ctx, testPhone); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	var err error
	for i := 0; i < 5; i++ {
		err = e.VerifyOTP(ctx, testPhone, "bad")
	}
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected lock despite reporter panic, got %v", err)
	}
	if len(e.breachCalls()) != 1 {
		t.Fatalf("expected the panicking reporter to be called once")
	}
}

type blockingBreach struct {
	done chan struct{}
}

func (b *blockingBreach) Report(ctx context.Context, _, _ string, _ map[string]string) error {
	<-ctx.Done()
	close(b.done)
	return ctx.Err()
}

func TestLockoutDoesNotWaitForBreachReporter(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Store.OperationTimeout = 2 * time.Second
	reporter := &blockingBreach{done: make(chan struct{})}
	e := newTestEngine(t, cfg, func(b *Builder) { b.WithBreachReporter(reporter) })
	ctx := context.Background()

	if _, err := e.SendOTP(ctx, testPhone); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := e.VerifyOTP(ctx, testPhone, "bad"); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i+1, err)
		}
	}

	start := time.Now()
	err := e.VerifyOTP(ctx, testPhone, "bad")
	elapsed := time.Since(start)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("lockout waited %v for the breach reporter", elapsed)
	}

	e.Close()
	select {
	case <-reporter.done:
	default:
		t.Fatal("Close returned before the pending report finished")
	}
}

func TestLoginWithOTPIssuesSession(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	if _, err := e.SendOTP(ctx, testPhone); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	res, err := e.LoginWithOTP(ctx, testPhone, e.sms.code(t, testPhone))
	if err != nil {
		t.Fatalf("LoginWithOTP: %v", err)
	}
	if res.User.UserID != "u1" || res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, _, err := e.ExchangeRefresh(ctx, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("session should be live: %v", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+2348031234567", "+2348031234567", true},
		{"2348031234567", "+2348031234567", true},
		{"08031234567", "+2348031234567", true},
		{"0803 123 4567", "+2348031234567", true},
		{"+2346031234567", "", false},
		{"+14155550123", "+14155550123", true},
		{"12", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in, "234")
		if tt.ok != (err == nil) {
			t.Fatalf("%q: unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("%q: expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
