package phoneauth

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/phoneauth/internal"
	internalaudit "github.com/MrEthical07/phoneauth/internal/audit"
	"github.com/MrEthical07/phoneauth/internal/flows"
	"github.com/MrEthical07/phoneauth/internal/limiters"
	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/MrEthical07/phoneauth/internal/stores"
	"github.com/MrEthical07/phoneauth/jwt"
	"github.com/MrEthical07/phoneauth/password"
	"github.com/MrEthical07/phoneauth/rbac"
	"github.com/MrEthical07/phoneauth/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Engine is the identity, session and access-control core. Build one with
// [New] and share it; all methods are safe for concurrent use.
type Engine struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	redis        redis.UniversalClient
	userProvider UserProvider
	sms          SMSGateway
	breach       BreachReporter
	reports      sync.WaitGroup

	limiter      *rate.Limiter
	guard        *limiters.LockoutGuard
	otpStore     *stores.OTPStore
	sessionStore *session.Store
	resolver     *rbac.Resolver
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	flows        flows.Service
}

// Close waits for pending breach reports and drains the audit dispatcher.
// The Redis client and the assignment store belong to the caller and stay
// open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.reports.Wait()
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditFailed returns the number of audit events whose sink panicked.
func (e *Engine) AuditFailed() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Failed()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks the key-value store within the store timeout.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Store.OperationTimeout)
	defer cancel()

	d, err := e.sessionStore.Ping(ctx)
	if err != nil {
		return 0, storeUnavailable(err)
	}
	return d, nil
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Logger returns the engine's logger. It is never nil.
func (e *Engine) Logger() *zap.Logger {
	if e == nil || e.logger == nil {
		return zap.NewNop()
	}
	return e.logger
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, err error, fields ...zap.Field) {
	e.logger.Warn(msg, append(fields, zap.Error(err))...)
}

// phoneField renders a phone number for logs.
func (e *Engine) phoneField(phone string) zap.Field {
	if e.config.Security.MaskIdentifiersInLogs {
		return zap.String("phone", maskPhone(phone))
	}
	return zap.String("phone", phone)
}

// maskPhone keeps the last four digits.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}

func (e *Engine) policy(name string) (rate.Policy, bool) {
	p, ok := e.config.RateLimit.Policies[name]
	return p, ok
}

func (e *Engine) buildFlows() flows.Service {
	sessions := boundedSessions{store: e.sessionStore, timeout: e.config.Store.OperationTimeout}
	codes := boundedCodes{store: e.otpStore, timeout: e.config.Store.OperationTimeout}

	issue := flows.IssueDeps{
		CreateAccess:  e.jwtManager.CreateAccess,
		CreateRefresh: e.jwtManager.CreateRefresh,
		Sessions:      sessions,
		Now:           e.now,
	}

	warn := func(msg string, err error) { e.warn(msg, err) }

	var lookupUser func(ctx context.Context, userID string) (flows.UserRecord, error)
	if e.userProvider != nil {
		lookupUser = func(ctx context.Context, userID string) (flows.UserRecord, error) {
			u, err := e.userProvider.GetUserByID(ctx, userID)
			if err != nil {
				return flows.UserRecord{}, err
			}
			return toFlowUser(u), nil
		}
	}

	var getUserByPhone func(ctx context.Context, phone string) (flows.UserRecord, error)
	if e.userProvider != nil {
		getUserByPhone = func(ctx context.Context, phone string) (flows.UserRecord, error) {
			u, err := e.userProvider.GetUserByPhone(ctx, phone)
			if err != nil {
				return flows.UserRecord{}, err
			}
			return toFlowUser(u), nil
		}
	}

	sendPolicy := e.config.RateLimit.Policies[rate.PolicyOTPSend]

	return flows.New(flows.Deps{
		SendOTP: flows.OTPSendDeps{
			Guard:           e.guard,
			Limiter:         e.limiter,
			Store:           codes,
			Policy:          sendPolicy,
			TTL:             e.config.OTP.TTL,
			MessageTemplate: e.config.OTP.MessageTemplate,
			NewCode: func() (string, error) {
				return internal.NewOTP(e.config.OTP.Digits)
			},
			Send: e.sms.Send,
			Now:  e.now,
		},
		VerifyOTP: flows.OTPVerifyDeps{
			Guard:        e.guard,
			Store:        codes,
			MaxAttempts:  e.config.OTP.MaxAttempts,
			LockDuration: e.config.Lockout.Duration,
			Report:       e.reportBreach,
			Warn:         warn,
			Now:          e.now,
		},
		Login: flows.LoginDeps{
			Guard:          e.guard,
			CheckIPLock:    e.config.Lockout.EnableIPThrottle,
			GetUserByPhone: getUserByPhone,
			VerifyPassword: e.passwordHash.Verify,
			DummyHash:      e.passwordHash.DummyHash(),
			Issue:          issue,
			UserNotFound:   ErrUserNotFound,
			Warn:           warn,
		},
		Issue: issue,
		Refresh: flows.RefreshDeps{
			ParseRefresh:        e.jwtManager.ParseRefresh,
			Sessions:            sessions,
			LookupUser:          lookupUser,
			CreateAccess:        e.jwtManager.CreateAccess,
			Warn:                warn,
			SessionNotFound:     session.ErrSessionNotFound,
			RefreshHashMismatch: session.ErrRefreshHashMismatch,
		},
		Logout: flows.LogoutDeps{
			ParseAccess: e.jwtManager.ParseAccess,
			Sessions:    sessions,
		},
	})
}

func toFlowUser(u UserRecord) flows.UserRecord {
	return flows.UserRecord{
		UserID:       u.UserID,
		Phone:        u.Phone,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		State:        u.State,
	}
}

func fromFlowUser(u flows.UserRecord) UserRecord {
	return UserRecord{
		UserID:       u.UserID,
		Phone:        u.Phone,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		State:        u.State,
	}
}

func fromFlowTokens(t flows.TokenPair) TokenPair {
	return TokenPair{
		AccessToken:      t.AccessToken,
		AccessExpiresAt:  t.AccessExpiresAt,
		RefreshToken:     t.RefreshToken,
		RefreshExpiresAt: t.RefreshExpiresAt,
	}
}

func lockedError(status limiters.LockStatus) *LockedError {
	return &LockedError{Reason: status.Reason, ExpiresAt: status.ExpiresAt}
}

// boundedSessions applies the store timeout to every session call.
type boundedSessions struct {
	store   *session.Store
	timeout time.Duration
}

func (b boundedSessions) Save(ctx context.Context, sess *session.Session, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.store.Save(ctx, sess, ttl)
}

func (b boundedSessions) Match(ctx context.Context, userID string, refreshHash [32]byte) (*session.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.store.Match(ctx, userID, refreshHash)
}

func (b boundedSessions) Delete(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.store.Delete(ctx, userID)
}

// boundedCodes applies the store timeout to every OTP record call.
type boundedCodes struct {
	store   *stores.OTPStore
	timeout time.Duration
}

func (b boundedCodes) Save(ctx context.Context, identifier, code string, createdAt time.Time, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.store.Save(ctx, identifier, code, createdAt, ttl)
}

func (b boundedCodes) Verify(ctx context.Context, identifier, code string, maxAttempts int) (stores.OTPVerifyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.store.Verify(ctx, identifier, code, maxAttempts)
}
