package phoneauth

import (
	"errors"
	"time"

	"github.com/MrEthical07/phoneauth/internal/limiters"
	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/MrEthical07/phoneauth/internal/stores"
	"github.com/MrEthical07/phoneauth/jwt"
	"github.com/MrEthical07/phoneauth/password"
	"github.com/MrEthical07/phoneauth/rbac"
	"github.com/MrEthical07/phoneauth/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/phoneauth/internal/audit"
)

// Builder collects configuration and collaborators for an [Engine].
// A Builder can be used for one Build call.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger *zap.Logger
	now    func() time.Time

	userProvider UserProvider
	sms          SMSGateway
	breach       BreachReporter
	auditSink    AuditSink
	assignments  AssignmentStore

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the store for every transient record. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Defaults to zap.NewNop.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for tokens, windows, lockouts and OTP records.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithUserProvider sets the user lookup used by Login, LoginWithOTP and
// refresh exchange.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithSMSGateway sets the OTP delivery collaborator. Required.
func (b *Builder) WithSMSGateway(gw SMSGateway) *Builder {
	b.sms = gw
	return b
}

// WithBreachReporter sets the collaborator told about lockouts.
func (b *Builder) WithBreachReporter(r BreachReporter) *Builder {
	b.breach = r
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithAssignmentStore sets the ownership and assignment store used by
// Resolve and Authorize. Without one, permission checks fail closed.
func (b *Builder) WithAssignmentStore(store AssignmentStore) *Builder {
	b.assignments = store
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.sms == nil {
		return nil, errors.New("sms gateway required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:       cfg,
		logger:       logger.Named("phoneauth"),
		now:          now,
		redis:        b.redis,
		userProvider: b.userProvider,
		sms:          b.sms,
		breach:       b.breach,
	}

	engine.limiter = rate.New(b.redis, rate.Config{
		OperationTimeout: cfg.Store.OperationTimeout,
		RetryBackoff:     cfg.RateLimit.RetryBackoff,
		Now:              now,
	}, engine.logger.Named("rate"))

	engine.guard = limiters.NewLockoutGuard(b.redis, limiters.LockoutConfig{
		Threshold:        cfg.Lockout.Threshold,
		Duration:         cfg.Lockout.Duration,
		EnableIPThrottle: cfg.Lockout.EnableIPThrottle,
		OperationTimeout: cfg.Store.OperationTimeout,
		Now:              now,
	})

	engine.otpStore = stores.NewOTPStore(b.redis, cfg.OTP.RedisPrefix, cfg.OTP.HashKey)
	engine.sessionStore = session.NewStore(b.redis, cfg.Session.RedisPrefix, now)
	engine.resolver = rbac.NewResolver(b.assignments, cfg.Store.OperationTimeout)
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:         cfg.JWT.AccessTTL,
		RefreshTTL:        cfg.JWT.RefreshTTL,
		SigningMethod:     jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:        cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:         cloneBytes(cfg.JWT.PublicKey),
		RefreshPrivateKey: cloneBytes(cfg.JWT.RefreshPrivateKey),
		RefreshPublicKey:  cloneBytes(cfg.JWT.RefreshPublicKey),
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
		Leeway:            cfg.JWT.Leeway,
		KeyID:             cfg.JWT.KeyID,
		Now:               now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	engine.flows = engine.buildFlows()

	b.built = true

	return engine, nil
}
