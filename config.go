package phoneauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneauth/internal/rate"
)

// Config holds every tunable of the engine. Start from [DefaultConfig] and
// override what you need; [Builder.Build] validates it.
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	OTP       OTPConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	Password  PasswordConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access and refresh token signing.
//
// For hs256 PrivateKey and RefreshPrivateKey are shared secrets and must
// differ. For ed25519 they are private keys; PublicKey is required and
// RefreshPublicKey is derived when omitted.
type JWTConfig struct {
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	SigningMethod     string // "hs256" (default) or "ed25519"
	PrivateKey        []byte
	PublicKey         []byte
	RefreshPrivateKey []byte
	RefreshPublicKey  []byte
	Issuer            string
	Audience          string
	Leeway            time.Duration
	KeyID             string
}

// SessionConfig configures refresh session storage.
type SessionConfig struct {
	RedisPrefix string
}

// OTPConfig configures phone one-time codes.
type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
	RedisPrefix string
	// HashKey keys the HMAC applied to codes at rest. Empty falls back to SHA-256.
	HashKey []byte
	// MessageTemplate must contain exactly one %s for the code.
	MessageTemplate string
	// DefaultCountryCode is prefixed to local numbers during normalization.
	DefaultCountryCode string
}

// LockoutConfig configures failure counting and lockout records.
type LockoutConfig struct {
	Threshold        int
	Duration         time.Duration
	EnableIPThrottle bool
}

// RateLimitConfig holds the named request budgets.
type RateLimitConfig struct {
	Policies     map[string]rate.Policy
	RetryBackoff time.Duration
}

// StoreConfig bounds every backend call.
type StoreConfig struct {
	OperationTimeout time.Duration
}

// PasswordConfig holds argon2id parameters for password login.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds cross-cutting hardening switches.
type SecurityConfig struct {
	ProductionMode bool
	CSRFTokenTTL   time.Duration
	// MaskIdentifiersInLogs replaces all but the last four digits of phone numbers in logs.
	MaskIdentifiersInLogs bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the standard policy set: 24h access tokens, 30 day
// sessions, 6-digit OTPs valid for 5 minutes with 5 attempts, lockout after 5
// failures for 30 minutes, and the standard rate limit policies.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     24 * time.Hour,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "phoneauth",
		},
		Session: SessionConfig{
			RedisPrefix: "sess",
		},
		OTP: OTPConfig{
			Digits:             6,
			TTL:                5 * time.Minute,
			MaxAttempts:        5,
			RedisPrefix:        "otp",
			MessageTemplate:    "Your verification code is %s. It expires in 5 minutes.",
			DefaultCountryCode: "234",
		},
		Lockout: LockoutConfig{
			Threshold:        5,
			Duration:         30 * time.Minute,
			EnableIPThrottle: false,
		},
		RateLimit: RateLimitConfig{
			Policies:     rate.DefaultPolicies(),
			RetryBackoff: 25 * time.Millisecond,
		},
		Store: StoreConfig{
			OperationTimeout: 2 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode:        false,
			CSRFTokenTTL:          time.Hour,
			MaskIdentifiersInLogs: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.JWT.RefreshPrivateKey = cloneBytes(cfg.JWT.RefreshPrivateKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	out.OTP.HashKey = cloneBytes(cfg.OTP.HashKey)
	if cfg.RateLimit.Policies != nil {
		out.RateLimit.Policies = make(map[string]rate.Policy, len(cfg.RateLimit.Policies))
		for k, v := range cfg.RateLimit.Policies {
			out.RateLimit.Policies[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.RefreshPrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey and RefreshPrivateKey")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
		if len(c.JWT.RefreshPrivateKey) == 0 {
			return errors.New("ed25519 requires RefreshPrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// OTP
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if c.OTP.MessageTemplate == "" {
		return errors.New("OTP MessageTemplate is required")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Rate limits
	for name, p := range c.RateLimit.Policies {
		if p.Name != name {
			return fmt.Errorf("RateLimit policy %q has mismatched name %q", name, p.Name)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("RateLimit policy %q: %w", name, err)
		}
	}
	if _, ok := c.RateLimit.Policies[rate.PolicyOTPSend]; !ok {
		return errors.New("RateLimit policy otp_send is required")
	}

	// Store
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}
	if c.Store.OperationTimeout > 30*time.Second {
		return errors.New("Store OperationTimeout must be <= 30s")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Security
	if c.Security.CSRFTokenTTL <= 0 {
		return errors.New("Security CSRFTokenTTL must be > 0")
	}

	if c.Security.ProductionMode {
		if c.JWT.SigningMethod == "hs256" && (len(c.JWT.PrivateKey) < 32 || len(c.JWT.RefreshPrivateKey) < 32) {
			return errors.New("ProductionMode requires hs256 key length >= 256 bits")
		}
		if len(c.OTP.HashKey) < 16 {
			return errors.New("ProductionMode requires OTP HashKey >= 16 bytes")
		}
		if c.OTP.MaxAttempts > 5 {
			return errors.New("ProductionMode requires OTP MaxAttempts <= 5")
		}
		if c.OTP.TTL > 15*time.Minute {
			return errors.New("ProductionMode requires OTP TTL <= 15m")
		}
		if c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
	}

	return nil
}
