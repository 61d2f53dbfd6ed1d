// Package config loads phoneauthd settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Insecure placeholder secrets shipped in sample .env files. Production mode
// refuses to start with them.
var placeholderSecrets = map[string]bool{
	"your-secret-key-change-in-production": true,
	"your-refresh-secret-key":              true,
}

// Config is the process configuration.
type Config struct {
	Environment string
	Port        string
	LogLevel    zapcore.Level

	RedisURL string
	// DatabaseURL is optional. Empty keeps organizer assignments in memory.
	DatabaseURL string

	AllowedOrigins []string
	OTPLogin       bool
	RequestTimeout time.Duration

	AfricasTalkingUsername string
	AfricasTalkingAPIKey   string
	AfricasTalkingSenderID string

	NATSURL      string
	KafkaBrokers []string

	Engine phoneauth.Config

	// Warnings collects fallbacks applied while loading. Log them once a
	// logger exists.
	Warnings []string
}

// Production reports whether ENVIRONMENT is production.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// Load reads .env (if present) and the environment. A missing .env is not an
// error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment.
func FromEnv() (*Config, error) {
	cfg := &Config{}

	cfg.Environment = firstEnv("development", "ENVIRONMENT", "NODE_ENV")
	cfg.Port = firstEnv("8000", "PORT")
	cfg.RedisURL = firstEnv("redis://localhost:6379", "REDIS_URL")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = zapcore.DebugLevel
	case "warn":
		cfg.LogLevel = zapcore.WarnLevel
	case "error":
		cfg.LogLevel = zapcore.ErrorLevel
	default:
		cfg.LogLevel = zapcore.InfoLevel
	}

	cfg.AllowedOrigins = splitList(firstEnv("http://localhost:3000", "ALLOWED_ORIGINS", "FRONTEND_URL"))
	cfg.OTPLogin = os.Getenv("OTP_LOGIN") == "true"
	cfg.RequestTimeout = cfg.envDuration("REQUEST_TIMEOUT", 30*time.Second)

	cfg.AfricasTalkingUsername = os.Getenv("AFRICASTALKING_USERNAME")
	cfg.AfricasTalkingAPIKey = os.Getenv("AFRICASTALKING_API_KEY")
	cfg.AfricasTalkingSenderID = os.Getenv("AFRICASTALKING_SENDER_ID")

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))

	eng := phoneauth.DefaultConfig()
	eng.JWT.PrivateKey = []byte(firstEnv("", "JWT_SECRET", "SECRET_KEY"))
	eng.JWT.RefreshPrivateKey = []byte(os.Getenv("JWT_REFRESH_SECRET"))
	eng.JWT.AccessTTL = time.Duration(cfg.envInt("ACCESS_TOKEN_EXPIRE_MINUTES", 24*60)) * time.Minute
	eng.JWT.RefreshTTL = time.Duration(cfg.envInt("REFRESH_TOKEN_EXPIRE_DAYS", 30)) * 24 * time.Hour
	eng.OTP.HashKey = []byte(os.Getenv("OTP_HASH_KEY"))
	if cc := os.Getenv("DEFAULT_COUNTRY_CODE"); cc != "" {
		eng.OTP.DefaultCountryCode = strings.TrimPrefix(cc, "+")
	}
	eng.Lockout.EnableIPThrottle = os.Getenv("LOCKOUT_IP_THROTTLE") == "true"
	eng.Audit.Enabled = os.Getenv("AUDIT_ENABLED") != "false"
	eng.Metrics.Enabled = os.Getenv("METRICS_ENABLED") != "false"
	eng.Metrics.EnableLatencyHistograms = os.Getenv("METRICS_LATENCY_HISTOGRAMS") == "true"
	eng.Security.ProductionMode = cfg.Production()
	cfg.Engine = eng

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Engine.JWT.PrivateKey) == 0 || len(c.Engine.JWT.RefreshPrivateKey) == 0 {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET are required")
	}
	if !c.Production() {
		return nil
	}
	if placeholderSecrets[string(c.Engine.JWT.PrivateKey)] || placeholderSecrets[string(c.Engine.JWT.RefreshPrivateKey)] {
		return errors.New("placeholder JWT secrets are not allowed in production")
	}
	if c.AfricasTalkingUsername == "" || c.AfricasTalkingAPIKey == "" {
		return errors.New("AFRICASTALKING_USERNAME and AFRICASTALKING_API_KEY are required in production")
	}
	if len(c.Engine.OTP.HashKey) == 0 {
		return errors.New("OTP_HASH_KEY is required in production")
	}
	return nil
}

func firstEnv(def string, keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// envInt reads key as a positive int, falling back to def.
func (c *Config) envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid %s=%q, using default %d", key, v, def))
		return def
	}
	return n
}

// envDuration reads key as a positive time.Duration, falling back to def.
func (c *Config) envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid %s=%q, using default %s", key, v, def))
		return def
	}
	return d
}
