package config

import (
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "access-secret-access-secret-0001")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret-refresh-secret-01")
}

func TestFromEnvDefaults(t *testing.T) {
	setSecrets(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "8000" || cfg.Environment != "development" || cfg.LogLevel != zapcore.InfoLevel {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Engine.JWT.AccessTTL != 24*time.Hour || cfg.Engine.JWT.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("unexpected token ttls %v %v", cfg.Engine.JWT.AccessTTL, cfg.Engine.JWT.RefreshTTL)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if len(cfg.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", cfg.Warnings)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	setSecrets(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "15")
	t.Setenv("DEFAULT_COUNTRY_CODE", "+254")
	t.Setenv("OTP_LOGIN", "true")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "9090" || cfg.LogLevel != zapcore.DebugLevel || !cfg.OTPLogin {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.Engine.JWT.AccessTTL != 15*time.Minute || cfg.Engine.OTP.DefaultCountryCode != "254" {
		t.Fatalf("unexpected engine config %+v", cfg.Engine.JWT)
	}
}

func TestFromEnvInvalidValuesWarn(t *testing.T) {
	setSecrets(t)
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "soon")
	t.Setenv("REQUEST_TIMEOUT", "-1s")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if len(cfg.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", cfg.Warnings)
	}
	if cfg.Engine.JWT.AccessTTL != 24*time.Hour || cfg.RequestTimeout != 30*time.Second {
		t.Fatal("defaults not applied after invalid values")
	}
}

func TestFromEnvRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SECRET_KEY", "")
	t.Setenv("JWT_REFRESH_SECRET", "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error without secrets")
	}
}

func TestFromEnvProductionChecks(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "your-secret-key-change-in-production")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret-refresh-secret-01")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected placeholder secret rejection")
	}

	setSecrets(t)
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected missing sms credentials error")
	}

	t.Setenv("AFRICASTALKING_USERNAME", "acme")
	t.Setenv("AFRICASTALKING_API_KEY", "key")
	t.Setenv("OTP_HASH_KEY", "otp-pepper-otp-pepper")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if !cfg.Engine.Security.ProductionMode {
		t.Fatal("production mode not propagated")
	}
}
