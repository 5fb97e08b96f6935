package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type config struct {
	HTTPAddr        string        `env:"GO2FA_HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"GO2FA_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"GO2FA_LOG_LEVEL" envDefault:"info"`

	Store       string `env:"GO2FA_STORE" envDefault:"memory"`
	RedisAddr   string `env:"GO2FA_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix string `env:"GO2FA_REDIS_PREFIX" envDefault:"tfa"`
	PostgresDSN string `env:"GO2FA_POSTGRES_DSN"`
	SealKey     string `env:"GO2FA_SEAL_KEY"`

	Issuer            string        `env:"GO2FA_ISSUER" envDefault:"go2fa"`
	PendingTTL        time.Duration `env:"GO2FA_PENDING_TTL" envDefault:"10m"`
	BackupCodesHashed bool          `env:"GO2FA_BACKUP_CODES_HASHED" envDefault:"false"`
	ReplayProtection  bool          `env:"GO2FA_REPLAY_PROTECTION" envDefault:"true"`
	AuditToStdout     bool          `env:"GO2FA_AUDIT_STDOUT" envDefault:"true"`

	JWTSecret         string        `env:"GO2FA_JWT_SECRET,required"`
	JWTIssuer         string        `env:"GO2FA_JWT_ISSUER"`
	JWTAudience       string        `env:"GO2FA_JWT_AUDIENCE" envDefault:"go2fa-api"`
	AssertionAudience string        `env:"GO2FA_ASSERTION_AUDIENCE" envDefault:"go2fa-mfa"`
	AssertionTTL      time.Duration `env:"GO2FA_ASSERTION_TTL" envDefault:"5m"`

	AttemptLimit   int           `env:"GO2FA_ATTEMPT_LIMIT" envDefault:"5"`
	AttemptWindow  time.Duration `env:"GO2FA_ATTEMPT_WINDOW" envDefault:"5m"`
	IPRateLimit    int           `env:"GO2FA_IP_RATE_LIMIT" envDefault:"100"`
	StepUpForCodes bool          `env:"GO2FA_STEP_UP_BACKUP_CODES" envDefault:"false"`
}

// loadConfig reads .env when present, then the process environment.
func loadConfig() (config, error) {
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse environment: %w", err)
	}

	switch cfg.Store {
	case "memory", "redis":
	case "postgres":
		if cfg.PostgresDSN == "" {
			return config{}, errors.New("GO2FA_POSTGRES_DSN is required for the postgres store")
		}
	default:
		return config{}, fmt.Errorf("GO2FA_STORE %q is not one of memory, redis, postgres", cfg.Store)
	}
	if len(cfg.JWTSecret) < 32 {
		return config{}, errors.New("GO2FA_JWT_SECRET must be at least 32 bytes")
	}
	// Both managers share the secret, so the audience is all that keeps an
	// mfa_token out of the bearer slot.
	if cfg.JWTAudience == "" || cfg.AssertionAudience == "" || cfg.JWTAudience == cfg.AssertionAudience {
		return config{}, errors.New("GO2FA_JWT_AUDIENCE and GO2FA_ASSERTION_AUDIENCE must be set and differ")
	}
	if _, err := cfg.sealKey(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) sealKey() ([]byte, error) {
	if c.SealKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.SealKey)
	if err != nil || len(key) != 32 {
		return nil, errors.New("GO2FA_SEAL_KEY must be 64 hex characters")
	}
	return key, nil
}

func (c config) slogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
