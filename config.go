package go2fa

import (
	"errors"
	"strings"
	"time"
)

// Config groups every tunable of the 2FA engine. Build a value with
// DefaultConfig, adjust fields, and hand it to [Builder.WithConfig]; the
// engine keeps its own copy.
type Config struct {
	TOTP        TOTPConfig
	BackupCodes BackupCodeConfig
	Enrollment  EnrollmentConfig
	Concurrency ConcurrencyConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
	Security    SecurityConfig
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls secret generation and code matching.
//
// The defaults (SHA1, 6 digits, 30s, skew 1) are what common authenticator
// apps expect; changing them breaks enrollment with most of those apps.
type TOTPConfig struct {
	Issuer     string
	Digits     int
	Period     int
	Algorithm  string
	Skew       int
	SecretSize int

	// EnforceReplayProtection rejects a TOTP code whose time step is not
	// newer than the last accepted one for the same user.
	EnforceReplayProtection bool
}

/*
====================================
BACKUP CODE CONFIG
====================================
*/

// BackupCodeConfig controls recovery code generation and storage.
type BackupCodeConfig struct {
	Count  int
	Length int

	// StoreHashed keeps only a SHA-256 digest of each code. Codes are then
	// shown once at generation and ListBackupCodes returns used state only.
	StoreHashed bool
}

/*
====================================
ENROLLMENT CONFIG
====================================
*/

// EnrollmentConfig controls the pending-setup window.
type EnrollmentConfig struct {
	// PendingTTL bounds how long an unconfirmed secret stays usable. Zero
	// keeps pending secrets until overwritten.
	PendingTTL time.Duration
}

/*
====================================
CONCURRENCY CONFIG
====================================
*/

// ConcurrencyConfig tunes per-user serialization.
type ConcurrencyConfig struct {
	MaxCASRetries int
	LockShards    int
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds deployment posture switches.
type SecurityConfig struct {
	// ProductionMode applies stricter validation on top of the base rules.
	ProductionMode bool
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:                  "go2fa",
			Digits:                  6,
			Period:                  30,
			Algorithm:               "SHA1",
			Skew:                    1,
			SecretSize:              20,
			EnforceReplayProtection: false,
		},
		BackupCodes: BackupCodeConfig{
			Count:       10,
			Length:      8,
			StoreHashed: false,
		},
		Enrollment: EnrollmentConfig{
			PendingTTL: 10 * time.Minute,
		},
		Concurrency: ConcurrencyConfig{
			MaxCASRetries: 8,
			LockShards:    64,
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
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate checks field ranges and cross-field rules.
func (c *Config) Validate() error {
	// TOTP
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer must be set")
	}
	if strings.Contains(c.TOTP.Issuer, ":") {
		return errors.New("TOTP Issuer must not contain ':'")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 10 {
		return errors.New("TOTP Skew must be between 0 and 10")
	}
	// 64 bytes sealed and encoded still fits the stored secret field.
	if c.TOTP.SecretSize < 16 || c.TOTP.SecretSize > 64 {
		return errors.New("TOTP SecretSize must be between 16 and 64 bytes")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}

	// Backup codes
	if c.BackupCodes.Count < 2 {
		return errors.New("BackupCodes Count must be >= 2")
	}
	if c.BackupCodes.Count > 255 {
		return errors.New("BackupCodes Count must be <= 255")
	}
	// 5 bits per symbol; 8 symbols keeps each code above 32 bits.
	if c.BackupCodes.Length < 8 || c.BackupCodes.Length > 32 {
		return errors.New("BackupCodes Length must be between 8 and 32")
	}

	// Enrollment
	if c.Enrollment.PendingTTL < 0 {
		return errors.New("Enrollment PendingTTL must be >= 0")
	}

	// Concurrency
	if c.Concurrency.MaxCASRetries < 2 {
		return errors.New("Concurrency MaxCASRetries must be >= 2")
	}
	if c.Concurrency.LockShards <= 0 {
		return errors.New("Concurrency LockShards must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	if c.Security.ProductionMode {
		if !c.TOTP.EnforceReplayProtection {
			return errors.New("ProductionMode requires TOTP EnforceReplayProtection")
		}
		if c.TOTP.Skew > 2 {
			return errors.New("ProductionMode requires TOTP Skew <= 2")
		}
		if c.Enrollment.PendingTTL <= 0 || c.Enrollment.PendingTTL > time.Hour {
			return errors.New("ProductionMode requires Enrollment PendingTTL in (0, 1h]")
		}
	}

	return nil
}
