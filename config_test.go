package go2fa

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.TOTP.Digits != 6 || cfg.TOTP.Period != 30 || cfg.TOTP.Algorithm != "SHA1" || cfg.TOTP.Skew != 1 {
		t.Fatalf("unexpected TOTP defaults: %+v", cfg.TOTP)
	}
	if cfg.BackupCodes.Count != 10 || cfg.BackupCodes.Length != 8 || cfg.BackupCodes.StoreHashed {
		t.Fatalf("unexpected backup code defaults: %+v", cfg.BackupCodes)
	}
	if cfg.Enrollment.PendingTTL != 10*time.Minute {
		t.Fatalf("unexpected PendingTTL: %v", cfg.Enrollment.PendingTTL)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{"issuer blank", func(c *Config) { c.TOTP.Issuer = "  " }, false},
		{"issuer with colon", func(c *Config) { c.TOTP.Issuer = "acme:prod" }, false},
		{"eight digits", func(c *Config) { c.TOTP.Digits = 8 }, true},
		{"seven digits", func(c *Config) { c.TOTP.Digits = 7 }, false},
		{"short period", func(c *Config) { c.TOTP.Period = 10 }, false},
		{"negative skew", func(c *Config) { c.TOTP.Skew = -1 }, false},
		{"zero skew", func(c *Config) { c.TOTP.Skew = 0 }, true},
		{"small secret", func(c *Config) { c.TOTP.SecretSize = 10 }, false},
		{"largest secret", func(c *Config) { c.TOTP.SecretSize = 64 }, true},
		{"oversized secret", func(c *Config) { c.TOTP.SecretSize = 512 }, false},
		{"sha256", func(c *Config) { c.TOTP.Algorithm = "sha256" }, true},
		{"md5", func(c *Config) { c.TOTP.Algorithm = "MD5" }, false},
		{"one backup code", func(c *Config) { c.BackupCodes.Count = 1 }, false},
		{"short backup code", func(c *Config) { c.BackupCodes.Length = 6 }, false},
		{"long backup code", func(c *Config) { c.BackupCodes.Length = 16 }, true},
		{"negative ttl", func(c *Config) { c.Enrollment.PendingTTL = -time.Second }, false},
		{"no ttl", func(c *Config) { c.Enrollment.PendingTTL = 0 }, true},
		{"one cas retry", func(c *Config) { c.Concurrency.MaxCASRetries = 1 }, false},
		{"no lock shards", func(c *Config) { c.Concurrency.LockShards = 0 }, false},
		{"audit without buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }, false},
		{"latency without metrics", func(c *Config) { c.Metrics.EnableLatencyHistograms = true }, false},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(&cfg)
		err := cfg.Validate()
		if tt.wantValid && err != nil {
			t.Fatalf("%s: expected valid, got %v", tt.name, err)
		}
		if !tt.wantValid && err == nil {
			t.Fatalf("%s: expected validation error", tt.name)
		}
	}
}

func TestConfigProductionMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.ProductionMode = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("production mode without replay protection should fail")
	}

	cfg.TOTP.EnforceReplayProtection = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid production config, got %v", err)
	}

	cfg.Enrollment.PendingTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("production mode requires a pending TTL")
	}

	cfg.Enrollment.PendingTTL = 10 * time.Minute
	cfg.TOTP.Skew = 3
	if err := cfg.Validate(); err == nil {
		t.Fatal("production mode caps skew")
	}
}
