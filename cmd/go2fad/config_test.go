package main

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GO2FA_JWT_SECRET", strings.Repeat("s", 32))

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Store != "memory" || cfg.HTTPAddr != ":8080" || cfg.PendingTTL != 10*time.Minute {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.slogLevel() != slog.LevelInfo {
		t.Fatalf("unexpected log level %v", cfg.slogLevel())
	}
}

func TestLoadConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"short secret", map[string]string{"GO2FA_JWT_SECRET": "short"}},
		{"unknown store", map[string]string{"GO2FA_STORE": "etcd"}},
		{"postgres without dsn", map[string]string{"GO2FA_STORE": "postgres"}},
		{"bad seal key", map[string]string{"GO2FA_SEAL_KEY": "abcd"}},
		{"bad duration", map[string]string{"GO2FA_PENDING_TTL": "soon"}},
		{"shared audience", map[string]string{"GO2FA_JWT_AUDIENCE": "go2fa", "GO2FA_ASSERTION_AUDIENCE": "go2fa"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := tc.env["GO2FA_JWT_SECRET"]; !ok && tc.name != "missing secret" {
				t.Setenv("GO2FA_JWT_SECRET", strings.Repeat("s", 32))
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := loadConfig(); err == nil {
				t.Fatal("expected loadConfig to fail")
			}
		})
	}
}

func TestSealKeyDecodesHex(t *testing.T) {
	cfg := config{SealKey: strings.Repeat("ab", 32)}
	key, err := cfg.sealKey()
	if err != nil || len(key) != 32 {
		t.Fatalf("sealKey = %d bytes, %v", len(key), err)
	}
}

func TestTokenManagersKeepMFATokenOutOfBearerSlot(t *testing.T) {
	t.Setenv("GO2FA_JWT_SECRET", strings.Repeat("s", 32))
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	tokens, assertions, err := newTokenManagers(cfg)
	if err != nil {
		t.Fatalf("newTokenManagers failed: %v", err)
	}

	mfa, err := assertions.Issue("u1", "alice", "otp")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := tokens.Parse(mfa); err == nil {
		t.Fatal("bearer manager accepted an mfa_token")
	}
	if _, err := assertions.Parse(mfa); err != nil {
		t.Fatalf("assertion manager rejected its own token: %v", err)
	}

	bearer, err := tokens.Issue("u1", "alice", "pwd")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := assertions.Parse(bearer); err == nil {
		t.Fatal("assertion manager accepted a bearer token")
	}
}
