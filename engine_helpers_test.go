package go2fa

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/go2fa/profile"
	"github.com/pquerna/otp/totp"
)

var testEpoch = time.Unix(1_700_000_000, 0).UTC()

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TOTP.Issuer = "go2fa-test"
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, store profile.Store) (*Engine, *testClock) {
	t.Helper()
	if store == nil {
		store = profile.NewMemoryStore()
	}
	clock := newTestClock()
	e, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e, clock
}

func codeAt(t testing.TB, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	return code
}

// enroll runs a full begin+confirm and returns the active secret and the
// backup codes handed out at confirmation.
func enroll(t testing.TB, e *Engine, clock *testClock, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enrollment, err := e.BeginEnrollment(ctx, userID, userID+"@example.com")
	if err != nil {
		t.Fatalf("BeginEnrollment failed: %v", err)
	}
	res, err := e.ConfirmEnrollment(ctx, userID, codeAt(t, enrollment.ManualEntryCode, clock.Now()))
	if err != nil {
		t.Fatalf("ConfirmEnrollment failed: %v", err)
	}
	return enrollment.ManualEntryCode, res.BackupCodes
}

func storedProfile(t *testing.T, e *Engine, userID string) *profile.Profile {
	t.Helper()
	p, err := e.store.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("store Get failed: %v", err)
	}
	return p
}
