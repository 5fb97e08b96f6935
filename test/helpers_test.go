//go:build integration

package test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/go2fa"
	"github.com/MrEthical07/go2fa/profile"
	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

// backend is one store configuration the integration suite runs against.
type backend struct {
	name string
	// open returns a builder factory; every engine it builds shares one store.
	open func(t *testing.T) func() *go2fa.Builder
}

// backends always includes miniredis and the in-memory store. A real
// standalone or cluster Redis is added when REDIS_ADDR or
// REDIS_CLUSTER_ADDRS is set.
func backends(t *testing.T) []backend {
	t.Helper()

	out := []backend{
		{
			name: "memory",
			open: func(t *testing.T) func() *go2fa.Builder {
				store := profile.NewMemoryStore()
				return func() *go2fa.Builder { return go2fa.New().WithStore(store) }
			},
		},
		{
			name: "miniredis",
			open: func(t *testing.T) func() *go2fa.Builder {
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close() })
				return func() *go2fa.Builder { return go2fa.New().WithRedis(rdb, "tfa-it") }
			},
		},
		{
			name: "miniredis+sealed",
			open: func(t *testing.T) func() *go2fa.Builder {
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close() })
				key := []byte(strings.Repeat("k", 32))
				return func() *go2fa.Builder { return go2fa.New().WithRedis(rdb, "tfa-it").WithSealKey(key) }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		out = append(out, backend{
			name: "standalone:" + addr,
			open: func(t *testing.T) func() *go2fa.Builder {
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				pingOrSkip(t, rdb)
				rdb.FlushDB(context.Background())
				t.Cleanup(func() { rdb.FlushDB(context.Background()); _ = rdb.Close() })
				return func() *go2fa.Builder { return go2fa.New().WithRedis(rdb, "tfa-it") }
			},
		})
	}

	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		out = append(out, backend{
			name: "cluster",
			open: func(t *testing.T) func() *go2fa.Builder {
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: strings.Split(addrs, ",")})
				pingOrSkip(t, rdb)
				t.Cleanup(func() { _ = rdb.Close() })
				prefix := "tfa-it-" + time.Now().Format("150405.000")
				return func() *go2fa.Builder { return go2fa.New().WithRedis(rdb, prefix) }
			},
		})
	}

	return out
}

func pingOrSkip(t *testing.T, rdb redis.UniversalClient) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("cannot connect to Redis: %v", err)
	}
}

func build(t *testing.T, b *go2fa.Builder) *go2fa.Engine {
	t.Helper()
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	return code
}

func enroll(t *testing.T, e *go2fa.Engine, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enrollment, err := e.BeginEnrollment(ctx, userID, userID+"@example.com")
	if err != nil {
		t.Fatalf("BeginEnrollment failed: %v", err)
	}
	res, err := e.ConfirmEnrollment(ctx, userID, currentCode(t, enrollment.ManualEntryCode))
	if err != nil {
		t.Fatalf("ConfirmEnrollment failed: %v", err)
	}
	return enrollment.ManualEntryCode, res.BackupCodes
}
