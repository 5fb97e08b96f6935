package profile

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// newTestPostgres connects to GO2FA_TEST_POSTGRES_DSN and applies migrations.
// The test is skipped when the variable is unset.
func newTestPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("GO2FA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GO2FA_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(pool.Close)

	db := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { _ = db.Close() })
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM security_profiles WHERE user_id LIKE 'pgtest-%'`); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	return pool
}

func TestPostgresStoreCAS(t *testing.T) {
	ctx := context.Background()
	s := NewPostgresStore(newTestPostgres(t))

	if _, err := s.Get(ctx, "pgtest-u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p := sampleProfile("pgtest-u1")
	ok, err := s.CompareAndSwap(ctx, 0, p)
	if err != nil || !ok {
		t.Fatalf("create CAS failed: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.CompareAndSwap(ctx, 0, p); ok {
		t.Fatal("duplicate create must fail")
	}

	next := p.Clone()
	next.DeviceCount = 3
	next.Version = 2
	if ok, err := s.CompareAndSwap(ctx, 5, next); err != nil || ok {
		t.Fatalf("stale CAS must fail: ok=%v err=%v", ok, err)
	}
	if ok, err := s.CompareAndSwap(ctx, 1, next); err != nil || !ok {
		t.Fatalf("CAS failed: ok=%v err=%v", ok, err)
	}

	got, err := s.Get(ctx, "pgtest-u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.DeviceCount != 3 || got.Version != 2 {
		t.Fatalf("unexpected profile: %+v", got)
	}

	if err := s.Put(ctx, sampleProfile("pgtest-u1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, _ = s.Get(ctx, "pgtest-u1")
	if got.Version != 1 {
		t.Fatalf("Put should overwrite version, got %d", got.Version)
	}
}
