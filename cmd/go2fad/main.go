// Command go2fad serves the 2FA API over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/go2fa"
	"github.com/MrEthical07/go2fa/httpapi"
	"github.com/MrEthical07/go2fa/internal/limiters"
	"github.com/MrEthical07/go2fa/internal/logattr"
	"github.com/MrEthical07/go2fa/jwt"
	promexport "github.com/MrEthical07/go2fa/metrics/export/prometheus"
	"github.com/MrEthical07/go2fa/profile"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "go2fad:", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.slogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("go2fad exited", logattr.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	var rdb redis.UniversalClient
	if cfg.Store == "redis" || cfg.AttemptLimit > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	store, closeStore, err := openStore(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	defer closeStore()

	sealKey, _ := cfg.sealKey()

	engineCfg := go2fa.DefaultConfig()
	engineCfg.TOTP.Issuer = cfg.Issuer
	engineCfg.TOTP.EnforceReplayProtection = cfg.ReplayProtection
	engineCfg.Enrollment.PendingTTL = cfg.PendingTTL
	engineCfg.BackupCodes.StoreHashed = cfg.BackupCodesHashed
	engineCfg.Metrics.Enabled = true
	engineCfg.Metrics.EnableLatencyHistograms = true

	builder := go2fa.New().WithConfig(engineCfg).WithStore(store)
	if sealKey != nil {
		builder = builder.WithSealKey(sealKey)
	}
	if cfg.AuditToStdout {
		builder = builder.WithAuditSink(go2fa.NewJSONWriterSink(os.Stdout))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	tokens, assertions, err := newTokenManagers(cfg)
	if err != nil {
		return err
	}

	var attempts *limiters.AttemptLimiter
	if cfg.AttemptLimit > 0 {
		attempts = limiters.NewAttemptLimiter(rdb, limiters.AttemptConfig{
			MaxAttempts: cfg.AttemptLimit,
			Cooldown:    cfg.AttemptWindow,
			Prefix:      cfg.RedisPrefix + ":att",
		})
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Options{
			Engine:               engine,
			Tokens:               tokens,
			Assertions:           assertions,
			Attempts:             attempts,
			IPRateLimit:          cfg.IPRateLimit,
			StepUpForBackupCodes: cfg.StepUpForCodes,
			Logger:               logger,
			Metrics:              promexport.NewExporter(engine).Handler(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.HTTPAddr), slog.String("store", cfg.Store))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config, rdb redis.UniversalClient) (profile.Store, func(), error) {
	switch cfg.Store {
	case "redis":
		return profile.NewRedisStore(rdb, cfg.RedisPrefix+":profile"), func() {}, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres ping: %w", err)
		}
		db := stdlib.OpenDBFromPool(pool)
		if err := profile.Migrate(ctx, db); err != nil {
			_ = db.Close()
			pool.Close()
			return nil, nil, err
		}
		_ = db.Close()
		return profile.NewPostgresStore(pool), pool.Close, nil
	default:
		return profile.NewMemoryStore(), func() {}, nil
	}
}

// newTokenManagers returns the bearer token manager and the mfa_token
// manager. They differ only in TTL and audience.
func newTokenManagers(cfg config) (*jwt.Manager, *jwt.Manager, error) {
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(cfg.JWTSecret),
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("token manager: %w", err)
	}
	assertions, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.AssertionTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(cfg.JWTSecret),
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.AssertionAudience,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("assertion manager: %w", err)
	}
	return tokens, assertions, nil
}
