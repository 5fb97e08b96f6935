package go2fa

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/go2fa/internal/audit"
	"github.com/MrEthical07/go2fa/internal/backupcodes"
	"github.com/MrEthical07/go2fa/internal/keylock"
	"github.com/MrEthical07/go2fa/profile"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use: Build may succeed
// at most once.
type Builder struct {
	config Config

	store       profile.Store
	redis       redis.UniversalClient
	redisPrefix string
	sealKey     []byte

	auditSinks []AuditSink
	verifiers  []Verifier
	clock      func() time.Time
	randIndex  backupcodes.RandomIndex

	built bool
}

// New starts a Builder with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the profile store. It takes precedence over WithRedis.
func (b *Builder) WithStore(store profile.Store) *Builder {
	b.store = store
	return b
}

// WithRedis backs profiles with Redis under keyPrefix ("tfa" when empty).
func (b *Builder) WithRedis(client redis.UniversalClient, keyPrefix string) *Builder {
	b.redis = client
	b.redisPrefix = keyPrefix
	return b
}

// WithSealKey encrypts secrets and plaintext backup codes at rest with a
// 32-byte XChaCha20-Poly1305 key.
func (b *Builder) WithSealKey(key []byte) *Builder {
	b.sealKey = append([]byte(nil), key...)
	return b
}

// WithAuditSink adds a sink and enables the audit dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	if sink == nil {
		return b
	}
	b.auditSinks = append(b.auditSinks, sink)
	b.config.Audit.Enabled = true
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithVerifiers appends extra factor strategies. They are consulted after
// the built-in TOTP and backup code verifiers.
func (b *Builder) WithVerifiers(v ...Verifier) *Builder {
	for _, verifier := range v {
		if verifier != nil {
			b.verifiers = append(b.verifiers, verifier)
		}
	}
	return b
}

// WithClock overrides time.Now. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// withRandomIndex overrides the backup code alphabet source in tests.
func (b *Builder) withRandomIndex(fn backupcodes.RandomIndex) *Builder {
	b.randIndex = fn
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil && b.redis != nil {
		store = profile.NewRedisStore(b.redis, b.redisPrefix)
	}
	if store == nil {
		return nil, errors.New("profile store required")
	}
	if len(b.sealKey) > 0 {
		sealed, err := profile.NewSealedStore(store, b.sealKey)
		if err != nil {
			return nil, err
		}
		store = sealed
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	randIndex := b.randIndex
	if randIndex == nil {
		randIndex = backupcodes.CryptoRandomIndex
	}

	verifiers := []Verifier{
		NewTOTPVerifier(cfg.TOTP),
		NewBackupCodeVerifier(cfg.BackupCodes),
	}
	verifiers = append(verifiers, b.verifiers...)

	e := &Engine{
		config:      cfg,
		store:       store,
		totp:        newTOTPManager(cfg.TOTP),
		verifiers:   verifiers,
		locks:       keylock.New(cfg.Concurrency.LockShards),
		metrics:     NewMetrics(cfg.Metrics),
		now:         clock,
		randomIndex: randIndex,
	}
	if cfg.Audit.Enabled {
		sinks := make([]internalaudit.Sink, 0, len(b.auditSinks))
		for _, s := range b.auditSinks {
			sinks = append(sinks, s)
		}
		e.audit = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sinks...)
	}

	b.built = true
	return e, nil
}
