package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxAttempts = 5
	defaultCooldown    = time.Minute
)

var (
	ErrRateLimited = errors.New("too many code attempts")
	ErrUnavailable = errors.New("attempt limiter unavailable")
)

// AttemptConfig holds thresholds for the code-attempt limiter.
type AttemptConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
	Prefix      string
}

// AttemptLimiter counts failed code submissions per user in a fixed window:
// the first failure starts the window, and once MaxAttempts failures are
// recorded the user is locked out until the window expires.
type AttemptLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int64
	cooldown    time.Duration
}

// NewAttemptLimiter creates a limiter. Zero-value fields in cfg fall back to
// defaults (5 attempts / 60s, prefix "tfa:att").
func NewAttemptLimiter(redisClient redis.UniversalClient, cfg AttemptConfig) *AttemptLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultCooldown
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "tfa:att"
	}
	return &AttemptLimiter{redis: redisClient, prefix: prefix, maxAttempts: int64(max), cooldown: cd}
}

func (l *AttemptLimiter) key(userID string) string {
	return l.prefix + ":" + userID
}

func (l *AttemptLimiter) Check(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrRateLimited
	}
	return nil
}

func (l *AttemptLimiter) RecordFailure(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	count, err := l.redis.Incr(ctx, l.key(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(userID), l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count >= l.maxAttempts {
		return ErrRateLimited
	}
	return nil
}

func (l *AttemptLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
