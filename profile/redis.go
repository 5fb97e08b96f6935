package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var errVersionMismatch = errors.New("profile version mismatch")

// RedisStore keeps one binary-encoded record per user under prefix:userID.
// CompareAndSwap uses WATCH/MULTI so concurrent writers across processes
// resolve to exactly one winner.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore builds a store on an existing client. An empty prefix
// defaults to "tfa".
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tfa"
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":" + userID
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*Profile, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	p, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return p, nil
}

func (s *RedisStore) Put(ctx context.Context, p *Profile) error {
	if p == nil || p.UserID == "" {
		return errors.New("profile: user id required")
	}
	next := p.Clone()
	if next.Version == 0 {
		next.Version = 1
	}
	encoded, err := Encode(next)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(next.UserID), encoded, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, expectedVersion uint64, next *Profile) (bool, error) {
	if next == nil || next.UserID == "" {
		return false, errors.New("profile: user id required")
	}
	encoded, err := Encode(next)
	if err != nil {
		return false, err
	}
	key := s.key(next.UserID)

	err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
		var current uint64
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			stored, err := Decode(data)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
			}
			current = stored.Version
		}
		if current != expectedVersion {
			return errVersionMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errVersionMismatch), errors.Is(err, redis.TxFailedErr):
		return false, nil
	case errors.Is(err, ErrInvalidRecord):
		return false, err
	default:
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
}
