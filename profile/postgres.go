package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxConn is the subset of pgxpool.Pool / pgx.Conn / pgx.Tx used by PostgresStore.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	pgSelectProfile = `SELECT record FROM security_profiles WHERE user_id = $1`
	pgInsertProfile = `INSERT INTO security_profiles (user_id, record, version)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO NOTHING`
	pgUpdateProfile = `UPDATE security_profiles
SET record = $2, version = $3, updated_at = now()
WHERE user_id = $1 AND version = $4`
	pgUpsertProfile = `INSERT INTO security_profiles (user_id, record, version)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE
SET record = EXCLUDED.record, version = EXCLUDED.version, updated_at = now()`
)

// PostgresStore persists profiles in the security_profiles table (see
// Migrate). The version column mirrors Profile.Version and guards
// CompareAndSwap with a conditional UPDATE.
type PostgresStore struct {
	db PgxConn
}

// NewPostgresStore wraps a pgx pool or connection.
func NewPostgresStore(db PgxConn) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*Profile, error) {
	var data []byte
	if err := s.db.QueryRow(ctx, pgSelectProfile, userID).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) Put(ctx context.Context, p *Profile) error {
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
	if _, err := s.db.Exec(ctx, pgUpsertProfile, next.UserID, encoded, int64(next.Version)); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, expectedVersion uint64, next *Profile) (bool, error) {
	if next == nil || next.UserID == "" {
		return false, errors.New("profile: user id required")
	}
	encoded, err := Encode(next)
	if err != nil {
		return false, err
	}

	var tag pgconn.CommandTag
	if expectedVersion == 0 {
		tag, err = s.db.Exec(ctx, pgInsertProfile, next.UserID, encoded, int64(next.Version))
	} else {
		tag, err = s.db.Exec(ctx, pgUpdateProfile, next.UserID, encoded, int64(next.Version), int64(expectedVersion))
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return tag.RowsAffected() == 1, nil
}
