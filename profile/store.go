package profile

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no profile was ever written for a user.
	ErrNotFound = errors.New("profile not found")
	// ErrBackend wraps failures of the underlying storage technology.
	ErrBackend = errors.New("profile backend unavailable")
	// ErrInvalidRecord is returned when a stored record cannot be decoded.
	ErrInvalidRecord = errors.New("invalid profile record")
)

// Store is the persistence boundary for security profiles.
//
// CompareAndSwap writes next only if the stored Version equals
// expectedVersion (zero meaning "no record yet") and reports whether the
// write happened. Implementations set the stored Version to next.Version.
type Store interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	Put(ctx context.Context, p *Profile) error
	CompareAndSwap(ctx context.Context, expectedVersion uint64, next *Profile) (bool, error)
}
