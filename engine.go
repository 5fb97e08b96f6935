package go2fa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	internalaudit "github.com/MrEthical07/go2fa/internal/audit"
	"github.com/MrEthical07/go2fa/internal/backupcodes"
	"github.com/MrEthical07/go2fa/internal/keylock"
	"github.com/MrEthical07/go2fa/profile"
)

// Engine runs the 2FA lifecycle over a [profile.Store].
//
// Every mutating operation on one user is a single atomic update: it is
// serialized in-process per user and committed with a compare-and-swap on
// the profile version, so concurrent callers in other processes sharing the
// same store never interleave partial writes. Engine is safe for concurrent
// use once built.
type Engine struct {
	config      Config
	store       profile.Store
	totp        *totpManager
	verifiers   []Verifier
	locks       *keylock.Locker
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	now         func() time.Time
	randomIndex backupcodes.RandomIndex
	closed      atomic.Bool
}

// Close flushes queued audit events and stops the dispatcher. Operations
// called after Close return ErrEngineNotReady.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped on a full queue.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// observeLatency is deferred with the start time of an operation.
func (e *Engine) observeLatency(start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(MetricOperationLatency, time.Since(start))
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.totp == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

// maxUserIDLen matches the one-byte length prefix of the profile encoding.
const maxUserIDLen = 255

func validUserID(userID string) bool {
	return strings.TrimSpace(userID) != "" && len(userID) <= maxUserIDLen
}

// load returns the stored profile or a fresh disabled one when absent.
func (e *Engine) load(ctx context.Context, userID string) (*profile.Profile, error) {
	p, err := e.store.Get(ctx, userID)
	if errors.Is(err, profile.ErrNotFound) {
		return &profile.Profile{UserID: userID}, nil
	}
	if err != nil {
		e.metricInc(MetricStoreError)
		return nil, storeError(err)
	}
	if p == nil {
		return &profile.Profile{UserID: userID}, nil
	}
	return p, nil
}

// mutation edits a private copy of the profile. Returning write=false leaves
// the store untouched. The returned error is handed back to the caller after
// the write (if any) commits, so a mutation can persist cleanup and still
// report failure.
type mutation func(p *profile.Profile, now time.Time) (write bool, err error)

// update runs fn as one atomic read-modify-write for userID. fn may run more
// than once when another writer wins the compare-and-swap; it must derive
// all of its results from the profile it is given.
func (e *Engine) update(ctx context.Context, userID string, fn mutation) (*profile.Profile, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	for attempt := 0; attempt < e.config.Concurrency.MaxCASRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, err := e.load(ctx, userID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		write, opErr := fn(next, e.now())
		if !write {
			return current, opErr
		}

		next.UserID = userID
		next.Version = current.Version + 1
		if err := next.Validate(0); err != nil {
			return nil, fmt.Errorf("go2fa: refusing inconsistent profile write: %w", err)
		}

		ok, err := e.store.CompareAndSwap(ctx, current.Version, next)
		if err != nil {
			e.metricInc(MetricStoreError)
			return nil, storeError(err)
		}
		if ok {
			return next, opErr
		}
		e.metricInc(MetricStoreConflict)
	}
	return nil, ErrConflict
}

// read loads a profile without taking the per-user lock.
func (e *Engine) read(ctx context.Context, userID string) (*profile.Profile, error) {
	return e.load(ctx, userID)
}

func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
