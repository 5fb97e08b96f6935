package profile

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore is a process-local Store used by tests and single-node setups.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]*Profile
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*Profile)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// Put overwrites the record unconditionally. A zero Version is bumped to 1 so
// the record is distinguishable from "absent" for later CAS calls.
func (s *MemoryStore) Put(_ context.Context, p *Profile) error {
	if p == nil || p.UserID == "" {
		return errors.New("profile: user id required")
	}
	next := p.Clone()
	if next.Version == 0 {
		next.Version = 1
	}

	s.mu.Lock()
	s.profiles[next.UserID] = next
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, expectedVersion uint64, next *Profile) (bool, error) {
	if next == nil || next.UserID == "" {
		return false, errors.New("profile: user id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current uint64
	if existing, ok := s.profiles[next.UserID]; ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return false, nil
	}
	s.profiles[next.UserID] = next.Clone()
	return true, nil
}

// Len reports how many profiles are held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}
