// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package profile

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a profile does not exist.
	ErrNotFound = errors.New("profile not found")

	// ErrQuotaReached is returned by ReserveUsage when the counter is already
	// at the quota.
	ErrQuotaReached = errors.New("quota exceeded")
)

// Store persists profiles. Implementations must make the usage methods
// atomic with respect to concurrent callers.
type Store interface {
	// Get returns a copy of the stored profile or ErrNotFound.
	Get(ctx context.Context, id string) (*Profile, error)

	// GetOrCreate returns the profile, creating a default one for unseen ids.
	GetOrCreate(ctx context.Context, id string) (*Profile, error)

	// Update applies u to the profile (creating it if needed) and returns the result.
	Update(ctx context.Context, id string, u Update) (*Profile, error)

	// IncrementUsage adds one to the usage counter and returns the new value.
	IncrementUsage(ctx context.Context, id string) (int, error)

	// ReserveUsage adds one to the usage counter only while it is below the
	// profile's tier quota and returns the new value. A full counter gives
	// ErrQuotaReached.
	ReserveUsage(ctx context.Context, id string) (int, error)

	// ReleaseUsage takes back one reserved query. The counter never drops below zero.
	ReleaseUsage(ctx context.Context, id string) (int, error)

	Close() error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]*Profile
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*Profile),
		now:      time.Now,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(_ context.Context, id string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(id).Clone(), nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, id string, u Update) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.getOrCreateLocked(id)
	u.Apply(p, s.now())
	return p.Clone(), nil
}

// IncrementUsage implements Store.
func (s *MemoryStore) IncrementUsage(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return 0, ErrNotFound
	}
	p.Usage++
	p.UpdatedAt = s.now()
	return p.Usage, nil
}

// ReserveUsage implements Store.
func (s *MemoryStore) ReserveUsage(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return 0, ErrNotFound
	}
	if p.OverQuota() {
		return p.Usage, ErrQuotaReached
	}
	p.Usage++
	p.UpdatedAt = s.now()
	return p.Usage, nil
}

// ReleaseUsage implements Store.
func (s *MemoryStore) ReleaseUsage(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return 0, ErrNotFound
	}
	if p.Usage > 0 {
		p.Usage--
		p.UpdatedAt = s.now()
	}
	return p.Usage, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) getOrCreateLocked(id string) *Profile {
	p, ok := s.profiles[id]
	if !ok {
		p = New(id, s.now())
		s.profiles[id] = p
	}
	return p
}
