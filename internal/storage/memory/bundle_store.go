// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/page-bundler/internal/bundle"
)

// DefaultTTL bounds how long an undelivered bundle is kept.
const DefaultTTL = time.Hour

type entry struct {
	result  bundle.Result
	expires time.Time
}

// BundleStore keeps pipeline results in a map with per-entry expiry.
// Expired entries are dropped lazily on access and by Sweep.
type BundleStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	clock   bundle.Clock
}

// NewBundleStore constructs a BundleStore. A non-positive ttl selects
// DefaultTTL.
func NewBundleStore(ttl time.Duration, clock bundle.Clock) *BundleStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BundleStore{
		entries: make(map[string]entry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Put stores result under result.ID, replacing any previous entry.
func (s *BundleStore) Put(_ context.Context, result bundle.Result) error {
	if result.ID == "" {
		return fmt.Errorf("result id is required")
	}
	result.Bundle = result.Bundle.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[result.ID] = entry{result: result, expires: s.clock.Now().Add(s.ttl)}
	return nil
}

// Get returns a copy of the stored result.
func (s *BundleStore) Get(_ context.Context, id string) (bundle.Result, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return bundle.Result{}, fmt.Errorf("%w: %s", bundle.ErrNotFound, id)
	}
	if !s.clock.Now().Before(e.expires) {
		s.evict(id, e.expires)
		return bundle.Result{}, fmt.Errorf("%w: %s", bundle.ErrNotFound, id)
	}
	out := e.result
	out.Bundle = e.result.Bundle.Clone()
	return out, nil
}

// Take returns the stored result and removes it.
func (s *BundleStore) Take(_ context.Context, id string) (bundle.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return bundle.Result{}, fmt.Errorf("%w: %s", bundle.ErrNotFound, id)
	}
	delete(s.entries, id)
	if !s.clock.Now().Before(e.expires) {
		return bundle.Result{}, fmt.Errorf("%w: %s", bundle.ErrNotFound, id)
	}
	return e.result, nil
}

// Delete removes the entry for id.
func (s *BundleStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("%w: %s", bundle.ErrNotFound, id)
	}
	delete(s.entries, id)
	return nil
}

// Sweep drops every expired entry and returns how many were removed.
func (s *BundleStore) Sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries, expired ones included.
func (s *BundleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evict removes id if it still carries the expiry observed by the caller.
func (s *BundleStore) evict(id string, expires time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok && e.expires.Equal(expires) {
		delete(s.entries, id)
	}
}
