package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Expired entries are treated as absent
// on read and replaced by the next Set; nothing sweeps them.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an in-process store with the given TTL.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		entries: make(map[string]CacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Layer implements the metrics layer name.
func (s *MemoryStore) Layer() string { return "memory" }

// TTL returns the configured time-to-live.
func (s *MemoryStore) TTL() time.Duration { return s.ttl }

// Get returns the entry for key, or ErrCacheMiss if absent or expired.
func (s *MemoryStore) Get(_ context.Context, key CacheKey) (*CacheEntry, error) {
	s.mu.RLock()
	entry, ok := s.entries[key.String()]
	s.mu.RUnlock()

	if !ok || entry.IsExpired(s.ttl, s.now()) {
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

// Set stores entry under key, resetting its StoredAt to now.
func (s *MemoryStore) Set(_ context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	stored := *entry
	stored.Key = key.String()
	stored.StoredAt = s.now()

	s.mu.Lock()
	s.entries[stored.Key] = stored
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries held, fresh or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
