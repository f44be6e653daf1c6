package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was absent or expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultTTL is how long a successful response stays fresh.
const DefaultTTL = 300 * time.Second

// CacheEntry is a cached, already-shaped upstream result.
type CacheEntry struct {
	// Key is the string form of the CacheKey this entry was stored under
	Key string `json:"key"`

	// Data is the serialized value handed back to callers
	Data []byte `json:"data"`

	// StoredAt is when the entry was written
	StoredAt time.Time `json:"stored_at"`
}

// NewEntry creates an entry for key stored at now.
func NewEntry(key CacheKey, data []byte, now time.Time) *CacheEntry {
	return &CacheEntry{
		Key:      key.String(),
		Data:     data,
		StoredAt: now,
	}
}

// IsExpired reports whether now - StoredAt exceeds ttl.
func (e *CacheEntry) IsExpired(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.StoredAt) > ttl
}

// Age returns how long ago the entry was stored.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Store is the get/put contract every cache backend satisfies.
//
// Get returns ErrCacheMiss for absent or expired entries. Set overwrites any
// existing entry for the key.
type Store interface {
	Get(ctx context.Context, key CacheKey) (*CacheEntry, error)
	Set(ctx context.Context, key CacheKey, entry *CacheEntry) error
}

// layered is implemented by stores that report a metrics layer name.
type layered interface {
	Layer() string
}

func layerOf(s Store) string {
	if l, ok := s.(layered); ok {
		return l.Layer()
	}
	return "custom"
}
