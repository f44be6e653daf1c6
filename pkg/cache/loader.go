package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultFlightTimeout bounds one shared load once it is detached from the
// callers that started it.
const DefaultFlightTimeout = 60 * time.Second

// LoadFunc produces the value for a missing key.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Loader fronts a Store with single-flight loading: concurrent misses for
// the same key share one LoadFunc call.
type Loader struct {
	store         Store
	group         singleflight.Group
	logger        zerolog.Logger
	flightTimeout time.Duration
	now           func() time.Time
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithFlightTimeout overrides DefaultFlightTimeout.
func WithFlightTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) { l.flightTimeout = d }
}

// NewLoader creates a loader over store.
func NewLoader(store Store, logger zerolog.Logger, opts ...LoaderOption) *Loader {
	if store == nil {
		panic("cache store cannot be nil")
	}
	l := &Loader{
		store:         store,
		logger:        logger,
		flightTimeout: DefaultFlightTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GetOrLoad returns the cached value for key, loading it on a miss.
//
// The load runs on a context detached from the caller's cancellation so one
// caller leaving does not fail the others waiting on it; each caller still
// stops waiting when its own ctx ends. A successful load is stored before
// waiters are released. Failed loads are never stored.
//
// hit reports whether the value came straight from the store.
func (l *Loader) GetOrLoad(ctx context.Context, key CacheKey, load LoadFunc) (data []byte, hit bool, err error) {
	if data, ok := l.lookup(ctx, key); ok {
		return data, true, nil
	}

	k := key.String()
	ch := l.group.DoChan(k, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.flightTimeout)
		defer cancel()

		// A flight that finished just before this one started may have
		// filled the entry already.
		if data, ok := l.peek(flightCtx, key); ok {
			return data, nil
		}

		data, err := load(flightCtx)
		if err != nil {
			return nil, err
		}

		if err := l.store.Set(flightCtx, key, NewEntry(key, data, l.now())); err != nil {
			CacheErrors.WithLabelValues("set").Inc()
			l.logger.Warn().Err(err).Str("key", k).Msg("Failed to cache response")
		} else {
			l.logger.Debug().Str("key", k).Int("bytes", len(data)).Msg("Cached response")
		}
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			CacheCoalesced.Inc()
		}
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	case <-ctx.Done():
		return nil, false, fmt.Errorf("wait for %s: %w", k, ctx.Err())
	}
}

// lookup reads key and records hit/miss metrics. Store errors count as a
// miss so a broken backend degrades to uncached fetching.
func (l *Loader) lookup(ctx context.Context, key CacheKey) ([]byte, bool) {
	layer := layerOf(l.store)

	entry, err := l.store.Get(ctx, key)
	switch {
	case err == nil:
		CacheHits.WithLabelValues(layer).Inc()
		l.logger.Debug().Str("key", key.String()).Bool("cache_hit", true).Msg("Cache lookup")
		return entry.Data, true
	case errors.Is(err, ErrCacheMiss):
	default:
		CacheErrors.WithLabelValues("get").Inc()
		l.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
	}

	CacheMisses.WithLabelValues(layer).Inc()
	l.logger.Debug().Str("key", key.String()).Bool("cache_hit", false).Msg("Cache lookup")
	return nil, false
}

// peek reads key without touching metrics.
func (l *Loader) peek(ctx context.Context, key CacheKey) ([]byte, bool) {
	entry, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	return entry.Data, true
}
