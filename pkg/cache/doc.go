// Package cache provides the gateway's response cache.
//
// A cache entry holds an already-shaped upstream result keyed by the
// normalized (path, query) identity of the request that produced it:
//
// - Entries expire when now - stored_at > TTL (default 300s)
// - Expiry is lazy: stale entries read as misses and are overwritten by the next successful load
// - Failed loads are never stored
// - Concurrent misses for one key coalesce into a single load
//
// # Basic Usage
//
//	store := cache.NewMemoryStore(5 * time.Minute)
//	loader := cache.NewLoader(store, logger)
//
//	key := cache.KeyFor("/v4/competitions/PL/matches", url.Values{"matchday": {"5"}})
//
//	data, hit, err := loader.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
//		return fetchAndShape(ctx)
//	})
//
// # Backends
//
// MemoryStore is the default. RedisStore satisfies the same Store contract
// for deployments running several gateway processes:
//
//	store := cache.NewRedisStore(redisClient, 5*time.Minute)
//
// # Metrics
//
//   - football_cache_hits_total{layer} - Cache hits
//   - football_cache_misses_total{layer} - Cache misses
//   - football_cache_coalesced_total - Callers served by a shared load
//   - football_cache_entry_size_bytes{layer} - Size of the last entry touched
//   - football_cache_errors_total{operation} - Cache operation errors
package cache
