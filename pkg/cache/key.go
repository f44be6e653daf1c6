package cache

import (
	"net/url"
	"sort"
	"strings"
)

// keyPrefix namespaces gateway keys in shared backends.
const keyPrefix = "football"

// CacheKey identifies a cached upstream response.
// Credentials are deliberately not part of the key.
type CacheKey struct {
	// Endpoint is the upstream resource path (e.g. "/v4/competitions/PL/matches")
	Endpoint string

	// QueryParams are the query parameters that shape the response (e.g. matchday=5)
	QueryParams url.Values
}

// KeyFor builds the key for an upstream path and query.
func KeyFor(path string, query url.Values) CacheKey {
	return CacheKey{Endpoint: path, QueryParams: query}
}

// String generates a deterministic cache key string.
// Format: football:endpoint:query1=val1:query2=val2
//
// Example:
//
//	football:v4/competitions/PL/matches:matchday=5
func (k CacheKey) String() string {
	parts := []string{keyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, key+"="+strings.Join(values, ","))
		}
	}

	return strings.Join(parts, ":")
}
