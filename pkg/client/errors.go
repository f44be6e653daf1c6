package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the retrier.
var (
	// ErrRetryExhausted is returned when the upstream kept answering 429
	// until the retry budget ran out.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrUpstreamUnreachable is returned for transport failures: refused
	// connections, DNS errors, resets and per-attempt timeouts.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// ErrContextCancelled is returned when the caller's context ends while
	// waiting between attempts.
	ErrContextCancelled = errors.New("context cancelled")
)

// UpstreamError is a non-2xx reply from the upstream API.
type UpstreamError struct {
	StatusCode int
	Target     string
	Body       string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("upstream %s returned %d %s: %s",
			e.Target, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	}
	return fmt.Sprintf("upstream %s returned %d %s",
		e.Target, e.StatusCode, http.StatusText(e.StatusCode))
}

// RateLimited reports whether the upstream throttled the call.
func (e *UpstreamError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsUpstreamError reports whether err carries a non-429 upstream reply.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && !ue.RateLimited() && !errors.Is(err, ErrRetryExhausted)
}

// abbreviate trims upstream bodies before they land in errors and logs.
func abbreviate(body []byte) string {
	const limit = 256
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
