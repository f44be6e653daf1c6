package quota

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// UnknownCaller identifies requests whose caller could not be determined.
const UnknownCaller = "unknown"

type callerKey struct{}

// WithCaller returns a copy of ctx carrying the caller identity.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller stored by WithCaller, or UnknownCaller.
func CallerFromContext(ctx context.Context) string {
	if caller, ok := ctx.Value(callerKey{}).(string); ok && caller != "" {
		return caller
	}
	return UnknownCaller
}

// KeyFunc derives the caller identity from a request.
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc identifies callers by remote address. With trustXFF the
// first X-Forwarded-For entry wins; only enable it behind a proxy that sets
// the header.
func DefaultKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		addr := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		if addr != "" {
			return addr
		}
		return UnknownCaller
	}
}

// IdentityMiddleware stores the caller identity in the request context.
func IdentityMiddleware(keyFn KeyFunc) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = DefaultKeyFunc(false)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithCaller(r.Context(), keyFn(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteHeaders sets the X-RateLimit-* headers for d, plus Retry-After when
// the request was denied.
func WriteHeaders(w http.ResponseWriter, d Decision, now time.Time) {
	h := w.Header()
	h.Set("X-RateLimit-Window", d.Window.String())
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		secs := int((d.RetryAfter(now) + time.Second - 1) / time.Second)
		h.Set("Retry-After", strconv.Itoa(secs))
	}
}

// Options configures Middleware.
type Options struct {
	Limiter Limiter
	Logger  zerolog.Logger
	// OnDenied writes the response for a denied request or a limiter
	// failure. Failures arrive wrapped in ErrQuotaUnavailable. Defaults to a
	// plain 429, or 503 for failures.
	OnDenied func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware enforces the quota for the caller found in the request context
// (see IdentityMiddleware).
func Middleware(opts Options) func(http.Handler) http.Handler {
	if opts.OnDenied == nil {
		opts.OnDenied = func(w http.ResponseWriter, _ *http.Request, err error) {
			code := http.StatusTooManyRequests
			if errors.Is(err, ErrQuotaUnavailable) {
				code = http.StatusServiceUnavailable
			}
			http.Error(w, http.StatusText(code), code)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := CallerFromContext(r.Context())

			d, err := opts.Limiter.Allow(r.Context(), caller)
			if err != nil {
				err = fmt.Errorf("%w: %w", ErrQuotaUnavailable, err)
				opts.Logger.Error().Err(err).Str("caller", caller).Msg("Quota check failed")
				opts.OnDenied(w, r, err)
				return
			}

			WriteHeaders(w, d, time.Now())
			if !d.Allowed {
				opts.Logger.Warn().
					Str("caller", caller).
					Str("window", d.Window.String()).
					Int("limit", d.Limit).
					Msg("Quota exceeded")
				opts.OnDenied(w, r, d.Err())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
