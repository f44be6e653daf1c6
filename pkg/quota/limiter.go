package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrQuotaExceeded is returned when a caller has used up a window.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrQuotaUnavailable wraps limiter backend failures. Callers answer it
	// like an unavailable dependency, not like a denial.
	ErrQuotaUnavailable = errors.New("quota backend unavailable")
)

// Decision is the outcome of one admission check.
//
// For an admitted request Window, Limit and Remaining describe the window
// with the least capacity left after counting the request. For a denied
// request they describe the exhausted window.
type Decision struct {
	Allowed   bool
	Window    Window
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Err returns nil for an admitted request and an *ExceededError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ExceededError{Decision: d}
}

// RetryAfter returns how long until the decision's window resets.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// ExceededError reports which window denied a request.
type ExceededError struct {
	Decision Decision
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s: %s limit of %d requests reached, resets at %s",
		ErrQuotaExceeded, e.Decision.Window, e.Decision.Limit, e.Decision.ResetAt.Format(time.RFC3339))
}

// Unwrap allows errors.Is(err, ErrQuotaExceeded).
func (e *ExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// Limiter admits or denies requests per caller.
//
// Allow counts the request against every window only when all of them have
// capacity; a denied request consumes nothing. The returned error is
// reserved for backend failures, denial is reported through Decision.
type Limiter interface {
	Allow(ctx context.Context, caller string) (Decision, error)
}

type counter struct {
	start time.Time
	count int
}

// MemoryLimiter is an in-process Limiter. One mutex serializes the
// check-then-increment across all windows.
type MemoryLimiter struct {
	mu      sync.Mutex
	limits  []Limit
	callers map[string][]counter
	now     func() time.Time
}

// Option customizes a MemoryLimiter.
type Option func(*MemoryLimiter)

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(l *MemoryLimiter) { l.now = now }
}

// NewMemoryLimiter creates a limiter enforcing limits in the given order.
func NewMemoryLimiter(limits []Limit, opts ...Option) *MemoryLimiter {
	l := &MemoryLimiter{
		limits:  append([]Limit(nil), limits...),
		callers: make(map[string][]counter),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, caller string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	counters, ok := l.callers[caller]
	if !ok {
		counters = make([]counter, len(l.limits))
		l.callers[caller] = counters
	}

	for i, lim := range l.limits {
		if start := lim.Window.Start(now); !counters[i].start.Equal(start) {
			counters[i] = counter{start: start}
		}
	}

	for i, lim := range l.limits {
		if counters[i].count >= lim.Max {
			d := Decision{
				Window:  lim.Window,
				Limit:   lim.Max,
				ResetAt: lim.Window.End(counters[i].start),
			}
			observeDecision(d)
			return d, nil
		}
	}

	d := Decision{Allowed: true, Remaining: -1}
	for i, lim := range l.limits {
		counters[i].count++
		remaining := lim.Max - counters[i].count
		if d.Remaining < 0 || remaining < d.Remaining {
			d.Window = lim.Window
			d.Limit = lim.Max
			d.Remaining = remaining
			d.ResetAt = lim.Window.End(counters[i].start)
		}
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}

	observeDecision(d)
	return d, nil
}

// Cleanup drops callers whose every window has ended.
func (l *MemoryLimiter) Cleanup() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for caller, counters := range l.callers {
		live := false
		for i, lim := range l.limits {
			if now.Before(lim.Window.End(counters[i].start)) {
				live = true
				break
			}
		}
		if !live {
			delete(l.callers, caller)
		}
	}
	trackedCallers.Set(float64(len(l.callers)))
}

// Len returns the number of callers currently tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callers)
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (l *MemoryLimiter) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}
