// Package client implements the resilient upstream call: one logical GET
// against the football-data API, retried with exponential backoff when the
// upstream throttles or cannot be reached.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"golang.org/x/time/rate"
)

// maxBodyBytes caps how much of an upstream body is read.
const maxBodyBytes = 4 << 20

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// 3 means at most 4 upstream calls.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// BackoffMultiplier grows the wait after every retry.
	BackoffMultiplier float64

	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration

	// AttemptTimeout bounds one upstream call, including reading the body.
	AttemptTimeout time.Duration

	// RetryTransportErrors retries connection-level failures under the same
	// budget as 429s. When false they fail on first occurrence.
	RetryTransportErrors bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:           3,
		InitialBackoff:       1 * time.Second,
		BackoffMultiplier:    2.0,
		MaxBackoff:           30 * time.Second,
		AttemptTimeout:       5 * time.Second,
		RetryTransportErrors: true,
	}
}

func (c RetryConfig) validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", c.MaxRetries)
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1 (got %v)", c.BackoffMultiplier)
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt_timeout must be positive")
	}
	return nil
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrier performs upstream calls with bounded retry.
type Retrier struct {
	baseURL    string
	config     RetryConfig
	httpClient *http.Client
	pacer      *rate.Limiter
	observer   AttemptObserver
	sleep      Sleeper
}

// Option customizes a Retrier.
type Option func(*Retrier)

// WithHTTPClient sets the HTTP client used for attempts.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Retrier) { r.httpClient = c }
}

// WithPacer makes the first attempt of every Fetch wait for a token from l.
// Retries are spaced by the backoff schedule alone.
func WithPacer(l *rate.Limiter) Option {
	return func(r *Retrier) { r.pacer = l }
}

// WithObserver subscribes o to every attempt.
func WithObserver(o AttemptObserver) Option {
	return func(r *Retrier) { r.observer = o }
}

// WithSleeper replaces the backoff wait (for tests).
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) { r.sleep = s }
}

// NewRetrier creates a retrier for the upstream at baseURL.
func NewRetrier(baseURL string, cfg RetryConfig, opts ...Option) (*Retrier, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultRetryConfig().MaxBackoff
	}

	r := &Retrier{
		baseURL:    baseURL,
		config:     cfg,
		httpClient: &http.Client{},
		observer:   ObserverFunc(func(context.Context, Attempt) {}),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the retry configuration in use.
func (r *Retrier) Config() RetryConfig {
	return r.config
}

// outcome is the result of one attempt.
type outcome struct {
	body      []byte
	status    int
	class     Outcome
	err       error
	retryable bool
	next      time.Duration
	took      time.Duration
}

// Fetch performs req, retrying 429s and (if configured) transport failures.
// It returns the body of the first 2xx reply.
func (r *Retrier) Fetch(ctx context.Context, req Request) ([]byte, error) {
	url, err := req.URL(r.baseURL)
	if err != nil {
		return nil, fmt.Errorf("build upstream url: %w", err)
	}

	attempts := r.config.MaxRetries + 1
	delay := r.config.InitialBackoff
	var last outcome

	for n := 1; n <= attempts; n++ {
		last = r.attempt(ctx, req, url, n, delay)

		final := last.err == nil || !last.retryable || n == attempts
		waited := time.Duration(0)
		if !final {
			waited = delay
		}
		r.observer.ObserveAttempt(ctx, Attempt{
			Number:     n,
			Endpoint:   req.Endpoint(),
			Target:     req.Target(),
			Outcome:    last.class,
			StatusCode: last.status,
			Duration:   last.took,
			Backoff:    waited,
			Final:      final,
			Err:        last.err,
		})

		if last.err == nil {
			return last.body, nil
		}
		if !last.retryable {
			return nil, last.err
		}
		if n == attempts {
			break
		}

		if err := r.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w during backoff after attempt %d: %w", ErrContextCancelled, n, err)
		}
		delay = last.next
	}

	if last.class == OutcomeNetwork {
		return nil, fmt.Errorf("after %d attempts: %w", attempts, last.err)
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, last.err)
}

// attempt performs call n with the current delay and reports what to do
// next. It holds no state beyond its arguments.
func (r *Retrier) attempt(ctx context.Context, req Request, url string, n int, delay time.Duration) outcome {
	next := r.nextDelay(delay)

	if r.pacer != nil && n == 1 {
		if err := r.pacer.Wait(ctx); err != nil {
			return outcome{class: OutcomeCancelled, err: fmt.Errorf("%w: wait for upstream pacing: %w", ErrContextCancelled, err)}
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, r.config.AttemptTimeout)
	defer cancel()

	start := time.Now()
	body, status, err := r.do(attemptCtx, req, url)
	took := time.Since(start)

	switch {
	case err != nil:
		if ctx.Err() != nil {
			// The caller gave up; a retry would fail the same way.
			return outcome{class: OutcomeCancelled, err: fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err()), took: took}
		}
		return outcome{
			class:     OutcomeNetwork,
			err:       fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err),
			retryable: r.config.RetryTransportErrors,
			next:      next,
			took:      took,
		}

	case status >= 200 && status < 300:
		return outcome{body: body, status: status, class: OutcomeSuccess, took: took}

	case status == http.StatusTooManyRequests:
		return outcome{
			status:    status,
			class:     OutcomeRateLimited,
			err:       &UpstreamError{StatusCode: status, Target: req.Target(), Body: abbreviate(body)},
			retryable: true,
			next:      next,
			took:      took,
		}

	default:
		return outcome{
			status: status,
			class:  OutcomeHTTPError,
			err:    &UpstreamError{StatusCode: status, Target: req.Target(), Body: abbreviate(body)},
			took:   took,
		}
	}
}

func (r *Retrier) nextDelay(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * r.config.BackoffMultiplier)
	if next > r.config.MaxBackoff {
		next = r.config.MaxBackoff
	}
	return next
}

// do executes one HTTP round trip and reads the body. Read failures count as
// transport failures.
func (r *Retrier) do(ctx context.Context, req Request, url string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.token != "" {
		httpReq.Header.Set("X-Auth-Token", req.token)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, scrubURL(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// scrubURL drops the request URL from *url.Error so upstream targets are
// reported once, by the caller, in a known shape.
func scrubURL(err error) error {
	var ue *neturl.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}
