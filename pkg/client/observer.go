package client

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Outcome classifies one upstream attempt.
type Outcome string

const (
	// OutcomeSuccess is a 2xx reply.
	OutcomeSuccess Outcome = "success"

	// OutcomeRateLimited is a 429 reply.
	OutcomeRateLimited Outcome = "rate_limited"

	// OutcomeHTTPError is any other non-2xx reply.
	OutcomeHTTPError Outcome = "http_error"

	// OutcomeNetwork is a transport failure or per-attempt timeout.
	OutcomeNetwork Outcome = "network"

	// OutcomeCancelled means the caller's context ended.
	OutcomeCancelled Outcome = "cancelled"
)

// Attempt describes one upstream call made by the retrier.
type Attempt struct {
	Number     int
	Endpoint   string
	Target     string
	Outcome    Outcome
	StatusCode int
	Duration   time.Duration

	// Backoff is the wait before the next attempt; zero when Final.
	Backoff time.Duration

	// Final is set on the attempt that decides the call's result.
	Final bool
	Err   error
}

// AttemptObserver is notified after every attempt.
type AttemptObserver interface {
	ObserveAttempt(ctx context.Context, a Attempt)
}

// ObserverFunc adapts a function to AttemptObserver.
type ObserverFunc func(ctx context.Context, a Attempt)

// ObserveAttempt implements AttemptObserver.
func (f ObserverFunc) ObserveAttempt(ctx context.Context, a Attempt) { f(ctx, a) }

// Observers fans an attempt out to several observers.
type Observers []AttemptObserver

// ObserveAttempt implements AttemptObserver.
func (o Observers) ObserveAttempt(ctx context.Context, a Attempt) {
	for _, obs := range o {
		obs.ObserveAttempt(ctx, a)
	}
}

// Prometheus metrics for upstream attempts.
var (
	upstreamAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "football_upstream_attempts_total",
		Help: "Upstream attempts by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	upstreamAttemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "football_upstream_attempt_duration_seconds",
		Help:    "Upstream attempt duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint"})

	upstreamRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "football_upstream_retries_total",
		Help: "Retries scheduled by the outcome that triggered them",
	}, []string{"outcome"})

	upstreamBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "football_upstream_backoff_seconds",
		Help:    "Backoff waited before a retry",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16, 30},
	})

	upstreamRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "football_upstream_retry_exhausted_total",
		Help: "Calls that ran out of retries by final outcome",
	}, []string{"outcome"})
)

// LogObserver logs attempts with zerolog and records Prometheus metrics.
type LogObserver struct {
	logger zerolog.Logger
}

// NewLogObserver creates an observer writing to logger.
func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// ObserveAttempt implements AttemptObserver.
func (o *LogObserver) ObserveAttempt(_ context.Context, a Attempt) {
	upstreamAttemptsTotal.WithLabelValues(a.Endpoint, string(a.Outcome)).Inc()
	if a.Outcome != OutcomeCancelled {
		upstreamAttemptDuration.WithLabelValues(a.Endpoint).Observe(a.Duration.Seconds())
	}

	event := o.logger.Debug()
	switch {
	case a.Outcome == OutcomeSuccess:
		if a.Number > 1 {
			event = o.logger.Info()
		}
	case !a.Final:
		upstreamRetriesTotal.WithLabelValues(string(a.Outcome)).Inc()
		upstreamBackoffSeconds.Observe(a.Backoff.Seconds())
		event = o.logger.Warn().Dur("backoff", a.Backoff)
	case a.Outcome == OutcomeRateLimited || a.Outcome == OutcomeNetwork:
		upstreamRetryExhaustedTotal.WithLabelValues(string(a.Outcome)).Inc()
		event = o.logger.Error()
	case a.Outcome == OutcomeHTTPError:
		event = o.logger.Warn()
	}

	if a.StatusCode != 0 {
		event = event.Int("status", a.StatusCode)
	}
	event.
		Int("attempt", a.Number).
		Str("endpoint", a.Endpoint).
		Str("target", a.Target).
		Str("outcome", string(a.Outcome)).
		Dur("duration", a.Duration).
		Bool("final", a.Final).
		Err(a.Err).
		Msg("Upstream attempt")
}
