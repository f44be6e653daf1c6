package warmup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/football-gateway/pkg/logging"
	"github.com/Sternrassler/football-gateway/pkg/metrics"
)

// Config holds warmer configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel prefetches.
	// Upstream pacing still applies, so more workers only help when the
	// cache is already partly warm.
	MaxConcurrency int
	// Timeout per job, covering retries and backoff
	Timeout time.Duration
}

// DefaultConfig returns a configuration suited to the free upstream tier
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 2,
		Timeout:        90 * time.Second,
	}
}

// Prefetcher loads one league matchday into the cache. *gateway.Gateway
// implements it.
type Prefetcher interface {
	Prefetch(ctx context.Context, league string, gameweek int) error
}

// Job is one league matchday to load.
type Job struct {
	League   string
	Gameweek int
}

// Summary reports the outcome of a run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// Warmer runs prefetch jobs over a worker pool
type Warmer struct {
	prefetcher Prefetcher
	config     Config
	logger     zerolog.Logger
}

// NewWarmer creates a new warmer
func NewWarmer(prefetcher Prefetcher, config Config) *Warmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	return &Warmer{
		prefetcher: prefetcher,
		config:     config,
		logger:     logging.NewLogger(logging.ComponentWarmup),
	}
}

// Jobs expands leagues and the inclusive matchday range into jobs, league
// by league.
func Jobs(leagues []string, from, to int) []Job {
	if from > to {
		return nil
	}
	jobs := make([]Job, 0, len(leagues)*(to-from+1))
	for _, league := range leagues {
		for gw := from; gw <= to; gw++ {
			jobs = append(jobs, Job{League: league, Gameweek: gw})
		}
	}
	return jobs
}

// Run prefetches every league for matchdays from..to. It blocks until all
// jobs finished or ctx is done; jobs not started by then count as skipped.
func (w *Warmer) Run(ctx context.Context, leagues []string, from, to int) Summary {
	return w.RunJobs(ctx, Jobs(leagues, from, to))
}

// RunJobs prefetches the given jobs.
func (w *Warmer) RunJobs(ctx context.Context, jobs []Job) Summary {
	start := time.Now()
	summary := Summary{Total: len(jobs)}
	if len(jobs) == 0 {
		return summary
	}

	w.logger.Info().
		Int("jobs", len(jobs)).
		Int("workers", w.config.MaxConcurrency).
		Msg("Starting cache warmup")

	pool, err := ants.NewPool(w.config.MaxConcurrency)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to create warmup pool")
		summary.Skipped = summary.Total
		return summary
	}
	defer pool.Release()

	var (
		succeeded atomic.Int32
		failed    atomic.Int32
		wg        sync.WaitGroup
	)
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if w.run(ctx, job) {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
		}); err != nil {
			wg.Done()
			w.logger.Error().Err(err).Msg("Failed to submit warmup job")
			break
		}
	}
	wg.Wait()

	summary.Succeeded = int(succeeded.Load())
	summary.Failed = int(failed.Load())
	summary.Skipped = summary.Total - summary.Succeeded - summary.Failed
	summary.Duration = time.Since(start)

	w.logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration).
		Msg("Cache warmup complete")

	return summary
}

// run prefetches one job under its own timeout and reports success.
func (w *Warmer) run(ctx context.Context, job Job) bool {
	jobCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	if err := w.prefetcher.Prefetch(jobCtx, job.League, job.Gameweek); err != nil {
		metrics.WarmupJobs.WithLabelValues("failed").Inc()
		w.logger.Warn().
			Err(err).
			Str("league", job.League).
			Int("gameweek", job.Gameweek).
			Msg("Warmup job failed")
		return false
	}

	metrics.WarmupJobs.WithLabelValues("ok").Inc()
	w.logger.Debug().
		Str("league", job.League).
		Int("gameweek", job.Gameweek).
		Msg("Warmup job done")
	return true
}
