package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/football-gateway/pkg/cache"
	"github.com/Sternrassler/football-gateway/pkg/client"
	"github.com/Sternrassler/football-gateway/pkg/config"
	"github.com/Sternrassler/football-gateway/pkg/favorites"
	"github.com/Sternrassler/football-gateway/pkg/gateway"
	"github.com/Sternrassler/football-gateway/pkg/logging"
	"github.com/Sternrassler/football-gateway/pkg/quota"
	"github.com/Sternrassler/football-gateway/pkg/warmup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logCfg, err := logging.NewConfig(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Gateway stopped")
	}
}

// app holds the wired components of one gateway process.
type app struct {
	gateway   *gateway.Gateway
	limiter   quota.Limiter
	favorites favorites.Store
	redis     *redis.Client
	ready     func(ctx context.Context) error
}

// newApp wires the gateway from cfg. With REDIS_URL set the cache and the
// quota counters live in Redis; otherwise both are in-process.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{ready: func(context.Context) error { return nil }}

	var (
		store   cache.Store
		limiter quota.Limiter
	)
	limits := quota.DefaultLimits(cfg.DailyQuota, cfg.HourlyQuota)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}

		redisStore := cache.NewRedisStore(a.redis, cfg.CacheTTL)
		store = redisStore
		limiter = quota.NewRedisLimiter(a.redis, limits)
		a.ready = redisStore.Ping
	} else {
		store = cache.NewMemoryStore(cfg.CacheTTL)
		memLimiter := quota.NewMemoryLimiter(limits)
		memLimiter.StartJanitor(ctx, 10*time.Minute)
		limiter = memLimiter
	}

	retryCfg := client.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.MaxRetries
	retryCfg.AttemptTimeout = cfg.AttemptTimeout

	retryOpts := []client.Option{
		client.WithObserver(client.NewLogObserver(logging.NewLogger(logging.ComponentClient))),
	}
	if cfg.UpstreamPerMinute > 0 {
		pacer := rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.UpstreamPerMinute)), 1)
		retryOpts = append(retryOpts, client.WithPacer(pacer))
	}

	retrier, err := client.NewRetrier(cfg.UpstreamBaseURL, retryCfg, retryOpts...)
	if err != nil {
		return nil, fmt.Errorf("create retrier: %w", err)
	}

	gw, err := gateway.New(gateway.Config{
		Fetcher: retrier,
		Limiter: limiter,
		Loader:  cache.NewLoader(store, logging.NewLogger(logging.ComponentCache)),
		Token:   cfg.APIKey,
		Logger:  logging.NewLogger(logging.ComponentGateway),
	})
	if err != nil {
		return nil, err
	}

	a.gateway = gw
	a.limiter = limiter
	a.favorites = favorites.NewFileStore(cfg.FavoritesFile, logging.NewLogger(logging.ComponentFavorites))
	return a, nil
}

func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: newServer(serverDeps{
			Gateway:   a.gateway,
			Favorites: a.favorites,
			Limiter:   a.limiter,
			Ready:     a.ready,
			TrustXFF:  cfg.TrustForwardedFor,
			Logger:    logging.NewLogger(logging.ComponentHTTP),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if len(cfg.WarmLeagues) > 0 {
		go func() {
			warmer := warmup.NewWarmer(a.gateway, warmup.DefaultConfig())
			warmer.Run(ctx, cfg.WarmLeagues, cfg.WarmFrom, cfg.WarmTo)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("upstream", cfg.UpstreamBaseURL).
			Bool("redis", a.redis != nil).
			Dur("cache_ttl", cfg.CacheTTL).
			Int("daily_quota", cfg.DailyQuota).
			Int("hourly_quota", cfg.HourlyQuota).
			Msg("Starting football gateway")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
