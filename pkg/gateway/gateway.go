// Package gateway composes admission control, input validation, the response
// cache and the backoff retrier into the two operations the football API
// exposes: matches of a league gameweek and team details.
//
// Every operation runs in a fixed order:
//
//	admission -> validation -> cache -> single-flight upstream fetch -> shape -> store
//
// A request denied by the quota or rejected by validation never reaches the
// cache or the upstream.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/football-gateway/pkg/cache"
	"github.com/Sternrassler/football-gateway/pkg/client"
	"github.com/Sternrassler/football-gateway/pkg/metrics"
	"github.com/Sternrassler/football-gateway/pkg/quota"
)

// Fetcher performs one resilient upstream call. *client.Retrier satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, req client.Request) ([]byte, error)
}

// Config wires a Gateway.
type Config struct {
	Fetcher Fetcher
	Limiter quota.Limiter
	Loader  *cache.Loader
	// Token is sent upstream as X-Auth-Token.
	Token  string
	Logger zerolog.Logger
}

// Gateway serves matches and team lookups on behalf of callers.
type Gateway struct {
	fetcher  Fetcher
	limiter  quota.Limiter
	loader   *cache.Loader
	token    string
	logger   zerolog.Logger
	validate *validator.Validate
}

type matchesQuery struct {
	League   string `json:"league" validate:"required,oneof=PL SA BL1 FL1 PD EC"`
	Gameweek int    `json:"gameweek" validate:"min=1,max=38"`
}

type teamQuery struct {
	TeamID int64 `json:"team_id" validate:"gt=0"`
}

// New creates a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("gateway: fetcher is required")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("gateway: limiter is required")
	}
	if cfg.Loader == nil {
		return nil, errors.New("gateway: cache loader is required")
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Gateway{
		fetcher:  cfg.Fetcher,
		limiter:  cfg.Limiter,
		loader:   cfg.Loader,
		token:    cfg.Token,
		logger:   cfg.Logger,
		validate: v,
	}, nil
}

// GetMatches returns the matches of league on gameweek, in upstream order.
func (g *Gateway) GetMatches(ctx context.Context, league string, gameweek int) (matches []MatchSummary, err error) {
	start := time.Now()
	cached := false
	defer func() { g.observe(ctx, "matches", start, cached, err) }()

	if err := g.admit(ctx); err != nil {
		return nil, err
	}
	if err := g.check(ctx, matchesQuery{League: league, Gameweek: gameweek}); err != nil {
		return nil, err
	}

	matches, cached, err = g.loadMatches(ctx, league, gameweek)
	return matches, err
}

// GetTeam returns the upstream team object for teamID.
func (g *Gateway) GetTeam(ctx context.Context, teamID int64) (team TeamDetail, err error) {
	start := time.Now()
	cached := false
	defer func() { g.observe(ctx, "team", start, cached, err) }()

	if err := g.admit(ctx); err != nil {
		return nil, err
	}
	if err := g.check(ctx, teamQuery{TeamID: teamID}); err != nil {
		return nil, err
	}

	path := "/v4/teams/" + strconv.FormatInt(teamID, 10)
	req := client.NewRequest("/v4/teams/{id}", path, nil, g.token)

	data, cached, err := g.loader.GetOrLoad(ctx, cache.KeyFor(path, nil), func(ctx context.Context) ([]byte, error) {
		body, err := g.fetcher.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		// Decode once so malformed payloads are never cached.
		if _, err := decodeTeam(body); err != nil {
			return nil, err
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return decodeTeam(data)
}

// Prefetch loads matches of league on gameweek into the cache without
// counting against any caller's quota.
func (g *Gateway) Prefetch(ctx context.Context, league string, gameweek int) error {
	if err := g.check(ctx, matchesQuery{League: league, Gameweek: gameweek}); err != nil {
		return err
	}
	_, _, err := g.loadMatches(ctx, league, gameweek)
	return err
}

// Leagues returns the supported competitions.
func (g *Gateway) Leagues() []League {
	return Leagues()
}

func (g *Gateway) loadMatches(ctx context.Context, league string, gameweek int) ([]MatchSummary, bool, error) {
	path := "/v4/competitions/" + league + "/matches"
	query := url.Values{"matchday": {strconv.Itoa(gameweek)}}
	req := client.NewRequest("/v4/competitions/{league}/matches", path, query, g.token)

	data, hit, err := g.loader.GetOrLoad(ctx, cache.KeyFor(path, query), func(ctx context.Context) ([]byte, error) {
		body, err := g.fetcher.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		matches, err := shapeMatches(body)
		if err != nil {
			return nil, err
		}
		return sonic.Marshal(matches)
	})
	if err != nil {
		return nil, false, err
	}

	var matches []MatchSummary
	if err := sonic.Unmarshal(data, &matches); err != nil {
		return nil, false, fmt.Errorf("decode cached matches: %w", err)
	}
	return matches, hit, nil
}

func (g *Gateway) admit(ctx context.Context) error {
	caller := quota.CallerFromContext(ctx)

	d, err := g.limiter.Allow(ctx, caller)
	if err != nil {
		return fmt.Errorf("%w: %w", quota.ErrQuotaUnavailable, err)
	}
	if !d.Allowed {
		g.logger.Warn().
			Str("caller", caller).
			Str("window", d.Window.String()).
			Int("limit", d.Limit).
			Time("reset_at", d.ResetAt).
			Msg("Quota exceeded")
		return d.Err()
	}
	return nil
}

func (g *Gateway) check(ctx context.Context, q any) error {
	if err := g.validate.StructCtx(ctx, q); err != nil {
		return fromValidator(err)
	}
	return nil
}

func (g *Gateway) observe(ctx context.Context, op string, start time.Time, cached bool, err error) {
	result := classify(err, cached)
	metrics.GatewayRequests.WithLabelValues(op, result).Inc()
	metrics.GatewayDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	event := g.logger.Debug()
	switch result {
	case "upstream_error", "unavailable":
		event = g.logger.Error()
	case "no_matches", "invalid", "quota_exceeded":
		event = g.logger.Info()
	}
	event.
		Str("operation", op).
		Str("caller", quota.CallerFromContext(ctx)).
		Str("result", result).
		Bool("cache_hit", cached).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("Gateway request")
}

// classify maps an operation outcome to a metrics result label.
func classify(err error, cached bool) string {
	switch {
	case err == nil && cached:
		return "cached"
	case err == nil:
		return "ok"
	case errors.Is(err, quota.ErrQuotaExceeded):
		return "quota_exceeded"
	case IsValidationError(err):
		return "invalid"
	case errors.Is(err, ErrNoMatches):
		return "no_matches"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, client.ErrContextCancelled):
		return "cancelled"
	case errors.Is(err, client.ErrUpstreamUnreachable), errors.Is(err, quota.ErrQuotaUnavailable):
		return "unavailable"
	default:
		return "upstream_error"
	}
}
