package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/football-gateway/internal/testutil"
	"github.com/Sternrassler/football-gateway/pkg/cache"
	"github.com/Sternrassler/football-gateway/pkg/client"
	"github.com/Sternrassler/football-gateway/pkg/config"
	"github.com/Sternrassler/football-gateway/pkg/favorites"
	"github.com/Sternrassler/football-gateway/pkg/gateway"
	"github.com/Sternrassler/football-gateway/pkg/metrics"
	"github.com/Sternrassler/football-gateway/pkg/quota"
)

const matchesPath = "/v4/competitions/PL/matches"

type testServer struct {
	handler   http.Handler
	upstream  *testutil.MockUpstream
	favorites *favorites.FileStore
}

type serverOption func(*serverDeps, *string)

func withLimits(daily, hourly int) serverOption {
	return func(d *serverDeps, _ *string) {
		d.Limiter = quota.NewMemoryLimiter(quota.DefaultLimits(daily, hourly))
	}
}

func withReady(fn func(context.Context) error) serverOption {
	return func(d *serverDeps, _ *string) { d.Ready = fn }
}

func withUpstreamURL(u string) serverOption {
	return func(_ *serverDeps, base *string) { *base = u }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	upstream := testutil.NewMockUpstream()
	t.Cleanup(upstream.Close)

	favStore := favorites.NewFileStore(filepath.Join(t.TempDir(), "favorites.json"), zerolog.Nop())
	deps := serverDeps{
		Favorites: favStore,
		Limiter:   quota.NewMemoryLimiter(quota.DefaultLimits(200, 50)),
		Logger:    zerolog.Nop(),
	}
	baseURL := upstream.URL()
	for _, opt := range opts {
		opt(&deps, &baseURL)
	}

	retrier, err := client.NewRetrier(baseURL, client.DefaultRetryConfig(),
		client.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
	require.NoError(t, err)

	gw, err := gateway.New(gateway.Config{
		Fetcher: retrier,
		Limiter: deps.Limiter,
		Loader:  cache.NewLoader(cache.NewMemoryStore(cache.DefaultTTL), zerolog.Nop()),
		Token:   "secret-token",
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	deps.Gateway = gw

	return &testServer{handler: newServer(deps), upstream: upstream, favorites: favStore}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	if req.RemoteAddr == "" {
		req.RemoteAddr = "192.0.2.10:4711"
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) get(target string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (s *testServer) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	before := promtest.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET /health", "200"))

	rec := srv.get("/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, before+1, promtest.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET /health", "200")))
}

func TestReadyEndpoint(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusOK, srv.get("/ready").Code)

	failing := newTestServer(t, withReady(func(context.Context) error {
		return errors.New("redis: connection refused")
	}))
	assert.Equal(t, http.StatusServiceUnavailable, failing.get("/ready").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	srv.get("/health")

	rec := srv.get("/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "football_http_requests_total")
}

func TestLeaguesEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get("/api/leagues")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Leagues []gateway.League `json:"leagues"`
	}](t, rec)
	assert.Equal(t, gateway.Leagues(), body.Leagues)
}

func TestMatchesEndpoint_Success(t *testing.T) {
	srv := newTestServer(t)
	srv.upstream.SetMatchesResponses("PL", testutil.NewOKResponse(testutil.MatchesBody(testutil.SampleMatch())))
	_, err := srv.favorites.Add(context.Background(), favorites.Favorite{ID: "65", Name: "Manchester City FC"})
	require.NoError(t, err)

	rec := srv.get("/api/matches?league=PL&gameweek=4")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[matchesResponse](t, rec)
	require.Len(t, body.Matches, 1)
	assert.Equal(t, "Manchester City FC", body.Matches[0].HomeTeam)
	assert.Equal(t, "Aston Villa FC", body.Matches[0].AwayTeam)
	assert.Equal(t, gateway.VenueUnknown, body.Matches[0].Venue)
	assert.Equal(t, []favorites.Favorite{{ID: "65", Name: "Manchester City FC"}}, body.Favorites)
	assert.Nil(t, body.Error)
	assert.Equal(t, "secret-token", srv.upstream.LastToken())
}

func TestMatchesEndpoint_PostForm(t *testing.T) {
	srv := newTestServer(t)
	srv.upstream.SetMatchesResponses("PL", testutil.NewOKResponse(testutil.MatchesBody(testutil.SampleMatch())))

	rec := srv.postForm("/api/matches", url.Values{"league": {"PL"}, "gameweek": {"4"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[matchesResponse](t, rec).Matches, 1)
}

func TestMatchesEndpoint_SecondCallServedFromCache(t *testing.T) {
	srv := newTestServer(t)
	srv.upstream.SetMatchesResponses("PL", testutil.NewOKResponse(testutil.MatchesBody(testutil.SampleMatch())))

	require.Equal(t, http.StatusOK, srv.get("/api/matches?league=PL&gameweek=4").Code)
	require.Equal(t, http.StatusOK, srv.get("/api/matches?league=PL&gameweek=4").Code)

	assert.Equal(t, 1, srv.upstream.PathCount(matchesPath))
}

func TestMatchesEndpoint_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		script   []testutil.MockResponse
		status   int
		reason   string
		upstream int
	}{
		{
			name:   "unknown league",
			target: "/api/matches?league=XX&gameweek=5",
			status: http.StatusBadRequest,
			reason: "invalidInput",
		},
		{
			name:   "gameweek out of range",
			target: "/api/matches?league=PL&gameweek=39",
			status: http.StatusBadRequest,
			reason: "invalidInput",
		},
		{
			name:   "gameweek missing",
			target: "/api/matches?league=PL",
			status: http.StatusBadRequest,
			reason: "invalidInput",
		},
		{
			name:   "gameweek not a number",
			target: "/api/matches?league=PL&gameweek=five",
			status: http.StatusBadRequest,
			reason: "invalidInput",
		},
		{
			name:     "no matches key",
			target:   "/api/matches?league=PL&gameweek=5",
			script:   []testutil.MockResponse{testutil.NewOKResponse(`{"count": 0}`)},
			status:   http.StatusNotFound,
			reason:   "notFound",
			upstream: 1,
		},
		{
			name:     "upstream server error",
			target:   "/api/matches?league=PL&gameweek=5",
			script:   []testutil.MockResponse{testutil.NewServerErrorResponse()},
			status:   http.StatusBadGateway,
			reason:   "upstreamError",
			upstream: 1,
		},
		{
			name:     "upstream forbidden",
			target:   "/api/matches?league=PL&gameweek=5",
			script:   []testutil.MockResponse{testutil.NewForbiddenResponse()},
			status:   http.StatusBadGateway,
			reason:   "upstreamError",
			upstream: 1,
		},
		{
			name:     "upstream throttles until retries run out",
			target:   "/api/matches?league=PL&gameweek=5",
			script:   []testutil.MockResponse{testutil.NewRateLimitResponse()},
			status:   http.StatusBadGateway,
			reason:   "upstreamRateLimited",
			upstream: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			if len(tt.script) > 0 {
				srv.upstream.SetMatchesResponses("PL", tt.script...)
			}
			_, err := srv.favorites.Add(context.Background(), favorites.Favorite{ID: "58", Name: "Aston Villa FC"})
			require.NoError(t, err)

			rec := srv.get(tt.target)

			assert.Equal(t, tt.status, rec.Code)
			body := decode[matchesResponse](t, rec)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.status, body.Error.Code)
			assert.Equal(t, tt.reason, body.Error.Reason)
			assert.NotEmpty(t, body.Error.Message)
			assert.Empty(t, body.Matches)
			assert.Len(t, body.Favorites, 1, "error responses still carry favorites")
			assert.Equal(t, tt.upstream, srv.upstream.RequestCount())
		})
	}
}

func TestMatchesEndpoint_UpstreamUnreachable(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	srv := newTestServer(t, withUpstreamURL(closedURL))

	rec := srv.get("/api/matches?league=PL&gameweek=5")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[matchesResponse](t, rec)
	require.NotNil(t, body.Error)
	assert.Equal(t, "upstreamUnavailable", body.Error.Reason)
}

func TestMatchesEndpoint_QuotaExceeded(t *testing.T) {
	srv := newTestServer(t, withLimits(200, 1))
	srv.upstream.SetMatchesResponses("PL", testutil.NewOKResponse(testutil.MatchesBody(testutil.SampleMatch())))

	first := srv.get("/api/matches?league=PL&gameweek=4")
	require.Equal(t, http.StatusOK, first.Code)

	second := srv.get("/api/matches?league=PL&gameweek=4")

	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "hourly", second.Header().Get("X-RateLimit-Window"))
	assert.Equal(t, "1", second.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	body := decode[matchesResponse](t, second)
	require.NotNil(t, body.Error)
	assert.Equal(t, "quotaExceeded", body.Error.Reason)
	assert.Equal(t, 1, srv.upstream.RequestCount())
}

func TestMatchesEndpoint_QuotaIsPerCaller(t *testing.T) {
	srv := newTestServer(t, withLimits(200, 1))
	srv.upstream.SetMatchesResponses("PL", testutil.NewOKResponse(testutil.MatchesBody(testutil.SampleMatch())))

	a := httptest.NewRequest(http.MethodGet, "/api/matches?league=PL&gameweek=4", nil)
	a.RemoteAddr = "198.51.100.1:1000"
	b := httptest.NewRequest(http.MethodGet, "/api/matches?league=PL&gameweek=4", nil)
	b.RemoteAddr = "198.51.100.2:1000"

	assert.Equal(t, http.StatusOK, srv.do(a).Code)
	assert.Equal(t, http.StatusOK, srv.do(b).Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (quota.Decision, error) {
	return quota.Decision{}, errors.New("redis: connection refused")
}

func TestLimiterFailure_SameStatusOnEveryRoute(t *testing.T) {
	srv := newTestServer(t, func(d *serverDeps, _ *string) { d.Limiter = brokenLimiter{} })

	matches := srv.get("/api/matches?league=PL&gameweek=4")
	assert.Equal(t, http.StatusServiceUnavailable, matches.Code)
	body := decode[matchesResponse](t, matches)
	require.NotNil(t, body.Error)
	assert.Equal(t, "quotaUnavailable", body.Error.Reason)

	team := srv.get("/api/teams/65")
	assert.Equal(t, http.StatusServiceUnavailable, team.Code)

	fav := srv.postForm("/api/favorites", url.Values{"team_id": {"65"}, "team_name": {"Manchester City FC"}})
	assert.Equal(t, http.StatusServiceUnavailable, fav.Code)
	favBody := decode[errorResponse](t, fav)
	require.NotNil(t, favBody.Error)
	assert.Equal(t, "quotaUnavailable", favBody.Error.Reason)
	assert.Equal(t, 0, srv.upstream.RequestCount())
}

func TestTeamEndpoint(t *testing.T) {
	srv := newTestServer(t)
	srv.upstream.SetTeamResponses(65, testutil.NewOKResponse(testutil.TeamBody(65, "Manchester City FC")))

	rec := srv.get("/api/teams/65")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[teamResponse](t, rec)
	assert.Nil(t, body.Error)
	assert.Equal(t, int64(65), body.Team.ID())
	assert.Equal(t, "Manchester City FC", body.Team.Name())
	assert.Equal(t, "Etihad Stadium", body.Team["venue"])
}

func TestTeamEndpoint_Errors(t *testing.T) {
	srv := newTestServer(t)
	srv.upstream.SetTeamResponses(99, testutil.NewForbiddenResponse())

	tests := []struct {
		target string
		status int
	}{
		{"/api/teams/abc", http.StatusBadRequest},
		{"/api/teams/0", http.StatusBadRequest},
		{"/api/teams/-4", http.StatusBadRequest},
		{"/api/teams/99", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := srv.get(tt.target)
			assert.Equal(t, tt.status, rec.Code)
			body := decode[teamResponse](t, rec)
			require.NotNil(t, body.Error)
			assert.Nil(t, body.Team)
		})
	}
}

func TestFavoritesEndpoint_AddAndList(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get("/api/favorites")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"favorites": []}`, rec.Body.String())

	form := url.Values{"team_id": {"65"}, "team_name": {"Manchester City FC"}}
	assert.Equal(t, http.StatusCreated, srv.postForm("/api/favorites", form).Code)
	assert.Equal(t, http.StatusOK, srv.postForm("/api/favorites", form).Code, "duplicate id is a no-op")

	req := httptest.NewRequest(http.MethodPost, "/api/favorites",
		strings.NewReader(`{"team_id": "58", "team_name": "Aston Villa FC"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	assert.Equal(t, http.StatusCreated, srv.do(req).Code)

	body := decode[struct {
		Favorites []favorites.Favorite `json:"favorites"`
	}](t, srv.get("/api/favorites"))
	assert.Equal(t, []favorites.Favorite{
		{ID: "65", Name: "Manchester City FC"},
		{ID: "58", Name: "Aston Villa FC"},
	}, body.Favorites)
}

func TestFavoritesEndpoint_InvalidInput(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.postForm("/api/favorites", url.Values{"team_id": {"65"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/favorites", strings.NewReader(`{"team_id":`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, srv.do(req).Code)
}

func TestFavoritesEndpoint_QuotaExceeded(t *testing.T) {
	srv := newTestServer(t, withLimits(200, 1))

	form := url.Values{"team_id": {"65"}, "team_name": {"Manchester City FC"}}
	require.Equal(t, http.StatusCreated, srv.postForm("/api/favorites", form).Code)

	rec := srv.postForm("/api/favorites", url.Values{"team_id": {"58"}, "team_name": {"Aston Villa FC"}})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	body := decode[errorResponse](t, rec)
	require.NotNil(t, body.Error)
	assert.Equal(t, "quotaExceeded", body.Error.Reason)
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get("/health")

	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "https://crests.football-data.org")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get("/health")
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	assert.NoError(t, err, "a request id is issued")

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, id)
	assert.Equal(t, id, srv.do(req).Header().Get(requestIDHeader), "a well-formed id is reused")

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "not a uuid\r\n")
	assert.NotEqual(t, "not a uuid\r\n", srv.do(req).Header().Get(requestIDHeader))
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)
	before := promtest.ToFloat64(metrics.HTTPRequests.WithLabelValues("unmatched", "404"))

	rec := srv.get("/api/unknown")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, before+1, promtest.ToFloat64(metrics.HTTPRequests.WithLabelValues("unmatched", "404")))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{quota.ErrQuotaExceeded, http.StatusTooManyRequests},
		{&quota.ExceededError{}, http.StatusTooManyRequests},
		{&gateway.ValidationError{Field: "league", Value: "XX", Rule: "oneof"}, http.StatusBadRequest},
		{fmt.Errorf("add: %w", favorites.ErrInvalidFavorite), http.StatusBadRequest},
		{gateway.ErrNoMatches, http.StatusNotFound},
		{fmt.Errorf("fetch: %w", client.ErrUpstreamUnreachable), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", quota.ErrQuotaUnavailable, context.DeadlineExceeded), http.StatusServiceUnavailable},
		{fmt.Errorf("fetch: %w", client.ErrRetryExhausted), http.StatusBadGateway},
		{&client.UpstreamError{StatusCode: http.StatusInternalServerError}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{client.ErrContextCancelled, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, mapError(tt.err).HTTPStatus)
		})
	}
}

func TestNewApp_InProcessStores(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, config.Config{
		APIKey:            "key",
		UpstreamBaseURL:   "http://127.0.0.1:1",
		CacheTTL:          time.Minute,
		MaxRetries:        3,
		AttemptTimeout:    time.Second,
		UpstreamPerMinute: 10,
		DailyQuota:        200,
		HourlyQuota:       50,
		FavoritesFile:     filepath.Join(t.TempDir(), "favorites.json"),
	})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.redis)
	assert.NoError(t, a.ready(ctx))
	assert.IsType(t, &quota.MemoryLimiter{}, a.limiter)
	assert.NotNil(t, a.gateway)
}

func TestNewApp_InvalidRedisURL(t *testing.T) {
	_, err := newApp(context.Background(), config.Config{
		APIKey:          "key",
		UpstreamBaseURL: "http://127.0.0.1:1",
		CacheTTL:        time.Minute,
		MaxRetries:      3,
		AttemptTimeout:  time.Second,
		DailyQuota:      200,
		HourlyQuota:     50,
		RedisURL:        "not-a-redis-url",
	})
	assert.Error(t, err)
}
