package main

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/football-gateway/pkg/favorites"
	"github.com/Sternrassler/football-gateway/pkg/gateway"
	"github.com/Sternrassler/football-gateway/pkg/metrics"
	"github.com/Sternrassler/football-gateway/pkg/quota"
)

// requestTimeout covers a full retry sequence with a queued upstream pacer.
const requestTimeout = 45 * time.Second

// maxFormBytes limits favorite submissions.
const maxFormBytes = 16 << 10

type serverDeps struct {
	Gateway   *gateway.Gateway
	Favorites favorites.Store
	Limiter   quota.Limiter
	// Ready reports whether shared backends are reachable.
	Ready    func(ctx context.Context) error
	TrustXFF bool
	Logger   zerolog.Logger
}

type server struct {
	gateway   *gateway.Gateway
	favorites favorites.Store
	ready     func(ctx context.Context) error
}

// newServer returns the root handler with routes and middleware.
func newServer(deps serverDeps) http.Handler {
	s := &server{
		gateway:   deps.Gateway,
		favorites: deps.Favorites,
		ready:     deps.Ready,
	}
	if s.ready == nil {
		s.ready = func(context.Context) error { return nil }
	}

	// Favorites writes never reach the gateway, so they take their quota
	// here.
	limited := quota.Middleware(quota.Options{
		Limiter: deps.Limiter,
		Logger:  deps.Logger,
		OnDenied: func(w http.ResponseWriter, r *http.Request, err error) {
			writeError(w, r, err)
		},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/leagues", s.handleLeagues)
	mux.HandleFunc("GET /api/matches", s.handleMatches)
	mux.HandleFunc("POST /api/matches", s.handleMatches)
	mux.HandleFunc("GET /api/teams/{id}", s.handleTeam)
	mux.HandleFunc("GET /api/favorites", s.handleListFavorites)
	mux.Handle("POST /api/favorites", limited(http.HandlerFunc(s.handleAddFavorite)))

	return chain(mux,
		hlog.NewHandler(deps.Logger),
		requestID,
		securityHeaders,
		quota.IdentityMiddleware(quota.DefaultKeyFunc(deps.TrustXFF)),
		withTimeout(requestTimeout),
		accessLog,
	)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ready(ctx); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *server) handleLeagues(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"leagues": s.gateway.Leagues()})
}

// handleMatches serves GET with query parameters and POST with a form body.
// Favorites are loaded first so error responses still carry them.
func (s *server) handleMatches(w http.ResponseWriter, r *http.Request) {
	resp := matchesResponse{
		Matches:   []gateway.MatchSummary{},
		Favorites: s.listFavorites(r),
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	league := strings.TrimSpace(r.FormValue("league"))
	gameweek, err := parseGameweek(r.FormValue("gameweek"))
	if err == nil {
		var matches []gateway.MatchSummary
		matches, err = s.gateway.GetMatches(r.Context(), league, gameweek)
		if err == nil && matches != nil {
			resp.Matches = matches
		}
	}

	if err != nil {
		var status int
		status, resp.Error = errorFor(w, r, err)
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleTeam(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	teamID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		err = &gateway.ValidationError{Field: "team_id", Value: raw, Rule: "numeric"}
	} else {
		var team gateway.TeamDetail
		team, err = s.gateway.GetTeam(r.Context(), teamID)
		if err == nil {
			writeJSON(w, http.StatusOK, teamResponse{Team: team})
			return
		}
	}

	status, body := errorFor(w, r, err)
	writeJSON(w, status, teamResponse{Error: body})
}

func (s *server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	list, err := s.favorites.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []favorites.Favorite{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"favorites": list})
}

type favoriteInput struct {
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
}

// handleAddFavorite accepts a form post or a JSON body with team_id and
// team_name. It answers 201 for a new favorite and 200 when the team was
// already stored.
func (s *server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	var in favoriteInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, r, fmt.Errorf("%w: decode body: %v", favorites.ErrInvalidFavorite, err))
			return
		}
	} else {
		in.TeamID = r.FormValue("team_id")
		in.TeamName = r.FormValue("team_name")
	}

	fav := favorites.Favorite{ID: in.TeamID, Name: in.TeamName}
	added, err := s.favorites.Add(r.Context(), fav)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
		hlog.FromRequest(r).Info().Str("team_id", strings.TrimSpace(in.TeamID)).Msg("Favorite added")
	}
	writeJSON(w, status, map[string]any{"added": added})
}

// listFavorites returns the stored favorites, or an empty list when they
// cannot be read.
func (s *server) listFavorites(r *http.Request) []favorites.Favorite {
	list, err := s.favorites.List(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to load favorites")
		return []favorites.Favorite{}
	}
	if list == nil {
		return []favorites.Favorite{}
	}
	return list
}

func parseGameweek(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &gateway.ValidationError{Field: "gameweek", Rule: "required"}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &gateway.ValidationError{Field: "gameweek", Value: raw, Rule: "numeric"}
	}
	return n, nil
}
