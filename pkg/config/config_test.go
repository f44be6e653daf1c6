package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_RequiresAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("FOOTBALL_DATA_API_KEY", "")

	if _, err := Load(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestLoad_FallbackAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("FOOTBALL_DATA_API_KEY", "legacy-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.APIKey != "legacy-key" {
		t.Fatalf("unexpected APIKey: %q", cfg.APIKey)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("API_KEY", "key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.CacheTTL != 300*time.Second {
		t.Errorf("CacheTTL = %v, want 300s", cfg.CacheTTL)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.DailyQuota != 200 || cfg.HourlyQuota != 50 {
		t.Errorf("quotas = %d/%d, want 200/50", cfg.DailyQuota, cfg.HourlyQuota)
	}
	if cfg.AttemptTimeout != 5*time.Second {
		t.Errorf("AttemptTimeout = %v, want 5s", cfg.AttemptTimeout)
	}
	if cfg.UpstreamPerMinute != 10 {
		t.Errorf("UpstreamPerMinute = %d, want 10", cfg.UpstreamPerMinute)
	}
	if cfg.UpstreamBaseURL != "https://api.football-data.org" {
		t.Errorf("UpstreamBaseURL = %q", cfg.UpstreamBaseURL)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("Addr() = %q, want :8080", cfg.Addr())
	}
	if cfg.FavoritesFile != "favorites.json" {
		t.Errorf("FavoritesFile = %q", cfg.FavoritesFile)
	}
	if cfg.RedisURL != "" || cfg.TrustForwardedFor || cfg.LogPretty {
		t.Errorf("unexpected opt-in defaults: %+v", cfg)
	}
	if len(cfg.WarmLeagues) != 0 || cfg.WarmFrom != 1 || cfg.WarmTo != 38 {
		t.Errorf("warmup defaults = %v %d-%d", cfg.WarmLeagues, cfg.WarmFrom, cfg.WarmTo)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("API_KEY", "key")
	t.Setenv("CACHE_TTL_SECONDS", "60")
	t.Setenv("MAX_RETRIES", "0")
	t.Setenv("DAILY_QUOTA", "1000")
	t.Setenv("HOURLY_QUOTA", "100")
	t.Setenv("ATTEMPT_TIMEOUT", "2s")
	t.Setenv("UPSTREAM_BASE_URL", "http://localhost:9999/")
	t.Setenv("UPSTREAM_RATE_PER_MINUTE", "0")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TRUST_FORWARDED_FOR", "true")
	t.Setenv("WARM_LEAGUES", "pl, bl1")
	t.Setenv("WARM_MATCHDAYS", "3-5")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.CacheTTL != time.Minute || cfg.MaxRetries != 0 || cfg.DailyQuota != 1000 || cfg.HourlyQuota != 100 {
		t.Errorf("unexpected numeric overrides: %+v", cfg)
	}
	if cfg.AttemptTimeout != 2*time.Second {
		t.Errorf("AttemptTimeout = %v", cfg.AttemptTimeout)
	}
	if cfg.UpstreamBaseURL != "http://localhost:9999" {
		t.Errorf("UpstreamBaseURL = %q", cfg.UpstreamBaseURL)
	}
	if cfg.UpstreamPerMinute != 0 {
		t.Errorf("UpstreamPerMinute = %d", cfg.UpstreamPerMinute)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" || !cfg.TrustForwardedFor {
		t.Errorf("unexpected opt-ins: %+v", cfg)
	}
	if len(cfg.WarmLeagues) != 2 || cfg.WarmLeagues[0] != "PL" || cfg.WarmLeagues[1] != "BL1" {
		t.Errorf("WarmLeagues = %v", cfg.WarmLeagues)
	}
	if cfg.WarmFrom != 3 || cfg.WarmTo != 5 {
		t.Errorf("warm range = %d-%d", cfg.WarmFrom, cfg.WarmTo)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"CACHE_TTL_SECONDS", "abc"},
		{"CACHE_TTL_SECONDS", "0"},
		{"MAX_RETRIES", "-1"},
		{"ATTEMPT_TIMEOUT", "soon"},
		{"UPSTREAM_RATE_PER_MINUTE", "-5"},
		{"DAILY_QUOTA", "0"},
		{"HOURLY_QUOTA", "many"},
		{"LOG_PRETTY", "perhaps"},
		{"LOG_LEVEL", "loud"},
		{"SHUTDOWN_TIMEOUT", "later"},
		{"UPSTREAM_BASE_URL", "ftp://example.com"},
		{"WARM_LEAGUES", "PL,XX"},
		{"WARM_MATCHDAYS", "0-10"},
		{"WARM_MATCHDAYS", "10-5"},
		{"WARM_MATCHDAYS", "1-39"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv("API_KEY", "key")
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestParseRange_SingleMatchday(t *testing.T) {
	from, to, err := parseRange("7")
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if from != 7 || to != 7 {
		t.Errorf("range = %d-%d, want 7-7", from, to)
	}
}
