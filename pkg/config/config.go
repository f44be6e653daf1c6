// Package config loads the gateway configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/football-gateway/pkg/gateway"
	"github.com/Sternrassler/football-gateway/pkg/logging"
)

// ErrMissingAPIKey is returned when neither API_KEY nor FOOTBALL_DATA_API_KEY
// is set.
var ErrMissingAPIKey = errors.New("API_KEY is required")

// Config stores runtime configuration for the gateway.
type Config struct {
	APIKey            string
	Port              string
	LogLevel          string
	LogPretty         bool
	UpstreamBaseURL   string
	CacheTTL          time.Duration
	MaxRetries        int
	AttemptTimeout    time.Duration
	UpstreamPerMinute int
	DailyQuota        int
	HourlyQuota       int
	RedisURL          string
	FavoritesFile     string
	TrustForwardedFor bool
	WarmLeagues       []string
	WarmFrom          int
	WarmTo            int
	ShutdownTimeout   time.Duration
}

func Load() (Config, error) {
	apiKey := strings.TrimSpace(getEnv("API_KEY", getEnv("FOOTBALL_DATA_API_KEY", "")))
	if apiKey == "" {
		return Config{}, ErrMissingAPIKey
	}

	cacheTTLSeconds, err := getEnvAsInt("CACHE_TTL_SECONDS", 300)
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL_SECONDS: %w", err)
	}
	if cacheTTLSeconds <= 0 {
		return Config{}, fmt.Errorf("CACHE_TTL_SECONDS must be > 0")
	}

	maxRetries, err := getEnvAsInt("MAX_RETRIES", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_RETRIES: %w", err)
	}
	if maxRetries < 0 {
		return Config{}, fmt.Errorf("MAX_RETRIES must be >= 0")
	}

	attemptTimeout, err := time.ParseDuration(getEnv("ATTEMPT_TIMEOUT", "5s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ATTEMPT_TIMEOUT: %w", err)
	}
	if attemptTimeout <= 0 {
		return Config{}, fmt.Errorf("ATTEMPT_TIMEOUT must be > 0")
	}

	perMinute, err := getEnvAsInt("UPSTREAM_RATE_PER_MINUTE", 10)
	if err != nil {
		return Config{}, fmt.Errorf("parse UPSTREAM_RATE_PER_MINUTE: %w", err)
	}
	if perMinute < 0 {
		return Config{}, fmt.Errorf("UPSTREAM_RATE_PER_MINUTE must be >= 0")
	}

	dailyQuota, err := getEnvAsInt("DAILY_QUOTA", 200)
	if err != nil {
		return Config{}, fmt.Errorf("parse DAILY_QUOTA: %w", err)
	}
	hourlyQuota, err := getEnvAsInt("HOURLY_QUOTA", 50)
	if err != nil {
		return Config{}, fmt.Errorf("parse HOURLY_QUOTA: %w", err)
	}
	if dailyQuota <= 0 || hourlyQuota <= 0 {
		return Config{}, fmt.Errorf("DAILY_QUOTA and HOURLY_QUOTA must be > 0")
	}

	logPretty, err := strconv.ParseBool(getEnv("LOG_PRETTY", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse LOG_PRETTY: %w", err)
	}

	trustXFF, err := strconv.ParseBool(getEnv("TRUST_FORWARDED_FOR", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse TRUST_FORWARDED_FOR: %w", err)
	}

	logLevel := strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info")))
	if _, err := logging.ParseLevel(logLevel); err != nil {
		return Config{}, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}

	shutdownTimeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SHUTDOWN_TIMEOUT: %w", err)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(getEnv("UPSTREAM_BASE_URL", "https://api.football-data.org")), "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return Config{}, fmt.Errorf("UPSTREAM_BASE_URL must be an http(s) URL")
	}

	warmLeagues, err := parseLeagues(getEnv("WARM_LEAGUES", ""))
	if err != nil {
		return Config{}, fmt.Errorf("parse WARM_LEAGUES: %w", err)
	}
	warmFrom, warmTo, err := parseRange(getEnv("WARM_MATCHDAYS", "1-38"))
	if err != nil {
		return Config{}, fmt.Errorf("parse WARM_MATCHDAYS: %w", err)
	}

	return Config{
		APIKey:            apiKey,
		Port:              strings.TrimSpace(getEnv("PORT", "8080")),
		LogLevel:          logLevel,
		LogPretty:         logPretty,
		UpstreamBaseURL:   baseURL,
		CacheTTL:          time.Duration(cacheTTLSeconds) * time.Second,
		MaxRetries:        maxRetries,
		AttemptTimeout:    attemptTimeout,
		UpstreamPerMinute: perMinute,
		DailyQuota:        dailyQuota,
		HourlyQuota:       hourlyQuota,
		RedisURL:          strings.TrimSpace(getEnv("REDIS_URL", "")),
		FavoritesFile:     getEnv("FAVORITES_FILE", "favorites.json"),
		TrustForwardedFor: trustXFF,
		WarmLeagues:       warmLeagues,
		WarmFrom:          warmFrom,
		WarmTo:            warmTo,
		ShutdownTimeout:   shutdownTimeout,
	}, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

// parseLeagues accepts a comma separated list of league codes.
func parseLeagues(raw string) ([]string, error) {
	known := make(map[string]bool)
	for _, code := range gateway.LeagueCodes() {
		known[code] = true
	}

	codes := splitCSV(strings.ToUpper(raw))
	for _, code := range codes {
		if !known[code] {
			return nil, fmt.Errorf("unknown league %q", code)
		}
	}
	return codes, nil
}

// parseRange parses "from-to" or a single matchday.
func parseRange(raw string) (int, int, error) {
	raw = strings.TrimSpace(raw)
	fromStr, toStr, found := strings.Cut(raw, "-")
	if !found {
		toStr = fromStr
	}

	from, err := strconv.Atoi(strings.TrimSpace(fromStr))
	if err != nil {
		return 0, 0, err
	}
	to, err := strconv.Atoi(strings.TrimSpace(toStr))
	if err != nil {
		return 0, 0, err
	}
	if from < gateway.MinGameweek || to > gateway.MaxGameweek || from > to {
		return 0, 0, fmt.Errorf("range %q must lie within %d-%d", raw, gateway.MinGameweek, gateway.MaxGameweek)
	}
	return from, to, nil
}
