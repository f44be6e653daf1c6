// Package logging configures the process-wide zerolog logger and hands out
// per-component sub-loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServiceName is attached to every log line.
const ServiceName = "football-gateway"

// Component names passed to NewLogger.
const (
	ComponentHTTP      = "http"
	ComponentGateway   = "gateway"
	ComponentClient    = "client"
	ComponentCache     = "cache"
	ComponentFavorites = "favorites"
	ComponentWarmup    = "warmup"
)

// Config holds logger configuration.
type Config struct {
	Level zerolog.Level
	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  zerolog.InfoLevel,
		Output: os.Stderr,
	}
}

// ParseLevel accepts debug, info, warn (or warning), error and disabled,
// case-insensitively. An empty string selects info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "debug", "info", "warn", "error", "disabled":
		return zerolog.ParseLevel(s)
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// NewConfig builds a stderr Config from the LOG_LEVEL and LOG_PRETTY
// settings.
func NewConfig(level string, pretty bool) (Config, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig()
	cfg.Level = lvl
	cfg.Pretty = pretty
	return cfg, nil
}

// Setup installs the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().
		Timestamp().
		Str("service", ServiceName).
		Logger()
	log.Logger = logger

	return logger
}

// NewLogger returns a sub-logger of the global logger tagged with component.
// Call it after Setup; loggers created earlier keep the previous output.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: cache hits and misses, successful upstream attempts, warmup worker
// progress, requests rejected by validation.
//
// Info: server startup and shutdown, favorites added, quota denials, warmup
// summary, one access log line per request.
//
// Warn: upstream 429 replies and retries, cache store failures (the request
// is served uncached), failed warmup jobs, 5xx responses.
//
// Error: upstream failures after retries, unreachable upstream, limiter
// backend failures.
//
// Context fields:
//   - component: emitting package (see the Component constants)
//   - caller: quota identity of the inbound request
//   - request_id: inbound request id
//   - endpoint: upstream route template
//   - target: upstream path and query (never the token)
//   - attempt, outcome, status: retry attempt details
//   - cache_hit: whether the result came from the cache
//   - window, limit: quota window that denied a request
