package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const DefaultAdminTokenEnv = "ACCESSDASH_ADMIN_TOKEN"

func Validate(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	warnings := []string{}
	if err := validateCache(cfg, &warnings); err != nil {
		return warnings, err
	}
	if err := validateStore(cfg, &warnings); err != nil {
		return warnings, err
	}
	if err := validateInsights(cfg, &warnings); err != nil {
		return warnings, err
	}
	if err := validateAPI(cfg, &warnings); err != nil {
		return warnings, err
	}
	if err := validateLimits(cfg); err != nil {
		return warnings, err
	}
	return warnings, nil
}

func validateCache(cfg *Config, warnings *[]string) error {
	if cfg.Cache.DefaultTTLMS < 0 {
		*warnings = append(*warnings, "cache default_ttl_ms is negative; cached lookups never expire")
	}
	if Millis(cfg.Cache.DefaultTTLMS) > time.Hour {
		*warnings = append(*warnings, "cache default_ttl_ms exceeds 1h")
	}
	if cfg.Cache.MaxFlights < 0 {
		return errors.New("cache.max_flights must be >= 0")
	}
	return nil
}

func validateStore(cfg *Config, warnings *[]string) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case "", StoreDriverMemory:
		if strings.TrimSpace(cfg.Store.SeedFile) == "" {
			*warnings = append(*warnings, "store seed_file missing; starting with an empty store")
			if cfg.Store.Watch {
				return errors.New("store.watch requires store.seed_file")
			}
		}
	case StoreDriverSpanner:
		if strings.TrimSpace(cfg.Store.SpannerDatabase) == "" {
			return errors.New("store.spanner_database is required for the spanner driver")
		}
		if cfg.Store.Watch {
			return errors.New("store.watch is only supported by the memory driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return nil
}

func validateInsights(cfg *Config, warnings *[]string) error {
	if !cfg.Insights.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Insights.Model) == "" {
		return errors.New("insights.model is required when insights are enabled")
	}
	if cfg.Insights.TTLMS < 0 || cfg.Insights.TimeoutMS < 0 {
		return errors.New("insights ttl_ms and timeout_ms must be >= 0")
	}
	b := cfg.Insights.Breaker
	if b.FailureRatePercent < 0 || b.FailureRatePercent > 100 {
		return errors.New("insights.breaker.failure_rate_percent must be between 0 and 100")
	}
	if b.MinimumRequests < 0 || b.WindowMS < 0 || b.OpenMS < 0 {
		return errors.New("insights.breaker values must be >= 0")
	}
	if cfg.Insights.TimeoutMS == 0 {
		*warnings = append(*warnings, "insights timeout_ms unset; generation is bounded only by the request")
	}
	return nil
}

func validateAPI(cfg *Config, warnings *[]string) error {
	if cfg.API.RateLimitRPS < 0 || cfg.API.RateLimitBurst < 0 {
		return errors.New("api rate limits must be >= 0")
	}
	if AdminToken(cfg) == "" {
		*warnings = append(*warnings, fmt.Sprintf("admin token missing in %s; cache admin routes disabled", adminTokenEnv(cfg)))
	}
	return nil
}

func validateLimits(cfg *Config) error {
	l := cfg.Limits
	if l.ReadHeaderTimeoutMS < 0 || l.ReadTimeoutMS < 0 || l.WriteTimeoutMS < 0 || l.IdleTimeoutMS < 0 {
		return errors.New("limits timeouts must be >= 0")
	}
	if l.MaxHeaderBytes < 0 {
		return errors.New("limits.max_header_bytes must be >= 0")
	}
	if cfg.Shutdown.GracefulTimeoutMS < 0 {
		return errors.New("shutdown.graceful_timeout_ms must be >= 0")
	}
	return nil
}

// AdminToken returns the bearer token guarding cache admin routes, read
// from the configured environment variable.
func AdminToken(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	return strings.TrimSpace(os.Getenv(adminTokenEnv(cfg)))
}

func adminTokenEnv(cfg *Config) string {
	env := strings.TrimSpace(cfg.API.AdminTokenEnv)
	if env == "" {
		env = DefaultAdminTokenEnv
	}
	return env
}

func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
