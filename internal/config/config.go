package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string         `json:"listen_addr" yaml:"listen_addr"`
	AdminAddr  string         `json:"admin_addr" yaml:"admin_addr"`
	Log        LogConfig      `json:"log" yaml:"log"`
	Cache      CacheConfig    `json:"cache" yaml:"cache"`
	Store      StoreConfig    `json:"store" yaml:"store"`
	Insights   InsightsConfig `json:"insights" yaml:"insights"`
	API        APIConfig      `json:"api" yaml:"api"`
	Limits     LimitsConfig   `json:"limits" yaml:"limits"`
	Shutdown   ShutdownConfig `json:"shutdown" yaml:"shutdown"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type CacheConfig struct {
	DefaultTTLMS int   `json:"default_ttl_ms" yaml:"default_ttl_ms"`
	Coalesce     *bool `json:"coalesce" yaml:"coalesce"`
	MaxFlights   int   `json:"max_flights" yaml:"max_flights"`
}

type StoreConfig struct {
	Driver          string `json:"driver" yaml:"driver"`
	SeedFile        string `json:"seed_file" yaml:"seed_file"`
	Watch           bool   `json:"watch" yaml:"watch"`
	SpannerDatabase string `json:"spanner_database" yaml:"spanner_database"`
}

type InsightsConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Host      string        `json:"host" yaml:"host"`
	Model     string        `json:"model" yaml:"model"`
	TTLMS     int           `json:"ttl_ms" yaml:"ttl_ms"`
	TimeoutMS int           `json:"timeout_ms" yaml:"timeout_ms"`
	Breaker   BreakerConfig `json:"breaker" yaml:"breaker"`
}

// BreakerConfig guards the model host. Zero fields take the breaker's
// defaults.
type BreakerConfig struct {
	FailureRatePercent int `json:"failure_rate_percent" yaml:"failure_rate_percent"`
	MinimumRequests    int `json:"minimum_requests" yaml:"minimum_requests"`
	WindowMS           int `json:"window_ms" yaml:"window_ms"`
	OpenMS             int `json:"open_ms" yaml:"open_ms"`
}

type APIConfig struct {
	AdminTokenEnv  string `json:"admin_token_env" yaml:"admin_token_env"`
	RateLimitRPS   int    `json:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int    `json:"rate_limit_burst" yaml:"rate_limit_burst"`
}

type LimitsConfig struct {
	ReadHeaderTimeoutMS int `json:"read_header_timeout_ms" yaml:"read_header_timeout_ms"`
	ReadTimeoutMS       int `json:"read_timeout_ms" yaml:"read_timeout_ms"`
	WriteTimeoutMS      int `json:"write_timeout_ms" yaml:"write_timeout_ms"`
	IdleTimeoutMS       int `json:"idle_timeout_ms" yaml:"idle_timeout_ms"`
	MaxHeaderBytes      int `json:"max_header_bytes" yaml:"max_header_bytes"`
}

type ShutdownConfig struct {
	GracefulTimeoutMS int `json:"graceful_timeout_ms" yaml:"graceful_timeout_ms"`
}

const DefaultListenAddr = ":8080"

const (
	StoreDriverMemory  = "memory"
	StoreDriverSpanner = "spanner"
)

func ParseJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads a .json, .yaml or .yml config file. Relative seed paths are
// resolved against the config file's directory.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		cfg, err = ParseJSON(data)
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Store.SeedFile != "" && !filepath.IsAbs(cfg.Store.SeedFile) {
		cfg.Store.SeedFile = filepath.Join(filepath.Dir(path), cfg.Store.SeedFile)
	}
	return cfg, nil
}

func (c CacheConfig) CoalesceEnabled() bool {
	if c.Coalesce == nil {
		return true
	}
	return *c.Coalesce
}
