package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ammar0144/rowrepo/pkg/bundb"
	"github.com/ammar0144/rowrepo/pkg/cache"
	"github.com/ammar0144/rowrepo/pkg/db"
	"github.com/ammar0144/rowrepo/pkg/logging"
	"github.com/ammar0144/rowrepo/pkg/redis"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "ROWREPO_"

// Backends
const (
	BackendBun  = "bun"
	BackendGorm = "gorm"
)

// Result cache kinds
const (
	ResultCacheNone  = "none"
	ResultCacheLocal = "local"
	ResultCacheRedis = "redis"
)

// Config is the complete runtime configuration. Only the sections selected
// by Backend and ResultCache are validated.
type Config struct {
	Backend        string        `json:"backend" yaml:"backend" env:"BACKEND"`
	ResultCache    string        `json:"result_cache" yaml:"result_cache" env:"RESULT_CACHE"`
	ResultCacheTTL time.Duration `json:"result_cache_ttl" yaml:"result_cache_ttl" env:"RESULT_CACHE_TTL"`

	Database db.Config      `json:"database" yaml:"database" envPrefix:"DB_"`
	Bun      bundb.Config   `json:"bun" yaml:"bun" envPrefix:"BUN_"`
	Redis    redis.Config   `json:"redis" yaml:"redis" envPrefix:"REDIS_"`
	Cache    cache.Config   `json:"cache" yaml:"cache" envPrefix:"CACHE_"`
	Logging  logging.Config `json:"logging" yaml:"logging" envPrefix:"LOG_"`
}

// Default returns the bun/SQLite in-memory configuration without a result cache
func Default() *Config {
	return &Config{
		Backend:        BackendBun,
		ResultCache:    ResultCacheNone,
		ResultCacheTTL: 5 * time.Minute,
		Database:       *db.DefaultConfig(),
		Bun:            bundb.DefaultConfig(),
		Redis:          *redis.DefaultConfig(),
		Cache:          cache.DefaultConfig(),
		Logging:        logging.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults, applies ROWREPO_
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.ResultCache = strings.ToLower(strings.TrimSpace(c.ResultCache))
	if c.ResultCache == "" {
		c.ResultCache = ResultCacheNone
	}
}

// Validate checks the selected backend, result cache and logging sections.
// Backend and ResultCache are lowercased first and an empty ResultCache
// becomes "none".
func (c *Config) Validate() error {
	c.normalize()

	switch c.Backend {
	case BackendBun:
		if err := c.Bun.Validate(); err != nil {
			return fmt.Errorf("bun: %w", err)
		}
	case BackendGorm:
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}

	switch c.ResultCache {
	case ResultCacheNone:
	case ResultCacheLocal:
		if err := c.Cache.Validate(); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	case ResultCacheRedis:
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	default:
		return fmt.Errorf("unsupported result cache %q", c.ResultCache)
	}

	if c.ResultCacheTTL < 0 {
		return fmt.Errorf("result_cache_ttl cannot be negative")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
