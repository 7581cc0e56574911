package redis

import (
	"fmt"
	"time"
)

// Config holds Redis cache configuration
type Config struct {
	Enabled    bool          `json:"enabled" yaml:"enabled" env:"ENABLED"`
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl" env:"DEFAULT_TTL"`

	// Redis Connection
	Host     string `json:"host" yaml:"host" env:"HOST"`
	Port     int    `json:"port" yaml:"port" env:"PORT"`
	Password string `json:"password" yaml:"password" env:"PASSWORD"`
	Database int    `json:"database" yaml:"database" env:"DATABASE"`

	// Connection Pool
	PoolSize     int           `json:"pool_size" yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	MaxConnAge   time.Duration `json:"max_conn_age" yaml:"max_conn_age" env:"MAX_CONN_AGE"`
	PoolTimeout  time.Duration `json:"pool_timeout" yaml:"pool_timeout" env:"POOL_TIMEOUT"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"IDLE_TIMEOUT"`

	// Performance
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" env:"DIAL_TIMEOUT"`

	// Clustering (for Redis Cluster)
	Cluster ClusterConfig `json:"cluster" yaml:"cluster" envPrefix:"CLUSTER_"`

	// Cache Logging
	Logging LoggingConfig `json:"logging" yaml:"logging" envPrefix:"LOG_"`

	// Large Value Handling
	LargeValue LargeValueConfig `json:"large_value" yaml:"large_value" envPrefix:"LARGE_"`
}

// ClusterConfig for Redis Cluster setup
type ClusterConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Addresses []string `json:"addresses" yaml:"addresses" env:"ADDRESSES" envSeparator:","`
	Username  string   `json:"username" yaml:"username" env:"USERNAME"`
	Password  string   `json:"password" yaml:"password" env:"PASSWORD"`
}

// LoggingConfig controls which cache events are logged at debug level
type LoggingConfig struct {
	LogCacheHits   bool `json:"log_cache_hits" yaml:"log_cache_hits" env:"CACHE_HITS"`
	LogCacheMisses bool `json:"log_cache_misses" yaml:"log_cache_misses" env:"CACHE_MISSES"`
}

// LargeValueConfig controls handling of large cache values
type LargeValueConfig struct {
	MaxValueSize      int  `json:"max_value_size" yaml:"max_value_size" env:"MAX_VALUE_SIZE"`             // Maximum size per key (bytes)
	ChunkSize         int  `json:"chunk_size" yaml:"chunk_size" env:"CHUNK_SIZE"`                         // Size per chunk (bytes)
	CompressThreshold int  `json:"compress_threshold" yaml:"compress_threshold" env:"COMPRESS_THRESHOLD"` // Auto-compress above this size
	EnableCompression bool `json:"enable_compression" yaml:"enable_compression" env:"ENABLE_COMPRESSION"`
	EnableChunking    bool `json:"enable_chunking" yaml:"enable_chunking" env:"ENABLE_CHUNKING"`
}

// DefaultConfig returns a Redis configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		DefaultTTL:   time.Hour,
		Host:         "localhost",
		Port:         6379,
		Database:     0,
		PoolSize:     10,
		MinIdleConns: 3,
		MaxConnAge:   time.Hour,
		PoolTimeout:  time.Second * 4,
		IdleTimeout:  time.Minute * 5,
		ReadTimeout:  time.Second * 3,
		WriteTimeout: time.Second * 3,
		DialTimeout:  time.Second * 5,
		Logging: LoggingConfig{
			LogCacheHits:   false,
			LogCacheMisses: true,
		},
		LargeValue: LargeValueConfig{
			MaxValueSize:      1024 * 1024 * 10, // 10MB max per key
			ChunkSize:         1024 * 1024 * 2,  // 2MB per chunk
			CompressThreshold: 1024 * 100,       // Compress values larger than 100KB
			EnableCompression: true,
			EnableChunking:    true,
		},
	}
}

// Validate checks if the Redis configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil // Skip validation if cache is disabled
	}

	if c.Host == "" && !c.IsClusterMode() {
		return fmt.Errorf("redis host is required when cache is enabled")
	}
	if c.Port <= 0 && !c.IsClusterMode() {
		return fmt.Errorf("redis port must be positive")
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("default_ttl must be positive when cache is enabled")
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1")
	}

	return nil
}

// GetAddr returns the Redis connection address
func (c *Config) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsClusterMode returns true if Redis cluster is enabled
func (c *Config) IsClusterMode() bool {
	return c.Cluster.Enabled && len(c.Cluster.Addresses) > 0
}
