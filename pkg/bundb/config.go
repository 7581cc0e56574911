package bundb

import (
	"fmt"
	"strings"
	"time"

	"github.com/ammar0144/rowrepo/pkg/db"
)

// Config selects a driver and connection for a bun-backed executor.
//
// Driver is one of mysql, postgres (lib/pq), pgx or sqlite. For SQLite an
// in-memory DSN keeps a single connection open so every statement sees the
// same database.
type Config struct {
	Driver string `json:"driver" yaml:"driver" env:"DRIVER"`
	DSN    string `json:"dsn" yaml:"dsn" env:"DSN"`

	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnectTimeout  time.Duration `json:"connect_timeout" yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`

	// QueryLog prints every statement through bundebug; BUNDEBUG overrides it
	QueryLog           bool          `json:"query_log" yaml:"query_log" env:"QUERY_LOG"`
	SlowQueryThreshold time.Duration `json:"slow_query_threshold" yaml:"slow_query_threshold" env:"SLOW_QUERY_THRESHOLD"`
}

// DefaultConfig returns an in-memory SQLite configuration
func DefaultConfig() Config {
	return Config{
		Driver:             "sqlite",
		DSN:                "file::memory:?cache=shared",
		MaxOpenConns:       10,
		MaxIdleConns:       5,
		ConnMaxLifetime:    time.Hour,
		ConnectTimeout:     10 * time.Second,
		SlowQueryThreshold: 200 * time.Millisecond,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if _, err := db.ParseDialect(c.Driver); err != nil {
		return err
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("connection pool sizes cannot be negative")
	}
	return nil
}

func (c Config) inMemory() bool {
	return strings.Contains(c.DSN, ":memory:") || strings.Contains(c.DSN, "mode=memory")
}
