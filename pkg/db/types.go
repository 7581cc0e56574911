package db

import (
	"time"

	"gorm.io/gorm"
)

// Config holds MySQL/GORM database configuration
type Config struct {
	// Connection Settings
	Host     string `json:"host" yaml:"host" env:"HOST"`
	Port     int    `json:"port" yaml:"port" env:"PORT"`
	Database string `json:"database" yaml:"database" env:"NAME"`
	Username string `json:"username" yaml:"username" env:"USERNAME"`
	Password string `json:"password" yaml:"password" env:"PASSWORD"`

	// Connection Pool Settings
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`

	// MySQL Specific Settings
	Charset   string `json:"charset" yaml:"charset" env:"CHARSET"`       // Default: utf8mb4
	Collation string `json:"collation" yaml:"collation" env:"COLLATION"` // Default: utf8mb4_unicode_ci
	TimeZone  string `json:"timezone" yaml:"timezone" env:"TIMEZONE"`    // Default: UTC

	// GORM Settings
	SkipDefaultTransaction bool          `json:"skip_default_transaction" yaml:"skip_default_transaction"`
	PrepareStmt            bool          `json:"prepare_stmt" yaml:"prepare_stmt"`
	QueryTimeout           time.Duration `json:"query_timeout" yaml:"query_timeout" env:"QUERY_TIMEOUT"`

	// SSL Configuration
	SSL SSLConfig `json:"ssl" yaml:"ssl" envPrefix:"SSL_"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging" yaml:"logging" envPrefix:"LOG_"`
}

// SSLConfig holds SSL/TLS configuration for MySQL
type SSLConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	CertFile   string `json:"cert_file" yaml:"cert_file" env:"CERT_FILE"`
	KeyFile    string `json:"key_file" yaml:"key_file" env:"KEY_FILE"`
	CAFile     string `json:"ca_file" yaml:"ca_file" env:"CA_FILE"`
	SkipVerify bool   `json:"skip_verify" yaml:"skip_verify" env:"SKIP_VERIFY"` // Skip certificate verification (not recommended for production)
	ServerName string `json:"server_name" yaml:"server_name" env:"SERVER_NAME"`
}

// LoggingConfig controls gorm's own logger
type LoggingConfig struct {
	Level              string        `json:"level" yaml:"level" env:"LEVEL"` // silent, error, warn, info
	SlowQueryThreshold time.Duration `json:"slow_query_threshold" yaml:"slow_query_threshold" env:"SLOW_QUERY_THRESHOLD"`
}

// Manager manages database connections
type Manager struct {
	config *Config
	db     *gorm.DB
}

// Row is one table row keyed by column name.
type Row = map[string]any

// Criteria maps a column to a value. A slice value means IN, nil means IS NULL.
type Criteria map[string]any

// Direction is an ORDER BY direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Order is a single ORDER BY term.
type Order struct {
	Column    string
	Direction Direction
}

// SelectQuery describes a single-table SELECT.
// Offset is only honored when Limit is greater than zero.
type SelectQuery struct {
	Table    string
	Columns  []string
	Criteria Criteria
	OrderBy  []Order
	Limit    int
	Offset   int
}

// Columns maps every column of a table to whether it accepts NULL.
type Columns map[string]bool

// Has reports whether the table has the column.
func (c Columns) Has(column string) bool {
	_, ok := c[column]
	return ok
}

// Nullable reports whether the column exists and accepts NULL.
func (c Columns) Nullable(column string) bool {
	return c[column]
}

// UpsertResult is what a batch upsert reports back.
//
// FirstID is the first auto-generated id of the batch. Callers assign
// FirstID, FirstID+1, ... to the inserted rows in submission order, which is
// only correct when the backend allocates ids contiguously for one statement
// (MySQL with innodb_autoinc_lock_mode 0 or 1, SQLite, PostgreSQL sequences
// without concurrent writers).
type UpsertResult struct {
	Affected int64
	FirstID  int64
}
