package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	// ErrConfiguration is matched by every *ConfigurationError
	ErrConfiguration = errors.New("repository configuration error")

	// ErrNotPersisted is returned when deleting an entity that has no id
	ErrNotPersisted = errors.New("entity has not been persisted")

	// ErrGeneratedIDUnavailable is returned when a batch upsert inserted
	// rows but the store reported no generated id for them
	ErrGeneratedIDUnavailable = errors.New("generated id unavailable")
)

const (
	mysqlDuplicateEntry   = 1062
	sqlStateUniqueViolate = "23505"
)

// ConfigurationError reports a repository that cannot be constructed or
// cannot build entities.
type ConfigurationError struct {
	Entity string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("repository configuration: %s", e.Reason)
	}
	return fmt.Sprintf("repository configuration for %s: %s", e.Entity, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// IsConfigurationError checks if the error is a configuration error
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsNotPersisted checks if the error reports an unsaved entity
func IsNotPersisted(err error) bool {
	return errors.Is(err, ErrNotPersisted)
}

// IsDuplicateKeyError reports whether err is a unique-constraint violation
// from MySQL, PostgreSQL or SQLite. Driver error types are checked first,
// then the messages of drivers that only expose text.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == sqlStateUniqueViolate
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateUniqueViolate
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "error 1062") ||
		strings.Contains(msg, "sqlstate 23505")
}
