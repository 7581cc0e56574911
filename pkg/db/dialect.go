package db

import (
	"fmt"
	"strings"
)

// Dialect selects identifier quoting and upsert syntax.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect maps a driver or dialect name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pg", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3", "sqliteshim":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported dialect: %q", name)
	}
}

// Quote quotes an identifier, doubling any embedded quote character.
func (d Dialect) Quote(name string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Returning reports whether INSERT ... RETURNING is used to read generated keys.
func (d Dialect) Returning() bool {
	return d == Postgres
}
