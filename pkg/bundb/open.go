package bundb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/ammar0144/rowrepo/pkg/db"
)

// Open connects to the configured database and verifies the connection
func Open(ctx context.Context, cfg Config, log logrus.FieldLogger) (*bun.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bun configuration: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	dialect, _ := db.ParseDialect(cfg.Driver)

	var (
		sqlDB *sql.DB
		bunDB *bun.DB
		err   error
	)
	switch dialect {
	case db.MySQL:
		sqlDB, err = sql.Open("mysql", cfg.DSN)
		if err == nil {
			bunDB = bun.NewDB(sqlDB, mysqldialect.New())
		}
	case db.Postgres:
		driver := "postgres"
		if strings.EqualFold(cfg.Driver, "pgx") {
			driver = "pgx"
		}
		sqlDB, err = sql.Open(driver, cfg.DSN)
		if err == nil {
			bunDB = bun.NewDB(sqlDB, pgdialect.New())
		}
	case db.SQLite:
		sqlDB, err = sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err == nil {
			bunDB = bun.NewDB(sqlDB, sqlitedialect.New())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	configurePool(sqlDB, cfg, dialect)

	if cfg.QueryLog {
		bunDB.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if cfg.SlowQueryThreshold > 0 {
		bunDB.AddQueryHook(&slowQueryHook{threshold: cfg.SlowQueryThreshold, log: log})
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := bunDB.PingContext(pingCtx); err != nil {
		_ = bunDB.Close()
		return nil, fmt.Errorf("database connection test failed: %w", err)
	}

	log.WithFields(logrus.Fields{"driver": cfg.Driver, "dialect": dialect}).Info("database connected")
	return bunDB, nil
}

func configurePool(sqlDB *sql.DB, cfg Config, dialect db.Dialect) {
	if dialect == db.SQLite && cfg.inMemory() {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		return
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}
