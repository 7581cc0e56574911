package bundb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"github.com/ammar0144/rowrepo/pkg/db"
)

// Executor runs repository statements through bun. It works on a *bun.DB or
// inside a bun.Tx. bun interpolates the ? placeholders itself, so the same
// statement text serves MySQL, PostgreSQL and SQLite.
type Executor struct {
	db        bun.IDB
	dialect   db.Dialect
	keyColumn string
}

// NewExecutor creates an executor for the dialect bunDB was opened with
func NewExecutor(bunDB bun.IDB) (*Executor, error) {
	dialect, err := db.ParseDialect(bunDB.Dialect().Name().String())
	if err != nil {
		return nil, err
	}
	return &Executor{db: bunDB, dialect: dialect, keyColumn: "id"}, nil
}

// WithKeyColumn sets the generated key column read back by Insert
func (e *Executor) WithKeyColumn(column string) *Executor {
	e.keyColumn = column
	return e
}

// Dialect returns the SQL dialect in use
func (e *Executor) Dialect() db.Dialect {
	return e.dialect
}

// QuoteIdentifier quotes a table or column name
func (e *Executor) QuoteIdentifier(name string) string {
	return e.dialect.Quote(name)
}

// Select runs a SELECT and returns the rows
func (e *Executor) Select(ctx context.Context, q db.SelectQuery) ([]db.Row, error) {
	query, args := db.NewBuilder(e.dialect, q.Table).FromSelectQuery(q).BuildSelect()
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", q.Table, err)
	}
	defer rows.Close()

	return db.ScanRows(rows)
}

// Columns returns the nullability of every column of table
func (e *Executor) Columns(ctx context.Context, table string) (db.Columns, error) {
	var query string
	switch e.dialect {
	case db.SQLite:
		query = `SELECT name, CASE WHEN "notnull" = 0 THEN 'YES' ELSE 'NO' END FROM pragma_table_info(?)`
	case db.MySQL:
		query = `SELECT COLUMN_NAME, IS_NULLABLE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`
	default:
		query = `SELECT column_name, is_nullable FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ?`
	}

	rows, err := e.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	columns := make(db.Columns)
	for rows.Next() {
		var name, nullable string
		if err := rows.Scan(&name, &nullable); err != nil {
			return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
		}
		columns[name] = strings.EqualFold(nullable, "YES")
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns", table)
	}
	return columns, nil
}

// Insert inserts one row and returns the generated key
func (e *Executor) Insert(ctx context.Context, table string, row db.Row) (int64, error) {
	query, args := db.NewBuilder(e.dialect, table).BuildInsert(row, e.keyColumn)

	if e.dialect.Returning() {
		var id int64
		if err := e.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		return id, nil
	}

	result, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert into %s: reading generated id: %w", table, err)
	}
	return id, nil
}

// Update sets row on every record matching key
func (e *Executor) Update(ctx context.Context, table string, row db.Row, key db.Criteria) (int64, error) {
	query, args := db.NewBuilder(e.dialect, table).WhereCriteria(key).BuildUpdate(row)
	if query == "" {
		return 0, nil
	}
	return e.exec(ctx, query, args)
}

// Delete removes every record matching key
func (e *Executor) Delete(ctx context.Context, table string, key db.Criteria) (int64, error) {
	query, args := db.NewBuilder(e.dialect, table).WhereCriteria(key).BuildDelete()
	return e.exec(ctx, query, args)
}

// BatchUpsert writes rows in one statement when they all write the same
// columns. Mixed rows are written one statement per run of matching rows,
// inside a transaction, so a column a row leaves out is never written.
//
// PostgreSQL returns every written key and the first key not supplied by the
// caller is the first generated id. MySQL reports the first generated id
// directly; SQLite reports the last one, from which the first is derived.
func (e *Executor) BatchUpsert(ctx context.Context, table string, key string, rows []db.Row) (db.UpsertResult, error) {
	if len(rows) == 0 {
		return db.UpsertResult{}, nil
	}

	runs := db.UpsertRuns(key, rows)
	if len(runs) == 1 {
		return e.upsertRun(ctx, e.db, table, key, rows)
	}

	var merged db.UpsertResult
	err := e.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		results := make([]db.UpsertResult, len(runs))
		for i, run := range runs {
			result, err := e.upsertRun(ctx, tx, table, key, run)
			if err != nil {
				return err
			}
			results[i] = result
		}

		var err error
		merged, err = db.MergeUpsertResults(key, runs, results)
		if err != nil {
			return fmt.Errorf("batch upsert into %s: %w", table, err)
		}
		return nil
	})
	if err != nil {
		return db.UpsertResult{}, err
	}
	return merged, nil
}

func (e *Executor) upsertRun(ctx context.Context, conn bun.IConn, table, key string, rows []db.Row) (db.UpsertResult, error) {
	query, args, err := db.NewBuilder(e.dialect, table).BuildUpsert(key, rows)
	if err != nil {
		return db.UpsertResult{}, err
	}

	if e.dialect.Returning() {
		return upsertReturning(ctx, conn, table, key, rows, query, args)
	}

	result, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return db.UpsertResult{}, fmt.Errorf("batch upsert into %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return db.UpsertResult{}, fmt.Errorf("batch upsert into %s: %w", table, err)
	}

	newKeys := db.CountNewKeys(key, rows)
	if newKeys == 0 {
		return db.UpsertResult{Affected: affected}, nil
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return db.UpsertResult{}, fmt.Errorf("batch upsert into %s: reading generated id: %w", table, err)
	}

	firstID := lastID
	if e.dialect == db.SQLite && lastID > 0 {
		firstID = lastID - newKeys + 1
	}
	return db.UpsertResult{Affected: affected, FirstID: firstID}, nil
}

func upsertReturning(ctx context.Context, conn bun.IConn, table, key string, rows []db.Row, query string, args []interface{}) (db.UpsertResult, error) {
	supplied := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if !db.IsNewKey(row[key]) {
			supplied[fmt.Sprint(row[key])] = struct{}{}
		}
	}

	returned, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return db.UpsertResult{}, fmt.Errorf("batch upsert into %s: %w", table, err)
	}
	defer returned.Close()

	var result db.UpsertResult
	for returned.Next() {
		var id int64
		if err := returned.Scan(&id); err != nil {
			return db.UpsertResult{}, fmt.Errorf("batch upsert into %s: %w", table, err)
		}
		result.Affected++
		if _, ok := supplied[fmt.Sprint(id)]; !ok && result.FirstID == 0 {
			result.FirstID = id
		}
	}
	if err := returned.Err(); err != nil {
		return db.UpsertResult{}, fmt.Errorf("batch upsert into %s: %w", table, err)
	}
	return result, nil
}

func (e *Executor) exec(ctx context.Context, query string, args []interface{}) (int64, error) {
	result, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	return affected, nil
}

// RunInTx runs fn with an executor bound to a transaction
func RunInTx(ctx context.Context, bunDB *bun.DB, fn func(ctx context.Context, exec *Executor) error) error {
	return bunDB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exec, err := NewExecutor(tx)
		if err != nil {
			return err
		}
		return fn(ctx, exec)
	})
}
