package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Executor runs repository statements over the gorm connection of a Manager.
// Statement text comes from Builder; gorm provides the pool, logging and
// schema introspection. Generated ids rely on MySQL's LAST_INSERT_ID, which
// for a multi-row INSERT is the id of the first inserted row.
type Executor struct {
	manager *Manager
	dialect Dialect
}

// NewExecutor creates an executor for a MySQL manager
func NewExecutor(manager *Manager) *Executor {
	return &Executor{manager: manager, dialect: MySQL}
}

// Dialect returns the SQL dialect statements are built for
func (e *Executor) Dialect() Dialect {
	return e.dialect
}

// QuoteIdentifier quotes a table or column name
func (e *Executor) QuoteIdentifier(name string) string {
	return e.dialect.Quote(name)
}

// Select runs a SELECT and returns the rows
func (e *Executor) Select(ctx context.Context, q SelectQuery) ([]Row, error) {
	ctx, cancel := e.manager.withQueryTimeout(ctx)
	defer cancel()

	query, args := NewBuilder(e.dialect, q.Table).FromSelectQuery(q).BuildSelect()
	rows, err := e.manager.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	return ScanRows(rows)
}

// Columns returns the nullability of every column of table
func (e *Executor) Columns(ctx context.Context, table string) (Columns, error) {
	ctx, cancel := e.manager.withQueryTimeout(ctx)
	defer cancel()

	columnTypes, err := e.manager.db.WithContext(ctx).Migrator().ColumnTypes(table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	if len(columnTypes) == 0 {
		return nil, fmt.Errorf("table %s has no columns", table)
	}

	columns := make(Columns, len(columnTypes))
	for _, ct := range columnTypes {
		nullable, ok := ct.Nullable()
		columns[ct.Name()] = ok && nullable
	}
	return columns, nil
}

// Insert inserts one row and returns the generated id
func (e *Executor) Insert(ctx context.Context, table string, row Row) (int64, error) {
	ctx, cancel := e.manager.withQueryTimeout(ctx)
	defer cancel()

	sqlDB, err := e.manager.SqlDB()
	if err != nil {
		return 0, err
	}

	query, args := NewBuilder(e.dialect, table).BuildInsert(row, "")
	result, err := sqlDB.ExecContext(ctx, query, args...)
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
func (e *Executor) Update(ctx context.Context, table string, row Row, key Criteria) (int64, error) {
	query, args := NewBuilder(e.dialect, table).WhereCriteria(key).BuildUpdate(row)
	if query == "" {
		return 0, nil
	}
	return e.exec(ctx, query, args)
}

// Delete removes every record matching key
func (e *Executor) Delete(ctx context.Context, table string, key Criteria) (int64, error) {
	query, args := NewBuilder(e.dialect, table).WhereCriteria(key).BuildDelete()
	return e.exec(ctx, query, args)
}

// BatchUpsert inserts or updates rows. Rows with a nil key are inserted and
// receive contiguous ids starting at FirstID. Rows that write the same
// columns share one statement; a batch with mixed column sets runs one
// statement per run inside a transaction.
func (e *Executor) BatchUpsert(ctx context.Context, table string, key string, rows []Row) (UpsertResult, error) {
	if len(rows) == 0 {
		return UpsertResult{}, nil
	}

	ctx, cancel := e.manager.withQueryTimeout(ctx)
	defer cancel()

	runs := UpsertRuns(key, rows)
	if len(runs) == 1 {
		sqlDB, err := e.manager.SqlDB()
		if err != nil {
			return UpsertResult{}, err
		}
		return e.upsertRun(ctx, sqlDB, table, key, rows)
	}

	var merged UpsertResult
	err := e.manager.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		results := make([]UpsertResult, len(runs))
		for i, run := range runs {
			result, err := e.upsertRun(ctx, tx.Statement.ConnPool, table, key, run)
			if err != nil {
				return err
			}
			results[i] = result
		}

		var err error
		merged, err = MergeUpsertResults(key, runs, results)
		if err != nil {
			return fmt.Errorf("batch upsert into %s: %w", table, err)
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return merged, nil
}

func (e *Executor) upsertRun(ctx context.Context, conn gorm.ConnPool, table, key string, rows []Row) (UpsertResult, error) {
	query, args, err := NewBuilder(e.dialect, table).BuildUpsert(key, rows)
	if err != nil {
		return UpsertResult{}, err
	}

	result, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("batch upsert into %s: %w", table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return UpsertResult{}, fmt.Errorf("batch upsert into %s: %w", table, err)
	}

	var firstID int64
	if CountNewKeys(key, rows) > 0 {
		if firstID, err = result.LastInsertId(); err != nil {
			return UpsertResult{}, fmt.Errorf("batch upsert into %s: reading generated id: %w", table, err)
		}
	}

	return UpsertResult{Affected: affected, FirstID: firstID}, nil
}

func (e *Executor) exec(ctx context.Context, query string, args []interface{}) (int64, error) {
	ctx, cancel := e.manager.withQueryTimeout(ctx)
	defer cancel()

	result := e.manager.db.WithContext(ctx).Exec(query, args...)
	if result.Error != nil {
		return 0, fmt.Errorf("database error: %w", result.Error)
	}
	return result.RowsAffected, nil
}
