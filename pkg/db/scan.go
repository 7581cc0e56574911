package db

import (
	"database/sql"
	"fmt"
)

// ScanRows reads every remaining row into a Row. Text returned by drivers
// as []byte is converted to string so rows compare and serialize cleanly.
func ScanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var result []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return result, nil
}

func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// IsNewKey reports whether a key value means "not yet generated".
func IsNewKey(v interface{}) bool {
	switch k := v.(type) {
	case nil:
		return true
	case int64:
		return k == 0
	case int:
		return k == 0
	case int32:
		return k == 0
	case uint64:
		return k == 0
	case string:
		return k == ""
	default:
		return false
	}
}

// CountNewKeys counts the rows whose key column still needs a generated value.
func CountNewKeys(key string, rows []Row) int64 {
	var n int64
	for _, row := range rows {
		if IsNewKey(row[key]) {
			n++
		}
	}
	return n
}
