package db

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// SQL Query Builder
//
// Identifiers (table and column names) are quoted for the builder's dialect
// but are otherwise trusted: never pass user input as a table or column name.
// Values always travel as ? placeholders.

// Operator represents SQL comparison operators
type Operator string

const (
	Equal              Operator = "="
	NotEqual           Operator = "!="
	GreaterThan        Operator = ">"
	GreaterThanOrEqual Operator = ">="
	LessThan           Operator = "<"
	LessThanOrEqual    Operator = "<="
	Like               Operator = "LIKE"
	In                 Operator = "IN"
	NotIn              Operator = "NOT IN"
	IsNull             Operator = "IS NULL"
	IsNotNull          Operator = "IS NOT NULL"
)

// LogicalOperator for combining conditions
type LogicalOperator string

const (
	And LogicalOperator = "AND"
	Or  LogicalOperator = "OR"
)

// Condition represents a WHERE clause condition
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// ConditionGroup represents grouped conditions with logical operators
type ConditionGroup struct {
	Conditions []interface{} // Can be Condition or nested ConditionGroup
	Operator   LogicalOperator
}

// Builder builds single-table SQL statements
type Builder struct {
	dialect    Dialect
	table      string
	selectCols []string
	where      *ConditionGroup
	orderBy    []string
	limit      int
	offset     int
}

// NewBuilder creates a new query builder for table
func NewBuilder(dialect Dialect, table string) *Builder {
	return &Builder{
		dialect: dialect,
		table:   table,
		where:   &ConditionGroup{Operator: And},
	}
}

// Select sets the columns to select. No columns means *.
func (b *Builder) Select(cols ...string) *Builder {
	b.selectCols = cols
	return b
}

// Where adds a WHERE condition
func (b *Builder) Where(field string, operator Operator, value interface{}) *Builder {
	b.where.Conditions = append(b.where.Conditions, Condition{
		Field:    field,
		Operator: operator,
		Value:    value,
	})
	return b
}

// WhereGroup adds a grouped WHERE condition
func (b *Builder) WhereGroup(operator LogicalOperator, fn func(*ConditionGroup)) *Builder {
	group := &ConditionGroup{Operator: operator}
	fn(group)
	b.where.Conditions = append(b.where.Conditions, group)
	return b
}

// WhereCriteria adds one AND-ed condition per criteria entry, in column
// order so the generated SQL is stable: nil becomes IS NULL, a slice
// becomes IN, anything else equality.
func (b *Builder) WhereCriteria(criteria Criteria) *Builder {
	columns := make([]string, 0, len(criteria))
	for column := range criteria {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	for _, column := range columns {
		value := criteria[column]
		switch {
		case value == nil:
			b.Where(column, IsNull, nil)
		case isListValue(value):
			b.Where(column, In, value)
		default:
			b.Where(column, Equal, value)
		}
	}
	return b
}

// OrderBy adds an ORDER BY clause
func (b *Builder) OrderBy(field string, desc bool) *Builder {
	order := b.dialect.Quote(field)
	if desc {
		order += " DESC"
	} else {
		order += " ASC"
	}
	b.orderBy = append(b.orderBy, order)
	return b
}

// Limit sets the LIMIT clause
// Negative values are normalized to 0
func (b *Builder) Limit(limit int) *Builder {
	if limit < 0 {
		limit = 0
	}
	b.limit = limit
	return b
}

// Offset sets the OFFSET clause. It is only emitted together with a LIMIT.
// Negative values are normalized to 0
func (b *Builder) Offset(offset int) *Builder {
	if offset < 0 {
		offset = 0
	}
	b.offset = offset
	return b
}

// FromSelectQuery configures the builder from a SelectQuery
func (b *Builder) FromSelectQuery(q SelectQuery) *Builder {
	b.Select(q.Columns...)
	b.WhereCriteria(q.Criteria)
	for _, o := range q.OrderBy {
		b.OrderBy(o.Column, strings.EqualFold(string(o.Direction), string(Desc)))
	}
	return b.Limit(q.Limit).Offset(q.Offset)
}

// Where adds a condition to a condition group
func (g *ConditionGroup) Where(field string, operator Operator, value interface{}) *ConditionGroup {
	g.Conditions = append(g.Conditions, Condition{
		Field:    field,
		Operator: operator,
		Value:    value,
	})
	return g
}

// BuildSelect builds a SELECT query
func (b *Builder) BuildSelect() (string, []interface{}) {
	var query strings.Builder
	var args []interface{}

	query.WriteString("SELECT ")
	if len(b.selectCols) == 0 {
		query.WriteString("*")
	} else {
		query.WriteString(b.quoteAll(b.selectCols))
	}
	query.WriteString(" FROM ")
	query.WriteString(b.dialect.Quote(b.table))

	args = b.writeWhere(&query, args)

	if len(b.orderBy) > 0 {
		query.WriteString(" ORDER BY ")
		query.WriteString(strings.Join(b.orderBy, ", "))
	}

	if b.limit > 0 {
		query.WriteString(fmt.Sprintf(" LIMIT %d", b.limit))
		if b.offset > 0 {
			query.WriteString(fmt.Sprintf(" OFFSET %d", b.offset))
		}
	}

	return query.String(), args
}

// BuildInsert builds an INSERT for one row. When returning is set and the
// dialect supports it, the statement returns that column.
func (b *Builder) BuildInsert(row Row, returning string) (string, []interface{}) {
	columns := sortedColumns(row)

	var query strings.Builder
	query.WriteString("INSERT INTO ")
	query.WriteString(b.dialect.Quote(b.table))

	args := make([]interface{}, 0, len(columns))
	switch {
	case len(columns) == 0 && b.dialect == MySQL:
		query.WriteString(" () VALUES ()")
	case len(columns) == 0:
		query.WriteString(" DEFAULT VALUES")
	default:
		query.WriteString(" (")
		query.WriteString(b.quoteAll(columns))
		query.WriteString(") VALUES (")
		query.WriteString(placeholders(len(columns)))
		query.WriteString(")")
		for _, column := range columns {
			args = append(args, row[column])
		}
	}

	if returning != "" && b.dialect.Returning() {
		query.WriteString(" RETURNING ")
		query.WriteString(b.dialect.Quote(returning))
	}

	return query.String(), args
}

// BuildUpdate builds an UPDATE setting every column of row, restricted by
// the builder's WHERE conditions. An empty row yields an empty statement.
func (b *Builder) BuildUpdate(row Row) (string, []interface{}) {
	columns := sortedColumns(row)
	if len(columns) == 0 {
		return "", nil
	}

	var query strings.Builder
	query.WriteString("UPDATE ")
	query.WriteString(b.dialect.Quote(b.table))
	query.WriteString(" SET ")

	args := make([]interface{}, 0, len(columns))
	setClauses := make([]string, len(columns))
	for i, column := range columns {
		setClauses[i] = b.dialect.Quote(column) + " = ?"
		args = append(args, row[column])
	}
	query.WriteString(strings.Join(setClauses, ", "))

	args = b.writeWhere(&query, args)
	return query.String(), args
}

// BuildDelete builds a DELETE restricted by the builder's WHERE conditions
func (b *Builder) BuildDelete() (string, []interface{}) {
	var query strings.Builder
	query.WriteString("DELETE FROM ")
	query.WriteString(b.dialect.Quote(b.table))
	args := b.writeWhere(&query, nil)
	return query.String(), args
}

// BuildUpsert builds a multi-row "insert or update on key conflict".
//
// Every row must write the same set of columns, the key column aside, so
// an omitted column is never written as NULL and never overwritten on
// conflict. Use UpsertRuns to split mixed rows. A nil key value asks the database to generate the key. On PostgreSQL the
// key column is returned for every row.
func (b *Builder) BuildUpsert(key string, rows []Row) (string, []interface{}, error) {
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("upsert requires at least one row")
	}
	if key == "" {
		return "", nil, fmt.Errorf("upsert requires a key column")
	}

	signature := columnSignature(key, rows[0])
	for i, row := range rows[1:] {
		if columnSignature(key, row) != signature {
			return "", nil, fmt.Errorf("upsert row %d writes a different column set than row 0", i+1)
		}
	}
	columns := sortedColumns(rows[0])
	if _, ok := rows[0][key]; !ok {
		columns = append([]string{key}, columns...)
		sort.Strings(columns)
	}

	var query strings.Builder
	query.WriteString("INSERT INTO ")
	query.WriteString(b.dialect.Quote(b.table))
	query.WriteString(" (")
	query.WriteString(b.quoteAll(columns))
	query.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(rows)*len(columns))
	tuples := make([]string, len(rows))
	for i, row := range rows {
		values := make([]string, len(columns))
		for j, column := range columns {
			value := row[column]
			if column == key && value == nil && b.dialect == Postgres {
				values[j] = "DEFAULT"
				continue
			}
			values[j] = "?"
			args = append(args, value)
		}
		tuples[i] = "(" + strings.Join(values, ", ") + ")"
	}
	query.WriteString(strings.Join(tuples, ", "))

	var updates []string
	for _, column := range columns {
		if column == key {
			continue
		}
		quoted := b.dialect.Quote(column)
		if b.dialect == MySQL {
			updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", quoted, quoted))
		} else {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoted, quoted))
		}
	}

	quotedKey := b.dialect.Quote(key)
	if b.dialect == MySQL {
		if len(updates) == 0 {
			updates = []string{fmt.Sprintf("%s = %s", quotedKey, quotedKey)}
		}
		query.WriteString(" ON DUPLICATE KEY UPDATE ")
		query.WriteString(strings.Join(updates, ", "))
	} else {
		query.WriteString(" ON CONFLICT (" + quotedKey + ")")
		if len(updates) == 0 {
			query.WriteString(" DO NOTHING")
		} else {
			query.WriteString(" DO UPDATE SET ")
			query.WriteString(strings.Join(updates, ", "))
		}
	}

	if b.dialect.Returning() {
		query.WriteString(" RETURNING " + quotedKey)
	}

	return query.String(), args, nil
}

func (b *Builder) writeWhere(query *strings.Builder, args []interface{}) []interface{} {
	if len(b.where.Conditions) == 0 {
		return args
	}
	whereSQL, whereArgs := b.buildConditionGroup(b.where)
	if whereSQL == "" {
		return args
	}
	query.WriteString(" WHERE ")
	query.WriteString(whereSQL)
	return append(args, whereArgs...)
}

// buildConditionGroup builds SQL for a condition group with proper logical operators
func (b *Builder) buildConditionGroup(group *ConditionGroup) (string, []interface{}) {
	if len(group.Conditions) == 0 {
		return "", nil
	}

	var conditions []string
	var args []interface{}

	for _, item := range group.Conditions {
		switch cond := item.(type) {
		case Condition:
			condSQL, condArgs := b.buildCondition(cond)
			conditions = append(conditions, condSQL)
			args = append(args, condArgs...)
		case *ConditionGroup:
			if len(cond.Conditions) > 0 {
				groupSQL, groupArgs := b.buildConditionGroup(cond)
				conditions = append(conditions, "("+groupSQL+")")
				args = append(args, groupArgs...)
			}
		}
	}

	if len(conditions) == 0 {
		return "", nil
	}

	operator := " " + string(group.Operator) + " "
	return strings.Join(conditions, operator), args
}

// buildCondition builds SQL for a single condition
func (b *Builder) buildCondition(cond Condition) (string, []interface{}) {
	field := b.dialect.Quote(cond.Field)
	switch cond.Operator {
	case IsNull, IsNotNull:
		return fmt.Sprintf("%s %s", field, cond.Operator), nil
	case In, NotIn:
		return b.buildInCondition(field, cond)
	default:
		return fmt.Sprintf("%s %s ?", field, cond.Operator), []interface{}{cond.Value}
	}
}

// buildInCondition builds IN/NOT IN conditions with proper placeholder expansion
func (b *Builder) buildInCondition(field string, cond Condition) (string, []interface{}) {
	if cond.Value == nil {
		if cond.Operator == In {
			return "1 = 0", nil
		}
		return "1 = 1", nil
	}

	v := reflect.ValueOf(cond.Value)
	if !isListValue(cond.Value) {
		return fmt.Sprintf("%s %s (?)", field, cond.Operator), []interface{}{cond.Value}
	}

	length := v.Len()
	if length == 0 {
		// Empty list never matches
		if cond.Operator == In {
			return "1 = 0", nil
		}
		return "1 = 1", nil
	}

	args := make([]interface{}, length)
	for i := 0; i < length; i++ {
		args[i] = v.Index(i).Interface()
	}

	return fmt.Sprintf("%s %s (%s)", field, cond.Operator, placeholders(length)), args
}

func (b *Builder) quoteAll(columns []string) string {
	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = b.dialect.Quote(column)
	}
	return strings.Join(quoted, ", ")
}

// isListValue reports whether v is a slice or array other than []byte.
func isListValue(v interface{}) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	kind := reflect.TypeOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sortedColumns(row Row) []string {
	columns := make([]string, 0, len(row))
	for column := range row {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}
