package repository

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/ammar0144/rowrepo/pkg/db"
)

// ============================================================================
// Test Helpers
// ============================================================================

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

// assertTrue fails the test if cond is false
func assertTrue(t *testing.T, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Fatal(msg)
	}
}

// Widget is the entity used throughout the repository tests
type Widget struct {
	BaseEntity
	Name  string
	Color string
	Note  *string
	Attrs db.Row
}

func (w *Widget) TableName() string { return "widgets" }

func (w *Widget) GetData() db.Row {
	row := db.Row{"id": w.ID, "name": w.Name, "color": w.Color, "isDeleted": 0, "note": nil}
	if w.Deleted {
		row["isDeleted"] = 1
	}
	if w.Note != nil {
		row["note"] = *w.Note
	}
	for k, v := range w.Attrs {
		row[k] = v
	}
	return row
}

func (w *Widget) SetData(data db.Row) {
	if id, ok := AsInt64(data["id"]); ok {
		w.ID = id
	}
	w.Name, _ = data["name"].(string)
	w.Color, _ = data["color"].(string)
	w.Note = nil
	if note, ok := data["note"].(string); ok {
		w.Note = &note
	}
	if deleted, ok := AsInt64(data["isDeleted"]); ok {
		w.Deleted = deleted != 0
	}
}

func newWidget() *Widget { return &Widget{} }

func widgetColumns(softDelete bool) db.Columns {
	cols := db.Columns{"id": false, "name": false, "color": false, "note": true}
	if softDelete {
		cols["isDeleted"] = false
	}
	return cols
}

// recorder is a Dispatcher remembering every event name it saw
type recorder struct {
	names []string
}

func (r *recorder) Dispatch(_ context.Context, name string, _ Entity) {
	r.names = append(r.names, name)
}

func (r *recorder) reset() { r.names = nil }

// memExecutor is an in-memory Executor over a single table
type memExecutor struct {
	columns db.Columns
	rows    []db.Row
	nextID  int64

	calls   []string
	selects []db.SelectQuery
	updates []memUpdate
	upserts [][]db.Row

	err           error
	noGeneratedID bool
}

type memUpdate struct {
	row db.Row
	key db.Criteria
}

func newMemExecutor(softDelete bool) *memExecutor {
	return &memExecutor{columns: widgetColumns(softDelete)}
}

// seed stores rows as-is and advances the id counter past them
func (m *memExecutor) seed(rows ...db.Row) {
	for _, row := range rows {
		m.rows = append(m.rows, maps.Clone(row))
		if id, ok := AsInt64(row["id"]); ok && id > m.nextID {
			m.nextID = id
		}
	}
}

func (m *memExecutor) count(call string) int {
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (m *memExecutor) Select(_ context.Context, q db.SelectQuery) ([]db.Row, error) {
	m.calls = append(m.calls, "select")
	m.selects = append(m.selects, q)
	if m.err != nil {
		return nil, m.err
	}

	var out []db.Row
	for _, row := range m.rows {
		if matches(row, q.Criteria) {
			out = append(out, maps.Clone(row))
		}
	}

	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c := compareValues(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Direction == db.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Limit > 0 {
		start := min(q.Offset, len(out))
		end := min(start+q.Limit, len(out))
		out = out[start:end]
	}
	return out, nil
}

func (m *memExecutor) Columns(_ context.Context, _ string) (db.Columns, error) {
	m.calls = append(m.calls, "columns")
	if m.err != nil {
		return nil, m.err
	}
	return maps.Clone(m.columns), nil
}

func (m *memExecutor) Insert(_ context.Context, _ string, row db.Row) (int64, error) {
	m.calls = append(m.calls, "insert")
	if m.err != nil {
		return 0, m.err
	}
	return m.insertRow(row), nil
}

func (m *memExecutor) insertRow(row db.Row) int64 {
	m.nextID++
	stored := maps.Clone(row)
	stored["id"] = m.nextID
	for column := range m.columns {
		if _, ok := stored[column]; !ok {
			stored[column] = nil
			if column == "isDeleted" {
				stored[column] = 0
			}
		}
	}
	m.rows = append(m.rows, stored)
	return m.nextID
}

func (m *memExecutor) Update(_ context.Context, _ string, row db.Row, key db.Criteria) (int64, error) {
	m.calls = append(m.calls, "update")
	m.updates = append(m.updates, memUpdate{row: maps.Clone(row), key: key})
	if m.err != nil {
		return 0, m.err
	}

	var affected int64
	for _, stored := range m.rows {
		if matches(stored, key) {
			maps.Copy(stored, row)
			affected++
		}
	}
	return affected, nil
}

func (m *memExecutor) Delete(_ context.Context, _ string, key db.Criteria) (int64, error) {
	m.calls = append(m.calls, "delete")
	if m.err != nil {
		return 0, m.err
	}

	before := len(m.rows)
	m.rows = slices.DeleteFunc(m.rows, func(row db.Row) bool { return matches(row, key) })
	return int64(before - len(m.rows)), nil
}

func (m *memExecutor) BatchUpsert(_ context.Context, _ string, key string, rows []db.Row) (db.UpsertResult, error) {
	m.calls = append(m.calls, "upsert")
	copied := make([]db.Row, len(rows))
	for i, row := range rows {
		copied[i] = maps.Clone(row)
	}
	m.upserts = append(m.upserts, copied)
	if m.err != nil {
		return db.UpsertResult{}, m.err
	}

	var result db.UpsertResult
	for _, row := range rows {
		if row[key] == nil {
			values := maps.Clone(row)
			delete(values, key)
			id := m.insertRow(values)
			if result.FirstID == 0 {
				result.FirstID = id
			}
			result.Affected++
			continue
		}
		for _, stored := range m.rows {
			if valuesEqual(stored[key], row[key]) {
				maps.Copy(stored, row)
				result.Affected++
			}
		}
	}
	if m.noGeneratedID {
		result.FirstID = 0
	}
	return result, nil
}

func (m *memExecutor) QuoteIdentifier(name string) string {
	return `"` + name + `"`
}

func matches(row db.Row, criteria db.Criteria) bool {
	for column, want := range criteria {
		got := row[column]
		if want == nil {
			if got != nil {
				return false
			}
			continue
		}
		v := reflect.ValueOf(want)
		if v.Kind() == reflect.Slice {
			found := false
			for i := 0; i < v.Len(); i++ {
				if valuesEqual(got, v.Index(i).Interface()) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if ai, ok := AsInt64(a); ok {
		if bi, ok := AsInt64(b); ok {
			return ai == bi
		}
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b any) int {
	if ai, ok := AsInt64(a); ok {
		if bi, ok := AsInt64(b); ok {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			}
			return 0
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

// memCache is an in-memory ResultCache
type memCache struct {
	entries map[string][]db.Row
	ttls    map[string]time.Duration
	err     error
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]db.Row{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]db.Row, bool, error) {
	if c.err != nil {
		return nil, false, c.err
	}
	rows, ok := c.entries[key]
	return rows, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, rows []db.Row, ttl time.Duration) error {
	if c.err != nil {
		return c.err
	}
	c.entries[key] = rows
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	if c.err != nil {
		return c.err
	}
	delete(c.entries, key)
	return nil
}

var errBoom = errors.New("boom")

// newWidgetRepo builds a repository over a fresh executor and recorder
func newWidgetRepo(t *testing.T, softDelete bool, opts ...Option) (*ObjectRepository[*Widget], *memExecutor, *recorder) {
	t.Helper()
	exec := newMemExecutor(softDelete)
	events := &recorder{}
	opts = append([]Option{WithDispatcher(events)}, opts...)
	repo, err := New[*Widget](exec, FactoryFunc[*Widget](newWidget), opts...)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	return repo, exec, events
}
