package db

import (
	"reflect"
	"testing"
)

func assertQuery(t *testing.T, wantSQL, gotSQL string, wantArgs, gotArgs []interface{}) {
	t.Helper()
	if wantSQL != gotSQL {
		t.Fatalf("unexpected SQL\nwant: %s\ngot:  %s", wantSQL, gotSQL)
	}
	if len(wantArgs) == 0 && len(gotArgs) == 0 {
		return
	}
	if !reflect.DeepEqual(wantArgs, gotArgs) {
		t.Fatalf("unexpected args\nwant: %#v\ngot:  %#v", wantArgs, gotArgs)
	}
}

func TestBuildSelect(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		query    SelectQuery
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:    "all rows",
			dialect: Postgres,
			query:   SelectQuery{Table: "widgets"},
			wantSQL: `SELECT * FROM "widgets"`,
		},
		{
			name:    "criteria order and paging",
			dialect: MySQL,
			query: SelectQuery{
				Table:    "widgets",
				Criteria: Criteria{"note": nil, "color": "red", "id": []int64{1, 2}},
				OrderBy:  []Order{{Column: "name", Direction: Desc}, {Column: "id", Direction: Asc}},
				Limit:    10,
				Offset:   20,
			},
			wantSQL:  "SELECT * FROM `widgets` WHERE `color` = ? AND `id` IN (?, ?) AND `note` IS NULL ORDER BY `name` DESC, `id` ASC LIMIT 10 OFFSET 20",
			wantArgs: []interface{}{"red", int64(1), int64(2)},
		},
		{
			name:    "offset without limit is dropped",
			dialect: SQLite,
			query:   SelectQuery{Table: "widgets", Offset: 5},
			wantSQL: `SELECT * FROM "widgets"`,
		},
		{
			name:    "empty list never matches",
			dialect: SQLite,
			query:   SelectQuery{Table: "widgets", Criteria: Criteria{"id": []int64{}}},
			wantSQL: `SELECT * FROM "widgets" WHERE 1 = 0`,
		},
		{
			name:     "bytes are a scalar",
			dialect:  SQLite,
			query:    SelectQuery{Table: "blobs", Columns: []string{"id", "data"}, Criteria: Criteria{"data": []byte("x")}},
			wantSQL:  `SELECT "id", "data" FROM "blobs" WHERE "data" = ?`,
			wantArgs: []interface{}{[]byte("x")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := NewBuilder(tt.dialect, tt.query.Table).FromSelectQuery(tt.query).BuildSelect()
			assertQuery(t, tt.wantSQL, sql, tt.wantArgs, args)
		})
	}
}

func TestBuildSelectConditionGroups(t *testing.T) {
	sql, args := NewBuilder(MySQL, "widgets").
		Where("weight", GreaterThan, 1).
		WhereGroup(Or, func(g *ConditionGroup) {
			g.Where("color", Equal, "red").Where("note", IsNotNull, nil)
		}).
		Where("name", NotIn, []string{"a", "b"}).
		Limit(-3).
		BuildSelect()

	assertQuery(t,
		"SELECT * FROM `widgets` WHERE `weight` > ? AND (`color` = ? OR `note` IS NOT NULL) AND `name` NOT IN (?, ?)",
		sql,
		[]interface{}{1, "red", "a", "b"},
		args,
	)
}

func TestBuildInsert(t *testing.T) {
	row := Row{"name": "bolt", "color": "red"}

	sql, args := NewBuilder(SQLite, "widgets").BuildInsert(row, "id")
	assertQuery(t, `INSERT INTO "widgets" ("color", "name") VALUES (?, ?)`, sql, []interface{}{"red", "bolt"}, args)

	sql, _ = NewBuilder(Postgres, "widgets").BuildInsert(row, "id")
	assertQuery(t, `INSERT INTO "widgets" ("color", "name") VALUES (?, ?) RETURNING "id"`, sql, nil, nil)

	sql, _ = NewBuilder(MySQL, "widgets").BuildInsert(Row{}, "")
	assertQuery(t, "INSERT INTO `widgets` () VALUES ()", sql, nil, nil)

	sql, _ = NewBuilder(SQLite, "widgets").BuildInsert(Row{}, "")
	assertQuery(t, `INSERT INTO "widgets" DEFAULT VALUES`, sql, nil, nil)
}

func TestBuildUpdate(t *testing.T) {
	sql, args := NewBuilder(SQLite, "widgets").
		WhereCriteria(Criteria{"id": int64(3)}).
		BuildUpdate(Row{"note": nil, "name": "nut"})
	assertQuery(t, `UPDATE "widgets" SET "name" = ?, "note" = ? WHERE "id" = ?`, sql, []interface{}{"nut", nil, int64(3)}, args)

	sql, args = NewBuilder(SQLite, "widgets").BuildUpdate(Row{})
	if sql != "" || args != nil {
		t.Fatalf("expected empty statement for an empty row, got %q", sql)
	}
}

func TestBuildDelete(t *testing.T) {
	sql, args := NewBuilder(MySQL, "widgets").WhereCriteria(Criteria{"id": []int64{4, 5}}).BuildDelete()
	assertQuery(t, "DELETE FROM `widgets` WHERE `id` IN (?, ?)", sql, []interface{}{int64(4), int64(5)}, args)
}

func TestBuildUpsert(t *testing.T) {
	rows := []Row{
		{"id": nil, "name": "a", "color": "x"},
		{"id": int64(4), "name": "b", "color": "c"},
	}

	tests := []struct {
		dialect  Dialect
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			dialect:  MySQL,
			wantSQL:  "INSERT INTO `widgets` (`color`, `id`, `name`) VALUES (?, ?, ?), (?, ?, ?) ON DUPLICATE KEY UPDATE `color` = VALUES(`color`), `name` = VALUES(`name`)",
			wantArgs: []interface{}{"x", nil, "a", "c", int64(4), "b"},
		},
		{
			dialect:  SQLite,
			wantSQL:  `INSERT INTO "widgets" ("color", "id", "name") VALUES (?, ?, ?), (?, ?, ?) ON CONFLICT ("id") DO UPDATE SET "color" = excluded."color", "name" = excluded."name"`,
			wantArgs: []interface{}{"x", nil, "a", "c", int64(4), "b"},
		},
		{
			dialect:  Postgres,
			wantSQL:  `INSERT INTO "widgets" ("color", "id", "name") VALUES (?, DEFAULT, ?), (?, ?, ?) ON CONFLICT ("id") DO UPDATE SET "color" = excluded."color", "name" = excluded."name" RETURNING "id"`,
			wantArgs: []interface{}{"x", "a", "c", int64(4), "b"},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			sql, args, err := NewBuilder(tt.dialect, "widgets").BuildUpsert("id", rows)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertQuery(t, tt.wantSQL, sql, tt.wantArgs, args)
		})
	}
}

func TestBuildUpsertKeyOnly(t *testing.T) {
	rows := []Row{{"id": nil}}

	sql, args, err := NewBuilder(MySQL, "tags").BuildUpsert("id", rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertQuery(t, "INSERT INTO `tags` (`id`) VALUES (?) ON DUPLICATE KEY UPDATE `id` = `id`", sql, []interface{}{nil}, args)

	sql, args, err = NewBuilder(SQLite, "tags").BuildUpsert("id", rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertQuery(t, `INSERT INTO "tags" ("id") VALUES (?) ON CONFLICT ("id") DO NOTHING`, sql, []interface{}{nil}, args)
}

func TestBuildUpsertErrors(t *testing.T) {
	if _, _, err := NewBuilder(MySQL, "widgets").BuildUpsert("id", nil); err == nil {
		t.Fatal("expected error for no rows")
	}
	if _, _, err := NewBuilder(MySQL, "widgets").BuildUpsert("", []Row{{"name": "a"}}); err == nil {
		t.Fatal("expected error for an empty key")
	}

	mixed := []Row{
		{"id": nil, "name": "a"},
		{"id": nil, "name": "b", "color": "red"},
	}
	if _, _, err := NewBuilder(SQLite, "widgets").BuildUpsert("id", mixed); err == nil {
		t.Fatal("expected error for rows with different column sets")
	}
}

func TestBuildUpsertMissingKeyColumn(t *testing.T) {
	rows := []Row{{"name": "a"}, {"id": nil, "name": "b"}}

	sql, args, err := NewBuilder(SQLite, "widgets").BuildUpsert("id", rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertQuery(t,
		`INSERT INTO "widgets" ("id", "name") VALUES (?, ?), (?, ?) ON CONFLICT ("id") DO UPDATE SET "name" = excluded."name"`, sql,
		[]interface{}{nil, "a", nil, "b"}, args)
}
