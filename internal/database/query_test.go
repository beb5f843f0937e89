package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterize(t *testing.T) {
	sql := "SELECT * FROM t WHERE a = $1 AND b > $2 AND c < $10"
	params := []any{"x", 2, 3.5}

	tests := []struct {
		dialect Dialect
		want    string
	}{
		{DialectPostgres, sql},
		{DialectMySQL, "SELECT * FROM t WHERE a = ? AND b > ? AND c < ?"},
		{DialectSQLite, "SELECT * FROM t WHERE a = ? AND b > ? AND c < ?"},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			got, gotParams := Parameterize(sql, tt.dialect, params)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, params, gotParams)
		})
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"user"`, QuoteIdent(DialectPostgres, "user"))
	assert.Equal(t, `"we""ird"`, QuoteIdent(DialectSQLite, `we"ird`))
	assert.Equal(t, "`order`", QuoteIdent(DialectMySQL, "order"))
	assert.Equal(t, "`a``b`", QuoteIdent(DialectMySQL, "a`b"))
}

func TestTableRef(t *testing.T) {
	tbl := TableInfo{Schema: "public", Name: "users"}

	assert.Equal(t, `"public"."users"`, TableRef(DialectPostgres, tbl))
	assert.Equal(t, "`public`.`users`", TableRef(DialectMySQL, tbl))
	assert.Equal(t, `"users"`, TableRef(DialectSQLite, tbl))
	assert.Equal(t, `"users"`, TableRef(DialectPostgres, TableInfo{Name: "users"}))
}

func TestPageQuery(t *testing.T) {
	orders := TableInfo{Name: "orders"}

	assert.Equal(t, "SELECT * FROM `orders` LIMIT 50, 25", PageQuery(DialectMySQL, orders, 25, 50))
	assert.Equal(t, `SELECT * FROM "orders" LIMIT 25 OFFSET 50`, PageQuery(DialectPostgres, orders, 25, 50))
	assert.Equal(t, `SELECT * FROM "orders" LIMIT 100 OFFSET 0`, PageQuery(DialectSQLite, orders, 100, 0))
}

func TestCountQuery(t *testing.T) {
	assert.Equal(t, `SELECT COUNT(*) AS total FROM "main"."t"`,
		CountQuery(DialectPostgres, TableInfo{Schema: "main", Name: "t"}))
}

func TestSelectBuilder_Build(t *testing.T) {
	sql, args := Select(DialectSQLite, TableInfo{Name: "users"}).
		Columns("id", "name").
		Where(`"active" = $1 AND "age" > $2`, true, 18).
		OrderBy("name", Desc).
		Limit(10).
		Build()

	assert.Equal(t, `SELECT "id", "name" FROM "users" WHERE "active" = ? AND "age" > ? ORDER BY "name" DESC LIMIT 10 OFFSET 0`, sql)
	assert.Equal(t, []any{true, 18}, args)
}

func TestBuild_DollarIdentifiersSurvive(t *testing.T) {
	price := TableInfo{Name: "price$1"}

	assert.Equal(t, "SELECT * FROM `price$1` LIMIT 0, 10", PageQuery(DialectMySQL, price, 10, 0))
	assert.Equal(t, `SELECT COUNT(*) AS total FROM "price$1"`, CountQuery(DialectSQLite, price))

	sql, args := Select(DialectSQLite, price).
		Where(`"qty" > $1`, 3).
		OrderBy("amount$2", Asc).
		Build()
	assert.Equal(t, `SELECT * FROM "price$1" WHERE "qty" > ? ORDER BY "amount$2" ASC`, sql)
	assert.Equal(t, []any{3}, args)

	q, err := SearchQuery(DialectMySQL, price, []ColumnInfo{{Name: "cost$1"}}, "9", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS total FROM `price$1` WHERE (LOWER(CAST(`cost$1` AS CHAR)) LIKE LOWER(?))", q.CountSQL)
	assert.Equal(t, []any{"%9%"}, q.Params)
}

var userColumns = []ColumnInfo{
	{Name: "name", DataType: "text"},
	{Name: "id", DataType: "integer", IsPrimaryKey: true},
	{Name: "email", DataType: "text"},
}

func TestSearchQuery_Postgres(t *testing.T) {
	q, err := SearchQuery(DialectPostgres, TableInfo{Schema: "public", Name: "users"}, userColumns, "ali", 100, 0)
	require.NoError(t, err)

	where := `WHERE (CAST("name" AS TEXT) ILIKE $1 OR CAST("id" AS TEXT) ILIKE $1 OR CAST("email" AS TEXT) ILIKE $1)`
	assert.Equal(t, `SELECT COUNT(*) AS total FROM "public"."users" `+where, q.CountSQL)
	assert.Equal(t, `SELECT * FROM "public"."users" `+where+` ORDER BY "id" ASC LIMIT 100 OFFSET 0`, q.DataSQL)
	assert.Equal(t, []any{"%ali%"}, q.Params)
}

func TestSearchQuery_MySQL(t *testing.T) {
	cols := []ColumnInfo{{Name: "name"}, {Name: "email"}}
	q, err := SearchQuery(DialectMySQL, TableInfo{Name: "users"}, cols, "ali", 25, 50)
	require.NoError(t, err)

	where := "WHERE (LOWER(CAST(`name` AS CHAR)) LIKE LOWER(?) OR LOWER(CAST(`email` AS CHAR)) LIKE LOWER(?))"
	assert.Equal(t, "SELECT COUNT(*) AS total FROM `users` "+where, q.CountSQL)
	assert.Equal(t, "SELECT * FROM `users` "+where+" ORDER BY `name` ASC LIMIT 50, 25", q.DataSQL)
	assert.Equal(t, []any{"%ali%", "%ali%"}, q.Params)
}

func TestSearchQuery_SQLite(t *testing.T) {
	q, err := SearchQuery(DialectSQLite, TableInfo{Name: "users"}, []ColumnInfo{{Name: "name"}}, "Bo", 10, 0)
	require.NoError(t, err)

	assert.Contains(t, q.DataSQL, `WHERE (LOWER(CAST("name" AS TEXT)) LIKE LOWER(?))`)
	assert.Equal(t, []any{"%Bo%"}, q.Params)
}

func TestSearchQuery_EdgeCases(t *testing.T) {
	t.Run("blank term", func(t *testing.T) {
		_, err := SearchQuery(DialectSQLite, TableInfo{Name: "users"}, userColumns, "   ", 10, 0)
		assert.ErrorIs(t, err, ErrEmptySearch)
	})

	t.Run("no columns", func(t *testing.T) {
		q, err := SearchQuery(DialectMySQL, TableInfo{Name: "empty"}, nil, "x", 10, 0)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM `empty` WHERE 1=1 LIMIT 0, 10", q.DataSQL)
		assert.Empty(t, q.Params)
	})
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "public|users", CacheKey(TableInfo{Schema: "public", Name: "users"}))
	assert.Equal(t, "default|users", CacheKey(TableInfo{Name: "users"}))
}

func TestParseTableKind(t *testing.T) {
	tests := map[string]TableKind{
		"BASE TABLE":        KindTable,
		"table":             KindTable,
		"VIEW":              KindView,
		"view":              KindView,
		"MATERIALIZED VIEW": KindMaterializedView,
		"materialized":      KindTable,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseTableKind(in), in)
	}
}

func TestParseDialect(t *testing.T) {
	for _, alias := range []string{"postgres", "PostgreSQL", "pg", "pgsql"} {
		d, err := ParseDialect(alias)
		require.NoError(t, err)
		assert.Equal(t, DialectPostgres, d)
	}
	d, err := ParseDialect("mariadb")
	require.NoError(t, err)
	assert.Equal(t, DialectMySQL, d)

	d, err = ParseDialect("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	_, err = ParseDialect("oracle")
	assert.Error(t, err)
}

func TestPoolOptions_Defaults(t *testing.T) {
	assert.Equal(t, DefaultPoolOptions(), ConnectionConfig{}.PoolOptions())

	custom := ConnectionConfig{Pool: &PoolOptions{MaxConns: 3}}.PoolOptions()
	assert.Equal(t, int32(3), custom.MaxConns)
	assert.Equal(t, DefaultIdleTimeout, custom.IdleTimeout)
	assert.Equal(t, DefaultCloseTimeout, custom.CloseTimeout)
}
