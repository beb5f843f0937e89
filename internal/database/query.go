package database

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySearch is returned by SearchQuery for a blank term. Callers clear
// their search results instead of matching every row.
var ErrEmptySearch = errors.New("empty search term")

// QuoteIdent quotes an identifier for d: backticks for MySQL, double quotes
// for Postgres and SQLite. Embedded quote characters are doubled.
func QuoteIdent(d Dialect, name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableRef returns the quoted, schema-qualified reference to t.
// SQLite has no schemas, so only the name is used there.
func TableRef(d Dialect, t TableInfo) string {
	if t.Schema == "" || d == DialectSQLite {
		return QuoteIdent(d, t.Name)
	}
	return QuoteIdent(d, t.Schema) + "." + QuoteIdent(d, t.Name)
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type orderClause struct {
	column string
	dir    SortDirection
}

// SelectBuilder assembles a SELECT against one table for one dialect.
// The WHERE predicate is written with $N placeholders and rewritten by
// Parameterize when it is set, before any quoted identifier is spliced in,
// so neither values nor identifiers are touched by the rewrite.
//
// Usage:
//
//	sql, args := Select(DialectMySQL, orders).
//	    Where(`"status" = $1`, "open").
//	    OrderBy("id", Asc).
//	    Limit(25).
//	    Offset(50).
//	    Build()
type SelectBuilder struct {
	dialect Dialect
	table   TableInfo
	columns []string
	where   string
	args    []any
	orderBy []orderClause
	limit   *int
	offset  *int
}

// Select starts a new SelectBuilder for table t in dialect d.
func Select(d Dialect, t TableInfo) *SelectBuilder {
	return &SelectBuilder{dialect: d, table: t}
}

// Columns restricts the SELECT to the given columns. Default is *.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Where sets the predicate and its arguments, replacing any previous one.
func (b *SelectBuilder) Where(predicate string, args ...any) *SelectBuilder {
	b.where, b.args = Parameterize(predicate, b.dialect, args)
	return b
}

// whereNative sets a predicate already written in the dialect's syntax.
func (b *SelectBuilder) whereNative(predicate string, args []any) *SelectBuilder {
	b.where = predicate
	b.args = args
	return b
}

// OrderBy appends an ORDER BY term.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the page size.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the data query and its arguments in the dialect's syntax.
func (b *SelectBuilder) Build() (string, []any) {
	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = QuoteIdent(b.dialect, c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(TableRef(b.dialect, b.table))
	b.writeWhere(&sb)

	// --- ORDER BY ---
	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = QuoteIdent(b.dialect, o.column) + " " + dir
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	// --- LIMIT / OFFSET ---
	if b.limit != nil {
		offset := 0
		if b.offset != nil {
			offset = *b.offset
		}
		if b.dialect == DialectMySQL {
			fmt.Fprintf(&sb, " LIMIT %d, %d", offset, *b.limit)
		} else {
			fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", *b.limit, offset)
		}
	}

	return sb.String(), b.args
}

// Count produces a COUNT(*) query sharing the builder's WHERE clause.
// The single result column is named "total".
func (b *SelectBuilder) Count() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) AS total FROM ")
	sb.WriteString(TableRef(b.dialect, b.table))
	b.writeWhere(&sb)
	return sb.String(), b.args
}

func (b *SelectBuilder) writeWhere(sb *strings.Builder) {
	if b.where == "" {
		return
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(b.where)
}

// --- canned queries used by the browser ---

// PageQuery returns the SQL for one page of t:
// LIMIT <limit> OFFSET <offset> for Postgres/SQLite, LIMIT <offset>, <limit> for MySQL.
func PageQuery(d Dialect, t TableInfo, limit, offset int) string {
	sql, _ := Select(d, t).Limit(limit).Offset(offset).Build()
	return sql
}

// CountQuery returns SELECT COUNT(*) AS total for t.
func CountQuery(d Dialect, t TableInfo) string {
	sql, _ := Select(d, t).Count()
	return sql
}

// SearchQueries is a count/data pair sharing one WHERE clause and one
// parameter list.
type SearchQueries struct {
	CountSQL string
	DataSQL  string
	Params   []any
}

// SearchQuery builds a case-insensitive substring search of term across
// every column of t. Results are ordered by the first primary key column,
// else the first declared column. A table without columns yields a 1=1
// predicate. A blank term returns ErrEmptySearch.
func SearchQuery(d Dialect, t TableInfo, columns []ColumnInfo, term string, limit, offset int) (*SearchQueries, error) {
	if strings.TrimSpace(term) == "" {
		return nil, ErrEmptySearch
	}
	pattern := "%" + term + "%"

	predicate, params := searchPredicate(d, columns, pattern)
	b := Select(d, t).whereNative(predicate, params)
	if col := orderColumn(columns); col != "" {
		b.OrderBy(col, Asc)
	}

	countSQL, _ := b.Count()
	dataSQL, args := b.Limit(limit).Offset(offset).Build()
	return &SearchQueries{CountSQL: countSQL, DataSQL: dataSQL, Params: args}, nil
}

// searchPredicate ORs one text-cast comparison per column, in native
// placeholder syntax. Postgres shares a single $1; the ? dialects bind the
// pattern once per occurrence.
func searchPredicate(d Dialect, columns []ColumnInfo, pattern string) (string, []any) {
	if len(columns) == 0 {
		return "1=1", nil
	}

	parts := make([]string, len(columns))
	var params []any
	for i, c := range columns {
		col := QuoteIdent(d, c.Name)
		switch d {
		case DialectPostgres:
			parts[i] = fmt.Sprintf("CAST(%s AS TEXT) ILIKE $1", col)
		case DialectMySQL:
			parts[i] = fmt.Sprintf("LOWER(CAST(%s AS CHAR)) LIKE LOWER(?)", col)
			params = append(params, pattern)
		default:
			parts[i] = fmt.Sprintf("LOWER(CAST(%s AS TEXT)) LIKE LOWER(?)", col)
			params = append(params, pattern)
		}
	}
	if d == DialectPostgres {
		params = []any{pattern}
	}
	return "(" + strings.Join(parts, " OR ") + ")", params
}

func orderColumn(columns []ColumnInfo) string {
	for _, c := range columns {
		if c.IsPrimaryKey {
			return c.Name
		}
	}
	if len(columns) > 0 {
		return columns[0].Name
	}
	return ""
}
