package database

import (
	"context"
	"strings"
)

// Adapter is the uniform contract every dialect implements.
// Layers above this package talk only to this interface and never
// import a dialect package directly.
//
// An Adapter is not safe for concurrent statements: callers issue one
// call at a time and always Close it, even after a failure.
type Adapter interface {
	// Dialect reports which engine this adapter speaks to.
	Dialect() Dialect

	// Connect opens the session. Failures are ConnectionErrors.
	Connect(ctx context.Context) error

	// Query runs a statement that returns rows. Failures are DatabaseErrors.
	Query(ctx context.Context, sql string, params ...any) (*QueryResult, error)

	// Execute runs a statement and returns the number of affected rows.
	// Failures are DatabaseErrors.
	Execute(ctx context.Context, sql string, params ...any) (int64, error)

	// Close releases the session. It is best-effort: failures are logged,
	// never returned, so cleanup cannot mask the primary error.
	Close(ctx context.Context)
}

// DataRow maps a column name to a dynamically typed value: a scalar,
// a time.Time, or a nested structure decoded by the driver.
// Column order is carried separately by QueryResult.Fields.
type DataRow map[string]any

// QueryResult is what Adapter.Query returns.
type QueryResult struct {
	Rows     []DataRow `json:"rows"`
	RowCount int       `json:"rowCount"`
	Fields   []string  `json:"fields,omitempty"`
}

// TableKind classifies a catalog object.
type TableKind string

const (
	KindTable            TableKind = "table"
	KindView             TableKind = "view"
	KindMaterializedView TableKind = "materialized-view"
)

// ParseTableKind normalizes a catalog type string ("BASE TABLE", "VIEW",
// "MATERIALIZED VIEW", "table", …). Only a string containing both "view"
// and "materialized" yields KindMaterializedView.
func ParseTableKind(catalogType string) TableKind {
	t := strings.ToLower(catalogType)
	switch {
	case strings.Contains(t, "view") && strings.Contains(t, "materialized"):
		return KindMaterializedView
	case strings.Contains(t, "view"):
		return KindView
	default:
		return KindTable
	}
}

// TableInfo identifies a table or view. Schema is empty for SQLite.
type TableInfo struct {
	Schema string    `json:"schema,omitempty"`
	Name   string    `json:"name"`
	Kind   TableKind `json:"kind"`
}

// CacheKey returns "<schema or default>|<name>".
func CacheKey(t TableInfo) string {
	schema := t.Schema
	if schema == "" {
		schema = "default"
	}
	return schema + "|" + t.Name
}

// ColumnInfo describes a single column in a table.
type ColumnInfo struct {
	Name          string  `json:"name"`
	DataType      string  `json:"dataType"`
	Nullable      bool    `json:"nullable"`
	DefaultValue  *string `json:"defaultValue,omitempty"`
	IsPrimaryKey  bool    `json:"isPrimaryKey,omitempty"`
	IsForeignKey  bool    `json:"isForeignKey,omitempty"`
	ForeignTable  string  `json:"foreignTable,omitempty"`
	ForeignColumn string  `json:"foreignColumn,omitempty"`
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []ColumnInfo) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
