package schema

import (
	"context"

	"github.com/koustreak/dbbrowse/internal/database"
)

// mysqlCatalog reads information_schema. Every column is aliased because
// MySQL 8 reports unaliased catalog columns in upper case.
type mysqlCatalog struct{}

func (mysqlCatalog) listTables(ctx context.Context, q querier) ([]database.TableInfo, error) {
	const sql = `
		SELECT table_schema AS schema_name,
		       table_name   AS name,
		       table_type   AS kind
		FROM information_schema.tables
		WHERE table_schema NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
		ORDER BY table_schema, table_name`

	rows, err := q(ctx, sql)
	if err != nil {
		return nil, err
	}
	return tablesFromRows(rows), nil
}

// An empty schema means the connection's current database.
func (c mysqlCatalog) listColumns(ctx context.Context, q querier, table database.TableInfo) ([]database.ColumnInfo, error) {
	const sql = `
		SELECT column_name                AS name,
		       data_type                  AS data_type,
		       is_nullable                AS is_nullable,
		       column_default             AS default_value,
		       column_key = 'PRI'         AS is_primary_key
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF($1, ''), DATABASE())
		  AND table_name   = $2
		ORDER BY ordinal_position`

	rows, err := q(ctx, sql, table.Schema, table.Name)
	if err != nil {
		return nil, err
	}
	cols := columnsFromRows(rows)

	fks, err := c.foreignKeys(ctx, q, table)
	if err != nil {
		return nil, err
	}
	applyForeignKeys(cols, fks)
	return cols, nil
}

func (mysqlCatalog) foreignKeys(ctx context.Context, q querier, table database.TableInfo) ([]foreignKey, error) {
	const sql = `
		SELECT column_name            AS column_name,
		       referenced_table_name  AS foreign_table,
		       referenced_column_name AS foreign_column
		FROM information_schema.key_column_usage
		WHERE table_schema          = COALESCE(NULLIF($1, ''), DATABASE())
		  AND table_name            = $2
		  AND referenced_table_name IS NOT NULL`

	rows, err := q(ctx, sql, table.Schema, table.Name)
	if err != nil {
		return nil, err
	}
	return foreignKeysFromRows(rows), nil
}
