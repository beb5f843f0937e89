package schema

import (
	"context"
	"strings"

	"github.com/koustreak/dbbrowse/internal/database"
)

// postgresCatalog reads information_schema plus pg_matviews, which
// information_schema does not list.
type postgresCatalog struct{}

const pgSystemSchemas = `('pg_catalog', 'information_schema')`

func (postgresCatalog) listTables(ctx context.Context, q querier) ([]database.TableInfo, error) {
	const sql = `
		SELECT table_schema AS schema_name,
		       table_name   AS name,
		       table_type   AS kind
		FROM information_schema.tables
		WHERE table_schema NOT IN ` + pgSystemSchemas + `
		  AND table_schema NOT LIKE 'pg_toast%'
		  AND table_schema NOT LIKE 'pg_temp%'
		UNION ALL
		SELECT schemaname          AS schema_name,
		       matviewname         AS name,
		       'MATERIALIZED VIEW' AS kind
		FROM pg_matviews
		WHERE schemaname NOT IN ` + pgSystemSchemas + `
		ORDER BY schema_name, name`

	rows, err := q(ctx, sql)
	if err != nil {
		return nil, err
	}
	return tablesFromRows(rows), nil
}

func (c postgresCatalog) listColumns(ctx context.Context, q querier, table database.TableInfo) ([]database.ColumnInfo, error) {
	schemaName := table.Schema
	if schemaName == "" {
		schemaName = "public"
	}

	const sql = `
		SELECT c.column_name    AS name,
		       c.data_type      AS data_type,
		       c.is_nullable    AS is_nullable,
		       c.column_default AS default_value,
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kcu
		             ON tc.constraint_name = kcu.constraint_name
		            AND tc.table_schema    = kcu.table_schema
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND tc.table_schema    = c.table_schema
		             AND tc.table_name      = c.table_name
		             AND kcu.column_name    = c.column_name
		       ) AS is_primary_key
		FROM information_schema.columns c
		WHERE c.table_schema = $1
		  AND c.table_name   = $2
		ORDER BY c.ordinal_position`

	rows, err := q(ctx, sql, schemaName, table.Name)
	if err != nil {
		return nil, err
	}

	// Materialized views only appear in pg_attribute.
	if len(rows) == 0 && table.Kind == database.KindMaterializedView {
		rows, err = c.matviewColumns(ctx, q, schemaName, table.Name)
		if err != nil {
			return nil, err
		}
	}
	cols := columnsFromRows(rows)

	fks, err := c.foreignKeys(ctx, q, schemaName, table.Name)
	if err != nil {
		return nil, err
	}
	applyForeignKeys(cols, fks)
	return cols, nil
}

func (postgresCatalog) matviewColumns(ctx context.Context, q querier, schemaName, name string) ([]database.DataRow, error) {
	const sql = `
		SELECT a.attname                                   AS name,
		       format_type(a.atttypid, a.atttypmod)        AS data_type,
		       CASE WHEN a.attnotnull THEN 'NO' ELSE 'YES' END AS is_nullable,
		       NULL::text                                  AS default_value,
		       false                                       AS is_primary_key
		FROM pg_attribute a
		JOIN pg_class c     ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relname = $2
		  AND a.attnum  > 0
		  AND NOT a.attisdropped
		ORDER BY a.attnum`

	return q(ctx, sql, schemaName, name)
}

func (postgresCatalog) foreignKeys(ctx context.Context, q querier, schemaName, name string) ([]foreignKey, error) {
	const sql = `
		SELECT kcu.column_name AS column_name,
		       ccu.table_name  AS foreign_table,
		       ccu.column_name AS foreign_column
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema    = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
		  ON ccu.constraint_name = tc.constraint_name
		 AND ccu.table_schema    = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema    = $1
		  AND tc.table_name      = $2`

	rows, err := q(ctx, sql, schemaName, name)
	if err != nil {
		return nil, err
	}
	return foreignKeysFromRows(rows), nil
}

// --- shared information_schema row mapping (Postgres and MySQL) ---

func tablesFromRows(rows []database.DataRow) []database.TableInfo {
	tables := make([]database.TableInfo, 0, len(rows))
	for _, r := range rows {
		tables = append(tables, database.TableInfo{
			Schema: asString(r["schema_name"]),
			Name:   asString(r["name"]),
			Kind:   database.ParseTableKind(asString(r["kind"])),
		})
	}
	return tables
}

func columnsFromRows(rows []database.DataRow) []database.ColumnInfo {
	cols := make([]database.ColumnInfo, 0, len(rows))
	for _, r := range rows {
		cols = append(cols, database.ColumnInfo{
			Name:         asString(r["name"]),
			DataType:     strings.ToLower(asString(r["data_type"])),
			Nullable:     asBool(r["is_nullable"]),
			DefaultValue: asStringPtr(r["default_value"]),
			IsPrimaryKey: asBool(r["is_primary_key"]),
		})
	}
	return cols
}

func foreignKeysFromRows(rows []database.DataRow) []foreignKey {
	fks := make([]foreignKey, 0, len(rows))
	for _, r := range rows {
		fks = append(fks, foreignKey{
			column:    asString(r["column_name"]),
			refTable:  asString(r["foreign_table"]),
			refColumn: asString(r["foreign_column"]),
		})
	}
	return fks
}
