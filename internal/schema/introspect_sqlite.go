package schema

import (
	"context"
	"strings"

	"github.com/koustreak/dbbrowse/internal/database"
)

// sqliteCatalog reads sqlite_master and the pragma_table_info /
// pragma_foreign_key_list functions. SQLite has no schemas.
type sqliteCatalog struct{}

func (sqliteCatalog) listTables(ctx context.Context, q querier) ([]database.TableInfo, error) {
	const sql = `
		SELECT name, type AS kind
		FROM sqlite_master
		WHERE type IN ('table', 'view')
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	rows, err := q(ctx, sql)
	if err != nil {
		return nil, err
	}

	tables := make([]database.TableInfo, 0, len(rows))
	for _, r := range rows {
		tables = append(tables, database.TableInfo{
			Name: asString(r["name"]),
			Kind: database.ParseTableKind(asString(r["kind"])),
		})
	}
	return tables, nil
}

// The table-valued pragma functions take the table name as a bound
// parameter, so no identifier is spliced into the SQL.
func (c sqliteCatalog) listColumns(ctx context.Context, q querier, table database.TableInfo) ([]database.ColumnInfo, error) {
	rows, err := q(ctx, `SELECT * FROM pragma_table_info($1)`, table.Name)
	if err != nil {
		return nil, err
	}

	cols := make([]database.ColumnInfo, 0, len(rows))
	for _, r := range rows {
		pk := asInt(r["pk"]) > 0
		cols = append(cols, database.ColumnInfo{
			Name:         asString(r["name"]),
			DataType:     strings.ToLower(asString(r["type"])),
			Nullable:     !asBool(r["notnull"]) && !pk,
			DefaultValue: asStringPtr(r["dflt_value"]),
			IsPrimaryKey: pk,
		})
	}

	fks, err := c.foreignKeys(ctx, q, table)
	if err != nil {
		return nil, err
	}
	applyForeignKeys(cols, fks)
	return cols, nil
}

func (sqliteCatalog) foreignKeys(ctx context.Context, q querier, table database.TableInfo) ([]foreignKey, error) {
	rows, err := q(ctx, `SELECT * FROM pragma_foreign_key_list($1)`, table.Name)
	if err != nil {
		return nil, err
	}

	fks := make([]foreignKey, 0, len(rows))
	for _, r := range rows {
		fks = append(fks, foreignKey{
			column:    asString(r["from"]),
			refTable:  asString(r["table"]),
			refColumn: asString(r["to"]),
		})
	}
	return fks, nil
}
