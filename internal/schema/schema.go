// Package schema discovers tables and columns by querying each dialect's
// catalog and maps the results onto database.TableInfo and
// database.ColumnInfo.
//
// Catalog SQL is written once with $N placeholders and passed through
// database.Parameterize, so the same text serves every dialect that shares
// a catalog (information_schema for Postgres and MySQL).
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/koustreak/dbbrowse/internal/errs"
)

// catalog is the per-dialect half of the introspector.
type catalog interface {
	listTables(ctx context.Context, q querier) ([]database.TableInfo, error)
	listColumns(ctx context.Context, q querier, table database.TableInfo) ([]database.ColumnInfo, error)
}

// Introspector reads schema metadata through a connected adapter.
type Introspector struct {
	adapter database.Adapter
	catalog catalog
}

// New returns an Introspector for the adapter's dialect.
func New(adapter database.Adapter) (*Introspector, error) {
	var c catalog
	switch adapter.Dialect() {
	case database.DialectPostgres:
		c = postgresCatalog{}
	case database.DialectMySQL:
		c = mysqlCatalog{}
	case database.DialectSQLite:
		c = sqliteCatalog{}
	default:
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("no catalog for dialect %q", adapter.Dialect()))
	}
	return &Introspector{adapter: adapter, catalog: c}, nil
}

// ListTables returns user tables and views, ordered by schema then name.
func (i *Introspector) ListTables(ctx context.Context) ([]database.TableInfo, error) {
	tables, err := i.catalog.listTables(ctx, i.querier())
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// ListColumns returns the columns of table in declaration order.
// An unknown table yields an empty slice.
func (i *Introspector) ListColumns(ctx context.Context, table database.TableInfo) ([]database.ColumnInfo, error) {
	cols, err := i.catalog.listColumns(ctx, i.querier(), table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table.Name, err)
	}
	return cols, nil
}

// FindTable looks a table up by name, optionally schema-qualified as
// "schema.name". It fails with a not-found error when absent.
func (i *Introspector) FindTable(ctx context.Context, ref string) (database.TableInfo, error) {
	schemaName, name := "", ref
	if dot := strings.LastIndexByte(ref, '.'); dot > 0 {
		schemaName, name = ref[:dot], ref[dot+1:]
	}

	tables, err := i.ListTables(ctx)
	if err != nil {
		return database.TableInfo{}, err
	}
	for _, t := range tables {
		if t.Name == name && (schemaName == "" || t.Schema == schemaName) {
			return t, nil
		}
	}
	return database.TableInfo{}, errs.New(errs.ErrKindNotFound, fmt.Sprintf("table %q not found", ref))
}

// querier runs catalog SQL written with $N placeholders. Catalog SQL never
// embeds identifiers; names are always bound.
type querier func(ctx context.Context, sql string, params ...any) ([]database.DataRow, error)

func (i *Introspector) querier() querier {
	return func(ctx context.Context, sql string, params ...any) ([]database.DataRow, error) {
		sql, params = database.Parameterize(sql, i.adapter.Dialect(), params)
		res, err := i.adapter.Query(ctx, sql, params...)
		if err != nil {
			return nil, err
		}
		return res.Rows, nil
	}
}
