package database

import (
	"github.com/google/uuid"

	"github.com/koustreak/dbbrowse/internal/errs"
)

// Rows is the subset of *sql.Rows the scanner needs.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// ScanRows reads every row into a QueryResult keyed by column name.
// Text returned as []byte is converted to string so results are
// printable and JSON-friendly.
//
// The Rows slice is always non-nil. ScanRows always closes rows.
func ScanRows(rows Rows) (*QueryResult, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Database("failed to read column names", err)
	}

	result := &QueryResult{Rows: make([]DataRow, 0), Fields: columns}

	for rows.Next() {
		// *any targets let the driver write whatever type it decodes.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, errs.Database("failed to scan row", err)
		}
		result.Rows = append(result.Rows, RowFromValues(columns, dest))
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Database("error during row iteration", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// RowFromValues zips column names with decoded values.
func RowFromValues(columns []string, values []any) DataRow {
	row := make(DataRow, len(columns))
	for i, col := range columns {
		if i >= len(values) {
			row[col] = nil
			continue
		}
		row[col] = normalize(values[i])
	}
	return row
}

// normalize turns driver-native values that do not print or encode as text
// into strings: []byte text, and the [16]byte pgx decodes a uuid into.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case [16]byte:
		return uuid.UUID(t).String()
	}
	return v
}
