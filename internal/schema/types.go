package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/koustreak/dbbrowse/internal/database"
)

// Catalog values arrive with whatever Go type the driver picked: pgx gives
// bool and int32, MySQL gives text, SQLite gives int64. These helpers
// coerce them to the shape we need.

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asStringPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := asString(v)
	return &s
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case int16:
		return int64(x)
	case uint64:
		return int64(x)
	case float64:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		n, _ := strconv.ParseInt(strings.TrimSpace(asString(v)), 10, 64)
		return n
	}
}

// asBool accepts native booleans, non-zero integers and the catalog
// spellings YES/true/t/1.
func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64, int32, int, int16, uint64, float64:
		return asInt(x) != 0
	}
	switch strings.ToLower(strings.TrimSpace(asString(v))) {
	case "yes", "true", "t", "1", "y":
		return true
	}
	return false
}

// foreignKey is one referencing column of the inspected table.
type foreignKey struct {
	column    string
	refTable  string
	refColumn string
}

// applyForeignKeys marks referencing columns in place.
func applyForeignKeys(cols []database.ColumnInfo, fks []foreignKey) {
	byName := make(map[string]foreignKey, len(fks))
	for _, fk := range fks {
		if _, seen := byName[fk.column]; !seen {
			byName[fk.column] = fk
		}
	}
	for i := range cols {
		if fk, ok := byName[cols[i].Name]; ok {
			cols[i].IsForeignKey = true
			cols[i].ForeignTable = fk.refTable
			cols[i].ForeignColumn = fk.refColumn
		}
	}
}
