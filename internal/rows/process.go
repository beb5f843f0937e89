package rows

import (
	"slices"
	"strings"

	"github.com/koustreak/dbbrowse/internal/database"
	"golang.org/x/text/cases"
)

// SortConfig is the table view's current sort. An empty Column means none.
type SortConfig struct {
	Column    string    `json:"column,omitempty"`
	Direction Direction `json:"direction"`
}

// Active reports whether the config actually sorts anything.
func (c SortConfig) Active() bool {
	return c.Column != "" && (c.Direction == Asc || c.Direction == Desc)
}

// Toggle cycles column through asc, desc, off. Picking a different column
// starts again at asc.
func (c SortConfig) Toggle(column string) SortConfig {
	if c.Column != column {
		return SortConfig{Column: column, Direction: Asc}
	}
	switch c.Direction {
	case Asc:
		return SortConfig{Column: column, Direction: Desc}
	case Desc:
		return SortConfig{Direction: Off}
	default:
		return SortConfig{Column: column, Direction: Asc}
	}
}

// FilterRows keeps rows where any of columns contains term, ignoring case.
// With no columns every key of the row is searched. A blank term returns
// rows unchanged.
func FilterRows(rows []database.DataRow, term string, columns []string) []database.DataRow {
	if strings.TrimSpace(term) == "" {
		return rows
	}

	fold := cases.Fold()
	needle := fold.String(term)

	out := make([]database.DataRow, 0, len(rows))
	for _, row := range rows {
		if rowContains(row, needle, columns, fold) {
			out = append(out, row)
		}
	}
	return out
}

func rowContains(row database.DataRow, needle string, columns []string, fold cases.Caser) bool {
	if len(columns) == 0 {
		for _, v := range row {
			if strings.Contains(fold.String(Stringify(v)), needle) {
				return true
			}
		}
		return false
	}
	for _, col := range columns {
		if strings.Contains(fold.String(Stringify(row[col])), needle) {
			return true
		}
	}
	return false
}

// SortRows returns a stably sorted copy of rows. When cfg is inactive the
// input slice itself is returned. The input is never reordered.
func SortRows(rows []database.DataRow, cfg SortConfig) []database.DataRow {
	if !cfg.Active() {
		return rows
	}

	cmp := newComparer()
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b database.DataRow) int {
		return cmp.compare(a[cfg.Column], b[cfg.Column], cfg.Direction)
	})
	return out
}

// ProcessRows filters then sorts.
func ProcessRows(rows []database.DataRow, columns []string, term string, cfg SortConfig) []database.DataRow {
	return SortRows(FilterRows(rows, term, columns), cfg)
}
