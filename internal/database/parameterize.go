package database

import "regexp"

var placeholderRe = regexp.MustCompile(`\$\d+`)

// Parameterize rewrites positional $N placeholders into the native syntax
// of d. Postgres SQL is returned unchanged. For MySQL and SQLite every $N
// token becomes ? in left-to-right order.
//
// params are passed through positionally and are never reordered, so they
// must already be supplied in the order the $N tokens appear. Renumbered
// ($2 before $1) or repeated ($1 used twice) placeholders are not supported
// for the ? dialects; callers needing a value twice pass it twice.
func Parameterize(sql string, d Dialect, params []any) (string, []any) {
	if d == DialectPostgres {
		return sql, params
	}
	return placeholderRe.ReplaceAllLiteralString(sql, "?"), params
}
