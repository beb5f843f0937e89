// Package rows post-processes an in-memory result page: a case-insensitive
// substring filter followed by a type-aware sort.
package rows

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var (
	numericRe = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?)?$`)
	usDateRe  = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
)

// ISO-8601 layouts tried in order for strings matching isoDateRe.
var isoLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseValue coerces a cell to its sortable form:
//
//	nil           -> ""
//	numbers       -> float64
//	bool          -> "true" / "false"
//	time.Time     -> time.Time
//	numeric text  -> float64
//	date-like text (YYYY-MM-DD, ISO-8601, MM/DD/YYYY) -> time.Time
//	anything else -> its string form
func ParseValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case []byte:
		return parseString(string(x))
	case string:
		return parseString(x)
	default:
		return fmt.Sprint(x)
	}
}

func parseString(s string) any {
	t := strings.TrimSpace(s)
	if numericRe.MatchString(t) {
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	if isoDateRe.MatchString(t) {
		for _, layout := range isoLayouts {
			if d, err := time.Parse(layout, t); err == nil {
				return d
			}
		}
	}
	if usDateRe.MatchString(t) {
		if d, err := time.Parse("1/2/2006", t); err == nil {
			return d
		}
	}
	return s
}

// Stringify renders a cell the way the filter and the table view see it.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// Direction of a sort.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
	Off  Direction = "off"
)

// CompareValues orders a against b: numbers arithmetically, dates
// chronologically, everything else by case-insensitive collation. Desc
// negates the result, except that a date always sorts before a non-date.
func CompareValues(a, b any, dir Direction) int {
	return newComparer().compare(a, b, dir)
}

// comparer owns a collator. Collators are not safe for concurrent use, so
// each sort builds its own.
type comparer struct {
	coll *collate.Collator
}

func newComparer() *comparer {
	return &comparer{coll: collate.New(language.Und, collate.IgnoreCase)}
}

func (c *comparer) compare(a, b any, dir Direction) int {
	pa, pb := ParseValue(a), ParseValue(b)

	ta, aIsDate := pa.(time.Time)
	tb, bIsDate := pb.(time.Time)
	switch {
	case aIsDate && !bIsDate:
		return -1
	case bIsDate && !aIsDate:
		return 1
	}

	var result int
	fa, aIsNum := pa.(float64)
	fb, bIsNum := pb.(float64)
	switch {
	case aIsNum && bIsNum:
		result = cmpFloat(fa, fb)
	case aIsDate && bIsDate:
		result = ta.Compare(tb)
	default:
		result = c.coll.CompareString(Stringify(pa), Stringify(pb))
	}

	if dir == Desc {
		return -result
	}
	return result
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
