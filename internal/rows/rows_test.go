package rows

import (
	"testing"
	"time"

	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, ""},
		{"int", 7, float64(7)},
		{"int64", int64(-3), float64(-3)},
		{"float", 2.5, 2.5},
		{"bool", true, "true"},
		{"numeric text", "42", float64(42)},
		{"decimal text", "-0.5", -0.5},
		{"exponent", "1e3", float64(1000)},
		{"plain text", "Alice", "Alice"},
		{"bytes", []byte("12"), float64(12)},
		{"almost number", "12abc", "12abc"},
		{"date", "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"iso", "2024-03-01T10:20:30Z", time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)},
		{"us date", "03/01/2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseValue(tt.in)
			if want, ok := tt.want.(time.Time); ok {
				d, isTime := got.(time.Time)
				require.True(t, isTime, "got %T", got)
				assert.True(t, want.Equal(d), "got %v", d)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompareValues(t *testing.T) {
	assert.Negative(t, CompareValues(2, 10, Asc))
	assert.Negative(t, CompareValues("2", "10", Asc), "numeric text compares as numbers")
	assert.Positive(t, CompareValues(2, 10, Desc))
	assert.Zero(t, CompareValues("alice", "ALICE", Asc))
	assert.Negative(t, CompareValues("apple", "Banana", Asc))
	assert.Negative(t, CompareValues("2023-01-01", "2024-01-01", Asc))
	assert.Positive(t, CompareValues("2023-01-01", "2024-01-01", Desc))
}

func TestCompareValues_DateBeforeNonDate(t *testing.T) {
	// direction does not flip the mixed case
	assert.Negative(t, CompareValues("2024-01-01", "zebra", Asc))
	assert.Negative(t, CompareValues("2024-01-01", "zebra", Desc))
	assert.Positive(t, CompareValues(nil, "2024-01-01", Desc))
}

func TestCompareValues_NilIsEmptyString(t *testing.T) {
	assert.Negative(t, CompareValues(nil, "apple", Asc))
	assert.Positive(t, CompareValues(nil, "apple", Desc))
	assert.Zero(t, CompareValues(nil, "", Asc))
}

var people = []database.DataRow{
	{"name": "Alice", "email": "alice@example.com"},
	{"name": "Bob", "email": "bob@example.com"},
}

func TestFilterRows(t *testing.T) {
	got := FilterRows(people, "ali", []string{"name", "email"})
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0]["name"])

	assert.Len(t, FilterRows(people, "EXAMPLE", []string{"email"}), 2)
	assert.Empty(t, FilterRows(people, "carol", []string{"name", "email"}))
	assert.Len(t, FilterRows(people, "bob", nil), 1, "no columns searches every key")
}

func TestFilterRows_BlankIsIdentity(t *testing.T) {
	assert.Equal(t, people, FilterRows(people, "", []string{"name"}))
	assert.Equal(t, people, FilterRows(people, "   ", []string{"name"}))
}

func TestSortRows_InactiveReturnsInput(t *testing.T) {
	in := []database.DataRow{{"a": 3}, {"a": 1}, {"a": 2}}

	assert.Equal(t, in, SortRows(in, SortConfig{Column: "a", Direction: Off}))
	assert.Equal(t, in, SortRows(in, SortConfig{Direction: Asc}))
}

func TestSortRows_DoesNotMutate(t *testing.T) {
	in := []database.DataRow{{"a": 3}, {"a": 1}, {"a": 2}}

	out := SortRows(in, SortConfig{Column: "a", Direction: Desc})
	assert.Equal(t, []database.DataRow{{"a": 3}, {"a": 2}, {"a": 1}}, out)
	assert.Equal(t, []database.DataRow{{"a": 3}, {"a": 1}, {"a": 2}}, in)
}

func TestSortRows_Stable(t *testing.T) {
	in := []database.DataRow{
		{"k": "x", "id": 1},
		{"k": "X", "id": 2},
		{"k": "a", "id": 3},
	}
	out := SortRows(in, SortConfig{Column: "k", Direction: Asc})
	assert.Equal(t, []any{3, 1, 2}, []any{out[0]["id"], out[1]["id"], out[2]["id"]})
}

func TestProcessRows_FilterThenSort(t *testing.T) {
	in := []database.DataRow{{"a": 3}, {"a": 1}, {"a": 2}}

	out := ProcessRows(in, []string{"a"}, "", SortConfig{Column: "a", Direction: Asc})
	assert.Equal(t, []database.DataRow{{"a": 1}, {"a": 2}, {"a": 3}}, out)

	out = ProcessRows(in, []string{"a"}, "2", SortConfig{Column: "a", Direction: Asc})
	assert.Equal(t, []database.DataRow{{"a": 2}}, out)
}

func TestSortConfig_Toggle(t *testing.T) {
	var cfg SortConfig
	cfg = cfg.Toggle("name")
	assert.Equal(t, SortConfig{Column: "name", Direction: Asc}, cfg)
	cfg = cfg.Toggle("name")
	assert.Equal(t, SortConfig{Column: "name", Direction: Desc}, cfg)
	cfg = cfg.Toggle("name")
	assert.False(t, cfg.Active())
	assert.Equal(t, SortConfig{Column: "email", Direction: Asc}, cfg.Toggle("email"))
}
