package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/rowcursor"
	"github.com/ajitpratap0/strata/pkg/rowgroup"
)

var schema = Schema{
	Types:         []column.Type{column.I32, column.I64, column.Bit, column.Str, column.Dbl},
	Names:         []string{"id", "big", "flag", "name", "score"},
	CaseSensitive: true,
}

func TestParse(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"", "true"},
		{"false", "not(true)"},
		{`#0 > 20 and #1 < 900 and #2 = true and #3 endswith "0"`,
			`and(gt(#0, 20), lt(#1, 900), eq(#2, true), contains(#3, "0", end))`},
		{"c0 >= 5", "not(lt(#0, 5))"},
		{"id <= 5 or not flag == false", "or(not(gt(#0, 5)), not(eq(#2, false)))"},
		{"big != 7", "not(eq(#1, 7))"},
		{"big <> 7", "not(eq(#1, 7))"},
		{"name is not null", "not(null(#3))"},
		{"NULL(#1)", "null(#1)"},
		{"name = 'O''Brien' nocase", `eq(#3, "O'Brien", nocase)`},
		{"(#0 = 1 or #0 = 2) and score > -1.5", "and(or(eq(#0, 1), eq(#0, 2)), gt(#4, -1.5))"},
		{`name Contains "x\ty"`, `contains(#3, "x\ty", any)`},
		{"name < abc", `lt(#3, "abc")`},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			pred, err := Parse(tt.expr, schema)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pred.String())
		})
	}
}

func TestParseNegateTwice(t *testing.T) {
	// Negate toggles the node's flag, so a double not cancels out.
	pred, err := Parse("not not #0 = 1", schema)
	require.NoError(t, err)
	assert.Equal(t, "eq(#0, 1)", pred.String())
}

func TestCaseDefault(t *testing.T) {
	s := schema
	s.CaseSensitive = false
	pred, err := Parse("#3 startswith ab", s)
	require.NoError(t, err)
	assert.Equal(t, `contains(#3, "ab", start, nocase)`, pred.String())

	pred, err = Parse("#3 startswith ab case", s)
	require.NoError(t, err)
	assert.Equal(t, `contains(#3, "ab", start)`, pred.String())
}

func TestParseErrors(t *testing.T) {
	exprs := []string{
		"#9 = 1",
		"#2 < true",
		"#0 contains 'x'",
		"#0 = abc",
		"#0 = 1 )",
		"(#0 = 1",
		"#0 ~ 1",
		"#0 ! 1",
		"'unterminated",
		"#0 is null extra",
		"#0 is 1",
		"foo = 1",
		"#0 like 1",
		"#0 =",
		"# = 1",
		"and",
	}
	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr, schema)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), "got %v", err)
		})
	}
}

func TestParsedPredicateEvaluates(t *testing.T) {
	ids := column.New(column.I32, column.Identity)
	names := column.New(column.Str, column.Identity)
	for i := 0; i < 100; i++ {
		require.NoError(t, ids.PutI32(int32(i)))
		require.NoError(t, names.PutStr(fmt.Sprintf("Row %d", i)))
	}
	rg := rowgroup.New()
	require.NoError(t, rg.AddColumn(ids, nil))
	require.NoError(t, rg.AddColumn(names, nil))
	defer rg.Close()

	s := Schema{Types: []column.Type{column.I32, column.Str}, Names: []string{"id", "name"}}
	tests := []struct {
		expr string
		want uint64
	}{
		{"id >= 90", 10},
		{"id < 10 or id > 89", 20},
		{"name startswith 'row' nocase and name endswith 7", 10},
		{"name startswith 'row'", 0},
		{"not (id = 3)", 99},
		{"name is null", 0},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			pred, err := Parse(tt.expr, s)
			require.NoError(t, err)
			cur, err := rowcursor.New(rg, pred)
			require.NoError(t, err)
			n, err := cur.Count()
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}
