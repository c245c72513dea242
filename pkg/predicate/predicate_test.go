package predicate

import (
	"fmt"
	"math"
	"math/bits"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/match"
	"github.com/ajitpratap0/strata/pkg/rowgroup"
)

const (
	colI32 = iota
	colI64
	colBit
	colStr
	colDbl
	colFlt
)

// table keeps the row values next to the row group so tests can evaluate
// predicates row by row.
type table struct {
	rg    *rowgroup.RowGroup
	i32   []int32
	i64   []int64
	bit   []bool
	str   []string
	dbl   []float64
	flt   []float32
	nulls []bool
}

// fixture builds rows lo..hi-1 with I32=i, I64=i*10, BIT=i%3==0,
// STR="cx {i}", DBL=i/4 (NaN when i%17==5), FLT=i/2 and every fifth STR null.
func fixture(t *testing.T, lo, hi int) *table {
	t.Helper()
	tb := &table{rg: rowgroup.New()}
	ci32 := column.New(column.I32, column.Identity)
	ci64 := column.New(column.I64, column.Identity)
	cbit := column.New(column.Bit, column.Identity)
	cstr := column.New(column.Str, column.Identity)
	cdbl := column.New(column.Dbl, column.Identity)
	cflt := column.New(column.Flt, column.Identity)
	cnull := column.New(column.Bit, column.Identity)
	for i := lo; i < hi; i++ {
		tb.i32 = append(tb.i32, int32(i))
		tb.i64 = append(tb.i64, int64(i)*10)
		tb.bit = append(tb.bit, i%3 == 0)
		tb.str = append(tb.str, fmt.Sprintf("cx %d", i))
		d := float64(i) / 4
		if i%17 == 5 {
			d = math.NaN()
		}
		tb.dbl = append(tb.dbl, d)
		tb.flt = append(tb.flt, float32(i)/2)
		tb.nulls = append(tb.nulls, i%5 == 0)

		require.NoError(t, ci32.PutI32(int32(i)))
		require.NoError(t, ci64.PutI64(int64(i)*10))
		require.NoError(t, cbit.PutBit(i%3 == 0))
		require.NoError(t, cstr.PutStr(tb.str[len(tb.str)-1]))
		require.NoError(t, cdbl.PutDbl(d))
		require.NoError(t, cflt.PutFlt(float32(i)/2))
		require.NoError(t, cnull.PutBit(i%5 == 0))
	}
	require.NoError(t, tb.rg.AddColumn(ci32, nil))
	require.NoError(t, tb.rg.AddColumn(ci64, nil))
	require.NoError(t, tb.rg.AddColumn(cbit, nil))
	require.NoError(t, tb.rg.AddColumn(cstr, cnull))
	require.NoError(t, tb.rg.AddColumn(cdbl, nil))
	require.NoError(t, tb.rg.AddColumn(cflt, nil))
	return tb
}

// evalRow is a row-at-a-time reference evaluator.
func (tb *table) evalRow(p *Predicate, r int) bool {
	var ok bool
	switch p.kind {
	case KindTrue:
		ok = true
	case KindIsNull:
		ok = p.column == colStr && tb.nulls[r]
	case KindAnd:
		ok = true
		for _, op := range p.operands {
			ok = ok && tb.evalRow(op, r)
		}
	case KindOr:
		for _, op := range p.operands {
			ok = ok || tb.evalRow(op, r)
		}
	case KindContains:
		s, n := tb.str[r], p.value.Str()
		if !p.caseSensitive {
			s, n = strings.ToLower(s), strings.ToLower(n)
		}
		switch p.location {
		case match.Start:
			ok = strings.HasPrefix(s, n)
		case match.End:
			ok = strings.HasSuffix(s, n)
		default:
			ok = strings.Contains(s, n)
		}
	default:
		var c int
		var nan bool
		v := p.value
		switch p.column {
		case colI32:
			c = cmp(float64(tb.i32[r]), float64(v.I32()))
		case colI64:
			c = cmp(float64(tb.i64[r]), float64(v.I64()))
		case colBit:
			if tb.bit[r] != v.Bool() {
				c = 1
			}
		case colStr:
			a, b := tb.str[r], v.Str()
			if !p.caseSensitive {
				a, b = strings.ToLower(a), strings.ToLower(b)
			}
			c = strings.Compare(a, b)
		case colDbl:
			nan = math.IsNaN(tb.dbl[r]) || math.IsNaN(v.Dbl())
			c = cmp(tb.dbl[r], v.Dbl())
		case colFlt:
			c = cmp(float64(tb.flt[r]), float64(v.Flt()))
		}
		switch p.kind {
		case KindEq:
			ok = !nan && c == 0
		case KindLt:
			ok = !nan && c < 0
		case KindGt:
			ok = !nan && c > 0
		}
	}
	return ok != p.negate
}

func cmp(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// scan evaluates p with MatchRows over every batch and returns the matching
// row numbers.
func scan(t *testing.T, p *Predicate, rg *rowgroup.RowGroup) []int {
	t.Helper()
	rows := []int{}
	cur := rg.Cursor()
	for cur.Next() {
		m, count, err := p.MatchRows(cur)
		require.NoError(t, err)
		require.Equal(t, cur.BatchCount(), count)
		require.Zero(t, m&^match.Mask(count))
		for m != 0 {
			k := bits.TrailingZeros64(m)
			rows = append(rows, int(cur.Offset())+k)
			m &= m - 1
		}
	}
	return rows
}

func TestExamplePredicate(t *testing.T) {
	tb := fixture(t, 0, 100)
	p := And(
		GtI32(colI32, 20),
		LtI64(colI64, 900),
		EqBit(colBit, true),
		Contains(colStr, "0", true, match.End),
	)
	require.NoError(t, p.Validate(tb.rg))
	assert.Equal(t, Unknown, p.MatchIndexes(tb.rg))
	assert.Equal(t, []int{30, 60}, scan(t, p, tb.rg))

	p.Optimize(tb.rg)
	assert.Equal(t, KindEq, p.Operands()[0].Kind())
	assert.Equal(t, KindContains, p.Operands()[3].Kind())
	assert.Equal(t, []int{30, 60}, scan(t, p, tb.rg))
}

func TestValidate(t *testing.T) {
	tb := fixture(t, 0, 10)
	tests := []struct {
		name string
		p    *Predicate
		ok   bool
	}{
		{"true", True(), true},
		{"null", IsNull(colStr), true},
		{"null out of range", IsNull(9), false},
		{"eq i32", EqI32(colI32, 1), true},
		{"eq wrong type", EqI64(colI32, 1), false},
		{"negative column", EqI32(-1, 1), false},
		{"lt bit", Lt(colBit, column.BoolValue(true)), false},
		{"lt str", LtStr(colStr, "a", true), true},
		{"gt dbl", GtDbl(colDbl, 1), true},
		{"contains str", Contains(colStr, "x", false, match.Any), true},
		{"contains on i32", Contains(colI32, "x", false, match.Any), false},
		{"empty and", And(), false},
		{"nested invalid", Or(True(), And(EqI32(colI64, 3))), false},
		{"nil operand", And(True(), nil), false},
		{"nested valid", Or(EqFlt(colFlt, 1), Negate(And(EqBit(colBit, false)))), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate(tb.rg)
			assert.Equal(t, tt.ok, err == nil, "%v", err)
			assert.Equal(t, tt.ok, tt.p.Valid(tb.rg))
			if err != nil {
				assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
			}
		})
	}
}

func TestMatchIndexes(t *testing.T) {
	tb := fixture(t, 0, 100)
	tests := []struct {
		name string
		p    *Predicate
		want Result
	}{
		{"true", True(), AllRows},
		{"not true", Negate(True()), NoRows},
		{"eq above range", EqI32(colI32, 100), NoRows},
		{"eq in range", EqI32(colI32, 50), Unknown},
		{"lt above max", LtI32(colI32, 100), AllRows},
		{"lt at min", LtI32(colI32, 0), NoRows},
		{"gt below min", GtI64(colI64, -1), AllRows},
		{"gt at max", GtI64(colI64, 990), NoRows},
		{"gt mid", GtI64(colI64, 500), Unknown},
		{"bit mixed", EqBit(colBit, true), Unknown},
		{"str length too long", EqStr(colStr, "cx 1000", true), NoRows},
		{"str length fits", EqStr(colStr, "cx 10", true), Unknown},
		{"str lt never decided", LtStr(colStr, "zzz", true), Unknown},
		{"contains too long", Contains(colStr, "cx 12345", true, match.Any), NoRows},
		{"contains short", Contains(colStr, "7", true, match.Any), Unknown},
		{"nan widens dbl", LtDbl(colDbl, 1000), Unknown},
		{"nan value", EqDbl(colDbl, math.NaN()), NoRows},
		{"flt above", GtFlt(colFlt, 49.5), NoRows},
		{"null mixed", IsNull(colStr), Unknown},
		{"null never", IsNull(colI32), NoRows},
		{"not null never", Negate(IsNull(colI32)), AllRows},
		{"and stops at none", And(True(), EqI32(colI32, -5), LtI32(colI32, 1000)), NoRows},
		{"and all", And(True(), LtI32(colI32, 1000)), AllRows},
		{"or any all", Or(EqI32(colI32, -5), LtI32(colI32, 1000)), AllRows},
		{"or none", Or(EqI32(colI32, -5), GtI32(colI32, 99)), NoRows},
		{"or unknown", Or(EqI32(colI32, -5), EqI32(colI32, 7)), Unknown},
		{"negated and", Negate(And(True(), EqI32(colI32, -5))), AllRows},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.p.Validate(tb.rg))
			assert.Equal(t, tt.want, tt.p.MatchIndexes(tb.rg))
		})
	}
}

func TestMatchIndexesUniformColumns(t *testing.T) {
	rg := rowgroup.New()
	ints := column.New(column.I32, column.Identity)
	flags := column.New(column.Bit, column.Identity)
	nulls := column.New(column.Bit, column.Identity)
	for i := 0; i < 10; i++ {
		require.NoError(t, ints.PutI32(7))
		require.NoError(t, flags.PutBit(true))
		require.NoError(t, nulls.PutBit(true))
	}
	require.NoError(t, rg.AddColumn(ints, nulls))
	require.NoError(t, rg.AddColumn(flags, nil))

	assert.Equal(t, AllRows, EqI32(0, 7).MatchIndexes(rg))
	assert.Equal(t, AllRows, EqBit(1, true).MatchIndexes(rg))
	assert.Equal(t, NoRows, EqBit(1, false).MatchIndexes(rg))
	assert.Equal(t, AllRows, IsNull(0).MatchIndexes(rg))
	assert.Equal(t, NoRows, Negate(IsNull(0)).MatchIndexes(rg))
}

func TestEmptyRowGroupMatchesNothing(t *testing.T) {
	rg := rowgroup.New()
	require.NoError(t, rg.AddColumn(column.New(column.I32, column.Identity), nil))
	assert.Equal(t, NoRows, True().MatchIndexes(rg))
	assert.Equal(t, NoRows, Negate(EqI32(0, 1)).MatchIndexes(rg))

	m, count, err := True().MatchRows(rg.Cursor())
	require.NoError(t, err)
	assert.Zero(t, m)
	assert.Zero(t, count)

	assert.Equal(t, NoRows, True().MatchIndexes(rowgroup.New()))
}

func TestMatchRowsAgainstReference(t *testing.T) {
	tb := fixture(t, 0, 150)
	preds := []*Predicate{
		True(),
		IsNull(colStr),
		Negate(IsNull(colStr)),
		EqDbl(colDbl, 2.5),
		LtDbl(colDbl, 10),
		Negate(GtDbl(colDbl, 10)),
		LtStr(colStr, "cx 5", true),
		GtStr(colStr, "CX 5", false),
		EqStr(colStr, "CX 42", false),
		Contains(colStr, "X 1", false, match.Start),
		Contains(colStr, "9", true, match.Any),
		Or(EqI32(colI32, 3), EqI32(colI32, 149), GtFlt(colFlt, 70)),
		Negate(Or(Negate(EqBit(colBit, false)), LtI64(colI64, 500))),
	}
	for _, p := range preds {
		t.Run(p.String(), func(t *testing.T) {
			require.NoError(t, p.Validate(tb.rg))
			want := []int{}
			for r := range tb.i32 {
				if tb.evalRow(p, r) {
					want = append(want, r)
				}
			}
			assert.Equal(t, want, scan(t, p, tb.rg))
		})
	}
}

// randomPredicate builds a valid random tree over the fixture columns.
func randomPredicate(r *rand.Rand, depth int) *Predicate {
	var p *Predicate
	if depth > 0 && r.Intn(3) == 0 {
		ops := make([]*Predicate, 1+r.Intn(3))
		for i := range ops {
			ops[i] = randomPredicate(r, depth-1)
		}
		if r.Intn(2) == 0 {
			p = And(ops...)
		} else {
			p = Or(ops...)
		}
	} else {
		n := int32(r.Intn(220) - 30)
		switch r.Intn(10) {
		case 0:
			p = True()
		case 1:
			p = IsNull(colStr)
		case 2:
			p = EqI32(colI32, n)
		case 3:
			p = LtI32(colI32, n)
		case 4:
			p = GtI64(colI64, int64(n)*10)
		case 5:
			p = EqBit(colBit, r.Intn(2) == 0)
		case 6:
			p = Contains(colStr, fmt.Sprint(n%10), r.Intn(2) == 0, match.Location(r.Intn(3)))
		case 7:
			p = LtDbl(colDbl, float64(n)/4)
		case 8:
			p = GtFlt(colFlt, float32(n)/2)
		default:
			p = EqStr(colStr, fmt.Sprintf("cx %d", n), true)
		}
	}
	if r.Intn(4) == 0 {
		Negate(p)
	}
	return p
}

func TestZoneMapSoundness(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	groups := []*table{
		fixture(t, 0, 100),
		fixture(t, 0, 1),
		fixture(t, 30, 31),
		fixture(t, 100, 164),
		fixture(t, 64, 200),
	}
	decided := 0
	for i := 0; i < 400; i++ {
		p := randomPredicate(r, 3)
		for _, tb := range groups {
			require.NoError(t, p.Validate(tb.rg))
			got := len(scan(t, p, tb.rg))
			switch p.MatchIndexes(tb.rg) {
			case NoRows:
				decided++
				require.Equal(t, 0, got, "%s", p)
			case AllRows:
				decided++
				require.Equal(t, int(tb.rg.RowCount()), got, "%s", p)
			}
		}
	}
	assert.Greater(t, decided, 100)
}

func TestNegationIdempotence(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	tb := fixture(t, 0, 130)
	for i := 0; i < 100; i++ {
		p := randomPredicate(r, 3)
		rows := scan(t, p, tb.rg)
		idx := p.MatchIndexes(tb.rg)

		q := Negate(Negate(p))
		assert.Same(t, p, q)
		assert.Equal(t, rows, scan(t, q, tb.rg))
		assert.Equal(t, idx, q.MatchIndexes(tb.rg))

		Negate(p)
		assert.Equal(t, int(tb.rg.RowCount())-len(rows), len(scan(t, p, tb.rg)))
	}
}

func TestOptimizeKeepsResults(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	tb := fixture(t, 0, 200)
	for i := 0; i < 100; i++ {
		p := randomPredicate(r, 4)
		before := scan(t, p, tb.rg)
		idx := p.MatchIndexes(tb.rg)
		p.Optimize(tb.rg)
		assert.Equal(t, before, scan(t, p, tb.rg), "%s", p)
		assert.Equal(t, idx, p.MatchIndexes(tb.rg))
	}
}

func TestOptimizeOrdersByCost(t *testing.T) {
	tb := fixture(t, 0, 10)
	p := Or(
		Contains(colStr, "a", true, match.Any),
		GtI64(colI64, 1),
		And(EqBit(colBit, true), EqI32(colI32, 1)),
		EqI32(colI32, 2),
		True(),
	)
	p.Optimize(tb.rg)
	var costs []int
	for _, op := range p.Operands() {
		costs = append(costs, op.Cost(tb.rg))
	}
	assert.Equal(t, []int{0, 8, 9, 16, 128}, costs)
	assert.Equal(t, 161, p.Cost(tb.rg))
}

func TestShortCircuitSkipsColumns(t *testing.T) {
	tb := fixture(t, 0, 100)
	// rows above 63 fail the first operand, so the second batch never
	// needs the string column
	p := And(LtI32(colI32, 64), Contains(colStr, "1", true, match.Any))
	cur := tb.rg.Cursor()
	require.True(t, cur.Next())
	_, _, err := p.MatchRows(cur)
	require.NoError(t, err)
	require.True(t, cur.Next())
	m, count, err := p.MatchRows(cur)
	require.NoError(t, err)
	assert.Zero(t, m)
	assert.Equal(t, 36, count)
}

func TestMatchRowsErrors(t *testing.T) {
	tb := fixture(t, 0, 10)
	cur := tb.rg.Cursor()
	require.True(t, cur.Next())

	_, _, err := EqI64(colI32, 1).MatchRows(cur)
	assert.Error(t, err)
	_, _, err = Lt(colBit, column.BoolValue(true)).MatchRows(cur)
	assert.Error(t, err)
	_, _, err = EqI32(42, 1).MatchRows(cur)
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	p := And(
		GtI32(0, 20),
		Negate(IsNull(1)),
		Contains(3, "0", false, match.End),
		Or(EqStr(3, "x", true), True()),
	)
	assert.Equal(t, `and(gt(#0, 20), not(null(#1)), contains(#3, "0", end, nocase), or(eq(#3, "x"), true))`, p.String())
	assert.Equal(t, []int{0, 1, 3}, p.Columns())
	assert.Equal(t, "unknown", Unknown.String())
}
