// Package predicate builds boolean expression trees over row group columns
// and evaluates them two ways: coarsely against column zone maps, deciding
// whether a whole row group can be skipped or taken, and precisely against
// 64-row batches, producing a bitmask of matching rows.
//
// Every node carries a negate flag applied to its own result. Comparisons
// read stored values regardless of null flags; IsNull is the only node that
// looks at them.
package predicate

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/match"
	"github.com/ajitpratap0/strata/pkg/rowgroup"
)

// Kind identifies a predicate node.
type Kind uint8

const (
	KindTrue Kind = iota
	KindIsNull
	KindEq
	KindLt
	KindGt
	KindContains
	KindAnd
	KindOr
)

var kindNames = [...]string{"true", "null", "eq", "lt", "gt", "contains", "and", "or"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Predicate is a node of a predicate tree. A node exclusively owns its
// operands; trees are immutable once built except for Negate and Optimize.
type Predicate struct {
	kind          Kind
	negate        bool
	column        int
	value         column.Value
	caseSensitive bool
	location      match.Location
	operands      []*Predicate
}

// True matches every row.
func True() *Predicate {
	return &Predicate{kind: KindTrue}
}

// IsNull matches rows whose null flag is set in column col.
func IsNull(col int) *Predicate {
	return &Predicate{kind: KindIsNull, column: col}
}

func compare(kind Kind, col int, v column.Value) *Predicate {
	return &Predicate{kind: kind, column: col, value: v, caseSensitive: true}
}

// Eq matches rows where column col equals v. String comparisons are case
// sensitive.
func Eq(col int, v column.Value) *Predicate { return compare(KindEq, col, v) }

// Lt matches rows where column col is less than v.
func Lt(col int, v column.Value) *Predicate { return compare(KindLt, col, v) }

// Gt matches rows where column col is greater than v.
func Gt(col int, v column.Value) *Predicate { return compare(KindGt, col, v) }

// EqBit is Eq against a Bit literal.
func EqBit(col int, v bool) *Predicate { return Eq(col, column.BoolValue(v)) }

// EqI32 is Eq against an I32 literal.
func EqI32(col int, v int32) *Predicate { return Eq(col, column.I32Value(v)) }

// EqI64 is Eq against an I64 literal.
func EqI64(col int, v int64) *Predicate { return Eq(col, column.I64Value(v)) }

// EqFlt is Eq against a Flt literal.
func EqFlt(col int, v float32) *Predicate { return Eq(col, column.FltValue(v)) }

// EqDbl is Eq against a Dbl literal.
func EqDbl(col int, v float64) *Predicate { return Eq(col, column.DblValue(v)) }

// LtI32 is Lt against an I32 literal.
func LtI32(col int, v int32) *Predicate { return Lt(col, column.I32Value(v)) }

// LtI64 is Lt against an I64 literal.
func LtI64(col int, v int64) *Predicate { return Lt(col, column.I64Value(v)) }

// LtFlt is Lt against a Flt literal.
func LtFlt(col int, v float32) *Predicate { return Lt(col, column.FltValue(v)) }

// LtDbl is Lt against a Dbl literal.
func LtDbl(col int, v float64) *Predicate { return Lt(col, column.DblValue(v)) }

// GtI32 is Gt against an I32 literal.
func GtI32(col int, v int32) *Predicate { return Gt(col, column.I32Value(v)) }

// GtI64 is Gt against an I64 literal.
func GtI64(col int, v int64) *Predicate { return Gt(col, column.I64Value(v)) }

// GtFlt is Gt against a Flt literal.
func GtFlt(col int, v float32) *Predicate { return Gt(col, column.FltValue(v)) }

// GtDbl is Gt against a Dbl literal.
func GtDbl(col int, v float64) *Predicate { return Gt(col, column.DblValue(v)) }

// EqStr matches rows where string column col equals v.
func EqStr(col int, v string, caseSensitive bool) *Predicate {
	p := Eq(col, column.StrValue(v))
	p.caseSensitive = caseSensitive
	return p
}

// LtStr matches rows where string column col orders before v.
func LtStr(col int, v string, caseSensitive bool) *Predicate {
	p := Lt(col, column.StrValue(v))
	p.caseSensitive = caseSensitive
	return p
}

// GtStr matches rows where string column col orders after v.
func GtStr(col int, v string, caseSensitive bool) *Predicate {
	p := Gt(col, column.StrValue(v))
	p.caseSensitive = caseSensitive
	return p
}

// Contains matches rows where string column col contains s at loc.
func Contains(col int, s string, caseSensitive bool, loc match.Location) *Predicate {
	return &Predicate{
		kind:          KindContains,
		column:        col,
		value:         column.StrValue(s),
		caseSensitive: caseSensitive,
		location:      loc,
	}
}

// And matches rows matched by every operand.
func And(operands ...*Predicate) *Predicate {
	return &Predicate{kind: KindAnd, operands: operands}
}

// Or matches rows matched by any operand.
func Or(operands ...*Predicate) *Predicate {
	return &Predicate{kind: KindOr, operands: operands}
}

// Negate toggles p's negate flag and returns p.
func Negate(p *Predicate) *Predicate {
	p.negate = !p.negate
	return p
}

// Kind returns the node kind.
func (p *Predicate) Kind() Kind { return p.kind }

// Negated reports whether the node's result is inverted.
func (p *Predicate) Negated() bool { return p.negate }

// Column returns the column index of a leaf node.
func (p *Predicate) Column() int { return p.column }

// Value returns the comparison operand of Eq, Lt, Gt and Contains nodes.
func (p *Predicate) Value() column.Value { return p.value }

// CaseSensitive reports whether string comparisons respect case.
func (p *Predicate) CaseSensitive() bool { return p.caseSensitive }

// Location returns where a Contains node looks for its needle.
func (p *Predicate) Location() match.Location { return p.location }

// Operands returns the children of And and Or nodes.
func (p *Predicate) Operands() []*Predicate { return p.operands }

// Columns returns the distinct column indexes referenced by the tree in
// ascending order.
func (p *Predicate) Columns() []int {
	seen := map[int]struct{}{}
	p.walk(func(n *Predicate) {
		switch n.kind {
		case KindTrue, KindAnd, KindOr:
		default:
			seen[n.column] = struct{}{}
		}
	})
	cols := make([]int, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Ints(cols)
	return cols
}

func (p *Predicate) walk(fn func(*Predicate)) {
	fn(p)
	for _, op := range p.operands {
		op.walk(fn)
	}
}

// Validate checks p against rg's schema: column indexes are in range,
// comparison values match the column type, Contains targets a string
// column, Lt and Gt do not target a bit column, and And/Or have operands.
func (p *Predicate) Validate(rg *rowgroup.RowGroup) error {
	switch p.kind {
	case KindTrue:
		return nil
	case KindIsNull:
		_, err := p.columnType(rg)
		return err
	case KindEq, KindLt, KindGt, KindContains:
		typ, err := p.columnType(rg)
		if err != nil {
			return err
		}
		if p.kind == KindContains && typ != column.Str {
			return p.invalid("contains needs a str column, column %d is %s", p.column, typ)
		}
		if (p.kind == KindLt || p.kind == KindGt) && typ == column.Bit {
			return p.invalid("%s is not defined for bit column %d", p.kind, p.column)
		}
		if p.value.Type() != typ {
			return p.invalid("%s value on %s column %d", p.value.Type(), typ, p.column)
		}
		return nil
	case KindAnd, KindOr:
		if len(p.operands) == 0 {
			return p.invalid("%s needs at least one operand", p.kind)
		}
		for _, op := range p.operands {
			if op == nil {
				return p.invalid("%s has a nil operand", p.kind)
			}
			if err := op.Validate(rg); err != nil {
				return err
			}
		}
		return nil
	}
	return p.invalid("unknown predicate kind %d", p.kind)
}

// Valid reports whether Validate succeeds.
func (p *Predicate) Valid(rg *rowgroup.RowGroup) bool {
	return p.Validate(rg) == nil
}

func (p *Predicate) columnType(rg *rowgroup.RowGroup) (column.Type, error) {
	typ, ok := rg.ColumnType(p.column)
	if !ok {
		return 0, p.invalid("column %d out of range, row group has %d", p.column, rg.ColumnCount())
	}
	return typ, nil
}

func (p *Predicate) invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrorTypeValidation, format, args...).WithDetail("predicate", p.String())
}

// Per-row evaluation cost of a leaf, in relative units.
var typeCost = [...]int{
	column.Bit: 1,
	column.I32: 8,
	column.I64: 16,
	column.Flt: 8,
	column.Dbl: 16,
	column.Str: 128,
}

// Cost estimates the per-row evaluation cost of p against rg.
func (p *Predicate) Cost(rg *rowgroup.RowGroup) int {
	switch p.kind {
	case KindTrue:
		return 0
	case KindIsNull:
		return typeCost[column.Bit]
	case KindAnd, KindOr:
		total := 0
		for _, op := range p.operands {
			total += op.Cost(rg)
		}
		return total
	}
	typ, ok := rg.ColumnType(p.column)
	if !ok {
		return 0
	}
	return typeCost[typ]
}

// Optimize reorders the operands of every And and Or node by ascending cost
// so cheap operands run first and short-circuiting skips expensive ones. The
// order of equal-cost operands is kept. Results are unchanged.
func (p *Predicate) Optimize(rg *rowgroup.RowGroup) {
	if p.kind != KindAnd && p.kind != KindOr {
		return
	}
	costs := make(map[*Predicate]int, len(p.operands))
	for _, op := range p.operands {
		op.Optimize(rg)
		costs[op] = op.Cost(rg)
	}
	sort.SliceStable(p.operands, func(i, j int) bool {
		return costs[p.operands[i]] < costs[p.operands[j]]
	})
}

// String renders the tree, for example
// and(gt(#0, 20), not(null(#1)), contains(#3, "0", end)).
func (p *Predicate) String() string {
	var b strings.Builder
	p.format(&b)
	return b.String()
}

func (p *Predicate) format(b *strings.Builder) {
	if p.negate {
		b.WriteString("not(")
	}
	b.WriteString(p.kind.String())
	switch p.kind {
	case KindTrue:
	case KindIsNull:
		b.WriteString("(#")
		b.WriteString(strconv.Itoa(p.column))
		b.WriteByte(')')
	case KindAnd, KindOr:
		b.WriteByte('(')
		for i, op := range p.operands {
			if i > 0 {
				b.WriteString(", ")
			}
			if op == nil {
				b.WriteString("<nil>")
				continue
			}
			op.format(b)
		}
		b.WriteByte(')')
	default:
		b.WriteString("(#")
		b.WriteString(strconv.Itoa(p.column))
		b.WriteString(", ")
		b.WriteString(p.value.String())
		if p.kind == KindContains {
			b.WriteString(", ")
			b.WriteString(p.location.String())
		}
		if p.value.Type() == column.Str && !p.caseSensitive {
			b.WriteString(", nocase")
		}
		b.WriteByte(')')
	}
	if p.negate {
		b.WriteByte(')')
	}
}
