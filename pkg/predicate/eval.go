package predicate

import (
	"math"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/match"
	"github.com/ajitpratap0/strata/pkg/rowgroup"
)

// Result is the outcome of evaluating a predicate against zone maps. Results
// are ordered NoRows < Unknown < AllRows.
type Result int8

const (
	// NoRows means no row can match
	NoRows Result = iota
	// Unknown means rows must be evaluated
	Unknown
	// AllRows means every row matches
	AllRows
)

func (r Result) String() string {
	switch r {
	case NoRows:
		return "none"
	case AllRows:
		return "all"
	default:
		return "unknown"
	}
}

func (r Result) invert() Result {
	switch r {
	case NoRows:
		return AllRows
	case AllRows:
		return NoRows
	}
	return r
}

// MatchIndexes evaluates p against rg's zone maps without reading rows. A
// row group with no rows never matches. A predicate that fails Validate
// yields Unknown for the offending nodes.
func (p *Predicate) MatchIndexes(rg *rowgroup.RowGroup) Result {
	if rg.RowCount() == 0 {
		return NoRows
	}
	return p.matchIndexes(rg)
}

func (p *Predicate) matchIndexes(rg *rowgroup.RowGroup) Result {
	var r Result
	switch p.kind {
	case KindTrue:
		r = AllRows
	case KindIsNull:
		r = p.matchNullsIndex(rg)
	case KindAnd:
		r = AllRows
		for _, op := range p.operands {
			if op == nil {
				return Unknown
			}
			if sub := op.matchIndexes(rg); sub < r {
				r = sub
			}
			if r == NoRows {
				break
			}
		}
	case KindOr:
		r = NoRows
		for _, op := range p.operands {
			if op == nil {
				return Unknown
			}
			if sub := op.matchIndexes(rg); sub > r {
				r = sub
			}
			if r == AllRows {
				break
			}
		}
	default:
		ix, err := rg.ColumnIndex(p.column)
		if err != nil {
			return Unknown
		}
		r = p.matchColumnIndex(ix)
	}
	if p.negate {
		r = r.invert()
	}
	return r
}

func (p *Predicate) matchNullsIndex(rg *rowgroup.RowGroup) Result {
	ix, err := rg.NullsIndex(p.column)
	if err != nil || ix.Count == 0 {
		return Unknown
	}
	switch {
	case ix.Min.Bool():
		return AllRows
	case !ix.Max.Bool():
		return NoRows
	}
	return Unknown
}

func (p *Predicate) matchColumnIndex(ix column.Index) Result {
	if ix.Count == 0 {
		return Unknown
	}
	v := p.value
	switch p.kind {
	case KindContains:
		if int64(len(v.Str())) > ix.Max.I64() {
			return NoRows
		}
		return Unknown
	case KindEq:
		switch v.Type() {
		case column.Bit:
			if ix.Min.Bool() != ix.Max.Bool() {
				return Unknown
			}
			if ix.Min.Bool() == v.Bool() {
				return AllRows
			}
			return NoRows
		case column.I32, column.I64:
			return eqRange(v.I64(), ix.Min.I64(), ix.Max.I64())
		case column.Flt, column.Dbl:
			if math.IsNaN(v.Dbl()) {
				return NoRows
			}
			return eqRange(v.Dbl(), ix.Min.Dbl(), ix.Max.Dbl())
		case column.Str:
			n := int64(len(v.Str()))
			if n < ix.Min.I64() || n > ix.Max.I64() {
				return NoRows
			}
			return Unknown
		}
	case KindLt:
		switch v.Type() {
		case column.I32, column.I64:
			return ltRange(v.I64(), ix.Min.I64(), ix.Max.I64())
		case column.Flt, column.Dbl:
			if math.IsNaN(v.Dbl()) {
				return NoRows
			}
			return ltRange(v.Dbl(), ix.Min.Dbl(), ix.Max.Dbl())
		}
	case KindGt:
		switch v.Type() {
		case column.I32, column.I64:
			return gtRange(v.I64(), ix.Min.I64(), ix.Max.I64())
		case column.Flt, column.Dbl:
			if math.IsNaN(v.Dbl()) {
				return NoRows
			}
			return gtRange(v.Dbl(), ix.Min.Dbl(), ix.Max.Dbl())
		}
	}
	return Unknown
}

type ordered interface {
	~int64 | ~float64
}

func eqRange[T ordered](v, lo, hi T) Result {
	switch {
	case v < lo || v > hi:
		return NoRows
	case lo == v && hi == v:
		return AllRows
	}
	return Unknown
}

func ltRange[T ordered](v, lo, hi T) Result {
	switch {
	case hi < v:
		return AllRows
	case lo >= v:
		return NoRows
	}
	return Unknown
}

func gtRange[T ordered](v, lo, hi T) Result {
	switch {
	case lo > v:
		return AllRows
	case hi <= v:
		return NoRows
	}
	return Unknown
}

// MatchRows evaluates p over the cursor's current batch. It returns the mask
// of matching rows and the batch size; bits at or above count are clear. At
// the end of data count is 0. Operands of And and Or are skipped once the
// accumulated mask is decided, so their columns are not read for that batch.
func (p *Predicate) MatchRows(cur *rowgroup.Cursor) (uint64, int, error) {
	count := cur.BatchCount()
	if count == 0 {
		return 0, 0, nil
	}
	m, err := p.matchRows(cur, match.Mask(count))
	if err != nil {
		return 0, count, err
	}
	return m, count, nil
}

func (p *Predicate) matchRows(cur *rowgroup.Cursor, full uint64) (uint64, error) {
	m, err := p.evalRows(cur, full)
	if err != nil {
		return 0, err
	}
	if p.negate {
		m = ^m
	}
	return m & full, nil
}

func (p *Predicate) evalRows(cur *rowgroup.Cursor, full uint64) (uint64, error) {
	switch p.kind {
	case KindTrue:
		return full, nil
	case KindIsNull:
		nulls, err := cur.BatchNulls(p.column)
		if err != nil {
			return 0, err
		}
		return match.EqBit(nulls, true), nil
	case KindAnd:
		acc := full
		for _, op := range p.operands {
			if acc == 0 {
				break
			}
			if op == nil {
				return 0, p.invalid("and has a nil operand")
			}
			m, err := op.matchRows(cur, full)
			if err != nil {
				return 0, err
			}
			acc &= m
		}
		return acc, nil
	case KindOr:
		var acc uint64
		for _, op := range p.operands {
			if acc == full {
				break
			}
			if op == nil {
				return 0, p.invalid("or has a nil operand")
			}
			m, err := op.matchRows(cur, full)
			if err != nil {
				return 0, err
			}
			acc |= m
		}
		return acc, nil
	case KindContains:
		strs, err := cur.BatchStr(p.column)
		if err != nil {
			return 0, err
		}
		return match.Contains(strs, p.value.Str(), p.caseSensitive, p.location), nil
	}
	return p.compareRows(cur)
}

func (p *Predicate) compareRows(cur *rowgroup.Cursor) (uint64, error) {
	v := p.value
	switch v.Type() {
	case column.Bit:
		if p.kind != KindEq {
			break
		}
		b, err := cur.BatchBit(p.column)
		if err != nil {
			return 0, err
		}
		return match.EqBit(b, v.Bool()), nil
	case column.I32:
		b, err := cur.BatchI32(p.column)
		if err != nil {
			return 0, err
		}
		return pick(p.kind, match.EqI32, match.LtI32, match.GtI32)(b, v.I32()), nil
	case column.I64:
		b, err := cur.BatchI64(p.column)
		if err != nil {
			return 0, err
		}
		return pick(p.kind, match.EqI64, match.LtI64, match.GtI64)(b, v.I64()), nil
	case column.Flt:
		b, err := cur.BatchFlt(p.column)
		if err != nil {
			return 0, err
		}
		return pick(p.kind, match.EqFlt, match.LtFlt, match.GtFlt)(b, v.Flt()), nil
	case column.Dbl:
		b, err := cur.BatchDbl(p.column)
		if err != nil {
			return 0, err
		}
		return pick(p.kind, match.EqDbl, match.LtDbl, match.GtDbl)(b, v.Dbl()), nil
	case column.Str:
		b, err := cur.BatchStr(p.column)
		if err != nil {
			return 0, err
		}
		switch p.kind {
		case KindLt:
			return match.LtStr(b, v.Str(), p.caseSensitive), nil
		case KindGt:
			return match.GtStr(b, v.Str(), p.caseSensitive), nil
		}
		return match.EqStr(b, v.Str(), p.caseSensitive), nil
	}
	return 0, errors.Newf(errors.ErrorTypeValidation, "%s cannot be evaluated on %s", p.kind, v.Type()).
		WithDetail("predicate", p.String())
}

func pick[T any](kind Kind, eq, lt, gt func([]T, T) uint64) func([]T, T) uint64 {
	switch kind {
	case KindLt:
		return lt
	case KindGt:
		return gt
	}
	return eq
}
