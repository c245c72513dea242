// Package filter parses the filter expressions accepted by the strata CLI
// into predicates.
//
// Columns are referenced as #N or cN, or by name when names are supplied.
// The grammar, loosest binding first:
//
//	expr    = and { "or" and }
//	and     = unary { "and" unary }
//	unary   = "not" unary | primary
//	primary = "(" expr ")" | "true" | "false" | "null" "(" col ")"
//	        | col "is" [ "not" ] "null"
//	        | col ( "=" | "!=" | "<" | "<=" | ">" | ">=" ) literal [ case ]
//	        | col ( "contains" | "startswith" | "endswith" ) literal [ case ]
//	case    = "nocase" | "case"
//
// Keywords are case-insensitive. An empty expression matches every row.
package filter

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/match"
	"github.com/ajitpratap0/strata/pkg/predicate"
)

// Schema describes the columns an expression may reference.
type Schema struct {
	Types []column.Type
	// Names optionally maps column names to positions in Types.
	Names []string
	// CaseSensitive is the default for string comparisons.
	CaseSensitive bool
}

// Parse parses expr against schema.
func Parse(expr string, schema Schema) (*predicate.Predicate, error) {
	if strings.TrimSpace(expr) == "" {
		return predicate.True(), nil
	}
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, schema: schema}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.typ != tokenEOF {
		return nil, p.errorf(tok, "unexpected %q", tok.lit)
	}
	return pred, nil
}

type parser struct {
	tokens []token
	pos    int
	schema Schema
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.typ != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(kw string) bool {
	if p.peek().keyword(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(typ tokenType) (token, error) {
	tok := p.advance()
	if tok.typ != typ {
		return tok, p.errorf(tok, "expected %s, found %q", typ, tok.lit)
	}
	return tok, nil
}

func (p *parser) errorf(tok token, format string, args ...interface{}) error {
	return errors.Newf(errors.ErrorTypeValidation, "filter: "+format+" at position %d", append(args, tok.pos)...).
		WithDetail("position", tok.pos)
}

func (p *parser) parseOr() (*predicate.Predicate, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	operands := []*predicate.Predicate{first}
	for p.accept("or") {
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return predicate.Or(operands...), nil
}

func (p *parser) parseAnd() (*predicate.Predicate, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	operands := []*predicate.Predicate{first}
	for p.accept("and") {
		next, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return predicate.And(operands...), nil
}

func (p *parser) parseUnary() (*predicate.Predicate, error) {
	if p.accept("not") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return predicate.Negate(inner), nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (*predicate.Predicate, error) {
	tok := p.peek()
	switch {
	case tok.typ == tokenLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case tok.keyword("true"):
		p.advance()
		return predicate.True(), nil
	case tok.keyword("false"):
		p.advance()
		return predicate.Negate(predicate.True()), nil
	case tok.keyword("null"):
		p.advance()
		if _, err := p.expect(tokenLParen); err != nil {
			return nil, err
		}
		col, _, err := p.parseColumn()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen); err != nil {
			return nil, err
		}
		return predicate.IsNull(col), nil
	}

	col, typ, err := p.parseColumn()
	if err != nil {
		return nil, err
	}
	if p.accept("is") {
		negate := p.accept("not")
		if !p.accept("null") {
			return nil, p.errorf(p.peek(), "expected null after is")
		}
		pred := predicate.IsNull(col)
		if negate {
			pred = predicate.Negate(pred)
		}
		return pred, nil
	}
	return p.parseComparison(col, typ)
}

func (p *parser) parseColumn() (int, column.Type, error) {
	tok := p.advance()
	col := -1
	switch tok.typ {
	case tokenColumn:
		n, err := strconv.Atoi(tok.lit)
		if err != nil {
			return 0, 0, p.errorf(tok, "invalid column %q", tok.lit)
		}
		col = n
	case tokenIdent:
		col = p.lookup(tok.lit)
	}
	if col < 0 {
		return 0, 0, p.errorf(tok, "expected column, found %q", tok.lit)
	}
	if col >= len(p.schema.Types) {
		return 0, 0, p.errorf(tok, "column %d out of range, file has %d", col, len(p.schema.Types))
	}
	return col, p.schema.Types[col], nil
}

func (p *parser) lookup(name string) int {
	for i, n := range p.schema.Names {
		if n == name {
			return i
		}
	}
	if len(name) > 1 && (name[0] == 'c' || name[0] == 'C') {
		if n, err := strconv.Atoi(name[1:]); err == nil {
			return n
		}
	}
	return -1
}

var locations = map[string]match.Location{
	"contains":   match.Any,
	"startswith": match.Start,
	"endswith":   match.End,
}

func (p *parser) parseComparison(col int, typ column.Type) (*predicate.Predicate, error) {
	op := p.advance()
	if op.typ == tokenIdent {
		loc, ok := locations[strings.ToLower(op.lit)]
		if !ok {
			return nil, p.errorf(op, "unknown operator %q", op.lit)
		}
		if typ != column.Str {
			return nil, p.errorf(op, "%s needs a str column, #%d is %s", strings.ToLower(op.lit), col, typ)
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return predicate.Contains(col, lit.lit, p.parseCase(), loc), nil
	}

	switch op.typ {
	case tokenEq, tokenNe, tokenLt, tokenLe, tokenGt, tokenGe:
	default:
		return nil, p.errorf(op, "expected comparison operator, found %q", op.lit)
	}
	if typ == column.Bit && op.typ != tokenEq && op.typ != tokenNe {
		return nil, p.errorf(op, "bit column #%d supports only = and !=", col)
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	v, err := column.ParseValue(typ, lit.lit)
	if err != nil {
		return nil, p.errorf(lit, "invalid %s literal %q", typ, lit.lit)
	}
	cs := p.parseCase()

	var pred *predicate.Predicate
	switch op.typ {
	case tokenEq, tokenNe:
		pred = predicate.Eq(col, v)
		if typ == column.Str {
			pred = predicate.EqStr(col, v.Str(), cs)
		}
	case tokenLt, tokenGe:
		pred = predicate.Lt(col, v)
		if typ == column.Str {
			pred = predicate.LtStr(col, v.Str(), cs)
		}
	case tokenGt, tokenLe:
		pred = predicate.Gt(col, v)
		if typ == column.Str {
			pred = predicate.GtStr(col, v.Str(), cs)
		}
	}
	if op.typ == tokenNe || op.typ == tokenGe || op.typ == tokenLe {
		pred = predicate.Negate(pred)
	}
	return pred, nil
}

func (p *parser) parseLiteral() (token, error) {
	tok := p.advance()
	switch tok.typ {
	case tokenString, tokenNumber, tokenIdent:
		return tok, nil
	}
	return tok, p.errorf(tok, "expected literal, found %q", tok.lit)
}

// parseCase consumes an optional case modifier.
func (p *parser) parseCase() bool {
	switch {
	case p.accept("nocase"):
		return false
	case p.accept("case"):
		return true
	}
	return p.schema.CaseSensitive
}
