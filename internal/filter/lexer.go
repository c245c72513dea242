package filter

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/ajitpratap0/strata/pkg/errors"
)

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenColumn
	tokenString
	tokenNumber
	tokenLParen
	tokenRParen
	tokenEq
	tokenNe
	tokenLt
	tokenLe
	tokenGt
	tokenGe
)

var tokenNames = map[tokenType]string{
	tokenEOF:    "end of input",
	tokenIdent:  "identifier",
	tokenColumn: "column",
	tokenString: "string",
	tokenNumber: "number",
	tokenLParen: "(",
	tokenRParen: ")",
	tokenEq:     "=",
	tokenNe:     "!=",
	tokenLt:     "<",
	tokenLe:     "<=",
	tokenGt:     ">",
	tokenGe:     ">=",
}

func (t tokenType) String() string { return tokenNames[t] }

type token struct {
	typ tokenType
	lit string
	pos int
}

// keyword reports whether the token is the case-insensitive identifier kw.
func (t token) keyword(kw string) bool {
	return t.typ == tokenIdent && strings.EqualFold(t.lit, kw)
}

type lexer struct {
	input string
	pos   int
}

func tokenize(input string) ([]token, error) {
	l := &lexer{input: input}
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.typ == tokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) errorf(pos int, format string, args ...interface{}) error {
	return errors.Newf(errors.ErrorTypeValidation, format, args...).WithDetail("position", pos)
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.input) {
		return token{typ: tokenEOF, pos: start}, nil
	}

	ch := l.input[l.pos]
	switch {
	case ch == '(':
		l.pos++
		return token{typ: tokenLParen, lit: "(", pos: start}, nil
	case ch == ')':
		l.pos++
		return token{typ: tokenRParen, lit: ")", pos: start}, nil
	case ch == '=':
		l.pos++
		if l.peek('=') {
			l.pos++
		}
		return token{typ: tokenEq, lit: "=", pos: start}, nil
	case ch == '!':
		l.pos++
		if !l.peek('=') {
			return token{}, l.errorf(start, "expected '=' after '!' at %d", start)
		}
		l.pos++
		return token{typ: tokenNe, lit: "!=", pos: start}, nil
	case ch == '<':
		l.pos++
		switch {
		case l.peek('='):
			l.pos++
			return token{typ: tokenLe, lit: "<=", pos: start}, nil
		case l.peek('>'):
			l.pos++
			return token{typ: tokenNe, lit: "<>", pos: start}, nil
		}
		return token{typ: tokenLt, lit: "<", pos: start}, nil
	case ch == '>':
		l.pos++
		if l.peek('=') {
			l.pos++
			return token{typ: tokenGe, lit: ">=", pos: start}, nil
		}
		return token{typ: tokenGt, lit: ">", pos: start}, nil
	case ch == '"' || ch == '\'':
		return l.readString(ch)
	case ch == '#':
		l.pos++
		digits := l.readWhile(isDigit)
		if digits == "" {
			return token{}, l.errorf(start, "expected column number after '#' at %d", start)
		}
		return token{typ: tokenColumn, lit: digits, pos: start}, nil
	case isDigit(ch) || ch == '-' || ch == '+' || ch == '.':
		lit := l.readWhile(func(c byte) bool {
			return isDigit(c) || isLetter(c) || c == '.' || c == '-' || c == '+'
		})
		return token{typ: tokenNumber, lit: lit, pos: start}, nil
	case isLetter(ch):
		lit := l.readWhile(func(c byte) bool { return isLetter(c) || isDigit(c) })
		return token{typ: tokenIdent, lit: lit, pos: start}, nil
	}
	return token{}, l.errorf(start, "unexpected character %q at %d", ch, start)
}

func (l *lexer) peek(c byte) bool {
	return l.pos < len(l.input) && l.input[l.pos] == c
}

func (l *lexer) readWhile(ok func(byte) bool) string {
	start := l.pos
	for l.pos < len(l.input) && ok(l.input[l.pos]) {
		l.pos++
	}
	return l.input[start:l.pos]
}

// readString reads a quoted literal. Double-quoted strings use Go escapes;
// single-quoted strings are raw, with a doubled quote standing for one.
func (l *lexer) readString(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == quote && quote == '\'' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '\'':
			b.WriteByte('\'')
			l.pos += 2
		case c == quote:
			l.pos++
			if quote == '\'' {
				return token{typ: tokenString, lit: b.String(), pos: start}, nil
			}
			s, err := strconv.Unquote(l.input[start:l.pos])
			if err != nil {
				return token{}, l.errorf(start, "invalid string literal at %d: %v", start, err)
			}
			return token{typ: tokenString, lit: s, pos: start}, nil
		case c == '\\' && quote == '"' && l.pos+1 < len(l.input):
			l.pos += 2
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return token{}, l.errorf(start, "unterminated string starting at %d", start)
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' }
