package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// OrderItem is a single ORDER BY / GROUP BY entry.
type OrderItem struct {
	Expr Expr
	Desc bool
}

// Parse parses a condition fragment written in the compact SQL-like
// mini-language, binding `?` placeholders to args in order.
//
//	Parse("title like ? or authorId in ?", "%Post%", []int{1, 2})
func Parse(source string, args ...any) (Expr, error) {
	p := newParser(source, args)
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	if err := p.drained(); err != nil {
		return nil, err
	}
	return node, nil
}

// ParseSelect parses a select-list fragment: comma-separated expressions
// with optional `AS alias` (the AS keyword itself is optional).
func ParseSelect(source string, args ...any) ([]Expr, error) {
	p := newParser(source, args)
	var out []Expr
	for {
		node, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		switch {
		case tok.typ == tokenKeyword && tok.literal == "AS":
			p.advance()
			name, err := p.expect(tokenIdent)
			if err != nil {
				return nil, err
			}
			node = &Alias{Expr: node, Name: name.literal}
		case tok.typ == tokenIdent:
			// bare alias: "count(id) total"
			p.advance()
			node = &Alias{Expr: node, Name: tok.literal}
		}
		out = append(out, node)
		tok, err = p.peek()
		if err != nil {
			return nil, err
		}
		if tok.typ != tokenComma {
			break
		}
		p.advance()
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseOrder parses an order fragment such as "posts desc, id" into
// ordered items. Directions default to ascending.
func ParseOrder(source string) ([]OrderItem, error) {
	p := newParser(source, nil)
	var out []OrderItem
	for {
		node, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := OrderItem{Expr: node}
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.typ == tokenKeyword && (tok.literal == "ASC" || tok.literal == "DESC") {
			p.advance()
			item.Desc = tok.literal == "DESC"
		}
		out = append(out, item)
		tok, err = p.peek()
		if err != nil {
			return nil, err
		}
		if tok.typ != tokenComma {
			break
		}
		p.advance()
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return out, nil
}

type parser struct {
	lex    *lexer
	tok    token
	peeked bool
	args   []any
	argIdx int
}

func newParser(source string, args []any) *parser {
	return &parser{lex: newLexer(source), args: args}
}

func (p *parser) peek() (token, error) {
	if !p.peeked {
		tok, err := p.lex.next()
		if err != nil {
			return token{}, err
		}
		p.tok, p.peeked = tok, true
	}
	return p.tok, nil
}

func (p *parser) advance() { p.peeked = false }

func (p *parser) expect(typ tokenType) (token, error) {
	tok, err := p.peek()
	if err != nil {
		return token{}, err
	}
	if tok.typ != typ {
		return token{}, fmt.Errorf("unexpected token %s, expected %s", tok, typ)
	}
	p.advance()
	return tok, nil
}

func (p *parser) expectEOF() error {
	tok, err := p.peek()
	if err != nil {
		return err
	}
	if tok.typ != tokenEOF {
		return fmt.Errorf("unexpected token %s at end of expression", tok)
	}
	return nil
}

func (p *parser) drained() error {
	if p.argIdx < len(p.args) {
		return fmt.Errorf("unexpected arguments: %d bound, %d consumed", len(p.args), p.argIdx)
	}
	return nil
}

func (p *parser) nextArg() (any, error) {
	if p.argIdx >= len(p.args) {
		return nil, fmt.Errorf("unexpected token ?: no argument bound for placeholder %d", p.argIdx+1)
	}
	v := p.args[p.argIdx]
	p.argIdx++
	return v, nil
}

// parseExpr parses a full expression: OR has the loosest binding.
func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.typ != tokenKeyword || tok.literal != "OR" {
			return left, nil
		}
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or(left, right)
	}
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.typ != tokenKeyword || tok.literal != "AND" {
			return left, nil
		}
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = And(left, right)
	}
}

func (p *parser) parseNot() (Expr, error) {
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.typ == tokenKeyword && tok.literal == "NOT" {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not(operand), nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]Op{
	"=":  OpEq,
	"!=": OpNe,
	"<":  OpLt,
	"<=": OpLte,
	">":  OpGt,
	">=": OpGte,
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive(false)
	if err != nil {
		return nil, err
	}
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	switch tok.typ {
	case tokenOperator:
		op, ok := comparisonOps[tok.literal]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseAdditive(false)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: op, Left: left, Right: right}, nil
	case tokenKeyword:
		switch tok.literal {
		case "LIKE":
			p.advance()
			right, err := p.parseAdditive(false)
			if err != nil {
				return nil, err
			}
			return &Binary{Op: OpLike, Left: left, Right: right}, nil
		case "IS":
			p.advance()
			op := OpIs
			if tok, err := p.peek(); err == nil && tok.typ == tokenKeyword && tok.literal == "NOT" {
				p.advance()
				op = OpIsNot
			}
			right, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			return &Binary{Op: op, Left: left, Right: right}, nil
		case "IN":
			p.advance()
			return p.parseIn(left, false)
		case "BETWEEN":
			p.advance()
			return p.parseBetween(left, false)
		case "NOT":
			p.advance()
			tok, err := p.peek()
			if err != nil {
				return nil, err
			}
			switch {
			case tok.typ == tokenKeyword && tok.literal == "LIKE":
				p.advance()
				right, err := p.parseAdditive(false)
				if err != nil {
					return nil, err
				}
				return &Binary{Op: OpNotLike, Left: left, Right: right}, nil
			case tok.typ == tokenKeyword && tok.literal == "IN":
				p.advance()
				return p.parseIn(left, true)
			case tok.typ == tokenKeyword && tok.literal == "BETWEEN":
				p.advance()
				return p.parseBetween(left, true)
			}
			return nil, fmt.Errorf("unexpected token %s after NOT", tok)
		}
	}
	return left, nil
}

func (p *parser) parseIn(left Expr, not bool) (Expr, error) {
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.typ == tokenPlaceholder {
		p.advance()
		arg, err := p.nextArg()
		if err != nil {
			return nil, err
		}
		if sub, ok := arg.(Subquery); ok {
			return &In{Not: not, Expr: left, Query: sub}, nil
		}
		list, err := toList(arg)
		if err != nil {
			return nil, err
		}
		return &In{Not: not, Expr: left, List: list}, nil
	}
	if _, err := p.expect(tokenLParen); err != nil {
		return nil, err
	}
	var values []Expr
	for {
		v, err := p.parseAdditive(false)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.typ == tokenComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(tokenRParen); err != nil {
		return nil, err
	}
	return &In{Not: not, Expr: left, List: &List{Values: values}}, nil
}

// parseBetween parses `lo AND hi` operands without letting the AND be
// consumed as a logical conjunction.
func (p *parser) parseBetween(left Expr, not bool) (Expr, error) {
	lo, err := p.parseAdditive(false)
	if err != nil {
		return nil, err
	}
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.typ != tokenKeyword || tok.literal != "AND" {
		return nil, fmt.Errorf("unexpected token %s, expected AND in BETWEEN", tok)
	}
	p.advance()
	hi, err := p.parseAdditive(false)
	if err != nil {
		return nil, err
	}
	return &Between{Not: not, Expr: left, Lo: lo, Hi: hi}, nil
}

// parseAdditive handles + and -. inCall relaxes `*` so COUNT(*) parses.
func (p *parser) parseAdditive(inCall bool) (Expr, error) {
	left, err := p.parseMultiplicative(inCall)
	if err != nil {
		return nil, err
	}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.typ != tokenOperator || (tok.literal != "+" && tok.literal != "-") {
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative(inCall)
		if err != nil {
			return nil, err
		}
		op := OpAdd
		if tok.literal == "-" {
			op = OpSub
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative(inCall bool) (Expr, error) {
	left, err := p.parseUnary(inCall)
	if err != nil {
		return nil, err
	}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.typ != tokenOperator {
			return left, nil
		}
		var op Op
		switch tok.literal {
		case "*":
			op = OpMul
		case "/":
			op = OpDiv
		case "%":
			op = OpMod
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary(inCall)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary(inCall bool) (Expr, error) {
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.typ == tokenOperator {
		switch tok.literal {
		case "-":
			p.advance()
			operand, err := p.parseUnary(inCall)
			if err != nil {
				return nil, err
			}
			return &Unary{Op: OpNeg, Operand: operand}, nil
		case "~":
			p.advance()
			operand, err := p.parseUnary(inCall)
			if err != nil {
				return nil, err
			}
			return &Unary{Op: OpBitNot, Operand: operand}, nil
		case "*":
			if inCall {
				p.advance()
				return &Raw{SQL: "*"}, nil
			}
		}
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	switch tok.typ {
	case tokenNumber:
		p.advance()
		if strings.Contains(tok.literal, ".") {
			f, err := strconv.ParseFloat(tok.literal, 64)
			if err != nil {
				return nil, fmt.Errorf("unexpected token %s: %w", tok, err)
			}
			return Value(f), nil
		}
		n, err := strconv.ParseInt(tok.literal, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unexpected token %s: %w", tok, err)
		}
		return Value(n), nil
	case tokenString:
		p.advance()
		return Value(tok.literal), nil
	case tokenPlaceholder:
		p.advance()
		arg, err := p.nextArg()
		if err != nil {
			return nil, err
		}
		return argExpr(arg)
	case tokenKeyword:
		switch tok.literal {
		case "NULL":
			p.advance()
			return Value(nil), nil
		case "TRUE":
			p.advance()
			return Value(true), nil
		case "FALSE":
			p.advance()
			return Value(false), nil
		case "DISTINCT":
			p.advance()
			operand, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			return &Func{Name: "DISTINCT", Args: []Expr{operand}}, nil
		}
		return nil, fmt.Errorf("unexpected token %s", tok)
	case tokenLParen:
		p.advance()
		node, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen); err != nil {
			return nil, err
		}
		return node, nil
	case tokenIdent:
		p.advance()
		next, err := p.peek()
		if err != nil {
			return nil, err
		}
		switch next.typ {
		case tokenLParen:
			return p.parseCall(tok.literal)
		case tokenDot:
			p.advance()
			name, err := p.expect(tokenIdent)
			if err != nil {
				return nil, err
			}
			return &Column{Qualifier: tok.literal, Name: name.literal}, nil
		}
		return &Column{Name: tok.literal}, nil
	}
	return nil, fmt.Errorf("unexpected token %s", tok)
}

func (p *parser) parseCall(name string) (Expr, error) {
	if _, err := p.expect(tokenLParen); err != nil {
		return nil, err
	}
	call := &Func{Name: strings.ToUpper(name)}
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.typ == tokenRParen {
		p.advance()
		return call, nil
	}
	for {
		arg, err := p.parseAdditive(true)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.typ == tokenComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(tokenRParen); err != nil {
		return nil, err
	}
	return call, nil
}

// argExpr converts a bound placeholder argument into an expression node.
// Slices become IN-lists, expressions pass through, everything else is a
// literal bound as a query parameter.
func argExpr(arg any) (Expr, error) {
	switch v := arg.(type) {
	case Expr:
		return v, nil
	case nil:
		return Value(nil), nil
	}
	if rv := reflect.ValueOf(arg); rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		return toList(arg)
	}
	return Value(arg), nil
}

// toList converts a slice argument into a value list. Empty slices
// produce (NULL), which is a guaranteed empty match under IN.
func toList(arg any) (*List, error) {
	rv := reflect.ValueOf(arg)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return &List{Values: []Expr{Value(arg)}}, nil
	}
	if rv.Len() == 0 {
		return &List{Values: []Expr{Value(nil)}}, nil
	}
	values := make([]Expr, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		values[i] = Value(rv.Index(i).Interface())
	}
	return &List{Values: values}, nil
}
