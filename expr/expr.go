// Package expr defines the expression tree produced by the condition
// mini-language parser and the object-condition translator, and consumed
// by the dialect formatters.
//
// Nodes form a closed set of tagged variants. They are immutable after
// construction; combinators return new nodes.
package expr

import (
	"fmt"
	"strings"
)

// Op enumerates the recognized unary, binary and logical operators.
type Op uint8

// Operator tags. The zero value is invalid.
const (
	OpInvalid Op = iota

	// comparison
	OpEq
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpLike
	OpNotLike
	OpIs
	OpIsNot

	// arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod

	// unary
	OpNeg
	OpBitNot
	OpNot

	// logical
	OpAnd
	OpOr
)

var opNames = map[Op]string{
	OpEq:      "=",
	OpNe:      "!=",
	OpGt:      ">",
	OpGte:     ">=",
	OpLt:      "<",
	OpLte:     "<=",
	OpLike:    "LIKE",
	OpNotLike: "NOT LIKE",
	OpIs:      "IS",
	OpIsNot:   "IS NOT",
	OpAdd:     "+",
	OpSub:     "-",
	OpMul:     "*",
	OpDiv:     "/",
	OpMod:     "%",
	OpNeg:     "-",
	OpBitNot:  "~",
	OpNot:     "NOT",
	OpAnd:     "AND",
	OpOr:      "OR",
}

// String returns the SQL spelling of the operator.
func (op Op) String() string { return opNames[op] }

// Expr is the interface implemented by all expression nodes.
type Expr interface {
	node()
	// String renders a stable, dialect-neutral debug form of the node.
	String() string
}

// Subquery is implemented by statement values that can appear inside an
// expression, e.g. on the right-hand side of IN. The statement IR
// satisfies it; so does a Spell routed through its finalized statement.
type Subquery interface {
	SubqueryTag()
}

type (
	// Literal is a constant value bound as a query parameter.
	Literal struct {
		Value any
	}

	// Column references an attribute or column, optionally qualified.
	Column struct {
		Qualifier string
		Name      string
	}

	// Binary applies a comparison or arithmetic operator to two operands.
	Binary struct {
		Op    Op
		Left  Expr
		Right Expr
	}

	// Unary applies -, ~ or NOT to a single operand.
	Unary struct {
		Op      Op
		Operand Expr
	}

	// Logical combines two or more predicates with AND or OR.
	Logical struct {
		Op       Op
		Operands []Expr
	}

	// Func is a function call of arbitrary arity.
	Func struct {
		Name string
		Args []Expr
	}

	// List is a parenthesized value list, as in IN (1, 2, 3).
	List struct {
		Values []Expr
	}

	// Between is expr [NOT] BETWEEN lo AND hi.
	Between struct {
		Not  bool
		Expr Expr
		Lo   Expr
		Hi   Expr
	}

	// In is expr [NOT] IN (list) or expr [NOT] IN (subquery).
	In struct {
		Not   bool
		Expr  Expr
		List  *List
		Query Subquery
	}

	// Raw is an escape hatch spliced verbatim into the generated SQL.
	Raw struct {
		SQL string
	}

	// Alias renames a select-list expression.
	Alias struct {
		Expr Expr
		Name string
	}
)

func (*Literal) node() {}
func (*Column) node()  {}
func (*Binary) node()  {}
func (*Unary) node()   {}
func (*Logical) node() {}
func (*Func) node()    {}
func (*List) node()    {}
func (*Between) node() {}
func (*In) node()      {}
func (*Raw) node()     {}
func (*Alias) node()   {}

// String implements Expr.
func (e *Literal) String() string {
	switch v := e.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprint(v)
	}
}

// String implements Expr.
func (e *Column) String() string {
	if e.Qualifier != "" {
		return e.Qualifier + "." + e.Name
	}
	return e.Name
}

// String implements Expr.
func (e *Binary) String() string {
	return fmt.Sprintf("%s %s %s", e.Left, e.Op, e.Right)
}

// String implements Expr.
func (e *Unary) String() string {
	if e.Op == OpNot {
		return fmt.Sprintf("NOT (%s)", e.Operand)
	}
	return fmt.Sprintf("%s%s", e.Op, e.Operand)
}

// String implements Expr.
func (e *Logical) String() string {
	parts := make([]string, len(e.Operands))
	for i, op := range e.Operands {
		parts[i] = op.String()
	}
	return "(" + strings.Join(parts, " "+e.Op.String()+" ") + ")"
}

// String implements Expr.
func (e *Func) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return e.Name + "(" + strings.Join(args, ", ") + ")"
}

// String implements Expr.
func (e *List) String() string {
	parts := make([]string, len(e.Values))
	for i, v := range e.Values {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// String implements Expr.
func (e *Between) String() string {
	op := "BETWEEN"
	if e.Not {
		op = "NOT BETWEEN"
	}
	return fmt.Sprintf("%s %s %s AND %s", e.Expr, op, e.Lo, e.Hi)
}

// String implements Expr.
func (e *In) String() string {
	op := "IN"
	if e.Not {
		op = "NOT IN"
	}
	if e.Query != nil {
		return fmt.Sprintf("%s %s (...)", e.Expr, op)
	}
	return fmt.Sprintf("%s %s %s", e.Expr, op, e.List)
}

// String implements Expr.
func (e *Raw) String() string { return e.SQL }

// String implements Expr.
func (e *Alias) String() string { return e.Expr.String() + " AS " + e.Name }

// Value wraps v as a Literal node.
func Value(v any) *Literal { return &Literal{Value: v} }

// Ident returns an unqualified column reference.
func Ident(name string) *Column { return &Column{Name: name} }

// And conjoins the given predicates, flattening nested conjunctions.
// And() of a single operand returns the operand itself.
func And(operands ...Expr) Expr {
	return nary(OpAnd, operands)
}

// Or disjoins the given predicates, flattening nested disjunctions.
func Or(operands ...Expr) Expr {
	return nary(OpOr, operands)
}

func nary(op Op, operands []Expr) Expr {
	flat := make([]Expr, 0, len(operands))
	for _, o := range operands {
		if o == nil {
			continue
		}
		if l, ok := o.(*Logical); ok && l.Op == op {
			flat = append(flat, l.Operands...)
			continue
		}
		flat = append(flat, o)
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}
	return &Logical{Op: op, Operands: flat}
}

// Not negates the given predicate.
func Not(operand Expr) Expr {
	return &Unary{Op: OpNot, Operand: operand}
}

// Walk traverses the expression tree depth-first, calling fn for every
// node. Traversal stops when fn returns false.
func Walk(e Expr, fn func(Expr) bool) bool {
	if e == nil {
		return true
	}
	if !fn(e) {
		return false
	}
	switch n := e.(type) {
	case *Binary:
		return Walk(n.Left, fn) && Walk(n.Right, fn)
	case *Unary:
		return Walk(n.Operand, fn)
	case *Logical:
		for _, op := range n.Operands {
			if !Walk(op, fn) {
				return false
			}
		}
	case *Func:
		for _, a := range n.Args {
			if !Walk(a, fn) {
				return false
			}
		}
	case *List:
		for _, v := range n.Values {
			if !Walk(v, fn) {
				return false
			}
		}
	case *Between:
		return Walk(n.Expr, fn) && Walk(n.Lo, fn) && Walk(n.Hi, fn)
	case *In:
		if !Walk(n.Expr, fn) {
			return false
		}
		if n.List != nil {
			return Walk(n.List, fn)
		}
	case *Alias:
		return Walk(n.Expr, fn)
	}
	return true
}

// Rewrite returns a copy of the tree with every node replaced by fn's
// result. fn receives nodes bottom-up; returning the argument unchanged
// keeps the node. Used by the Spell finalizer to map attribute names to
// column names.
func Rewrite(e Expr, fn func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case *Binary:
		e = &Binary{Op: n.Op, Left: Rewrite(n.Left, fn), Right: Rewrite(n.Right, fn)}
	case *Unary:
		e = &Unary{Op: n.Op, Operand: Rewrite(n.Operand, fn)}
	case *Logical:
		operands := make([]Expr, len(n.Operands))
		for i, op := range n.Operands {
			operands[i] = Rewrite(op, fn)
		}
		e = &Logical{Op: n.Op, Operands: operands}
	case *Func:
		args := make([]Expr, len(n.Args))
		for i, a := range n.Args {
			args[i] = Rewrite(a, fn)
		}
		e = &Func{Name: n.Name, Args: args}
	case *List:
		values := make([]Expr, len(n.Values))
		for i, v := range n.Values {
			values[i] = Rewrite(v, fn)
		}
		e = &List{Values: values}
	case *Between:
		e = &Between{Not: n.Not, Expr: Rewrite(n.Expr, fn), Lo: Rewrite(n.Lo, fn), Hi: Rewrite(n.Hi, fn)}
	case *In:
		in := &In{Not: n.Not, Expr: Rewrite(n.Expr, fn), Query: n.Query}
		if n.List != nil {
			in.List = Rewrite(n.List, fn).(*List)
		}
		e = in
	case *Alias:
		e = &Alias{Expr: Rewrite(n.Expr, fn), Name: n.Name}
	}
	return fn(e)
}
