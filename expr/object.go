package expr

import (
	"fmt"
	"reflect"
	"sort"
)

// logical operator spellings accepted at any nesting level.
const (
	opAnd = "$and"
	opOr  = "$or"
	opNot = "$not"
)

var objectOps = map[string]Op{
	"$eq":  OpEq,
	"$ne":  OpNe,
	"$gt":  OpGt,
	"$gte": OpGte,
	"$lt":  OpLt,
	"$lte": OpLte,
}

// ParseObject translates an object condition into an expression tree.
// Leaves use the $op spellings ($eq $ne $gt $gte $lt $lte $in $nin
// $notIn $between $notBetween $like $notLike); $and/$or/$not combine
// predicates and may appear at the top level or nested under a column.
// Sibling keys are conjoined; they are visited in sorted order so that
// formatting a condition is deterministic.
func ParseObject(cond map[string]any) (Expr, error) {
	keys := make([]string, 0, len(cond))
	for k := range cond {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var operands []Expr
	for _, key := range keys {
		value := cond[key]
		var (
			node Expr
			err  error
		)
		switch key {
		case opAnd, opOr:
			node, err = parseLogical(key, value)
		case opNot:
			node, err = parseNot(value)
		default:
			node, err = parseColumn(Ident(key), value)
		}
		if err != nil {
			return nil, err
		}
		operands = append(operands, node)
	}
	if len(operands) == 0 {
		return nil, nil
	}
	return And(operands...), nil
}

// parseLogical handles a top-level $and/$or whose value is a list of
// sub-conditions or a single condition object.
func parseLogical(op string, value any) (Expr, error) {
	conds, err := logicalOperands(op, value)
	if err != nil {
		return nil, err
	}
	var operands []Expr
	for _, c := range conds {
		m, ok := c.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected logical operator value %v", value)
		}
		node, err := ParseObject(m)
		if err != nil {
			return nil, err
		}
		operands = append(operands, node)
	}
	if op == opOr {
		return Or(operands...), nil
	}
	return And(operands...), nil
}

func parseNot(value any) (Expr, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected logical operator value %v", value)
	}
	node, err := ParseObject(m)
	if err != nil {
		return nil, err
	}
	return Not(node), nil
}

// parseColumn handles a column key. Scalars compare with equality (nil
// maps to IS NULL), slices become IN-lists, and op-maps conjoin each
// $op predicate.
func parseColumn(col *Column, value any) (Expr, error) {
	switch v := value.(type) {
	case nil:
		return &Binary{Op: OpIs, Left: col, Right: Value(nil)}, nil
	case map[string]any:
		return parseColumnOps(col, v)
	case Expr:
		return &Binary{Op: OpEq, Left: col, Right: v}, nil
	case Subquery:
		return &In{Expr: col, Query: v}, nil
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		list, err := toList(value)
		if err != nil {
			return nil, err
		}
		return &In{Expr: col, List: list}, nil
	}
	return &Binary{Op: OpEq, Left: col, Right: Value(value)}, nil
}

func parseColumnOps(col *Column, ops map[string]any) (Expr, error) {
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var operands []Expr
	for _, op := range keys {
		value := ops[op]
		node, err := parseColumnOp(col, op, value)
		if err != nil {
			return nil, err
		}
		operands = append(operands, node)
	}
	return And(operands...), nil
}

func parseColumnOp(col *Column, op string, value any) (Expr, error) {
	if cmp, ok := objectOps[op]; ok {
		if value == nil {
			switch cmp {
			case OpEq:
				return &Binary{Op: OpIs, Left: col, Right: Value(nil)}, nil
			case OpNe:
				return &Binary{Op: OpIsNot, Left: col, Right: Value(nil)}, nil
			}
		}
		return &Binary{Op: cmp, Left: col, Right: Value(value)}, nil
	}
	switch op {
	case "$like":
		return &Binary{Op: OpLike, Left: col, Right: Value(value)}, nil
	case "$notLike":
		return &Binary{Op: OpNotLike, Left: col, Right: Value(value)}, nil
	case "$in":
		list, err := toList(value)
		if err != nil {
			return nil, err
		}
		return &In{Expr: col, List: list}, nil
	case "$nin", "$notIn":
		list, err := toList(value)
		if err != nil {
			return nil, err
		}
		return &In{Not: true, Expr: col, List: list}, nil
	case "$between":
		lo, hi, err := boundPair(value)
		if err != nil {
			return nil, err
		}
		return &Between{Expr: col, Lo: lo, Hi: hi}, nil
	case "$notBetween":
		lo, hi, err := boundPair(value)
		if err != nil {
			return nil, err
		}
		return &Between{Not: true, Expr: col, Lo: lo, Hi: hi}, nil
	case opOr, opAnd:
		conds, err := logicalOperands(op, value)
		if err != nil {
			return nil, err
		}
		var operands []Expr
		for _, c := range conds {
			node, err := parseColumn(col, c)
			if err != nil {
				return nil, err
			}
			operands = append(operands, node)
		}
		if op == opOr {
			return Or(operands...), nil
		}
		return And(operands...), nil
	case opNot:
		node, err := parseColumn(col, value)
		if err != nil {
			return nil, err
		}
		return Not(node), nil
	}
	return nil, fmt.Errorf("unexpected operator %s", op)
}

// logicalOperands normalizes the value of $and/$or into a non-empty
// slice of sub-conditions.
func logicalOperands(op string, value any) ([]any, error) {
	var conds []any
	switch v := value.(type) {
	case []any:
		conds = v
	case []map[string]any:
		for _, m := range v {
			conds = append(conds, m)
		}
	case map[string]any:
		conds = []any{v}
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("unexpected logical operator value %v for %s", value, op)
	}
	return conds, nil
}

func boundPair(value any) (Expr, Expr, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice || rv.Len() != 2 {
		return nil, nil, fmt.Errorf("unexpected operator value %v for $between", value)
	}
	return Value(rv.Index(0).Interface()), Value(rv.Index(1).Interface()), nil
}
