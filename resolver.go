package grimoire

import (
	"fmt"

	"github.com/grimoiredb/grimoire/expr"
	"github.com/grimoiredb/grimoire/stmt"
)

// resolver rewrites attribute references into column references,
// materializes association joins, and applies value codecs to
// comparison operands.
type resolver struct {
	model      *Model
	mainAlias  string
	aliases    map[string]struct{}
	joinModels map[string]*Model
	joinSelect map[string][]string
	joins      []stmt.Join
}

func newResolver(m *Model, mainAlias string) *resolver {
	return &resolver{
		model:      m,
		mainAlias:  mainAlias,
		aliases:    make(map[string]struct{}),
		joinModels: make(map[string]*Model),
		joinSelect: make(map[string][]string),
	}
}

// collectAliases records select-list aliases so GROUP BY and ORDER BY
// can reference them by name.
func (r *resolver) collectAliases(columns []expr.Expr) {
	for _, col := range columns {
		if alias, ok := col.(*expr.Alias); ok {
			r.aliases[alias.Name] = struct{}{}
		}
	}
}

// addJoin materializes one association or arbitrary join into the
// statement's join list.
func (r *resolver) addJoin(j *join) error {
	if j.assoc != nil {
		return r.addAssociationJoin(j)
	}
	// arbitrary join: the ON condition was parsed with explicit
	// qualifiers; resolve attribute names per alias
	alias := j.name
	r.joinModels[alias] = j.target
	on, err := r.resolve(j.on, false)
	if err != nil {
		return err
	}
	r.joins = append(r.joins, stmt.Join{Kind: stmt.LeftJoin, Table: j.target.table, Alias: alias, On: on})
	return nil
}

func (r *resolver) addAssociationJoin(j *join) error {
	assoc := j.assoc
	if assoc.Through != "" {
		return r.addThroughJoin(j)
	}
	target := assoc.Target
	alias := j.name
	if _, taken := r.joinModels[alias]; taken {
		return &QueryError{Model: r.model.name, Err: fmt.Errorf("invalid join target %q", alias)}
	}
	r.joinModels[alias] = target

	var on expr.Expr
	switch assoc.Kind {
	case BelongsTo:
		fkColumn, ok := r.model.columnName(assoc.ForeignKey)
		if !ok {
			return &QueryError{Model: r.model.name, Err: fmt.Errorf("unable to find association %q: no foreign key %q", assoc.Name, assoc.ForeignKey)}
		}
		on = &expr.Binary{
			Op:    expr.OpEq,
			Left:  &expr.Column{Qualifier: alias, Name: target.PrimaryColumn()},
			Right: &expr.Column{Qualifier: r.mainAlias, Name: fkColumn},
		}
	default:
		fkColumn, ok := target.columnName(assoc.ForeignKey)
		if !ok {
			return &QueryError{Model: r.model.name, Err: fmt.Errorf("unable to find association %q: no foreign key %q", assoc.Name, assoc.ForeignKey)}
		}
		on = &expr.Binary{
			Op:    expr.OpEq,
			Left:  &expr.Column{Qualifier: alias, Name: fkColumn},
			Right: &expr.Column{Qualifier: r.mainAlias, Name: r.model.PrimaryColumn()},
		}
	}
	on, err := r.conjoinStatic(on, alias, target, assoc.Where, j.opts)
	if err != nil {
		return err
	}
	if j.opts != nil && len(j.opts.Select) > 0 {
		r.joinSelect[alias] = j.opts.Select
	}
	r.joins = append(r.joins, stmt.Join{Kind: stmt.LeftJoin, Table: target.table, Alias: alias, On: on})
	return nil
}

// addThroughJoin joins the intermediate model first, then hangs the
// target off its belongsTo leg.
func (r *resolver) addThroughJoin(j *join) error {
	assoc := j.assoc
	throughAssoc := r.model.Association(assoc.Through)
	if throughAssoc == nil {
		return &QueryError{Model: r.model.name, Err: fmt.Errorf("unable to find association %q", assoc.Through)}
	}
	joinModel := throughAssoc.Target
	throughAlias := assoc.Through
	if _, present := r.joinModels[throughAlias]; !present {
		if err := r.addAssociationJoin(&join{name: throughAlias, assoc: throughAssoc}); err != nil {
			return err
		}
	}
	// the join model must carry a belongsTo leg pointing at the target
	var leg *Association
	for _, a := range joinModel.associations {
		if a.Kind == BelongsTo && a.Target == assoc.Target {
			leg = a
			break
		}
	}
	if leg == nil {
		return &QueryError{Model: r.model.name, Err: fmt.Errorf("unable to find association %q: %q has no belongsTo leg to %q", assoc.Name, joinModel.name, assoc.Target.name)}
	}
	fkColumn, ok := joinModel.columnName(leg.ForeignKey)
	if !ok {
		return &QueryError{Model: r.model.name, Err: fmt.Errorf("unable to find association %q: no foreign key %q", assoc.Name, leg.ForeignKey)}
	}
	alias := j.name
	if _, taken := r.joinModels[alias]; taken {
		return &QueryError{Model: r.model.name, Err: fmt.Errorf("invalid join target %q", alias)}
	}
	target := assoc.Target
	r.joinModels[alias] = target
	on := expr.Expr(&expr.Binary{
		Op:    expr.OpEq,
		Left:  &expr.Column{Qualifier: alias, Name: target.PrimaryColumn()},
		Right: &expr.Column{Qualifier: throughAlias, Name: fkColumn},
	})
	on, err := r.conjoinStatic(on, alias, target, assoc.Where, j.opts)
	if err != nil {
		return err
	}
	r.joins = append(r.joins, stmt.Join{Kind: stmt.LeftJoin, Table: target.table, Alias: alias, On: on})
	return nil
}

// conjoinStatic conjoins the association's static predicate and the
// per-branch With options onto the ON condition.
func (r *resolver) conjoinStatic(on expr.Expr, alias string, target *Model, static Values, opts *WithOptions) (expr.Expr, error) {
	conjoin := func(cond Values) error {
		if len(cond) == 0 {
			return nil
		}
		node, err := expr.ParseObject(cond)
		if err != nil {
			return &QueryError{Model: r.model.name, Err: err}
		}
		node, err = r.resolveAgainst(node, alias, target)
		if err != nil {
			return err
		}
		on = expr.And(on, node)
		return nil
	}
	if err := conjoin(static); err != nil {
		return nil, err
	}
	if opts != nil {
		if err := conjoin(opts.Where); err != nil {
			return nil, err
		}
	}
	return on, nil
}

// resolveAgainst rewrites unqualified attribute references against a
// joined model.
func (r *resolver) resolveAgainst(e expr.Expr, alias string, target *Model) (expr.Expr, error) {
	var rerr error
	out := expr.Rewrite(e, func(n expr.Expr) expr.Expr {
		col, ok := n.(*expr.Column)
		if !ok || col.Qualifier != "" {
			return n
		}
		column, ok := target.columnName(col.Name)
		if !ok {
			if rerr == nil {
				rerr = &QueryError{Model: target.name, Err: fmt.Errorf("no attribute %q", col.Name)}
			}
			return n
		}
		return &expr.Column{Qualifier: alias, Name: column}
	})
	return out, rerr
}

// resolveWhere conjoins and resolves a predicate list.
func (r *resolver) resolveWhere(wheres []expr.Expr) (expr.Expr, error) {
	if len(wheres) == 0 {
		return nil, nil
	}
	combined := expr.And(wheres...)
	return r.resolve(combined, false)
}

// resolveAll resolves a projection or grouping list.
func (r *resolver) resolveAll(exprs []expr.Expr) ([]expr.Expr, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make([]expr.Expr, len(exprs))
	for i, e := range exprs {
		resolved, err := r.resolve(e, false)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

// resolveOrders resolves ORDER BY entries.
func (r *resolver) resolveOrders(orders []expr.OrderItem) ([]expr.OrderItem, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	out := make([]expr.OrderItem, len(orders))
	for i, o := range orders {
		resolved, err := r.resolve(o.Expr, false)
		if err != nil {
			return nil, err
		}
		out[i] = expr.OrderItem{Expr: resolved, Desc: o.Desc}
	}
	return out, nil
}

// resolve rewrites one expression tree. Inside function calls unknown
// names pass through, since SQL functions may reference any name.
func (r *resolver) resolve(e expr.Expr, inFunc bool) (expr.Expr, error) {
	switch n := e.(type) {
	case nil:
		return nil, nil
	case *expr.Column:
		return r.resolveColumn(n, inFunc)
	case *expr.Binary:
		left, err := r.resolve(n.Left, inFunc)
		if err != nil {
			return nil, err
		}
		right, err := r.resolve(n.Right, inFunc)
		if err != nil {
			return nil, err
		}
		if right, err = r.uncastOperand(n.Left, right); err != nil {
			return nil, err
		}
		return &expr.Binary{Op: n.Op, Left: left, Right: right}, nil
	case *expr.Unary:
		operand, err := r.resolve(n.Operand, inFunc)
		if err != nil {
			return nil, err
		}
		return &expr.Unary{Op: n.Op, Operand: operand}, nil
	case *expr.Logical:
		operands := make([]expr.Expr, len(n.Operands))
		for i, op := range n.Operands {
			resolved, err := r.resolve(op, inFunc)
			if err != nil {
				return nil, err
			}
			operands[i] = resolved
		}
		return &expr.Logical{Op: n.Op, Operands: operands}, nil
	case *expr.Func:
		args := make([]expr.Expr, len(n.Args))
		for i, a := range n.Args {
			resolved, err := r.resolve(a, true)
			if err != nil {
				return nil, err
			}
			args[i] = resolved
		}
		return &expr.Func{Name: n.Name, Args: args}, nil
	case *expr.List:
		values := make([]expr.Expr, len(n.Values))
		for i, v := range n.Values {
			resolved, err := r.resolve(v, inFunc)
			if err != nil {
				return nil, err
			}
			values[i] = resolved
		}
		return &expr.List{Values: values}, nil
	case *expr.Between:
		target, err := r.resolve(n.Expr, inFunc)
		if err != nil {
			return nil, err
		}
		lo, err := r.resolve(n.Lo, inFunc)
		if err != nil {
			return nil, err
		}
		hi, err := r.resolve(n.Hi, inFunc)
		if err != nil {
			return nil, err
		}
		if lo, err = r.uncastOperand(n.Expr, lo); err != nil {
			return nil, err
		}
		if hi, err = r.uncastOperand(n.Expr, hi); err != nil {
			return nil, err
		}
		return &expr.Between{Not: n.Not, Expr: target, Lo: lo, Hi: hi}, nil
	case *expr.In:
		target, err := r.resolve(n.Expr, inFunc)
		if err != nil {
			return nil, err
		}
		out := &expr.In{Not: n.Not, Expr: target}
		if n.List != nil {
			resolved, err := r.resolve(n.List, inFunc)
			if err != nil {
				return nil, err
			}
			list := resolved.(*expr.List)
			for i, v := range list.Values {
				if uncast, err := r.uncastOperand(n.Expr, v); err == nil {
					list.Values[i] = uncast
				}
			}
			out.List = list
		}
		if n.Query != nil {
			switch sub := n.Query.(type) {
			case *stmt.Select:
				out.Query = sub
			case *Spell:
				inner, err := sub.finalizeSelect()
				if err != nil {
					return nil, err
				}
				out.Query = inner
			default:
				return nil, &QueryError{Model: r.model.name, Err: fmt.Errorf("unexpected subquery %T", n.Query)}
			}
		}
		return out, nil
	case *expr.Alias:
		inner, err := r.resolve(n.Expr, inFunc)
		if err != nil {
			return nil, err
		}
		return &expr.Alias{Expr: inner, Name: n.Name}, nil
	default:
		return e, nil
	}
}

func (r *resolver) resolveColumn(col *expr.Column, inFunc bool) (expr.Expr, error) {
	if col.Name == "*" {
		return col, nil
	}
	if col.Qualifier == "" {
		if column, ok := r.model.columnName(col.Name); ok {
			return &expr.Column{Qualifier: r.mainAlias, Name: column}, nil
		}
		if _, isAlias := r.aliases[col.Name]; isAlias || inFunc {
			return col, nil
		}
		return nil, &QueryError{Model: r.model.name, Err: fmt.Errorf("no attribute %q", col.Name)}
	}
	if col.Qualifier == r.mainAlias || col.Qualifier == r.model.table {
		if column, ok := r.model.columnName(col.Name); ok {
			return &expr.Column{Qualifier: r.mainAlias, Name: column}, nil
		}
		return nil, &QueryError{Model: r.model.name, Err: fmt.Errorf("no attribute %q", col.Name)}
	}
	if target, ok := r.joinModels[col.Qualifier]; ok {
		if column, ok := target.columnName(col.Name); ok {
			return &expr.Column{Qualifier: col.Qualifier, Name: column}, nil
		}
		return nil, &QueryError{Model: target.name, Err: fmt.Errorf("no attribute %q", col.Name)}
	}
	// unknown qualifier: leave untouched so raw SQL names still work
	return col, nil
}

// uncastOperand applies the attribute codec to a literal operand when
// the other side names a typed attribute.
func (r *resolver) uncastOperand(left expr.Expr, operand expr.Expr) (expr.Expr, error) {
	lit, ok := operand.(*expr.Literal)
	if !ok || lit.Value == nil {
		return operand, nil
	}
	col, ok := left.(*expr.Column)
	if !ok {
		return operand, nil
	}
	model := r.model
	if col.Qualifier != "" && col.Qualifier != r.mainAlias {
		if target, ok := r.joinModels[col.Qualifier]; ok {
			model = target
		}
	}
	desc := model.Attribute(col.Name)
	if desc == nil {
		if byCol, ok := model.attributeByColumn(col.Name); ok {
			desc = byCol
		}
	}
	if desc == nil {
		return operand, nil
	}
	uncast, err := uncastValue(desc, lit.Value)
	if err != nil {
		return nil, &ValidationError{Model: model.name, Attribute: desc.Name, Err: err}
	}
	return expr.Value(uncast), nil
}

// touchesJoinedAlias reports whether the WHERE or ORDER references a
// joined alias, which forbids the derived-table pagination rewrite.
func (r *resolver) touchesJoinedAlias(where expr.Expr, orders []expr.OrderItem) bool {
	touched := false
	check := func(e expr.Expr) bool {
		if col, ok := e.(*expr.Column); ok {
			if col.Qualifier != "" && col.Qualifier != r.mainAlias {
				if _, joined := r.joinModels[col.Qualifier]; joined {
					touched = true
					return false
				}
			}
		}
		return true
	}
	expr.Walk(where, check)
	for _, o := range orders {
		if touched {
			break
		}
		expr.Walk(o.Expr, check)
	}
	return touched
}

// joinProjection builds the explicit per-alias projection joined
// SELECTs hydrate from. Every column is aliased "qualifier:column" so
// the row post-processor can split parents from children.
func (r *resolver) joinProjection() []expr.Expr {
	var out []expr.Expr
	appendModel := func(alias string, m *Model) {
		selected := r.joinSelect[alias]
		for _, desc := range m.Attributes() {
			if desc.Virtual {
				continue
			}
			if len(selected) > 0 && !containsString(selected, desc.Name) && desc.Name != m.primaryKey {
				continue
			}
			out = append(out, &expr.Alias{
				Expr: &expr.Column{Qualifier: alias, Name: desc.ColumnName},
				Name: alias + ":" + desc.ColumnName,
			})
		}
	}
	appendModel(r.mainAlias, r.model)
	for _, j := range r.joins {
		if m, ok := r.joinModels[j.Alias]; ok {
			appendModel(j.Alias, m)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
