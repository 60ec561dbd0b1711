package grimoire

import (
	"fmt"
	"strings"
	"time"

	"github.com/grimoiredb/grimoire/expr"
)

type command uint8

const (
	commandSelect command = iota
	commandInsert
	commandUpdate
	commandDelete
	commandUpsert
)

func (c command) String() string {
	switch c {
	case commandSelect:
		return "select"
	case commandInsert:
		return "insert"
	case commandUpdate:
		return "update"
	case commandDelete:
		return "delete"
	case commandUpsert:
		return "upsert"
	}
	return "unknown"
}

// WithOptions tunes one eagerly loaded association branch.
type WithOptions struct {
	Select []string
	Where  Values
	Order  string
}

type join struct {
	name   string
	assoc  *Association
	target *Model
	on     expr.Expr
	opts   *WithOptions
}

// Spell is the composable query value. Chainable methods mutate and
// return the same Spell until it executes; an executed Spell is frozen
// and derivations go through Clone.
type Spell struct {
	model   *Model
	command command

	columns []expr.Expr
	wheres  []expr.Expr
	havings []expr.Expr
	groups  []expr.Expr
	orders  []expr.OrderItem
	joins   []*join
	limit   int64
	offset  int64

	returning []string

	silent          bool
	hooksEnabled    bool
	individualHooks bool
	unscopedFlag    bool
	unparanoidFlag  bool
	forceDelete     bool
	cacheTTL        time.Duration

	err    error
	frozen bool
}

func newSpell(m *Model, c command) *Spell {
	return &Spell{
		model:        m,
		command:      c,
		limit:        -1,
		offset:       -1,
		hooksEnabled: true,
	}
}

// Model returns the target entity class.
func (s *Spell) Model() *Model { return s.model }

// SubqueryTag marks a Spell as usable inside expressions, e.g. on the
// right-hand side of IN; it compiles into a correlated subquery.
func (*Spell) SubqueryTag() {}

// Err returns the first error recorded by the chain, surfaced again at
// execution.
func (s *Spell) Err() error { return s.err }

func (s *Spell) fail(err error) *Spell {
	if s.err == nil && err != nil {
		s.err = &QueryError{Model: s.model.name, Err: err}
	}
	return s
}

func (s *Spell) mutable() bool {
	if s.frozen {
		s.fail(fmt.Errorf("spell already executed; use Clone"))
		return false
	}
	return true
}

// Clone returns an unfrozen deep copy for derivations.
func (s *Spell) Clone() *Spell {
	dup := *s
	dup.frozen = false
	dup.columns = append([]expr.Expr(nil), s.columns...)
	dup.wheres = append([]expr.Expr(nil), s.wheres...)
	dup.havings = append([]expr.Expr(nil), s.havings...)
	dup.groups = append([]expr.Expr(nil), s.groups...)
	dup.orders = append([]expr.OrderItem(nil), s.orders...)
	dup.joins = append([]*join(nil), s.joins...)
	dup.returning = append([]string(nil), s.returning...)
	return &dup
}

// parseCond normalizes the accepted condition forms into an expression
// node.
func (s *Spell) parseCond(cond any, args ...any) (expr.Expr, error) {
	switch c := cond.(type) {
	case string:
		return expr.Parse(c, args...)
	case Values:
		return expr.ParseObject(c)
	case map[string]any:
		return expr.ParseObject(c)
	case expr.Expr:
		return c, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected condition %T", cond)
}

// Where conjoins a condition to the WHERE clause.
func (s *Spell) Where(cond any, args ...any) *Spell {
	if !s.mutable() {
		return s
	}
	node, err := s.parseCond(cond, args...)
	if err != nil {
		return s.fail(err)
	}
	if node != nil {
		s.wheres = append(s.wheres, node)
	}
	return s
}

// OrWhere disjoins a condition with the preceding whole WHERE clause,
// which is parenthesized.
func (s *Spell) OrWhere(cond any, args ...any) *Spell {
	if !s.mutable() {
		return s
	}
	node, err := s.parseCond(cond, args...)
	if err != nil {
		return s.fail(err)
	}
	if node == nil {
		return s
	}
	if len(s.wheres) == 0 {
		s.wheres = []expr.Expr{node}
		return s
	}
	combined := expr.Or(expr.And(s.wheres...), node)
	s.wheres = []expr.Expr{combined}
	return s
}

// Having conjoins a condition to the HAVING clause.
func (s *Spell) Having(cond any, args ...any) *Spell {
	if !s.mutable() {
		return s
	}
	node, err := s.parseCond(cond, args...)
	if err != nil {
		return s.fail(err)
	}
	if node != nil {
		s.havings = append(s.havings, node)
	}
	return s
}

// OrHaving disjoins a condition with the preceding whole HAVING clause.
func (s *Spell) OrHaving(cond any, args ...any) *Spell {
	if !s.mutable() {
		return s
	}
	node, err := s.parseCond(cond, args...)
	if err != nil {
		return s.fail(err)
	}
	if node == nil {
		return s
	}
	if len(s.havings) == 0 {
		s.havings = []expr.Expr{node}
		return s
	}
	s.havings = []expr.Expr{expr.Or(expr.And(s.havings...), node)}
	return s
}

// Select sets the projection. Accepted forms: attribute names
// (possibly comma-separated or with "fn(col) as alias"), string
// slices, a filter func over attribute names, expression nodes.
func (s *Spell) Select(names ...any) *Spell {
	if !s.mutable() {
		return s
	}
	for _, name := range names {
		switch n := name.(type) {
		case string:
			parsed, err := expr.ParseSelect(n)
			if err != nil {
				return s.fail(err)
			}
			s.columns = append(s.columns, parsed...)
		case []string:
			for _, part := range n {
				parsed, err := expr.ParseSelect(part)
				if err != nil {
					return s.fail(err)
				}
				s.columns = append(s.columns, parsed...)
			}
		case func(string) bool:
			for _, attr := range s.model.attrOrder {
				if n(attr) {
					s.columns = append(s.columns, expr.Ident(attr))
				}
			}
		case expr.Expr:
			s.columns = append(s.columns, n)
		default:
			return s.fail(fmt.Errorf("unexpected select %T", name))
		}
	}
	return s
}

// Group appends GROUP BY expressions; grouped expressions join the
// projection so the grouping keys come back with the aggregates.
func (s *Spell) Group(exprs ...any) *Spell {
	if !s.mutable() {
		return s
	}
	for _, g := range exprs {
		switch n := g.(type) {
		case string:
			parsed, err := expr.ParseSelect(n)
			if err != nil {
				return s.fail(err)
			}
			for _, item := range parsed {
				s.columns = append(s.columns, item)
				if alias, ok := item.(*expr.Alias); ok {
					s.groups = append(s.groups, expr.Ident(alias.Name))
				} else {
					s.groups = append(s.groups, item)
				}
			}
		case expr.Expr:
			s.columns = append(s.columns, n)
			s.groups = append(s.groups, n)
		default:
			return s.fail(fmt.Errorf("unexpected group %T", g))
		}
	}
	return s
}

// Order appends ORDER BY entries. Accepted forms: "col", "col desc,
// col2", map{col: "desc"}, expression nodes.
func (s *Spell) Order(ord any, dir ...string) *Spell {
	if !s.mutable() {
		return s
	}
	switch o := ord.(type) {
	case string:
		if len(dir) > 0 {
			desc := strings.EqualFold(dir[0], "desc")
			items, err := expr.ParseOrder(o)
			if err != nil {
				return s.fail(err)
			}
			for i := range items {
				items[i].Desc = desc
			}
			s.orders = append(s.orders, items...)
			return s
		}
		items, err := expr.ParseOrder(o)
		if err != nil {
			return s.fail(err)
		}
		s.orders = append(s.orders, items...)
	case map[string]string:
		for col, d := range o {
			s.orders = append(s.orders, expr.OrderItem{
				Expr: expr.Ident(col),
				Desc: strings.EqualFold(d, "desc"),
			})
		}
	case expr.Expr:
		item := expr.OrderItem{Expr: o}
		if len(dir) > 0 {
			item.Desc = strings.EqualFold(dir[0], "desc")
		}
		s.orders = append(s.orders, item)
	default:
		return s.fail(fmt.Errorf("unexpected order %T", ord))
	}
	return s
}

// Limit bounds the result window. Negative limits fail.
func (s *Spell) Limit(n int) *Spell {
	if !s.mutable() {
		return s
	}
	if n < 0 {
		return s.fail(fmt.Errorf("invalid limit %d", n))
	}
	s.limit = int64(n)
	return s
}

// Offset skips leading rows. Negative offsets fail.
func (s *Spell) Offset(n int) *Spell {
	if !s.mutable() {
		return s
	}
	if n < 0 {
		return s.fail(fmt.Errorf("invalid offset %d", n))
	}
	s.offset = int64(n)
	return s
}

// With eagerly loads the named associations. Names may be strings or a
// map of name to WithOptions for per-branch select/where/order.
func (s *Spell) With(names ...any) *Spell {
	if !s.mutable() {
		return s
	}
	for _, name := range names {
		switch n := name.(type) {
		case string:
			s.withAssociation(n, nil)
		case map[string]WithOptions:
			for assoc, opts := range n {
				o := opts
				s.withAssociation(assoc, &o)
			}
		default:
			return s.fail(fmt.Errorf("unexpected association %T", name))
		}
	}
	return s
}

func (s *Spell) withAssociation(name string, opts *WithOptions) {
	assoc := s.model.Association(name)
	if assoc == nil {
		s.fail(fmt.Errorf("unable to find association %q", name))
		return
	}
	s.joins = append(s.joins, &join{name: name, assoc: assoc, opts: opts})
}

// Join adds an arbitrary LEFT JOIN against another model. The alias is
// the target's table name; reusing an alias bound by a declared
// association fails.
func (s *Spell) Join(target *Model, on string, args ...any) *Spell {
	if !s.mutable() {
		return s
	}
	alias := target.Table()
	if s.model.Association(alias) != nil {
		return s.fail(fmt.Errorf("invalid join target %q: alias bound by association", alias))
	}
	node, err := expr.Parse(on, args...)
	if err != nil {
		return s.fail(err)
	}
	s.joins = append(s.joins, &join{name: alias, target: target, on: node})
	return s
}

// Count appends COUNT(expr) to the projection; expr defaults to *.
// Terminate with Scalar for ungrouped counts or Results for grouped
// ones.
func (s *Spell) Count(exprs ...string) *Spell {
	return s.aggregate("COUNT", "count", exprs...)
}

// Sum appends SUM(attr) to the projection.
func (s *Spell) Sum(attr string) *Spell { return s.aggregate("SUM", "sum", attr) }

// Average appends AVG(attr) to the projection.
func (s *Spell) Average(attr string) *Spell { return s.aggregate("AVG", "average", attr) }

// Minimum appends MIN(attr) to the projection.
func (s *Spell) Minimum(attr string) *Spell { return s.aggregate("MIN", "minimum", attr) }

// Maximum appends MAX(attr) to the projection.
func (s *Spell) Maximum(attr string) *Spell { return s.aggregate("MAX", "maximum", attr) }

func (s *Spell) aggregate(fn, alias string, exprs ...string) *Spell {
	if !s.mutable() {
		return s
	}
	arg := "*"
	if len(exprs) > 0 && exprs[0] != "" {
		arg = exprs[0]
	}
	var node expr.Expr
	if arg == "*" {
		node = &expr.Func{Name: fn, Args: []expr.Expr{&expr.Raw{SQL: "*"}}}
	} else {
		parsed, err := expr.ParseSelect(arg)
		if err != nil {
			return s.fail(err)
		}
		node = &expr.Func{Name: fn, Args: parsed}
	}
	s.columns = append(s.columns, &expr.Alias{Expr: node, Name: alias})
	return s
}

// Unscoped drops the default scopes, including the soft-delete filter.
func (s *Spell) Unscoped() *Spell {
	if !s.mutable() {
		return s
	}
	s.unscopedFlag = true
	return s
}

// Unparanoid drops only the soft-delete filter.
func (s *Spell) Unparanoid() *Spell {
	if !s.mutable() {
		return s
	}
	s.unparanoidFlag = true
	return s
}

// Scoped applies a named scope registered on the model.
func (s *Spell) Scoped(name string) *Spell {
	if !s.mutable() {
		return s
	}
	scope, ok := s.model.scopes[name]
	if !ok {
		return s.fail(fmt.Errorf("unable to find scope %q", name))
	}
	scope(s)
	return s
}

// Silent skips the automatic updatedAt assignment on mutations.
func (s *Spell) Silent() *Spell {
	if !s.mutable() {
		return s
	}
	s.silent = true
	return s
}

// WithoutHooks skips hook dispatch for this spell.
func (s *Spell) WithoutHooks() *Spell {
	if !s.mutable() {
		return s
	}
	s.hooksEnabled = false
	return s
}

// IndividualHooks expands bulk mutations into per-row hook dispatch.
func (s *Spell) IndividualHooks() *Spell {
	if !s.mutable() {
		return s
	}
	s.individualHooks = true
	return s
}

// Returning names the columns mutations should return where the
// dialect supports RETURNING.
func (s *Spell) Returning(attrs ...string) *Spell {
	if !s.mutable() {
		return s
	}
	s.returning = append(s.returning, attrs...)
	return s
}

// WithCache serves this SELECT from the realm's query cache when a
// fresh entry exists, caching the result for ttl otherwise.
func (s *Spell) WithCache(ttl time.Duration) *Spell {
	if !s.mutable() {
		return s
	}
	s.cacheTTL = ttl
	return s
}
