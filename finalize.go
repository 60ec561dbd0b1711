package grimoire

import (
	"fmt"
	"time"

	"github.com/grimoiredb/grimoire/expr"
	"github.com/grimoiredb/grimoire/field"
	"github.com/grimoiredb/grimoire/stmt"
	"github.com/grimoiredb/grimoire/types"
)

// Now is the clock used for managed timestamps. Tests may freeze it.
var Now = time.Now

// finalizeSelect compiles the spell into a SELECT statement: scopes
// apply, associations become LEFT JOINs, attribute names resolve to
// columns, and sharding keys are enforced.
func (s *Spell) finalizeSelect() (*stmt.Select, error) {
	if s.err != nil {
		return nil, s.err
	}
	work := s.Clone()
	work.applyScopes()

	sel := stmt.NewSelect(s.model.table)
	sel.Limit = work.limit
	sel.Offset = work.offset

	joined := len(work.joins) > 0
	mainAlias := ""
	if joined {
		mainAlias = s.model.table
		sel.Alias = mainAlias
	}
	r := newResolver(s.model, mainAlias)
	r.collectAliases(work.columns)
	for _, j := range work.joins {
		if err := r.addJoin(j); err != nil {
			return nil, err
		}
	}

	var err error
	if sel.Columns, err = r.resolveAll(work.columns); err != nil {
		return nil, err
	}
	if joined && len(work.columns) == 0 {
		// hydrate joined rows with explicit per-alias projections so
		// the post-processor can split parent and child columns
		sel.Columns = r.joinProjection()
	}
	where, err := r.resolveWhere(work.wheres)
	if err != nil {
		return nil, err
	}
	sel.Where = where
	if sel.Groups, err = r.resolveAll(work.groups); err != nil {
		return nil, err
	}
	having, err := r.resolveWhere(work.havings)
	if err != nil {
		return nil, err
	}
	sel.Having = having
	if sel.Orders, err = r.resolveOrders(work.orders); err != nil {
		return nil, err
	}
	sel.Joins = r.joins

	if err := s.checkShardingKey(sel.Where); err != nil {
		return nil, err
	}

	if joined && (sel.Limit >= 0 || sel.Offset > 0) && !r.touchesJoinedAlias(where, sel.Orders) {
		rewriteJoinedPagination(sel, s.model)
	}
	return sel, nil
}

// rewriteJoinedPagination hoists the paginated main-table query into a
// derived table so LIMIT counts parent rows, not joined rows.
func rewriteJoinedPagination(sel *stmt.Select, m *Model) {
	inner := stmt.NewSelect(m.table)
	inner.Where = sel.Where
	inner.Orders = sel.Orders
	inner.Limit = sel.Limit
	inner.Offset = sel.Offset
	sel.From = inner
	sel.Where = nil
	sel.Limit = -1
	sel.Offset = -1
}

// applyScopes conjoins the default scope and the soft-delete filter
// unless the chain dropped them.
func (s *Spell) applyScopes() {
	if s.unscopedFlag {
		return
	}
	if s.model.defaultScope != nil {
		s.model.defaultScope(s)
	}
	if s.unparanoidFlag || !s.model.Paranoid() {
		return
	}
	if s.command == commandDelete && s.forceDelete {
		return
	}
	deletedAt := s.model.deletedAt
	s.wheres = append(s.wheres, &expr.Binary{
		Op:    expr.OpIs,
		Left:  expr.Ident(deletedAt),
		Right: expr.Value(nil),
	})
}

// finalizeUpdate compiles an UPDATE over the given assignments.
func (s *Spell) finalizeUpdate(values map[string]any) (*stmt.Update, error) {
	if s.err != nil {
		return nil, s.err
	}
	work := s.Clone()
	work.command = commandUpdate
	work.applyScopes()

	upd := stmt.NewUpdate(s.model.table)
	upd.PrimaryColumn = s.model.PrimaryColumn()
	upd.Limit = work.limit

	r := newResolver(s.model, "")
	sets, err := s.buildAssignments(values)
	if err != nil {
		return nil, err
	}
	upd.Sets = sets
	where, err := r.resolveWhere(work.wheres)
	if err != nil {
		return nil, err
	}
	upd.Where = where
	if upd.Orders, err = r.resolveOrders(work.orders); err != nil {
		return nil, err
	}
	for _, attr := range work.returning {
		column, ok := s.model.columnName(attr)
		if !ok {
			return nil, &QueryError{Model: s.model.name, Err: fmt.Errorf("no attribute %q", attr)}
		}
		upd.Returning = append(upd.Returning, column)
	}

	if err := s.checkShardingKey(upd.Where); err != nil {
		return nil, err
	}
	if err := s.checkShardingAssignments(values); err != nil {
		return nil, err
	}
	return upd, nil
}

// buildAssignments resolves attribute-keyed values into column
// assignments in declaration order, applying codecs and the managed
// updatedAt timestamp.
func (s *Spell) buildAssignments(values map[string]any) ([]stmt.Assignment, error) {
	m := s.model
	merged := make(map[string]any, len(values)+1)
	for attr, v := range values {
		desc := m.Attribute(attr)
		if desc == nil {
			return nil, &QueryError{Model: m.name, Err: fmt.Errorf("no attribute %q", attr)}
		}
		if desc.Virtual {
			continue
		}
		merged[attr] = v
	}
	if !s.silent && m.HasAttribute(m.updatedAt) {
		if _, supplied := merged[m.updatedAt]; !supplied {
			merged[m.updatedAt] = Now()
		}
	}
	var sets []stmt.Assignment
	for _, attr := range m.attrOrder {
		v, ok := merged[attr]
		if !ok {
			continue
		}
		desc := m.Attribute(attr)
		value, err := assignmentExpr(m, desc, v)
		if err != nil {
			return nil, err
		}
		sets = append(sets, stmt.Assignment{Column: desc.ColumnName, Value: value})
	}
	return sets, nil
}

func assignmentExpr(m *Model, desc *field.Descriptor, v any) (expr.Expr, error) {
	switch t := v.(type) {
	case *expr.Raw:
		return t, nil
	case expr.Expr:
		r := newResolver(m, "")
		return r.resolve(t, false)
	}
	uncast, err := uncastValue(desc, v)
	if err != nil {
		return nil, &ValidationError{Model: m.name, Attribute: desc.Name, Err: err}
	}
	return expr.Value(uncast), nil
}

// uncastValue encodes a runtime value for binding. Datetimes render as
// strings at the column's declared precision so every dialect receives
// the same canonical form.
func uncastValue(desc *field.Descriptor, v any) (any, error) {
	uncast, err := desc.Type.Uncast(v)
	if err != nil {
		return nil, err
	}
	if t, ok := uncast.(time.Time); ok {
		if date, ok := desc.Type.(types.Date); ok {
			return types.FormatTime(t, date.Precision), nil
		}
		return types.FormatTime(t, 3), nil
	}
	return uncast, nil
}

// finalizeDelete compiles a physical DELETE.
func (s *Spell) finalizeDelete() (*stmt.Delete, error) {
	if s.err != nil {
		return nil, s.err
	}
	work := s.Clone()
	work.command = commandDelete
	work.applyScopes()

	del := stmt.NewDelete(s.model.table)
	del.PrimaryColumn = s.model.PrimaryColumn()
	del.Limit = work.limit

	r := newResolver(s.model, "")
	where, err := r.resolveWhere(work.wheres)
	if err != nil {
		return nil, err
	}
	del.Where = where
	if del.Orders, err = r.resolveOrders(work.orders); err != nil {
		return nil, err
	}
	if err := s.checkShardingKey(del.Where); err != nil {
		return nil, err
	}
	return del, nil
}

// checkShardingKey enforces that sharded models constrain their key to
// a non-null value in every SELECT/UPDATE/DELETE predicate.
func (s *Spell) checkShardingKey(where expr.Expr) error {
	key := s.model.shardingKey
	if key == "" {
		return nil
	}
	column, _ := s.model.columnName(key)
	constrained := false
	expr.Walk(where, func(e expr.Expr) bool {
		switch n := e.(type) {
		case *expr.Binary:
			if n.Op != expr.OpEq {
				return true
			}
			if col, ok := n.Left.(*expr.Column); ok && col.Name == column {
				if lit, ok := n.Right.(*expr.Literal); !ok || lit.Value != nil {
					constrained = true
					return false
				}
			}
		case *expr.In:
			if col, ok := n.Expr.(*expr.Column); ok && col.Name == column && !n.Not {
				constrained = true
				return false
			}
		}
		return true
	})
	if !constrained {
		return &IntegrityError{Model: s.model.name, Message: fmt.Sprintf("sharding key %q must be constrained", key)}
	}
	return nil
}

// checkShardingAssignments rejects updates that null the sharding key.
func (s *Spell) checkShardingAssignments(values map[string]any) error {
	key := s.model.shardingKey
	if key == "" {
		return nil
	}
	if v, ok := values[key]; ok && v == nil {
		return &IntegrityError{Model: s.model.name, Message: fmt.Sprintf("sharding key %q must not be set to null", key)}
	}
	return nil
}
