package grimoire

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/grimoiredb/grimoire/dialect"
)

// ToSQL formats the spell against its realm's dialect, returning the
// SQL text and bind values. Formatting is deterministic and leaves the
// spell unfrozen.
func (s *Spell) ToSQL() (string, []any, error) {
	drv, err := s.model.driver()
	if err != nil {
		return "", nil, err
	}
	sel, err := s.finalizeSelect()
	if err != nil {
		return "", nil, err
	}
	return dialect.NewFormatter(drv.Dialect()).Select(sel)
}

// String renders the spell with bind values spliced inline, the form
// used for logging and assertions. Errors render as "!<message>".
func (s *Spell) String() string {
	drv, err := s.model.driver()
	if err != nil {
		return "!" + err.Error()
	}
	query, values, err := s.ToSQL()
	if err != nil {
		return "!" + err.Error()
	}
	f := dialect.NewFormatter(drv.Dialect())
	inline, err := f.Interpolate(query, values)
	if err != nil {
		return "!" + err.Error()
	}
	return inline
}

func (s *Spell) queryOptions() *dialect.QueryOptions {
	return &dialect.QueryOptions{Model: s.model.name, Command: s.command.String()}
}

// run executes the finalized SELECT, consulting the realm's query
// cache when the spell opted in. The spell freezes afterwards.
func (s *Spell) run(ctx context.Context) (*dialect.Result, error) {
	drv, err := s.model.driver()
	if err != nil {
		return nil, err
	}
	sel, err := s.finalizeSelect()
	if err != nil {
		return nil, err
	}
	f := dialect.NewFormatter(drv.Dialect())
	query, values, err := f.Select(sel)
	if err != nil {
		return nil, err
	}
	s.frozen = true
	realm := s.model.realm
	if s.cacheTTL > 0 && realm.cache != nil {
		key := cacheKey(s.model.table, query, values)
		if cached, err := realm.cacheGet(ctx, key); err == nil && cached != nil {
			return cached, nil
		}
		result, err := realm.execQuerier(ctx).Query(ctx, query, values, s.queryOptions())
		if err != nil {
			return nil, err
		}
		realm.cacheSet(ctx, key, result, s.cacheTTL)
		return result, nil
	}
	return realm.execQuerier(ctx).Query(ctx, query, values, s.queryOptions())
}

// All executes the spell and returns every matching row, with eagerly
// loaded associations grouped under their parents.
func (s *Spell) All(ctx context.Context) (Collection, error) {
	result, err := s.run(ctx)
	if err != nil {
		return nil, err
	}
	if len(s.joins) > 0 && s.hasAssociationJoins() {
		return s.hydrateJoined(result)
	}
	return s.hydrate(result)
}

func (s *Spell) hasAssociationJoins() bool {
	for _, j := range s.joins {
		if j.assoc != nil {
			return true
		}
	}
	return false
}

// First returns the first row ordered by primary key unless the chain
// ordered explicitly; nil when nothing matches.
func (s *Spell) First(ctx context.Context) (*Bone, error) {
	work := s
	if !s.frozen {
		if len(s.orders) == 0 {
			s.Order(s.model.primaryKey)
		}
		s.Limit(1)
	} else {
		work = s.Clone()
		if len(work.orders) == 0 {
			work.Order(work.model.primaryKey)
		}
		work.Limit(1)
	}
	rows, err := work.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Last returns the last row by primary key; nil when nothing matches.
func (s *Spell) Last(ctx context.Context) (*Bone, error) {
	work := s
	if s.frozen {
		work = s.Clone()
	}
	if len(work.orders) == 0 {
		work.Order(work.model.primaryKey, "desc")
	} else {
		for i := range work.orders {
			work.orders[i].Desc = !work.orders[i].Desc
		}
	}
	work.Limit(1)
	rows, err := work.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// One executes the spell with LIMIT 1 and returns the single row, or
// nil.
func (s *Spell) One(ctx context.Context) (*Bone, error) {
	work := s
	if s.frozen {
		work = s.Clone()
	}
	work.Limit(1)
	rows, err := work.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Results executes the spell and returns plain rows keyed by result
// field name, for grouped aggregates and expression projections.
func (s *Spell) Results(ctx context.Context) ([]Values, error) {
	result, err := s.run(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Values, len(result.Rows))
	for i, row := range result.Rows {
		values := make(Values, len(result.Fields))
		for j, f := range result.Fields {
			values[f] = normalizeCell(row[j])
		}
		out[i] = values
	}
	return out, nil
}

// Scalar executes the spell and returns the first column of the first
// row; nil when nothing matches.
func (s *Spell) Scalar(ctx context.Context) (any, error) {
	result, err := s.run(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 || len(result.Rows[0]) == 0 {
		return nil, nil
	}
	return normalizeCell(result.Rows[0][0]), nil
}

// ScalarInt is Scalar coerced to int64; zero when nothing matches.
func (s *Spell) ScalarInt(ctx context.Context) (int64, error) {
	v, err := s.Scalar(ctx)
	if err != nil {
		return 0, err
	}
	return dialect.ToInt64(v), nil
}

// normalizeCell decodes driver bytes into numbers or strings so
// aggregate results compare naturally.
func normalizeCell(v any) any {
	raw, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(raw)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// hydrate instantiates entities from a plain (unjoined) result.
func (s *Spell) hydrate(result *dialect.Result) (Collection, error) {
	out := make(Collection, 0, len(result.Rows))
	for _, row := range result.Rows {
		values := make(map[string]any, len(result.Fields))
		for i, f := range result.Fields {
			values[f] = row[i]
		}
		bone, err := s.model.Instantiate(values)
		if err != nil {
			return nil, err
		}
		out = append(out, bone)
	}
	return out, nil
}

// hydrateJoined splits "alias:column" projections per alias, groups
// rows by the parent primary key, deduplicates parents and accumulates
// hasMany children.
func (s *Spell) hydrateJoined(result *dialect.Result) (Collection, error) {
	mainAlias := s.model.table
	type fieldRef struct {
		alias  string
		column string
		index  int
	}
	var refs []fieldRef
	for i, f := range result.Fields {
		alias, column, found := strings.Cut(f, ":")
		if !found {
			alias, column = mainAlias, f
		}
		refs = append(refs, fieldRef{alias: alias, column: column, index: i})
	}

	joinByAlias := make(map[string]*join, len(s.joins))
	for _, j := range s.joins {
		if j.assoc != nil {
			joinByAlias[j.name] = j
		}
	}

	var out Collection
	parents := make(map[string]*Bone)
	for _, row := range result.Rows {
		perAlias := make(map[string]map[string]any)
		for _, ref := range refs {
			bucket := perAlias[ref.alias]
			if bucket == nil {
				bucket = make(map[string]any)
				perAlias[ref.alias] = bucket
			}
			bucket[ref.column] = row[ref.index]
		}
		pkValue := fmt.Sprint(perAlias[mainAlias][s.model.PrimaryColumn()])
		parent, seen := parents[pkValue]
		if !seen {
			var err error
			parent, err = s.model.Instantiate(perAlias[mainAlias])
			if err != nil {
				return nil, err
			}
			parents[pkValue] = parent
			out = append(out, parent)
		}
		for alias, j := range joinByAlias {
			rowValues, ok := perAlias[alias]
			if !ok {
				continue
			}
			target := j.assoc.Target
			if allNil(rowValues) {
				if _, set := parent.associations[alias]; !set && j.assoc.Kind == HasMany {
					parent.setAssociation(alias, Collection{})
				}
				continue
			}
			child, err := target.Instantiate(rowValues)
			if err != nil {
				return nil, err
			}
			switch j.assoc.Kind {
			case HasMany:
				members, _ := parent.associations[alias].(Collection)
				parent.setAssociation(alias, append(members, child))
			default:
				if _, set := parent.associations[alias]; !set {
					parent.setAssociation(alias, child)
				}
			}
		}
	}
	return out, nil
}

func allNil(values map[string]any) bool {
	for _, v := range values {
		if v != nil {
			return false
		}
	}
	return true
}

// Batch returns an iterator fetching primary-key-ordered windows of at
// most n rows.
func (s *Spell) Batch(n int) *Batch {
	b := &Batch{spell: s, size: n}
	if n <= 0 {
		b.err = &QueryError{Model: s.model.name, Err: fmt.Errorf("invalid batch limit %d", n)}
	}
	return b
}

// Batch lazily fetches fixed-size windows. Abandoning the iterator
// frees the underlying connection after the current batch.
type Batch struct {
	spell  *Spell
	size   int
	cursor any
	done   bool
	err    error
}

// Next fetches the next window; it returns nil when exhausted.
func (b *Batch) Next(ctx context.Context) (Collection, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.done {
		return nil, nil
	}
	pk := b.spell.model.primaryKey
	window := b.spell.Clone()
	window.frozen = false
	window.orders = nil
	window.Order(pk)
	window.Limit(b.size)
	if b.cursor != nil {
		window.Where(pk+" > ?", b.cursor)
	}
	rows, err := window.All(ctx)
	if err != nil {
		b.err = err
		return nil, err
	}
	if len(rows) == 0 {
		b.done = true
		return nil, nil
	}
	b.cursor = rows[len(rows)-1].GetDataValue(pk)
	if len(rows) < b.size {
		b.done = true
	}
	return rows, nil
}
