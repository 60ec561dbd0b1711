package grimoire

import (
	"context"
	"fmt"

	"github.com/grimoiredb/grimoire/dialect"
	"github.com/grimoiredb/grimoire/expr"
	"github.com/grimoiredb/grimoire/stmt"
)

// --- instance persistence -------------------------------------------

// Save persists the instance: it inserts when the primary key is
// absent, updates when the instance was loaded, and upserts when an
// insert-with-key collision is intended.
func (b *Bone) Save(ctx context.Context) error {
	if err := b.dispatch(ctx, BeforeSave, nil); err != nil {
		return err
	}
	var err error
	switch {
	case b.PrimaryValue() == nil:
		err = b.insert(ctx)
	case b.Persisted():
		_, err = b.Update(ctx, nil)
	default:
		_, err = b.Upsert(ctx)
	}
	if err != nil {
		return err
	}
	return b.dispatch(ctx, AfterSave, nil)
}

func (b *Bone) dispatch(ctx context.Context, event HookEvent, hc *HookContext) error {
	if hc == nil {
		hc = &HookContext{Model: b.model, Bone: b}
	}
	return b.model.hooks.dispatch(ctx, event, hc)
}

// insertValues collects persistable attribute values, stamping managed
// timestamps unless the caller supplied them.
func (b *Bone) insertValues() Values {
	m := b.model
	out := make(Values)
	now := Now()
	for _, name := range m.attrOrder {
		desc := m.Attribute(name)
		if desc.Virtual {
			continue
		}
		if v, ok := b.raw[name]; ok && v != nil {
			out[name] = v
		}
	}
	for _, ts := range []string{m.createdAt, m.updatedAt} {
		if !m.HasAttribute(ts) {
			continue
		}
		if _, supplied := out[ts]; !supplied {
			out[ts] = now
			b.raw[ts] = now
		}
	}
	return out
}

func (b *Bone) insert(ctx context.Context) error {
	m := b.model
	if err := b.dispatch(ctx, BeforeCreate, nil); err != nil {
		return err
	}
	values := b.insertValues()
	ins, err := buildInsert(m, []Values{values})
	if err != nil {
		return err
	}
	result, err := execInsert(ctx, m, ins, &dialect.QueryOptions{Model: m.name, Command: "insert"})
	if err != nil {
		return err
	}
	if b.PrimaryValue() == nil && result.InsertID > 0 {
		b.raw[m.primaryKey] = result.InsertID
	}
	b.markPersisted()
	return b.dispatch(ctx, AfterCreate, nil)
}

// Update persists the given values, or the instance's pending changes
// when values is nil. It returns the affected row count.
func (b *Bone) Update(ctx context.Context, values Values) (int64, error) {
	m := b.model
	if b.PrimaryValue() == nil {
		return 0, &IntegrityError{Model: m.name, Message: "primary key is required for update"}
	}
	if values == nil {
		values = make(Values)
		for attr, pair := range b.Changes() {
			values[attr] = pair[1]
		}
	}
	hc := &HookContext{Model: m, Bone: b, Values: values}
	if err := b.dispatch(ctx, BeforeUpdate, hc); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	spell := b.selfSpell(commandUpdate)
	upd, err := spell.finalizeUpdate(values)
	if err != nil {
		return 0, err
	}
	affected, err := spell.execUpdate(ctx, upd)
	if err != nil {
		return 0, err
	}
	for attr, v := range values {
		if m.HasAttribute(attr) {
			b.raw[attr], _ = m.Attribute(attr).Type.Cast(v)
		}
	}
	if m.HasAttribute(m.updatedAt) {
		if _, supplied := values[m.updatedAt]; !supplied {
			// finalizeUpdate stamped it; mirror the instance
			b.raw[m.updatedAt] = Now()
		}
	}
	b.markPersisted()
	hc.AffectedRows = affected
	if err := b.dispatch(ctx, AfterUpdate, hc); err != nil {
		return affected, err
	}
	return affected, nil
}

// UpsertOptions tune an instance upsert.
type UpsertOptions struct {
	// UniqueKeys overrides the conflict target, which defaults to the
	// primary key.
	UniqueKeys []string
}

// Upsert builds an INSERT that updates the row on key conflict. It
// returns the affected row count: 2 for the update branch on MySQL, 1
// elsewhere.
func (b *Bone) Upsert(ctx context.Context, opts ...UpsertOptions) (int64, error) {
	m := b.model
	if err := b.dispatch(ctx, BeforeUpsert, nil); err != nil {
		return 0, err
	}
	var opt UpsertOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	values := b.insertValues()
	ups, err := buildUpsert(m, []Values{values}, nil, opt.UniqueKeys)
	if err != nil {
		return 0, err
	}
	result, err := execUpsert(ctx, m, ups, &dialect.QueryOptions{Model: m.name, Command: "upsert"})
	if err != nil {
		return 0, err
	}
	if b.PrimaryValue() == nil && result.InsertID > 0 {
		b.raw[m.primaryKey] = result.InsertID
	}
	b.markPersisted()
	hc := &HookContext{Model: m, Bone: b, AffectedRows: result.AffectedRows}
	if err := b.dispatch(ctx, AfterUpsert, hc); err != nil {
		return result.AffectedRows, err
	}
	return result.AffectedRows, nil
}

// Remove soft-deletes the instance by stamping deletedAt, or deletes
// it physically when the model has no soft-delete column or force is
// true. It returns the affected row count.
func (b *Bone) Remove(ctx context.Context, force ...bool) (int64, error) {
	m := b.model
	if b.PrimaryValue() == nil {
		return 0, &IntegrityError{Model: m.name, Message: "primary key is required for remove"}
	}
	physical := len(force) > 0 && force[0] || !m.Paranoid()
	if physical {
		if err := b.dispatch(ctx, BeforeDestroy, nil); err != nil {
			return 0, err
		}
		spell := b.selfSpell(commandDelete)
		spell.forceDelete = true
		del, err := spell.finalizeDelete()
		if err != nil {
			return 0, err
		}
		affected, err := spell.execDelete(ctx, del)
		if err != nil {
			return 0, err
		}
		hc := &HookContext{Model: m, Bone: b, AffectedRows: affected}
		return affected, b.dispatch(ctx, AfterDestroy, hc)
	}
	if err := b.dispatch(ctx, BeforeRemove, nil); err != nil {
		return 0, err
	}
	now := Now()
	spell := b.selfSpell(commandUpdate).Silent()
	upd, err := spell.finalizeUpdate(Values{m.deletedAt: now})
	if err != nil {
		return 0, err
	}
	affected, err := spell.execUpdate(ctx, upd)
	if err != nil {
		return 0, err
	}
	b.raw[m.deletedAt] = now
	b.markPersisted()
	hc := &HookContext{Model: m, Bone: b, AffectedRows: affected}
	return affected, b.dispatch(ctx, AfterRemove, hc)
}

// Restore clears deletedAt. Restoring a model without a soft-delete
// column fails.
func (b *Bone) Restore(ctx context.Context) (int64, error) {
	m := b.model
	if !m.Paranoid() {
		return 0, &IntegrityError{Model: m.name, Message: "model is not paranoid"}
	}
	if b.PrimaryValue() == nil {
		return 0, &IntegrityError{Model: m.name, Message: "primary key is required for restore"}
	}
	spell := b.selfSpell(commandUpdate).Silent().Unparanoid()
	upd, err := spell.finalizeUpdate(Values{m.deletedAt: nil})
	if err != nil {
		return 0, err
	}
	affected, err := spell.execUpdate(ctx, upd)
	if err != nil {
		return 0, err
	}
	b.raw[m.deletedAt] = nil
	b.markPersisted()
	return affected, nil
}

// Reload re-reads the row by primary key and replaces the instance's
// state.
func (b *Bone) Reload(ctx context.Context) error {
	m := b.model
	if b.PrimaryValue() == nil {
		return &IntegrityError{Model: m.name, Message: "primary key is required for reload"}
	}
	fresh, err := b.selfSpell(commandSelect).Unparanoid().First(ctx)
	if err != nil {
		return err
	}
	if fresh == nil {
		return &IntegrityError{Model: m.name, Message: "row is gone"}
	}
	b.raw = fresh.raw
	b.rawPrevious = fresh.rawPrevious
	b.rawUnset = fresh.rawUnset
	b.lastChanges = nil
	return nil
}

// selfSpell targets the instance's own row, auto-appending the
// sharding key so callers never restate it.
func (b *Bone) selfSpell(c command) *Spell {
	m := b.model
	s := newSpell(m, c)
	s.Where(Values{m.primaryKey: b.PrimaryValue()})
	if m.shardingKey != "" && m.shardingKey != m.primaryKey {
		s.Where(Values{m.shardingKey: b.raw[m.shardingKey]})
	}
	return s
}

// --- statement builders ---------------------------------------------

// buildInsert lowers attribute-keyed rows into an INSERT statement.
// Sharded models must supply their key in every row.
func buildInsert(m *Model, rows []Values) (*stmt.Insert, error) {
	columnSet := make(map[string]struct{})
	for _, row := range rows {
		for attr := range row {
			desc := m.Attribute(attr)
			if desc == nil || desc.Virtual {
				continue
			}
			columnSet[attr] = struct{}{}
		}
	}
	if m.shardingKey != "" {
		if _, ok := columnSet[m.shardingKey]; !ok {
			return nil, &IntegrityError{Model: m.name, Message: fmt.Sprintf("sharding key %q is required", m.shardingKey)}
		}
	}
	ins := &stmt.Insert{Table: m.table}
	var attrs []string
	for _, attr := range m.attrOrder {
		if _, ok := columnSet[attr]; !ok {
			continue
		}
		attrs = append(attrs, attr)
		ins.Columns = append(ins.Columns, m.Attribute(attr).ColumnName)
	}
	for _, row := range rows {
		values := make([]any, len(attrs))
		for i, attr := range attrs {
			v, ok := row[attr]
			if !ok {
				values[i] = nil
				continue
			}
			if raw, isRaw := v.(*expr.Raw); isRaw {
				values[i] = raw
				continue
			}
			uncast, err := uncastValue(m.Attribute(attr), v)
			if err != nil {
				return nil, &ValidationError{Model: m.name, Attribute: attr, Err: err}
			}
			values[i] = uncast
		}
		ins.Rows = append(ins.Rows, values)
	}
	if pk := m.Attribute(m.primaryKey); pk != nil && pk.AutoIncrement {
		ins.Returning = []string{pk.ColumnName}
	}
	return ins, nil
}

// buildUpsert extends an insert with the dialect conflict clause. The
// update branch touches every inserted column except createdAt; the
// conflict target defaults to the primary key.
func buildUpsert(m *Model, rows []Values, updateAttrs, uniqueKeys []string) (*stmt.Upsert, error) {
	ins, err := buildInsert(m, rows)
	if err != nil {
		return nil, err
	}
	ups := &stmt.Upsert{Insert: *ins}
	createdAtColumn := ""
	if m.HasAttribute(m.createdAt) {
		createdAtColumn = m.Attribute(m.createdAt).ColumnName
	}
	if updateAttrs != nil {
		for _, attr := range updateAttrs {
			desc := m.Attribute(attr)
			if desc == nil {
				return nil, &QueryError{Model: m.name, Err: fmt.Errorf("no attribute %q", attr)}
			}
			ups.UpdateColumns = append(ups.UpdateColumns, desc.ColumnName)
		}
	} else {
		for _, column := range ins.Columns {
			if column == createdAtColumn {
				continue
			}
			ups.UpdateColumns = append(ups.UpdateColumns, column)
		}
	}
	if len(uniqueKeys) > 0 {
		for _, attr := range uniqueKeys {
			desc := m.Attribute(attr)
			if desc == nil {
				return nil, &QueryError{Model: m.name, Err: fmt.Errorf("no attribute %q", attr)}
			}
			ups.ConflictTargets = append(ups.ConflictTargets, desc.ColumnName)
		}
	} else {
		ups.ConflictTargets = []string{m.PrimaryColumn()}
	}
	if pk := m.Attribute(m.primaryKey); pk != nil && pk.AutoIncrement {
		ups.RecoverPrimaryKey = pk.ColumnName
		ups.Returning = []string{pk.ColumnName}
	}
	return ups, nil
}

// execInsert runs an INSERT, reading the generated key back through
// RETURNING where supported and insertId elsewhere.
func execInsert(ctx context.Context, m *Model, ins *stmt.Insert, opts *dialect.QueryOptions) (*dialect.Result, error) {
	drv, err := m.driver()
	if err != nil {
		return nil, err
	}
	f := dialect.NewFormatter(drv.Dialect())
	query, values, err := f.Insert(ins)
	if err != nil {
		return nil, err
	}
	return runReturning(ctx, m, query, values, len(ins.Returning) > 0, opts)
}

func execUpsert(ctx context.Context, m *Model, ups *stmt.Upsert, opts *dialect.QueryOptions) (*dialect.Result, error) {
	drv, err := m.driver()
	if err != nil {
		return nil, err
	}
	f := dialect.NewFormatter(drv.Dialect())
	query, values, err := f.Upsert(ups)
	if err != nil {
		return nil, err
	}
	return runReturning(ctx, m, query, values, len(ups.Returning) > 0, opts)
}

func runReturning(ctx context.Context, m *Model, query string, values []any, hasReturning bool, opts *dialect.QueryOptions) (*dialect.Result, error) {
	drv, err := m.driver()
	if err != nil {
		return nil, err
	}
	q := m.realm.execQuerier(ctx)
	m.realm.invalidateCache(ctx, m.table)
	if hasReturning && drv.Dialect().SupportsReturning() {
		result, err := q.Query(ctx, query, values, opts)
		if err != nil {
			return nil, err
		}
		if len(result.Rows) > 0 && len(result.Rows[0]) > 0 {
			result.InsertID = dialect.ToInt64(result.Rows[0][0])
		}
		if result.AffectedRows == 0 {
			result.AffectedRows = int64(len(result.Rows))
		}
		return result, nil
	}
	return q.Exec(ctx, query, values, opts)
}

func (s *Spell) execUpdate(ctx context.Context, upd *stmt.Update) (int64, error) {
	drv, err := s.model.driver()
	if err != nil {
		return 0, err
	}
	f := dialect.NewFormatter(drv.Dialect())
	query, values, err := f.Update(upd)
	if err != nil {
		return 0, err
	}
	s.frozen = true
	s.model.realm.invalidateCache(ctx, s.model.table)
	result, err := s.model.realm.execQuerier(ctx).Exec(ctx, query, values, s.queryOptions())
	if err != nil {
		return 0, err
	}
	return result.AffectedRows, nil
}

func (s *Spell) execDelete(ctx context.Context, del *stmt.Delete) (int64, error) {
	drv, err := s.model.driver()
	if err != nil {
		return 0, err
	}
	f := dialect.NewFormatter(drv.Dialect())
	query, values, err := f.Delete(del)
	if err != nil {
		return 0, err
	}
	s.frozen = true
	s.model.realm.invalidateCache(ctx, s.model.table)
	result, err := s.model.realm.execQuerier(ctx).Exec(ctx, query, values, s.queryOptions())
	if err != nil {
		return 0, err
	}
	return result.AffectedRows, nil
}

// --- bulk mutation spells -------------------------------------------

// UpdateAll updates every row the spell matches and returns the
// affected count. With IndividualHooks the bulk expands into per-row
// updates with instance hooks.
func (s *Spell) UpdateAll(ctx context.Context, values Values) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	hc := &HookContext{Model: s.model, Spell: s, Values: values}
	if s.hooksEnabled {
		if err := s.model.hooks.dispatch(ctx, BeforeBulkUpdate, hc); err != nil {
			return 0, err
		}
	}
	if s.individualHooks {
		return s.updateIndividually(ctx, values)
	}
	upd, err := s.finalizeUpdate(values)
	if err != nil {
		return 0, err
	}
	affected, err := s.execUpdate(ctx, upd)
	if err != nil {
		return 0, err
	}
	if s.hooksEnabled {
		hc.AffectedRows = affected
		if err := s.model.hooks.dispatch(ctx, AfterBulkUpdate, hc); err != nil {
			return affected, err
		}
	}
	return affected, nil
}

func (s *Spell) updateIndividually(ctx context.Context, values Values) (int64, error) {
	rows, err := s.Clone().All(ctx)
	if err != nil {
		return 0, err
	}
	var affected int64
	for _, row := range rows {
		n, err := row.Update(ctx, values)
		if err != nil {
			return affected, err
		}
		affected += n
	}
	return affected, nil
}

// Increment bumps the attribute by the given amount (default 1),
// stamping updatedAt unless silent.
func (s *Spell) Increment(ctx context.Context, attr string, by ...any) (int64, error) {
	return s.crement(ctx, attr, expr.OpAdd, by...)
}

// Decrement lowers the attribute by the given amount (default 1).
func (s *Spell) Decrement(ctx context.Context, attr string, by ...any) (int64, error) {
	return s.crement(ctx, attr, expr.OpSub, by...)
}

func (s *Spell) crement(ctx context.Context, attr string, op expr.Op, by ...any) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if !s.model.HasAttribute(attr) {
		return 0, &QueryError{Model: s.model.name, Err: fmt.Errorf("no attribute %q", attr)}
	}
	amount := any(int64(1))
	if len(by) > 0 {
		amount = by[0]
	}
	delta := &expr.Binary{Op: op, Left: expr.Ident(attr), Right: expr.Value(amount)}
	return s.UpdateAll(ctx, Values{attr: delta})
}

// DeleteAll soft-deletes the rows the spell matches, or deletes them
// physically when force is true or the model is not paranoid. It
// returns the affected count.
func (s *Spell) DeleteAll(ctx context.Context, force ...bool) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	physical := len(force) > 0 && force[0] || !s.model.Paranoid()
	hc := &HookContext{Model: s.model, Spell: s}
	if s.hooksEnabled {
		if err := s.model.hooks.dispatch(ctx, BeforeBulkDestroy, hc); err != nil {
			return 0, err
		}
	}
	var affected int64
	var err error
	if physical {
		work := s.Clone()
		work.forceDelete = len(force) > 0 && force[0]
		var del *stmt.Delete
		if del, err = work.finalizeDelete(); err != nil {
			return 0, err
		}
		affected, err = work.execDelete(ctx, del)
	} else {
		work := s.Clone().Silent()
		var upd *stmt.Update
		if upd, err = work.finalizeUpdate(Values{s.model.deletedAt: Now()}); err != nil {
			return 0, err
		}
		affected, err = work.execUpdate(ctx, upd)
	}
	if err != nil {
		return 0, err
	}
	if s.hooksEnabled {
		hc.AffectedRows = affected
		if err := s.model.hooks.dispatch(ctx, AfterBulkDestroy, hc); err != nil {
			return affected, err
		}
	}
	return affected, nil
}

// RestoreAll clears deletedAt on the rows the spell matches. The model
// must be paranoid.
func (s *Spell) RestoreAll(ctx context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if !s.model.Paranoid() {
		return 0, &IntegrityError{Model: s.model.name, Message: "model is not paranoid"}
	}
	work := s.Clone().Silent().Unparanoid()
	upd, err := work.finalizeUpdate(Values{s.model.deletedAt: nil})
	if err != nil {
		return 0, err
	}
	return work.execUpdate(ctx, upd)
}

// --- class-level persistence ----------------------------------------

// Create builds an instance from values and inserts it.
func (m *Model) Create(ctx context.Context, values Values) (*Bone, error) {
	b, err := m.New(values)
	if err != nil {
		return nil, err
	}
	if err := b.dispatch(ctx, BeforeSave, nil); err != nil {
		return nil, err
	}
	if err := b.insert(ctx); err != nil {
		return nil, err
	}
	if err := b.dispatch(ctx, AfterSave, nil); err != nil {
		return nil, err
	}
	return b, nil
}

// BulkCreateOptions tune BulkCreate.
type BulkCreateOptions struct {
	// UpdateOnDuplicate switches to an upsert. UpdateAttributes limits the update
	// branch to the listed attributes; nil updates everything except
	// createdAt.
	UpdateOnDuplicate bool
	UpdateAttributes  []string
	// UniqueKeys overrides the conflict target.
	UniqueKeys []string
	// IndividualHooks expands the bulk into per-row creates.
	IndividualHooks bool
}

// BulkCreate inserts many rows in one statement. Object keys that are
// not declared attributes are ignored.
func (m *Model) BulkCreate(ctx context.Context, rows []Values, opts ...BulkCreateOptions) (Collection, error) {
	if len(rows) == 0 {
		return Collection{}, nil
	}
	var opt BulkCreateOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	bones := make(Collection, 0, len(rows))
	for _, row := range rows {
		b, err := m.New(row)
		if err != nil {
			return nil, err
		}
		bones = append(bones, b)
	}
	hc := &HookContext{Model: m}
	if err := m.hooks.dispatch(ctx, BeforeBulkCreate, hc); err != nil {
		return nil, err
	}
	if opt.IndividualHooks {
		for _, b := range bones {
			if err := b.insert(ctx); err != nil {
				return nil, err
			}
		}
		return bones, m.hooks.dispatch(ctx, AfterBulkCreate, hc)
	}
	values := make([]Values, len(bones))
	for i, b := range bones {
		values[i] = b.insertValues()
	}
	var result *dialect.Result
	var err error
	queryOpts := &dialect.QueryOptions{Model: m.name, Command: "insert"}
	if opt.UpdateOnDuplicate || len(opt.UpdateAttributes) > 0 {
		var ups *stmt.Upsert
		ups, err = buildUpsert(m, values, opt.UpdateAttributes, opt.UniqueKeys)
		if err != nil {
			return nil, err
		}
		queryOpts.Command = "upsert"
		result, err = execUpsert(ctx, m, ups, queryOpts)
	} else {
		var ins *stmt.Insert
		ins, err = buildInsert(m, values)
		if err != nil {
			return nil, err
		}
		result, err = execInsert(ctx, m, ins, queryOpts)
	}
	if err != nil {
		return nil, err
	}
	// MySQL reports the first generated key of a multi-row insert
	if result.InsertID > 0 {
		next := result.InsertID
		for _, b := range bones {
			if b.PrimaryValue() == nil {
				b.raw[m.primaryKey] = next
				next++
			}
		}
	}
	for _, b := range bones {
		b.markPersisted()
	}
	return bones, m.hooks.dispatch(ctx, AfterBulkCreate, hc)
}

// Update updates the rows matching cond and returns the affected
// count.
func (m *Model) Update(ctx context.Context, cond any, values Values) (int64, error) {
	return m.Find(cond).UpdateAll(ctx, values)
}

// Remove removes the rows matching cond, physically when force is
// true.
func (m *Model) Remove(ctx context.Context, cond any, force ...bool) (int64, error) {
	return m.Find(cond).DeleteAll(ctx, force...)
}

// Restore clears deletedAt on the rows matching cond.
func (m *Model) Restore(ctx context.Context, cond any) (int64, error) {
	return m.Find(cond).RestoreAll(ctx)
}
