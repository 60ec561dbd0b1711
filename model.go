package grimoire

import (
	"context"
	"fmt"

	"github.com/go-openapi/inflect"

	"github.com/grimoiredb/grimoire/dialect"
	"github.com/grimoiredb/grimoire/field"
)

// Values is a bag of attribute values keyed by attribute name.
type Values map[string]any

// Scope augments a Spell just before finalization. The default
// paranoid scope and user-registered scopes share this shape.
type Scope func(*Spell)

// ModelConfig declares an entity class.
type ModelConfig struct {
	// Name is the entity name, e.g. "Post".
	Name string
	// Table overrides the default pluralized snake_case table name.
	Table string
	// Attributes declare the entity's typed attributes.
	Attributes []*field.Builder
	// ShardingKey names an attribute that every predicate must
	// constrain.
	ShardingKey string
	// PhysicTables overrides table routing.
	PhysicTables []string
	// CreatedAt, UpdatedAt and DeletedAt rename the timestamp
	// attributes; they default to "createdAt", "updatedAt" and
	// "deletedAt". Timestamps are managed only when the named
	// attribute is declared.
	CreatedAt string
	UpdatedAt string
	DeletedAt string
	// DefaultScope is applied to every query unless unscoped.
	DefaultScope Scope
	// Scopes are named scopes applied through Spell.Scoped.
	Scopes map[string]Scope
}

// Model is the class-level descriptor of an entity: attribute map,
// associations, hooks, scopes and the binding to its realm.
type Model struct {
	name         string
	table        string
	attributes   map[string]*field.Descriptor
	attrOrder    []string
	columns      map[string]string // column name -> attribute name
	primaryKey   string
	shardingKey  string
	physicTables []string
	createdAt    string
	updatedAt    string
	deletedAt    string
	defaultScope Scope
	scopes       map[string]Scope
	associations map[string]*Association
	hooks        *hookRegistry
	realm        *Realm
	synchronized bool
}

// NewModel builds a Model from its declarative description.
func NewModel(cfg ModelConfig) (*Model, error) {
	if cfg.Name == "" {
		return nil, &DefinitionError{Message: "model name is required"}
	}
	m := &Model{
		name:         cfg.Name,
		table:        cfg.Table,
		attributes:   make(map[string]*field.Descriptor),
		columns:      make(map[string]string),
		shardingKey:  cfg.ShardingKey,
		physicTables: cfg.PhysicTables,
		createdAt:    orDefault(cfg.CreatedAt, "createdAt"),
		updatedAt:    orDefault(cfg.UpdatedAt, "updatedAt"),
		deletedAt:    orDefault(cfg.DeletedAt, "deletedAt"),
		defaultScope: cfg.DefaultScope,
		scopes:       cfg.Scopes,
		associations: make(map[string]*Association),
		hooks:        newHookRegistry(),
	}
	if m.table == "" {
		m.table = inflect.Pluralize(inflect.Underscore(cfg.Name))
	}
	for _, b := range cfg.Attributes {
		desc := b.Descriptor()
		if _, ok := m.attributes[desc.Name]; ok {
			return nil, &DefinitionError{Model: cfg.Name, Message: fmt.Sprintf("duplicate attribute %q", desc.Name)}
		}
		if taken, ok := m.columns[desc.ColumnName]; ok {
			return nil, &DefinitionError{Model: cfg.Name, Message: fmt.Sprintf("column %q already mapped by attribute %q", desc.ColumnName, taken)}
		}
		m.attributes[desc.Name] = desc
		m.attrOrder = append(m.attrOrder, desc.Name)
		m.columns[desc.ColumnName] = desc.Name
		if desc.PrimaryKey && m.primaryKey == "" {
			m.primaryKey = desc.Name
		}
	}
	if m.primaryKey == "" {
		if _, ok := m.attributes["id"]; ok {
			m.primaryKey = "id"
			m.attributes["id"].PrimaryKey = true
		}
	}
	if m.shardingKey != "" {
		if _, ok := m.attributes[m.shardingKey]; !ok {
			return nil, &DefinitionError{Model: cfg.Name, Message: fmt.Sprintf("unknown sharding key %q", m.shardingKey)}
		}
	}
	return m, nil
}

// MustNewModel is NewModel, panicking on definition errors. Intended
// for package-level model declarations.
func MustNewModel(cfg ModelConfig) *Model {
	m, err := NewModel(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Name returns the entity name.
func (m *Model) Name() string { return m.name }

// Table returns the table name.
func (m *Model) Table() string { return m.table }

// PrimaryKey returns the primary-key attribute name.
func (m *Model) PrimaryKey() string { return m.primaryKey }

// PrimaryColumn returns the primary-key column name.
func (m *Model) PrimaryColumn() string {
	if attr, ok := m.attributes[m.primaryKey]; ok {
		return attr.ColumnName
	}
	return ""
}

// ShardingKey returns the sharding-key attribute name, or "".
func (m *Model) ShardingKey() string { return m.shardingKey }

// Attributes returns attribute descriptors in declaration order.
func (m *Model) Attributes() []*field.Descriptor {
	out := make([]*field.Descriptor, len(m.attrOrder))
	for i, name := range m.attrOrder {
		out[i] = m.attributes[name]
	}
	return out
}

// Attribute returns the named attribute descriptor, or nil.
func (m *Model) Attribute(name string) *field.Descriptor {
	return m.attributes[name]
}

// HasAttribute reports whether the attribute is declared.
func (m *Model) HasAttribute(name string) bool {
	_, ok := m.attributes[name]
	return ok
}

// Paranoid reports whether the model soft-deletes: it declares the
// deletedAt attribute.
func (m *Model) Paranoid() bool {
	return m.HasAttribute(m.deletedAt)
}

// RenameAttribute renames an attribute. Renaming to an existing name
// fails.
func (m *Model) RenameAttribute(name, newName string) error {
	desc, ok := m.attributes[name]
	if !ok {
		return &DefinitionError{Model: m.name, Message: fmt.Sprintf("no attribute %q", name)}
	}
	if _, ok := m.attributes[newName]; ok {
		return &DefinitionError{Model: m.name, Message: fmt.Sprintf("attribute %q already exists", newName)}
	}
	delete(m.attributes, name)
	desc.Name = newName
	m.attributes[newName] = desc
	m.columns[desc.ColumnName] = newName
	for i, n := range m.attrOrder {
		if n == name {
			m.attrOrder[i] = newName
		}
	}
	switch name {
	case m.primaryKey:
		m.primaryKey = newName
	case m.shardingKey:
		m.shardingKey = newName
	case m.createdAt:
		m.createdAt = newName
	case m.updatedAt:
		m.updatedAt = newName
	case m.deletedAt:
		m.deletedAt = newName
	}
	return nil
}

// AddHook registers a lifecycle hook. Registering the same hook twice
// runs it twice.
func (m *Model) AddHook(event HookEvent, name string, fn HookFunc) {
	m.hooks.add(event, name, fn)
}

// RemoveHook removes the named handlers of the event.
func (m *Model) RemoveHook(event HookEvent, name string) {
	m.hooks.remove(event, name)
}

// Realm returns the realm this model is bound to, or nil before
// Connect.
func (m *Model) Realm() *Realm { return m.realm }

func (m *Model) driver() (*dialect.Driver, error) {
	if m.realm == nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("model %q is not connected", m.name)}
	}
	return m.realm.driver, nil
}

// columnName resolves an attribute name to its column name.
func (m *Model) columnName(attr string) (string, bool) {
	if desc, ok := m.attributes[attr]; ok {
		return desc.ColumnName, true
	}
	return "", false
}

// attributeByColumn resolves a column name back to its attribute.
func (m *Model) attributeByColumn(column string) (*field.Descriptor, bool) {
	name, ok := m.columns[column]
	if !ok {
		return nil, false
	}
	return m.attributes[name], true
}

// --- query builders -------------------------------------------------

// Where starts a SELECT Spell with the given condition. The condition
// may be a mini-language string with placeholder args, a Values/map
// object condition, or an expression node.
func (m *Model) Where(cond any, args ...any) *Spell {
	return newSpell(m, commandSelect).Where(cond, args...)
}

// Find is Where; with no condition it selects everything.
func (m *Model) Find(cond ...any) *Spell {
	s := newSpell(m, commandSelect)
	if len(cond) > 0 {
		s.Where(cond[0], cond[1:]...)
	}
	return s
}

// FindOne selects a single row.
func (m *Model) FindOne(cond ...any) *Spell {
	return m.Find(cond...).Limit(1)
}

// FindByPK selects by primary key.
func (m *Model) FindByPK(value any) *Spell {
	return m.Where(Values{m.primaryKey: value}).Limit(1)
}

// All selects every (scoped) row.
func (m *Model) All() *Spell { return newSpell(m, commandSelect) }

// Select starts a Spell with an explicit projection.
func (m *Model) Select(names ...any) *Spell {
	return newSpell(m, commandSelect).Select(names...)
}

// Order starts a Spell ordered by the given expression.
func (m *Model) Order(ord any, dir ...string) *Spell {
	return newSpell(m, commandSelect).Order(ord, dir...)
}

// Group starts a grouped Spell.
func (m *Model) Group(exprs ...any) *Spell {
	return newSpell(m, commandSelect).Group(exprs...)
}

// Join starts a Spell with an arbitrary join.
func (m *Model) Join(target *Model, on string, args ...any) *Spell {
	return newSpell(m, commandSelect).Join(target, on, args...)
}

// With starts a Spell that eagerly loads the named associations.
func (m *Model) With(names ...any) *Spell {
	return newSpell(m, commandSelect).With(names...)
}

// Include is an alias of With.
func (m *Model) Include(names ...any) *Spell {
	return m.With(names...)
}

// Unscoped starts a Spell with all default scopes dropped.
func (m *Model) Unscoped() *Spell {
	return newSpell(m, commandSelect).Unscoped()
}

// Unparanoid starts a Spell with only the soft-delete filter dropped.
func (m *Model) Unparanoid() *Spell {
	return newSpell(m, commandSelect).Unparanoid()
}

// First selects the first row ordered by primary key.
func (m *Model) First(ctx context.Context) (*Bone, error) {
	return newSpell(m, commandSelect).Order(m.primaryKey).First(ctx)
}

// Last selects the last row ordered by primary key.
func (m *Model) Last(ctx context.Context) (*Bone, error) {
	return newSpell(m, commandSelect).Order(m.primaryKey, "desc").First(ctx)
}

// Count counts the (scoped) rows.
func (m *Model) Count(ctx context.Context) (int64, error) {
	return newSpell(m, commandSelect).Count().ScalarInt(ctx)
}

// Transaction runs fn inside a transaction on the model's realm.
func (m *Model) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.realm == nil {
		return &ConfigurationError{Message: fmt.Sprintf("model %q is not connected", m.name)}
	}
	return m.realm.Transaction(ctx, fn)
}
