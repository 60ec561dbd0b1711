package grimoire

import (
	"reflect"
	"time"
)

// Bone is an entity instance: a row representation with lifecycle and
// change tracking. Three parallel maps keyed by attribute name hold
// the current values, the values at last persistence, and the set of
// attributes a projection did not load.
type Bone struct {
	model       *Model
	raw         map[string]any
	rawPrevious map[string]any
	rawUnset    map[string]struct{}
	// lastChanges records what changed in the most recent persistence.
	lastChanges map[string][]any
	// associations holds hydrated relations: *Bone or Collection.
	associations map[string]any
}

// New constructs an instance and assigns the given values through the
// normal setters, so codecs and defaults apply.
func (m *Model) New(values Values) (*Bone, error) {
	b := &Bone{
		model:        m,
		raw:          make(map[string]any),
		rawPrevious:  make(map[string]any),
		rawUnset:     make(map[string]struct{}),
		associations: make(map[string]any),
	}
	for _, desc := range m.Attributes() {
		if desc.HasDefault {
			b.raw[desc.Name] = desc.Default
		}
	}
	for name, value := range values {
		if !m.HasAttribute(name) {
			continue
		}
		if err := b.Set(name, value); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// MustNew is New, panicking on invalid values.
func (m *Model) MustNew(values Values) *Bone {
	b, err := m.New(values)
	if err != nil {
		panic(err)
	}
	return b
}

// Instantiate hydrates an instance from a raw database row keyed by
// column name, applying type casts but skipping setter side effects.
// rawPrevious is seeded equal to raw; columns absent from the row are
// marked unset.
func (m *Model) Instantiate(row map[string]any) (*Bone, error) {
	b := &Bone{
		model:        m,
		raw:          make(map[string]any, len(row)),
		rawPrevious:  make(map[string]any, len(row)),
		rawUnset:     make(map[string]struct{}),
		associations: make(map[string]any),
	}
	seen := make(map[string]struct{}, len(row))
	for column, value := range row {
		desc, ok := m.attributeByColumn(column)
		if !ok {
			// aggregate aliases and expression columns hydrate as-is
			b.raw[column] = value
			continue
		}
		cast, err := desc.Type.Cast(value)
		if err != nil {
			return nil, &ValidationError{Model: m.name, Attribute: desc.Name, Err: err}
		}
		b.raw[desc.Name] = cast
		b.rawPrevious[desc.Name] = cast
		seen[desc.Name] = struct{}{}
	}
	for _, name := range m.attrOrder {
		if _, ok := seen[name]; !ok {
			b.rawUnset[name] = struct{}{}
		}
	}
	return b, nil
}

// Model returns the instance's entity class.
func (b *Bone) Model() *Model { return b.model }

// Attribute reads the named attribute. Reading a missing attribute
// fails with "no attribute"; reading one excluded by the projection
// fails with "unset attribute".
func (b *Bone) Attribute(name string) (any, error) {
	if !b.model.HasAttribute(name) {
		if v, ok := b.raw[name]; ok {
			// expression alias hydrated alongside the row
			return v, nil
		}
		return nil, &LogicalError{Model: b.model.name, Attribute: name, Message: "no attribute"}
	}
	if _, unset := b.rawUnset[name]; unset {
		return nil, &LogicalError{Model: b.model.name, Attribute: name, Message: "unset attribute"}
	}
	return b.raw[name], nil
}

// Get is an alias of Attribute.
func (b *Bone) Get(name string) (any, error) { return b.Attribute(name) }

// GetDataValue reads the raw value without unset checks.
func (b *Bone) GetDataValue(name string) any { return b.raw[name] }

// Set writes the named attribute through the type codec. Writing an
// unset attribute clears the unset flag.
func (b *Bone) Set(name string, value any) error {
	desc := b.model.Attribute(name)
	if desc == nil {
		return &LogicalError{Model: b.model.name, Attribute: name, Message: "no attribute"}
	}
	cast, err := desc.Type.Cast(value)
	if err != nil {
		return &ValidationError{Model: b.model.name, Attribute: name, Err: err}
	}
	b.raw[name] = cast
	delete(b.rawUnset, name)
	return nil
}

// SetDataValue writes the raw value without codec mediation.
func (b *Bone) SetDataValue(name string, value any) {
	b.raw[name] = value
	delete(b.rawUnset, name)
}

// HasAttribute reports whether the attribute is declared on the model.
func (b *Bone) HasAttribute(name string) bool { return b.model.HasAttribute(name) }

// AttributeWas returns the value at last persistence.
func (b *Bone) AttributeWas(name string) any { return b.rawPrevious[name] }

// Changed reports whether the attribute differs from its value at last
// persistence.
func (b *Bone) Changed(name string) bool {
	return !equalValue(b.raw[name], b.rawPrevious[name])
}

// ChangedAttributes lists attributes currently different from their
// persisted values, in declaration order.
func (b *Bone) ChangedAttributes() []string {
	var out []string
	for _, name := range b.model.attrOrder {
		if _, unset := b.rawUnset[name]; unset {
			continue
		}
		if b.model.Attribute(name).Virtual {
			continue
		}
		if b.Changed(name) {
			out = append(out, name)
		}
	}
	return out
}

// Changes returns {attr: [previous, current]} for attributes currently
// different from their persisted values.
func (b *Bone) Changes() map[string][]any {
	out := make(map[string][]any)
	for _, name := range b.ChangedAttributes() {
		out[name] = []any{b.rawPrevious[name], b.raw[name]}
	}
	return out
}

// PreviousChanges returns what changed between the prior and most
// recent persistence.
func (b *Bone) PreviousChanges() map[string][]any {
	out := make(map[string][]any, len(b.lastChanges))
	for name, pair := range b.lastChanges {
		out[name] = pair
	}
	return out
}

// PreviousChanged reports the attributes the most recent persistence
// changed, or nil when nothing changed.
func (b *Bone) PreviousChanged() []string {
	var out []string
	for _, name := range b.model.attrOrder {
		if _, ok := b.lastChanges[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Persisted reports whether the instance has been saved or hydrated:
// its primary key is tracked in rawPrevious.
func (b *Bone) Persisted() bool {
	v, ok := b.rawPrevious[b.model.primaryKey]
	return ok && v != nil
}

// PrimaryValue returns the primary-key value, which may be nil.
func (b *Bone) PrimaryValue() any {
	return b.raw[b.model.primaryKey]
}

// markPersisted snapshots raw into rawPrevious and records what the
// persistence changed.
func (b *Bone) markPersisted() {
	changes := make(map[string][]any)
	for _, name := range b.model.attrOrder {
		if _, unset := b.rawUnset[name]; unset {
			continue
		}
		if !equalValue(b.raw[name], b.rawPrevious[name]) {
			changes[name] = []any{b.rawPrevious[name], b.raw[name]}
		}
	}
	b.lastChanges = changes
	for name, v := range b.raw {
		b.rawPrevious[name] = v
	}
}

// ToJSON serializes the instance, omitting null attributes. Loaded
// associations serialize recursively.
func (b *Bone) ToJSON() map[string]any {
	out := make(map[string]any)
	for _, name := range b.model.attrOrder {
		if _, unset := b.rawUnset[name]; unset {
			continue
		}
		if v := b.raw[name]; v != nil {
			out[name] = v
		}
	}
	for name, assoc := range b.associations {
		switch t := assoc.(type) {
		case *Bone:
			out[name] = t.ToJSON()
		case Collection:
			items := make([]map[string]any, len(t))
			for i, member := range t {
				items[i] = member.ToJSON()
			}
			out[name] = items
		}
	}
	return out
}

// ToObject serializes the instance including null attributes.
func (b *Bone) ToObject() map[string]any {
	out := make(map[string]any)
	for _, name := range b.model.attrOrder {
		if _, unset := b.rawUnset[name]; unset {
			continue
		}
		out[name] = b.raw[name]
	}
	for name, assoc := range b.associations {
		switch t := assoc.(type) {
		case *Bone:
			out[name] = t.ToObject()
		case Collection:
			items := make([]map[string]any, len(t))
			for i, member := range t {
				items[i] = member.ToObject()
			}
			out[name] = items
		}
	}
	return out
}

// Association returns a hydrated association by name.
func (b *Bone) Association(name string) (any, bool) {
	v, ok := b.associations[name]
	return v, ok
}

func (b *Bone) setAssociation(name string, value any) {
	b.associations[name] = value
}

// equalValue compares attribute values; times compare by instant.
func equalValue(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}
