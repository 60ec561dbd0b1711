package grimoire

import (
	"fmt"

	"github.com/go-openapi/inflect"
)

// AssociationKind discriminates the registered relation shapes.
type AssociationKind uint8

// Association kinds.
const (
	HasOne AssociationKind = iota + 1
	HasMany
	BelongsTo
)

// AssociationOptions tune a registered association.
type AssociationOptions struct {
	// ForeignKey overrides the derived foreign-key attribute.
	ForeignKey string
	// Where is a static predicate conjoined to the join condition,
	// e.g. a discriminator on a polymorphic join model.
	Where Values
	// OrderBy orders hydrated hasMany children.
	OrderBy string
	// Through routes a hasMany through the named association of the
	// join model.
	Through string
}

// Association is a registered relation descriptor. Registration only
// records it; joins materialize on With/Include.
type Association struct {
	Name       string
	Kind       AssociationKind
	Source     *Model
	Target     *Model
	ForeignKey string
	Where      Values
	OrderBy    string
	// Through names a previously registered hasMany/hasOne whose
	// target is the join model; the association's Target hangs off
	// that join.
	Through string
}

func (m *Model) addAssociation(a *Association) error {
	if _, ok := m.associations[a.Name]; ok {
		return &DefinitionError{Model: m.name, Message: fmt.Sprintf("duplicate association %q", a.Name)}
	}
	m.associations[a.Name] = a
	return nil
}

// HasOne registers a one-to-one association where the target holds the
// foreign key. The default foreign key is the camelCased source name
// suffixed with Id, e.g. Post -> postId.
func (m *Model) HasOne(name string, target *Model, opts ...AssociationOptions) error {
	opt := firstOpt(opts)
	fk := opt.ForeignKey
	if fk == "" {
		fk = inflect.Camelize(m.name) + "Id"
		fk = lowerFirst(fk)
	}
	return m.addAssociation(&Association{
		Name: name, Kind: HasOne, Source: m, Target: target,
		ForeignKey: fk, Where: opt.Where, OrderBy: opt.OrderBy,
	})
}

// HasMany registers a one-to-many association. With Through it routes
// through a join model registered under the named association.
func (m *Model) HasMany(name string, target *Model, opts ...AssociationOptions) error {
	opt := firstOpt(opts)
	fk := opt.ForeignKey
	if fk == "" && opt.Through == "" {
		fk = lowerFirst(inflect.Camelize(m.name)) + "Id"
	}
	return m.addAssociation(&Association{
		Name: name, Kind: HasMany, Source: m, Target: target,
		ForeignKey: fk, Where: opt.Where, OrderBy: opt.OrderBy, Through: opt.Through,
	})
}

// BelongsTo registers the owning side of a relation: the source holds
// the foreign key.
func (m *Model) BelongsTo(name string, target *Model, opts ...AssociationOptions) error {
	opt := firstOpt(opts)
	fk := opt.ForeignKey
	if fk == "" {
		fk = lowerFirst(inflect.Camelize(target.name)) + "Id"
	}
	return m.addAssociation(&Association{
		Name: name, Kind: BelongsTo, Source: m, Target: target,
		ForeignKey: fk, Where: opt.Where, OrderBy: opt.OrderBy,
	})
}

// Association returns the named association, or nil.
func (m *Model) Association(name string) *Association {
	return m.associations[name]
}

func firstOpt(opts []AssociationOptions) AssociationOptions {
	if len(opts) > 0 {
		return opts[0]
	}
	return AssociationOptions{}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
