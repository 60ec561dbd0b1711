// Package field provides fluent builders for attribute descriptors,
// the declarative entity description consumed by the entity runtime.
//
//	field.BigInt("id").PrimaryKey().AutoIncrement()
//	field.String("title").Size(255)
//	field.Date("createdAt").ColumnName("gmt_create")
package field

import (
	"github.com/go-openapi/inflect"

	"github.com/grimoiredb/grimoire/types"
)

// Descriptor is the resolved attribute metadata.
type Descriptor struct {
	Name          string
	ColumnName    string
	Type          types.DataType
	AllowNull     bool
	Default       any
	HasDefault    bool
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	Virtual       bool
	Comment       string
}

// Builder accumulates descriptor settings; Descriptor finalizes it.
type Builder struct {
	desc Descriptor
}

func newBuilder(name string, t types.DataType) *Builder {
	return &Builder{desc: Descriptor{
		Name:      name,
		Type:      t,
		AllowNull: true,
	}}
}

// Int declares an INTEGER attribute.
func Int(name string) *Builder { return newBuilder(name, types.Integer{}) }

// BigInt declares a BIGINT attribute.
func BigInt(name string) *Builder { return newBuilder(name, types.BigInt{}) }

// Decimal declares a DECIMAL(precision, scale) attribute.
func Decimal(name string, precision, scale int) *Builder {
	return newBuilder(name, types.Decimal{Precision: precision, Scale: scale})
}

// String declares a VARCHAR attribute with the default length of 255.
func String(name string) *Builder { return newBuilder(name, types.String{}) }

// Text declares a TEXT attribute.
func Text(name string) *Builder { return newBuilder(name, types.Text{}) }

// Bool declares a BOOLEAN attribute.
func Bool(name string) *Builder { return newBuilder(name, types.Boolean{}) }

// Date declares a DATETIME attribute with millisecond precision.
func Date(name string) *Builder { return newBuilder(name, types.Date{Precision: 3}) }

// JSON declares a JSON attribute.
func JSON(name string) *Builder { return newBuilder(name, types.JSON{}) }

// JSONB declares a JSONB attribute.
func JSONB(name string) *Builder { return newBuilder(name, types.JSONB{}) }

// Binary declares a BINARY attribute.
func Binary(name string) *Builder { return newBuilder(name, types.Binary{}) }

// Blob declares a BLOB attribute.
func Blob(name string) *Builder { return newBuilder(name, types.Blob{}) }

// UUID declares a VARCHAR(36) attribute holding a canonical UUID.
func UUID(name string) *Builder { return newBuilder(name, types.String{Length: 36}) }

// Virtual declares an attribute that is never persisted.
func Virtual(name string) *Builder {
	b := newBuilder(name, types.VirtualType{})
	b.desc.Virtual = true
	return b
}

// Of declares an attribute with an explicit data type.
func Of(name string, t types.DataType) *Builder { return newBuilder(name, t) }

// ColumnName overrides the snake_cased default column name.
func (b *Builder) ColumnName(name string) *Builder {
	b.desc.ColumnName = name
	return b
}

// Size adjusts the length of VARCHAR, BINARY and VARBINARY types. Other
// types, TEXT included, are left unchanged.
func (b *Builder) Size(n int) *Builder {
	switch t := b.desc.Type.(type) {
	case types.String:
		t.Length = n
		b.desc.Type = t
	case types.Binary:
		t.Length = n
		b.desc.Type = t
	case types.Varbinary:
		t.Length = n
		b.desc.Type = t
	}
	return b
}

// Precision adjusts the subsecond precision of DATE types.
func (b *Builder) Precision(p int) *Builder {
	if t, ok := b.desc.Type.(types.Date); ok {
		t.Precision = p
		b.desc.Type = t
	}
	return b
}

// NotNull forbids NULL.
func (b *Builder) NotNull() *Builder {
	b.desc.AllowNull = false
	return b
}

// Default sets the column default.
func (b *Builder) Default(v any) *Builder {
	b.desc.Default = v
	b.desc.HasDefault = true
	return b
}

// PrimaryKey marks the attribute as the primary key. Primary keys do
// not allow NULL.
func (b *Builder) PrimaryKey() *Builder {
	b.desc.PrimaryKey = true
	b.desc.AllowNull = false
	return b
}

// AutoIncrement marks the attribute as auto-incremented.
func (b *Builder) AutoIncrement() *Builder {
	b.desc.AutoIncrement = true
	return b
}

// Unique adds a unique constraint.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// Comment attaches a column comment.
func (b *Builder) Comment(s string) *Builder {
	b.desc.Comment = s
	return b
}

// Descriptor finalizes the builder. The column name defaults to the
// snake_cased attribute name.
func (b *Builder) Descriptor() *Descriptor {
	desc := b.desc
	if desc.ColumnName == "" {
		desc.ColumnName = inflect.Underscore(desc.Name)
	}
	return &desc
}
