// Package types defines the attribute data types recognized by the
// entity runtime, their SQL renderings per dialect, and the codecs that
// move values between driver rows and runtime representations.
package types

import (
	"fmt"
	"strings"
)

// Dialect name constants accepted by SQLType. They match the dialect
// package's constants; types keeps its own copies so it stays a leaf.
const (
	MySQL    = "mysql"
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// TextSize selects the storage class of a TEXT column.
type TextSize string

// Recognized TEXT sizes.
const (
	TextDefault TextSize = ""
	TextTiny    TextSize = "tiny"
	TextMedium  TextSize = "medium"
	TextLong    TextSize = "long"
)

// DataType is implemented by every attribute type. Cast decodes a raw
// driver value into the runtime representation; Uncast encodes a
// runtime value for binding. Both are total on their domain and report
// an invalid value error on coercion failure.
type DataType interface {
	// TypeName is the class-level tag used for reflection, e.g. "BIGINT".
	TypeName() string
	// SQLType renders the column type for the given dialect.
	SQLType(dialect string) string
	Cast(v any) (any, error)
	Uncast(v any) (any, error)
}

// Virtual marks attributes that are never persisted.
type VirtualType struct{}

// TypeName implements DataType.
func (VirtualType) TypeName() string { return "VIRTUAL" }

// SQLType implements DataType. Virtual attributes render no column.
func (VirtualType) SQLType(string) string { return "" }

// Cast implements DataType.
func (VirtualType) Cast(v any) (any, error) { return v, nil }

// Uncast implements DataType.
func (VirtualType) Uncast(v any) (any, error) { return v, nil }

// Integer is the INTEGER family with an optional display width.
type Integer struct {
	Width    int
	Unsigned bool
}

// TypeName implements DataType.
func (Integer) TypeName() string { return "INTEGER" }

// SQLType implements DataType.
func (t Integer) SQLType(dialect string) string {
	s := "INTEGER"
	if t.Width > 0 && dialect == MySQL {
		s = fmt.Sprintf("INTEGER(%d)", t.Width)
	}
	if t.Unsigned && dialect == MySQL {
		s += " UNSIGNED"
	}
	return s
}

// Cast implements DataType.
func (Integer) Cast(v any) (any, error) { return castInt(v) }

// Uncast implements DataType.
func (Integer) Uncast(v any) (any, error) { return castInt(v) }

// BigInt is a 64-bit integer, primary-key friendly.
type BigInt struct {
	Unsigned bool
}

// TypeName implements DataType.
func (BigInt) TypeName() string { return "BIGINT" }

// SQLType implements DataType.
func (t BigInt) SQLType(dialect string) string {
	if t.Unsigned && dialect == MySQL {
		return "BIGINT UNSIGNED"
	}
	return "BIGINT"
}

// Cast implements DataType.
func (BigInt) Cast(v any) (any, error) { return castInt(v) }

// Uncast implements DataType.
func (BigInt) Uncast(v any) (any, error) { return castInt(v) }

// Decimal is DECIMAL(precision, scale).
type Decimal struct {
	Precision int
	Scale     int
}

// TypeName implements DataType.
func (Decimal) TypeName() string { return "DECIMAL" }

// SQLType implements DataType.
func (t Decimal) SQLType(string) string {
	if t.Precision > 0 {
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	}
	return "DECIMAL"
}

// Cast implements DataType.
func (Decimal) Cast(v any) (any, error) { return castFloat(v) }

// Uncast implements DataType.
func (Decimal) Uncast(v any) (any, error) { return castFloat(v) }

// String is VARCHAR(n); n defaults to 255.
type String struct {
	Length int
}

// TypeName implements DataType.
func (String) TypeName() string { return "STRING" }

// SQLType implements DataType.
func (t String) SQLType(string) string {
	n := t.Length
	if n <= 0 {
		n = 255
	}
	return fmt.Sprintf("VARCHAR(%d)", n)
}

// Cast implements DataType.
func (String) Cast(v any) (any, error) { return castString(v) }

// Uncast implements DataType.
func (String) Uncast(v any) (any, error) { return castString(v) }

// Text is TEXT with an optional size class.
type Text struct {
	Size TextSize
}

// TypeName implements DataType.
func (Text) TypeName() string { return "TEXT" }

// SQLType implements DataType.
func (t Text) SQLType(dialect string) string {
	if dialect != MySQL {
		return "TEXT"
	}
	switch t.Size {
	case TextTiny:
		return "TINYTEXT"
	case TextMedium:
		return "MEDIUMTEXT"
	case TextLong:
		return "LONGTEXT"
	}
	return "TEXT"
}

// Cast implements DataType.
func (Text) Cast(v any) (any, error) { return castString(v) }

// Uncast implements DataType.
func (Text) Uncast(v any) (any, error) { return castString(v) }

// Boolean renders as BOOLEAN, or TINYINT(1) on MySQL.
type Boolean struct{}

// TypeName implements DataType.
func (Boolean) TypeName() string { return "BOOLEAN" }

// SQLType implements DataType.
func (Boolean) SQLType(dialect string) string {
	if dialect == MySQL {
		return "TINYINT(1)"
	}
	return "BOOLEAN"
}

// Cast implements DataType.
func (Boolean) Cast(v any) (any, error) { return castBool(v) }

// Uncast implements DataType.
func (Boolean) Uncast(v any) (any, error) { return castBool(v) }

// Date is DATETIME(p) / TIMESTAMP(p) with subsecond precision 0..6.
type Date struct {
	Precision int
}

// TypeName implements DataType.
func (Date) TypeName() string { return "DATE" }

// SQLType implements DataType.
func (t Date) SQLType(dialect string) string {
	p := t.Precision
	switch dialect {
	case Postgres:
		if p > 0 {
			return fmt.Sprintf("TIMESTAMP(%d)", p)
		}
		return "TIMESTAMP"
	case SQLite:
		return "DATETIME"
	}
	if p > 0 {
		return fmt.Sprintf("DATETIME(%d)", p)
	}
	return "DATETIME"
}

// Cast implements DataType.
func (t Date) Cast(v any) (any, error) { return castTime(v) }

// Uncast implements DataType.
func (t Date) Uncast(v any) (any, error) { return castTime(v) }

// JSON is stored as TEXT and parsed on access.
type JSON struct{}

// TypeName implements DataType.
func (JSON) TypeName() string { return "JSON" }

// SQLType implements DataType.
func (JSON) SQLType(string) string { return "TEXT" }

// Cast implements DataType.
func (JSON) Cast(v any) (any, error) { return castJSON(v) }

// Uncast implements DataType.
func (JSON) Uncast(v any) (any, error) { return uncastJSON(v) }

// JSONB uses the binary JSON type where available, TEXT elsewhere.
type JSONB struct{}

// TypeName implements DataType.
func (JSONB) TypeName() string { return "JSONB" }

// SQLType implements DataType.
func (JSONB) SQLType(dialect string) string {
	switch dialect {
	case Postgres:
		return "JSONB"
	case MySQL:
		return "JSON"
	}
	return "TEXT"
}

// Cast implements DataType.
func (JSONB) Cast(v any) (any, error) { return castJSON(v) }

// Uncast implements DataType.
func (JSONB) Uncast(v any) (any, error) { return uncastJSON(v) }

// Binary is fixed-length binary; bytea on Postgres.
type Binary struct {
	Length int
}

// TypeName implements DataType.
func (Binary) TypeName() string { return "BINARY" }

// SQLType implements DataType.
func (t Binary) SQLType(dialect string) string {
	if dialect == Postgres {
		return "BYTEA"
	}
	if t.Length > 0 {
		return fmt.Sprintf("BINARY(%d)", t.Length)
	}
	return "BINARY"
}

// Cast implements DataType.
func (Binary) Cast(v any) (any, error) { return castBytes(v) }

// Uncast implements DataType.
func (Binary) Uncast(v any) (any, error) { return castBytes(v) }

// Varbinary is variable-length binary; bytea on Postgres.
type Varbinary struct {
	Length int
}

// TypeName implements DataType.
func (Varbinary) TypeName() string { return "VARBINARY" }

// SQLType implements DataType.
func (t Varbinary) SQLType(dialect string) string {
	if dialect == Postgres {
		return "BYTEA"
	}
	if t.Length > 0 {
		return fmt.Sprintf("VARBINARY(%d)", t.Length)
	}
	return "VARBINARY"
}

// Cast implements DataType.
func (Varbinary) Cast(v any) (any, error) { return castBytes(v) }

// Uncast implements DataType.
func (Varbinary) Uncast(v any) (any, error) { return castBytes(v) }

// Blob is large binary; bytea on Postgres.
type Blob struct{}

// TypeName implements DataType.
func (Blob) TypeName() string { return "BLOB" }

// SQLType implements DataType.
func (Blob) SQLType(dialect string) string {
	if dialect == Postgres {
		return "BYTEA"
	}
	return "BLOB"
}

// Cast implements DataType.
func (Blob) Cast(v any) (any, error) { return castBytes(v) }

// Uncast implements DataType.
func (Blob) Uncast(v any) (any, error) { return castBytes(v) }

// Reflect looks a data type up by its class-level tag, e.g.
// Reflect("DECIMAL(10,2)") or Reflect("VARCHAR(64)").
func Reflect(tag string) (DataType, error) {
	name := tag
	var args []int
	if i := strings.IndexByte(tag, '('); i >= 0 && strings.HasSuffix(tag, ")") {
		name = tag[:i]
		for _, part := range strings.Split(tag[i+1:len(tag)-1], ",") {
			var n int
			if _, err := fmt.Sscanf(strings.TrimSpace(part), "%d", &n); err != nil {
				return nil, fmt.Errorf("invalid type %q", tag)
			}
			args = append(args, n)
		}
	}
	arg := func(i int) int {
		if i < len(args) {
			return args[i]
		}
		return 0
	}
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "INTEGER", "INT":
		return Integer{Width: arg(0)}, nil
	case "BIGINT":
		return BigInt{}, nil
	case "DECIMAL", "NUMERIC":
		return Decimal{Precision: arg(0), Scale: arg(1)}, nil
	case "STRING", "VARCHAR":
		return String{Length: arg(0)}, nil
	case "TEXT":
		return Text{}, nil
	case "TINYTEXT":
		return Text{Size: TextTiny}, nil
	case "MEDIUMTEXT":
		return Text{Size: TextMedium}, nil
	case "LONGTEXT":
		return Text{Size: TextLong}, nil
	case "BOOLEAN", "TINYINT":
		return Boolean{}, nil
	case "DATE", "DATETIME", "TIMESTAMP":
		return Date{Precision: arg(0)}, nil
	case "JSON":
		return JSON{}, nil
	case "JSONB":
		return JSONB{}, nil
	case "BINARY":
		return Binary{Length: arg(0)}, nil
	case "VARBINARY":
		return Varbinary{Length: arg(0)}, nil
	case "BLOB", "BYTEA":
		return Blob{}, nil
	case "VIRTUAL":
		return VirtualType{}, nil
	}
	return nil, fmt.Errorf("invalid type %q", tag)
}
