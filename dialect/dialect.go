// Package dialect provides the database dialect abstraction: SQL
// formatting, quoting and placeholder styles, DDL primitives, schema
// introspection, and the execution primitives over database/sql.
//
// The following dialects are supported:
//
//   - MySQL:    MySQL/MariaDB
//   - Postgres: PostgreSQL
//   - SQLite:   SQLite, including the in-memory variant
package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/grimoiredb/grimoire/stmt"
)

// Dialect name constants.
const (
	MySQL    = "mysql"
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// Dialect is the polymorphic capability set implemented per target
// database. The shared Formatter consults it for everything that varies
// between databases.
type Dialect interface {
	Name() string
	// Quote quotes an identifier: backticks on MySQL, double quotes
	// elsewhere.
	Quote(ident string) string
	// Placeholder renders the i-th (1-based) bind marker.
	Placeholder(i int) string
	// FormatBool renders a boolean literal.
	FormatBool(b bool) string
	// SupportsReturning reports whether mutating statements accept a
	// RETURNING clause.
	SupportsReturning() bool
	// SupportsUpdateLimit reports whether UPDATE/DELETE accept native
	// ORDER BY/LIMIT clauses.
	SupportsUpdateLimit() bool
	// FormatUpsert renders the dialect's INSERT-or-update idiom.
	FormatUpsert(f *Formatter, u *stmt.Upsert) (string, []any, error)
	// ErrorCode extracts a database error code for DriverError, or "".
	ErrorCode(err error) string

	// DDL primitives.
	CreateTableSQL(table string, cols []ColumnDef) string
	DropTableSQL(table string) string
	RenameTableSQL(oldName, newName string) string
	TruncateTableSQL(table string) string
	AddColumnSQL(table string, col ColumnDef) string
	ChangeColumnSQL(table string, col ColumnDef) string
	RemoveColumnSQL(table, column string) string
	RenameColumnSQL(table, oldName, newName string) string
	AddIndexSQL(table string, columns []string, unique bool) string
	RemoveIndexSQL(table, name string) string
	ShowIndexesSQL(table string) string

	// SchemaInfo introspects the named tables.
	SchemaInfo(ctx context.Context, q ExecQuerier, database string, tables ...string) (map[string][]ColumnInfo, error)
}

// ColumnDef describes a column for DDL generation. Type is already
// rendered for the target dialect.
type ColumnDef struct {
	Name          string
	Type          string
	AllowNull     bool
	Default       any
	HasDefault    bool
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	Comment       string
}

// ColumnInfo is one introspected column.
type ColumnInfo struct {
	ColumnName        string
	ColumnType        string
	DataType          string
	DefaultValue      any
	AllowNull         bool
	PrimaryKey        bool
	Unique            bool
	Comment           string
	DatetimePrecision int
}

// IndexInfo is one introspected index.
type IndexInfo struct {
	Name    string
	Columns []string
	Unique  bool
}

// ColumnDDL renders the shared column clause of CREATE/ALTER TABLE.
func ColumnDDL(d Dialect, col ColumnDef) string {
	var sb strings.Builder
	sb.WriteString(d.Quote(col.Name))
	sb.WriteByte(' ')
	sb.WriteString(col.Type)
	if col.AutoIncrement {
		switch d.Name() {
		case MySQL:
			sb.WriteString(" AUTO_INCREMENT")
		case Postgres:
			// rendered via the serial type upstream
		case SQLite:
			// INTEGER PRIMARY KEY autoincrements by itself
		}
	}
	if !col.AllowNull {
		sb.WriteString(" NOT NULL")
	}
	if col.HasDefault && col.Default != nil {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(literalDefault(d, col.Default))
	}
	if col.Comment != "" && d.Name() == MySQL {
		sb.WriteString(fmt.Sprintf(" COMMENT '%s'", escapeString(col.Comment)))
	}
	return sb.String()
}

func literalDefault(d Dialect, v any) string {
	switch t := v.(type) {
	case string:
		return "'" + escapeString(t) + "'"
	case bool:
		return d.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// escapeString doubles single quotes and escapes backslashes so values
// are safe to inline.
func escapeString(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", "''")
}

// CreateTableSQL is the shared CREATE TABLE builder used by dialects.
func CreateTableSQL(d Dialect, table string, cols []ColumnDef) string {
	var defs []string
	var pks []string
	for _, col := range cols {
		defs = append(defs, ColumnDDL(d, col))
		if col.PrimaryKey {
			pks = append(pks, d.Quote(col.Name))
		}
		if col.Unique {
			defs = append(defs, fmt.Sprintf("UNIQUE (%s)", d.Quote(col.Name)))
		}
	}
	if len(pks) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(table), strings.Join(defs, ", "))
}

// AddColumnSQL is the shared ALTER TABLE ... ADD COLUMN builder.
func AddColumnSQL(d Dialect, table string, col ColumnDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), ColumnDDL(d, col))
}

// AddIndexSQL is the shared CREATE INDEX builder. The index name is
// derived from the table and column names.
func AddIndexSQL(d Dialect, table string, columns []string, unique bool) string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}
	name := IndexName(table, columns, unique)
	return fmt.Sprintf("CREATE %s %s ON %s (%s)",
		kind, d.Quote(name), d.Quote(table), strings.Join(quoted, ", "))
}

// IndexName derives the conventional index name for the given columns.
func IndexName(table string, columns []string, unique bool) string {
	prefix := "idx"
	if unique {
		prefix = "uk"
	}
	return prefix + "_" + table + "_" + strings.Join(columns, "_")
}
