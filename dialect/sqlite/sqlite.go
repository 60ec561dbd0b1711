// Package sqlite implements the SQLite family dialect, including the
// in-memory variant, over the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sqlite3 "modernc.org/sqlite"

	"github.com/grimoiredb/grimoire/dialect"
	"github.com/grimoiredb/grimoire/stmt"
)

type sqliteDialect struct{}

// New returns the SQLite dialect.
func New() dialect.Dialect { return sqliteDialect{} }

// Open opens a SQLite database file and binds the dialect to it.
// Use ":memory:" for the in-memory variant.
func Open(dsn string, opts ...dialect.Option) (*dialect.Driver, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return dialect.NewDriver(New(), db, opts...), nil
}

// Name implements dialect.Dialect.
func (sqliteDialect) Name() string { return dialect.SQLite }

// Quote implements dialect.Dialect with double quotes.
func (sqliteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Placeholder implements dialect.Dialect.
func (sqliteDialect) Placeholder(int) string { return "?" }

// FormatBool implements dialect.Dialect.
func (sqliteDialect) FormatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// SupportsReturning implements dialect.Dialect. SQLite exposes
// last_insert_rowid per connection instead.
func (sqliteDialect) SupportsReturning() bool { return false }

// SupportsUpdateLimit implements dialect.Dialect. Stock builds lack
// UPDATE ... LIMIT.
func (sqliteDialect) SupportsUpdateLimit() bool { return false }

// FormatUpsert renders INSERT ... ON CONFLICT (...) DO UPDATE SET
// col = EXCLUDED.col.
func (d sqliteDialect) FormatUpsert(f *dialect.Formatter, u *stmt.Upsert) (string, []any, error) {
	body, values, err := f.InsertSQL(&u.Insert)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString(body)
	sb.WriteString(" ON CONFLICT (")
	for i, col := range u.ConflictTargets {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.Quote(col))
	}
	sb.WriteString(") DO UPDATE SET ")
	for i, col := range u.UpdateColumns {
		if i > 0 {
			sb.WriteString(", ")
		}
		quoted := d.Quote(col)
		fmt.Fprintf(&sb, "%s = EXCLUDED.%s", quoted, quoted)
	}
	return sb.String(), values, nil
}

// ErrorCode implements dialect.Dialect.
func (sqliteDialect) ErrorCode(err error) string {
	var se *sqlite3.Error
	if errors.As(err, &se) {
		return strconv.Itoa(se.Code())
	}
	return ""
}

// CreateTableSQL implements dialect.Dialect. Auto-incremented keys
// need the exact INTEGER PRIMARY KEY spelling to alias the rowid.
func (d sqliteDialect) CreateTableSQL(table string, cols []dialect.ColumnDef) string {
	var defs []string
	var pks []string
	for _, col := range cols {
		if col.PrimaryKey && col.AutoIncrement {
			defs = append(defs, d.Quote(col.Name)+" INTEGER PRIMARY KEY")
			continue
		}
		defs = append(defs, dialect.ColumnDDL(d, col))
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

// DropTableSQL implements dialect.Dialect.
func (d sqliteDialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.Quote(table)
}

// RenameTableSQL implements dialect.Dialect.
func (d sqliteDialect) RenameTableSQL(oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Quote(oldName), d.Quote(newName))
}

// TruncateTableSQL implements dialect.Dialect. SQLite has no TRUNCATE;
// an unfiltered DELETE serves.
func (d sqliteDialect) TruncateTableSQL(table string) string {
	return "DELETE FROM " + d.Quote(table)
}

// AddColumnSQL implements dialect.Dialect.
func (d sqliteDialect) AddColumnSQL(table string, col dialect.ColumnDef) string {
	return dialect.AddColumnSQL(d, table, col)
}

// ChangeColumnSQL implements dialect.Dialect. SQLite cannot alter a
// column in place; callers rebuild the table instead.
func (sqliteDialect) ChangeColumnSQL(string, dialect.ColumnDef) string { return "" }

// RemoveColumnSQL implements dialect.Dialect.
func (d sqliteDialect) RemoveColumnSQL(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Quote(table), d.Quote(column))
}

// RenameColumnSQL implements dialect.Dialect.
func (d sqliteDialect) RenameColumnSQL(table, oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		d.Quote(table), d.Quote(oldName), d.Quote(newName))
}

// AddIndexSQL implements dialect.Dialect.
func (d sqliteDialect) AddIndexSQL(table string, columns []string, unique bool) string {
	return dialect.AddIndexSQL(d, table, columns, unique)
}

// RemoveIndexSQL implements dialect.Dialect.
func (d sqliteDialect) RemoveIndexSQL(_, name string) string {
	return "DROP INDEX IF EXISTS " + d.Quote(name)
}

// ShowIndexesSQL implements dialect.Dialect.
func (sqliteDialect) ShowIndexesSQL(table string) string {
	return fmt.Sprintf("PRAGMA index_list('%s')", table)
}

// SchemaInfo implements dialect.Dialect through PRAGMA table_info.
func (sqliteDialect) SchemaInfo(ctx context.Context, q dialect.ExecQuerier, _ string, tables ...string) (map[string][]dialect.ColumnInfo, error) {
	info := make(map[string][]dialect.ColumnInfo, len(tables))
	for _, table := range tables {
		query := fmt.Sprintf("PRAGMA table_info('%s')", table)
		result, err := q.Query(ctx, query, nil, &dialect.QueryOptions{Command: "ddl"})
		if err != nil {
			return nil, err
		}
		// cid, name, type, notnull, dflt_value, pk
		for _, row := range result.Rows {
			col := dialect.ColumnInfo{
				ColumnName: dialect.ToString(row[1]),
				ColumnType: dialect.ToString(row[2]),
				DataType:   dialect.ToString(row[2]),
				AllowNull:  dialect.ToInt(row[3]) == 0,
				PrimaryKey: dialect.ToInt(row[5]) > 0,
			}
			col.Unique = col.PrimaryKey
			if row[4] != nil {
				col.DefaultValue = dialect.ToString(row[4])
			}
			info[table] = append(info[table], col)
		}
	}
	return info, nil
}
