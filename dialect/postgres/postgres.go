// Package postgres implements the PostgreSQL dialect.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/grimoiredb/grimoire/dialect"
	"github.com/grimoiredb/grimoire/stmt"
)

type pgDialect struct{}

// New returns the PostgreSQL dialect.
func New() dialect.Dialect { return pgDialect{} }

// Open connects to a PostgreSQL database and binds the dialect to it.
func Open(dsn string, opts ...dialect.Option) (*dialect.Driver, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return dialect.NewDriver(New(), db, opts...), nil
}

// Name implements dialect.Dialect.
func (pgDialect) Name() string { return dialect.Postgres }

// Quote implements dialect.Dialect with double quotes.
func (pgDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Placeholder implements dialect.Dialect with numbered markers.
func (pgDialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

// FormatBool implements dialect.Dialect; PostgreSQL requires true/false.
func (pgDialect) FormatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// SupportsReturning implements dialect.Dialect.
func (pgDialect) SupportsReturning() bool { return true }

// SupportsUpdateLimit implements dialect.Dialect. UPDATE pagination is
// rewritten through a primary-key subquery.
func (pgDialect) SupportsUpdateLimit() bool { return false }

// FormatUpsert renders INSERT ... ON CONFLICT (...) DO UPDATE SET
// col = EXCLUDED.col, with RETURNING when requested.
func (d pgDialect) FormatUpsert(f *dialect.Formatter, u *stmt.Upsert) (string, []any, error) {
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
	for i, col := range u.Returning {
		if i == 0 {
			sb.WriteString(" RETURNING ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(d.Quote(col))
	}
	return sb.String(), values, nil
}

// ErrorCode implements dialect.Dialect.
func (pgDialect) ErrorCode(err error) string {
	var pe *pq.Error
	if errors.As(err, &pe) {
		return string(pe.Code)
	}
	return ""
}

// CreateTableSQL implements dialect.Dialect.
func (d pgDialect) CreateTableSQL(table string, cols []dialect.ColumnDef) string {
	return dialect.CreateTableSQL(d, table, cols)
}

// DropTableSQL implements dialect.Dialect.
func (d pgDialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.Quote(table)
}

// RenameTableSQL implements dialect.Dialect.
func (d pgDialect) RenameTableSQL(oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Quote(oldName), d.Quote(newName))
}

// TruncateTableSQL implements dialect.Dialect.
func (d pgDialect) TruncateTableSQL(table string) string {
	return "TRUNCATE TABLE " + d.Quote(table) + " RESTART IDENTITY"
}

// AddColumnSQL implements dialect.Dialect.
func (d pgDialect) AddColumnSQL(table string, col dialect.ColumnDef) string {
	return dialect.AddColumnSQL(d, table, col)
}

// ChangeColumnSQL implements dialect.Dialect. Type and nullability are
// altered in one statement; the column default is left unchanged.
func (d pgDialect) ChangeColumnSQL(table string, col dialect.ColumnDef) string {
	quoted := d.Quote(col.Name)
	clauses := []string{fmt.Sprintf("ALTER COLUMN %s TYPE %s", quoted, col.Type)}
	if col.AllowNull {
		clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", quoted))
	} else {
		clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", quoted))
	}
	return fmt.Sprintf("ALTER TABLE %s %s", d.Quote(table), strings.Join(clauses, ", "))
}

// RemoveColumnSQL implements dialect.Dialect.
func (d pgDialect) RemoveColumnSQL(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Quote(table), d.Quote(column))
}

// RenameColumnSQL implements dialect.Dialect.
func (d pgDialect) RenameColumnSQL(table, oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		d.Quote(table), d.Quote(oldName), d.Quote(newName))
}

// AddIndexSQL implements dialect.Dialect.
func (d pgDialect) AddIndexSQL(table string, columns []string, unique bool) string {
	return dialect.AddIndexSQL(d, table, columns, unique)
}

// RemoveIndexSQL implements dialect.Dialect.
func (d pgDialect) RemoveIndexSQL(_, name string) string {
	return "DROP INDEX IF EXISTS " + d.Quote(name)
}

// ShowIndexesSQL implements dialect.Dialect.
func (d pgDialect) ShowIndexesSQL(table string) string {
	return fmt.Sprintf("SELECT indexname, indexdef FROM pg_indexes WHERE tablename = '%s'", table)
}

// SchemaInfo implements dialect.Dialect by querying
// information_schema.
func (d pgDialect) SchemaInfo(ctx context.Context, q dialect.ExecQuerier, database string, tables ...string) (map[string][]dialect.ColumnInfo, error) {
	if len(tables) == 0 {
		return map[string][]dialect.ColumnInfo{}, nil
	}
	marks := make([]string, len(tables))
	values := make([]any, 0, len(tables)+1)
	values = append(values, database)
	for i, t := range tables {
		marks[i] = fmt.Sprintf("$%d", i+2)
		values = append(values, t)
	}
	query := "SELECT table_name, column_name, data_type, column_default, is_nullable, datetime_precision " +
		"FROM information_schema.columns WHERE table_catalog = $1 AND table_name IN (" +
		strings.Join(marks, ", ") + ") ORDER BY table_name, ordinal_position"
	result, err := q.Query(ctx, query, values, &dialect.QueryOptions{Command: "ddl"})
	if err != nil {
		return nil, err
	}
	info := make(map[string][]dialect.ColumnInfo, len(tables))
	for _, row := range result.Rows {
		table := dialect.ToString(row[0])
		col := dialect.ColumnInfo{
			ColumnName:        dialect.ToString(row[1]),
			ColumnType:        dialect.ToString(row[2]),
			DataType:          dialect.ToString(row[2]),
			AllowNull:         strings.EqualFold(dialect.ToString(row[4]), "YES"),
			DatetimePrecision: dialect.ToInt(row[5]),
		}
		if row[3] != nil {
			col.DefaultValue = dialect.ToString(row[3])
		}
		info[table] = append(info[table], col)
	}
	if err := d.markKeys(ctx, q, tables, info); err != nil {
		return nil, err
	}
	return info, nil
}

// markKeys flags primary-key and unique columns from the constraint
// catalogs.
func (d pgDialect) markKeys(ctx context.Context, q dialect.ExecQuerier, tables []string, info map[string][]dialect.ColumnInfo) error {
	marks := make([]string, len(tables))
	values := make([]any, len(tables))
	for i, t := range tables {
		marks[i] = fmt.Sprintf("$%d", i+1)
		values[i] = t
	}
	query := "SELECT tc.table_name, kcu.column_name, tc.constraint_type " +
		"FROM information_schema.table_constraints tc " +
		"JOIN information_schema.key_column_usage kcu ON kcu.constraint_name = tc.constraint_name " +
		"WHERE tc.table_name IN (" + strings.Join(marks, ", ") + ") " +
		"AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')"
	result, err := q.Query(ctx, query, values, &dialect.QueryOptions{Command: "ddl"})
	if err != nil {
		return err
	}
	for _, row := range result.Rows {
		table := dialect.ToString(row[0])
		column := dialect.ToString(row[1])
		kind := dialect.ToString(row[2])
		cols := info[table]
		for i := range cols {
			if cols[i].ColumnName != column {
				continue
			}
			cols[i].Unique = true
			if kind == "PRIMARY KEY" {
				cols[i].PrimaryKey = true
			}
		}
	}
	return nil
}
