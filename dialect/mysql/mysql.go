// Package mysql implements the MySQL family dialect.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/grimoiredb/grimoire/dialect"
	"github.com/grimoiredb/grimoire/stmt"
)

type mysqlDialect struct{}

// New returns the MySQL dialect.
func New() dialect.Dialect { return mysqlDialect{} }

// Open connects to a MySQL database and binds the dialect to it.
func Open(dsn string, opts ...dialect.Option) (*dialect.Driver, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return dialect.NewDriver(New(), db, opts...), nil
}

// Name implements dialect.Dialect.
func (mysqlDialect) Name() string { return dialect.MySQL }

// Quote implements dialect.Dialect with backticks.
func (mysqlDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// Placeholder implements dialect.Dialect.
func (mysqlDialect) Placeholder(int) string { return "?" }

// FormatBool implements dialect.Dialect; MySQL stores booleans as
// TINYINT(1).
func (mysqlDialect) FormatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// SupportsReturning implements dialect.Dialect. MySQL relies on
// insertId instead.
func (mysqlDialect) SupportsReturning() bool { return false }

// SupportsUpdateLimit implements dialect.Dialect.
func (mysqlDialect) SupportsUpdateLimit() bool { return true }

// FormatUpsert renders INSERT ... ON DUPLICATE KEY UPDATE. When
// RecoverPrimaryKey is set, whether or not the caller supplied the key,
// the LAST_INSERT_ID trick makes the updated row's key readable through
// insertId.
func (d mysqlDialect) FormatUpsert(f *dialect.Formatter, u *stmt.Upsert) (string, []any, error) {
	body, values, err := f.InsertSQL(&u.Insert)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString(body)
	sb.WriteString(" ON DUPLICATE KEY UPDATE ")
	first := true
	if u.RecoverPrimaryKey != "" {
		pk := d.Quote(u.RecoverPrimaryKey)
		fmt.Fprintf(&sb, "%s = LAST_INSERT_ID(%s)", pk, pk)
		first = false
	}
	for _, col := range u.UpdateColumns {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		quoted := d.Quote(col)
		fmt.Fprintf(&sb, "%s = VALUES(%s)", quoted, quoted)
	}
	return sb.String(), values, nil
}

// ErrorCode implements dialect.Dialect.
func (mysqlDialect) ErrorCode(err error) string {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return strconv.Itoa(int(me.Number))
	}
	return ""
}

// CreateTableSQL implements dialect.Dialect.
func (d mysqlDialect) CreateTableSQL(table string, cols []dialect.ColumnDef) string {
	return dialect.CreateTableSQL(d, table, cols)
}

// DropTableSQL implements dialect.Dialect.
func (d mysqlDialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.Quote(table)
}

// RenameTableSQL implements dialect.Dialect.
func (d mysqlDialect) RenameTableSQL(oldName, newName string) string {
	return fmt.Sprintf("RENAME TABLE %s TO %s", d.Quote(oldName), d.Quote(newName))
}

// TruncateTableSQL implements dialect.Dialect.
func (d mysqlDialect) TruncateTableSQL(table string) string {
	return "TRUNCATE TABLE " + d.Quote(table)
}

// AddColumnSQL implements dialect.Dialect.
func (d mysqlDialect) AddColumnSQL(table string, col dialect.ColumnDef) string {
	return dialect.AddColumnSQL(d, table, col)
}

// ChangeColumnSQL implements dialect.Dialect.
func (d mysqlDialect) ChangeColumnSQL(table string, col dialect.ColumnDef) string {
	base := dialect.AddColumnSQL(d, table, col)
	return strings.Replace(base, "ADD COLUMN", "MODIFY COLUMN", 1)
}

// RemoveColumnSQL implements dialect.Dialect.
func (d mysqlDialect) RemoveColumnSQL(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Quote(table), d.Quote(column))
}

// RenameColumnSQL implements dialect.Dialect.
func (d mysqlDialect) RenameColumnSQL(table, oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		d.Quote(table), d.Quote(oldName), d.Quote(newName))
}

// AddIndexSQL implements dialect.Dialect.
func (d mysqlDialect) AddIndexSQL(table string, columns []string, unique bool) string {
	return dialect.AddIndexSQL(d, table, columns, unique)
}

// RemoveIndexSQL implements dialect.Dialect.
func (d mysqlDialect) RemoveIndexSQL(table, name string) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", d.Quote(name), d.Quote(table))
}

// ShowIndexesSQL implements dialect.Dialect.
func (d mysqlDialect) ShowIndexesSQL(table string) string {
	return "SHOW INDEX FROM " + d.Quote(table)
}

// SchemaInfo implements dialect.Dialect by querying
// information_schema.columns.
func (d mysqlDialect) SchemaInfo(ctx context.Context, q dialect.ExecQuerier, database string, tables ...string) (map[string][]dialect.ColumnInfo, error) {
	if len(tables) == 0 {
		return map[string][]dialect.ColumnInfo{}, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(tables)), ", ")
	query := "SELECT table_name, column_name, column_type, data_type, column_default, " +
		"is_nullable, column_key, column_comment, datetime_precision " +
		"FROM information_schema.columns WHERE table_schema = ? AND table_name IN (" + marks + ") " +
		"ORDER BY table_name, ordinal_position"
	values := make([]any, 0, len(tables)+1)
	values = append(values, database)
	for _, t := range tables {
		values = append(values, t)
	}
	result, err := q.Query(ctx, query, values, &dialect.QueryOptions{Command: "ddl"})
	if err != nil {
		return nil, err
	}
	info := make(map[string][]dialect.ColumnInfo, len(tables))
	for _, row := range result.Rows {
		table := dialect.ToString(row[0])
		key := dialect.ToString(row[6])
		col := dialect.ColumnInfo{
			ColumnName:        dialect.ToString(row[1]),
			ColumnType:        dialect.ToString(row[2]),
			DataType:          dialect.ToString(row[3]),
			AllowNull:         strings.EqualFold(dialect.ToString(row[5]), "YES"),
			PrimaryKey:        key == "PRI",
			Unique:            key == "PRI" || key == "UNI",
			Comment:           dialect.ToString(row[7]),
			DatetimePrecision: dialect.ToInt(row[8]),
		}
		if row[4] != nil {
			col.DefaultValue = dialect.ToString(row[4])
		}
		info[table] = append(info[table], col)
	}
	return info, nil
}
