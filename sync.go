package grimoire

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/grimoiredb/grimoire/dialect"
	"github.com/grimoiredb/grimoire/field"
)

// SyncOptions tune schema synchronization. The default adds missing
// tables and columns and never drops or alters existing ones.
type SyncOptions struct {
	// Force drops and recreates the table.
	Force bool
	// Alter permits column changes and removals.
	Alter bool
}

// columnDef renders an attribute descriptor for DDL against the given
// dialect.
func columnDef(d dialect.Dialect, desc *field.Descriptor) dialect.ColumnDef {
	typeSQL := desc.Type.SQLType(d.Name())
	if desc.AutoIncrement && d.Name() == dialect.Postgres {
		switch {
		case strings.HasPrefix(typeSQL, "BIGINT"):
			typeSQL = "BIGSERIAL"
		case strings.HasPrefix(typeSQL, "INTEGER"):
			typeSQL = "SERIAL"
		}
	}
	return dialect.ColumnDef{
		Name:          desc.ColumnName,
		Type:          typeSQL,
		AllowNull:     desc.AllowNull,
		Default:       desc.Default,
		HasDefault:    desc.HasDefault,
		PrimaryKey:    desc.PrimaryKey,
		AutoIncrement: desc.AutoIncrement,
		Unique:        desc.Unique,
		Comment:       desc.Comment,
	}
}

func (m *Model) persistableColumns(d dialect.Dialect) []dialect.ColumnDef {
	var cols []dialect.ColumnDef
	for _, desc := range m.Attributes() {
		if desc.Virtual {
			continue
		}
		cols = append(cols, columnDef(d, desc))
	}
	return cols
}

// Describe introspects the model's table.
func (m *Model) Describe(ctx context.Context) ([]dialect.ColumnInfo, error) {
	drv, err := m.driver()
	if err != nil {
		return nil, err
	}
	info, err := drv.Dialect().SchemaInfo(ctx, m.realm.execQuerier(ctx), m.databaseName(), m.table)
	if err != nil {
		return nil, err
	}
	return info[m.table], nil
}

func (m *Model) databaseName() string {
	// information_schema scoping; empty narrows nothing
	return m.realm.database
}

// Sync diffs the declared attributes against the live table and issues
// the DDL needed to reconcile them.
func (m *Model) Sync(ctx context.Context, opts ...SyncOptions) error {
	var opt SyncOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	drv, err := m.driver()
	if err != nil {
		return err
	}
	d := drv.Dialect()
	q := m.realm.execQuerier(ctx)
	ddlOpts := &dialect.QueryOptions{Model: m.name, Command: "ddl"}

	live, err := m.Describe(ctx)
	if err != nil {
		return err
	}
	if opt.Force && len(live) > 0 {
		if _, err := q.Exec(ctx, d.DropTableSQL(m.table), nil, ddlOpts); err != nil {
			return err
		}
		live = nil
	}
	if len(live) == 0 {
		_, err := q.Exec(ctx, d.CreateTableSQL(m.table, m.persistableColumns(d)), nil, ddlOpts)
		if err == nil {
			m.synchronized = true
		}
		return err
	}

	liveByName := make(map[string]dialect.ColumnInfo, len(live))
	for _, col := range live {
		liveByName[col.ColumnName] = col
	}
	for _, desc := range m.Attributes() {
		if desc.Virtual {
			continue
		}
		info, present := liveByName[desc.ColumnName]
		def := columnDef(d, desc)
		switch {
		case !present:
			if _, err := q.Exec(ctx, d.AddColumnSQL(m.table, def), nil, ddlOpts); err != nil {
				return err
			}
		case opt.Alter && !strings.EqualFold(info.ColumnType, def.Type):
			change := d.ChangeColumnSQL(m.table, def)
			if change == "" {
				drv.Logger().LogWarning(fmt.Sprintf("cannot alter column %s.%s on %s", m.table, desc.ColumnName, d.Name()))
				continue
			}
			if _, err := q.Exec(ctx, change, nil, ddlOpts); err != nil {
				return err
			}
		}
	}
	if opt.Alter {
		declared := make(map[string]struct{})
		for _, desc := range m.Attributes() {
			declared[desc.ColumnName] = struct{}{}
		}
		for _, col := range live {
			if _, ok := declared[col.ColumnName]; !ok {
				if _, err := q.Exec(ctx, d.RemoveColumnSQL(m.table, col.ColumnName), nil, ddlOpts); err != nil {
					return err
				}
			}
		}
	}
	m.synchronized = true
	return nil
}

// Drop drops the model's table.
func (m *Model) Drop(ctx context.Context) error {
	drv, err := m.driver()
	if err != nil {
		return err
	}
	_, err = m.realm.execQuerier(ctx).Exec(ctx, drv.Dialect().DropTableSQL(m.table), nil,
		&dialect.QueryOptions{Model: m.name, Command: "ddl"})
	return err
}

// Truncate empties the model's table.
func (m *Model) Truncate(ctx context.Context) error {
	drv, err := m.driver()
	if err != nil {
		return err
	}
	m.realm.invalidateCache(ctx, m.table)
	_, err = m.realm.execQuerier(ctx).Exec(ctx, drv.Dialect().TruncateTableSQL(m.table), nil,
		&dialect.QueryOptions{Model: m.name, Command: "ddl"})
	return err
}

// Sync synchronizes every bound model concurrently.
func (r *Realm) Sync(ctx context.Context, opts ...SyncOptions) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range r.models {
		m := m
		g.Go(func() error {
			return m.Sync(gctx, opts...)
		})
	}
	return g.Wait()
}
