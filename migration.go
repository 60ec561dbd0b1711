package grimoire

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/grimoiredb/grimoire/dialect"
)

// MetaTable is the default migration ledger table. It has a single
// column, name, holding applied migration names.
const MetaTable = "grimoire_meta"

// migrationName is YYYYMMDDHHMMSS-<slug>.
var migrationName = regexp.MustCompile(`^\d{14}-[\w-]+$`)

// Migration is one reversible schema step.
type Migration struct {
	// Name is the timestamped migration name, YYYYMMDDHHMMSS-<slug>.
	Name string
	Up   func(ctx context.Context, r *Realm) error
	Down func(ctx context.Context, r *Realm) error
}

func (r *Realm) ensureMetaTable(ctx context.Context) error {
	d := r.driver.Dialect()
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s VARCHAR(255) NOT NULL)",
		d.Quote(MetaTable), d.Quote("name"))
	_, err := r.Exec(ctx, query)
	return err
}

func (r *Realm) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	d := r.driver.Dialect()
	result, err := r.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", d.Quote("name"), d.Quote(MetaTable)))
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(result.Rows))
	for _, row := range result.Rows {
		applied[dialect.ToString(row[0])] = true
	}
	return applied, nil
}

// Migrate applies pending migrations in name order, recording each in
// the ledger after its up step succeeds.
func (r *Realm) Migrate(ctx context.Context, migrations ...Migration) error {
	for _, m := range migrations {
		if !migrationName.MatchString(m.Name) {
			return &ConfigurationError{Message: fmt.Sprintf("invalid migration name %q", m.Name)}
		}
	}
	if err := r.ensureMetaTable(ctx); err != nil {
		return err
	}
	applied, err := r.appliedMigrations(ctx)
	if err != nil {
		return err
	}
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	d := r.driver.Dialect()
	for _, m := range sorted {
		if applied[m.Name] {
			continue
		}
		if m.Up != nil {
			if err := m.Up(ctx, r); err != nil {
				return fmt.Errorf("migrate %s: %w", m.Name, err)
			}
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			d.Quote(MetaTable), d.Quote("name"), d.Placeholder(1))
		if _, err := r.Exec(ctx, query, m.Name); err != nil {
			return err
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration of the given
// set and removes its ledger row.
func (r *Realm) Rollback(ctx context.Context, migrations ...Migration) error {
	if err := r.ensureMetaTable(ctx); err != nil {
		return err
	}
	applied, err := r.appliedMigrations(ctx)
	if err != nil {
		return err
	}
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name > sorted[j].Name })
	d := r.driver.Dialect()
	for _, m := range sorted {
		if !applied[m.Name] {
			continue
		}
		if m.Down != nil {
			if err := m.Down(ctx, r); err != nil {
				return fmt.Errorf("rollback %s: %w", m.Name, err)
			}
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			d.Quote(MetaTable), d.Quote("name"), d.Placeholder(1))
		_, err := r.Exec(ctx, query, m.Name)
		return err
	}
	return nil
}
