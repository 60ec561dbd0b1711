package grimoire

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/grimoiredb/grimoire/dialect"
	"github.com/grimoiredb/grimoire/dialect/mysql"
	"github.com/grimoiredb/grimoire/dialect/postgres"
	"github.com/grimoiredb/grimoire/dialect/sqlite"
)

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	Size int `yaml:"size"`
	Idle int `yaml:"idle"`
}

// Config is the connect configuration. Dialect and Client are
// synonyms; sqljs selects the in-memory SQLite variant.
type Config struct {
	Dialect  string     `yaml:"dialect"`
	Client   string     `yaml:"client"`
	Host     string     `yaml:"host"`
	Port     int        `yaml:"port"`
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	Database string     `yaml:"database"`
	// Storage is the SQLite database file; ":memory:" for in-memory.
	Storage string     `yaml:"storage"`
	Pool    PoolConfig `yaml:"pool"`

	// Logger receives every query; defaults to the slog-backed logger.
	Logger dialect.Logger `yaml:"-"`
	// Cache, when set, backs Spell.WithCache.
	Cache Cache `yaml:"-"`
}

// LoadConfig reads a YAML connect configuration.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Realm binds one driver to a set of entity classes. It owns
// connect/teardown and transaction scoping.
type Realm struct {
	driver   *dialect.Driver
	models   map[string]*Model
	cache    Cache
	database string
}

// Connect validates the configuration, constructs the dialect driver,
// and binds the given models to the new realm. A model already bound
// to a realm fails with "connected already".
func Connect(cfg Config, models ...*Model) (*Realm, error) {
	for _, m := range models {
		if m.realm != nil {
			return nil, &ConfigurationError{Message: fmt.Sprintf("model %q connected already", m.name)}
		}
	}
	name := cfg.Dialect
	if name == "" {
		name = cfg.Client
	}
	var opts []dialect.Option
	if cfg.Logger != nil {
		opts = append(opts, dialect.WithLogger(cfg.Logger))
	}
	if cfg.Pool.Size > 0 || cfg.Pool.Idle > 0 {
		opts = append(opts, dialect.WithPool(cfg.Pool.Size, cfg.Pool.Idle))
	}
	var drv *dialect.Driver
	var err error
	switch name {
	case dialect.MySQL:
		drv, err = mysql.Open(mysqlDSN(cfg), opts...)
	case dialect.Postgres, "postgresql", "pg":
		drv, err = postgres.Open(postgresDSN(cfg), opts...)
	case dialect.SQLite, "sqlite3":
		storage := cfg.Storage
		if storage == "" {
			storage = cfg.Database
		}
		drv, err = sqlite.Open(storage, opts...)
	case "sqljs":
		drv, err = sqlite.Open(":memory:", opts...)
	default:
		return nil, &ConfigurationError{Message: fmt.Sprintf("unknown dialect %q", name)}
	}
	if err != nil {
		return nil, err
	}
	realm := &Realm{
		driver:   drv,
		models:   make(map[string]*Model, len(models)),
		cache:    cfg.Cache,
		database: cfg.Database,
	}
	for _, m := range models {
		m.realm = realm
		realm.models[m.name] = m
	}
	return realm, nil
}

// ConnectDriver binds models to an externally constructed driver, for
// tests and custom pools.
func ConnectDriver(drv *dialect.Driver, models ...*Model) (*Realm, error) {
	for _, m := range models {
		if m.realm != nil {
			return nil, &ConfigurationError{Message: fmt.Sprintf("model %q connected already", m.name)}
		}
	}
	realm := &Realm{driver: drv, models: make(map[string]*Model, len(models))}
	for _, m := range models {
		m.realm = realm
		realm.models[m.name] = m
	}
	return realm, nil
}

func mysqlDSN(cfg Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.User, cfg.Password, host, port, cfg.Database)
}

func postgresDSN(cfg Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, cfg.User, cfg.Password, cfg.Database)
}

// Driver exposes the realm's driver.
func (r *Realm) Driver() *dialect.Driver { return r.driver }

// Model returns a bound model by name.
func (r *Realm) Model(name string) *Model { return r.models[name] }

// Disconnect closes the driver and unbinds the models, so they can be
// connected elsewhere.
func (r *Realm) Disconnect() error {
	for _, m := range r.models {
		m.realm = nil
	}
	return r.driver.Close()
}

// SetCache installs a query cache on the realm.
func (r *Realm) SetCache(c Cache) { r.cache = c }

type txKey struct{}

// txFromContext returns the transaction the context carries, if any.
func txFromContext(ctx context.Context) (*dialect.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*dialect.Tx)
	return tx, ok
}

// execQuerier routes statements through the context's transaction when
// inside a transaction body, and the pooled driver otherwise.
func (r *Realm) execQuerier(ctx context.Context) dialect.ExecQuerier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return r.driver
}

// Transaction runs fn with a dedicated connection. Every statement
// issued through the ctx handed to fn shares that connection; the
// transaction rolls back when fn returns an error (re-raised to the
// caller) and commits otherwise. Nested bodies reuse the outer
// transaction.
func (r *Realm) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := txFromContext(ctx); nested {
		return fn(ctx)
	}
	tx, err := r.driver.Begin(ctx)
	if err != nil {
		return err
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Query runs a raw query through the realm, honoring the context's
// transaction.
func (r *Realm) Query(ctx context.Context, query string, values ...any) (*dialect.Result, error) {
	return r.execQuerier(ctx).Query(ctx, query, values, &dialect.QueryOptions{Command: "select"})
}

// Exec runs a raw statement through the realm.
func (r *Realm) Exec(ctx context.Context, query string, values ...any) (*dialect.Result, error) {
	return r.execQuerier(ctx).Exec(ctx, query, values, &dialect.QueryOptions{Command: "exec"})
}
