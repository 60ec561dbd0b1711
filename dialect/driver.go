package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Result is the uniform shape query execution returns: rows plus field
// names for reads, affected-row count and last insert id for writes.
type Result struct {
	Fields       []string
	Rows         [][]any
	AffectedRows int64
	InsertID     int64
}

// ExecQuerier is implemented by both Driver and Tx so callers can run
// statements against a pooled connection or a transaction uniformly.
type ExecQuerier interface {
	Query(ctx context.Context, query string, values []any, opts *QueryOptions) (*Result, error)
	Exec(ctx context.Context, query string, values []any, opts *QueryOptions) (*Result, error)
}

// DriverError wraps an error surfaced by the underlying database,
// preserving its code and the formatted SQL for diagnostics.
type DriverError struct {
	Err  error
	Code string
	SQL  string
}

// Error implements error.
func (e *DriverError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (code=%s, sql=%s)", e.Err, e.Code, e.SQL)
	}
	return fmt.Sprintf("%s (sql=%s)", e.Err, e.SQL)
}

// Unwrap returns the driver's original error.
func (e *DriverError) Unwrap() error { return e.Err }

// conn wraps the standard Query/Exec methods shared by *sql.DB and
// *sql.Tx with logging and error wrapping.
type conn struct {
	execQuerier
	dialect Dialect
	logger  Logger
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Query implements ExecQuerier.
func (c conn) Query(ctx context.Context, query string, values []any, opts *QueryOptions) (*Result, error) {
	start := time.Now()
	rows, err := c.QueryContext(ctx, query, values...)
	if err != nil {
		c.logger.LogQueryError(err, query, time.Since(start), opts)
		return nil, &DriverError{Err: err, Code: c.dialect.ErrorCode(err), SQL: query}
	}
	defer rows.Close()
	result, err := scanRows(rows)
	if err != nil {
		c.logger.LogQueryError(err, query, time.Since(start), opts)
		return nil, &DriverError{Err: err, Code: c.dialect.ErrorCode(err), SQL: query}
	}
	c.logger.LogQuery(query, time.Since(start), opts)
	return result, nil
}

// Exec implements ExecQuerier.
func (c conn) Exec(ctx context.Context, query string, values []any, opts *QueryOptions) (*Result, error) {
	start := time.Now()
	res, err := c.ExecContext(ctx, query, values...)
	if err != nil {
		c.logger.LogQueryError(err, query, time.Since(start), opts)
		return nil, &DriverError{Err: err, Code: c.dialect.ErrorCode(err), SQL: query}
	}
	c.logger.LogQuery(query, time.Since(start), opts)
	result := &Result{}
	// not every driver reports both; missing values stay zero
	if n, err := res.RowsAffected(); err == nil {
		result.AffectedRows = n
	}
	if id, err := res.LastInsertId(); err == nil {
		result.InsertID = id
	}
	return result, nil
}

func scanRows(rows *sql.Rows) (*Result, error) {
	fields, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &Result{Fields: fields}
	for rows.Next() {
		row := make([]any, len(fields))
		dest := make([]any, len(fields))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.AffectedRows = int64(len(result.Rows))
	return result, nil
}

// Driver binds a Dialect to a *sql.DB pool.
type Driver struct {
	conn
	db *sql.DB
	d  Dialect
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger installs a custom query logger.
func WithLogger(l Logger) Option {
	return func(d *Driver) {
		d.conn.logger = l
	}
}

// WithPool bounds the connection pool.
func WithPool(size, idle int) Option {
	return func(d *Driver) {
		if size > 0 {
			d.db.SetMaxOpenConns(size)
		}
		if idle > 0 {
			d.db.SetMaxIdleConns(idle)
		}
	}
}

// NewDriver wraps an opened *sql.DB with the given dialect.
func NewDriver(d Dialect, db *sql.DB, opts ...Option) *Driver {
	drv := &Driver{
		conn: conn{execQuerier: db, dialect: d, logger: DefaultLogger()},
		db:   db,
		d:    d,
	}
	for _, opt := range opts {
		opt(drv)
	}
	return drv
}

// Dialect returns the bound dialect.
func (d *Driver) Dialect() Dialect { return d.d }

// Logger returns the driver's logger.
func (d *Driver) Logger() Logger { return d.conn.logger }

// DB returns the underlying pool.
func (d *Driver) DB() *sql.DB { return d.db }

// Close closes the underlying pool.
func (d *Driver) Close() error { return d.db.Close() }

// Begin starts a transaction. All statements inside the transaction
// body share its dedicated connection.
func (d *Driver) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &DriverError{Err: err, Code: d.d.ErrorCode(err), SQL: "BEGIN"}
	}
	return &Tx{
		conn: conn{execQuerier: tx, dialect: d.d, logger: d.conn.logger},
		tx:   tx,
	}, nil
}

// Tx is a transaction handle; it satisfies ExecQuerier.
type Tx struct {
	conn
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback aborts the transaction.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

var (
	_ ExecQuerier = (*Driver)(nil)
	_ ExecQuerier = (*Tx)(nil)
)
