package dialect

import (
	"log/slog"
	"time"
)

// QueryOptions carries per-query metadata handed to the logger and the
// execution primitives.
type QueryOptions struct {
	// Model is the entity name the query was issued for, if any.
	Model string
	// Command is the statement kind: select, insert, update, delete,
	// upsert, or ddl.
	Command string
}

// Logger is invoked around every query. LogQueryError receives the
// formatted SQL so failures stay diagnosable.
type Logger interface {
	LogQuery(sql string, duration time.Duration, opts *QueryOptions)
	LogQueryError(err error, sql string, duration time.Duration, opts *QueryOptions)
	// LogWarning surfaces non-fatal advisories.
	LogWarning(message string)
}

// LoggerFunc adapts a bare function to the Logger interface. Errors are
// reported with the error in place of a result.
type LoggerFunc func(sql string, duration time.Duration, opts *QueryOptions, result any)

// LogQuery implements Logger.
func (f LoggerFunc) LogQuery(sql string, duration time.Duration, opts *QueryOptions) {
	f(sql, duration, opts, nil)
}

// LogQueryError implements Logger.
func (f LoggerFunc) LogQueryError(err error, sql string, duration time.Duration, opts *QueryOptions) {
	f(sql, duration, opts, err)
}

// LogWarning implements Logger.
func (f LoggerFunc) LogWarning(message string) {
	f(message, 0, nil, nil)
}

// DefaultLogger logs through log/slog.
func DefaultLogger() Logger { return slogLogger{} }

type slogLogger struct{}

func (slogLogger) LogQuery(sql string, duration time.Duration, opts *QueryOptions) {
	slog.Debug("query", "sql", sql, "duration", duration, "model", optModel(opts))
}

func (slogLogger) LogQueryError(err error, sql string, duration time.Duration, opts *QueryOptions) {
	slog.Error("query failed", "error", err, "sql", sql, "duration", duration, "model", optModel(opts))
}

func (slogLogger) LogWarning(message string) {
	slog.Warn(message)
}

func optModel(opts *QueryOptions) string {
	if opts == nil {
		return ""
	}
	return opts.Model
}
