package grimoire

import (
	"errors"
	"fmt"

	"github.com/grimoiredb/grimoire/dialect"
)

// Sentinel errors for the error taxonomy. Typed errors below match
// them through errors.Is.
var (
	// ErrConfiguration is returned for unknown dialects, duplicate
	// connects and missing drivers.
	ErrConfiguration = errors.New("grimoire: configuration error")

	// ErrDefinition is returned for duplicate attributes or
	// associations and invalid renames.
	ErrDefinition = errors.New("grimoire: definition error")

	// ErrValidation is returned when a required attribute is missing
	// or a value cannot be coerced.
	ErrValidation = errors.New("grimoire: validation error")

	// ErrIntegrity is returned for sharding-key violations, a missing
	// primary key on update, and restoring a non-paranoid model.
	ErrIntegrity = errors.New("grimoire: integrity error")

	// ErrQuery is returned for malformed conditions, unknown operators
	// and invalid limit/offset/batch values.
	ErrQuery = errors.New("grimoire: query error")

	// ErrLogical is returned when reading an unset or nonexistent
	// attribute.
	ErrLogical = errors.New("grimoire: logical error")
)

// ConfigurationError reports an unusable connect configuration.
type ConfigurationError struct {
	Message string
}

// Error implements error.
func (e *ConfigurationError) Error() string { return "grimoire: " + e.Message }

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(err error) bool { return err == ErrConfiguration }

// DefinitionError reports an invalid entity declaration.
type DefinitionError struct {
	Model   string
	Message string
}

// Error implements error.
func (e *DefinitionError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("grimoire: %s: %s", e.Model, e.Message)
	}
	return "grimoire: " + e.Message
}

// Is matches ErrDefinition.
func (e *DefinitionError) Is(err error) bool { return err == ErrDefinition }

// ValidationError reports a failed attribute validation.
type ValidationError struct {
	Model     string
	Attribute string
	Err       error
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("grimoire: validation failed for %s.%s: %v", e.Model, e.Attribute, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error { return e.Err }

// Is matches ErrValidation.
func (e *ValidationError) Is(err error) bool { return err == ErrValidation }

// IntegrityError reports a violated persistence invariant.
type IntegrityError struct {
	Model   string
	Message string
}

// Error implements error.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("grimoire: %s: %s", e.Model, e.Message)
}

// Is matches ErrIntegrity.
func (e *IntegrityError) Is(err error) bool { return err == ErrIntegrity }

// QueryError reports an unbuildable query.
type QueryError struct {
	Model string
	Err   error
}

// Error implements error.
func (e *QueryError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("grimoire: %s: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("grimoire: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error { return e.Err }

// Is matches ErrQuery.
func (e *QueryError) Is(err error) bool { return err == ErrQuery }

// LogicalError reports an invalid attribute access.
type LogicalError struct {
	Model     string
	Attribute string
	Message   string
}

// Error implements error.
func (e *LogicalError) Error() string {
	return fmt.Sprintf("grimoire: %s %s.%s", e.Message, e.Model, e.Attribute)
}

// Is matches ErrLogical.
func (e *LogicalError) Is(err error) bool { return err == ErrLogical }

// DriverError wraps an error from the underlying database. It
// preserves the original message, code, and formatted SQL.
type DriverError = dialect.DriverError

// IsDriverError reports whether err originated in the database driver.
func IsDriverError(err error) bool {
	var e *DriverError
	return errors.As(err, &e)
}
