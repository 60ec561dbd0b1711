// Package stmt holds the dialect-neutral statement representation a
// finalized query lowers into. Dialect formatters walk these values to
// produce SQL text and bind values.
package stmt

import "github.com/grimoiredb/grimoire/expr"

// Join kinds.
const (
	LeftJoin  = "LEFT"
	InnerJoin = "INNER"
)

// Join is one joined relation in a SELECT.
type Join struct {
	Kind  string // LEFT unless stated otherwise
	Table string
	Alias string
	Sub   *Select // joined subquery instead of a plain table
	On    expr.Expr
}

// Assignment is one SET entry of an UPDATE or upsert.
type Assignment struct {
	Column string
	Value  expr.Expr
}

// Select is a SELECT statement. Limit and Offset use -1 for "unset".
type Select struct {
	Table   string
	Alias   string
	From    *Select // derived table; overrides Table
	Columns []expr.Expr
	Joins   []Join
	Where   expr.Expr
	Groups  []expr.Expr
	Having  expr.Expr
	Orders  []expr.OrderItem
	Limit   int64
	Offset  int64
}

// SubqueryTag marks Select as usable inside expressions (IN, EXISTS).
func (*Select) SubqueryTag() {}

// NewSelect returns a Select with pagination unset.
func NewSelect(table string) *Select {
	return &Select{Table: table, Limit: -1, Offset: -1}
}

// Insert is a (possibly multi-row) INSERT statement.
type Insert struct {
	Table   string
	Columns []string
	// Rows holds uncast binding values, one inner slice per row, in
	// Columns order.
	Rows      [][]any
	Returning []string
}

// Upsert is an INSERT with a dialect-specific conflict clause.
type Upsert struct {
	Insert
	// UpdateColumns are assigned from the excluded/value row on the
	// update branch.
	UpdateColumns []string
	// ConflictTargets name the unique columns for ON CONFLICT dialects;
	// defaults to the primary key.
	ConflictTargets []string
	// RecoverPrimaryKey asks the MySQL formatter to splice the
	// LAST_INSERT_ID(pk) trick so the key of the updated row can be
	// read back through insertId.
	RecoverPrimaryKey string
}

// Update is an UPDATE statement. Orders/Limit support dialects with
// native UPDATE pagination; others rewrite through a subquery on the
// primary key (PrimaryColumn).
type Update struct {
	Table         string
	Sets          []Assignment
	Where         expr.Expr
	Orders        []expr.OrderItem
	Limit         int64
	PrimaryColumn string
	Returning     []string
}

// NewUpdate returns an Update with pagination unset.
func NewUpdate(table string) *Update {
	return &Update{Table: table, Limit: -1}
}

// Delete is a DELETE statement; pagination follows Update's rules.
type Delete struct {
	Table         string
	Where         expr.Expr
	Orders        []expr.OrderItem
	Limit         int64
	PrimaryColumn string
}

// NewDelete returns a Delete with pagination unset.
func NewDelete(table string) *Delete {
	return &Delete{Table: table, Limit: -1}
}
