package dialect

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grimoiredb/grimoire/expr"
	"github.com/grimoiredb/grimoire/stmt"
	"github.com/grimoiredb/grimoire/types"
)

// Formatter compiles the statement IR against a dialect, producing SQL
// text plus bind values. Formatting is deterministic: the same
// statement always renders the same string.
type Formatter struct {
	D Dialect
}

// NewFormatter returns a Formatter for the given dialect.
func NewFormatter(d Dialect) *Formatter { return &Formatter{D: d} }

type writer struct {
	sb     strings.Builder
	values []any
	d      Dialect
}

func (w *writer) str(s string)   { w.sb.WriteString(s) }
func (w *writer) ident(s string) { w.sb.WriteString(w.d.Quote(s)) }

func (w *writer) bind(v any) {
	w.values = append(w.values, v)
	w.sb.WriteString(w.d.Placeholder(len(w.values)))
}

// Select renders a SELECT statement.
func (f *Formatter) Select(s *stmt.Select) (string, []any, error) {
	w := &writer{d: f.D}
	if err := f.writeSelect(w, s); err != nil {
		return "", nil, err
	}
	return w.sb.String(), w.values, nil
}

func (f *Formatter) writeSelect(w *writer, s *stmt.Select) error {
	w.str("SELECT ")
	if len(s.Columns) == 0 {
		if s.Alias != "" && len(s.Joins) > 0 {
			w.ident(s.Alias)
			w.str(".*")
		} else {
			w.str("*")
		}
	} else {
		for i, col := range s.Columns {
			if i > 0 {
				w.str(", ")
			}
			if err := f.writeExpr(w, col); err != nil {
				return err
			}
		}
	}
	w.str(" FROM ")
	switch {
	case s.From != nil:
		w.str("(")
		if err := f.writeSelect(w, s.From); err != nil {
			return err
		}
		w.str(")")
		if s.Alias != "" {
			w.str(" AS ")
			w.ident(s.Alias)
		}
	default:
		w.ident(s.Table)
		if s.Alias != "" {
			w.str(" AS ")
			w.ident(s.Alias)
		}
	}
	for _, join := range s.Joins {
		kind := join.Kind
		if kind == "" {
			kind = stmt.LeftJoin
		}
		w.str(" " + kind + " JOIN ")
		if join.Sub != nil {
			w.str("(")
			if err := f.writeSelect(w, join.Sub); err != nil {
				return err
			}
			w.str(")")
		} else {
			w.ident(join.Table)
		}
		if join.Alias != "" {
			w.str(" AS ")
			w.ident(join.Alias)
		}
		if join.On != nil {
			w.str(" ON ")
			if err := f.writeExpr(w, join.On); err != nil {
				return err
			}
		}
	}
	if s.Where != nil {
		w.str(" WHERE ")
		if err := f.writeExpr(w, s.Where); err != nil {
			return err
		}
	}
	if len(s.Groups) > 0 {
		w.str(" GROUP BY ")
		for i, g := range s.Groups {
			if i > 0 {
				w.str(", ")
			}
			if err := f.writeExpr(w, g); err != nil {
				return err
			}
		}
	}
	if s.Having != nil {
		w.str(" HAVING ")
		if err := f.writeExpr(w, s.Having); err != nil {
			return err
		}
	}
	if err := f.writeOrders(w, s.Orders); err != nil {
		return err
	}
	if s.Limit >= 0 {
		w.str(" LIMIT " + strconv.FormatInt(s.Limit, 10))
	}
	if s.Offset > 0 {
		w.str(" OFFSET " + strconv.FormatInt(s.Offset, 10))
	}
	return nil
}

func (f *Formatter) writeOrders(w *writer, orders []expr.OrderItem) error {
	if len(orders) == 0 {
		return nil
	}
	w.str(" ORDER BY ")
	for i, o := range orders {
		if i > 0 {
			w.str(", ")
		}
		if err := f.writeExpr(w, o.Expr); err != nil {
			return err
		}
		if o.Desc {
			w.str(" DESC")
		}
	}
	return nil
}

// Insert renders an INSERT statement, including RETURNING when the
// dialect supports it.
func (f *Formatter) Insert(s *stmt.Insert) (string, []any, error) {
	w := &writer{d: f.D}
	if err := f.writeInsert(w, s); err != nil {
		return "", nil, err
	}
	f.writeReturning(w, s.Returning)
	return w.sb.String(), w.values, nil
}

// InsertSQL renders the insert body without a RETURNING clause, for
// dialect upsert implementations to extend.
func (f *Formatter) InsertSQL(s *stmt.Insert) (string, []any, error) {
	w := &writer{d: f.D}
	if err := f.writeInsert(w, s); err != nil {
		return "", nil, err
	}
	return w.sb.String(), w.values, nil
}

func (f *Formatter) writeInsert(w *writer, s *stmt.Insert) error {
	w.str("INSERT INTO ")
	w.ident(s.Table)
	if len(s.Columns) == 0 {
		if f.D.Name() == MySQL {
			w.str(" () VALUES ()")
		} else {
			w.str(" DEFAULT VALUES")
		}
		return nil
	}
	w.str(" (")
	for i, col := range s.Columns {
		if i > 0 {
			w.str(", ")
		}
		w.ident(col)
	}
	w.str(") VALUES ")
	for i, row := range s.Rows {
		if i > 0 {
			w.str(", ")
		}
		if len(row) != len(s.Columns) {
			return fmt.Errorf("invalid insert row: %d values for %d columns", len(row), len(s.Columns))
		}
		w.str("(")
		for j, v := range row {
			if j > 0 {
				w.str(", ")
			}
			if raw, ok := v.(*expr.Raw); ok {
				w.str(raw.SQL)
				continue
			}
			w.bind(v)
		}
		w.str(")")
	}
	return nil
}

func (f *Formatter) writeReturning(w *writer, returning []string) {
	if len(returning) == 0 || !f.D.SupportsReturning() {
		return
	}
	w.str(" RETURNING ")
	for i, col := range returning {
		if i > 0 {
			w.str(", ")
		}
		w.ident(col)
	}
}

// Update renders an UPDATE statement. On dialects without native
// UPDATE pagination, ORDER/LIMIT are rewritten through a subquery on
// the primary key.
func (f *Formatter) Update(s *stmt.Update) (string, []any, error) {
	w := &writer{d: f.D}
	w.str("UPDATE ")
	w.ident(s.Table)
	w.str(" SET ")
	for i, set := range s.Sets {
		if i > 0 {
			w.str(", ")
		}
		w.ident(set.Column)
		w.str(" = ")
		if err := f.writeExpr(w, set.Value); err != nil {
			return "", nil, err
		}
	}
	where, orders, limit := s.Where, s.Orders, s.Limit
	if (len(orders) > 0 || limit >= 0) && !f.D.SupportsUpdateLimit() {
		where = f.paginationSubquery(s.Table, s.PrimaryColumn, where, orders, limit)
		orders, limit = nil, -1
	}
	if where != nil {
		w.str(" WHERE ")
		if err := f.writeExpr(w, where); err != nil {
			return "", nil, err
		}
	}
	if err := f.writeOrders(w, orders); err != nil {
		return "", nil, err
	}
	if limit >= 0 {
		w.str(" LIMIT " + strconv.FormatInt(limit, 10))
	}
	f.writeReturning(w, s.Returning)
	return w.sb.String(), w.values, nil
}

// Delete renders a DELETE statement with the same pagination rules as
// Update.
func (f *Formatter) Delete(s *stmt.Delete) (string, []any, error) {
	w := &writer{d: f.D}
	w.str("DELETE FROM ")
	w.ident(s.Table)
	where, orders, limit := s.Where, s.Orders, s.Limit
	if (len(orders) > 0 || limit >= 0) && !f.D.SupportsUpdateLimit() {
		where = f.paginationSubquery(s.Table, s.PrimaryColumn, where, orders, limit)
		orders, limit = nil, -1
	}
	if where != nil {
		w.str(" WHERE ")
		if err := f.writeExpr(w, where); err != nil {
			return "", nil, err
		}
	}
	if err := f.writeOrders(w, orders); err != nil {
		return "", nil, err
	}
	if limit >= 0 {
		w.str(" LIMIT " + strconv.FormatInt(limit, 10))
	}
	return w.sb.String(), w.values, nil
}

// paginationSubquery rewrites `... ORDER BY o LIMIT n` into
// `pk IN (SELECT pk FROM table WHERE ... ORDER BY o LIMIT n)`.
func (f *Formatter) paginationSubquery(table, pk string, where expr.Expr, orders []expr.OrderItem, limit int64) expr.Expr {
	inner := stmt.NewSelect(table)
	inner.Columns = []expr.Expr{expr.Ident(pk)}
	inner.Where = where
	inner.Orders = orders
	inner.Limit = limit
	return &expr.In{Expr: expr.Ident(pk), Query: inner}
}

// Upsert renders the dialect's INSERT-or-update idiom.
func (f *Formatter) Upsert(u *stmt.Upsert) (string, []any, error) {
	return f.D.FormatUpsert(f, u)
}

func (f *Formatter) writeExpr(w *writer, e expr.Expr) error {
	switch n := e.(type) {
	case *expr.Literal:
		if n.Value == nil {
			w.str("NULL")
			return nil
		}
		w.bind(n.Value)
	case *expr.Column:
		if n.Qualifier != "" {
			w.ident(n.Qualifier)
			w.str(".")
		}
		if n.Name == "*" {
			w.str("*")
			return nil
		}
		w.ident(n.Name)
	case *expr.Binary:
		return f.writeBinary(w, n)
	case *expr.Unary:
		switch n.Op {
		case expr.OpNot:
			w.str("NOT ")
			return f.writeOperand(w, n.Operand)
		case expr.OpNeg:
			w.str("-")
			return f.writeOperand(w, n.Operand)
		case expr.OpBitNot:
			w.str("~")
			return f.writeOperand(w, n.Operand)
		default:
			return fmt.Errorf("unexpected unary operator %q", n.Op)
		}
	case *expr.Logical:
		for i, op := range n.Operands {
			if i > 0 {
				w.str(" " + n.Op.String() + " ")
			}
			if err := f.writeOperand(w, op); err != nil {
				return err
			}
		}
	case *expr.Func:
		if n.Name == "DISTINCT" && len(n.Args) == 1 {
			w.str("DISTINCT ")
			return f.writeExpr(w, n.Args[0])
		}
		w.str(n.Name)
		w.str("(")
		for i, a := range n.Args {
			if i > 0 {
				w.str(", ")
			}
			if err := f.writeExpr(w, a); err != nil {
				return err
			}
		}
		w.str(")")
	case *expr.List:
		w.str("(")
		for i, v := range n.Values {
			if i > 0 {
				w.str(", ")
			}
			if err := f.writeExpr(w, v); err != nil {
				return err
			}
		}
		w.str(")")
	case *expr.Between:
		if err := f.writeOperand(w, n.Expr); err != nil {
			return err
		}
		if n.Not {
			w.str(" NOT BETWEEN ")
		} else {
			w.str(" BETWEEN ")
		}
		if err := f.writeExpr(w, n.Lo); err != nil {
			return err
		}
		w.str(" AND ")
		if err := f.writeExpr(w, n.Hi); err != nil {
			return err
		}
	case *expr.In:
		if err := f.writeOperand(w, n.Expr); err != nil {
			return err
		}
		if n.Not {
			w.str(" NOT IN ")
		} else {
			w.str(" IN ")
		}
		if n.Query != nil {
			sub, ok := n.Query.(*stmt.Select)
			if !ok {
				return fmt.Errorf("unexpected subquery type %T", n.Query)
			}
			w.str("(")
			if err := f.writeSelect(w, sub); err != nil {
				return err
			}
			w.str(")")
			return nil
		}
		return f.writeExpr(w, n.List)
	case *expr.Raw:
		w.str(n.SQL)
	case *expr.Alias:
		if err := f.writeExpr(w, n.Expr); err != nil {
			return err
		}
		w.str(" AS ")
		w.ident(n.Name)
	default:
		return fmt.Errorf("unexpected expression %T", e)
	}
	return nil
}

func (f *Formatter) writeBinary(w *writer, n *expr.Binary) error {
	// nil comparisons collapse to IS [NOT] NULL
	if lit, ok := n.Right.(*expr.Literal); ok && lit.Value == nil {
		switch n.Op {
		case expr.OpEq, expr.OpIs:
			if err := f.writeOperand(w, n.Left); err != nil {
				return err
			}
			w.str(" IS NULL")
			return nil
		case expr.OpNe, expr.OpIsNot:
			if err := f.writeOperand(w, n.Left); err != nil {
				return err
			}
			w.str(" IS NOT NULL")
			return nil
		}
	}
	if err := f.writeOperand(w, n.Left); err != nil {
		return err
	}
	w.str(" " + n.Op.String() + " ")
	return f.writeOperand(w, n.Right)
}

// writeOperand parenthesizes nested logical groups so operator
// precedence is explicit in the output.
func (f *Formatter) writeOperand(w *writer, e expr.Expr) error {
	if _, ok := e.(*expr.Logical); ok {
		w.str("(")
		if err := f.writeExpr(w, e); err != nil {
			return err
		}
		w.str(")")
		return nil
	}
	return f.writeExpr(w, e)
}

// Interpolate splices bind values into the query, producing the inline
// form used for logging and toString-style inspection.
func (f *Formatter) Interpolate(query string, values []any) (string, error) {
	if f.D.Name() == Postgres {
		return f.interpolateNumbered(query, values)
	}
	var sb strings.Builder
	idx := 0
	inString := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inString = !inString
			sb.WriteByte(ch)
		case ch == '?' && !inString:
			if idx >= len(values) {
				return "", fmt.Errorf("unexpected placeholder at %d", i)
			}
			sb.WriteString(f.literal(values[idx]))
			idx++
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String(), nil
}

func (f *Formatter) interpolateNumbered(query string, values []any) (string, error) {
	var sb strings.Builder
	inString := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inString = !inString
			sb.WriteByte(ch)
		case ch == '$' && !inString && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9':
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			n, err := strconv.Atoi(query[i+1 : j])
			if err != nil || n < 1 || n > len(values) {
				return "", fmt.Errorf("unexpected placeholder %s", query[i:j])
			}
			sb.WriteString(f.literal(values[n-1]))
			i = j - 1
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String(), nil
}

// literal renders a single value inline, honoring the dialect's boolean
// and datetime encodings.
func (f *Formatter) literal(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return f.D.FormatBool(t)
	case string:
		return "'" + escapeString(t) + "'"
	case []byte:
		return "'" + escapeString(string(t)) + "'"
	case time.Time:
		return "'" + types.FormatTime(t, 3) + "'"
	case *expr.Raw:
		return t.SQL
	default:
		return fmt.Sprint(t)
	}
}
