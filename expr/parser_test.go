package expr_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoiredb/grimoire/expr"
)

func TestParse(t *testing.T) {
	tests := []struct {
		source string
		args   []any
		expect string
	}{
		{
			source: "title = ?",
			args:   []any{"New Post"},
			expect: `title = "New Post"`,
		},
		{
			source: "title like ?",
			args:   []any{"%Post%"},
			expect: `title LIKE "%Post%"`,
		},
		{
			source: "id in ?",
			args:   []any{[]int{1, 2, 3}},
			expect: `id IN (1, 2, 3)`,
		},
		{
			source: "id IN (1, 2, 3)",
			expect: `id IN (1, 2, 3)`,
		},
		{
			source: "title like ? or content like ?",
			args:   []any{"%a%", "%b%"},
			expect: `(title LIKE "%a%" OR content LIKE "%b%")`,
		},
		{
			source: "deleted_at is null",
			expect: `deleted_at IS NULL`,
		},
		{
			source: "deleted_at is not null",
			expect: `deleted_at IS NOT NULL`,
		},
		{
			source: "price between ? and ?",
			args:   []any{10, 20},
			expect: `price BETWEEN 10 AND 20`,
		},
		{
			source: "price not between 10 and 20",
			expect: `price NOT BETWEEN 10 AND 20`,
		},
		{
			source: "title not like ?",
			args:   []any{"%spam%"},
			expect: `title NOT LIKE "%spam%"`,
		},
		{
			source: "not (id = 1 and title = 'a')",
			expect: `NOT ((id = 1 AND title = "a"))`,
		},
		{
			source: "posts.id = comments.post_id",
			expect: `posts.id = comments.post_id`,
		},
		{
			source: "MONTH(created_at) = 5",
			expect: `MONTH(created_at) = 5`,
		},
		{
			source: "COUNT(*) > 1",
			expect: `COUNT(*) > 1`,
		},
		{
			source: "price * quantity >= 100",
			expect: `price * quantity >= 100`,
		},
		{
			source: "-price < -10",
			expect: `-price < -10`,
		},
		{
			source: "~flags = 0",
			expect: `~flags = 0`,
		},
		{
			source: "a != 1 && b <> 2",
			expect: `(a != 1 AND b != 2)`,
		},
		{
			source: "a = 1 || b = 2",
			expect: `(a = 1 OR b = 2)`,
		},
		{
			source: "word_count % 2 = 0",
			expect: `word_count % 2 = 0`,
		},
		{
			source: "score >= 3.5",
			expect: `score >= 3.5`,
		},
		{
			source: "is_private = true or is_private = false",
			expect: `(is_private = true OR is_private = false)`,
		},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			node, err := expr.Parse(tt.source, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, node.String())
		})
	}
}

func TestParseEmptyIn(t *testing.T) {
	// an empty list compiles to IN (NULL), a guaranteed empty match
	node, err := expr.Parse("id in ?", []int{})
	require.NoError(t, err)
	assert.Equal(t, `id IN (NULL)`, node.String())
}

func TestParseSubquery(t *testing.T) {
	node, err := expr.Parse("id in ?", fakeSubquery{})
	require.NoError(t, err)
	in, ok := node.(*expr.In)
	require.True(t, ok)
	assert.NotNil(t, in.Query)
	assert.Nil(t, in.List)
}

type fakeSubquery struct{}

func (fakeSubquery) SubqueryTag() {}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		args   []any
	}{
		{name: "unknown operator", source: "a ^ b"},
		{name: "unterminated string", source: "title = 'abc"},
		{name: "missing argument", source: "title = ?"},
		{name: "surplus arguments", source: "title = ?", args: []any{"a", "b"}},
		{name: "dangling operator", source: "title ="},
		{name: "between without and", source: "id between 1 or 2"},
		{name: "not without operator", source: "id not 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := expr.Parse(tt.source, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestParseSelect(t *testing.T) {
	items, err := expr.ParseSelect("id, title")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "id", items[0].String())
	assert.Equal(t, "title", items[1].String())

	items, err = expr.ParseSelect("MONTH(created_at) as month")
	require.NoError(t, err)
	require.Len(t, items, 1)
	alias, ok := items[0].(*expr.Alias)
	require.True(t, ok)
	assert.Equal(t, "month", alias.Name)
	assert.Equal(t, "MONTH(created_at)", alias.Expr.String())
}

func TestParseOrder(t *testing.T) {
	items, err := expr.ParseOrder("created_at desc, id")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].Desc)
	assert.Equal(t, "created_at", items[0].Expr.String())
	assert.False(t, items[1].Desc)
}

func mustParse(t *testing.T, source string) expr.Expr {
	t.Helper()
	node, err := expr.Parse(source)
	require.NoError(t, err)
	return node
}

func TestCombinators(t *testing.T) {
	a := mustParse(t, "a = 1")
	b := mustParse(t, "b = 2")
	c := mustParse(t, "c = 3")

	and := expr.And(a, b, c)
	assert.Equal(t, "(a = 1 AND b = 2 AND c = 3)", and.String())

	// nested conjunctions flatten
	flat := expr.And(expr.And(a, b), c)
	assert.Equal(t, "(a = 1 AND b = 2 AND c = 3)", flat.String())

	// single operand collapses
	assert.Equal(t, "a = 1", expr.And(a).String())
	assert.Nil(t, expr.Or())

	or := expr.Or(expr.And(a, b), c)
	assert.Equal(t, "((a = 1 AND b = 2) OR c = 3)", or.String())

	assert.Equal(t, "NOT (a = 1)", expr.Not(a).String())
}
