package dialect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoiredb/grimoire/dialect"
	"github.com/grimoiredb/grimoire/dialect/mysql"
	"github.com/grimoiredb/grimoire/dialect/postgres"
	"github.com/grimoiredb/grimoire/dialect/sqlite"
	"github.com/grimoiredb/grimoire/expr"
	"github.com/grimoiredb/grimoire/stmt"
)

func mustExpr(t *testing.T, source string, args ...any) expr.Expr {
	t.Helper()
	node, err := expr.Parse(source, args...)
	require.NoError(t, err)
	return node
}

func TestSelectMySQL(t *testing.T) {
	f := dialect.NewFormatter(mysql.New())
	sel := stmt.NewSelect("articles")
	sel.Where = mustExpr(t, "title like ?", "%Post%")
	sel.Orders = []expr.OrderItem{{Expr: expr.Ident("id"), Desc: true}}
	sel.Limit = 10
	sel.Offset = 20

	query, values, err := f.Select(sel)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `articles` WHERE `title` LIKE ? ORDER BY `id` DESC LIMIT 10 OFFSET 20", query)
	assert.Equal(t, []any{"%Post%"}, values)
}

func TestSelectPostgresPlaceholders(t *testing.T) {
	f := dialect.NewFormatter(postgres.New())
	sel := stmt.NewSelect("articles")
	sel.Where = mustExpr(t, "title = ? and word_count > ?", "Leah", 100)

	query, values, err := f.Select(sel)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "articles" WHERE "title" = $1 AND "word_count" > $2`, query)
	assert.Equal(t, []any{"Leah", 100}, values)
}

func TestSelectGroupHaving(t *testing.T) {
	f := dialect.NewFormatter(mysql.New())
	sel := stmt.NewSelect("articles")
	sel.Columns = []expr.Expr{
		&expr.Alias{Expr: &expr.Func{Name: "COUNT", Args: []expr.Expr{&expr.Raw{SQL: "*"}}}, Name: "count"},
		expr.Ident("author_id"),
	}
	sel.Groups = []expr.Expr{expr.Ident("author_id")}
	sel.Having = mustExpr(t, "count > 1")

	query, _, err := f.Select(sel)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS `count`, `author_id` FROM `articles` GROUP BY `author_id` HAVING `count` > ?", query)
}

func TestSelectJoin(t *testing.T) {
	f := dialect.NewFormatter(mysql.New())
	sel := stmt.NewSelect("articles")
	sel.Alias = "articles"
	sel.Joins = []stmt.Join{{
		Table: "comments",
		Alias: "comments",
		On:    mustExpr(t, "comments.article_id = articles.id"),
	}}

	query, _, err := f.Select(sel)
	require.NoError(t, err)
	assert.Equal(t, "SELECT `articles`.* FROM `articles` AS `articles` LEFT JOIN `comments` AS `comments` ON `comments`.`article_id` = `articles`.`id`", query)
}

func TestSelectDerivedTable(t *testing.T) {
	f := dialect.NewFormatter(mysql.New())
	inner := stmt.NewSelect("articles")
	inner.Limit = 1
	sel := stmt.NewSelect("")
	sel.From = inner
	sel.Alias = "articles"
	sel.Joins = []stmt.Join{{
		Table: "comments",
		Alias: "comments",
		On:    mustExpr(t, "comments.article_id = articles.id"),
	}}

	query, _, err := f.Select(sel)
	require.NoError(t, err)
	assert.Equal(t, "SELECT `articles`.* FROM (SELECT * FROM `articles` LIMIT 1) AS `articles` LEFT JOIN `comments` AS `comments` ON `comments`.`article_id` = `articles`.`id`", query)
}

func TestInSubquery(t *testing.T) {
	f := dialect.NewFormatter(mysql.New())
	inner := stmt.NewSelect("comments")
	inner.Columns = []expr.Expr{expr.Ident("article_id")}
	sel := stmt.NewSelect("articles")
	sel.Where = &expr.In{Expr: expr.Ident("id"), Query: inner}

	query, _, err := f.Select(sel)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `articles` WHERE `id` IN (SELECT `article_id` FROM `comments`)", query)
}

func TestInsert(t *testing.T) {
	f := dialect.NewFormatter(mysql.New())
	ins := &stmt.Insert{
		Table:   "articles",
		Columns: []string{"title", "word_count"},
		Rows:    [][]any{{"Leah", int64(20)}, {"Diablo", int64(40)}},
	}
	query, values, err := f.Insert(ins)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `articles` (`title`, `word_count`) VALUES (?, ?), (?, ?)", query)
	assert.Equal(t, []any{"Leah", int64(20), "Diablo", int64(40)}, values)
}

func TestInsertReturningPostgres(t *testing.T) {
	f := dialect.NewFormatter(postgres.New())
	ins := &stmt.Insert{
		Table:     "articles",
		Columns:   []string{"title"},
		Rows:      [][]any{{"Leah"}},
		Returning: []string{"id"},
	}
	query, _, err := f.Insert(ins)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "articles" ("title") VALUES ($1) RETURNING "id"`, query)
}

func TestInsertRawValue(t *testing.T) {
	f := dialect.NewFormatter(mysql.New())
	ins := &stmt.Insert{
		Table:   "articles",
		Columns: []string{"title", "gmt_create"},
		Rows:    [][]any{{"Leah", &expr.Raw{SQL: "CURRENT_TIMESTAMP()"}}},
	}
	query, values, err := f.Insert(ins)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `articles` (`title`, `gmt_create`) VALUES (?, CURRENT_TIMESTAMP())", query)
	assert.Equal(t, []any{"Leah"}, values)
}

func TestUpsertMySQL(t *testing.T) {
	f := dialect.NewFormatter(mysql.New())
	ups := &stmt.Upsert{
		Insert: stmt.Insert{
			Table:   "articles",
			Columns: []string{"id", "title", "gmt_create", "gmt_modified"},
			Rows:    [][]any{{int64(1), "New Post", "2017-12-12 00:00:00.000", "2017-12-12 00:00:00.000"}},
		},
		UpdateColumns:     []string{"id", "title", "gmt_modified"},
		RecoverPrimaryKey: "id",
	}
	query, values, err := f.Upsert(ups)
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO `articles` (`id`, `title`, `gmt_create`, `gmt_modified`) "+
			"VALUES (?, ?, ?, ?) "+
			"ON DUPLICATE KEY UPDATE `id` = LAST_INSERT_ID(`id`), `id` = VALUES(`id`), "+
			"`title` = VALUES(`title`), `gmt_modified` = VALUES(`gmt_modified`)",
		query)
	assert.Equal(t, []any{int64(1), "New Post", "2017-12-12 00:00:00.000", "2017-12-12 00:00:00.000"}, values)
}

func TestUpsertPostgres(t *testing.T) {
	f := dialect.NewFormatter(postgres.New())
	ups := &stmt.Upsert{
		Insert: stmt.Insert{
			Table:     "articles",
			Columns:   []string{"id", "title"},
			Rows:      [][]any{{int64(1), "New Post"}},
			Returning: []string{"id"},
		},
		UpdateColumns:   []string{"id", "title"},
		ConflictTargets: []string{"id"},
	}
	query, _, err := f.Upsert(ups)
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "articles" ("id", "title") VALUES ($1, $2) `+
			`ON CONFLICT ("id") DO UPDATE SET "id" = EXCLUDED."id", "title" = EXCLUDED."title" RETURNING "id"`,
		query)
}

func TestUpsertSQLite(t *testing.T) {
	f := dialect.NewFormatter(sqlite.New())
	ups := &stmt.Upsert{
		Insert: stmt.Insert{
			Table:   "articles",
			Columns: []string{"id", "title"},
			Rows:    [][]any{{int64(1), "New Post"}},
		},
		UpdateColumns:   []string{"title"},
		ConflictTargets: []string{"id"},
	}
	query, _, err := f.Upsert(ups)
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "articles" ("id", "title") VALUES (?, ?) `+
			`ON CONFLICT ("id") DO UPDATE SET "title" = EXCLUDED."title"`,
		query)
}

func TestUpdateWithLimitMySQL(t *testing.T) {
	f := dialect.NewFormatter(mysql.New())
	upd := stmt.NewUpdate("articles")
	upd.PrimaryColumn = "id"
	upd.Sets = []stmt.Assignment{{Column: "word_count", Value: expr.Value(int64(0))}}
	upd.Orders = []expr.OrderItem{{Expr: expr.Ident("id")}}
	upd.Limit = 5

	query, _, err := f.Update(upd)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE `articles` SET `word_count` = ? ORDER BY `id` LIMIT 5", query)
}

func TestUpdateWithLimitPostgres(t *testing.T) {
	f := dialect.NewFormatter(postgres.New())
	upd := stmt.NewUpdate("articles")
	upd.PrimaryColumn = "id"
	upd.Sets = []stmt.Assignment{{Column: "word_count", Value: expr.Value(int64(0))}}
	upd.Where = mustExpr(t, "author_id = ?", 1)
	upd.Orders = []expr.OrderItem{{Expr: expr.Ident("id")}}
	upd.Limit = 5

	query, values, err := f.Update(upd)
	require.NoError(t, err)
	assert.Equal(t,
		`UPDATE "articles" SET "word_count" = $1 WHERE "id" IN `+
			`(SELECT "id" FROM "articles" WHERE "author_id" = $2 ORDER BY "id" LIMIT 5)`,
		query)
	assert.Equal(t, []any{int64(0), 1}, values)
}

func TestDeleteWithLimitSQLite(t *testing.T) {
	f := dialect.NewFormatter(sqlite.New())
	del := stmt.NewDelete("articles")
	del.PrimaryColumn = "id"
	del.Orders = []expr.OrderItem{{Expr: expr.Ident("id")}}
	del.Limit = 1

	query, _, err := f.Delete(del)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "articles" WHERE "id" IN (SELECT "id" FROM "articles" ORDER BY "id" LIMIT 1)`, query)
}

func TestNullComparisons(t *testing.T) {
	f := dialect.NewFormatter(mysql.New())
	sel := stmt.NewSelect("articles")
	sel.Where = &expr.Binary{Op: expr.OpEq, Left: expr.Ident("gmt_deleted"), Right: expr.Value(nil)}
	query, values, err := f.Select(sel)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `articles` WHERE `gmt_deleted` IS NULL", query)
	assert.Empty(t, values)

	sel = stmt.NewSelect("articles")
	sel.Where = &expr.Binary{Op: expr.OpNe, Left: expr.Ident("gmt_deleted"), Right: expr.Value(nil)}
	query, _, err = f.Select(sel)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `articles` WHERE `gmt_deleted` IS NOT NULL", query)
}

func TestOrGroupingParenthesized(t *testing.T) {
	f := dialect.NewFormatter(mysql.New())
	sel := stmt.NewSelect("articles")
	user := mustExpr(t, `title like "%Post%" or title like "%Quote%"`)
	scope := &expr.Binary{Op: expr.OpIs, Left: expr.Ident("gmt_deleted"), Right: expr.Value(nil)}
	sel.Where = expr.And(user, scope)

	query, values, err := f.Select(sel)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `articles` WHERE (`title` LIKE ? OR `title` LIKE ?) AND `gmt_deleted` IS NULL", query)
	assert.Equal(t, []any{"%Post%", "%Quote%"}, values)
}

func TestInterpolate(t *testing.T) {
	f := dialect.NewFormatter(mysql.New())
	inline, err := f.Interpolate("SELECT * FROM `articles` WHERE `title` LIKE ? AND `word_count` > ?", []any{"%Post%", int64(100)})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `articles` WHERE `title` LIKE '%Post%' AND `word_count` > 100", inline)

	// question marks inside string literals survive
	inline, err = f.Interpolate("SELECT * FROM `articles` WHERE `title` = '?' AND `id` = ?", []any{int64(1)})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `articles` WHERE `title` = '?' AND `id` = 1", inline)

	pg := dialect.NewFormatter(postgres.New())
	inline, err = pg.Interpolate(`SELECT * FROM "articles" WHERE "title" = $1 AND "is_private" = $2`, []any{"Leah", true})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "articles" WHERE "title" = 'Leah' AND "is_private" = true`, inline)
}

func TestDDL(t *testing.T) {
	my := mysql.New()
	cols := []dialect.ColumnDef{
		{Name: "id", Type: "BIGINT", AutoIncrement: true, PrimaryKey: true},
		{Name: "title", Type: "VARCHAR(255)", AllowNull: true},
	}
	assert.Equal(t,
		"CREATE TABLE `articles` (`id` BIGINT AUTO_INCREMENT NOT NULL, `title` VARCHAR(255), PRIMARY KEY (`id`))",
		my.CreateTableSQL("articles", cols))
	assert.Equal(t, "ALTER TABLE `articles` ADD COLUMN `title` VARCHAR(255)",
		my.AddColumnSQL("articles", cols[1]))
	assert.Equal(t, "ALTER TABLE `articles` MODIFY COLUMN `title` VARCHAR(255)",
		my.ChangeColumnSQL("articles", cols[1]))
	assert.Equal(t, "TRUNCATE TABLE `articles`", my.TruncateTableSQL("articles"))
	assert.Equal(t, "CREATE UNIQUE INDEX `uk_articles_isbn` ON `articles` (`isbn`)",
		my.AddIndexSQL("articles", []string{"isbn"}, true))

	lite := sqlite.New()
	assert.Equal(t, `DELETE FROM "articles"`, lite.TruncateTableSQL("articles"))
	assert.Equal(t, "", lite.ChangeColumnSQL("articles", cols[1]))

	pg := postgres.New()
	assert.Equal(t,
		`ALTER TABLE "articles" ALTER COLUMN "title" TYPE VARCHAR(255), ALTER COLUMN "title" DROP NOT NULL`,
		pg.ChangeColumnSQL("articles", cols[1]))
}
