package grimoire_test

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/grimoiredb/grimoire"
	"github.com/grimoiredb/grimoire/dialect"
	"github.com/grimoiredb/grimoire/dialect/mysql"
	"github.com/grimoiredb/grimoire/dialect/postgres"
	"github.com/grimoiredb/grimoire/dialect/sqlite"
	"github.com/grimoiredb/grimoire/field"
)

// newPost declares the blog article model most tests run against.
func newPost() *grimoire.Model {
	return grimoire.MustNewModel(grimoire.ModelConfig{
		Name:  "Post",
		Table: "articles",
		Attributes: []*field.Builder{
			field.BigInt("id").PrimaryKey().AutoIncrement(),
			field.String("title").NotNull(),
			field.Text("content"),
			field.Bool("isPrivate"),
			field.Int("wordCount"),
			field.Date("createdAt").ColumnName("gmt_create"),
			field.Date("updatedAt").ColumnName("gmt_modified"),
			field.Date("deletedAt"),
		},
	})
}

func newBook() *grimoire.Model {
	return grimoire.MustNewModel(grimoire.ModelConfig{
		Name: "Book",
		Attributes: []*field.Builder{
			field.BigInt("isbn").PrimaryKey(),
			field.String("name"),
			field.Decimal("price", 10, 2),
			field.Date("updatedAt").ColumnName("gmt_modified"),
			field.Date("deletedAt"),
		},
	})
}

func newComment() *grimoire.Model {
	return grimoire.MustNewModel(grimoire.ModelConfig{
		Name: "Comment",
		Attributes: []*field.Builder{
			field.BigInt("id").PrimaryKey().AutoIncrement(),
			field.BigInt("postId"),
			field.String("content"),
		},
	})
}

// newShard declares a sharded model; every predicate must constrain
// companyId.
func newShard() *grimoire.Model {
	return grimoire.MustNewModel(grimoire.ModelConfig{
		Name:        "Staff",
		ShardingKey: "companyId",
		Attributes: []*field.Builder{
			field.BigInt("id").PrimaryKey().AutoIncrement(),
			field.BigInt("companyId"),
			field.String("name"),
		},
	})
}

// mockRealm binds the given models to a sqlmock-backed driver with
// exact query matching.
func mockRealm(t *testing.T, d dialect.Dialect, models ...*grimoire.Model) (*grimoire.Realm, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	drv := dialect.NewDriver(d, db)
	realm, err := grimoire.ConnectDriver(drv, models...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = realm.Disconnect() })
	return realm, mock
}

func mysqlRealm(t *testing.T, models ...*grimoire.Model) (*grimoire.Realm, sqlmock.Sqlmock) {
	return mockRealm(t, mysql.New(), models...)
}

func postgresRealm(t *testing.T, models ...*grimoire.Model) (*grimoire.Realm, sqlmock.Sqlmock) {
	return mockRealm(t, postgres.New(), models...)
}

func sqliteRealm(t *testing.T, models ...*grimoire.Model) (*grimoire.Realm, sqlmock.Sqlmock) {
	return mockRealm(t, sqlite.New(), models...)
}

// freezeClock pins grimoire.Now for the duration of the test.
func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := grimoire.Now
	grimoire.Now = func() time.Time { return at }
	t.Cleanup(func() { grimoire.Now = prev })
}
