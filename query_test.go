package grimoire_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoiredb/grimoire"
)

// soft-deleted rows are filtered by default and visible unscoped.
func TestFindScopesSoftDeleted(t *testing.T) {
	Post := newPost()
	_, mock := mysqlRealm(t, Post)

	mock.ExpectQuery("SELECT * FROM `articles` WHERE `deleted_at` IS NULL").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow(1, "New Post").
			AddRow(2, "Archbishop Lazarus").
			AddRow(3, "Archangel Tyrael"))

	posts, err := Post.All().All(context.Background())
	require.NoError(t, err)
	assert.Len(t, posts, 3)

	mock.ExpectQuery("SELECT * FROM `articles`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow(1, "New Post").
			AddRow(2, "Archbishop Lazarus").
			AddRow(3, "Archangel Tyrael").
			AddRow(4, "Diablo"))

	all, err := Post.Unscoped().All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 4)

	mock.ExpectQuery("SELECT * FROM `articles` WHERE `deleted_at` IS NULL ORDER BY `id` DESC LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(3, "Archangel Tyrael"))

	last, err := Post.Last(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	title, err := last.Attribute("title")
	require.NoError(t, err)
	assert.Equal(t, "Archangel Tyrael", title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFirstReturnsNilOnEmpty(t *testing.T) {
	Post := newPost()
	_, mock := mysqlRealm(t, Post)

	mock.ExpectQuery("SELECT * FROM `articles` WHERE `deleted_at` IS NULL ORDER BY `id` LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}))

	first, err := Post.First(context.Background())
	require.NoError(t, err)
	assert.Nil(t, first)
}

// grouped aggregates return plain rows.
func TestGroupedCount(t *testing.T) {
	Post := newPost()
	_, mock := mysqlRealm(t, Post)

	mock.ExpectQuery("SELECT MONTH(`gmt_create`) AS `month`, COUNT(*) AS `count` " +
		"FROM `articles` WHERE `deleted_at` IS NULL GROUP BY `month` ORDER BY `count` DESC").
		WillReturnRows(sqlmock.NewRows([]string{"month", "count"}).
			AddRow(5, 2).
			AddRow(11, 1))

	rows, err := Post.Group("MONTH(createdAt) as month").Count().Order("count desc").Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []grimoire.Values{
		{"month": int64(5), "count": int64(2)},
		{"month": int64(11), "count": int64(1)},
	}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScalarAggregates(t *testing.T) {
	Post := newPost()
	_, mock := mysqlRealm(t, Post)

	mock.ExpectQuery("SELECT COUNT(*) AS `count` FROM `articles` WHERE `deleted_at` IS NULL").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	count, err := Post.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	mock.ExpectQuery("SELECT SUM(`word_count`) AS `sum` FROM `articles` WHERE `deleted_at` IS NULL").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(60))
	sum, err := Post.All().Sum("wordCount").Scalar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(60), sum)

	mock.ExpectQuery("SELECT MAX(`word_count`) AS `maximum` FROM `articles` WHERE `deleted_at` IS NULL").
		WillReturnRows(sqlmock.NewRows([]string{"maximum"}).AddRow(40))
	max, err := Post.All().Maximum("wordCount").ScalarInt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(40), max)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatch(t *testing.T) {
	Post := newPost()
	_, mock := mysqlRealm(t, Post)

	mock.ExpectQuery("SELECT * FROM `articles` WHERE `deleted_at` IS NULL ORDER BY `id` LIMIT 2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(1, "a").AddRow(2, "b"))
	mock.ExpectQuery("SELECT * FROM `articles` WHERE `id` > ? AND `deleted_at` IS NULL ORDER BY `id` LIMIT 2").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(3, "c"))

	batch := Post.All().Batch(2)
	window, err := batch.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, window, 2)

	window, err = batch.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, window, 1)

	window, err = batch.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, window)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionSave(t *testing.T) {
	Post := newPost()
	_, mock := mysqlRealm(t, Post)
	posts := grimoire.Collection{}

	post, err := Post.Instantiate(map[string]any{"id": 1, "title": "Leah"})
	require.NoError(t, err)
	posts = append(posts, post)
	// unchanged persisted members are skipped, so no queries expected
	require.NoError(t, posts.Save(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryCache(t *testing.T) {
	Post := newPost()
	realm, mock := mysqlRealm(t, Post)
	realm.SetCache(grimoire.NewMemoryCache())

	mock.ExpectQuery("SELECT * FROM `articles` WHERE `deleted_at` IS NULL").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(1, "Leah"))

	first, err := Post.All().WithCache(time.Minute).All(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	// the second read is served from the cache; no further expectation
	second, err := Post.All().WithCache(time.Minute).All(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	title, err := second[0].Attribute("title")
	require.NoError(t, err)
	assert.Equal(t, "Leah", title)

	// writes invalidate the table's entries
	freezeClock(t, time.Date(2017, 12, 12, 0, 0, 0, 0, time.UTC))
	mock.ExpectExec("UPDATE `articles` SET `title` = ?, `gmt_modified` = ? WHERE `id` = ? AND `deleted_at` IS NULL").
		WithArgs("Diablo", "2017-12-12 00:00:00.000", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	_, err = Post.Where(grimoire.Values{"id": 1}).UpdateAll(context.Background(), grimoire.Values{"title": "Diablo"})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT * FROM `articles` WHERE `deleted_at` IS NULL").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(1, "Diablo"))
	third, err := Post.All().WithCache(time.Minute).All(context.Background())
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
