package grimoire_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoiredb/grimoire"
)

func TestCreate(t *testing.T) {
	Post := newPost()
	_, mock := mysqlRealm(t, Post)
	freezeClock(t, time.Date(2017, 12, 12, 0, 0, 0, 0, time.UTC))

	mock.ExpectExec("INSERT INTO `articles` (`title`, `gmt_create`, `gmt_modified`) VALUES (?, ?, ?)").
		WithArgs("New Post", "2017-12-12 00:00:00.000", "2017-12-12 00:00:00.000").
		WillReturnResult(sqlmock.NewResult(42, 1))

	post, err := Post.Create(context.Background(), grimoire.Values{"title": "New Post"})
	require.NoError(t, err)

	// the generated key is populated on the instance
	id, err := post.Attribute("id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.True(t, post.Persisted())
	assert.Empty(t, post.ChangedAttributes())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePostgresReturning(t *testing.T) {
	Post := newPost()
	_, mock := postgresRealm(t, Post)
	freezeClock(t, time.Date(2017, 12, 12, 0, 0, 0, 0, time.UTC))

	mock.ExpectQuery(`INSERT INTO "articles" ("title", "gmt_create", "gmt_modified") VALUES ($1, $2, $3) RETURNING "id"`).
		WithArgs("New Post", "2017-12-12 00:00:00.000", "2017-12-12 00:00:00.000").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	post, err := Post.Create(context.Background(), grimoire.Values{"title": "New Post"})
	require.NoError(t, err)
	id, err := post.Attribute("id")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// upsert against MySQL uses ON DUPLICATE KEY UPDATE with the
// LAST_INSERT_ID trick and never overwrites createdAt.
func TestUpsertMySQL(t *testing.T) {
	Post := newPost()
	_, mock := mysqlRealm(t, Post)

	post, err := Post.New(grimoire.Values{
		"id": 1, "title": "New Post",
		"createdAt": "2017-12-12", "updatedAt": "2017-12-12",
	})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO `articles` (`id`, `title`, `gmt_create`, `gmt_modified`) "+
		"VALUES (?, ?, ?, ?) "+
		"ON DUPLICATE KEY UPDATE `id` = LAST_INSERT_ID(`id`), `id` = VALUES(`id`), "+
		"`title` = VALUES(`title`), `gmt_modified` = VALUES(`gmt_modified`)").
		WithArgs(int64(1), "New Post", "2017-12-12 00:00:00.000", "2017-12-12 00:00:00.000").
		WillReturnResult(sqlmock.NewResult(1, 2))

	affected, err := post.Upsert(context.Background())
	require.NoError(t, err)
	// 2 signals the update branch on MySQL
	assert.Equal(t, int64(2), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPostgres(t *testing.T) {
	Post := newPost()
	_, mock := postgresRealm(t, Post)

	post, err := Post.New(grimoire.Values{
		"id": 1, "title": "New Post",
		"createdAt": "2017-12-12", "updatedAt": "2017-12-12",
	})
	require.NoError(t, err)

	mock.ExpectQuery(`INSERT INTO "articles" ("id", "title", "gmt_create", "gmt_modified") `+
		`VALUES ($1, $2, $3, $4) `+
		`ON CONFLICT ("id") DO UPDATE SET "id" = EXCLUDED."id", "title" = EXCLUDED."title", `+
		`"gmt_modified" = EXCLUDED."gmt_modified" RETURNING "id"`).
		WithArgs(int64(1), "New Post", "2017-12-12 00:00:00.000", "2017-12-12 00:00:00.000").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	affected, err := post.Upsert(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// increment freezes to UPDATE ... SET col = col + 1 with the managed
// timestamp, which silent mode omits.
func TestIncrement(t *testing.T) {
	Book := newBook()
	_, mock := mysqlRealm(t, Book)
	freezeClock(t, time.Date(2012, 12, 14, 12, 0, 0, 0, time.UTC))

	mock.ExpectExec("UPDATE `books` SET `price` = `price` + ?, `gmt_modified` = ? "+
		"WHERE `isbn` = ? AND `deleted_at` IS NULL").
		WithArgs(int64(1), "2012-12-14 12:00:00.000", 9787550616950).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := Book.Where("isbn = ?", 9787550616950).Increment(context.Background(), "price")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	mock.ExpectExec("UPDATE `books` SET `price` = `price` + ? "+
		"WHERE `isbn` = ? AND `deleted_at` IS NULL").
		WithArgs(int64(1), 9787550616950).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err = Book.Where("isbn = ?", 9787550616950).Silent().Increment(context.Background(), "price")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrement(t *testing.T) {
	Book := newBook()
	_, mock := mysqlRealm(t, Book)
	freezeClock(t, time.Date(2012, 12, 14, 12, 0, 0, 0, time.UTC))

	mock.ExpectExec("UPDATE `books` SET `price` = `price` - ?, `gmt_modified` = ? "+
		"WHERE `isbn` = ? AND `deleted_at` IS NULL").
		WithArgs(2, "2012-12-14 12:00:00.000", 9787550616950).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := Book.Where("isbn = ?", 9787550616950).Decrement(context.Background(), "price", 2)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceUpdate(t *testing.T) {
	Post := newPost()
	_, mock := mysqlRealm(t, Post)
	freezeClock(t, time.Date(2017, 12, 12, 0, 0, 0, 0, time.UTC))

	post, err := Post.Instantiate(map[string]any{"id": 1, "title": "Leah"})
	require.NoError(t, err)
	require.NoError(t, post.Set("title", "Diablo"))

	mock.ExpectExec("UPDATE `articles` SET `title` = ?, `gmt_modified` = ? "+
		"WHERE `id` = ? AND `deleted_at` IS NULL").
		WithArgs("Diablo", "2017-12-12 00:00:00.000", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := post.Update(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.Empty(t, post.ChangedAttributes())
	assert.Equal(t, []string{"title"}, post.PreviousChanged())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceUpdateRequiresPrimaryKey(t *testing.T) {
	Post := newPost()
	_, _ = mysqlRealm(t, Post)

	post, err := Post.New(grimoire.Values{"title": "Leah"})
	require.NoError(t, err)
	_, err = post.Update(context.Background(), grimoire.Values{"title": "Diablo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, grimoire.ErrIntegrity)
	assert.Contains(t, err.Error(), "primary key")
}

func TestSoftRemoveAndRestore(t *testing.T) {
	Post := newPost()
	_, mock := mysqlRealm(t, Post)
	freezeClock(t, time.Date(2017, 12, 12, 0, 0, 0, 0, time.UTC))

	post, err := Post.Instantiate(map[string]any{"id": 1, "title": "Leah"})
	require.NoError(t, err)

	mock.ExpectExec("UPDATE `articles` SET `deleted_at` = ? WHERE `id` = ? AND `deleted_at` IS NULL").
		WithArgs("2017-12-12 00:00:00.000", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	affected, err := post.Remove(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	mock.ExpectExec("UPDATE `articles` SET `deleted_at` = NULL WHERE `id` = ?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	affected, err = post.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForcedRemove(t *testing.T) {
	Post := newPost()
	_, mock := mysqlRealm(t, Post)

	post, err := Post.Instantiate(map[string]any{"id": 1, "title": "Leah"})
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM `articles` WHERE `id` = ?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	affected, err := post.Remove(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreNonParanoid(t *testing.T) {
	Comment := newComment()
	_, _ = mysqlRealm(t, Comment)

	comment, err := Comment.Instantiate(map[string]any{"id": 1})
	require.NoError(t, err)
	_, err = comment.Restore(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, grimoire.ErrIntegrity)
	assert.Contains(t, err.Error(), "not paranoid")

	_, err = Comment.Restore(context.Background(), grimoire.Values{"id": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, grimoire.ErrIntegrity)
}

func TestBulkCreate(t *testing.T) {
	Post := newPost()
	_, mock := mysqlRealm(t, Post)
	freezeClock(t, time.Date(2017, 12, 12, 0, 0, 0, 0, time.UTC))

	ts := "2017-12-12 00:00:00.000"
	mock.ExpectExec("INSERT INTO `articles` (`title`, `gmt_create`, `gmt_modified`) VALUES (?, ?, ?), (?, ?, ?)").
		WithArgs("Leah", ts, ts, "Diablo", ts, ts).
		WillReturnResult(sqlmock.NewResult(10, 2))

	posts, err := Post.BulkCreate(context.Background(), []grimoire.Values{
		{"title": "Leah", "ignored": "dropped"},
		{"title": "Diablo"},
	})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	// generated keys are assigned sequentially from the first insert id
	assert.Equal(t, int64(10), posts[0].GetDataValue("id"))
	assert.Equal(t, int64(11), posts[1].GetDataValue("id"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// transactions roll back as a whole when the body errors.
func TestTransactionRollback(t *testing.T) {
	Post := newPost()
	realm, mock := mysqlRealm(t, Post)
	freezeClock(t, time.Date(2017, 12, 12, 0, 0, 0, 0, time.UTC))

	ts := "2017-12-12 00:00:00.000"
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `articles` (`title`, `gmt_create`, `gmt_modified`) VALUES (?, ?, ?)").
		WithArgs("Leah", ts, ts).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `articles` (`title`, `gmt_create`, `gmt_modified`) VALUES (?, ?, ?)").
		WithArgs("Diablo", ts, ts).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectRollback()

	err := realm.Transaction(context.Background(), func(ctx context.Context) error {
		if _, err := Post.Create(ctx, grimoire.Values{"title": "Leah"}); err != nil {
			return err
		}
		if _, err := Post.Create(ctx, grimoire.Values{"title": "Diablo"}); err != nil {
			return err
		}
		return errors.New("rollback")
	})
	require.EqualError(t, err, "rollback")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCommit(t *testing.T) {
	Post := newPost()
	realm, mock := mysqlRealm(t, Post)
	freezeClock(t, time.Date(2017, 12, 12, 0, 0, 0, 0, time.UTC))

	ts := "2017-12-12 00:00:00.000"
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `articles` (`title`, `gmt_create`, `gmt_modified`) VALUES (?, ?, ?)").
		WithArgs("Leah", ts, ts).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := realm.Transaction(context.Background(), func(ctx context.Context) error {
		// nested transaction bodies reuse the outer connection
		return realm.Transaction(ctx, func(ctx context.Context) error {
			_, err := Post.Create(ctx, grimoire.Values{"title": "Leah"})
			return err
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
