package grimoire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoiredb/grimoire"
	"github.com/grimoiredb/grimoire/field"
)

func TestModelDefaults(t *testing.T) {
	Comment := newComment()
	assert.Equal(t, "comments", Comment.Table())
	assert.Equal(t, "id", Comment.PrimaryKey())
	assert.Equal(t, "id", Comment.PrimaryColumn())
	assert.False(t, Comment.Paranoid())

	Post := newPost()
	assert.Equal(t, "articles", Post.Table())
	assert.True(t, Post.Paranoid())
	assert.Equal(t, "gmt_create", Post.Attribute("createdAt").ColumnName)
}

func TestModelTableNamePluralizes(t *testing.T) {
	LeaveApplication := grimoire.MustNewModel(grimoire.ModelConfig{
		Name: "LeaveApplication",
		Attributes: []*field.Builder{
			field.BigInt("id").PrimaryKey(),
		},
	})
	assert.Equal(t, "leave_applications", LeaveApplication.Table())
}

func TestModelImplicitPrimaryKey(t *testing.T) {
	m := grimoire.MustNewModel(grimoire.ModelConfig{
		Name: "Tag",
		Attributes: []*field.Builder{
			field.BigInt("id"),
			field.String("name"),
		},
	})
	assert.Equal(t, "id", m.PrimaryKey())
	assert.True(t, m.Attribute("id").PrimaryKey)
}

func TestModelDefinitionErrors(t *testing.T) {
	_, err := grimoire.NewModel(grimoire.ModelConfig{
		Name: "Tag",
		Attributes: []*field.Builder{
			field.String("name"),
			field.String("name"),
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, grimoire.ErrDefinition)

	_, err = grimoire.NewModel(grimoire.ModelConfig{
		Name: "Tag",
		Attributes: []*field.Builder{
			field.String("name"),
			field.String("theName").ColumnName("name"),
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, grimoire.ErrDefinition)

	_, err = grimoire.NewModel(grimoire.ModelConfig{
		Name:        "Tag",
		ShardingKey: "companyId",
		Attributes:  []*field.Builder{field.String("name")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, grimoire.ErrDefinition)
}

func TestRenameAttribute(t *testing.T) {
	Post := newPost()

	require.NoError(t, Post.RenameAttribute("wordCount", "words"))
	assert.False(t, Post.HasAttribute("wordCount"))
	assert.True(t, Post.HasAttribute("words"))
	assert.Equal(t, "word_count", Post.Attribute("words").ColumnName)

	err := Post.RenameAttribute("words", "title")
	require.Error(t, err)
	assert.ErrorIs(t, err, grimoire.ErrDefinition)

	err = Post.RenameAttribute("gone", "anything")
	require.Error(t, err)
}

func TestDuplicateAssociation(t *testing.T) {
	Post := newPost()
	Comment := newComment()

	require.NoError(t, Post.HasMany("comments", Comment))
	err := Post.HasMany("comments", Comment)
	require.Error(t, err)
	assert.ErrorIs(t, err, grimoire.ErrDefinition)
}

func TestConnectedAlready(t *testing.T) {
	Post := newPost()
	_, _ = mysqlRealm(t, Post)

	_, err := grimoire.Connect(grimoire.Config{Dialect: "sqljs"}, Post)
	require.Error(t, err)
	assert.ErrorIs(t, err, grimoire.ErrConfiguration)
	assert.Contains(t, err.Error(), "connected already")
}

func TestUnknownDialect(t *testing.T) {
	_, err := grimoire.Connect(grimoire.Config{Dialect: "oracle"})
	require.Error(t, err)
	assert.ErrorIs(t, err, grimoire.ErrConfiguration)
}

func TestModelScopes(t *testing.T) {
	Published := grimoire.MustNewModel(grimoire.ModelConfig{
		Name:  "Article",
		Table: "articles",
		Attributes: []*field.Builder{
			field.BigInt("id").PrimaryKey(),
			field.String("title"),
			field.Bool("isPrivate"),
		},
		DefaultScope: func(s *grimoire.Spell) {
			s.Where("isPrivate = ?", false)
		},
		Scopes: map[string]grimoire.Scope{
			"titled": func(s *grimoire.Spell) { s.Where("title is not null") },
		},
	})
	_, _ = mysqlRealm(t, Published)

	assert.Equal(t,
		"SELECT * FROM `articles` WHERE `is_private` = 0",
		Published.All().String())
	assert.Equal(t,
		"SELECT * FROM `articles`",
		Published.Unscoped().String())
	assert.Equal(t,
		"SELECT * FROM `articles` WHERE `title` IS NOT NULL AND `is_private` = 0",
		Published.All().Scoped("titled").String())
}
