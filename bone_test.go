package grimoire_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoiredb/grimoire"
)

func TestAttributeAccess(t *testing.T) {
	Post := newPost()

	post, err := Post.New(grimoire.Values{"title": "New Post", "wordCount": 100})
	require.NoError(t, err)

	title, err := post.Attribute("title")
	require.NoError(t, err)
	assert.Equal(t, "New Post", title)

	// integers normalize through the codec
	count, err := post.Attribute("wordCount")
	require.NoError(t, err)
	assert.Equal(t, int64(100), count)

	_, err = post.Attribute("nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, grimoire.ErrLogical)
	assert.Contains(t, err.Error(), "no attribute")
}

func TestUnsetAttribute(t *testing.T) {
	Post := newPost()

	// a projection that skipped most columns leaves them unset
	post, err := Post.Instantiate(map[string]any{"id": 1, "title": "New Post"})
	require.NoError(t, err)

	_, err = post.Attribute("content")
	require.Error(t, err)
	assert.ErrorIs(t, err, grimoire.ErrLogical)
	assert.Contains(t, err.Error(), "unset attribute")

	// writing clears the unset flag
	require.NoError(t, post.Set("content", "..."))
	content, err := post.Attribute("content")
	require.NoError(t, err)
	assert.Equal(t, "...", content)
}

func TestChangeTracking(t *testing.T) {
	Post := newPost()

	post, err := Post.Instantiate(map[string]any{"id": 1, "title": "Leah", "word_count": 20})
	require.NoError(t, err)
	assert.Empty(t, post.ChangedAttributes())
	assert.True(t, post.Persisted())

	require.NoError(t, post.Set("title", "Diablo"))
	assert.True(t, post.Changed("title"))
	assert.False(t, post.Changed("wordCount"))
	assert.Equal(t, []string{"title"}, post.ChangedAttributes())
	assert.Equal(t, map[string][]any{"title": {"Leah", "Diablo"}}, post.Changes())
	assert.Equal(t, "Leah", post.AttributeWas("title"))
}

func TestToJSONAndToObject(t *testing.T) {
	Post := newPost()

	post, err := Post.Instantiate(map[string]any{
		"id": 1, "title": "Leah", "content": nil, "is_private": false,
		"word_count": 20, "gmt_create": nil, "gmt_modified": nil, "deleted_at": nil,
	})
	require.NoError(t, err)

	asJSON := post.ToJSON()
	assert.Equal(t, int64(1), asJSON["id"])
	assert.Equal(t, "Leah", asJSON["title"])
	// null attributes are omitted
	_, hasContent := asJSON["content"]
	assert.False(t, hasContent)

	asObject := post.ToObject()
	// null attributes are included
	content, hasContent := asObject["content"]
	assert.True(t, hasContent)
	assert.Nil(t, content)
}

// instantiating a serialized instance round-trips.
func TestInstantiateRoundTrip(t *testing.T) {
	Post := newPost()

	original, err := Post.Instantiate(map[string]any{
		"id": 1, "title": "Leah", "content": "...", "is_private": true,
		"word_count": 20, "gmt_create": nil, "gmt_modified": nil, "deleted_at": nil,
	})
	require.NoError(t, err)

	object := original.ToObject()
	row := make(map[string]any, len(object))
	for attr, v := range object {
		row[Post.Attribute(attr).ColumnName] = v
	}
	copied, err := Post.Instantiate(row)
	require.NoError(t, err)
	assert.Equal(t, object, copied.ToObject())
}

func TestNewAppliesCodecs(t *testing.T) {
	Post := newPost()

	post, err := Post.New(grimoire.Values{"createdAt": "2017-12-12"})
	require.NoError(t, err)
	created, err := post.Attribute("createdAt")
	require.NoError(t, err)
	want := time.Date(2017, 12, 12, 0, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(created.(time.Time)))

	_, err = Post.New(grimoire.Values{"wordCount": "many"})
	require.Error(t, err)
	assert.ErrorIs(t, err, grimoire.ErrValidation)
}
