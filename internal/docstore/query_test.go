package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(t *testing.T, id string, v any) Document {
	t.Helper()
	data, err := Encode(v)
	require.NoError(t, err)
	return Document{Ref: Collection("threads").Doc(id), Data: data}
}

func ids(docs []Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Ref.ID)
	}
	return out
}

func TestQueryOrdersByNestedTimestampDescending(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	docs := []Document{
		doc(t, "a", map[string]any{"lastMessage": map[string]any{"timestamp": base.Add(time.Second)}}),
		doc(t, "b", map[string]any{"lastMessage": nil}),
		// Fractional seconds must not break chronological order.
		doc(t, "c", map[string]any{"lastMessage": map[string]any{"timestamp": base.Add(1500 * time.Millisecond)}}),
		doc(t, "d", map[string]any{"lastMessage": map[string]any{"timestamp": base}}),
	}

	q := NewQuery(Collection("threads")).OrderBy("lastMessage.timestamp", Desc)
	assert.Equal(t, []string{"c", "a", "d", "b"}, ids(q.Apply(docs)))

	q = NewQuery(Collection("threads")).OrderBy("lastMessage.timestamp", Asc)
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids(q.Apply(docs)))
}

func TestQueryFilters(t *testing.T) {
	docs := []Document{
		doc(t, "u1", map[string]any{"name": "Ada", "status": "pending"}),
		doc(t, "u2", map[string]any{"name": "Grace", "status": "accepted"}),
		doc(t, "u3", map[string]any{"name": "Katherine", "status": "pending"}),
	}

	pending := NewQuery(Collection("threads")).Where("status", OpEqual, "pending")
	assert.Equal(t, []string{"u1", "u3"}, ids(pending.Apply(docs)))

	byID := NewQuery(Collection("threads")).Where(DocumentID, OpIn, []string{"u3", "u2", "missing"})
	require.NoError(t, byID.Validate())
	assert.Equal(t, []string{"u2", "u3"}, ids(byID.Apply(docs)))

	limited := NewQuery(Collection("threads")).OrderBy("name", Desc).LimitTo(2)
	assert.Equal(t, []string{"u3", "u2"}, ids(limited.Apply(docs)))
}

func TestQueryValidate(t *testing.T) {
	assert.Error(t, Query{}.Validate())
	assert.Error(t, NewQuery(Collection("x")).Where("a", OpIn, "not-a-list").Validate())
	assert.Error(t, NewQuery(Collection("x")).Where("a", Op(">"), 1).Validate())
	assert.NoError(t, NewQuery(Collection("x")).Where("a", OpEqual, 1).Validate())
}

func TestQueryBuilderDoesNotAlias(t *testing.T) {
	base := NewQuery(Collection("x")).Where("a", OpEqual, 1)
	left := base.Where("b", OpEqual, 2)
	right := base.Where("c", OpEqual, 3)
	assert.Len(t, base.Filters, 1)
	assert.Equal(t, "b", left.Filters[1].Field)
	assert.Equal(t, "c", right.Filters[1].Field)
}

func TestMergeDottedPaths(t *testing.T) {
	orig := map[string]any{
		"participants": []any{"a", "b"},
		"lastMessage":  map[string]any{"text": "old", "senderName": "Ada"},
	}
	merged, err := Merge(orig, map[string]any{
		"lastMessage.text": "new",
		"unreadCount":      1,
	})
	require.NoError(t, err)

	assert.Equal(t, "new", merged["lastMessage"].(map[string]any)["text"])
	assert.Equal(t, "Ada", merged["lastMessage"].(map[string]any)["senderName"])
	assert.Equal(t, float64(1), merged["unreadCount"])
	assert.Equal(t, []any{"a", "b"}, merged["participants"])
	// The input is left untouched.
	assert.Equal(t, "old", orig["lastMessage"].(map[string]any)["text"])
}

func TestApplyWritesRejectsUpdateOfMissingDocument(t *testing.T) {
	coll := Collection("threads")
	writes := []Write{
		{Kind: WriteSet, Ref: coll.Doc("a"), Data: map[string]any{"n": float64(1)}},
		{Kind: WriteUpdate, Ref: coll.Doc("a"), Data: map[string]any{"m": 2}},
	}
	docs, err := ApplyWrites(writes, func(DocRef) (map[string]any, error) { return nil, nil })
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, float64(2), docs[0].Data["m"])

	_, err = ApplyWrites([]Write{{Kind: WriteUpdate, Ref: coll.Doc("b"), Data: map[string]any{"m": 2}}},
		func(DocRef) (map[string]any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocRefPaths(t *testing.T) {
	ref := Collection("conversations").Doc("c1")
	assert.Equal(t, "conversations/c1", ref.Path())
	assert.Equal(t, "conversations/c1/messages", ref.Collection("messages").Path)
	assert.Equal(t, "userConversations/u1/threads", Collection("userConversations", "u1", "threads").Path)
	assert.False(t, Collection("x").Doc("a/b").Valid())
	assert.NotEqual(t, Collection("x").NewDoc().ID, Collection("x").NewDoc().ID)
}
