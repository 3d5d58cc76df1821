// Package docstoretest holds a behavioural test suite shared by every
// docstore backend.
package docstoretest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/buddychat/internal/docstore"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) docstore.Store

type record struct {
	Name    string    `json:"name"`
	Count   int       `json:"count"`
	At      time.Time `json:"at"`
	Preview *preview  `json:"preview"`
}

type preview struct {
	Text string `json:"text"`
	By   string `json:"by"`
}

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("SetGetRoundTrip", func(t *testing.T) { testSetGet(t, newStore(t)) })
	t.Run("AddAssignsID", func(t *testing.T) { testAdd(t, newStore(t)) })
	t.Run("UpdatePreservesFields", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("QueryOrderAndFilter", func(t *testing.T) { testQuery(t, newStore(t)) })
	t.Run("OrderTiesFollowInsertion", func(t *testing.T) { testOrderTies(t, newStore(t)) })
	t.Run("BatchIsAtomic", func(t *testing.T) { testBatch(t, newStore(t)) })
	t.Run("SubscriptionRedelivers", func(t *testing.T) { testSubscribe(t, newStore(t)) })
	t.Run("SubscriptionIsolation", func(t *testing.T) { testSubscribeIsolation(t, newStore(t)) })
}

func coll(t *testing.T) docstore.CollectionRef {
	// Unique per test so networked backends can share a database.
	return docstore.Collection("conformance", docstore.NewID(), "items")
}

func testGetMissing(t *testing.T, s docstore.Store) {
	defer s.Close()
	_, err := s.Get(context.Background(), coll(t).Doc("nope"))
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func testSetGet(t *testing.T, s docstore.Store) {
	defer s.Close()
	ctx := context.Background()
	at := time.Date(2025, 5, 4, 12, 30, 0, 250, time.UTC)
	ref := coll(t).Doc("r1")

	require.NoError(t, s.Set(ctx, ref, record{Name: "first", Count: 3, At: at}))
	require.NoError(t, s.Set(ctx, ref, record{Name: "second", Count: 4, At: at}))

	got, err := s.Get(ctx, ref)
	require.NoError(t, err)
	var r record
	require.NoError(t, got.DataTo(&r))
	assert.Equal(t, "second", r.Name)
	assert.Equal(t, 4, r.Count)
	assert.True(t, at.Equal(r.At))
	assert.Nil(t, r.Preview)
	assert.Equal(t, ref, got.Ref)
}

func testAdd(t *testing.T, s docstore.Store) {
	defer s.Close()
	ctx := context.Background()
	c := coll(t)
	a, err := s.Add(ctx, c, record{Name: "a"})
	require.NoError(t, err)
	b, err := s.Add(ctx, c, record{Name: "b"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, c, a.Parent)

	got, err := s.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Data["name"])
}

func testUpdate(t *testing.T, s docstore.Store) {
	defer s.Close()
	ctx := context.Background()
	ref := coll(t).Doc("r1")
	require.NoError(t, s.Set(ctx, ref, record{Name: "keep", Count: 1}))

	require.NoError(t, s.Update(ctx, ref, map[string]any{
		"preview": preview{Text: "hello", By: "Ada"},
		"count":   2,
	}))
	require.NoError(t, s.Update(ctx, ref, map[string]any{"preview.text": "edited"}))

	got, err := s.Get(ctx, ref)
	require.NoError(t, err)
	var r record
	require.NoError(t, got.DataTo(&r))
	assert.Equal(t, "keep", r.Name)
	assert.Equal(t, 2, r.Count)
	require.NotNil(t, r.Preview)
	assert.Equal(t, "edited", r.Preview.Text)
	assert.Equal(t, "Ada", r.Preview.By)
}

func testUpdateMissing(t *testing.T, s docstore.Store) {
	defer s.Close()
	err := s.Update(context.Background(), coll(t).Doc("ghost"), map[string]any{"count": 1})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func testQuery(t *testing.T, s docstore.Store) {
	defer s.Close()
	ctx := context.Background()
	c := coll(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Set(ctx, c.Doc("old"), record{Name: "x", At: base}))
	require.NoError(t, s.Set(ctx, c.Doc("new"), record{Name: "x", At: base.Add(time.Hour)}))
	require.NoError(t, s.Set(ctx, c.Doc("other"), record{Name: "y", At: base.Add(2 * time.Hour)}))
	// A document in a sibling collection must never leak into results.
	require.NoError(t, s.Set(ctx, docstore.Collection(c.Path+"-sibling").Doc("z"), record{Name: "x"}))

	docs, err := s.Query(ctx, docstore.NewQuery(c).Where("name", docstore.OpEqual, "x").OrderBy("at", docstore.Desc))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new", docs[0].Ref.ID)
	assert.Equal(t, "old", docs[1].Ref.ID)

	docs, err = s.Query(ctx, docstore.NewQuery(c).Where(docstore.DocumentID, docstore.OpIn, []string{"other", "old"}).OrderBy("at", docstore.Asc))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "old", docs[0].Ref.ID)
	assert.Equal(t, "other", docs[1].Ref.ID)
}

func testOrderTies(t *testing.T, s docstore.Store) {
	defer s.Close()
	ctx := context.Background()
	c := coll(t)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	names := []string{"first", "second", "third", "fourth", "fifth"}
	for _, name := range names {
		_, err := s.Add(ctx, c, record{Name: name, At: at})
		require.NoError(t, err)
	}

	docs, err := s.Query(ctx, docstore.NewQuery(c).OrderBy("at", docstore.Asc))
	require.NoError(t, err)
	require.Len(t, docs, len(names))
	for i, d := range docs {
		assert.Equal(t, names[i], d.Data["name"])
	}
}

func testBatch(t *testing.T, s docstore.Store) {
	defer s.Close()
	ctx := context.Background()
	c := coll(t)

	err := docstore.NewBatch(s).
		Set(c.Doc("a"), record{Name: "a"}).
		Update(c.Doc("missing"), map[string]any{"count": 1}).
		Commit(ctx)
	require.Error(t, err)
	_, err = s.Get(ctx, c.Doc("a"))
	assert.ErrorIs(t, err, docstore.ErrNotFound, "failed batch must not leave partial writes")

	require.NoError(t, docstore.NewBatch(s).
		Set(c.Doc("a"), record{Name: "a"}).
		Set(c.Doc("b"), record{Name: "b"}).
		Update(c.Doc("a"), map[string]any{"count": 7}).
		Commit(ctx))
	got, err := s.Get(ctx, c.Doc("a"))
	require.NoError(t, err)
	assert.Equal(t, float64(7), got.Data["count"])
	_, err = s.Get(ctx, c.Doc("b"))
	assert.NoError(t, err)
}

// Next waits for the next snapshot of sub.
func Next(t *testing.T, sub *docstore.Subscription) docstore.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Updates():
		require.True(t, ok, "subscription ended")
		return snap
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return docstore.Snapshot{}
	}
}

// Eventually reads snapshots until cond holds for one of them.
func Eventually(t *testing.T, sub *docstore.Subscription, cond func([]docstore.Document) bool) []docstore.Document {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap, ok := <-sub.Updates():
			require.True(t, ok, "subscription ended")
			if snap.Err == nil && cond(snap.Docs) {
				return snap.Docs
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
			return nil
		}
	}
}

func testSubscribe(t *testing.T, s docstore.Store) {
	defer s.Close()
	ctx := context.Background()
	c := coll(t)

	sub, err := s.Subscribe(ctx, docstore.NewQuery(c).OrderBy("count", docstore.Asc))
	require.NoError(t, err)

	first := Next(t, sub)
	require.NoError(t, first.Err)
	assert.Empty(t, first.Docs)

	require.NoError(t, s.Set(ctx, c.Doc("a"), record{Name: "a", Count: 2}))
	require.NoError(t, s.Set(ctx, c.Doc("b"), record{Name: "b", Count: 1}))
	docs := Eventually(t, sub, func(d []docstore.Document) bool { return len(d) == 2 })
	assert.Equal(t, "b", docs[0].Ref.ID)

	require.NoError(t, s.Update(ctx, c.Doc("b"), map[string]any{"count": 5}))
	docs = Eventually(t, sub, func(d []docstore.Document) bool { return len(d) == 2 && d[0].Ref.ID == "a" })
	assert.Equal(t, "b", docs[1].Ref.ID)

	sub.Close()
	sub.Close()
	for range sub.Updates() {
	}
}

func testSubscribeIsolation(t *testing.T, s docstore.Store) {
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	c := coll(t)

	sub, err := s.Subscribe(ctx, docstore.NewQuery(c))
	require.NoError(t, err)
	Next(t, sub)

	require.NoError(t, s.Set(ctx, docstore.Collection(c.Path+"-other").Doc("x"), record{Name: "x"}))
	require.NoError(t, s.Set(ctx, c.Doc("mine"), record{Name: "m"}))
	docs := Eventually(t, sub, func(d []docstore.Document) bool { return len(d) == 1 })
	assert.Equal(t, "mine", docs[0].Ref.ID)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not stop on context cancellation")
	}
}
