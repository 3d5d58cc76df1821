package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/docstore/docstoretest"
)

func TestConformance(t *testing.T) {
	docstoretest.Run(t, func(t *testing.T) docstore.Store { return NewStore() })
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ref := docstore.Collection("users").Doc("u1")
	require.NoError(t, s.Set(ctx, ref, map[string]any{"name": "Ada"}))

	got, err := s.Get(ctx, ref)
	require.NoError(t, err)
	got.Data["name"] = "mutated"

	again, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Data["name"])
}

func TestSubscriptionReleasesWatcher(t *testing.T) {
	s := NewStore()
	c := docstore.Collection("conversations", "c1", "messages")
	sub, err := s.Subscribe(context.Background(), docstore.NewQuery(c))
	require.NoError(t, err)
	docstoretest.Next(t, sub)
	assert.Equal(t, 1, s.Watchers(c))

	sub.Close()
	assert.Equal(t, 0, s.Watchers(c))
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ref := docstore.Collection("threads").Doc("t1")
	require.NoError(t, s.Set(ctx, ref, map[string]any{}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Update(ctx, ref, map[string]any{"fields.f" + string(rune('a'+i%26)): i}))
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, got.Data["fields"], 26)
}

func TestClosedStore(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Close())
	_, err := s.Get(context.Background(), docstore.Collection("x").Doc("y"))
	assert.ErrorIs(t, err, docstore.ErrClosed)
	_, err = s.Subscribe(context.Background(), docstore.NewQuery(docstore.Collection("x")))
	assert.ErrorIs(t, err, docstore.ErrClosed)
}
