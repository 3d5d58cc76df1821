package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/buddychat/internal/apperrors"
	"github.com/Vasu1712/buddychat/internal/models"
)

func TestBuddyCandidates(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.dir.Put(ctx, models.Profile{ID: "alice", Name: "Alice", StudyBuddies: []string{"bob", "carol", "dave", "ghost", "erin"}}))
	require.NoError(t, f.dir.Put(ctx, models.Profile{ID: "carol", Name: "Carol", Subject: "Maths"}))
	require.NoError(t, f.dir.Put(ctx, models.Profile{ID: "dave", Name: "  "}))
	require.NoError(t, f.dir.Put(ctx, models.Profile{ID: "erin", Name: "Erin"}))
	f.start(t)

	got, err := f.coord.BuddyCandidates(ctx, "alice")
	require.NoError(t, err)
	var names []string
	for _, p := range got {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Carol", "Erin"}, names, "Bob already labels a thread, Dave has no name")
	assert.Equal(t, "Maths", got[0].Subject)
}

func TestBuddyCandidatesWithoutProfile(t *testing.T) {
	f := newFixture(t, Options{})
	got, err := f.coord.BuddyCandidates(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.coord.BuddyCandidates(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}
