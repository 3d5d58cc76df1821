package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/buddychat/internal/apperrors"
	"github.com/Vasu1712/buddychat/internal/docstore/docstoretest"
)

func TestSeedConversation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	alice := SeedParticipant{ID: "alice", Name: "Alice"}
	bob := SeedParticipant{ID: "bob", Name: "Bob"}

	cid, err := f.coord.SeedConversation(ctx, alice, bob, []SeedLine{
		{Sender: "alice", Text: "hey"},
		{Sender: "bob", Text: "hi"},
		{Sender: "alice", Text: "library at 5?"},
	})
	require.NoError(t, err)

	var commits int
	for _, c := range f.writes() {
		if c.Op == docstoretest.OpCommit {
			commits++
		}
	}
	assert.Equal(t, 1, len(f.writes()))
	assert.Equal(t, 1, commits)

	msgs, err := f.coord.Transcript(ctx, cid, "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hey", msgs[0].Text)
	assert.Equal(t, "Bob", msgs[1].SenderName)
	assert.Equal(t, "library at 5?", msgs[2].Text)

	conv := f.conversation(t, cid)
	assert.Equal(t, "library at 5?", conv.LastMessage.Text)
	assert.Equal(t, "Bob", f.thread(t, "alice", cid).ConversationName)
	assert.Equal(t, "Alice", f.thread(t, "bob", cid).ConversationName)
	assert.Equal(t, 0, f.thread(t, "alice", cid).UnreadCount)
	assert.Equal(t, 1, f.thread(t, "bob", cid).UnreadCount)
	assert.Equal(t, "library at 5?", f.thread(t, "bob", cid).LastMessage.Text)
}

func TestSeedConversationRejectsStrangers(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.coord.SeedConversation(context.Background(),
		SeedParticipant{ID: "alice"}, SeedParticipant{ID: "bob"},
		[]SeedLine{{Sender: "mallory", Text: "hi"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	assert.Empty(t, f.writes())

	_, err = f.coord.SeedConversation(context.Background(),
		SeedParticipant{ID: "alice"}, SeedParticipant{ID: "alice"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}
