package messaging

import (
	"context"
	"time"

	"github.com/Vasu1712/buddychat/internal/apperrors"
	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/models"
)

// SeedParticipant is one side of a seeded conversation.
type SeedParticipant struct {
	ID   string
	Name string
}

// SeedLine is one seeded message. Sender must be A or B.
type SeedLine struct {
	Sender string
	Text   string
}

// SeedConversation writes a conversation between a and b with the given
// transcript, and both threads, in one batch. Messages are spaced one
// second apart ending at the current time. a's thread is marked read and
// b's is left unread.
func (c *Coordinator) SeedConversation(ctx context.Context, a, b SeedParticipant, lines []SeedLine) (string, error) {
	if !validID(a.ID) || !validID(b.ID) || a.ID == b.ID {
		return "", apperrors.InvalidArg("seeding needs two distinct participants")
	}
	names := map[string]string{a.ID: a.Name, b.ID: b.Name}
	for id, name := range names {
		if name == "" {
			names[id] = c.defaultSenderName
		}
	}

	now := c.now()
	start := now.Add(-time.Duration(len(lines)) * time.Second)
	convRef := models.Conversations.NewDoc()
	batch := docstore.NewBatch(c.store)

	var last *models.LastMessage
	for i, line := range lines {
		name, ok := names[line.Sender]
		if !ok {
			return "", apperrors.InvalidArg("seed line sender is not a participant: " + line.Sender)
		}
		at := start.Add(time.Duration(i+1) * time.Second)
		batch.Set(models.Messages(convRef.ID).NewDoc(), models.Message{
			SenderID:   line.Sender,
			SenderName: name,
			Text:       line.Text,
			CreatedAt:  at,
		})
		last = &models.LastMessage{Text: line.Text, Timestamp: at, SenderName: name}
	}

	batch.Set(convRef, models.Conversation{
		Participants: []string{a.ID, b.ID},
		CreatedAt:    start,
		LastMessage:  last,
	})
	batch.Set(models.ThreadRef(a.ID, convRef.ID), models.Thread{
		ConversationID:   convRef.ID,
		ConversationName: names[b.ID],
		LastRead:         now,
		UnreadCount:      0,
		LastMessage:      last,
	})
	batch.Set(models.ThreadRef(b.ID, convRef.ID), models.Thread{
		ConversationID:   convRef.ID,
		ConversationName: names[a.ID],
		LastRead:         models.NeverRead,
		UnreadCount:      1,
		LastMessage:      last,
	})
	if err := batch.Commit(ctx); err != nil {
		return "", storeError("seed not written", err)
	}
	c.log.Infow("seeded conversation", "conversation", convRef.ID, "messages", len(lines))
	return convRef.ID, nil
}
