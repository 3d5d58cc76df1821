package messaging

import (
	"context"

	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/models"
)

// MessageLog is the append-only transcript of each conversation.
type MessageLog struct {
	store docstore.Store
}

func NewMessageLog(store docstore.Store) *MessageLog {
	return &MessageLog{store: store}
}

// Append stores msg under a fresh ID and returns it.
func (l *MessageLog) Append(ctx context.Context, conversationID string, msg models.Message) (string, error) {
	ref := models.Messages(conversationID).NewDoc()
	msg.ID = ""
	if err := l.store.Set(ctx, ref, msg); err != nil {
		return "", err
	}
	return ref.ID, nil
}

func transcriptQuery(conversationID string) docstore.Query {
	return docstore.NewQuery(models.Messages(conversationID)).OrderBy("createdAt", docstore.Asc)
}

// List returns the full transcript, oldest first.
func (l *MessageLog) List(ctx context.Context, conversationID string) ([]models.Message, error) {
	docs, err := l.store.Query(ctx, transcriptQuery(conversationID))
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, decodeMessage)
}

// Subscribe streams the full transcript, oldest first, after every append.
func (l *MessageLog) Subscribe(ctx context.Context, conversationID string) (*Feed[models.Message], error) {
	sub, err := l.store.Subscribe(ctx, transcriptQuery(conversationID))
	if err != nil {
		return nil, err
	}
	return newFeed(sub, decodeMessage), nil
}

func decodeMessage(doc docstore.Document) (models.Message, error) {
	var m models.Message
	if err := doc.DataTo(&m); err != nil {
		return m, err
	}
	m.ID = doc.Ref.ID
	return m, nil
}
