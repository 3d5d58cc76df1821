package messaging

import (
	"context"
	"errors"

	"github.com/Vasu1712/buddychat/internal/apperrors"
	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/models"
)

// ConversationStore reads and writes canonical conversation records.
type ConversationStore struct {
	store docstore.Store
}

func NewConversationStore(store docstore.Store) *ConversationStore {
	return &ConversationStore{store: store}
}

// Create writes a new conversation and returns its store-assigned ID.
func (s *ConversationStore) Create(ctx context.Context, conv models.Conversation) (string, error) {
	conv.ID = ""
	ref, err := s.store.Add(ctx, models.Conversations, conv)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// Get returns the conversation, or an apperrors NOT_FOUND error.
func (s *ConversationStore) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	doc, err := s.store.Get(ctx, models.ConversationRef(conversationID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperrors.Wrap(apperrors.CodeNotFound, "conversation not found", err)
	}
	if err != nil {
		return nil, err
	}
	return decodeConversation(doc)
}

// SetLastMessage replaces the preview field only.
func (s *ConversationStore) SetLastMessage(ctx context.Context, conversationID string, lm models.LastMessage) error {
	return s.store.Update(ctx, models.ConversationRef(conversationID), map[string]any{
		"lastMessage": lm,
	})
}

func decodeConversation(doc docstore.Document) (*models.Conversation, error) {
	var c models.Conversation
	if err := doc.DataTo(&c); err != nil {
		return nil, err
	}
	c.ID = doc.Ref.ID
	return &c, nil
}
