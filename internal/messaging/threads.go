package messaging

import (
	"context"
	"time"

	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/models"
)

// ThreadProjection maintains each participant's denormalized view of the
// conversations they take part in.
type ThreadProjection struct {
	store docstore.Store
}

func NewThreadProjection(store docstore.Store) *ThreadProjection {
	return &ThreadProjection{store: store}
}

// Create overwrites the owner's thread for t.ConversationID.
func (p *ThreadProjection) Create(ctx context.Context, ownerID string, t models.Thread) error {
	return p.store.Set(ctx, models.ThreadRef(ownerID, t.ConversationID), t)
}

// sendFields is the partial update applied to a participant's thread when
// a message is sent. The label is never touched.
func sendFields(isSender bool, lm models.LastMessage, now time.Time) map[string]any {
	fields := map[string]any{"lastMessage": lm}
	if isSender {
		fields["lastRead"] = now
		fields["unreadCount"] = 0
	} else {
		fields["unreadCount"] = 1
	}
	return fields
}

// ApplySend updates the owner's thread for a newly sent message.
func (p *ThreadProjection) ApplySend(ctx context.Context, ownerID, conversationID string, isSender bool, lm models.LastMessage, now time.Time) error {
	return p.store.Update(ctx, models.ThreadRef(ownerID, conversationID), sendFields(isSender, lm, now))
}

// MarkRead clears the unread flag of the owner's thread.
func (p *ThreadProjection) MarkRead(ctx context.Context, ownerID, conversationID string, now time.Time) error {
	return p.store.Update(ctx, models.ThreadRef(ownerID, conversationID), map[string]any{
		"lastRead":    now,
		"unreadCount": 0,
	})
}

// inboxQuery orders threads by most recent activity. Threads that have no
// preview yet sort last.
func inboxQuery(ownerID string) docstore.Query {
	return docstore.NewQuery(models.Threads(ownerID)).OrderBy("lastMessage.timestamp", docstore.Desc)
}

// List returns the owner's threads, most recent first.
func (p *ThreadProjection) List(ctx context.Context, ownerID string) ([]models.Thread, error) {
	docs, err := p.store.Query(ctx, inboxQuery(ownerID))
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, decodeThread)
}

// Subscribe streams the owner's inbox after every thread change.
func (p *ThreadProjection) Subscribe(ctx context.Context, ownerID string) (*Feed[models.Thread], error) {
	sub, err := p.store.Subscribe(ctx, inboxQuery(ownerID))
	if err != nil {
		return nil, err
	}
	return newFeed(sub, decodeThread), nil
}

func decodeThread(doc docstore.Document) (models.Thread, error) {
	var t models.Thread
	if err := doc.DataTo(&t); err != nil {
		return t, err
	}
	if t.ConversationID == "" {
		t.ConversationID = doc.Ref.ID
	}
	return t, nil
}
