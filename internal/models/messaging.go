package models

import "time"

// Conversation is the canonical record of a chat session, stored at
// conversations/{id}.
type Conversation struct {
	ID           string       `json:"id,omitempty"` // Assigned by the store, filled in on read
	Participants []string     `json:"participants"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastMessage  *LastMessage `json:"lastMessage"` // nil until the first message is sent
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// LastMessage is the denormalized preview of the most recent message.
type LastMessage struct {
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	SenderName string    `json:"senderName"`
}

// Message is one transcript entry, stored at
// conversations/{conversationId}/messages/{id}. Messages are never modified.
type Message struct {
	ID         string    `json:"id,omitempty"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"` // Captured at send time
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Thread is one participant's view of a conversation, stored at
// userConversations/{userId}/threads/{conversationId}.
type Thread struct {
	ConversationID   string       `json:"conversationId"`
	ConversationName string       `json:"conversationName"` // Label shown to the owner, usually the counterpart's name
	LastRead         time.Time    `json:"lastRead"`
	UnreadCount      int          `json:"unreadCount"` // 0 or 1, see Unread
	LastMessage      *LastMessage `json:"lastMessage"`
}

// Unread reports whether the thread has activity its owner has not seen.
func (t *Thread) Unread() bool {
	return t.UnreadCount > 0
}

// NeverRead is the lastRead value of a thread its owner has not opened.
var NeverRead = time.Unix(0, 0).UTC()
