package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Vasu1712/buddychat/internal/models"
)

func TestFormatPreview(t *testing.T) {
	at := time.Date(2024, 3, 4, 17, 30, 0, 0, time.UTC)
	thread := func(sender string, unread int) models.Thread {
		return models.Thread{
			ConversationID:   "c1",
			ConversationName: "Bob",
			UnreadCount:      unread,
			LastMessage:      &models.LastMessage{Text: "see you at 5", Timestamp: at, SenderName: sender},
		}
	}

	tests := []struct {
		name   string
		thread models.Thread
		viewer string
		want   Preview
	}{
		{
			name:   "counterpart sent",
			thread: thread("Bob", 1),
			viewer: "Alice",
			want:   Preview{ConversationID: "c1", Label: "Bob", Line: "Bob: see you at 5", Time: "Mar 04, 17:30", Unread: true},
		},
		{
			name:   "viewer sent",
			thread: thread("Alice", 0),
			viewer: "Alice",
			want:   Preview{ConversationID: "c1", Label: "Bob", Line: "Me: see you at 5", Time: "Mar 04, 17:30"},
		},
		{
			name:   "blank sender",
			thread: thread(" ", 1),
			viewer: "Alice",
			want:   Preview{ConversationID: "c1", Label: "Bob", Line: "Unknown: see you at 5", Time: "Mar 04, 17:30", Unread: true},
		},
		{
			name:   "no preview yet",
			thread: models.Thread{ConversationID: "c1", ConversationName: "Bob", UnreadCount: 1},
			viewer: "Alice",
			want:   Preview{ConversationID: "c1", Label: "Bob", Unread: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPreview(tt.thread, tt.viewer, nil))
		})
	}
}

func TestFormatPreviewLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	th := models.Thread{LastMessage: &models.LastMessage{
		Text:       "hi",
		SenderName: "Bob",
		Timestamp:  time.Date(2024, 12, 31, 20, 0, 0, 0, time.UTC),
	}}
	assert.Equal(t, "Jan 01, 01:30", FormatPreview(th, "Alice", loc).Time)
}

func TestFormatInboxKeepsOrder(t *testing.T) {
	got := FormatInbox([]models.Thread{
		{ConversationID: "b"},
		{ConversationID: "a"},
	}, "Alice", nil)
	assert.Equal(t, "b", got[0].ConversationID)
	assert.Equal(t, "a", got[1].ConversationID)
}
