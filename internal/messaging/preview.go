package messaging

import (
	"strings"
	"time"

	"github.com/Vasu1712/buddychat/internal/models"
)

const (
	// SelfLabel replaces the sender name when the viewer sent the preview.
	SelfLabel = "Me"
	// PreviewTimeLayout formats the preview timestamp, e.g. "Mar 04, 17:30".
	PreviewTimeLayout = "Jan 02, 15:04"
)

// Preview is an inbox row as shown to the thread owner.
type Preview struct {
	ConversationID string `json:"conversationId"`
	Label          string `json:"label"`
	Line           string `json:"line"`
	Time           string `json:"time"`
	Unread         bool   `json:"unread"`
}

// FormatPreview renders t for a viewer whose display name is viewerName.
// Times are shown in loc, or UTC when loc is nil.
func FormatPreview(t models.Thread, viewerName string, loc *time.Location) Preview {
	p := Preview{
		ConversationID: t.ConversationID,
		Label:          t.ConversationName,
		Unread:         t.Unread(),
	}
	if t.LastMessage == nil {
		return p
	}
	sender := strings.TrimSpace(t.LastMessage.SenderName)
	if sender == "" {
		sender = UnknownLabel
	}
	if sender == strings.TrimSpace(viewerName) {
		sender = SelfLabel
	}
	p.Line = sender + ": " + t.LastMessage.Text
	if loc == nil {
		loc = time.UTC
	}
	p.Time = t.LastMessage.Timestamp.In(loc).Format(PreviewTimeLayout)
	return p
}

// FormatInbox renders every thread with FormatPreview, keeping order.
func FormatInbox(threads []models.Thread, viewerName string, loc *time.Location) []Preview {
	out := make([]Preview, 0, len(threads))
	for _, t := range threads {
		out = append(out, FormatPreview(t, viewerName, loc))
	}
	return out
}
