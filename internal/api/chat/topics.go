package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/messaging"
	"github.com/Vasu1712/buddychat/internal/models"
)

const (
	topicInbox = "inbox"
	topicChat  = "chat"
)

func inboxTopic(userID string) string        { return topicInbox + ":" + userID }
func chatTopic(conversationID string) string { return topicChat + ":" + conversationID }

// Event is the payload pushed to websocket clients. Each event carries the
// complete current state of the topic.
type Event struct {
	Type     string              `json:"type"`
	Threads  []messaging.Preview `json:"threads,omitempty"`
	Messages []models.Message    `json:"messages,omitempty"`
	Message  string              `json:"message,omitempty"`
}

// OpenTopic subscribes to the store feed behind topic and renders every
// update as an Event. userID is the client opening the topic.
func (h *ChatHandler) OpenTopic(ctx context.Context, topic, userID string) (<-chan []byte, func(), error) {
	kind, id, _ := strings.Cut(topic, ":")
	switch kind {
	case topicInbox:
		if id != userID {
			return nil, nil, fmt.Errorf("inbox %q opened by %q", id, userID)
		}
		feed, err := h.Coord.SubscribeInbox(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		updates, stop := relay(feed, h.Log, func(threads []models.Thread) Event {
			// Looked up per update so a rename shows up on the next push.
			viewer, err := h.Profiles.DisplayName(ctx, id)
			if err != nil {
				h.Log.Warnw("viewer name lookup failed", "user", id, "error", err)
			}
			return Event{Type: "inbox", Threads: messaging.FormatInbox(threads, viewer, nil)}
		})
		return updates, stop, nil
	case topicChat:
		feed, err := h.Coord.SubscribeMessages(ctx, id, userID)
		if err != nil {
			return nil, nil, err
		}
		updates, stop := relay(feed, h.Log, func(msgs []models.Message) Event {
			return Event{Type: "messages", Messages: msgs}
		})
		return updates, stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown topic %q", topic)
	}
}

func relay[T any](feed *messaging.Feed[T], log *zap.SugaredLogger, render func([]T) Event) (<-chan []byte, func()) {
	out := make(chan []byte)
	quit := make(chan struct{})
	go func() {
		defer close(out)
		for u := range feed.Updates() {
			ev := Event{Type: "error", Message: "live updates interrupted"}
			if u.Err != nil {
				log.Warnw("topic feed error", "error", u.Err)
			} else {
				ev = render(u.Items)
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Errorw("encoding websocket event failed", "error", err)
				continue
			}
			select {
			case out <- data:
			case <-quit:
				return
			}
		}
	}()
	return out, func() {
		close(quit)
		feed.Close()
	}
}
