package ws

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/metrics"
)

type Client struct {
	UserID string
	Topic  string
	Send   chan []byte
	Conn   *websocket.Conn // nil in tests
}

// Source opens the live feed behind a topic on behalf of userID, the first
// client to join it. Every value received from the channel is broadcast to
// the topic's clients; stop ends the feed and must eventually close the
// channel.
type Source func(ctx context.Context, topic, userID string) (updates <-chan []byte, stop func(), err error)

type BroadcastMessage struct {
	Topic string
	Data  []byte
	gen   uint64 // feed generation, 0 for external broadcasts
}

// topicFeed is a feed that is opening (stop == nil) or running.
type topicFeed struct {
	gen  uint64
	stop func()
}

type openResult struct {
	topic   string
	gen     uint64
	updates <-chan []byte
	stop    func()
	err     error
}

// Hub fans topic updates out to websocket clients. The first client of a
// topic opens its feed, later clients get the latest update replayed, and
// the feed is stopped when the last client leaves.
type Hub struct {
	Clients    map[string]map[*Client]bool // topic -> clients
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan BroadcastMessage

	source  Source
	log     *zap.SugaredLogger
	feeds   map[string]topicFeed
	last    map[string][]byte
	nextGen uint64
	opened  chan openResult
	done    chan struct{}
	mu      sync.RWMutex
}

func NewHub(source Source, log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		Clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan BroadcastMessage),
		source:     source,
		log:        log,
		feeds:      make(map[string]topicFeed),
		last:       make(map[string][]byte),
		opened:     make(chan openResult),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx ends, then stops every feed and closes every
// client's Send channel.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.Register:
			h.register(ctx, client)
		case res := <-h.opened:
			h.install(ctx, res)
		case client := <-h.Unregister:
			h.mu.Lock()
			if clients, ok := h.Clients[client.Topic]; ok {
				if _, ok := clients[client]; ok {
					h.drop(client)
				}
			}
			h.mu.Unlock()
		case msg := <-h.Broadcast:
			h.mu.Lock()
			if feed, ok := h.feeds[msg.Topic]; msg.gen != 0 && (!ok || feed.gen != msg.gen) {
				h.mu.Unlock()
				continue
			}
			if len(h.Clients[msg.Topic]) > 0 {
				h.last[msg.Topic] = msg.Data
			}
			for client := range h.Clients[msg.Topic] {
				select {
				case client.Send <- msg.Data:
				default:
					h.log.Warnw("dropping slow websocket client", "topic", msg.Topic, "user", client.UserID)
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) register(ctx context.Context, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Clients[client.Topic] == nil {
		h.Clients[client.Topic] = make(map[*Client]bool)
	}
	if _, ok := h.feeds[client.Topic]; !ok && h.source != nil {
		h.nextGen++
		h.feeds[client.Topic] = topicFeed{gen: h.nextGen}
		go h.open(ctx, client.Topic, client.UserID, h.nextGen)
	}
	h.Clients[client.Topic][client] = true
	metrics.WSClients.Inc()
	if data, ok := h.last[client.Topic]; ok {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// open runs the source outside the Run loop and hands the result back to it.
func (h *Hub) open(ctx context.Context, topic, userID string, gen uint64) {
	updates, stop, err := h.source(ctx, topic, userID)
	res := openResult{topic: topic, gen: gen, updates: updates, stop: stop, err: err}
	select {
	case h.opened <- res:
	case <-h.done:
		if err == nil {
			stop()
		}
	}
}

func (h *Hub) install(ctx context.Context, res openResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	feed, ok := h.feeds[res.topic]
	if !ok || feed.gen != res.gen {
		// Everyone left while the feed was opening.
		if res.err == nil {
			go res.stop()
		}
		return
	}
	if res.err != nil {
		h.log.Warnw("opening topic failed", "topic", res.topic, "error", res.err)
		delete(h.feeds, res.topic)
		for client := range h.Clients[res.topic] {
			close(client.Send)
			metrics.WSClients.Dec()
		}
		delete(h.Clients, res.topic)
		delete(h.last, res.topic)
		return
	}
	h.feeds[res.topic] = topicFeed{gen: res.gen, stop: res.stop}
	metrics.WSTopics.Inc()
	go h.pump(ctx, res.topic, res.gen, res.updates)
}

// drop removes client and stops the topic feed once nobody listens. The
// caller holds mu.
func (h *Hub) drop(client *Client) {
	clients := h.Clients[client.Topic]
	delete(clients, client)
	close(client.Send)
	metrics.WSClients.Dec()
	if len(clients) > 0 {
		return
	}
	delete(h.Clients, client.Topic)
	delete(h.last, client.Topic)
	if feed, ok := h.feeds[client.Topic]; ok {
		delete(h.feeds, client.Topic)
		if feed.stop != nil {
			metrics.WSTopics.Dec()
			go feed.stop()
		}
	}
}

func (h *Hub) pump(ctx context.Context, topic string, gen uint64, updates <-chan []byte) {
	for data := range updates {
		select {
		case h.Broadcast <- BroadcastMessage{Topic: topic, Data: data, gen: gen}:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	close(h.done)
	for topic, clients := range h.Clients {
		for client := range clients {
			close(client.Send)
			metrics.WSClients.Dec()
		}
		delete(h.Clients, topic)
	}
	for topic, feed := range h.feeds {
		if feed.stop != nil {
			feed.stop()
			metrics.WSTopics.Dec()
		}
		delete(h.feeds, topic)
	}
}

// Join registers client unless the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters client. It does not block once the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// ClientCount reports how many clients are registered for topic.
func (h *Hub) ClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Clients[topic])
}

// Open reports whether topic currently has a running feed.
func (h *Hub) Open(topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	feed, ok := h.feeds[topic]
	return ok && feed.stop != nil
}
