package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	opened  map[string]int
	stopped map[string]int
	feeds   map[string]chan []byte
	users   map[string]string
	fail    error
	gate    chan struct{} // when set, open blocks until it is closed
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		opened:  make(map[string]int),
		stopped: make(map[string]int),
		feeds:   make(map[string]chan []byte),
		users:   make(map[string]string),
	}
}

func (s *fakeSource) open(ctx context.Context, topic, userID string) (<-chan []byte, func(), error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, nil, s.fail
	}
	ch := make(chan []byte, 8)
	s.opened[topic]++
	s.feeds[topic] = ch
	s.users[topic] = userID
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			s.stopped[topic]++
			s.mu.Unlock()
			close(ch)
		})
	}, nil
}

func (s *fakeSource) emit(topic, data string) {
	s.mu.Lock()
	ch := s.feeds[topic]
	s.mu.Unlock()
	ch <- []byte(data)
}

func (s *fakeSource) counts(topic string) (opened, stopped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened[topic], s.stopped[topic]
}

func startHub(t *testing.T, src *fakeSource) *Hub {
	t.Helper()
	h := NewHub(src.open, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func awaitOpen(t *testing.T, h *Hub, topic string) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Open(topic) }, 2*time.Second, 5*time.Millisecond)
}

func client(user, topic string) *Client {
	return &Client{UserID: user, Topic: topic, Send: make(chan []byte, 4)}
}

func receive(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		return string(data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func TestHubSharesOneFeedPerTopic(t *testing.T) {
	src := newFakeSource()
	h := startHub(t, src)

	a, b := client("alice", "chat:c1"), client("bob", "chat:c1")
	require.True(t, h.Join(a))
	require.True(t, h.Join(b))
	awaitOpen(t, h, "chat:c1")

	src.emit("chat:c1", "snapshot-1")
	assert.Equal(t, "snapshot-1", receive(t, a))
	assert.Equal(t, "snapshot-1", receive(t, b))

	opened, _ := src.counts("chat:c1")
	assert.Equal(t, 1, opened)
	assert.Equal(t, 2, h.ClientCount("chat:c1"))
	src.mu.Lock()
	assert.Equal(t, "alice", src.users["chat:c1"], "the first client opens the feed")
	src.mu.Unlock()
}

func TestHubReplaysLatestToLateJoiner(t *testing.T) {
	src := newFakeSource()
	h := startHub(t, src)

	a := client("alice", "inbox:alice")
	require.True(t, h.Join(a))
	awaitOpen(t, h, "inbox:alice")
	src.emit("inbox:alice", "v1")
	src.emit("inbox:alice", "v2")
	assert.Equal(t, "v1", receive(t, a))
	assert.Equal(t, "v2", receive(t, a))

	late := client("alice", "inbox:alice")
	require.True(t, h.Join(late))
	assert.Equal(t, "v2", receive(t, late))
}

func TestHubStopsFeedWhenLastClientLeaves(t *testing.T) {
	src := newFakeSource()
	h := startHub(t, src)

	a, b := client("alice", "chat:c1"), client("bob", "chat:c1")
	require.True(t, h.Join(a))
	require.True(t, h.Join(b))

	awaitOpen(t, h, "chat:c1")

	h.Leave(a)
	_, ok := <-a.Send
	assert.False(t, ok)
	assert.True(t, h.Open("chat:c1"))

	h.Leave(b)
	assert.Eventually(t, func() bool {
		_, stopped := src.counts("chat:c1")
		return stopped == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, h.Open("chat:c1"))
	assert.Equal(t, 0, h.ClientCount("chat:c1"))

	c := client("carol", "chat:c1")
	require.True(t, h.Join(c))
	assert.Eventually(t, func() bool {
		opened, _ := src.counts("chat:c1")
		return opened == 2
	}, 2*time.Second, 10*time.Millisecond, "a new client reopens the feed")
}

func TestHubDropsSlowClient(t *testing.T) {
	src := newFakeSource()
	h := startHub(t, src)

	slow := &Client{UserID: "slow", Topic: "chat:c1", Send: make(chan []byte)}
	fast := client("fast", "chat:c1")
	require.True(t, h.Join(slow))
	require.True(t, h.Join(fast))
	awaitOpen(t, h, "chat:c1")

	src.emit("chat:c1", "x")
	assert.Equal(t, "x", receive(t, fast))
	assert.Eventually(t, func() bool { return h.ClientCount("chat:c1") == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubClosesClientWhenTopicFails(t *testing.T) {
	src := newFakeSource()
	src.fail = errors.New("store down")
	h := startHub(t, src)

	c := client("alice", "inbox:alice")
	require.True(t, h.Join(c))
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.Equal(t, 0, h.ClientCount("inbox:alice"))
}

func TestHubShutdown(t *testing.T) {
	src := newFakeSource()
	h := NewHub(src.open, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := client("alice", "chat:c1")
	require.True(t, h.Join(c))
	awaitOpen(t, h, "chat:c1")
	cancel()
	<-done

	_, ok := <-c.Send
	assert.False(t, ok)
	_, stopped := src.counts("chat:c1")
	assert.Equal(t, 1, stopped)
	assert.False(t, h.Join(client("bob", "chat:c1")))
	h.Leave(c)
}

func TestHubKeepsServingWhileTopicOpens(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	h := startHub(t, src)

	slow := client("alice", "inbox:alice")
	require.True(t, h.Join(slow))

	// The blocked open must not hold up other clients.
	other := client("bob", "inbox:bob")
	joined := make(chan bool, 1)
	go func() { joined <- h.Join(other) }()
	select {
	case ok := <-joined:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("hub blocked by an opening topic")
	}
	assert.Eventually(t, func() bool { return h.ClientCount("inbox:bob") == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, h.Open("inbox:alice"))

	close(src.gate)
	awaitOpen(t, h, "inbox:alice")
	awaitOpen(t, h, "inbox:bob")
	src.emit("inbox:alice", "v1")
	assert.Equal(t, "v1", receive(t, slow))
}

func TestHubStopsFeedOpenedAfterEveryoneLeft(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	h := startHub(t, src)

	c := client("alice", "chat:c1")
	require.True(t, h.Join(c))
	h.Leave(c)
	_, ok := <-c.Send
	assert.False(t, ok)

	close(src.gate)
	assert.Eventually(t, func() bool {
		opened, stopped := src.counts("chat:c1")
		return opened == 1 && stopped == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, h.Open("chat:c1"))
}
