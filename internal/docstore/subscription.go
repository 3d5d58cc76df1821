package docstore

import (
	"context"
	"sync"
)

// Snapshot is one delivery of a subscription: the complete query result at
// some point in time, or an error raised while producing it.
type Snapshot struct {
	Docs []Document
	Err  error
}

// Subscription is a live query. Only the most recent undelivered snapshot
// is buffered; a slow reader skips intermediate states but always observes
// the latest one.
type Subscription struct {
	updates chan Snapshot
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Updates yields snapshots until the subscription ends, then is closed.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Close stops the subscription and waits for its goroutine to exit. It is
// safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed once the subscription has fully stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// WatchSpec is what a backend supplies to build a Subscription.
type WatchSpec struct {
	// Fetch runs the query.
	Fetch func(ctx context.Context) ([]Document, error)
	// Changes signals that the queried collection may have changed. A
	// closed channel ends the subscription.
	Changes <-chan struct{}
	// Errors carries failures of the change feed itself; they are
	// delivered in-band and the subscription keeps running.
	Errors <-chan error
	// Release frees backend resources once the subscription stops.
	Release func()
}

// Watch starts a subscription driven by src. The first snapshot is
// fetched immediately.
func Watch(ctx context.Context, src WatchSpec) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		updates: make(chan Snapshot, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx, src)
	return s
}

func (s *Subscription) run(ctx context.Context, src WatchSpec) {
	defer close(s.done)
	defer close(s.updates)
	defer func() {
		if src.Release != nil {
			src.Release()
		}
	}()

	refresh := func() {
		docs, err := src.Fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.push(Snapshot{Err: err})
			return
		}
		s.push(Snapshot{Docs: docs})
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-src.Changes:
			if !ok {
				return
			}
			refresh()
		case err, ok := <-src.Errors:
			if !ok {
				src.Errors = nil
				continue
			}
			s.push(Snapshot{Err: err})
		}
	}
}

// push replaces any undelivered snapshot with snap.
func (s *Subscription) push(snap Snapshot) {
	for {
		select {
		case s.updates <- snap:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

// Notifier fans change signals out to in-process watchers of a collection.
// Signals are coalesced: a watcher that has not consumed its previous
// signal is not signalled twice.
type Notifier struct {
	mu       sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

// NewNotifier returns an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{watchers: make(map[string]map[chan struct{}]struct{})}
}

// Watch registers interest in collection and returns the signal channel
// and a function that unregisters it.
func (n *Notifier) Watch(collection string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	if n.watchers[collection] == nil {
		n.watchers[collection] = make(map[chan struct{}]struct{})
	}
	n.watchers[collection][ch] = struct{}{}
	n.mu.Unlock()
	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if set, ok := n.watchers[collection]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(n.watchers, collection)
			}
		}
	}
}

// Notify signals every watcher of collection.
func (n *Notifier) Notify(collection string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.watchers[collection] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// NotifyAll signals every watcher of every collection, used after a change
// feed reconnects and events may have been lost.
func (n *Notifier) NotifyAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, set := range n.watchers {
		for ch := range set {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// Watchers reports how many watchers are registered for collection.
func (n *Notifier) Watchers(collection string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.watchers[collection])
}
