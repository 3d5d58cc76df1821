package messaging

import (
	"github.com/Vasu1712/buddychat/internal/docstore"
)

// Update is one delivery of a Feed: the full decoded result, or the error
// that prevented producing it.
type Update[T any] struct {
	Items []T
	Err   error
}

// Feed is a typed view over a store subscription. Like the subscription
// it wraps, it keeps only the latest undelivered update.
type Feed[T any] struct {
	sub     *docstore.Subscription
	updates chan Update[T]
	done    chan struct{}
}

func newFeed[T any](sub *docstore.Subscription, decode func(docstore.Document) (T, error)) *Feed[T] {
	f := &Feed[T]{
		sub:     sub,
		updates: make(chan Update[T], 1),
		done:    make(chan struct{}),
	}
	go f.run(decode)
	return f
}

func (f *Feed[T]) run(decode func(docstore.Document) (T, error)) {
	defer close(f.done)
	defer close(f.updates)
	for snap := range f.sub.Updates() {
		if snap.Err != nil {
			f.push(Update[T]{Err: snap.Err})
			continue
		}
		items, err := decodeAll(snap.Docs, decode)
		if err != nil {
			f.push(Update[T]{Err: err})
			continue
		}
		f.push(Update[T]{Items: items})
	}
}

func (f *Feed[T]) push(u Update[T]) {
	for {
		select {
		case f.updates <- u:
			return
		default:
		}
		select {
		case <-f.updates:
		default:
		}
	}
}

// Updates yields decoded results until the feed is closed.
func (f *Feed[T]) Updates() <-chan Update[T] {
	return f.updates
}

// Close cancels the underlying subscription and waits for the feed to stop.
func (f *Feed[T]) Close() {
	f.sub.Close()
	<-f.done
}

func decodeAll[T any](docs []docstore.Document, decode func(docstore.Document) (T, error)) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		item, err := decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
