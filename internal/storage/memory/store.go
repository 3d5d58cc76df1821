package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Vasu1712/buddychat/internal/docstore"
)

// Store is an in-process document store. Writes to a single document and
// batches are atomic under one lock; subscribers are signalled after the
// lock is released.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any // collection path -> doc ID -> data
	notifier    *docstore.Notifier
	closed      bool
}

var _ docstore.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]map[string]any),
		notifier:    docstore.NewNotifier(),
	}
}

func (s *Store) Get(ctx context.Context, ref docstore.DocRef) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return docstore.Document{}, docstore.ErrClosed
	}
	data, ok := s.collections[ref.Parent.Path][ref.ID]
	if !ok {
		return docstore.Document{}, fmt.Errorf("%w: %s", docstore.ErrNotFound, ref)
	}
	return docstore.Document{Ref: ref, Data: docstore.Clone(data)}, nil
}

func (s *Store) Set(ctx context.Context, ref docstore.DocRef, data any) error {
	encoded, err := docstore.Encode(data)
	if err != nil {
		return err
	}
	return s.Commit(ctx, []docstore.Write{{Kind: docstore.WriteSet, Ref: ref, Data: encoded}})
}

func (s *Store) Add(ctx context.Context, coll docstore.CollectionRef, data any) (docstore.DocRef, error) {
	ref := coll.NewDoc()
	if err := s.Set(ctx, ref, data); err != nil {
		return docstore.DocRef{}, err
	}
	return ref, nil
}

func (s *Store) Update(ctx context.Context, ref docstore.DocRef, fields map[string]any) error {
	return s.Commit(ctx, []docstore.Write{{Kind: docstore.WriteUpdate, Ref: ref, Data: fields}})
}

func (s *Store) Commit(ctx context.Context, writes []docstore.Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return docstore.ErrClosed
	}
	docs, err := docstore.ApplyWrites(writes, func(ref docstore.DocRef) (map[string]any, error) {
		return s.collections[ref.Parent.Path][ref.ID], nil
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	touched := make(map[string]struct{})
	for _, d := range docs {
		coll := s.collections[d.Ref.Parent.Path]
		if coll == nil {
			coll = make(map[string]map[string]any)
			s.collections[d.Ref.Parent.Path] = coll
		}
		coll[d.Ref.ID] = d.Data
		touched[d.Ref.Parent.Path] = struct{}{}
	}
	s.mu.Unlock()

	for path := range touched {
		s.notifier.Notify(path)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}
	coll := s.collections[q.Collection.Path]
	docs := make([]docstore.Document, 0, len(coll))
	for id, data := range coll {
		docs = append(docs, docstore.Document{Ref: q.Collection.Doc(id), Data: docstore.Clone(data)})
	}
	return q.Apply(docs), nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (*docstore.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, docstore.ErrClosed
	}
	changes, release := s.notifier.Watch(q.Collection.Path)
	return docstore.Watch(ctx, docstore.WatchSpec{
		Fetch:   func(ctx context.Context) ([]docstore.Document, error) { return s.Query(ctx, q) },
		Changes: changes,
		Release: release,
	}), nil
}

// Watchers reports the number of live subscriptions on a collection.
func (s *Store) Watchers(coll docstore.CollectionRef) int {
	return s.notifier.Watchers(coll.Path)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
