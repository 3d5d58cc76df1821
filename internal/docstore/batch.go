package docstore

import (
	"context"
	"fmt"
)

// WriteKind distinguishes the writes a batch may contain.
type WriteKind int

const (
	WriteSet WriteKind = iota
	WriteUpdate
)

func (k WriteKind) String() string {
	switch k {
	case WriteSet:
		return "set"
	case WriteUpdate:
		return "update"
	default:
		return fmt.Sprintf("WriteKind(%d)", int(k))
	}
}

// Write is one operation of an atomic batch. For WriteSet, Data is the
// full encoded document; for WriteUpdate it holds the fields to merge.
type Write struct {
	Kind WriteKind
	Ref  DocRef
	Data map[string]any
}

// Batch accumulates writes to commit atomically.
type Batch struct {
	store  Store
	writes []Write
	err    error
}

// NewBatch returns an empty batch committed against s.
func NewBatch(s Store) *Batch {
	return &Batch{store: s}
}

// Set queues a full overwrite of ref.
func (b *Batch) Set(ref DocRef, data any) *Batch {
	if b.err != nil {
		return b
	}
	encoded, err := Encode(data)
	if err != nil {
		b.err = err
		return b
	}
	b.writes = append(b.writes, Write{Kind: WriteSet, Ref: ref, Data: encoded})
	return b
}

// Update queues a partial update of ref.
func (b *Batch) Update(ref DocRef, fields map[string]any) *Batch {
	if b.err != nil {
		return b
	}
	b.writes = append(b.writes, Write{Kind: WriteUpdate, Ref: ref, Data: fields})
	return b
}

// Len is the number of queued writes.
func (b *Batch) Len() int { return len(b.writes) }

// Commit applies the queued writes. An empty batch is a no-op.
func (b *Batch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.writes) == 0 {
		return nil
	}
	return b.store.Commit(ctx, b.writes)
}

// ApplyWrites stages writes on top of the data returned by lookup (nil when
// a document is absent) and returns the resulting documents, one per
// distinct ref in first-write order. Nothing is staged if an update targets
// a missing document.
func ApplyWrites(writes []Write, lookup func(DocRef) (map[string]any, error)) ([]Document, error) {
	pending := make(map[string]map[string]any)
	var order []DocRef
	for _, w := range writes {
		if !w.Ref.Valid() {
			return nil, fmt.Errorf("docstore: invalid document reference %q", w.Ref)
		}
		path := w.Ref.Path()
		current, staged := pending[path]
		if !staged {
			existing, err := lookup(w.Ref)
			if err != nil {
				return nil, err
			}
			current = existing
			order = append(order, w.Ref)
		}
		switch w.Kind {
		case WriteSet:
			current = Clone(w.Data)
		case WriteUpdate:
			if current == nil {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
			}
			merged, err := Merge(current, w.Data)
			if err != nil {
				return nil, err
			}
			current = merged
		default:
			return nil, fmt.Errorf("docstore: unknown write kind %v", w.Kind)
		}
		pending[path] = current
	}
	out := make([]Document, 0, len(order))
	for _, ref := range order {
		out = append(out, Document{Ref: ref, Data: pending[ref.Path()]})
	}
	return out, nil
}
