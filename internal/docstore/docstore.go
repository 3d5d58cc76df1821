// Package docstore defines the document store contract the messaging layer is
// written against: named collections of JSON-shaped documents, partial
// updates, atomic batches and live query subscriptions.
//
// Paths follow a collection/document/collection tree, for example
// "conversations/{id}/messages/{id}".
package docstore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Get and Update when the document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrClosed is returned once the store has been closed.
	ErrClosed = errors.New("docstore: store closed")
)

// Store is implemented by every storage backend.
type Store interface {
	Get(ctx context.Context, ref DocRef) (Document, error)
	// Set fully overwrites the document, creating it when absent.
	Set(ctx context.Context, ref DocRef, data any) error
	// Add creates a document with a store-assigned ID.
	Add(ctx context.Context, coll CollectionRef, data any) (DocRef, error)
	// Update merges fields into an existing document. Keys may be dotted
	// paths into embedded objects.
	Update(ctx context.Context, ref DocRef, fields map[string]any) error
	Query(ctx context.Context, q Query) ([]Document, error)
	// Subscribe delivers the query result now and again after every change
	// to the queried collection until the subscription is closed or ctx ends.
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
	// Commit applies all writes atomically.
	Commit(ctx context.Context, writes []Write) error
	Close() error
}

// CollectionRef names a collection.
type CollectionRef struct {
	Path string
}

// Collection returns a reference to the collection at path. Path segments
// are joined with "/".
func Collection(segments ...string) CollectionRef {
	return CollectionRef{Path: strings.Join(segments, "/")}
}

// Doc returns a reference to the document id inside c.
func (c CollectionRef) Doc(id string) DocRef {
	return DocRef{Parent: c, ID: id}
}

// NewDoc returns a reference with a fresh ID that has not been written yet.
func (c CollectionRef) NewDoc() DocRef {
	return c.Doc(NewID())
}

// DocRef names a single document.
type DocRef struct {
	Parent CollectionRef
	ID     string
}

// Path is the full slash separated document path.
func (d DocRef) Path() string {
	return d.Parent.Path + "/" + d.ID
}

// Collection returns a sub-collection nested under the document.
func (d DocRef) Collection(name string) CollectionRef {
	return CollectionRef{Path: d.Path() + "/" + name}
}

func (d DocRef) String() string { return d.Path() }

// Valid reports whether both the collection path and the ID are set and the
// ID contains no path separator.
func (d DocRef) Valid() bool {
	return d.Parent.Path != "" && d.ID != "" && !strings.Contains(d.ID, "/")
}

// NewID generates a time-ordered document ID. IDs from one process sort
// in creation order, which breaks ordering ties by insertion.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return strings.ReplaceAll(id.String(), "-", "")
}

// transientError marks a failure worth retrying (timeouts, dropped
// connections), as opposed to a rejected or malformed write.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is a retryable store failure.
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
