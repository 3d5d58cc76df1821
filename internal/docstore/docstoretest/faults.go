package docstoretest

import (
	"context"
	"path"
	"sync"

	"github.com/Vasu1712/buddychat/internal/docstore"
)

// Op names a Store method for fault rules and the call log.
type Op string

const (
	OpGet       Op = "get"
	OpSet       Op = "set"
	OpAdd       Op = "add"
	OpUpdate    Op = "update"
	OpQuery     Op = "query"
	OpSubscribe Op = "subscribe"
	OpCommit    Op = "commit"
)

// Call is one recorded store call. Path is the document path, the
// collection path followed by "/" for Add, Query and Subscribe, or the
// first write's path for Commit.
type Call struct {
	Op   Op
	Path string
	Err  error
}

type rule struct {
	op        Op
	pattern   string
	err       error
	remaining int // <0 means unlimited
}

// FaultStore wraps a store and fails calls that match configured rules.
// Patterns use path.Match syntax, so "userConversations/*/threads/*"
// matches every thread document.
type FaultStore struct {
	docstore.Store

	mu    sync.Mutex
	rules []*rule
	calls []Call
}

func NewFaultStore(inner docstore.Store) *FaultStore {
	return &FaultStore{Store: inner}
}

// FailOn makes every op call whose path matches pattern return err.
func (f *FaultStore) FailOn(op Op, pattern string, err error) {
	f.FailTimes(op, pattern, err, -1)
}

// FailTimes is FailOn limited to the first n matching calls.
func (f *FaultStore) FailTimes(op Op, pattern string, err error, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{op: op, pattern: pattern, err: err, remaining: n})
}

// Reset drops every rule and the call log.
func (f *FaultStore) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
	f.calls = nil
}

// Calls returns the calls made so far, in order.
func (f *FaultStore) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *FaultStore) check(op Op, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules {
		if r.op != op || r.remaining == 0 {
			continue
		}
		for _, p := range paths {
			if ok, _ := path.Match(r.pattern, p); ok {
				if r.remaining > 0 {
					r.remaining--
				}
				return r.err
			}
		}
	}
	return nil
}

func (f *FaultStore) record(op Op, p string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Path: p, Err: err})
}

func (f *FaultStore) Get(ctx context.Context, ref docstore.DocRef) (docstore.Document, error) {
	if err := f.check(OpGet, ref.Path()); err != nil {
		f.record(OpGet, ref.Path(), err)
		return docstore.Document{}, err
	}
	doc, err := f.Store.Get(ctx, ref)
	f.record(OpGet, ref.Path(), err)
	return doc, err
}

func (f *FaultStore) Set(ctx context.Context, ref docstore.DocRef, data any) error {
	err := f.check(OpSet, ref.Path())
	if err == nil {
		err = f.Store.Set(ctx, ref, data)
	}
	f.record(OpSet, ref.Path(), err)
	return err
}

func (f *FaultStore) Add(ctx context.Context, coll docstore.CollectionRef, data any) (docstore.DocRef, error) {
	p := coll.Path + "/"
	if err := f.check(OpAdd, p); err != nil {
		f.record(OpAdd, p, err)
		return docstore.DocRef{}, err
	}
	ref, err := f.Store.Add(ctx, coll, data)
	f.record(OpAdd, p, err)
	return ref, err
}

func (f *FaultStore) Update(ctx context.Context, ref docstore.DocRef, fields map[string]any) error {
	err := f.check(OpUpdate, ref.Path())
	if err == nil {
		err = f.Store.Update(ctx, ref, fields)
	}
	f.record(OpUpdate, ref.Path(), err)
	return err
}

func (f *FaultStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	p := q.Collection.Path + "/"
	if err := f.check(OpQuery, p); err != nil {
		f.record(OpQuery, p, err)
		return nil, err
	}
	docs, err := f.Store.Query(ctx, q)
	f.record(OpQuery, p, err)
	return docs, err
}

func (f *FaultStore) Subscribe(ctx context.Context, q docstore.Query) (*docstore.Subscription, error) {
	p := q.Collection.Path + "/"
	if err := f.check(OpSubscribe, p); err != nil {
		f.record(OpSubscribe, p, err)
		return nil, err
	}
	sub, err := f.Store.Subscribe(ctx, q)
	f.record(OpSubscribe, p, err)
	return sub, err
}

// Commit fails the whole batch when any write matches a rule.
func (f *FaultStore) Commit(ctx context.Context, writes []docstore.Write) error {
	paths := make([]string, 0, len(writes))
	for _, w := range writes {
		paths = append(paths, w.Ref.Path())
	}
	first := ""
	if len(paths) > 0 {
		first = paths[0]
	}
	err := f.check(OpCommit, paths...)
	if err == nil {
		err = f.Store.Commit(ctx, writes)
	}
	f.record(OpCommit, first, err)
	return err
}
