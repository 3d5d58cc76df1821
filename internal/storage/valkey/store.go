// Package valkey stores documents as JSON strings in Valkey. Each
// collection keeps a set of its document IDs and a pub/sub channel that
// is published to after every committed write.
package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/docstore"
)

const maxCommitAttempts = 8

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Store struct {
	client valkey.Client
	prefix string
	log    *zap.SugaredLogger
}

var _ docstore.Store = (*Store)(nil)

func NewStore(opts Options, log *zap.SugaredLogger) (*Store, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
		SelectDB:    opts.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", opts.Addr, err)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "buddychat"
	}
	log.Infow("connected to valkey document store", "addr", opts.Addr, "prefix", prefix)
	return &Store{client: client, prefix: prefix, log: log}, nil
}

func (s *Store) docKey(ref docstore.DocRef) string { return s.prefix + ":doc:" + ref.Path() }
func (s *Store) colKey(coll docstore.CollectionRef) string {
	return s.prefix + ":col:" + coll.Path
}
func (s *Store) channel(coll docstore.CollectionRef) string {
	return s.prefix + ":chg:" + coll.Path
}

// classify marks everything except server replies as retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := valkey.IsValkeyErr(err); ok {
		return err
	}
	return docstore.Transient(err)
}

func decode(ref docstore.DocRef, raw string) (docstore.Document, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return docstore.Document{}, fmt.Errorf("corrupt document %s: %w", ref, err)
	}
	return docstore.Document{Ref: ref, Data: data}, nil
}

func (s *Store) Get(ctx context.Context, ref docstore.DocRef) (docstore.Document, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(s.docKey(ref)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return docstore.Document{}, fmt.Errorf("%w: %s", docstore.ErrNotFound, ref)
	}
	if err != nil {
		return docstore.Document{}, classify(err)
	}
	return decode(ref, raw)
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

var errConflict = errors.New("valkey: concurrent modification")

// Commit stages writes under WATCH on a dedicated connection and applies
// them with MULTI/EXEC, retrying when a watched key changed underneath.
func (s *Store) Commit(ctx context.Context, writes []docstore.Write) error {
	var err error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		err = s.client.Dedicated(func(c valkey.DedicatedClient) error {
			return s.commitOnce(ctx, c, writes)
		})
		if !errors.Is(err, errConflict) {
			break
		}
		s.log.Debugw("retrying conflicted valkey commit", "attempt", attempt+1)
	}
	if err != nil {
		return err
	}

	published := make(map[string]struct{})
	for _, w := range writes {
		ch := s.channel(w.Ref.Parent)
		if _, ok := published[ch]; ok {
			continue
		}
		published[ch] = struct{}{}
		if perr := s.client.Do(ctx, s.client.B().Publish().Channel(ch).Message(w.Ref.ID).Build()).Error(); perr != nil {
			// The write is durable; subscribers catch up on the next change.
			s.log.Warnw("failed to publish change notification", "channel", ch, "error", perr)
		}
	}
	return nil
}

func (s *Store) commitOnce(ctx context.Context, c valkey.DedicatedClient, writes []docstore.Write) error {
	keys := make([]string, 0, len(writes))
	for _, w := range writes {
		keys = append(keys, s.docKey(w.Ref))
	}
	if err := c.Do(ctx, c.B().Watch().Key(keys...).Build()).Error(); err != nil {
		return classify(err)
	}

	docs, err := docstore.ApplyWrites(writes, func(ref docstore.DocRef) (map[string]any, error) {
		raw, err := c.Do(ctx, c.B().Get().Key(s.docKey(ref)).Build()).ToString()
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		if err != nil {
			return nil, classify(err)
		}
		d, err := decode(ref, raw)
		return d.Data, err
	})
	if err != nil {
		_ = c.Do(ctx, c.B().Unwatch().Build()).Error()
		return err
	}

	cmds := valkey.Commands{c.B().Multi().Build()}
	for _, d := range docs {
		raw, err := json.Marshal(d.Data)
		if err != nil {
			_ = c.Do(ctx, c.B().Unwatch().Build()).Error()
			return err
		}
		cmds = append(cmds,
			c.B().Set().Key(s.docKey(d.Ref)).Value(string(raw)).Build(),
			c.B().Sadd().Key(s.colKey(d.Ref.Parent)).Member(d.Ref.ID).Build(),
		)
	}
	cmds = append(cmds, c.B().Exec().Build())

	resps := c.DoMulti(ctx, cmds...)
	exec := resps[len(resps)-1]
	if err := exec.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return errConflict
		}
		return classify(err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.colKey(q.Collection)).Build()).AsStrSlice()
	if err != nil {
		return nil, classify(err)
	}
	if len(ids) == 0 {
		return []docstore.Document{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(q.Collection.Doc(id))
	}
	msgs, err := s.client.Do(ctx, s.client.B().Mget().Key(keys...).Build()).ToArray()
	if err != nil {
		return nil, classify(err)
	}
	docs := make([]docstore.Document, 0, len(msgs))
	for i, m := range msgs {
		if m.IsNil() {
			continue
		}
		raw, err := m.ToString()
		if err != nil {
			return nil, classify(err)
		}
		d, err := decode(q.Collection.Doc(ids[i]), raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return q.Apply(docs), nil
}

// Subscribe listens on the collection channel with a dedicated connection.
// The subscription re-fetches once the SUBSCRIBE is confirmed so that no
// write between the first fetch and the subscription is missed.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (*docstore.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	changes := make(chan struct{}, 1)
	errs := make(chan error, 1)
	listenCtx, stop := context.WithCancel(ctx)
	signal := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}

	go s.listen(listenCtx, s.channel(q.Collection), signal, errs)

	return docstore.Watch(ctx, docstore.WatchSpec{
		Fetch:   func(ctx context.Context) ([]docstore.Document, error) { return s.Query(ctx, q) },
		Changes: changes,
		Errors:  errs,
		Release: stop,
	}), nil
}

func (s *Store) listen(ctx context.Context, channel string, signal func(), errs chan<- error) {
	backoff := 100 * time.Millisecond
	for ctx.Err() == nil {
		c, release := s.client.Dedicate()
		wait := c.SetPubSubHooks(valkey.PubSubHooks{
			OnMessage: func(valkey.PubSubMessage) { signal() },
			OnSubscription: func(sub valkey.PubSubSubscription) {
				if sub.Kind == "subscribe" {
					signal()
				}
			},
		})
		err := c.Do(ctx, c.B().Subscribe().Channel(channel).Build()).Error()
		if err == nil {
			select {
			case err = <-wait:
			case <-ctx.Done():
			}
		}
		release()
		if ctx.Err() != nil {
			return
		}
		s.log.Warnw("valkey subscription dropped", "channel", channel, "error", err)
		select {
		case errs <- docstore.Transient(fmt.Errorf("subscription on %s dropped: %w", channel, err)):
		default:
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

func (s *Store) Close() error {
	s.client.Close()
	return nil
}
