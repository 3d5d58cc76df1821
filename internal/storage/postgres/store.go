// Package postgres stores documents as JSONB rows keyed by collection path
// and document ID. Committed writes raise a NOTIFY carrying the collection
// path, which a single shared listener fans out to subscriptions.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver and LISTEN support
	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/docstore"
)

const notifyChannel = "buddychat_document_changes"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, doc_id)
)`

// Store implements docstore.Store on PostgreSQL.
type Store struct {
	db       *sql.DB
	listener *pq.Listener
	notifier *docstore.Notifier
	log      *zap.SugaredLogger
	stop     chan struct{}
	stopped  chan struct{}
}

var _ docstore.Store = (*Store)(nil)

// NewStore connects, ensures the schema and starts listening for
// change notifications.
func NewStore(ctx context.Context, dataSourceName string, log *zap.SugaredLogger) (*Store, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}

	s := &Store{
		db:       db,
		notifier: docstore.NewNotifier(),
		log:      log,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	s.listener = pq.NewListener(dataSourceName, 10*time.Second, time.Minute, s.listenerEvent)
	if err := s.listener.Listen(notifyChannel); err != nil {
		s.listener.Close()
		db.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", notifyChannel, err)
	}
	go s.dispatch()

	log.Infow("connected to postgres document store")
	return s, nil
}

func (s *Store) listenerEvent(ev pq.ListenerEventType, err error) {
	if err != nil {
		s.log.Warnw("postgres listener event", "event", ev, "error", err)
	}
}

func (s *Store) dispatch() {
	defer close(s.stopped)
	for {
		select {
		case <-s.stop:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnected; notifications may have been lost.
				s.notifier.NotifyAll()
				continue
			}
			s.notifier.Notify(n.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := s.listener.Ping(); err != nil {
					s.log.Warnw("postgres listener ping failed", "error", err)
				}
			}()
		}
	}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) || errors.Is(err, context.Canceled) {
		return err
	}
	return docstore.Transient(err)
}

func (s *Store) Get(ctx context.Context, ref docstore.DocRef) (docstore.Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND doc_id = $2`,
		ref.Parent.Path, ref.ID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return docstore.Document{}, fmt.Errorf("%w: %s", docstore.ErrNotFound, ref)
	}
	if err != nil {
		return docstore.Document{}, classify(err)
	}
	return decode(ref, raw)
}

func decode(ref docstore.DocRef, raw []byte) (docstore.Document, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return docstore.Document{}, fmt.Errorf("corrupt document %s: %w", ref, err)
	}
	return docstore.Document{Ref: ref, Data: data}, nil
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

// Commit locks every touched row, merges in Go and writes the results in
// one transaction. NOTIFY is delivered by postgres only on commit.
func (s *Store) Commit(ctx context.Context, writes []docstore.Write) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	docs, err := docstore.ApplyWrites(writes, func(ref docstore.DocRef) (map[string]any, error) {
		var raw []byte
		err := tx.QueryRowContext(ctx,
			`SELECT data FROM documents WHERE collection = $1 AND doc_id = $2 FOR UPDATE`,
			ref.Parent.Path, ref.ID,
		).Scan(&raw)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, classify(err)
		}
		d, err := decode(ref, raw)
		return d.Data, err
	})
	if err != nil {
		return err
	}

	touched := make(map[string]struct{})
	for _, d := range docs {
		raw, err := json.Marshal(d.Data)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (collection, doc_id, data, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (collection, doc_id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
			d.Ref.Parent.Path, d.Ref.ID, raw,
		)
		if err != nil {
			return classify(err)
		}
		touched[d.Ref.Parent.Path] = struct{}{}
	}
	for path := range touched {
		if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
			return classify(err)
		}
	}
	return classify(tx.Commit())
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, data FROM documents WHERE collection = $1`, q.Collection.Path)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, classify(err)
		}
		d, err := decode(q.Collection.Doc(id), raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return q.Apply(docs), nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (*docstore.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	changes, release := s.notifier.Watch(q.Collection.Path)
	return docstore.Watch(ctx, docstore.WatchSpec{
		Fetch:   func(ctx context.Context) ([]docstore.Document, error) { return s.Query(ctx, q) },
		Changes: changes,
		Release: release,
	}), nil
}

// Close stops the listener and closes the connection pool.
func (s *Store) Close() error {
	close(s.stop)
	<-s.stopped
	if err := s.listener.Close(); err != nil {
		s.log.Warnw("failed to close postgres listener", "error", err)
	}
	return s.db.Close()
}
