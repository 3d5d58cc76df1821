// Package mongo keeps every document in a single MongoDB collection, keyed
// by its full path. Batches run in a session transaction and subscriptions
// use change streams, so the server must be a replica set member.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/docstore"
)

const collectionName = "documents"

type record struct {
	Path       string `bson:"_id"`
	Collection string `bson:"collection"`
	DocID      string `bson:"docId"`
	Data       bson.M `bson:"data"`
}

type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *zap.SugaredLogger
}

var _ docstore.Store = (*Store)(nil)

func NewStore(ctx context.Context, uri, database string, log *zap.SugaredLogger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	coll := client.Database(database).Collection(collectionName)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "collection", Value: 1}}})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create collection index: %w", err)
	}
	log.Infow("connected to mongo document store", "database", database)
	return &Store{client: client, coll: coll, log: log}, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return docstore.Transient(err)
	}
	return err
}

// toDocument converts the BSON payload back into the JSON-shaped form the
// rest of the code expects.
func toDocument(ref docstore.DocRef, data bson.M) (docstore.Document, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("corrupt document %s: %w", ref, err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return docstore.Document{}, fmt.Errorf("corrupt document %s: %w", ref, err)
	}
	return docstore.Document{Ref: ref, Data: out}, nil
}

func (s *Store) load(ctx context.Context, ref docstore.DocRef) (map[string]any, error) {
	var rec record
	err := s.coll.FindOne(ctx, bson.M{"_id": ref.Path()}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	d, err := toDocument(ref, rec.Data)
	return d.Data, err
}

func (s *Store) Get(ctx context.Context, ref docstore.DocRef) (docstore.Document, error) {
	data, err := s.load(ctx, ref)
	if err != nil {
		return docstore.Document{}, err
	}
	if data == nil {
		return docstore.Document{}, fmt.Errorf("%w: %s", docstore.ErrNotFound, ref)
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

func (s *Store) Commit(ctx context.Context, writes []docstore.Write) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return classify(err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		docs, err := docstore.ApplyWrites(writes, func(ref docstore.DocRef) (map[string]any, error) {
			return s.load(sc, ref)
		})
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			rec := record{
				Path:       d.Ref.Path(),
				Collection: d.Ref.Parent.Path,
				DocID:      d.Ref.ID,
				Data:       bson.M(d.Data),
			}
			_, err := s.coll.ReplaceOne(sc, bson.M{"_id": rec.Path}, rec, options.Replace().SetUpsert(true))
			if err != nil {
				return nil, classify(err)
			}
		}
		return nil, nil
	})
	return err
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	cur, err := s.coll.Find(ctx, bson.M{"collection": q.Collection.Path})
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	var docs []docstore.Document
	for cur.Next(ctx) {
		var rec record
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		d, err := toDocument(q.Collection.Doc(rec.DocID), rec.Data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := cur.Err(); err != nil {
		return nil, classify(err)
	}
	return q.Apply(docs), nil
}

func (s *Store) changeStream(ctx context.Context, coll docstore.CollectionRef) (*mongo.ChangeStream, error) {
	pattern := "^" + regexp.QuoteMeta(coll.Path) + "/[^/]+$"
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"documentKey._id": bson.M{"$regex": pattern}}}},
	}
	cs, err := s.coll.Watch(ctx, pipeline)
	return cs, classify(err)
}

// Subscribe opens the change stream before the first fetch so that no
// write can slip between them.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (*docstore.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	cs, err := s.changeStream(ctx, q.Collection)
	if err != nil {
		return nil, err
	}
	changes := make(chan struct{}, 1)
	errs := make(chan error, 1)
	streamCtx, stop := context.WithCancel(ctx)
	go s.follow(streamCtx, cs, q.Collection, changes, errs)

	return docstore.Watch(ctx, docstore.WatchSpec{
		Fetch:   func(ctx context.Context) ([]docstore.Document, error) { return s.Query(ctx, q) },
		Changes: changes,
		Errors:  errs,
		Release: stop,
	}), nil
}

func (s *Store) follow(ctx context.Context, cs *mongo.ChangeStream, coll docstore.CollectionRef, changes chan<- struct{}, errs chan<- error) {
	signal := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}
	backoff := 100 * time.Millisecond
	for {
		for cs.Next(ctx) {
			signal()
		}
		err := cs.Err()
		_ = cs.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		s.log.Warnw("mongo change stream ended", "collection", coll.Path, "error", err)
		select {
		case errs <- docstore.Transient(fmt.Errorf("change stream on %s ended: %w", coll.Path, err)):
		default:
		}
		for {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			cs, err = s.changeStream(ctx, coll)
			if err == nil {
				break
			}
		}
		// Writes may have been missed while the stream was down.
		signal()
	}
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
