package store

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo implements Client on a MongoDB replica set. Subscriptions are change streams
// that re-run their query on every event; batches run inside a transaction.
type Mongo struct {
	db     *mongo.Database
	logger zerolog.Logger
}

func NewMongo(db *mongo.Database, logger zerolog.Logger) (*Mongo, error) {
	m := &Mongo{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
	if err := m.ensureIndexes(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

// ensureIndexes keeps slugs unique and backs the queries the services issue.
func (m *Mongo) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		News: {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "category", Value: 1}}},
		},
		Comments: {
			{Keys: bson.D{{Key: "articleId", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: 1}}},
		},
		SavedArticles: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "articleId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "articleId", Value: 1}}},
		},
		Views: {
			{Keys: bson.D{{Key: "articleId", Value: 1}}},
		},
		Logs: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		},
	}

	for name, models := range indexes {
		if _, err := m.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			m.logger.Error().Err(err).Str("collection", name).Msg("failed to create indexes")
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func (m *Mongo) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	stream, err := m.db.Collection(q.Collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", q.Collection, err)
	}

	ch := make(chan Snapshot, 1)
	go func() {
		defer close(ch)
		defer stream.Close(context.Background())

		var revision uint64
		send := func(s Snapshot) bool {
			select {
			case ch <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}
		emit := func() bool {
			docs, err := m.Find(ctx, q)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				return send(Snapshot{Collection: q.Collection, Err: err})
			}
			revision++
			return send(Snapshot{Collection: q.Collection, Docs: docs, Revision: revision})
		}

		if !emit() {
			return
		}
		for stream.Next(ctx) {
			if !emit() {
				return
			}
		}

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			m.logger.Warn().Err(err).Str("collection", q.Collection).Msg("change stream closed with error")
			send(Snapshot{Collection: q.Collection, Err: err})
		}
	}()

	return &Subscription{C: ch, cancel: cancel}, nil
}

func (m *Mongo) GetOnce(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (m *Mongo) Find(ctx context.Context, q Query) ([]Document, error) {
	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := m.db.Collection(q.Collection).Find(ctx, filter(q.Where), opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Collection, err)
	}

	docs := []Document{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", q.Collection, err)
	}
	return docs, nil
}

func (m *Mongo) Count(ctx context.Context, q Query) (int64, error) {
	n, err := m.db.Collection(q.Collection).CountDocuments(ctx, filter(q.Where))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Collection, err)
	}
	return n, nil
}

func (m *Mongo) WriteBatch(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	sess, err := m.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for i, op := range ops {
			if err := m.apply(sc, op); err != nil {
				return nil, fmt.Errorf("op %d (%s %s/%s): %w", i, op.Kind, op.Collection, op.ID, err)
			}
		}
		return nil, nil
	})
	return err
}

func (m *Mongo) apply(ctx context.Context, op Op) error {
	col := m.db.Collection(op.Collection)

	switch op.Kind {
	case OpCreate:
		doc := maps.Clone(op.Fields)
		if doc == nil {
			doc = Document{}
		}
		doc["_id"] = op.ID
		_, err := col.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		return err
	case OpUpdate:
		update := bson.M{}
		if len(op.Fields) > 0 {
			update["$set"] = op.Fields
		}
		if len(op.Inc) > 0 {
			update["$inc"] = op.Inc
		}
		if len(update) == 0 {
			return nil
		}
		_, err := col.UpdateOne(ctx, bson.M{"_id": op.ID}, update)
		return err
	case OpDelete:
		_, err := col.DeleteOne(ctx, bson.M{"_id": op.ID})
		return err
	case OpDeleteWhere:
		_, err := col.DeleteMany(ctx, filter(op.Where))
		return err
	default:
		return fmt.Errorf("unsupported kind %d", op.Kind)
	}
}

func filter(where map[string]any) bson.M {
	f := bson.M{}
	for k, v := range where {
		f[k] = v
	}
	return f
}
