// Package event turns MongoDB change streams on content collections into messages on a
// RabbitMQ topic exchange, so caches and search indexes outside this service can follow edits.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"neswara/internal/store"
)

type Publisher interface {
	PublishContentChanged(ctx context.Context, msg ContentChangedMessage) error
}

// Watched lists the collections whose changes are published.
var Watched = []string{store.News, store.BreakingNews}

type Service struct {
	db        *mongo.Database
	publisher Publisher
	logger    zerolog.Logger
}

func NewService(db *mongo.Database, publisher Publisher, logger zerolog.Logger) *Service {
	return &Service{
		db:        db,
		publisher: publisher,
		logger:    logger.With().Str("component", "events").Logger(),
	}
}

// Run watches every collection in Watched until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, name := range Watched {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			s.watch(ctx, s.db.Collection(name))
		}(name)
	}
	wg.Wait()
}

func (s *Service) watch(ctx context.Context, col *mongo.Collection) {
	log := s.logger.With().Str("collection", col.Name()).Logger()

	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := col.Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		log.Error().Err(err).Msg("failed to open change stream")
		return
	}
	defer stream.Close(context.Background())

	log.Info().Msg("watching change stream")

	for stream.Next(ctx) {
		var change bson.M
		if err := stream.Decode(&change); err != nil {
			log.Warn().Err(err).Msg("failed decoding change event")
			continue
		}

		msg, ok := messageFor(col.Name(), change)
		if !ok {
			log.Debug().Interface("operation", change["operationType"]).Msg("skip change event")
			continue
		}

		if err := s.publisher.PublishContentChanged(ctx, msg); err != nil {
			log.Warn().Err(err).Str("id", msg.DocumentID).Msg("failed publishing change")
			continue
		}

		log.Debug().Str("id", msg.DocumentID).Str("event", msg.Event).Msg("published change to message bus")
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("change stream closed with error")
	} else {
		log.Info().Msg("change stream stopped")
	}
}

var eventNames = map[string]string{
	"insert":  "created",
	"update":  "updated",
	"replace": "updated",
	"delete":  "deleted",
}

// messageFor maps a raw change event to a message. Events without a document key or
// with an operation other than insert, update, replace or delete are dropped.
func messageFor(collection string, change bson.M) (ContentChangedMessage, bool) {
	op, _ := change["operationType"].(string)
	name, ok := eventNames[op]
	if !ok {
		return ContentChangedMessage{}, false
	}

	id := extractDocumentID(change)
	if id == "" {
		return ContentChangedMessage{}, false
	}

	msg := ContentChangedMessage{
		Event:      name,
		Collection: collection,
		DocumentID: id,
		Timestamp:  clusterTime(change),
	}
	if doc, ok := change["fullDocument"].(bson.M); ok && name != "deleted" {
		msg.Document = doc
	}
	return msg, true
}

func extractDocumentID(change bson.M) string {
	key, ok := change["documentKey"].(bson.M)
	if !ok {
		return ""
	}
	return store.ID(key)
}

func clusterTime(change bson.M) time.Time {
	if ts, ok := change["clusterTime"].(primitive.Timestamp); ok && ts.T > 0 {
		return time.Unix(int64(ts.T), 0).UTC()
	}
	return time.Time{}
}
