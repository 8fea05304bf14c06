package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names.
const (
	News          = "news"
	Comments      = "comments"
	Users         = "users"
	BreakingNews  = "breakingNews"
	Notifications = "notifications"
	Logs          = "logs"
	Reports       = "reports"
	Views         = "views"
	SavedArticles = "savedArticles"
)

var ErrDuplicateID = errors.New("store: document already exists")

// Document is a raw document as held by the store. The primary key lives under "_id".
type Document = bson.M

// Query selects documents by equality on top-level fields, with one optional order-by field.
type Query struct {
	Collection string
	Where      map[string]any
	OrderBy    string
	Desc       bool
	Limit      int
}

// Snapshot is the full result set of a subscribed query at one point in time.
type Snapshot struct {
	Collection string
	Docs       []Document
	Revision   uint64
	Err        error
}

type Subscription struct {
	C      <-chan Snapshot
	cancel context.CancelFunc
}

// Unsubscribe stops delivery; C is closed once the producer exits.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}

type OpKind int

const (
	OpCreate OpKind = iota
	OpUpdate
	OpDelete
	OpDeleteWhere
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpDeleteWhere:
		return "delete_where"
	default:
		return "unknown"
	}
}

// Op is one write inside a batch. Updates apply Fields as $set and Inc as $inc.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Fields     Document
	Inc        map[string]int64
	Where      map[string]any
}

func Create(collection, id string, fields Document) Op {
	return Op{Kind: OpCreate, Collection: collection, ID: id, Fields: fields}
}

func Update(collection, id string, fields Document) Op {
	return Op{Kind: OpUpdate, Collection: collection, ID: id, Fields: fields}
}

func Increment(collection, id, field string, by int64) Op {
	return Op{Kind: OpUpdate, Collection: collection, ID: id, Inc: map[string]int64{field: by}}
}

func Delete(collection, id string) Op {
	return Op{Kind: OpDelete, Collection: collection, ID: id}
}

func DeleteWhere(collection string, where map[string]any) Op {
	return Op{Kind: OpDeleteWhere, Collection: collection, Where: where}
}

// Client is the document store facade consumed by every service.
//
// GetOnce returns a nil document and a nil error when the document does not exist.
// WriteBatch is all-or-nothing; updates and deletes of missing documents are no-ops.
type Client interface {
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
	GetOnce(ctx context.Context, collection, id string) (Document, error)
	Find(ctx context.Context, q Query) ([]Document, error)
	Count(ctx context.Context, q Query) (int64, error)
	WriteBatch(ctx context.Context, ops []Op) error
}

func NewID() string {
	return primitive.NewObjectID().Hex()
}

// Decode converts a raw document into a tagged struct.
func Decode(doc Document, out any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}

func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := Decode(d, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
