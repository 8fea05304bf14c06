package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process store used for local development and tests.
// Every successful batch pushes a fresh snapshot to each subscription on a touched collection.
type Memory struct {
	mu       sync.Mutex
	data     map[string]map[string]Document
	revision uint64
	subs     map[*memorySub]struct{}
}

// uniqueKeys mirrors the unique indexes the mongo backend creates.
var uniqueKeys = map[string][]string{
	News:          {"slug"},
	SavedArticles: {"userId", "articleId"},
}

type memorySub struct {
	q  Query
	ch chan Snapshot
}

func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]map[string]Document),
		subs: make(map[*memorySub]struct{}),
	}
}

func (m *Memory) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &memorySub{q: q, ch: make(chan Snapshot, 1)}

	m.mu.Lock()
	m.subs[sub] = struct{}{}
	sub.offer(m.snapshotLocked(q))
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, sub)
		close(sub.ch)
		m.mu.Unlock()
	}()

	return &Subscription{C: sub.ch, cancel: cancel}, nil
}

// offer replaces an undelivered snapshot with the newer one. Callers hold Memory.mu.
func (s *memorySub) offer(snap Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (m *Memory) GetOnce(_ context.Context, collection, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.data[collection][id]
	if !ok {
		return nil, nil
	}
	return maps.Clone(doc), nil
}

func (m *Memory) Find(_ context.Context, q Query) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(q), nil
}

func (m *Memory) Count(_ context.Context, q Query) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, doc := range m.data[q.Collection] {
		if matches(doc, q.Where) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) WriteBatch(_ context.Context, ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// stage on copies so a failing op leaves nothing applied
	staged := make(map[string]map[string]Document)
	touched := make(map[string]struct{})
	collection := func(name string) map[string]Document {
		if c, ok := staged[name]; ok {
			return c
		}
		c := maps.Clone(m.data[name])
		if c == nil {
			c = make(map[string]Document)
		}
		staged[name] = c
		return c
	}

	for i, op := range ops {
		c := collection(op.Collection)
		touched[op.Collection] = struct{}{}

		switch op.Kind {
		case OpCreate:
			if _, exists := c[op.ID]; exists {
				return fmt.Errorf("op %d (%s %s/%s): %w", i, op.Kind, op.Collection, op.ID, ErrDuplicateID)
			}
			doc := maps.Clone(op.Fields)
			if doc == nil {
				doc = Document{}
			}
			doc["_id"] = op.ID
			c[op.ID] = doc
		case OpUpdate:
			existing, ok := c[op.ID]
			if !ok {
				continue
			}
			doc := maps.Clone(existing)
			for k, v := range op.Fields {
				doc[k] = v
			}
			for k, by := range op.Inc {
				doc[k] = Int(doc, k) + by
			}
			c[op.ID] = doc
		case OpDelete:
			delete(c, op.ID)
		case OpDeleteWhere:
			for id, doc := range c {
				if matches(doc, op.Where) {
					delete(c, id)
				}
			}
		default:
			return fmt.Errorf("op %d: unsupported kind %d", i, op.Kind)
		}
	}

	for name := range touched {
		if err := checkUnique(name, staged[name]); err != nil {
			return err
		}
	}

	for name, c := range staged {
		m.data[name] = c
	}
	m.revision++

	for sub := range m.subs {
		if _, ok := touched[sub.q.Collection]; ok {
			sub.offer(m.snapshotLocked(sub.q))
		}
	}
	return nil
}

// checkUnique rejects a collection where two documents share a unique key.
// Documents missing any key field are not indexed.
func checkUnique(collection string, docs map[string]Document) error {
	fields, ok := uniqueKeys[collection]
	if !ok {
		return nil
	}
	seen := make(map[string]string, len(docs))
	for id, doc := range docs {
		key, ok := uniqueKey(doc, fields)
		if !ok {
			continue
		}
		if other, dup := seen[key]; dup {
			return fmt.Errorf("%s: %s and %s share %v: %w", collection, other, id, fields, ErrDuplicateID)
		}
		seen[key] = id
	}
	return nil
}

func uniqueKey(doc Document, fields []string) (string, bool) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		v, ok := doc[f]
		if !ok || v == nil || v == "" {
			return "", false
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x00"), true
}

func (m *Memory) snapshotLocked(q Query) Snapshot {
	return Snapshot{
		Collection: q.Collection,
		Docs:       m.findLocked(q),
		Revision:   m.revision,
	}
}

func (m *Memory) findLocked(q Query) []Document {
	docs := make([]Document, 0, len(m.data[q.Collection]))
	for _, doc := range m.data[q.Collection] {
		if matches(doc, q.Where) {
			docs = append(docs, maps.Clone(doc))
		}
	}

	// map iteration is random; _id keeps equal sort keys deterministic
	sort.SliceStable(docs, func(i, j int) bool {
		return ID(docs[i]) < ID(docs[j])
	})
	if q.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			c := compareValues(docs[i][q.OrderBy], docs[j][q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}
