// Package dashboard keeps the admin dashboard continuously up to date.
//
// One goroutine owns all derived state. Live subscriptions, filter and range changes
// and a clock tick are all delivered to it as actions over a channel; after each
// action it recomputes what changed and publishes an immutable State to watchers.
//
// Collections update independently, so totals from different collections may be one
// snapshot apart from each other.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"neswara/internal/metrics"
	"neswara/internal/store"
)

// Action is one input to the reducer.
type Action interface {
	actionName() string
}

// SnapshotReceived carries a snapshot, or a subscription failure in Snapshot.Err.
// FallbackCounts is set on article snapshots taken while the comment stream is down.
type SnapshotReceived struct {
	Snapshot       store.Snapshot
	FallbackCounts map[string]int64
}

type FilterChanged struct {
	Filter Filter
}

type RangeChanged struct {
	Days int
}

// ClockTick lets day buckets roll over when no snapshot arrives.
type ClockTick struct{}

func (SnapshotReceived) actionName() string { return "SNAPSHOT_RECEIVED" }
func (FilterChanged) actionName() string    { return "FILTER_CHANGED" }
func (RangeChanged) actionName() string     { return "RANGE_CHANGED" }
func (ClockTick) actionName() string        { return "CLOCK_TICK" }

// State is what the dashboard renders. Watchers receive copies and must not mutate them.
type State struct {
	Articles  []ArticleRow      `json:"articles"`
	Filter    Filter            `json:"filter"`
	Stats     Stats             `json:"stats"`
	Trends    Trends            `json:"trends"`
	Warnings  map[string]string `json:"warnings"`
	Revisions map[string]uint64 `json:"revisions"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type Config struct {
	RangeDays            int
	ClockInterval        time.Duration
	CommentRetryAttempts int
	CommentRetryBackoff  time.Duration
}

// Tracked lists the live queries the dashboard holds open.
var Tracked = []store.Query{
	{Collection: store.News, OrderBy: "createdAt", Desc: true},
	{Collection: store.Users},
	{Collection: store.Comments, OrderBy: "createdAt"},
	{Collection: store.Notifications},
	{Collection: store.BreakingNews},
	{Collection: store.Reports},
}

// ticker is an interface so tests can drive the clock.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type tickerFactory func(d time.Duration) ticker

type timeTicker struct {
	*time.Ticker
}

func (t *timeTicker) C() <-chan time.Time {
	return t.Ticker.C
}

type Pipeline struct {
	store     store.Client
	logger    zerolog.Logger
	cfg       Config
	now       func() time.Time
	newTicker tickerFactory

	actions      chan Action
	commentsDown atomic.Bool
	// reopen asks a given-up comment follower for another bounded attempt
	reopen chan struct{}

	mu       sync.RWMutex
	current  State
	watchers map[chan State]struct{}

	// owned by the reducer goroutine
	model model
}

func New(s store.Client, cfg Config, logger zerolog.Logger) *Pipeline {
	if !validRange(cfg.RangeDays) {
		cfg.RangeDays = ValidRanges[0]
	}
	if cfg.ClockInterval <= 0 {
		cfg.ClockInterval = time.Minute
	}
	if cfg.CommentRetryAttempts <= 0 {
		cfg.CommentRetryAttempts = 3
	}
	if cfg.CommentRetryBackoff <= 0 {
		cfg.CommentRetryBackoff = 500 * time.Millisecond
	}

	p := &Pipeline{
		store:    s,
		logger:   logger.With().Str("component", "dashboard").Logger(),
		cfg:      cfg,
		now:      time.Now,
		actions:  make(chan Action, 64),
		reopen:   make(chan struct{}, 1),
		watchers: make(map[chan State]struct{}),
		newTicker: func(d time.Duration) ticker {
			return &timeTicker{time.NewTicker(d)}
		},
	}
	p.model = newModel(cfg.RangeDays)
	p.current = p.model.state(p.now())
	return p
}

// Run opens every subscription and reduces actions until ctx is cancelled.
// All subscriptions are released before it returns.
func (p *Pipeline) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, q := range Tracked {
		wg.Add(1)
		go func(q store.Query) {
			defer wg.Done()
			p.follow(ctx, q)
		}(q)
	}

	t := p.newTicker(p.cfg.ClockInterval)
	defer t.Stop()

	p.logger.Info().Int("subscriptions", len(Tracked)).Msg("dashboard pipeline started")

	for {
		select {
		case <-ctx.Done():
			cancel()
			wg.Wait()
			p.logger.Info().Msg("dashboard pipeline stopped")
			return
		case <-t.C():
			p.apply(ClockTick{})
		case a := <-p.actions:
			p.apply(a)
		}
	}
}

func (p *Pipeline) dispatch(ctx context.Context, a Action) bool {
	select {
	case p.actions <- a:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) SetFilter(ctx context.Context, f Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if !p.dispatch(ctx, FilterChanged{Filter: f}) {
		return ctx.Err()
	}
	return nil
}

var ErrInvalidRange = errors.New("range must be 7, 30 or 365 days")

func (p *Pipeline) SetRange(ctx context.Context, days int) error {
	if !validRange(days) {
		return ErrInvalidRange
	}
	if !p.dispatch(ctx, RangeChanged{Days: days}) {
		return ctx.Err()
	}
	return nil
}

// Current returns the latest published state.
func (p *Pipeline) Current() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Watch delivers the current state and then every new one. Slow watchers only
// ever see the latest state. The returned func stops delivery.
func (p *Pipeline) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)

	p.mu.Lock()
	p.watchers[ch] = struct{}{}
	ch <- p.current
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, ch)
			close(ch)
			p.mu.Unlock()
		})
	}
}

func (p *Pipeline) apply(a Action) {
	start := time.Now()
	defer metrics.ObserveRecompute(start)

	switch act := a.(type) {
	case SnapshotReceived:
		snap := act.Snapshot
		if snap.Err != nil {
			metrics.SubscriptionErrors.WithLabelValues(snap.Collection).Inc()
			p.logger.Warn().Err(snap.Err).Str("collection", snap.Collection).Msg("subscription failed, keeping last known values")
		} else {
			metrics.SnapshotsReceived.WithLabelValues(snap.Collection).Inc()
		}
		p.model.receive(snap, act.FallbackCounts)
	case FilterChanged:
		p.model.filter = act.Filter
	case RangeChanged:
		p.model.rangeDays = act.Days
	case ClockTick:
	}

	p.publish(p.model.state(p.now()))
}

func (p *Pipeline) publish(s State) {
	for m, n := range s.Trends.Skipped {
		metrics.TimestampsSkipped.WithLabelValues(string(m)).Set(float64(n))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = s
	for ch := range p.watchers {
		select {
		case ch <- s:
			continue
		default:
		}
		// replace the undelivered state with the newer one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// follow forwards one subscription into the reducer. The comment group query is the
// one most likely to be refused, so it alone is re-opened with bounded backoff. After
// a round gives up, every article snapshot starts another round.
func (p *Pipeline) follow(ctx context.Context, q store.Query) {
	retry := q.Collection == store.Comments

	for {
		sub, err := p.open(ctx, q, retry)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if retry {
				p.commentsDown.Store(true)
			}
			p.dispatch(ctx, SnapshotReceived{Snapshot: store.Snapshot{Collection: q.Collection, Err: err}})
			if !retry {
				return
			}
			// the next article snapshot wakes us for another round
			select {
			case <-p.reopen:
				p.logger.Info().Str("collection", q.Collection).Msg("retrying subscription")
				continue
			case <-ctx.Done():
				return
			}
		}

		failed := p.drain(ctx, q, sub)
		sub.Unsubscribe()

		if ctx.Err() != nil || !retry || !failed {
			return
		}
		p.logger.Info().Str("collection", q.Collection).Msg("re-opening subscription")
	}
}

// drain forwards snapshots until the subscription ends. A failing comment stream is
// abandoned so follow can re-open it; drain reports whether that happened.
func (p *Pipeline) drain(ctx context.Context, q store.Query, sub *store.Subscription) bool {
	for snap := range sub.C {
		act := SnapshotReceived{Snapshot: snap}

		switch {
		case q.Collection == store.Comments:
			p.commentsDown.Store(snap.Err != nil)
		case q.Collection == store.News && snap.Err == nil && p.commentsDown.Load():
			act.FallbackCounts = p.countComments(ctx, snap.Docs)
			select {
			case p.reopen <- struct{}{}:
			default:
			}
		}

		if !p.dispatch(ctx, act) {
			return false
		}
		if snap.Err != nil && q.Collection == store.Comments {
			return true
		}
	}
	return false
}

func (p *Pipeline) open(ctx context.Context, q store.Query, retry bool) (*store.Subscription, error) {
	if !retry {
		return p.store.Subscribe(ctx, q)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.cfg.CommentRetryBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.cfg.CommentRetryAttempts-1)), ctx)

	var sub *store.Subscription
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		s, err := p.store.Subscribe(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		sub = s
		return nil
	}, policy, func(err error, wait time.Duration) {
		p.logger.Warn().Err(err).Str("collection", q.Collection).Int("attempt", attempt).Dur("backoff", wait).Msg("subscribe failed, retrying")
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s after %d attempts: %w", q.Collection, attempt, err)
	}
	return sub, nil
}

// countComments issues one count per article; used only while the group query is unavailable.
func (p *Pipeline) countComments(ctx context.Context, docs []store.Document) map[string]int64 {
	counts := make(map[string]int64, len(docs))
	for _, d := range docs {
		id := store.ID(d)
		n, err := p.store.Count(ctx, store.Query{Collection: store.Comments, Where: map[string]any{"articleId": id}})
		if err != nil {
			p.logger.Debug().Err(err).Str("article", id).Msg("comment count read failed")
			continue
		}
		counts[id] = n
	}
	return counts
}

// model is the reducer's private view of every collection.
type model struct {
	snapshots map[string]store.Snapshot
	warnings  map[string]string
	filter    Filter
	rangeDays int

	fallback map[string]int64

	// Store revisions restart when a subscription is re-opened, so memoization
	// keys on a local generation bumped for every accepted snapshot.
	seq  uint64
	gens map[string]uint64

	countsGen uint64
	counts    map[string]int64

	joinKey  [2]uint64
	joinFrom string
	joined   []ArticleRow
}

func newModel(rangeDays int) model {
	return model{
		snapshots: make(map[string]store.Snapshot),
		warnings:  make(map[string]string),
		gens:      make(map[string]uint64),
		rangeDays: rangeDays,
	}
}

func (m *model) receive(snap store.Snapshot, fallback map[string]int64) {
	if snap.Err != nil {
		m.warnings[snap.Collection] = snap.Err.Error()
		return
	}
	delete(m.warnings, snap.Collection)
	m.snapshots[snap.Collection] = snap
	m.seq++
	m.gens[snap.Collection] = m.seq
	if snap.Collection == store.News {
		m.fallback = fallback
	}
}

func (m *model) commentCounts() map[string]int64 {
	snap, ok := m.snapshots[store.Comments]
	if !ok {
		return nil
	}
	gen := m.gens[store.Comments]
	if m.counts != nil && m.countsGen == gen {
		return m.counts
	}
	m.counts = lo.MapValues(
		lo.CountValuesBy(snap.Docs, func(d store.Document) string { return store.String(d, "articleId") }),
		func(n int, _ string) int64 { return int64(n) },
	)
	m.countsGen = gen
	return m.counts
}

// rows joins each article with its live comment count. Source of the count, in order:
// the comment group snapshot while it is healthy, per-article fallback reads, and the
// counter stored on the article.
func (m *model) rows() []ArticleRow {
	news := m.snapshots[store.News]
	_, haveComments := m.snapshots[store.Comments]
	_, commentsFailing := m.warnings[store.Comments]

	source := "stored"
	switch {
	case haveComments && !commentsFailing:
		source = "group"
	case m.fallback != nil:
		source = "fallback"
	}

	key := [2]uint64{m.gens[store.News], m.gens[store.Comments]}
	if m.joined != nil && m.joinKey == key && m.joinFrom == source {
		return m.joined
	}

	var counts map[string]int64
	switch source {
	case "group":
		counts = m.commentCounts()
	case "fallback":
		counts = m.fallback
	}

	rows := make([]ArticleRow, 0, len(news.Docs))
	for _, d := range news.Docs {
		r := rowFromDocument(d)
		if counts != nil {
			if n, ok := counts[r.ID]; ok || source == "group" {
				r.CommentCount = n
			}
		}
		rows = append(rows, r)
	}

	m.joined, m.joinKey, m.joinFrom = rows, key, source
	return rows
}

func (m *model) state(now time.Time) State {
	all := m.rows()

	var stats Stats
	stats.TotalArticles, stats.TotalViews, stats.TotalComments = articleTotals(all)
	stats.TotalUsers = int64(len(m.snapshots[store.Users].Docs))
	stats.TotalCommentDocs = int64(len(m.snapshots[store.Comments].Docs))
	stats.TotalNotifications = int64(len(m.snapshots[store.Notifications].Docs))
	stats.TotalBreakingNews = int64(len(m.snapshots[store.BreakingNews].Docs))
	stats.TotalReports = int64(len(m.snapshots[store.Reports].Docs))

	trends := BuildTrends(m.rangeDays, now, TrendInputs{
		Articles: all,
		Comments: m.snapshots[store.Comments].Docs,
		Users:    m.snapshots[store.Users].Docs,
		Reports:  m.snapshots[store.Reports].Docs,
	})

	revisions := make(map[string]uint64, len(m.snapshots))
	for name, s := range m.snapshots {
		revisions[name] = s.Revision
	}

	return State{
		Articles:  Apply(all, m.filter, now),
		Filter:    m.filter,
		Stats:     stats,
		Trends:    trends,
		Warnings:  lo.Assign(m.warnings),
		Revisions: revisions,
		UpdatedAt: now,
	}
}
