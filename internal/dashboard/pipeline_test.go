package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"neswara/internal/store"
)

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

// flakyStore refuses the first failures subscriptions to the comments collection.
// Errors sent on userErrs are delivered on the live users subscription.
type flakyStore struct {
	*store.Memory
	failures atomic.Int32
	attempts atomic.Int32
	userErrs chan error
}

var errIndexMissing = errors.New("FAILED_PRECONDITION: the query requires an index")

func (f *flakyStore) Subscribe(ctx context.Context, q store.Query) (*store.Subscription, error) {
	if q.Collection == store.Comments {
		f.attempts.Add(1)
		if f.failures.Add(-1) >= 0 {
			return nil, errIndexMissing
		}
	}
	sub, err := f.Memory.Subscribe(ctx, q)
	if err != nil || q.Collection != store.Users {
		return sub, err
	}

	out := make(chan store.Snapshot)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			var snap store.Snapshot
			select {
			case s, ok := <-sub.C:
				if !ok {
					return
				}
				snap = s
			case err := <-f.userErrs:
				snap = store.Snapshot{Collection: store.Users, Err: err}
			case <-ctx.Done():
				return
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &store.Subscription{C: out}, nil
}

type PipelineSuite struct {
	suite.Suite

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	store *flakyStore
	tick  chan time.Time
	clock atomic.Int64
	p     *Pipeline
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.store = &flakyStore{Memory: store.NewMemory(), userErrs: make(chan error)}
	s.tick = make(chan time.Time)
	s.clock.Store(time.Date(2024, 6, 20, 10, 0, 0, 0, Jakarta).UnixNano())
}

func (s *PipelineSuite) TearDownTest() {
	s.cancel()
	if s.done != nil {
		<-s.done
	}
}

func (s *PipelineSuite) start() {
	s.p = New(s.store, Config{
		RangeDays:            7,
		CommentRetryAttempts: 3,
		CommentRetryBackoff:  time.Millisecond,
	}, zerolog.Nop())
	s.p.now = func() time.Time { return time.Unix(0, s.clock.Load()).In(Jakarta) }
	s.p.newTicker = func(time.Duration) ticker { return &fakeTicker{ch: s.tick} }

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.p.Run(s.ctx)
	}()
}

func (s *PipelineSuite) write(ops ...store.Op) {
	s.Require().NoError(s.store.WriteBatch(s.ctx, ops))
}

func (s *PipelineSuite) article(id string, views int64) store.Op {
	return store.Create(store.News, id, store.Document{
		"title":     "Berita " + id,
		"category":  "nasional",
		"views":     views,
		"createdAt": time.Unix(0, s.clock.Load()).Add(-time.Hour),
	})
}

func (s *PipelineSuite) comment(articleID string) store.Op {
	return store.Create(store.Comments, store.NewID(), store.Document{
		"articleId": articleID,
		"text":      "komentar",
		"createdAt": time.Unix(0, s.clock.Load()),
	})
}

func (s *PipelineSuite) eventually(cond func(State) bool, msg string) State {
	var last State
	s.Require().Eventually(func() bool {
		last = s.p.Current()
		return cond(last)
	}, 2*time.Second, 5*time.Millisecond, msg)
	return last
}

func countOf(st State, id string) int64 {
	for _, r := range st.Articles {
		if r.ID == id {
			return r.CommentCount
		}
	}
	return -1
}

func (s *PipelineSuite) TestCommentCountFollowsOnlyItsArticle() {
	s.write(s.article("x", 3), s.article("y", 4))
	s.start()

	s.eventually(func(st State) bool { return len(st.Articles) == 2 }, "articles loaded")

	s.write(s.comment("x"))
	st := s.eventually(func(st State) bool { return countOf(st, "x") == 1 }, "comment counted")
	s.EqualValues(0, countOf(st, "y"))
	s.EqualValues(1, st.Stats.TotalComments)
	s.EqualValues(7, st.Stats.TotalViews)
	s.EqualValues(2, st.Stats.TotalArticles)
	s.EqualValues(1, st.Trends.Total(MetricComments))
}

func (s *PipelineSuite) TestStatsPerCollection() {
	s.write(
		s.article("x", 1),
		store.Create(store.Users, "u1", store.Document{"displayName": "A", "createdAt": time.Now()}),
		store.Create(store.Users, "u2", store.Document{"displayName": "B", "createdAt": time.Now()}),
		store.Create(store.Notifications, "n1", store.Document{"title": "hi"}),
		store.Create(store.BreakingNews, "b1", store.Document{"text": "gempa"}),
		store.Create(store.Reports, "r1", store.Document{"reason": "spam", "createdAt": "2024-06-20"}),
	)
	s.start()

	st := s.eventually(func(st State) bool {
		return st.Stats.TotalUsers == 2 && st.Stats.TotalNotifications == 1 &&
			st.Stats.TotalBreakingNews == 1 && st.Stats.TotalReports == 1 && st.Stats.TotalArticles == 1
	}, "every collection reported")
	s.Empty(st.Warnings)
	s.EqualValues(1, st.Trends.Total(MetricReports))
}

func (s *PipelineSuite) TestCommentSubscriptionRetriesThenRecovers() {
	s.store.failures.Store(2)
	s.write(s.article("x", 0), s.comment("x"))
	s.start()

	st := s.eventually(func(st State) bool { return countOf(st, "x") == 1 && st.Stats.TotalCommentDocs == 1 }, "comments joined after retry")
	s.Empty(st.Warnings)
	s.EqualValues(3, s.store.attempts.Load())
}

func (s *PipelineSuite) TestCommentSubscriptionGivesUpAndFallsBack() {
	s.store.failures.Store(100)
	s.write(s.article("x", 0), s.comment("x"), s.comment("x"))
	s.start()

	s.eventually(func(st State) bool { return st.Warnings[store.Comments] != "" }, "warning surfaced")
	s.GreaterOrEqual(s.store.attempts.Load(), int32(3))

	// the next article snapshot carries per-article counts
	s.write(s.article("y", 0))
	st := s.eventually(func(st State) bool { return countOf(st, "x") == 2 }, "fallback counts used")
	s.EqualValues(0, countOf(st, "y"))
	s.Len(st.Articles, 2)
}

func (s *PipelineSuite) TestCommentSubscriptionReopensAfterGivingUp() {
	s.store.failures.Store(3)
	s.write(s.article("x", 0), s.comment("x"))
	s.start()

	s.Require().Eventually(func() bool { return s.store.attempts.Load() >= 3 }, 2*time.Second, 5*time.Millisecond, "first round gave up")

	// an article snapshot starts another round, which now succeeds
	s.write(s.article("y", 0), s.comment("y"))
	st := s.eventually(func(st State) bool {
		return st.Stats.TotalCommentDocs == 2 && st.Warnings[store.Comments] == ""
	}, "comment stream re-opened")
	s.Greater(s.store.attempts.Load(), int32(3))
	s.EqualValues(1, countOf(st, "x"))
	s.EqualValues(1, countOf(st, "y"))
	s.EqualValues(2, st.Trends.Total(MetricComments))
}

func (s *PipelineSuite) TestFailedSubscriptionKeepsLastKnownValue() {
	s.write(
		store.Create(store.Users, "u1", store.Document{"displayName": "A", "createdAt": time.Now()}),
		store.Create(store.Users, "u2", store.Document{"displayName": "B", "createdAt": time.Now()}),
	)
	s.start()
	s.eventually(func(st State) bool { return st.Stats.TotalUsers == 2 }, "users loaded")

	s.store.userErrs <- errors.New("PERMISSION_DENIED: missing or insufficient permissions")
	st := s.eventually(func(st State) bool { return st.Warnings[store.Users] != "" }, "warning surfaced")
	s.EqualValues(2, st.Stats.TotalUsers)
	s.Contains(st.Warnings[store.Users], "PERMISSION_DENIED")

	// the stream keeps going and the next good snapshot clears the warning
	s.write(store.Create(store.Users, "u3", store.Document{"displayName": "C", "createdAt": time.Now()}))
	st = s.eventually(func(st State) bool { return st.Stats.TotalUsers == 3 }, "users recovered")
	s.Empty(st.Warnings[store.Users])
}

func (s *PipelineSuite) TestFilterAndRangeActions() {
	s.write(s.article("x", 10), s.article("y", 20))
	s.start()
	s.eventually(func(st State) bool { return len(st.Articles) == 2 }, "articles loaded")

	s.Require().NoError(s.p.SetFilter(s.ctx, Filter{Sort: SortViews}))
	st := s.eventually(func(st State) bool { return st.Filter.Sort == SortViews }, "filter applied")
	s.Equal([]string{"y", "x"}, ids(st.Articles))

	s.Require().NoError(s.p.SetRange(s.ctx, 30))
	st = s.eventually(func(st State) bool { return st.Trends.RangeDays == 30 }, "range applied")
	s.Len(st.Trends.Buckets, 30)

	s.ErrorIs(s.p.SetRange(s.ctx, 14), ErrInvalidRange)
	s.ErrorIs(s.p.SetFilter(s.ctx, Filter{Date: "besok"}), ErrInvalidFilter)
}

func (s *PipelineSuite) TestClockTickRollsTheWindow() {
	s.start()
	before := s.eventually(func(st State) bool { return st.Trends.End == "2024-06-20" }, "initial window")

	s.clock.Store(time.Date(2024, 6, 21, 0, 5, 0, 0, Jakarta).UnixNano())
	s.tick <- time.Now()

	after := s.eventually(func(st State) bool { return st.Trends.End == "2024-06-21" }, "window rolled")
	s.NotEqual(before.Trends.Start, after.Trends.Start)
}

func (s *PipelineSuite) TestWatchDeliversLatestState() {
	s.write(s.article("x", 1))
	s.start()

	ch, stop := s.p.Watch()
	defer stop()

	s.write(s.article("y", 1))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if len(st.Articles) == 2 {
				stop()
				for range ch {
				}
				return
			}
		case <-deadline:
			s.FailNow("watcher never saw both articles")
		}
	}
}

func (s *PipelineSuite) TestRecomputeIsIdempotent() {
	s.write(s.article("x", 2), s.comment("x"))
	s.start()
	s.eventually(func(st State) bool { return countOf(st, "x") == 1 }, "loaded")

	s.tick <- time.Now()
	first := s.p.Current()
	s.tick <- time.Now()
	s.tick <- time.Now()
	second := s.p.Current()

	s.Equal(first.Stats, second.Stats)
	s.Equal(first.Trends, second.Trends)
	s.Equal(first.Articles, second.Articles)
}
