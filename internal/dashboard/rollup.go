package dashboard

import (
	"time"

	"github.com/samber/lo"

	"neswara/internal/store"
)

type Stats struct {
	TotalArticles      int64 `json:"totalArticles"`
	TotalViews         int64 `json:"totalViews"`
	TotalComments      int64 `json:"totalComments"`
	TotalUsers         int64 `json:"totalUsers"`
	TotalCommentDocs   int64 `json:"totalCommentDocs"`
	TotalNotifications int64 `json:"totalNotifications"`
	TotalBreakingNews  int64 `json:"totalBreakingNews"`
	TotalReports       int64 `json:"totalReports"`
}

// articleTotals covers the three figures derived from the joined article snapshot.
func articleTotals(rows []ArticleRow) (articles, views, comments int64) {
	views = lo.SumBy(rows, func(r ArticleRow) int64 { return r.Views })
	comments = lo.SumBy(rows, func(r ArticleRow) int64 { return r.CommentCount })
	return int64(len(rows)), views, comments
}

type Metric string

const (
	MetricArticles Metric = "articles"
	MetricComments Metric = "comments"
	MetricViews    Metric = "views"
	MetricUsers    Metric = "users"
	MetricReports  Metric = "reports"
)

var allMetrics = []Metric{MetricArticles, MetricComments, MetricViews, MetricUsers, MetricReports}

var ValidRanges = []int{7, 30, 365}

type Bucket struct {
	Date     string `json:"date"`
	Articles int64  `json:"articles"`
	Comments int64  `json:"comments"`
	Views    int64  `json:"views"`
	Users    int64  `json:"users"`
	Reports  int64  `json:"reports"`
}

func (b *Bucket) add(m Metric, n int64) {
	switch m {
	case MetricArticles:
		b.Articles += n
	case MetricComments:
		b.Comments += n
	case MetricViews:
		b.Views += n
	case MetricUsers:
		b.Users += n
	case MetricReports:
		b.Reports += n
	}
}

type Trends struct {
	RangeDays int            `json:"rangeDays"`
	Start     string         `json:"start"`
	End       string         `json:"end"`
	Buckets   []Bucket       `json:"buckets"`
	Skipped   map[Metric]int `json:"skipped"`
}

// TrendInputs are the documents each metric counts. An article's view counter is
// attributed to the day the article was created.
type TrendInputs struct {
	Articles []ArticleRow
	Comments []store.Document
	Users    []store.Document
	Reports  []store.Document
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.In(Jakarta).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Jakarta)
}

// BuildTrends makes one bucket per UTC+7 calendar day, ending on the day of now.
// Documents whose timestamp cannot be parsed are counted in Skipped and left out.
func BuildTrends(days int, now time.Time, in TrendInputs) Trends {
	if days <= 0 {
		days = ValidRanges[0]
	}

	end := dayStart(now)
	start := end.AddDate(0, 0, -(days - 1))

	t := Trends{
		RangeDays: days,
		Start:     start.Format(time.DateOnly),
		End:       end.Format(time.DateOnly),
		Buckets:   make([]Bucket, days),
		Skipped:   make(map[Metric]int, len(allMetrics)),
	}
	for i := range t.Buckets {
		t.Buckets[i].Date = start.AddDate(0, 0, i).Format(time.DateOnly)
	}
	for _, m := range allMetrics {
		t.Skipped[m] = 0
	}

	place := func(m Metric, ts Timestamp, n int64) {
		if !ts.OK() {
			t.Skipped[m]++
			return
		}
		day := dayStart(ts.Time)
		if day.Before(start) || day.After(end) {
			return
		}
		idx := int(day.Sub(start).Hours() / 24)
		t.Buckets[idx].add(m, n)
	}

	for _, r := range in.Articles {
		place(MetricArticles, r.created, 1)
		place(MetricViews, r.created, r.Views)
	}
	for _, d := range in.Comments {
		place(MetricComments, ParseTimestamp(d["createdAt"]), 1)
	}
	for _, d := range in.Users {
		place(MetricUsers, ParseTimestamp(d["createdAt"]), 1)
	}
	for _, d := range in.Reports {
		place(MetricReports, ParseTimestamp(d["createdAt"]), 1)
	}

	return t
}

// Total sums one metric over all buckets.
func (t Trends) Total(m Metric) int64 {
	return lo.SumBy(t.Buckets, func(b Bucket) int64 {
		switch m {
		case MetricArticles:
			return b.Articles
		case MetricComments:
			return b.Comments
		case MetricViews:
			return b.Views
		case MetricUsers:
			return b.Users
		case MetricReports:
			return b.Reports
		}
		return 0
	})
}

func validRange(days int) bool {
	return lo.Contains(ValidRanges, days)
}
