package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neswara/internal/store"
)

func TestBuildTrends_BucketsByJakartaDay(t *testing.T) {
	// 01:00 on 20 June in Jakarta is still 19 June in UTC
	now := time.Date(2024, 6, 20, 1, 0, 0, 0, Jakarta)

	in := TrendInputs{
		Articles: []ArticleRow{
			row("a", "A", "", "", 5, 0, time.Date(2024, 6, 19, 18, 30, 0, 0, time.UTC)), // 20 June WIB
			row("b", "B", "", "", 7, 0, time.Date(2024, 6, 14, 0, 0, 0, 0, Jakarta)),    // first day of the window
			row("c", "C", "", "", 9, 0, time.Date(2024, 6, 13, 23, 59, 0, 0, Jakarta)),  // just outside
			{ID: "d", Views: 100},
		},
		Comments: []store.Document{
			{"createdAt": "2024-06-20T00:10:00+07:00"},
			{"createdAt": time.Date(2024, 6, 18, 12, 0, 0, 0, Jakarta).UnixMilli()},
			{"createdAt": "rusak"},
		},
		Users: []store.Document{
			{"createdAt": map[string]any{"_seconds": time.Date(2024, 6, 15, 8, 0, 0, 0, Jakarta).Unix(), "_nanoseconds": 0}},
		},
		Reports: []store.Document{{}},
	}

	tr := BuildTrends(7, now, in)

	require.Len(t, tr.Buckets, 7)
	assert.Equal(t, "2024-06-14", tr.Start)
	assert.Equal(t, "2024-06-20", tr.End)
	assert.Equal(t, "2024-06-14", tr.Buckets[0].Date)
	assert.Equal(t, "2024-06-20", tr.Buckets[6].Date)

	assert.EqualValues(t, 1, tr.Buckets[6].Articles)
	assert.EqualValues(t, 5, tr.Buckets[6].Views)
	assert.EqualValues(t, 1, tr.Buckets[0].Articles)
	assert.EqualValues(t, 7, tr.Buckets[0].Views)
	assert.EqualValues(t, 1, tr.Buckets[6].Comments)
	assert.EqualValues(t, 1, tr.Buckets[4].Comments)
	assert.EqualValues(t, 1, tr.Buckets[1].Users)

	assert.EqualValues(t, 2, tr.Total(MetricArticles))
	assert.EqualValues(t, 12, tr.Total(MetricViews))
	assert.EqualValues(t, 2, tr.Total(MetricComments))
	assert.EqualValues(t, 1, tr.Total(MetricUsers))
	assert.EqualValues(t, 0, tr.Total(MetricReports))

	assert.Equal(t, 1, tr.Skipped[MetricArticles])
	assert.Equal(t, 1, tr.Skipped[MetricViews])
	assert.Equal(t, 1, tr.Skipped[MetricComments])
	assert.Equal(t, 0, tr.Skipped[MetricUsers])
	assert.Equal(t, 1, tr.Skipped[MetricReports])
}

func TestBuildTrends_TotalsMatchInRangeDocuments(t *testing.T) {
	now := time.Date(2024, 12, 31, 23, 0, 0, 0, Jakarta)

	var comments []store.Document
	inRange := map[int]int64{}
	for _, days := range ValidRanges {
		inRange[days] = 0
	}
	for i := 0; i < 400; i++ {
		created := now.Add(-time.Duration(i) * 23 * time.Hour)
		comments = append(comments, store.Document{"createdAt": created})
		for _, days := range ValidRanges {
			if !dayStart(created).Before(dayStart(now).AddDate(0, 0, -(days - 1))) {
				inRange[days]++
			}
		}
	}

	for _, days := range ValidRanges {
		tr := BuildTrends(days, now, TrendInputs{Comments: comments})
		assert.Len(t, tr.Buckets, days)
		assert.Equal(t, inRange[days], tr.Total(MetricComments), "range %d", days)
	}
}

func TestBuildTrends_Idempotent(t *testing.T) {
	now := time.Now()
	in := TrendInputs{
		Articles: []ArticleRow{row("a", "A", "", "", 3, 1, now)},
		Comments: []store.Document{{"createdAt": now}},
	}
	assert.Equal(t, BuildTrends(30, now, in), BuildTrends(30, now, in))
}

func TestBuildTrends_DefaultsRange(t *testing.T) {
	tr := BuildTrends(0, time.Now(), TrendInputs{})
	assert.Equal(t, 7, tr.RangeDays)
	assert.Len(t, tr.Buckets, 7)
}

func TestArticleTotals(t *testing.T) {
	now := time.Now()
	articles, views, comments := articleTotals([]ArticleRow{
		row("a", "", "", "", 10, 2, now),
		row("b", "", "", "", 5, 0, now),
	})
	assert.EqualValues(t, 2, articles)
	assert.EqualValues(t, 15, views)
	assert.EqualValues(t, 2, comments)
}
