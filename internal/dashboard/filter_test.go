package dashboard

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(id, title, category, author string, views, comments int64, created time.Time) ArticleRow {
	ts := ParseTimestamp(created)
	return ArticleRow{
		ID:           id,
		Title:        title,
		Category:     category,
		AuthorName:   author,
		Views:        views,
		CommentCount: comments,
		CreatedAt:    ts.Time,
		created:      ts,
	}
}

func ids(rows []ArticleRow) []string {
	return lo.Map(rows, func(r ArticleRow, _ int) string { return r.ID })
}

func TestApply(t *testing.T) {
	now := time.Date(2024, 6, 20, 12, 0, 0, 0, Jakarta)
	rows := []ArticleRow{
		row("a", "Banjir Jakarta", "nasional", "Sari", 10, 2, now.Add(-2*time.Hour)),
		row("b", "Timnas menang", "olahraga", "Budi", 50, 1, now.AddDate(0, 0, -3)),
		row("c", "Harga beras naik", "ekonomi", "Sari Dewi", 30, 9, now.AddDate(0, 0, -12)),
		row("d", "Banjir Bekasi", "nasional", "Andi", 30, 0, now.AddDate(0, 0, -40)),
		{ID: "e", Title: "Tanpa tanggal", Category: "nasional", AuthorName: "Sari"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filter keeps input order", Filter{}, []string{"a", "b", "c", "d", "e"}},
		{"title is case insensitive", Filter{Title: "BANJIR"}, []string{"a", "d"}},
		{"category is exact", Filter{Category: "nasional"}, []string{"a", "d", "e"}},
		{"category prefix does not match", Filter{Category: "nasion"}, []string{}},
		{"author substring", Filter{Author: "sari"}, []string{"a", "c", "e"}},
		{"last 7 days", Filter{Date: DateLast7Days}, []string{"a", "b"}},
		{"last 30 days", Filter{Date: DateLast30Days}, []string{"a", "b", "c"}},
		{"single day", Filter{Date: "2024-06-17"}, []string{"b"}},
		{"combined", Filter{Category: "nasional", Date: DateLast30Days}, []string{"a"}},
		{"sort by views, stable ties", Filter{Sort: SortViews}, []string{"b", "c", "d", "a", "e"}},
		{"sort by comments", Filter{Sort: SortComments}, []string{"c", "a", "b", "d", "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.filter.Validate())
			assert.Equal(t, tt.want, ids(Apply(rows, tt.filter, now)))
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	now := time.Now()
	rows := []ArticleRow{
		row("a", "A", "x", "", 1, 0, now),
		row("b", "B", "x", "", 2, 0, now),
	}
	_ = Apply(rows, Filter{Sort: SortViews}, now)
	assert.Equal(t, []string{"a", "b"}, ids(rows))
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{Date: "2024-01-31"}.Validate())
	assert.ErrorIs(t, Filter{Date: "31-01-2024"}.Validate(), ErrInvalidFilter)
	assert.ErrorIs(t, Filter{Date: "90d"}.Validate(), ErrInvalidFilter)
	assert.ErrorIs(t, Filter{Sort: "title"}.Validate(), ErrInvalidFilter)
}
