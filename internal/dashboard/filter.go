package dashboard

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"neswara/internal/store"
)

const (
	DateAny        = ""
	DateLast7Days  = "7d"
	DateLast30Days = "30d"
)

type SortBy string

const (
	SortNone     SortBy = ""
	SortViews    SortBy = "views"
	SortComments SortBy = "comments"
)

var ErrInvalidFilter = errors.New("invalid filter")

// Filter is evaluated in memory against the full article snapshot.
// Date is "", "7d", "30d" or a single calendar day as YYYY-MM-DD (UTC+7).
type Filter struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Author   string `json:"author"`
	Date     string `json:"date"`
	Sort     SortBy `json:"sort"`
}

func (f Filter) Validate() error {
	switch f.Date {
	case DateAny, DateLast7Days, DateLast30Days:
	default:
		if _, err := time.ParseInLocation(time.DateOnly, f.Date, Jakarta); err != nil {
			return fmt.Errorf("%w: date %q", ErrInvalidFilter, f.Date)
		}
	}
	switch f.Sort {
	case SortNone, SortViews, SortComments:
	default:
		return fmt.Errorf("%w: sort %q", ErrInvalidFilter, f.Sort)
	}
	return nil
}

// ArticleRow is an article as the dashboard lists it, with its comment count joined in.
type ArticleRow struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Category     string    `json:"category"`
	AuthorName   string    `json:"authorName"`
	Views        int64     `json:"views"`
	CommentCount int64     `json:"commentCount"`
	CreatedAt    time.Time `json:"createdAt"`
	created      Timestamp
}

func rowFromDocument(doc store.Document) ArticleRow {
	ts := ParseTimestamp(doc["createdAt"])
	return ArticleRow{
		ID:           store.ID(doc),
		Title:        store.String(doc, "title"),
		Slug:         store.String(doc, "slug"),
		Category:     store.String(doc, "category"),
		AuthorName:   store.String(doc, "authorName"),
		Views:        store.Int(doc, "views"),
		CommentCount: store.Int(doc, "commentCount"),
		CreatedAt:    ts.Time,
		created:      ts,
	}
}

// Apply runs title, category, author and date predicates in that order, then sorts.
// The input order is kept for ties and when no sort is requested.
func Apply(rows []ArticleRow, f Filter, now time.Time) []ArticleRow {
	title := strings.ToLower(strings.TrimSpace(f.Title))
	author := strings.ToLower(strings.TrimSpace(f.Author))
	inDate := datePredicate(f.Date, now)

	out := lo.Filter(rows, func(r ArticleRow, _ int) bool {
		if title != "" && !strings.Contains(strings.ToLower(r.Title), title) {
			return false
		}
		if f.Category != "" && r.Category != f.Category {
			return false
		}
		if author != "" && !strings.Contains(strings.ToLower(r.AuthorName), author) {
			return false
		}
		return inDate(r)
	})

	switch f.Sort {
	case SortViews:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Views > out[j].Views })
	case SortComments:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CommentCount > out[j].CommentCount })
	}
	return out
}

func datePredicate(date string, now time.Time) func(ArticleRow) bool {
	within := func(from time.Time) func(ArticleRow) bool {
		return func(r ArticleRow) bool {
			return r.created.OK() && !r.created.Time.Before(from)
		}
	}

	switch date {
	case DateAny:
		return func(ArticleRow) bool { return true }
	case DateLast7Days:
		return within(now.AddDate(0, 0, -7))
	case DateLast30Days:
		return within(now.AddDate(0, 0, -30))
	}

	day, err := time.ParseInLocation(time.DateOnly, date, Jakarta)
	if err != nil {
		return func(ArticleRow) bool { return false }
	}
	next := day.AddDate(0, 0, 1)
	return func(r ArticleRow) bool {
		return r.created.OK() && !r.created.Time.Before(day) && r.created.Time.Before(next)
	}
}
