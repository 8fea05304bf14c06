package article

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"neswara/internal/activity"
	"neswara/internal/slug"
	"neswara/internal/store"
)

const (
	fallbackSlug    = "berita"
	maxSlugAttempts = 1000
	maxSlugRetry    = 3
)

var (
	ErrNotFound         = errors.New("article not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSlugConflict     = errors.New("slug already in use")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Repository owns articles and the records hanging off them (comments, views, bookmarks).
// Edits are last-write-wins: there is no version check between concurrent admins.
type Repository struct {
	store    store.Client
	activity activity.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewRepository(s store.Client, rec activity.Recorder, logger zerolog.Logger) *Repository {
	if rec == nil {
		rec = activity.Nop{}
	}
	return &Repository{
		store:    s,
		activity: rec,
		logger:   logger.With().Str("component", "article").Logger(),
		now:      time.Now,
	}
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// UniqueSlugFor returns the first of base, base-1, base-2, ... that no article other
// than excludeID holds.
func (r *Repository) UniqueSlugFor(ctx context.Context, title, excludeID string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = fallbackSlug
	}
	return r.firstFreeSlug(ctx, base, excludeID)
}

func (r *Repository) firstFreeSlug(ctx context.Context, base, excludeID string) (string, error) {
	for n := 0; n < maxSlugAttempts; n++ {
		candidate := slug.WithSuffix(base, n)

		docs, err := r.store.Find(ctx, store.Query{
			Collection: store.News,
			Where:      map[string]any{"slug": candidate},
		})
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}

		taken := false
		for _, d := range docs {
			if store.ID(d) != excludeID {
				taken = true
				break
			}
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts", base, maxSlugAttempts)
}

func (r *Repository) slugFor(ctx context.Context, in Input, excludeID string) (string, error) {
	if in.Slug == "" {
		return r.UniqueSlugFor(ctx, in.Title, excludeID)
	}
	if err := slug.Validate(in.Slug); err != nil {
		return "", invalid(err)
	}
	return r.firstFreeSlug(ctx, in.Slug, excludeID)
}

// nextSlug keeps the current slug unless the title changed or a different slug was asked for.
func (r *Repository) nextSlug(ctx context.Context, in Input, existing *Article) (string, error) {
	switch {
	case in.Slug != "" && in.Slug != existing.Slug:
		return r.slugFor(ctx, in, existing.ID)
	case in.Slug == "" && in.Title != existing.Title:
		return r.UniqueSlugFor(ctx, in.Title, existing.ID)
	}
	return existing.Slug, nil
}

func normalize(in Input) Input {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.AuthorName = strings.TrimSpace(in.AuthorName)
	in.Slug = strings.TrimSpace(in.Slug)
	return in
}

func (r *Repository) Create(ctx context.Context, authorID string, in Input) (*Article, error) {
	in = normalize(in)
	if err := validate.Struct(in); err != nil {
		return nil, invalid(err)
	}

	now := r.now().UTC()
	a := &Article{
		ID:           store.NewID(),
		Title:        in.Title,
		Content:      in.Content,
		Summary:      in.Summary,
		Category:     in.Category,
		AuthorName:   in.AuthorName,
		AuthorID:     authorID,
		ImageURL:     in.ImageURL,
		ImageCaption: in.ImageCaption,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// the unique index on slug rejects a racing insert; pick the next free slug and retry
	var err error
	for attempt := 0; attempt < maxSlugRetry; attempt++ {
		if a.Slug, err = r.slugFor(ctx, in, ""); err != nil {
			return nil, err
		}
		err = r.store.WriteBatch(ctx, []store.Op{store.Create(store.News, a.ID, articleFields(a))})
		if !errors.Is(err, store.ErrDuplicateID) {
			break
		}
		r.logger.Warn().Str("slug", a.Slug).Msg("slug taken concurrently, retrying")
	}
	if errors.Is(err, store.ErrDuplicateID) {
		return nil, fmt.Errorf("create article: %w", ErrSlugConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("create article: %w", err)
	}

	r.logger.Info().Str("id", a.ID).Str("slug", a.Slug).Msg("article created")
	r.activity.Log(ctx, authorID, activity.ActionCreateNews, map[string]any{
		"newsId": a.ID,
		"title":  a.Title,
		"slug":   a.Slug,
	})
	return a, nil
}

// Update rewrites the editable fields. The slug is regenerated only when the title
// changes or an explicit slug is given. A missing article yields (nil, nil).
func (r *Repository) Update(ctx context.Context, editorID, id string, in Input) (*Article, error) {
	in = normalize(in)
	if err := validate.Struct(in); err != nil {
		return nil, invalid(err)
	}

	existing, err := r.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Title = in.Title
	updated.Content = in.Content
	updated.Summary = in.Summary
	updated.Category = in.Category
	updated.AuthorName = in.AuthorName
	updated.ImageURL = in.ImageURL
	updated.ImageCaption = in.ImageCaption
	updated.UpdatedAt = r.now().UTC()

	// same race as Create: another writer can take the new slug between the check and the write
	for attempt := 0; attempt < maxSlugRetry; attempt++ {
		if updated.Slug, err = r.nextSlug(ctx, in, existing); err != nil {
			return nil, err
		}
		err = r.store.WriteBatch(ctx, []store.Op{store.Update(store.News, id, store.Document{
			"title":        updated.Title,
			"content":      updated.Content,
			"summary":      updated.Summary,
			"category":     updated.Category,
			"authorName":   updated.AuthorName,
			"imageUrl":     updated.ImageURL,
			"imageCaption": updated.ImageCaption,
			"slug":         updated.Slug,
			"updatedAt":    updated.UpdatedAt,
		})})
		if !errors.Is(err, store.ErrDuplicateID) || updated.Slug == existing.Slug {
			break
		}
		r.logger.Warn().Str("slug", updated.Slug).Msg("slug taken concurrently, retrying")
	}
	if errors.Is(err, store.ErrDuplicateID) {
		return nil, fmt.Errorf("update article %s: %w", id, ErrSlugConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("update article %s: %w", id, err)
	}

	r.activity.Log(ctx, editorID, activity.ActionEditNews, map[string]any{
		"newsId":      id,
		"title":       updated.Title,
		"slugChanged": updated.Slug != existing.Slug,
	})
	return &updated, nil
}

// Delete removes the article with its comments and every bookmark pointing at it, in one batch.
// Deleting a missing article succeeds without writing.
func (r *Repository) Delete(ctx context.Context, actorID, id string) error {
	existing, err := r.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	bookmarks, err := r.store.Count(ctx, store.Query{Collection: store.SavedArticles, Where: map[string]any{"articleId": id}})
	if err != nil {
		return fmt.Errorf("count bookmarks of %s: %w", id, err)
	}

	err = r.store.WriteBatch(ctx, []store.Op{
		store.Delete(store.News, id),
		store.DeleteWhere(store.Comments, map[string]any{"articleId": id}),
		store.DeleteWhere(store.SavedArticles, map[string]any{"articleId": id}),
	})
	if err != nil {
		return fmt.Errorf("delete article %s: %w", id, err)
	}

	r.logger.Info().Str("id", id).Int64("bookmarks", bookmarks).Msg("article deleted")
	r.activity.Log(ctx, actorID, activity.ActionDeleteNews, map[string]any{
		"newsId":           id,
		"title":            existing.Title,
		"removedBookmarks": bookmarks,
	})
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Article, error) {
	doc, err := r.store.GetOnce(ctx, store.News, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	var a Article
	if err := store.Decode(doc, &a); err != nil {
		return nil, fmt.Errorf("decode article %s: %w", id, err)
	}
	return &a, nil
}

func (r *Repository) GetBySlug(ctx context.Context, s string) (*Article, error) {
	docs, err := r.store.Find(ctx, store.Query{
		Collection: store.News,
		Where:      map[string]any{"slug": s},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	var a Article
	if err := store.Decode(docs[0], &a); err != nil {
		return nil, fmt.Errorf("decode article %q: %w", s, err)
	}
	return &a, nil
}

// List returns the newest articles, optionally restricted to one category.
func (r *Repository) List(ctx context.Context, category string, limit int) ([]Article, error) {
	q := store.Query{Collection: store.News, OrderBy: "createdAt", Desc: true, Limit: limit}
	if category != "" {
		q.Where = map[string]any{"category": category}
	}
	docs, err := r.store.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	return store.DecodeAll[Article](docs)
}

func articleFields(a *Article) store.Document {
	return store.Document{
		"title":        a.Title,
		"content":      a.Content,
		"summary":      a.Summary,
		"category":     a.Category,
		"authorName":   a.AuthorName,
		"authorId":     a.AuthorID,
		"imageUrl":     a.ImageURL,
		"imageCaption": a.ImageCaption,
		"slug":         a.Slug,
		"views":        a.Views,
		"commentCount": a.CommentCount,
		"createdAt":    a.CreatedAt,
		"updatedAt":    a.UpdatedAt,
	}
}
