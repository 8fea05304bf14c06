package article

import (
	"context"
	"errors"
	"fmt"

	"neswara/internal/store"
)

// RecordView bumps the article counter and appends a view record in the same batch.
func (r *Repository) RecordView(ctx context.Context, articleID, viewerID string) error {
	fields := store.Document{
		"articleId": articleID,
		"count":     int64(1),
		"timestamp": r.now().UTC(),
	}
	if viewerID != "" {
		fields["userId"] = viewerID
	}

	err := r.store.WriteBatch(ctx, []store.Op{
		store.Increment(store.News, articleID, "views", 1),
		store.Create(store.Views, store.NewID(), fields),
	})
	if err != nil {
		return fmt.Errorf("record view of %s: %w", articleID, err)
	}
	return nil
}

// Open resolves a public article URL and counts the visit. A failed view write is
// logged but does not hide the article.
func (r *Repository) Open(ctx context.Context, s, viewerID string) (*Article, error) {
	a, err := r.GetBySlug(ctx, s)
	if err != nil {
		return nil, err
	}
	if err := r.RecordView(ctx, a.ID, viewerID); err != nil {
		r.logger.Warn().Err(err).Str("slug", s).Msg("failed to record view")
		return a, nil
	}
	a.Views++
	return a, nil
}

func bookmarkID(userID, articleID string) string {
	return userID + "_" + articleID
}

// SaveBookmark is idempotent per user and article.
func (r *Repository) SaveBookmark(ctx context.Context, userID, articleID string) error {
	if userID == "" {
		return ErrPermissionDenied
	}
	if _, err := r.Get(ctx, articleID); err != nil {
		return err
	}

	err := r.store.WriteBatch(ctx, []store.Op{store.Create(store.SavedArticles, bookmarkID(userID, articleID), store.Document{
		"userId":    userID,
		"articleId": articleID,
		"savedAt":   r.now().UTC(),
	})})
	if errors.Is(err, store.ErrDuplicateID) {
		return nil
	}
	return err
}

func (r *Repository) RemoveBookmark(ctx context.Context, userID, articleID string) error {
	return r.store.WriteBatch(ctx, []store.Op{store.Delete(store.SavedArticles, bookmarkID(userID, articleID))})
}

func (r *Repository) ListBookmarks(ctx context.Context, userID string) ([]SavedArticle, error) {
	docs, err := r.store.Find(ctx, store.Query{
		Collection: store.SavedArticles,
		Where:      map[string]any{"userId": userID},
		OrderBy:    "savedAt",
		Desc:       true,
	})
	if err != nil {
		return nil, err
	}
	return store.DecodeAll[SavedArticle](docs)
}
