package article

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"neswara/internal/activity"
	"neswara/internal/store"
)

var (
	ErrCommentNotFound = errors.New("comment not found")
	ErrInvalidParent   = errors.New("parent comment does not belong to this article")
)

func (r *Repository) AddComment(ctx context.Context, articleID string, in CommentInput) (*Comment, error) {
	in.Text = strings.TrimSpace(in.Text)
	if err := validate.Struct(in); err != nil {
		return nil, invalid(err)
	}

	if _, err := r.Get(ctx, articleID); err != nil {
		return nil, err
	}

	if in.ParentID != "" {
		parent, err := r.getComment(ctx, in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.ArticleID != articleID {
			return nil, ErrInvalidParent
		}
	}

	now := r.now().UTC()
	c := &Comment{
		ID:        store.NewID(),
		ArticleID: articleID,
		Text:      in.Text,
		UserID:    in.UserID,
		UserName:  in.UserName,
		ParentID:  in.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	fields := store.Document{
		"articleId": c.ArticleID,
		"text":      c.Text,
		"userId":    c.UserID,
		"userName":  c.UserName,
		"edited":    false,
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
	}
	if c.ParentID != "" {
		fields["parentId"] = c.ParentID
	}

	if err := r.store.WriteBatch(ctx, []store.Op{store.Create(store.Comments, c.ID, fields)}); err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	if err := r.recountComments(ctx, articleID); err != nil {
		r.logger.Warn().Err(err).Str("article", articleID).Msg("failed to recount comments")
	}

	r.activity.Log(ctx, in.UserID, activity.ActionAddComment, map[string]any{
		"newsId":    articleID,
		"commentId": c.ID,
	})
	return c, nil
}

// EditComment replaces the text. The text before the first edit is kept in OriginalText.
func (r *Repository) EditComment(ctx context.Context, actorID string, isAdmin bool, id, text string) (*Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid(errors.New("text is required"))
	}

	c, err := r.getComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != actorID && !isAdmin {
		return nil, ErrPermissionDenied
	}

	now := r.now().UTC()
	fields := store.Document{
		"text":      text,
		"edited":    true,
		"updatedAt": now,
	}
	if !c.Edited {
		fields["originalText"] = c.Text
		c.OriginalText = c.Text
	}

	if err := r.store.WriteBatch(ctx, []store.Op{store.Update(store.Comments, id, fields)}); err != nil {
		return nil, fmt.Errorf("edit comment %s: %w", id, err)
	}

	c.Text = text
	c.Edited = true
	c.UpdatedAt = now
	r.activity.Log(ctx, actorID, activity.ActionEditComment, map[string]any{
		"newsId":    c.ArticleID,
		"commentId": id,
	})
	return c, nil
}

// DeleteComment removes one comment; replies to it stay. A missing comment is a no-op.
func (r *Repository) DeleteComment(ctx context.Context, actorID string, isAdmin bool, id string) error {
	c, err := r.getComment(ctx, id)
	if errors.Is(err, ErrCommentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if c.UserID != actorID && !isAdmin {
		return ErrPermissionDenied
	}

	if err := r.store.WriteBatch(ctx, []store.Op{store.Delete(store.Comments, id)}); err != nil {
		return fmt.Errorf("delete comment %s: %w", id, err)
	}
	if err := r.recountComments(ctx, c.ArticleID); err != nil {
		r.logger.Warn().Err(err).Str("article", c.ArticleID).Msg("failed to recount comments")
	}

	r.activity.Log(ctx, actorID, activity.ActionDeleteComment, map[string]any{
		"newsId":    c.ArticleID,
		"commentId": id,
	})
	return nil
}

func (r *Repository) ListComments(ctx context.Context, articleID string) ([]Comment, error) {
	docs, err := r.store.Find(ctx, store.Query{
		Collection: store.Comments,
		Where:      map[string]any{"articleId": articleID},
		OrderBy:    "createdAt",
	})
	if err != nil {
		return nil, err
	}
	return store.DecodeAll[Comment](docs)
}

func (r *Repository) getComment(ctx context.Context, id string) (*Comment, error) {
	doc, err := r.store.GetOnce(ctx, store.Comments, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrCommentNotFound
	}
	var c Comment
	if err := store.Decode(doc, &c); err != nil {
		return nil, fmt.Errorf("decode comment %s: %w", id, err)
	}
	return &c, nil
}

// recountComments stores the live count on the article so public pages need no join.
func (r *Repository) recountComments(ctx context.Context, articleID string) error {
	n, err := r.store.Count(ctx, store.Query{
		Collection: store.Comments,
		Where:      map[string]any{"articleId": articleID},
	})
	if err != nil {
		return err
	}
	return r.store.WriteBatch(ctx, []store.Op{store.Update(store.News, articleID, store.Document{"commentCount": n})})
}
