package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"neswara/internal/activity"
	"neswara/internal/store"
)

var (
	ErrInvalidInput = errors.New("invalid notification")
	ErrInvalidImage = errors.New("image must be an https URL or a data:image URI")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Notification struct {
	ID        string    `bson:"_id" json:"id"`
	Title     string    `bson:"title" json:"title"`
	Message   string    `bson:"message" json:"message"`
	Image     string    `bson:"image,omitempty" json:"image,omitempty"`
	Type      string    `bson:"type" json:"type"`
	ArticleID string    `bson:"articleId,omitempty" json:"articleId,omitempty"`
	Read      bool      `bson:"read" json:"read"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

type Input struct {
	Title     string `json:"title" validate:"required,max=150"`
	Message   string `json:"message" validate:"required,max=1000"`
	Image     string `json:"image"`
	Type      string `json:"type" validate:"omitempty,oneof=info breaking article promo"`
	ArticleID string `json:"articleId"`
}

// inline images are a fallback when the image host is unavailable
const maxInlineImage = 512 << 10

func checkImage(img string) error {
	switch {
	case img == "":
		return nil
	case strings.HasPrefix(img, "https://"):
		return validate.Var(img, "url")
	case strings.HasPrefix(img, "data:image/") && strings.Contains(img, ";base64,"):
		if len(img) > maxInlineImage {
			return fmt.Errorf("inline image is %d bytes, limit %d", len(img), maxInlineImage)
		}
		return nil
	}
	return ErrInvalidImage
}

type Service struct {
	store    store.Client
	activity activity.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(s store.Client, rec activity.Recorder, logger zerolog.Logger) *Service {
	if rec == nil {
		rec = activity.Nop{}
	}
	return &Service{
		store:    s,
		activity: rec,
		logger:   logger.With().Str("component", "notification").Logger(),
		now:      time.Now,
	}
}

func (s *Service) Create(ctx context.Context, actorID string, in Input) (*Notification, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := checkImage(in.Image); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.Type == "" {
		in.Type = "info"
	}

	n := &Notification{
		ID:        store.NewID(),
		Title:     in.Title,
		Message:   in.Message,
		Image:     in.Image,
		Type:      in.Type,
		ArticleID: in.ArticleID,
		CreatedAt: s.now().UTC(),
	}
	doc := store.Document{
		"title":     n.Title,
		"message":   n.Message,
		"type":      n.Type,
		"read":      false,
		"createdAt": n.CreatedAt,
	}
	if n.Image != "" {
		doc["image"] = n.Image
	}
	if n.ArticleID != "" {
		doc["articleId"] = n.ArticleID
	}

	if err := s.store.WriteBatch(ctx, []store.Op{store.Create(store.Notifications, n.ID, doc)}); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	s.activity.Log(ctx, actorID, activity.ActionCreateNotification, map[string]any{
		"notificationId": n.ID,
		"title":          n.Title,
	})
	return n, nil
}

// MarkRead is a no-op for missing notifications.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	if err := s.store.WriteBatch(ctx, []store.Op{store.Update(store.Notifications, id, store.Document{"read": true})}); err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	doc, err := s.store.GetOnce(ctx, store.Notifications, id)
	if err != nil {
		return fmt.Errorf("get notification %s: %w", id, err)
	}
	if doc == nil {
		return nil
	}
	if err := s.store.WriteBatch(ctx, []store.Op{store.Delete(store.Notifications, id)}); err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}

	s.activity.Log(ctx, actorID, activity.ActionDeleteNotification, map[string]any{
		"notificationId": id,
		"title":          store.String(doc, "title"),
	})
	return nil
}

// List returns the newest notifications first.
func (s *Service) List(ctx context.Context, limit int) ([]Notification, error) {
	docs, err := s.store.Find(ctx, store.Query{
		Collection: store.Notifications,
		OrderBy:    "createdAt",
		Desc:       true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return store.DecodeAll[Notification](docs)
}
