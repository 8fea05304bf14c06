// Package user keeps profile documents in step with the identity provider.
// The isAdmin flag in the users collection is the authority for admin access.
package user

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
	ErrNotFound         = errors.New("user not found")
	ErrInvalidProfile   = errors.New("invalid profile")
	ErrPermissionDenied = errors.New("permission denied")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type User struct {
	ID          string    `bson:"_id" json:"id"`
	DisplayName string    `bson:"displayName" json:"displayName"`
	Email       string    `bson:"email" json:"email"`
	PhotoURL    string    `bson:"photoURL" json:"photoURL"`
	IsAdmin     bool      `bson:"isAdmin" json:"isAdmin"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Profile is what the identity provider reports after sign-in.
type Profile struct {
	ID          string `json:"id" validate:"required,max=128"`
	DisplayName string `json:"displayName" validate:"max=100"`
	Email       string `json:"email" validate:"omitempty,email"`
	PhotoURL    string `json:"photoURL" validate:"omitempty,url"`
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
		logger:   logger.With().Str("component", "user").Logger(),
		now:      time.Now,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	doc, err := s.store.GetOnce(ctx, store.Users, id)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	var u User
	if err := store.Decode(doc, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &u, nil
}

// IsAdmin reports false for unknown users.
func (s *Service) IsAdmin(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	u, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}

// SyncProfile creates the user on first sign-in and refreshes the profile fields
// afterwards. isAdmin is only ever written on insert, as false.
func (s *Service) SyncProfile(ctx context.Context, p Profile) (*User, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.Email = strings.TrimSpace(p.Email)
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	existing, err := s.Get(ctx, p.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	fields := store.Document{
		"displayName": p.DisplayName,
		"email":       p.Email,
		"photoURL":    p.PhotoURL,
		"updatedAt":   now,
	}

	var op store.Op
	u := User{ID: p.ID, DisplayName: p.DisplayName, Email: p.Email, PhotoURL: p.PhotoURL, UpdatedAt: now}
	if existing == nil {
		fields["isAdmin"] = false
		fields["createdAt"] = now
		u.CreatedAt = now
		op = store.Create(store.Users, p.ID, fields)
	} else {
		u.IsAdmin = existing.IsAdmin
		u.CreatedAt = existing.CreatedAt
		op = store.Update(store.Users, p.ID, fields)
	}

	if err := s.store.WriteBatch(ctx, []store.Op{op}); err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			// a concurrent first sign-in won; fall back to a plain refresh
			delete(fields, "isAdmin")
			delete(fields, "createdAt")
			if err := s.store.WriteBatch(ctx, []store.Op{store.Update(store.Users, p.ID, fields)}); err != nil {
				return nil, fmt.Errorf("sync user %s: %w", p.ID, err)
			}
			return s.Get(ctx, p.ID)
		}
		return nil, fmt.Errorf("sync user %s: %w", p.ID, err)
	}

	s.activity.Log(ctx, p.ID, activity.ActionSyncProfile, map[string]any{"created": existing == nil})
	return &u, nil
}

// SetAdmin grants or revokes admin rights. Only an admin may call it.
func (s *Service) SetAdmin(ctx context.Context, actorID, targetID string, admin bool) (*User, error) {
	ok, err := s.IsAdmin(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPermissionDenied
	}

	target, err := s.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}

	target.IsAdmin = admin
	target.UpdatedAt = s.now().UTC()
	if err := s.store.WriteBatch(ctx, []store.Op{store.Update(store.Users, targetID, store.Document{
		"isAdmin":   admin,
		"updatedAt": target.UpdatedAt,
	})}); err != nil {
		return nil, fmt.Errorf("set admin on %s: %w", targetID, err)
	}

	action := activity.ActionRevokeAdmin
	if admin {
		action = activity.ActionGrantAdmin
	}
	s.activity.Log(ctx, actorID, action, map[string]any{"targetUserId": targetID})
	s.logger.Info().Str("actor", actorID).Str("target", targetID).Bool("admin", admin).Msg("admin flag changed")
	return target, nil
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	docs, err := s.store.Find(ctx, store.Query{Collection: store.Users, OrderBy: "createdAt", Desc: true})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return store.DecodeAll[User](docs)
}
