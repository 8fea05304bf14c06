// Package activity appends audit records to the logs collection.
//
// Writes are fire-and-forget: Log returns immediately and a failed write is only
// reported through the service log and a counter, never to the caller.
package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"neswara/internal/metrics"
	"neswara/internal/store"
)

type Action string

const (
	ActionCreateNews         Action = "create_news"
	ActionEditNews           Action = "edit_news"
	ActionDeleteNews         Action = "delete_news"
	ActionAddComment         Action = "add_comment"
	ActionEditComment        Action = "edit_comment"
	ActionDeleteComment      Action = "delete_comment"
	ActionCreateBreaking     Action = "create_breaking_news"
	ActionEditBreaking       Action = "edit_breaking_news"
	ActionToggleBreaking     Action = "toggle_breaking_news"
	ActionDeleteBreaking     Action = "delete_breaking_news"
	ActionEmergency          Action = "emergency_breaking_news"
	ActionCreateNotification Action = "create_notification"
	ActionDeleteNotification Action = "delete_notification"
	ActionGrantAdmin         Action = "grant_admin"
	ActionRevokeAdmin        Action = "revoke_admin"
	ActionSyncProfile        Action = "sync_profile"
	ActionClearLogs          Action = "clear_logs"
	ActionError              Action = "error"
)

type Entry struct {
	ID        string         `bson:"_id" json:"id"`
	UserID    string         `bson:"userId" json:"userId"`
	Action    Action         `bson:"action" json:"action"`
	Details   map[string]any `bson:"details,omitempty" json:"details,omitempty"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
}

// Recorder is what services depend on to leave an audit trail.
type Recorder interface {
	Log(ctx context.Context, userID string, action Action, details map[string]any)
}

type Logger struct {
	store   store.Client
	logger  zerolog.Logger
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewLogger(s store.Client, logger zerolog.Logger) *Logger {
	return &Logger{
		store:   s,
		logger:  logger.With().Str("component", "activity").Logger(),
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

func (l *Logger) Log(ctx context.Context, userID string, action Action, details map[string]any) {
	entry := Entry{
		ID:        store.NewID(),
		UserID:    userID,
		Action:    action,
		Details:   details,
		Timestamp: l.now().UTC(),
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		// the request may finish before the write does
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		doc := store.Document{
			"userId":    entry.UserID,
			"action":    string(entry.Action),
			"details":   entry.Details,
			"timestamp": entry.Timestamp,
		}
		if err := l.store.WriteBatch(writeCtx, []store.Op{store.Create(store.Logs, entry.ID, doc)}); err != nil {
			metrics.ActivityLogFailures.Inc()
			l.logger.Warn().Err(err).Str("action", string(action)).Str("user", userID).Msg("failed to write activity log")
		}
	}()
}

// Wait blocks until in-flight writes finish.
func (l *Logger) Wait() {
	l.wg.Wait()
}

func (l *Logger) List(ctx context.Context, limit int) ([]Entry, error) {
	docs, err := l.store.Find(ctx, store.Query{
		Collection: store.Logs,
		OrderBy:    "timestamp",
		Desc:       true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return store.DecodeAll[Entry](docs)
}

// Clear removes every audit record and returns how many there were.
// The clearing itself becomes the first record of the new trail.
func (l *Logger) Clear(ctx context.Context, userID string) (int64, error) {
	n, err := l.store.Count(ctx, store.Query{Collection: store.Logs})
	if err != nil {
		return 0, fmt.Errorf("count logs: %w", err)
	}
	if err := l.store.WriteBatch(ctx, []store.Op{store.DeleteWhere(store.Logs, nil)}); err != nil {
		return 0, fmt.Errorf("clear logs: %w", err)
	}

	l.Log(ctx, userID, ActionClearLogs, map[string]any{"deleted": n})
	return n, nil
}

// Nop discards every record.
type Nop struct{}

func (Nop) Log(context.Context, string, Action, map[string]any) {}
