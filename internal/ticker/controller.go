// Package ticker manages the breaking-news items and the composite string the site scrolls.
//
// Saving or switching on an emergency item deactivates every other active non-emergency
// item in the same batch. Switching an emergency item off does not bring anything back.
package ticker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"neswara/internal/activity"
	"neswara/internal/metrics"
	"neswara/internal/store"
)

type Controller struct {
	store    store.Client
	activity activity.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewController(s store.Client, rec activity.Recorder, logger zerolog.Logger) *Controller {
	if rec == nil {
		rec = activity.Nop{}
	}
	return &Controller{
		store:    s,
		activity: rec,
		logger:   logger.With().Str("component", "ticker").Logger(),
		now:      time.Now,
	}
}

// List returns every item ordered by priority.
func (c *Controller) List(ctx context.Context) ([]Item, error) {
	docs, err := c.store.Find(ctx, store.Query{Collection: store.BreakingNews, OrderBy: "priority"})
	if err != nil {
		return nil, fmt.Errorf("list ticker items: %w", err)
	}
	items, err := store.DecodeAll[Item](docs)
	if err != nil {
		return nil, fmt.Errorf("decode ticker items: %w", err)
	}
	sortByPriority(items)
	return items, nil
}

func (c *Controller) Display(ctx context.Context) (Display, error) {
	items, err := c.List(ctx)
	if err != nil {
		return Display{}, err
	}
	return Compose(items), nil
}

func (c *Controller) get(ctx context.Context, id string) (*Item, error) {
	doc, err := c.store.GetOnce(ctx, store.BreakingNews, id)
	if err != nil {
		return nil, fmt.Errorf("get ticker item %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	var it Item
	if err := store.Decode(doc, &it); err != nil {
		return nil, fmt.Errorf("decode ticker item %s: %w", id, err)
	}
	return &it, nil
}

func (c *Controller) Create(ctx context.Context, actorID string, in Input) (*Item, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	if in.Priority <= 0 {
		in.Priority = nextPriority(items)
	}

	now := c.now().UTC()
	it := Item{
		ID:        store.NewID(),
		Text:      in.Text,
		Active:    in.Active,
		Priority:  in.Priority,
		Speed:     in.Speed,
		Emergency: in.Emergency,
		Animation: in.Animation,
		CreatedAt: now,
		UpdatedAt: now,
	}

	op := store.Create(store.BreakingNews, it.ID, itemFields(it))
	if err := c.commit(ctx, actorID, it, op, items); err != nil {
		return nil, err
	}

	c.activity.Log(ctx, actorID, activity.ActionCreateBreaking, map[string]any{
		"itemId":    it.ID,
		"text":      it.Text,
		"emergency": it.Emergency,
	})
	return &it, nil
}

// Update replaces an item's settings. A missing item is a no-op and returns nil.
func (c *Controller) Update(ctx context.Context, actorID, id string, in Input) (*Item, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	it, err := c.get(ctx, id)
	if err != nil || it == nil {
		return nil, err
	}

	it.Text = in.Text
	it.Active = in.Active
	it.Speed = in.Speed
	it.Emergency = in.Emergency
	it.Animation = in.Animation
	if in.Priority > 0 {
		it.Priority = in.Priority
	}
	it.UpdatedAt = c.now().UTC()

	if err := c.save(ctx, actorID, *it); err != nil {
		return nil, err
	}

	c.activity.Log(ctx, actorID, activity.ActionEditBreaking, map[string]any{
		"itemId":    it.ID,
		"text":      it.Text,
		"emergency": it.Emergency,
	})
	return it, nil
}

// SetActive switches an item on or off. A missing item is a no-op and returns nil.
func (c *Controller) SetActive(ctx context.Context, actorID, id string, active bool) (*Item, error) {
	it, err := c.get(ctx, id)
	if err != nil || it == nil {
		return nil, err
	}

	it.Active = active
	it.UpdatedAt = c.now().UTC()

	if err := c.save(ctx, actorID, *it); err != nil {
		return nil, err
	}

	c.activity.Log(ctx, actorID, activity.ActionToggleBreaking, map[string]any{
		"itemId": it.ID,
		"active": active,
	})
	return it, nil
}

// Delete removes one item. Other priorities are left as they are.
func (c *Controller) Delete(ctx context.Context, actorID, id string) error {
	it, err := c.get(ctx, id)
	if err != nil || it == nil {
		return err
	}
	if err := c.store.WriteBatch(ctx, []store.Op{store.Delete(store.BreakingNews, id)}); err != nil {
		return fmt.Errorf("delete ticker item %s: %w", id, err)
	}

	c.activity.Log(ctx, actorID, activity.ActionDeleteBreaking, map[string]any{
		"itemId": id,
		"text":   it.Text,
	})
	return nil
}

func (c *Controller) save(ctx context.Context, actorID string, it Item) error {
	fields := itemFields(it)
	delete(fields, "createdAt")
	op := store.Update(store.BreakingNews, it.ID, fields)

	var siblings []Item
	if it.Active && it.Emergency {
		var err error
		if siblings, err = c.List(ctx); err != nil {
			return err
		}
	}
	return c.commit(ctx, actorID, it, op, siblings)
}

// commit writes the item. When it is an active emergency item every other active
// non-emergency sibling is switched off in the same batch.
func (c *Controller) commit(ctx context.Context, actorID string, it Item, op store.Op, siblings []Item) error {
	ops := []store.Op{op}

	var deactivated []string
	if it.Active && it.Emergency {
		now := c.now().UTC()
		for _, s := range siblings {
			if s.ID == it.ID || !s.Active || s.Emergency {
				continue
			}
			ops = append(ops, store.Update(store.BreakingNews, s.ID, store.Document{
				"active":    false,
				"updatedAt": now,
			}))
			deactivated = append(deactivated, s.ID)
		}
	}

	if err := c.store.WriteBatch(ctx, ops); err != nil {
		return fmt.Errorf("save ticker item %s: %w", it.ID, err)
	}

	if it.Active && it.Emergency {
		metrics.EmergencyActivations.Inc()
		c.logger.Info().Str("item", it.ID).Strs("deactivated", deactivated).Msg("emergency ticker item activated")
		c.activity.Log(ctx, actorID, activity.ActionEmergency, map[string]any{
			"itemId":      it.ID,
			"deactivated": deactivated,
		})
	}
	return nil
}

func nextPriority(items []Item) int {
	if len(items) == 0 {
		return 1
	}
	return lo.MaxBy(items, func(a, b Item) bool { return a.Priority > b.Priority }).Priority + 1
}

func itemFields(it Item) store.Document {
	return store.Document{
		"text":      it.Text,
		"active":    it.Active,
		"priority":  it.Priority,
		"speed":     it.Speed,
		"emergency": it.Emergency,
		"animation": string(it.Animation),
		"createdAt": it.CreatedAt,
		"updatedAt": it.UpdatedAt,
	}
}
