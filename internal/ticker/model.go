package ticker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Animation string

const (
	AnimationMarquee Animation = "marquee"
	AnimationFadeIn  Animation = "fade-in"
)

// Speed is the number of seconds one pass of the ticker takes.
const (
	MinSpeed     = 5
	MaxSpeed     = 30
	DefaultSpeed = 15
)

// Delimiter separates items in the composite ticker text.
const Delimiter = "   •   "

var (
	ErrEmptyText        = errors.New("ticker text is empty")
	ErrInvalidAnimation = errors.New("unknown animation")
	ErrSpeedOutOfRange  = errors.New("speed out of range")
)

// SpeedError is returned when a speed outside [MinSpeed, MaxSpeed] is submitted
// without confirmation. Suggested is the value a confirmed save would store.
type SpeedError struct {
	Speed     int
	Suggested int
}

func (e *SpeedError) Error() string {
	return fmt.Sprintf("speed %ds is outside %d-%ds, confirm to save as %ds", e.Speed, MinSpeed, MaxSpeed, e.Suggested)
}

func (e *SpeedError) Is(target error) bool {
	return target == ErrSpeedOutOfRange
}

type Item struct {
	ID        string    `bson:"_id" json:"id"`
	Text      string    `bson:"text" json:"text"`
	Active    bool      `bson:"active" json:"active"`
	Priority  int       `bson:"priority" json:"priority"`
	Speed     int       `bson:"speed" json:"speed"`
	Emergency bool      `bson:"emergency" json:"emergency"`
	Animation Animation `bson:"animation" json:"animation"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Input is a create or edit request. A zero Priority on create takes the next free slot
// and on edit keeps the current one.
type Input struct {
	Text         string    `json:"text"`
	Active       bool      `json:"active"`
	Priority     int       `json:"priority"`
	Speed        int       `json:"speed"`
	Emergency    bool      `json:"emergency"`
	Animation    Animation `json:"animation"`
	ConfirmClamp bool      `json:"confirmClamp"`
}

func clamp(speed int) int {
	return max(MinSpeed, min(MaxSpeed, speed))
}

// checkSpeed applies the default for an unset speed and enforces the bounds.
func checkSpeed(speed int, confirmed bool) (int, error) {
	if speed == 0 {
		return DefaultSpeed, nil
	}
	if speed >= MinSpeed && speed <= MaxSpeed {
		return speed, nil
	}
	if !confirmed {
		return 0, &SpeedError{Speed: speed, Suggested: clamp(speed)}
	}
	return clamp(speed), nil
}

func checkAnimation(a Animation) (Animation, error) {
	switch a {
	case "":
		return AnimationMarquee, nil
	case AnimationMarquee, AnimationFadeIn:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAnimation, a)
	}
}

// normalize validates an input before anything is written.
func normalize(in Input) (Input, error) {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		return in, ErrEmptyText
	}
	speed, err := checkSpeed(in.Speed, in.ConfirmClamp)
	if err != nil {
		return in, err
	}
	in.Speed = speed
	if in.Animation, err = checkAnimation(in.Animation); err != nil {
		return in, err
	}
	return in, nil
}

// Display is what the public site scrolls.
type Display struct {
	Text      string    `json:"text"`
	Speed     int       `json:"speed"`
	Animation Animation `json:"animation"`
	Items     []Item    `json:"items"`
}

// Compose joins active items by ascending priority. The first item's speed and
// animation govern the whole ticker.
func Compose(items []Item) Display {
	active := lo.Filter(items, func(it Item, _ int) bool { return it.Active })
	sortByPriority(active)

	if len(active) == 0 {
		return Display{Speed: DefaultSpeed, Animation: AnimationMarquee, Items: active}
	}

	lead := active[0]
	anim := lead.Animation
	if anim == "" {
		anim = AnimationMarquee
	}
	speed := lead.Speed
	if speed == 0 {
		speed = DefaultSpeed
	}

	return Display{
		Text:      strings.Join(lo.Map(active, func(it Item, _ int) string { return it.Text }), Delimiter),
		Speed:     speed,
		Animation: anim,
		Items:     active,
	}
}

func sortByPriority(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority < items[j].Priority
	})
}
