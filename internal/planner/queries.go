package planner

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/scheduler"
)

// FreeSlots describes the free time in a window.
type FreeSlots struct {
	Start            time.Time
	End              time.Time
	Slots            []scheduler.Gap
	Busy             []scheduler.NormalizedEvent
	TotalFreeMinutes int
	WakeTime         string
	SleepTime        string
}

// FindFreeSlots returns the gaps in [start, end) lasting at least minDuration.
// A start in the past is moved to now.
func (p *Planner) FindFreeSlots(ctx context.Context, userID int64, start, end time.Time, minDuration time.Duration) (*FreeSlots, error) {
	if !end.After(start) {
		return nil, ErrInvalidWindow
	}
	if minDuration < 0 {
		return nil, ErrInvalidDuration
	}
	user, err := p.profiles.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}

	start, end = p.clampWindow(start, end)
	out := &FreeSlots{Start: start, End: end}
	if !end.After(start) {
		return out, nil
	}

	tl, blockBusy, err := p.timeline(ctx, user, start, end)
	if err != nil {
		return nil, err
	}
	gaps, err := tl.FreeGaps(blockBusy...)
	if err != nil {
		return nil, fmt.Errorf("computing free gaps: %w", err)
	}

	out.Slots = scheduler.LongerThan(gaps, minDuration)
	for _, g := range out.Slots {
		out.TotalFreeMinutes += g.Minutes()
	}
	out.Busy = append(slices.Clone(tl.Events), blockBusy...)
	slices.SortStableFunc(out.Busy, func(a, b scheduler.NormalizedEvent) int { return a.Start.Compare(b.Start) })
	out.WakeTime = tl.Prefs.WakeTime
	out.SleepTime = tl.Prefs.SleepTime
	return out, nil
}

// Part of day names accepted by SuggestStudyTime.
const (
	PartMorning   = "morning"
	PartAfternoon = "afternoon"
	PartEvening   = "evening"
	PartAny       = "any"
)

// Suggestion is a candidate study slot.
type Suggestion struct {
	Start time.Time
	End   time.Time
	Score int
}

// maxSuggestions caps SuggestStudyTime results.
const maxSuggestions = 3

// SuggestStudyTime ranks gaps in [start, end) that fit duration. Gaps
// starting in the preferred part of day score highest; ties go to the
// earliest start. At most three suggestions are returned.
func (p *Planner) SuggestStudyTime(ctx context.Context, userID int64, start, end time.Time, duration time.Duration, preferred string) ([]Suggestion, error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	switch preferred {
	case "":
		preferred = PartAny
	case PartMorning, PartAfternoon, PartEvening, PartAny:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPartOfDay, preferred)
	}

	free, err := p.FindFreeSlots(ctx, userID, start, end, duration)
	if err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(free.Slots))
	for _, g := range free.Slots {
		suggestions = append(suggestions, Suggestion{
			Start: g.Start,
			End:   g.Start.Add(duration),
			Score: partOfDayScore(g.Start.In(p.cfg.Location).Hour(), preferred),
		})
	}
	slices.SortStableFunc(suggestions, func(a, b Suggestion) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return a.Start.Compare(b.Start)
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions, nil
}

func partOfDayScore(hour int, preferred string) int {
	switch {
	case preferred == PartAny:
		return 5
	case preferred == PartMorning && hour >= 6 && hour < 12,
		preferred == PartAfternoon && hour >= 12 && hour < 17,
		preferred == PartEvening && hour >= 17 && hour < 22:
		return 10
	default:
		return 0
	}
}

// Schedule returns the user's busy events for days dates starting at start's date.
func (p *Planner) Schedule(ctx context.Context, userID int64, start time.Time, days int) ([]scheduler.NormalizedEvent, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", ErrInvalidDuration)
	}
	user, err := p.profiles.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}

	from := dateutil.TruncateToDay(start.In(p.cfg.Location))
	events, err := p.agg.Aggregate(ctx, user, from, from.AddDate(0, 0, days))
	if err != nil {
		return nil, fmt.Errorf("aggregating events: %w", err)
	}
	return events, nil
}

// clampWindow moves a past start to now and converts both ends to the
// planner's location.
func (p *Planner) clampWindow(start, end time.Time) (time.Time, time.Time) {
	loc := p.cfg.Location
	start, end = start.In(loc), end.In(loc)
	if now := p.Now(); start.Before(now) {
		start = now
	}
	return start, end
}
