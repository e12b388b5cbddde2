package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/javiermolinar/studyplanner/internal/calendar"
	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/profile"
)

// Store is the subset of profile.Repository the aggregator reads.
type Store interface {
	GetPreferences(ctx context.Context, userID int64) (*profile.Preferences, error)
	ListFixedSchedules(ctx context.Context, userID int64) ([]*profile.FixedSchedule, error)
	ListOverrides(ctx context.Context, userID int64, from, to time.Time) ([]*profile.DailyOverride, error)
}

// Aggregator builds a user's busy timeline.
type Aggregator struct {
	store     Store
	calendars calendar.Provider
	log       zerolog.Logger
}

// NewAggregator returns an Aggregator. A nil provider disables calendar reads.
func NewAggregator(store Store, calendars calendar.Provider, log zerolog.Logger) *Aggregator {
	if calendars == nil {
		calendars = calendar.Disabled{}
	}
	return &Aggregator{
		store:     store,
		calendars: calendars,
		log:       log.With().Str("component", "aggregator").Logger(),
	}
}

// Timeline is the busy picture of a user over [Start, End) together with the
// preferences and overrides it was derived from.
type Timeline struct {
	Start     time.Time
	End       time.Time
	Events    []NormalizedEvent
	Prefs     *profile.Preferences
	Overrides profile.Overrides
}

// FreeGaps computes the timeline's free gaps, treating extra as busy too.
func (t *Timeline) FreeGaps(extra ...NormalizedEvent) ([]Gap, error) {
	events := t.Events
	if len(extra) > 0 {
		events = append(slices.Clone(t.Events), extra...)
	}
	return FreeGapsWithOverrides(t.Start, t.End, events, t.Prefs, t.Overrides)
}

// Aggregate returns the user's busy intervals over [start, end) sorted by start.
func (a *Aggregator) Aggregate(ctx context.Context, user *profile.User, start, end time.Time) ([]NormalizedEvent, error) {
	tl, err := a.Timeline(ctx, user, start, end)
	if err != nil {
		return nil, err
	}
	return tl.Events, nil
}

// Timeline gathers external events, fixed schedule instances and derived
// commute and dinner blocks for [start, end). Dates are taken in start's
// location. Calendar failures are logged and yield no calendar events.
func (a *Aggregator) Timeline(ctx context.Context, user *profile.User, start, end time.Time) (*Timeline, error) {
	tl := &Timeline{Start: start, End: end}
	if !end.After(start) {
		return tl, nil
	}
	loc := start.Location()

	prefs, err := a.store.GetPreferences(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("getting preferences: %w", err)
	}
	tl.Prefs = prefs

	fixed, err := a.store.ListFixedSchedules(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("listing fixed schedules: %w", err)
	}

	firstDay := dateutil.TruncateToDay(start)
	lastDay := dateutil.TruncateToDay(end.Add(-time.Nanosecond).In(loc))
	overrides, err := a.store.ListOverrides(ctx, user.ID, firstDay, lastDay)
	if err != nil {
		return nil, fmt.Errorf("listing overrides: %w", err)
	}
	tl.Overrides = profile.IndexOverrides(overrides)

	events := a.calendarEvents(ctx, user, start, end)
	for d := firstDay; d.Before(end); d = dateutil.NextDay(d) {
		events = append(events, a.dayEvents(d, fixed, prefs, tl.Overrides)...)
	}

	slices.SortStableFunc(events, func(x, y NormalizedEvent) int { return x.Start.Compare(y.Start) })
	tl.Events = events
	return tl, nil
}

// calendarEvents fetches and normalizes the user's external events.
func (a *Aggregator) calendarEvents(ctx context.Context, user *profile.User, start, end time.Time) []NormalizedEvent {
	log := a.log.With().Int64("user_id", user.ID).Logger()

	cal, err := a.calendars.ForUser(ctx, user)
	if errors.Is(err, calendar.ErrNotLinked) {
		return nil
	}
	if err != nil {
		logCalendarFailure(log, err, "opening calendar")
		return nil
	}

	raw, err := cal.ListEvents(ctx, start, end)
	if err != nil {
		logCalendarFailure(log, err, "listing calendar events")
		return nil
	}

	loc := start.Location()
	out := make([]NormalizedEvent, 0, len(raw))
	for _, e := range raw {
		ev := NormalizedEvent{
			Start:           e.Start.In(loc),
			End:             e.End.In(loc),
			Title:           e.Title,
			Source:          SourceCalendar,
			ExternalEventID: e.ID,
		}
		if e.AllDay {
			s, err := dateutil.ParseDate(e.StartDate, loc)
			if err != nil {
				log.Warn().Err(err).Str("event_id", e.ID).Msg("skipping all-day event")
				continue
			}
			ev.Start, ev.End = s, dateutil.NextDay(s)
			if e.EndDate != "" {
				if d, err := dateutil.ParseDate(e.EndDate, loc); err == nil && d.After(s) {
					ev.End = d
				}
			}
		}
		out = append(out, ev)
	}
	return out
}

// dayEvents instantiates fixed schedules and derived blocks for one date.
func (a *Aggregator) dayEvents(day time.Time, fixed []*profile.FixedSchedule, prefs *profile.Preferences, ov profile.Overrides) []NormalizedEvent {
	var (
		out                    []NormalizedEvent
		campusStart, campusEnd time.Time
		hasCampus              bool
	)

	for _, fs := range fixed {
		if fs.DayOfWeek != day.Weekday() {
			continue
		}
		s, err1 := dateutil.At(day, fs.StartTime)
		e, err2 := dateutil.At(day, fs.EndTime)
		if err := errors.Join(err1, err2); err != nil {
			a.log.Warn().Err(err).Int64("schedule_id", fs.ID).Msg("skipping malformed fixed schedule")
			continue
		}
		out = append(out, NormalizedEvent{Start: s, End: e, Title: fs.Title, Source: SourceFixed})

		if !fs.Category.IsCampus() {
			continue
		}
		if !hasCampus || s.Before(campusStart) {
			campusStart = s
		}
		if !hasCampus || e.After(campusEnd) {
			campusEnd = e
		}
		hasCampus = true
	}

	if prefs == nil {
		return out
	}
	key := dateutil.DateKey(day)

	if hasCampus && !ov.Enabled(key, profile.OverrideSkipCommute) {
		out = append(out, a.commuteLegs(day, campusStart, campusEnd, prefs, ov)...)
	}

	if prefs.DinnerTime != "" && !ov.Enabled(key, profile.OverrideSkipDinner) {
		if s, err := dateutil.At(day, prefs.DinnerTime); err == nil {
			out = append(out, NormalizedEvent{Start: s, End: s.Add(time.Hour), Title: DinnerTitle, Source: SourceDinner})
		}
	}
	return out
}

// commuteLegs derives the outbound and return commute around campus hours.
//
// The outbound leg starts at a departure_time override only when it is strictly
// before the first campus activity; otherwise the commute duration applies.
// The return leg ends at a return_time override only when it is after the last
// campus activity.
func (a *Aggregator) commuteLegs(day, first, last time.Time, prefs *profile.Preferences, ov profile.Overrides) []NormalizedEvent {
	key := dateutil.DateKey(day)
	dur := time.Duration(prefs.CommuteDurationMins) * time.Minute

	outStart := first.Add(-dur)
	if v, ok := ov.Get(key, profile.OverrideDepartureTime); ok {
		dep, err := dateutil.At(day, v)
		switch {
		case err != nil:
			a.log.Warn().Err(err).Str("date", key).Msg("ignoring malformed departure override")
		case !dep.Before(first):
			a.log.Warn().Str("date", key).Str("departure", v).Str("first_activity", first.Format("15:04")).
				Msg("departure override not before first activity, using commute duration")
		default:
			outStart = dep
		}
	}

	retEnd := last.Add(dur)
	if v, ok := ov.Get(key, profile.OverrideReturnTime); ok {
		arr, err := dateutil.At(day, v)
		switch {
		case err != nil:
			a.log.Warn().Err(err).Str("date", key).Msg("ignoring malformed return override")
		case !arr.After(last):
			a.log.Warn().Str("date", key).Str("return", v).Str("last_activity", last.Format("15:04")).
				Msg("return override not after last activity, using commute duration")
		default:
			retEnd = arr
		}
	}

	var legs []NormalizedEvent
	if outStart.Before(first) {
		legs = append(legs, NormalizedEvent{Start: outStart, End: first, Title: CommuteTitle, Source: SourceCommute})
	}
	if retEnd.After(last) {
		legs = append(legs, NormalizedEvent{Start: last, End: retEnd, Title: CommuteTitle, Source: SourceCommute})
	}
	return legs
}

func logCalendarFailure(log zerolog.Logger, err error, msg string) {
	ev := log.Warn().Err(err)
	if errors.Is(err, calendar.ErrAuthExpired) {
		ev = ev.Bool("reauth_required", true)
	}
	ev.Msg(msg)
}
