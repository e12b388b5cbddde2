package scheduler

import (
	"fmt"
	"slices"
	"time"

	"github.com/javiermolinar/studyplanner/internal/apperr"
	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/profile"
)

// ErrNoPreferences is returned when gaps are requested without preferences.
var ErrNoPreferences = fmt.Errorf("%w: preferences are required", apperr.ErrInvalidInput)

// FreeGaps computes the free intervals of [start, end) inside each day's
// awake window, dates taken in start's location.
func FreeGaps(start, end time.Time, events []NormalizedEvent, prefs *profile.Preferences) ([]Gap, error) {
	return FreeGapsWithOverrides(start, end, events, prefs, nil)
}

// FreeGapsWithOverrides is FreeGaps with custom_wake overrides replacing the
// wake time on their dates.
//
// Windows whose sleep time is not after the wake time (midnight-spanning)
// produce no gaps.
func FreeGapsWithOverrides(start, end time.Time, events []NormalizedEvent, prefs *profile.Preferences, ov profile.Overrides) ([]Gap, error) {
	if prefs == nil {
		return nil, ErrNoPreferences
	}
	wake, err := dateutil.ParseClock(prefs.WakeTime)
	if err != nil {
		return nil, fmt.Errorf("wake time: %w", err)
	}
	sleep, err := dateutil.ParseClock(prefs.SleepTime)
	if err != nil {
		return nil, fmt.Errorf("sleep time: %w", err)
	}

	var gaps []Gap
	for d := dateutil.TruncateToDay(start); d.Before(end); d = dateutil.NextDay(d) {
		dayWake := wake
		if v, ok := ov.Get(dateutil.DateKey(d), profile.OverrideCustomWake); ok {
			if m, err := dateutil.ParseClock(v); err == nil {
				dayWake = m
			}
		}
		if sleep <= dayWake {
			continue
		}

		winStart := clockOn(d, dayWake)
		winEnd := clockOn(d, sleep)
		if winStart.Before(start) {
			winStart = start
		}
		if winEnd.After(end) {
			winEnd = end
		}
		if !winStart.Before(winEnd) {
			continue
		}

		gaps = append(gaps, sweep(winStart, winEnd, events)...)
	}
	return gaps, nil
}

// sweep returns the uncovered parts of [winStart, winEnd).
func sweep(winStart, winEnd time.Time, events []NormalizedEvent) []Gap {
	var clipped []Gap
	for _, e := range events {
		if !e.Overlaps(winStart, winEnd) {
			continue
		}
		s, en := e.Start, e.End
		if s.Before(winStart) {
			s = winStart
		}
		if en.After(winEnd) {
			en = winEnd
		}
		clipped = append(clipped, Gap{Start: s, End: en})
	}
	slices.SortFunc(clipped, func(a, b Gap) int { return a.Start.Compare(b.Start) })

	var gaps []Gap
	cursor := winStart
	for _, c := range clipped {
		if c.Start.After(cursor) {
			gaps = append(gaps, Gap{Start: cursor, End: c.Start})
		}
		if c.End.After(cursor) {
			cursor = c.End
		}
	}
	if cursor.Before(winEnd) {
		gaps = append(gaps, Gap{Start: cursor, End: winEnd})
	}
	return gaps
}

// clockOn returns day's date at minutes past midnight, in day's location.
func clockOn(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location())
}
