// Package scheduler merges busy time from every source into one timeline and
// computes the free gaps inside each day's awake window.
package scheduler

import "time"

// Source identifies where a busy interval came from.
type Source string

const (
	SourceCalendar Source = "external-calendar"
	SourceFixed    Source = "fixed-schedule"
	SourceCommute  Source = "derived-commute"
	SourceDinner   Source = "derived-dinner"

	// SourceStudyBlock marks local study blocks without a calendar mirror.
	SourceStudyBlock Source = "study-block"
)

// Titles of derived intervals.
const (
	CommuteTitle = "Commute"
	DinnerTitle  = "Dinner"
)

// NormalizedEvent is a busy interval [Start, End).
type NormalizedEvent struct {
	Start           time.Time
	End             time.Time
	Title           string
	Source          Source
	ExternalEventID string
}

// Overlaps reports whether the event intersects [start, end).
func (e NormalizedEvent) Overlaps(start, end time.Time) bool {
	return e.End.After(start) && e.Start.Before(end)
}

// Duration returns the event length.
func (e NormalizedEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Gap is a free interval [Start, End).
type Gap struct {
	Start time.Time
	End   time.Time
}

// Duration returns the gap length.
func (g Gap) Duration() time.Duration {
	return g.End.Sub(g.Start)
}

// Minutes returns the gap length in whole minutes.
func (g Gap) Minutes() int {
	return int(g.Duration() / time.Minute)
}

// Overlapping returns the events intersecting [start, end), in input order.
func Overlapping(events []NormalizedEvent, start, end time.Time) []NormalizedEvent {
	var out []NormalizedEvent
	for _, e := range events {
		if e.Overlaps(start, end) {
			out = append(out, e)
		}
	}
	return out
}

// LongerThan returns the gaps lasting at least minDuration.
func LongerThan(gaps []Gap, minDuration time.Duration) []Gap {
	var out []Gap
	for _, g := range gaps {
		if g.Duration() >= minDuration {
			out = append(out, g)
		}
	}
	return out
}
