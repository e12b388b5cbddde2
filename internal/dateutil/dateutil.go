// Package dateutil provides date, clock and instant parsing utilities.
package dateutil

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/javiermolinar/studyplanner/internal/apperr"
)

// DateLayout is the storage and display layout for calendar dates.
const DateLayout = "2006-01-02"

// Validation errors.
var (
	ErrInvalidDateFormat  = fmt.Errorf("%w: date must be in YYYY-MM-DD format", apperr.ErrInvalidInput)
	ErrInvalidClockFormat = fmt.Errorf("%w: time must be in HH:MM format", apperr.ErrInvalidInput)
	ErrInvalidWeekday     = fmt.Errorf("%w: unknown weekday", apperr.ErrInvalidInput)
	ErrMissingZone        = fmt.Errorf("%w: timestamp must carry a zone offset", apperr.ErrInvalidInput)
	ErrInvalidInstant     = fmt.Errorf("%w: timestamp must be RFC 3339", apperr.ErrInvalidInput)
	ErrDateInPast         = errors.New("cannot schedule in the past")
)

// weekdayMap maps weekday names to time.Weekday values.
var weekdayMap = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday parses an English weekday name, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdayMap[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return time.Sunday, fmt.Errorf("%w: %q", ErrInvalidWeekday, s)
	}
	return d, nil
}

// ParseDate parses a YYYY-MM-DD date as midnight in loc.
// Relative input, including the empty string, goes through ParseRelativeDate.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDateFormat
	}
	return t, nil
}

// DateKey formats the calendar date of t in its own location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// TruncateToDay returns t with time set to midnight.
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NextDay returns midnight of the day after t's date.
func NextDay(t time.Time) time.Time {
	d := TruncateToDay(t)
	return time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, d.Location())
}

// ParseClock converts "HH:MM" to minutes since midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockFormat, s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockFormat, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock converts minutes since midnight to "HH:MM".
func FormatClock(m int) string {
	if m < 0 {
		m = 0
	}
	if m >= 24*60 {
		m = 24*60 - 1
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// At returns the instant at the given "HH:MM" clock on day's date, in day's location.
func At(day time.Time, clock string) (time.Time, error) {
	m, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), m/60, m%60, 0, 0, day.Location()), nil
}

// instantLayouts are the accepted zone-carrying timestamp layouts.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
}

// naiveLayouts are recognized only to report a missing zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseInstant parses a timestamp that carries an explicit zone offset.
// Timestamps without an offset are rejected with ErrMissingZone instead of
// being silently interpreted in some local zone.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrMissingZone, s)
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidInstant, s)
}

// ParseBoundary parses either a zone-carrying timestamp or a bare date.
// A bare date resolves to midnight in loc, or to the following midnight when
// endOfDay is set, so that "2025-01-15" as an upper bound covers the whole day.
func ParseBoundary(s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == len(DateLayout) {
		d, err := ParseDate(s, loc)
		if err != nil {
			return time.Time{}, err
		}
		if endOfDay {
			return NextDay(d), nil
		}
		return d, nil
	}
	return ParseInstant(s)
}

// ParseRelativeDate parses a date string that can be:
//   - Empty string or "today": returns relativeTo date
//   - Absolute date: "2025-01-15" (YYYY-MM-DD)
//   - Keywords: "tomorrow"
//   - Weekday names: "monday" through "sunday" (next occurrence, always future)
//   - Next prefixed: "next-monday" through "next-sunday", "next-week"
//
// All inputs are case-insensitive and resolve in relativeTo's location.
// Returns ErrDateInPast if the resulting date is before relativeTo (truncated to day).
// Returns ErrInvalidDateFormat for unrecognized input.
func ParseRelativeDate(s string, relativeTo time.Time) (time.Time, error) {
	today := TruncateToDay(relativeTo)
	input := strings.ToLower(strings.TrimSpace(s))

	switch input {
	case "", "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "next-week":
		return today.AddDate(0, 0, 7), nil
	}

	if strings.HasPrefix(input, "next-") {
		weekdayName := strings.TrimPrefix(input, "next-")
		if targetDay, ok := weekdayMap[weekdayName]; ok {
			return nextWeekday(today, targetDay), nil
		}
		return time.Time{}, ErrInvalidDateFormat
	}

	if targetDay, ok := weekdayMap[input]; ok {
		return nextWeekday(today, targetDay), nil
	}

	result, err := time.ParseInLocation(DateLayout, input, relativeTo.Location())
	if err != nil {
		return time.Time{}, ErrInvalidDateFormat
	}

	if result.Before(today) {
		return time.Time{}, ErrDateInPast
	}

	return result, nil
}

// nextWeekday returns the next occurrence of the given weekday after today.
// If today is the target weekday, returns one week from today.
func nextWeekday(today time.Time, target time.Weekday) time.Time {
	current := today.Weekday()
	daysUntil := int(target) - int(current)
	if daysUntil <= 0 {
		daysUntil += 7
	}
	return today.AddDate(0, 0, daysUntil)
}
