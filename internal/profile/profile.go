// Package profile defines the user, preference, fixed schedule and daily
// override types that shape a person's weekly availability.
package profile

import (
	"fmt"
	"strings"
	"time"

	"github.com/javiermolinar/studyplanner/internal/apperr"
	"github.com/javiermolinar/studyplanner/internal/dateutil"
)

// Validation errors.
var (
	ErrEmptyTitle        = fmt.Errorf("%w: title cannot be empty", apperr.ErrInvalidInput)
	ErrInvalidCategory   = fmt.Errorf("%w: category must be 'university', 'work' or 'other'", apperr.ErrInvalidInput)
	ErrEndBeforeStart    = fmt.Errorf("%w: end time must be after start time", apperr.ErrInvalidInput)
	ErrInvalidOverride   = fmt.Errorf("%w: unknown override type", apperr.ErrInvalidInput)
	ErrInvalidPreference = fmt.Errorf("%w: invalid preference", apperr.ErrInvalidInput)
)

// Domain errors.
var (
	ErrUserNotFound     = fmt.Errorf("user %w", apperr.ErrNotFound)
	ErrScheduleNotFound = fmt.Errorf("fixed schedule %w", apperr.ErrNotFound)
)

// User is a person whose time is being planned.
type User struct {
	ID    int64
	Email string
	// CalendarToken is the serialized OAuth token. Empty means no linked calendar.
	CalendarToken string
}

// HasCalendar reports whether the user linked an external calendar.
func (u *User) HasCalendar() bool {
	return u != nil && u.CalendarToken != ""
}

// Preferences holds the per-user scheduling knobs.
type Preferences struct {
	UserID                int64
	WakeTime              string // "HH:MM"
	SleepTime             string // "HH:MM"
	StudyBlockLength      int    // minutes
	MaxStudyMinutesPerDay int    // 0 means unlimited
	CommuteDurationMins   int
	DinnerTime            string // "HH:MM", empty means no dinner block
}

// Validate checks clock formats and numeric ranges.
func (p *Preferences) Validate() error {
	wake, err := dateutil.ParseClock(p.WakeTime)
	if err != nil {
		return fmt.Errorf("wake time: %w", err)
	}
	sleep, err := dateutil.ParseClock(p.SleepTime)
	if err != nil {
		return fmt.Errorf("sleep time: %w", err)
	}
	if sleep <= wake {
		return fmt.Errorf("%w: sleep time must be after wake time", ErrInvalidPreference)
	}
	if p.DinnerTime != "" {
		if _, err := dateutil.ParseClock(p.DinnerTime); err != nil {
			return fmt.Errorf("dinner time: %w", err)
		}
	}
	if p.StudyBlockLength <= 0 {
		return fmt.Errorf("%w: study block length must be positive", ErrInvalidPreference)
	}
	if p.MaxStudyMinutesPerDay < 0 {
		return fmt.Errorf("%w: max study minutes per day cannot be negative", ErrInvalidPreference)
	}
	if p.CommuteDurationMins < 0 {
		return fmt.Errorf("%w: commute duration cannot be negative", ErrInvalidPreference)
	}
	return nil
}

// Category classifies a fixed commitment.
type Category string

const (
	CategoryUniversity Category = "university"
	CategoryWork       Category = "work"
	CategoryOther      Category = "other"
)

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryUniversity:
		return CategoryUniversity, nil
	case CategoryWork:
		return CategoryWork, nil
	case CategoryOther:
		return CategoryOther, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
}

// IsCampus reports whether attending requires a commute.
func (c Category) IsCampus() bool {
	return c == CategoryUniversity || c == CategoryWork
}

// FixedSchedule is a weekly recurring commitment.
type FixedSchedule struct {
	ID        int64
	UserID    int64
	Title     string
	Category  Category
	DayOfWeek time.Weekday
	StartTime string // "HH:MM"
	EndTime   string // "HH:MM"
}

// NewFixedSchedule creates a FixedSchedule with validation.
func NewFixedSchedule(userID int64, title, category, day, start, end string) (*FixedSchedule, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	cat, err := ParseCategory(category)
	if err != nil {
		return nil, err
	}
	weekday, err := dateutil.ParseWeekday(day)
	if err != nil {
		return nil, err
	}
	fs := &FixedSchedule{
		UserID:    userID,
		Title:     title,
		Category:  cat,
		DayOfWeek: weekday,
		StartTime: start,
		EndTime:   end,
	}
	if err := fs.Validate(); err != nil {
		return nil, err
	}
	fs.StartTime, fs.EndTime = canonicalClock(start), canonicalClock(end)
	return fs, nil
}

// canonicalClock rewrites a valid clock such as "9:05" as "09:05".
func canonicalClock(s string) string {
	m, err := dateutil.ParseClock(s)
	if err != nil {
		return s
	}
	return dateutil.FormatClock(m)
}

// Validate checks the clock range.
func (f *FixedSchedule) Validate() error {
	s, err := dateutil.ParseClock(f.StartTime)
	if err != nil {
		return fmt.Errorf("start time: %w", err)
	}
	e, err := dateutil.ParseClock(f.EndTime)
	if err != nil {
		return fmt.Errorf("end time: %w", err)
	}
	if e <= s {
		return ErrEndBeforeStart
	}
	return nil
}

// OverrideType names the kind of date-scoped adjustment.
type OverrideType string

const (
	OverrideDepartureTime OverrideType = "departure_time"
	OverrideReturnTime    OverrideType = "return_time"
	OverrideSkipCommute   OverrideType = "skip_commute"
	OverrideSkipDinner    OverrideType = "skip_dinner"
	OverrideCustomWake    OverrideType = "custom_wake"
)

// OverrideTypes lists every supported override type.
var OverrideTypes = []OverrideType{
	OverrideDepartureTime,
	OverrideReturnTime,
	OverrideSkipCommute,
	OverrideSkipDinner,
	OverrideCustomWake,
}

// ParseOverrideType validates an override type name.
func ParseOverrideType(s string) (OverrideType, error) {
	t := OverrideType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range OverrideTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOverride, s)
}

// DailyOverride adjusts the derived schedule for one calendar date.
type DailyOverride struct {
	ID     int64
	UserID int64
	Date   string // "YYYY-MM-DD"
	Type   OverrideType
	Value  string
	Note   string
}

// NewDailyOverride creates a DailyOverride with validation.
// Clock-valued types must carry "HH:MM"; skip types must carry "true" or "false".
func NewDailyOverride(userID int64, date, typ, value, note string) (*DailyOverride, error) {
	if _, err := time.Parse(dateutil.DateLayout, date); err != nil {
		return nil, dateutil.ErrInvalidDateFormat
	}
	t, err := ParseOverrideType(typ)
	if err != nil {
		return nil, err
	}
	value = strings.ToLower(strings.TrimSpace(value))
	switch t {
	case OverrideSkipCommute, OverrideSkipDinner:
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("%w: %s expects true or false", apperr.ErrInvalidInput, t)
		}
	default:
		if _, err := dateutil.ParseClock(value); err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		value = canonicalClock(value)
	}
	return &DailyOverride{
		UserID: userID,
		Date:   date,
		Type:   t,
		Value:  value,
		Note:   strings.TrimSpace(note),
	}, nil
}

// Overrides indexes a user's overrides by date and type.
type Overrides map[string]map[OverrideType]string

// IndexOverrides groups overrides by date.
func IndexOverrides(list []*DailyOverride) Overrides {
	idx := make(Overrides)
	for _, o := range list {
		day, ok := idx[o.Date]
		if !ok {
			day = make(map[OverrideType]string)
			idx[o.Date] = day
		}
		day[o.Type] = o.Value
	}
	return idx
}

// Get returns the override value for the date key and type.
func (o Overrides) Get(date string, t OverrideType) (string, bool) {
	day, ok := o[date]
	if !ok {
		return "", false
	}
	v, ok := day[t]
	return v, ok
}

// Enabled reports whether a boolean override is set to "true".
func (o Overrides) Enabled(date string, t OverrideType) bool {
	v, ok := o.Get(date, t)
	return ok && v == "true"
}

// DefaultPreferences returns the built-in preference values for new users.
func DefaultPreferences() Preferences {
	return Preferences{
		WakeTime:              "08:00",
		SleepTime:             "23:00",
		StudyBlockLength:      50,
		MaxStudyMinutesPerDay: 240,
		CommuteDurationMins:   90,
		DinnerTime:            "20:00",
	}
}
