package profile

import (
	"context"
	"time"
)

// Repository defines the storage interface for users and their availability.
type Repository interface {
	// CreateUser adds a new user.
	CreateUser(ctx context.Context, u *User) error

	// GetUser retrieves a user by ID. Returns ErrUserNotFound if missing.
	GetUser(ctx context.Context, id int64) (*User, error)

	// SetCalendarToken stores the serialized OAuth token. Empty unlinks.
	SetCalendarToken(ctx context.Context, userID int64, token string) error

	// GetPreferences returns the user's preferences, creating defaults on first read.
	GetPreferences(ctx context.Context, userID int64) (*Preferences, error)

	// UpdatePreferences replaces the user's preferences.
	UpdatePreferences(ctx context.Context, p *Preferences) error

	// CreateFixedSchedule adds a weekly commitment.
	CreateFixedSchedule(ctx context.Context, f *FixedSchedule) error

	// ListFixedSchedules returns the user's commitments ordered by weekday and start.
	ListFixedSchedules(ctx context.Context, userID int64) ([]*FixedSchedule, error)

	// DeleteFixedSchedule removes a commitment. Returns ErrScheduleNotFound if missing.
	DeleteFixedSchedule(ctx context.Context, userID, id int64) error

	// ReplaceFixedSchedules atomically swaps the user's commitments for the given list.
	ReplaceFixedSchedules(ctx context.Context, userID int64, list []*FixedSchedule) error

	// SetOverride inserts or replaces the override for (user, date, type).
	SetOverride(ctx context.Context, o *DailyOverride) error

	// ListOverrides returns overrides whose date lies in [from, to] (inclusive, by date key).
	ListOverrides(ctx context.Context, userID int64, from, to time.Time) ([]*DailyOverride, error)

	// DeleteOverride removes one override type for a date. Returns the number removed.
	DeleteOverride(ctx context.Context, userID int64, date string, t OverrideType) (int, error)

	// ClearOverrides removes every override for a date. Returns the number removed.
	ClearOverrides(ctx context.Context, userID int64, date string) (int, error)
}
