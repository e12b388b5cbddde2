// Package calendar defines the contract for a user's external calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/javiermolinar/studyplanner/internal/profile"
)

// External calendar errors.
var (
	// ErrUnavailable reports a failed or timed out call to the external calendar.
	ErrUnavailable = errors.New("external calendar unavailable")

	// ErrAuthExpired reports a revoked or expired authorization. It wraps ErrUnavailable.
	ErrAuthExpired = fmt.Errorf("%w: authorization expired", ErrUnavailable)

	// ErrNotLinked reports a user without a linked calendar.
	ErrNotLinked = errors.New("no external calendar linked")
)

// Event is an entry read from the external calendar.
type Event struct {
	ID    string
	Title string
	// Start and End are set for timed events.
	Start time.Time
	End   time.Time
	// AllDay events carry dates instead. EndDate is exclusive and may be empty.
	AllDay    bool
	StartDate string
	EndDate   string
}

// EventInput describes an event to create.
type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// Calendar is one user's external calendar.
type Calendar interface {
	// ListEvents returns events overlapping [timeMin, timeMax), recurring events expanded.
	ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]Event, error)

	// CreateEvent creates an event and returns its external ID.
	CreateEvent(ctx context.Context, in EventInput) (string, error)

	// UpdateEvent moves and optionally renames an event. An empty summary keeps the title.
	UpdateEvent(ctx context.Context, id string, start, end time.Time, summary string) error

	// DeleteEvent removes an event.
	DeleteEvent(ctx context.Context, id string) error
}

// Provider builds calendar clients for users.
type Provider interface {
	// ForUser returns the user's calendar or ErrNotLinked.
	ForUser(ctx context.Context, u *profile.User) (Calendar, error)

	// Close releases provider resources.
	Close() error
}

// Disabled is a Provider for installations without calendar access.
type Disabled struct{}

// ForUser always returns ErrNotLinked.
func (Disabled) ForUser(context.Context, *profile.User) (Calendar, error) {
	return nil, ErrNotLinked
}

// Close does nothing.
func (Disabled) Close() error { return nil }
