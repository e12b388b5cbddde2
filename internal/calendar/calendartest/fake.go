// Package calendartest provides an in-memory calendar for tests.
package calendartest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/javiermolinar/studyplanner/internal/calendar"
	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/profile"
)

// Fake is an in-memory calendar.Calendar. Set the *Err fields to inject failures.
type Fake struct {
	mu     sync.Mutex
	events []calendar.Event
	nextID int

	ListErr   error
	CreateErr error
	UpdateErr error
	DeleteErr error

	Created []calendar.EventInput
	Updated []string
	Deleted []string
}

// New returns a Fake holding events.
func New(events ...calendar.Event) *Fake {
	return &Fake{events: slices.Clone(events)}
}

// ListEvents returns stored events overlapping [timeMin, timeMax).
func (f *Fake) ListEvents(_ context.Context, timeMin, timeMax time.Time) ([]calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}

	var out []calendar.Event
	for _, e := range f.events {
		start, end := e.Start, e.End
		if e.AllDay {
			s, err := dateutil.ParseDate(e.StartDate, timeMin.Location())
			if err != nil {
				continue
			}
			start, end = s, dateutil.NextDay(s)
			if e.EndDate != "" {
				if d, err := dateutil.ParseDate(e.EndDate, timeMin.Location()); err == nil {
					end = d
				}
			}
		}
		if end.After(timeMin) && start.Before(timeMax) {
			out = append(out, e)
		}
	}
	return out, nil
}

// CreateEvent stores a timed event.
func (f *Fake) CreateEvent(_ context.Context, in calendar.EventInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.nextID++
	id := fmt.Sprintf("evt-%d", f.nextID)
	f.events = append(f.events, calendar.Event{ID: id, Title: in.Summary, Start: in.Start, End: in.End})
	f.Created = append(f.Created, in)
	return id, nil
}

// UpdateEvent moves a stored event.
func (f *Fake) UpdateEvent(_ context.Context, id string, start, end time.Time, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	for i := range f.events {
		if f.events[i].ID == id {
			f.events[i].Start, f.events[i].End = start, end
			if summary != "" {
				f.events[i].Title = summary
			}
			f.Updated = append(f.Updated, id)
			return nil
		}
	}
	return fmt.Errorf("%w: event %s not found", calendar.ErrUnavailable, id)
}

// DeleteEvent removes a stored event.
func (f *Fake) DeleteEvent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	for i := range f.events {
		if f.events[i].ID == id {
			f.events = slices.Delete(f.events, i, i+1)
			f.Deleted = append(f.Deleted, id)
			return nil
		}
	}
	return fmt.Errorf("%w: event %s not found", calendar.ErrUnavailable, id)
}

// Events returns a copy of the stored events.
func (f *Fake) Events() []calendar.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.events)
}

// Provider hands out Cal to every linked user.
type Provider struct {
	Cal *Fake
	// Err, when set, is returned by ForUser for linked users.
	Err error
}

// ForUser returns Cal, Err, or calendar.ErrNotLinked for users without a token.
func (p *Provider) ForUser(_ context.Context, u *profile.User) (calendar.Calendar, error) {
	if !u.HasCalendar() {
		return nil, calendar.ErrNotLinked
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Cal, nil
}

// Close does nothing.
func (p *Provider) Close() error { return nil }
