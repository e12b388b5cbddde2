package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/javiermolinar/studyplanner/internal/calendar"
	"github.com/javiermolinar/studyplanner/internal/task"
)

// CreatedEvent is an event written to the external calendar.
type CreatedEvent struct {
	ID    string
	Title string
	Start time.Time
	End   time.Time
}

// CreateCalendarEvent writes an event straight to the user's calendar. With
// split set and a span longer than one study block, it writes consecutive
// blocks separated by breaks instead, dropping a trailing remainder shorter
// than the minimum block. Events created before a failure are returned with
// the error.
func (p *Planner) CreateCalendarEvent(ctx context.Context, userID int64, title string, start, end time.Time, split bool) ([]CreatedEvent, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, task.ErrEmptyTitle
	}
	if !end.After(start) {
		return nil, ErrInvalidWindow
	}

	user, err := p.profiles.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	cal, err := p.calendars.ForUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("opening calendar: %w", err)
	}
	prefs, err := p.profiles.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting preferences: %w", err)
	}

	var created []CreatedEvent
	for _, span := range SplitSpan(title, start, end, split, prefs.StudyBlockLength, p.cfg.BreakMinutes, p.cfg.MinBlockMinutes) {
		id, err := cal.CreateEvent(ctx, calendar.EventInput{
			Summary:     span.Title,
			Description: eventDescription,
			Start:       span.Start,
			End:         span.End,
		})
		if err != nil {
			return created, fmt.Errorf("creating event %q: %w", span.Title, err)
		}
		span.ID = id
		created = append(created, span)
	}
	return created, nil
}

// SplitSpan lays out the events CreateCalendarEvent writes for [start, end).
func SplitSpan(title string, start, end time.Time, split bool, blockMinutes, breakMinutes, minBlockMinutes int) []CreatedEvent {
	total := int(end.Sub(start) / time.Minute)
	if !split || blockMinutes <= 0 || total <= blockMinutes {
		return []CreatedEvent{{Title: title, Start: start, End: end}}
	}

	var out []CreatedEvent
	cursor := start
	for n := 1; cursor.Before(end); n++ {
		length := min(blockMinutes, int(end.Sub(cursor)/time.Minute))
		if length < minBlockMinutes || length <= 0 {
			break
		}
		blockEnd := cursor.Add(time.Duration(length) * time.Minute)
		out = append(out, CreatedEvent{
			Title: fmt.Sprintf("%s (Block %d)", title, n),
			Start: cursor,
			End:   blockEnd,
		})
		cursor = blockEnd.Add(time.Duration(breakMinutes) * time.Minute)
	}
	return out
}

// DeleteEventsByTitle deletes the user's calendar events in [start, end)
// whose title contains the query, case-insensitively. Individual delete
// failures are logged and skipped. It returns the deleted events.
func (p *Planner) DeleteEventsByTitle(ctx context.Context, userID int64, contains string, start, end time.Time) ([]calendar.Event, error) {
	query := strings.ToLower(strings.TrimSpace(contains))
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if !end.After(start) {
		return nil, ErrInvalidWindow
	}

	user, err := p.profiles.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	cal, err := p.calendars.ForUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("opening calendar: %w", err)
	}
	events, err := cal.ListEvents(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	var deleted []calendar.Event
	for _, e := range events {
		if !strings.Contains(strings.ToLower(e.Title), query) {
			continue
		}
		if err := cal.DeleteEvent(ctx, e.ID); err != nil {
			p.log.Warn().Err(err).Str("event_id", e.ID).Msg("deleting event")
			continue
		}
		deleted = append(deleted, e)
	}
	return deleted, nil
}
