// Package planner places study work into a user's free time.
// It coordinates the store, the event aggregator and the external calendar.
// Both the CLI and the assistant tool surface use this package.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/javiermolinar/studyplanner/internal/apperr"
	"github.com/javiermolinar/studyplanner/internal/calendar"
	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/profile"
	"github.com/javiermolinar/studyplanner/internal/scheduler"
	"github.com/javiermolinar/studyplanner/internal/task"
)

// Input errors.
var (
	ErrInvalidWindow    = fmt.Errorf("%w: end must be after start", apperr.ErrInvalidInput)
	ErrInvalidDuration  = fmt.Errorf("%w: duration must be positive", apperr.ErrInvalidInput)
	ErrInvalidPartOfDay = fmt.Errorf("%w: preferred time must be morning, afternoon, evening or any", apperr.ErrInvalidInput)
	ErrEmptyQuery       = fmt.Errorf("%w: title filter cannot be empty", apperr.ErrInvalidInput)
)

// eventDescription is attached to every event the planner creates.
const eventDescription = "Scheduled by studyplanner"

// Config holds planner settings.
type Config struct {
	// Location is the zone dates are evaluated in. Defaults to time.Local.
	Location *time.Location
	// BreakMinutes separates blocks when splitting a direct calendar event.
	BreakMinutes int
	// MinBlockMinutes is the shortest trailing block kept when splitting.
	MinBlockMinutes int
}

// DefaultConfig returns the planner defaults.
func DefaultConfig() Config {
	return Config{
		Location:        time.Local,
		BreakMinutes:    10,
		MinBlockMinutes: 15,
	}
}

// Planner schedules tasks and manages study blocks.
type Planner struct {
	profiles  profile.Repository
	tasks     task.Repository
	calendars calendar.Provider
	agg       *scheduler.Aggregator
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
	locks     *userLocks
}

// Option configures a Planner.
type Option func(*Planner)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// New creates a Planner. A nil provider disables the external calendar.
func New(profiles profile.Repository, tasks task.Repository, calendars calendar.Provider, cfg Config, log zerolog.Logger, opts ...Option) *Planner {
	if calendars == nil {
		calendars = calendar.Disabled{}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	p := &Planner{
		profiles:  profiles,
		tasks:     tasks,
		calendars: calendars,
		agg:       scheduler.NewAggregator(profiles, calendars, log),
		cfg:       cfg,
		log:       log.With().Str("component", "planner").Logger(),
		now:       time.Now,
		locks:     newUserLocks(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Location returns the zone the planner evaluates dates in.
func (p *Planner) Location() *time.Location {
	return p.cfg.Location
}

// Now returns the current time in the planner's location, rounded up to the minute.
func (p *Planner) Now() time.Time {
	now := p.now().In(p.cfg.Location)
	if t := now.Truncate(time.Minute); !t.Equal(now) {
		return t.Add(time.Minute)
	}
	return now
}

// AddTask creates a pending task for the user.
func (p *Planner) AddTask(ctx context.Context, userID int64, title, courseTag string, totalMinutes int, deadline time.Time, priority string) (*task.Task, error) {
	if _, err := p.profiles.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	t, err := task.New(userID, title, courseTag, totalMinutes, deadline, priority)
	if err != nil {
		return nil, err
	}
	if err := p.tasks.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return t, nil
}

// UpdateTask applies edits to a task.
func (p *Planner) UpdateTask(ctx context.Context, taskID int64, u task.Update) (*task.Task, error) {
	t, err := p.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	if err := u.Apply(t); err != nil {
		return nil, err
	}
	if err := p.tasks.UpdateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("updating task: %w", err)
	}
	return t, nil
}

// CompleteTask marks a task as completed. Existing blocks are kept.
func (p *Planner) CompleteTask(ctx context.Context, taskID int64) error {
	if err := p.tasks.CompleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("completing task: %w", err)
	}
	return nil
}

// DeleteTask removes a task and its blocks. Mirrored events are deleted
// best-effort first.
func (p *Planner) DeleteTask(ctx context.Context, taskID int64) error {
	t, err := p.tasks.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("getting task: %w", err)
	}
	unlock := p.locks.lock(t.UserID)
	defer unlock()

	blocks, err := p.tasks.ListBlocksByTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("listing blocks: %w", err)
	}
	if cal := p.calendarFor(ctx, t.UserID); cal != nil {
		for _, b := range blocks {
			if !b.IsMirrored() {
				continue
			}
			if err := cal.DeleteEvent(ctx, b.ExternalEventID); err != nil {
				p.log.Warn().Err(err).Int64("block_id", b.ID).Str("event_id", b.ExternalEventID).
					Msg("deleting mirrored event")
			}
		}
	}

	if err := p.tasks.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	return nil
}

// calendarFor returns the user's calendar, or nil when it is not linked or
// cannot be opened.
func (p *Planner) calendarFor(ctx context.Context, userID int64) calendar.Calendar {
	user, err := p.profiles.GetUser(ctx, userID)
	if err != nil {
		p.log.Warn().Err(err).Int64("user_id", userID).Msg("loading user for calendar")
		return nil
	}
	cal, err := p.calendars.ForUser(ctx, user)
	if err != nil {
		if !errors.Is(err, calendar.ErrNotLinked) {
			p.log.Warn().Err(err).Int64("user_id", userID).Msg("opening calendar")
		}
		return nil
	}
	return cal
}

// timeline aggregates [start, end) and adds the user's local study blocks
// that are not already present through their calendar mirror.
func (p *Planner) timeline(ctx context.Context, user *profile.User, start, end time.Time) (*scheduler.Timeline, []scheduler.NormalizedEvent, error) {
	tl, err := p.agg.Timeline(ctx, user, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregating events: %w", err)
	}
	if !end.After(start) {
		return tl, nil, nil
	}

	blocks, err := p.tasks.ListBlocksByUser(ctx, user.ID, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("listing study blocks: %w", err)
	}
	return tl, blockEvents(blocks, tl.Events, start.Location()), nil
}

// blockEvents converts blocks into busy events, skipping those whose mirror
// already appears in events.
func blockEvents(blocks []*task.StudyBlock, events []scheduler.NormalizedEvent, loc *time.Location) []scheduler.NormalizedEvent {
	mirrored := mirrorIDs(events)

	var out []scheduler.NormalizedEvent
	for _, b := range blocks {
		if b.IsMirrored() && mirrored[b.ExternalEventID] {
			continue
		}
		out = append(out, blockEvent(b, loc))
	}
	return out
}

func blockEvent(b *task.StudyBlock, loc *time.Location) scheduler.NormalizedEvent {
	return scheduler.NormalizedEvent{
		Start:           b.Start.In(loc),
		End:             b.End.In(loc),
		Title:           "Study block",
		Source:          scheduler.SourceStudyBlock,
		ExternalEventID: b.ExternalEventID,
	}
}

// mirrorIDs collects the external ids present in events.
func mirrorIDs(events []scheduler.NormalizedEvent) map[string]bool {
	ids := make(map[string]bool)
	for _, e := range events {
		if e.ExternalEventID != "" {
			ids[e.ExternalEventID] = true
		}
	}
	return ids
}

// dayRange returns [midnight of start's date, midnight after end's date).
func dayRange(start, end time.Time) (time.Time, time.Time) {
	return dateutil.TruncateToDay(start), dateutil.NextDay(dateutil.TruncateToDay(end))
}
