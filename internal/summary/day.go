// Package summary provides shared day overview utilities.
package summary

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/scheduler"
	"github.com/javiermolinar/studyplanner/internal/task"
)

// topTasks is how many pending tasks the overview highlights.
const topTasks = 3

// DayOverview holds one day's busy time and the pending work.
type DayOverview struct {
	Date         time.Time
	Events       []scheduler.NormalizedEvent
	Blocks       []*task.StudyBlock
	StudyMinutes int
	PendingCount int
	// Top holds up to three pending tasks, high priority first, then by deadline.
	Top []*task.Task
}

// EventSource returns a user's aggregated events for consecutive days.
type EventSource interface {
	Schedule(ctx context.Context, userID int64, start time.Time, days int) ([]scheduler.NormalizedEvent, error)
}

// BuildDayOverviewOptions configures the repository-backed overview builder.
type BuildDayOverviewOptions struct {
	UserID int64
	// Date is any instant on the requested day. Zero means today.
	Date time.Time
}

// SummarizeDay builds the overview from already loaded data.
func SummarizeDay(date time.Time, events []scheduler.NormalizedEvent, blocks []*task.StudyBlock, tasks []*task.Task) *DayOverview {
	day := dateutil.TruncateToDay(date)
	o := &DayOverview{
		Date:         day,
		Events:       events,
		Blocks:       blocks,
		StudyMinutes: task.TotalMinutes(blocks),
	}

	var pending []*task.Task
	for _, t := range tasks {
		if t.IsPending() {
			pending = append(pending, t)
		}
	}
	o.PendingCount = len(pending)

	slices.SortStableFunc(pending, func(a, b *task.Task) int {
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() - b.Priority.Rank()
		}
		return a.Deadline.Compare(b.Deadline)
	})
	if len(pending) > topTasks {
		pending = pending[:topTasks]
	}
	o.Top = pending
	return o
}

// BuildDayOverview loads the day's events, study blocks and pending tasks.
func BuildDayOverview(ctx context.Context, events EventSource, repo task.Repository, opts BuildDayOverviewOptions) (*DayOverview, error) {
	date := opts.Date
	if date.IsZero() {
		date = time.Now()
	}
	day := dateutil.TruncateToDay(date)

	evs, err := events.Schedule(ctx, opts.UserID, day, 1)
	if err != nil {
		return nil, fmt.Errorf("fetching events: %w", err)
	}
	blocks, err := repo.ListBlocksByUser(ctx, opts.UserID, day, dateutil.NextDay(day))
	if err != nil {
		return nil, fmt.Errorf("fetching study blocks: %w", err)
	}
	tasks, err := repo.ListTasks(ctx, opts.UserID, task.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("fetching tasks: %w", err)
	}

	return SummarizeDay(day, evs, blocks, tasks), nil
}
