package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/javiermolinar/studyplanner/internal/calendar"
	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/scheduler"
	"github.com/javiermolinar/studyplanner/internal/task"
)

// ScheduleResult reports one allocation run.
type ScheduleResult struct {
	TaskID int64
	// ScheduledMinutes is the study time carved by this run.
	ScheduledMinutes int
	BlocksCreated    int
	Mirrored         int
	Status           task.Status
	Blocks           []*task.StudyBlock
	// ShortRemainder is the remaining study time when it is shorter than one
	// block. Whole blocks only, so it is never carved.
	ShortRemainder int
}

// CarveLimits bounds an allocation.
type CarveLimits struct {
	// BlockMinutes is the exact length of each block.
	BlockMinutes int
	// DailyCap is the most study minutes per local date. Zero means unlimited.
	DailyCap int
	// Used holds minutes already allocated per date key.
	Used map[string]int
	// Location decides which date a block falls on.
	Location *time.Location
}

// Carve packs blocks of exactly BlockMinutes into gaps, first fit in
// chronological order, until needed minutes are covered. Only whole blocks
// are carved, so the carved total never exceeds needed. Dates that reach
// the daily cap are skipped.
func Carve(gaps []scheduler.Gap, needed int, limits CarveLimits) []*task.StudyBlock {
	if limits.BlockMinutes <= 0 {
		return nil
	}
	loc := limits.Location
	if loc == nil {
		loc = time.Local
	}
	used := make(map[string]int, len(limits.Used))
	for k, v := range limits.Used {
		used[k] = v
	}
	blockLen := time.Duration(limits.BlockMinutes) * time.Minute

	var blocks []*task.StudyBlock
	for _, g := range gaps {
		cursor := g.Start
		for needed >= limits.BlockMinutes && g.End.Sub(cursor) >= blockLen {
			key := dateutil.DateKey(cursor.In(loc))
			if limits.DailyCap > 0 && used[key]+limits.BlockMinutes > limits.DailyCap {
				break
			}
			blocks = append(blocks, &task.StudyBlock{Start: cursor, End: cursor.Add(blockLen)})
			used[key] += limits.BlockMinutes
			needed -= limits.BlockMinutes
			cursor = cursor.Add(blockLen)
		}
		if needed < limits.BlockMinutes {
			break
		}
	}
	return blocks
}

// ScheduleTask allocates study blocks for the task's remaining minutes
// between now and its deadline, then mirrors them to the external calendar.
func (p *Planner) ScheduleTask(ctx context.Context, taskID int64) (*ScheduleResult, error) {
	t, err := p.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	unlock := p.locks.lock(t.UserID)
	defer unlock()

	// Reload under the lock so concurrent runs see each other's progress.
	if t, err = p.tasks.GetTask(ctx, taskID); err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return p.scheduleLocked(ctx, t)
}

func (p *Planner) scheduleLocked(ctx context.Context, t *task.Task) (*ScheduleResult, error) {
	if t.IsCompleted {
		return nil, task.ErrAlreadyCompleted
	}
	now := p.Now()
	deadline := t.Deadline.In(p.cfg.Location)
	if !deadline.After(now) {
		return nil, fmt.Errorf("%w: %s", task.ErrDeadlinePassed, deadline.Format(time.RFC3339))
	}

	user, err := p.profiles.GetUser(ctx, t.UserID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}

	log := p.log.With().
		Str("run_id", uuid.NewString()).
		Int64("task_id", t.ID).
		Int64("user_id", t.UserID).
		Logger()

	result := &ScheduleResult{TaskID: t.ID, Status: t.Status}
	needed := t.RemainingMinutes()
	if needed <= 0 {
		result.Status = t.PlannedStatus(t.ScheduledMinutes)
		return result, nil
	}

	tl, blockBusy, err := p.timeline(ctx, user, now, deadline)
	if err != nil {
		return nil, err
	}
	gaps, err := tl.FreeGaps(blockBusy...)
	if err != nil {
		return nil, fmt.Errorf("computing free gaps: %w", err)
	}

	from, to := dayRange(now, deadline)
	existing, err := p.tasks.ListBlocksByUser(ctx, user.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing study blocks: %w", err)
	}

	blocks := Carve(gaps, needed, CarveLimits{
		BlockMinutes: tl.Prefs.StudyBlockLength,
		DailyCap:     tl.Prefs.MaxStudyMinutesPerDay,
		Used:         task.MinutesByDate(existing, p.cfg.Location),
		Location:     p.cfg.Location,
	})
	carved := task.TotalMinutes(blocks)
	status := t.PlannedStatus(t.ScheduledMinutes + carved)
	if left := needed - carved; left > 0 && left < tl.Prefs.StudyBlockLength {
		result.ShortRemainder = left
	}

	if err := p.tasks.AllocateBlocks(ctx, t.ID, blocks, status); err != nil {
		return nil, fmt.Errorf("allocating blocks: %w", err)
	}
	t.ScheduledMinutes += carved
	t.Status = status

	result.ScheduledMinutes = carved
	result.BlocksCreated = len(blocks)
	result.Status = status
	result.Blocks = blocks

	log.Info().
		Int("gaps", len(gaps)).
		Int("needed", needed).
		Int("carved", carved).
		Int("short_remainder", result.ShortRemainder).
		Str("status", string(status)).
		Msg("allocated study blocks")

	if len(blocks) > 0 {
		result.Mirrored = p.mirror(ctx, user.ID, t, blocks, log)
	}
	return result, nil
}

// mirror creates an external event per block and records its ID. Failures
// are logged per block and leave the block unmirrored.
func (p *Planner) mirror(ctx context.Context, userID int64, t *task.Task, blocks []*task.StudyBlock, log zerolog.Logger) int {
	cal := p.calendarFor(ctx, userID)
	if cal == nil {
		return 0
	}

	mirrored := 0
	for _, b := range blocks {
		id, err := cal.CreateEvent(ctx, calendar.EventInput{
			Summary:     t.Label(),
			Description: eventDescription,
			Start:       b.Start,
			End:         b.End,
		})
		if err != nil {
			log.Warn().Err(err).Int64("block_id", b.ID).Msg("mirroring study block")
			continue
		}
		if err := p.tasks.SetBlockExternalID(ctx, b.ID, id); err != nil {
			log.Warn().Err(err).Int64("block_id", b.ID).Str("event_id", id).Msg("recording mirror id")
			continue
		}
		b.ExternalEventID = id
		mirrored++
	}
	return mirrored
}

// ReplanUnderplanned re-runs allocation for the user's underplanned tasks
// whose deadline is still ahead. Tasks missing less than one block are
// skipped. Failures are logged and skipped.
func (p *Planner) ReplanUnderplanned(ctx context.Context, userID int64) ([]*ScheduleResult, error) {
	tasks, err := p.tasks.ListTasks(ctx, userID, task.ListFilter{Status: task.StatusUnderplanned})
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	prefs, err := p.profiles.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting preferences: %w", err)
	}

	now := p.Now()
	var results []*ScheduleResult
	for _, t := range tasks {
		if !t.Deadline.After(now) {
			continue
		}
		if t.RemainingMinutes() < prefs.StudyBlockLength {
			p.log.Debug().Int64("task_id", t.ID).Int("remaining", t.RemainingMinutes()).
				Msg("remainder shorter than a block")
			continue
		}
		res, err := p.ScheduleTask(ctx, t.ID)
		if err != nil {
			p.log.Warn().Err(err).Int64("task_id", t.ID).Msg("replanning task")
			continue
		}
		results = append(results, res)
	}
	return results, nil
}
