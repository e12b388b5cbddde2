package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/javiermolinar/studyplanner/internal/scheduler"
	"github.com/javiermolinar/studyplanner/internal/task"
)

// RescheduleBlock moves a study block to newStart, keeping its duration.
// The move is persisted without an overlap check. A mirrored event is
// updated best-effort.
func (p *Planner) RescheduleBlock(ctx context.Context, blockID int64, newStart time.Time) (*task.StudyBlock, error) {
	b, err := p.tasks.GetBlock(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("getting block: %w", err)
	}
	t, err := p.tasks.GetTask(ctx, b.TaskID)
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	unlock := p.locks.lock(t.UserID)
	defer unlock()

	moved := b.Moved(newStart)
	if err := p.tasks.UpdateBlockTimes(ctx, moved.ID, moved.Start, moved.End); err != nil {
		return nil, fmt.Errorf("moving block: %w", err)
	}

	if moved.IsMirrored() {
		if cal := p.calendarFor(ctx, t.UserID); cal != nil {
			if err := cal.UpdateEvent(ctx, moved.ExternalEventID, moved.Start, moved.End, ""); err != nil {
				p.log.Warn().Err(err).Int64("block_id", moved.ID).Str("event_id", moved.ExternalEventID).
					Msg("updating mirrored event")
			}
		}
	}
	return moved, nil
}

// Conflict is a future study block overlapping busy events.
type Conflict struct {
	Block     *task.StudyBlock
	TaskTitle string
	Events    []scheduler.NormalizedEvent
}

// CheckConflicts returns the user's future blocks that overlap aggregated
// events or other study blocks, in block order. A block's own mirror is not
// a conflict.
func (p *Planner) CheckConflicts(ctx context.Context, userID int64) ([]Conflict, error) {
	user, err := p.profiles.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}

	now := p.Now()
	blocks, err := p.tasks.ListFutureBlocks(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("listing future blocks: %w", err)
	}
	if len(blocks) == 0 {
		return nil, nil
	}

	end := blocks[0].End
	for _, b := range blocks[1:] {
		if b.End.After(end) {
			end = b.End
		}
	}
	end = end.In(p.cfg.Location)
	events, err := p.agg.Aggregate(ctx, user, now, end)
	if err != nil {
		return nil, fmt.Errorf("aggregating events: %w", err)
	}
	// Includes blocks already running at now.
	local, err := p.tasks.ListBlocksByUser(ctx, userID, now, end)
	if err != nil {
		return nil, fmt.Errorf("listing study blocks: %w", err)
	}
	mirrored := mirrorIDs(events)

	titles := make(map[int64]string)
	var conflicts []Conflict
	for _, b := range blocks {
		var hits []scheduler.NormalizedEvent
		for _, e := range scheduler.Overlapping(events, b.Start, b.End) {
			if b.IsMirrored() && e.ExternalEventID == b.ExternalEventID {
				continue
			}
			hits = append(hits, e)
		}
		for _, o := range local {
			if o.ID == b.ID || (o.IsMirrored() && mirrored[o.ExternalEventID]) {
				continue
			}
			if o.Overlaps(b.Start, b.End) {
				hits = append(hits, blockEvent(o, p.cfg.Location))
			}
		}
		if len(hits) == 0 {
			continue
		}

		title, ok := titles[b.TaskID]
		if !ok {
			t, err := p.tasks.GetTask(ctx, b.TaskID)
			if err != nil {
				return nil, fmt.Errorf("getting task: %w", err)
			}
			title = t.Title
			titles[b.TaskID] = title
		}
		conflicts = append(conflicts, Conflict{Block: b, TaskTitle: title, Events: hits})
	}
	return conflicts, nil
}
