package task

import (
	"context"
	"time"
)

// ListFilter narrows ListTasks.
type ListFilter struct {
	// Status restricts results to one status. Empty means any.
	Status Status
	// IncludeCompleted keeps completed tasks when Status is empty.
	IncludeCompleted bool
}

// Repository defines the storage interface for tasks and study blocks.
type Repository interface {
	// CreateTask adds a new task to the repository.
	CreateTask(ctx context.Context, t *Task) error

	// GetTask retrieves a task by ID. Returns ErrTaskNotFound if missing.
	GetTask(ctx context.Context, id int64) (*Task, error)

	// ListTasks returns the user's tasks ordered by deadline.
	ListTasks(ctx context.Context, userID int64, filter ListFilter) ([]*Task, error)

	// UpdateTask persists the editable fields and status of a task.
	UpdateTask(ctx context.Context, t *Task) error

	// CompleteTask marks a task as completed.
	CompleteTask(ctx context.Context, id int64) error

	// DeleteTask removes a task and, by cascade, its study blocks.
	DeleteTask(ctx context.Context, id int64) error

	// AllocateBlocks atomically inserts blocks for a task and records the progress:
	// ScheduledMinutes grows by the blocks' total and Status is set to status.
	AllocateBlocks(ctx context.Context, taskID int64, blocks []*StudyBlock, status Status) error

	// GetBlock retrieves a study block by ID. Returns ErrBlockNotFound if missing.
	GetBlock(ctx context.Context, id int64) (*StudyBlock, error)

	// UpdateBlockTimes moves a study block.
	UpdateBlockTimes(ctx context.Context, id int64, start, end time.Time) error

	// SetBlockExternalID records the external calendar mirror of a block.
	SetBlockExternalID(ctx context.Context, id int64, externalID string) error

	// ListBlocksByTask returns a task's blocks ordered by start.
	ListBlocksByTask(ctx context.Context, taskID int64) ([]*StudyBlock, error)

	// ListBlocksByUser returns the user's blocks overlapping [from, to), ordered by start.
	ListBlocksByUser(ctx context.Context, userID int64, from, to time.Time) ([]*StudyBlock, error)

	// ListFutureBlocks returns the user's blocks starting at or after now, ordered by start.
	ListFutureBlocks(ctx context.Context, userID int64, now time.Time) ([]*StudyBlock, error)
}
