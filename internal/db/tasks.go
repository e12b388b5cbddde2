package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/javiermolinar/studyplanner/internal/task"
)

const taskColumns = `
	id, user_id, title, course_tag, total_required_time, deadline, priority,
	is_completed, scheduled_minutes, status, created_at
`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*task.Task, error) {
	var (
		t         task.Task
		deadline  string
		createdAt string
	)
	err := sc.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.CourseTag,
		&t.TotalRequiredTime,
		&deadline,
		&t.Priority,
		&t.IsCompleted,
		&t.ScheduledMinutes,
		&t.Status,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Deadline, err = parseInstant(deadline); err != nil {
		return nil, fmt.Errorf("parsing deadline: %w", err)
	}
	if t.CreatedAt, err = parseInstant(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created at: %w", err)
	}
	return &t, nil
}

// CreateTask adds a new task to the repository.
func (s *SQLite) CreateTask(ctx context.Context, t *task.Task) error {
	query := `
		INSERT INTO tasks (
			user_id, title, course_tag, total_required_time, deadline, priority,
			is_completed, scheduled_minutes, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		t.UserID,
		t.Title,
		t.CourseTag,
		t.TotalRequiredTime,
		formatInstant(t.Deadline),
		t.Priority,
		t.IsCompleted,
		t.ScheduledMinutes,
		t.Status,
		formatInstant(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	t.ID = id

	return nil
}

// GetTask retrieves a task by ID.
func (s *SQLite) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", task.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying task: %w", err)
	}
	return t, nil
}

// ListTasks returns the user's tasks ordered by deadline.
func (s *SQLite) ListTasks(ctx context.Context, userID int64, filter task.ListFilter) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{userID}
	switch {
	case filter.Status != "":
		query += ` AND status = ?`
		args = append(args, filter.Status)
	case !filter.IncludeCompleted:
		query += ` AND is_completed = 0`
	}
	query += ` ORDER BY deadline, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask persists the editable fields and status of a task.
// ScheduledMinutes is owned by AllocateBlocks and is not written here.
func (s *SQLite) UpdateTask(ctx context.Context, t *task.Task) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, course_tag = ?, total_required_time = ?, deadline = ?, priority = ?,
		    is_completed = ?, status = ?
		WHERE id = ?
	`,
		t.Title,
		t.CourseTag,
		t.TotalRequiredTime,
		formatInstant(t.Deadline),
		t.Priority,
		t.IsCompleted,
		t.Status,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	return expectRow(result, fmt.Errorf("%w: %d", task.ErrTaskNotFound, t.ID))
}

// CompleteTask marks a task as completed.
func (s *SQLite) CompleteTask(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET is_completed = 1, status = ? WHERE id = ?`, task.StatusCompleted, id)
	if err != nil {
		return fmt.Errorf("completing task: %w", err)
	}
	return expectRow(result, fmt.Errorf("%w: %d", task.ErrTaskNotFound, id))
}

// DeleteTask removes a task; its study blocks go with it.
func (s *SQLite) DeleteTask(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	return expectRow(result, fmt.Errorf("%w: %d", task.ErrTaskNotFound, id))
}

// AllocateBlocks inserts blocks and records the task's progress in one transaction.
func (s *SQLite) AllocateBlocks(ctx context.Context, taskID int64, blocks []*task.StudyBlock, status task.Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE tasks SET scheduled_minutes = scheduled_minutes + ?, status = ? WHERE id = ?`,
		task.TotalMinutes(blocks), status, taskID,
	)
	if err != nil {
		return fmt.Errorf("updating task progress: %w", err)
	}
	if err := expectRow(result, fmt.Errorf("%w: %d", task.ErrTaskNotFound, taskID)); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO study_blocks (task_id, start_time, end_time, external_event_id)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, b := range blocks {
		b.TaskID = taskID
		result, err := stmt.ExecContext(ctx, taskID, formatInstant(b.Start), formatInstant(b.End), b.ExternalEventID)
		if err != nil {
			return fmt.Errorf("inserting block at %s: %w", b.Start.Format(time.RFC3339), err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting last insert id: %w", err)
		}
		b.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

const blockColumns = `b.id, b.task_id, b.start_time, b.end_time, b.external_event_id`

func scanBlock(sc scanner) (*task.StudyBlock, error) {
	var (
		b          task.StudyBlock
		start, end string
	)
	if err := sc.Scan(&b.ID, &b.TaskID, &start, &end, &b.ExternalEventID); err != nil {
		return nil, err
	}
	var err error
	if b.Start, err = parseInstant(start); err != nil {
		return nil, fmt.Errorf("parsing block start: %w", err)
	}
	if b.End, err = parseInstant(end); err != nil {
		return nil, fmt.Errorf("parsing block end: %w", err)
	}
	return &b, nil
}

// GetBlock retrieves a study block by ID.
func (s *SQLite) GetBlock(ctx context.Context, id int64) (*task.StudyBlock, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM study_blocks b WHERE b.id = ?`, id)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", task.ErrBlockNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying block: %w", err)
	}
	return b, nil
}

// UpdateBlockTimes moves a study block.
func (s *SQLite) UpdateBlockTimes(ctx context.Context, id int64, start, end time.Time) error {
	if !end.After(start) {
		return task.ErrEndBeforeStart
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE study_blocks SET start_time = ?, end_time = ? WHERE id = ?`,
		formatInstant(start), formatInstant(end), id,
	)
	if err != nil {
		return fmt.Errorf("updating block times: %w", err)
	}
	return expectRow(result, fmt.Errorf("%w: %d", task.ErrBlockNotFound, id))
}

// SetBlockExternalID records the external calendar mirror of a block.
func (s *SQLite) SetBlockExternalID(ctx context.Context, id int64, externalID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE study_blocks SET external_event_id = ? WHERE id = ?`, externalID, id)
	if err != nil {
		return fmt.Errorf("updating block mirror: %w", err)
	}
	return expectRow(result, fmt.Errorf("%w: %d", task.ErrBlockNotFound, id))
}

// ListBlocksByTask returns a task's blocks ordered by start.
func (s *SQLite) ListBlocksByTask(ctx context.Context, taskID int64) ([]*task.StudyBlock, error) {
	return s.queryBlocks(ctx, `
		SELECT `+blockColumns+`
		FROM study_blocks b
		WHERE b.task_id = ?
		ORDER BY b.start_time, b.id
	`, taskID)
}

// ListBlocksByUser returns the user's blocks overlapping [from, to), ordered by start.
func (s *SQLite) ListBlocksByUser(ctx context.Context, userID int64, from, to time.Time) ([]*task.StudyBlock, error) {
	return s.queryBlocks(ctx, `
		SELECT `+blockColumns+`
		FROM study_blocks b
		JOIN tasks t ON t.id = b.task_id
		WHERE t.user_id = ? AND b.end_time > ? AND b.start_time < ?
		ORDER BY b.start_time, b.id
	`, userID, formatInstant(from), formatInstant(to))
}

// ListFutureBlocks returns the user's blocks starting at or after now, ordered by start.
func (s *SQLite) ListFutureBlocks(ctx context.Context, userID int64, now time.Time) ([]*task.StudyBlock, error) {
	return s.queryBlocks(ctx, `
		SELECT `+blockColumns+`
		FROM study_blocks b
		JOIN tasks t ON t.id = b.task_id
		WHERE t.user_id = ? AND b.start_time >= ?
		ORDER BY b.start_time, b.id
	`, userID, formatInstant(now))
}

func (s *SQLite) queryBlocks(ctx context.Context, query string, args ...any) ([]*task.StudyBlock, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying blocks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var blocks []*task.StudyBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning block: %w", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating blocks: %w", err)
	}
	return blocks, nil
}
