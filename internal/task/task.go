// Package task defines the study task and study block domain types.
package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/javiermolinar/studyplanner/internal/apperr"
)

// Validation errors.
var (
	ErrEmptyTitle       = fmt.Errorf("%w: title cannot be empty", apperr.ErrInvalidInput)
	ErrInvalidDuration  = fmt.Errorf("%w: total required time must be positive", apperr.ErrInvalidInput)
	ErrInvalidPriority  = fmt.Errorf("%w: priority must be 'normal' or 'high'", apperr.ErrInvalidInput)
	ErrMissingDeadline  = fmt.Errorf("%w: deadline is required", apperr.ErrInvalidInput)
	ErrEndBeforeStart   = fmt.Errorf("%w: block end must be after start", apperr.ErrInvalidInput)
	ErrNothingToUpdate  = fmt.Errorf("%w: no fields to update", apperr.ErrInvalidInput)
	ErrInvalidStatusArg = fmt.Errorf("%w: unknown status", apperr.ErrInvalidInput)
)

// Domain errors.
var (
	ErrTaskNotFound     = fmt.Errorf("task %w", apperr.ErrNotFound)
	ErrBlockNotFound    = fmt.Errorf("study block %w", apperr.ErrNotFound)
	ErrDeadlinePassed   = fmt.Errorf("%w: deadline passed", apperr.ErrInvalidState)
	ErrAlreadyCompleted = fmt.Errorf("%w: task already completed", apperr.ErrInvalidState)
)

// Status represents the planning state of a task.
type Status string

const (
	StatusPending      Status = "pending"
	StatusScheduled    Status = "scheduled"
	StatusUnderplanned Status = "underplanned"
	StatusCompleted    Status = "completed"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusScheduled, StatusUnderplanned, StatusCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatusArg, s)
	}
}

// Priority orders pending work.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority validates a priority name. Empty means normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
}

// Rank returns a sort key where higher priorities come first.
func (p Priority) Rank() int {
	if p == PriorityHigh {
		return 0
	}
	return 1
}

// Task is a deadline-bound unit of study work.
type Task struct {
	ID                int64
	UserID            int64
	Title             string
	CourseTag         string
	TotalRequiredTime int // minutes
	Deadline          time.Time
	Priority          Priority
	IsCompleted       bool
	ScheduledMinutes  int
	Status            Status
	CreatedAt         time.Time
}

// New creates a pending Task with validation.
func New(userID int64, title, courseTag string, totalMinutes int, deadline time.Time, priority string) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if totalMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	if deadline.IsZero() {
		return nil, ErrMissingDeadline
	}
	p, err := ParsePriority(priority)
	if err != nil {
		return nil, err
	}

	return &Task{
		UserID:            userID,
		Title:             title,
		CourseTag:         strings.TrimSpace(courseTag),
		TotalRequiredTime: totalMinutes,
		Deadline:          deadline,
		Priority:          p,
		Status:            StatusPending,
		CreatedAt:         time.Now(),
	}, nil
}

// RemainingMinutes returns the study time not yet allocated to blocks.
func (t *Task) RemainingMinutes() int {
	return t.TotalRequiredTime - t.ScheduledMinutes
}

// PlannedStatus returns the status after an allocation run that brought the
// task to scheduled minutes.
func (t *Task) PlannedStatus(scheduled int) Status {
	if scheduled >= t.TotalRequiredTime {
		return StatusScheduled
	}
	return StatusUnderplanned
}

// RefreshStatus recomputes the status after an edit of the required time.
func (t *Task) RefreshStatus() {
	switch {
	case t.IsCompleted:
		t.Status = StatusCompleted
	case t.ScheduledMinutes == 0:
		t.Status = StatusPending
	default:
		t.Status = t.PlannedStatus(t.ScheduledMinutes)
	}
}

// Label is the title used for mirrored calendar events.
func (t *Task) Label() string {
	if t.CourseTag == "" {
		return "Study: " + t.Title
	}
	return fmt.Sprintf("Study: %s (%s)", t.Title, t.CourseTag)
}

// IsPending reports whether the task still needs work.
func (t *Task) IsPending() bool {
	return !t.IsCompleted
}

// Update holds optional task edits. Nil fields stay unchanged.
type Update struct {
	Title             *string
	CourseTag         *string
	TotalRequiredTime *int
	Deadline          *time.Time
	Priority          *string
	Status            *string
}

// Apply validates the edits and applies them to t.
func (u Update) Apply(t *Task) error {
	if u == (Update{}) {
		return ErrNothingToUpdate
	}
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return ErrEmptyTitle
		}
		t.Title = title
	}
	if u.CourseTag != nil {
		t.CourseTag = strings.TrimSpace(*u.CourseTag)
	}
	if u.Deadline != nil {
		if u.Deadline.IsZero() {
			return ErrMissingDeadline
		}
		t.Deadline = *u.Deadline
	}
	if u.Priority != nil {
		p, err := ParsePriority(*u.Priority)
		if err != nil {
			return err
		}
		t.Priority = p
	}
	if u.TotalRequiredTime != nil {
		if *u.TotalRequiredTime <= 0 {
			return ErrInvalidDuration
		}
		t.TotalRequiredTime = *u.TotalRequiredTime
		t.RefreshStatus()
	}
	if u.Status != nil {
		st, err := ParseStatus(*u.Status)
		if err != nil {
			return err
		}
		t.Status = st
		t.IsCompleted = st == StatusCompleted
	}
	return nil
}
