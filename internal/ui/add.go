package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/task"
)

func (a *App) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage study tasks",
	}
	cmd.AddCommand(a.taskAddCmd())
	cmd.AddCommand(a.taskUpdateCmd())
	cmd.AddCommand(a.taskListCmd())
	cmd.AddCommand(a.taskShowCmd())
	cmd.AddCommand(a.taskDoneCmd())
	cmd.AddCommand(a.taskDeleteCmd())
	return cmd
}

func (a *App) taskAddCmd() *cobra.Command {
	var (
		course   string
		minutes  int
		deadline string
		priority string
		plan     bool
	)

	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a new study task",
		Long: `Add a study task with the total time it needs and a deadline.

The deadline is a date (covering the whole day), a weekday name, or a
timestamp with offset.`,
		Example: `  studyplanner task add "Linear algebra problem set" --minutes=200 --deadline=friday --course=MATH201
  studyplanner task add "Essay draft" --minutes=150 --deadline=2025-03-07T17:00:00+01:00 --priority=high --plan`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			due, err := a.parseDeadline(deadline)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			t, err := a.planner.AddTask(ctx, a.userID(), args[0], course, minutes, due, priority)
			if err != nil {
				return fmt.Errorf("creating task: %w", err)
			}
			a.printf("Created task #%d: %s (%s, due %s)\n",
				t.ID, t.Title, FormatDuration(t.TotalRequiredTime),
				t.Deadline.In(a.planner.Location()).Format(dayLayout+" "+clockLayout))

			if !plan {
				return nil
			}
			res, err := a.planner.ScheduleTask(ctx, t.ID)
			if err != nil {
				return fmt.Errorf("planning task: %w", err)
			}
			a.displayPlanResult(t, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&course, "course", "", "Course code or name")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "Total study time needed in minutes (required)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "Deadline: YYYY-MM-DD, weekday, or timestamp with offset (required)")
	cmd.Flags().StringVar(&priority, "priority", "normal", "Priority: normal or high")
	cmd.Flags().BoolVar(&plan, "plan", false, "Plan study blocks right away")

	_ = cmd.MarkFlagRequired("minutes")
	_ = cmd.MarkFlagRequired("deadline")

	return cmd
}

func (a *App) taskUpdateCmd() *cobra.Command {
	var (
		title    string
		course   string
		minutes  int
		deadline string
		priority string
		status   string
	)

	cmd := &cobra.Command{
		Use:   "update [task-id]",
		Short: "Edit a study task",
		Long: `Edit the fields given as flags. Other fields stay unchanged.

Changing the total time recomputes the status from the minutes already
planned. Existing study blocks are kept.`,
		Example: `  studyplanner task update 3 --minutes=300
  studyplanner task update 3 --deadline=2025-03-10 --priority=high`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}

			var u task.Update
			flags := cmd.Flags()
			if flags.Changed("title") {
				u.Title = &title
			}
			if flags.Changed("course") {
				u.CourseTag = &course
			}
			if flags.Changed("minutes") {
				u.TotalRequiredTime = &minutes
			}
			if flags.Changed("deadline") {
				due, err := a.parseDeadline(deadline)
				if err != nil {
					return err
				}
				u.Deadline = &due
			}
			if flags.Changed("priority") {
				u.Priority = &priority
			}
			if flags.Changed("status") {
				u.Status = &status
			}

			t, err := a.planner.UpdateTask(cmd.Context(), id, u)
			if err != nil {
				return fmt.Errorf("updating task: %w", err)
			}
			a.printf("Updated task #%d\n", t.ID)
			printTaskRow(a.out, t, a.planner.Location())
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&course, "course", "", "New course tag")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "New total study time in minutes")
	cmd.Flags().StringVar(&deadline, "deadline", "", "New deadline")
	cmd.Flags().StringVar(&priority, "priority", "", "New priority: normal or high")
	cmd.Flags().StringVar(&status, "status", "", "New status: pending, scheduled, underplanned or completed")

	return cmd
}

// parseDeadline accepts a timestamp with offset, a date or a relative date.
// Dates resolve to the end of that day in the planning zone.
func (a *App) parseDeadline(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	loc := a.planner.Location()
	t, err := dateutil.ParseBoundary(s, loc, true)
	if err == nil {
		return t, nil
	}
	// Timestamps never fall back to relative dates.
	if strings.ContainsAny(s, "T:") {
		return time.Time{}, fmt.Errorf("invalid deadline: %w", err)
	}
	day, err := dateutil.ParseRelativeDate(s, a.planner.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline: %w", err)
	}
	return dateutil.NextDay(day), nil
}

// parseDay accepts a date or a relative date and returns midnight in the
// planning zone. Empty means today. Past dates are allowed.
func (a *App) parseDay(s string) (time.Time, error) {
	loc := a.planner.Location()
	if d, err := dateutil.ParseDate(strings.TrimSpace(s), loc); err == nil {
		return d, nil
	}
	d, err := dateutil.ParseRelativeDate(s, a.planner.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID %q", what, s)
	}
	return id, nil
}
