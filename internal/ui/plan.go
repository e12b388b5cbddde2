package ui

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/planner"
	"github.com/javiermolinar/studyplanner/internal/task"
)

func (a *App) planCmd() *cobra.Command {
	var underplanned bool

	cmd := &cobra.Command{
		Use:   "plan [task-id]",
		Short: "Allocate study blocks for a task",
		Long: `Carve study blocks out of the free time between now and the task's
deadline, first fit in chronological order, and mirror them onto the
linked calendar.

Running plan again only fills the minutes still missing. With
--underplanned every underplanned task is retried, nearest deadline first.

Examples:
  studyplanner plan 3
  studyplanner plan --underplanned`,
		Args: func(cmd *cobra.Command, args []string) error {
			if underplanned {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			ctx := cmd.Context()

			if underplanned {
				results, err := a.planner.ReplanUnderplanned(ctx, a.userID())
				if err != nil {
					return fmt.Errorf("replanning tasks: %w", err)
				}
				if len(results) == 0 {
					a.println("No underplanned tasks.")
					return nil
				}
				for _, res := range results {
					t, err := a.repo.GetTask(ctx, res.TaskID)
					if err != nil {
						return fmt.Errorf("getting task: %w", err)
					}
					a.displayPlanResult(t, res)
				}
				return nil
			}

			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			res, err := a.planner.ScheduleTask(ctx, id)
			if err != nil {
				return fmt.Errorf("planning task: %w", err)
			}
			t, err := a.repo.GetTask(ctx, id)
			if err != nil {
				return fmt.Errorf("getting task: %w", err)
			}
			a.displayPlanResult(t, res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&underplanned, "underplanned", false, "Replan every underplanned task")

	return cmd
}

// displayPlanResult prints the blocks one allocation run created.
func (a *App) displayPlanResult(t *task.Task, res *planner.ScheduleResult) {
	loc := a.planner.Location()

	a.println()
	a.println(formatHeader(fmt.Sprintf("Task #%d: %s", t.ID, t.Title)))
	if res.BlocksCreated == 0 {
		a.println(formatMuted("  No free time left before the deadline."))
	}
	for _, b := range res.Blocks {
		printBlockRow(a.out, b, t.Title, loc)
	}

	summary := fmt.Sprintf("%d blocks | %s planned", res.BlocksCreated, FormatDuration(res.ScheduledMinutes))
	if res.BlocksCreated > 0 && res.Mirrored < res.BlocksCreated {
		summary += fmt.Sprintf(" | %d not synced", res.BlocksCreated-res.Mirrored)
	}
	a.printf("  %s\n", formatStats(summary))

	if res.Status == task.StatusUnderplanned {
		a.printf("  %s\n", formatWarn(fmt.Sprintf("Underplanned: %s still missing before %s",
			FormatDuration(t.RemainingMinutes()),
			t.Deadline.In(loc).Format(dayLayout+" "+clockLayout))))
	}
	if res.ShortRemainder > 0 {
		a.printf("  %s\n", formatMuted(fmt.Sprintf("Remainder of %s is below the block length and is not planned",
			FormatDuration(res.ShortRemainder))))
	}
}
