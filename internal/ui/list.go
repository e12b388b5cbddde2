package ui

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/task"
)

func (a *App) taskListCmd() *cobra.Command {
	var (
		status string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List study tasks",
		Long: `List study tasks ordered by deadline.

Completed tasks are hidden unless --all or --status=completed is given.`,
		Example: `  studyplanner task list
  studyplanner task list --status=underplanned
  studyplanner task list --all`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}

			filter := task.ListFilter{IncludeCompleted: all}
			if status != "" {
				st, err := task.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = st
			}

			tasks, err := a.repo.ListTasks(cmd.Context(), a.userID(), filter)
			if err != nil {
				return fmt.Errorf("listing tasks: %w", err)
			}
			if len(tasks) == 0 {
				a.println("No tasks found.")
				return nil
			}

			loc := a.planner.Location()
			pending := 0
			for _, t := range tasks {
				printTaskRow(a.out, t, loc)
				if t.IsPending() {
					pending += t.RemainingMinutes()
				}
			}
			a.println()
			a.printf("%d tasks | %s still to plan\n", len(tasks), formatStats(FormatDuration(pending)))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only tasks with this status")
	cmd.Flags().BoolVar(&all, "all", false, "Include completed tasks")

	return cmd
}

func (a *App) taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [task-id]",
		Short: "Show a task and its study blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			t, err := a.repo.GetTask(ctx, id)
			if err != nil {
				return fmt.Errorf("getting task: %w", err)
			}
			blocks, err := a.repo.ListBlocksByTask(ctx, id)
			if err != nil {
				return fmt.Errorf("listing blocks: %w", err)
			}

			loc := a.planner.Location()
			printTaskRow(a.out, t, loc)
			if len(blocks) == 0 {
				a.println(formatMuted("  No study blocks yet. Run 'studyplanner plan " + args[0] + "'."))
				return nil
			}
			a.println()
			for _, b := range blocks {
				printBlockRow(a.out, b, t.Title, loc)
			}
			return nil
		},
	}
}
