package ui

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) taskDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done [task-id]",
		Short: "Mark a task as completed",
		Long: `Mark a task as completed. Its study blocks stay on the calendar.

Example:
  studyplanner task done 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}

			if err := a.planner.CompleteTask(cmd.Context(), id); err != nil {
				return fmt.Errorf("completing task: %w", err)
			}
			a.printf("Completed task #%d\n", id)
			return nil
		},
	}
}
