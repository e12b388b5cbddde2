package ui

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [task-id]",
		Short: "Delete a task and its study blocks",
		Long: `Delete a task by its ID. Its study blocks are removed as well, and
their calendar events are deleted when the calendar is reachable.

Example:
  studyplanner task delete 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}

			if err := a.planner.DeleteTask(cmd.Context(), id); err != nil {
				return fmt.Errorf("deleting task: %w", err)
			}
			a.printf("Deleted task #%d\n", id)
			return nil
		},
	}
}
