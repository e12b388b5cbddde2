package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/planner"
)

func (a *App) conflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List future study blocks that overlap busy time",
		Long: `Check every future study block against the calendar, fixed commitments
and routine. A block's own calendar mirror never counts as a conflict.

Move a conflicting block with 'studyplanner move'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			conflicts, err := a.planner.CheckConflicts(cmd.Context(), a.userID())
			if err != nil {
				return fmt.Errorf("checking conflicts: %w", err)
			}
			if len(conflicts) == 0 {
				a.println("No conflicts.")
				return nil
			}
			printConflicts(a.out, conflicts, a.planner.Location())
			a.println()
			a.println(formatWarn(fmt.Sprintf("%d conflicting blocks", len(conflicts))))
			return nil
		},
	}
}

func printConflicts(w io.Writer, conflicts []planner.Conflict, loc *time.Location) {
	for _, c := range conflicts {
		printBlockRow(w, c.Block, c.TaskTitle, loc)
		for _, e := range c.Events {
			fmt.Fprintf(w, "    %s ", formatWarn("overlaps"))
			printEventRow(w, e, loc)
		}
	}
}
