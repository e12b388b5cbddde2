package ui

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/dateutil"
)

func (a *App) moveCmd() *cobra.Command {
	var (
		at    string
		date  string
		start string
	)

	cmd := &cobra.Command{
		Use:   "move <block-id>",
		Short: "Move a study block to a new start time",
		Long: `Move a study block, keeping its duration. The mirrored calendar event
follows when the calendar is reachable.

The move is not checked against busy time. Run 'studyplanner conflicts'
afterwards to see overlaps.`,
		Example: `  studyplanner move 12 --date=2025-03-05 --start=14:00
  studyplanner move 12 --start=18:30  # defaults to today
  studyplanner move 12 --at=2025-03-05T14:00:00+01:00`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			blockID, err := parseID(args[0], "block")
			if err != nil {
				return err
			}

			var newStart time.Time
			switch {
			case at != "":
				newStart, err = dateutil.ParseInstant(at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			case start != "":
				day := dateutil.TruncateToDay(a.planner.Now())
				if date != "" {
					if day, err = a.parseDay(date); err != nil {
						return err
					}
				}
				newStart, err = dateutil.At(day, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
			default:
				return errors.New("either --at or --start is required")
			}

			b, err := a.planner.RescheduleBlock(cmd.Context(), blockID, newStart)
			if err != nil {
				return fmt.Errorf("moving block: %w", err)
			}
			a.printf("Moved block #%d to %s\n", b.ID, FormatSpan(b.Start, b.End, a.planner.Location()))
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "New start as a timestamp with offset")
	cmd.Flags().StringVar(&date, "date", "", "New date (YYYY-MM-DD or weekday, defaults to today)")
	cmd.Flags().StringVar(&start, "start", "", "New start time (HH:MM)")
	cmd.MarkFlagsMutuallyExclusive("at", "start")

	return cmd
}
