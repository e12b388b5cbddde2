package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/scheduler"
	"github.com/javiermolinar/studyplanner/internal/task"
)

func (a *App) scheduleCmd() *cobra.Command {
	var (
		from string
		days int
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show busy time and study blocks for the coming days",
		Long: `Display the aggregated schedule: calendar events, fixed commitments,
commute, dinner and study blocks, grouped by day.

Study blocks that never reached the calendar are listed as well.`,
		Example: `  studyplanner schedule
  studyplanner schedule --from=monday --days=5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			start := dateutil.TruncateToDay(a.planner.Now())
			if from != "" {
				var err error
				if start, err = a.parseDay(from); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			events, err := a.planner.Schedule(ctx, a.userID(), start, days)
			if err != nil {
				return fmt.Errorf("building schedule: %w", err)
			}
			blocks, err := a.repo.ListBlocksByUser(ctx, a.userID(), start, start.AddDate(0, 0, days))
			if err != nil {
				return fmt.Errorf("listing blocks: %w", err)
			}
			events = append(events, localBlockEvents(blocks)...)
			slices.SortStableFunc(events, func(x, y scheduler.NormalizedEvent) int { return x.Start.Compare(y.Start) })

			if len(events) == 0 {
				a.println("Nothing scheduled.")
				return nil
			}
			a.printScheduleTable(events)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD or weekday, defaults to today)")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to show")
	return cmd
}

// localBlockEvents turns study blocks without a calendar mirror into events.
// Mirrored blocks already come back from the calendar.
func localBlockEvents(blocks []*task.StudyBlock) []scheduler.NormalizedEvent {
	var out []scheduler.NormalizedEvent
	for _, b := range blocks {
		if b.IsMirrored() {
			continue
		}
		out = append(out, scheduler.NormalizedEvent{
			Title:  fmt.Sprintf("Study block #%d", b.ID),
			Start:  b.Start,
			End:    b.End,
			Source: scheduler.SourceStudyBlock,
		})
	}
	return out
}

func (a *App) printScheduleTable(events []scheduler.NormalizedEvent) {
	loc := a.planner.Location()
	var (
		currentDate string
		busy        time.Duration
	)
	for _, e := range events {
		date := dateutil.DateKey(e.Start.In(loc))

		// Print day header if new day
		if date != currentDate {
			if currentDate != "" {
				a.println()
			}
			a.printf("  %s\n", formatHeader(e.Start.In(loc).Format("Monday, January 2")))
			currentDate = date
		}
		printEventRow(a.out, e, loc)
		busy += e.Duration()
	}

	a.println(strings.Repeat("─", 60))
	a.printf("  %d entries | %s busy\n", len(events), formatStats(FormatDuration(int(busy.Minutes()))))
}
