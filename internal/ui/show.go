package ui

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/summary"
)

func (a *App) todayCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "today",
		Short: "Show today's schedule and the most urgent tasks",
		Long: `Display one day's busy time and study blocks, plus the pending tasks
that need attention first: high priority, then nearest deadline.`,
		Example: `  studyplanner today
  studyplanner today --date=tomorrow`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			day := a.planner.Now()
			if date != "" {
				var err error
				if day, err = a.parseDay(date); err != nil {
					return err
				}
			}

			o, err := summary.BuildDayOverview(cmd.Context(), a.planner, a.repo, summary.BuildDayOverviewOptions{
				UserID: a.userID(),
				Date:   day,
			})
			if err != nil {
				return fmt.Errorf("building overview: %w", err)
			}
			a.printOverview(o)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day to show (YYYY-MM-DD or weekday, defaults to today)")
	return cmd
}

func (a *App) printOverview(o *summary.DayOverview) {
	loc := a.planner.Location()

	a.printf("=== %s ===\n\n", formatHeader(o.Date.Format("Monday, January 2, 2006")))

	if len(o.Events) == 0 {
		a.println(formatMuted("  Nothing scheduled."))
	}
	for _, e := range o.Events {
		printEventRow(a.out, e, loc)
	}
	for _, b := range o.Blocks {
		if !b.IsMirrored() {
			printBlockRow(a.out, b, fmt.Sprintf("task #%d", b.TaskID), loc)
		}
	}

	a.println()
	a.printf("Study today: %s | Pending tasks: %d\n",
		formatStats(FormatDuration(o.StudyMinutes)), o.PendingCount)

	if len(o.Top) == 0 {
		return
	}
	a.println()
	a.println(formatHeader("Up next"))
	for _, t := range o.Top {
		printTaskRow(a.out, t, loc)
	}
}
