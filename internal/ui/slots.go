package ui

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/planner"
)

// window resolves --from and --days to [start, end) in the planning zone.
func (a *App) window(from string, days int) (time.Time, time.Time, error) {
	if days <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("--days must be positive")
	}
	start := dateutil.TruncateToDay(a.planner.Now())
	if from != "" {
		var err error
		if start, err = a.parseDay(from); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return start, start.AddDate(0, 0, days), nil
}

func (a *App) slotsCmd() *cobra.Command {
	var (
		from    string
		days    int
		minimum int
	)

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show free time",
		Long: `List the free gaps between busy events within awake hours. Time before
now is never free.`,
		Example: `  studyplanner slots
  studyplanner slots --from=monday --days=5 --min=60`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			start, end, err := a.window(from, days)
			if err != nil {
				return err
			}

			free, err := a.planner.FindFreeSlots(cmd.Context(), a.userID(), start, end, time.Duration(minimum)*time.Minute)
			if err != nil {
				return fmt.Errorf("finding free slots: %w", err)
			}
			if len(free.Slots) == 0 {
				a.println("No free time in this window.")
				return nil
			}

			loc := a.planner.Location()
			for _, g := range free.Slots {
				printGapRow(a.out, g, loc)
			}
			a.println()
			a.printf("%d slots | %s free | awake %s-%s\n", len(free.Slots),
				formatStats(FormatDuration(free.TotalFreeMinutes)), free.WakeTime, free.SleepTime)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD or weekday, defaults to today)")
	cmd.Flags().IntVar(&days, "days", 1, "Number of days to search")
	cmd.Flags().IntVar(&minimum, "min", 30, "Shortest slot to show in minutes")

	return cmd
}

func (a *App) suggestCmd() *cobra.Command {
	var (
		from    string
		days    int
		minutes int
		prefer  string
	)

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest times for a study session",
		Long: `Rank free slots that fit a session of the given length. Slots starting
in the preferred part of the day come first (morning 06-12, afternoon
12-17, evening 17-22), then the earliest. At most three are shown.`,
		Example: `  studyplanner suggest --minutes=90 --prefer=morning
  studyplanner suggest --minutes=45 --from=tomorrow --days=3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			start, end, err := a.window(from, days)
			if err != nil {
				return err
			}

			suggestions, err := a.planner.SuggestStudyTime(cmd.Context(), a.userID(), start, end,
				time.Duration(minutes)*time.Minute, prefer)
			if err != nil {
				return fmt.Errorf("suggesting study time: %w", err)
			}
			if len(suggestions) == 0 {
				a.println("No free slot fits this session.")
				return nil
			}

			loc := a.planner.Location()
			for i, s := range suggestions {
				a.printf("  %d. %s\n", i+1, formatStudy(FormatSpan(s.Start, s.End, loc)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD or weekday, defaults to today)")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to search")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "Session length in minutes (required)")
	cmd.Flags().StringVar(&prefer, "prefer", planner.PartAny, "Preferred part of day: morning, afternoon, evening or any")

	_ = cmd.MarkFlagRequired("minutes")

	return cmd
}
