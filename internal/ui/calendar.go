package ui

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/calendar/google"
	"github.com/javiermolinar/studyplanner/internal/dateutil"
)

func (a *App) calendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Manage the linked Google Calendar",
	}
	cmd.AddCommand(a.calendarStatusCmd())
	cmd.AddCommand(a.calendarLinkCmd())
	cmd.AddCommand(a.calendarUnlinkCmd())
	cmd.AddCommand(a.calendarCreateCmd())
	cmd.AddCommand(a.calendarDeleteCmd())
	return cmd
}

func (a *App) calendarStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a calendar is linked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			u, err := a.repo.GetUser(cmd.Context(), a.userID())
			if err != nil {
				return fmt.Errorf("getting user: %w", err)
			}
			switch {
			case !a.config.Calendar.Enabled:
				a.println("Calendar sync is disabled in the config.")
			case u.HasCalendar():
				a.printf("Linked to calendar %q.\n", a.config.Calendar.CalendarID)
			default:
				a.println("No calendar linked. Run 'studyplanner calendar link <token-file>'.")
			}
			return nil
		},
	}
}

func (a *App) calendarLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link [token-file]",
		Short: "Link a calendar using an OAuth token file",
		Long: `Store an OAuth token for the configured Google client. The file holds
the JSON token written by any OAuth tool for the same client credentials
and must include a refresh token.

Refreshed tokens are persisted automatically afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			path, err := resolvePath(args[0])
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading token file: %w", err)
			}
			token, err := google.ParseToken(raw)
			if err != nil {
				return err
			}
			if err := a.repo.SetCalendarToken(cmd.Context(), a.userID(), token); err != nil {
				return fmt.Errorf("storing token: %w", err)
			}
			a.println("Calendar linked.")
			if !a.config.Calendar.Enabled {
				a.println(formatWarn("Calendar sync is disabled; set [calendar] enabled = true to use it."))
			}
			return nil
		},
	}
}

func (a *App) calendarUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink",
		Short: "Forget the stored calendar token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			if err := a.repo.SetCalendarToken(cmd.Context(), a.userID(), ""); err != nil {
				return fmt.Errorf("removing token: %w", err)
			}
			a.println("Calendar unlinked.")
			return nil
		},
	}
}

func (a *App) calendarCreateCmd() *cobra.Command {
	var (
		date  string
		start string
		end   string
		split bool
	)

	cmd := &cobra.Command{
		Use:   "create [title]",
		Short: "Create an event directly on the calendar",
		Long: `Create an event on the linked calendar without a task behind it.

With --split a span longer than one study block becomes several blocks
separated by breaks. A trailing remainder shorter than the minimum block
is dropped.`,
		Example: `  studyplanner calendar create "Revision" --date=saturday --start=09:00 --end=12:00 --split`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			day := dateutil.TruncateToDay(a.planner.Now())
			if date != "" {
				var err error
				if day, err = a.parseDay(date); err != nil {
					return err
				}
			}
			from, err := dateutil.At(day, start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			to, err := dateutil.At(day, end)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			created, err := a.planner.CreateCalendarEvent(cmd.Context(), a.userID(), args[0], from, to, split)
			loc := a.planner.Location()
			for _, e := range created {
				a.printf("  %s  %s\n", formatStudy(FormatSpan(e.Start, e.End, loc)), e.Title)
			}
			if err != nil {
				return fmt.Errorf("creating events: %w", err)
			}
			a.printf("Created %d events\n", len(created))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD or weekday, defaults to today)")
	cmd.Flags().StringVar(&start, "start", "", "Start time HH:MM (required)")
	cmd.Flags().StringVar(&end, "end", "", "End time HH:MM (required)")
	cmd.Flags().BoolVar(&split, "split", false, "Split into study blocks with breaks")

	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func (a *App) calendarDeleteCmd() *cobra.Command {
	var (
		from string
		days int
	)

	cmd := &cobra.Command{
		Use:   "delete [title-contains]",
		Short: "Delete calendar events whose title matches",
		Long: `Delete every event in the window whose title contains the text,
ignoring case. Events that fail to delete are skipped.`,
		Example: `  studyplanner calendar delete "revision" --days=14`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			deleted, err := a.planner.DeleteEventsByTitle(cmd.Context(), a.userID(), args[0], start, start.AddDate(0, 0, days))
			if err != nil {
				return fmt.Errorf("deleting events: %w", err)
			}
			loc := a.planner.Location()
			for _, e := range deleted {
				span := e.StartDate
				if !e.AllDay {
					span = FormatSpan(e.Start, e.End, loc)
				}
				a.printf("  %s  %s\n", formatMuted(span), e.Title)
			}
			a.printf("Deleted %d events\n", len(deleted))
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD or weekday, defaults to today)")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to search")

	return cmd
}
