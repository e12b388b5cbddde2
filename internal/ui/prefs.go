package ui

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/profile"
)

func (a *App) prefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change scheduling preferences",
	}
	cmd.AddCommand(a.prefsShowCmd())
	cmd.AddCommand(a.prefsSetCmd())
	return cmd
}

func (a *App) prefsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current preferences",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			p, err := a.repo.GetPreferences(cmd.Context(), a.userID())
			if err != nil {
				return fmt.Errorf("getting preferences: %w", err)
			}
			printPreferences(a.out, p)
			return nil
		},
	}
}

func (a *App) prefsSetCmd() *cobra.Command {
	var (
		wake    string
		sleep   string
		block   int
		maxDay  int
		commute int
		dinner  string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change preferences",
		Long: `Change the preferences given as flags. Other values stay unchanged.

Pass --dinner="" to drop the dinner block and --max-per-day=0 to remove
the daily study cap.`,
		Example: `  studyplanner prefs set --wake=07:00 --sleep=23:30
  studyplanner prefs set --block=45 --max-per-day=240`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			ctx := cmd.Context()
			p, err := a.repo.GetPreferences(ctx, a.userID())
			if err != nil {
				return fmt.Errorf("getting preferences: %w", err)
			}

			flags := cmd.Flags()
			if !flags.Changed("wake") && !flags.Changed("sleep") && !flags.Changed("block") &&
				!flags.Changed("max-per-day") && !flags.Changed("commute") && !flags.Changed("dinner") {
				return fmt.Errorf("nothing to update")
			}
			if flags.Changed("wake") {
				p.WakeTime = wake
			}
			if flags.Changed("sleep") {
				p.SleepTime = sleep
			}
			if flags.Changed("block") {
				p.StudyBlockLength = block
			}
			if flags.Changed("max-per-day") {
				p.MaxStudyMinutesPerDay = maxDay
			}
			if flags.Changed("commute") {
				p.CommuteDurationMins = commute
			}
			if flags.Changed("dinner") {
				p.DinnerTime = dinner
			}

			if err := a.repo.UpdatePreferences(ctx, p); err != nil {
				return fmt.Errorf("updating preferences: %w", err)
			}
			a.println("Preferences updated.")
			printPreferences(a.out, p)
			return nil
		},
	}

	cmd.Flags().StringVar(&wake, "wake", "", "Wake time HH:MM")
	cmd.Flags().StringVar(&sleep, "sleep", "", "Sleep time HH:MM")
	cmd.Flags().IntVar(&block, "block", 0, "Study block length in minutes")
	cmd.Flags().IntVar(&maxDay, "max-per-day", 0, "Most study minutes per day, 0 for no cap")
	cmd.Flags().IntVar(&commute, "commute", 0, "Commute duration in minutes")
	cmd.Flags().StringVar(&dinner, "dinner", "", "Dinner time HH:MM, empty for none")

	return cmd
}

func printPreferences(w io.Writer, p *profile.Preferences) {
	dinner := p.DinnerTime
	if dinner == "" {
		dinner = "none"
	}
	maxDay := "no cap"
	if p.MaxStudyMinutesPerDay > 0 {
		maxDay = FormatDuration(p.MaxStudyMinutesPerDay)
	}
	fmt.Fprintf(w, "  Awake          %s-%s\n", p.WakeTime, p.SleepTime)
	fmt.Fprintf(w, "  Study block    %s\n", FormatDuration(p.StudyBlockLength))
	fmt.Fprintf(w, "  Daily cap      %s\n", maxDay)
	fmt.Fprintf(w, "  Commute        %s\n", FormatDuration(p.CommuteDurationMins))
	fmt.Fprintf(w, "  Dinner         %s\n", dinner)
}
