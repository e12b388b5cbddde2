package ui

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/profile"
)

// overrideLookaheadDays is the window listed when no date is given.
const overrideLookaheadDays = 14

func (a *App) overrideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Adjust the routine for a single date",
		Long: `Daily overrides change the derived schedule for one date only.

Types:
  departure_time  HH:MM   leave for campus at this time
  return_time     HH:MM   come home at this time
  skip_commute    true    no commute legs that day
  skip_dinner     true    no dinner block that day
  custom_wake     HH:MM   wake up at this time`,
	}
	cmd.AddCommand(a.overrideSetCmd())
	cmd.AddCommand(a.overrideListCmd())
	cmd.AddCommand(a.overrideClearCmd())
	return cmd
}

func (a *App) overrideSetCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "set [date] [type] [value]",
		Short: "Set an override for a date",
		Example: `  studyplanner override set tomorrow skip_dinner true
  studyplanner override set 2025-03-05 departure_time 07:15 --note="early lab"`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			day, err := a.parseDay(args[0])
			if err != nil {
				return err
			}
			o, err := profile.NewDailyOverride(a.userID(), dateutil.DateKey(day), args[1], args[2], note)
			if err != nil {
				return err
			}
			if err := a.repo.SetOverride(cmd.Context(), o); err != nil {
				return fmt.Errorf("setting override: %w", err)
			}
			a.printf("Set %s=%s on %s\n", o.Type, o.Value, o.Date)
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "Free-form note")
	return cmd
}

func (a *App) overrideListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [date]",
		Short: "List overrides for a date, or the next two weeks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			from := dateutil.TruncateToDay(a.planner.Now())
			to := from.AddDate(0, 0, overrideLookaheadDays)
			if len(args) == 1 {
				day, err := a.parseDay(args[0])
				if err != nil {
					return err
				}
				from, to = day, day
			}

			list, err := a.repo.ListOverrides(cmd.Context(), a.userID(), from, to)
			if err != nil {
				return fmt.Errorf("listing overrides: %w", err)
			}
			if len(list) == 0 {
				a.println("No overrides.")
				return nil
			}
			for _, o := range list {
				line := fmt.Sprintf("  %s  %-15s %s", o.Date, o.Type, o.Value)
				if o.Note != "" {
					line += "  " + formatMuted(o.Note)
				}
				a.println(line)
			}
			return nil
		},
	}
}

func (a *App) overrideClearCmd() *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "clear [date]",
		Short: "Remove one override type, or every override, for a date",
		Example: `  studyplanner override clear tomorrow
  studyplanner override clear 2025-03-05 --type=skip_dinner`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			day, err := a.parseDay(args[0])
			if err != nil {
				return err
			}
			date := dateutil.DateKey(day)

			var removed int
			if strings.TrimSpace(typ) == "" {
				removed, err = a.repo.ClearOverrides(cmd.Context(), a.userID(), date)
			} else {
				t, perr := profile.ParseOverrideType(typ)
				if perr != nil {
					return perr
				}
				removed, err = a.repo.DeleteOverride(cmd.Context(), a.userID(), date, t)
			}
			if err != nil {
				return fmt.Errorf("clearing overrides: %w", err)
			}
			a.printf("Removed %d overrides on %s\n", removed, date)
			return nil
		},
	}

	cmd.Flags().StringVar(&typ, "type", "", "Only remove this override type")
	return cmd
}
