package ui

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/profile"
)

func (a *App) fixedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixed",
		Short: "Manage weekly commitments",
		Long: `Fixed commitments are weekly recurring blocks such as lectures or
shifts. University and work commitments also schedule the commute around
them.`,
	}
	cmd.AddCommand(a.fixedAddCmd())
	cmd.AddCommand(a.fixedListCmd())
	cmd.AddCommand(a.fixedDeleteCmd())
	cmd.AddCommand(a.fixedImportCmd())
	return cmd
}

func (a *App) fixedAddCmd() *cobra.Command {
	var (
		category string
		day      string
		start    string
		end      string
	)

	cmd := &cobra.Command{
		Use:     "add [title]",
		Short:   "Add a weekly commitment",
		Example: `  studyplanner fixed add "Physics lecture" --category=university --day=tuesday --start=10:00 --end=12:00`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			fs, err := profile.NewFixedSchedule(a.userID(), args[0], category, day, start, end)
			if err != nil {
				return err
			}
			if err := a.repo.CreateFixedSchedule(cmd.Context(), fs); err != nil {
				return fmt.Errorf("creating commitment: %w", err)
			}
			a.printf("Created commitment #%d: %s %s %s-%s\n", fs.ID, fs.Title, fs.DayOfWeek, fs.StartTime, fs.EndTime)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "other", "Category: university, work or other")
	cmd.Flags().StringVar(&day, "day", "", "Day of week (required)")
	cmd.Flags().StringVar(&start, "start", "", "Start time HH:MM (required)")
	cmd.Flags().StringVar(&end, "end", "", "End time HH:MM (required)")

	_ = cmd.MarkFlagRequired("day")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func (a *App) fixedListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List weekly commitments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			list, err := a.repo.ListFixedSchedules(cmd.Context(), a.userID())
			if err != nil {
				return fmt.Errorf("listing commitments: %w", err)
			}
			if len(list) == 0 {
				a.println("No weekly commitments.")
				return nil
			}

			var current string
			for _, fs := range list {
				if day := fs.DayOfWeek.String(); day != current {
					a.printf("  %s\n", formatHeader(day))
					current = day
				}
				commute := ""
				if fs.Category.IsCampus() {
					commute = formatMuted(" +commute")
				}
				a.printf("    #%-4d %s-%s  %s %s%s\n", fs.ID, fs.StartTime, fs.EndTime,
					fs.Title, formatMuted("("+string(fs.Category)+")"), commute)
			}
			return nil
		},
	}
}

func (a *App) fixedDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a weekly commitment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureRepo(); err != nil {
				return err
			}
			id, err := parseID(args[0], "commitment")
			if err != nil {
				return err
			}
			if err := a.repo.DeleteFixedSchedule(cmd.Context(), a.userID(), id); err != nil {
				return fmt.Errorf("deleting commitment: %w", err)
			}
			a.printf("Deleted commitment #%d\n", id)
			return nil
		},
	}
}
