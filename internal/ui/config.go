package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/config"
)

func (a *App) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "View or edit configuration",
		Long: `Interactive configuration management.

If no config file exists, creates one with default values.
Otherwise, displays current config and allows editing.

Example:
  studyplanner config`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.runConfigInteractive(bufio.NewReader(os.Stdin))
		},
	}
}

func (a *App) runConfigInteractive(reader *bufio.Reader) error {
	configPath := a.configPath
	a.printf("Config file: %s\n\n", configPath)

	// Load existing config or create defaults
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Check if file exists
	_, fileErr := os.Stat(configPath)
	if os.IsNotExist(fileErr) {
		a.println("No config file found. Creating with default values...")
		if err := cfg.SaveTo(configPath); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		a.printf("Created %s\n\n", configPath)
	}

	printConfig(a.out, cfg)

	if !promptYesNo(a.out, reader, "\nWould you like to edit the configuration?") {
		return nil
	}

	d := &cfg.Defaults
	d.WakeTime = promptValue(a.out, reader, "Wake time", d.WakeTime)
	d.SleepTime = promptValue(a.out, reader, "Sleep time", d.SleepTime)
	d.StudyBlockLength = promptInt(a.out, reader, "Study block length (minutes)", d.StudyBlockLength)
	d.MaxStudyMinutesPerDay = promptInt(a.out, reader, "Max study minutes per day (0 for no cap)", d.MaxStudyMinutesPerDay)
	d.CommuteDurationMins = promptInt(a.out, reader, "Commute duration (minutes)", d.CommuteDurationMins)
	d.DinnerTime = promptValue(a.out, reader, "Dinner time (empty to disable)", d.DinnerTime)
	cfg.Schedule.Timezone = promptValue(a.out, reader, "Timezone (empty for system)", cfg.Schedule.Timezone)
	cfg.Calendar.Enabled = promptYesNo(a.out, reader, "  Sync with Google Calendar?")
	if cfg.Calendar.Enabled {
		cfg.Calendar.CredentialsFile = promptValue(a.out, reader, "Credentials file", cfg.Calendar.CredentialsFile)
		cfg.Calendar.CalendarID = promptValue(a.out, reader, "Calendar ID", cfg.Calendar.CalendarID)
	}
	cfg.Storage.DBPath = promptValue(a.out, reader, "Database path", cfg.Storage.DBPath)

	// Validate before saving
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.SaveTo(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	a.println("\nConfiguration saved!")
	return nil
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current configuration:")
	fmt.Fprintln(w, "──────────────────────")
	fmt.Fprintln(w, "[user]")
	fmt.Fprintf(w, "  id                        = %d\n", cfg.User.ID)
	fmt.Fprintln(w, "\n[defaults]")
	fmt.Fprintf(w, "  wake_time                 = %s\n", cfg.Defaults.WakeTime)
	fmt.Fprintf(w, "  sleep_time                = %s\n", cfg.Defaults.SleepTime)
	fmt.Fprintf(w, "  study_block_length        = %d\n", cfg.Defaults.StudyBlockLength)
	fmt.Fprintf(w, "  max_study_minutes_per_day = %d\n", cfg.Defaults.MaxStudyMinutesPerDay)
	fmt.Fprintf(w, "  commute_duration_mins     = %d\n", cfg.Defaults.CommuteDurationMins)
	fmt.Fprintf(w, "  dinner_time               = %s\n", cfg.Defaults.DinnerTime)
	fmt.Fprintln(w, "\n[schedule]")
	fmt.Fprintf(w, "  timezone                  = %s\n", cfg.Schedule.Timezone)
	fmt.Fprintf(w, "  break_minutes             = %d\n", cfg.Schedule.BreakMinutes)
	fmt.Fprintf(w, "  min_block_minutes         = %d\n", cfg.Schedule.MinBlockMinutes)
	fmt.Fprintln(w, "\n[calendar]")
	fmt.Fprintf(w, "  enabled                   = %t\n", cfg.Calendar.Enabled)
	if cfg.Calendar.Enabled {
		fmt.Fprintf(w, "  credentials_file          = %s\n", cfg.Calendar.CredentialsFile)
		fmt.Fprintf(w, "  calendar_id               = %s\n", cfg.Calendar.CalendarID)
	}
	fmt.Fprintln(w, "\n[storage]")
	fmt.Fprintf(w, "  db_path                   = %s\n", cfg.Storage.DBPath)
	fmt.Fprintln(w, "\n[watch]")
	fmt.Fprintf(w, "  conflict_spec             = %s\n", cfg.Watch.ConflictSpec)
	fmt.Fprintf(w, "  replan_spec               = %s\n", cfg.Watch.ReplanSpec)
	fmt.Fprintf(w, "  reload_config             = %t\n", cfg.Watch.ReloadConfig)
}

func promptYesNo(w io.Writer, reader *bufio.Reader, question string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", question)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))
	return input == "y" || input == "yes"
}

func promptValue(w io.Writer, reader *bufio.Reader, label, current string) string {
	if current == "" {
		fmt.Fprintf(w, "  %s: ", label)
	} else {
		fmt.Fprintf(w, "  %s [%s]: ", label, current)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return current
	}
	return input
}

func promptInt(w io.Writer, reader *bufio.Reader, label string, current int) int {
	for {
		value := promptValue(w, reader, label, strconv.Itoa(current))
		n, err := strconv.Atoi(value)
		if err == nil && n >= 0 {
			return n
		}
		fmt.Fprintf(w, "  Invalid number %q\n", value)
	}
}
