package ui

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/config"
	"github.com/javiermolinar/studyplanner/internal/logging"
	"github.com/javiermolinar/studyplanner/internal/watch"
)

func (a *App) watchCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the periodic conflict scan and replanning",
		Long: `Run in the foreground and execute the background jobs on their cron
schedules from the [watch] config section:

  conflict_spec  scan future study blocks for overlaps with busy time
  replan_spec    retry every underplanned task

With reload_config set, edits to the config file apply the new schedules
and log level without a restart. An invalid file is ignored.

With --once both jobs run a single time and the command exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Level gating moves to the global level so a reload can lower it.
			level := logging.ParseLevel(a.config.Log.Level, zerolog.InfoLevel)
			if a.debug {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			a.log = a.log.Level(zerolog.TraceLevel)

			if err := a.ensureRepo(); err != nil {
				return err
			}
			loc, err := a.config.Location()
			if err != nil {
				return err
			}

			w, err := watch.New(a.planner, a.config.Watch, watch.Options{
				UserID:     a.userID(),
				Location:   loc,
				ConfigPath: a.configPath,
				OnReload: func(cfg *config.Config) {
					zerolog.SetGlobalLevel(logging.ParseLevel(cfg.Log.Level, zerolog.InfoLevel))
				},
			}, a.log)
			if err != nil {
				return fmt.Errorf("creating watcher: %w", err)
			}

			ctx := cmd.Context()
			if once {
				return a.runJobsOnce(ctx, w)
			}

			a.println("Watching. Press Ctrl+C to stop.")
			for name, spec := range w.Specs() {
				a.printf("  %-20s %s\n", name, formatMuted(spec))
			}
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("running watcher: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run every job once and exit")
	return cmd
}

func (a *App) runJobsOnce(ctx context.Context, w *watch.Watcher) error {
	conflicts, err := w.RunConflicts(ctx)
	if err != nil {
		return fmt.Errorf("scanning conflicts: %w", err)
	}
	if len(conflicts) > 0 {
		printConflicts(a.out, conflicts, a.planner.Location())
	}
	a.printf("Conflicts: %d\n", len(conflicts))

	replanned, err := w.RunReplan(ctx)
	if err != nil {
		return fmt.Errorf("replanning tasks: %w", err)
	}
	a.printf("Replanned tasks: %d\n", replanned)
	return nil
}
