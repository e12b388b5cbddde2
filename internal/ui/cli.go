package ui

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/javiermolinar/studyplanner/internal/calendar"
	"github.com/javiermolinar/studyplanner/internal/calendar/google"
	"github.com/javiermolinar/studyplanner/internal/config"
	"github.com/javiermolinar/studyplanner/internal/db"
	"github.com/javiermolinar/studyplanner/internal/logging"
	"github.com/javiermolinar/studyplanner/internal/planner"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

// App holds the CLI application state.
type App struct {
	config     *config.Config
	configPath string
	root       *cobra.Command
	out        io.Writer
	log        zerolog.Logger
	debug      bool // Enable debug logging
	noColor    bool

	// Opened on first use by ensureRepo.
	repo      *db.SQLite
	calendars calendar.Provider
	planner   *planner.Planner
	plannerOp []planner.Option
}

// AppOption configures an App.
type AppOption func(*App)

// WithRepo uses an already opened repository.
func WithRepo(repo *db.SQLite) AppOption {
	return func(a *App) { a.repo = repo }
}

// WithCalendars uses the given calendar provider instead of building one from config.
func WithCalendars(p calendar.Provider) AppOption {
	return func(a *App) { a.calendars = p }
}

// WithOutput redirects command output.
func WithOutput(w io.Writer) AppOption {
	return func(a *App) { a.out = w }
}

// WithConfigPath sets the file the config command edits and watch reloads.
func WithConfigPath(path string) AppOption {
	return func(a *App) { a.configPath = path }
}

// WithPlannerOptions passes options through to the planner.
func WithPlannerOptions(opts ...planner.Option) AppOption {
	return func(a *App) { a.plannerOp = append(a.plannerOp, opts...) }
}

// NewApp creates a new CLI application with the given config.
func NewApp(cfg *config.Config, opts ...AppOption) *App {
	a := &App{config: cfg, configPath: config.DefaultConfigPath(), out: os.Stdout}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logging.New(cfg.Logging(), os.Stderr)

	a.root = &cobra.Command{
		Use:   "studyplanner",
		Short: "Schedule study tasks into your free time",
		Long: `studyplanner packs deadline-bound study tasks into the free time left
by your calendar, classes, commute and dinner, and mirrors every study
block onto your Google Calendar.`,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if a.noColor {
				DisableColor()
			}
			if a.debug {
				a.log = a.log.Level(zerolog.DebugLevel)
			}
		},
	}
	a.root.SetOut(a.out)

	// Add global flags
	a.root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")
	a.root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	a.root.AddCommand(a.versionCmd())
	a.root.AddCommand(a.configCmd())
	a.root.AddCommand(a.taskCmd())
	a.root.AddCommand(a.planCmd())
	a.root.AddCommand(a.moveCmd())
	a.root.AddCommand(a.conflictsCmd())
	a.root.AddCommand(a.slotsCmd())
	a.root.AddCommand(a.suggestCmd())
	a.root.AddCommand(a.scheduleCmd())
	a.root.AddCommand(a.todayCmd())
	a.root.AddCommand(a.prefsCmd())
	a.root.AddCommand(a.fixedCmd())
	a.root.AddCommand(a.overrideCmd())
	a.root.AddCommand(a.calendarCmd())
	a.root.AddCommand(a.watchCmd())
	a.root.AddCommand(a.toolsCmd())

	return a
}

func (a *App) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			a.printf("studyplanner %s (commit: %s)\n", Version, Commit)
		},
	}
}

// Execute runs the CLI application.
func (a *App) Execute() error {
	return a.root.ExecuteContext(context.Background())
}

// ExecuteContext runs the CLI application with ctx.
func (a *App) ExecuteContext(ctx context.Context) error {
	return a.root.ExecuteContext(ctx)
}

// SetArgs overrides the command line arguments.
func (a *App) SetArgs(args []string) {
	a.root.SetArgs(args)
}

// Close releases the repository and calendar provider.
func (a *App) Close() error {
	if a.calendars != nil {
		_ = a.calendars.Close()
	}
	if a.repo != nil {
		return a.repo.Close()
	}
	return nil
}

// ensureRepo opens the database, makes sure the configured user exists and
// wires the planner.
func (a *App) ensureRepo() error {
	if a.planner != nil {
		return nil
	}
	if a.repo == nil {
		repo, err := db.New(a.config.Storage.DBPath, db.WithPreferenceDefaults(a.config.Preferences()))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		a.repo = repo
	}
	if _, err := a.repo.EnsureUser(context.Background(), a.config.User.ID); err != nil {
		return fmt.Errorf("loading user: %w", err)
	}

	if a.calendars == nil {
		p, err := a.newCalendarProvider()
		if err != nil {
			return err
		}
		a.calendars = p
	}

	loc, err := a.config.Location()
	if err != nil {
		return err
	}
	a.planner = planner.New(a.repo, a.repo, a.calendars, planner.Config{
		Location:        loc,
		BreakMinutes:    a.config.Schedule.BreakMinutes,
		MinBlockMinutes: a.config.Schedule.MinBlockMinutes,
	}, a.log, a.plannerOp...)
	return nil
}

func (a *App) newCalendarProvider() (calendar.Provider, error) {
	if !a.config.Calendar.Enabled {
		return calendar.Disabled{}, nil
	}
	timeout, err := a.config.CalendarTimeout()
	if err != nil {
		return nil, err
	}
	p, err := google.NewProvider(google.Config{
		CredentialsFile: a.config.Calendar.CredentialsFile,
		CalendarID:      a.config.Calendar.CalendarID,
		EventTimezone:   a.config.Calendar.EventTimezone,
		Timeout:         timeout,
		RatePerSec:      a.config.Calendar.RatePerSec,
	}, a.repo, a.log)
	if err != nil {
		return nil, fmt.Errorf("creating calendar provider: %w", err)
	}
	return p, nil
}

func (a *App) userID() int64 {
	return a.config.User.ID
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}
