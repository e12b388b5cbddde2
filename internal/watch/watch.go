// Package watch runs the periodic planner jobs: a conflict scan, a replan of
// underplanned tasks, and an optional reload of the config file.
package watch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/javiermolinar/studyplanner/internal/config"
	"github.com/javiermolinar/studyplanner/internal/planner"
)

// Job names.
const (
	JobConflicts = "conflict-scan"
	JobReplan    = "replan-underplanned"
)

// defaultJobTimeout bounds one job run.
const defaultJobTimeout = 2 * time.Minute

// Jobs is the planner surface the watcher drives.
type Jobs interface {
	CheckConflicts(ctx context.Context, userID int64) ([]planner.Conflict, error)
	ReplanUnderplanned(ctx context.Context, userID int64) ([]*planner.ScheduleResult, error)
}

// Options configures a Watcher.
type Options struct {
	UserID   int64
	Location *time.Location
	// ConfigPath is watched for changes when ReloadConfig is set.
	ConfigPath string
	JobTimeout time.Duration
	// OnReload receives every successfully reloaded config.
	OnReload func(*config.Config)
}

// Watcher schedules jobs on a cron and reacts to config changes.
type Watcher struct {
	jobs Jobs
	opts Options
	log  zerolog.Logger

	parser cron.Parser

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	specs   map[string]string
	reload  bool
}

// New creates a Watcher. Schedules come from cfg.Watch.
func New(jobs Jobs, cfg config.WatchConfig, opts Options, log zerolog.Logger) (*Watcher, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}
	w := &Watcher{
		jobs:    jobs,
		opts:    opts,
		log:     log.With().Str("component", "watch").Int64("user_id", opts.UserID).Logger(),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]string),
		reload:  cfg.ReloadConfig,
	}
	w.cron = cron.New(
		cron.WithParser(w.parser),
		cron.WithLocation(opts.Location),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{w.log})),
	)
	if err := w.Apply(cfg); err != nil {
		return nil, err
	}
	return w, nil
}

// Apply registers or replaces the job schedules. An empty spec disables a job.
// Every spec is parsed first, so a rejected config changes nothing.
func (w *Watcher) Apply(cfg config.WatchConfig) error {
	specs := map[string]string{
		JobConflicts: strings.TrimSpace(cfg.ConflictSpec),
		JobReplan:    strings.TrimSpace(cfg.ReplanSpec),
	}
	scheds := make(map[string]cron.Schedule, len(specs))
	for name, spec := range specs {
		if spec == "" {
			continue
		}
		sched, err := w.parser.Parse(spec)
		if err != nil {
			return fmt.Errorf("parsing %s schedule %q: %w", name, spec, err)
		}
		scheds[name] = sched
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for name, spec := range specs {
		w.setJobLocked(name, spec, scheds[name])
	}
	w.reload = cfg.ReloadConfig
	return nil
}

func (w *Watcher) setJobLocked(name, spec string, sched cron.Schedule) {
	if w.specs[name] == spec {
		if _, ok := w.entries[name]; ok || spec == "" {
			return
		}
	}
	if id, ok := w.entries[name]; ok {
		w.cron.Remove(id)
		delete(w.entries, name)
	}
	w.specs[name] = spec
	if sched == nil {
		w.log.Info().Str("job", name).Msg("job disabled")
		return
	}

	w.entries[name] = w.cron.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.opts.JobTimeout)
		defer cancel()
		if name == JobReplan {
			_, _ = w.RunReplan(ctx)
		} else {
			_, _ = w.RunConflicts(ctx)
		}
	}))
	w.log.Info().Str("job", name).Str("spec", spec).Msg("job scheduled")
}

// Specs returns the active schedule per job name.
func (w *Watcher) Specs() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]string, len(w.entries))
	for name := range w.entries {
		out[name] = w.specs[name]
	}
	return out
}

// Run starts the cron and, when enabled, the config watcher. It blocks
// until ctx is done and then waits for running jobs to finish.
func (w *Watcher) Run(ctx context.Context) error {
	w.cron.Start()
	w.log.Info().Str("tz", w.opts.Location.String()).Msg("watcher started")

	var wg sync.WaitGroup
	var watchErr error
	w.mu.Lock()
	reload := w.reload && w.opts.ConfigPath != ""
	w.mu.Unlock()
	if reload {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watchErr = w.watchConfig(ctx)
		}()
	}

	<-ctx.Done()
	<-w.cron.Stop().Done()
	wg.Wait()
	w.log.Info().Msg("watcher stopped")
	return watchErr
}

// RunConflicts scans once and logs every conflicting block.
func (w *Watcher) RunConflicts(ctx context.Context) ([]planner.Conflict, error) {
	conflicts, err := w.jobs.CheckConflicts(ctx, w.opts.UserID)
	if err != nil {
		w.log.Error().Err(err).Str("job", JobConflicts).Msg("job failed")
		return nil, err
	}
	for _, c := range conflicts {
		titles := make([]string, 0, len(c.Events))
		for _, e := range c.Events {
			titles = append(titles, e.Title)
		}
		w.log.Warn().
			Int64("block_id", c.Block.ID).
			Str("task", c.TaskTitle).
			Time("start", c.Block.Start).
			Strs("events", titles).
			Msg("study block conflicts with busy time")
	}
	w.log.Debug().Str("job", JobConflicts).Int("conflicts", len(conflicts)).Msg("job done")
	return conflicts, nil
}

// RunReplan replans underplanned tasks once and returns how many were run.
func (w *Watcher) RunReplan(ctx context.Context) (int, error) {
	results, err := w.jobs.ReplanUnderplanned(ctx, w.opts.UserID)
	if err != nil {
		w.log.Error().Err(err).Str("job", JobReplan).Msg("job failed")
		return 0, err
	}
	minutes := 0
	for _, r := range results {
		minutes += r.ScheduledMinutes
	}
	w.log.Info().Str("job", JobReplan).Int("tasks", len(results)).Int("minutes", minutes).Msg("job done")
	return len(results), nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
