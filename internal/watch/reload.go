package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/javiermolinar/studyplanner/internal/config"
)

// reloadDebounce coalesces the burst of events editors emit on save.
var reloadDebounce = 250 * time.Millisecond

// watchConfig reloads the config file whenever it changes. The directory is
// watched so that editors replacing the file by rename are still seen.
func (w *Watcher) watchConfig(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer fw.Close()

	dir, file := filepath.Dir(w.opts.ConfigPath), filepath.Base(w.opts.ConfigPath)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.log.Debug().Str("path", w.opts.ConfigPath).Msg("config watcher started")

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, w.reloadConfig)
			timerMu.Unlock()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// reloadConfig loads the file and applies it. A config that fails to load
// or validate is logged and ignored; the previous one stays in effect.
func (w *Watcher) reloadConfig() {
	cfg, err := config.LoadFrom(w.opts.ConfigPath)
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.opts.ConfigPath).Msg("config rejected")
		return
	}
	if err := w.Apply(cfg.Watch); err != nil {
		w.log.Warn().Err(err).Msg("applying job schedules")
		return
	}
	if w.opts.OnReload != nil {
		w.opts.OnReload(cfg)
	}
	w.log.Info().Str("path", w.opts.ConfigPath).Msg("config reloaded")
}
