package pipeline

// scheduler.go starts unattended runs for `dqm serve`.
//
// Two sources request runs:
//  1. a cron expression, evaluated by robfig/cron
//  2. an fsnotify watch on the source directory, debounced so a burst of
//     file writes produces one run
//
// Requests that arrive while a run is active are dropped; the next trigger
// picks up whatever is still unscanned. The scheduler is context-aware for
// graceful shutdown and never fails the application on a bad run.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/JonMunkholm/dqm/internal/core"
)

// ScheduleConfig holds scheduler settings.
type ScheduleConfig struct {
	Cron       string        // standard 5-field expression; empty disables
	Watch      bool          // watch the source directory
	Debounce   time.Duration // quiet period before a watch-triggered run
	RunOnStart bool
}

// DefaultDebounce is used when ScheduleConfig.Debounce is not positive.
const DefaultDebounce = 2 * time.Second

// Scheduler triggers runs on a schedule and on source-directory changes.
type Scheduler struct {
	runner *Runner
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates a scheduler for runner watching dir.
func NewScheduler(runner *Runner, dir string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: runner, dir: dir, logger: logger}
}

// Start begins scheduling. Runs started by the scheduler use ctx, so
// cancelling it stops them between files. Stop must be called to release
// the cron and watcher.
func (s *Scheduler) Start(ctx context.Context, cfg ScheduleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Cron != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.Cron, func() { s.trigger(ctx, TriggerCron) }); err != nil {
			return fmt.Errorf("invalid cron schedule %q: %w", cfg.Cron, err)
		}
		c.Start()
		s.cron = c
		s.logger.Info("scheduled runs", "schedule", cfg.Cron)
	}

	if cfg.Watch {
		if err := s.startWatcher(ctx, cfg.Debounce); err != nil {
			s.stopLocked()
			return err
		}
	}

	if cfg.RunOnStart {
		s.trigger(ctx, TriggerStartup)
	}
	return nil
}

func (s *Scheduler) startWatcher(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	s.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.watch(watchCtx, watcher, debounce, s.done)
	s.logger.Info("watching source directory", "dir", s.dir, "debounce", debounce)
	return nil
}

// watch resets a single debounce timer on every relevant event.
func (s *Scheduler) watch(ctx context.Context, w *fsnotify.Watcher, debounce time.Duration, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".csv") {
				continue
			}
			s.logger.Debug("source changed", "file", filepath.Base(event.Name), "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() { s.trigger(ctx, TriggerWatch) })
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}

// trigger starts a background run, dropping the request if one is active.
func (s *Scheduler) trigger(ctx context.Context, t Trigger) {
	if ctx.Err() != nil {
		return
	}
	run, err := s.runner.Trigger(ctx, t)
	switch {
	case errors.Is(err, core.ErrRunInProgress):
		s.logger.Info("run already in progress, trigger dropped", "trigger", t)
	case err != nil:
		s.logger.Warn("scheduled trigger failed", "trigger", t, "error", err)
	default:
		s.logger.Info("run triggered", "trigger", t, "run_id", run.ID)
	}
}

// Stop halts the cron and the watcher. It does not wait for an active run;
// use Runner.Wait for that.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cron == nil && s.watcher == nil {
		return
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.done != nil {
		<-s.done
		s.done = nil
	}
	s.logger.Info("scheduler stopped")
}
