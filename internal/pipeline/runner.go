// Package pipeline drives runs: discovering unscanned source files, running
// each through the rule engine, emitting its outputs and recording it in the
// ledger. Files are processed one at a time, and runs never overlap.
package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/dqm/internal/core"
	"github.com/JonMunkholm/dqm/internal/csvio"
	"github.com/JonMunkholm/dqm/internal/ledger"
	"github.com/JonMunkholm/dqm/internal/logging"
)

// DefaultHistorySize is how many finished runs are kept for inspection.
const DefaultHistorySize = 20

// Trigger names what requested a run.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerAPI     Trigger = "api"
	TriggerCron    Trigger = "cron"
	TriggerWatch   Trigger = "watch"
	TriggerStartup Trigger = "startup"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// FileStatus is the outcome for one file.
type FileStatus string

const (
	FileProcessed FileStatus = "processed"
	FileFailed    FileStatus = "failed"
)

// FileResult summarizes one file of a run.
type FileResult struct {
	File       string               `json:"file"`
	Category   string               `json:"category"`
	Status     FileStatus           `json:"status"`
	Records    int                  `json:"records"`
	Clean      int                  `json:"clean"`
	Rejected   int                  `json:"rejected"`
	Issues     []core.IssueMetadata `json:"issues,omitempty"`
	Bytes      int64                `json:"bytes"`
	DurationMS int64                `json:"duration_ms"`
	Error      string               `json:"error,omitempty"`
	Code       string               `json:"code,omitempty"`
}

// RunResult summarizes a run.
type RunResult struct {
	ID         string       `json:"id"`
	Trigger    Trigger      `json:"trigger"`
	Status     RunStatus    `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at,omitzero"`
	Files      []FileResult `json:"files"`
	Error      string       `json:"error,omitempty"`
}

// Failed returns the number of files that failed.
func (r RunResult) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Status == FileFailed {
			n++
		}
	}
	return n
}

func (r *RunResult) snapshot() RunResult {
	out := *r
	out.Files = slices.Clone(r.Files)
	return out
}

// Config locates a run's inputs and outputs.
type Config struct {
	SourceDir         string
	OutputDir         string
	SchemaFile        string
	RulesFile         string
	CategorySuffixLen int // zero means core.DefaultCategorySuffixLen
	HistorySize       int
}

// suffixLen returns the category suffix length, defaulting when unset.
func (c Config) suffixLen() int {
	if c.CategorySuffixLen <= 0 {
		return core.DefaultCategorySuffixLen
	}
	return c.CategorySuffixLen
}

// Runner executes runs against a ledger. It is safe for concurrent use;
// runs are serialized by its Gate.
type Runner struct {
	cfg    Config
	ledger ledger.Ledger
	sink   Sink
	engine *core.Engine
	gate   *Gate
	logger *slog.Logger

	mu   sync.RWMutex
	runs []*RunResult // oldest first

	wg sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink replaces the default FileSink.
func WithSink(s Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithEngine uses a fixed engine instead of loading catalogs at each run.
func WithEngine(e *core.Engine) Option {
	return func(r *Runner) { r.engine = e }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner. Catalogs are re-read at the start of every run
// unless WithEngine is given, so rule edits apply without a restart.
func NewRunner(cfg Config, l ledger.Ledger, opts ...Option) *Runner {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	r := &Runner{
		cfg:    cfg,
		ledger: l,
		sink:   FileSink{Dir: cfg.OutputDir},
		gate:   NewGate(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Gate returns the runner's gate.
func (r *Runner) Gate() *Gate { return r.gate }

// Ledger returns the runner's ledger.
func (r *Runner) Ledger() ledger.Ledger { return r.ledger }

// Run waits for any active run to finish, then runs synchronously.
// The error is non-nil when discovery failed or ctx was cancelled; per-file
// failures are reported in the result only.
func (r *Runner) Run(ctx context.Context, trigger Trigger) (RunResult, error) {
	if err := r.gate.Acquire(ctx); err != nil {
		return RunResult{}, err
	}
	defer r.gate.Release()

	res := r.begin(trigger)
	err := r.execute(ctx, res)
	return r.snapshot(res), err
}

// Trigger starts a run in the background and returns its initial state, or
// core.ErrRunInProgress if a run is active. ctx bounds the run, so it must
// outlive the caller's request.
func (r *Runner) Trigger(ctx context.Context, trigger Trigger) (RunResult, error) {
	if err := r.gate.TryAcquire(); err != nil {
		return RunResult{}, err
	}

	res := r.begin(trigger)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.gate.Release()
		_ = r.execute(ctx, res)
	}()
	return r.snapshot(res), nil
}

// Wait blocks until background runs started by Trigger return, or ctx ends.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Runs returns recent runs, newest first.
func (r *Runner) Runs() []RunResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RunResult, 0, len(r.runs))
	for i := len(r.runs) - 1; i >= 0; i-- {
		out = append(out, r.runs[i].snapshot())
	}
	return out
}

// Get returns the run with id, if it is still in history.
func (r *Runner) Get(id string) (RunResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range r.runs {
		if run.ID == id {
			return run.snapshot(), true
		}
	}
	return RunResult{}, false
}

func (r *Runner) begin(trigger Trigger) *RunResult {
	res := &RunResult{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    RunRunning,
		StartedAt: time.Now(),
	}
	r.mu.Lock()
	r.runs = append(r.runs, res)
	if n := len(r.runs) - r.cfg.HistorySize; n > 0 {
		r.runs = slices.Delete(r.runs, 0, n)
	}
	r.mu.Unlock()
	return res
}

func (r *Runner) snapshot(res *RunResult) RunResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return res.snapshot()
}

func (r *Runner) finish(res *RunResult, status RunStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res.Status = status
	res.FinishedAt = time.Now()
	if err != nil {
		res.Error = err.Error()
	}
}

func (r *Runner) execute(ctx context.Context, res *RunResult) error {
	ctx = logging.WithRunID(ctx, res.ID)
	log := r.logger.With("trigger", res.Trigger)

	engine := r.engine
	if engine == nil {
		engine = LoadEngine(ctx, r.cfg, r.logger)
	}

	files, err := Discover(ctx, r.cfg.SourceDir, r.ledger, r.logger)
	if err != nil {
		status := RunFailed
		if ctx.Err() != nil {
			status = RunCancelled
		}
		log.ErrorContext(ctx, "discovery failed", "dir", r.cfg.SourceDir, "error", err, "code", core.ErrorCode(err))
		r.finish(res, status, err)
		return err
	}
	log.InfoContext(ctx, "run started", "files", len(files))

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			log.WarnContext(ctx, "run cancelled", "remaining", len(files)-len(res.Files))
			r.finish(res, RunCancelled, err)
			return err
		}

		fr := r.processFile(ctx, engine, name)
		r.mu.Lock()
		res.Files = append(res.Files, fr)
		r.mu.Unlock()
	}

	r.finish(res, RunCompleted, nil)
	snap := r.snapshot(res)
	log.InfoContext(ctx, "run completed",
		"files", len(snap.Files),
		"failed", snap.Failed(),
		"duration_ms", snap.FinishedAt.Sub(snap.StartedAt).Milliseconds(),
	)
	return nil
}

// processFile reads, partitions and emits one file, then records it in the
// ledger. Any failure leaves the file unrecorded so the next run retries it.
func (r *Runner) processFile(ctx context.Context, engine *core.Engine, name string) FileResult {
	start := time.Now()
	log := r.logger.With("file", name)
	fr := FileResult{File: name, Category: engine.Rules().CategoryOf(name)}

	fail := func(step string, err error) FileResult {
		fr.Status = FileFailed
		fr.Error = err.Error()
		fr.Code = core.ErrorCode(err)
		fr.DurationMS = time.Since(start).Milliseconds()
		log.ErrorContext(ctx, "file failed", "step", step, "error", err, "code", fr.Code)
		return fr
	}

	batch, stats, err := csvio.ReadFile(filepath.Join(r.cfg.SourceDir, name))
	if err != nil {
		return fail("read", err)
	}
	fr.Records = stats.Records
	fr.Bytes = stats.Bytes

	p, err := engine.Process(ctx, name, batch)
	if err != nil {
		return fail("process", err)
	}
	fr.Clean = len(p.Clean)
	fr.Rejected = len(p.Rejected)
	fr.Issues = p.Issues

	if err := r.sink.Emit(ctx, name, p); err != nil {
		return fail("emit", err)
	}

	// Outputs are written; recording must not be abandoned on cancellation.
	if err := r.ledger.MarkScanned(context.WithoutCancel(ctx), name); err != nil {
		return fail("ledger", err)
	}

	fr.Status = FileProcessed
	fr.DurationMS = time.Since(start).Milliseconds()
	log.InfoContext(ctx, "file processed",
		"category", fr.Category,
		"records", fr.Records,
		"clean", fr.Clean,
		"rejected", fr.Rejected,
		"issues", len(fr.Issues),
	)
	return fr
}
