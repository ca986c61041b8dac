package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"platen/internal/config"
	"platen/internal/deps"
	"platen/internal/history"
	"platen/internal/logging"
	"platen/internal/orchestrator"
	"platen/internal/pipeline"
	"platen/internal/project"
	"platen/internal/runner"
)

// Daemon coordinates the background services and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *history.Store
	registry *project.Registry
	orch     *orchestrator.Orchestrator

	lock    *flock.Flock
	pidPath string
	watcher *projectWatcher

	running      atomic.Bool
	startedAt    time.Time
	shutdownOnce sync.Once
	shutdownc    chan struct{}
}

// Status represents daemon runtime information for the status command.
type Status struct {
	Running          bool
	PID              int
	StartedAt        time.Time
	SocketPath       string
	LockPath         string
	DatabasePath     string
	LogPath          string
	ProjectCount     int
	ProjectsStale    bool
	ProjectsLoadedAt time.Time
	ActiveRunID      string
	ActiveRun        *history.Run
	RunStats         map[history.Status]int
	Dependencies     []deps.Status
	Directories      []deps.Status
}

// New constructs a daemon over initialized dependencies.
func New(cfg *config.Config, store *history.Store, registry *project.Registry, orch *orchestrator.Orchestrator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || registry == nil || orch == nil {
		return nil, errors.New("daemon requires config, store, registry, and orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		registry:  registry,
		orch:      orch,
		lock:      flock.New(cfg.LockPath()),
		pidPath:   filepath.Join(cfg.Paths.LogDir, "platend.pid"),
		shutdownc: make(chan struct{}),
	}, nil
}

// Start acquires the instance lock, recovers state left by a previous
// process, and loads the project registry.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another platen daemon instance is already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	if reset, err := d.store.ResetAbandoned(ctx); err != nil {
		d.logger.Warn("failed to reset abandoned runs", logging.Error(err))
	} else if reset > 0 {
		d.logger.Info("reset abandoned runs", logging.Int("count", reset))
	}

	count, err := d.registry.Load()
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("load projects: %w", err)
	}
	d.logger.Info("projects loaded", logging.Int("project_count", count))

	for _, dep := range deps.CheckSystem(d.cfg) {
		if !dep.Available && !dep.Optional {
			d.logger.Warn("required dependency unavailable",
				logging.String("dependency", dep.Name),
				logging.String("detail", dep.Detail))
		}
	}

	if d.cfg.Workflow.WatchProjects {
		watcher := newProjectWatcher(d.cfg.ProjectRoots(), d.registry, d.logger)
		if err := watcher.Start(); err != nil {
			d.logger.Warn("project watcher unavailable", logging.Error(err))
		} else {
			d.watcher = watcher
		}
	}

	d.writePIDFile()
	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("platen daemon started",
		logging.String("lock", d.cfg.LockPath()),
		logging.Int("project_count", count))
	return nil
}

// Stop cancels any active run, stops the watcher, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if id, ok := d.orch.CancelActive(); ok {
		d.logger.Info("cancelled active run for shutdown", logging.String(logging.FieldRunID, id))
	}
	if d.watcher != nil {
		d.watcher.Close()
		d.watcher = nil
	}
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("platen daemon stopped")
}

// Close stops the daemon and releases its resources.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// RequestShutdown asks the hosting process to exit. The IPC stop handler
// calls this; main watches ShutdownRequested alongside signal delivery.
func (d *Daemon) RequestShutdown() {
	d.shutdownOnce.Do(func() {
		close(d.shutdownc)
	})
}

// ShutdownRequested is closed once a shutdown has been requested over IPC.
func (d *Daemon) ShutdownRequested() <-chan struct{} {
	return d.shutdownc
}

// Running reports whether Start has completed successfully.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the daemon log file location.
func (d *Daemon) LogPath() string {
	return d.cfg.LogFilePath()
}

// Projects returns the loaded project manifests.
func (d *Daemon) Projects() []project.Manifest {
	return d.orch.ListProjects()
}

// Project returns a single project manifest by id.
func (d *Daemon) Project(id string) (project.Manifest, error) {
	return d.orch.Project(id)
}

// ReloadProjects rescans the project roots and clears staleness.
func (d *Daemon) ReloadProjects() (int, error) {
	return d.orch.Reload()
}

// ProjectsStale reports whether the project roots changed since the last
// load.
func (d *Daemon) ProjectsStale() bool {
	return d.registry.Stale()
}

// RunScript executes a worker script to completion, buffering its output.
func (d *Daemon) RunScript(ctx context.Context, pluginID, script string, args []string) (runner.BufferedResult, error) {
	return d.orch.RunScript(ctx, pluginID, script, args)
}

// StartScript launches a streaming script run and returns its run id.
func (d *Daemon) StartScript(pluginID, script string, args []string) (string, error) {
	return d.orch.StartScript(pluginID, script, args)
}

// ValidatePipeline checks a pipeline config against the loaded registry.
func (d *Daemon) ValidatePipeline(cfg pipeline.Config) pipeline.ValidationResult {
	return d.orch.ValidatePipeline(cfg)
}

// StartPipeline validates and launches a pipeline run, returning its run id.
func (d *Daemon) StartPipeline(cfg pipeline.Config) (string, error) {
	return d.orch.StartPipeline(cfg)
}

// RunEvents long-polls the journal of a run for ordered worker events.
func (d *Daemon) RunEvents(ctx context.Context, runID string, afterSeq int64, wait time.Duration) ([]orchestrator.RunEvent, bool, error) {
	return d.orch.RunEvents(ctx, runID, afterSeq, wait)
}

// CancelActive cancels the run currently executing, if any.
func (d *Daemon) CancelActive() (string, bool) {
	return d.orch.CancelActive()
}

// Runs lists recorded runs, newest first.
func (d *Daemon) Runs(ctx context.Context, limit int, statuses ...history.Status) ([]*history.Run, error) {
	return d.store.List(ctx, limit, statuses...)
}

// Run returns a single recorded run by id.
func (d *Daemon) Run(ctx context.Context, id string) (*history.Run, error) {
	return d.store.Get(ctx, id)
}

// ClearRuns removes finished runs from the history store.
func (d *Daemon) ClearRuns(ctx context.Context) (int, error) {
	return d.store.Clear(ctx)
}

// Status returns the composed daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:          d.running.Load(),
		PID:              os.Getpid(),
		StartedAt:        d.startedAt,
		SocketPath:       d.cfg.SocketPath(),
		LockPath:         d.cfg.LockPath(),
		DatabasePath:     d.store.Path(),
		LogPath:          d.cfg.LogFilePath(),
		ProjectCount:     d.registry.Len(),
		ProjectsStale:    d.registry.Stale(),
		ProjectsLoadedAt: d.registry.LoadedAt(),
		Dependencies:     deps.CheckSystem(d.cfg),
		Directories:      deps.CheckDirectories(d.cfg),
	}
	if id, ok := d.orch.ActiveRun(); ok {
		status.ActiveRunID = id
		if run, err := d.store.Get(ctx, id); err == nil {
			status.ActiveRun = run
		}
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.RunStats = stats
	}
	return status
}

// writePIDFile records the daemon pid for out-of-band recovery tooling.
func (d *Daemon) writePIDFile() {
	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		d.logger.Warn("failed to write pid file", logging.Error(err))
	}
}
