package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"platen/internal/config"
	"platen/internal/history"
	"platen/internal/logging"
	"platen/internal/pipeline"
	"platen/internal/project"
	"platen/internal/runner"
	"platen/internal/services"
)

// Orchestrator coordinates project lookups, worker execution, and run
// bookkeeping for one daemon instance.
type Orchestrator struct {
	cfg      *config.Config
	registry *project.Registry
	runner   *runner.Runner
	executor *pipeline.Executor
	store    *history.Store
	logger   *slog.Logger
	journals *journalSet

	mu        sync.Mutex
	activeRun string
	cancel    context.CancelFunc
}

// New wires an orchestrator over the shared registry, runner, and store.
func New(cfg *config.Config, registry *project.Registry, run *runner.Runner, store *history.Store, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		runner:   run,
		executor: pipeline.NewExecutor(cfg, registry, run, logger),
		store:    store,
		logger:   logging.NewComponentLogger(logger, "orchestrator"),
		journals: newJournalSet(),
	}
}

// ListProjects returns the loaded project manifests in discovery order.
func (o *Orchestrator) ListProjects() []project.Manifest {
	return o.registry.Manifests()
}

// Project returns the manifest for a single project id.
func (o *Orchestrator) Project(id string) (project.Manifest, error) {
	return o.registry.Get(id)
}

// Reload rescans the project roots. Manifests held by an executing pipeline
// are unaffected; they were copied at lookup time.
func (o *Orchestrator) Reload() (int, error) {
	return o.registry.Load()
}

// ValidatePipeline checks a pipeline config against the current registry.
func (o *Orchestrator) ValidatePipeline(cfg pipeline.Config) pipeline.ValidationResult {
	return pipeline.Validate(o.registry, cfg)
}

// ActiveRun reports the id of the run currently executing, if any.
func (o *Orchestrator) ActiveRun() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeRun, o.activeRun != ""
}

// CancelActive stops the active run: the run context is cancelled so no
// further pipeline stages start, and the in-flight worker process group is
// signalled through the runner's context watcher. Reports the run id that
// was cancelled; with no active run this is a no-op.
func (o *Orchestrator) CancelActive() (string, bool) {
	o.mu.Lock()
	runID := o.activeRun
	cancel := o.cancel
	o.mu.Unlock()

	if runID == "" {
		return "", false
	}
	if cancel != nil {
		cancel()
	}
	o.logger.Info("cancel requested", logging.String(logging.FieldRunID, runID))
	return runID, true
}

// acquire claims the single run slot for runID. A second acquire with the
// same id is a no-op so async starters can claim the slot before handing off
// to the executing goroutine.
func (o *Orchestrator) acquire(runID string, cancel context.CancelFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.activeRun == runID {
		return nil
	}
	if o.activeRun != "" {
		return services.Wrap(services.ErrBusy, "orchestrator", "start run",
			fmt.Sprintf("run %s is already active", o.activeRun), nil)
	}
	o.activeRun = runID
	o.cancel = cancel
	return nil
}

func (o *Orchestrator) release(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.activeRun == runID {
		o.activeRun = ""
		o.cancel = nil
	}
}
