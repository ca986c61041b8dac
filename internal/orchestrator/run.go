package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"platen/internal/history"
	"platen/internal/logging"
	"platen/internal/pipeline"
	"platen/internal/project"
	"platen/internal/protocol"
	"platen/internal/runner"
	"platen/internal/services"
)

// progressPersistInterval throttles history writes for progress events; stage
// transitions and errors persist immediately.
const progressPersistInterval = 2 * time.Second

// resolveScript defaults an empty script name to the project's first entry
// point and resolves it to an on-disk path.
func (o *Orchestrator) resolveScript(pluginID, script string) (string, string, error) {
	manifest, err := o.registry.Get(pluginID)
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(script) == "" {
		script = manifest.EntryPoints[0]
	}
	path, err := o.registry.EntryPointPath(pluginID, script)
	if err != nil {
		return "", "", err
	}
	return script, path, nil
}

// RunScript executes one worker script to completion, collecting all output.
// Suitable for short scripts; nothing is visible until the worker exits.
func (o *Orchestrator) RunScript(ctx context.Context, pluginID, script string, args []string) (runner.BufferedResult, error) {
	runID := uuid.NewString()

	scriptName, scriptPath, err := o.resolveScript(pluginID, script)
	if err != nil {
		return runner.BufferedResult{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := o.acquire(runID, cancel); err != nil {
		return runner.BufferedResult{}, err
	}
	defer o.release(runID)

	run := history.NewRun(runID, history.KindScript, scriptLabel(pluginID, scriptName), 1)
	o.insertRun(run)
	run.MarkStarted()
	o.persistRun(run)

	runCtx = services.WithRunID(runCtx, runID)
	runCtx = services.WithPlugin(runCtx, pluginID)
	runCtx = services.WithScript(runCtx, scriptName)
	logger := logging.WithContext(runCtx, o.logger)
	logger.Info("buffered run started")

	result, runErr := o.runner.RunBuffered(runCtx, o.cfg.Python.Interpreter, append([]string{scriptPath}, args...))
	o.finishScriptRun(run, logger, result.State, result.ExitCode, runErr)
	return result, runErr
}

// RunScriptStreaming executes one worker script, delivering each decoded
// stdout event to onEvent in arrival order before the next line is read.
func (o *Orchestrator) RunScriptStreaming(ctx context.Context, pluginID, script string, args []string, onEvent func(protocol.Event)) (runner.StreamResult, error) {
	return o.executeScript(ctx, uuid.NewString(), pluginID, script, args, onEvent)
}

// StartScript launches a streaming script run in the background and returns
// its run id. Progress is consumed through RunEvents and the history store.
// Resolution problems and a busy orchestrator surface synchronously.
func (o *Orchestrator) StartScript(pluginID, script string, args []string) (string, error) {
	if _, _, err := o.resolveScript(pluginID, script); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	if err := o.acquire(runID, cancel); err != nil {
		cancel()
		return "", err
	}
	go func() {
		defer cancel()
		_, _ = o.executeScript(ctx, runID, pluginID, script, args, nil)
	}()
	return runID, nil
}

func (o *Orchestrator) executeScript(ctx context.Context, runID, pluginID, script string, args []string, onEvent func(protocol.Event)) (runner.StreamResult, error) {
	scriptName, scriptPath, err := o.resolveScript(pluginID, script)
	if err != nil {
		o.release(runID)
		return runner.StreamResult{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := o.acquire(runID, cancel); err != nil {
		return runner.StreamResult{}, err
	}
	defer o.release(runID)

	run := history.NewRun(runID, history.KindScript, scriptLabel(pluginID, scriptName), 1)
	o.insertRun(run)
	run.MarkStarted()
	o.persistRun(run)

	journal := o.journals.open(runID)
	defer o.journals.finish(runID)

	runCtx = services.WithRunID(runCtx, runID)
	runCtx = services.WithPlugin(runCtx, pluginID)
	runCtx = services.WithScript(runCtx, scriptName)
	logger := logging.WithContext(runCtx, o.logger)
	logger.Info("streaming run started")

	sampler := logging.NewProgressSampler(0)
	var lastPersist time.Time

	result, runErr := o.runner.RunStreaming(runCtx, o.cfg.Python.Interpreter, append([]string{scriptPath}, args...), func(event protocol.Event) {
		journal.append(-1, pluginID, event)
		o.observeEvent(logger, sampler, run, &lastPersist, event.Stage, event)
		if onEvent != nil {
			onEvent(event)
		}
	})
	o.finishScriptRun(run, logger, result.State, result.ExitCode, runErr)
	return result, runErr
}

// finishScriptRun records a script run's terminal state.
func (o *Orchestrator) finishScriptRun(run *history.Run, logger *slog.Logger, state runner.State, exitCode int, runErr error) {
	switch {
	case runErr != nil:
		run.MarkFailed(runErr.Error())
		logger.Error("run failed", logging.Error(runErr))
	case state == runner.StateCancelled:
		run.MarkCancelled()
		logger.Info("run cancelled")
	default:
		run.MarkCompleted(exitCode, "")
		if exitCode == 0 {
			logger.Info("run completed", logging.Duration("run_duration", run.Duration()))
		} else {
			logger.Warn("run failed", logging.Int("exit_code", exitCode))
		}
	}
	o.persistRun(run)
}

// RunPipeline validates and executes a pipeline, forwarding stage-tagged
// events to onStageEvent.
func (o *Orchestrator) RunPipeline(ctx context.Context, cfg pipeline.Config, onStageEvent func(pipeline.StageEvent)) (pipeline.RunResult, error) {
	return o.executePipeline(ctx, uuid.NewString(), cfg, onStageEvent)
}

// StartPipeline launches a pipeline run in the background and returns its
// run id. Validation problems and a busy orchestrator surface synchronously.
func (o *Orchestrator) StartPipeline(cfg pipeline.Config) (string, error) {
	if validation := o.ValidatePipeline(cfg); !validation.Valid {
		return "", services.Wrap(services.ErrValidation, "orchestrator", "start pipeline", validation.Reason, nil)
	}

	runID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	if err := o.acquire(runID, cancel); err != nil {
		cancel()
		return "", err
	}
	go func() {
		defer cancel()
		_, _ = o.executePipeline(ctx, runID, cfg, nil)
	}()
	return runID, nil
}

func (o *Orchestrator) executePipeline(ctx context.Context, runID string, cfg pipeline.Config, onStageEvent func(pipeline.StageEvent)) (pipeline.RunResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := o.acquire(runID, cancel); err != nil {
		return pipeline.RunResult{}, err
	}
	defer o.release(runID)

	run := history.NewRun(runID, history.KindPipeline, pipelineLabel(cfg), len(cfg.Stages))
	o.insertRun(run)
	run.MarkStarted()
	o.persistRun(run)

	journal := o.journals.open(runID)
	defer o.journals.finish(runID)

	runCtx = services.WithRunID(runCtx, runID)
	logger := logging.WithContext(runCtx, o.logger)

	sampler := logging.NewProgressSampler(0)
	var lastPersist time.Time
	total := len(cfg.Stages)
	stageNames := o.stageDisplayNames(cfg)

	result, runErr := o.executor.Execute(runCtx, cfg, func(stageEvent pipeline.StageEvent) {
		journal.append(stageEvent.StageIndex, stageEvent.PluginID, stageEvent.Event)
		stageLabel := fmt.Sprintf("stage %d/%d (%s)", stageEvent.StageIndex+1, total, stageNames[stageEvent.StageIndex])
		o.observeEvent(logger, sampler, run, &lastPersist, stageLabel, stageEvent.Event)
		if onStageEvent != nil {
			onStageEvent(stageEvent)
		}
	})

	switch {
	case runErr != nil:
		run.MarkFailed(runErr.Error())
		logger.Error("pipeline run rejected", logging.Error(runErr))
	case result.Cancelled:
		run.MarkCancelled()
		logger.Info("pipeline run cancelled", logging.Int("failed_stage", result.FailedStage))
	case !result.OverallSuccess:
		run.ExitCode = failedStageExitCode(result)
		run.MarkFailed(pipelineFailureMessage(result))
		logger.Warn("pipeline run failed",
			logging.Int("failed_stage", result.FailedStage),
			logging.Int("exit_code", run.ExitCode))
	default:
		run.MarkCompleted(0, result.FinalOutputDir)
		logger.Info("pipeline run completed",
			logging.Int("stages", len(result.StageResults)),
			logging.String("output_dir", result.FinalOutputDir),
			logging.Duration("run_duration", run.Duration()))
	}
	o.persistRun(run)
	return result, runErr
}

// observeEvent folds one worker event into the run's progress fields,
// persisting on stage transitions and at most every persist interval for
// plain progress, and logs it at a sampled rate.
func (o *Orchestrator) observeEvent(logger *slog.Logger, sampler *logging.ProgressSampler, run *history.Run, lastPersist *time.Time, stageLabel string, event protocol.Event) {
	persist := true
	switch event.Kind {
	case protocol.KindStart:
		run.SetProgress(stageLabel, progressMessage(event), 0)
		logger.Debug("worker started", logging.Int("total", event.Total))
	case protocol.KindStageStart:
		run.SetProgress(stageOrLabel(event, stageLabel), progressMessage(event), run.ProgressPercent)
		logger.Info("worker stage started", logging.String("worker_stage", event.Stage))
	case protocol.KindStageComplete:
		run.SetProgress(stageOrLabel(event, stageLabel), progressMessage(event), run.ProgressPercent)
		logger.Info("worker stage completed", logging.String("worker_stage", event.Stage))
	case protocol.KindProgress:
		percent := event.Percent
		if percent < 0 {
			percent = run.ProgressPercent
		}
		run.SetProgress(stageOrLabel(event, stageLabel), progressMessage(event), percent)
		if sampler.ShouldLog(percent, run.ProgressStage) {
			logger.Info("worker progress",
				logging.Float64("percent", percent),
				logging.Int("current", event.Current),
				logging.Int("total", event.Total))
		}
		persist = time.Since(*lastPersist) >= progressPersistInterval
	case protocol.KindComplete:
		run.SetProgress(stageOrLabel(event, stageLabel), progressMessage(event), 100)
		logger.Info("worker finished",
			logging.Int("worker_errors", event.Errors),
			logging.Int64("bytes_saved", event.BytesSaved))
	case protocol.KindError:
		run.ErrorMessage = event.Message
		logger.Warn("worker reported error", logging.String("message", event.Message))
	case protocol.KindRaw:
		logger.Debug("worker output", logging.String("line", event.Raw))
		persist = false
	}

	if persist {
		*lastPersist = time.Now()
		o.persistRun(run)
	}
}

// insertRun and persistRun degrade to warnings when history writes fail; a
// broken database must not take the run down with it.
func (o *Orchestrator) insertRun(run *history.Run) {
	if err := o.store.Insert(context.Background(), run); err != nil {
		o.logger.Warn("failed to record run", logging.String(logging.FieldRunID, run.ID), logging.Error(err))
	}
}

func (o *Orchestrator) persistRun(run *history.Run) {
	if err := o.store.Update(context.Background(), run); err != nil {
		o.logger.Warn("failed to persist run state", logging.String(logging.FieldRunID, run.ID), logging.Error(err))
	}
}

// scriptLabel names a script run for history rows: the project id plus the
// humanized script name.
func scriptLabel(pluginID, script string) string {
	if label := project.ScriptLabel(script); label != "" {
		return pluginID + ": " + label
	}
	return pluginID
}

func pipelineLabel(cfg pipeline.Config) string {
	ids := make([]string, 0, len(cfg.Stages))
	for _, stage := range cfg.Stages {
		ids = append(ids, stage.PluginID)
	}
	return strings.Join(ids, " > ")
}

// stageDisplayNames resolves each stage's project display name for progress
// labels, falling back to the raw plugin id when a lookup misses.
func (o *Orchestrator) stageDisplayNames(cfg pipeline.Config) []string {
	names := make([]string, len(cfg.Stages))
	for i, stage := range cfg.Stages {
		names[i] = stage.PluginID
		if manifest, err := o.registry.Get(stage.PluginID); err == nil {
			names[i] = project.StageLabel(manifest)
		}
	}
	return names
}

func progressMessage(event protocol.Event) string {
	if event.Message != "" {
		return event.Message
	}
	if event.Total > 0 && event.Current > 0 {
		return fmt.Sprintf("%d/%d", event.Current, event.Total)
	}
	return ""
}

func stageOrLabel(event protocol.Event, fallback string) string {
	if event.Stage != "" {
		return event.Stage
	}
	return fallback
}

func failedStageExitCode(result pipeline.RunResult) int {
	if result.FailedStage < 0 || result.FailedStage >= len(result.StageResults) {
		return 0
	}
	return result.StageResults[result.FailedStage].ExitCode
}

func pipelineFailureMessage(result pipeline.RunResult) string {
	if result.FailedStage < 0 || result.FailedStage >= len(result.StageResults) {
		return "pipeline failed"
	}
	stage := result.StageResults[result.FailedStage]
	if stage.Err != nil {
		return fmt.Sprintf("stage %d (%s): %v", result.FailedStage+1, stage.PluginID, stage.Err)
	}
	return fmt.Sprintf("stage %d (%s) exited with code %d", result.FailedStage+1, stage.PluginID, stage.ExitCode)
}
