package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"platen/internal/config"
	"platen/internal/logging"
	"platen/internal/project"
	"platen/internal/protocol"
	"platen/internal/runner"
	"platen/internal/services"
)

// StageEvent is one decoded worker event tagged with the stage it came from.
// StageIndex is zero-based and matches the position in Config.Stages.
type StageEvent struct {
	StageIndex int
	PluginID   string
	Event      protocol.Event
}

// StageResult records the outcome of one executed stage. Stages after a
// failure never run and have no result entry.
type StageResult struct {
	PluginID  string
	Script    string
	Success   bool
	Cancelled bool
	ExitCode  int
	OutputDir string
	Stderr    string
	Err       error
	Duration  time.Duration
}

// RunResult aggregates a whole pipeline run. FailedStage is the zero-based
// index of the stage that stopped the run, whether by failure or
// cancellation, and -1 when every stage succeeded.
type RunResult struct {
	StageResults   []StageResult
	OverallSuccess bool
	Cancelled      bool
	FailedStage    int
	FinalOutputDir string
	WorkDir        string
}

// Executor runs validated pipeline configs stage by stage.
type Executor struct {
	registry      *project.Registry
	runner        *runner.Runner
	logger        *slog.Logger
	interpreter   string
	workRoot      string
	keepStageDirs bool
}

// NewExecutor wires an executor over the shared registry and runner.
func NewExecutor(cfg *config.Config, registry *project.Registry, run *runner.Runner, logger *slog.Logger) *Executor {
	return &Executor{
		registry:      registry,
		runner:        run,
		logger:        logging.NewComponentLogger(logger, "pipeline"),
		interpreter:   cfg.Python.Interpreter,
		workRoot:      cfg.Paths.WorkDir,
		keepStageDirs: cfg.Workflow.KeepStageDirs,
	}
}

// Execute runs the stages of cfg strictly in order. Stage 0 reads from
// cfg.InputDir; each stage writes into a fresh directory under the work root
// which then becomes the next stage's input. The config is re-validated
// before anything spawns.
//
// A non-nil error means the run never started: the config failed validation
// or the work area could not be prepared. Once stages execute, failures are
// reported through the result — a stage that exits nonzero, fails to spawn,
// or is cancelled stops the run at that index with the remaining stages
// unattempted, and Execute itself returns nil.
func (e *Executor) Execute(ctx context.Context, cfg Config, onStageEvent func(StageEvent)) (RunResult, error) {
	result := RunResult{FailedStage: -1}

	if validation := Validate(e.registry, cfg); !validation.Valid {
		return result, services.Wrap(services.ErrValidation, "pipeline", "execute", validation.Reason, nil)
	}
	if cfg.InputDir == "" {
		return result, services.Wrap(services.ErrValidation, "pipeline", "execute", "input directory must be set", nil)
	}
	info, err := os.Stat(cfg.InputDir)
	if err != nil {
		return result, services.Wrap(services.ErrValidation, "pipeline", "execute",
			fmt.Sprintf("input directory %s is not readable", cfg.InputDir), err)
	}
	if !info.IsDir() {
		return result, services.Wrap(services.ErrValidation, "pipeline", "execute",
			fmt.Sprintf("input path %s is not a directory", cfg.InputDir), nil)
	}

	runDir := filepath.Join(e.workRoot, "run-"+uuid.NewString()[:8])
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrConfiguration, "pipeline", "execute", "create work directory", err)
	}
	result.WorkDir = runDir

	logger := logging.WithContext(ctx, e.logger)
	logger.Info("pipeline started",
		logging.Int("stages", len(cfg.Stages)),
		logging.String("input_dir", cfg.InputDir),
		logging.String("work_dir", runDir))

	inputDir := cfg.InputDir
	for i, stage := range cfg.Stages {
		stageResult := e.runStage(ctx, runDir, inputDir, i, len(cfg.Stages), stage, onStageEvent)
		result.StageResults = append(result.StageResults, stageResult)
		if stageResult.Cancelled {
			result.Cancelled = true
			result.FailedStage = i
			break
		}
		if !stageResult.Success {
			result.FailedStage = i
			break
		}
		inputDir = stageResult.OutputDir
	}

	if result.FailedStage == -1 {
		result.OverallSuccess = true
		result.FinalOutputDir = result.StageResults[len(result.StageResults)-1].OutputDir
		e.removeIntermediates(logger, result.StageResults)
		logger.Info("pipeline completed",
			logging.Int("stages", len(result.StageResults)),
			logging.String("output_dir", result.FinalOutputDir))
	}
	return result, nil
}

func (e *Executor) runStage(ctx context.Context, runDir, inputDir string, index, total int, stage Stage, onStageEvent func(StageEvent)) StageResult {
	manifest, err := e.registry.Get(stage.PluginID)
	if err != nil {
		return StageResult{PluginID: stage.PluginID, Err: err}
	}
	script := stage.Script
	if script == "" {
		script = manifest.EntryPoints[0]
	}

	result := StageResult{PluginID: stage.PluginID, Script: script}

	stageCtx := services.WithStage(ctx, fmt.Sprintf("stage %d/%d", index+1, total))
	stageCtx = services.WithPlugin(stageCtx, stage.PluginID)
	logger := logging.WithContext(stageCtx, e.logger)

	scriptPath, err := e.registry.EntryPointPath(stage.PluginID, script)
	if err != nil {
		result.Err = err
		logger.Error("stage script unavailable", logging.Error(err))
		return result
	}

	outputDir := filepath.Join(runDir, fmt.Sprintf("stage-%02d-%s", index+1, stage.PluginID))
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		result.Err = services.Wrap(services.ErrConfiguration, "pipeline", "stage", "create stage output directory", err)
		return result
	}
	result.OutputDir = outputDir

	args := buildStageArgs(scriptPath, inputDir, outputDir, manifest, stage.Parameters)
	logger.Info("stage started",
		logging.String("script", script),
		logging.String("input_dir", inputDir),
		logging.String("output_dir", outputDir))

	started := time.Now()
	streamResult, runErr := e.runner.RunStreaming(stageCtx, e.interpreter, args, func(event protocol.Event) {
		if onStageEvent != nil {
			onStageEvent(StageEvent{StageIndex: index, PluginID: stage.PluginID, Event: event})
		}
	})
	result.Duration = time.Since(started)
	result.ExitCode = streamResult.ExitCode
	result.Stderr = streamResult.Stderr

	switch {
	case runErr != nil:
		result.Err = runErr
		logger.Error("stage did not run", logging.Error(runErr))
	case streamResult.State == runner.StateCancelled:
		result.Cancelled = true
		logger.Info("stage cancelled", logging.Duration("stage_duration", result.Duration))
	case !streamResult.Success():
		logger.Warn("stage failed",
			logging.Int("exit_code", streamResult.ExitCode),
			logging.Duration("stage_duration", result.Duration))
	default:
		result.Success = true
		logger.Info("stage completed", logging.Duration("stage_duration", result.Duration))
	}
	return result
}

// buildStageArgs assembles the worker command line: the script itself, the
// fixed input/output directory flags, then schema parameters in sorted name
// order. A parameter missing from the stage takes its schema default or is
// omitted. Boolean parameters appear as bare flags when their value parses
// true and are omitted otherwise.
func buildStageArgs(scriptPath, inputDir, outputDir string, manifest project.Manifest, params map[string]string) []string {
	args := []string{scriptPath, "--input", inputDir, "--output", outputDir}
	for _, name := range manifest.ParameterNames() {
		param := manifest.Parameters[name]
		value, supplied := params[name]
		if !supplied {
			if !param.HasDefault {
				continue
			}
			value = param.Default
		}
		switch param.Type {
		case "bool", "boolean", "flag":
			if enabled, err := strconv.ParseBool(value); err == nil && enabled {
				args = append(args, param.Flag)
			}
		default:
			args = append(args, param.Flag, value)
		}
	}
	return args
}

// removeIntermediates drops every stage directory except the last after a
// fully successful run. Failed and cancelled runs keep their directories so
// the partial output stays inspectable.
func (e *Executor) removeIntermediates(logger *slog.Logger, stages []StageResult) {
	if e.keepStageDirs || len(stages) < 2 {
		return
	}
	for _, stage := range stages[:len(stages)-1] {
		if err := os.RemoveAll(stage.OutputDir); err != nil {
			logger.Warn("failed to remove intermediate stage directory",
				logging.String("dir", stage.OutputDir),
				logging.Error(err))
		}
	}
}
