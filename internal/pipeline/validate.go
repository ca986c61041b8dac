package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"platen/internal/project"
	"platen/internal/services"
)

// ValidationResult reports whether a pipeline config may execute. Reason is
// set only when Valid is false and names the first violation found; later
// violations are not aggregated.
type ValidationResult struct {
	Valid  bool
	Reason string
}

func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks config against the registry before anything spawns.
// Checks run in order, short-circuiting on the first violation: stages must
// be non-empty, every plugin id must resolve, no stage may reference a
// pipeline-orchestrator project, stage scripts must be listed entry points,
// and supplied parameters must match the project's schema with every
// required parameter either supplied or defaulted.
func Validate(registry *project.Registry, cfg Config) ValidationResult {
	if registry == nil {
		return invalid("project registry unavailable")
	}
	if len(cfg.Stages) == 0 {
		return invalid("pipeline has no stages")
	}

	manifests := make([]project.Manifest, len(cfg.Stages))
	for i, stage := range cfg.Stages {
		manifest, err := registry.Get(stage.PluginID)
		if err != nil {
			return invalid("stage %d references unknown project %q", i+1, stage.PluginID)
		}
		manifests[i] = manifest
	}

	for i, stage := range cfg.Stages {
		if manifests[i].PipelineCapable {
			return invalid("stage %d: project %q is a pipeline orchestrator and cannot run as a stage", i+1, stage.PluginID)
		}
	}

	for i, stage := range cfg.Stages {
		if stage.Script == "" {
			continue
		}
		if _, err := manifests[i].ResolveEntryPoint(stage.Script); err != nil {
			if errors.Is(err, services.ErrValidation) {
				return invalid("stage %d: script name %q is ambiguous in project %q", i+1, stage.Script, stage.PluginID)
			}
			return invalid("stage %d: project %q has no script %q", i+1, stage.PluginID, stage.Script)
		}
	}

	for i, stage := range cfg.Stages {
		manifest := manifests[i]

		supplied := make([]string, 0, len(stage.Parameters))
		for name := range stage.Parameters {
			supplied = append(supplied, name)
		}
		sort.Strings(supplied)
		for _, name := range supplied {
			if _, ok := manifest.Parameters[name]; !ok {
				return invalid("stage %d: project %q does not declare parameter %q", i+1, stage.PluginID, name)
			}
		}

		for _, name := range manifest.ParameterNames() {
			param := manifest.Parameters[name]
			if !param.Required || param.HasDefault {
				continue
			}
			if _, ok := stage.Parameters[name]; !ok {
				return invalid("stage %d: project %q is missing required parameter %q", i+1, stage.PluginID, name)
			}
		}
	}

	return ValidationResult{Valid: true}
}
