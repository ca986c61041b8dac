package services

import "context"

type contextKey string

const (
	runIDKey  contextKey = "run_id"
	pluginKey contextKey = "plugin"
	scriptKey contextKey = "script"
	stageKey  contextKey = "stage"
)

// WithRunID attaches a run identifier to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(runIDKey).(string)
	return value, ok && value != ""
}

// WithPlugin attaches a project id to the context.
func WithPlugin(ctx context.Context, plugin string) context.Context {
	if plugin == "" {
		return ctx
	}
	return context.WithValue(ctx, pluginKey, plugin)
}

// PluginFromContext extracts the project id if present.
func PluginFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(pluginKey).(string)
	return value, ok && value != ""
}

// WithScript attaches a worker script name to the context.
func WithScript(ctx context.Context, script string) context.Context {
	if script == "" {
		return ctx
	}
	return context.WithValue(ctx, scriptKey, script)
}

// ScriptFromContext extracts the worker script name if present.
func ScriptFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(scriptKey).(string)
	return value, ok && value != ""
}

// WithStage attaches a pipeline stage label to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext extracts the pipeline stage label if present.
func StageFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(stageKey).(string)
	return value, ok && value != ""
}
