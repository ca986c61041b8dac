package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"platen/internal/history"
)

// Sentinel errors shared across platen components. Wrap attaches one of these
// markers so callers can branch with errors.Is regardless of how much detail
// was layered on top.
var (
	// ErrValidation indicates invalid input: a malformed pipeline, unknown
	// parameter, or missing required value.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration indicates unusable configuration, such as a missing
	// work directory or interpreter.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound indicates a missing project, entry point, or run record.
	ErrNotFound = errors.New("not found")

	// ErrSpawn indicates a worker process that could not be started.
	ErrSpawn = errors.New("spawn failed")

	// ErrExternalTool indicates a worker process that started but could not
	// be supervised to completion.
	ErrExternalTool = errors.New("external tool error")

	// ErrBusy indicates that another run is already active.
	ErrBusy = errors.New("orchestrator busy")

	// ErrCancelled indicates a run stopped by an explicit cancel request.
	ErrCancelled = errors.New("run cancelled")
)

// Wrap layers component and operation detail onto a sentinel marker. Message
// and err are optional; empty values are omitted from the detail string.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{component, operation, message} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return "operation failed"
	}
	return strings.Join(parts, ": ")
}

// FailureStatus maps an error to the history status a failed run should
// record. Cancellation is a terminal state of its own, not a failure.
func FailureStatus(err error) history.Status {
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return history.StatusCancelled
	}
	return history.StatusFailed
}
