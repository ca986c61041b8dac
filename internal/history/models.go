package history

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus converts user input into a Status.
func ParseStatus(raw string) (Status, error) {
	candidate := Status(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := statusSet[candidate]; !ok {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return candidate, nil
}

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Kind distinguishes single-script runs from pipeline runs.
type Kind string

const (
	KindScript   Kind = "script"
	KindPipeline Kind = "pipeline"
)

// Run is one orchestrated execution, either a single worker script or a
// multi-stage pipeline.
type Run struct {
	ID              string
	Kind            Kind
	Label           string
	StageCount      int
	Status          Status
	ExitCode        int
	ErrorMessage    string
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	OutputDir       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// NewRun builds a pending run record.
func NewRun(id string, kind Kind, label string, stageCount int) *Run {
	now := time.Now().UTC()
	if stageCount < 1 {
		stageCount = 1
	}
	return &Run{
		ID:         id,
		Kind:       kind,
		Label:      label,
		StageCount: stageCount,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkStarted transitions the run to running and stamps the start time.
func (r *Run) MarkStarted() {
	now := time.Now().UTC()
	r.Status = StatusRunning
	r.StartedAt = &now
}

// SetProgress updates the live progress fields.
func (r *Run) SetProgress(stage, message string, percent float64) {
	r.ProgressStage = stage
	r.ProgressMessage = message
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	r.ProgressPercent = percent
}

// MarkCompleted transitions the run to its exit-code determined end state.
// A zero exit code completes the run; anything else fails it.
func (r *Run) MarkCompleted(exitCode int, outputDir string) {
	now := time.Now().UTC()
	r.ExitCode = exitCode
	r.OutputDir = outputDir
	r.FinishedAt = &now
	if exitCode == 0 {
		r.Status = StatusCompleted
		r.ProgressPercent = 100
		return
	}
	r.Status = StatusFailed
	if r.ErrorMessage == "" {
		r.ErrorMessage = fmt.Sprintf("worker exited with code %d", exitCode)
	}
}

// MarkFailed transitions the run to failed with an explanatory message.
func (r *Run) MarkFailed(message string) {
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.FinishedAt = &now
}

// MarkCancelled transitions the run to the cancelled end state.
func (r *Run) MarkCancelled() {
	now := time.Now().UTC()
	r.Status = StatusCancelled
	r.FinishedAt = &now
}

// Duration returns the wall-clock run time, or zero when it never started.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	return end.Sub(*r.StartedAt)
}
