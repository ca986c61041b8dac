package ipc

import (
	"time"

	"platen/internal/daemon"
	"platen/internal/deps"
	"platen/internal/history"
	"platen/internal/orchestrator"
	"platen/internal/pipeline"
	"platen/internal/project"
)

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// DependencyStatus describes availability of an external dependency or
// directory.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail"`
}

// StatusResponse represents combined daemon status information.
type StatusResponse struct {
	Running          bool               `json:"running"`
	PID              int                `json:"pid"`
	StartedAt        time.Time          `json:"started_at"`
	SocketPath       string             `json:"socket_path"`
	LockPath         string             `json:"lock_path"`
	DatabasePath     string             `json:"database_path"`
	LogPath          string             `json:"log_path"`
	ProjectCount     int                `json:"project_count"`
	ProjectsStale    bool               `json:"projects_stale"`
	ProjectsLoadedAt time.Time          `json:"projects_loaded_at"`
	ActiveRun        *Run               `json:"active_run,omitempty"`
	RunStats         map[string]int     `json:"run_stats"`
	Dependencies     []DependencyStatus `json:"dependencies"`
	Directories      []DependencyStatus `json:"directories"`
}

// StopRequest shuts the daemon process down.
type StopRequest struct{}

// StopResponse indicates stop acknowledgement.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// Run is the wire representation of a recorded run.
type Run struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`
	Label           string     `json:"label"`
	StageCount      int        `json:"stage_count"`
	Status          string     `json:"status"`
	ExitCode        int        `json:"exit_code"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ProgressStage   string     `json:"progress_stage,omitempty"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	ProgressPercent float64    `json:"progress_percent"`
	OutputDir       string     `json:"output_dir,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// FromRun converts a history row into its wire form.
func FromRun(run *history.Run) *Run {
	if run == nil {
		return nil
	}
	return &Run{
		ID:              run.ID,
		Kind:            string(run.Kind),
		Label:           run.Label,
		StageCount:      run.StageCount,
		Status:          string(run.Status),
		ExitCode:        run.ExitCode,
		ErrorMessage:    run.ErrorMessage,
		ProgressStage:   run.ProgressStage,
		ProgressMessage: run.ProgressMessage,
		ProgressPercent: run.ProgressPercent,
		OutputDir:       run.OutputDir,
		CreatedAt:       run.CreatedAt,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
	}
}

// ProjectParameter describes one pipeline parameter of a project.
type ProjectParameter struct {
	Name       string `json:"name"`
	Flag       string `json:"flag"`
	Type       string `json:"type"`
	Default    string `json:"default,omitempty"`
	HasDefault bool   `json:"has_default"`
	Required   bool   `json:"required"`
}

// Project is the wire representation of a loaded project manifest.
type Project struct {
	ID              string             `json:"id"`
	DisplayName     string             `json:"display_name"`
	Description     string             `json:"description,omitempty"`
	Dir             string             `json:"dir"`
	EntryPoints     []string           `json:"entry_points"`
	Requirements    string             `json:"requirements,omitempty"`
	PipelineCapable bool               `json:"pipeline_capable"`
	Parameters      []ProjectParameter `json:"parameters,omitempty"`
}

// FromManifest converts a manifest into its wire form, with parameters in
// name order.
func FromManifest(m project.Manifest) Project {
	p := Project{
		ID:              m.ID,
		DisplayName:     m.DisplayName,
		Description:     m.Description,
		Dir:             m.Dir,
		EntryPoints:     append([]string(nil), m.EntryPoints...),
		Requirements:    m.Requirements,
		PipelineCapable: m.PipelineCapable,
	}
	for _, name := range m.ParameterNames() {
		param := m.Parameters[name]
		p.Parameters = append(p.Parameters, ProjectParameter{
			Name:       name,
			Flag:       param.Flag,
			Type:       param.Type,
			Default:    param.Default,
			HasDefault: param.HasDefault,
			Required:   param.Required,
		})
	}
	return p
}

// ProjectListRequest fetches every loaded project.
type ProjectListRequest struct{}

// ProjectListResponse contains the loaded projects.
type ProjectListResponse struct {
	Projects []Project `json:"projects"`
	Stale    bool      `json:"stale"`
}

// ProjectShowRequest fetches a single project by id.
type ProjectShowRequest struct {
	ID string `json:"id"`
}

// ProjectShowResponse contains one project.
type ProjectShowResponse struct {
	Project Project `json:"project"`
}

// ProjectReloadRequest rescans the project roots.
type ProjectReloadRequest struct{}

// ProjectReloadResponse reports the number of projects loaded.
type ProjectReloadResponse struct {
	Count int `json:"count"`
}

// RunScriptRequest executes a worker script to completion.
type RunScriptRequest struct {
	Plugin string   `json:"plugin"`
	Script string   `json:"script,omitempty"`
	Args   []string `json:"args,omitempty"`
}

// RunScriptResponse carries the buffered outcome of a script run.
type RunScriptResponse struct {
	State    string `json:"state"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// RunStartRequest launches a streaming script run in the background.
type RunStartRequest struct {
	Plugin string   `json:"plugin"`
	Script string   `json:"script,omitempty"`
	Args   []string `json:"args,omitempty"`
}

// RunStartResponse returns the id of the launched run.
type RunStartResponse struct {
	RunID string `json:"run_id"`
}

// PipelineStage is the wire form of one pipeline stage.
type PipelineStage struct {
	Plugin string            `json:"plugin"`
	Script string            `json:"script,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// PipelineConfig is the wire form of a pipeline definition.
type PipelineConfig struct {
	InputDir string          `json:"input_dir"`
	Stages   []PipelineStage `json:"stages"`
}

// FromPipelineConfig converts a domain pipeline config into its wire form.
func FromPipelineConfig(cfg pipeline.Config) PipelineConfig {
	wire := PipelineConfig{InputDir: cfg.InputDir}
	for _, stage := range cfg.Stages {
		var params map[string]string
		if len(stage.Parameters) > 0 {
			params = make(map[string]string, len(stage.Parameters))
			for k, v := range stage.Parameters {
				params[k] = v
			}
		}
		wire.Stages = append(wire.Stages, PipelineStage{
			Plugin: stage.PluginID,
			Script: stage.Script,
			Params: params,
		})
	}
	return wire
}

// ToPipelineConfig converts the wire form back into a domain config.
func ToPipelineConfig(wire PipelineConfig) pipeline.Config {
	cfg := pipeline.Config{InputDir: wire.InputDir}
	for _, stage := range wire.Stages {
		var params map[string]string
		if len(stage.Params) > 0 {
			params = make(map[string]string, len(stage.Params))
			for k, v := range stage.Params {
				params[k] = v
			}
		}
		cfg.Stages = append(cfg.Stages, pipeline.Stage{
			PluginID:   stage.Plugin,
			Script:     stage.Script,
			Parameters: params,
		})
	}
	return cfg
}

// PipelineValidateRequest checks a pipeline against the loaded registry.
type PipelineValidateRequest struct {
	Pipeline PipelineConfig `json:"pipeline"`
}

// PipelineValidateResponse carries the validation verdict.
type PipelineValidateResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// PipelineStartRequest launches a pipeline run in the background.
type PipelineStartRequest struct {
	Pipeline PipelineConfig `json:"pipeline"`
}

// PipelineStartResponse returns the id of the launched run.
type PipelineStartResponse struct {
	RunID string `json:"run_id"`
}

// RunEvent is the wire form of one journaled worker event.
type RunEvent struct {
	Seq        int64     `json:"seq"`
	StageIndex int       `json:"stage_index"`
	PluginID   string    `json:"plugin_id,omitempty"`
	At         time.Time `json:"at"`
	Kind       string    `json:"kind"`
	Stage      string    `json:"stage,omitempty"`
	Message    string    `json:"message,omitempty"`
	Current    int       `json:"current,omitempty"`
	Total      int       `json:"total,omitempty"`
	Percent    float64   `json:"percent"`
	BytesSaved int64     `json:"bytes_saved,omitempty"`
	Errors     int       `json:"errors,omitempty"`
	Raw        string    `json:"raw,omitempty"`
}

// FromRunEvent converts a journaled event into its wire form.
func FromRunEvent(event orchestrator.RunEvent) RunEvent {
	return RunEvent{
		Seq:        event.Seq,
		StageIndex: event.StageIndex,
		PluginID:   event.PluginID,
		At:         event.At,
		Kind:       string(event.Event.Kind),
		Stage:      event.Event.Stage,
		Message:    event.Event.Message,
		Current:    event.Event.Current,
		Total:      event.Event.Total,
		Percent:    event.Event.Percent,
		BytesSaved: event.Event.BytesSaved,
		Errors:     event.Event.Errors,
		Raw:        event.Event.Raw,
	}
}

// RunEventsRequest long-polls a run's event journal.
type RunEventsRequest struct {
	RunID      string `json:"run_id"`
	AfterSeq   int64  `json:"after_seq"`
	WaitMillis int    `json:"wait_millis"`
}

// RunEventsResponse returns the next journaled events and whether the run
// has finished emitting.
type RunEventsResponse struct {
	Events []RunEvent `json:"events"`
	Done   bool       `json:"done"`
}

// CancelRequest cancels the active run.
type CancelRequest struct{}

// CancelResponse reports which run was cancelled, if any.
type CancelResponse struct {
	RunID     string `json:"run_id,omitempty"`
	Cancelled bool   `json:"cancelled"`
}

// RunsListRequest lists recorded runs.
type RunsListRequest struct {
	Limit    int      `json:"limit"`
	Statuses []string `json:"statuses,omitempty"`
}

// RunsListResponse contains recorded runs, newest first.
type RunsListResponse struct {
	Runs []Run `json:"runs"`
}

// RunsShowRequest fetches one recorded run.
type RunsShowRequest struct {
	ID string `json:"id"`
}

// RunsShowResponse contains one recorded run.
type RunsShowResponse struct {
	Run Run `json:"run"`
}

// RunsClearRequest removes finished runs from history.
type RunsClearRequest struct{}

// RunsClearResponse reports the number of removed rows.
type RunsClearResponse struct {
	Removed int `json:"removed"`
}

// LogTailRequest fetches daemon log lines based on offset semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

func fromDependencyStatuses(statuses []deps.Status) []DependencyStatus {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]DependencyStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, DependencyStatus(status))
	}
	return out
}

func fromStatus(status daemon.Status) StatusResponse {
	resp := StatusResponse{
		Running:          status.Running,
		PID:              status.PID,
		StartedAt:        status.StartedAt,
		SocketPath:       status.SocketPath,
		LockPath:         status.LockPath,
		DatabasePath:     status.DatabasePath,
		LogPath:          status.LogPath,
		ProjectCount:     status.ProjectCount,
		ProjectsStale:    status.ProjectsStale,
		ProjectsLoadedAt: status.ProjectsLoadedAt,
		ActiveRun:        FromRun(status.ActiveRun),
		Dependencies:     fromDependencyStatuses(status.Dependencies),
		Directories:      fromDependencyStatuses(status.Directories),
	}
	if status.ActiveRun == nil && status.ActiveRunID != "" {
		resp.ActiveRun = &Run{ID: status.ActiveRunID, Status: string(history.StatusRunning)}
	}
	if len(status.RunStats) > 0 {
		resp.RunStats = make(map[string]int, len(status.RunStats))
		for k, v := range status.RunStats {
			resp.RunStats[string(k)] = v
		}
	}
	return resp
}
