package pipeline

import (
	"strings"
	"testing"

	"platen/internal/logging"
	"platen/internal/project"
	"platen/internal/testsupport"
)

func newTestRegistry(t *testing.T) *project.Registry {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	root := cfg.Paths.ProjectsDir

	testsupport.WriteManifest(t, root, "deskew", map[string]any{
		"name":           "Deskew",
		"python_scripts": []string{"scripts/deskew.py"},
		"pipeline_parameters": map[string]any{
			"angle":     map[string]any{"flag": "--angle", "type": "float", "default": 40},
			"threshold": map[string]any{"flag": "--threshold", "type": "int", "required": true},
		},
	})
	testsupport.WriteManifest(t, root, "pagesplit", map[string]any{
		"name":           "Page Split",
		"python_scripts": []string{"scripts/split_pages.py"},
	})
	testsupport.WriteManifest(t, root, "orchestrate", map[string]any{
		"name":           "Pipeline Orchestrator",
		"type":           "pipeline",
		"python_scripts": []string{"scripts/run_pipeline.py"},
	})

	registry := project.NewRegistry(cfg.ProjectRoots(), logging.NewNop())
	if _, err := registry.Load(); err != nil {
		t.Fatalf("registry load: %v", err)
	}
	return registry
}

func TestValidate(t *testing.T) {
	registry := newTestRegistry(t)

	tests := []struct {
		name       string
		cfg        Config
		wantValid  bool
		wantReason string
	}{
		{
			name:       "empty pipeline",
			cfg:        Config{},
			wantReason: "no stages",
		},
		{
			name: "unknown project",
			cfg: Config{Stages: []Stage{
				{PluginID: "ghost"},
			}},
			wantReason: `unknown project "ghost"`,
		},
		{
			name: "orchestrator as stage",
			cfg: Config{Stages: []Stage{
				{PluginID: "deskew", Parameters: map[string]string{"threshold": "8"}},
				{PluginID: "orchestrate"},
			}},
			wantReason: `"orchestrate" is a pipeline orchestrator`,
		},
		{
			name: "resolution checked before eligibility",
			cfg: Config{Stages: []Stage{
				{PluginID: "orchestrate"},
				{PluginID: "ghost"},
			}},
			wantReason: `unknown project "ghost"`,
		},
		{
			name: "unknown script",
			cfg: Config{Stages: []Stage{
				{PluginID: "pagesplit", Script: "scripts/missing.py"},
			}},
			wantReason: `no script "scripts/missing.py"`,
		},
		{
			name: "undeclared parameter",
			cfg: Config{Stages: []Stage{
				{PluginID: "pagesplit", Parameters: map[string]string{"dpi": "300"}},
			}},
			wantReason: `does not declare parameter "dpi"`,
		},
		{
			name: "missing required parameter",
			cfg: Config{Stages: []Stage{
				{PluginID: "deskew"},
			}},
			wantReason: `missing required parameter "threshold"`,
		},
		{
			name: "defaulted parameter may be omitted",
			cfg: Config{Stages: []Stage{
				{PluginID: "deskew", Parameters: map[string]string{"threshold": "8"}},
			}},
			wantValid: true,
		},
		{
			name: "full pipeline",
			cfg: Config{Stages: []Stage{
				{PluginID: "pagesplit", Script: "split_pages.py"},
				{PluginID: "deskew", Parameters: map[string]string{"threshold": "8", "angle": "2.5"}},
			}},
			wantValid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := Validate(registry, tc.cfg)
			if result.Valid != tc.wantValid {
				t.Fatalf("Valid = %v (reason %q), want %v", result.Valid, result.Reason, tc.wantValid)
			}
			if tc.wantValid {
				if result.Reason != "" {
					t.Fatalf("Reason = %q, want empty", result.Reason)
				}
				return
			}
			if !strings.Contains(result.Reason, tc.wantReason) {
				t.Fatalf("Reason = %q, want mention of %q", result.Reason, tc.wantReason)
			}
		})
	}
}

func TestValidateWithoutRegistry(t *testing.T) {
	result := Validate(nil, Config{Stages: []Stage{{PluginID: "deskew"}}})
	if result.Valid {
		t.Fatal("nil registry must not validate")
	}
}
