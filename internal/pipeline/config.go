package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"platen/internal/config"
	"platen/internal/project"
	"platen/internal/services"
)

// Stage names one project invocation within a pipeline. Script may be empty,
// in which case the project's first entry point runs. Parameter values are
// strings; numeric and boolean YAML scalars are rendered the way they will
// appear on the worker command line.
type Stage struct {
	PluginID   string
	Script     string
	Parameters map[string]string
}

// Config describes a pipeline run: the directory the first stage reads from
// and the ordered stages to execute. Stage order is execution order.
type Config struct {
	InputDir string
	Stages   []Stage
}

type stageFile struct {
	Plugin string         `yaml:"plugin"`
	Script string         `yaml:"script"`
	Params map[string]any `yaml:"params"`
}

type configFile struct {
	InputDir string      `yaml:"input_dir"`
	Stages   []stageFile `yaml:"stages"`
}

// LoadConfig reads a pipeline definition from a YAML file. Relative input
// directories resolve against the caller's working directory, so definitions
// can live next to the image sets they process.
func LoadConfig(path string) (Config, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return Config{}, services.Wrap(services.ErrValidation, "pipeline", "load", "resolve pipeline file", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return Config{}, services.Wrap(services.ErrValidation, "pipeline", "load", "read pipeline file", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig decodes a YAML pipeline definition and normalizes it.
func ParseConfig(data []byte) (Config, error) {
	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, services.Wrap(services.ErrValidation, "pipeline", "parse", "decode pipeline definition", err)
	}

	cfg := Config{
		InputDir: strings.TrimSpace(file.InputDir),
		Stages:   make([]Stage, 0, len(file.Stages)),
	}
	if cfg.InputDir != "" {
		expanded, err := config.ExpandPath(cfg.InputDir)
		if err != nil {
			return Config{}, services.Wrap(services.ErrValidation, "pipeline", "parse", "resolve input_dir", err)
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return Config{}, services.Wrap(services.ErrValidation, "pipeline", "parse", "resolve input_dir", err)
		}
		cfg.InputDir = abs
	}

	for i, raw := range file.Stages {
		stage := Stage{
			PluginID: strings.TrimSpace(raw.Plugin),
			Script:   strings.TrimSpace(raw.Script),
		}
		if stage.PluginID == "" {
			return Config{}, services.Wrap(services.ErrValidation, "pipeline", "parse",
				fmt.Sprintf("stage %d is missing a plugin id", i+1), nil)
		}
		if len(raw.Params) > 0 {
			stage.Parameters = make(map[string]string, len(raw.Params))
			for name, value := range raw.Params {
				name = strings.TrimSpace(name)
				if name == "" {
					return Config{}, services.Wrap(services.ErrValidation, "pipeline", "parse",
						fmt.Sprintf("stage %d has a parameter with an empty name", i+1), nil)
				}
				stage.Parameters[name] = project.CoerceString(value)
			}
		}
		cfg.Stages = append(cfg.Stages, stage)
	}
	return cfg, nil
}
