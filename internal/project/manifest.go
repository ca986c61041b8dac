package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"platen/internal/services"
)

// ManifestFileName is the manifest each project directory must contain.
const ManifestFileName = "project.json"

// idPattern constrains project directory names: lowercase alphanumeric,
// starting with a letter.
var idPattern = regexp.MustCompile(`^[a-z][a-z0-9]*$`)

// ValidID reports whether name is usable as a project id.
func ValidID(name string) bool {
	return idPattern.MatchString(name)
}

// Parameter describes one pipeline parameter a project accepts.
type Parameter struct {
	Flag       string
	Type       string
	Default    string
	HasDefault bool
	Required   bool
}

// Manifest is the loaded description of one project.
type Manifest struct {
	ID              string
	DisplayName     string
	Description     string
	Main            string
	Dir             string
	EntryPoints     []string
	Requirements    string
	Parameters      map[string]Parameter
	PipelineCapable bool
}

// Clone returns a deep copy so callers can hold or mutate the result without
// touching registry state.
func (m Manifest) Clone() Manifest {
	clone := m
	clone.EntryPoints = append([]string(nil), m.EntryPoints...)
	if m.Parameters != nil {
		clone.Parameters = make(map[string]Parameter, len(m.Parameters))
		for name, param := range m.Parameters {
			clone.Parameters[name] = param
		}
	}
	return clone
}

// ParameterNames returns the schema keys in sorted order.
func (m Manifest) ParameterNames() []string {
	names := make([]string, 0, len(m.Parameters))
	for name := range m.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveEntryPoint maps script to the manifest entry it names. The script
// may be given exactly as listed or by its base name when that base name is
// unique among the entry points.
func (m Manifest) ResolveEntryPoint(script string) (string, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return "", services.Wrap(services.ErrValidation, "registry", "entry point", "script name must not be empty", nil)
	}

	normalized := filepath.ToSlash(script)
	var baseMatches []string
	for _, candidate := range m.EntryPoints {
		if filepath.ToSlash(candidate) == normalized {
			return candidate, nil
		}
		if filepath.Base(filepath.FromSlash(candidate)) == script {
			baseMatches = append(baseMatches, candidate)
		}
	}
	switch len(baseMatches) {
	case 1:
		return baseMatches[0], nil
	case 0:
		return "", services.Wrap(services.ErrNotFound, "registry", "entry point",
			fmt.Sprintf("project %q has no script %q", m.ID, script), nil)
	default:
		return "", services.Wrap(services.ErrValidation, "registry", "entry point",
			fmt.Sprintf("script name %q is ambiguous in project %q (%s)", script, m.ID, strings.Join(baseMatches, ", ")), nil)
	}
}

type manifestFile struct {
	Name               string                   `json:"name"`
	Description        string                   `json:"description"`
	Main               string                   `json:"main"`
	PythonScripts      []string                 `json:"python_scripts"`
	Requirements       string                   `json:"requirements"`
	PipelineParameters map[string]parameterFile `json:"pipeline_parameters"`
	Type               string                   `json:"type"`
}

type parameterFile struct {
	Flag     string `json:"flag"`
	Type     string `json:"type"`
	Default  any    `json:"default"`
	Required bool   `json:"required"`
}

// ParseManifest reads and validates the manifest inside dir, producing the
// manifest for the project identified by id.
func ParseManifest(dir, id string) (Manifest, error) {
	path := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var file manifestFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	name := strings.TrimSpace(file.Name)
	if name == "" {
		return Manifest{}, fmt.Errorf("manifest %s: name must be set", path)
	}
	if len(file.PythonScripts) == 0 {
		return Manifest{}, fmt.Errorf("manifest %s: python_scripts must list at least one script", path)
	}

	seen := make(map[string]struct{}, len(file.PythonScripts))
	scripts := make([]string, 0, len(file.PythonScripts))
	for _, script := range file.PythonScripts {
		script = strings.TrimSpace(script)
		if script == "" {
			return Manifest{}, fmt.Errorf("manifest %s: python_scripts contains an empty entry", path)
		}
		if !filepath.IsLocal(script) {
			return Manifest{}, fmt.Errorf("manifest %s: script %q must stay inside the project directory", path, script)
		}
		normalized := filepath.ToSlash(script)
		if _, dup := seen[normalized]; dup {
			return Manifest{}, fmt.Errorf("manifest %s: script %q listed twice", path, script)
		}
		seen[normalized] = struct{}{}
		scripts = append(scripts, script)
	}

	params := make(map[string]Parameter, len(file.PipelineParameters))
	for paramName, raw := range file.PipelineParameters {
		paramName = strings.TrimSpace(paramName)
		if paramName == "" {
			return Manifest{}, fmt.Errorf("manifest %s: pipeline_parameters contains an empty name", path)
		}
		param := Parameter{
			Flag:     strings.TrimSpace(raw.Flag),
			Type:     strings.ToLower(strings.TrimSpace(raw.Type)),
			Required: raw.Required,
		}
		if param.Flag == "" {
			param.Flag = "--" + paramName
		}
		if raw.Default != nil {
			param.Default = coerceString(raw.Default)
			param.HasDefault = true
		}
		params[paramName] = param
	}

	return Manifest{
		ID:              id,
		DisplayName:     name,
		Description:     strings.TrimSpace(file.Description),
		Main:            strings.TrimSpace(file.Main),
		Dir:             dir,
		EntryPoints:     scripts,
		Requirements:    strings.TrimSpace(file.Requirements),
		Parameters:      params,
		PipelineCapable: strings.EqualFold(strings.TrimSpace(file.Type), "pipeline"),
	}, nil
}

// coerceString renders a JSON scalar the way it will appear on a worker
// command line. Floats that carry no fraction print as integers so a default
// of 40 does not become "40.000000".
func coerceString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// CoerceString is the exported form used when reading parameter values from
// YAML pipeline files.
func CoerceString(value any) string {
	return coerceString(value)
}
