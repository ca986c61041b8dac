package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfigTemplate string

// Paths describes where platen keeps projects, scratch space, and logs.
type Paths struct {
	ProjectsDir      string   `toml:"projects_dir"`
	ExtraProjectDirs []string `toml:"extra_project_dirs"`
	WorkDir          string   `toml:"work_dir"`
	LogDir           string   `toml:"log_dir"`
}

// Python configures the interpreter used to spawn worker scripts.
type Python struct {
	Interpreter string `toml:"interpreter"`
}

// Workflow configures run execution policy.
type Workflow struct {
	KeepStageDirs bool `toml:"keep_stage_dirs"`
	ScriptTimeout int  `toml:"script_timeout"`
	WatchProjects bool `toml:"watch_projects"`
}

// Logging configures daemon log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// IPC configures the daemon control socket.
type IPC struct {
	SocketPath string `toml:"socket_path"`
}

// Config is the root configuration shared by the daemon and the CLI.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Python   Python   `toml:"python"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
	IPC      IPC      `toml:"ipc"`
}

// DefaultConfigPath returns the canonical user config location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", "platen", "config.toml"), nil
}

// Load reads configuration from path. When path is empty the default location
// is used, falling back to ./platen.toml when the default file is absent. The
// returned values are the populated config, the path that was consulted, and
// whether a file actually existed there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	exists := false
	if resolved != "" {
		file, err := os.Open(resolved)
		switch {
		case err == nil:
			exists = true
			decoder := toml.NewDecoder(file)
			decodeErr := decoder.Decode(cfg)
			closeErr := file.Close()
			if decodeErr != nil {
				return nil, resolved, true, fmt.Errorf("parse config %s: %w", resolved, decodeErr)
			}
			if closeErr != nil {
				return nil, resolved, true, fmt.Errorf("close config %s: %w", resolved, closeErr)
			}
		case errors.Is(err, fs.ErrNotExist):
			// Defaults apply when no file exists.
		default:
			return nil, resolved, false, fmt.Errorf("open config %s: %w", resolved, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, resolved, exists, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, resolved, exists, err
	}
	return cfg, resolved, exists, nil
}

func resolveConfigPath(path string) (string, error) {
	if strings.TrimSpace(path) != "" {
		return expandPath(path)
	}

	primary, err := DefaultConfigPath()
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(primary); statErr == nil {
		return primary, nil
	}

	local, err := filepath.Abs("platen.toml")
	if err != nil {
		return primary, nil
	}
	if _, statErr := os.Stat(local); statErr == nil {
		return local, nil
	}
	return primary, nil
}

// ProjectRoots returns the ordered list of directories scanned for projects.
// The primary projects directory always comes first; earlier roots shadow
// later ones when two directories declare the same project id.
func (c *Config) ProjectRoots() []string {
	roots := make([]string, 0, len(c.Paths.ExtraProjectDirs)+1)
	seen := make(map[string]struct{}, len(c.Paths.ExtraProjectDirs)+1)
	for _, root := range append([]string{c.Paths.ProjectsDir}, c.Paths.ExtraProjectDirs...) {
		if root == "" {
			continue
		}
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		roots = append(roots, root)
	}
	return roots
}

// SocketPath returns the daemon control socket location. The ipc section
// can override the default next to the log files.
func (c *Config) SocketPath() string {
	if c.IPC.SocketPath != "" {
		return c.IPC.SocketPath
	}
	return filepath.Join(c.Paths.LogDir, "platend.sock")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "platend.lock")
}

// DatabasePath returns the run history database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.LogDir, "history.db")
}

// LogFilePath returns the daemon log file location.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "platend.log")
}

// EnsureDirectories creates the directories platen writes to. The project
// roots are created best-effort so a read-only bundled root does not prevent
// startup.
func (c *Config) EnsureDirectories() error {
	required := []string{c.Paths.WorkDir, c.Paths.LogDir}
	for _, dir := range required {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	for _, dir := range c.ProjectRoots() {
		_ = os.MkdirAll(dir, 0o755)
	}
	return nil
}

// CreateSample writes a commented sample configuration file to path,
// replacing whatever is there. Callers that must not clobber an existing
// file check first.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath expands a leading tilde and returns an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate home directory: %w", err)
		}
		trimmed = filepath.Join(home, trimmed[2:])
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	return abs, nil
}
