package config

const (
	defaultProjectsDir   = "~/.local/share/platen/projects"
	defaultWorkDir       = "~/.local/share/platen/work"
	defaultLogDir        = "~/.local/share/platen/logs"
	defaultInterpreter   = "python3"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultScriptTimeout = 0
)

// Default returns the built-in configuration used before any file overrides.
func Default() *Config {
	return &Config{
		Paths: Paths{
			ProjectsDir: defaultProjectsDir,
			WorkDir:     defaultWorkDir,
			LogDir:      defaultLogDir,
		},
		Python: Python{
			Interpreter: defaultInterpreter,
		},
		Workflow: Workflow{
			KeepStageDirs: false,
			ScriptTimeout: defaultScriptTimeout,
			WatchProjects: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
