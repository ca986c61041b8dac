package config

import "fmt"

var validLogFormats = map[string]bool{
	"console": true,
	"json":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Paths.ProjectsDir == "" {
		return fmt.Errorf("paths.projects_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		return fmt.Errorf("paths.work_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return fmt.Errorf("paths.log_dir must be set")
	}
	if c.Paths.WorkDir == c.Paths.ProjectsDir {
		return fmt.Errorf("paths.work_dir must differ from paths.projects_dir")
	}
	if c.Python.Interpreter == "" {
		return fmt.Errorf("python.interpreter must be set")
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	return nil
}
