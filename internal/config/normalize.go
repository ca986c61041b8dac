package config

import "strings"

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePython()
	c.normalizeWorkflow()
	c.normalizeLogging()
	if err := c.normalizeIPC(); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ProjectsDir, err = expandPath(c.Paths.ProjectsDir); err != nil {
		return err
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	extras := make([]string, 0, len(c.Paths.ExtraProjectDirs))
	for _, dir := range c.Paths.ExtraProjectDirs {
		expanded, expandErr := expandPath(dir)
		if expandErr != nil {
			return expandErr
		}
		if expanded == "" {
			continue
		}
		extras = append(extras, expanded)
	}
	c.Paths.ExtraProjectDirs = extras
	return nil
}

func (c *Config) normalizePython() {
	c.Python.Interpreter = strings.TrimSpace(c.Python.Interpreter)
	if c.Python.Interpreter == "" {
		c.Python.Interpreter = defaultInterpreter
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.ScriptTimeout < 0 {
		c.Workflow.ScriptTimeout = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeIPC() error {
	var err error
	if c.IPC.SocketPath, err = expandPath(c.IPC.SocketPath); err != nil {
		return err
	}
	return nil
}
