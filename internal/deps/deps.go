// Package deps reports availability of the external commands and directories
// the daemon depends on. Both the daemon startup path and the status command
// use it so the requirement list exists in exactly one place.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"platen/internal/config"
)

// Requirement defines an external command platen relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Check evaluates the provided requirements against PATH.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		command := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     command,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if command == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(command)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", command)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// SystemRequirements builds the daemon's requirement list from config.
func SystemRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "Python interpreter",
			Command:     cfg.Python.Interpreter,
			Description: "Runs project worker scripts",
		},
		{
			Name:        "pip",
			Command:     "pip3",
			Description: "Installs project requirements.txt dependencies",
			Optional:    true,
		},
	}
}

// CheckSystem evaluates every configured requirement.
func CheckSystem(cfg *config.Config) []Status {
	return Check(SystemRequirements(cfg))
}

// CheckDirectoryAccess verifies that path is a directory the daemon can read,
// write, and traverse.
func CheckDirectoryAccess(name, path string) Status {
	status := Status{Name: name, Command: path}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			status.Detail = "does not exist"
			return status
		}
		status.Detail = fmt.Sprintf("stat: %v", err)
		return status
	}
	if !info.IsDir() {
		status.Detail = "is not a directory"
		return status
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		status.Detail = fmt.Sprintf("insufficient permissions: %v", err)
		return status
	}
	status.Available = true
	status.Detail = "read/write ok"
	return status
}

// CheckDirectories evaluates the directories the daemon works in: scratch
// space, logs, and every project root.
func CheckDirectories(cfg *config.Config) []Status {
	results := []Status{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	for _, root := range cfg.ProjectRoots() {
		results = append(results, CheckDirectoryAccess("Project root "+filepath.Base(root), root))
	}
	return results
}
