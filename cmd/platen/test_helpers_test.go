package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"platen/internal/config"
	"platen/internal/daemon"
	"platen/internal/history"
	"platen/internal/ipc"
	"platen/internal/logging"
	"platen/internal/orchestrator"
	"platen/internal/project"
	"platen/internal/runner"
	"platen/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *history.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	logPath    string
	cancel     context.CancelFunc
}

// setupCLITestEnv starts a daemon with two seeded projects and an IPC server
// on a per-test socket, returning everything a command invocation needs.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)

	deskewDir := testsupport.WriteManifest(t, cfg.Paths.ProjectsDir, "deskew", map[string]any{
		"name":           "Deskew",
		"description":    "Straighten scanned pages",
		"python_scripts": []string{"scripts/run.py"},
	})
	testsupport.WriteWorkerScript(t, deskewDir, "scripts/run.py", `echo "deskewed 4 pages"`)

	optimizeDir := testsupport.WriteManifest(t, cfg.Paths.ProjectsDir, "optimize", map[string]any{
		"name":           "Optimize",
		"description":    "Compress page images",
		"python_scripts": []string{"scripts/run.py"},
		"pipeline_parameters": map[string]any{
			"quality": map[string]any{
				"flag":    "--quality",
				"type":    "int",
				"default": 40,
			},
		},
	})
	testsupport.WriteWorkerScript(t, optimizeDir, "scripts/run.py", `
echo '{"type":"start","total":3}'
echo '{"type":"progress","current":2,"total":3,"percentage":66.0}'
echo '{"type":"complete","bytes_saved":2048}'`)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	logPath := cfg.LogFilePath()
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatalf("create log file: %v", err)
	}

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	registry := project.NewRegistry(cfg.ProjectRoots(), logger)
	run := runner.New(logger, runner.WithKillGrace(500*time.Millisecond))
	orch := orchestrator.New(cfg, registry, run, store, logger)

	d, err := daemon.New(cfg, store, registry, orch, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}

	socketPath := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		logPath:    logPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
