package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"platen/internal/history"
	"platen/internal/testsupport"
)

func TestCLIProjectsCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"projects", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("projects list: %v", err)
	}
	requireContains(t, out, "deskew")
	requireContains(t, out, "Deskew")
	requireContains(t, out, "optimize")
	requireContains(t, out, "Compress page images")

	out, _, err = runCLI(t, []string{"projects", "show", "optimize"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("projects show: %v", err)
	}
	requireContains(t, out, "Name:         Optimize")
	requireContains(t, out, "scripts/run.py")
	requireContains(t, out, "quality")
	requireContains(t, out, "--quality")
	requireContains(t, out, "40")

	if _, _, err := runCLI(t, []string{"projects", "show", "ghost"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error for unknown project")
	}

	out, _, err = runCLI(t, []string{"projects", "reload"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("projects reload: %v", err)
	}
	requireContains(t, out, "Reloaded 2 projects")
}

func TestCLIRunBuffered(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"run", "deskew"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("run deskew: %v", err)
	}
	requireContains(t, out, "deskewed 4 pages")
	requireContains(t, out, "Script completed")

	brokenDir := testsupport.WriteManifest(t, env.cfg.Paths.ProjectsDir, "broken", map[string]any{
		"name":           "Broken",
		"python_scripts": []string{"scripts/run.py"},
	})
	testsupport.WriteWorkerScript(t, brokenDir, "scripts/run.py", `echo "boom" >&2
exit 3`)
	out, _, err = runCLI(t, []string{"projects", "reload"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("projects reload: %v", err)
	}
	requireContains(t, out, "Reloaded 3 projects")

	_, stderr, err := runCLI(t, []string{"run", "broken"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected failing script to produce an error")
	}
	requireContains(t, err.Error(), "exit code 3")
	requireContains(t, stderr, "boom")

	if _, _, err := runCLI(t, []string{"run", "ghost"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error for unknown project")
	}
}

func TestCLIRunFollow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"run", "optimize", "--follow"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("run optimize --follow: %v", err)
	}
	requireContains(t, out, "started (3 units)")
	requireContains(t, out, "66.0% (2/3)")
	requireContains(t, out, "completed (saved 2.0 KiB)")
	requireContains(t, out, "Run ")
	requireContains(t, out, " completed")
}

func TestCLIPipelineCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	inputDir := filepath.Join(testsupport.BaseDir(env.cfg), "pages")
	testsupport.SeedImages(t, inputDir)

	goodPath := filepath.Join(testsupport.BaseDir(env.cfg), "good.yaml")
	good := fmt.Sprintf(`input_dir: %s
stages:
  - plugin: deskew
  - plugin: optimize
    params:
      quality: 52
`, inputDir)
	if err := os.WriteFile(goodPath, []byte(good), 0o644); err != nil {
		t.Fatalf("write pipeline file: %v", err)
	}

	out, _, err := runCLI(t, []string{"pipeline", "validate", goodPath}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("pipeline validate: %v", err)
	}
	requireContains(t, out, "Pipeline valid (2 stages)")

	badPath := filepath.Join(testsupport.BaseDir(env.cfg), "bad.yaml")
	bad := fmt.Sprintf("input_dir: %s\nstages:\n  - plugin: ghost\n", inputDir)
	if err := os.WriteFile(badPath, []byte(bad), 0o644); err != nil {
		t.Fatalf("write pipeline file: %v", err)
	}
	if _, _, err := runCLI(t, []string{"pipeline", "validate", badPath}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected validation error for unknown plugin")
	} else {
		requireContains(t, err.Error(), "pipeline invalid")
	}

	out, _, err = runCLI(t, []string{"pipeline", "run", goodPath}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("pipeline run: %v", err)
	}
	requireContains(t, out, "Pipeline run ")
	requireContains(t, out, "started (2 stages)")
	requireContains(t, out, "[1:deskew] deskewed 4 pages")
	requireContains(t, out, "[2:optimize]")
	requireContains(t, out, " completed")
}

func TestCLIRunsCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	if _, _, err := runCLI(t, []string{"run", "deskew"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("run deskew: %v", err)
	}

	out, _, err := runCLI(t, []string{"runs", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	requireContains(t, out, "deskew")
	requireContains(t, out, "Completed")

	recorded, err := env.store.List(ctx, 10)
	if err != nil {
		t.Fatalf("store list: %v", err)
	}
	if len(recorded) != 1 {
		t.Fatalf("expected one recorded run, got %d", len(recorded))
	}

	out, _, err = runCLI(t, []string{"runs", "show", recorded[0].ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("runs show: %v", err)
	}
	requireContains(t, out, "ID:        "+recorded[0].ID)
	requireContains(t, out, "Status:    Completed")
	requireContains(t, out, "Exit code: 0")

	out, _, err = runCLI(t, []string{"runs", "clear"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("runs clear: %v", err)
	}
	requireContains(t, out, "Removed 1 finished runs")

	out, _, err = runCLI(t, []string{"runs", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("runs list after clear: %v", err)
	}
	requireContains(t, out, "No runs recorded")
}

func TestCLIRunsOfflineFallback(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	run := history.NewRun("offline-run", history.KindScript, "deskew", 1)
	run.MarkStarted()
	run.MarkCompleted(0, "")
	if err := env.store.Insert(ctx, run); err != nil {
		t.Fatalf("insert run: %v", err)
	}

	// A socket nobody listens on forces the direct database path.
	deadSocket := filepath.Join(testsupport.BaseDir(env.cfg), "no-daemon.sock")

	out, _, err := runCLI(t, []string{"runs", "list"}, deadSocket, env.configPath)
	if err != nil {
		t.Fatalf("runs list offline: %v", err)
	}
	requireContains(t, out, "offline-run")
	requireContains(t, out, "Completed")

	out, _, err = runCLI(t, []string{"runs", "show", "offline-run"}, deadSocket, env.configPath)
	if err != nil {
		t.Fatalf("runs show offline: %v", err)
	}
	requireContains(t, out, "Status:    Completed")

	if _, _, err := runCLI(t, []string{"runs", "show", "missing"}, deadSocket, env.configPath); err == nil {
		t.Fatal("expected error for unknown run id")
	}
}

func TestCLICancelNoActiveRun(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"cancel"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "No active run")
}

func TestCLILogsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	if err := os.WriteFile(env.logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--lines", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs --lines: %v", err)
	}
	requireContains(t, out, "second")
	requireContains(t, out, "third")
	if strings.Contains(out, "first") {
		t.Fatalf("expected only the last two lines, got %q", out)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--socket", env.socketPath, "--config", env.configPath, "logs", "--follow"})
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Execute()
	}()

	time.Sleep(100 * time.Millisecond)
	if err := appendLine(env.logPath, "followed"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		return strings.Contains(stdout.String(), "followed")
	})
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("logs --follow execute: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("logs --follow did not exit")
	}
}

func TestCLILogsOffline(t *testing.T) {
	env := setupCLITestEnv(t)

	if err := os.WriteFile(env.logPath, []byte("alpha\nbeta\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	deadSocket := filepath.Join(testsupport.BaseDir(env.cfg), "no-daemon.sock")

	out, _, err := runCLI(t, []string{"logs", "--lines", "1"}, deadSocket, env.configPath)
	if err != nil {
		t.Fatalf("logs offline: %v", err)
	}
	requireContains(t, out, "beta")
	if strings.Contains(out, "alpha") {
		t.Fatalf("expected only the last line, got %q", out)
	}
}

func TestCLIStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, fmt.Sprintf("Running (pid %d)", os.Getpid()))
	requireContains(t, out, "2 loaded")
	requireContains(t, out, "== Dependencies ==")
	requireContains(t, out, "== Directories ==")
	requireContains(t, out, "== Run History ==")
	requireContains(t, out, "No runs recorded")

	deadSocket := filepath.Join(testsupport.BaseDir(env.cfg), "no-daemon.sock")
	out, _, err = runCLI(t, []string{"status"}, deadSocket, env.configPath)
	if err != nil {
		t.Fatalf("status offline: %v", err)
	}
	requireContains(t, out, "Not running (run `platen start`)")
}
