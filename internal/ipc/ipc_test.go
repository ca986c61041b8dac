package ipc_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"platen/internal/daemon"
	"platen/internal/history"
	"platen/internal/ipc"
	"platen/internal/logging"
	"platen/internal/orchestrator"
	"platen/internal/project"
	"platen/internal/runner"
	"platen/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	deskewDir := testsupport.WriteManifest(t, cfg.Paths.ProjectsDir, "deskew", map[string]any{
		"name":           "deskew",
		"python_scripts": []string{"scripts/run.py"},
	})
	testsupport.WriteWorkerScript(t, deskewDir, "scripts/run.py", `echo "deskewed 4 pages"`)
	optimizeDir := testsupport.WriteManifest(t, cfg.Paths.ProjectsDir, "optimize", map[string]any{
		"name":           "optimize",
		"python_scripts": []string{"scripts/run.py"},
	})
	testsupport.WriteWorkerScript(t, optimizeDir, "scripts/run.py", `
echo '{"type":"start","total":3}'
echo '{"type":"progress","current":2,"total":3,"percentage":66.0}'
echo '{"type":"complete","bytes_saved":2048}'`)

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
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PID != os.Getpid() {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.ProjectCount != 2 || status.SocketPath != cfg.SocketPath() {
		t.Fatalf("unexpected status: %+v", status)
	}

	listResp, err := client.ProjectList()
	if err != nil {
		t.Fatalf("ProjectList failed: %v", err)
	}
	if len(listResp.Projects) != 2 || listResp.Stale {
		t.Fatalf("unexpected project list: %+v", listResp)
	}

	showResp, err := client.ProjectShow("deskew")
	if err != nil {
		t.Fatalf("ProjectShow failed: %v", err)
	}
	if showResp.Project.ID != "deskew" || len(showResp.Project.EntryPoints) != 1 {
		t.Fatalf("unexpected project: %+v", showResp.Project)
	}
	if _, err := client.ProjectShow("ghost"); err == nil {
		t.Fatal("expected error for unknown project")
	}

	reloadResp, err := client.ProjectReload()
	if err != nil {
		t.Fatalf("ProjectReload failed: %v", err)
	}
	if reloadResp.Count != 2 {
		t.Fatalf("expected 2 projects after reload, got %d", reloadResp.Count)
	}

	scriptResp, err := client.RunScript(ipc.RunScriptRequest{Plugin: "deskew"})
	if err != nil {
		t.Fatalf("RunScript failed: %v", err)
	}
	if scriptResp.State != string(runner.StateCompleted) || scriptResp.ExitCode != 0 {
		t.Fatalf("unexpected script result: %+v", scriptResp)
	}
	if !strings.Contains(scriptResp.Stdout, "deskewed 4 pages") {
		t.Fatalf("unexpected stdout: %q", scriptResp.Stdout)
	}

	startResp, err := client.RunStart(ipc.RunStartRequest{Plugin: "optimize"})
	if err != nil {
		t.Fatalf("RunStart failed: %v", err)
	}
	if startResp.RunID == "" {
		t.Fatal("expected run id from RunStart")
	}

	var collected []ipc.RunEvent
	after := int64(0)
	deadline := time.Now().Add(10 * time.Second)
	for {
		eventsResp, err := client.RunEvents(ipc.RunEventsRequest{
			RunID:      startResp.RunID,
			AfterSeq:   after,
			WaitMillis: 2000,
		})
		if err != nil {
			t.Fatalf("RunEvents failed: %v", err)
		}
		collected = append(collected, eventsResp.Events...)
		if len(collected) > 0 {
			after = collected[len(collected)-1].Seq
		}
		if eventsResp.Done && len(collected) >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run events never drained: %+v", collected)
		}
	}
	wantKinds := []string{"start", "progress", "complete"}
	if len(collected) != len(wantKinds) {
		t.Fatalf("collected = %+v", collected)
	}
	for i, kind := range wantKinds {
		event := collected[i]
		if event.Kind != kind || event.Seq != int64(i+1) || event.StageIndex != -1 {
			t.Fatalf("collected[%d] = %+v", i, event)
		}
	}

	// The journal reports done before the run slot frees; wait for the
	// slot so the cancel assertion below cannot race it.
	idleDeadline := time.Now().Add(5 * time.Second)
	for {
		st, err := client.Status()
		if err != nil {
			t.Fatalf("Status poll failed: %v", err)
		}
		if st.ActiveRun == nil {
			break
		}
		if time.Now().After(idleDeadline) {
			t.Fatal("run slot never freed")
		}
		time.Sleep(20 * time.Millisecond)
	}

	invalidResp, err := client.PipelineValidate(ipc.PipelineConfig{})
	if err != nil {
		t.Fatalf("PipelineValidate failed: %v", err)
	}
	if invalidResp.Valid || invalidResp.Reason == "" {
		t.Fatalf("expected invalid pipeline, got %+v", invalidResp)
	}

	validResp, err := client.PipelineValidate(ipc.PipelineConfig{
		Stages: []ipc.PipelineStage{{Plugin: "deskew"}, {Plugin: "optimize"}},
	})
	if err != nil {
		t.Fatalf("PipelineValidate failed: %v", err)
	}
	if !validResp.Valid {
		t.Fatalf("expected valid pipeline, got %+v", validResp)
	}

	cancelResp, err := client.Cancel()
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelResp.Cancelled {
		t.Fatalf("expected no active run to cancel, got %+v", cancelResp)
	}

	runsResp, err := client.RunsList(0, nil)
	if err != nil {
		t.Fatalf("RunsList failed: %v", err)
	}
	if len(runsResp.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %+v", runsResp.Runs)
	}

	completedResp, err := client.RunsList(0, []string{string(history.StatusCompleted)})
	if err != nil {
		t.Fatalf("RunsList filtered failed: %v", err)
	}
	if len(completedResp.Runs) != 2 {
		t.Fatalf("expected 2 completed runs, got %+v", completedResp.Runs)
	}
	if _, err := client.RunsList(0, []string{"bogus"}); err == nil {
		t.Fatal("expected error for bogus status filter")
	}

	runShowResp, err := client.RunsShow(startResp.RunID)
	if err != nil {
		t.Fatalf("RunsShow failed: %v", err)
	}
	if runShowResp.Run.Status != string(history.StatusCompleted) {
		t.Fatalf("unexpected run: %+v", runShowResp.Run)
	}
	if _, err := client.RunsShow("missing-run"); err == nil {
		t.Fatal("expected error for unknown run id")
	}

	logPath := cfg.LogFilePath()
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail initial failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}

	followDone := make(chan struct{})
	go func(offset int64) {
		resp, err := client.LogTail(ipc.LogTailRequest{Offset: offset, Follow: true, WaitMillis: 2000})
		if err != nil {
			t.Errorf("LogTail follow error: %v", err)
			return
		}
		if len(resp.Lines) != 1 || resp.Lines[0] != "fourth" {
			t.Errorf("unexpected follow lines: %#v", resp.Lines)
		}
		close(followDone)
	}(logResp.Offset)

	time.Sleep(100 * time.Millisecond)
	if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		_, _ = f.WriteString("fourth\n")
		_ = f.Close()
	} else {
		t.Fatalf("append log: %v", err)
	}

	select {
	case <-followDone:
	case <-time.After(10 * time.Second):
		t.Fatal("log tail follow timed out")
	}

	clearResp, err := client.RunsClear()
	if err != nil {
		t.Fatalf("RunsClear failed: %v", err)
	}
	if clearResp.Removed != 2 {
		t.Fatalf("expected 2 runs cleared, got %d", clearResp.Removed)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}
	select {
	case <-d.ShutdownRequested():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon shutdown was never requested")
	}
}
