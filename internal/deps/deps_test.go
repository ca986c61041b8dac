package deps

import (
	"os"
	"path/filepath"
	"testing"

	"platen/internal/testsupport"
)

func TestCheckResolvesAndReportsMissing(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	results := Check([]Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "definitely-not-a-real-binary"},
		{Name: "Unset", Command: "  "},
	})
	if len(results) != 3 {
		t.Fatalf("len(results) = %d", len(results))
	}

	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("present = %#v", results[0])
	}
	if results[0].Command != present {
		t.Fatalf("resolved command = %q", results[0].Command)
	}

	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("missing = %#v", results[1])
	}
	if results[1].Command != "definitely-not-a-real-binary" {
		t.Fatalf("missing command = %q", results[1].Command)
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unset = %#v", results[2])
	}
}

func TestCheckSystemUsesConfiguredInterpreter(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithInterpreter("python3"),
		testsupport.WithStubbedBinaries())

	results := CheckSystem(cfg)
	if len(results) < 2 {
		t.Fatalf("results = %#v", results)
	}
	if results[0].Name != "Python interpreter" || !results[0].Available {
		t.Fatalf("interpreter = %#v", results[0])
	}
	if !results[1].Optional {
		t.Fatalf("pip should be optional, got %#v", results[1])
	}
}

func TestCheckSystemMissingInterpreter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Python.Interpreter = "no-such-interpreter-anywhere"

	results := CheckSystem(cfg)
	if results[0].Available {
		t.Fatalf("interpreter should be unavailable, got %#v", results[0])
	}
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()

	status := CheckDirectoryAccess("Work directory", dir)
	if !status.Available || status.Detail != "read/write ok" {
		t.Fatalf("status = %#v", status)
	}

	missing := CheckDirectoryAccess("Work directory", filepath.Join(dir, "gone"))
	if missing.Available || missing.Detail != "does not exist" {
		t.Fatalf("missing = %#v", missing)
	}

	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	notDir := CheckDirectoryAccess("Work directory", file)
	if notDir.Available || notDir.Detail != "is not a directory" {
		t.Fatalf("notDir = %#v", notDir)
	}
}

func TestCheckDirectoriesCoversConfiguredPaths(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	results := CheckDirectories(cfg)
	if len(results) < 3 {
		t.Fatalf("results = %#v", results)
	}
	for _, status := range results {
		if !status.Available {
			t.Fatalf("expected every configured directory to pass, got %#v", status)
		}
	}
}
