package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// WriteManifest creates a project directory under root with the given
// manifest payload. Every entry listed under python_scripts is created as an
// executable stub so path resolution succeeds; use WriteWorkerScript to give
// a script real behavior.
func WriteManifest(t testing.TB, root, id string, manifest map[string]any) string {
	t.Helper()

	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir project %s: %v", id, err)
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		t.Fatalf("marshal manifest %s: %v", id, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "project.json"), data, 0o644); err != nil {
		t.Fatalf("write manifest %s: %v", id, err)
	}

	if scripts, ok := manifest["python_scripts"].([]string); ok {
		for _, script := range scripts {
			WriteWorkerScript(t, dir, script, "exit 0")
		}
	}
	return dir
}

// WriteWorkerScript writes an executable shell script at rel inside dir.
// The shebang is added automatically.
func WriteWorkerScript(t testing.TB, dir, rel, body string) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	content := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write script %s: %v", rel, err)
	}
	return path
}

// SeedImages drops small placeholder page files into dir so a worker has
// input to enumerate.
func SeedImages(t testing.TB, dir string, names ...string) {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if len(names) == 0 {
		names = []string{"page-001.png", "page-002.png"}
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("stub image data"), 0o644); err != nil {
			t.Fatalf("seed image %s: %v", name, err)
		}
	}
}
