package project

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"platen/internal/logging"
	"platen/internal/services"
)

// Registry holds the loaded project manifests and answers lookups for the
// orchestrator and the CLI.
type Registry struct {
	roots  []string
	logger *slog.Logger

	mu        sync.RWMutex
	manifests []Manifest
	byID      map[string]int
	loadedAt  time.Time

	stale atomic.Bool
}

// NewRegistry creates an empty registry over the given project roots. Call
// Load before first use.
func NewRegistry(roots []string, logger *slog.Logger) *Registry {
	return &Registry{
		roots:  append([]string(nil), roots...),
		logger: logging.NewComponentLogger(logger, "registry"),
		byID:   make(map[string]int),
	}
}

// Load rescans every root and atomically replaces the registry contents.
// Lookups during the scan keep seeing the previous manifest set. The count of
// loaded projects is returned.
func (r *Registry) Load() (int, error) {
	manifests, err := LoadAll(r.roots, r.logger)
	if err != nil {
		return 0, err
	}

	byID := make(map[string]int, len(manifests))
	for i, manifest := range manifests {
		byID[manifest.ID] = i
	}

	r.mu.Lock()
	r.manifests = manifests
	r.byID = byID
	r.loadedAt = time.Now()
	r.mu.Unlock()
	r.stale.Store(false)

	return len(manifests), nil
}

// Manifests returns copies of every loaded manifest in discovery order.
func (r *Registry) Manifests() []Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Manifest, len(r.manifests))
	for i, manifest := range r.manifests {
		out[i] = manifest.Clone()
	}
	return out
}

// Len returns the number of loaded projects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.manifests)
}

// Get returns a copy of the manifest for id.
func (r *Registry) Get(id string) (Manifest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[id]
	if !ok {
		return Manifest{}, services.Wrap(services.ErrNotFound, "registry", "get", fmt.Sprintf("unknown project %q", id), nil)
	}
	return r.manifests[idx].Clone(), nil
}

// EntryPointPath resolves a worker script of project id to an absolute path
// on disk. The script may be given exactly as listed in the manifest or by
// its unambiguous base name. Unknown projects, unlisted scripts, and listed
// scripts missing from disk all fail distinctly.
func (r *Registry) EntryPointPath(id, script string) (string, error) {
	manifest, err := r.Get(id)
	if err != nil {
		return "", err
	}

	resolved, err := manifest.ResolveEntryPoint(script)
	if err != nil {
		return "", err
	}

	path := filepath.Join(manifest.Dir, filepath.FromSlash(resolved))
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "registry", "entry point",
			fmt.Sprintf("script %q of project %q is listed in the manifest but missing on disk", resolved, id), err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrNotFound, "registry", "entry point",
			fmt.Sprintf("script %q of project %q resolves to a directory", resolved, id), nil)
	}
	return path, nil
}

// MarkStale flags the registry as out of date with the directories on disk.
// Reloading stays an explicit operation; the flag only drives status output.
func (r *Registry) MarkStale() {
	r.stale.Store(true)
}

// Stale reports whether the project directories changed since the last load.
func (r *Registry) Stale() bool {
	return r.stale.Load()
}

// LoadedAt returns the time of the last successful load.
func (r *Registry) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}

// Roots returns the configured project roots.
func (r *Registry) Roots() []string {
	return append([]string(nil), r.roots...)
}

// LoadAll scans the roots in order and returns every loadable manifest in
// discovery order. A directory that fails to parse is skipped with a warning;
// the scan itself only fails when a root cannot be read for reasons other
// than not existing. When two roots declare the same project id the first
// discovered wins.
func LoadAll(roots []string, logger *slog.Logger) ([]Manifest, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	var manifests []Manifest
	seen := make(map[string]string)

	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Debug("project root does not exist", logging.String("root", root))
				continue
			}
			return nil, fmt.Errorf("read project root %s: %w", root, err)
		}

		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			if !entry.IsDir() {
				continue
			}
			if !ValidID(name) {
				logger.Warn("skipping project directory with invalid name",
					logging.String("root", root),
					logging.String("dir", name))
				continue
			}
			if firstRoot, dup := seen[name]; dup {
				logger.Warn("duplicate project id; keeping first discovery",
					logging.String("id", name),
					logging.String("kept_root", firstRoot),
					logging.String("ignored_root", root))
				continue
			}

			dir := filepath.Join(root, name)
			manifest, err := ParseManifest(dir, name)
			if err != nil {
				logger.Warn("skipping unloadable project",
					logging.String("id", name),
					logging.Error(err))
				continue
			}
			seen[name] = root
			manifests = append(manifests, manifest)
		}
	}

	return manifests, nil
}
