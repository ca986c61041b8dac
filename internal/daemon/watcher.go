package daemon

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"platen/internal/logging"
	"platen/internal/project"
)

const watchDebounce = 500 * time.Millisecond

// projectWatcher flags the registry stale when project directories change on
// disk. Reloading stays explicit so an executing run never races a
// half-written project; status output surfaces the staleness instead.
type projectWatcher struct {
	roots    []string
	registry *project.Registry
	logger   *slog.Logger

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	wg        sync.WaitGroup

	mu      sync.Mutex
	pending map[string]time.Time
}

func newProjectWatcher(roots []string, registry *project.Registry, logger *slog.Logger) *projectWatcher {
	return &projectWatcher{
		roots:    roots,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "projectwatch"),
		done:     make(chan struct{}),
		pending:  make(map[string]time.Time),
	}
}

// Start begins watching every project root and the project directories
// directly beneath them.
func (w *projectWatcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsWatcher = fsw

	for _, root := range w.roots {
		if err := fsw.Add(root); err != nil {
			w.logger.Warn("cannot watch project root",
				logging.String("root", root), logging.Error(err))
			continue
		}
		w.watchProjectDirs(root)
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Close stops the watcher and waits for the event loop to exit.
func (w *projectWatcher) Close() {
	close(w.done)
	w.wg.Wait()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
}

// watchProjectDirs adds the immediate subdirectories of root so manifest
// edits inside a project are observed, not just the project appearing.
func (w *projectWatcher) watchProjectDirs(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		_ = w.fsWatcher.Add(filepath.Join(root, entry.Name()))
	}
}

func (w *projectWatcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(watchDebounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fsWatcher.Add(event.Name)
				}
			}
			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", logging.Error(err))

		case <-ticker.C:
			w.flush()
		}
	}
}

// relevant filters for changes that can affect registry contents: manifest
// writes and project directories appearing or disappearing under a root.
func (w *projectWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if filepath.Base(event.Name) == project.ManifestFileName {
		return true
	}
	parent := filepath.Dir(event.Name)
	for _, root := range w.roots {
		if parent == root {
			return true
		}
	}
	return false
}

// flush marks the registry stale once the burst of events settled down.
func (w *projectWatcher) flush() {
	w.mu.Lock()
	now := time.Now()
	ready := 0
	for path, at := range w.pending {
		if now.Sub(at) >= watchDebounce {
			delete(w.pending, path)
			ready++
		}
	}
	w.mu.Unlock()

	if ready == 0 {
		return
	}
	w.registry.MarkStale()
	w.logger.Info("project files changed on disk",
		logging.Int("changes", ready),
		logging.String("hint", "run `platen projects reload` to pick changes up"))
}
