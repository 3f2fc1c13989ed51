package preview

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/typlive/typlive/internal/errors"
)

// ChangeType represents the type of file change.
type ChangeType int

const (
	// ChangeSource is a document source file.
	ChangeSource ChangeType = iota
	// ChangeData is a structured data file a document may load.
	ChangeData
	// ChangeAsset is anything else, such as images and fonts.
	ChangeAsset
)

// String returns the change type name.
func (t ChangeType) String() string {
	switch t {
	case ChangeSource:
		return "source"
	case ChangeData:
		return "data"
	default:
		return "asset"
	}
}

// Change represents a detected file change.
type Change struct {
	Path string
	Type ChangeType
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Paths are the files and directories to watch. Directories are
	// watched recursively.
	Paths []string

	// Ignore patterns to skip (doublestar globs). Patterns without a slash
	// match the base name, others the slash path relative to a watched root.
	Ignore []string

	// Exclude lists exact file paths that never trigger a change.
	Exclude []string

	// Debounce is the quiet period before a batch of changes is reported.
	Debounce time.Duration

	// Logger receives watcher diagnostics.
	Logger *slog.Logger
}

// DefaultIgnore contains default patterns to ignore.
var DefaultIgnore = []string{
	".git",
	"node_modules",
	"*.tmp",
	"*.swp",
	"*~",
	".#*",
	".DS_Store",
}

// Watcher monitors files for changes and reports them in debounced batches.
type Watcher struct {
	config   WatcherConfig
	logger   *slog.Logger
	exclude  map[string]struct{}
	onChange func([]Change)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once

	// Owned by the Start goroutine.
	roots []string
	files map[string]struct{}
}

// NewWatcher creates a new file watcher.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.Debounce == 0 {
		config.Debounce = 100 * time.Millisecond
	}
	if len(config.Ignore) == 0 {
		config.Ignore = DefaultIgnore
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	exclude := make(map[string]struct{}, len(config.Exclude))
	for _, p := range config.Exclude {
		exclude[absClean(p)] = struct{}{}
	}

	return &Watcher{
		config:  config,
		logger:  logger.With("component", "watcher"),
		exclude: exclude,
		ready:   make(chan struct{}),
		files:   make(map[string]struct{}),
	}
}

// OnChange sets the callback for change batches. It is called from the
// watcher goroutine and should not block for long.
func (w *Watcher) OnChange(fn func([]Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Ready is closed once the initial watches are in place.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Start begins watching for file changes and blocks until ctx is done or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.mu.Unlock()

	defer func() {
		cancel()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.New("T121").Wrap(err)
	}
	defer fw.Close()

	if err := w.addPaths(fw); err != nil {
		return err
	}
	w.readyOnce.Do(func() { close(w.ready) })

	pending := make(map[string]ChangeType)
	timer := time.NewTimer(w.config.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			change, ok := w.handleEvent(fw, event)
			if !ok {
				continue
			}
			pending[change.Path] = change.Type
			timer.Reset(w.config.Debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)

		case <-timer.C:
			w.flush(pending)
			pending = make(map[string]ChangeType)
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running && w.cancel != nil {
		w.cancel()
	}
}

// IsRunning returns whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// addPaths registers every configured path. Directories are added
// recursively; a file is watched through its parent directory and filtered
// by name.
func (w *Watcher) addPaths(fw *fsnotify.Watcher) error {
	added := 0
	for _, p := range w.config.Paths {
		p = absClean(p)
		info, err := os.Stat(p)
		switch {
		case os.IsNotExist(err):
			// A file that does not exist yet is watched through its parent
			// so its creation is reported.
		case err != nil:
			w.logger.Warn("skipping watch path", "path", p, "error", err)
			continue
		case info.IsDir():
			w.roots = append(w.roots, p)
			added += w.addTree(fw, p)
			continue
		}
		if err := fw.Add(filepath.Dir(p)); err != nil {
			w.logger.Warn("cannot watch file", "path", p, "error", err)
			continue
		}
		w.files[p] = struct{}{}
		added++
	}

	if added == 0 {
		return errors.New("T121").
			WithDetail("None of the watch paths could be watched: " + strings.Join(w.config.Paths, ", "))
	}
	return nil
}

// addTree watches dir and all non-ignored directories below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) int {
	added := 0
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && w.shouldIgnore(p) {
			return filepath.SkipDir
		}
		if err := fw.Add(p); err != nil {
			w.logger.Warn("cannot watch directory", "path", p, "error", err)
			return nil
		}
		added++
		return nil
	})
	return added
}

// handleEvent filters one fsnotify event and returns the change it
// represents, if any.
func (w *Watcher) handleEvent(fw *fsnotify.Watcher, event fsnotify.Event) (Change, bool) {
	if event.Op == fsnotify.Chmod {
		return Change{}, false
	}

	p := absClean(event.Name)
	if _, ok := w.exclude[p]; ok {
		return Change{}, false
	}

	_, isFile := w.files[p]
	inTree := w.underRoot(p)
	if !isFile && !inTree {
		return Change{}, false
	}
	if w.shouldIgnore(p) {
		return Change{}, false
	}

	if inTree && event.Has(fsnotify.Create) {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			w.addTree(fw, p)
			return Change{}, false
		}
	}

	return Change{Path: p, Type: classifyChange(p)}, true
}

func (w *Watcher) flush(pending map[string]ChangeType) {
	if len(pending) == 0 {
		return
	}

	w.mu.Lock()
	callback := w.onChange
	w.mu.Unlock()
	if callback == nil {
		return
	}

	changes := make([]Change, 0, len(pending))
	for p, t := range pending {
		changes = append(changes, Change{Path: p, Type: t})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	callback(changes)
}

func (w *Watcher) underRoot(p string) bool {
	for _, root := range w.roots {
		if p == root || strings.HasPrefix(p, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// shouldIgnore checks if a path should be ignored.
func (w *Watcher) shouldIgnore(fullPath string) bool {
	name := filepath.Base(fullPath)

	for _, pattern := range w.config.Ignore {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, name); ok {
				return true
			}
			// A bare directory name ignores everything below it.
			if pathHasSegment(w.relative(fullPath), pattern) {
				return true
			}
			continue
		}

		if ok, _ := doublestar.Match(pattern, w.relative(fullPath)); ok {
			return true
		}
	}

	return false
}

// relative returns fullPath as a slash path relative to its watched root,
// or the full slash path when it is not under one.
func (w *Watcher) relative(fullPath string) string {
	for _, root := range w.roots {
		if rel, err := filepath.Rel(root, fullPath); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(fullPath)
}

func pathHasSegment(path, segment string) bool {
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// classifyChange determines the type of change based on file extension.
func classifyChange(path string) ChangeType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".typ":
		return ChangeSource
	case ".json", ".yaml", ".yml", ".toml", ".csv", ".xml", ".bib", ".cbor":
		return ChangeData
	default:
		return ChangeAsset
	}
}

func absClean(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
