package gitindex

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultDebounce is how long a repository must be quiet before a change is
// reported.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports repositories whose HEAD or branch refs changed.
//
// Git replaces refs by renaming lock files, which invalidates watches on the
// files themselves, so the containing directories are watched instead.
type Watcher struct {
	fs       *fsnotify.Watcher
	dirs     map[string]string // watched dir -> repo id
	refDirs  map[string]bool
	debounce time.Duration
	events   chan string
	stop     chan struct{}
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewWatcher watches the git dirs of the given repositories, keyed by repo id.
func NewWatcher(gitDirs map[string]string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &Watcher{
		fs:       fsw,
		dirs:     make(map[string]string),
		refDirs:  make(map[string]bool),
		debounce: debounce,
		events:   make(chan string, len(gitDirs)+1),
		stop:     make(chan struct{}),
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}

	for id, gitDir := range gitDirs {
		if err := w.addRepo(id, gitDir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}

	go w.processEvents()
	return w, nil
}

func (w *Watcher) addRepo(id, gitDir string) error {
	if err := w.add(id, gitDir, false); err != nil {
		return fmt.Errorf("watching %s: %w", gitDir, err)
	}

	heads := filepath.Join(gitDir, "refs", "heads")
	return filepath.WalkDir(heads, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// A repository without loose branch refs still has HEAD watched.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.add(id, p, true)
	})
}

func (w *Watcher) add(id, dir string, refs bool) error {
	if err := w.fs.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = id
	w.refDirs[dir] = refs
	return nil
}

// Events returns the channel of changed repository ids.
func (w *Watcher) Events() <-chan string {
	return w.events
}

// Close stops watching. Pending debounced events are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()

	close(w.stop)
	return w.fs.Close()
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	dir := filepath.Dir(event.Name)
	id, ok := w.dirs[dir]
	if !ok {
		return
	}

	base := filepath.Base(event.Name)
	if strings.HasSuffix(base, ".lock") {
		return
	}

	if w.refDirs[dir] {
		if event.Has(fsnotify.Create) && isDir(event.Name) {
			// New branch namespace, e.g. refs/heads/feature/
			if err := w.fs.Add(event.Name); err == nil {
				w.dirs[event.Name] = id
				w.refDirs[event.Name] = true
			}
		}
		w.trigger(id)
		return
	}

	if base == "HEAD" || base == "packed-refs" {
		w.trigger(id)
	}
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// trigger reports id once it has been quiet for the debounce period.
func (w *Watcher) trigger(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if t, ok := w.timers[id]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, id)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}

		select {
		case w.events <- id:
		default:
			w.logger.Debug("Dropping change event, consumer is behind", "repo_id", id)
		}
	})
}
