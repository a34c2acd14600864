// Package watcher bridges filesystem change notification to catalog
// rebuilds. It watches the plugin root recursively, debounces event bursts
// into one settled signal per quiescence window, and filters out events on
// packaged-archive paths so operator-made archives cannot retrigger a
// rebuild loop.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/plugrelay/plugrelay/internal/pathseg"
)

// DefaultQuiescence is the settle window applied when the caller passes a
// non-positive duration.
const DefaultQuiescence = 2 * time.Second

// Watcher emits one signal on Changed after each settled burst of plugin
// directory changes.
type Watcher struct {
	root    string
	quiet   time.Duration
	logger  *slog.Logger
	fsw     *fsnotify.Watcher
	changed chan struct{}

	mu      sync.Mutex
	settle  *time.Timer
	closed  bool
	closeCh chan struct{}
}

// New starts watching root and every directory under it.
func New(root string, quiet time.Duration, logger *slog.Logger) (*Watcher, error) {
	if quiet <= 0 {
		quiet = DefaultQuiescence
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    root,
		quiet:   quiet,
		logger:  logger,
		fsw:     fsw,
		changed: make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}

	if err := w.watchTree(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

// Changed delivers one value per settled change burst. The channel holds
// one pending signal; bursts arriving while a rebuild is in progress
// collapse into a single follow-up signal.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changed
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.settle != nil {
		w.settle.Stop()
	}
	close(w.closeCh)
	w.mu.Unlock()
	return w.fsw.Close()
}

// watchTree adds root and all nested directories to the watch set.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}

// run consumes fsnotify events until the watcher closes. Watch errors are
// logged and never fatal.
func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watch error", "error", err)
		case <-w.closeCh:
			return
		}
	}
}

// handleEvent filters an event and resets the quiescence timer.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Archive writes never drive rebuilds.
	if pathseg.IsArchive(event.Name) {
		return
	}

	// Newly created directories must join the watch set so changes deep
	// in fresh plugin trees are seen.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchTree(event.Name); err != nil {
				w.logger.Warn("watching new directory", "path", event.Name, "error", err)
			}
		}
	}

	w.logger.Debug("plugin tree changed", "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.settle == nil {
		w.settle = time.AfterFunc(w.quiet, w.fire)
		return
	}
	w.settle.Reset(w.quiet)
}

// fire delivers one settled-change signal without blocking.
func (w *Watcher) fire() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}
