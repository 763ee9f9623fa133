package loader

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/giantswarm/suidriver/pkg/logging"
)

// changeOp is the debounced operation on one path.
type changeOp string

const (
	opCreate changeOp = "create"
	opUpdate changeOp = "update"
	opDelete changeOp = "delete"
)

// changeEvent is emitted once per path after its events have settled.
type changeEvent struct {
	Path string
	Op   changeOp
	// Dir marks the removal of something that was not a project file, which
	// may have been a directory holding projects.
	Dir bool
}

// watcher watches a directory tree for project file changes and debounces
// rapid successive events on the same path.
type watcher struct {
	mu sync.Mutex

	root     string
	suffix   string
	debounce time.Duration

	fsw           *fsnotify.Watcher
	pendingEvents map[string]*debounceEntry
	stopCh        chan struct{}
	doneCh        chan struct{}
	running       bool
}

type debounceEntry struct {
	event changeEvent
	timer *time.Timer
}

func newWatcher(root, suffix string, debounce time.Duration) *watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &watcher{
		root:          root,
		suffix:        suffix,
		debounce:      debounce,
		pendingEvents: make(map[string]*debounceEntry),
	}
}

// Start watches root and every directory below it.
func (w *watcher) Start(ctx context.Context, changes chan<- changeEvent) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.processEvents(ctx, fsw, changes)

	if err := w.addTree(w.root); err != nil {
		w.Stop()
		return err
	}
	logging.Info("Loader", "Watching %s for project changes", w.root)
	return nil
}

// addTree adds watches for dir and its subdirectories.
func (w *watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			logging.Warn("Loader", "Skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		w.mu.Lock()
		fsw := w.fsw
		w.mu.Unlock()
		if fsw == nil {
			return filepath.SkipAll
		}
		if err := fsw.Add(path); err != nil {
			logging.Warn("Loader", "Failed to watch %s: %v", path, err)
			return nil
		}
		logging.Debug("Loader", "Watching directory: %s", path)
		return nil
	})
}

func (w *watcher) processEvents(ctx context.Context, fsw *fsnotify.Watcher, changes chan<- changeEvent) {
	w.mu.Lock()
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()
	defer close(doneCh)

	for {
		select {
		case <-ctx.Done():
			w.cleanupPendingEvents()
			return
		case <-stopCh:
			w.cleanupPendingEvents()
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event, changes)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.Error("Loader", err, "Filesystem watcher error")
		}
	}
}

func (w *watcher) handleFsEvent(event fsnotify.Event, changes chan<- changeEvent) {
	path := event.Name
	isProject := isProjectFile(path, w.suffix)

	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			// New directories may arrive with content already in them.
			if err := w.addTree(path); err != nil {
				logging.Warn("Loader", "Failed to watch new directory %s: %v", path, err)
			}
			w.emitTree(path, changes)
			return
		}
		if isProject {
			w.debounceEvent(changeEvent{Path: path, Op: opCreate}, changes)
		}
	case event.Has(fsnotify.Write):
		if isProject {
			w.debounceEvent(changeEvent{Path: path, Op: opUpdate}, changes)
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename is a removal here; the new name shows up as a create.
		w.debounceEvent(changeEvent{Path: path, Op: opDelete, Dir: !isProject}, changes)
	}
}

// emitTree reports every project file below dir as created.
func (w *watcher) emitTree(dir string, changes chan<- changeEvent) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && isProjectFile(path, w.suffix) {
			w.debounceEvent(changeEvent{Path: path, Op: opCreate}, changes)
		}
		return nil
	})
}

func (w *watcher) debounceEvent(event changeEvent, changes chan<- changeEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	key := event.Path
	if entry, ok := w.pendingEvents[key]; ok {
		entry.timer.Stop()
		event.Op = mergeOperations(entry.event.Op, event.Op)
		event.Dir = event.Dir && entry.event.Dir
	}

	stopCh := w.stopCh
	timer := time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		entry, ok := w.pendingEvents[key]
		if ok {
			delete(w.pendingEvents, key)
		}
		w.mu.Unlock()
		if !ok {
			return
		}
		select {
		case changes <- entry.event:
			logging.Debug("Loader", "Emitted change event: %s %s", entry.event.Op, entry.event.Path)
		case <-stopCh:
		}
	})
	w.pendingEvents[key] = &debounceEntry{event: event, timer: timer}
}

// mergeOperations merges two operations on the same path into one.
func mergeOperations(old, next changeOp) changeOp {
	switch {
	case next == opDelete:
		return opDelete
	case old == opCreate:
		return opCreate
	case old == opDelete:
		// Deleted and written again: rebuild from scratch.
		return opCreate
	default:
		return next
	}
}

func (w *watcher) cleanupPendingEvents() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, entry := range w.pendingEvents {
		entry.timer.Stop()
	}
	w.pendingEvents = make(map[string]*debounceEntry)
}

// Stop ends watching and waits for the event loop to exit.
func (w *watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	fsw, doneCh := w.fsw, w.doneCh
	w.fsw = nil
	w.mu.Unlock()

	if fsw != nil {
		if err := fsw.Close(); err != nil {
			logging.Error("Loader", err, "Error closing filesystem watcher")
		}
	}
	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		logging.Warn("Loader", "Watcher event loop did not stop in time")
	}
	w.cleanupPendingEvents()
}
