package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/project"
	"github.com/giantswarm/suidriver/pkg/logging"
)

// Publisher receives built descriptors. The catalog implements it.
type Publisher interface {
	Publish(d *api.ProjectDescriptor) error
	Retract(id string) bool
}

// Options configure a Loader.
type Options struct {
	// Suffix selects project files; defaults to project.DefaultSuffix.
	Suffix string
	// Watch keeps the catalog in sync with the directory after the first scan.
	Watch    bool
	Debounce time.Duration
	// CacheSize bounds the number of cached descriptors.
	CacheSize int
	// Workers bounds parallel builds during a scan.
	Workers int
}

type cacheEntry struct {
	modTime time.Time
	size    int64
	desc    *api.ProjectDescriptor
}

// Loader discovers project files below a directory and publishes a
// descriptor for each of them.
type Loader struct {
	dir       string
	opts      Options
	publisher Publisher
	cache     *lru.Cache[string, cacheEntry]

	mu     sync.Mutex
	byPath map[string]string
	owners map[string]string

	watcher *watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a loader for dir. Nothing happens until Start or Rescan.
func New(dir string, publisher Publisher, opts Options) (*Loader, error) {
	if opts.Suffix == "" {
		opts.Suffix = project.DefaultSuffix
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid projects directory %s: %w", dir, err)
	}
	cache, err := lru.New[string, cacheEntry](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Loader{
		dir:       abs,
		opts:      opts,
		publisher: publisher,
		cache:     cache,
		byPath:    make(map[string]string),
		owners:    make(map[string]string),
	}, nil
}

// Dir returns the absolute projects directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Start scans the directory and, if configured, keeps watching it until ctx
// is cancelled or Stop is called.
func (l *Loader) Start(ctx context.Context) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create projects directory %s: %w", l.dir, err)
	}
	if err := l.Rescan(ctx); err != nil {
		return err
	}
	if !l.opts.Watch {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	changes := make(chan changeEvent, 64)
	w := newWatcher(l.dir, l.opts.Suffix, l.opts.Debounce)
	if err := w.Start(ctx, changes); err != nil {
		cancel()
		return fmt.Errorf("failed to watch %s: %w", l.dir, err)
	}

	l.mu.Lock()
	l.watcher = w
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-changes:
				l.handleChange(ev)
			}
		}
	}()
	return nil
}

// Stop ends watching. Published descriptors stay in the catalog.
func (l *Loader) Stop() {
	l.mu.Lock()
	w, cancel := l.watcher, l.cancel
	l.watcher, l.cancel = nil, nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if w != nil {
		w.Stop()
	}
	l.wg.Wait()
}

// Rescan walks the directory, publishes a descriptor for every readable
// project and retracts descriptors whose files are gone. Malformed projects
// are logged and skipped.
func (l *Loader) Rescan(ctx context.Context) error {
	var paths []string
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == l.dir {
				return err
			}
			logging.Warn("Loader", "Skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() && isProjectFile(path, l.opts.Suffix) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", l.dir, err)
	}

	built := make([]*api.ProjectDescriptor, len(paths))
	unchanged := make([]bool, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, cached, err := l.build(path)
			if err != nil {
				logging.Warn("Loader", "Skipping project %s: %v", path, err)
				return nil
			}
			built[i], unchanged[i] = d, cached
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(paths))
	published := 0
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, path := range paths {
		seen[path] = true
		if built[i] == nil {
			l.removeLocked(path)
			continue
		}
		published++
		if unchanged[i] && l.byPath[path] == built[i].ID && l.owners[built[i].ID] == path {
			continue
		}
		l.publishLocked(path, built[i])
	}
	for _, path := range l.trackedPathsLocked() {
		if !seen[path] {
			l.removeLocked(path)
		}
	}
	logging.Info("Loader", "Scanned %s: %d projects published, %d skipped",
		l.dir, published, len(paths)-published)
	return nil
}

// Tracked returns the published path to descriptor id mapping.
func (l *Loader) Tracked() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string, len(l.byPath))
	for path, id := range l.byPath {
		out[path] = id
	}
	return out
}

func (l *Loader) handleChange(ev changeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch ev.Op {
	case opDelete:
		if ev.Dir {
			prefix := ev.Path + string(filepath.Separator)
			for _, path := range l.trackedPathsLocked() {
				if strings.HasPrefix(path, prefix) {
					l.removeLocked(path)
				}
			}
			return
		}
		l.removeLocked(ev.Path)
	default:
		d, _, err := l.build(ev.Path)
		if err != nil {
			logging.Warn("Loader", "Skipping project %s: %v", ev.Path, err)
			l.removeLocked(ev.Path)
			return
		}
		l.publishLocked(ev.Path, d)
	}
}

// build returns the descriptor for path, reusing the cached one while the
// file's size and modification time are unchanged. cached reports a hit.
func (l *Loader) build(path string) (d *api.ProjectDescriptor, cached bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}
	if entry, ok := l.cache.Get(path); ok && entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		return entry.desc.Clone(), true, nil
	}

	d, err = Build(path)
	if err != nil {
		l.cache.Remove(path)
		return nil, false, err
	}
	l.cache.Add(path, cacheEntry{modTime: info.ModTime(), size: info.Size(), desc: d.Clone()})
	return d, false, nil
}

func (l *Loader) publishLocked(path string, d *api.ProjectDescriptor) {
	if oldID, ok := l.byPath[path]; ok && oldID != d.ID && l.owners[oldID] == path {
		delete(l.owners, oldID)
		l.publisher.Retract(oldID)
	}
	if owner, ok := l.owners[d.ID]; ok && owner != path {
		logging.Warn("Loader", "Project %s supersedes %s (same id %s)", path, owner, d.ID)
	}
	if err := l.publisher.Publish(d); err != nil {
		logging.Error("Loader", err, "Failed to publish %s", path)
		return
	}
	l.byPath[path] = d.ID
	l.owners[d.ID] = path
}

func (l *Loader) removeLocked(path string) {
	l.cache.Remove(path)
	id, ok := l.byPath[path]
	if !ok {
		return
	}
	delete(l.byPath, path)
	if l.owners[id] != path {
		return
	}
	delete(l.owners, id)
	l.publisher.Retract(id)
	logging.Info("Loader", "Retracted %s (%s)", id, path)

	// Another file declaring the same id takes over.
	for _, other := range l.trackedPathsLocked() {
		if l.byPath[other] != id {
			continue
		}
		if d, _, err := l.build(other); err == nil {
			l.publishLocked(other, d)
			return
		}
	}
}

func (l *Loader) trackedPathsLocked() []string {
	paths := make([]string, 0, len(l.byPath))
	for path := range l.byPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// CacheLen returns the number of cached descriptors.
func (l *Loader) CacheLen() int {
	return l.cache.Len()
}
