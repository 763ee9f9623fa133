package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/catalog"
	"github.com/giantswarm/suidriver/internal/config"
	"github.com/giantswarm/suidriver/internal/engine"
	"github.com/giantswarm/suidriver/internal/loader"
	"github.com/giantswarm/suidriver/internal/metrics"
	"github.com/giantswarm/suidriver/internal/settings"
	"github.com/giantswarm/suidriver/internal/storage"
	"github.com/giantswarm/suidriver/internal/task"
	"github.com/giantswarm/suidriver/pkg/logging"
)

// ErrClosed is returned by operations on a closed driver.
var ErrClosed = errors.New("driver is closed")

const storeTimeout = 10 * time.Second

// Options configure a Driver. Only Config is required.
type Options struct {
	Config  config.DriverConfig
	Version string

	// Engine replaces the external runner, mainly for tests.
	Engine engine.Engine
	// Store replaces the store selected by Config.Storage.
	Store   storage.ObjectStore
	Metrics *metrics.Metrics
}

type taskEntry struct {
	ctrl    *task.Controller
	done    chan struct{}
	started time.Time
}

// Driver creates and tracks test tasks.
type Driver struct {
	cfg     config.DriverConfig
	info    Info
	runtime *engine.Runtime
	catalog *catalog.Catalog
	loader  *loader.Loader
	store   storage.ObjectStore
	metrics *metrics.Metrics

	unsubscribe func()
	sem         chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	mu     sync.RWMutex
	tasks  map[string]*taskEntry
	order  []string
	closed bool

	closeOnce sync.Once
}

// New wires the driver from opts. The catalog stays empty until Start.
func New(opts Options) (*Driver, error) {
	cfg := opts.Config

	s, err := settings.Load(cfg.Engine.SettingsFile, cfg.Engine.SettingsPassword)
	if err != nil {
		return nil, api.NewTaskError(api.KindConfigurationError, err, "cannot load engine settings")
	}

	engineOpt := engine.WithProcessEngine(engine.ProcessConfig{
		Command:     cfg.Engine.Command,
		Args:        cfg.Engine.Args,
		Env:         cfg.Engine.Env,
		CancelGrace: cfg.Engine.CancelGrace,
	})
	if opts.Engine != nil {
		engineOpt = engine.WithEngine(opts.Engine)
	}
	rt, err := engine.NewRuntime(cfg.WorkDir, s, engineOpt)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine runtime: %w", err)
	}

	store := opts.Store
	if store == nil {
		store, err = storage.Open(cfg.Storage)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to open object store: %w", err)
		}
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	cat := catalog.New()
	ld, err := loader.New(cfg.ProjectsDir, cat, loader.Options{
		Suffix:    cfg.ProjectSuffix,
		Watch:     cfg.Watch.Enabled,
		Debounce:  cfg.Watch.Debounce,
		CacheSize: cfg.Cache.Size,
	})
	if err != nil {
		_ = rt.Close()
		_ = store.Close()
		return nil, err
	}

	limit := cfg.Server.MaxConcurrentTasks
	if limit <= 0 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	d := &Driver{
		cfg:     cfg,
		info:    newInfo(opts.Version, cfg),
		runtime: rt,
		catalog: cat,
		loader:  ld,
		store:   store,
		metrics: m,
		sem:     make(chan struct{}, limit),
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(map[string]*taskEntry),
	}
	d.unsubscribe = cat.Subscribe(d.onCatalogEvent)

	sctx, scancel := context.WithTimeout(ctx, storeTimeout)
	defer scancel()
	if err := storage.SaveJSON(sctx, store, storage.KindComponents, ComponentID, d.info); err != nil {
		logging.Warn("Driver", "Failed to store component info: %v", err)
	}

	logging.Info("Driver", "Initialized %s %s (work dir %s)", d.info.Name, d.info.Version, rt.WorkDir())
	return d, nil
}

// Start runs the initial scan of the projects directory and starts watching
// it when configured.
func (d *Driver) Start(ctx context.Context) error {
	if d.isClosed() {
		return ErrClosed
	}
	err := d.loader.Start(ctx)
	d.metrics.Rescanned(err)
	return err
}

// Rescan re-reads the projects directory.
func (d *Driver) Rescan(ctx context.Context) error {
	err := d.loader.Rescan(ctx)
	d.metrics.Rescanned(err)
	return err
}

func (d *Driver) Info() Info {
	return d.info
}

// Config returns the configuration the driver was built with.
func (d *Driver) Config() config.DriverConfig {
	return d.cfg
}

func (d *Driver) Catalog() *catalog.Catalog {
	return d.catalog
}

func (d *Driver) Metrics() *metrics.Metrics {
	return d.metrics
}

func (d *Driver) Store() storage.ObjectStore {
	return d.store
}

// Descriptors lists all known descriptors.
func (d *Driver) Descriptors() []*api.ProjectDescriptor {
	return d.catalog.List()
}

// Descriptor returns one descriptor or an *api.NotFoundError.
func (d *Driver) Descriptor(id string) (*api.ProjectDescriptor, error) {
	return d.catalog.Get(id)
}

// Lookup returns the known descriptors among ids. Unknown ids are skipped.
func (d *Driver) Lookup(ids []string) []*api.ProjectDescriptor {
	return d.catalog.Lookup(ids)
}

// CreateTask registers a new task in state CREATED.
func (d *Driver) CreateTask(cfg api.TaskConfig) (*task.Controller, error) {
	ctrl, err := task.New(cfg, task.Deps{
		Resolver:    d.catalog,
		Environment: d.runtime,
		OnStep: func(_ string, step api.StepResult) {
			d.metrics.StepFinished(step.Status)
		},
	})
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if _, exists := d.tasks[ctrl.ID()]; exists {
		return nil, api.NewTaskError(api.KindInvalidState, nil, "task %s already exists", ctrl.ID())
	}
	e := &taskEntry{ctrl: ctrl, done: make(chan struct{})}
	ctrl.OnStateChange(func(change api.StateChange) {
		d.onTaskStateChange(e, change)
	})
	d.tasks[ctrl.ID()] = e
	d.order = append(d.order, ctrl.ID())
	logging.Debug("Driver", "Created task %s for descriptor %s", ctrl.ID(), cfg.DescriptorID)
	return ctrl, nil
}

// Execute creates a task and runs it to completion on the calling goroutine.
// Cancelling ctx cancels the task. The controller is returned even when the
// run fails so that its outcome and partial results stay available.
func (d *Driver) Execute(ctx context.Context, cfg api.TaskConfig) (*task.Controller, error) {
	ctrl, err := d.CreateTask(cfg)
	if err != nil {
		return nil, err
	}
	e, _ := d.entry(ctrl.ID())
	stop := context.AfterFunc(ctx, ctrl.Cancel)
	defer stop()

	err = d.execute(ctx, e)
	return ctrl, err
}

// Submit creates a task and runs it in the background. At most
// server.maxConcurrentTasks submitted tasks run at a time; the others wait in
// state CREATED.
func (d *Driver) Submit(cfg api.TaskConfig) (*task.Controller, error) {
	ctrl, err := d.CreateTask(cfg)
	if err != nil {
		return nil, err
	}
	e, _ := d.entry(ctrl.ID())

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case d.sem <- struct{}{}:
		case <-d.ctx.Done():
			ctrl.Cancel()
			d.finish(e)
			return
		}
		defer func() { <-d.sem }()
		_ = d.execute(d.ctx, e)
	}()
	return ctrl, nil
}

func (d *Driver) execute(ctx context.Context, e *taskEntry) error {
	defer d.finish(e)

	if err := e.ctrl.Init(ctx); err != nil {
		return err
	}

	stopPersist := d.persistPeriodically(e)
	defer stopPersist()

	_, err := e.ctrl.Run(ctx)
	return err
}

// persistPeriodically stores the partial result tree of a running task until
// the returned func is called.
func (d *Driver) persistPeriodically(e *taskEntry) func() {
	interval := d.cfg.Server.PersistInterval
	if interval <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.saveObject(storage.KindResults, e.ctrl.ID(), e.ctrl.Result())
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}

// finish persists the final state of a task and releases it.
func (d *Driver) finish(e *taskEntry) {
	e.ctrl.Release()
	d.persist(e.ctrl)
	select {
	case <-e.done:
	default:
		close(e.done)
	}
}

func (d *Driver) persist(ctrl *task.Controller) {
	d.saveObject(storage.KindResults, ctrl.ID(), ctrl.Result())
	d.saveObject(storage.KindOutcomes, ctrl.ID(), ctrl.Outcome())
}

func (d *Driver) saveObject(kind, name string, v any) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := storage.SaveJSON(ctx, d.store, kind, name, v); err != nil {
		logging.Warn("Driver", "Failed to store %s of %s: %v", kind, name, err)
	}
}

// Task returns a task by id.
func (d *Driver) Task(id string) (*task.Controller, error) {
	e, err := d.entry(id)
	if err != nil {
		return nil, err
	}
	return e.ctrl, nil
}

// Tasks returns all tasks in creation order.
func (d *Driver) Tasks() []*task.Controller {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*task.Controller, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.tasks[id].ctrl)
	}
	return out
}

// Cancel cancels a task. Cancelling a finished task is a no-op.
func (d *Driver) Cancel(id string) error {
	e, err := d.entry(id)
	if err != nil {
		return err
	}
	e.ctrl.Cancel()
	return nil
}

// Wait blocks until a task started with Execute or Submit has finished and
// its results are stored.
func (d *Driver) Wait(ctx context.Context, id string) error {
	e, err := d.entry(id)
	if err != nil {
		return err
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forget removes a finished task from the registry. Stored results remain.
func (d *Driver) Forget(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.tasks[id]
	if !ok {
		return api.NewTaskNotFoundError(id)
	}
	if !e.ctrl.State().IsTerminal() {
		return api.NewTaskError(api.KindInvalidState, nil, "task %s is still %s", id, e.ctrl.State())
	}
	delete(d.tasks, id)
	for i, tid := range d.order {
		if tid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

// StoredOutcome loads the outcome of a task from the store. It also finds
// tasks of earlier driver processes.
func (d *Driver) StoredOutcome(ctx context.Context, id string) (api.TaskOutcome, error) {
	var out api.TaskOutcome
	err := storage.LoadJSON(ctx, d.store, storage.KindOutcomes, id, &out)
	return out, err
}

// StoredResult loads the last stored result tree of a task.
func (d *Driver) StoredResult(ctx context.Context, id string) (*api.ResultNode, error) {
	var node api.ResultNode
	if err := storage.LoadJSON(ctx, d.store, storage.KindResults, id, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// Close cancels all tasks, waits for background runs and releases the
// runtime, loader and store.
func (d *Driver) Close() error {
	var errs []error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		entries := make([]*taskEntry, 0, len(d.tasks))
		for _, e := range d.tasks {
			entries = append(entries, e)
		}
		d.mu.Unlock()

		d.cancel()
		for _, e := range entries {
			e.ctrl.Cancel()
		}
		d.wg.Wait()
		for _, e := range entries {
			e.ctrl.Release()
		}

		d.loader.Stop()
		d.unsubscribe()
		if err := d.runtime.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := d.store.Close(); err != nil {
			errs = append(errs, err)
		}
		logging.Info("Driver", "Closed driver after %d tasks", len(entries))
	})
	return errors.Join(errs...)
}

func (d *Driver) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

func (d *Driver) entry(id string) (*taskEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.tasks[id]
	if !ok {
		return nil, api.NewTaskNotFoundError(id)
	}
	return e, nil
}

func (d *Driver) onTaskStateChange(e *taskEntry, change api.StateChange) {
	switch {
	case change.NewState == api.StateRunning:
		e.started = change.Timestamp
		d.metrics.TaskStarted()
	case change.NewState.IsTerminal() && change.OldState == api.StateRunning:
		d.metrics.TaskFinished(change.NewState, change.Timestamp.Sub(e.started))
	case change.NewState.IsTerminal():
		d.metrics.RecordTask(change.NewState)
	}
}

func (d *Driver) onCatalogEvent(ev catalog.Event) {
	d.metrics.SetDescriptors(d.catalog.Len())

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	switch ev.Type {
	case catalog.EventAdded:
		if err := storage.SaveJSON(ctx, d.store, storage.KindDescriptors, ev.Descriptor.ID, ev.Descriptor); err != nil {
			logging.Warn("Driver", "Failed to store descriptor %s: %v", ev.Descriptor.ID, err)
		}
	case catalog.EventRemoved:
		if err := d.store.Delete(ctx, storage.KindDescriptors, ev.Descriptor.ID); err != nil && !api.IsNotFound(err) {
			logging.Warn("Driver", "Failed to delete descriptor %s: %v", ev.Descriptor.ID, err)
		}
	}
}
