package task

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/suidriver/internal/adapter"
	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/progress"
	"github.com/giantswarm/suidriver/internal/results"
	"github.com/giantswarm/suidriver/pkg/logging"
)

// Resolver looks up descriptors by id. The catalog implements it.
type Resolver interface {
	Get(id string) (*api.ProjectDescriptor, error)
}

// Deps are the collaborators a controller needs.
type Deps struct {
	Resolver    Resolver
	Environment adapter.Environment
	// Tracer defaults to the global otel tracer.
	Tracer trace.Tracer
	// OnStep, if set, sees every recorded step on the run goroutine.
	OnStep func(taskID string, step api.StepResult)
}

// StateChangeCallback is called after every state transition, outside the
// controller's lock.
type StateChangeCallback func(change api.StateChange)

// Controller drives one execution of one descriptor.
type Controller struct {
	id   string
	cfg  api.TaskConfig
	deps Deps

	tracker   *progress.Tracker
	collector *results.Collector

	mu              sync.RWMutex
	state           api.ExecutionState
	lastErr         error
	passed          bool
	descriptor      *api.ProjectDescriptor
	adapter         *adapter.Adapter
	runCancel       context.CancelFunc
	cancelRequested bool
	callbacks       []StateChangeCallback

	finalizeOnce  sync.Once
	finalizeCalls int
	releaseOnce   sync.Once
}

// New creates a controller in state CREATED. The configuration is copied, so
// later changes by the caller are not seen by the task.
func New(cfg api.TaskConfig, deps Deps) (*Controller, error) {
	if cfg.DescriptorID == "" {
		return nil, api.NewTaskError(api.KindConfigurationError, nil, "task configuration has no descriptor id")
	}
	if deps.Resolver == nil || deps.Environment == nil {
		return nil, api.NewTaskError(api.KindConfigurationError, nil, "task needs a resolver and an environment")
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("suidriver/task")
	}

	id := cfg.TaskID
	if id == "" {
		id = uuid.New().String()
	}
	cfg.TaskID = id
	cfg.Cases = slices.Clone(cfg.Cases)
	cfg.Arguments = cfg.Arguments.Clone()
	cfg.TestObject.Resources = cfg.TestObject.Resources.Clone()

	return &Controller{
		id:        id,
		cfg:       cfg,
		deps:      deps,
		tracker:   progress.NewTracker(),
		collector: results.NewCollector(id, cfg.DescriptorID),
		state:     api.StateCreated,
	}, nil
}

// ID returns the task id.
func (c *Controller) ID() string {
	return c.id
}

// Config returns the task configuration.
func (c *Controller) Config() api.TaskConfig {
	return c.cfg
}

// State returns the current state.
func (c *Controller) State() api.ExecutionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Err returns the error that moved the task into FAILED or CANCELLED, if any.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Descriptor returns the resolved descriptor, or nil before Init.
func (c *Controller) Descriptor() *api.ProjectDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.descriptor.Clone()
}

// OnStateChange registers a callback for state transitions.
func (c *Controller) OnStateChange(cb StateChangeCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, cb)
}

// Progress returns a progress snapshot. Safe to call at any time.
func (c *Controller) Progress() api.ProgressSnapshot {
	return c.tracker.Snapshot()
}

// Result returns a copy of the result tree, including mid-run.
func (c *Controller) Result() *api.ResultNode {
	return c.collector.CurrentResultTree()
}

// Init resolves the descriptor, prepares the working copy and wires the
// engine events into progress and results.
func (c *Controller) Init(ctx context.Context) error {
	if state := c.State(); state != api.StateCreated {
		return api.NewTaskError(api.KindInvalidState, nil, "cannot initialize task %s in state %s", c.id, state)
	}

	desc, err := c.deps.Resolver.Get(c.cfg.DescriptorID)
	if err != nil {
		kind := api.KindInitializationFailure
		if api.IsNotFound(err) {
			kind = api.KindResourceUnavailable
		}
		return c.fail(api.NewTaskError(kind, err, "cannot resolve descriptor %s", c.cfg.DescriptorID))
	}
	c.collector.SetLabel(desc.Label)

	params := invocationParameters(c.cfg)
	logging.Info("Task", "Initializing task %s for %q with properties: %s",
		c.id, desc.Label, logging.FormatProperties(params))

	a := adapter.New(c.deps.Environment, adapter.Options{
		Label:        desc.Label,
		Cases:        c.cfg.Cases,
		Suite:        c.cfg.Suite,
		IgnoreErrors: c.cfg.IgnoreErrors,
		Callbacks: adapter.Callbacks{
			OnCaseStarted:     c.onCaseStarted,
			OnStepFinished:    c.onStepFinished,
			OnCaseFinished:    c.onCaseFinished,
			OnStepsDiscovered: c.tracker.Grow,
		},
	})
	if err := a.Init(ctx, desc.LocalPath, params); err != nil {
		return c.fail(err)
	}

	estimate := desc.StepCount
	if p := a.Project(); p != nil {
		estimate = estimateSteps(p.Metadata(), c.cfg.Cases, c.cfg.Suite)
	}
	c.tracker.SetEstimatedTotal(estimate)

	c.mu.Lock()
	if c.state != api.StateCreated {
		// Cancelled while the working copy was being prepared.
		state := c.state
		c.mu.Unlock()
		releaseQuietly(c.id, a)
		return api.NewTaskError(api.KindCancelled, nil, "task %s was %s during initialization", c.id, state)
	}
	c.descriptor = desc
	c.adapter = a
	c.mu.Unlock()

	c.transition(api.StateInitialized, nil, api.StateCreated)
	logging.Debug("Task", "Task %s initialized with an estimate of %d steps", c.id, estimate)
	return nil
}

// Run executes the task and blocks until the engine is done. The result tree
// is finalized and the working copy released before Run returns, whatever the
// outcome. The bool is the verdict of a completed run.
func (c *Controller) Run(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.state != api.StateInitialized {
		state := c.state
		c.mu.Unlock()
		if state == api.StateCancelled {
			return false, api.NewTaskError(api.KindCancelled, nil, "task %s was cancelled before it ran", c.id)
		}
		return false, api.NewTaskError(api.KindInvalidState, nil, "cannot run task %s in state %s", c.id, state)
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.runCancel = cancel
	a := c.adapter
	c.mu.Unlock()
	defer cancel()
	defer c.cleanup(true)

	if !c.transition(api.StateRunning, nil, api.StateInitialized) {
		return false, api.NewTaskError(api.KindCancelled, nil, "task %s was cancelled before it ran", c.id)
	}

	runCtx, span := c.deps.Tracer.Start(runCtx, "task "+c.id,
		trace.WithAttributes(
			attribute.String("task.id", c.id),
			attribute.String("task.descriptor", c.cfg.DescriptorID),
		))
	defer span.End()

	c.tracker.Start()
	logging.Info("Task", "Running task %s", c.id)
	passed, err := a.Run(runCtx)

	c.mu.Lock()
	cancelled := c.cancelRequested || api.IsKind(err, api.KindCancelled)
	c.runCancel = nil
	c.mu.Unlock()

	var (
		next    api.ExecutionState
		partial = true
	)
	switch {
	case cancelled:
		next = api.StateCancelled
		if err == nil || !api.IsKind(err, api.KindCancelled) {
			err = api.NewTaskError(api.KindCancelled, err, "task %s cancelled", c.id)
		}
		passed = false
	case err != nil:
		next = api.StateFailed
		passed = false
	default:
		next = api.StateCompleted
		partial = false
	}

	c.cleanup(partial)

	snap := c.tracker.Snapshot()
	span.SetAttributes(
		attribute.String("task.state", string(next)),
		attribute.Bool("task.passed", passed),
		attribute.Int("task.steps", snap.StepsCompleted),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	c.mu.Lock()
	c.passed = passed
	c.mu.Unlock()
	c.transition(next, err, api.StateRunning)

	logging.Info("Task", "Task %s finished in state %s after %s (%d/%d steps, passed=%t)",
		c.id, next, snap.Elapsed().Round(time.Millisecond), snap.StepsCompleted, snap.StepsTotal, passed)
	return passed, err
}

// Cancel stops the task. Before the run starts the task moves to CANCELLED
// immediately and its partial result is finalized; during the run the engine
// is asked to stop and Run moves the task to CANCELLED when it returns.
// Cancel is idempotent and a no-op in terminal states.
func (c *Controller) Cancel() {
	c.mu.Lock()
	switch c.state {
	case api.StateRunning:
		if c.cancelRequested {
			c.mu.Unlock()
			return
		}
		c.cancelRequested = true
		cancel, a := c.runCancel, c.adapter
		c.mu.Unlock()
		logging.Info("Task", "Cancelling running task %s", c.id)
		if cancel != nil {
			cancel()
		}
		if a != nil {
			a.Cancel()
		}
		return
	case api.StateCreated, api.StateInitialized:
		c.mu.Unlock()
		err := api.NewTaskError(api.KindCancelled, nil, "task %s cancelled before it ran", c.id)
		if c.transition(api.StateCancelled, err, api.StateCreated, api.StateInitialized) {
			logging.Info("Task", "Cancelled task %s before it ran", c.id)
			c.cleanup(true)
		} else {
			// Run started in between.
			c.Cancel()
		}
		return
	default:
		c.mu.Unlock()
	}
}

// Release frees the working copy and engine resources. A task that has not
// reached a terminal state is cancelled first. A running task is only asked
// to stop: the engine may still use the working copy until its current step
// ends, so Run releases it on return. Errors are logged, never returned.
func (c *Controller) Release() {
	if !c.State().IsTerminal() {
		c.Cancel()
	}
	if c.State() == api.StateRunning {
		logging.Debug("Task", "Task %s is still running, leaving release to the run", c.id)
		return
	}
	c.releaseAdapter()
}

// Outcome summarizes the task for the host.
func (c *Controller) Outcome() api.TaskOutcome {
	c.mu.RLock()
	state, passed, lastErr := c.state, c.passed, c.lastErr
	c.mu.RUnlock()

	out := api.TaskOutcome{
		TaskID:                  c.id,
		DescriptorID:            c.cfg.DescriptorID,
		State:                   state,
		Passed:                  passed,
		Failures:                c.collector.Failures(),
		FailedWithoutAssertions: c.collector.FailedWithoutAssertions(),
		Progress:                c.tracker.Snapshot(),
	}
	switch {
	case lastErr != nil:
		out.ErrorKind = api.KindOf(lastErr)
		out.Error = lastErr.Error()
	case state == api.StateCompleted && (len(out.Failures) > 0 || len(out.FailedWithoutAssertions) > 0):
		out.ErrorKind = api.KindAssertionFailure
		out.Error = fmt.Sprintf("%d failed assertions, %d cases failed without assertions",
			len(out.Failures), len(out.FailedWithoutAssertions))
	}
	return out
}

func (c *Controller) onCaseStarted(ref api.CaseRef) {
	if err := c.collector.CaseStarted(ref); err != nil {
		logging.Warn("Task", "Task %s dropped case start of %s: %v", c.id, ref, err)
	}
}

func (c *Controller) onStepFinished(ref api.CaseRef, step api.StepResult) {
	if err := c.collector.StepFinished(ref, step); err != nil {
		logging.Warn("Task", "Task %s dropped step %q of %s: %v", c.id, step.Label, ref, err)
		return
	}
	c.tracker.Advance()
	if c.deps.OnStep != nil {
		c.deps.OnStep(c.id, step)
	}
}

func (c *Controller) onCaseFinished(ref api.CaseRef, status api.Status) {
	if err := c.collector.CaseFinished(ref, status); err != nil {
		logging.Warn("Task", "Task %s dropped case end of %s: %v", c.id, ref, err)
	}
}

// fail moves a task that never ran into FAILED and cleans up.
func (c *Controller) fail(err error) error {
	if c.transition(api.StateFailed, err, api.StateCreated, api.StateInitialized) {
		logging.Error("Task", err, "Task %s failed to initialize", c.id)
	}
	c.cleanup(true)
	return err
}

// cleanup finalizes the result tree and releases the adapter. Both happen at
// most once per controller.
func (c *Controller) cleanup(partial bool) {
	c.finalizeOnce.Do(func() {
		c.mu.Lock()
		c.finalizeCalls++
		c.mu.Unlock()
		if _, err := c.collector.Finalize(partial); err != nil {
			logging.Warn("Task", "Finalizing result of task %s: %v", c.id, err)
		}
	})
	c.releaseAdapter()
}

func (c *Controller) releaseAdapter() {
	c.mu.RLock()
	a := c.adapter
	c.mu.RUnlock()
	if a == nil {
		return
	}
	c.releaseOnce.Do(func() {
		releaseQuietly(c.id, a)
	})
}

func releaseQuietly(taskID string, a *adapter.Adapter) {
	if err := a.Release(); err != nil {
		logging.Warn("Task", "Releasing resources of task %s: %v", taskID, err)
	}
}

// transition moves to next if the current state is one of from. Callbacks
// run outside the lock.
func (c *Controller) transition(next api.ExecutionState, err error, from ...api.ExecutionState) bool {
	c.mu.Lock()
	old := c.state
	if !slices.Contains(from, old) {
		c.mu.Unlock()
		return false
	}
	c.state = next
	if err != nil {
		c.lastErr = err
	}
	callbacks := slices.Clone(c.callbacks)
	c.mu.Unlock()

	change := api.StateChange{
		TaskID:    c.id,
		OldState:  old,
		NewState:  next,
		Err:       err,
		Timestamp: time.Now(),
	}
	for _, cb := range callbacks {
		cb(change)
	}
	return true
}

