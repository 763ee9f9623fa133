package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/engine"
	"github.com/giantswarm/suidriver/internal/project"
	"github.com/giantswarm/suidriver/pkg/logging"
)

// Environment supplies the engine and the directory for working copies.
type Environment interface {
	Engine() engine.Engine
	WorkDir() string
}

// Callbacks are the typed slots engine events are relayed to. Nil slots are skipped.
type Callbacks struct {
	OnCaseStarted     func(ref api.CaseRef)
	OnStepFinished    func(ref api.CaseRef, step api.StepResult)
	OnCaseFinished    func(ref api.CaseRef, status api.Status)
	OnStepsDiscovered func(n int)
}

// Options configure an Adapter.
type Options struct {
	// Label names the working copy.
	Label string
	// Cases and Suite select what Run executes.
	Cases []string
	Suite string
	// IgnoreErrors makes Run report success despite failures.
	IgnoreErrors bool
	Callbacks    Callbacks
}

// Stats counts what a run executed.
type Stats struct {
	Suites     int `json:"suites"`
	Cases      int `json:"cases"`
	Steps      int `json:"steps"`
	Assertions int `json:"assertions"`
}

// Adapter runs one project for one task.
type Adapter struct {
	env  Environment
	opts Options

	mu          sync.Mutex
	project     engine.Project
	workingCopy string
	runCancel   context.CancelFunc
	running     bool
	released    bool

	failures                []api.FailureRecord
	caseFailures            map[api.CaseRef]int
	failedWithoutAssertions []string
	suitesSeen              map[string]bool
	stats                   Stats

	releaseOnce sync.Once
	releaseErr  error
}

// New creates an adapter. Nothing is touched until Init.
func New(env Environment, opts Options) *Adapter {
	return &Adapter{
		env:          env,
		opts:         opts,
		caseFailures: make(map[api.CaseRef]int),
		suitesSeen:   make(map[string]bool),
	}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Init copies resourcePath into a private working copy, opens it through the
// engine and applies params, an alternating key/value list. Later duplicates
// of a key win.
func (a *Adapter) Init(ctx context.Context, resourcePath string, params []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.project != nil || a.released {
		return api.NewTaskError(api.KindInvalidState, nil, "adapter already initialized")
	}
	if len(params)%2 != 0 {
		return api.NewTaskError(api.KindInitializationFailure, nil,
			"invocation parameters must be key/value pairs, got %d entries", len(params))
	}

	workingCopy, err := a.copyResource(resourcePath)
	if err != nil {
		return api.NewTaskError(api.KindResourceUnavailable, err, "cannot create working copy of %s", resourcePath)
	}

	p, err := a.env.Engine().Open(ctx, workingCopy)
	if err != nil {
		_ = os.Remove(workingCopy)
		return api.NewTaskError(api.KindInitializationFailure, err, "engine rejected project %s", resourcePath)
	}

	for i := 0; i < len(params); i += 2 {
		p.SetProperty(params[i], params[i+1])
	}
	logging.Debug("Adapter", "Applied invocation properties to %s: %s", workingCopy, logging.FormatProperties(params))

	p.AddListener(&relay{a: a})
	a.project = p
	a.workingCopy = workingCopy
	return nil
}

func (a *Adapter) copyResource(resourcePath string) (string, error) {
	src, err := os.Open(resourcePath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	label := unsafeFileChars.ReplaceAllString(a.opts.Label, "_")
	if label == "" {
		label = "project"
	}
	dst, err := os.CreateTemp(a.env.WorkDir(), label+"_*"+project.DefaultSuffix)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// Project returns the opened project, or nil before Init.
func (a *Adapter) Project() engine.Project {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.project
}

// WorkingCopy returns the path of the private copy, or "" before Init.
func (a *Adapter) WorkingCopy() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.workingCopy
}

// Run executes the selection and blocks until the engine is done. It returns
// the verdict; errors are *api.TaskError of kind ExecutionFailure, Cancelled
// or InvalidState.
func (a *Adapter) Run(ctx context.Context) (bool, error) {
	a.mu.Lock()
	switch {
	case a.released:
		a.mu.Unlock()
		return false, api.NewTaskError(api.KindInvalidState, nil, "adapter has been released")
	case a.project == nil:
		a.mu.Unlock()
		return false, api.NewTaskError(api.KindInvalidState, nil, "adapter is not initialized")
	case a.running:
		a.mu.Unlock()
		return false, api.NewTaskError(api.KindInvalidState, nil, "adapter is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.running = true
	p := a.project
	a.mu.Unlock()

	defer func() {
		cancel()
		a.mu.Lock()
		a.runCancel = nil
		a.running = false
		a.mu.Unlock()
	}()

	sel, err := resolveSelection(p.Metadata(), a.opts.Cases, a.opts.Suite)
	if err != nil {
		return false, api.NewTaskError(api.KindExecutionFailure, err, "cannot select tests")
	}
	logging.Info("Adapter", "Running %s of project %q", sel, p.Metadata().Name)

	if err := runSelection(runCtx, p, sel); err != nil {
		if errors.Is(err, errEnginePanic) {
			return false, api.NewTaskError(api.KindExecutionFailure, err, "engine aborted the run")
		}
		if runCtx.Err() != nil {
			return false, api.NewTaskError(api.KindCancelled, err, "run cancelled")
		}
		taskErr := api.NewTaskError(api.KindExecutionFailure, err, "engine aborted the run")
		var runnerErr *engine.RunnerError
		if errors.As(err, &runnerErr) {
			taskErr.RawReport = runnerErr.Stderr
		}
		return false, taskErr
	}

	a.mu.Lock()
	failed := len(a.failures) > 0 || len(a.failedWithoutAssertions) > 0
	a.mu.Unlock()
	if failed && !a.opts.IgnoreErrors {
		return false, nil
	}
	return true, nil
}

var errEnginePanic = errors.New("engine panicked")

// runSelection invokes the engine for sel. A panicking engine is reported
// as an execution failure so the run still terminates.
func runSelection(ctx context.Context, p engine.Project, sel selection) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Adapter", fmt.Errorf("%v", r), "Engine panicked while running %s", sel)
			err = fmt.Errorf("%w: %v", errEnginePanic, r)
		}
	}()

	switch {
	case len(sel.cases) > 0:
		return p.RunCases(ctx, sel.cases)
	case sel.suite != "":
		return p.RunSuite(ctx, sel.suite)
	default:
		return p.RunProject(ctx)
	}
}

// Cancel asks the engine to stop after its current step. It is a no-op when
// nothing is running and safe to call from any goroutine. Callers that need
// to cancel a run that may not have started yet cancel the context passed
// to Run instead.
func (a *Adapter) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runCancel != nil {
		logging.Info("Adapter", "Cancelling run of %s", a.workingCopy)
		a.runCancel()
	}
}

// Release frees the engine project and deletes the working copy. Only the
// first call does anything; it returns the first error encountered.
func (a *Adapter) Release() error {
	a.releaseOnce.Do(func() {
		a.mu.Lock()
		a.released = true
		if a.runCancel != nil {
			a.runCancel()
		}
		p, workingCopy := a.project, a.workingCopy
		a.mu.Unlock()

		var errs []error
		if p != nil {
			if err := p.Release(); err != nil {
				errs = append(errs, fmt.Errorf("engine release: %w", err))
			}
		}
		if workingCopy != "" {
			if err := os.Remove(workingCopy); err != nil && !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("remove working copy: %w", err))
			}
		}
		a.releaseErr = errors.Join(errs...)
	})
	return a.releaseErr
}

// Failures returns the failure records of the run so far.
func (a *Adapter) Failures() []api.FailureRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]api.FailureRecord(nil), a.failures...)
}

// FailedWithoutAssertions lists "suite/case" of cases that failed without a failing assertion.
func (a *Adapter) FailedWithoutAssertions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.failedWithoutAssertions...)
}

// Stats returns counters of the run so far.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
