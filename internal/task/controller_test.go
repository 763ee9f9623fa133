package task

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/engine"
	"github.com/giantswarm/suidriver/internal/engine/enginetest"
)

const demoProject = `<con:soapui-project name="Demo" xmlns:con="http://eviware.com/soapui/config">
  <con:testSuite name="TS1">
    <con:testCase name="TC1"><con:testStep name="s1"/><con:testStep name="s2"/></con:testCase>
    <con:testCase name="TC2"><con:testStep name="s1"/></con:testCase>
  </con:testSuite>
  <con:testSuite name="TS2">
    <con:testCase name="TC3"><con:testStep name="s1"/></con:testCase>
  </con:testSuite>
</con:soapui-project>`

const demoID = "5f0b3a66-6b5c-4b8f-9e55-0f1f4c5c9a01"

type resolver map[string]*api.ProjectDescriptor

func (r resolver) Get(id string) (*api.ProjectDescriptor, error) {
	d, ok := r[id]
	if !ok {
		return nil, api.NewDescriptorNotFoundError(id)
	}
	return d.Clone(), nil
}

type fixture struct {
	eng     *enginetest.Engine
	rt      *engine.Runtime
	source  string
	resolve resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	source := filepath.Join(t.TempDir(), "Demo-soapui-project.xml")
	require.NoError(t, os.WriteFile(source, []byte(demoProject), 0o644))

	eng := enginetest.New()
	rt, err := engine.NewRuntime(t.TempDir(), nil, engine.WithEngine(eng))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	return &fixture{
		eng:    eng,
		rt:     rt,
		source: source,
		resolve: resolver{demoID: {
			ID:        demoID,
			Label:     "Demo",
			LocalPath: source,
			StepCount: 4,
		}},
	}
}

func (f *fixture) controller(t *testing.T, cfg api.TaskConfig) *Controller {
	t.Helper()
	if cfg.DescriptorID == "" {
		cfg.DescriptorID = demoID
	}
	c, err := New(cfg, Deps{Resolver: f.resolve, Environment: f.rt})
	require.NoError(t, err)
	return c
}

func (f *fixture) workDirEntries(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.rt.WorkDir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func recordStates(c *Controller) func() []api.ExecutionState {
	var mu sync.Mutex
	var states []api.ExecutionState
	c.OnStateChange(func(change api.StateChange) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, change.NewState)
	})
	return func() []api.ExecutionState {
		mu.Lock()
		defer mu.Unlock()
		return append([]api.ExecutionState(nil), states...)
	}
}

func caseLabels(root *api.ResultNode) []string {
	var labels []string
	root.Walk(func(n *api.ResultNode) {
		if n.Kind == api.KindCase {
			labels = append(labels, n.Label)
		}
	})
	return labels
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := New(api.TaskConfig{}, Deps{Resolver: f.resolve, Environment: f.rt})
	assert.True(t, api.IsKind(err, api.KindConfigurationError))

	_, err = New(api.TaskConfig{DescriptorID: demoID}, Deps{})
	assert.True(t, api.IsKind(err, api.KindConfigurationError))

	c, err := New(api.TaskConfig{DescriptorID: demoID}, Deps{Resolver: f.resolve, Environment: f.rt})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, api.StateCreated, c.State())

	named, err := New(api.TaskConfig{TaskID: "task-1", DescriptorID: demoID}, Deps{Resolver: f.resolve, Environment: f.rt})
	require.NoError(t, err)
	assert.Equal(t, "task-1", named.ID())
}

func TestController_CompletesAndCleansUp(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, api.TaskConfig{})
	states := recordStates(c)

	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, 4, c.Progress().StepsTotal)
	require.Len(t, f.workDirEntries(t), 1, "working copy exists after init")

	passed, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, passed)

	assert.Equal(t, []api.ExecutionState{
		api.StateInitialized, api.StateRunning, api.StateCompleted,
	}, states())

	snap := c.Progress()
	assert.Equal(t, 4, snap.StepsCompleted)
	assert.LessOrEqual(t, snap.StepsCompleted, snap.StepsTotal)
	assert.False(t, snap.StartedAt.IsZero())

	tree := c.Result()
	assert.Equal(t, "Demo", tree.Label)
	assert.Equal(t, api.StatusPassed, tree.Status)
	assert.False(t, tree.Partial)
	assert.Equal(t, []string{"TC1", "TC2", "TC3"}, caseLabels(tree))

	assert.Equal(t, 1, c.finalizeCalls)
	assert.Empty(t, f.workDirEntries(t), "working copy removed after run")

	out := c.Outcome()
	assert.Equal(t, api.StateCompleted, out.State)
	assert.True(t, out.Passed)
	assert.Empty(t, out.ErrorKind)
}

func TestController_SelectionCasesOverSuite(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, api.TaskConfig{Cases: []string{"TC1"}, Suite: "TS1"})

	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, 2, c.Progress().StepsTotal)

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	tree := c.Result()
	assert.Equal(t, []string{"TC1"}, caseLabels(tree))
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "TS1", tree.Children[0].Label)

	runs := f.eng.Projects()[0].Runs()
	require.Len(t, runs, 1)
	assert.Empty(t, runs[0].Suite)
	assert.False(t, runs[0].Project)
}

func TestController_DuplicateParametersLastWins(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, api.TaskConfig{
		Arguments: api.NewParameterSet("user", "a"),
		TestObject: api.TestObject{
			Resources: api.NewParameterSet("user", "b"),
		},
	})

	require.NoError(t, c.Init(context.Background()))
	v, ok := f.eng.Projects()[0].Property("user")
	require.True(t, ok)
	assert.Equal(t, "b", v)
	c.Release()
}

func TestController_AssertionFailureIsAnOutcome(t *testing.T) {
	f := newFixture(t)
	f.eng.FailStep("TS1", "TC1", "s2")
	f.eng.FailCase("TS2", "TC3")
	c := f.controller(t, api.TaskConfig{})

	require.NoError(t, c.Init(context.Background()))
	passed, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, passed)
	assert.Equal(t, api.StateCompleted, c.State())

	out := c.Outcome()
	assert.Equal(t, api.KindAssertionFailure, out.ErrorKind)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "s2", out.Failures[0].StepLabel)
	assert.Equal(t, []string{"TS2/TC3"}, out.FailedWithoutAssertions)

	tree := c.Result()
	assert.Equal(t, api.StatusFailed, tree.Status)
}

func TestController_IgnoreErrors(t *testing.T) {
	f := newFixture(t)
	f.eng.FailStep("TS1", "TC2", "s1")
	c := f.controller(t, api.TaskConfig{IgnoreErrors: true})

	require.NoError(t, c.Init(context.Background()))
	passed, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, passed)
	assert.Len(t, c.Outcome().Failures, 1)
}

func TestController_EngineErrorFails(t *testing.T) {
	f := newFixture(t)
	f.eng.RunErr = &engine.RunnerError{ExitCode: 1, Stderr: "java.lang.OutOfMemoryError"}
	c := f.controller(t, api.TaskConfig{})

	require.NoError(t, c.Init(context.Background()))
	passed, err := c.Run(context.Background())
	assert.False(t, passed)
	require.True(t, api.IsKind(err, api.KindExecutionFailure))
	assert.Equal(t, api.StateFailed, c.State())

	tree := c.Result()
	assert.True(t, tree.Partial)
	assert.Len(t, caseLabels(tree), 3, "events before the abort are kept")
	assert.Equal(t, 1, c.finalizeCalls)
	assert.Empty(t, f.workDirEntries(t))

	out := c.Outcome()
	assert.Equal(t, api.KindExecutionFailure, out.ErrorKind)
}

func TestController_InitFailures(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(f *fixture)
		wantKind api.ErrorKind
	}{
		{
			name:     "unknown descriptor",
			mutate:   func(f *fixture) { delete(f.resolve, demoID) },
			wantKind: api.KindResourceUnavailable,
		},
		{
			name:     "missing project file",
			mutate:   func(f *fixture) { require.NoError(t, os.Remove(f.source)) },
			wantKind: api.KindResourceUnavailable,
		},
		{
			name:     "engine rejects project",
			mutate:   func(f *fixture) { f.eng.OpenErr = os.ErrInvalid },
			wantKind: api.KindInitializationFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.controller(t, api.TaskConfig{})
			tt.mutate(f)

			err := c.Init(context.Background())
			assert.True(t, api.IsKind(err, tt.wantKind), "got %v", err)
			assert.Equal(t, api.StateFailed, c.State())
			assert.Equal(t, 1, c.finalizeCalls)
			assert.Empty(t, f.workDirEntries(t))

			_, err = c.Run(context.Background())
			assert.True(t, api.IsKind(err, api.KindInvalidState))
		})
	}
}

func TestController_EnginePanicFails(t *testing.T) {
	f := newFixture(t)
	f.eng.BeforeStep = func(ref api.CaseRef, step string) {
		if ref.Case == "TC2" {
			panic("engine blew up")
		}
	}
	c := f.controller(t, api.TaskConfig{})
	states := recordStates(c)

	require.NoError(t, c.Init(context.Background()))
	var (
		passed bool
		err    error
	)
	require.NotPanics(t, func() { passed, err = c.Run(context.Background()) })
	assert.False(t, passed)
	require.True(t, api.IsKind(err, api.KindExecutionFailure))
	assert.Equal(t, api.StateFailed, c.State())
	assert.Equal(t,
		[]api.ExecutionState{api.StateInitialized, api.StateRunning, api.StateFailed}, states())

	tree := c.Result()
	assert.True(t, tree.Partial)
	assert.Equal(t, []string{"TC1", "TC2"}, caseLabels(tree))
	assert.Equal(t, 1, c.finalizeCalls)
	assert.Empty(t, f.workDirEntries(t))
	assert.Equal(t, 1, f.eng.Projects()[0].ReleaseCount())
	assert.Equal(t, api.KindExecutionFailure, c.Outcome().ErrorKind)
}

func TestController_CancelWhileRunning(t *testing.T) {
	f := newFixture(t)
	f.eng.StepDelay = 20 * time.Millisecond
	reached := make(chan struct{})
	var once sync.Once
	f.eng.BeforeStep = func(api.CaseRef, string) { once.Do(func() { close(reached) }) }

	c := f.controller(t, api.TaskConfig{})
	require.NoError(t, c.Init(context.Background()))

	type runResult struct {
		passed bool
		err    error
	}
	done := make(chan runResult, 1)
	go func() {
		passed, err := c.Run(context.Background())
		done <- runResult{passed, err}
	}()

	<-reached
	c.Cancel()
	c.Cancel()

	res := <-done
	assert.False(t, res.passed)
	assert.True(t, api.IsKind(res.err, api.KindCancelled))
	assert.Equal(t, api.StateCancelled, c.State())
	assert.True(t, c.Result().Partial)
	assert.Equal(t, 1, c.finalizeCalls)

	assert.NotPanics(t, c.Release)
	assert.NotPanics(t, c.Release)
	assert.Equal(t, 1, f.eng.Projects()[0].ReleaseCount())
	assert.Equal(t, api.KindCancelled, c.Outcome().ErrorKind)
}

func TestController_CancelBeforeRun(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, api.TaskConfig{})
	states := recordStates(c)

	require.NoError(t, c.Init(context.Background()))
	c.Cancel()

	assert.Equal(t, api.StateCancelled, c.State())
	assert.True(t, c.Result().Partial)
	assert.Empty(t, f.workDirEntries(t))

	_, err := c.Run(context.Background())
	assert.True(t, api.IsKind(err, api.KindCancelled))
	assert.Empty(t, f.eng.Projects()[0].Runs())

	c.Cancel()
	assert.Equal(t, []api.ExecutionState{api.StateInitialized, api.StateCancelled}, states())
	assert.Equal(t, 1, c.finalizeCalls)
}

func TestController_CancelInCreatedState(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, api.TaskConfig{})

	c.Cancel()
	assert.Equal(t, api.StateCancelled, c.State())

	err := c.Init(context.Background())
	assert.True(t, api.IsKind(err, api.KindInvalidState))
	assert.Empty(t, f.eng.Projects())
}

func TestController_CancelAfterCompletionIsNoop(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, api.TaskConfig{})
	require.NoError(t, c.Init(context.Background()))
	_, err := c.Run(context.Background())
	require.NoError(t, err)

	c.Cancel()
	assert.Equal(t, api.StateCompleted, c.State())
	_, err = c.Run(context.Background())
	assert.True(t, api.IsKind(err, api.KindInvalidState))
}

func TestController_ReleaseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, api.TaskConfig{})
	require.NoError(t, c.Init(context.Background()))

	c.Release()
	c.Release()

	assert.Equal(t, api.StateCancelled, c.State())
	assert.Equal(t, 1, f.eng.Projects()[0].ReleaseCount())
	assert.Empty(t, f.workDirEntries(t))
}

func TestController_ReleaseWhileRunningWaitsForRun(t *testing.T) {
	f := newFixture(t)
	reached, proceed := make(chan struct{}), make(chan struct{})
	var once sync.Once
	f.eng.BeforeStep = func(api.CaseRef, string) {
		once.Do(func() {
			close(reached)
			<-proceed
		})
	}
	c := f.controller(t, api.TaskConfig{})
	require.NoError(t, c.Init(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background())
		done <- err
	}()

	<-reached
	c.Release()
	assert.Equal(t, api.StateRunning, c.State())
	assert.Zero(t, f.eng.Projects()[0].ReleaseCount())
	assert.NotEmpty(t, f.workDirEntries(t), "working copy stays while the engine is in a step")

	close(proceed)
	err := <-done
	assert.True(t, api.IsKind(err, api.KindCancelled))
	assert.Equal(t, api.StateCancelled, c.State())
	assert.Equal(t, 1, f.eng.Projects()[0].ReleaseCount())
	assert.Empty(t, f.workDirEntries(t))

	c.Release()
	assert.Equal(t, 1, f.eng.Projects()[0].ReleaseCount())
}

func TestController_DiscoveredStepsGrowEstimate(t *testing.T) {
	f := newFixture(t)
	f.eng.Discovered = 3
	c := f.controller(t, api.TaskConfig{})
	require.NoError(t, c.Init(context.Background()))

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	snap := c.Progress()
	assert.Equal(t, 4, snap.StepsCompleted)
	assert.Equal(t, 7, snap.StepsTotal)
}

func TestController_StepObserver(t *testing.T) {
	f := newFixture(t)
	f.eng.FailStep("TS1", "TC2", "s1")

	var seen []string
	c, err := New(api.TaskConfig{DescriptorID: demoID}, Deps{
		Resolver:    f.resolve,
		Environment: f.rt,
		OnStep: func(taskID string, step api.StepResult) {
			seen = append(seen, step.Label+"="+string(step.Status))
		},
	})
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background()))
	_, err = c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"s1=PASSED", "s2=PASSED", "s1=FAILED", "s1=PASSED"}, seen)
}

func TestController_ConcurrentControllersAreIsolated(t *testing.T) {
	f := newFixture(t)
	f.eng.StepDelay = time.Millisecond
	f.eng.FailStep("TS1", "TC2", "s1")

	a := f.controller(t, api.TaskConfig{})
	b := f.controller(t, api.TaskConfig{Cases: []string{"TC3"}})
	require.NoError(t, a.Init(context.Background()))
	require.NoError(t, b.Init(context.Background()))

	var wg sync.WaitGroup
	for _, c := range []*Controller{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !c.State().IsTerminal() {
				_ = c.Progress()
				_ = c.Result()
				time.Sleep(time.Millisecond)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Run(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	projects := f.eng.Projects()
	require.Len(t, projects, 2)
	assert.NotEqual(t, projects[0].Path(), projects[1].Path())

	assert.Equal(t, []string{"TC1", "TC2", "TC3"}, caseLabels(a.Result()))
	assert.Equal(t, []string{"TC3"}, caseLabels(b.Result()))
	assert.Equal(t, api.StatusFailed, a.Result().Status)
	assert.Equal(t, api.StatusPassed, b.Result().Status)
	assert.Equal(t, a.ID(), a.Result().ID)
	assert.Equal(t, b.ID(), b.Result().ID)
	assert.Equal(t, 4, a.Progress().StepsCompleted)
	assert.Equal(t, 1, b.Progress().StepsCompleted)
}

func TestController_ConfigIsCopied(t *testing.T) {
	f := newFixture(t)
	args := api.NewParameterSet("k", "v")
	c := f.controller(t, api.TaskConfig{Arguments: args})

	args.Set("k", "changed")
	v, _ := c.Config().Arguments.Get("k")
	assert.Equal(t, "v", v)
}
