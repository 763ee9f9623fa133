package enginetest

import (
	"context"
	"sync"
	"time"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/engine"
	"github.com/giantswarm/suidriver/internal/project"
)

// Run records one run request.
type Run struct {
	Cases   []api.CaseRef
	Suite   string
	Project bool
}

// Engine is a scripted engine.Engine.
type Engine struct {
	mu sync.Mutex

	// StepStatus scripts step verdicts by "suite/case/step".
	StepStatus map[string]api.Status
	// CaseStatus overrides case verdicts by "suite/case".
	CaseStatus map[string]api.Status
	// OpenErr is returned by Open.
	OpenErr error
	// RunErr is returned by every run after its events were emitted.
	RunErr error
	// StepDelay is spent inside every step.
	StepDelay time.Duration
	// Discovered is reported through StepsDiscovered when a run starts.
	Discovered int
	// BeforeStep is called before each step is executed.
	BeforeStep func(ref api.CaseRef, step string)

	projects []*Project
}

// New returns an engine where everything passes.
func New() *Engine {
	return &Engine{
		StepStatus: make(map[string]api.Status),
		CaseStatus: make(map[string]api.Status),
	}
}

// FailStep scripts a failing step with one failing assertion.
func (e *Engine) FailStep(suite, testCase, step string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StepStatus[suite+"/"+testCase+"/"+step] = api.StatusFailed
}

// FailCase scripts a case the engine reports FAILED regardless of its steps.
func (e *Engine) FailCase(suite, testCase string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CaseStatus[suite+"/"+testCase] = api.StatusFailed
}

// Open loads the project outline from path.
func (e *Engine) Open(ctx context.Context, path string) (engine.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	openErr := e.OpenErr
	e.mu.Unlock()
	if openErr != nil {
		return nil, openErr
	}

	meta, err := project.Load(path)
	if err != nil {
		return nil, err
	}
	p := &Project{engine: e, path: path, meta: meta}

	e.mu.Lock()
	e.projects = append(e.projects, p)
	e.mu.Unlock()
	return p, nil
}

// Projects returns every project opened so far.
func (e *Engine) Projects() []*Project {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Project(nil), e.projects...)
}

// Project is a scripted engine.Project.
type Project struct {
	engine *Engine
	path   string
	meta   *project.Project

	mu         sync.Mutex
	properties api.ParameterSet
	listeners  []engine.Listener
	runs       []Run
	released   int
}

// Path is the file the project was opened from.
func (p *Project) Path() string {
	return p.path
}

// Metadata returns the project outline.
func (p *Project) Metadata() *project.Project {
	return p.meta
}

// SetProperty records a property; later calls win.
func (p *Project) SetProperty(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.properties.Set(key, value)
}

// Property returns the engine-visible value of a property.
func (p *Project) Property(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.properties.Get(key)
}

// Properties returns all properties.
func (p *Project) Properties() api.ParameterSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.properties.Clone()
}

// AddListener registers a listener.
func (p *Project) AddListener(l engine.Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Runs returns the recorded run requests.
func (p *Project) Runs() []Run {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Run(nil), p.runs...)
}

// ReleaseCount returns how often Release was called.
func (p *Project) ReleaseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// Release records the call.
func (p *Project) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released++
	return nil
}

// RunCases runs the named cases in the given order.
func (p *Project) RunCases(ctx context.Context, cases []api.CaseRef) error {
	p.record(Run{Cases: append([]api.CaseRef(nil), cases...)})
	var plan []planned
	for _, ref := range cases {
		if s, ok := p.meta.Suite(ref.Suite); ok {
			for _, c := range s.Cases {
				if c.Name == ref.Case {
					plan = append(plan, planned{suite: s.Name, c: c})
				}
			}
		}
	}
	return p.execute(ctx, plan)
}

// RunSuite runs every enabled case of a suite.
func (p *Project) RunSuite(ctx context.Context, suite string) error {
	p.record(Run{Suite: suite})
	var plan []planned
	if s, ok := p.meta.Suite(suite); ok {
		plan = planSuite(*s)
	}
	return p.execute(ctx, plan)
}

// RunProject runs every enabled case of every enabled suite.
func (p *Project) RunProject(ctx context.Context) error {
	p.record(Run{Project: true})
	var plan []planned
	for _, s := range p.meta.Suites {
		if !s.Disabled {
			plan = append(plan, planSuite(s)...)
		}
	}
	return p.execute(ctx, plan)
}

type planned struct {
	suite string
	c     project.Case
}

func planSuite(s project.Suite) []planned {
	var plan []planned
	for _, c := range s.Cases {
		if !c.Disabled {
			plan = append(plan, planned{suite: s.Name, c: c})
		}
	}
	return plan
}

func (p *Project) record(r Run) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, r)
}

func (p *Project) execute(ctx context.Context, plan []planned) error {
	p.mu.Lock()
	listeners := append([]engine.Listener(nil), p.listeners...)
	p.mu.Unlock()

	e := p.engine
	e.mu.Lock()
	delay, discovered, hook, runErr := e.StepDelay, e.Discovered, e.BeforeStep, e.RunErr
	e.mu.Unlock()

	if discovered > 0 {
		for _, l := range listeners {
			l.StepsDiscovered(discovered)
		}
	}

	for _, item := range plan {
		ref := api.CaseRef{Suite: item.suite, Case: item.c.Name}
		for _, l := range listeners {
			l.CaseStarted(ref)
		}

		caseStatus := api.StatusPassed
		for _, st := range item.c.Steps {
			if st.Disabled {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if hook != nil {
				hook(ref, st.Name)
			}
			if delay > 0 {
				time.Sleep(delay)
			}

			status := p.stepStatus(ref, st.Name)
			ev := engine.StepEvent{
				ID:     st.ID,
				Label:  st.Name,
				Status: status,
				Report: "<report step=\"" + st.Name + "\"/>",
			}
			if status == api.StatusFailed {
				caseStatus = api.StatusFailed
				ev.Assertions = []engine.AssertionResult{{
					Name:     "Assertion of " + st.Name,
					Status:   api.StatusFailed,
					Messages: []string{st.Name + " failed"},
				}}
			}
			for _, l := range listeners {
				l.StepFinished(ref, ev)
			}
		}

		if override, ok := p.caseStatus(ref); ok {
			caseStatus = override
		}
		for _, l := range listeners {
			l.CaseFinished(ref, caseStatus)
		}
	}
	return runErr
}

func (p *Project) stepStatus(ref api.CaseRef, step string) api.Status {
	e := p.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.StepStatus[ref.String()+"/"+step]; ok {
		return s
	}
	return api.StatusPassed
}

func (p *Project) caseStatus(ref api.CaseRef) (api.Status, bool) {
	e := p.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.CaseStatus[ref.String()]
	return s, ok
}
