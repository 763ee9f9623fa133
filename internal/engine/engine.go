package engine

import (
	"context"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/project"
)

// AssertionResult is the verdict of one assertion of a step.
type AssertionResult struct {
	Name     string     `json:"name"`
	Status   api.Status `json:"status"`
	Messages []string   `json:"messages,omitempty"`
}

// StepEvent is reported when a step finishes.
type StepEvent struct {
	ID          string
	Label       string
	Status      api.Status
	Assertions  []AssertionResult
	Report      string
	Attachments []string
}

// Listener receives engine callbacks.
type Listener interface {
	CaseStarted(ref api.CaseRef)
	StepFinished(ref api.CaseRef, step StepEvent)
	CaseFinished(ref api.CaseRef, status api.Status)
	// StepsDiscovered reports steps added to the run after it started.
	StepsDiscovered(n int)
}

// Engine opens projects.
type Engine interface {
	// Open loads the project file at path. The returned project is private
	// to the caller.
	Open(ctx context.Context, path string) (Project, error)
}

// Project is an opened project.
type Project interface {
	// Metadata is the static outline of the project.
	Metadata() *project.Project
	// SetProperty sets a project property; later calls win.
	SetProperty(key, value string)
	// AddListener registers a listener for subsequent runs.
	AddListener(l Listener)

	// RunCases, RunSuite and RunProject block until the run ends. When ctx is
	// cancelled they return ctx.Err() once the engine has stopped.
	RunCases(ctx context.Context, cases []api.CaseRef) error
	RunSuite(ctx context.Context, suite string) error
	RunProject(ctx context.Context) error

	// Release frees engine resources held for the project.
	Release() error
}
