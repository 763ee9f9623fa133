// Package api holds the data model shared by the driver's packages: project
// descriptors, ordered parameter sets, task configuration and lifecycle
// states, progress snapshots, the result tree and the error taxonomy.
//
// The package has no dependencies on other internal packages so that the
// loader, catalog, adapter, task controller and the host-facing servers can
// all exchange these types without import cycles.
//
// # Error Taxonomy
//
// Every failure surfaced to a host is a *TaskError with one of these kinds:
//
//   - KindResourceUnavailable: the project file could not be read or copied
//   - KindInitializationFailure: the engine rejected the project or its parameters
//   - KindExecutionFailure: the engine aborted the run
//   - KindCancelled: the host cancelled the task
//   - KindConfigurationError: driver settings could not be loaded
//   - KindInvalidState: an operation arrived in a state that forbids it
//
// KindAssertionFailure is never returned as an error. It classifies the
// outcome of a run that completed with failing assertions.
//
// Use KindOf and IsKind to classify wrapped errors, and IsNotFound for
// catalog, task and store lookups.
package api
