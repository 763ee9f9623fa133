// Package task implements the task controller, the unit a host schedules.
//
// A Controller owns one adapter, one progress tracker and one result
// collector for one execution of one descriptor. Nothing is shared between
// controllers, so two controllers may run the same descriptor at the same
// time: each gets its own working copy, its own parameter set and its own
// result tree.
//
// # States
//
//	CREATED --Init--> INITIALIZED --Run--> RUNNING --> COMPLETED | FAILED | CANCELLED
//
// Cancel moves any non-terminal task to CANCELLED. While RUNNING the engine
// is asked to stop and the transition happens when Run returns. Failed
// initialization moves the task to FAILED.
//
// Whatever the outcome, the result collector is finalized exactly once and
// the working copy is released. Progress and Result may be polled from any
// goroutine at any time, including mid-run.
//
// # Errors
//
// Errors are *api.TaskError values. ResourceUnavailable and
// InitializationFailure come from Init, ExecutionFailure and Cancelled from
// Run. AssertionFailure is never returned; a completed run with failing
// assertions reports false and Outcome carries the kind.
package task
