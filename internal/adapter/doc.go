// Package adapter wraps one engine project for the duration of one task.
//
// An Adapter makes a private working copy of the project file, opens it
// through the engine, applies the task's invocation parameters and relays
// engine callbacks to three typed slots (case started, step finished, case
// finished) plus a fourth for steps discovered at run time. Failing
// assertions are turned into api.FailureRecord values before they reach the
// slots.
//
// # Selection
//
// Run executes, in order of precedence:
//
//  1. the requested cases, matched by name within the requested suite when
//     one is given and across all suites otherwise;
//  2. the requested suite, if no requested case matched (an unknown suite is
//     an execution failure);
//  3. the whole project.
//
// # Verdict
//
// Run reports false when any assertion failed or any case was reported
// FAILED without a failing assertion, unless IgnoreErrors is set.
//
// # Lifecycle
//
// Cancel may be called from any goroutine; it cancels the in-flight run and
// is a no-op when nothing is running. Release is idempotent and removes the
// working copy whatever state the adapter is in.
package adapter
