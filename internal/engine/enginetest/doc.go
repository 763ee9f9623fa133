// Package enginetest provides a scripted in-memory engine for tests.
//
// The engine reads the real project outline from the opened file and
// "executes" it by emitting events for every enabled step. Step and case
// outcomes are scripted by "suite/case/step" and "suite/case" keys; anything
// not scripted passes. Cancellation is honoured between steps, the way the
// real engine finishes its current step before stopping.
package enginetest
