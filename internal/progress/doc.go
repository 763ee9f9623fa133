// Package progress tracks how far a running task has got.
//
// A Tracker counts completed steps against an estimated total. The estimate
// is seeded from the static size of the project and only ever revised upward:
// when the engine reports steps discovered at run time, or when the completed
// count would otherwise reach the total. Snapshot is safe to call from any
// goroutine while the run goroutine advances the tracker.
package progress
