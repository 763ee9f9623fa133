// Package results builds the result tree of a task from engine events.
//
// A Collector receives case-started, step-finished and case-finished events
// in engine order and grows a project → suite → case → step tree. Hosts may
// read a deep copy of the tree at any time with CurrentResultTree, which is
// how partial results are persisted while a run is still going.
//
// Finalize is called exactly once per task, after the run returns or is
// cancelled. It aggregates statuses bottom-up and freezes the tree: a parent
// becomes FAILED if any child is FAILED or ERROR, unless the parent is
// already ERROR. Sibling order is the order in which the engine reported
// them. Events arriving after Finalize are rejected with an InvalidState
// error wrapping ErrFinalized.
//
// The collector also keeps the assertion failure records reported with each
// step and the list of cases the engine reported FAILED although none of
// their steps produced a failure record ("failed without assertions").
package results
