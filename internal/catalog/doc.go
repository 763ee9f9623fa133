// Package catalog is the host-side registry of published test suite
// descriptors.
//
// Reads (List, Get, Lookup, Order) load an immutable snapshot through an
// atomic pointer and never wait for writers. Publish and Retract are
// serialized; each builds a new snapshot and then notifies subscribers in
// the order the changes were applied. Descriptors handed out are copies, so
// callers cannot change what other readers see.
package catalog
