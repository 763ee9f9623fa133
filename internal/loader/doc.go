// Package loader discovers project files and keeps the catalog in sync with
// them.
//
// Start scans the projects directory in parallel, builds a descriptor for
// every file ending in the project suffix and publishes it. Building only
// parses project metadata; the engine is never involved. Malformed files are
// logged and skipped without failing the scan.
//
// With watching enabled, fsnotify events are debounced per path: a created
// or modified file is rebuilt and republished, a removed file is retracted
// and its cached descriptor evicted. New subdirectories are watched as they
// appear.
//
// Descriptor metadata comes from project properties:
//
//	etf.translation.template.collection.id  translation template id
//	etf.tag.ids                              comma separated tag ids
//	etf.dependency.ids                       comma separated suite ids
//	etf.testobject.ids                       comma separated test object type ids
//	etf.ignore.properties                    properties hidden from parameters
//	etf.reference                            remote resource URI
//
// All remaining properties except serviceEndpoint become parameters, in
// document order.
package loader
