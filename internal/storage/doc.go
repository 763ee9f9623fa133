// Package storage persists result trees, outcomes and descriptor snapshots.
//
// Objects are opaque byte slices grouped by kind. FileStore keeps them in a
// directory tree, RedisStore in a Redis server and NopStore discards them.
// Use Open to select a backend from configuration.
package storage
