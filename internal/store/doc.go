// Package store provides durable persistence for conversation turns,
// flow snapshots, and session summaries on SQLite.
//
// The store is an optional collaborator: the dialogue and persistence
// managers accept a nil store and keep everything in memory. When wired,
// the store gives conversations history that survives restarts and lets
// a session resume on another device.
package store
