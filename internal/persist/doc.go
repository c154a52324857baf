// Package persist provides conversation durability: point-in-time
// snapshots, interruption recovery, cross-device handoff packaging, and
// long-horizon per-user pattern analytics.
//
// Snapshots are immutable copies of a session's conversational state (never
// the live context) referenced by opaque IDs. Recovery derives a confidence
// score in [0,1] from time decay, preserved-context richness, and device
// continuity. All state lives in bounded in-memory structures; an optional
// Store backend adds durability without changing behavior.
package persist
