// Package conversation defines the shared conversational state types:
// the per-session Context, recorded Turns, and pending Actions.
//
// The package is a leaf by design. The dialogue, flow, and persistence
// layers all operate on these types, so keeping them dependency-free
// avoids import cycles between the managers.
package conversation
