// Package bus implements the in-process topic-based publish/subscribe router
// used by runtime components to announce lifecycle and result events.
//
// # Topics
//
// Topics are dot-delimited strings ("skill.result",
// "dialogue.session_started"). Subscription patterns support two wildcards:
//
//   - "*" matches exactly one segment
//   - "**" matches zero or more segments
//
// So for topic "a.b.c", patterns "a.*.c" and "a.**" match, "a.*.d" does not.
//
// # Delivery
//
// Delivery is best-effort. At publish time the bus computes the matching
// handler set and invokes every match concurrently; a panicking handler is
// logged and never blocks the others. Publishing on a stopped bus is a
// silent drop with a debug log. There is no backpressure and no delivery
// guarantee.
//
// # History
//
// The bus keeps a bounded FIFO of recent events (default 1000) for
// introspection and debugging. It is not a replay or durability mechanism;
// persistence is handled elsewhere.
package bus
