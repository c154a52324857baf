// Package runtime assembles the conversation orchestration components
// from configuration: the event bus, the skill registry with built-ins,
// the device and flow managers, the dialogue layer, and persistence.
package runtime
