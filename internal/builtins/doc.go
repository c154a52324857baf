// Package builtins provides the skills that ship with the runtime:
// clock, notes, and smalltalk. They cover the assistant's baseline
// conversational abilities and double as reference implementations of
// the skill contract.
package builtins
