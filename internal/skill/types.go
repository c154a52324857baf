// ABOUTME: Skill contract types: Schema, Result, Invocation, and the Skill interface.
// ABOUTME: Schemas describe a skill's declared contract; Results never carry errors out.

package skill

import (
	"context"
	"encoding/json"
	"time"
)

// DeviceAll is the supported-devices wildcard meaning any device type.
const DeviceAll = "all"

// Schema is a skill's declared contract. It is only guaranteed valid after
// the skill's Initialize has returned successfully.
type Schema struct {
	Name                 string          `json:"name"`
	Version              string          `json:"version"`
	Description          string          `json:"description"`
	Category             string          `json:"category"`
	InputContract        json.RawMessage `json:"input_contract,omitempty"`  // JSON schema for params
	OutputContract       json.RawMessage `json:"output_contract,omitempty"` // JSON schema for result data
	Permissions          []string        `json:"permissions,omitempty"`
	Timeout              time.Duration   `json:"timeout"`
	RequiresOnline       bool            `json:"requires_online"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
	SupportedDevices     []string        `json:"supported_devices,omitempty"` // device types, or DeviceAll
}

// SupportsDevice reports whether the schema allows execution on the given
// device type. An empty list or the DeviceAll wildcard allows everything.
func (s *Schema) SupportsDevice(deviceType string) bool {
	if len(s.SupportedDevices) == 0 {
		return true
	}
	for _, d := range s.SupportedDevices {
		if d == DeviceAll || d == deviceType {
			return true
		}
	}
	return false
}

// Result is the outcome of a skill execution. Every failure mode at the
// registry boundary is expressed as a Result with Success=false, never as a
// returned error or panic.
type Result struct {
	Success       bool           `json:"success"`
	Data          any            `json:"data,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Failure builds a failed Result with the given message.
func Failure(message string) *Result {
	return &Result{Success: false, ErrorMessage: message}
}

// Invocation carries the caller's conversational identity into a skill
// execution. Skills receive a copy of the relevant context, never the live
// session state.
type Invocation struct {
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	DeviceType string         `json:"device_type,omitempty"`
	Topic      string         `json:"topic,omitempty"`
	Memory     map[string]any `json:"memory,omitempty"` // entity memory snapshot
}

// Skill is a pluggable capability handler. The registry owns a skill
// exclusively once registered: Initialize runs before registration is
// visible, Cleanup runs on unregistration, and Execute is always bounded by
// the schema timeout.
type Skill interface {
	// Initialize prepares the skill. The schema is only valid after a
	// successful return.
	Initialize(ctx context.Context) error

	// Schema returns the skill's declared contract.
	Schema() Schema

	// Execute performs the capability. Returned errors are converted to a
	// failed Result at the registry boundary.
	Execute(ctx context.Context, params map[string]any, inv *Invocation) (*Result, error)

	// Cleanup releases resources on unregistration.
	Cleanup(ctx context.Context) error
}
