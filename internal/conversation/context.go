// ABOUTME: Conversation state types shared by the dialogue, flow, and persistence layers.
// ABOUTME: The Context is the single source of truth for a session's memory.

// Package conversation defines the per-session conversational state. A
// Context is created on the first turn of a session, owned exclusively by
// the dialogue manager for the session's lifetime, and handed to other
// components only as a deep copy (see Clone). Turns are immutable once
// appended to history.
package conversation

import (
	"time"
)

// State is the lifecycle state of a conversation context.
type State string

const (
	StateActive          State = "active"
	StatePaused          State = "paused"
	StateWaitingForInput State = "waiting_for_input"
	StateProcessing      State = "processing"
	StateCompleted       State = "completed"
	StateTransferred     State = "transferred"
)

// SkillInvocation records one skill call made while handling a turn.
type SkillInvocation struct {
	Skill    string        `json:"skill"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
}

// Turn is one user-input/system-response exchange. Immutable after being
// appended to a Context's history.
type Turn struct {
	TurnID           string            `json:"turn_id"`
	UserInput        string            `json:"user_input"`
	Intent           string            `json:"intent,omitempty"`
	Entities         map[string]string `json:"entities,omitempty"`
	Confidence       float64           `json:"confidence"`
	SystemResponse   string            `json:"system_response"`
	SkillInvocations []SkillInvocation `json:"skill_invocations,omitempty"`
	Duration         time.Duration     `json:"duration"`
	Success          bool              `json:"success"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// Action is a deferred operation awaiting user confirmation or
// clarification before execution.
type Action struct {
	Intent   string         `json:"intent"`
	Skill    string         `json:"skill"`
	Params   map[string]any `json:"params,omitempty"`
	Missing  []string       `json:"missing,omitempty"` // required entities still absent
	Deadline time.Time      `json:"deadline,omitempty"`
}

// Context is the mutable per-session conversational state. It must only be
// mutated from the goroutine handling the session's current turn.
type Context struct {
	UserID              string         `json:"user_id"`
	SessionID           string         `json:"session_id"`
	CurrentTopic        string         `json:"current_topic,omitempty"`
	History             []Turn         `json:"history"`
	UserIntent          string         `json:"user_intent,omitempty"`
	EntityMemory        map[string]any `json:"entity_memory"`
	EmotionalState      string         `json:"emotional_state,omitempty"`
	DeviceContext       map[string]any `json:"device_context,omitempty"`
	StartedAt           time.Time      `json:"started_at"`
	LastActivity        time.Time      `json:"last_activity"`
	Depth               int            `json:"depth"`
	UnresolvedQuestions []string       `json:"unresolved_questions,omitempty"`
	PendingActions      []Action       `json:"pending_actions,omitempty"`
	State               State          `json:"state"`
	InterruptionCount   int            `json:"interruption_count"`
	HandoffCount        int            `json:"handoff_count"`
}

// New creates an active context for a session.
func New(userID, sessionID string) *Context {
	now := time.Now()
	return &Context{
		UserID:       userID,
		SessionID:    sessionID,
		EntityMemory: make(map[string]any),
		StartedAt:    now,
		LastActivity: now,
		State:        StateActive,
	}
}

// AppendTurn records a completed turn and advances conversational depth.
func (c *Context) AppendTurn(turn Turn) {
	c.History = append(c.History, turn)
	c.Depth++
	c.LastActivity = time.Now()
}

// Touch updates the activity timestamp without recording a turn.
func (c *Context) Touch() {
	c.LastActivity = time.Now()
}

// LastTurn returns the most recent turn, or nil if none.
func (c *Context) LastTurn() *Turn {
	if len(c.History) == 0 {
		return nil
	}
	return &c.History[len(c.History)-1]
}

// RecentHistory returns up to n most recent turns, oldest first. The
// returned slice is a copy.
func (c *Context) RecentHistory(n int) []Turn {
	if n <= 0 || n > len(c.History) {
		n = len(c.History)
	}
	out := make([]Turn, n)
	copy(out, c.History[len(c.History)-n:])
	return out
}

// Clone returns a deep copy. Maps and slices are duplicated so the copy can
// outlive the session without sharing mutable state with it.
func (c *Context) Clone() *Context {
	out := *c
	out.History = make([]Turn, len(c.History))
	copy(out.History, c.History)
	out.EntityMemory = make(map[string]any, len(c.EntityMemory))
	for k, v := range c.EntityMemory {
		out.EntityMemory[k] = v
	}
	if c.DeviceContext != nil {
		out.DeviceContext = make(map[string]any, len(c.DeviceContext))
		for k, v := range c.DeviceContext {
			out.DeviceContext[k] = v
		}
	}
	out.UnresolvedQuestions = append([]string(nil), c.UnresolvedQuestions...)
	out.PendingActions = append([]Action(nil), c.PendingActions...)
	return &out
}
