// ABOUTME: Snapshot, recovery, handoff, and pattern-analytics types.
// ABOUTME: Snapshots are immutable once created; scores live in [0,1].

package persist

import (
	"context"
	"time"

	"github.com/2389/aide-runtime/internal/conversation"
)

// Interruption reasons with dedicated recovery strategies.
const (
	ReasonDeviceSwitch  = "device_switch"
	ReasonTimeout       = "timeout"
	ReasonError         = "error"
	ReasonUserInitiated = "user_initiated"
)

// maxSnapshotTurns bounds how much history a snapshot carries.
const maxSnapshotTurns = 20

// Snapshot is a point-in-time copy of a session's conversational state. It
// is never mutated after creation.
type Snapshot struct {
	ID                  string              `json:"id"`
	SessionID           string              `json:"session_id"`
	UserID              string              `json:"user_id"`
	Reason              string              `json:"reason"`
	Topic               string              `json:"topic,omitempty"`
	Intent              string              `json:"intent,omitempty"`
	State               conversation.State  `json:"state"`
	EmotionalState      string              `json:"emotional_state,omitempty"`
	EntityMemory        map[string]any      `json:"entity_memory,omitempty"`
	History             []conversation.Turn `json:"history,omitempty"` // last <= 20 turns
	DeviceType          string              `json:"device_type,omitempty"`
	Depth               int                 `json:"depth"`
	UnresolvedQuestions []string            `json:"unresolved_questions,omitempty"`
	FlowQuality         float64             `json:"flow_quality"`
	InterruptionCount   int                 `json:"interruption_count"`
	HandoffCount        int                 `json:"handoff_count"`
	CreatedAt           time.Time           `json:"created_at"`
}

// RecoveryStrategy describes how to resume after an interruption.
type RecoveryStrategy struct {
	PreservationLevel string `json:"preservation_level"` // full, partial, minimal
	Action            string `json:"action"`
	Priority          string `json:"priority"` // high, medium, low
}

// RecoveryInstructions is the result of handling an interruption.
type RecoveryInstructions struct {
	SnapshotID string           `json:"snapshot_id"`
	Reason     string           `json:"reason"`
	Strategy   RecoveryStrategy `json:"strategy"`
	Prompt     string           `json:"prompt"`
}

// RecoveryContext is the result of a seamless-recovery attempt.
type RecoveryContext struct {
	SnapshotID string        `json:"snapshot_id,omitempty"`
	Snapshot   *Snapshot     `json:"snapshot,omitempty"`
	Confidence float64       `json:"confidence"` // [0,1]; 0 when no snapshot exists
	Gap        time.Duration `json:"gap"`
	Greeting   string        `json:"greeting"`
}

// HandoffPackage carries a conversation across devices.
type HandoffPackage struct {
	SnapshotID        string        `json:"snapshot_id"`
	FromDevice        string        `json:"from_device"`
	ToDevice          string        `json:"to_device"`
	TransitionMessage string        `json:"transition_message"`
	Topic             string        `json:"topic,omitempty"`
	HandoffCount      int           `json:"handoff_count"`
	CreatedAt         time.Time     `json:"created_at"`
	SessionAge        time.Duration `json:"session_age"`
}

// SessionSummary is the per-session record fed into pattern tracking.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Topic        string    `json:"topic,omitempty"`
	DeviceType   string    `json:"device_type,omitempty"`
	TurnCount    int       `json:"turn_count"`
	Satisfaction float64   `json:"satisfaction"` // [0,1]
	EndedAt      time.Time `json:"ended_at"`
}

// PatternStats aggregates a user's recent session summaries.
type PatternStats struct {
	SessionCount    int            `json:"session_count"`
	TopicFrequency  map[string]int `json:"topic_frequency"`
	DeviceFrequency map[string]int `json:"device_frequency"`
	AvgTurnCount    float64        `json:"avg_turn_count"`
	AvgSatisfaction float64        `json:"avg_satisfaction"`
}

// Store is the optional durable backend. A nil store keeps everything
// in-memory with identical behavior.
type Store interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
	LatestSnapshot(ctx context.Context, sessionID string) (*Snapshot, error)
	SaveSummary(ctx context.Context, userID string, summary *SessionSummary) error
}
