// ABOUTME: Flow persistence manager: snapshots, interruption, recovery, handoff.
// ABOUTME: Bounded in-memory state with an optional durable store behind it.

package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/aide-runtime/internal/conversation"
	"github.com/2389/aide-runtime/internal/intent"
	"github.com/2389/aide-runtime/internal/policy"
)

// ErrSnapshotNotFound indicates no snapshot exists for the given ID or
// session.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// maxUserSessions bounds the per-user pattern history.
const maxUserSessions = 50

// Time-decay shape for recovery confidence: full confidence within
// freshGap, linear decay to zero over decaySpan beyond it.
const (
	freshGap  = 5 * time.Minute
	decaySpan = 6 * time.Hour
)

// EventPublisher is the narrow bus contract the persistence layer needs.
type EventPublisher interface {
	Publish(topic string, payload map[string]any, source, correlationID string)
}

// recoveryStrategies is the fixed reason -> strategy table.
var recoveryStrategies = map[string]RecoveryStrategy{
	ReasonDeviceSwitch:  {PreservationLevel: "full", Action: "transfer_context", Priority: "high"},
	ReasonTimeout:       {PreservationLevel: "partial", Action: "summarize_and_resume", Priority: "medium"},
	ReasonError:         {PreservationLevel: "full", Action: "retry_last_turn", Priority: "high"},
	ReasonUserInitiated: {PreservationLevel: "minimal", Action: "acknowledge_pause", Priority: "low"},
}

// defaultStrategy covers unknown interruption reasons.
var defaultStrategy = RecoveryStrategy{PreservationLevel: "partial", Action: "resume", Priority: "medium"}

// Manager owns snapshots, recovery, handoff packaging, and per-user
// pattern tracking.
type Manager struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot         // by snapshot ID
	latest    map[string]string            // session ID -> latest snapshot ID
	patterns  map[string][]*SessionSummary // user ID -> bounded recent summaries

	store  Store // optional durable backend
	tables *policy.Tables
	bus    EventPublisher
	logger *slog.Logger
}

// NewManager creates a persistence manager. store and bus may be nil;
// tables and logger default when nil.
func NewManager(store Store, tables *policy.Tables, bus EventPublisher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if tables == nil {
		tables = policy.Defaults()
	}
	return &Manager{
		snapshots: make(map[string]*Snapshot),
		latest:    make(map[string]string),
		patterns:  make(map[string][]*SessionSummary),
		store:     store,
		tables:    tables,
		bus:       bus,
		logger:    logger.With("component", "persist"),
	}
}

// CreateSnapshot copies the session's state into an immutable snapshot and
// returns its ID. The context is deep-copied; the snapshot never aliases
// live session state. The "latest snapshot for session" pointer is updated.
func (m *Manager) CreateSnapshot(ctx context.Context, sessionID string, convCtx *conversation.Context, reason string) (string, error) {
	if convCtx == nil {
		return "", fmt.Errorf("nil conversation context for session %s", sessionID)
	}
	copied := convCtx.Clone()

	snap := &Snapshot{
		ID:                  uuid.New().String(),
		SessionID:           sessionID,
		UserID:              copied.UserID,
		Reason:              reason,
		Topic:               copied.CurrentTopic,
		Intent:              copied.UserIntent,
		State:               copied.State,
		EmotionalState:      copied.EmotionalState,
		EntityMemory:        copied.EntityMemory,
		History:             copied.RecentHistory(maxSnapshotTurns),
		DeviceType:          deviceTypeOf(copied),
		Depth:               copied.Depth,
		UnresolvedQuestions: copied.UnresolvedQuestions,
		FlowQuality:         FlowQuality(copied),
		InterruptionCount:   copied.InterruptionCount,
		HandoffCount:        copied.HandoffCount,
		CreatedAt:           time.Now(),
	}

	m.mu.Lock()
	m.snapshots[snap.ID] = snap
	m.latest[sessionID] = snap.ID
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveSnapshot(ctx, snap); err != nil {
			m.logger.Warn("durable snapshot save failed, in-memory only",
				"snapshot_id", snap.ID, "error", err)
		}
	}

	m.logger.Debug("snapshot created",
		"snapshot_id", snap.ID,
		"session_id", sessionID,
		"reason", reason,
		"flow_quality", snap.FlowQuality)
	m.publish("flow.snapshot_created", map[string]any{
		"snapshot_id": snap.ID,
		"session_id":  sessionID,
		"reason":      reason,
	}, sessionID)
	return snap.ID, nil
}

// Restore returns the snapshot with the given ID, consulting the durable
// store when it is not cached in memory.
func (m *Manager) Restore(ctx context.Context, snapshotID string) (*Snapshot, error) {
	m.mu.RLock()
	snap, ok := m.snapshots[snapshotID]
	m.mu.RUnlock()
	if ok {
		return snap, nil
	}
	if m.store != nil {
		snap, err := m.store.GetSnapshot(ctx, snapshotID)
		if err == nil && snap != nil {
			return snap, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
}

// HandleInterruption snapshots the session and returns recovery
// instructions chosen by the interruption reason. The interruption count is
// incremented on convCtx in place, so callers must pass the live context
// they own, not a copy such as the one dialogue's Session hands out.
func (m *Manager) HandleInterruption(ctx context.Context, sessionID, reason string, convCtx *conversation.Context) (*RecoveryInstructions, error) {
	convCtx.InterruptionCount++
	snapshotID, err := m.CreateSnapshot(ctx, sessionID, convCtx, "interruption_"+reason)
	if err != nil {
		return nil, err
	}

	strategy, ok := recoveryStrategies[reason]
	if !ok {
		strategy = defaultStrategy
	}

	instructions := &RecoveryInstructions{
		SnapshotID: snapshotID,
		Reason:     reason,
		Strategy:   strategy,
		Prompt:     recoveryPrompt(reason, convCtx.CurrentTopic),
	}

	m.publish("flow.interruption", map[string]any{
		"session_id": sessionID,
		"reason":     reason,
		"action":     strategy.Action,
	}, sessionID)
	return instructions, nil
}

// recoveryPrompt builds the user-facing resumption phrasing for an
// interruption.
func recoveryPrompt(reason, topic string) string {
	about := ""
	if topic != "" {
		about = fmt.Sprintf(" We were talking about %s.", topic)
	}
	switch reason {
	case ReasonDeviceSwitch:
		return "I've saved our conversation so you can continue on your other device." + about
	case ReasonTimeout:
		return "We got cut off for a while." + about + " Want to pick it back up?"
	case ReasonError:
		return "Something went wrong, but I've kept our place." + about + " Let's try again."
	case ReasonUserInitiated:
		return "No problem, I'll save our place." + about
	default:
		return "I've saved where we were." + about
	}
}

// SeamlessRecovery loads the latest snapshot for a session and scores how
// confidently the conversation can resume. No snapshot yields confidence 0
// and a generic greeting.
func (m *Manager) SeamlessRecovery(ctx context.Context, sessionID, deviceType string) (*RecoveryContext, error) {
	m.mu.RLock()
	latestID, ok := m.latest[sessionID]
	var snap *Snapshot
	if ok {
		snap = m.snapshots[latestID]
	}
	m.mu.RUnlock()

	if snap == nil && m.store != nil {
		stored, err := m.store.LatestSnapshot(ctx, sessionID)
		if err == nil {
			snap = stored
		}
	}
	if snap == nil {
		return &RecoveryContext{
			Confidence: 0,
			Greeting:   "Hello! How can I help you today?",
		}, nil
	}

	gap := time.Since(snap.CreatedAt)
	confidence := RecoveryConfidence(snap, gap, deviceType)

	return &RecoveryContext{
		SnapshotID: snap.ID,
		Snapshot:   snap,
		Confidence: confidence,
		Gap:        gap,
		Greeting:   recoveryGreeting(snap, confidence),
	}, nil
}

// RecoveryConfidence scores resumption confidence in [0,1] from time decay,
// preserved-context richness, and device continuity. For a fixed snapshot,
// the score never decreases as the gap shrinks.
func RecoveryConfidence(snap *Snapshot, gap time.Duration, deviceType string) float64 {
	// Time decay: full weight inside freshGap, linear to zero over decaySpan.
	timeFactor := 1.0
	if gap > freshGap {
		timeFactor = 1.0 - float64(gap-freshGap)/float64(decaySpan)
		if timeFactor < 0 {
			timeFactor = 0
		}
	}
	score := 0.5 * timeFactor

	// Context richness.
	if snap.Topic != "" {
		score += 0.1
	}
	if snap.Intent != "" && snap.Intent != intent.Unknown {
		score += 0.1
	}
	depth := snap.Depth
	if depth > 5 {
		depth = 5
	}
	score += float64(depth) * 0.02

	// Device continuity.
	if deviceType != "" && snap.DeviceType != "" {
		if deviceType == snap.DeviceType {
			score += 0.2
		} else {
			score += 0.05
		}
	}
	return clamp01(score)
}

func recoveryGreeting(snap *Snapshot, confidence float64) string {
	switch {
	case confidence >= 0.7 && snap.Topic != "":
		return fmt.Sprintf("Picking up right where we left off - we were talking about %s.", snap.Topic)
	case confidence >= 0.4 && snap.Topic != "":
		return fmt.Sprintf("Welcome back. We were discussing %s earlier - want to continue?", snap.Topic)
	case confidence >= 0.4:
		return "Welcome back. Want to continue where we left off?"
	default:
		return "Hello! How can I help you today?"
	}
}

// HandleDeviceHandoff snapshots the session for transfer, bumps the
// context's handoff count, and returns the package with a device-pair
// transition message. Like HandleInterruption, it mutates convCtx in place:
// pass the live context, not a copy.
func (m *Manager) HandleDeviceHandoff(ctx context.Context, sessionID, fromDevice, toDevice string, convCtx *conversation.Context) (*HandoffPackage, error) {
	convCtx.HandoffCount++
	convCtx.State = conversation.StateTransferred

	reason := fmt.Sprintf("device_handoff_%s_to_%s", fromDevice, toDevice)
	snapshotID, err := m.CreateSnapshot(ctx, sessionID, convCtx, reason)
	if err != nil {
		return nil, err
	}

	pkg := &HandoffPackage{
		SnapshotID:        snapshotID,
		FromDevice:        fromDevice,
		ToDevice:          toDevice,
		TransitionMessage: m.tables.HandoffMessage(fromDevice, toDevice),
		Topic:             convCtx.CurrentTopic,
		HandoffCount:      convCtx.HandoffCount,
		CreatedAt:         time.Now(),
		SessionAge:        time.Since(convCtx.StartedAt),
	}

	m.publish("flow.handoff", map[string]any{
		"session_id":  sessionID,
		"from_device": fromDevice,
		"to_device":   toDevice,
		"snapshot_id": snapshotID,
	}, sessionID)
	return pkg, nil
}

// TrackPatterns appends a session summary to the user's bounded history.
func (m *Manager) TrackPatterns(ctx context.Context, userID string, summary *SessionSummary) {
	m.mu.Lock()
	list := append(m.patterns[userID], summary)
	if len(list) > maxUserSessions {
		list = list[len(list)-maxUserSessions:]
	}
	m.patterns[userID] = list
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveSummary(ctx, userID, summary); err != nil {
			m.logger.Warn("durable summary save failed", "user_id", userID, "error", err)
		}
	}
}

// UserPatterns recomputes aggregate stats over the user's tracked sessions.
func (m *Manager) UserPatterns(userID string) *PatternStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &PatternStats{
		TopicFrequency:  make(map[string]int),
		DeviceFrequency: make(map[string]int),
	}
	list := m.patterns[userID]
	stats.SessionCount = len(list)
	if len(list) == 0 {
		return stats
	}

	var turns, satisfaction float64
	for _, s := range list {
		if s.Topic != "" {
			stats.TopicFrequency[s.Topic]++
		}
		if s.DeviceType != "" {
			stats.DeviceFrequency[s.DeviceType]++
		}
		turns += float64(s.TurnCount)
		satisfaction += s.Satisfaction
	}
	stats.AvgTurnCount = turns / float64(len(list))
	stats.AvgSatisfaction = satisfaction / float64(len(list))
	return stats
}

// FlowQuality scores conversational coherence in [0,1]: continuity and
// resolution add, unresolved questions subtract, clamped. Cheap and
// explainable by construction.
func FlowQuality(convCtx *conversation.Context) float64 {
	score := 0.5
	if convCtx.Depth > 1 {
		score += 0.1 // continuity
	}
	if convCtx.UserIntent != "" && convCtx.UserIntent != intent.Unknown {
		score += 0.2 // intent resolved
	}
	if convCtx.EmotionalState != "" {
		score += 0.1 // emotional awareness
	}
	if convCtx.CurrentTopic != "" {
		score += 0.1
	}
	penalty := 0.05 * float64(len(convCtx.UnresolvedQuestions))
	if penalty > 0.2 {
		penalty = 0.2
	}
	return clamp01(score - penalty)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func deviceTypeOf(convCtx *conversation.Context) string {
	if t, ok := convCtx.DeviceContext["type"].(string); ok {
		return t
	}
	return ""
}

// publish sends a bus event if a bus is wired.
func (m *Manager) publish(topic string, payload map[string]any, sessionID string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(topic, payload, "persist", sessionID)
}
