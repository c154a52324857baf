// ABOUTME: Session lifecycle and turn orchestration for the assistant runtime.
// ABOUTME: ProcessTurn is the primary entry point; failures become apologetic turns.

package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/aide-runtime/internal/conversation"
	"github.com/2389/aide-runtime/internal/device"
	"github.com/2389/aide-runtime/internal/flow"
	"github.com/2389/aide-runtime/internal/intent"
	"github.com/2389/aide-runtime/internal/policy"
	"github.com/2389/aide-runtime/internal/skill"
)

// ErrSessionNotFound indicates the session ID is unknown or already ended.
var ErrSessionNotFound = errors.New("session not found")

// apology is the user-facing text for any recovered internal failure.
const apology = "I'm sorry - something went wrong on my end. Let's try that again."

// Defaults for session housekeeping.
const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

// TurnStore is the optional persistent-store collaborator. A nil store
// degrades gracefully to in-memory-only history.
type TurnStore interface {
	SaveTurn(ctx context.Context, sessionID, userID, role, content string, metadata map[string]any) error
	LoadHistory(ctx context.Context, sessionID string, limit int) ([]conversation.Turn, error)
}

// FlowHandler is the narrow flow-manager contract the dialogue layer needs.
type FlowHandler interface {
	Handle(ctx context.Context, convCtx *conversation.Context, input string) (*flow.Outcome, error)
}

// SkillExecutor executes skills for the fallback path and for confirmed
// pending actions.
type SkillExecutor interface {
	Execute(ctx context.Context, name string, params map[string]any, inv *skill.Invocation) *skill.Result
	Schema(name string) (skill.Schema, bool)
}

// EventPublisher is the narrow bus contract the dialogue layer needs.
type EventPublisher interface {
	Publish(topic string, payload map[string]any, source, correlationID string)
}

// Config tunes session housekeeping.
type Config struct {
	IdleTimeout   time.Duration // session eviction threshold, default 30m
	SweepInterval time.Duration // sweep cadence, default 1m
}

// session pairs the conversational state with its resolved device context.
type session struct {
	ctx    *conversation.Context
	device *device.Context
}

// Manager owns the session map and orchestrates turns. Session contexts are
// mutated only from the goroutine processing that session's current turn;
// callers must not submit overlapping turns for one session ID (turns for
// different sessions may run fully concurrently).
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session

	flow     FlowHandler
	devices  *device.Manager
	executor SkillExecutor
	fallback intent.Classifier
	tables   *policy.Tables
	bus      EventPublisher
	store    TurnStore

	cfg    Config
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewManager wires a dialogue manager. store may be nil; tables and logger
// default when nil. Call Close to stop the idle sweep.
func NewManager(fl FlowHandler, devices *device.Manager, executor SkillExecutor, fallback intent.Classifier, tables *policy.Tables, bus EventPublisher, store TurnStore, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if tables == nil {
		tables = policy.Defaults()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	m := &Manager{
		sessions: make(map[string]*session),
		flow:     fl,
		devices:  devices,
		executor: executor,
		fallback: fallback,
		tables:   tables,
		bus:      bus,
		store:    store,
		cfg:      cfg,
		logger:   logger.With("component", "dialogue"),
		done:     make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Close stops the idle sweep. Active sessions are left in place.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// StartSession allocates a fresh conversation context for a user on a
// device and returns the new session ID.
func (m *Manager) StartSession(userID, deviceID string, contextData map[string]any) string {
	sessionID := uuid.New().String()

	userAgent, _ := contextData["user_agent"].(string)
	declared, _ := contextData["device_type"].(string)
	dc := m.devices.CreateContext(deviceID, device.Type(declared), userAgent, nil)

	convCtx := conversation.New(userID, sessionID)
	convCtx.DeviceContext = map[string]any{
		"device_id":       dc.DeviceID,
		"type":            string(dc.Type),
		"response_length": dc.Hints.ResponseLength,
		"audio_only":      dc.Hints.AudioOnly,
	}

	m.mu.Lock()
	m.sessions[sessionID] = &session{ctx: convCtx, device: dc}
	m.mu.Unlock()

	m.logger.Info("session started",
		"session_id", sessionID,
		"user_id", userID,
		"device_type", dc.Type)
	m.publish("dialogue.session_started", map[string]any{
		"session_id":  sessionID,
		"user_id":     userID,
		"device_type": string(dc.Type),
	}, sessionID)
	return sessionID
}

// EndSession evicts a session and publishes its closing metrics.
func (m *Manager) EndSession(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	sess.ctx.State = conversation.StateCompleted
	duration := time.Since(sess.ctx.StartedAt)

	m.logger.Info("session ended",
		"session_id", sessionID,
		"turns", len(sess.ctx.History),
		"duration", duration)
	m.publish("dialogue.session_ended", map[string]any{
		"session_id":  sessionID,
		"user_id":     sess.ctx.UserID,
		"turn_count":  len(sess.ctx.History),
		"duration_ms": duration.Milliseconds(),
	}, sessionID)
	return nil
}

// Session returns a deep copy of a session's context, for snapshotting and
// introspection. The live context is never shared.
func (m *Manager) Session(sessionID string) (*conversation.Context, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess.ctx.Clone(), nil
}

// ActiveSessions returns the current session IDs.
func (m *Manager) ActiveSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// History returns a session's turn history, preferring the persistent store
// when one is wired and falling back to in-memory history otherwise.
func (m *Manager) History(ctx context.Context, sessionID string, limit int) ([]conversation.Turn, error) {
	if m.store != nil {
		turns, err := m.store.LoadHistory(ctx, sessionID, limit)
		if err == nil {
			return turns, nil
		}
		m.logger.Warn("store history load failed, using in-memory",
			"session_id", sessionID, "error", err)
	}

	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess.ctx.RecentHistory(limit), nil
}

// sweepLoop periodically ends sessions idle past the configured timeout.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.done:
			return
		}
	}
}

// Sweep ends all sessions whose last activity exceeds the idle timeout and
// returns how many were evicted.
func (m *Manager) Sweep() int {
	cutoff := time.Now().Add(-m.cfg.IdleTimeout)

	m.mu.RLock()
	var expired []string
	for id, sess := range m.sessions {
		if sess.ctx.LastActivity.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		if err := m.EndSession(id); err == nil {
			m.logger.Info("idle session swept", "session_id", id)
		}
	}
	return len(expired)
}

// publish sends a bus event if a bus is wired.
func (m *Manager) publish(topic string, payload map[string]any, sessionID string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(topic, payload, "dialogue", sessionID)
}
