// ABOUTME: Tests for session lifecycle and the ProcessTurn pipeline.
// ABOUTME: Exercises confirmation, clarification, fallback, sweep, and isolation.

package dialogue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/aide-runtime/internal/bus"
	"github.com/2389/aide-runtime/internal/conversation"
	"github.com/2389/aide-runtime/internal/device"
	"github.com/2389/aide-runtime/internal/flow"
	"github.com/2389/aide-runtime/internal/intent"
	"github.com/2389/aide-runtime/internal/policy"
	"github.com/2389/aide-runtime/internal/skill"
)

// testSkill is a minimal skill with a canned response.
type testSkill struct {
	name     string
	response string
	fail     bool
	confirm  bool
	calls    int
	mu       sync.Mutex
}

func (s *testSkill) Initialize(context.Context) error { return nil }
func (s *testSkill) Cleanup(context.Context) error    { return nil }
func (s *testSkill) Schema() skill.Schema {
	return skill.Schema{Name: s.name, Version: "1.0.0", Timeout: time.Second, RequiresConfirmation: s.confirm}
}
func (s *testSkill) Execute(_ context.Context, params map[string]any, _ *skill.Invocation) (*skill.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fail {
		return nil, errors.New("backend down")
	}
	return &skill.Result{Success: true, Data: s.response}, nil
}

func (s *testSkill) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingStore captures SaveTurn calls.
type recordingStore struct {
	mu    sync.Mutex
	saved []string // "role:content"
}

func (r *recordingStore) SaveTurn(_ context.Context, _, _, role, content string, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, role+":"+content)
	return nil
}

func (r *recordingStore) LoadHistory(context.Context, string, int) ([]conversation.Turn, error) {
	return nil, errors.New("not implemented")
}

// panickyFlow always panics, for top-level recovery tests.
type panickyFlow struct{}

func (panickyFlow) Handle(context.Context, *conversation.Context, string) (*flow.Outcome, error) {
	panic("flow exploded")
}

// failingFlow always errors, forcing the fallback path.
type failingFlow struct{}

func (failingFlow) Handle(context.Context, *conversation.Context, string) (*flow.Outcome, error) {
	return nil, errors.New("flow unavailable")
}

type fixture struct {
	manager  *Manager
	registry *skill.Registry
	bus      *bus.EventBus
	clock    *testSkill
	notes    *testSkill
	store    *recordingStore
}

func newFixture(t *testing.T, fl FlowHandler) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bus.New(1000, logger)
	reg := skill.NewRegistry(b, nil, logger)

	clock := &testSkill{name: "clock", response: "It's 12:00."}
	notes := &testSkill{name: "notes", response: "Noted."}
	require.NoError(t, reg.Register(context.Background(), clock))
	require.NoError(t, reg.Register(context.Background(), notes))

	classifier := intent.NewKeywordClassifier()
	tables := policy.Defaults()
	if fl == nil {
		fl = flow.NewManager(reg, b, classifier, tables, logger)
	}

	store := &recordingStore{}
	m := NewManager(fl, device.NewManager(logger), reg, classifier, tables, b, store,
		Config{IdleTimeout: time.Hour, SweepInterval: time.Hour}, logger)
	t.Cleanup(m.Close)

	return &fixture{manager: m, registry: reg, bus: b, clock: clock, notes: notes, store: store}
}

func TestStartAndEndSession(t *testing.T) {
	f := newFixture(t, nil)

	sessionID := f.manager.StartSession("alice", "phone-1", map[string]any{
		"user_agent": "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile",
	})
	require.NotEmpty(t, sessionID)
	assert.Contains(t, f.manager.ActiveSessions(), sessionID)

	snap, err := f.manager.Session(sessionID)
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.UserID)
	assert.Equal(t, "mobile", snap.DeviceContext["type"])

	require.NoError(t, f.manager.EndSession(sessionID))
	assert.NotContains(t, f.manager.ActiveSessions(), sessionID)
	assert.ErrorIs(t, f.manager.EndSession(sessionID), ErrSessionNotFound)

	assert.Len(t, f.bus.RecentEvents(0, "dialogue.session_started"), 1)
	ended := f.bus.RecentEvents(0, "dialogue.session_ended")
	require.Len(t, ended, 1)
	assert.Equal(t, "alice", ended[0].Payload["user_id"])
}

func TestProcessTurn_HappyPath(t *testing.T) {
	f := newFixture(t, nil)
	sessionID := f.manager.StartSession("alice", "desk-1", nil)

	turn, err := f.manager.ProcessTurn(context.Background(), sessionID, "what time is it?", nil)
	require.NoError(t, err)

	assert.True(t, turn.Success)
	assert.Equal(t, "time.query", turn.Intent)
	assert.Equal(t, "It's 12:00.", turn.SystemResponse)
	require.Len(t, turn.SkillInvocations, 1)
	assert.Equal(t, "clock", turn.SkillInvocations[0].Skill)
	assert.Equal(t, 1, f.clock.callCount())

	snap, err := f.manager.Session(sessionID)
	require.NoError(t, err)
	assert.Len(t, snap.History, 1)
	assert.Equal(t, conversation.StateActive, snap.State)

	assert.Len(t, f.bus.RecentEvents(0, "dialogue.turn_completed"), 1)
}

func TestProcessTurn_UnknownSession(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.manager.ProcessTurn(context.Background(), "missing", "hello", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestProcessTurn_ConfirmationFlow(t *testing.T) {
	f := newFixture(t, nil)
	sessionID := f.manager.StartSession("alice", "desk-1", nil)
	ctx := context.Background()

	turn, err := f.manager.ProcessTurn(ctx, sessionID, "forget my favorite color", nil)
	require.NoError(t, err)
	assert.Contains(t, turn.SystemResponse, "confirm")
	assert.Zero(t, f.notes.callCount(), "high-risk skill must wait for consent")

	snap, _ := f.manager.Session(sessionID)
	assert.Equal(t, conversation.StateWaitingForInput, snap.State)
	assert.Len(t, snap.PendingActions, 1)

	// Ambiguous reply re-asks without executing.
	turn, err = f.manager.ProcessTurn(ctx, sessionID, "maybe later", nil)
	require.NoError(t, err)
	assert.Contains(t, turn.SystemResponse, "yes or no")
	assert.Zero(t, f.notes.callCount())

	turn, err = f.manager.ProcessTurn(ctx, sessionID, "yes", nil)
	require.NoError(t, err)
	assert.True(t, turn.Success)
	assert.Equal(t, "Noted.", turn.SystemResponse)
	assert.Equal(t, 1, f.notes.callCount())

	snap, _ = f.manager.Session(sessionID)
	assert.Equal(t, conversation.StateActive, snap.State)
	assert.Empty(t, snap.PendingActions)
}

func TestProcessTurn_ConfirmationDeclined(t *testing.T) {
	f := newFixture(t, nil)
	sessionID := f.manager.StartSession("alice", "desk-1", nil)
	ctx := context.Background()

	_, err := f.manager.ProcessTurn(ctx, sessionID, "forget my favorite color", nil)
	require.NoError(t, err)

	turn, err := f.manager.ProcessTurn(ctx, sessionID, "no, cancel that", nil)
	require.NoError(t, err)
	assert.Contains(t, turn.SystemResponse, "won't")
	assert.Zero(t, f.notes.callCount())

	snap, _ := f.manager.Session(sessionID)
	assert.Equal(t, conversation.StateActive, snap.State)
	assert.Empty(t, snap.PendingActions)
}

func TestProcessTurn_ClarificationFlow(t *testing.T) {
	f := newFixture(t, nil)
	sessionID := f.manager.StartSession("alice", "desk-1", nil)
	ctx := context.Background()

	turn, err := f.manager.ProcessTurn(ctx, sessionID, "please take a note", nil)
	require.NoError(t, err)
	assert.Contains(t, turn.SystemResponse, "more detail")

	snap, _ := f.manager.Session(sessionID)
	assert.Equal(t, conversation.StateWaitingForInput, snap.State)
	assert.NotEmpty(t, snap.UnresolvedQuestions)

	// Supply the two missing entities one turn at a time.
	turn, err = f.manager.ProcessTurn(ctx, sessionID, "favorite color", nil)
	require.NoError(t, err)
	assert.Contains(t, turn.SystemResponse, "value")

	turn, err = f.manager.ProcessTurn(ctx, sessionID, "blue", nil)
	require.NoError(t, err)
	assert.True(t, turn.Success)
	assert.Equal(t, "Noted.", turn.SystemResponse)
	assert.Equal(t, 1, f.notes.callCount())

	snap, _ = f.manager.Session(sessionID)
	assert.Empty(t, snap.PendingActions)
	assert.Empty(t, snap.UnresolvedQuestions)
}

func TestProcessTurn_FallbackRoutingWhenFlowFails(t *testing.T) {
	f := newFixture(t, failingFlow{})
	sessionID := f.manager.StartSession("alice", "desk-1", nil)

	turn, err := f.manager.ProcessTurn(context.Background(), sessionID, "what time is it?", nil)
	require.NoError(t, err)
	assert.True(t, turn.Success)
	assert.Equal(t, "It's 12:00.", turn.SystemResponse)
	assert.Equal(t, 1, f.clock.callCount())
}

func TestProcessTurn_FallbackUsesPreclassifiedIntent(t *testing.T) {
	f := newFixture(t, failingFlow{})
	sessionID := f.manager.StartSession("alice", "desk-1", nil)

	turn, err := f.manager.ProcessTurn(context.Background(), sessionID, "tick tock", &intent.Classification{
		Intent:     "time.query",
		Confidence: 1.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "time.query", turn.Intent)
	assert.Equal(t, 1, f.clock.callCount())
}

func TestProcessTurn_PanicBecomesApologeticTurn(t *testing.T) {
	f := newFixture(t, panickyFlow{})
	sessionID := f.manager.StartSession("alice", "desk-1", nil)

	turn, err := f.manager.ProcessTurn(context.Background(), sessionID, "hello", nil)
	require.NoError(t, err, "panics must not escape ProcessTurn")
	assert.False(t, turn.Success)
	assert.Equal(t, apology, turn.SystemResponse)
	assert.Contains(t, turn.ErrorMessage, "internal error")

	// The failed turn is still recorded.
	snap, _ := f.manager.Session(sessionID)
	require.Len(t, snap.History, 1)
	assert.False(t, snap.History[0].Success)
	assert.Len(t, f.bus.RecentEvents(0, "dialogue.turn_failed"), 1)
}

func TestProcessTurn_SkillFailureIsPoliteNotTechnicalPanic(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.fail = true
	sessionID := f.manager.StartSession("alice", "desk-1", nil)

	turn, err := f.manager.ProcessTurn(context.Background(), sessionID, "what time is it?", nil)
	require.NoError(t, err)
	assert.False(t, turn.Success)
	assert.Contains(t, turn.SystemResponse, "problem")
	assert.Contains(t, turn.ErrorMessage, "backend down")
}

func TestProcessTurn_SchemaConfirmationBeforeExecution(t *testing.T) {
	f := newFixture(t, nil)
	sessionID := f.manager.StartSession("alice", "desk-1", nil)

	// Replace the clock with a version that insists on consent even though
	// time.query is not a high-risk intent.
	cautious := &testSkill{name: "clock", response: "It's 12:00.", confirm: true}
	require.NoError(t, f.registry.Unregister(context.Background(), "clock"))
	require.NoError(t, f.registry.Register(context.Background(), cautious))

	turn, err := f.manager.ProcessTurn(context.Background(), sessionID, "what time is it?", nil)
	require.NoError(t, err)
	assert.Contains(t, turn.SystemResponse, "confirm")
	assert.Equal(t, 0, cautious.callCount())

	turn, err = f.manager.ProcessTurn(context.Background(), sessionID, "yes", nil)
	require.NoError(t, err)
	assert.Equal(t, "It's 12:00.", turn.SystemResponse)
	assert.Equal(t, 1, cautious.callCount())
}

func TestProcessTurn_WatchResponsesTruncated(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.response = strings.Repeat("It is exactly twelve o'clock and zero seconds. ", 5)
	sessionID := f.manager.StartSession("alice", "watch-1", map[string]any{
		"device_type": "watch",
	})

	turn, err := f.manager.ProcessTurn(context.Background(), sessionID, "what time is it?", nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(turn.SystemResponse)), 50)
	assert.True(t, strings.HasSuffix(turn.SystemResponse, "..."))
}

func TestProcessTurn_PersistsThroughStore(t *testing.T) {
	f := newFixture(t, nil)
	sessionID := f.manager.StartSession("alice", "desk-1", nil)

	_, err := f.manager.ProcessTurn(context.Background(), sessionID, "what time is it?", nil)
	require.NoError(t, err)

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	require.Len(t, f.store.saved, 2)
	assert.Equal(t, "user:what time is it?", f.store.saved[0])
	assert.Equal(t, "assistant:It's 12:00.", f.store.saved[1])
}

func TestSweep_EvictsIdleSessions(t *testing.T) {
	f := newFixture(t, nil)
	idle := f.manager.StartSession("alice", "desk-1", nil)
	fresh := f.manager.StartSession("bob", "desk-2", nil)

	f.manager.mu.Lock()
	f.manager.sessions[idle].ctx.LastActivity = time.Now().Add(-2 * time.Hour)
	f.manager.mu.Unlock()

	evicted := f.manager.Sweep()
	assert.Equal(t, 1, evicted)
	assert.NotContains(t, f.manager.ActiveSessions(), idle)
	assert.Contains(t, f.manager.ActiveSessions(), fresh)
}

func TestSessionIsolation_ConcurrentSessions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const sessions = 8
	ids := make([]string, sessions)
	for i := range ids {
		ids[i] = f.manager.StartSession(fmt.Sprintf("user-%d", i), "desk", nil)
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := f.manager.ProcessTurn(ctx, id, "what time is it?", nil)
				assert.NoError(t, err)
			}
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		snap, err := f.manager.Session(id)
		require.NoError(t, err)
		assert.Len(t, snap.History, 5, "session %d", i)
		assert.Equal(t, fmt.Sprintf("user-%d", i), snap.UserID)
	}
}

func TestHistory_FallsBackToMemoryWhenStoreFails(t *testing.T) {
	f := newFixture(t, nil)
	sessionID := f.manager.StartSession("alice", "desk-1", nil)

	_, err := f.manager.ProcessTurn(context.Background(), sessionID, "what time is it?", nil)
	require.NoError(t, err)

	// recordingStore.LoadHistory always errors; memory fallback serves.
	turns, err := f.manager.History(context.Background(), sessionID, 10)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}
