// ABOUTME: The ProcessTurn pipeline: flow dispatch, side-state resolution, fallback routing.
// ABOUTME: Every turn is recorded; failures surface as apologetic turns, never faults.

package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/aide-runtime/internal/conversation"
	"github.com/2389/aide-runtime/internal/flow"
	"github.com/2389/aide-runtime/internal/intent"
	"github.com/2389/aide-runtime/internal/skill"
)

var affirmatives = []string{"yes", "yep", "sure", "confirm", "go ahead", "do it", "please do"}
var negatives = []string{"no", "nope", "cancel", "never mind", "don't", "stop"}

// ProcessTurn runs one user input through the full pipeline and returns the
// completed turn. Turns for one session must not overlap; the manager does
// not serialize concurrent turns for the same session ID. A non-nil
// preclassified result short-circuits the fallback classifier only (the
// flow layer still runs its own classification).
func (m *Manager) ProcessTurn(ctx context.Context, sessionID, userInput string, preclassified *intent.Classification) (turn *conversation.Turn, err error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	convCtx := sess.ctx
	start := time.Now()
	turnID := uuid.New().String()

	// Top-level recovery: a panic anywhere below becomes a failed turn that
	// is still recorded, never an escaped fault.
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("turn processing panicked",
				"session_id", sessionID, "panic", rec)
			failed := conversation.Turn{
				TurnID:         turnID,
				UserInput:      userInput,
				SystemResponse: apology,
				Duration:       time.Since(start),
				Success:        false,
				ErrorMessage:   fmt.Sprintf("internal error: %v", rec),
				Timestamp:      time.Now(),
			}
			m.finishTurn(ctx, sess, &failed)
			turn, err = &failed, nil
		}
	}()

	convCtx.State = conversation.StateProcessing
	convCtx.Touch()

	var result turnResult
	if pending := pendingAction(convCtx); pending != nil {
		result = m.resolvePending(ctx, sess, userInput, pending)
	} else {
		result = m.dispatch(ctx, sess, userInput, preclassified)
	}

	response := m.devices.AdaptResponse(result.response, sess.device)

	completed := conversation.Turn{
		TurnID:           turnID,
		UserInput:        userInput,
		Intent:           result.intent,
		Entities:         result.entities,
		Confidence:       result.confidence,
		SystemResponse:   response,
		SkillInvocations: result.invocations,
		Duration:         time.Since(start),
		Success:          result.success,
		ErrorMessage:     result.errorMessage,
		Timestamp:        time.Now(),
	}
	m.finishTurn(ctx, sess, &completed)
	return &completed, nil
}

// turnResult accumulates the outcome of a dispatch branch.
type turnResult struct {
	response     string
	intent       string
	entities     map[string]string
	confidence   float64
	invocations  []conversation.SkillInvocation
	success      bool
	errorMessage string
}

// dispatch runs the flow layer, falling back to local rule-based routing
// only when the flow manager fails outright.
func (m *Manager) dispatch(ctx context.Context, sess *session, userInput string, preclassified *intent.Classification) turnResult {
	convCtx := sess.ctx

	out, err := m.flow.Handle(ctx, convCtx, userInput)
	if err == nil {
		if out.NeedsConfirmation || out.NeedsClarification {
			m.parkAction(convCtx, out)
		} else {
			convCtx.State = conversation.StateActive
		}
		return turnResult{
			response:     out.Response,
			intent:       out.Intent,
			entities:     out.Entities,
			confidence:   out.Confidence,
			invocations:  out.SkillInvocations,
			success:      out.Success,
			errorMessage: out.ErrorMessage,
		}
	}

	m.logger.Warn("flow handling failed, using fallback routing",
		"session_id", convCtx.SessionID, "error", err)
	return m.fallbackDispatch(ctx, sess, userInput, preclassified)
}

// fallbackDispatch is the local intent-detection and policy path used when
// the flow layer is unavailable. Same policy decisions, simpler analysis.
func (m *Manager) fallbackDispatch(ctx context.Context, sess *session, userInput string, preclassified *intent.Classification) turnResult {
	convCtx := sess.ctx

	cls := preclassified
	if cls == nil {
		var err error
		cls, err = m.fallback.Classify(ctx, userInput, intent.Hints{
			UserID:       convCtx.UserID,
			CurrentTopic: convCtx.CurrentTopic,
		})
		if err != nil || cls == nil {
			cls = &intent.Classification{Intent: intent.Unknown}
		}
	}
	convCtx.UserIntent = cls.Intent

	res := turnResult{
		intent:     cls.Intent,
		entities:   cls.Entities,
		confidence: cls.Confidence,
		success:    true,
	}

	skillName, routed := m.tables.SkillFor(cls.Intent)
	if cls.Intent == intent.Unknown || !routed {
		convCtx.State = conversation.StateActive
		res.response = "I'm not sure I understood that. Could you rephrase?"
		return res
	}

	params := make(map[string]any, len(cls.Entities)+1)
	for k, v := range cls.Entities {
		params[k] = v
	}

	// Policy step: clarification beats confirmation beats execution.
	if missing := m.tables.MissingEntities(cls.Intent, cls.Entities); len(missing) > 0 {
		m.parkAction(convCtx, &flow.Outcome{
			Intent: cls.Intent, SkillName: skillName, Params: params,
			NeedsClarification: true, Missing: missing,
		})
		res.response = fmt.Sprintf("I need a bit more detail: %s?", strings.Join(missing, ", and "))
		return res
	}
	wantsConfirmation := false
	if schema, ok := m.executor.Schema(skillName); ok {
		wantsConfirmation = schema.RequiresConfirmation
	}
	if m.tables.IsHighRisk(cls.Intent) || wantsConfirmation {
		m.parkAction(convCtx, &flow.Outcome{
			Intent: cls.Intent, SkillName: skillName, Params: params,
			NeedsConfirmation: true,
		})
		res.response = fmt.Sprintf("Just to confirm: you want me to go ahead with %s?",
			strings.ReplaceAll(cls.Intent, ".", " "))
		return res
	}

	params["intent"] = cls.Intent
	return m.executePending(ctx, sess, res, conversation.Action{
		Intent: cls.Intent, Skill: skillName, Params: params,
	})
}

// pendingAction returns the parked action when the session is waiting on
// the user, nil otherwise.
func pendingAction(convCtx *conversation.Context) *conversation.Action {
	if convCtx.State != conversation.StateWaitingForInput || len(convCtx.PendingActions) == 0 {
		return nil
	}
	return &convCtx.PendingActions[len(convCtx.PendingActions)-1]
}

// parkAction records a pending confirmation or clarification and moves the
// session into the waiting side-state.
func (m *Manager) parkAction(convCtx *conversation.Context, out *flow.Outcome) {
	convCtx.PendingActions = append(convCtx.PendingActions, conversation.Action{
		Intent:  out.Intent,
		Skill:   out.SkillName,
		Params:  out.Params,
		Missing: out.Missing,
	})
	convCtx.State = conversation.StateWaitingForInput
	if out.NeedsClarification {
		convCtx.UnresolvedQuestions = append(convCtx.UnresolvedQuestions,
			fmt.Sprintf("missing %s for %s", strings.Join(out.Missing, ","), out.Intent))
	}
}

// resolvePending handles the user's answer to a confirmation or
// clarification request.
func (m *Manager) resolvePending(ctx context.Context, sess *session, userInput string, pending *conversation.Action) turnResult {
	convCtx := sess.ctx

	if len(pending.Missing) > 0 {
		return m.resolveClarification(ctx, sess, userInput, pending)
	}

	// Confirmation side-state.
	normalized := strings.ToLower(strings.TrimSpace(userInput))
	res := turnResult{intent: pending.Intent, success: true}
	switch {
	case matchesAny(normalized, affirmatives):
		action := *pending
		m.clearPending(convCtx)
		if action.Params == nil {
			action.Params = map[string]any{}
		}
		action.Params["intent"] = action.Intent
		return m.executePending(ctx, sess, res, action)
	case matchesAny(normalized, negatives):
		m.clearPending(convCtx)
		res.response = "Okay, I won't do that."
		return res
	default:
		res.response = fmt.Sprintf("I still need a yes or no: should I go ahead with %s?",
			strings.ReplaceAll(pending.Intent, ".", " "))
		return res
	}
}

// resolveClarification fills the next missing entity from the user's reply
// and either re-asks, asks for confirmation, or executes.
func (m *Manager) resolveClarification(ctx context.Context, sess *session, userInput string, pending *conversation.Action) turnResult {
	convCtx := sess.ctx

	normalized := strings.ToLower(strings.TrimSpace(userInput))
	if matchesAny(normalized, negatives) {
		m.clearPending(convCtx)
		return turnResult{intent: pending.Intent, success: true, response: "Okay, dropping that."}
	}

	if pending.Params == nil {
		pending.Params = map[string]any{}
	}
	pending.Params[pending.Missing[0]] = strings.TrimSpace(userInput)
	pending.Missing = pending.Missing[1:]

	res := turnResult{intent: pending.Intent, success: true}
	if len(pending.Missing) > 0 {
		res.response = fmt.Sprintf("Got it. And the %s?", pending.Missing[0])
		return res
	}

	action := *pending
	m.clearPending(convCtx)

	needsConsent := m.tables.IsHighRisk(action.Intent)
	if !needsConsent {
		if schema, ok := m.executor.Schema(action.Skill); ok {
			needsConsent = schema.RequiresConfirmation
		}
	}
	if needsConsent {
		m.parkAction(convCtx, &flow.Outcome{
			Intent: action.Intent, SkillName: action.Skill, Params: action.Params,
			NeedsConfirmation: true,
		})
		res.response = fmt.Sprintf("Thanks. To confirm: go ahead with %s?",
			strings.ReplaceAll(action.Intent, ".", " "))
		return res
	}

	action.Params["intent"] = action.Intent
	return m.executePending(ctx, sess, res, action)
}

// executePending runs a fully-specified action through the registry.
func (m *Manager) executePending(ctx context.Context, sess *session, res turnResult, action conversation.Action) turnResult {
	convCtx := sess.ctx
	convCtx.State = conversation.StateActive

	result := m.executor.Execute(ctx, action.Skill, action.Params, &skill.Invocation{
		UserID:     convCtx.UserID,
		SessionID:  convCtx.SessionID,
		DeviceType: deviceTypeOf(sess),
		Topic:      convCtx.CurrentTopic,
		Memory:     convCtx.EntityMemory,
	})

	res.invocations = append(res.invocations, conversation.SkillInvocation{
		Skill:    action.Skill,
		Success:  result.Success,
		Duration: result.ExecutionTime,
	})
	if !result.Success {
		res.success = false
		res.errorMessage = result.ErrorMessage
		res.response = fmt.Sprintf("I ran into a problem with that: %s", result.ErrorMessage)
		return res
	}
	switch data := result.Data.(type) {
	case string:
		res.response = data
	case map[string]any:
		if msg, ok := data["message"].(string); ok {
			res.response = msg
		} else {
			res.response = "Done."
		}
	default:
		res.response = "Done."
	}
	return res
}

// clearPending drops the most recent pending action and its unresolved
// question, returning the session to active.
func (m *Manager) clearPending(convCtx *conversation.Context) {
	if len(convCtx.PendingActions) > 0 {
		convCtx.PendingActions = convCtx.PendingActions[:len(convCtx.PendingActions)-1]
	}
	if len(convCtx.UnresolvedQuestions) > 0 {
		convCtx.UnresolvedQuestions = convCtx.UnresolvedQuestions[:len(convCtx.UnresolvedQuestions)-1]
	}
	convCtx.State = conversation.StateActive
}

// finishTurn appends the turn, persists it when a store is wired, and
// publishes the turn event.
func (m *Manager) finishTurn(ctx context.Context, sess *session, turn *conversation.Turn) {
	convCtx := sess.ctx
	convCtx.AppendTurn(*turn)
	if convCtx.State == conversation.StateProcessing {
		convCtx.State = conversation.StateActive
	}

	if m.store != nil {
		meta := map[string]any{"turn_id": turn.TurnID, "intent": turn.Intent}
		if err := m.store.SaveTurn(ctx, convCtx.SessionID, convCtx.UserID, "user", turn.UserInput, meta); err != nil {
			m.logger.Warn("persisting user turn failed", "error", err)
		}
		if err := m.store.SaveTurn(ctx, convCtx.SessionID, convCtx.UserID, "assistant", turn.SystemResponse, meta); err != nil {
			m.logger.Warn("persisting assistant turn failed", "error", err)
		}
	}

	topic := "dialogue.turn_completed"
	if !turn.Success {
		topic = "dialogue.turn_failed"
	}
	m.publish(topic, map[string]any{
		"session_id":  convCtx.SessionID,
		"turn_id":     turn.TurnID,
		"intent":      turn.Intent,
		"success":     turn.Success,
		"duration_ms": turn.Duration.Milliseconds(),
	}, convCtx.SessionID)
}

func matchesAny(input string, phrases []string) bool {
	for _, p := range phrases {
		if input == p || strings.HasPrefix(input, p+" ") || strings.HasPrefix(input, p+",") {
			return true
		}
	}
	return false
}

func deviceTypeOf(sess *session) string {
	if sess.device != nil {
		return string(sess.device.Type)
	}
	return ""
}
