// ABOUTME: Flow manager: strategy dispatch for each analyzed turn.
// ABOUTME: Fixed priority with empathy pre-empting topical routing.

package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/aide-runtime/internal/conversation"
	"github.com/2389/aide-runtime/internal/intent"
	"github.com/2389/aide-runtime/internal/policy"
	"github.com/2389/aide-runtime/internal/skill"
)

// Strategy names, in dispatch priority order.
const (
	StrategyEmotionalSupport   = "emotional_support"
	StrategyTopicShift         = "topic_shift"
	StrategyClarification      = "clarification"
	StrategyContextRestoration = "context_restoration"
	StrategyContinuation       = "continuation"
	StrategyNormal             = "normal"
)

// SkillExecutor is the narrow registry contract the flow manager needs.
type SkillExecutor interface {
	Execute(ctx context.Context, name string, params map[string]any, inv *skill.Invocation) *skill.Result
	Schema(name string) (skill.Schema, bool)
}

// EventPublisher is the narrow bus contract the flow manager needs.
type EventPublisher interface {
	Publish(topic string, payload map[string]any, source, correlationID string)
}

// Outcome is the flow manager's handling result for one turn. The dialogue
// layer merges it into the final turn record and owns any side-state
// (pending confirmations, clarification follow-ups) it implies.
type Outcome struct {
	Response          string
	Strategy          string
	Decision          Decision
	Intent            string
	Confidence        float64
	Entities          map[string]string
	SkillInvocations  []conversation.SkillInvocation
	Success           bool
	ErrorMessage      string // skill failure detail when Success is false
	NeedsConfirmation bool           // high-risk intent awaiting explicit consent
	NeedsClarification bool          // required entities absent
	Missing           []string       // which entities are absent
	SkillName         string         // resolved skill for the intent, if any
	Params            map[string]any // params the skill would receive
	Metadata          map[string]any // flow metadata for the turn
}

// Manager analyzes conversational flow and dispatches each turn to the
// matching strategy, invoking skills through the registry.
type Manager struct {
	executor   SkillExecutor
	bus        EventPublisher
	classifier intent.Classifier
	tables     *policy.Tables
	logger     *slog.Logger
}

// NewManager creates a flow manager. Pass nil logger for default.
func NewManager(executor SkillExecutor, bus EventPublisher, classifier intent.Classifier, tables *policy.Tables, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if tables == nil {
		tables = policy.Defaults()
	}
	return &Manager{
		executor:   executor,
		bus:        bus,
		classifier: classifier,
		tables:     tables,
		logger:     logger.With("component", "flow"),
	}
}

// Handle classifies and dispatches one turn. It mutates convCtx's topic,
// intent, and emotional-state fields; it must only be called from the
// goroutine processing the session's current turn. A returned error means
// the flow layer could not handle the turn at all and the caller should
// fall back to its own routing.
func (m *Manager) Handle(ctx context.Context, convCtx *conversation.Context, input string) (*Outcome, error) {
	cls, err := m.classifier.Classify(ctx, input, intent.Hints{
		UserID:       convCtx.UserID,
		CurrentTopic: convCtx.CurrentTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("classifying input: %w", err)
	}

	decision := m.Analyze(convCtx, input, cls)

	out := &Outcome{
		Decision:   decision,
		Intent:     cls.Intent,
		Confidence: cls.Confidence,
		Entities:   cls.Entities,
		Success:    true,
	}

	// Fixed dispatch priority: first match wins.
	switch {
	case decision.EmotionalSupportNeeded:
		m.handleEmotionalSupport(convCtx, input, out)
	case decision.TopicShift:
		m.handleTopicShift(ctx, convCtx, decision, cls, out)
	case decision.ClarificationNeeded:
		m.handleClarification(convCtx, cls, out)
	case decision.ContextRestoration:
		m.handleRestoration(ctx, convCtx, decision, cls, out)
	case decision.ConversationContinuation:
		m.handleContinuation(ctx, convCtx, cls, out)
	default:
		m.handleNormal(ctx, convCtx, decision, cls, out)
	}

	convCtx.UserIntent = cls.Intent
	out.Metadata = map[string]any{
		"conversation_state":    string(convCtx.State),
		"topic":                 convCtx.CurrentTopic,
		"depth":                 convCtx.Depth,
		"requires_followup":     decision.FollowUpRequired || out.NeedsClarification || out.NeedsConfirmation,
		"pending_actions_count": len(convCtx.PendingActions),
		"strategy":              out.Strategy,
	}

	if m.bus != nil {
		m.bus.Publish("flow.dispatched", map[string]any{
			"strategy": out.Strategy,
			"intent":   out.Intent,
			"topic":    convCtx.CurrentTopic,
		}, "flow", convCtx.SessionID)
	}
	return out, nil
}

func (m *Manager) handleEmotionalSupport(convCtx *conversation.Context, input string, out *Outcome) {
	out.Strategy = StrategyEmotionalSupport
	convCtx.EmotionalState = "distressed"
	out.Response = "That sounds difficult, and I'm sorry you're dealing with it. " +
		"I'm here to help however I can. Would you like to talk it through, " +
		"or is there something practical I can take off your plate?"
}

func (m *Manager) handleTopicShift(ctx context.Context, convCtx *conversation.Context, decision Decision, cls *intent.Classification, out *Outcome) {
	out.Strategy = StrategyTopicShift
	previous := convCtx.CurrentTopic
	convCtx.CurrentTopic = decision.Topic

	m.logger.Debug("topic shift",
		"session_id", convCtx.SessionID,
		"from", previous,
		"to", decision.Topic)

	// Serve the new topic's intent if one resolved; otherwise just follow.
	if response, invoked, ok := m.dispatchIntent(ctx, convCtx, cls, out); ok {
		out.Response = response
		out.SkillInvocations = invoked
		return
	}
	out.Response = fmt.Sprintf("Sure, let's talk about %s. What would you like to know?", decision.Topic)
}

func (m *Manager) handleClarification(convCtx *conversation.Context, cls *intent.Classification, out *Outcome) {
	out.Strategy = StrategyClarification
	out.NeedsClarification = true
	out.Missing = m.tables.MissingEntities(cls.Intent, cls.Entities)
	if name, ok := m.tables.SkillFor(cls.Intent); ok {
		out.SkillName = name
		out.Params = paramsFromEntities(cls.Entities)
	}
	out.Response = fmt.Sprintf("I can do that, but I need a bit more detail: %s?",
		strings.Join(out.Missing, ", and "))
}

func (m *Manager) handleRestoration(ctx context.Context, convCtx *conversation.Context, decision Decision, cls *intent.Classification, out *Outcome) {
	out.Strategy = StrategyContextRestoration
	convCtx.State = conversation.StateActive

	greeting := "Welcome back."
	if convCtx.CurrentTopic != "" {
		greeting = fmt.Sprintf("Welcome back. Last time we were discussing %s.", convCtx.CurrentTopic)
	}

	if response, invoked, ok := m.dispatchIntent(ctx, convCtx, cls, out); ok {
		out.Response = greeting + " " + response
		out.SkillInvocations = invoked
		return
	}
	if decision.Topic != "" {
		convCtx.CurrentTopic = decision.Topic
	}
	out.Response = greeting + " How can I help?"
}

func (m *Manager) handleContinuation(ctx context.Context, convCtx *conversation.Context, cls *intent.Classification, out *Outcome) {
	out.Strategy = StrategyContinuation

	if response, invoked, ok := m.dispatchIntent(ctx, convCtx, cls, out); ok {
		out.Response = response
		out.SkillInvocations = invoked
		return
	}
	out.Response = fmt.Sprintf("Still on %s - go ahead.", convCtx.CurrentTopic)
}

func (m *Manager) handleNormal(ctx context.Context, convCtx *conversation.Context, decision Decision, cls *intent.Classification, out *Outcome) {
	out.Strategy = StrategyNormal
	if decision.Topic != "" {
		convCtx.CurrentTopic = decision.Topic
	}

	if response, invoked, ok := m.dispatchIntent(ctx, convCtx, cls, out); ok {
		out.Response = response
		out.SkillInvocations = invoked
		return
	}
	out.Response = "I'm not sure how to help with that yet. You can ask me about the time, or ask me to remember things for you."
}

// dispatchIntent resolves the intent to a skill and executes it. Returns
// ok=false when no skill serves the intent. High-risk intents and skills
// whose schema requires confirmation are not executed here; the outcome is
// flagged for the dialogue layer's confirmation policy instead.
func (m *Manager) dispatchIntent(ctx context.Context, convCtx *conversation.Context, cls *intent.Classification, out *Outcome) (string, []conversation.SkillInvocation, bool) {
	if cls == nil || cls.Intent == intent.Unknown {
		return "", nil, false
	}
	name, ok := m.tables.SkillFor(cls.Intent)
	if !ok {
		return "", nil, false
	}
	out.SkillName = name
	out.Params = paramsFromEntities(cls.Entities)

	if m.tables.IsHighRisk(cls.Intent) || m.skillWantsConfirmation(name) {
		out.NeedsConfirmation = true
		return fmt.Sprintf("Just to confirm: you want me to go ahead with %s?",
			describeIntent(cls.Intent)), nil, true
	}

	out.Params["intent"] = cls.Intent
	result := m.executor.Execute(ctx, name, out.Params, &skill.Invocation{
		UserID:     convCtx.UserID,
		SessionID:  convCtx.SessionID,
		DeviceType: deviceTypeOf(convCtx),
		Topic:      convCtx.CurrentTopic,
		Memory:     convCtx.EntityMemory,
	})

	invoked := []conversation.SkillInvocation{{
		Skill:    name,
		Success:  result.Success,
		Duration: result.ExecutionTime,
	}}
	if !result.Success {
		out.Success = false
		out.ErrorMessage = result.ErrorMessage
		return fmt.Sprintf("I ran into a problem with that: %s", result.ErrorMessage), invoked, true
	}
	return responseFromResult(result), invoked, true
}

// skillWantsConfirmation reports whether the skill's own schema asks for
// explicit consent before execution, independent of the intent's risk class.
func (m *Manager) skillWantsConfirmation(name string) bool {
	schema, ok := m.executor.Schema(name)
	return ok && schema.RequiresConfirmation
}

// responseFromResult renders a skill result into user-facing text.
func responseFromResult(result *skill.Result) string {
	switch data := result.Data.(type) {
	case string:
		return data
	case map[string]any:
		if msg, ok := data["message"].(string); ok {
			return msg
		}
	}
	return "Done."
}

func paramsFromEntities(entities map[string]string) map[string]any {
	params := make(map[string]any, len(entities)+1)
	for k, v := range entities {
		params[k] = v
	}
	return params
}

func describeIntent(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, ".", " "), "_", " ")
}

func deviceTypeOf(convCtx *conversation.Context) string {
	if t, ok := convCtx.DeviceContext["type"].(string); ok {
		return t
	}
	return ""
}
