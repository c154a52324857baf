// ABOUTME: Per-turn conversational flow analysis.
// ABOUTME: Produces the Decision record that drives strategy dispatch.

package flow

import (
	"strings"
	"time"

	"github.com/2389/aide-runtime/internal/conversation"
	"github.com/2389/aide-runtime/internal/intent"
)

// Decision is the structured analysis of one turn's flow requirements.
type Decision struct {
	TopicShift               bool   `json:"topic_shift"`
	IntentChange             bool   `json:"intent_change"`
	ClarificationNeeded      bool   `json:"clarification_needed"`
	ContextRestoration       bool   `json:"context_restoration"`
	ConversationContinuation bool   `json:"conversation_continuation"`
	MemoryRecall             bool   `json:"memory_recall"`
	EmotionalSupportNeeded   bool   `json:"emotional_support_needed"`
	FollowUpRequired         bool   `json:"follow_up_required"`
	Topic                    string `json:"topic,omitempty"`
}

// restorationGap is the idle span after which a returning user gets
// context restoration instead of plain continuation.
const restorationGap = 5 * time.Minute

var emotionalMarkers = []string{
	"sad", "stressed", "frustrated", "upset", "worried",
	"angry", "anxious", "overwhelmed", "lonely",
}

var continuationConnectives = []string{
	"also", "but", "however", "what about", "and another",
}

var memoryMarkers = []string{
	"last time", "you said", "we talked", "earlier you",
}

// topicBuckets is the keyword-bucket topic classifier. First bucket with a
// matching keyword wins.
var topicBuckets = []struct {
	topic    string
	keywords []string
}{
	{"weather", []string{"weather", "rain", "sunny", "temperature", "forecast", "snow"}},
	{"health", []string{"health", "sleep", "exercise", "doctor", "tired", "headache"}},
	{"technology", []string{"computer", "phone", "app", "software", "internet", "device"}},
	{"work", []string{"work", "meeting", "project", "deadline", "office", "email"}},
	{"time", []string{"time", "schedule", "calendar", "appointment", "reminder"}},
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"what": true, "when": true, "where": true, "who": true, "how": true,
	"can": true, "could": true, "would": true, "please": true, "my": true,
	"me": true, "you": true, "your": true, "that": true, "this": true,
	"about": true, "tell": true, "with": true, "for": true, "and": true,
}

// Analyze inspects the input against the session context and the (possibly
// nil) classification, producing the flow decision for this turn.
func (m *Manager) Analyze(convCtx *conversation.Context, input string, cls *intent.Classification) Decision {
	lower := strings.ToLower(input)

	d := Decision{Topic: ExtractTopic(input)}

	for _, marker := range emotionalMarkers {
		if containsWord(lower, marker) {
			d.EmotionalSupportNeeded = true
			break
		}
	}

	if convCtx.CurrentTopic != "" {
		for _, conn := range continuationConnectives {
			if strings.Contains(lower, conn) {
				d.ConversationContinuation = true
				break
			}
		}
	}

	if convCtx.Depth > 0 &&
		(convCtx.State == conversation.StatePaused ||
			time.Since(convCtx.LastActivity) > restorationGap) {
		d.ContextRestoration = true
	}

	// A stale topic after an idle gap is restoration, not a shift.
	if d.Topic != "" && convCtx.CurrentTopic != "" &&
		d.Topic != convCtx.CurrentTopic &&
		!d.ConversationContinuation && !d.ContextRestoration {
		d.TopicShift = true
	}

	if cls != nil && cls.Intent != intent.Unknown {
		if convCtx.UserIntent != "" && cls.Intent != convCtx.UserIntent {
			d.IntentChange = true
		}
		if len(m.tables.MissingEntities(cls.Intent, cls.Entities)) > 0 {
			d.ClarificationNeeded = true
		}
		if cls.Intent == "note.recall" {
			d.MemoryRecall = true
		}
	}

	for _, marker := range memoryMarkers {
		if strings.Contains(lower, marker) {
			d.MemoryRecall = true
			break
		}
	}

	d.FollowUpRequired = len(convCtx.UnresolvedQuestions) > 0 || len(convCtx.PendingActions) > 0

	return d
}

// ExtractTopic classifies input into a keyword bucket, falling back to the
// first two significant words. Returns "" when nothing significant remains.
func ExtractTopic(input string) string {
	lower := strings.ToLower(input)
	for _, bucket := range topicBuckets {
		for _, kw := range bucket.keywords {
			if containsWord(lower, kw) {
				return bucket.topic
			}
		}
	}

	var significant []string
	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, ".,!?;:'\"")
		if len(w) > 3 && !stopwords[w] {
			significant = append(significant, w)
			if len(significant) == 2 {
				break
			}
		}
	}
	return strings.Join(significant, " ")
}

// containsWord reports whether lower contains word with non-letter
// boundaries on both sides.
func containsWord(lower, word string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isLetter(lower[start-1])
		afterOK := end == len(lower) || !isLetter(lower[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
