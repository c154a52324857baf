// ABOUTME: Intent classification contract plus the rule-based default classifier.
// ABOUTME: Keyword and regex matching; intentionally simple and replaceable.

// Package intent defines the intent-classification contract the dialogue
// core consumes. Any classifier satisfying Classifier can be plugged in; the
// KeywordClassifier is the built-in fallback with no accuracy target beyond
// exercising the routing tables.
package intent

import (
	"context"
	"regexp"
	"strings"
)

// Unknown is the intent assigned when no rule matches.
const Unknown = "unknown"

// Classification is the result of classifying one utterance.
type Classification struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
}

// Hints carries conversational context into classification.
type Hints struct {
	UserID       string
	CurrentTopic string
}

// Classifier is the external-collaborator contract. Implementations must be
// safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, text string, hints Hints) (*Classification, error)
}

// rule matches an utterance by substring keywords or a capturing regex.
type rule struct {
	intent     string
	keywords   []string       // any-of substring match
	pattern    *regexp.Regexp // optional; named groups become entities
	confidence float64
}

// KeywordClassifier is the built-in rule-based classifier.
type KeywordClassifier struct {
	rules []rule
}

// NewKeywordClassifier creates the default classifier with its built-in
// rule set. Rule order matters: the first match wins.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{rules: []rule{
		{
			intent:     "time.query",
			keywords:   []string{"what time", "time is it", "current time"},
			confidence: 0.9,
		},
		{
			intent:     "date.query",
			keywords:   []string{"what day", "today's date", "what's the date", "what is the date"},
			confidence: 0.9,
		},
		{
			intent:     "note.save",
			pattern:    regexp.MustCompile(`(?i)remember (?:that )?(?:my )?(?P<key>.+?) is (?P<value>.+?)\.?$`),
			confidence: 0.85,
		},
		{
			intent:     "note.save",
			keywords:   []string{"remember", "take a note", "note that"},
			confidence: 0.6,
		},
		{
			intent:     "note.recall",
			pattern:    regexp.MustCompile(`(?i)what(?:'s| is) my (?P<key>.+?)\??$`),
			confidence: 0.85,
		},
		{
			intent:     "note.recall",
			keywords:   []string{"recall", "what did i tell you"},
			confidence: 0.6,
		},
		{
			intent:     "note.delete",
			pattern:    regexp.MustCompile(`(?i)forget (?:about )?(?:my )?(?P<key>.+?)\.?$`),
			confidence: 0.85,
		},
		{
			intent:     "greeting",
			keywords:   []string{"hello", "hi there", "hey", "good morning", "good evening"},
			confidence: 0.8,
		},
		{
			intent:     "thanks",
			keywords:   []string{"thank you", "thanks"},
			confidence: 0.8,
		},
		{
			intent:     "farewell",
			keywords:   []string{"goodbye", "bye", "see you later"},
			confidence: 0.8,
		},
	}}
}

// Classify matches text against the rule set. It never fails; unmatched
// input yields the Unknown intent with zero confidence.
func (c *KeywordClassifier) Classify(_ context.Context, text string, _ Hints) (*Classification, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))

	for _, r := range c.rules {
		if r.pattern != nil {
			if m := r.pattern.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
				entities := make(map[string]string)
				for i, name := range r.pattern.SubexpNames() {
					if name != "" && i < len(m) {
						entities[name] = strings.TrimSpace(m[i])
					}
				}
				return &Classification{Intent: r.intent, Confidence: r.confidence, Entities: entities}, nil
			}
			continue
		}
		for _, kw := range r.keywords {
			if strings.Contains(normalized, kw) {
				return &Classification{Intent: r.intent, Confidence: r.confidence}, nil
			}
		}
	}
	return &Classification{Intent: Unknown, Confidence: 0}, nil
}
