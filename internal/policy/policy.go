// ABOUTME: Policy tables for intent routing, risk, and required entities.
// ABOUTME: Compiled-in defaults, optionally overridden from a TOML file.

// Package policy holds the configuration-shaped routing tables: which skill
// serves an intent, which intents are high-risk enough to require
// confirmation, which entities an intent needs before it can run, and the
// device-pair handoff phrasing. These are data, not behavior; deployments
// override them with a TOML file.
package policy

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Tables is the full policy table set.
type Tables struct {
	// IntentSkills maps a detected intent to the skill that serves it.
	IntentSkills map[string]string `toml:"intent_skills"`

	// HighRiskIntents lists intents requiring explicit confirmation before
	// the skill runs (irreversible or destructive actions).
	HighRiskIntents []string `toml:"high_risk_intents"`

	// RequiredEntities maps an intent to the entities that must be present
	// before dispatch; missing ones trigger a clarification turn.
	RequiredEntities map[string][]string `toml:"required_entities"`

	// HandoffMessages maps "from->to" device-type pairs to the transition
	// message spoken on device handoff.
	HandoffMessages map[string]string `toml:"handoff_messages"`
}

// Defaults returns the compiled-in policy tables.
func Defaults() *Tables {
	return &Tables{
		IntentSkills: map[string]string{
			"time.query":  "clock",
			"date.query":  "clock",
			"note.save":   "notes",
			"note.recall": "notes",
			"note.delete": "notes",
			"greeting":    "smalltalk",
			"thanks":      "smalltalk",
			"farewell":    "smalltalk",
		},
		HighRiskIntents: []string{"note.delete"},
		RequiredEntities: map[string][]string{
			"note.save":   {"key", "value"},
			"note.recall": {"key"},
			"note.delete": {"key"},
		},
		HandoffMessages: map[string]string{
			"mobile->watch":        "Continuing on your watch. Short replies from here.",
			"mobile->car":          "Moved to your car. I'll keep it hands-free.",
			"mobile->desktop":      "Picking up on your desktop with the full conversation.",
			"desktop->mobile":      "Switched to your phone. We can keep going.",
			"watch->mobile":        "Back on your phone with more room to talk.",
			"car->mobile":          "Out of the car. Resuming where we left off.",
			"desktop->smart_speaker": "Moving to voice. Just say what you need.",
		},
	}
}

// Load reads TOML policy tables from path, merged over the defaults: any
// table present in the file replaces the default table wholesale, absent
// tables keep their defaults.
func Load(path string) (*Tables, error) {
	out := Defaults()
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var loaded Tables
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parsing policy file: %w", err)
	}

	if loaded.IntentSkills != nil {
		out.IntentSkills = loaded.IntentSkills
	}
	if loaded.HighRiskIntents != nil {
		out.HighRiskIntents = loaded.HighRiskIntents
	}
	if loaded.RequiredEntities != nil {
		out.RequiredEntities = loaded.RequiredEntities
	}
	if loaded.HandoffMessages != nil {
		out.HandoffMessages = loaded.HandoffMessages
	}
	return out, nil
}

// SkillFor returns the skill serving an intent.
func (t *Tables) SkillFor(intent string) (string, bool) {
	name, ok := t.IntentSkills[intent]
	return name, ok
}

// IsHighRisk reports whether an intent requires confirmation.
func (t *Tables) IsHighRisk(intent string) bool {
	for _, i := range t.HighRiskIntents {
		if i == intent {
			return true
		}
	}
	return false
}

// MissingEntities returns the required entities for intent that are absent
// from the given entity set.
func (t *Tables) MissingEntities(intent string, entities map[string]string) []string {
	var missing []string
	for _, name := range t.RequiredEntities[intent] {
		if strings.TrimSpace(entities[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// HandoffMessage returns the transition message for a device-type pair,
// falling back to a generic phrase for unknown pairs.
func (t *Tables) HandoffMessage(from, to string) string {
	if msg, ok := t.HandoffMessages[from+"->"+to]; ok {
		return msg
	}
	return fmt.Sprintf("Continuing our conversation on your %s.", strings.ReplaceAll(to, "_", " "))
}
